package main

import (
	"fmt"
	"os"

	"github.com/midbel/cli"

	"github.com/midbel/xslchain/settings"
)

var configInitCmd = cli.Command{
	Name:    "init",
	Summary: "write a settings file with the default values",
	Handler: &ConfigInitCmd{},
}

type ConfigInitCmd struct {
	Force bool
}

func (c *ConfigInitCmd) Run(args []string) error {
	set := cli.NewFlagSet("init")
	set.BoolVar(&c.Force, "f", false, "overwrite an existing file")
	if err := set.Parse(args); err != nil {
		return err
	}
	file := settings.DefaultFile
	if set.NArg() > 0 {
		file = set.Arg(0)
	}
	if _, err := os.Stat(file); err == nil && !c.Force {
		return fmt.Errorf("%s: file already exists", file)
	}
	if err := settings.Default().Save(file); err != nil {
		return err
	}
	fmt.Printf("settings written to %s\n", file)
	return nil
}
