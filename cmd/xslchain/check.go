package main

import (
	"fmt"

	"github.com/midbel/cli"

	"github.com/midbel/xslchain/chain"
)

var checkCmd = cli.Command{
	Name:    "check",
	Summary: "check that xml documents are well-formed and valid",
	Handler: &CheckCmd{},
}

var checkSheetCmd = cli.Command{
	Name:    "stylesheet",
	Summary: "compile stylesheets without running them",
	Handler: &CheckSheetCmd{},
}

type CheckCmd struct {
	Settings string
	Quiet    bool
}

func (c *CheckCmd) Run(args []string) error {
	set := cli.NewFlagSet("check")
	set.StringVar(&c.Settings, "c", "", "settings file")
	set.BoolVar(&c.Quiet, "q", false, "quiet")
	if err := set.Parse(args); err != nil {
		return err
	}
	s, err := loadSettings(c.Settings)
	if err != nil {
		return err
	}
	var (
		cfg  = chain.Build(s, chain.SinkFunc(printEvent))
		fail error
	)
	for _, file := range set.Args() {
		if err := chain.Check(file, cfg); err != nil {
			fmt.Println(err)
			if fail == nil {
				fail = err
			}
			continue
		}
		if !c.Quiet {
			fmt.Printf("%s: ok\n", file)
		}
	}
	if fail != nil {
		return fmt.Errorf("%w: %w", errFail, fail)
	}
	return nil
}

type CheckSheetCmd struct {
	Settings string
}

func (c *CheckSheetCmd) Run(args []string) error {
	set := cli.NewFlagSet("stylesheet")
	set.StringVar(&c.Settings, "c", "", "settings file")
	if err := set.Parse(args); err != nil {
		return err
	}
	s, err := loadSettings(c.Settings)
	if err != nil {
		return err
	}
	var (
		ts   = chain.BuildTransformSettings(s)
		fail error
	)
	for _, file := range set.Args() {
		out, err := chain.CheckStylesheet(file, ts, nil)
		if err != nil {
			fmt.Println(err)
			if fail == nil {
				fail = err
			}
			continue
		}
		method := out.Method
		if method == "" {
			method = "auto"
		}
		fmt.Printf("%s: ok (method: %s, encoding: %s)\n", file, method, out.Encoding)
	}
	if fail != nil {
		return fmt.Errorf("%w: %w", errFail, fail)
	}
	return nil
}
