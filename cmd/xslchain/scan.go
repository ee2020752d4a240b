package main

import (
	"fmt"

	"github.com/midbel/cli"

	"github.com/midbel/xslchain/chain"
)

var scanCmd = cli.Command{
	Name:    "scan",
	Summary: "list the stylesheets declared in xml documents",
	Handler: &ScanCmd{},
}

type ScanCmd struct {
	Settings string
	Media    string
}

func (c *ScanCmd) Run(args []string) error {
	set := cli.NewFlagSet("scan")
	set.StringVar(&c.Settings, "c", "", "settings file")
	set.StringVar(&c.Media, "media", "", "mark the stylesheets declared for media")
	if err := set.Parse(args); err != nil {
		return err
	}
	s, err := loadSettings(c.Settings)
	if err != nil {
		return err
	}
	cfg := chain.Build(s, chain.SinkFunc(printEvent))
	for _, file := range set.Args() {
		list, err := chain.Scan(file, cfg)
		if err != nil {
			return err
		}
		for _, d := range chain.Select(list, c.Media) {
			mark := " "
			if d.Selected {
				mark = "*"
			}
			media := d.Media
			if media == "" {
				media = "-"
			}
			fmt.Printf("%s %s %-8s %s\n", mark, file, media, chain.Resolve(file, d.Href))
		}
	}
	return nil
}
