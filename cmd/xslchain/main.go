package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/midbel/cli"

	"github.com/midbel/xslchain/chain"
)

var errFail = errors.New("fail")

var (
	summary = "xslchain applies a chain of xslt stylesheets to xml documents"
	help    = `xslchain validates an xml document then transforms it with one or more
stylesheets, the result of a stylesheet being the input of the next one.

Without stylesheets on the command line, the ones declared in the prolog of
the document with xml-stylesheet instructions are used.`
)

const (
	exitUsage = iota + 2
	exitInput
	exitStylesheet
	exitTransform
	exitOutput
)

func main() {
	var (
		set  = cli.NewFlagSet("xslchain")
		root = prepare()
	)
	root.SetSummary(summary)
	root.SetHelp(help)
	if err := set.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			root.Help()
			os.Exit(exitUsage)
		}
	}
	err := root.Execute(set.Args())
	if err != nil {
		if s, ok := err.(cli.SuggestionError); ok && len(s.Others) > 0 {
			fmt.Fprintln(os.Stderr, "similar command(s)")
			for _, n := range s.Others {
				fmt.Fprintln(os.Stderr, "-", n)
			}
		}
		if !errors.Is(err, errFail) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

func prepare() *cli.CommandTrie {
	root := cli.New()
	root.Register([]string{"transform"}, &transformCmd)
	root.Register([]string{"scan"}, &scanCmd)
	root.Register([]string{"check"}, &checkCmd)
	root.Register([]string{"check", "stylesheet"}, &checkSheetCmd)
	root.Register([]string{"config", "init"}, &configInitCmd)
	root.Register([]string{"watch"}, &watchCmd)
	return root
}

func exitCode(err error) int {
	switch chain.KindOf(err) {
	case chain.KindNoStylesheets:
		return exitUsage
	case chain.KindNotFound, chain.KindMalformedXml, chain.KindInvalidXml, chain.KindReadError:
		return exitInput
	case chain.KindStylesheetError, chain.KindLoadError:
		return exitStylesheet
	case chain.KindIntermediateResultError, chain.KindTransformError:
		return exitTransform
	case chain.KindOutputFileError:
		return exitOutput
	}
	var serr cli.SuggestionError
	if errors.As(err, &serr) || errors.Is(err, flag.ErrHelp) || errors.Is(err, errUsage) {
		return exitUsage
	}
	return 1
}
