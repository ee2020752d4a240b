package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/midbel/cli"
	"golang.org/x/sync/errgroup"

	"github.com/midbel/xslchain/chain"
	"github.com/midbel/xslchain/settings"
	"github.com/midbel/xslchain/xslt"
)

var transformCmd = cli.Command{
	Name:    "transform",
	Alias:   []string{"run"},
	Summary: "apply a chain of stylesheets to a xml document",
	Handler: &TransformCmd{},
}

type TransformCmd struct {
	Settings string
	Pipeline string
	Output   string
	Media    string
	Trace    bool
	Params   ParamList
}

func (c *TransformCmd) Run(args []string) error {
	set := cli.NewFlagSet("transform")
	set.StringVar(&c.Settings, "c", "", "settings file")
	set.StringVar(&c.Pipeline, "p", "", "pipeline file")
	set.StringVar(&c.Output, "o", "", "output file")
	set.StringVar(&c.Media, "media", "", "media of the declared stylesheets to apply")
	set.BoolVar(&c.Trace, "trace", false, "trace the execution of the stylesheets")
	set.Var(&c.Params, "param", "stylesheet parameter given as name=value")
	if err := set.Parse(args); err != nil {
		return err
	}
	s, err := loadSettings(c.Settings)
	if err != nil {
		return err
	}
	job, err := c.job(set.Args())
	if err != nil {
		return err
	}
	return job.execute(context.Background(), s, runLogger(s))
}

func (c *TransformCmd) job(args []string) (*job, error) {
	var j job
	if c.Pipeline != "" {
		p, err := settings.LoadPipeline(c.Pipeline)
		if err != nil {
			return nil, err
		}
		j.input = p.Input
		j.output = p.Output
		j.media = p.Media
		j.stages = p.ChainStages()
	} else {
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: transform [options] <document> [stylesheet...]", errUsage)
		}
		j.input = args[0]
		j.media = c.Media
		for _, a := range args[1:] {
			j.stages = append(j.stages, chain.Stage{
				Path: a,
			})
		}
	}
	if c.Output != "" {
		j.output = c.Output
	}
	if c.Media != "" {
		j.media = c.Media
	}
	for i := range j.stages {
		j.stages[i].Params = append(j.stages[i].Params, c.Params...)
	}
	j.params = c.Params
	j.trace = c.Trace
	return &j, nil
}

// job is one run of a chain: the stages are taken from the declarations
// of the input when none are given.
type job struct {
	input  string
	output string
	media  string
	stages []chain.Stage
	params []chain.Param
	trace  bool
}

func (j *job) execute(ctx context.Context, s *settings.Settings, logger *slog.Logger) error {
	var (
		hand     = chain.NewHandoff()
		grp, sub = errgroup.WithContext(ctx)
	)
	grp.Go(func() error {
		for e := range hand.Events() {
			printEvent(e)
			hand.Ack()
		}
		return nil
	})
	grp.Go(func() error {
		defer hand.Close()
		out, err := j.run(s, hand, logger)
		if err != nil {
			logger.Error("transformation failed", "input", j.input, "kind", chain.KindOf(err), "err", err)
			return err
		}
		return hand.Deliver(sub, chain.Event{
			Kind:   chain.KindTransformationSuccess,
			Params: []string{out},
		})
	})
	return grp.Wait()
}

func (j *job) run(s *settings.Settings, sink chain.Sink, logger *slog.Logger) (string, error) {
	cfg := chain.Build(s, sink)
	stages := j.stages
	if len(stages) == 0 {
		list, err := chain.Scan(j.input, cfg)
		if err != nil {
			return "", err
		}
		stages = chain.Stages(j.input, chain.Select(list, j.media))
		for i := range stages {
			stages[i].Params = append(stages[i].Params, j.params...)
		}
		logger.Debug("stylesheets declared", "input", j.input, "count", len(list), "selected", len(stages))
	}
	options := []chain.Option{
		chain.WithLogger(logger),
	}
	if j.trace {
		options = append(options, chain.WithTracer(xslt.LogTracer(logger)))
	}
	ch := chain.New(cfg, chain.BuildTransformSettings(s), options...)
	res, err := ch.Run(j.input, stages)
	if err != nil {
		return "", err
	}
	out := j.output
	if out == "" {
		out = chain.ProposeOutput(j.input, res.Method)
	}
	if err := chain.Write(res, out, s.WriteBom()); err != nil {
		return "", err
	}
	logger.Info("result written", "file", out, "method", res.Method, "encoding", res.Encoding)
	return out, nil
}
