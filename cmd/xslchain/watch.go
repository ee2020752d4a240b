package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/midbel/cli"

	"github.com/midbel/xslchain/chain"
)

var watchCmd = cli.Command{
	Name:    "watch",
	Summary: "transform a document again each time it or its stylesheets change",
	Handler: &WatchCmd{},
}

type WatchCmd struct {
	TransformCmd
	Delay time.Duration
}

func (c *WatchCmd) Run(args []string) error {
	set := cli.NewFlagSet("watch")
	set.StringVar(&c.Settings, "c", "", "settings file")
	set.StringVar(&c.Pipeline, "p", "", "pipeline file")
	set.StringVar(&c.Output, "o", "", "output file")
	set.StringVar(&c.Media, "media", "", "media of the declared stylesheets to apply")
	set.DurationVar(&c.Delay, "delay", 300*time.Millisecond, "time to wait for changes to settle")
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := s.Logger(os.Stderr)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	files := watchedFiles(job, chain.Build(s, nil))
	for _, dir := range watchedDirs(files) {
		if err := w.Add(dir); err != nil {
			return err
		}
	}

	rerun := func() {
		if err := job.execute(ctx, s, runLogger(s)); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	rerun()
	return watch(ctx, w, files, c.Delay, rerun, logger)
}

func watch(ctx context.Context, w *fsnotify.Watcher, files []string, delay time.Duration, fn func(), logger *slog.Logger) error {
	var (
		timer   *time.Timer
		trigger = make(chan struct{}, 1)
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !slices.Contains(files, filepath.Clean(ev.Name)) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("change detected", "file", ev.Name, "op", ev.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(delay, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
		case <-trigger:
			fn()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logger.Warn("too many changes, some were lost")
				continue
			}
			logger.Error("watcher error", "err", err)
		}
	}
}

// watchedFiles are the input and the local stylesheets, the declared ones
// when none are given.
func watchedFiles(j *job, cfg chain.ReaderConfiguration) []string {
	stages := j.stages
	if len(stages) == 0 {
		list, err := chain.Scan(j.input, cfg)
		if err == nil {
			stages = chain.Stages(j.input, chain.Select(list, j.media))
		}
	}
	files := []string{filepath.Clean(j.input)}
	for _, s := range stages {
		if strings.Contains(s.Path, "://") {
			continue
		}
		files = append(files, filepath.Clean(s.Path))
	}
	return files
}

// watchedDirs are the directories of files. They are watched instead of the
// files since editors often replace the files they save.
func watchedDirs(files []string) []string {
	var dirs []string
	for _, f := range files {
		dir := filepath.Dir(f)
		if !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
