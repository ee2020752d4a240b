package settings

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/midbel/xslchain/chain"
)

type Param struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type Stage struct {
	Path   string  `yaml:"path"`
	Params []Param `yaml:"params,omitempty"`
}

// Pipeline describes a run: the stylesheets to apply to an input document
// and where to save the result. Without stages, the stylesheets declared
// in the input matching Media are used.
type Pipeline struct {
	Input  string  `yaml:"input"`
	Output string  `yaml:"output,omitempty"`
	Media  string  `yaml:"media,omitempty"`
	Stages []Stage `yaml:"stages,omitempty"`
}

// LoadPipeline reads the pipeline in file. Relative paths are taken from
// the directory of file.
func LoadPipeline(file string) (*Pipeline, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var p Pipeline
	if err := decode(bytes.NewReader([]byte(os.ExpandEnv(string(data)))), &p); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	if p.Input == "" {
		return nil, fmt.Errorf("%s: %w: input missing", file, ErrInvalid)
	}
	dir := filepath.Dir(file)
	p.Input = relativeTo(dir, p.Input)
	if p.Output != "" {
		p.Output = relativeTo(dir, p.Output)
	}
	for i := range p.Stages {
		if p.Stages[i].Path == "" {
			return nil, fmt.Errorf("%s: %w: stage %d without path", file, ErrInvalid, i+1)
		}
		p.Stages[i].Path = chain.Resolve(file, p.Stages[i].Path)
	}
	for _, s := range p.ChainStages() {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", file, ErrInvalid, err)
		}
	}
	return &p, nil
}

func relativeTo(dir, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

func (p *Pipeline) ChainStages() []chain.Stage {
	var list []chain.Stage
	for _, s := range p.Stages {
		cs := chain.Stage{
			Path: s.Path,
		}
		for _, x := range s.Params {
			cs.Params = append(cs.Params, chain.Param{
				Name:  x.Name,
				Value: x.Value,
			})
		}
		list = append(list, cs)
	}
	return list
}
