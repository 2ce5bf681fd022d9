package catalog

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

// PromptSpec holds the templates an engine renders for the AI endpoint.
type PromptSpec struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// EngineSpec is one engine entry of a bootstrap file.
type EngineSpec struct {
	model.EngineDescriptor `yaml:",inline"`
	Prompt                 PromptSpec `yaml:"prompt"`
}

type enginesFile struct {
	Engines []EngineSpec `yaml:"engines"`
}

// LoadDescriptors parses a YAML engines file of the form
//
//	engines:
//	  - id: basic
//	    version: 1.0.0
//	    costPerAnalysis: 1
//	    supportedDataTypes: {eeg: true, ppg: true}
//	    prompt:
//	      system: ...
//	      user: ...
func LoadDescriptors(r io.Reader) ([]EngineSpec, error) {
	var f enginesFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	seen := make(map[string]struct{}, len(f.Engines))
	for i, e := range f.Engines {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: engine #%d has no id", ErrInvalidFile, i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate engine id %q", ErrInvalidFile, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return f.Engines, nil
}
