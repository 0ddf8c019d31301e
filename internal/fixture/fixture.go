// Package fixture loads recorded runs: YAML or JSON snapshots of a command
// tree with optional follow-up events, and JSONL envelope streams.
package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/live-reporter/internal/follow"
	"github.com/hochfrequenz/live-reporter/internal/protocol"
)

// Fixture is a snapshot of a run
type Fixture struct {
	RunID     string        `yaml:"run_id" json:"run_id"`
	Spec      string        `yaml:"spec" json:"spec"`
	StartedAt string        `yaml:"started_at" json:"started_at"`
	Commands  []interface{} `yaml:"commands" json:"commands"`
	Then      []Step        `yaml:"then" json:"then"`
}

// Step is an envelope applied after the snapshot
type Step struct {
	Type    string      `yaml:"type" json:"type"`
	Payload interface{} `yaml:"payload" json:"payload"`
}

// Load reads a fixture file and returns the envelopes it stands for. The
// format follows the extension: .yaml/.yml, .json or .jsonl.
func Load(path string) ([]protocol.EnvelopeRaw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		envs, err := follow.ReadAll(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return envs, nil
	case ".json":
		var fx Fixture
		if err := json.Unmarshal(data, &fx); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return fx.Envelopes()
	default:
		fx, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return fx.Envelopes()
	}
}

// Parse decodes a YAML fixture
func Parse(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, err
	}
	return &fx, nil
}

// Envelopes converts the fixture into the envelopes a host would send:
// run:start when metadata is present, run:ready with the commands, then
// the follow-up steps in order.
func (f *Fixture) Envelopes() ([]protocol.EnvelopeRaw, error) {
	var envs []protocol.EnvelopeRaw

	if f.RunID != "" || f.Spec != "" || f.StartedAt != "" {
		start, err := raw(protocol.TypeRunStart, protocol.RunStartMessage{
			RunID:     f.RunID,
			Spec:      f.Spec,
			StartedAt: f.StartedAt,
		})
		if err != nil {
			return nil, err
		}
		envs = append(envs, start)
	}

	commands := make([]interface{}, len(f.Commands))
	for i, c := range f.Commands {
		commands[i] = normalize(c)
	}
	ready, err := raw(protocol.TypeRunReady, map[string]interface{}{
		"run_id":   f.RunID,
		"commands": commands,
	})
	if err != nil {
		return nil, err
	}
	envs = append(envs, ready)

	for i, step := range f.Then {
		if step.Type == "" {
			return nil, fmt.Errorf("step %d: missing type", i+1)
		}
		env, err := raw(step.Type, normalize(step.Payload))
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		envs = append(envs, env)
	}
	return envs, nil
}

func raw(typ string, payload interface{}) (protocol.EnvelopeRaw, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return protocol.EnvelopeRaw{}, fmt.Errorf("encode %s: %w", typ, err)
	}
	return protocol.EnvelopeRaw{Type: typ, Payload: data}, nil
}

// normalize turns YAML maps with non-string keys into JSON encodable maps
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case map[string]interface{}:
		for k, val := range x {
			x[k] = normalize(val)
		}
		return x
	case []interface{}:
		for i, val := range x {
			x[i] = normalize(val)
		}
		return x
	default:
		return v
	}
}
