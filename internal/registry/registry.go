// Package registry implements the Agent Registry (component G): a
// read-only, hot-reloadable list of agent definitions backed by a JSON
// file, swapped in on startup and on SIGHUP without disturbing any agent
// already dispatched.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/agentboard/agentboard/internal/boardmodel"
	"github.com/agentboard/agentboard/internal/errors"
	"github.com/agentboard/agentboard/internal/util"
)

// Registry holds the current agent list and reloads it from disk.
type Registry struct {
	path    string
	current atomic.Pointer[[]boardmodel.Agent]
}

// defaultAgents is written to path by New when no registry file exists
// yet, so the service never fails to start for lack of configuration.
var defaultAgents = []boardmodel.Agent{
	{ID: "noop", Name: "No-op", Cmd: "true", Args: []string{"{prompt}"}, Default: true, Enabled: true, Note: "placeholder agent, replace via agents.json"},
}

// New loads path once and returns a Registry. If path does not exist but a
// sibling agents.yaml does, that path is used instead. If neither exists, a
// single-agent default JSON registry is written to path first. New fails
// only if the resolved file exists and cannot be parsed or validated.
func New(path string) (*Registry, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if yamlPath := yamlSibling(path); yamlPath != "" {
			path = yamlPath
		} else if err := writeDefault(path); err != nil {
			return nil, errors.ErrRegistryLoad(path, err)
		}
	}

	r := &Registry{path: path}
	agents, err := load(path)
	if err != nil {
		return nil, err
	}
	r.current.Store(&agents)
	return r, nil
}

// yamlSibling returns the path's .yaml fallback (agents.json -> agents.yaml)
// if that file exists, or "" otherwise.
func yamlSibling(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	candidate := strings.TrimSuffix(path, ext) + ".yaml"
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

func writeDefault(path string) error {
	data, err := json.MarshalIndent(defaultAgents, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, data, 0o644)
}

// Agents returns the current agent list. The returned slice must not be
// mutated by the caller.
func (r *Registry) Agents() []boardmodel.Agent {
	p := r.current.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Reload re-reads the registry file and atomically swaps it in. On
// failure the previous registry is kept in place and the error returned,
// so in-flight dispatches that already hold an agent definition are
// unaffected either way.
func (r *Registry) Reload() error {
	agents, err := load(r.path)
	if err != nil {
		return err
	}
	r.current.Store(&agents)
	return nil
}

func load(path string) ([]boardmodel.Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ErrRegistryLoad(path, err)
	}

	var agents []boardmodel.Agent
	unmarshal := json.Unmarshal
	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		unmarshal = yaml.Unmarshal
	}
	if err := unmarshal(data, &agents); err != nil {
		return nil, errors.ErrRegistryLoad(path, err)
	}

	for i, a := range agents {
		if err := validate(a); err != nil {
			return nil, errors.ErrRegistryLoad(path, fmt.Errorf("entry %d: %w", i, err))
		}
	}
	return agents, nil
}

func validate(a boardmodel.Agent) error {
	if a.ID == "" {
		return fmt.Errorf("missing id")
	}
	if a.Cmd == "" {
		return fmt.Errorf("agent %q: missing cmd", a.ID)
	}
	if len(a.Args) == 0 {
		return fmt.Errorf("agent %q: missing args template", a.ID)
	}
	return nil
}
