// Package config parses the {"mcpServers": {...}} registration document
// (SPEC_FULL.md §3) into []*registry.Config, tokenizing a shell-style
// "start" string and deriving each backend's Kind from which of
// start/command/embedded is present.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	mcperr "github.com/stacklok/mcpmux/pkg/errors"
	"github.com/stacklok/mcpmux/pkg/registry"
)

// DefaultMaxConnections and DefaultMaxMessageBytes seed a Document that
// omits those fields.
const (
	DefaultMaxConnections  = 100
	DefaultMaxMessageBytes = 1 << 20
)

// serverEntry is one named entry under "mcpServers".
type serverEntry struct {
	Start      string            `json:"start" yaml:"start"`
	Command    string            `json:"command" yaml:"command"`
	Args       []string          `json:"args" yaml:"args"`
	Cwd        string            `json:"cwd" yaml:"cwd"`
	Env        map[string]string `json:"env" yaml:"env"`
	InheritEnv bool              `json:"inherit_env" yaml:"inherit_env"`
	AutoStart  bool              `json:"auto_start" yaml:"auto_start"`
	Whitelist  []string          `json:"whitelist" yaml:"whitelist"`
	Blacklist  []string          `json:"blacklist" yaml:"blacklist"`
	Embedded   string            `json:"embedded" yaml:"embedded"`
}

// Document is the top-level registration document shape.
type Document struct {
	MCPServers      map[string]serverEntry `json:"mcpServers" yaml:"mcpServers"`
	MaxConnections  int64                  `json:"max_connections" yaml:"max_connections"`
	MaxMessageBytes int                    `json:"max_message_bytes" yaml:"max_message_bytes"`
	ScratchDir      string                 `json:"scratch_dir" yaml:"scratch_dir"`
}

// Parsed holds the decoded document plus the per-backend configs derived
// from it, ready to hand to controller.Register.
type Parsed struct {
	Backends        []*registry.Config
	MaxConnections  int64
	MaxMessageBytes int
	ScratchDir      string
}

// LoadFile reads and parses path, dispatching to JSON or YAML by extension
// (.yaml/.yml is parsed as YAML, everything else as JSON).
func LoadFile(path string) (*Parsed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mcperr.NewConfigError("failed to read config file: "+path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return Parse(data, ext == ".yaml" || ext == ".yml")
}

// Parse decodes data (JSON unless asYAML is set) into a Parsed document,
// validating every backend entry.
func Parse(data []byte, asYAML bool) (*Parsed, error) {
	var doc Document
	var err error
	if asYAML {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, mcperr.NewConfigError("failed to parse config document", err)
	}

	out := &Parsed{
		MaxConnections:  doc.MaxConnections,
		MaxMessageBytes: doc.MaxMessageBytes,
		ScratchDir:      doc.ScratchDir,
	}
	if out.MaxConnections == 0 {
		out.MaxConnections = DefaultMaxConnections
	}
	if out.MaxMessageBytes == 0 {
		out.MaxMessageBytes = DefaultMaxMessageBytes
	}

	for name, entry := range doc.MCPServers {
		cfg, err := entryToConfig(name, entry)
		if err != nil {
			return nil, err
		}
		out.Backends = append(out.Backends, cfg)
	}
	return out, nil
}

func entryToConfig(name string, entry serverEntry) (*registry.Config, error) {
	if entry.Start != "" && entry.Command != "" {
		return nil, mcperr.NewConfigError("backend "+name+": specify only one of start or command", nil)
	}

	command, args := entry.Command, entry.Args
	if entry.Start != "" {
		tokens, err := shlex.Split(entry.Start)
		if err != nil || len(tokens) == 0 {
			return nil, mcperr.NewConfigError("backend "+name+": failed to tokenize start command", err)
		}
		command, args = tokens[0], tokens[1:]
	}

	cfg := &registry.Config{
		Name:            name,
		Command:         command,
		Args:            args,
		Cwd:             entry.Cwd,
		Env:             entry.Env,
		InheritEnv:      entry.InheritEnv,
		EmbeddedHandler: entry.Embedded,
		AutoStart:       entry.AutoStart,
		Whitelist:       entry.Whitelist,
		Blacklist:       entry.Blacklist,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
