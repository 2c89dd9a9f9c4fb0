// Package suite runs declarative test suites through the bdd harness.
//
// A suite is a YAML tree of blocks. Every block becomes a node of its noun;
// leaf blocks run an external command whose exit status decides the
// outcome:
//
//	name: checkout
//	description: "Checkout service smoke tests"
//	env:
//	  BASE_URL: http://localhost:8080
//	blocks:
//	  - noun: feature
//	    description: cart
//	    before:
//	      - [./scripts/seed.sh]
//	    blocks:
//	      - noun: requirement
//	        description: adds an item
//	        command: [./scripts/add_item.sh, sku-1]
//	      - noun: requirement
//	        description: rejects unknown skus
//	        command: [./scripts/add_item.sh, nope]
//	        ignore: 1
//
// Command failures are reported at the line of the block that declared the
// command.
package suite

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Suite is a parsed suite file.
type Suite struct {
	// Name identifies the suite. It is the default database module name.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Env is added to every command's environment.
	Env map[string]string `yaml:"env,omitempty"`

	Blocks []Block `yaml:"blocks"`

	// Path is the file the suite was loaded from.
	Path string `yaml:"-"`
}

// Block is one node of the suite tree.
type Block struct {
	Noun        string `yaml:"noun"`
	Description string `yaml:"description"`

	// Ignore is the node's ignore level: 1 ignored, 2 warning.
	Ignore int `yaml:"ignore,omitempty"`

	// Skip, when set, is the reason the block is skipped without running.
	Skip string `yaml:"skip,omitempty"`

	// Command is the argv of a leaf's test command.
	Command []string `yaml:"command,omitempty"`

	// Before and After are commands run as the node's hooks.
	Before [][]string `yaml:"before,omitempty"`
	After  [][]string `yaml:"after,omitempty"`

	// Dir is the working directory, relative to the suite file.
	// Children inherit it.
	Dir string `yaml:"dir,omitempty"`

	// Env extends the environment of this block and its children.
	Env map[string]string `yaml:"env,omitempty"`

	// Timeout bounds each command of this block, e.g. "30s".
	Timeout string `yaml:"timeout,omitempty"`

	Blocks []Block `yaml:"blocks,omitempty"`

	// Line is where the block starts in the suite file.
	Line int `yaml:"-"`

	timeout time.Duration
}

// Load reads and parses a suite file. Unknown fields and missing required
// fields are errors.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	s.Path = path
	return s, nil
}

// Parse parses suite YAML.
func Parse(data []byte) (*Suite, error) {
	var s Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: empty suite")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(root.Content) > 0 {
		assignLines(root.Content[0], s.Blocks)
	}

	if err := validateSuite(&s); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	return &s, nil
}

// assignLines walks the mapping node's "blocks" sequence alongside blocks
// and records where each block starts.
func assignLines(mapping *yaml.Node, blocks []Block) {
	seq := field(mapping, "blocks")
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return
	}
	for i, item := range seq.Content {
		if i >= len(blocks) {
			return
		}
		blocks[i].Line = item.Line
		assignLines(item, blocks[i].Blocks)
	}
}

func field(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// validateSuite checks that required fields are present and valid.
func validateSuite(s *Suite) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Blocks) == 0 {
		return fmt.Errorf("blocks list is required and must be non-empty")
	}
	for i := range s.Blocks {
		if err := validateBlock(&s.Blocks[i], fmt.Sprintf("blocks[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func validateBlock(b *Block, where string) error {
	if b.Noun == "" {
		return fmt.Errorf("%s: noun is required", where)
	}
	if b.Description == "" {
		return fmt.Errorf("%s: description is required", where)
	}
	if b.Ignore < 0 || b.Ignore > 2 {
		return fmt.Errorf("%s: ignore must be 0, 1 or 2, got %d", where, b.Ignore)
	}
	if len(b.Command) > 0 && len(b.Blocks) > 0 {
		return fmt.Errorf("%s: a block with a command cannot have nested blocks", where)
	}
	if len(b.Command) > 0 && b.Command[0] == "" {
		return fmt.Errorf("%s: command program is empty", where)
	}
	for j, hook := range append(append([][]string{}, b.Before...), b.After...) {
		if len(hook) == 0 || hook[0] == "" {
			return fmt.Errorf("%s: hook %d has no program", where, j)
		}
	}
	if b.Timeout != "" {
		d, err := time.ParseDuration(b.Timeout)
		if err != nil {
			return fmt.Errorf("%s: timeout: %w", where, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s: timeout must be positive", where)
		}
		b.timeout = d
	}

	for i := range b.Blocks {
		if err := validateBlock(&b.Blocks[i], fmt.Sprintf("%s.blocks[%d]", where, i)); err != nil {
			return err
		}
	}
	return nil
}

// Nouns returns every noun used in the suite, in first-use order.
func (s *Suite) Nouns() []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(blocks []Block)
	walk = func(blocks []Block) {
		for _, b := range blocks {
			if !seen[b.Noun] {
				seen[b.Noun] = true
				out = append(out, b.Noun)
			}
			walk(b.Blocks)
		}
	}
	walk(s.Blocks)
	return out
}

// baseDir is the directory relative block dirs resolve against.
func (s *Suite) baseDir() string {
	if s.Path == "" {
		return "."
	}
	return filepath.Dir(s.Path)
}
