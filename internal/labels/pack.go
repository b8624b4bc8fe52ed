package labels

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleSpec is the on-disk form of a Rule.
type RuleSpec struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
	Type     string `yaml:"type"`
	Severity string `yaml:"severity"`
}

// Pack is a named, ordered rule set for one source.
type Pack struct {
	Source string     `yaml:"source"`
	Rules  []RuleSpec `yaml:"rules"`
}

// Compile turns the pack's specs into rules, preserving order.
func (p Pack) Compile() ([]Rule, error) {
	rules := make([]Rule, 0, len(p.Rules))
	for i, spec := range p.Rules {
		if strings.TrimSpace(spec.Pattern) == "" {
			return nil, fmt.Errorf("rule %d: pattern is required", i)
		}
		if strings.TrimSpace(spec.Category) == "" {
			return nil, fmt.Errorf("rule %d: category is required", i)
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: compile pattern: %w", i, err)
		}
		kind, err := ParseKind(spec.Type)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		severity, err := ParseSeverity(spec.Severity)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, Rule{
			Pattern:  re,
			Category: strings.TrimSpace(spec.Category),
			Kind:     kind,
			Severity: severity,
		})
	}
	return rules, nil
}

// DecodePack reads a YAML rule pack.
func DecodePack(r io.Reader) (Pack, error) {
	var pack Pack
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pack); err != nil {
		if errors.Is(err, io.EOF) {
			return Pack{}, errors.New("empty rule pack")
		}
		return Pack{}, fmt.Errorf("decode rule pack: %w", err)
	}
	pack.Source = strings.ToLower(strings.TrimSpace(pack.Source))
	if pack.Source == "" {
		return Pack{}, errors.New("rule pack: source is required")
	}
	return pack, nil
}

// LoadPackDir reads every *.yaml / *.yml file in dir. Packs are returned in
// file name order. A missing directory yields no packs.
func LoadPackDir(dir string) ([]Pack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	packs := make([]Pack, 0, len(names))
	for _, name := range names {
		pack, err := loadPackFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		packs = append(packs, pack)
	}
	return packs, nil
}

func loadPackFile(path string) (Pack, error) {
	file, err := os.Open(path)
	if err != nil {
		return Pack{}, fmt.Errorf("open rule pack: %w", err)
	}
	defer file.Close()
	pack, err := DecodePack(file)
	if err != nil {
		return Pack{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return pack, nil
}
