package sources

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"attentionguard/internal/labels"
)

//go:embed packs/*.yaml
var builtinPacks embed.FS

// Registry resolves sources by id or address and holds the compiled rules
// for each source id.
type Registry struct {
	sources []Source
	byID    map[string]int
	rules   map[string][]labels.Rule
}

// NewRegistry builds a registry over the given sources with no rules.
func NewRegistry(list []Source) *Registry {
	r := &Registry{
		sources: make([]Source, 0, len(list)),
		byID:    make(map[string]int, len(list)),
		rules:   make(map[string][]labels.Rule),
	}
	for _, src := range list {
		id := strings.ToLower(strings.TrimSpace(src.ID))
		if id == "" {
			continue
		}
		src.ID = id
		if idx, ok := r.byID[id]; ok {
			r.sources[idx] = src
			continue
		}
		r.byID[id] = len(r.sources)
		r.sources = append(r.sources, src)
	}
	return r
}

// Default returns the built-in sources with their embedded rule packs.
func Default() (*Registry, error) {
	r := NewRegistry(Builtin())
	packs, err := builtinPackList()
	if err != nil {
		return nil, err
	}
	if err := r.AddPacks(packs...); err != nil {
		return nil, fmt.Errorf("builtin rule packs: %w", err)
	}
	return r, nil
}

// Load returns the default registry extended with the packs found in
// rulesDir. Extra rules run after the built-in ones for the same source.
func Load(rulesDir string) (*Registry, error) {
	r, err := Default()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rulesDir) == "" {
		return r, nil
	}
	packs, err := labels.LoadPackDir(rulesDir)
	if err != nil {
		return nil, err
	}
	if err := r.AddPacks(packs...); err != nil {
		return nil, fmt.Errorf("rules dir %s: %w", rulesDir, err)
	}
	return r, nil
}

// AddPacks compiles and appends the packs' rules. Packs may target source
// ids the registry does not detect; those rules are still available via
// Rules.
func (r *Registry) AddPacks(packs ...labels.Pack) error {
	for _, pack := range packs {
		rules, err := pack.Compile()
		if err != nil {
			return fmt.Errorf("pack %s: %w", pack.Source, err)
		}
		r.rules[pack.Source] = append(r.rules[pack.Source], rules...)
	}
	return nil
}

// Lookup returns the source with the given id.
func (r *Registry) Lookup(id string) (Source, bool) {
	idx, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Source{}, false
	}
	return r.sources[idx], true
}

// Detect returns the first source whose pattern matches address.
func (r *Registry) Detect(address string) (Source, bool) {
	if strings.TrimSpace(address) == "" {
		return Source{}, false
	}
	for _, src := range r.sources {
		if src.Pattern != nil && src.Pattern.MatchString(address) {
			return src, true
		}
	}
	return Source{}, false
}

// Rules returns the rules registered for a source id in match order.
func (r *Registry) Rules(id string) []labels.Rule {
	rules := r.rules[strings.ToLower(strings.TrimSpace(id))]
	out := make([]labels.Rule, len(rules))
	copy(out, rules)
	return out
}

// Sources returns the registered sources in detection order.
func (r *Registry) Sources() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// RuleSources lists every source id that has rules, sorted.
func (r *Registry) RuleSources() []string {
	ids := make([]string, 0, len(r.rules))
	for id := range r.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func builtinPackList() ([]labels.Pack, error) {
	entries, err := fs.ReadDir(builtinPacks, "packs")
	if err != nil {
		return nil, fmt.Errorf("read builtin packs: %w", err)
	}
	packs := make([]labels.Pack, 0, len(entries))
	for _, entry := range entries {
		file, err := builtinPacks.Open(path.Join("packs", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("open builtin pack: %w", err)
		}
		pack, err := labels.DecodePack(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		packs = append(packs, pack)
	}
	return packs, nil
}
