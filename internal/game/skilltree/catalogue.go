// Package skilltree implements the skill tree engine: a static catalogue
// of node definitions, tier-gated point investment, and the aggregation of
// invested nodes into stat bonuses and combat modifiers.
package skilltree

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier caps: tiers 1-3 allow up to 5 levels per node, tier 4 up to 3,
// and tier 5 (the capstone) exactly 1.
const (
	MinTier = 1
	MaxTier = 5
)

// tierCap returns the maximum node level permitted at the given tier.
func tierCap(tier int) int {
	switch {
	case tier <= 3:
		return 5
	case tier == 4:
		return 3
	default:
		return 1
	}
}

// BonusDef is a node's per-level flat stat contribution.
type BonusDef struct {
	Power   int `yaml:"power"`
	Defense int `yaml:"defense"`
	Speed   int `yaml:"speed"`
	MaxHP   int `yaml:"max_hp"`
	// Energy raises the derived maximum battle energy. It is kept out of
	// the stat block because max energy is a function of level, not an
	// effective stat.
	Energy int `yaml:"energy"`
}

// ModifierDef is a node's per-level combat-behaviour contribution. These
// are consumed directly by the combat resolver and never folded into
// effective stats.
type ModifierDef struct {
	CritChance     float64 `yaml:"crit_chance"`
	DodgeChance    float64 `yaml:"dodge_chance"`
	EnergyDiscount float64 `yaml:"energy_discount"`
	StatusResist   float64 `yaml:"status_resist"`
}

// NodeDef is the static definition of one skill tree node.
type NodeDef struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Tier        int         `yaml:"tier"`
	MaxLevel    int         `yaml:"max_level"`
	Bonus       BonusDef    `yaml:"bonus"`
	Modifier    ModifierDef `yaml:"modifier"`
}

// TreeDef is the static definition of one skill tree: a named, ordered
// collection of nodes grouped into tiers.
type TreeDef struct {
	ID    string     `yaml:"id"`
	Name  string     `yaml:"name"`
	Nodes []*NodeDef `yaml:"nodes"`
}

// Validate checks the tree definition invariants: non-empty IDs, tiers in
// [MinTier, MaxTier], node levels within the tier cap, and unique node IDs.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff every node satisfies its constraints.
func (t *TreeDef) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("skill tree: id must not be empty")
	}
	if len(t.Nodes) == 0 {
		return fmt.Errorf("skill tree %q: must define at least one node", t.ID)
	}
	seen := make(map[string]bool, len(t.Nodes))
	for i, n := range t.Nodes {
		if n.ID == "" {
			return fmt.Errorf("skill tree %q: node[%d] id must not be empty", t.ID, i)
		}
		if seen[n.ID] {
			return fmt.Errorf("skill tree %q: duplicate node id %q", t.ID, n.ID)
		}
		seen[n.ID] = true
		if n.Tier < MinTier || n.Tier > MaxTier {
			return fmt.Errorf("skill tree %q: node %q tier must be %d-%d, got %d",
				t.ID, n.ID, MinTier, MaxTier, n.Tier)
		}
		cap := tierCap(n.Tier)
		if n.MaxLevel < 1 || n.MaxLevel > cap {
			return fmt.Errorf("skill tree %q: node %q max_level must be 1-%d at tier %d, got %d",
				t.ID, n.ID, cap, n.Tier, n.MaxLevel)
		}
	}
	return nil
}

// node returns the NodeDef with the given ID, or nil.
func (t *TreeDef) node(id string) *NodeDef {
	for _, n := range t.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Catalogue holds all known skill trees keyed by tree ID. The catalogue is
// injected into every engine operation so content changes never require
// logic changes.
type Catalogue struct {
	trees map[string]*TreeDef
}

// NewCatalogue creates an empty Catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{trees: make(map[string]*TreeDef)}
}

// Register validates tree and adds it to the catalogue, overwriting any
// existing entry with the same ID.
//
// Precondition: tree must not be nil.
func (c *Catalogue) Register(tree *TreeDef) error {
	if err := tree.Validate(); err != nil {
		return err
	}
	c.trees[tree.ID] = tree
	return nil
}

// Tree returns the TreeDef for id, or (nil, false) if not found.
func (c *Catalogue) Tree(id string) (*TreeDef, bool) {
	t, ok := c.trees[id]
	return t, ok
}

// Trees returns a snapshot slice of all registered trees.
func (c *Catalogue) Trees() []*TreeDef {
	out := make([]*TreeDef, 0, len(c.trees))
	for _, t := range c.trees {
		out = append(out, t)
	}
	return out
}

// LoadDirectory reads every *.yaml file in dir, parses each as a TreeDef,
// and returns a populated Catalogue.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Catalogue, or an error if any file
// fails to parse or validate.
func LoadDirectory(dir string) (*Catalogue, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading skill tree dir %q: %w", dir, err)
	}
	cat := NewCatalogue()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var tree TreeDef
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&tree); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := cat.Register(&tree); err != nil {
			return nil, fmt.Errorf("registering %q: %w", path, err)
		}
	}
	return cat, nil
}
