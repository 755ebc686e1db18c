// Package character defines the persistent character aggregate, the class
// catalogue, and the stat aggregation that turns a character's data into
// effective combat statistics.
package character

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mserrano/riftbound/internal/game/effect"
	"github.com/mserrano/riftbound/internal/game/stats"
)

// BaseDef is a class's level-1 stat template.
type BaseDef struct {
	Power   int `yaml:"power"`
	Defense int `yaml:"defense"`
	Speed   int `yaml:"speed"`
	MaxHP   int `yaml:"max_hp"`
}

// Block converts the template into a stat block.
func (b BaseDef) Block() stats.Block {
	return stats.Block{Power: b.Power, Defense: b.Defense, Speed: b.Speed, MaxHP: b.MaxHP}
}

// OnHitDef describes a status effect a move applies when it lands.
type OnHitDef struct {
	// Effect is the catalogue effect name (bleed, stun, energy_drain,
	// shield, regen, strength_buff).
	Effect string `yaml:"effect"`
	// Target is "opponent" (default) or "self" for shields and buffs.
	Target    string  `yaml:"target"`
	Duration  int     `yaml:"duration"`
	Magnitude int     `yaml:"magnitude"`
	// Chance is the application probability; 0 means always.
	Chance float64 `yaml:"chance"`
}

// Kind resolves the effect name to its tagged variant.
func (o OnHitDef) Kind() (effect.Kind, error) {
	return effect.ParseKind(o.Effect)
}

// MoveDef defines one class move. The basic attack is a move like any
// other with multiplier 1, cost 0, and default accuracy.
type MoveDef struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Multiplier  float64   `yaml:"multiplier"`
	EnergyCost  int       `yaml:"energy_cost"`
	// Accuracy is the hit probability; 0 means the engine default (0.95).
	Accuracy float64   `yaml:"accuracy"`
	OnHit    *OnHitDef `yaml:"on_hit"`
}

// Validate checks the move's invariants.
//
// Postcondition: Returns nil iff the move is usable by the resolver.
func (m *MoveDef) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("move id must not be empty")
	}
	if m.Multiplier < 0 {
		return fmt.Errorf("move %q: multiplier must be >= 0, got %f", m.ID, m.Multiplier)
	}
	if m.EnergyCost < 0 {
		return fmt.Errorf("move %q: energy_cost must be >= 0, got %d", m.ID, m.EnergyCost)
	}
	if m.Accuracy < 0 || m.Accuracy > 1 {
		return fmt.Errorf("move %q: accuracy must be in [0, 1], got %f", m.ID, m.Accuracy)
	}
	if m.OnHit != nil {
		if _, err := m.OnHit.Kind(); err != nil {
			return fmt.Errorf("move %q: %w", m.ID, err)
		}
		if m.OnHit.Duration < 1 {
			return fmt.Errorf("move %q: on_hit duration must be >= 1", m.ID)
		}
		if m.OnHit.Chance < 0 || m.OnHit.Chance > 1 {
			return fmt.Errorf("move %q: on_hit chance must be in [0, 1]", m.ID)
		}
		switch m.OnHit.Target {
		case "", "opponent", "self":
		default:
			return fmt.Errorf("move %q: on_hit target must be opponent or self, got %q", m.ID, m.OnHit.Target)
		}
	}
	return nil
}

// Class defines a playable character class: the level-1 stat template and
// the active move list.
type Class struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Base        BaseDef    `yaml:"base"`
	Moves       []*MoveDef `yaml:"moves"`
}

// Validate checks the class invariants.
//
// Postcondition: Returns nil iff the class has an ID, positive base stats,
// and at least one valid move.
func (c *Class) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("class: id must not be empty")
	}
	if c.Base.MaxHP < 1 {
		return fmt.Errorf("class %q: base max_hp must be >= 1", c.ID)
	}
	if len(c.Moves) == 0 {
		return fmt.Errorf("class %q: must define at least one move", c.ID)
	}
	seen := make(map[string]bool, len(c.Moves))
	for _, m := range c.Moves {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("class %q: %w", c.ID, err)
		}
		if seen[m.ID] {
			return fmt.Errorf("class %q: duplicate move id %q", c.ID, m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

// Move returns the MoveDef with the given ID, or (nil, false).
func (c *Class) Move(id string) (*MoveDef, bool) {
	for _, m := range c.Moves {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// Classes holds all playable classes keyed by ID.
type Classes struct {
	byID map[string]*Class
}

// NewClasses creates an empty class catalogue.
func NewClasses() *Classes {
	return &Classes{byID: make(map[string]*Class)}
}

// Register validates class and adds it, overwriting any entry with the
// same ID.
func (cs *Classes) Register(class *Class) error {
	if err := class.Validate(); err != nil {
		return err
	}
	cs.byID[class.ID] = class
	return nil
}

// Get returns the Class for id, or (nil, false) if not found.
func (cs *Classes) Get(id string) (*Class, bool) {
	c, ok := cs.byID[id]
	return c, ok
}

// All returns a snapshot slice of all registered classes.
func (cs *Classes) All() []*Class {
	out := make([]*Class, 0, len(cs.byID))
	for _, c := range cs.byID {
		out = append(out, c)
	}
	return out
}

// LoadClasses reads every *.yaml file in dir, parses each as a Class, and
// returns a populated catalogue.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Classes, or an error if any file fails
// to parse or validate.
func LoadClasses(dir string) (*Classes, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading class dir %q: %w", dir, err)
	}
	cs := NewClasses()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var class Class
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&class); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := cs.Register(&class); err != nil {
			return nil, fmt.Errorf("registering %q: %w", path, err)
		}
	}
	return cs, nil
}
