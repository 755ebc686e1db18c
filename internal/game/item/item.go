// Package item defines the static item catalogue: equipment contributing
// flat stat boosts, and consumables usable during battle.
package item

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mserrano/riftbound/internal/game/stats"
)

// Kind constants for ItemDef.Kind.
const (
	KindEquipment  = "equipment"
	KindConsumable = "consumable"
)

// Slot identifies an equipment slot. A character holds at most one item
// per slot.
type Slot string

const (
	SlotWeapon    Slot = "weapon"
	SlotArmor     Slot = "armor"
	SlotAccessory Slot = "accessory"
	SlotTalisman  Slot = "talisman"
)

// Slots lists every equipment slot in display order.
var Slots = []Slot{SlotWeapon, SlotArmor, SlotAccessory, SlotTalisman}

// validSlots is the set of valid equipment slots.
var validSlots = map[Slot]bool{
	SlotWeapon:    true,
	SlotArmor:     true,
	SlotAccessory: true,
	SlotTalisman:  true,
}

// Rarity tiers, lowest to highest.
const (
	RarityCommon    = "common"
	RarityUncommon  = "uncommon"
	RarityRare      = "rare"
	RarityEpic      = "epic"
	RarityLegendary = "legendary"
)

var validRarities = map[string]bool{
	RarityCommon:    true,
	RarityUncommon:  true,
	RarityRare:      true,
	RarityEpic:      true,
	RarityLegendary: true,
}

// BoostDef is an equipment item's flat stat contribution.
type BoostDef struct {
	Power   int `yaml:"power"`
	Defense int `yaml:"defense"`
	Speed   int `yaml:"speed"`
	MaxHP   int `yaml:"max_hp"`
}

// Block converts the boost into a stat block.
func (b BoostDef) Block() stats.Block {
	return stats.Block{Power: b.Power, Defense: b.Defense, Speed: b.Speed, MaxHP: b.MaxHP}
}

// ConsumableDef describes what a consumable does when used in battle.
// Using a consumable consumes the turn but not energy.
type ConsumableDef struct {
	// HealHP restores up to this much HP, capped at max.
	HealHP int `yaml:"heal_hp"`
	// RestoreEnergy restores up to this much battle energy, capped at max.
	RestoreEnergy int `yaml:"restore_energy"`
	// Cleanse removes all active status effects when true.
	Cleanse bool `yaml:"cleanse"`
}

// ItemDef defines the static properties of an item loaded from YAML.
type ItemDef struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Kind        string         `yaml:"kind"`
	Slot        Slot           `yaml:"slot"`
	Rarity      string         `yaml:"rarity"`
	Boost       BoostDef       `yaml:"boost"`
	Consumable  *ConsumableDef `yaml:"consumable"`
	Value       int            `yaml:"value"`
}

// Validate checks that the ItemDef satisfies its invariants.
//
// Precondition: d is non-nil.
// Postcondition: Returns nil iff all fields are valid.
func (d *ItemDef) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("ID must not be empty"))
	}
	if d.Name == "" {
		errs = append(errs, errors.New("Name must not be empty"))
	}
	switch d.Kind {
	case KindEquipment:
		if !validSlots[d.Slot] {
			errs = append(errs, fmt.Errorf("Slot must be one of weapon, armor, accessory, talisman; got %q", d.Slot))
		}
	case KindConsumable:
		if d.Consumable == nil {
			errs = append(errs, errors.New("Consumable block is required when Kind is consumable"))
		}
	default:
		errs = append(errs, fmt.Errorf("Kind must be equipment or consumable; got %q", d.Kind))
	}
	if d.Rarity != "" && !validRarities[d.Rarity] {
		errs = append(errs, fmt.Errorf("Rarity must be one of common, uncommon, rare, epic, legendary; got %q", d.Rarity))
	}
	if d.Value < 0 {
		errs = append(errs, errors.New("Value must be >= 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("item %q validation failed: %v", d.ID, errs)
	}
	return nil
}

// Registry holds all known ItemDefs keyed by ID.
type Registry struct {
	defs map[string]*ItemDef
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*ItemDef)}
}

// Register validates def and adds it, overwriting any entry with the same ID.
//
// Precondition: def must not be nil.
func (r *Registry) Register(def *ItemDef) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.defs[def.ID] = def
	return nil
}

// Get returns the ItemDef for id, or (nil, false) if not found.
func (r *Registry) Get(id string) (*ItemDef, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// All returns a snapshot slice of all registered defs.
func (r *Registry) All() []*ItemDef {
	out := make([]*ItemDef, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}

// BoostFor sums the stat boosts of every equipped item. Item IDs missing
// from the registry contribute nothing, so content removals never break a
// persisted character.
//
// Postcondition: Returns the element-wise sum of every resolvable item's
// boost.
func (r *Registry) BoostFor(equipped map[Slot]string) stats.Block {
	var total stats.Block
	for _, id := range equipped {
		if def, ok := r.defs[id]; ok && def.Kind == KindEquipment {
			total = total.Add(def.Boost.Block())
		}
	}
	return total
}

// LoadDirectory reads every *.yaml file in dir, parses each as an ItemDef,
// and returns a populated Registry.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Registry, or an error if any file fails
// to parse or validate.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading item dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var def ItemDef
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := reg.Register(&def); err != nil {
			return nil, fmt.Errorf("registering %q: %w", path, err)
		}
	}
	return reg, nil
}
