// Package reward converts finished battles into experience, currency,
// and item drops. The resolver reports who won at what level; everything
// about payout lives here.
package reward

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mserrano/riftbound/internal/game/battle"
	"github.com/mserrano/riftbound/internal/game/character"
	"github.com/mserrano/riftbound/internal/game/progression"
	"github.com/mserrano/riftbound/internal/game/rng"
)

// Payout scaling per opponent level on victory.
const (
	XPPerOpponentLevel       = 25
	CurrencyPerOpponentLevel = 10
)

// CurrencyDrop is the bonus currency range a loot table can add on top
// of the level-scaled payout.
type CurrencyDrop struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Drop is one item entry in a loot table with a drop chance. A drop
// tagged with a rarity is only eligible when the table's weighted
// rarity roll lands on that tier; untagged drops are always eligible.
type Drop struct {
	ItemID string  `yaml:"item"`
	Rarity string  `yaml:"rarity"`
	Chance float64 `yaml:"chance"`
	MinQty int     `yaml:"min_qty"`
	MaxQty int     `yaml:"max_qty"`
}

// Table defines the possible drops for one opponent template. Rarities,
// when present, define one weighted tier roll per payout that gates the
// rarity-tagged drops.
type Table struct {
	ID       string         `yaml:"id"`
	Currency *CurrencyDrop  `yaml:"currency"`
	Rarities []RarityWeight `yaml:"rarities"`
	Drops    []Drop         `yaml:"drops"`
}

// Validate checks that the loot table satisfies its invariants.
//
// Postcondition: Returns nil iff all currency and drop constraints hold;
// a table with no currency and no drops is valid.
func (t *Table) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("loot table: id must not be empty")
	}
	if t.Currency != nil {
		if t.Currency.Min < 0 {
			return fmt.Errorf("loot table %q: currency min must be >= 0, got %d", t.ID, t.Currency.Min)
		}
		if t.Currency.Min > t.Currency.Max {
			return fmt.Errorf("loot table %q: currency min (%d) must be <= max (%d)", t.ID, t.Currency.Min, t.Currency.Max)
		}
	}
	positive := 0
	tiers := make(map[string]bool, len(t.Rarities))
	for i, w := range t.Rarities {
		if w.Rarity == "" {
			return fmt.Errorf("loot table %q: rarities[%d] must name a tier", t.ID, i)
		}
		tiers[w.Rarity] = true
		if w.Weight > 0 {
			positive++
		}
	}
	if len(t.Rarities) > 0 && positive == 0 {
		return fmt.Errorf("loot table %q: rarities need at least one positive weight", t.ID)
	}
	for i, d := range t.Drops {
		if d.ItemID == "" {
			return fmt.Errorf("loot table %q: drop[%d] must have a non-empty item id", t.ID, i)
		}
		if d.Rarity != "" && !tiers[d.Rarity] {
			return fmt.Errorf("loot table %q: drop[%d] rarity %q is not in the table's rarities", t.ID, i, d.Rarity)
		}
		if d.Chance <= 0 || d.Chance > 1.0 {
			return fmt.Errorf("loot table %q: drop[%d] chance must be in (0, 1.0], got %f", t.ID, i, d.Chance)
		}
		if d.MinQty < 1 {
			return fmt.Errorf("loot table %q: drop[%d] min_qty must be >= 1, got %d", t.ID, i, d.MinQty)
		}
		if d.MinQty > d.MaxQty {
			return fmt.Errorf("loot table %q: drop[%d] min_qty (%d) must be <= max_qty (%d)", t.ID, i, d.MinQty, d.MaxQty)
		}
	}
	return nil
}

// RarityWeight is one entry in a weighted rarity roll.
type RarityWeight struct {
	Rarity string `yaml:"rarity"`
	Weight int    `yaml:"weight"`
}

// RollRarity picks a rarity tier by weight. Entries with non-positive
// weight never win.
//
// Precondition: at least one entry has a positive weight; src non-nil.
// Postcondition: Returns the rarity of exactly one entry, or "" if no
// entry has a positive weight.
func RollRarity(src rng.Source, weights []RarityWeight) string {
	total := 0
	for _, w := range weights {
		if w.Weight > 0 {
			total += w.Weight
		}
	}
	if total == 0 {
		return ""
	}
	roll := src.Intn(total)
	for _, w := range weights {
		if w.Weight <= 0 {
			continue
		}
		if roll < w.Weight {
			return w.Rarity
		}
		roll -= w.Weight
	}
	return weights[len(weights)-1].Rarity
}

// GrantedItem is one dropped item instance.
type GrantedItem struct {
	ItemDefID  string
	InstanceID string
	Quantity   int
}

// Grant is the full payout from one battle.
type Grant struct {
	XP       int64
	Currency int
	Items    []GrantedItem
}

// Empty reports whether the grant pays out nothing.
func (g Grant) Empty() bool {
	return g.XP == 0 && g.Currency == 0 && len(g.Items) == 0
}

// ForOutcome computes the initiator's payout for a finished battle.
// Only victory pays: defeat, fleeing, and timeouts grant nothing. The
// loot table is optional; without one the payout is purely level-scaled.
//
// Precondition: res comes from a terminal battle; table, if non-nil, has
// passed Validate; src must be non-nil when table has drops.
func ForOutcome(res battle.Result, table *Table, src rng.Source) Grant {
	if res.State != battle.StateVictory {
		return Grant{}
	}
	g := Grant{
		XP:       int64(XPPerOpponentLevel * res.OpponentLevel),
		Currency: CurrencyPerOpponentLevel * res.OpponentLevel,
	}
	if table == nil {
		return g
	}

	if table.Currency != nil && table.Currency.Max > 0 {
		spread := table.Currency.Max - table.Currency.Min
		bonus := table.Currency.Min
		if spread > 0 {
			bonus += src.Intn(spread + 1)
		}
		g.Currency += bonus
	}

	// One rarity roll gates every rarity-tagged drop in this payout.
	rolled := ""
	if len(table.Rarities) > 0 {
		rolled = RollRarity(src, table.Rarities)
	}

	for _, d := range table.Drops {
		if d.Rarity != "" && d.Rarity != rolled {
			continue
		}
		if !rng.Chance(src, d.Chance) {
			continue
		}
		qty := d.MinQty
		if spread := d.MaxQty - d.MinQty; spread > 0 {
			qty += src.Intn(spread + 1)
		}
		g.Items = append(g.Items, GrantedItem{
			ItemDefID:  d.ItemID,
			InstanceID: uuid.NewString(),
			Quantity:   qty,
		})
	}
	return g
}

// Apply credits a grant to the character, running the level-up ledger.
//
// Postcondition: Returns true if the character gained at least one level.
func Apply(c *character.Character, g Grant) bool {
	c.Currency += g.Currency
	return progression.AddExperience(c, g.XP)
}

// Tables holds loot tables keyed by ID.
type Tables struct {
	byID map[string]*Table
}

// NewTables creates an empty loot table registry.
func NewTables() *Tables {
	return &Tables{byID: make(map[string]*Table)}
}

// Register validates t and adds it, overwriting any entry with the same
// ID.
func (ts *Tables) Register(t *Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	ts.byID[t.ID] = t
	return nil
}

// Get returns the Table for id, or (nil, false) if not found.
func (ts *Tables) Get(id string) (*Table, bool) {
	t, ok := ts.byID[id]
	return t, ok
}

// Len reports the number of registered loot tables.
func (ts *Tables) Len() int {
	return len(ts.byID)
}

// LoadDirectory reads every *.yaml file in dir, parses each as a Table,
// and returns a populated registry.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Tables, or an error if any file fails
// to parse or validate.
func LoadDirectory(dir string) (*Tables, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading loot dir %q: %w", dir, err)
	}
	ts := NewTables()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var table Table
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&table); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := ts.Register(&table); err != nil {
			return nil, fmt.Errorf("registering %q: %w", path, err)
		}
	}
	return ts, nil
}
