package character

import (
	"fmt"
	"time"

	"github.com/mserrano/riftbound/internal/game/item"
	"github.com/mserrano/riftbound/internal/game/skilltree"
	"github.com/mserrano/riftbound/internal/game/stats"
)

// Snapshot is the complete, order-independent serialisable form of a
// Character. The persistence layer reads and writes Snapshots so storage
// backends can be swapped without engine changes.
type Snapshot struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ClassID    string `json:"class_id"`
	Level      int    `json:"level"`
	Experience int64  `json:"experience"`
	LifetimeXP int64  `json:"lifetime_xp"`
	Currency   int    `json:"currency"`

	SkillPoints int                       `json:"skill_points"`
	Allocated   stats.Allocation          `json:"allocated"`
	Trees       map[string]map[string]int `json:"trees"`
	Equipped    map[string]string         `json:"equipped"`

	CurrentHP     int `json:"current_hp"`
	CurrentEnergy int `json:"current_energy"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns the serialisable form of c. The returned value shares
// no mutable state with c.
//
// Postcondition: FromSnapshot(c.Snapshot()) reproduces c field for field.
func (c *Character) Snapshot() Snapshot {
	trees := make(map[string]map[string]int, len(c.Trees))
	for tree, nodes := range c.Trees {
		cp := make(map[string]int, len(nodes))
		for node, lvl := range nodes {
			cp[node] = lvl
		}
		trees[tree] = cp
	}
	equipped := make(map[string]string, len(c.Equipped))
	for slot, id := range c.Equipped {
		equipped[string(slot)] = id
	}
	return Snapshot{
		ID:            c.ID,
		Name:          c.Name,
		ClassID:       c.ClassID,
		Level:         c.Level,
		Experience:    c.Experience,
		LifetimeXP:    c.LifetimeXP,
		Currency:      c.Currency,
		SkillPoints:   c.SkillPoints,
		Allocated:     c.Allocated,
		Trees:         trees,
		Equipped:      equipped,
		CurrentHP:     c.CurrentHP,
		CurrentEnergy: c.CurrentEnergy,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// FromSnapshot reconstructs a Character from its serialised form. The
// result is not yet validated; callers loading untrusted data follow up
// with Normalize.
//
// Postcondition: Returns a Character with non-nil Trees and Equipped maps.
func FromSnapshot(s Snapshot) *Character {
	trees := skilltree.Investment{}
	for tree, nodes := range s.Trees {
		cp := make(map[string]int, len(nodes))
		for node, lvl := range nodes {
			cp[node] = lvl
		}
		trees[tree] = cp
	}
	equipped := make(map[item.Slot]string, len(s.Equipped))
	for slot, id := range s.Equipped {
		equipped[item.Slot(slot)] = id
	}
	return &Character{
		ID:            s.ID,
		Name:          s.Name,
		ClassID:       s.ClassID,
		Level:         s.Level,
		Experience:    s.Experience,
		LifetimeXP:    s.LifetimeXP,
		Currency:      s.Currency,
		SkillPoints:   s.SkillPoints,
		Allocated:     s.Allocated,
		Trees:         trees,
		Equipped:      equipped,
		CurrentHP:     s.CurrentHP,
		CurrentEnergy: s.CurrentEnergy,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// Normalize corrects invariant violations in a loaded character by
// clamping, returning one message per correction for the caller to log.
// External data edits must never propagate into combat.
//
// Precondition: class, cat, and items must be non-nil.
// Postcondition: Level >= 1; Experience, Currency, SkillPoints >= 0;
// 0 <= CurrentHP <= max HP; 0 <= CurrentEnergy <= max energy.
func (c *Character) Normalize(class *Class, cat *skilltree.Catalogue, items *item.Registry) []string {
	var corrections []string

	if c.Level < 1 {
		corrections = append(corrections, fmt.Sprintf("level %d raised to 1", c.Level))
		c.Level = 1
	}
	if c.Experience < 0 {
		corrections = append(corrections, fmt.Sprintf("experience %d raised to 0", c.Experience))
		c.Experience = 0
	}
	if c.LifetimeXP < 0 {
		corrections = append(corrections, fmt.Sprintf("lifetime XP %d raised to 0", c.LifetimeXP))
		c.LifetimeXP = 0
	}
	if c.Currency < 0 {
		corrections = append(corrections, fmt.Sprintf("currency %d raised to 0", c.Currency))
		c.Currency = 0
	}
	if c.SkillPoints < 0 {
		corrections = append(corrections, fmt.Sprintf("skill points %d raised to 0", c.SkillPoints))
		c.SkillPoints = 0
	}
	if c.Trees == nil {
		c.Trees = skilltree.Investment{}
	}
	if c.Equipped == nil {
		c.Equipped = make(map[item.Slot]string)
	}

	maxHP := c.EffectiveStats(class, cat, items).MaxHP
	if c.CurrentHP > maxHP {
		corrections = append(corrections, fmt.Sprintf("current HP %d clamped to max %d", c.CurrentHP, maxHP))
		c.CurrentHP = maxHP
	}
	if c.CurrentHP < 0 {
		corrections = append(corrections, fmt.Sprintf("current HP %d raised to 0", c.CurrentHP))
		c.CurrentHP = 0
	}
	maxEnergy := c.MaxEnergy(cat)
	if c.CurrentEnergy > maxEnergy {
		corrections = append(corrections, fmt.Sprintf("current energy %d clamped to max %d", c.CurrentEnergy, maxEnergy))
		c.CurrentEnergy = maxEnergy
	}
	if c.CurrentEnergy < 0 {
		corrections = append(corrections, fmt.Sprintf("current energy %d raised to 0", c.CurrentEnergy))
		c.CurrentEnergy = 0
	}

	return corrections
}
