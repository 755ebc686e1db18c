package character

import (
	"errors"
	"fmt"
	"time"

	"github.com/mserrano/riftbound/internal/game/item"
	"github.com/mserrano/riftbound/internal/game/skilltree"
	"github.com/mserrano/riftbound/internal/game/stats"
)

// Per-level growth applied on every level-up, class-independent. Health
// scales faster than the flat stats to offset the steeper experience curve.
var levelGrowth = stats.Block{Power: 2, Defense: 2, Speed: 1, MaxHP: 10}

// Battle energy capacity constants. Maximum energy is always derived from
// level and skill investment, never stored, so it cannot drift out of sync
// with level.
const (
	EnergyBase     = 40
	EnergyPerLevel = 10
)

// Errors returned by character mutations.
var (
	ErrNoStatPoints = errors.New("character: no unspent skill points")
	ErrUnknownStat  = errors.New("character: unknown stat")
	ErrUnknownItem  = errors.New("character: unknown item")
	ErrNotEquipment = errors.New("character: item is not equipment")
	ErrSlotEmpty    = errors.New("character: slot is empty")
	ErrUnknownClass = errors.New("character: unknown class")
)

// Character represents a persistent player avatar. Its identity is an
// opaque numeric ID; all engine rules operate on the remaining fields.
//
// Invariants maintained by the engine after every mutation:
// CurrentHP in [0, max HP]; CurrentEnergy in [0, max energy]; skill levels
// within node caps and tier gating; Experience below the next level's
// requirement; points spent never exceed points granted.
type Character struct {
	ID   int64
	Name string

	ClassID    string
	Level      int
	Experience int64
	// LifetimeXP is the external cumulative total used by reconciliation.
	LifetimeXP int64

	Currency int

	// SkillPoints is the unspent pool shared by stat allocation and skill
	// tree investment.
	SkillPoints int
	Allocated   stats.Allocation
	Trees       skilltree.Investment
	Equipped    map[item.Slot]string

	CurrentHP     int
	CurrentEnergy int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a level-1 character of the given class, at full HP and
// energy. Base stats are fixed at creation by the class template.
//
// Precondition: name must be non-empty; classes must contain classID.
// Postcondition: Returns a Character satisfying every invariant, or a
// non-nil error.
func New(name, classID string, classes *Classes) (*Character, error) {
	if name == "" {
		return nil, errors.New("character name must not be empty")
	}
	class, ok := classes.Get(classID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, classID)
	}
	c := &Character{
		Name:     name,
		ClassID:  class.ID,
		Level:    1,
		Trees:    skilltree.Investment{},
		Equipped: make(map[item.Slot]string),
	}
	c.CurrentHP = class.Base.MaxHP
	c.CurrentEnergy = EnergyBase + EnergyPerLevel
	return c, nil
}

// EffectiveStats aggregates the character's effective stat block: class
// base template, per-level growth, allocated points, skill tree bonuses,
// and equipment boosts, in that fixed order. All terms are additive; the
// result is a pure function of the character's data and must be
// re-invoked after any mutation rather than cached.
//
// Precondition: class, cat, and items must be non-nil; class must match
// c.ClassID.
// Postcondition: Returns the additive total; no state is mutated.
func (c *Character) EffectiveStats(class *Class, cat *skilltree.Catalogue, items *item.Registry) stats.Block {
	block := class.Base.Block()
	block = block.Add(levelGrowth.Scale(c.Level - 1))
	block = block.Add(c.Allocated.Block())
	treeBonus, _ := cat.BonusVector(c.Trees)
	block = block.Add(treeBonus)
	block = block.Add(items.BoostFor(c.Equipped))
	return block
}

// MaxEnergy derives the battle energy capacity from level and skill
// investment.
//
// Postcondition: Returns EnergyBase + EnergyPerLevel*Level plus the tree
// energy bonus; always > 0 for Level >= 1.
func (c *Character) MaxEnergy(cat *skilltree.Catalogue) int {
	_, energy := cat.BonusVector(c.Trees)
	return EnergyBase + EnergyPerLevel*c.Level + energy
}

// AllocateStat spends one unspent skill point on the named stat
// (power, defense, speed, or hp).
//
// Postcondition: On success the allocation is incremented and SkillPoints
// decremented; on error the character is unchanged.
func (c *Character) AllocateStat(stat string) error {
	if c.SkillPoints < 1 {
		return ErrNoStatPoints
	}
	switch stat {
	case "power":
		c.Allocated.Power++
	case "defense":
		c.Allocated.Defense++
	case "speed":
		c.Allocated.Speed++
	case "hp":
		c.Allocated.HP++
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStat, stat)
	}
	c.SkillPoints--
	return nil
}

// InvestSkill spends one unspent skill point on the given tree node,
// enforcing tier gating and node caps through the catalogue.
//
// Postcondition: On success the node level is incremented and SkillPoints
// decremented; on error the character is unchanged.
func (c *Character) InvestSkill(cat *skilltree.Catalogue, treeID, nodeID string) error {
	if c.Trees == nil {
		c.Trees = skilltree.Investment{}
	}
	if err := cat.Invest(c.Trees, c.SkillPoints, treeID, nodeID); err != nil {
		return err
	}
	c.SkillPoints--
	return nil
}

// Equip places the item with itemID into its slot, replacing any existing
// occupant.
//
// Postcondition: On success the slot holds itemID; on error the character
// is unchanged.
func (c *Character) Equip(items *item.Registry, itemID string) error {
	def, ok := items.Get(itemID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, itemID)
	}
	if def.Kind != item.KindEquipment {
		return fmt.Errorf("%w: %q", ErrNotEquipment, itemID)
	}
	if c.Equipped == nil {
		c.Equipped = make(map[item.Slot]string)
	}
	c.Equipped[def.Slot] = def.ID
	return nil
}

// Unequip removes the item in slot. Removing HP-boosting gear can leave
// CurrentHP above the new maximum; callers restore the invariant with
// ClampVitals, which needs the catalogues this method does not take.
//
// Postcondition: On success the slot is empty.
func (c *Character) Unequip(slot item.Slot) error {
	if _, ok := c.Equipped[slot]; !ok {
		return fmt.Errorf("%w: %s", ErrSlotEmpty, slot)
	}
	delete(c.Equipped, slot)
	return nil
}

// ClampVitals restores the HP and energy invariants after a mutation that
// may have lowered the derived maxima (unequip, skill catalogue change).
//
// Postcondition: 0 <= CurrentHP <= max HP and 0 <= CurrentEnergy <= max
// energy.
func (c *Character) ClampVitals(class *Class, cat *skilltree.Catalogue, items *item.Registry) {
	maxHP := c.EffectiveStats(class, cat, items).MaxHP
	if c.CurrentHP > maxHP {
		c.CurrentHP = maxHP
	}
	if c.CurrentHP < 0 {
		c.CurrentHP = 0
	}
	maxEnergy := c.MaxEnergy(cat)
	if c.CurrentEnergy > maxEnergy {
		c.CurrentEnergy = maxEnergy
	}
	if c.CurrentEnergy < 0 {
		c.CurrentEnergy = 0
	}
}

// Rest restores the character to full HP and energy.
//
// Postcondition: CurrentHP == max HP; CurrentEnergy == max energy.
func (c *Character) Rest(class *Class, cat *skilltree.Catalogue, items *item.Registry) {
	c.CurrentHP = c.EffectiveStats(class, cat, items).MaxHP
	c.CurrentEnergy = c.MaxEnergy(cat)
}
