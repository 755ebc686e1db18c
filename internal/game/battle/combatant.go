package battle

import (
	"fmt"

	"github.com/mserrano/riftbound/internal/game/character"
	"github.com/mserrano/riftbound/internal/game/effect"
	"github.com/mserrano/riftbound/internal/game/item"
	"github.com/mserrano/riftbound/internal/game/skilltree"
	"github.com/mserrano/riftbound/internal/game/stats"
)

// Combatant is one side of a battle: a point-in-time snapshot of a
// character's effective stats, vitals, and move list. Stat sources are
// resolved once at snapshot time; changes to the underlying character
// during the battle do not leak in.
type Combatant struct {
	CharacterID int64
	Name        string
	Level       int
	Stats       stats.Block
	Modifiers   skilltree.Modifiers
	Moves       []*character.MoveDef

	CurrentHP     int
	CurrentEnergy int
	MaxEnergy     int

	Effects   *effect.ActiveSet
	defending bool
}

// NewCombatant snapshots a character for battle. HP is reset to the
// effective maximum at battle start; energy carries over from the
// character's current reserve.
//
// Precondition: class is the character's class and cat/items are the
// catalogues the character was validated against.
func NewCombatant(c *character.Character, class *character.Class, cat *skilltree.Catalogue, items *item.Registry) (*Combatant, error) {
	if class == nil {
		return nil, fmt.Errorf("snapshot %q: %w", c.Name, character.ErrUnknownClass)
	}
	block := c.EffectiveStats(class, cat, items)
	maxEnergy := c.MaxEnergy(cat)
	energy := c.CurrentEnergy
	if energy > maxEnergy {
		energy = maxEnergy
	}
	if energy < 0 {
		energy = 0
	}
	moves := make([]*character.MoveDef, len(class.Moves))
	copy(moves, class.Moves)
	return &Combatant{
		CharacterID:   c.ID,
		Name:          c.Name,
		Level:         c.Level,
		Stats:         block,
		Modifiers:     cat.Modifiers(c.Trees),
		Moves:         moves,
		CurrentHP:     block.MaxHP,
		CurrentEnergy: energy,
		MaxEnergy:     maxEnergy,
		Effects:       effect.NewActiveSet(),
	}, nil
}

// Move returns the combatant's move with the given ID, or nil.
func (c *Combatant) Move(id string) *character.MoveDef {
	for _, m := range c.Moves {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// basicStrike is the implicit attack every combatant can always use:
// no energy cost, multiplier 1, engine-default accuracy.
var basicStrike = &character.MoveDef{ID: "basic_strike", Name: "Strike", Multiplier: 1.0}

// BasicMove returns the move resolved by ActionAttack: the combatant's
// first zero-cost move, or the implicit strike when the class list has
// none. Never nil; attacking requires no learned move.
func (c *Combatant) BasicMove() *character.MoveDef {
	for _, m := range c.Moves {
		if m.EnergyCost == 0 {
			return m
		}
	}
	return basicStrike
}

// DisplayName implements effect.Owner.
func (c *Combatant) DisplayName() string { return c.Name }

// ApplyDamage implements effect.Owner. HP never drops below zero.
func (c *Combatant) ApplyDamage(amount int) {
	if amount <= 0 {
		return
	}
	c.CurrentHP -= amount
	if c.CurrentHP < 0 {
		c.CurrentHP = 0
	}
}

// RestoreHP implements effect.Owner. HP never exceeds the effective max.
func (c *Combatant) RestoreHP(amount int) {
	if amount <= 0 {
		return
	}
	c.CurrentHP += amount
	if c.CurrentHP > c.Stats.MaxHP {
		c.CurrentHP = c.Stats.MaxHP
	}
}

// DrainEnergy implements effect.Owner. Energy never drops below zero.
func (c *Combatant) DrainEnergy(amount int) {
	if amount <= 0 {
		return
	}
	c.CurrentEnergy -= amount
	if c.CurrentEnergy < 0 {
		c.CurrentEnergy = 0
	}
}

// RestoreEnergy raises energy up to the snapshot maximum.
func (c *Combatant) RestoreEnergy(amount int) {
	if amount <= 0 {
		return
	}
	c.CurrentEnergy += amount
	if c.CurrentEnergy > c.MaxEnergy {
		c.CurrentEnergy = c.MaxEnergy
	}
}

// Defending reports whether the combatant's guard is up until their
// next turn.
func (c *Combatant) Defending() bool { return c.defending }

// Defeated reports whether the combatant's HP has reached zero.
func (c *Combatant) Defeated() bool { return c.CurrentHP <= 0 }

// effectivePower is attack power including any active strength buff.
func (c *Combatant) effectivePower() int {
	return c.Stats.Power + c.Effects.Magnitude(effect.KindStrengthBuff)
}

// CommitVitals writes the combatant's post-battle HP and energy back to
// the persistent character. Status effects are battle-scoped and are
// deliberately not carried over.
//
// Precondition: c snapshots ch, and the battle referencing c is terminal.
func (c *Combatant) CommitVitals(ch *character.Character) {
	ch.CurrentHP = c.CurrentHP
	ch.CurrentEnergy = c.CurrentEnergy
}
