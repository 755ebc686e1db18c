// Package progression implements the experience ledger: the single
// canonical experience curve, level-up processing, and reconciliation of
// the level/experience pair against a lifetime experience total.
package progression

import (
	"math"

	"github.com/mserrano/riftbound/internal/game/character"
)

// The one experience formula family for the whole system:
// xp_required(level) = XPBase * level^XPExponent. Tuning happens here and
// nowhere else; call sites never restate the formula.
const (
	XPBase     = 100
	XPExponent = 1.5
)

// MaxLevel halts further leveling. Experience received at max level is
// discarded, not accumulated.
const MaxLevel = 100

// SkillPointsPerLevel is the fixed award granted on each level-up.
const SkillPointsPerLevel = 3

// XPRequired returns the experience needed to advance from level to
// level+1.
//
// Precondition: level >= 1.
// Postcondition: Returns a positive value, strictly increasing in level.
func XPRequired(level int) int64 {
	return int64(XPBase * math.Pow(float64(level), XPExponent))
}

// TotalXPForLevel returns the cumulative experience required to reach
// level from level 1.
//
// Precondition: level >= 1.
// Postcondition: TotalXPForLevel(1) == 0; strictly increasing in level.
func TotalXPForLevel(level int) int64 {
	var total int64
	for l := 1; l < level; l++ {
		total += XPRequired(l)
	}
	return total
}

// AddExperience credits amount to the character, applying as many
// level-ups as the accumulator supports in one atomic pass. Each level-up
// consumes XPRequired(level), increments the level, and grants
// SkillPointsPerLevel. Amounts <= 0 never change anything; experience
// received at MaxLevel is discarded.
//
// Precondition: c must not be nil; c.Level >= 1.
// Postcondition: Returns true iff at least one level-up occurred. After
// return, c.Experience < XPRequired(c.Level) (or c.Level == MaxLevel with
// c.Experience == 0).
func AddExperience(c *character.Character, amount int64) bool {
	if amount <= 0 {
		return false
	}
	if c.Level >= MaxLevel {
		return false
	}

	c.LifetimeXP += amount
	c.Experience += amount

	leveled := false
	for c.Level < MaxLevel && c.Experience >= XPRequired(c.Level) {
		c.Experience -= XPRequired(c.Level)
		c.Level++
		c.SkillPoints += SkillPointsPerLevel
		leveled = true
	}
	if c.Level >= MaxLevel {
		// Overflow past the cap is discarded.
		c.Experience = 0
	}
	return leveled
}

// levelForTotal converts a lifetime experience total into the canonical
// (level, experience) pair.
func levelForTotal(total int64) (int, int64) {
	level := 1
	for level < MaxLevel && total >= XPRequired(level) {
		total -= XPRequired(level)
		level++
	}
	if level >= MaxLevel {
		return MaxLevel, 0
	}
	return level, total
}

// Reconcile recomputes the canonical level/experience pair from the
// character's lifetime experience total and corrects any drift. Upward
// corrections grant the skill points the missing levels would have
// awarded; downward corrections never revoke points already granted, since
// they may have been spent.
//
// Precondition: c must not be nil; c.LifetimeXP >= 0.
// Postcondition: The level/experience pair matches c.LifetimeXP exactly;
// applying Reconcile twice in a row produces no further change. Returns
// true iff anything changed.
func Reconcile(c *character.Character) bool {
	level, exp := levelForTotal(c.LifetimeXP)
	if level == c.Level && exp == c.Experience {
		return false
	}
	if level > c.Level {
		c.SkillPoints += (level - c.Level) * SkillPointsPerLevel
	}
	c.Level = level
	c.Experience = exp
	return true
}
