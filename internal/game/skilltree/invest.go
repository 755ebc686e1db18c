package skilltree

import (
	"errors"
	"fmt"

	"github.com/mserrano/riftbound/internal/game/stats"
)

// Validation errors returned by Invest. Each leaves the investment map
// unchanged; the presentation layer decides what to show the player.
var (
	ErrUnknownTree   = errors.New("skilltree: unknown tree")
	ErrUnknownNode   = errors.New("skilltree: unknown node")
	ErrNoSkillPoints = errors.New("skilltree: no unspent skill points")
	ErrNodeMaxed     = errors.New("skilltree: node already at max level")
	ErrTierLocked    = errors.New("skilltree: prior tier has no investment")
)

// Investment records a character's invested levels: tree ID → node ID →
// level. Absent entries mean level 0 everywhere.
type Investment map[string]map[string]int

// Clone returns a deep copy of the investment map.
func (inv Investment) Clone() Investment {
	out := make(Investment, len(inv))
	for tree, nodes := range inv {
		cp := make(map[string]int, len(nodes))
		for node, lvl := range nodes {
			cp[node] = lvl
		}
		out[tree] = cp
	}
	return out
}

// TotalInvested returns the number of points spent across all trees.
//
// Postcondition: Returns the sum of every node level in inv.
func (inv Investment) TotalInvested() int {
	total := 0
	for _, nodes := range inv {
		for _, lvl := range nodes {
			total += lvl
		}
	}
	return total
}

// SkillLevel returns the invested level of the node with nodeID in any
// tree. Nodes with no investment behave as level 0; SkillLevel never fails.
//
// Postcondition: Returns >= 0.
func (inv Investment) SkillLevel(nodeID string) int {
	for _, nodes := range inv {
		if lvl, ok := nodes[nodeID]; ok {
			return lvl
		}
	}
	return 0
}

// tierUnlocked reports whether tier is open for investment in treeID:
// tier 1 is always open; tier T>1 requires at least one point in some
// node of tier T-1 of the same tree.
func (c *Catalogue) tierUnlocked(inv Investment, tree *TreeDef, tier int) bool {
	if tier <= MinTier {
		return true
	}
	nodes := inv[tree.ID]
	if nodes == nil {
		return false
	}
	for nodeID, lvl := range nodes {
		if lvl < 1 {
			continue
		}
		if def := tree.node(nodeID); def != nil && def.Tier == tier-1 {
			return true
		}
	}
	return false
}

// Invest spends one skill point on the node with nodeID in treeID.
// Investing requires an unspent point (unspentPoints > 0), the node below
// its cap, and the node's tier unlocked by a feeder investment in the
// prior tier. Investment is monotonic: this engine never refunds points.
//
// Precondition: inv must not be nil.
// Postcondition: On success the node level is incremented by 1 and nil is
// returned; on any error inv is unchanged.
func (c *Catalogue) Invest(inv Investment, unspentPoints int, treeID, nodeID string) error {
	tree, ok := c.trees[treeID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTree, treeID)
	}
	def := tree.node(nodeID)
	if def == nil {
		return fmt.Errorf("%w: %q in tree %q", ErrUnknownNode, nodeID, treeID)
	}
	if unspentPoints < 1 {
		return ErrNoSkillPoints
	}
	current := inv[treeID][nodeID]
	if current >= def.MaxLevel {
		return fmt.Errorf("%w: %q is at level %d", ErrNodeMaxed, nodeID, current)
	}
	if !c.tierUnlocked(inv, tree, def.Tier) {
		return fmt.Errorf("%w: tier %d of tree %q", ErrTierLocked, def.Tier, treeID)
	}
	if inv[treeID] == nil {
		inv[treeID] = make(map[string]int)
	}
	inv[treeID][nodeID] = current + 1
	return nil
}

// BonusVector sums every invested node's per-level stat contribution.
// Nodes not present in the catalogue contribute nothing (stale entries in
// a persisted investment are ignored, not an error).
//
// Postcondition: Returns the additive stat block plus the energy-capacity
// bonus, both >= zero for non-negative definitions.
func (c *Catalogue) BonusVector(inv Investment) (stats.Block, int) {
	var block stats.Block
	energy := 0
	for treeID, nodes := range inv {
		tree, ok := c.trees[treeID]
		if !ok {
			continue
		}
		for nodeID, lvl := range nodes {
			def := tree.node(nodeID)
			if def == nil || lvl <= 0 {
				continue
			}
			block = block.Add(stats.Block{
				Power:   def.Bonus.Power,
				Defense: def.Bonus.Defense,
				Speed:   def.Bonus.Speed,
				MaxHP:   def.Bonus.MaxHP,
			}.Scale(lvl))
			energy += def.Bonus.Energy * lvl
		}
	}
	return block, energy
}

// Modifiers holds the named combat-behaviour totals consumed directly by
// the combat resolver.
type Modifiers struct {
	// CritChance is added to the base critical-hit probability.
	CritChance float64
	// DodgeChance is added to the chance an incoming attack misses.
	DodgeChance float64
	// EnergyDiscount is the fractional reduction of ability energy costs,
	// capped at 0.75 so no ability ever becomes free.
	EnergyDiscount float64
	// StatusResist is the chance an incoming status effect is shrugged off.
	StatusResist float64
}

// maxEnergyDiscount caps the stacked ability cost reduction.
const maxEnergyDiscount = 0.75

// Modifiers sums every invested node's per-level combat modifiers.
//
// Postcondition: EnergyDiscount <= maxEnergyDiscount; all fields >= 0 for
// non-negative definitions.
func (c *Catalogue) Modifiers(inv Investment) Modifiers {
	var m Modifiers
	for treeID, nodes := range inv {
		tree, ok := c.trees[treeID]
		if !ok {
			continue
		}
		for nodeID, lvl := range nodes {
			def := tree.node(nodeID)
			if def == nil || lvl <= 0 {
				continue
			}
			f := float64(lvl)
			m.CritChance += def.Modifier.CritChance * f
			m.DodgeChance += def.Modifier.DodgeChance * f
			m.EnergyDiscount += def.Modifier.EnergyDiscount * f
			m.StatusResist += def.Modifier.StatusResist * f
		}
	}
	if m.EnergyDiscount > maxEnergyDiscount {
		m.EnergyDiscount = maxEnergyDiscount
	}
	return m
}

// ValidateInvestment checks a persisted investment map against the
// catalogue: every node must exist, respect its level cap, and satisfy
// tier gating. Used when loading characters from storage.
//
// Postcondition: Returns nil iff inv could have been produced by a
// sequence of valid Invest calls against this catalogue.
func (c *Catalogue) ValidateInvestment(inv Investment) error {
	for treeID, nodes := range inv {
		tree, ok := c.trees[treeID]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTree, treeID)
		}
		for nodeID, lvl := range nodes {
			def := tree.node(nodeID)
			if def == nil {
				return fmt.Errorf("%w: %q in tree %q", ErrUnknownNode, nodeID, treeID)
			}
			if lvl < 0 || lvl > def.MaxLevel {
				return fmt.Errorf("skilltree: node %q level %d outside 0-%d", nodeID, lvl, def.MaxLevel)
			}
			if lvl > 0 && !c.tierUnlocked(inv, tree, def.Tier) {
				return fmt.Errorf("%w: node %q at tier %d", ErrTierLocked, nodeID, def.Tier)
			}
		}
	}
	return nil
}
