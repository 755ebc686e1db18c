// Package stats defines the effective-stat block shared by the stat
// aggregator, the combat resolver, and the UI-facing snapshot surface.
package stats

// Block holds the four aggregated combat statistics for a character or
// opponent. All aggregation is additive; multiplicative terms (move
// multipliers, crits) are applied later by the combat resolver so a Block
// remains a stable, inspectable snapshot.
type Block struct {
	Power   int
	Defense int
	Speed   int
	MaxHP   int
}

// Add returns the element-wise sum of b and other.
//
// Postcondition: Each field of the result equals the sum of the
// corresponding fields of b and other.
func (b Block) Add(other Block) Block {
	return Block{
		Power:   b.Power + other.Power,
		Defense: b.Defense + other.Defense,
		Speed:   b.Speed + other.Speed,
		MaxHP:   b.MaxHP + other.MaxHP,
	}
}

// Scale returns b with every field multiplied by n.
//
// Precondition: n >= 0.
func (b Block) Scale(n int) Block {
	return Block{
		Power:   b.Power * n,
		Defense: b.Defense * n,
		Speed:   b.Speed * n,
		MaxHP:   b.MaxHP * n,
	}
}

// Growth constants applied per allocated stat point. Health scales faster
// than the flat stats to offset the steeper experience curve.
const (
	PointPowerGrowth   = 1
	PointDefenseGrowth = 1
	PointSpeedGrowth   = 1
	PointHPGrowth      = 5
)

// Allocation records player-directed stat point spending.
type Allocation struct {
	Power   int `json:"power"`
	Defense int `json:"defense"`
	Speed   int `json:"speed"`
	HP      int `json:"hp"`
}

// Total returns the number of points spent across all stats.
//
// Postcondition: Returns the sum of all four allocation fields.
func (a Allocation) Total() int {
	return a.Power + a.Defense + a.Speed + a.HP
}

// Block converts the allocation into its additive stat contribution.
//
// Postcondition: Power/Defense/Speed contribute 1 point each per
// allocation; MaxHP contributes PointHPGrowth per allocated HP point.
func (a Allocation) Block() Block {
	return Block{
		Power:   a.Power * PointPowerGrowth,
		Defense: a.Defense * PointDefenseGrowth,
		Speed:   a.Speed * PointSpeedGrowth,
		MaxHP:   a.HP * PointHPGrowth,
	}
}
