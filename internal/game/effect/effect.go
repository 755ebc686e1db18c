// Package effect implements the status effect tracker: named, timed
// modifiers attached to a combatant for a fixed number of turns. Effects
// are a closed set of tagged variants dispatched in one place rather than
// string comparisons scattered across call sites.
package effect

import "fmt"

// Kind identifies a status effect variant. The zero value is intentionally
// invalid.
type Kind int

const (
	KindUnknown Kind = iota // zero value; intentionally invalid
	// KindBleed deals Magnitude damage at the owner's turn boundary.
	KindBleed
	// KindStun causes the owner to lose their action while active.
	KindStun
	// KindEnergyDrain removes Magnitude energy at the turn boundary.
	KindEnergyDrain
	// KindShield absorbs Magnitude damage from each incoming hit.
	KindShield
	// KindRegen restores Magnitude HP at the turn boundary.
	KindRegen
	// KindStrengthBuff adds Magnitude to effective power while active.
	KindStrengthBuff
)

// String returns the human-readable effect name used in battle logs.
func (k Kind) String() string {
	switch k {
	case KindBleed:
		return "bleeding"
	case KindStun:
		return "stunned"
	case KindEnergyDrain:
		return "energy drain"
	case KindShield:
		return "shielded"
	case KindRegen:
		return "regenerating"
	case KindStrengthBuff:
		return "strengthened"
	default:
		return "unknown"
	}
}

// Name returns the stable catalogue identifier for k, the inverse of
// ParseKind. Scripts and content files use these names; String is the
// display form for battle logs.
func (k Kind) Name() string {
	switch k {
	case KindBleed:
		return "bleed"
	case KindStun:
		return "stun"
	case KindEnergyDrain:
		return "energy_drain"
	case KindShield:
		return "shield"
	case KindRegen:
		return "regen"
	case KindStrengthBuff:
		return "strength_buff"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the defined effect variants.
func (k Kind) Valid() bool {
	return k > KindUnknown && k <= KindStrengthBuff
}

// ParseKind maps a content-catalogue effect name to its Kind. This is the
// single place the string form is interpreted; everything downstream works
// with the tagged variant.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "bleed":
		return KindBleed, nil
	case "stun":
		return KindStun, nil
	case "energy_drain":
		return KindEnergyDrain, nil
	case "shield":
		return KindShield, nil
	case "regen":
		return KindRegen, nil
	case "strength_buff":
		return KindStrengthBuff, nil
	default:
		return KindUnknown, fmt.Errorf("effect: unknown effect name %q", name)
	}
}

// Effect is one active status effect instance.
type Effect struct {
	Kind           Kind `json:"kind"`
	Magnitude      int  `json:"magnitude"`
	TurnsRemaining int  `json:"turns_remaining"`
}

// Owner is the combatant surface the per-turn tick mutates. Implemented by
// battle combatants; kept minimal so the tracker stays independent of the
// resolver.
type Owner interface {
	// DisplayName is the name used in tick log lines.
	DisplayName() string
	// ApplyDamage reduces HP by amount, flooring at zero.
	ApplyDamage(amount int)
	// RestoreHP raises HP by amount, capped at max HP.
	RestoreHP(amount int)
	// DrainEnergy reduces energy by amount, flooring at zero.
	DrainEnergy(amount int)
}

// ActiveSet tracks all effects currently applied to one combatant.
// It is not safe for concurrent use; the owning battle serialises access.
type ActiveSet struct {
	effects map[Kind]*Effect
}

// NewActiveSet creates an empty ActiveSet.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{effects: make(map[Kind]*Effect)}
}

// Apply attaches an effect to this set. Applying a kind that is already
// present overwrites its duration and magnitude; distinct kinds coexist
// with independent magnitudes.
//
// Precondition: kind must be valid; duration >= 1.
// Postcondition: Has(kind) is true with exactly the given duration and
// magnitude.
func (s *ActiveSet) Apply(kind Kind, duration, magnitude int) error {
	if !kind.Valid() {
		return fmt.Errorf("effect: invalid kind %d", kind)
	}
	if duration < 1 {
		return fmt.Errorf("effect: duration must be >= 1, got %d", duration)
	}
	s.effects[kind] = &Effect{Kind: kind, Magnitude: magnitude, TurnsRemaining: duration}
	return nil
}

// Remove deletes the effect with the given kind. No-op if absent.
//
// Postcondition: Has(kind) is false.
func (s *ActiveSet) Remove(kind Kind) {
	delete(s.effects, kind)
}

// Has reports whether an effect of the given kind is active.
func (s *ActiveSet) Has(kind Kind) bool {
	_, ok := s.effects[kind]
	return ok
}

// Magnitude returns the magnitude of the active effect of the given kind,
// or 0 if absent.
func (s *ActiveSet) Magnitude(kind Kind) int {
	if e, ok := s.effects[kind]; ok {
		return e.Magnitude
	}
	return 0
}

// All returns a snapshot slice of the active effects, suitable for
// serialisation. Order is unspecified.
func (s *ActiveSet) All() []Effect {
	out := make([]Effect, 0, len(s.effects))
	for _, e := range s.effects {
		out = append(out, *e)
	}
	return out
}

// Len returns the number of active effects.
func (s *ActiveSet) Len() int { return len(s.effects) }

// Tick advances the set by one turn boundary for owner. The order is
// fixed and must not change: first every per-turn payload is applied
// (bleed damage, energy drain, regen), then every counter is decremented,
// then expired effects are pruned and reported. Callers read remaining HP
// between the payload and the decrement, so reordering would change
// observable state.
//
// Precondition: owner must not be nil.
// Postcondition: Every effect's TurnsRemaining is decremented by 1;
// effects reaching 0 are removed; the returned log lines record payloads
// and expiries in a deterministic order.
func (s *ActiveSet) Tick(owner Owner) []string {
	var log []string

	// Payload pass, in fixed kind order for deterministic logs.
	for kind := KindBleed; kind <= KindStrengthBuff; kind++ {
		e, ok := s.effects[kind]
		if !ok {
			continue
		}
		switch kind {
		case KindBleed:
			owner.ApplyDamage(e.Magnitude)
			log = append(log, fmt.Sprintf("%s bleeds for %d damage.", owner.DisplayName(), e.Magnitude))
		case KindEnergyDrain:
			owner.DrainEnergy(e.Magnitude)
			log = append(log, fmt.Sprintf("%s loses %d energy.", owner.DisplayName(), e.Magnitude))
		case KindRegen:
			owner.RestoreHP(e.Magnitude)
			log = append(log, fmt.Sprintf("%s regenerates %d HP.", owner.DisplayName(), e.Magnitude))
		case KindStun, KindShield, KindStrengthBuff:
			// Passive while active; no per-turn payload.
		}
	}

	// Decrement pass.
	for _, e := range s.effects {
		e.TurnsRemaining--
	}

	// Prune pass, again in fixed order.
	for kind := KindBleed; kind <= KindStrengthBuff; kind++ {
		e, ok := s.effects[kind]
		if !ok {
			continue
		}
		if e.TurnsRemaining <= 0 {
			delete(s.effects, kind)
			log = append(log, fmt.Sprintf("%s is no longer %s.", owner.DisplayName(), kind))
		}
	}

	return log
}
