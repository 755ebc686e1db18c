package battle

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/mserrano/riftbound/internal/game/character"
	"github.com/mserrano/riftbound/internal/game/effect"
	"github.com/mserrano/riftbound/internal/game/item"
	"github.com/mserrano/riftbound/internal/game/rng"
)

// Tuning constants for the damage and escape models.
const (
	// DefaultAccuracy is the hit probability for moves that do not
	// declare their own.
	DefaultAccuracy = 0.95
	// BaseCritChance is the critical-hit probability before skill tree
	// modifiers.
	BaseCritChance = 0.10
	// CritMultiplier scales damage on a critical hit.
	CritMultiplier = 1.5
	// JitterFraction is the uniform damage variance, +/- 10%.
	JitterFraction = 0.10
	// DefenseFactor converts defense into flat damage reduction.
	DefenseFactor = 0.5
	// DefendDamageFactor scales incoming damage while defending.
	DefendDamageFactor = 0.5
	// DefendEnergyRegen is the energy restored by a defend action.
	DefendEnergyRegen = 10
	// FleeBaseChance is the escape probability at equal speed.
	FleeBaseChance = 0.3
	// FleePerSpeed is the escape probability added per point of speed
	// advantage. Speed deficits never push the chance below the base.
	FleePerSpeed = 0.05
)

// Battle is one active turn-based encounter between two combatants. The
// initiator is the character whose perspective the terminal state takes:
// StateVictory means the initiator won. All methods serialise on an
// internal mutex; turns interleave but never race.
type Battle struct {
	mu sync.Mutex

	id        string
	initiator *Combatant
	opponent  *Combatant
	items     *item.Registry
	src       rng.Source

	state  State
	active *Combatant
	turns  int
	log    []string
}

// New creates a battle between initiator and opponent. Turn order is
// decided by effective speed; the initiator acts first on ties. The
// battle starts in StateNotStarted and accepts turns only after Start.
//
// Precondition: both combatants are non-nil with positive HP; src is the
// randomness source every roll in the battle draws from.
func New(initiator, opponent *Combatant, items *item.Registry, src rng.Source) *Battle {
	b := &Battle{
		id:        uuid.NewString(),
		initiator: initiator,
		opponent:  opponent,
		items:     items,
		src:       src,
		state:     StateNotStarted,
	}
	if opponent.Stats.Speed > initiator.Stats.Speed {
		b.active = opponent
	} else {
		b.active = initiator
	}
	return b
}

// ID returns the battle's unique identifier.
func (b *Battle) ID() string { return b.id }

// State returns the current lifecycle state.
func (b *Battle) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Active returns the combatant whose turn it is.
func (b *Battle) Active() *Combatant {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Initiator returns the side whose perspective terminal states take.
func (b *Battle) Initiator() *Combatant { return b.initiator }

// Opponent returns the non-initiating side.
func (b *Battle) Opponent() *Combatant { return b.opponent }

// Turns returns the number of turns resolved so far.
func (b *Battle) Turns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.turns
}

// Log returns a copy of the full battle log so far.
func (b *Battle) Log() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.log))
	copy(out, b.log)
	return out
}

// Start transitions the battle from NotStarted to InProgress.
//
// Postcondition: the battle accepts TakeTurn calls.
func (b *Battle) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateNotStarted {
		return ErrAlreadyBegun
	}
	b.state = StateInProgress
	b.log = append(b.log, fmt.Sprintf("%s (level %d) faces %s (level %d).",
		b.initiator.Name, b.initiator.Level, b.opponent.Name, b.opponent.Level))
	b.log = append(b.log, fmt.Sprintf("%s moves first.", b.active.Name))
	return nil
}

// Abandon forces the battle into StateTimeout. Used when a session
// expires or a turn timer fires with no fallback action configured.
func (b *Battle) Abandon() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.Terminal() {
		return ErrBattleOver
	}
	b.state = StateTimeout
	b.log = append(b.log, "The battle is abandoned.")
	return nil
}

// Result reports the finished battle for reward computation.
//
// Precondition: the battle is in a terminal state.
func (b *Battle) Result() (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.Terminal() {
		return Result{}, fmt.Errorf("result for battle %s in state %s: battle not finished", b.id, b.state)
	}
	return Result{
		State:          b.state,
		Turns:          b.turns,
		InitiatorID:    b.initiator.CharacterID,
		InitiatorLevel: b.initiator.Level,
		OpponentID:     b.opponent.CharacterID,
		OpponentLevel:  b.opponent.Level,
	}, nil
}

// TakeTurn resolves one action for the combatant whose turn it is. A
// rejected action (unknown move, unknown item, invalid type) returns an
// error and leaves the battle untouched; the turn is not consumed.
// Attempting a turn on a terminal battle returns ErrBattleOver.
//
// Postcondition: on a nil error the turn is consumed, the actor's status
// effects have ticked, and control has passed to the other side unless
// the battle ended.
func (b *Battle) TakeTurn(action Action) (TurnResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateNotStarted:
		return TurnResult{}, ErrNotStarted
	case StateInProgress:
	default:
		return TurnResult{}, ErrBattleOver
	}

	actor := b.active
	target := b.other(actor)

	// Validate before mutating anything.
	var move *character.MoveDef
	var consumable *item.ItemDef
	switch action.Type {
	case ActionAttack:
		move = actor.BasicMove()
	case ActionAbility:
		move = actor.Move(action.MoveID)
		if move == nil {
			return TurnResult{}, fmt.Errorf("move %q: %w", action.MoveID, ErrUnknownMove)
		}
	case ActionUseItem:
		def, ok := b.items.Get(action.ItemID)
		if !ok || def.Kind != item.KindConsumable || def.Consumable == nil {
			return TurnResult{}, fmt.Errorf("item %q: %w", action.ItemID, ErrUnknownItem)
		}
		consumable = def
	case ActionDefend, ActionFlee, ActionForfeitTurn:
	default:
		return TurnResult{}, fmt.Errorf("action type %d: %w", action.Type, ErrInvalidAction)
	}

	result := TurnResult{ActorID: actor.CharacterID, Action: action.Type}

	// A combatant's guard lasts until their next turn begins.
	actor.defending = false

	switch {
	case actor.Effects.Has(effect.KindStun):
		result.Outcome = OutcomeStunned
		result.Log = append(result.Log, fmt.Sprintf("%s is stunned and loses the turn.", actor.Name))

	case action.Type == ActionAttack || action.Type == ActionAbility:
		b.resolveMove(actor, target, move, action.Type, &result)

	case action.Type == ActionDefend:
		actor.defending = true
		actor.RestoreEnergy(DefendEnergyRegen)
		result.Outcome = OutcomeDefended
		result.Log = append(result.Log, fmt.Sprintf("%s braces and recovers %d energy.", actor.Name, DefendEnergyRegen))

	case action.Type == ActionUseItem:
		b.resolveConsumable(actor, consumable, &result)

	case action.Type == ActionFlee:
		b.resolveFlee(actor, target, &result)

	case action.Type == ActionForfeitTurn:
		result.Outcome = OutcomeForfeited
		result.Log = append(result.Log, fmt.Sprintf("%s forfeits the turn.", actor.Name))
	}

	b.turns++

	// A lethal blow ends the battle immediately; pending ticks on the
	// defeated side never apply.
	if b.state == StateInProgress && target.Defeated() {
		b.finish(actor, &result)
	}
	if b.state == StateInProgress {
		// The actor's own effects tick as their turn ends.
		result.Log = append(result.Log, actor.Effects.Tick(actor)...)
		if actor.Defeated() {
			b.finish(target, &result)
		}
	}
	if b.state == StateInProgress {
		b.active = target
	}

	b.log = append(b.log, result.Log...)
	result.State = b.state
	return result, nil
}

// other returns the combatant opposing c.
func (b *Battle) other(c *Combatant) *Combatant {
	if c == b.initiator {
		return b.opponent
	}
	return b.initiator
}

// finish records the terminal state with winner as the surviving side.
func (b *Battle) finish(winner *Combatant, result *TurnResult) {
	if winner == b.initiator {
		b.state = StateVictory
	} else {
		b.state = StateDefeat
	}
	loser := b.other(winner)
	result.Log = append(result.Log, fmt.Sprintf("%s is defeated. %s wins.", loser.Name, winner.Name))
}

// resolveMove applies one attack or ability from actor against target.
// Roll order is fixed: accuracy first, then jitter, then crit. A miss
// short-circuits the later rolls so scripted sources stay predictable.
func (b *Battle) resolveMove(actor, target *Combatant, move *character.MoveDef, kind ActionType, result *TurnResult) {
	if kind == ActionAbility {
		cost := discountedCost(move.EnergyCost, actor.Modifiers.EnergyDiscount)
		if cost > actor.CurrentEnergy {
			result.Outcome = OutcomeInsufficientEnergy
			result.Log = append(result.Log, fmt.Sprintf("%s lacks the energy for %s (%d needed, %d left).",
				actor.Name, move.Name, cost, actor.CurrentEnergy))
			return
		}
		actor.CurrentEnergy -= cost
	}

	accuracy := move.Accuracy
	if accuracy == 0 {
		accuracy = DefaultAccuracy
	}
	hitChance := rng.Clamp01(accuracy - target.Modifiers.DodgeChance)
	if !rng.Chance(b.src, hitChance) {
		result.Outcome = OutcomeMiss
		result.Log = append(result.Log, fmt.Sprintf("%s uses %s but misses.", actor.Name, move.Name))
		return
	}

	raw := float64(actor.effectivePower())*move.Multiplier - float64(target.Stats.Defense)*DefenseFactor
	if raw < 1 {
		raw = 1
	}
	raw = rng.Jitter(b.src, raw, JitterFraction)

	crit := rng.Chance(b.src, rng.Clamp01(BaseCritChance+actor.Modifiers.CritChance))
	if crit {
		raw *= CritMultiplier
	}
	if target.defending {
		raw *= DefendDamageFactor
	}

	damage := int(math.Floor(raw))
	damage -= target.Effects.Magnitude(effect.KindShield)
	if damage < 1 {
		damage = 1
	}

	target.ApplyDamage(damage)
	result.Outcome = OutcomeHit
	result.Damage = damage
	result.Crit = crit
	line := fmt.Sprintf("%s uses %s for %d damage.", actor.Name, move.Name, damage)
	if crit {
		line = fmt.Sprintf("%s uses %s for %d damage. Critical hit!", actor.Name, move.Name, damage)
	}
	result.Log = append(result.Log, line)

	if move.OnHit != nil && !target.Defeated() {
		b.resolveOnHit(actor, target, move, result)
	}
}

// resolveOnHit applies a move's rider effect after a landed hit.
func (b *Battle) resolveOnHit(actor, target *Combatant, move *character.MoveDef, result *TurnResult) {
	onHit := move.OnHit
	kind, err := onHit.Kind()
	if err != nil {
		// Caught by catalogue validation; an unparsable rider is skipped.
		return
	}
	if onHit.Chance > 0 && !rng.Chance(b.src, onHit.Chance) {
		return
	}

	recipient := target
	if onHit.Target == "self" {
		recipient = actor
	}
	if recipient == target && rng.Chance(b.src, target.Modifiers.StatusResist) {
		result.Log = append(result.Log, fmt.Sprintf("%s resists the %s effect.", target.Name, kind))
		return
	}
	if err := recipient.Effects.Apply(kind, onHit.Duration, onHit.Magnitude); err != nil {
		return
	}
	result.Log = append(result.Log, fmt.Sprintf("%s is %s for %d turns.", recipient.Name, kind, onHit.Duration))
}

// resolveConsumable applies a validated consumable to the actor.
func (b *Battle) resolveConsumable(actor *Combatant, def *item.ItemDef, result *TurnResult) {
	c := def.Consumable
	result.Outcome = OutcomeItemUsed
	result.Log = append(result.Log, fmt.Sprintf("%s uses %s.", actor.Name, def.Name))
	if c.HealHP > 0 {
		before := actor.CurrentHP
		actor.RestoreHP(c.HealHP)
		result.Log = append(result.Log, fmt.Sprintf("%s recovers %d HP.", actor.Name, actor.CurrentHP-before))
	}
	if c.RestoreEnergy > 0 {
		before := actor.CurrentEnergy
		actor.RestoreEnergy(c.RestoreEnergy)
		result.Log = append(result.Log, fmt.Sprintf("%s recovers %d energy.", actor.Name, actor.CurrentEnergy-before))
	}
	if c.Cleanse && actor.Effects.Len() > 0 {
		for _, e := range actor.Effects.All() {
			actor.Effects.Remove(e.Kind)
		}
		result.Log = append(result.Log, fmt.Sprintf("%s is cleansed of all status effects.", actor.Name))
	}
}

// resolveFlee attempts to end the battle by escape. Success is terminal
// regardless of which side flees; failure consumes the turn.
func (b *Battle) resolveFlee(actor, target *Combatant, result *TurnResult) {
	chance := FleeChance(actor.Stats.Speed, target.Stats.Speed)
	if rng.Chance(b.src, chance) {
		b.state = StateFled
		result.Outcome = OutcomeFled
		result.Log = append(result.Log, fmt.Sprintf("%s flees the battle.", actor.Name))
		return
	}
	result.Outcome = OutcomeFleeFailed
	result.Log = append(result.Log, fmt.Sprintf("%s tries to flee but fails.", actor.Name))
}

// FleeChance is the escape probability for a combatant with the given
// speed against an opponent's speed. Speed deficits never drop the
// chance below the base.
func FleeChance(selfSpeed, opponentSpeed int) float64 {
	advantage := selfSpeed - opponentSpeed
	if advantage < 0 {
		advantage = 0
	}
	return rng.Clamp01(FleeBaseChance + float64(advantage)*FleePerSpeed)
}

// discountedCost applies the skill tree energy discount, rounding up so
// a discount never makes a positive cost free.
func discountedCost(cost int, discount float64) int {
	if cost <= 0 || discount <= 0 {
		return cost
	}
	return int(math.Ceil(float64(cost) * (1 - discount)))
}
