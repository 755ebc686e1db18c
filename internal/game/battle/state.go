// Package battle implements the turn-based combat resolver: a
// single-threaded state machine over two combatant snapshots, driven one
// action at a time to a terminal outcome.
package battle

import "errors"

// State is the battle lifecycle state. Victory, Defeat, Fled, and Timeout
// are terminal; a terminal battle accepts no further turns.
type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StateVictory
	StateDefeat
	StateFled
	StateTimeout
)

// String returns a human-readable state label.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateInProgress:
		return "in progress"
	case StateVictory:
		return "victory"
	case StateDefeat:
		return "defeat"
	case StateFled:
		return "fled"
	case StateTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateVictory, StateDefeat, StateFled, StateTimeout:
		return true
	default:
		return false
	}
}

// ActionType identifies what the acting side intends to do on their turn.
// The zero value (ActionUnknown) is intentionally invalid.
type ActionType int

const (
	ActionUnknown ActionType = iota // zero value; intentionally invalid
	ActionAttack                    // basic attack, no energy cost
	ActionAbility                   // named move, consumes energy
	ActionDefend                    // one-turn shield, restores energy
	ActionUseItem                   // consumable, consumes the turn
	ActionFlee                      // speed-based escape attempt
	ActionForfeitTurn               // explicit pass; the timeout fallback
)

// String returns the human-readable action name used in battle logs.
func (a ActionType) String() string {
	switch a {
	case ActionAttack:
		return "attack"
	case ActionAbility:
		return "ability"
	case ActionDefend:
		return "defend"
	case ActionUseItem:
		return "use item"
	case ActionFlee:
		return "flee"
	case ActionForfeitTurn:
		return "forfeit turn"
	default:
		return "unknown"
	}
}

// Action is one submitted turn: the type plus the move or item it names.
type Action struct {
	Type ActionType
	// MoveID selects the move for ActionAbility; ignored otherwise.
	MoveID string
	// ItemID selects the consumable for ActionUseItem; ignored otherwise.
	ItemID string
}

// Outcome classifies how a resolved turn went. Insufficient energy is a
// normal outcome that consumes the turn, not an error.
type Outcome int

const (
	OutcomeHit Outcome = iota
	OutcomeMiss
	OutcomeDefended
	OutcomeInsufficientEnergy
	OutcomeItemUsed
	OutcomeFled
	OutcomeFleeFailed
	OutcomeForfeited
	OutcomeStunned
)

// String returns a human-readable outcome label.
func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeMiss:
		return "miss"
	case OutcomeDefended:
		return "defended"
	case OutcomeInsufficientEnergy:
		return "insufficient energy"
	case OutcomeItemUsed:
		return "item used"
	case OutcomeFled:
		return "fled"
	case OutcomeFleeFailed:
		return "flee failed"
	case OutcomeForfeited:
		return "forfeited"
	case OutcomeStunned:
		return "stunned"
	default:
		return "unknown"
	}
}

// TurnResult records what one TakeTurn call did. Log holds the
// human-readable lines appended this turn, in order; the existence and
// ordering of the log is part of the contract even though its wording is
// a presentation concern.
type TurnResult struct {
	ActorID  int64
	Action   ActionType
	Outcome  Outcome
	Damage   int
	Crit     bool
	Log      []string
	State    State
}

// Result reports a finished battle to the reward layer: the terminal
// state plus the identities and levels of both sides. Reward computation
// is explicitly not the resolver's job.
type Result struct {
	State          State
	Turns          int
	InitiatorID    int64
	InitiatorLevel int
	OpponentID     int64
	OpponentLevel  int
}

// Errors returned by battle operations. All are programming-error
// signals: the battle state is never mutated on an error return.
var (
	ErrNotStarted    = errors.New("battle: not started")
	ErrAlreadyBegun  = errors.New("battle: already started")
	ErrBattleOver    = errors.New("battle: already in a terminal state")
	ErrInvalidAction = errors.New("battle: invalid action")
	ErrUnknownMove   = errors.New("battle: unknown move")
	ErrUnknownItem   = errors.New("battle: unknown or non-consumable item")
)
