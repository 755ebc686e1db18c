package scripting

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// CombatantView is the snapshot of one side a controller script sees.
// Effects carries catalogue effect names (bleed, stun, energy_drain,
// shield, regen, strength_buff), not display strings.
type CombatantView struct {
	Name      string
	HP        int
	MaxHP     int
	Energy    int
	MaxEnergy int
	Defending bool
	Effects   []string
}

// MoveView describes one usable move.
type MoveView struct {
	ID         string
	EnergyCost int
	Multiplier float64
	Accuracy   float64
}

// BattleView is everything a controller gets per decision: its own side,
// what it can observe of the foe, and its move list.
type BattleView struct {
	Turn  int
	Self  CombatantView
	Foe   CombatantView
	Moves []MoveView
}

// Decision is what a controller script returns. Action is one of
// "attack", "ability", "defend", "item", "flee", or "forfeit"; MoveID
// and ItemID qualify "ability" and "item".
type Decision struct {
	Action string
	MoveID string
	ItemID string
}

// defaultDecision is used whenever a script is missing, errors, or
// returns something unusable.
var defaultDecision = Decision{Action: "attack"}

// Manager owns one sandboxed LState per controller script and dispatches
// per-turn decisions to them.
//
// Manager is safe for concurrent Decide after all Load calls complete.
// Each LState is single-threaded; the mutex serialises concurrent calls
// into the same VM.
type Manager struct {
	mu        sync.Mutex
	states    map[string]*lua.LState
	cancels   map[string]func()
	instLimit int
	logger    *zap.Logger
}

// NewManager creates a Manager. instLimit 0 uses DefaultInstructionLimit.
//
// Precondition: logger must be non-nil.
func NewManager(instLimit int, logger *zap.Logger) *Manager {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	return &Manager{
		states:    make(map[string]*lua.LState),
		cancels:   make(map[string]func()),
		instLimit: instLimit,
		logger:    logger,
	}
}

// Load creates a sandboxed VM for id and executes the script at path.
// The script must define a global decide(view) function.
//
// Precondition: id must be non-empty; path must be a readable Lua file.
// Postcondition: The controller is registered, replacing any previous VM
// for the same id; returns an error on Lua load failure.
func (m *Manager) Load(id, path string) error {
	L := NewSandboxedState(m.instLimit)
	if err := L.DoFile(path); err != nil {
		L.Close()
		return fmt.Errorf("scripting: loading %q for controller %q: %w", path, id, err)
	}
	if L.GetGlobal("decide") == lua.LNil {
		L.Close()
		return fmt.Errorf("scripting: controller %q (%s) does not define decide()", id, path)
	}

	m.mu.Lock()
	if old, ok := m.states[id]; ok {
		if cancel := m.cancels[id]; cancel != nil {
			cancel()
		}
		old.Close()
	}
	m.states[id] = L
	m.cancels[id] = nil
	m.mu.Unlock()
	return nil
}

// Has reports whether a controller is loaded for id.
func (m *Manager) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.states[id]
	return ok
}

// Close shuts down every loaded controller VM.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, L := range m.states {
		if cancel := m.cancels[id]; cancel != nil {
			cancel()
		}
		L.Close()
		delete(m.states, id)
		delete(m.cancels, id)
	}
}

// Decide calls the controller's decide(view) with a fresh instruction
// budget and parses the returned table. A missing controller, a Lua
// runtime error, or a malformed return all degrade to a basic attack;
// scripts can slow an opponent down, never wedge a battle.
//
// Postcondition: Returns a Decision with a non-empty Action.
func (m *Manager) Decide(id string, view BattleView) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	L, ok := m.states[id]
	if !ok {
		m.logger.Info("scripting: no controller loaded",
			zap.String("controller", id))
		return defaultDecision
	}

	// Re-arm the opcode budget for this call.
	if cancel := m.cancels[id]; cancel != nil {
		cancel()
	}
	ctx, cancel := newCountingContext(m.instLimit)
	m.cancels[id] = cancel
	L.SetContext(ctx)

	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal("decide"),
		NRet:    1,
		Protect: true,
	}, viewToTable(L, view)); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("controller", id),
			zap.Error(err))
		return defaultDecision
	}

	ret := L.Get(-1)
	L.Pop(1)
	return parseDecision(ret)
}

// viewToTable converts a BattleView into the Lua table passed to
// decide(). Field names are the script-facing contract.
func viewToTable(L *lua.LState, view BattleView) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("turn", lua.LNumber(view.Turn))
	t.RawSetString("self", combatantToTable(L, view.Self))
	t.RawSetString("foe", combatantToTable(L, view.Foe))

	moves := L.NewTable()
	for _, mv := range view.Moves {
		e := L.NewTable()
		e.RawSetString("id", lua.LString(mv.ID))
		e.RawSetString("energy_cost", lua.LNumber(mv.EnergyCost))
		e.RawSetString("multiplier", lua.LNumber(mv.Multiplier))
		e.RawSetString("accuracy", lua.LNumber(mv.Accuracy))
		moves.Append(e)
	}
	t.RawSetString("moves", moves)
	return t
}

func combatantToTable(L *lua.LState, c CombatantView) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("name", lua.LString(c.Name))
	t.RawSetString("hp", lua.LNumber(c.HP))
	t.RawSetString("max_hp", lua.LNumber(c.MaxHP))
	t.RawSetString("energy", lua.LNumber(c.Energy))
	t.RawSetString("max_energy", lua.LNumber(c.MaxEnergy))
	t.RawSetString("defending", lua.LBool(c.Defending))

	effects := L.NewTable()
	for _, name := range c.Effects {
		effects.Append(lua.LString(name))
	}
	t.RawSetString("effects", effects)
	return t
}

// parseDecision interprets a decide() return value. Anything that is not
// a table with a recognised action falls back to a basic attack.
func parseDecision(v lua.LValue) Decision {
	t, ok := v.(*lua.LTable)
	if !ok {
		return defaultDecision
	}
	d := Decision{
		Action: lua.LVAsString(t.RawGetString("action")),
		MoveID: lua.LVAsString(t.RawGetString("move")),
		ItemID: lua.LVAsString(t.RawGetString("item")),
	}
	switch d.Action {
	case "attack", "defend", "flee", "forfeit":
		return Decision{Action: d.Action}
	case "ability":
		if d.MoveID == "" {
			return defaultDecision
		}
		return Decision{Action: d.Action, MoveID: d.MoveID}
	case "item":
		if d.ItemID == "" {
			return defaultDecision
		}
		return Decision{Action: d.Action, ItemID: d.ItemID}
	default:
		return defaultDecision
	}
}
