// Package session tracks the battles currently in flight. It enforces
// the one-battle-per-character rule and owns the per-turn deadline
// timers; the resolver itself stays free of scheduling concerns.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mserrano/riftbound/internal/game/battle"
	"github.com/mserrano/riftbound/internal/scripting"
)

var (
	// ErrCharacterInBattle is returned when a character tries to start a
	// second concurrent battle.
	ErrCharacterInBattle = errors.New("session: character is already in a battle")
	// ErrBattleNotFound is returned for unknown battle IDs.
	ErrBattleNotFound = errors.New("session: battle not found")
	// ErrUnknownController is returned by BeginScripted when no Lua
	// controller is loaded under the requested ID.
	ErrUnknownController = errors.New("session: unknown opponent controller")
)

// Manager tracks all active battles and the characters locked into them.
// All methods are safe for concurrent use.
type Manager struct {
	mu          sync.RWMutex
	battles     map[string]*battle.Battle
	byChar      map[int64]string
	timers      map[string]*battle.TurnTimer
	controllers map[int64]string

	scripts     *scripting.Manager
	turnTimeout time.Duration
	logger      *zap.Logger
}

// NewManager creates an empty Manager. A zero turnTimeout disables the
// per-turn deadline; a nil scripts manager disables scripted opponents.
func NewManager(turnTimeout time.Duration, scripts *scripting.Manager, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		battles:     make(map[string]*battle.Battle),
		byChar:      make(map[int64]string),
		timers:      make(map[string]*battle.TurnTimer),
		controllers: make(map[int64]string),
		scripts:     scripts,
		turnTimeout: turnTimeout,
		logger:      logger,
	}
}

// Begin registers and starts a battle, locking both characters into it.
//
// Precondition: bt has not been started.
// Postcondition: The battle is InProgress and both character IDs are
// locked, or ErrCharacterInBattle is returned and nothing changed.
func (m *Manager) Begin(bt *battle.Battle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	initID := bt.Initiator().CharacterID
	oppID := bt.Opponent().CharacterID
	if _, busy := m.byChar[initID]; busy {
		return fmt.Errorf("character %d: %w", initID, ErrCharacterInBattle)
	}
	if _, busy := m.byChar[oppID]; busy {
		return fmt.Errorf("character %d: %w", oppID, ErrCharacterInBattle)
	}
	if err := bt.Start(); err != nil {
		return err
	}

	m.battles[bt.ID()] = bt
	m.byChar[initID] = bt.ID()
	m.byChar[oppID] = bt.ID()
	if m.turnTimeout > 0 {
		id := bt.ID()
		m.timers[id] = battle.NewTurnTimer(m.turnTimeout, func() { m.expire(id) })
	}
	m.logger.Info("battle started",
		zap.String("battle_id", bt.ID()),
		zap.Int64("initiator_id", initID),
		zap.Int64("opponent_id", oppID))
	return nil
}

// Get returns the battle with the given ID.
func (m *Manager) Get(battleID string) (*battle.Battle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bt, ok := m.battles[battleID]
	return bt, ok
}

// ForCharacter returns the battle the character is locked into, if any.
func (m *Manager) ForCharacter(characterID int64) (*battle.Battle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byChar[characterID]
	if !ok {
		return nil, false
	}
	bt, ok := m.battles[id]
	return bt, ok
}

// SubmitTurn resolves one action for a registered battle, plays any
// scripted opponent reply, re-arms the turn deadline, and releases both
// characters if the battle ended. The returned TurnResult is the
// submitted action's; controller replies land in the battle log.
func (m *Manager) SubmitTurn(battleID string, action battle.Action) (battle.TurnResult, error) {
	m.mu.RLock()
	bt, ok := m.battles[battleID]
	m.mu.RUnlock()
	if !ok {
		return battle.TurnResult{}, fmt.Errorf("battle %q: %w", battleID, ErrBattleNotFound)
	}

	res, err := bt.TakeTurn(action)
	if err != nil {
		return battle.TurnResult{}, err
	}
	m.playScripted(bt)

	if bt.State().Terminal() {
		m.release(bt)
	} else {
		m.mu.Lock()
		if t, ok := m.timers[battleID]; ok {
			t.Reset(m.turnTimeout, func() { m.expire(battleID) })
		}
		m.mu.Unlock()
	}
	return res, nil
}

// End abandons a still-running battle and releases both characters.
// Ending a battle that already reached a terminal state only releases.
func (m *Manager) End(battleID string) error {
	m.mu.RLock()
	bt, ok := m.battles[battleID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("battle %q: %w", battleID, ErrBattleNotFound)
	}
	if err := bt.Abandon(); err != nil && !errors.Is(err, battle.ErrBattleOver) {
		return err
	}
	m.release(bt)
	return nil
}

// BattleCount returns the number of battles currently in flight.
func (m *Manager) BattleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.battles)
}

// expire is the turn deadline callback: the slow side forfeits the whole
// battle, which lands in StateTimeout.
func (m *Manager) expire(battleID string) {
	m.mu.RLock()
	bt, ok := m.battles[battleID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if err := bt.Abandon(); err != nil {
		return
	}
	m.logger.Warn("battle timed out",
		zap.String("battle_id", battleID),
		zap.Int64("active_character_id", bt.Active().CharacterID))
	m.release(bt)
}

// release drops the battle and both character locks.
func (m *Manager) release(bt *battle.Battle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[bt.ID()]; ok {
		t.Stop()
		delete(m.timers, bt.ID())
	}
	delete(m.battles, bt.ID())
	delete(m.byChar, bt.Initiator().CharacterID)
	delete(m.byChar, bt.Opponent().CharacterID)
	delete(m.controllers, bt.Initiator().CharacterID)
	delete(m.controllers, bt.Opponent().CharacterID)
	m.logger.Info("battle released",
		zap.String("battle_id", bt.ID()),
		zap.String("state", bt.State().String()))
}
