package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mserrano/riftbound/internal/game/battle"
	"github.com/mserrano/riftbound/internal/scripting"
)

// maxScriptedTurns bounds the controller-driven turns resolved inside a
// single call, so two bound sides can never spin a battle forever.
const maxScriptedTurns = 1000

// BeginScripted registers and starts bt like Begin, binding the Lua
// controller with the given ID to the opponent side. Controller turns
// resolve automatically: immediately if the opponent wins the speed
// order, then after every SubmitTurn.
//
// Postcondition: The battle is registered and every pending controller
// turn has been played, or ErrUnknownController/ErrCharacterInBattle is
// returned and nothing changed.
func (m *Manager) BeginScripted(bt *battle.Battle, controllerID string) error {
	if m.scripts == nil || !m.scripts.Has(controllerID) {
		return fmt.Errorf("controller %q: %w", controllerID, ErrUnknownController)
	}
	if err := m.Begin(bt); err != nil {
		return err
	}

	m.mu.Lock()
	m.controllers[bt.Opponent().CharacterID] = controllerID
	m.mu.Unlock()

	m.playScripted(bt)
	if bt.State().Terminal() {
		m.release(bt)
	}
	return nil
}

// playScripted resolves turns for as long as the active side is bound to
// a controller and the battle is in progress. A decision the resolver
// rejects costs the script its turn as a basic attack.
func (m *Manager) playScripted(bt *battle.Battle) {
	for i := 0; i < maxScriptedTurns && bt.State() == battle.StateInProgress; i++ {
		actor := bt.Active()
		m.mu.RLock()
		controllerID, bound := m.controllers[actor.CharacterID]
		m.mu.RUnlock()
		if !bound {
			return
		}

		decision := m.scripts.Decide(controllerID, viewFor(bt, actor))
		if _, err := bt.TakeTurn(decisionToAction(decision)); err != nil {
			m.logger.Warn("controller decision rejected",
				zap.String("battle_id", bt.ID()),
				zap.String("controller", controllerID),
				zap.String("action", decision.Action),
				zap.Error(err))
			if _, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack}); err != nil {
				return
			}
		}
	}
}

// viewFor builds the battle snapshot a controller's decide() receives
// for the given side.
func viewFor(bt *battle.Battle, self *battle.Combatant) scripting.BattleView {
	foe := bt.Opponent()
	if foe == self {
		foe = bt.Initiator()
	}

	moves := make([]scripting.MoveView, 0, len(self.Moves))
	for _, mv := range self.Moves {
		moves = append(moves, scripting.MoveView{
			ID:         mv.ID,
			EnergyCost: mv.EnergyCost,
			Multiplier: mv.Multiplier,
			Accuracy:   mv.Accuracy,
		})
	}
	return scripting.BattleView{
		Turn:  bt.Turns(),
		Self:  combatantView(self),
		Foe:   combatantView(foe),
		Moves: moves,
	}
}

func combatantView(c *battle.Combatant) scripting.CombatantView {
	effects := make([]string, 0, c.Effects.Len())
	for _, e := range c.Effects.All() {
		effects = append(effects, e.Kind.Name())
	}
	return scripting.CombatantView{
		Name:      c.Name,
		HP:        c.CurrentHP,
		MaxHP:     c.Stats.MaxHP,
		Energy:    c.CurrentEnergy,
		MaxEnergy: c.MaxEnergy,
		Defending: c.Defending(),
		Effects:   effects,
	}
}

// decisionToAction maps a controller decision onto a resolver action.
// Unrecognised actions fall back to the basic attack.
func decisionToAction(d scripting.Decision) battle.Action {
	switch d.Action {
	case "ability":
		return battle.Action{Type: battle.ActionAbility, MoveID: d.MoveID}
	case "defend":
		return battle.Action{Type: battle.ActionDefend}
	case "item":
		return battle.Action{Type: battle.ActionUseItem, ItemID: d.ItemID}
	case "flee":
		return battle.Action{Type: battle.ActionFlee}
	case "forfeit":
		return battle.Action{Type: battle.ActionForfeitTurn}
	default:
		return battle.Action{Type: battle.ActionAttack}
	}
}
