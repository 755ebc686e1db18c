package battle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mserrano/riftbound/internal/game/battle"
	"github.com/mserrano/riftbound/internal/game/character"
	"github.com/mserrano/riftbound/internal/game/effect"
	"github.com/mserrano/riftbound/internal/game/item"
	"github.com/mserrano/riftbound/internal/game/rng"
	"github.com/mserrano/riftbound/internal/game/skilltree"
	"github.com/mserrano/riftbound/internal/game/stats"
)

var strikeMove = &character.MoveDef{ID: "strike", Name: "Strike", Multiplier: 1.0}

var heavyBlowMove = &character.MoveDef{
	ID: "heavy_blow", Name: "Heavy Blow", Multiplier: 1.8, EnergyCost: 20, Accuracy: 0.85,
}

var rendMove = &character.MoveDef{
	ID: "rend", Name: "Rend", Multiplier: 1.2, EnergyCost: 10,
	OnHit: &character.OnHitDef{Effect: "bleed", Duration: 3, Magnitude: 4},
}

func newCombatant(id int64, name string, block stats.Block, energy int, moves ...*character.MoveDef) *battle.Combatant {
	if len(moves) == 0 {
		moves = []*character.MoveDef{strikeMove}
	}
	return &battle.Combatant{
		CharacterID:   id,
		Name:          name,
		Level:         5,
		Stats:         block,
		Moves:         moves,
		CurrentHP:     block.MaxHP,
		CurrentEnergy: energy,
		MaxEnergy:     energy,
		Effects:       effect.NewActiveSet(),
	}
}

func testItems(t *testing.T) *item.Registry {
	t.Helper()
	reg := item.NewRegistry()
	require.NoError(t, reg.Register(&item.ItemDef{
		ID: "healing_tonic", Name: "Healing Tonic", Kind: item.KindConsumable,
		Rarity: item.RarityCommon, Consumable: &item.ConsumableDef{HealHP: 30},
	}))
	require.NoError(t, reg.Register(&item.ItemDef{
		ID: "purge_salts", Name: "Purge Salts", Kind: item.KindConsumable,
		Rarity: item.RarityUncommon, Consumable: &item.ConsumableDef{Cleanse: true},
	}))
	return reg
}

// started builds and starts a battle between a and b with a scripted
// randomness source.
func started(t *testing.T, a, b *battle.Combatant, floats ...float64) *battle.Battle {
	t.Helper()
	if len(floats) == 0 {
		floats = []float64{0.5}
	}
	bt := battle.New(a, b, testItems(t), rng.NewFixedSource(nil, floats))
	require.NoError(t, bt.Start())
	return bt
}

func TestNew_TurnOrderBySpeed(t *testing.T) {
	slow := newCombatant(1, "Slow", stats.Block{Power: 10, Defense: 5, Speed: 5, MaxHP: 50}, 40)
	fast := newCombatant(2, "Fast", stats.Block{Power: 10, Defense: 5, Speed: 9, MaxHP: 50}, 40)

	bt := battle.New(slow, fast, testItems(t), rng.NewFixedSource(nil, []float64{0.5}))
	assert.Same(t, fast, bt.Active(), "higher speed acts first")
}

func TestNew_TurnOrderTieFavorsInitiator(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 10, Defense: 5, Speed: 7, MaxHP: 50}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 5, Speed: 7, MaxHP: 50}, 40)

	bt := battle.New(a, b, testItems(t), rng.NewFixedSource(nil, []float64{0.5}))
	assert.Same(t, a, bt.Active())
}

func TestTakeTurn_BeforeStart(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 10, Defense: 5, Speed: 7, MaxHP: 50}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 5, Speed: 5, MaxHP: 50}, 40)

	bt := battle.New(a, b, testItems(t), rng.NewFixedSource(nil, []float64{0.5}))
	_, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	assert.ErrorIs(t, err, battle.ErrNotStarted)
}

func TestStart_Twice(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 10, Defense: 5, Speed: 7, MaxHP: 50}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 5, Speed: 5, MaxHP: 50}, 40)

	bt := started(t, a, b)
	assert.ErrorIs(t, bt.Start(), battle.ErrAlreadyBegun)
}

// Basic attack with a neutral jitter roll and no crit: power 20 against
// defense 12 deals max(1, 20 - 12*0.5) = 14.
func TestTakeTurn_BasicAttackDamage(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	// hit roll, neutral jitter, no crit
	bt := started(t, a, b, 0.0, 0.5, 0.99)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)

	assert.Equal(t, battle.OutcomeHit, res.Outcome)
	assert.Equal(t, 14, res.Damage)
	assert.False(t, res.Crit)
	assert.Equal(t, 86, b.CurrentHP)
	assert.Same(t, b, bt.Active(), "control passes to the defender")
}

// The basic attack needs no learned move: a combatant whose class list
// is empty, or has only energy-costing moves, still strikes at
// multiplier 1.
func TestTakeTurn_BasicAttackNeedsNoLearnedMove(t *testing.T) {
	a := &battle.Combatant{
		CharacterID: 1, Name: "A", Level: 5,
		Stats:     stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100},
		CurrentHP: 100,
		Effects:   effect.NewActiveSet(),
	}
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40, heavyBlowMove)

	// one hit/jitter/crit triple per attack
	bt := started(t, a, b, 0.0, 0.5, 0.99, 0.0, 0.5, 0.99)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)

	assert.Equal(t, battle.OutcomeHit, res.Outcome)
	assert.Equal(t, 14, res.Damage)
	assert.Equal(t, 86, b.CurrentHP)

	// B only knows a costly move; the implicit strike still resolves.
	res, err = bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)
	assert.Equal(t, battle.OutcomeHit, res.Outcome)
}

func TestTakeTurn_CriticalHit(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	// hit roll, neutral jitter, forced crit
	bt := started(t, a, b, 0.0, 0.5, 0.0)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)

	assert.True(t, res.Crit)
	assert.Equal(t, 21, res.Damage, "14 * 1.5 = 21")
	assert.Equal(t, 79, b.CurrentHP)
}

func TestTakeTurn_Miss(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	// accuracy roll above 0.95; jitter and crit rolls never happen
	bt := started(t, a, b, 0.96)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)

	assert.Equal(t, battle.OutcomeMiss, res.Outcome)
	assert.Equal(t, 0, res.Damage)
	assert.Equal(t, 100, b.CurrentHP)
	assert.Same(t, b, bt.Active(), "a miss still consumes the turn")
}

func TestTakeTurn_DodgeForcesMiss(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)
	b.Modifiers = skilltree.Modifiers{DodgeChance: 1.0}

	bt := started(t, a, b, 0.0)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)
	assert.Equal(t, battle.OutcomeMiss, res.Outcome)
}

// Defending halves the next incoming hit: floor(14 * 0.5) = 7.
func TestTakeTurn_DefendHalvesDamage(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)
	b.CurrentEnergy = 20

	bt := started(t, a, b, 0.0, 0.5, 0.99)

	_, err := bt.TakeTurn(battle.Action{Type: battle.ActionForfeitTurn})
	require.NoError(t, err)

	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionDefend})
	require.NoError(t, err)
	assert.Equal(t, battle.OutcomeDefended, res.Outcome)
	assert.Equal(t, 30, b.CurrentEnergy, "defend restores 10 energy")

	res, err = bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Damage)
	assert.Equal(t, 93, b.CurrentHP)
}

func TestTakeTurn_DefendExpiresAfterOneIncomingTurn(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	// two full attack roll triples: hit, neutral jitter, no crit
	bt := started(t, a, b, 0.0, 0.5, 0.99, 0.0, 0.5, 0.99)

	_, err := bt.TakeTurn(battle.Action{Type: battle.ActionForfeitTurn})
	require.NoError(t, err)
	_, err = bt.TakeTurn(battle.Action{Type: battle.ActionDefend})
	require.NoError(t, err)

	// B's guard drops as B's next turn begins, so A's second attack
	// lands at full strength.
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Damage)

	_, err = bt.TakeTurn(battle.Action{Type: battle.ActionForfeitTurn})
	require.NoError(t, err)

	res, err = bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)
	assert.Equal(t, 14, res.Damage)
}

func TestTakeTurn_AbilityCostAndDamage(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40, strikeMove, heavyBlowMove)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	bt := started(t, a, b, 0.0, 0.5, 0.99)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAbility, MoveID: "heavy_blow"})
	require.NoError(t, err)

	assert.Equal(t, battle.OutcomeHit, res.Outcome)
	assert.Equal(t, 30, res.Damage, "floor(20*1.8 - 12*0.5) = 30")
	assert.Equal(t, 20, a.CurrentEnergy)
}

func TestTakeTurn_EnergyDiscountRoundsUp(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40, strikeMove, heavyBlowMove)
	a.Modifiers = skilltree.Modifiers{EnergyDiscount: 0.25}
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	bt := started(t, a, b, 0.0, 0.5, 0.99)
	_, err := bt.TakeTurn(battle.Action{Type: battle.ActionAbility, MoveID: "heavy_blow"})
	require.NoError(t, err)
	assert.Equal(t, 25, a.CurrentEnergy, "ceil(20 * 0.75) = 15 spent")
}

// Submitting an ability without the energy to pay for it is a normal
// outcome: the turn is consumed, nothing else changes.
func TestTakeTurn_InsufficientEnergy(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 5, strikeMove, heavyBlowMove)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	bt := started(t, a, b)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAbility, MoveID: "heavy_blow"})
	require.NoError(t, err)

	assert.Equal(t, battle.OutcomeInsufficientEnergy, res.Outcome)
	assert.Equal(t, 0, res.Damage)
	assert.Equal(t, 5, a.CurrentEnergy, "no energy is deducted")
	assert.Equal(t, 100, b.CurrentHP)
	assert.Same(t, b, bt.Active(), "the turn is still consumed")
}

func TestTakeTurn_UnknownMoveDoesNotConsumeTurn(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	bt := started(t, a, b)
	_, err := bt.TakeTurn(battle.Action{Type: battle.ActionAbility, MoveID: "nope"})
	assert.ErrorIs(t, err, battle.ErrUnknownMove)
	assert.Same(t, a, bt.Active(), "a rejected action leaves the turn with the actor")
}

func TestTakeTurn_InvalidActionType(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	bt := started(t, a, b)
	_, err := bt.TakeTurn(battle.Action{Type: battle.ActionUnknown})
	assert.ErrorIs(t, err, battle.ErrInvalidAction)
}

// Flee at speed 15 against speed 5: 0.3 + 10*0.05 = 0.8, and a roll of
// 0.5 succeeds.
func TestTakeTurn_FleeSucceeds(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 15, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	bt := started(t, a, b, 0.5)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionFlee})
	require.NoError(t, err)

	assert.Equal(t, battle.OutcomeFled, res.Outcome)
	assert.Equal(t, battle.StateFled, bt.State())

	_, err = bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	assert.ErrorIs(t, err, battle.ErrBattleOver)
}

func TestTakeTurn_FleeFailureConsumesTurn(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 15, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	bt := started(t, a, b, 0.9)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionFlee})
	require.NoError(t, err)

	assert.Equal(t, battle.OutcomeFleeFailed, res.Outcome)
	assert.Equal(t, battle.StateInProgress, bt.State())
	assert.Same(t, b, bt.Active())
}

func TestFleeChance(t *testing.T) {
	assert.InDelta(t, 0.8, battle.FleeChance(15, 5), 1e-9)
	assert.InDelta(t, 0.3, battle.FleeChance(5, 15), 1e-9, "speed deficit never drops below the base")
	assert.InDelta(t, 1.0, battle.FleeChance(100, 5), 1e-9, "chance is clamped to 1")
}

func TestTakeTurn_OnHitEffectApplies(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40, strikeMove, rendMove)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	// hit, neutral jitter, no crit; rider chance 0 applies unconditionally
	bt := started(t, a, b, 0.0, 0.5, 0.99)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAbility, MoveID: "rend"})
	require.NoError(t, err)

	assert.Equal(t, battle.OutcomeHit, res.Outcome)
	assert.True(t, b.Effects.Has(effect.KindBleed))
	assert.Equal(t, 4, b.Effects.Magnitude(effect.KindBleed))
}

func TestTakeTurn_StatusResistBlocksRider(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40, strikeMove, rendMove)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)
	b.Modifiers = skilltree.Modifiers{StatusResist: 1.0}

	bt := started(t, a, b, 0.0, 0.5, 0.99, 0.0)
	_, err := bt.TakeTurn(battle.Action{Type: battle.ActionAbility, MoveID: "rend"})
	require.NoError(t, err)
	assert.False(t, b.Effects.Has(effect.KindBleed))
}

// A stunned combatant loses the action, but their effects still tick, so
// the stun itself burns down.
func TestTakeTurn_StunSkipsAction(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)
	require.NoError(t, a.Effects.Apply(effect.KindStun, 1, 0))

	bt := started(t, a, b)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)

	assert.Equal(t, battle.OutcomeStunned, res.Outcome)
	assert.Equal(t, 100, b.CurrentHP)
	assert.False(t, a.Effects.Has(effect.KindStun), "one-turn stun expires as the turn ends")
	assert.Same(t, b, bt.Active())
}

// The actor's own effects tick at the end of their turn: bleed damage
// lands after the action resolves.
func TestTakeTurn_ActorEffectsTickAtTurnEnd(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)
	require.NoError(t, a.Effects.Apply(effect.KindBleed, 2, 6))

	bt := started(t, a, b, 0.0, 0.5, 0.99)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)

	assert.Equal(t, 14, res.Damage)
	assert.Equal(t, 94, a.CurrentHP, "the actor bleeds for 6 as their turn ends")
}

// A lethal blow ends the battle immediately: the defeated side's pending
// status ticks never apply and HP stays at zero.
func TestTakeTurn_LethalBlowShortCircuits(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)
	b.CurrentHP = 10
	require.NoError(t, b.Effects.Apply(effect.KindRegen, 3, 5))

	bt := started(t, a, b, 0.0, 0.5, 0.99)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)

	assert.Equal(t, battle.StateVictory, res.State)
	assert.Equal(t, 0, b.CurrentHP, "no tick runs past the killing blow")
	assert.True(t, b.Effects.Has(effect.KindRegen), "pending effects are frozen, not ticked")

	_, err = bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	assert.ErrorIs(t, err, battle.ErrBattleOver)
}

// Bleed can finish off its own carrier at the end of their turn, handing
// the win to the opponent.
func TestTakeTurn_OwnBleedDefeatsActor(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)
	a.CurrentHP = 3
	require.NoError(t, a.Effects.Apply(effect.KindBleed, 2, 6))

	bt := started(t, a, b, 0.0, 0.5, 0.99)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)

	assert.Equal(t, battle.StateDefeat, res.State, "the initiator bled out")
	assert.Equal(t, 0, a.CurrentHP)
}

func TestTakeTurn_ShieldAbsorbsDamage(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)
	require.NoError(t, b.Effects.Apply(effect.KindShield, 3, 10))

	bt := started(t, a, b, 0.0, 0.5, 0.99)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Damage, "shield absorbs 10 of the 14")
	assert.Equal(t, 96, b.CurrentHP)
}

func TestTakeTurn_StrengthBuffRaisesPower(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)
	require.NoError(t, a.Effects.Apply(effect.KindStrengthBuff, 3, 5))

	bt := started(t, a, b, 0.0, 0.5, 0.99)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)
	assert.Equal(t, 19, res.Damage, "25 - 6 = 19")
}

func TestTakeTurn_UseItemHeals(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)
	a.CurrentHP = 50

	bt := started(t, a, b)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionUseItem, ItemID: "healing_tonic"})
	require.NoError(t, err)

	assert.Equal(t, battle.OutcomeItemUsed, res.Outcome)
	assert.Equal(t, 80, a.CurrentHP)
	assert.Same(t, b, bt.Active(), "using an item consumes the turn")
}

func TestTakeTurn_UseItemCleanses(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)
	require.NoError(t, a.Effects.Apply(effect.KindBleed, 3, 4))
	require.NoError(t, a.Effects.Apply(effect.KindStun, 2, 0))

	bt := started(t, a, b)
	// The stun check precedes the action, so cleanse cannot run while
	// stunned; clear it first to exercise the cleanse path.
	a.Effects.Remove(effect.KindStun)
	_, err := bt.TakeTurn(battle.Action{Type: battle.ActionUseItem, ItemID: "purge_salts"})
	require.NoError(t, err)
	assert.Equal(t, 0, a.Effects.Len())
}

func TestTakeTurn_UnknownItem(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	bt := started(t, a, b)
	_, err := bt.TakeTurn(battle.Action{Type: battle.ActionUseItem, ItemID: "nope"})
	assert.ErrorIs(t, err, battle.ErrUnknownItem)
	assert.Same(t, a, bt.Active())
}

func TestAbandon(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	bt := started(t, a, b)
	require.NoError(t, bt.Abandon())
	assert.Equal(t, battle.StateTimeout, bt.State())
	assert.ErrorIs(t, bt.Abandon(), battle.ErrBattleOver)

	res, err := bt.Result()
	require.NoError(t, err)
	assert.Equal(t, battle.StateTimeout, res.State)
}

func TestResult_BeforeTerminal(t *testing.T) {
	a := newCombatant(1, "A", stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(2, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 100}, 40)

	bt := started(t, a, b)
	_, err := bt.Result()
	assert.Error(t, err)
}

func TestResult_ReportsBothSides(t *testing.T) {
	a := newCombatant(7, "A", stats.Block{Power: 50, Defense: 10, Speed: 10, MaxHP: 100}, 40)
	b := newCombatant(9, "B", stats.Block{Power: 10, Defense: 12, Speed: 5, MaxHP: 10}, 40)

	bt := started(t, a, b, 0.0, 0.5, 0.99)
	res, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack})
	require.NoError(t, err)
	require.Equal(t, battle.StateVictory, res.State)

	r, err := bt.Result()
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.InitiatorID)
	assert.Equal(t, int64(9), r.OpponentID)
	assert.Equal(t, 5, r.OpponentLevel)
	assert.Equal(t, 1, r.Turns)
}

func TestNewCombatant_SnapshotsCharacter(t *testing.T) {
	classes := character.NewClasses()
	class := &character.Class{
		ID: "brawler", Name: "Brawler",
		Base:  character.BaseDef{Power: 20, Defense: 10, Speed: 10, MaxHP: 100},
		Moves: []*character.MoveDef{strikeMove, heavyBlowMove},
	}
	require.NoError(t, classes.Register(class))
	cat := skilltree.NewCatalogue()
	items := item.NewRegistry()

	c, err := character.New("Vex", "brawler", classes)
	require.NoError(t, err)
	c.ID = 42
	c.CurrentHP = 1 // battle start restores HP to max

	cb, err := battle.NewCombatant(c, class, cat, items)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cb.CharacterID)
	assert.Equal(t, 100, cb.CurrentHP)
	assert.Equal(t, 20, cb.Stats.Power)
	assert.Equal(t, 50, cb.MaxEnergy, "40 + 10*level")
	assert.Len(t, cb.Moves, 2)

	// Post-battle vitals flow back to the character; effects do not.
	cb.CurrentHP = 37
	cb.CurrentEnergy = 12
	cb.CommitVitals(c)
	assert.Equal(t, 37, c.CurrentHP)
	assert.Equal(t, 12, c.CurrentEnergy)
}

func TestTurnTimer_Fires(t *testing.T) {
	fired := make(chan struct{})
	tt := battle.NewTurnTimer(10*time.Millisecond, func() { close(fired) })
	defer tt.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTurnTimer_StopPreventsFiring(t *testing.T) {
	fired := make(chan struct{})
	tt := battle.NewTurnTimer(20*time.Millisecond, func() { close(fired) })
	tt.Stop()

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(60 * time.Millisecond):
	}
}

// TestPropertyBattleTerminates drives random mutual attacks and checks
// the structural invariants: vitals stay in bounds, the state only moves
// forward, and two attackers always reach a terminal state.
func TestPropertyBattleTerminates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		hpA := rapid.IntRange(20, 120).Draw(t, "hpA")
		hpB := rapid.IntRange(20, 120).Draw(t, "hpB")

		a := newCombatant(1, "A", stats.Block{Power: 15, Defense: 8, Speed: 10, MaxHP: hpA}, 40)
		b := newCombatant(2, "B", stats.Block{Power: 12, Defense: 6, Speed: 9, MaxHP: hpB}, 40)

		bt := battle.New(a, b, item.NewRegistry(), rng.NewSeededSource(seed))
		if err := bt.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}

		for i := 0; i < 2000 && !bt.State().Terminal(); i++ {
			if _, err := bt.TakeTurn(battle.Action{Type: battle.ActionAttack}); err != nil {
				t.Fatalf("turn %d: %v", i, err)
			}
			if a.CurrentHP < 0 || a.CurrentHP > hpA || b.CurrentHP < 0 || b.CurrentHP > hpB {
				t.Fatalf("vitals out of bounds: A=%d B=%d", a.CurrentHP, b.CurrentHP)
			}
		}
		if !bt.State().Terminal() {
			t.Fatalf("battle did not terminate, state %s", bt.State())
		}
		if bt.State() != battle.StateVictory && bt.State() != battle.StateDefeat {
			t.Fatalf("mutual attacks must end in victory or defeat, got %s", bt.State())
		}
	})
}
