package character_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mserrano/riftbound/internal/game/character"
	"github.com/mserrano/riftbound/internal/game/item"
	"github.com/mserrano/riftbound/internal/game/skilltree"
	"github.com/mserrano/riftbound/internal/game/stats"
)

func testClasses(t rapid.TB) *character.Classes {
	t.Helper()
	cs := character.NewClasses()
	require.NoError(t, cs.Register(&character.Class{
		ID:   "brawler",
		Name: "Brawler",
		Base: character.BaseDef{Power: 20, Defense: 10, Speed: 10, MaxHP: 100},
		Moves: []*character.MoveDef{
			{ID: "strike", Name: "Strike", Multiplier: 1.0},
			{ID: "heavy_blow", Name: "Heavy Blow", Multiplier: 1.8, EnergyCost: 20, Accuracy: 0.85},
		},
	}))
	return cs
}

func testCatalogue(t rapid.TB) *skilltree.Catalogue {
	t.Helper()
	cat := skilltree.NewCatalogue()
	require.NoError(t, cat.Register(&skilltree.TreeDef{
		ID:   "reinforcement",
		Name: "Reinforcement",
		Nodes: []*skilltree.NodeDef{
			{ID: "iron_skin", Name: "Iron Skin", Tier: 1, MaxLevel: 5,
				Bonus: skilltree.BonusDef{Defense: 2}},
			{ID: "deep_reserves", Name: "Deep Reserves", Tier: 2, MaxLevel: 5,
				Bonus: skilltree.BonusDef{Energy: 10}},
		},
	}))
	return cat
}

func testItems(t rapid.TB) *item.Registry {
	t.Helper()
	reg := item.NewRegistry()
	require.NoError(t, reg.Register(&item.ItemDef{
		ID: "steel_sword", Name: "Steel Sword", Kind: item.KindEquipment,
		Slot: item.SlotWeapon, Boost: item.BoostDef{Power: 5},
	}))
	require.NoError(t, reg.Register(&item.ItemDef{
		ID: "vital_charm", Name: "Vital Charm", Kind: item.KindEquipment,
		Slot: item.SlotTalisman, Boost: item.BoostDef{MaxHP: 30},
	}))
	require.NoError(t, reg.Register(&item.ItemDef{
		ID: "healing_tonic", Name: "Healing Tonic", Kind: item.KindConsumable,
		Consumable: &item.ConsumableDef{HealHP: 30},
	}))
	return reg
}

func newBrawler(t rapid.TB) (*character.Character, *character.Class, *skilltree.Catalogue, *item.Registry) {
	t.Helper()
	classes := testClasses(t)
	c, err := character.New("Kenta", "brawler", classes)
	require.NoError(t, err)
	class, _ := classes.Get("brawler")
	return c, class, testCatalogue(t), testItems(t)
}

func TestNew(t *testing.T) {
	c, _, cat, _ := newBrawler(t)
	assert.Equal(t, 1, c.Level)
	assert.Equal(t, 100, c.CurrentHP)
	assert.Equal(t, 50, c.CurrentEnergy)
	assert.Equal(t, 50, c.MaxEnergy(cat))
}

func TestNew_Errors(t *testing.T) {
	classes := testClasses(t)
	_, err := character.New("", "brawler", classes)
	assert.Error(t, err)
	_, err = character.New("Kenta", "bard", classes)
	assert.ErrorIs(t, err, character.ErrUnknownClass)
}

func TestEffectiveStats_BaseOnly(t *testing.T) {
	c, class, cat, items := newBrawler(t)
	got := c.EffectiveStats(class, cat, items)
	assert.Equal(t, stats.Block{Power: 20, Defense: 10, Speed: 10, MaxHP: 100}, got)
}

func TestEffectiveStats_AllAdditiveLayers(t *testing.T) {
	c, class, cat, items := newBrawler(t)
	c.Level = 3 // +4 power, +4 defense, +2 speed, +20 HP from growth
	c.Allocated = stats.Allocation{Power: 2, HP: 1}
	c.Trees = skilltree.Investment{"reinforcement": {"iron_skin": 3}} // +6 defense
	require.NoError(t, c.Equip(items, "steel_sword"))                 // +5 power
	require.NoError(t, c.Equip(items, "vital_charm"))                 // +30 HP

	got := c.EffectiveStats(class, cat, items)
	assert.Equal(t, stats.Block{
		Power:   20 + 4 + 2 + 5,
		Defense: 10 + 4 + 6,
		Speed:   10 + 2,
		MaxHP:   100 + 20 + 5 + 30,
	}, got)
}

func TestMaxEnergy_DerivedFromLevelAndTrees(t *testing.T) {
	c, _, cat, _ := newBrawler(t)
	c.Level = 5
	assert.Equal(t, 40+50, c.MaxEnergy(cat))
	c.Trees = skilltree.Investment{"reinforcement": {"iron_skin": 1, "deep_reserves": 2}}
	assert.Equal(t, 40+50+20, c.MaxEnergy(cat))
}

func TestAllocateStat(t *testing.T) {
	c, _, _, _ := newBrawler(t)
	c.SkillPoints = 2
	require.NoError(t, c.AllocateStat("power"))
	require.NoError(t, c.AllocateStat("hp"))
	assert.Equal(t, 0, c.SkillPoints)
	assert.Equal(t, stats.Allocation{Power: 1, HP: 1}, c.Allocated)

	err := c.AllocateStat("power")
	assert.ErrorIs(t, err, character.ErrNoStatPoints)
}

func TestAllocateStat_UnknownStatLeavesPool(t *testing.T) {
	c, _, _, _ := newBrawler(t)
	c.SkillPoints = 1
	err := c.AllocateStat("luck")
	assert.ErrorIs(t, err, character.ErrUnknownStat)
	assert.Equal(t, 1, c.SkillPoints, "rejected allocation must not spend a point")
}

func TestInvestSkill_SpendsFromSharedPool(t *testing.T) {
	c, _, cat, _ := newBrawler(t)
	c.SkillPoints = 1
	require.NoError(t, c.InvestSkill(cat, "reinforcement", "iron_skin"))
	assert.Equal(t, 0, c.SkillPoints)
	err := c.InvestSkill(cat, "reinforcement", "iron_skin")
	assert.ErrorIs(t, err, skilltree.ErrNoSkillPoints)
}

func TestEquipUnequip(t *testing.T) {
	c, class, cat, items := newBrawler(t)
	require.NoError(t, c.Equip(items, "steel_sword"))
	assert.Equal(t, "steel_sword", c.Equipped[item.SlotWeapon])

	err := c.Equip(items, "healing_tonic")
	assert.ErrorIs(t, err, character.ErrNotEquipment)
	err = c.Equip(items, "no_such_item")
	assert.ErrorIs(t, err, character.ErrUnknownItem)

	require.NoError(t, c.Unequip(item.SlotWeapon))
	assert.ErrorIs(t, c.Unequip(item.SlotWeapon), character.ErrSlotEmpty)

	// Unequipping HP gear must clamp through ClampVitals.
	require.NoError(t, c.Equip(items, "vital_charm"))
	c.CurrentHP = 130
	require.NoError(t, c.Unequip(item.SlotTalisman))
	c.ClampVitals(class, cat, items)
	assert.Equal(t, 100, c.CurrentHP)
}

func TestRest(t *testing.T) {
	c, class, cat, items := newBrawler(t)
	c.CurrentHP = 1
	c.CurrentEnergy = 0
	c.Rest(class, cat, items)
	assert.Equal(t, 100, c.CurrentHP)
	assert.Equal(t, 50, c.CurrentEnergy)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	c, _, _, items := newBrawler(t)
	c.ID = 7
	c.Level = 4
	c.Experience = 350
	c.LifetimeXP = 1150
	c.Currency = 420
	c.SkillPoints = 2
	c.Allocated = stats.Allocation{Power: 3}
	c.Trees = skilltree.Investment{"reinforcement": {"iron_skin": 2}}
	require.NoError(t, c.Equip(items, "steel_sword"))

	restored := character.FromSnapshot(c.Snapshot())
	assert.Equal(t, c.ID, restored.ID)
	assert.Equal(t, c.Level, restored.Level)
	assert.Equal(t, c.Experience, restored.Experience)
	assert.Equal(t, c.LifetimeXP, restored.LifetimeXP)
	assert.Equal(t, c.Allocated, restored.Allocated)
	assert.Equal(t, c.Trees, restored.Trees)
	assert.Equal(t, c.Equipped, restored.Equipped)
	assert.Equal(t, c.CurrentHP, restored.CurrentHP)
}

func TestSnapshot_SharesNoState(t *testing.T) {
	c, _, _, _ := newBrawler(t)
	c.Trees = skilltree.Investment{"reinforcement": {"iron_skin": 2}}
	s := c.Snapshot()
	s.Trees["reinforcement"]["iron_skin"] = 5
	assert.Equal(t, 2, c.Trees["reinforcement"]["iron_skin"])
}

func TestNormalize_ClampsCorruptData(t *testing.T) {
	c, class, cat, items := newBrawler(t)
	c.CurrentHP = 9999
	c.CurrentEnergy = -5
	c.Level = 0
	c.Experience = -10
	corrections := c.Normalize(class, cat, items)
	assert.Len(t, corrections, 4)
	assert.Equal(t, 1, c.Level)
	assert.Equal(t, int64(0), c.Experience)
	assert.Equal(t, 100, c.CurrentHP)
	assert.Equal(t, 0, c.CurrentEnergy)
}

func TestNormalize_CleanCharacterUntouched(t *testing.T) {
	c, class, cat, items := newBrawler(t)
	corrections := c.Normalize(class, cat, items)
	assert.Empty(t, corrections)
}

func TestClass_Validate(t *testing.T) {
	bad := &character.Class{ID: "empty", Name: "Empty", Base: character.BaseDef{MaxHP: 10}}
	assert.Error(t, bad.Validate(), "class must define a move")

	badMove := &character.Class{
		ID: "x", Name: "X", Base: character.BaseDef{MaxHP: 10},
		Moves: []*character.MoveDef{{ID: "m", Name: "M", Multiplier: 1, Accuracy: 1.5}},
	}
	assert.Error(t, badMove.Validate())
}

func TestMoveDef_Validate_OnHit(t *testing.T) {
	good := &character.MoveDef{
		ID: "rend", Name: "Rend", Multiplier: 1.2,
		OnHit: &character.OnHitDef{Effect: "bleed", Duration: 3, Magnitude: 5},
	}
	assert.NoError(t, good.Validate())

	bad := &character.MoveDef{
		ID: "hex", Name: "Hex", Multiplier: 1,
		OnHit: &character.OnHitDef{Effect: "confusion", Duration: 3},
	}
	assert.Error(t, bad.Validate(), "unknown effect names must be rejected at load time")
}

func TestLoadClasses_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	doc := `
id: channeler
name: Channeler
description: "Bends rift energy."
base:
  power: 15
  defense: 8
  speed: 12
  max_hp: 80
moves:
  - id: bolt
    name: Rift Bolt
    multiplier: 1.0
  - id: maelstrom
    name: Maelstrom
    multiplier: 2.2
    energy_cost: 35
    accuracy: 0.75
    on_hit:
      effect: energy_drain
      duration: 2
      magnitude: 10
      chance: 0.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "channeler.yaml"), []byte(doc), 0644))
	cs, err := character.LoadClasses(dir)
	require.NoError(t, err)
	class, ok := cs.Get("channeler")
	require.True(t, ok)
	assert.Len(t, class.Moves, 2)
	m, ok := class.Move("maelstrom")
	require.True(t, ok)
	assert.Equal(t, 35, m.EnergyCost)
	require.NotNil(t, m.OnHit)
	assert.InDelta(t, 0.5, m.OnHit.Chance, 1e-9)
}

func TestPropertyAllocation_PoolNeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c, _, cat, _ := newBrawler(t)
		c.SkillPoints = rapid.IntRange(0, 10).Draw(t, "points")
		granted := c.SkillPoints
		ops := rapid.IntRange(0, 20).Draw(t, "ops")
		statNames := []string{"power", "defense", "speed", "hp"}
		for i := 0; i < ops; i++ {
			if rapid.Bool().Draw(t, "alloc") {
				_ = c.AllocateStat(statNames[rapid.IntRange(0, 3).Draw(t, "stat")])
			} else {
				_ = c.InvestSkill(cat, "reinforcement", "iron_skin")
			}
		}
		assert.GreaterOrEqual(t, c.SkillPoints, 0)
		assert.Equal(t, granted, c.SkillPoints+c.Allocated.Total()+c.Trees.TotalInvested(),
			"points spent plus points unspent must equal points granted")
	})
}
