package service

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/moodfox/internal/db"
	"github.com/stretchr/testify/require"
)

func TestLedgerGetOrCreateDefaults(t *testing.T) {
	gdb := openServiceTestDB(t)
	ledger := NewLedgerService(gdb)
	userID := seedUser(t, gdb, "fox")

	state, err := ledger.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, db.DefaultScore, state.MentalHealth)
	require.Equal(t, db.DefaultScore, state.Stress)
	require.Equal(t, db.DefaultScore, state.GrowthPotential)
	require.Equal(t, 1, state.Level)
	require.Zero(t, state.Coins)

	again, err := ledger.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, state.ID, again.ID)

	var count int64
	require.NoError(t, gdb.Model(&db.GameState{}).Where("user_id = ?", userID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestLedgerApplyDeltaStaysInBounds(t *testing.T) {
	gdb := openServiceTestDB(t)
	ledger := NewLedgerService(gdb)
	userID := seedUser(t, gdb, "fox")
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 200; i++ {
		delta := Delta{
			MentalHealth: rng.IntN(81) - 40,
			Stress:       rng.IntN(81) - 40,
			Growth:       rng.IntN(81) - 40,
			Coins:        rng.IntN(201) - 100,
			CountDiary:   rng.IntN(2) == 0,
		}
		result, err := ledger.ApplyDelta(context.Background(), userID, delta)
		require.NoError(t, err)

		state := result.State
		require.GreaterOrEqual(t, state.MentalHealth, db.MinScore)
		require.LessOrEqual(t, state.MentalHealth, db.MaxScore)
		require.GreaterOrEqual(t, state.Stress, db.MinScore)
		require.LessOrEqual(t, state.Stress, db.MaxScore)
		require.GreaterOrEqual(t, state.GrowthPotential, db.MinScore)
		require.LessOrEqual(t, state.GrowthPotential, db.MaxScore)
		require.GreaterOrEqual(t, state.Coins, 0)
		require.Equal(t, db.LevelForDiaryCount(state.TotalDiaryCount), state.Level)
	}
}

func TestLedgerLevelUpBonus(t *testing.T) {
	gdb := openServiceTestDB(t)
	ledger := NewLedgerService(gdb)
	userID := seedUser(t, gdb, "fox")
	ctx := context.Background()

	for i := 0; i < db.DiariesPerLevel-1; i++ {
		result, err := ledger.ApplyDelta(ctx, userID, Delta{Coins: 10, CountDiary: true})
		require.NoError(t, err)
		require.False(t, result.LevelUp)
	}

	result, err := ledger.ApplyDelta(ctx, userID, Delta{Coins: 10, CountDiary: true})
	require.NoError(t, err)
	require.True(t, result.LevelUp)
	require.Equal(t, 2, result.NewLevel)
	require.Equal(t, LevelUpBonus, result.LevelBonus)
	require.Equal(t, 10*db.DiariesPerLevel+LevelUpBonus, result.State.Coins)
	require.Equal(t, db.DiariesPerLevel, result.State.TotalDiaryCount)
	require.NotNil(t, result.State.LastActiveAt)
}

func TestLedgerApplyDeltaWithoutDiaryKeepsCount(t *testing.T) {
	gdb := openServiceTestDB(t)
	ledger := NewLedgerService(gdb)
	userID := seedUser(t, gdb, "fox")

	result, err := ledger.ApplyDelta(context.Background(), userID, Delta{MentalHealth: 80, Stress: -80, Coins: -5})
	require.NoError(t, err)
	require.Equal(t, db.MaxScore, result.State.MentalHealth)
	require.Equal(t, db.MinScore, result.State.Stress)
	require.Zero(t, result.State.Coins)
	require.Zero(t, result.State.TotalDiaryCount)
	require.Equal(t, 1, result.State.Level)
}
