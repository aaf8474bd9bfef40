package service

import (
	"context"
	"fmt"
	"time"

	"github.com/moodfox/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LevelUpBonus 每次升级额外奖励的金币。
const LevelUpBonus = 50

// Delta 一次结算对养成数值的改动。
type Delta struct {
	MentalHealth int
	Stress       int
	Growth       int
	Coins        int
	// CountDiary 为 true 时日记总数 +1 并重新计算等级
	CountDiary bool
}

// LedgerResult 结算后的状态快照。
type LedgerResult struct {
	State      db.GameState `json:"state"`
	LevelUp    bool         `json:"level_up"`
	NewLevel   int          `json:"new_level"`
	LevelBonus int          `json:"level_bonus"`
}

// LedgerService 维护用户的养成数值。
type LedgerService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLedgerService 构造 LedgerService。
func NewLedgerService(gdb *gorm.DB) *LedgerService {
	return &LedgerService{db: gdb, now: time.Now}
}

// GetOrCreate 返回用户的养成状态，不存在时以默认值创建。
func (s *LedgerService) GetOrCreate(ctx context.Context, userID uint) (*db.GameState, error) {
	return getOrCreateState(s.db.WithContext(ctx), userID)
}

// ApplyDelta 在独立事务中应用一次变更。
func (s *LedgerService) ApplyDelta(ctx context.Context, userID uint, delta Delta) (LedgerResult, error) {
	var result LedgerResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.applyDeltaTx(tx, userID, delta)
		return err
	})
	return result, err
}

// applyDeltaTx 供调用方在自己的事务中组合使用。
func (s *LedgerService) applyDeltaTx(tx *gorm.DB, userID uint, delta Delta) (LedgerResult, error) {
	state, err := getOrCreateState(tx, userID)
	if err != nil {
		return LedgerResult{}, err
	}

	state.MentalHealth = clampInt(state.MentalHealth+delta.MentalHealth, db.MinScore, db.MaxScore)
	state.Stress = clampInt(state.Stress+delta.Stress, db.MinScore, db.MaxScore)
	state.GrowthPotential = clampInt(state.GrowthPotential+delta.Growth, db.MinScore, db.MaxScore)
	state.Coins = max(0, state.Coins+delta.Coins)

	result := LedgerResult{NewLevel: state.Level}
	if delta.CountDiary {
		state.TotalDiaryCount++
		if level := db.LevelForDiaryCount(state.TotalDiaryCount); level > state.Level {
			state.Level = level
			state.Coins += LevelUpBonus
			result.LevelUp = true
			result.LevelBonus = LevelUpBonus
			result.NewLevel = level
		}
	}

	now := s.now()
	state.LastActiveAt = &now

	if err := tx.Save(state).Error; err != nil {
		return LedgerResult{}, fmt.Errorf("save game state: %w", err)
	}

	result.State = *state
	return result, nil
}

// getOrCreateState 依赖 user_id 唯一索引，并发创建时只保留一行。
func getOrCreateState(tx *gorm.DB, userID uint) (*db.GameState, error) {
	fresh := db.NewGameState(userID)
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, fmt.Errorf("create game state: %w", err)
	}

	var state db.GameState
	if err := tx.Where("user_id = ?", userID).First(&state).Error; err != nil {
		return nil, fmt.Errorf("load game state: %w", err)
	}
	return &state, nil
}
