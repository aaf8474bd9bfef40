package db

import (
	"time"

	"gorm.io/datatypes"
)

const (
	AdventureStatusGenerating = "generating"
	AdventureStatusPending    = "pending"
	AdventureStatusInProgress = "in_progress"
	AdventureStatusCompleted  = "completed"
	AdventureStatusFailed     = "failed"
	AdventureStatusSkipped    = "skipped"
)

// ChallengeOption 是挑战题的一个选项。
type ChallengeOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Challenge 认知重构挑战，Monsters[i] 与 Challenges[i] 一一对应。
type Challenge struct {
	Type              string            `json:"type"`
	MonsterType       string            `json:"monster_type"`
	DistortionThought string            `json:"distortion_thought"`
	Question          string            `json:"question"`
	Instruction       string            `json:"instruction"`
	Options           []ChallengeOption `json:"options"`
	CorrectIDs        []string          `json:"correct_ids"`
	Explanation       string            `json:"explanation"`
	Completed         bool              `json:"completed"`
	UserAnswers       []string          `json:"user_answers,omitempty"`
	IsCorrect         bool              `json:"is_correct"`
}

// Monster 挑战中出现的怪物。
type Monster struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Defeated    bool   `json:"defeated"`
}

// AdventureSession 每篇日记至多一个探险会话。
type AdventureSession struct {
	ID               uint                           `gorm:"primaryKey" json:"id"`
	UserID           uint                           `gorm:"not null;uniqueIndex:idx_adventure_user_diary" json:"user_id"`
	DiaryID          uint                           `gorm:"not null;uniqueIndex:idx_adventure_user_diary" json:"diary_id"`
	Status           string                         `gorm:"size:20;not null;index" json:"status"`
	SceneName        string                         `gorm:"size:100" json:"scene_name"`
	IsPositive       bool                           `json:"is_positive"`
	Challenges       datatypes.JSONSlice[Challenge] `json:"challenges"`
	Monsters         datatypes.JSONSlice[Monster]   `json:"monsters"`
	CurrentChallenge int                            `gorm:"not null" json:"current_challenge"`
	CoinsEarned      int                            `gorm:"not null" json:"coins_earned"`
	ItemsEarned      datatypes.JSONSlice[string]    `json:"items_earned"`
	MentalChange     int                            `json:"mental_change"`
	StressChange     int                            `json:"stress_change"`
	GrowthChange     int                            `json:"growth_change"`
	UsedFallback     bool                           `json:"used_fallback"`
	StartedAt        *time.Time                     `json:"started_at"`
	CompletedAt      *time.Time                     `json:"completed_at"`
	CreatedAt        time.Time                      `json:"created_at"`
	UpdatedAt        time.Time                      `json:"updated_at"`
}

// DefeatedCount 返回已击败的怪物数量。
func (s AdventureSession) DefeatedCount() int {
	count := 0
	for _, m := range s.Monsters {
		if m.Defeated {
			count++
		}
	}
	return count
}

// UserItem 用户背包，(user_id, item_name) 唯一，数量累加。
type UserItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_user_item_name" json:"user_id"`
	ItemName    string    `gorm:"size:100;not null;uniqueIndex:idx_user_item_name" json:"item_name"`
	DisplayName string    `gorm:"size:100" json:"display_name"`
	EffectType  string    `gorm:"size:50" json:"effect_type"`
	EffectValue int       `json:"effect_value"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
