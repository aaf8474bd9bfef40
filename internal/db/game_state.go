package db

import "time"

const (
	// DefaultScore 为三项状态值的初始值。
	DefaultScore = 50
	// MinScore / MaxScore 为状态值的取值边界。
	MinScore = 0
	MaxScore = 100
	// DiariesPerLevel 每累计这么多篇日记升一级。
	DiariesPerLevel = 10
)

// GameState 记录用户的养成数值，每个用户唯一一行。
type GameState struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	MentalHealth    int        `gorm:"not null" json:"mental_health"`
	Stress          int        `gorm:"not null" json:"stress"`
	GrowthPotential int        `gorm:"not null" json:"growth_potential"`
	Coins           int        `gorm:"not null" json:"coins"`
	Level           int        `gorm:"not null" json:"level"`
	TotalDiaryCount int        `gorm:"not null" json:"total_diary_count"`
	LastActiveAt    *time.Time `json:"last_active_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewGameState 返回新用户的初始状态。
func NewGameState(userID uint) GameState {
	return GameState{
		UserID:          userID,
		MentalHealth:    DefaultScore,
		Stress:          DefaultScore,
		GrowthPotential: DefaultScore,
		Level:           1,
	}
}

// LevelForDiaryCount 根据日记总数计算等级。
func LevelForDiaryCount(total int) int {
	if total < 0 {
		total = 0
	}
	return 1 + total/DiariesPerLevel
}
