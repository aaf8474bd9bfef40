package db

import (
	"time"

	"gorm.io/datatypes"
)

const (
	AnalysisStatusPending   = "pending"
	AnalysisStatusCompleted = "completed"
)

// Diary 情绪日记
// ScoreApplied 只允许从 false 变为 true 一次，保证同一篇日记只结算一次
type Diary struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	UserID         uint                        `gorm:"index;not null" json:"user_id"`
	Content        string                      `gorm:"type:text;not null" json:"content"`
	EmotionTags    datatypes.JSONSlice[string] `json:"emotion_tags"`
	Intensity      int                         `gorm:"not null" json:"intensity"`
	TriggerEvent   string                      `gorm:"type:text" json:"trigger_event"`
	ScoreApplied   bool                        `gorm:"not null" json:"score_applied"`
	AnalysisStatus string                      `gorm:"size:20;not null" json:"analysis_status"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// DiaryAnalysis 保存一次分析的原始结果，便于审计
type DiaryAnalysis struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	DiaryID        uint           `gorm:"uniqueIndex;not null" json:"diary_id"`
	UserID         uint           `gorm:"index;not null" json:"user_id"`
	OverallEmotion string         `gorm:"size:50" json:"overall_emotion"`
	UsedFallback   bool           `json:"used_fallback"`
	Payload        datatypes.JSON `json:"payload"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
