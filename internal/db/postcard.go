package db

import (
	"time"

	"gorm.io/datatypes"
)

const (
	PostcardStatusPending    = "pending"
	PostcardStatusGenerating = "generating"
	PostcardStatusCompleted  = "completed"
	PostcardStatusTextOnly   = "text_only"
	PostcardStatusFailed     = "failed"
)

// Postcard 小橘寄来的明信片，每篇日记至多一张。
type Postcard struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	UserID           uint                        `gorm:"not null;uniqueIndex:idx_postcard_user_diary;index:idx_postcard_user_read" json:"user_id"`
	DiaryID          uint                        `gorm:"not null;uniqueIndex:idx_postcard_user_diary" json:"diary_id"`
	Status           string                      `gorm:"size:20;not null;index" json:"status"`
	SceneName        string                      `gorm:"size:100" json:"scene_name"`
	LocationName     string                      `gorm:"size:100" json:"location_name"`
	Message          string                      `gorm:"type:text" json:"message"`
	ImagePrompt      string                      `gorm:"type:text" json:"image_prompt"`
	ImageURL         string                      `gorm:"size:500" json:"image_url"`
	RemoteImageURL   string                      `gorm:"size:1000" json:"remote_image_url"`
	EmotionTags      datatypes.JSONSlice[string] `json:"emotion_tags"`
	Intensity        int                         `json:"intensity"`
	MentalHealth     int                         `json:"mental_health"`
	MentalChange     int                         `json:"mental_change"`
	StressChange     int                         `json:"stress_change"`
	GrowthChange     int                         `json:"growth_change"`
	CoinsEarned      int                         `json:"coins_earned"`
	MonstersDefeated int                         `json:"monsters_defeated"`
	MonstersTotal    int                         `json:"monsters_total"`
	IsRead           bool                        `gorm:"not null;index:idx_postcard_user_read" json:"is_read"`
	ReadAt           *time.Time                  `json:"read_at"`
	GeneratedAt      *time.Time                  `json:"generated_at"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

// HasAdventureResult 表示明信片是否带有探险战绩。
func (p Postcard) HasAdventureResult() bool {
	return p.MonstersTotal > 0
}
