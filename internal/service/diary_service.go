package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/moodfox/internal/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultIntensity = 5
	maxDiaryRunes    = 5000
	maxTriggerRunes  = 500
	maxEmotionTags   = 10
	defaultDiaryPage = 20
	maxDiaryPageSize = 50
)

// DiaryInput 创建或编辑日记的参数。
type DiaryInput struct {
	UserID       uint
	Content      string
	Tags         []string
	Intensity    int
	TriggerEvent string
}

// DiaryListOptions 日记分页参数。
type DiaryListOptions struct {
	Page    int
	PerPage int
}

// DiaryList 分页结果。
type DiaryList struct {
	Items   []db.Diary `json:"items"`
	Total   int64      `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}

// DiaryService 日记的增删改查，创建后触发探险与明信片的后台生成。
type DiaryService struct {
	db         *gorm.DB
	adventures *AdventureService
	postcards  *PostcardService
	images     *ImageStore
}

// NewDiaryService 构造 DiaryService；adventures / postcards 为 nil 时不触发后台生成。
func NewDiaryService(gdb *gorm.DB, adventures *AdventureService, postcards *PostcardService, images *ImageStore) *DiaryService {
	return &DiaryService{db: gdb, adventures: adventures, postcards: postcards, images: images}
}

// Create 写入日记并确保养成状态存在，随后创建探险与明信片占位记录。
// 后台触发失败只记日志，不影响日记创建。
func (s *DiaryService) Create(ctx context.Context, input DiaryInput) (*db.Diary, error) {
	if input.UserID == 0 {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidDiary)
	}
	diary, err := buildDiary(input)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(diary).Error; err != nil {
			return fmt.Errorf("create diary: %w", err)
		}
		if _, err := getOrCreateState(tx, input.UserID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.launch(ctx, diary)
	return diary, nil
}

func (s *DiaryService) launch(ctx context.Context, diary *db.Diary) {
	if s.adventures != nil {
		if _, _, err := s.adventures.PrepareSession(ctx, diary); err != nil {
			log.Printf("[探险预生成] diary=%d 触发失败: %v", diary.ID, err)
		}
	}
	if s.postcards != nil {
		if _, _, err := s.postcards.PreparePostcard(ctx, diary); err != nil {
			log.Printf("[明信片] diary=%d 触发失败: %v", diary.ID, err)
		}
	}
}

// Update 编辑日记内容，分析状态重置为 pending，score_applied 保持不变。
func (s *DiaryService) Update(ctx context.Context, diaryID uint, input DiaryInput) (*db.Diary, error) {
	next, err := buildDiary(input)
	if err != nil {
		return nil, err
	}

	var diary *db.Diary
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		diary, err = findDiary(tx, input.UserID, diaryID)
		if err != nil {
			return err
		}
		diary.Content = next.Content
		diary.EmotionTags = next.EmotionTags
		diary.Intensity = next.Intensity
		diary.TriggerEvent = next.TriggerEvent
		diary.AnalysisStatus = db.AnalysisStatusPending
		if err := tx.Model(&db.Diary{}).Where("id = ?", diary.ID).Updates(map[string]any{
			"content":         diary.Content,
			"emotion_tags":    diary.EmotionTags,
			"intensity":       diary.Intensity,
			"trigger_event":   diary.TriggerEvent,
			"analysis_status": diary.AnalysisStatus,
		}).Error; err != nil {
			return fmt.Errorf("update diary: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return diary, nil
}

// Delete 删除日记及其分析、探险与明信片，提交后再清理本地图片。
func (s *DiaryService) Delete(ctx context.Context, userID, diaryID uint) error {
	var imageURL string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		diary, err := findDiary(tx, userID, diaryID)
		if err != nil {
			return err
		}

		var card db.Postcard
		if err := tx.Where("user_id = ? AND diary_id = ?", userID, diary.ID).Limit(1).Find(&card).Error; err != nil {
			return fmt.Errorf("load postcard: %w", err)
		}
		imageURL = card.ImageURL

		if err := tx.Where("diary_id = ?", diary.ID).Delete(&db.DiaryAnalysis{}).Error; err != nil {
			return fmt.Errorf("delete diary analysis: %w", err)
		}
		if err := tx.Where("user_id = ? AND diary_id = ?", userID, diary.ID).Delete(&db.AdventureSession{}).Error; err != nil {
			return fmt.Errorf("delete adventure session: %w", err)
		}
		if err := tx.Where("user_id = ? AND diary_id = ?", userID, diary.ID).Delete(&db.Postcard{}).Error; err != nil {
			return fmt.Errorf("delete postcard: %w", err)
		}
		if err := tx.Delete(diary).Error; err != nil {
			return fmt.Errorf("delete diary: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if imageURL != "" && s.images != nil {
		s.images.Remove(imageURL)
	}
	return nil
}

// Get 读取单篇日记。
func (s *DiaryService) Get(ctx context.Context, userID, diaryID uint) (*db.Diary, error) {
	return findDiary(s.db.WithContext(ctx), userID, diaryID)
}

// List 按创建时间倒序分页，每页最多 50 条。
func (s *DiaryService) List(ctx context.Context, userID uint, opts DiaryListOptions) (*DiaryList, error) {
	page := max(opts.Page, 1)
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = defaultDiaryPage
	}
	perPage = min(perPage, maxDiaryPageSize)

	query := s.db.WithContext(ctx).Model(&db.Diary{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count diaries: %w", err)
	}

	var items []db.Diary
	if err := query.Order("created_at DESC").Order("id DESC").
		Limit(perPage).Offset((page - 1) * perPage).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list diaries: %w", err)
	}

	return &DiaryList{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

// buildDiary 校验输入并规范化标签与强度。
func buildDiary(input DiaryInput) (*db.Diary, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidDiary)
	}
	if utf8.RuneCountInString(content) > maxDiaryRunes {
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrInvalidDiary, maxDiaryRunes)
	}

	trigger := strings.TrimSpace(input.TriggerEvent)
	if utf8.RuneCountInString(trigger) > maxTriggerRunes {
		return nil, fmt.Errorf("%w: trigger event exceeds %d characters", ErrInvalidDiary, maxTriggerRunes)
	}

	tags := NormalizeEmotionTags(input.Tags)
	if len(tags) > maxEmotionTags {
		tags = tags[:maxEmotionTags]
	}

	intensity := input.Intensity
	if intensity == 0 {
		intensity = defaultIntensity
	}

	return &db.Diary{
		UserID:         input.UserID,
		Content:        content,
		EmotionTags:    datatypes.JSONSlice[string](tags),
		Intensity:      clampIntensity(intensity),
		TriggerEvent:   trigger,
		AnalysisStatus: db.AnalysisStatusPending,
	}, nil
}
