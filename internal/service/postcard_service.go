package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/moodfox/internal/db"
	"gorm.io/gorm"
)

const (
	placeholderLocation = "生成中..."
	placeholderMessage  = "小橘正在写信给你..."
	failedMessage       = "生成失败，请稍后重试"

	maxPostcardPageSize = 100
)

// PostcardView 明信片及其渲染后的正文。
type PostcardView struct {
	db.Postcard
	MessageHTML string `json:"message_html"`
	Ready       bool   `json:"ready"`
}

// PostcardFilter 列表查询条件。
type PostcardFilter struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

// PostcardList 列表结果。
type PostcardList struct {
	Items  []PostcardView `json:"items"`
	Total  int64          `json:"total"`
	Unread int64          `json:"unread"`
}

// PostcardService 明信片流水线：占位记录 → 写信 → 生成图片 → 下载到本地。
type PostcardService struct {
	db           *gorm.DB
	author       *PostcardAuthor
	images       ImageGenerator
	store        *ImageStore
	scheduler    Scheduler
	renderer     *MessageRenderer
	opts         GenerationOptions
	placeholders placeholderGroup
	now          func() time.Time
}

// NewPostcardService 构造 PostcardService；images 或 store 为 nil 时只生成文字。
func NewPostcardService(gdb *gorm.DB, author *PostcardAuthor, images ImageGenerator, store *ImageStore, scheduler Scheduler, opts GenerationOptions) *PostcardService {
	return &PostcardService{
		db:           gdb,
		author:       author,
		images:       images,
		store:        store,
		scheduler:    scheduler,
		renderer:     NewMessageRenderer(),
		opts:         opts,
		placeholders: placeholderGroup{kind: "postcard"},
		now:          time.Now,
	}
}

// PreparePostcard 为新日记创建占位明信片并调度生成任务，已存在时直接返回。
func (s *PostcardService) PreparePostcard(ctx context.Context, diary *db.Diary) (*db.Postcard, bool, error) {
	gdb := s.db.WithContext(ctx)
	res, err := s.placeholders.do(diary.UserID, diary.ID, func() (placeholderResult, error) {
		existing, err := findPostcardByDiary(gdb, diary.UserID, diary.ID)
		if err == nil {
			return placeholderResult{ID: existing.ID}, nil
		}
		if !errors.Is(err, ErrPostcardNotFound) {
			return placeholderResult{}, err
		}

		card := db.Postcard{
			UserID:       diary.UserID,
			DiaryID:      diary.ID,
			Status:       db.PostcardStatusGenerating,
			LocationName: placeholderLocation,
			Message:      placeholderMessage,
			EmotionTags:  diary.EmotionTags,
			Intensity:    diary.Intensity,
		}
		return s.createAndSchedule(gdb, &card)
	})
	if err != nil {
		return nil, false, err
	}

	card, err := findPostcard(gdb, diary.UserID, res.ID)
	if err != nil {
		return nil, false, err
	}
	return card, res.Created, nil
}

// RequestForAdventure 探险成功后写入奖励；明信片不存在时补建 pending 记录，
// 仍处于 pending 的记录在这里被领取并调度生成。
func (s *PostcardService) RequestForAdventure(ctx context.Context, req AdventurePostcardRequest) error {
	gdb := s.db.WithContext(ctx)
	res, err := s.placeholders.do(req.UserID, req.DiaryID, func() (placeholderResult, error) {
		return s.ensurePending(gdb, req.UserID, req.DiaryID)
	})
	if err != nil {
		return err
	}

	// 奖励必须在合并组之外写入：与日记提交流程并发时，这里拿到的是对方的结果。
	if err := gdb.Model(&db.Postcard{}).Where("id = ?", res.ID).Updates(map[string]any{
		"coins_earned":      req.CoinsEarned,
		"mental_change":     req.StatChanges.MentalHealth,
		"stress_change":     req.StatChanges.Stress,
		"growth_change":     req.StatChanges.Growth,
		"monsters_defeated": req.DefeatedCount,
		"monsters_total":    req.TotalMonsters,
	}).Error; err != nil {
		return fmt.Errorf("update postcard rewards: %w", err)
	}

	err = s.claimAndSchedule(gdb, res.ID, db.PostcardStatusPending, false)
	switch {
	case err == nil:
		log.Printf("[明信片] diary=%d postcard=%d 探险结算后提交生成任务", req.DiaryID, res.ID)
		return nil
	case errors.Is(err, ErrInvalidState):
		// 已在生成或已生成
		return nil
	default:
		gdb.Model(&db.Postcard{}).
			Where("id = ? AND status = ?", res.ID, db.PostcardStatusPending).
			Update("status", db.PostcardStatusFailed)
		return err
	}
}

// ensurePending 返回已有明信片，没有时插入一条 pending 占位记录。
func (s *PostcardService) ensurePending(gdb *gorm.DB, userID, diaryID uint) (placeholderResult, error) {
	existing, err := findPostcardByDiary(gdb, userID, diaryID)
	if err == nil {
		return placeholderResult{ID: existing.ID}, nil
	}
	if !errors.Is(err, ErrPostcardNotFound) {
		return placeholderResult{}, err
	}

	diary, err := findDiary(gdb, userID, diaryID)
	if err != nil {
		return placeholderResult{}, err
	}
	card := db.Postcard{
		UserID:       userID,
		DiaryID:      diaryID,
		Status:       db.PostcardStatusPending,
		LocationName: placeholderLocation,
		Message:      placeholderMessage,
		EmotionTags:  diary.EmotionTags,
		Intensity:    diary.Intensity,
	}
	if err := gdb.Create(&card).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if existing, findErr := findPostcardByDiary(gdb, userID, diaryID); findErr == nil {
				return placeholderResult{ID: existing.ID}, nil
			}
		}
		return placeholderResult{}, fmt.Errorf("create postcard placeholder: %w", err)
	}
	return placeholderResult{ID: card.ID, Created: true}, nil
}

// createAndSchedule 插入占位记录后投递任务；唯一索引冲突时返回已有记录。
func (s *PostcardService) createAndSchedule(gdb *gorm.DB, card *db.Postcard) (placeholderResult, error) {
	if err := gdb.Create(card).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if existing, findErr := findPostcardByDiary(gdb, card.UserID, card.DiaryID); findErr == nil {
				return placeholderResult{ID: existing.ID}, nil
			}
		}
		return placeholderResult{}, fmt.Errorf("create postcard placeholder: %w", err)
	}

	if err := s.schedule(card.ID, false); err != nil {
		s.markFailed(card.ID)
		return placeholderResult{ID: card.ID}, err
	}
	log.Printf("[明信片] diary=%d postcard=%d 已创建占位记录并提交生成任务", card.DiaryID, card.ID)
	return placeholderResult{ID: card.ID, Created: true}, nil
}

// claimAndSchedule 以 from 状态为前提切换到 generating 并投递任务，调度失败时恢复原状态。
func (s *PostcardService) claimAndSchedule(gdb *gorm.DB, id uint, from string, imageOnly bool) error {
	res := gdb.Model(&db.Postcard{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", db.PostcardStatusGenerating)
	if res.Error != nil {
		return fmt.Errorf("claim postcard: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: postcard is no longer %s", ErrInvalidState, from)
	}

	if err := s.schedule(id, imageOnly); err != nil {
		gdb.Model(&db.Postcard{}).Where("id = ?", id).Update("status", from)
		return err
	}
	return nil
}

func (s *PostcardService) schedule(id uint, imageOnly bool) error {
	name := "postcard"
	if imageOnly {
		name = "postcard_image"
	}
	if err := s.scheduler.Submit(name, func(ctx context.Context) error {
		return s.generate(ctx, id, imageOnly)
	}); err != nil {
		return fmt.Errorf("schedule postcard generation: %w", err)
	}
	return nil
}

// generate 后台生成任务。任务结束时记录不会停留在 generating。
func (s *PostcardService) generate(ctx context.Context, id uint, imageOnly bool) (err error) {
	gdb := scopedDB(s.db, ctx)

	var card db.Postcard
	if err := gdb.First(&card, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("load postcard: %w", err)
	}
	if card.Status != db.PostcardStatusGenerating {
		return nil
	}

	settled := false
	defer func() {
		if !settled {
			s.markFailed(id)
		}
	}()

	diary, err := findDiary(gdb, card.UserID, card.DiaryID)
	if err != nil {
		if errors.Is(err, ErrDiaryNotFound) {
			settled = true
			return nil
		}
		return err
	}

	if !imageOnly {
		mentalHealth := db.DefaultScore
		var state db.GameState
		if err := gdb.Where("user_id = ?", card.UserID).First(&state).Error; err == nil {
			mentalHealth = state.MentalHealth
		}

		input := PostcardInput{
			EmotionTags:  diary.EmotionTags,
			Intensity:    diary.Intensity,
			MentalHealth: mentalHealth,
			DiaryContent: diary.Content,
			TriggerEvent: diary.TriggerEvent,
		}
		if card.HasAdventureResult() {
			input.Adventure = &AdventureSummary{DefeatedCount: card.MonstersDefeated, TotalMonsters: card.MonstersTotal}
		}

		content, err := s.author.Write(ctx, input)
		if err != nil {
			return err
		}

		now := s.now()
		updates := map[string]any{
			"scene_name":    content.SceneName,
			"location_name": content.LocationName,
			"message":       content.Message,
			"image_prompt":  content.ImagePrompt,
			"mental_health": mentalHealth,
			"emotion_tags":  diary.EmotionTags,
			"intensity":     diary.Intensity,
		}
		if content.UsedFallback || !s.imagesEnabled() {
			updates["status"] = db.PostcardStatusTextOnly
			updates["generated_at"] = now
		}
		if err := gdb.Model(&db.Postcard{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("save postcard text: %w", err)
		}
		card.ImagePrompt = content.ImagePrompt
		if content.UsedFallback || !s.imagesEnabled() {
			settled = true
			log.Printf("[明信片] postcard=%d 文字生成完成（fallback=%v），跳过图片", id, content.UsedFallback)
			return nil
		}
	}

	settled = true
	return s.attachImage(ctx, gdb, &card)
}

func (s *PostcardService) imagesEnabled() bool {
	return s.opts.GenerateImages && s.images != nil
}

// attachImage 生成图片并尽量保存到本地；图片失败时降级为 text_only。
func (s *PostcardService) attachImage(ctx context.Context, gdb *gorm.DB, card *db.Postcard) error {
	now := s.now()
	if !s.imagesEnabled() || card.ImagePrompt == "" {
		return s.finish(gdb, card.ID, map[string]any{"status": db.PostcardStatusTextOnly, "generated_at": now})
	}

	remote, err := s.images.GenerateImage(ctx, card.ImagePrompt)
	if err != nil {
		log.Printf("[明信片] postcard=%d 图片生成失败，降级为纯文字: %v", card.ID, err)
		return s.finish(gdb, card.ID, map[string]any{"status": db.PostcardStatusTextOnly, "generated_at": now})
	}

	imageURL := remote
	if s.store != nil {
		local, err := s.store.Save(ctx, remote, card.UserID, card.DiaryID)
		if err != nil {
			log.Printf("[明信片] postcard=%d 图片下载失败，暂用远程地址: %v", card.ID, err)
		} else {
			imageURL = local
			if card.ImageURL != "" && card.ImageURL != local {
				s.store.Remove(card.ImageURL)
			}
		}
	}

	return s.finish(gdb, card.ID, map[string]any{
		"status":           db.PostcardStatusCompleted,
		"image_url":        imageURL,
		"remote_image_url": remote,
		"generated_at":     now,
	})
}

func (s *PostcardService) finish(gdb *gorm.DB, id uint, updates map[string]any) error {
	if err := gdb.Model(&db.Postcard{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		s.markFailed(id)
		return fmt.Errorf("save postcard: %w", err)
	}
	log.Printf("[明信片] postcard=%d 生成结束，状态 %v", id, updates["status"])
	return nil
}

// markFailed 使用独立上下文，任务被取消时也能落状态。
func (s *PostcardService) markFailed(id uint) {
	err := s.db.Session(&gorm.Session{NewDB: true}).Model(&db.Postcard{}).
		Where("id = ? AND status = ?", id, db.PostcardStatusGenerating).
		Updates(map[string]any{"status": db.PostcardStatusFailed, "message": failedMessage}).Error
	if err != nil {
		log.Printf("[明信片] postcard=%d 标记失败状态出错: %v", id, err)
	}
}

// RegenerateImage 仅允许 text_only / failed 状态重新生成；
// 已有图片提示词时只重做图片，否则重做整张明信片。
func (s *PostcardService) RegenerateImage(ctx context.Context, userID, postcardID uint) (*PostcardView, error) {
	gdb := s.db.WithContext(ctx)
	card, err := findPostcard(gdb, userID, postcardID)
	if err != nil {
		return nil, err
	}

	switch card.Status {
	case db.PostcardStatusTextOnly, db.PostcardStatusFailed:
	default:
		return nil, fmt.Errorf("%w: cannot regenerate postcard in %s", ErrInvalidState, card.Status)
	}

	imageOnly := card.Status == db.PostcardStatusTextOnly && card.ImagePrompt != ""
	if err := s.claimAndSchedule(gdb, card.ID, card.Status, imageOnly); err != nil {
		return nil, err
	}

	card.Status = db.PostcardStatusGenerating
	return s.view(card), nil
}

// Get 按 ID 读取明信片。
func (s *PostcardService) Get(ctx context.Context, userID, postcardID uint) (*PostcardView, error) {
	card, err := findPostcard(s.db.WithContext(ctx), userID, postcardID)
	if err != nil {
		return nil, err
	}
	return s.view(card), nil
}

// GetByDiary 按日记读取明信片。
func (s *PostcardService) GetByDiary(ctx context.Context, userID, diaryID uint) (*PostcardView, error) {
	card, err := findPostcardByDiary(s.db.WithContext(ctx), userID, diaryID)
	if err != nil {
		return nil, err
	}
	return s.view(card), nil
}

// Latest 返回最近一张已生成的明信片。
func (s *PostcardService) Latest(ctx context.Context, userID uint) (*PostcardView, error) {
	var card db.Postcard
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, readyPostcardStatuses).
		Order("created_at DESC").Order("id DESC").
		First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostcardNotFound
		}
		return nil, fmt.Errorf("load latest postcard: %w", err)
	}
	return s.view(&card), nil
}

var readyPostcardStatuses = []string{db.PostcardStatusCompleted, db.PostcardStatusTextOnly}

// List 分页列出明信片，limit 上限 100。
func (s *PostcardService) List(ctx context.Context, userID uint, filter PostcardFilter) (*PostcardList, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > maxPostcardPageSize {
		limit = maxPostcardPageSize
	}
	offset := max(filter.Offset, 0)

	query := s.db.WithContext(ctx).Model(&db.Postcard{}).Where("user_id = ?", userID)
	if filter.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count postcards: %w", err)
	}

	var cards []db.Postcard
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("list postcards: %w", err)
	}

	unread, err := s.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &PostcardList{Items: make([]PostcardView, 0, len(cards)), Total: total, Unread: unread}
	for i := range cards {
		result.Items = append(result.Items, *s.view(&cards[i]))
	}
	return result, nil
}

// UnreadCount 统计已生成但未读的明信片。
func (s *PostcardService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&db.Postcard{}).
		Where("user_id = ? AND is_read = ? AND status IN ?", userID, false, readyPostcardStatuses).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count unread postcards: %w", err)
	}
	return count, nil
}

// MarkRead 标记已读，重复调用保持第一次的阅读时间。
func (s *PostcardService) MarkRead(ctx context.Context, userID, postcardID uint) (*PostcardView, error) {
	gdb := s.db.WithContext(ctx)
	card, err := findPostcard(gdb, userID, postcardID)
	if err != nil {
		return nil, err
	}
	if !card.IsRead {
		now := s.now()
		if err := gdb.Model(&db.Postcard{}).Where("id = ? AND is_read = ?", card.ID, false).
			Updates(map[string]any{"is_read": true, "read_at": now}).Error; err != nil {
			return nil, fmt.Errorf("mark postcard read: %w", err)
		}
		card, err = findPostcard(gdb, userID, postcardID)
		if err != nil {
			return nil, err
		}
	}
	return s.view(card), nil
}

func (s *PostcardService) view(card *db.Postcard) *PostcardView {
	ready := card.Status == db.PostcardStatusCompleted || card.Status == db.PostcardStatusTextOnly
	view := &PostcardView{Postcard: *card, Ready: ready}
	if ready {
		view.MessageHTML = s.renderer.Render(card.Message)
	}
	return view
}

func findPostcard(tx *gorm.DB, userID, postcardID uint) (*db.Postcard, error) {
	var card db.Postcard
	if err := tx.Where("id = ? AND user_id = ?", postcardID, userID).First(&card).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostcardNotFound
		}
		return nil, fmt.Errorf("load postcard: %w", err)
	}
	return &card, nil
}

func findPostcardByDiary(tx *gorm.DB, userID, diaryID uint) (*db.Postcard, error) {
	var card db.Postcard
	if err := tx.Where("user_id = ? AND diary_id = ?", userID, diaryID).First(&card).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostcardNotFound
		}
		return nil, fmt.Errorf("load postcard: %w", err)
	}
	return &card, nil
}
