package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/moodfox/internal/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// CoinsPerDefeat 每击败一只怪物获得的金币。
	CoinsPerDefeat = 15
	// AdventureBaseCoins 探险成功的基础金币。
	AdventureBaseCoins = 20
)

// PostcardRequester 探险成功后通知明信片流水线。
type PostcardRequester interface {
	RequestForAdventure(ctx context.Context, req AdventurePostcardRequest) error
}

// AdventurePostcardRequest 探险结算后携带给明信片的战绩。
type AdventurePostcardRequest struct {
	UserID        uint
	DiaryID       uint
	DefeatedCount int
	TotalMonsters int
	CoinsEarned   int
	StatChanges   ScoreDelta
}

// SubmitResult 单题作答结果。
type SubmitResult struct {
	Correct        bool           `json:"correct"`
	CorrectIDs     []string       `json:"correct_ids"`
	Explanation    string         `json:"explanation"`
	DefeatMessage  string         `json:"defeat_message,omitempty"`
	Reward         *MonsterReward `json:"reward,omitempty"`
	CoinsEarned    int            `json:"coins_earned"`
	ChallengeIndex int            `json:"challenge_index"`
	NextIndex      int            `json:"next_index"`
	IsLast         bool           `json:"is_last"`
}

// SettlementResult 探险结算结果。
type SettlementResult struct {
	Session             *db.AdventureSession `json:"session"`
	Success             bool                 `json:"success"`
	DefeatedCount       int                  `json:"defeated_count"`
	TotalMonsters       int                  `json:"total_monsters"`
	CoinsEarned         int                  `json:"coins_earned"`
	StatChanges         ScoreDelta           `json:"stat_changes"`
	ItemsEarned         []string             `json:"items_earned"`
	ScoreAlreadyApplied bool                 `json:"score_already_applied"`
	LevelUp             bool                 `json:"level_up"`
	NewLevel            int                  `json:"new_level"`
	LevelBonus          int                  `json:"level_bonus"`
	CanRetry            bool                 `json:"can_retry"`
	State               *db.GameState        `json:"state,omitempty"`
}

// AdventureService 探险会话状态机：
// generating → pending → in_progress → completed | failed，failed 可重试回到 pending，
// pending / in_progress 可跳过进入 skipped。
type AdventureService struct {
	db           *gorm.DB
	ledger       *LedgerService
	author       *ChallengeAuthor
	catalog      *MonsterCatalog
	scheduler    Scheduler
	postcards    PostcardRequester
	placeholders placeholderGroup
	now          func() time.Time
}

// NewAdventureService 构造 AdventureService。
func NewAdventureService(gdb *gorm.DB, ledger *LedgerService, author *ChallengeAuthor, catalog *MonsterCatalog, scheduler Scheduler) *AdventureService {
	if catalog == nil {
		catalog = DefaultMonsterCatalog()
	}
	return &AdventureService{
		db:           gdb,
		ledger:       ledger,
		author:       author,
		catalog:      catalog,
		scheduler:    scheduler,
		placeholders: placeholderGroup{kind: "adventure"},
		now:          time.Now,
	}
}

// SetPostcardRequester 注入明信片流水线，未设置时结算不会触发明信片。
func (s *AdventureService) SetPostcardRequester(r PostcardRequester) {
	s.postcards = r
}

// GetOrCreateSession 返回日记对应的探险会话，不存在时创建占位记录并在后台出题。
func (s *AdventureService) GetOrCreateSession(ctx context.Context, userID, diaryID uint) (*db.AdventureSession, bool, error) {
	diary, err := findDiary(s.db.WithContext(ctx), userID, diaryID)
	if err != nil {
		return nil, false, err
	}
	return s.PrepareSession(ctx, diary)
}

// PrepareSession 为日记创建探险占位记录并调度出题任务，已存在时直接返回。
func (s *AdventureService) PrepareSession(ctx context.Context, diary *db.Diary) (*db.AdventureSession, bool, error) {
	gdb := s.db.WithContext(ctx)

	res, err := s.placeholders.do(diary.UserID, diary.ID, func() (placeholderResult, error) {
		var existing db.AdventureSession
		err := gdb.Where("user_id = ? AND diary_id = ?", diary.UserID, diary.ID).First(&existing).Error
		if err == nil {
			return placeholderResult{ID: existing.ID}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return placeholderResult{}, fmt.Errorf("load adventure session: %w", err)
		}

		positive := IsPositiveMood(diary.EmotionTags, diary.Intensity)
		session := db.AdventureSession{
			UserID:     diary.UserID,
			DiaryID:    diary.ID,
			Status:     db.AdventureStatusGenerating,
			SceneName:  s.catalog.PickScene(positive),
			IsPositive: positive,
		}
		if err := gdb.Create(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				if err := gdb.Where("user_id = ? AND diary_id = ?", diary.UserID, diary.ID).First(&existing).Error; err == nil {
					return placeholderResult{ID: existing.ID}, nil
				}
			}
			return placeholderResult{}, fmt.Errorf("create adventure placeholder: %w", err)
		}

		sessionID := session.ID
		if err := s.scheduler.Submit("challenge", func(taskCtx context.Context) error {
			return s.generateChallenges(taskCtx, sessionID)
		}); err != nil {
			log.Printf("[探险预生成] session=%d 调度失败，删除占位记录: %v", sessionID, err)
			gdb.Delete(&db.AdventureSession{}, sessionID)
			return placeholderResult{}, fmt.Errorf("schedule challenge generation: %w", err)
		}
		log.Printf("[探险预生成] diary=%d session=%d 已创建占位记录并提交出题任务", diary.ID, sessionID)
		return placeholderResult{ID: sessionID, Created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}

	var session db.AdventureSession
	if err := gdb.First(&session, res.ID).Error; err != nil {
		return nil, false, fmt.Errorf("reload adventure session: %w", err)
	}
	return &session, res.Created, nil
}

// generateChallenges 后台出题任务；失败时删除占位记录，用户可重新触发。
func (s *AdventureService) generateChallenges(ctx context.Context, sessionID uint) error {
	gdb := scopedDB(s.db, ctx)

	var session db.AdventureSession
	if err := gdb.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("load adventure session: %w", err)
	}
	if session.Status != db.AdventureStatusGenerating {
		return nil
	}

	var diary db.Diary
	if err := gdb.First(&diary, session.DiaryID).Error; err != nil {
		s.dropPlaceholder(sessionID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("load diary: %w", err)
	}

	set, err := s.author.Author(ctx, ChallengeInput{
		DiaryContent: diary.Content,
		EmotionTags:  diary.EmotionTags,
		Intensity:    diary.Intensity,
		TriggerEvent: diary.TriggerEvent,
		IsPositive:   session.IsPositive,
	})
	if err != nil {
		s.dropPlaceholder(sessionID)
		return err
	}

	res := gdb.Model(&db.AdventureSession{}).
		Where("id = ? AND status = ?", sessionID, db.AdventureStatusGenerating).
		Updates(map[string]any{
			"status":        db.AdventureStatusPending,
			"scene_name":    set.SceneName,
			"challenges":    datatypes.JSONSlice[db.Challenge](set.Challenges),
			"monsters":      datatypes.JSONSlice[db.Monster](set.Monsters),
			"used_fallback": set.UsedFallback,
		})
	if res.Error != nil {
		s.dropPlaceholder(sessionID)
		return fmt.Errorf("save challenges: %w", res.Error)
	}
	log.Printf("[探险预生成] session=%d 出题完成，共 %d 题，fallback=%v", sessionID, len(set.Challenges), set.UsedFallback)
	return nil
}

// dropPlaceholder 使用独立上下文，任务被取消时也能清理。
func (s *AdventureService) dropPlaceholder(sessionID uint) {
	if err := s.db.Session(&gorm.Session{NewDB: true}).
		Where("id = ? AND status = ?", sessionID, db.AdventureStatusGenerating).
		Delete(&db.AdventureSession{}).Error; err != nil {
		log.Printf("[探险预生成] session=%d 删除占位记录失败: %v", sessionID, err)
	}
}

// GetSession 读取属于该用户的会话。
func (s *AdventureService) GetSession(ctx context.Context, userID, sessionID uint) (*db.AdventureSession, error) {
	return findSession(s.db.WithContext(ctx), userID, sessionID)
}

// StartSession pending → in_progress。
func (s *AdventureService) StartSession(ctx context.Context, userID, sessionID uint) (*db.AdventureSession, error) {
	var session *db.AdventureSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = findSession(tx, userID, sessionID)
		if err != nil {
			return err
		}
		if session.Status != db.AdventureStatusPending {
			return fmt.Errorf("%w: cannot start session in %s", ErrInvalidState, session.Status)
		}
		now := s.now()
		session.Status = db.AdventureStatusInProgress
		session.StartedAt = &now
		return saveSession(tx, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SubmitAnswer 提交当前题目的答案，无论对错游标都前进一格。
func (s *AdventureService) SubmitAnswer(ctx context.Context, userID, sessionID uint, answers []string) (*SubmitResult, error) {
	var result *SubmitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := findSession(tx, userID, sessionID)
		if err != nil {
			return err
		}
		if session.Status != db.AdventureStatusInProgress {
			return fmt.Errorf("%w: cannot answer in %s", ErrInvalidState, session.Status)
		}
		idx := session.CurrentChallenge
		if idx < 0 || idx >= len(session.Challenges) {
			return fmt.Errorf("%w: no remaining challenge", ErrInvalidState)
		}

		challenge := &session.Challenges[idx]
		chosen := normalizeAnswerIDs(answers)
		correct := slices.Equal(chosen, normalizeAnswerIDs(challenge.CorrectIDs))

		challenge.Completed = true
		challenge.UserAnswers = chosen
		challenge.IsCorrect = correct
		if idx < len(session.Monsters) {
			session.Monsters[idx].Defeated = correct
		}
		session.CurrentChallenge = idx + 1

		if err := saveSession(tx, session); err != nil {
			return err
		}

		result = &SubmitResult{
			Correct:        correct,
			CorrectIDs:     challenge.CorrectIDs,
			Explanation:    challenge.Explanation,
			ChallengeIndex: idx,
			NextIndex:      session.CurrentChallenge,
			IsLast:         session.CurrentChallenge >= len(session.Challenges),
		}
		if correct {
			profile := s.catalog.Resolve(challenge.MonsterType, session.IsPositive)
			reward := profile.Reward
			result.Reward = &reward
			result.DefeatMessage = profile.DefeatMessage
			result.CoinsEarned = CoinsPerDefeat
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CompleteSession 结算探险。至少击败一只怪物即为成功；
// 成功时金币、状态值、背包与日记结算标记在同一事务中写入。
func (s *AdventureService) CompleteSession(ctx context.Context, userID, sessionID uint) (*SettlementResult, error) {
	var result *SettlementResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := findSession(tx, userID, sessionID)
		if err != nil {
			return err
		}
		if session.Status != db.AdventureStatusInProgress {
			return fmt.Errorf("%w: cannot complete session in %s", ErrInvalidState, session.Status)
		}

		now := s.now()
		session.CompletedAt = &now
		defeated := session.DefeatedCount()
		result = &SettlementResult{
			Session:       session,
			DefeatedCount: defeated,
			TotalMonsters: len(session.Monsters),
		}

		if defeated == 0 {
			session.Status = db.AdventureStatusFailed
			session.CoinsEarned = 0
			result.CanRetry = true
			return saveSession(tx, session)
		}

		coins := AdventureBaseCoins + CoinsPerDefeat*defeated
		var stats ScoreDelta
		var defeatedProfiles []MonsterProfile
		for _, monster := range session.Monsters {
			if !monster.Defeated {
				continue
			}
			profile := s.catalog.Resolve(monster.Type, session.IsPositive)
			delta := profile.Reward.Delta()
			stats.MentalHealth += delta.MentalHealth
			stats.Stress += delta.Stress
			stats.Growth += delta.Growth
			defeatedProfiles = append(defeatedProfiles, profile)
		}

		items := make([]string, 0, len(defeatedProfiles))
		for _, profile := range defeatedProfiles {
			if name := profile.ItemName(); !slices.Contains(items, name) {
				items = append(items, name)
			}
		}

		session.Status = db.AdventureStatusCompleted
		session.CoinsEarned = coins
		session.ItemsEarned = items
		session.MentalChange = stats.MentalHealth
		session.StressChange = stats.Stress
		session.GrowthChange = stats.Growth

		result.Success = true
		result.CoinsEarned = coins
		result.StatChanges = stats
		result.ItemsEarned = items

		applied, err := markScoreApplied(tx, userID, session.DiaryID)
		if err != nil {
			return err
		}
		if !applied {
			result.ScoreAlreadyApplied = true
			return saveSession(tx, session)
		}

		ledger, err := s.ledger.applyDeltaTx(tx, userID, Delta{
			MentalHealth: stats.MentalHealth,
			Stress:       stats.Stress,
			Growth:       stats.Growth,
			Coins:        coins,
			CountDiary:   true,
		})
		if err != nil {
			return err
		}
		result.LevelUp = ledger.LevelUp
		result.NewLevel = ledger.NewLevel
		result.LevelBonus = ledger.LevelBonus
		result.State = &ledger.State

		for _, profile := range defeatedProfiles {
			if err := s.grantItem(tx, userID, profile); err != nil {
				return err
			}
		}
		return saveSession(tx, session)
	})
	if err != nil {
		return nil, err
	}

	if result.Success && s.postcards != nil {
		if err := s.postcards.RequestForAdventure(ctx, AdventurePostcardRequest{
			UserID:        userID,
			DiaryID:       result.Session.DiaryID,
			DefeatedCount: result.DefeatedCount,
			TotalMonsters: result.TotalMonsters,
			CoinsEarned:   result.CoinsEarned,
			StatChanges:   result.StatChanges,
		}); err != nil {
			log.Printf("[探险结算] session=%d 通知明信片失败: %v", sessionID, err)
		}
	}
	return result, nil
}

// grantItem 背包物品数量 +1，(user_id, item_name) 冲突时累加。
func (s *AdventureService) grantItem(tx *gorm.DB, userID uint, monster MonsterProfile) error {
	item := db.UserItem{
		UserID:      userID,
		ItemName:    monster.ItemName(),
		DisplayName: monster.ItemDisplayName(),
		EffectType:  monster.Reward.Type,
		EffectValue: monster.Reward.Value,
		Quantity:    1,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "item_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":   gorm.Expr("quantity + ?", 1),
			"updated_at": s.now(),
		}),
	}).Create(&item).Error; err != nil {
		return fmt.Errorf("grant item %s: %w", item.ItemName, err)
	}
	return nil
}

// RetrySession failed → pending，保留题目，清空作答与奖励。
func (s *AdventureService) RetrySession(ctx context.Context, userID, sessionID uint) (*db.AdventureSession, error) {
	var session *db.AdventureSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = findSession(tx, userID, sessionID)
		if err != nil {
			return err
		}
		if session.Status != db.AdventureStatusFailed {
			return fmt.Errorf("%w: cannot retry session in %s", ErrInvalidState, session.Status)
		}

		for i := range session.Challenges {
			session.Challenges[i].Completed = false
			session.Challenges[i].UserAnswers = nil
			session.Challenges[i].IsCorrect = false
		}
		for i := range session.Monsters {
			session.Monsters[i].Defeated = false
		}
		session.Status = db.AdventureStatusPending
		session.CurrentChallenge = 0
		session.CoinsEarned = 0
		session.ItemsEarned = nil
		session.MentalChange = 0
		session.StressChange = 0
		session.GrowthChange = 0
		session.StartedAt = nil
		session.CompletedAt = nil
		return saveSession(tx, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SkipSession pending / in_progress → skipped，不发放任何奖励。
func (s *AdventureService) SkipSession(ctx context.Context, userID, sessionID uint) (*db.AdventureSession, error) {
	var session *db.AdventureSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = findSession(tx, userID, sessionID)
		if err != nil {
			return err
		}
		switch session.Status {
		case db.AdventureStatusPending, db.AdventureStatusInProgress:
		default:
			return fmt.Errorf("%w: cannot skip session in %s", ErrInvalidState, session.Status)
		}
		now := s.now()
		session.Status = db.AdventureStatusSkipped
		session.CompletedAt = &now
		return saveSession(tx, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ListItems 返回用户背包。
func (s *AdventureService) ListItems(ctx context.Context, userID uint) ([]db.UserItem, error) {
	var items []db.UserItem
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("item_name ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func findSession(tx *gorm.DB, userID, sessionID uint) (*db.AdventureSession, error) {
	var session db.AdventureSession
	if err := tx.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load adventure session: %w", err)
	}
	return &session, nil
}

func saveSession(tx *gorm.DB, session *db.AdventureSession) error {
	if err := tx.Save(session).Error; err != nil {
		return fmt.Errorf("save adventure session: %w", err)
	}
	return nil
}

// normalizeAnswerIDs 去重排序，作为集合比较。
func normalizeAnswerIDs(ids []string) []string {
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || slices.Contains(result, id) {
			continue
		}
		result = append(result, id)
	}
	slices.Sort(result)
	return result
}
