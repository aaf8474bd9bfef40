package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/moodfox/internal/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxAnalysisScoreChange = 10
	minAnalysisCoins       = 10
	maxAnalysisCoins       = 100
)

var analysisRequiredKeys = []string{
	"score_changes.mental_health_change",
	"score_changes.stress_level_change",
	"score_changes.growth_potential_change",
	"rewards.coins_earned",
}

const analysisSystemPrompt = `你是一位温暖的认知行为疗法（CBT）陪伴者，也是情绪日记游戏的数值策划。
你会阅读用户的情绪日记，给出简短的回应，并按规则给出游戏数值变化。
只输出 JSON，不要输出其他内容。`

// AnalysisResult 一次分析的结果；AlreadyApplied 为 true 时其余字段为空。
type AnalysisResult struct {
	DiaryID        uint          `json:"diary_id"`
	AlreadyApplied bool          `json:"already_applied"`
	ScoreDelta     ScoreDelta    `json:"score_delta"`
	CoinsEarned    int           `json:"coins_earned"`
	LevelUp        bool          `json:"level_up"`
	NewLevel       int           `json:"new_level"`
	LevelBonus     int           `json:"level_bonus"`
	UserMessage    string        `json:"user_message"`
	OverallEmotion string        `json:"overall_emotion"`
	UsedFallback   bool          `json:"used_fallback"`
	State          *db.GameState `json:"state,omitempty"`
}

type analysisPayload struct {
	OverallEmotion string `json:"overall_emotion"`
	ScoreChanges   struct {
		MentalHealthChange    float64 `json:"mental_health_change"`
		StressLevelChange     float64 `json:"stress_level_change"`
		GrowthPotentialChange float64 `json:"growth_potential_change"`
	} `json:"score_changes"`
	Rewards struct {
		CoinsEarned float64 `json:"coins_earned"`
	} `json:"rewards"`
	UserMessage string `json:"user_message"`
}

// AnalysisService 对日记做情绪分析并且只结算一次。
type AnalysisService struct {
	db     *gorm.DB
	ledger *LedgerService
	text   TextGenerator
	opts   GenerationOptions
}

// NewAnalysisService 构造 AnalysisService，text 为 nil 时始终使用本地规则。
func NewAnalysisService(gdb *gorm.DB, ledger *LedgerService, text TextGenerator, opts GenerationOptions) *AnalysisService {
	return &AnalysisService{db: gdb, ledger: ledger, text: text, opts: opts}
}

// Analyze 分析日记并结算分数。
// AI 调用放在事务之外；事务内通过 score_applied 的比较并交换保证并发下只结算一次。
func (s *AnalysisService) Analyze(ctx context.Context, userID, diaryID uint) (*AnalysisResult, error) {
	gdb := s.db.WithContext(ctx)

	diary, err := findDiary(gdb, userID, diaryID)
	if err != nil {
		return nil, err
	}
	if diary.ScoreApplied {
		return &AnalysisResult{DiaryID: diary.ID, AlreadyApplied: true}, nil
	}

	state, err := s.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	result, raw := s.score(ctx, diary, state)

	err = gdb.Transaction(func(tx *gorm.DB) error {
		applied, err := markScoreApplied(tx, userID, diary.ID)
		if err != nil {
			return err
		}
		if !applied {
			result = &AnalysisResult{DiaryID: diary.ID, AlreadyApplied: true}
			return nil
		}

		ledger, err := s.ledger.applyDeltaTx(tx, userID, Delta{
			MentalHealth: result.ScoreDelta.MentalHealth,
			Stress:       result.ScoreDelta.Stress,
			Growth:       result.ScoreDelta.Growth,
			Coins:        result.CoinsEarned,
			CountDiary:   true,
		})
		if err != nil {
			return err
		}
		result.LevelUp = ledger.LevelUp
		result.NewLevel = ledger.NewLevel
		result.LevelBonus = ledger.LevelBonus
		result.State = &ledger.State

		if err := tx.Model(&db.Diary{}).Where("id = ?", diary.ID).
			Update("analysis_status", db.AnalysisStatusCompleted).Error; err != nil {
			return fmt.Errorf("update analysis status: %w", err)
		}

		record := db.DiaryAnalysis{
			DiaryID:        diary.ID,
			UserID:         userID,
			OverallEmotion: result.OverallEmotion,
			UsedFallback:   result.UsedFallback,
			Payload:        datatypes.JSON(raw),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "diary_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"overall_emotion", "used_fallback", "payload", "updated_at"}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("save diary analysis: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply analysis: %w", err)
	}

	return result, nil
}

// score 计算分数变化，AI 失败时回退到本地规则，不会返回错误。
func (s *AnalysisService) score(ctx context.Context, diary *db.Diary, state *db.GameState) (*AnalysisResult, []byte) {
	if s.text != nil {
		system, user := buildAnalysisPrompt(diary, state)
		var payload analysisPayload
		var raw []byte
		err := generateJSON(ctx, s.text, s.opts.retry(), TextRequest{
			Kind:         "ANALYSIS",
			SystemPrompt: system,
			UserPrompt:   user,
			MaxTokens:    800,
			Temperature:  0.3,
		}, analysisRequiredKeys, func(data []byte) error {
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("%w: %v", ErrParseFailure, err)
			}
			raw = data
			return nil
		})
		if err == nil {
			return &AnalysisResult{
				DiaryID: diary.ID,
				ScoreDelta: ScoreDelta{
					MentalHealth: clampScoreChange(payload.ScoreChanges.MentalHealthChange),
					Stress:       clampScoreChange(payload.ScoreChanges.StressLevelChange),
					Growth:       clampScoreChange(payload.ScoreChanges.GrowthPotentialChange),
				},
				CoinsEarned:    clampInt(int(math.Round(payload.Rewards.CoinsEarned)), minAnalysisCoins, maxAnalysisCoins),
				UserMessage:    strings.TrimSpace(payload.UserMessage),
				OverallEmotion: strings.TrimSpace(payload.OverallEmotion),
			}, raw
		}
		log.Printf("[情绪分析] diary=%d AI 分析失败，使用本地规则: %v", diary.ID, err)
	}

	delta, coins := FallbackScore(diary.EmotionTags, diary.Intensity)
	polarity := EmotionPolarity(diary.EmotionTags)
	result := &AnalysisResult{
		DiaryID:        diary.ID,
		ScoreDelta:     delta,
		CoinsEarned:    coins,
		UserMessage:    fallbackAnalysisMessage(polarity),
		OverallEmotion: polarity.String(),
		UsedFallback:   true,
	}
	raw, _ := json.Marshal(map[string]any{
		"source":          "fallback",
		"overall_emotion": result.OverallEmotion,
		"score_changes":   delta,
		"coins_earned":    coins,
	})
	return result, raw
}

func clampScoreChange(value float64) int {
	return clampInt(int(math.Round(value)), -maxAnalysisScoreChange, maxAnalysisScoreChange)
}

func fallbackAnalysisMessage(polarity Polarity) string {
	switch polarity {
	case PolarityPositive:
		return "小橘感受到了你今天的好心情，把这份开心好好收藏起来吧！"
	case PolarityNegative:
		return "谢谢你愿意把难过写下来，小橘一直陪着你，慢慢来就好。"
	default:
		return "记录本身就是照顾自己的开始，小橘为你骄傲。"
	}
}

func buildAnalysisPrompt(diary *db.Diary, state *db.GameState) (string, string) {
	var builder strings.Builder
	builder.WriteString("## 用户日记\n")
	fmt.Fprintf(&builder, "- 情绪标签：%s\n", joinTags(diary.EmotionTags))
	fmt.Fprintf(&builder, "- 情绪强度：%d/10\n", clampIntensity(diary.Intensity))
	fmt.Fprintf(&builder, "- 触发事件：%s\n", orDefault(diary.TriggerEvent, "未提及"))
	fmt.Fprintf(&builder, "- 日记内容：%s\n\n", strings.TrimSpace(diary.Content))

	builder.WriteString("## 当前状态\n")
	fmt.Fprintf(&builder, "- 心理健康：%d/100\n", state.MentalHealth)
	fmt.Fprintf(&builder, "- 压力值：%d/100\n", state.Stress)
	fmt.Fprintf(&builder, "- 成长潜力：%d/100\n\n", state.GrowthPotential)

	builder.WriteString("## 输出格式\n")
	builder.WriteString(`{
  "overall_emotion": "positive | negative | neutral",
  "score_changes": {
    "mental_health_change": -10 到 10 的整数,
    "stress_level_change": -10 到 10 的整数,
    "growth_potential_change": -10 到 10 的整数
  },
  "rewards": {"coins_earned": 10 到 100 的整数},
  "user_message": "给用户的一两句温暖回应"
}
`)
	builder.WriteString("\n记录情绪本身值得奖励，金币不少于 10。")
	return analysisSystemPrompt, builder.String()
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return "未知"
	}
	return strings.Join(tags, "、")
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

// findDiary 读取属于该用户的日记。
func findDiary(tx *gorm.DB, userID, diaryID uint) (*db.Diary, error) {
	var diary db.Diary
	if err := tx.Where("id = ? AND user_id = ?", diaryID, userID).First(&diary).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDiaryNotFound
		}
		return nil, fmt.Errorf("load diary: %w", err)
	}
	return &diary, nil
}

// markScoreApplied 将 score_applied 从 false 置为 true，返回是否由本次调用完成。
func markScoreApplied(tx *gorm.DB, userID, diaryID uint) (bool, error) {
	res := tx.Model(&db.Diary{}).
		Where("id = ? AND user_id = ? AND score_applied = ?", diaryID, userID, false).
		Update("score_applied", true)
	if res.Error != nil {
		return false, fmt.Errorf("mark score applied: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
