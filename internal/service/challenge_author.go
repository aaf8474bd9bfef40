package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/moodfox/internal/db"
)

const maxChallengesPerSession = 4

const challengeSystemPrompt = `你是一个认知行为疗法（CBT）游戏设计师，根据用户的情绪日记设计探险挑战题目。
每道题对应一只怪物，用户选出正确选项即可击败它。只输出 JSON，不要添加任何注释。`

// ChallengeInput 出题所需的日记信息。
type ChallengeInput struct {
	DiaryContent string
	EmotionTags  []string
	Intensity    int
	TriggerEvent string
	IsPositive   bool
}

// ChallengeSet 一组挑战与对应的怪物，两者按下标一一对应。
type ChallengeSet struct {
	SceneName    string
	Monsters     []db.Monster
	Challenges   []db.Challenge
	UsedFallback bool
}

type challengePayload struct {
	SceneName string `json:"scene_name"`
	Monsters  []struct {
		Type        string `json:"type"`
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"monsters"`
	Challenges []struct {
		Type              string               `json:"type"`
		MonsterType       string               `json:"monster_type"`
		DistortionThought string               `json:"distortion_thought"`
		Question          string               `json:"question"`
		Instruction       string               `json:"instruction"`
		Options           []db.ChallengeOption `json:"options"`
		Explanation       string               `json:"explanation"`
	} `json:"challenges"`
}

// ChallengeAuthor 调用 AI 出题，失败时可退回预设题目。
type ChallengeAuthor struct {
	text    TextGenerator
	catalog *MonsterCatalog
	opts    GenerationOptions
}

// NewChallengeAuthor 构造 ChallengeAuthor。
func NewChallengeAuthor(text TextGenerator, catalog *MonsterCatalog, opts GenerationOptions) *ChallengeAuthor {
	if catalog == nil {
		catalog = DefaultMonsterCatalog()
	}
	return &ChallengeAuthor{text: text, catalog: catalog, opts: opts}
}

// Author 生成一组挑战。
func (a *ChallengeAuthor) Author(ctx context.Context, input ChallengeInput) (ChallengeSet, error) {
	var aiErr error
	if a.text != nil {
		set, err := a.authorWithAI(ctx, input)
		if err == nil {
			return set, nil
		}
		aiErr = err
		log.Printf("[探险出题] AI 出题失败: %v", err)
	} else {
		aiErr = fmt.Errorf("%w: text generator not configured", ErrProviderFailure)
	}

	if !a.opts.TemplateFallback {
		return ChallengeSet{}, aiErr
	}
	return templateChallengeSet(a.catalog, input), nil
}

func (a *ChallengeAuthor) authorWithAI(ctx context.Context, input ChallengeInput) (ChallengeSet, error) {
	system, user := buildChallengePrompt(a.catalog, input)

	var set ChallengeSet
	err := generateJSON(ctx, a.text, a.opts.retry(), TextRequest{
		Kind:         "CHALLENGE",
		SystemPrompt: system,
		UserPrompt:   user,
		MaxTokens:    2048,
		Temperature:  0.7,
	}, []string{"challenges"}, func(data []byte) error {
		var payload challengePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("%w: %v", ErrParseFailure, err)
		}
		normalized, err := a.normalize(payload, input.IsPositive)
		if err != nil {
			return err
		}
		set = normalized
		return nil
	})
	return set, err
}

// normalize 校验并整理 AI 返回的题目：补齐选项 ID、根据 is_correct 推导正确答案、
// 为每道题配一只图鉴中的怪物。
func (a *ChallengeAuthor) normalize(payload challengePayload, positive bool) (ChallengeSet, error) {
	names := make(map[string]string, len(payload.Monsters))
	for _, m := range payload.Monsters {
		if name := strings.TrimSpace(m.Name); name != "" {
			names[strings.TrimSpace(m.Type)] = name
		}
	}

	set := ChallengeSet{SceneName: strings.TrimSpace(payload.SceneName)}
	for idx, raw := range payload.Challenges {
		if len(set.Challenges) == maxChallengesPerSession {
			break
		}
		question := strings.TrimSpace(raw.Question)
		if question == "" {
			log.Printf("[探险出题] 跳过第 %d 题：题干为空", idx+1)
			continue
		}
		options := normalizeOptions(raw.Options)
		correct := correctOptionIDs(options)
		if len(options) < 2 || len(correct) == 0 {
			log.Printf("[探险出题] 跳过第 %d 题：选项无效", idx+1)
			continue
		}

		profile := a.catalog.Resolve(raw.MonsterType, positive)
		name := names[strings.TrimSpace(raw.MonsterType)]
		if name == "" {
			name = profile.Name
		}
		kind := strings.TrimSpace(raw.Type)
		if kind == "" {
			kind = profile.ChallengeType
		}

		set.Challenges = append(set.Challenges, db.Challenge{
			Type:              kind,
			MonsterType:       profile.Type,
			DistortionThought: strings.TrimSpace(raw.DistortionThought),
			Question:          question,
			Instruction:       orDefault(raw.Instruction, "选择正确答案"),
			Options:           options,
			CorrectIDs:        correct,
			Explanation:       strings.TrimSpace(raw.Explanation),
		})
		set.Monsters = append(set.Monsters, db.Monster{
			Type:        profile.Type,
			Name:        name,
			Description: profile.Description,
		})
	}

	if len(set.Challenges) == 0 {
		return ChallengeSet{}, fmt.Errorf("%w: no usable challenges", ErrParseFailure)
	}
	if set.SceneName == "" {
		set.SceneName = a.catalog.PickScene(positive)
	}
	return set, nil
}

// normalizeOptions 去掉空选项，缺失或重复的 ID 按 a、b、c… 重新编号。
func normalizeOptions(options []db.ChallengeOption) []db.ChallengeOption {
	result := make([]db.ChallengeOption, 0, len(options))
	for _, option := range options {
		text := strings.TrimSpace(option.Text)
		if text == "" {
			continue
		}
		result = append(result, db.ChallengeOption{
			ID:        strings.ToLower(strings.TrimSpace(option.ID)),
			Text:      text,
			IsCorrect: option.IsCorrect,
		})
	}

	seen := make(map[string]bool, len(result))
	valid := true
	for _, option := range result {
		if option.ID == "" || seen[option.ID] {
			valid = false
			break
		}
		seen[option.ID] = true
	}
	if !valid {
		for i := range result {
			result[i].ID = string(rune('a' + i))
		}
	}
	return result
}

func correctOptionIDs(options []db.ChallengeOption) []string {
	ids := make([]string, 0, len(options))
	for _, option := range options {
		if option.IsCorrect {
			ids = append(ids, option.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

func buildChallengePrompt(catalog *MonsterCatalog, input ChallengeInput) (string, string) {
	score := clampIntensity(input.Intensity) * 10

	var builder strings.Builder
	builder.WriteString("## 用户日记信息\n")
	fmt.Fprintf(&builder, "- 情绪标签：%s\n", joinTags(input.EmotionTags))
	if input.IsPositive {
		fmt.Fprintf(&builder, "- 情绪分数：%d/100（正面情绪）\n", score)
	} else {
		fmt.Fprintf(&builder, "- 情绪分数：%d/100（负面情绪）\n", score)
	}
	fmt.Fprintf(&builder, "- 触发事件：%s\n", orDefault(input.TriggerEvent, "未提及"))
	fmt.Fprintf(&builder, "- 日记内容：%s\n\n", strings.TrimSpace(input.DiaryContent))

	builder.WriteString("## 你的任务\n")
	if input.IsPositive {
		builder.WriteString("用户今天心情不错，请设计正向强化的挑战，帮助用户肯定自己、感恩生活、建立自信。\n")
		builder.WriteString("正确选项肯定自己，错误选项否定自己或淡化成就。\n\n")
	} else {
		builder.WriteString("用户今天情绪低落，请设计消除认知扭曲的挑战，帮助用户识别负面自动化思维，用更平衡的视角看待事情。\n")
		builder.WriteString("正确选项客观看待事情，错误选项是认知扭曲或自我否定。\n\n")
	}

	builder.WriteString("## 可选怪物（monster_type）\n")
	types := make([]string, 0, len(catalog.monsters))
	for key, profile := range catalog.monsters {
		if (profile.Polarity == "positive") == input.IsPositive {
			types = append(types, key)
		}
	}
	slices.Sort(types)
	for _, key := range types {
		profile := catalog.monsters[key]
		fmt.Fprintf(&builder, "- %s（%s）：%s\n", key, profile.Name, profile.Description)
	}

	builder.WriteString("\n## 输出格式\n")
	builder.WriteString(`生成 3 道题，每道题对应一只怪物，选项 3-4 个，至少一个正确：
{
  "scene_name": "场景名称",
  "monsters": [{"type": "怪物类型", "name": "怪物名", "description": "一句话描述"}],
  "challenges": [
    {
      "type": "evidence | reframe",
      "monster_type": "怪物类型",
      "distortion_thought": "日记中的自动化想法，可为空",
      "question": "基于日记内容的问题",
      "instruction": "答题提示",
      "options": [{"id": "a", "text": "选项", "is_correct": true}],
      "explanation": "温暖的 CBT 洞见"
    }
  ]
}
`)
	return challengeSystemPrompt, builder.String()
}
