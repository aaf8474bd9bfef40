package service

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Polarity 表示一组情绪标签的整体倾向。
type Polarity int

const (
	PolarityNeutral Polarity = iota
	PolarityPositive
	PolarityNegative
)

func (p Polarity) String() string {
	switch p {
	case PolarityPositive:
		return "positive"
	case PolarityNegative:
		return "negative"
	default:
		return "neutral"
	}
}

var positiveEmotions = newEmotionSet(
	"开心", "快乐", "高兴", "兴奋", "满足", "感恩", "感激", "平静", "放松", "自豪",
	"期待", "希望", "幸福", "喜悦", "温暖", "感动", "安心", "充实",
	"happy", "joyful", "excited", "grateful", "calm", "relaxed", "proud",
	"hopeful", "content", "peaceful", "loved", "satisfied",
)

var negativeEmotions = newEmotionSet(
	"焦虑", "难过", "悲伤", "伤心", "愤怒", "生气", "沮丧", "失望", "孤独", "害怕",
	"恐惧", "紧张", "烦躁", "疲惫", "委屈", "内疚", "羞愧", "压力", "无助", "迷茫",
	"anxious", "anxiety", "sad", "angry", "frustrated", "lonely", "afraid", "scared",
	"stressed", "tired", "guilty", "ashamed", "upset", "worried", "depressed", "nervous",
)

type emotionSet map[string]struct{}

func newEmotionSet(tags ...string) emotionSet {
	set := make(emotionSet, len(tags))
	for _, tag := range tags {
		set[normalizeEmotionTag(tag)] = struct{}{}
	}
	return set
}

func (s emotionSet) has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// normalizeEmotionTag 统一全角/半角与大小写，便于匹配中英文标签。
func normalizeEmotionTag(tag string) string {
	folded := cases.Fold().String(norm.NFKC.String(tag))
	return strings.TrimSpace(folded)
}

// NormalizeEmotionTags 去重并清理空标签，保留原始写法。
func NormalizeEmotionTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		display := strings.TrimSpace(norm.NFKC.String(tag))
		key := normalizeEmotionTag(display)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, display)
	}
	return result
}

// EmotionPolarity 统计正负情绪标签数量，判断整体倾向。
func EmotionPolarity(tags []string) Polarity {
	positive, negative := 0, 0
	for _, tag := range tags {
		key := normalizeEmotionTag(tag)
		switch {
		case positiveEmotions.has(key):
			positive++
		case negativeEmotions.has(key):
			negative++
		}
	}
	switch {
	case positive > negative:
		return PolarityPositive
	case negative > positive:
		return PolarityNegative
	default:
		return PolarityNeutral
	}
}

// IsPositiveMood 决定探险使用正向强化还是认知重构题目。
// 标签无法判断倾向时，按情绪分数 intensity*10 >= 50 处理。
func IsPositiveMood(tags []string, intensity int) bool {
	switch EmotionPolarity(tags) {
	case PolarityPositive:
		return true
	case PolarityNegative:
		return false
	default:
		return clampIntensity(intensity)*10 >= 50
	}
}

// ScoreDelta 三项状态值的变化量。
type ScoreDelta struct {
	MentalHealth int `json:"mental_health"`
	Stress       int `json:"stress"`
	Growth       int `json:"growth"`
}

// IsZero 表示没有任何变化。
func (d ScoreDelta) IsZero() bool {
	return d == ScoreDelta{}
}

// FallbackScore 在 AI 不可用时根据情绪倾向给出确定性的结算结果。
func FallbackScore(tags []string, intensity int) (ScoreDelta, int) {
	i := clampIntensity(intensity)
	switch EmotionPolarity(tags) {
	case PolarityPositive:
		return ScoreDelta{
			MentalHealth: min(5, 1+i/3),
			Stress:       max(-5, -1-i/4),
			Growth:       2,
		}, 25 + 2*i
	case PolarityNegative:
		return ScoreDelta{
			MentalHealth: max(-3, -i/4),
			Stress:       min(5, 1+i/3),
			Growth:       1,
		}, 15 + i
	default:
		return ScoreDelta{MentalHealth: 1, Stress: 0, Growth: 2}, 20
	}
}

func clampIntensity(intensity int) int {
	return clampInt(intensity, 1, 10)
}

func clampInt(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
