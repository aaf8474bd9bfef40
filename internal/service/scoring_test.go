package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEmotionTags(t *testing.T) {
	got := NormalizeEmotionTags([]string{" 开心 ", "Happy", "happy", "", "ＨＡＰＰＹ", "焦虑"})
	require.Equal(t, []string{"开心", "Happy", "焦虑"}, got)
}

func TestEmotionPolarity(t *testing.T) {
	require.Equal(t, PolarityPositive, EmotionPolarity([]string{"开心", "Grateful"}))
	require.Equal(t, PolarityNegative, EmotionPolarity([]string{"Anxious"}))
	require.Equal(t, PolarityNeutral, EmotionPolarity([]string{"开心", "难过"}))
	require.Equal(t, PolarityNeutral, EmotionPolarity(nil))
}

func TestIsPositiveMood(t *testing.T) {
	require.False(t, IsPositiveMood([]string{"anxious"}, 9))
	require.True(t, IsPositiveMood([]string{"开心"}, 1))
	require.True(t, IsPositiveMood([]string{"平淡"}, 5))
	require.False(t, IsPositiveMood([]string{"平淡"}, 4))
	require.True(t, IsPositiveMood(nil, 42))
}

func TestFallbackScore(t *testing.T) {
	tests := []struct {
		name      string
		tags      []string
		intensity int
		delta     ScoreDelta
		coins     int
	}{
		{name: "positive", tags: []string{"开心"}, intensity: 9, delta: ScoreDelta{MentalHealth: 4, Stress: -3, Growth: 2}, coins: 43},
		{name: "positive capped", tags: []string{"happy"}, intensity: 100, delta: ScoreDelta{MentalHealth: 4, Stress: -3, Growth: 2}, coins: 45},
		{name: "negative", tags: []string{"anxious"}, intensity: 7, delta: ScoreDelta{MentalHealth: -1, Stress: 3, Growth: 1}, coins: 22},
		{name: "negative low", tags: []string{"难过"}, intensity: 0, delta: ScoreDelta{MentalHealth: 0, Stress: 1, Growth: 1}, coins: 16},
		{name: "neutral", tags: nil, intensity: 5, delta: ScoreDelta{MentalHealth: 1, Growth: 2}, coins: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, coins := FallbackScore(tt.tags, tt.intensity)
			require.Equal(t, tt.delta, delta)
			require.Equal(t, tt.coins, coins)
		})
	}
}
