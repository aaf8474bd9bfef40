package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMonsterCatalog(t *testing.T) {
	catalog := DefaultMonsterCatalog()

	require.Len(t, catalog.monsters, 12)

	cloud, ok := catalog.Lookup("dark_cloud")
	require.True(t, ok)
	require.Equal(t, MonsterReward{Type: RewardStressReduce, Value: 5}, cloud.Reward)
	require.Equal(t, ScoreDelta{Stress: -5}, cloud.Reward.Delta())
	require.Equal(t, "dark_cloud_reward", cloud.ItemName())
	require.Equal(t, "乌云散去，阳光照进来了！", cloud.ItemDisplayName())
	require.Equal(t, defaultItemDisplayName, MonsterProfile{Type: "blob"}.ItemDisplayName())

	require.Equal(t, "checkerboard", catalog.Resolve("非黑即白", false).Type)
	require.Equal(t, "dark_cloud", catalog.Resolve("unknown", false).Type)
	require.Equal(t, "gratitude_thief", catalog.Resolve("", true).Type)

	require.Contains(t, catalog.Scenes(true), catalog.PickScene(true))
}

func TestLoadMonsterCatalogValidates(t *testing.T) {
	_, err := LoadMonsterCatalog([]byte("monsters: {}"))
	require.Error(t, err)

	_, err = LoadMonsterCatalog([]byte(`
monsters:
  blob:
    name: 团子
    polarity: negative
    reward: {type: treasure, value: 1}
`))
	require.ErrorContains(t, err, "unknown reward")

	_, err = LoadMonsterCatalog([]byte(`
monsters:
  blob:
    name: 团子
    polarity: negative
    reward: {type: mental_boost, value: 1}
defaults:
  positive: [blob]
  negative: [ghost]
scenes:
  positive: [草地]
  negative: [森林]
`))
	require.ErrorContains(t, err, "unknown default monster")
}
