package service

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	RewardStressReduce = "stress_reduce"
	RewardMentalBoost  = "mental_boost"
	RewardGrowthBoost  = "growth_boost"
)

//go:embed monsters.yaml
var monsterCatalogYAML []byte

// MonsterReward 击败怪物后获得的数值奖励。
type MonsterReward struct {
	Type  string `yaml:"type" json:"type"`
	Value int    `yaml:"value" json:"value"`
}

// Delta 将奖励换算为状态值变化。
func (r MonsterReward) Delta() ScoreDelta {
	switch r.Type {
	case RewardStressReduce:
		return ScoreDelta{Stress: -r.Value}
	case RewardMentalBoost:
		return ScoreDelta{MentalHealth: r.Value}
	case RewardGrowthBoost:
		return ScoreDelta{Growth: r.Value}
	default:
		return ScoreDelta{}
	}
}

// MonsterProfile 图鉴中的一只怪物。
type MonsterProfile struct {
	Type          string        `yaml:"-" json:"type"`
	Name          string        `yaml:"name" json:"name"`
	ShortName     string        `yaml:"short_name" json:"short_name"`
	Description   string        `yaml:"description" json:"description"`
	Polarity      string        `yaml:"polarity" json:"polarity"`
	ChallengeType string        `yaml:"challenge_type" json:"challenge_type"`
	DefeatMessage string        `yaml:"defeat_message" json:"defeat_message"`
	Reward        MonsterReward `yaml:"reward" json:"reward"`
	Aliases       []string      `yaml:"aliases" json:"-"`
}

const defaultItemDisplayName = "击败奖励"

// ItemName 击败后放入背包的物品名，每种怪物一种。
func (p MonsterProfile) ItemName() string {
	return p.Type + "_reward"
}

// ItemDisplayName 物品展示名沿用怪物的击败语。
func (p MonsterProfile) ItemDisplayName() string {
	if p.DefeatMessage == "" {
		return defaultItemDisplayName
	}
	return p.DefeatMessage
}

type catalogFile struct {
	Monsters map[string]MonsterProfile `yaml:"monsters"`
	Defaults map[string][]string       `yaml:"defaults"`
	Scenes   map[string][]string       `yaml:"scenes"`
}

// MonsterCatalog 怪物图鉴、场景与奖励物品。
type MonsterCatalog struct {
	monsters map[string]MonsterProfile
	aliases  map[string]string
	defaults map[string][]string
	scenes   map[string][]string
}

// LoadMonsterCatalog 解析 YAML 格式的图鉴。
func LoadMonsterCatalog(data []byte) (*MonsterCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse monster catalog: %w", err)
	}
	if len(file.Monsters) == 0 {
		return nil, fmt.Errorf("parse monster catalog: no monsters")
	}

	catalog := &MonsterCatalog{
		monsters: make(map[string]MonsterProfile, len(file.Monsters)),
		aliases:  make(map[string]string),
		defaults: file.Defaults,
		scenes:   file.Scenes,
	}
	for key, profile := range file.Monsters {
		profile.Type = key
		switch profile.Reward.Type {
		case RewardStressReduce, RewardMentalBoost, RewardGrowthBoost:
		default:
			return nil, fmt.Errorf("parse monster catalog: %s has unknown reward %q", key, profile.Reward.Type)
		}
		catalog.monsters[key] = profile
		for _, alias := range profile.Aliases {
			catalog.aliases[strings.TrimSpace(alias)] = key
		}
	}

	for _, polarity := range []string{"positive", "negative"} {
		if len(catalog.defaults[polarity]) == 0 {
			return nil, fmt.Errorf("parse monster catalog: missing %s defaults", polarity)
		}
		for _, key := range catalog.defaults[polarity] {
			if _, ok := catalog.monsters[key]; !ok {
				return nil, fmt.Errorf("parse monster catalog: unknown default monster %q", key)
			}
		}
		if len(catalog.scenes[polarity]) == 0 {
			return nil, fmt.Errorf("parse monster catalog: missing %s scenes", polarity)
		}
	}
	return catalog, nil
}

var defaultCatalog = sync.OnceValue(func() *MonsterCatalog {
	catalog, err := LoadMonsterCatalog(monsterCatalogYAML)
	if err != nil {
		panic(err)
	}
	return catalog
})

// DefaultMonsterCatalog 返回内置图鉴。
func DefaultMonsterCatalog() *MonsterCatalog {
	return defaultCatalog()
}

// Lookup 按类型查找怪物。
func (c *MonsterCatalog) Lookup(monsterType string) (MonsterProfile, bool) {
	profile, ok := c.monsters[strings.TrimSpace(monsterType)]
	return profile, ok
}

// Resolve 接受怪物类型或认知扭曲名称，无法识别时退回该情绪倾向的默认怪物。
func (c *MonsterCatalog) Resolve(typeOrAlias string, positive bool) MonsterProfile {
	key := strings.TrimSpace(typeOrAlias)
	if profile, ok := c.monsters[key]; ok {
		return profile
	}
	if alias, ok := c.aliases[key]; ok {
		return c.monsters[alias]
	}
	return c.monsters[c.Defaults(positive)[0]]
}

// Defaults 返回指定情绪倾向的默认怪物类型。
func (c *MonsterCatalog) Defaults(positive bool) []string {
	return c.defaults[polarityKey(positive)]
}

// Scenes 返回指定情绪倾向的场景列表。
func (c *MonsterCatalog) Scenes(positive bool) []string {
	return c.scenes[polarityKey(positive)]
}

// PickScene 随机挑选一个场景。
func (c *MonsterCatalog) PickScene(positive bool) string {
	scenes := c.Scenes(positive)
	return scenes[rand.IntN(len(scenes))]
}

func polarityKey(positive bool) string {
	if positive {
		return "positive"
	}
	return "negative"
}
