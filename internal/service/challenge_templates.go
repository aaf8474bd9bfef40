package service

import "github.com/moodfox/internal/db"

type challengeTemplate struct {
	monsterType string
	kind        string
	distortion  string
	question    string
	instruction string
	options     []db.ChallengeOption
	explanation string
}

func opt(id, text string, correct bool) db.ChallengeOption {
	return db.ChallengeOption{ID: id, Text: text, IsCorrect: correct}
}

// 负面情绪：识别认知扭曲，不否定自己
var negativeChallengeTemplates = []challengeTemplate{
	{
		monsterType: "dark_cloud",
		kind:        "evidence",
		distortion:  "这件事搞砸了，接下来一切都会变得很糟糕。",
		question:    "黑云怪说“一切都完了”。下面哪些是可以反驳它的证据？（可多选）",
		instruction: "选出所有能反驳灾难化想法的证据",
		options: []db.ChallengeOption{
			opt("a", "以前也遇到过难事，最后都熬过来了", true),
			opt("b", "这次一定会是最糟糕的结局", false),
			opt("c", "事情还有其他可能的发展方向", true),
			opt("d", "身边有人可以一起商量办法", true),
		},
		explanation: "灾难化会把最坏的可能当成唯一的可能。找到反例，乌云就会慢慢散开。",
	},
	{
		monsterType: "checkerboard",
		kind:        "reframe",
		distortion:  "如果不能做到完美，那就是彻底失败。",
		question:    "棋盘精只认黑白两色。哪个想法更平衡？",
		instruction: "选择更客观的想法",
		options: []db.ChallengeOption{
			opt("a", "不完美也有值得肯定的部分，我可以一点点改进", true),
			opt("b", "没做到满分就等于什么都没做", false),
			opt("c", "既然不完美，干脆放弃好了", false),
		},
		explanation: "大多数事情都落在黑白之间的灰色地带，看到中间地带能让心轻松很多。",
	},
	{
		monsterType: "label_monster",
		kind:        "reframe",
		distortion:  "我就是个没用的人。",
		question:    "标签怪往你身上贴了一张“没用”的标签。哪种说法更接近完整的你？",
		instruction: "选择更完整地描述自己的说法",
		options: []db.ChallengeOption{
			opt("a", "我今天遇到了困难，但这只是我的一部分经历", true),
			opt("b", "这证明我一直都很差劲", false),
			opt("c", "别人肯定也都这么看我", false),
		},
		explanation: "一件事描述的是一个行为，不是整个人。撕掉标签，你会看到更丰富的自己。",
	},
	{
		monsterType: "blame_magnet",
		kind:        "evidence",
		distortion:  "都是因为我，事情才会变成这样。",
		question:    "磁铁怪把所有责任都吸到你身上。哪个想法更客观？",
		instruction: "选择更客观的归因方式",
		options: []db.ChallengeOption{
			opt("a", "结果受很多因素影响，我只负责自己能控制的部分", true),
			opt("b", "只要出了问题，就一定是我的错", false),
			opt("c", "我应该为所有人的情绪负责", false),
		},
		explanation: "把责任还给它真正的来源，你会发现自己不必背着那么重的包袱。",
	},
}

// 正面情绪：巩固积极体验，肯定自己
var positiveChallengeTemplates = []challengeTemplate{
	{
		monsterType: "gratitude_thief",
		kind:        "evidence",
		question:    "感恩小偷想偷走今天的美好。哪件事最值得你记住并感谢？",
		instruction: "选择值得感恩的想法",
		options: []db.ChallengeOption{
			opt("a", "今天有让我开心的人和事，我很珍惜", true),
			opt("b", "这些都是理所当然的，没什么特别", false),
			opt("c", "开心很快就会过去，不值得在意", false),
		},
		explanation: "留意并感谢生活中的小美好，会让快乐停留得更久。",
	},
	{
		monsterType: "achievement_eraser",
		kind:        "reframe",
		distortion:  "这可能只是运气好而已。",
		question:    "橡皮擦怪想擦掉你的成就。哪个想法更能肯定自己？",
		instruction: "选择更积极的想法",
		options: []db.ChallengeOption{
			opt("a", "这是我努力和准备的结果，我为自己骄傲", true),
			opt("b", "这只是碰巧，下次就不会这么顺利了", false),
			opt("c", "别人也能做到，没什么了不起", false),
		},
		explanation: "承认自己的付出，是建立自信的第一步。",
	},
	{
		monsterType: "confidence_shadow",
		kind:        "reframe",
		distortion:  "我其实没有那么好。",
		question:    "阴影怪想遮住你的光芒。今天的经历说明了你的什么优点？",
		instruction: "选择能发现自己优点的想法",
		options: []db.ChallengeOption{
			opt("a", "我有能力让事情变好，也值得被欣赏", true),
			opt("b", "好事发生在我身上只是例外", false),
			opt("c", "我不配拥有这样的好心情", false),
		},
		explanation: "看见自己的优点不是骄傲，而是对自己诚实。",
	},
}

// templateChallengeSet 在 AI 不可用时使用的预设题目。
func templateChallengeSet(catalog *MonsterCatalog, input ChallengeInput) ChallengeSet {
	templates := negativeChallengeTemplates
	if input.IsPositive {
		templates = positiveChallengeTemplates
	}

	set := ChallengeSet{
		SceneName:    catalog.PickScene(input.IsPositive),
		UsedFallback: true,
	}
	for _, tpl := range templates {
		profile := catalog.Resolve(tpl.monsterType, input.IsPositive)
		options := make([]db.ChallengeOption, len(tpl.options))
		copy(options, tpl.options)

		set.Challenges = append(set.Challenges, db.Challenge{
			Type:              tpl.kind,
			MonsterType:       profile.Type,
			DistortionThought: tpl.distortion,
			Question:          tpl.question,
			Instruction:       tpl.instruction,
			Options:           options,
			CorrectIDs:        correctOptionIDs(options),
			Explanation:       tpl.explanation,
		})
		set.Monsters = append(set.Monsters, db.Monster{
			Type:        profile.Type,
			Name:        profile.Name,
			Description: profile.Description,
		})
	}
	return set
}
