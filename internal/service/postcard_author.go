package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
)

const postcardSystemPrompt = `你是一只名叫“小橘”的橘色小狐狸，正在旅行，会给主人寄明信片。
你用温柔、童话般的口吻讲一个发生在旅途中的小故事，不说教、不使用心理学术语。
只输出 JSON，不要输出其他内容。`

// AdventureSummary 探险战绩。
type AdventureSummary struct {
	DefeatedCount int `json:"defeated_count"`
	TotalMonsters int `json:"total_monsters"`
}

// PostcardInput 生成明信片所需的上下文。
type PostcardInput struct {
	EmotionTags  []string
	Intensity    int
	MentalHealth int
	DiaryContent string
	TriggerEvent string
	Adventure    *AdventureSummary
}

// PostcardContent 明信片的文字部分。
type PostcardContent struct {
	SceneName    string `json:"scene_name"`
	LocationName string `json:"location_name"`
	ImagePrompt  string `json:"image_prompt"`
	Message      string `json:"message"`
	UsedFallback bool   `json:"-"`
}

// PostcardAuthor 负责明信片文字生成。
type PostcardAuthor struct {
	text    TextGenerator
	catalog *MonsterCatalog
	opts    GenerationOptions
}

// NewPostcardAuthor 构造 PostcardAuthor。
func NewPostcardAuthor(text TextGenerator, catalog *MonsterCatalog, opts GenerationOptions) *PostcardAuthor {
	if catalog == nil {
		catalog = DefaultMonsterCatalog()
	}
	return &PostcardAuthor{text: text, catalog: catalog, opts: opts}
}

// Write 调用 AI 写信，失败且允许降级时使用本地模板。
func (a *PostcardAuthor) Write(ctx context.Context, input PostcardInput) (PostcardContent, error) {
	var aiErr error
	if a.text != nil {
		system, user := buildPostcardPrompt(input)
		var content PostcardContent
		aiErr = generateJSON(ctx, a.text, a.opts.retry(), TextRequest{
			Kind:         "POSTCARD",
			SystemPrompt: system,
			UserPrompt:   user,
			MaxTokens:    1024,
			Temperature:  0.8,
		}, []string{"message", "image_prompt"}, func(data []byte) error {
			if err := json.Unmarshal(data, &content); err != nil {
				return fmt.Errorf("%w: %v", ErrParseFailure, err)
			}
			return nil
		})
		if aiErr == nil {
			content.Message = strings.TrimSpace(content.Message)
			content.ImagePrompt = strings.TrimSpace(content.ImagePrompt)
			content.SceneName = strings.TrimSpace(content.SceneName)
			content.LocationName = strings.TrimSpace(content.LocationName)
			if content.SceneName == "" {
				content.SceneName = a.catalog.PickScene(input.MentalHealth >= 50)
			}
			if content.LocationName == "" {
				content.LocationName = content.SceneName
			}
			return content, nil
		}
		log.Printf("[明信片] AI 写信失败: %v", aiErr)
	} else {
		aiErr = fmt.Errorf("%w: text generator not configured", ErrProviderFailure)
	}

	if !a.opts.TemplateFallback {
		return PostcardContent{}, aiErr
	}
	return a.template(input), nil
}

func (a *PostcardAuthor) template(input PostcardInput) PostcardContent {
	scene := a.catalog.PickScene(input.MentalHealth >= 50)

	var letters []string
	switch {
	case input.MentalHealth >= 70:
		letters = brightLetters
	case input.MentalHealth >= 50:
		letters = calmLetters
	default:
		letters = comfortLetters
	}
	message := fmt.Sprintf(letters[rand.IntN(len(letters))], scene)
	if input.Adventure != nil && input.Adventure.DefeatedCount > 0 {
		message = strings.Replace(message, "你的小橘",
			fmt.Sprintf("PS：你今天打败了 %d 只怪物，真的很厉害！\n\n你的小橘", input.Adventure.DefeatedCount), 1)
	}

	return PostcardContent{
		SceneName:    scene,
		LocationName: scene,
		ImagePrompt:  fmt.Sprintf("温暖治愈的水彩绘本风格，一只橘色小狐狸在%s旅行，柔和的光线，明信片构图，无文字", scene),
		Message:      message,
		UsedFallback: true,
	}
}

var brightLetters = []string{
	"亲爱的主人：\n\n今天在%s，我遇到了小兔子棉棉，她在草地上打滚，笑得耳朵都在抖。\n\n我也跟着滚了好几圈，原来快乐真的会传染！\n\n主人今天的开心，也请好好收藏起来哦～\n\n你的小橘 🧡",
	"亲爱的主人：\n\n我在%s找到了一朵好大的蘑菇，刚好够我和小熊、松鼠一起分享。\n\n松鼠说我运气真好。可我知道，好运气是留给每天认真生活的人的，就像你一样～\n\n你的小橘 🧡",
}

var calmLetters = []string{
	"亲爱的主人：\n\n今天在%s遇到了猫头鹰博士，他坐在树枝上看云。\n\n“没想什么特别的，就是听听风声。”他说。\n\n我陪他坐了一会儿，原来安安静静的日子也很好。\n\n你的小橘 💕",
	"亲爱的主人：\n\n在%s散步时，小鹿指着水面说：“你看，每天的天空都不一样。”\n\n今天的云像棉花糖。日子平平淡淡，却总有小小的不同，小橘都想和你分享～\n\n你的小橘 💕",
}

var comfortLetters = []string{
	"亲爱的主人：\n\n今天在%s，松鼠果果找不到她藏的橡果，急得快哭了。\n\n我陪她慢慢找，最后在一棵老树下找到了。\n\n有时候事情看起来很糟，可只要慢慢来，总会找到出路。小橘一直在你身边哦～\n\n你的小橘 🧡",
	"亲爱的主人：\n\n在%s，小刺猬球球偷偷告诉我：“大家都觉得我很扎人。”\n\n我说：“可我知道你的心很软呀。”他的眼睛一下子亮了。\n\n不管你今天遇到了什么，小橘都懂你、陪着你～\n\n你的小橘 🧡",
}

func buildPostcardPrompt(input PostcardInput) (string, string) {
	var builder strings.Builder
	builder.WriteString("## 主人今天的日记\n")
	fmt.Fprintf(&builder, "- 情绪：%s\n", joinTags(input.EmotionTags))
	fmt.Fprintf(&builder, "- 情绪强度：%d/10\n", clampIntensity(input.Intensity))
	fmt.Fprintf(&builder, "- 心理健康值：%d/100\n", clampInt(input.MentalHealth, 0, 100))
	fmt.Fprintf(&builder, "- 触发事件：%s\n", orDefault(input.TriggerEvent, "未提及"))
	fmt.Fprintf(&builder, "- 日记内容：%s\n", truncateRunes(strings.TrimSpace(input.DiaryContent), 800))
	if input.Adventure != nil && input.Adventure.TotalMonsters > 0 {
		fmt.Fprintf(&builder, "- 今日探险：击败了 %d/%d 只心灵怪物，请在信末夸夸主人\n",
			input.Adventure.DefeatedCount, input.Adventure.TotalMonsters)
	}

	builder.WriteString("\n## 写信要求\n")
	builder.WriteString("1. 以“亲爱的主人：”开头，以“你的小橘”结尾，150-250 字\n")
	builder.WriteString("2. 讲一个旅途中遇到森林小伙伴的小故事，故事要呼应主人的心情\n")
	builder.WriteString("3. 心理健康值低于 50 时以陪伴和安慰为主，高于 70 时分享快乐\n")
	builder.WriteString("4. image_prompt 描述明信片画面：橘色小狐狸、场景、光线，温暖治愈的水彩绘本风格，不含文字\n")

	builder.WriteString("\n## 输出格式\n")
	builder.WriteString(`{
  "scene_name": "场景名称",
  "location_name": "诗意的地点名",
  "image_prompt": "图片提示词",
  "message": "信件正文"
}
`)
	return postcardSystemPrompt, builder.String()
}
