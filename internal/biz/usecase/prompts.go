package usecase

// PromptConfig contains prompt configuration shared by the planner, the
// replyer and the learning workers
type PromptConfig struct {
	BotName string
	// Persona is the personality description injected into reply prompts
	Persona string
	// PlannerGuidelines are the decision heuristics shown to the planner
	PlannerGuidelines string
	// SpeakInstruction is the final instruction of the reply prompt
	SpeakInstruction string
	// ApologyText is sent when reply generation fails outright
	ApologyText string
	// BotPlaceholder replaces the bot's name in learning transcripts
	BotPlaceholder string
}

// DefaultPromptConfig contains default prompt configuration
var DefaultPromptConfig = PromptConfig{
	BotName: "小鹿",
	Persona: `你是一个混迹在QQ群里的普通群友，说话自然、简短、口语化。
不要像客服或助手一样说话，不要用"有什么可以帮你"之类的句式。
可以用群里学到的说话方式和黑话，但不要刻意堆砌。`,
	PlannerGuidelines: `决策要点：
- 不需要回复每一条消息，大部分闲聊选择 wait 即可
- 有人直接问你、@你、或话题你能接上时才 reply
- 连续几轮 wait 都没人理你，就 complete_talk 结束这轮关注
- 回复要有针对性，带上 target_message_id`,
	SpeakInstruction: `现在轮到你说话了。直接输出你要说的内容，不要解释，不要加引号，不要带"我会说"之类的前缀。保持简短自然。`,
	ApologyText:      "呃，我刚走神了，没接上话……",
	BotPlaceholder:   "(你)",
}
