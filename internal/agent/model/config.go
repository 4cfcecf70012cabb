package model

// ================ Config ================
type ConversationConfig struct {
	TTL     string `envconfig:"CONVERSATION_TTL" default:"24h"`
	History struct {
		// MaxTurns bounds how many trailing messages are handed to the model.
		// The persisted log itself stays append-only.
		MaxTurns int `envconfig:"CONVERSATION_HISTORY_MAX_TURNS" default:"40"`
	}
	Tools struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"10"`
	}
}

type AgentModelConfig struct {
	Model       string  `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"AGENT_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"AGENT_TEMPERATURE" default:"0.3"`
}

type AgentPromptConfig struct {
	AgentName   string `envconfig:"PROMPT_AGENT_NAME" default:"WalletPilot"`
	NetworkName string `envconfig:"PROMPT_NETWORK_NAME" default:"Ethereum Sepolia"`
}
