package generator

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
	"github.com/ternarybob/threadforge/internal/interfaces"
)

// NewGenerator creates the configured LLM generator implementation.
func NewGenerator(ctx context.Context, config *common.LLMConfig, logger arbor.ILogger) (interfaces.Generator, error) {
	switch config.Provider {
	case "claude", "":
		return NewClaudeGenerator(&config.Claude, logger)
	case "gemini":
		return NewGeminiGenerator(ctx, &config.Gemini, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider '%s': must be 'claude' or 'gemini'", config.Provider)
	}
}
