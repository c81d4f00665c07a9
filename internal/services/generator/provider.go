// Package generator produces thread candidates from transcript text or a
// topic using a configurable LLM provider.
package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/threadforge/internal/models"
)

const systemPrompt = `You are a social media ghostwriter. Given source content,
write thread candidates for a short-form social platform. Respond with a JSON
array only, no prose, in this shape:
[{"hook": "...", "messages": ["...", "..."]}]
Each thread opens with its hook as the first message. Keep every message under
280 characters. Produce 2 to 3 distinct thread candidates.`

// buildPrompt assembles the user prompt from source content and optional
// caller instructions.
func buildPrompt(input, instructions string) string {
	var b strings.Builder
	b.WriteString("Source content:\n\n")
	b.WriteString(input)
	if strings.TrimSpace(instructions) != "" {
		b.WriteString("\n\nAdditional instructions from the author:\n")
		b.WriteString(instructions)
	}
	return b.String()
}

// parseThreads decodes the provider's JSON response, tolerating markdown
// code fences around the payload.
func parseThreads(response string) ([]models.Thread, error) {
	cleaned := strings.TrimSpace(response)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var threads []models.Thread
	if err := json.Unmarshal([]byte(cleaned), &threads); err != nil {
		return nil, fmt.Errorf("failed to parse generated threads: %w", err)
	}

	valid := threads[:0]
	for _, thread := range threads {
		if len(thread.Messages) == 0 {
			continue
		}
		valid = append(valid, thread)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("provider returned no usable threads")
	}
	return valid, nil
}
