package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SuggestTopics converts a free-text research request into 3-5 selectable
// category options. Falls back to a deterministic trio when the model is
// unavailable or returns garbage.
func (p *Planner) SuggestTopics(ctx context.Context, userInput, market string) []string {
	userInput = strings.TrimSpace(userInput)
	fallback := []string{
		userInput + " - market capacity analysis",
		userInput + " - supplier landscape assessment",
		userInput + " - pricing and risk evaluation",
	}
	if p.llm == nil {
		return fallback
	}
	model := p.cfg.LLM.Routing.Planning
	if model == "" {
		model = p.cfg.LLM.Routing.Fallback
	}
	if model == "" {
		return fallback
	}

	prompt := fmt.Sprintf(`Convert this research request into 3-5 specific procurement intelligence topics.

User input: %q
Market: %s

Focus on supply chain, market capacity, supplier landscape, pricing, and risk factors.
Return ONLY strict JSON: {"options": [string]}`, userInput, market)

	out, err := p.llm.Generate(ctx, prompt, model, map[string]interface{}{"temperature": 0.5, "max_tokens": 500, "json": true})
	if err != nil {
		p.logger.Printf("topic suggestion failed, using fallback: %v", err)
		return fallback
	}
	var parsed struct {
		Options []string `json:"options"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(out)), &parsed); err != nil || len(parsed.Options) == 0 {
		return fallback
	}
	options := parsed.Options[:0:0]
	for _, opt := range parsed.Options {
		if opt = strings.TrimSpace(opt); opt != "" {
			options = append(options, opt)
		}
	}
	if len(options) == 0 {
		return fallback
	}
	return options
}
