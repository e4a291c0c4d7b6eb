package compose

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/KofiRusu/neonhub-go/internal/guardrail"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

const genericGuidance = "Craft a message consistent with the brand's professional, optimistic tone."

// StructuredPrompt is a brand's composition guidance: system
// instruction, voice descriptors and guardrail reminders.
type StructuredPrompt struct {
	System     string         `json:"system"`
	BrandVoice []string       `json:"brandVoice"`
	Guardrails []string       `json:"guardrails,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// PromptPack bundles a structured prompt with its use case and brand.
type PromptPack struct {
	UseCase string           `json:"useCase"`
	BrandID string           `json:"brandId"`
	Prompt  StructuredPrompt `json:"prompt"`
}

// promptFromVoice derives the structured prompt from a brand voice
// row. Voice and guardrail lists come from style rules when present;
// otherwise the template's head doubles as the voice descriptor.
func promptFromVoice(voice *store.BrandVoice) StructuredPrompt {
	prompt := StructuredPrompt{
		System:     voice.PromptTemplate,
		BrandVoice: []string{headOf(voice.PromptTemplate, 120)},
		Metadata:   voice.Metrics,
	}
	if list := stringList(voice.StyleRules["voice"]); len(list) > 0 {
		prompt.BrandVoice = list
	}
	prompt.Guardrails = stringList(voice.StyleRules["guardrails"])
	return prompt
}

func defaultPrompt(brandName string) StructuredPrompt {
	return StructuredPrompt{
		System:     fmt.Sprintf("You are the brand voice orchestrator for %s. Maintain a consistent tone across channels.", brandName),
		BrandVoice: []string{"Confident", "Helpful", "Data-backed"},
		Guardrails: []string{"Avoid overpromising", "Stay compliant with TCPA"},
	}
}

// buildMessages renders the system and user halves of the composition
// prompt from everything loaded about the person and brand.
func buildMessages(args Args, prompt *StructuredPrompt, person *store.Person, topics []store.Topic, memory string, snippets []store.Snippet, limit int) (system, user string) {
	if prompt != nil {
		parts := []string{prompt.System, "Voice: " + strings.Join(prompt.BrandVoice, ", ")}
		if len(prompt.Guardrails) > 0 {
			parts = append(parts, "Guidelines: "+strings.Join(prompt.Guardrails, ", "))
		}
		system = strings.Join(parts, "\n")
	} else {
		system = genericGuidance
	}

	var persona []string
	if person.DisplayName != "" {
		persona = append(persona, "Name: "+person.DisplayName)
	}
	if person.PrimaryEmail != "" {
		persona = append(persona, "Email: "+person.PrimaryEmail)
	}
	if person.PrimaryHandle != "" {
		persona = append(persona, "Handle: "+person.PrimaryHandle)
	}
	if person.PrimaryPhone != "" {
		persona = append(persona, "Phone: "+person.PrimaryPhone)
	}
	personaLine := strings.Join(persona, " | ")
	if personaLine == "" {
		personaLine = "Unknown"
	}

	topicParts := make([]string, 0, len(topics))
	for _, t := range topics {
		topicParts = append(topicParts, fmt.Sprintf("%s (%.2f)", t.Name, t.Weight))
	}
	topicLine := strings.Join(topicParts, ", ")
	if topicLine == "" {
		topicLine = "None"
	}

	if memory == "" {
		memory = "None"
	}

	snippetParts := make([]string, 0, len(snippets))
	for i, s := range snippets {
		snippetParts = append(snippetParts, fmt.Sprintf("Snippet %d: %s - %s", i+1, s.Name, guardrail.Truncate(s.Content, limit)))
	}
	snippetLine := strings.Join(snippetParts, "\n")
	if snippetLine == "" {
		snippetLine = "(no snippets available)"
	}

	constraints := "{}"
	if len(args.Constraints) > 0 {
		if data, err := json.MarshalIndent(args.Constraints, "", "  "); err == nil {
			constraints = string(data)
		}
	}

	user = fmt.Sprintf(`Compose a %s message for the objective %q.
Person: %s
Topics: %s
Memory Highlights: %s
Constraints: %s
Winning Snippets:
%s
Output JSON with keys subject (optional), body, variants (array of {subject?, body, cta?}), and cta.`,
		args.Channel, args.Objective, personaLine, topicLine, memory, constraints, snippetLine)

	return system, user
}

func headOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
