// Package compose builds brand-consistent outbound messages. An LLM
// does the writing when one is configured; a deterministic template
// covers every failure mode, so composition never propagates a hard
// failure to the caller.
package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/KofiRusu/neonhub-go/internal/guardrail"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

const (
	maxVariants      = 2
	topicCap         = 5
	memoryCap        = 5
	snippetCap       = 3
	defaultScore     = 0.75
	synthesizedScore = 0.8
	fallbackScore    = 0.5
)

// Args selects what to compose and for whom.
type Args struct {
	Channel     string         `json:"channel"`
	Objective   string         `json:"objective"`
	PersonID    string         `json:"personId"`
	BrandID     string         `json:"brandId"`
	Constraints map[string]any `json:"constraints,omitempty"`
}

// Variant is one alternative rendering of the message.
type Variant struct {
	Subject string  `json:"subject,omitempty"`
	Body    string  `json:"body"`
	CTA     string  `json:"cta,omitempty"`
	Score   float64 `json:"score"`
}

// Result is the composed message: a primary rendering plus up to two
// ranked variants. Never persisted.
type Result struct {
	Subject  string         `json:"subject,omitempty"`
	Body     string         `json:"body"`
	CTA      string         `json:"cta,omitempty"`
	Variants []Variant      `json:"variants"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Limits maps channels to max body lengths.
type Limits interface {
	ChannelLimit(channel string) int
}

type Composer struct {
	engine    *store.Engine
	completer Completer
	limits    Limits
}

// NewComposer wires the composer. completer may be nil; composition
// then always returns the deterministic fallback.
func NewComposer(engine *store.Engine, completer Completer, limits Limits) *Composer {
	return &Composer{engine: engine, completer: completer, limits: limits}
}

// Compose renders a message for the person/brand/channel. The only
// error it returns is an unknown person; any LLM-side failure such as
// a missing provider, a timeout or malformed output degrades to the
// fallback template.
func (c *Composer) Compose(ctx context.Context, args Args) (*Result, error) {
	person, err := c.engine.GetPerson(args.PersonID)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}

	topics, err := c.engine.TopTopics(args.PersonID, topicCap)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}

	voice, err := c.engine.GetBrandVoice(args.BrandID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("compose: %w", err)
	}

	snippets, err := c.engine.TopSnippets(args.BrandID, args.Channel, snippetCap)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}

	memories, err := c.engine.ListMemories(args.PersonID, store.MemoryQuery{Limit: memoryCap})
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}

	if c.completer == nil {
		log.Printf("[compose] no LLM provider configured, using fallback for %s", args.Channel)
		return c.fallback(args, person.DisplayName), nil
	}

	var prompt *StructuredPrompt
	if voice != nil {
		p := promptFromVoice(voice)
		prompt = &p
	}

	limit := c.limits.ChannelLimit(args.Channel)
	system, user := buildMessages(args, prompt, person, topics, memoryHighlights(memories), snippets, limit)

	raw, err := c.completer.Complete(ctx, system, user)
	if err != nil {
		log.Printf("[compose] llm call failed, falling back: %v", err)
		return c.fallback(args, person.DisplayName), nil
	}

	parsed, ok := parseResult(raw)
	if !ok {
		return c.fallback(args, person.DisplayName), nil
	}

	parsed.Body = guardrail.Truncate(parsed.Body, limit)
	variants := parsed.Variants
	if len(variants) > maxVariants {
		variants = variants[:maxVariants]
	}
	for i := range variants {
		variants[i].Body = guardrail.Truncate(variants[i].Body, limit)
		if variants[i].Score == 0 {
			variants[i].Score = defaultScore
		}
	}
	if len(variants) == 0 {
		variants = []Variant{{
			Subject: parsed.Subject,
			Body:    parsed.Body,
			CTA:     parsed.CTA,
			Score:   synthesizedScore,
		}}
	}
	parsed.Variants = variants
	return parsed, nil
}

// GetPromptPack returns the brand's structured prompt, or a generic
// professional-tone pack when the brand has no voice on file.
func (c *Composer) GetPromptPack(useCase, brandID string) (*PromptPack, error) {
	voice, err := c.engine.GetBrandVoice(brandID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &PromptPack{UseCase: useCase, BrandID: brandID, Prompt: defaultPrompt(brandID)}, nil
		}
		return nil, fmt.Errorf("prompt pack: %w", err)
	}
	return &PromptPack{UseCase: useCase, BrandID: brandID, Prompt: promptFromVoice(voice)}, nil
}

// fallback is the deterministic, LLM-free template. Tagged with
// metadata.fallback so callers and tests can tell it apart.
func (c *Composer) fallback(args Args, displayName string) *Result {
	greeting := "Hi there,"
	first := firstName(displayName)
	if first != "" {
		greeting = "Hi " + first + ","
	}

	body := guardrail.Truncate(
		fmt.Sprintf("%s\n\nWe're focused on %s. Here's a quick update tailored for you. Let me know if you'd like more details or a different direction.", greeting, args.Objective),
		c.limits.ChannelLimit(args.Channel),
	)

	cta := "Let me know what you think."
	if args.Channel == "email" {
		cta = "Reply to this email if you'd like to continue."
	}

	var subject, variantSubject string
	if args.Channel == "email" {
		prefix := ""
		if first != "" {
			prefix = first + ", "
		}
		subject = strings.TrimSpace(prefix + "quick update on " + args.Objective)
		variantSubject = "Next steps for " + args.Objective
	}

	return &Result{
		Subject: subject,
		Body:    body,
		CTA:     cta,
		Variants: []Variant{{
			Subject: variantSubject,
			Body:    body,
			CTA:     cta,
			Score:   fallbackScore,
		}},
		Metadata: map[string]any{"fallback": true},
	}
}

// parseResult decodes the LLM's JSON reply, tolerating a markdown code
// fence around the object.
func parseResult(raw string) (*Result, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	if !strings.HasPrefix(trimmed, "{") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var out Result
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		log.Printf("[compose] unparseable llm response, falling back: %v", err)
		return nil, false
	}
	if strings.TrimSpace(out.Body) == "" {
		return nil, false
	}
	return &out, true
}

func memoryHighlights(records []store.MemoryRecord) string {
	var parts []string
	for _, rec := range records {
		if summary, ok := rec.Metadata["summary"].(string); ok && summary != "" {
			parts = append(parts, summary)
			continue
		}
		if rec.Label != "" {
			parts = append(parts, rec.Label)
		}
	}
	return strings.Join(parts, " | ")
}

func firstName(displayName string) string {
	fields := strings.Fields(displayName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
