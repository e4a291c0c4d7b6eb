// Package guardrail validates outbound content against content-safety
// and channel-length policy, independent of how the content was
// produced.
package guardrail

import (
	"context"
	"fmt"
	"regexp"

	"github.com/KofiRusu/neonhub-go/internal/store"
)

// RedactionMarker replaces candidate PII digit runs.
const RedactionMarker = "[REDACTED]"

var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i){{\s*unsubscribe\s*}}`),
	regexp.MustCompile(`(?i)http://`),
	regexp.MustCompile(`(?i)lorem ipsum`),
	regexp.MustCompile(`\bBUY NOW\b`),
	regexp.MustCompile(`\bFREE!!!`),
}

// piiRE matches runs of 9 or more digits: SSNs, account numbers and
// similar identifiers that must never leave the system in clear text.
var piiRE = regexp.MustCompile(`\b\d{9,}\b`)

// Result is the verdict for one piece of content. A violation is data,
// not an error; Check never fails.
type Result struct {
	Safe       bool           `json:"safe"`
	Redacted   string         `json:"redacted,omitempty"`
	Violations []string       `json:"violations"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Limits maps channels to max body lengths.
type Limits interface {
	ChannelLimit(channel string) int
}

type Enforcer struct {
	engine *store.Engine
	limits Limits
}

// NewEnforcer builds an enforcer. engine may be nil for callers that
// only need pattern/length checks and no snippet benchmarking.
func NewEnforcer(engine *store.Engine, limits Limits) *Enforcer {
	return &Enforcer{engine: engine, limits: limits}
}

// Check scans text for forbidden patterns, redacts candidate PII, and
// enforces the channel length limit. On a clean pass it attaches the
// brand's best snippet as benchmark metadata.
func (e *Enforcer) Check(ctx context.Context, text, channel, brandID string) Result {
	result := applyPatterns(text)
	if !result.Safe {
		return result
	}

	limit := e.limits.ChannelLimit(channel)
	if len(text) > limit {
		return Result{
			Safe:       false,
			Redacted:   Truncate(text, limit),
			Violations: []string{fmt.Sprintf("Length exceeds limit for %s (%d chars)", channel, limit)},
		}
	}

	result.Metadata = map[string]any{"checkedAgainst": nil}
	if e.engine != nil {
		if snippets, err := e.engine.TopSnippets(brandID, channel, 1); err == nil && len(snippets) > 0 {
			result.Metadata = map[string]any{
				"checkedAgainst":  snippets[0].ID,
				"baselineWinRate": snippets[0].WinRate,
			}
		}
	}
	return result
}

// applyPatterns runs the forbidden-pattern scan and PII redaction.
// Any redaction makes the result unsafe even without pattern hits.
func applyPatterns(text string) Result {
	var violations []string
	for _, pattern := range forbiddenPatterns {
		if pattern.MatchString(text) {
			violations = append(violations, "Contains forbidden pattern: "+pattern.String())
		}
	}

	redacted := piiRE.ReplaceAllString(text, RedactionMarker)
	safe := len(violations) == 0 && redacted == text
	result := Result{Safe: safe, Violations: violations}
	if !safe {
		result.Redacted = redacted
	}
	if result.Violations == nil {
		result.Violations = []string{}
	}
	return result
}

// Truncate cuts text to limit, marking the cut with an ellipsis.
func Truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	if limit <= 3 {
		return text[:limit]
	}
	return text[:limit-3] + "..."
}
