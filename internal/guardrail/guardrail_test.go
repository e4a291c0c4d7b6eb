package guardrail

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KofiRusu/neonhub-go/internal/store"
)

type fixedLimits map[string]int

func (f fixedLimits) ChannelLimit(channel string) int {
	if limit, ok := f[channel]; ok {
		return limit
	}
	return 500
}

var testLimits = fixedLimits{"sms": 160, "dm": 280, "email": 1200}

func TestCheckForbiddenPatterns(t *testing.T) {
	e := NewEnforcer(nil, testLimits)
	ctx := context.Background()

	tests := []struct {
		name string
		text string
	}{
		{"unsubscribe placeholder", "Thanks! {{ unsubscribe }} here"},
		{"insecure link", "Visit http://example.org for more"},
		{"placeholder copy", "Lorem ipsum dolor sit amet"},
		{"hard sell", "BUY NOW before midnight"},
		{"spam punctuation", "Get it FREE!!! today"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Check(ctx, tt.text, "email", "")
			if result.Safe {
				t.Fatalf("expected %q to be flagged", tt.text)
			}
			if len(result.Violations) == 0 {
				t.Fatal("expected violations recorded")
			}
		})
	}
}

func TestCheckRedactsPII(t *testing.T) {
	e := NewEnforcer(nil, testLimits)

	result := e.Check(context.Background(), "Your account 123456789 is ready", "email", "")
	if result.Safe {
		t.Fatal("expected digit run to make the content unsafe")
	}
	if !strings.Contains(result.Redacted, RedactionMarker) {
		t.Fatalf("expected redaction marker in %q", result.Redacted)
	}
	if strings.Contains(result.Redacted, "123456789") {
		t.Fatalf("digits survived redaction: %q", result.Redacted)
	}
}

func TestCheckLeavesShortDigitRunsAlone(t *testing.T) {
	e := NewEnforcer(nil, testLimits)

	result := e.Check(context.Background(), "Order 12345 shipped", "email", "")
	if !result.Safe {
		t.Fatalf("expected short digit run to pass, got %+v", result)
	}
}

func TestCheckLengthLimit(t *testing.T) {
	e := NewEnforcer(nil, testLimits)

	long := strings.Repeat("a", 200)
	result := e.Check(context.Background(), long, "sms", "")
	if result.Safe {
		t.Fatal("expected length violation for sms")
	}
	if len(result.Redacted) != 160 {
		t.Fatalf("expected truncation to the limit, got %d chars", len(result.Redacted))
	}
	if !strings.HasSuffix(result.Redacted, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", result.Redacted)
	}

	// Same text is fine on a roomier channel.
	if r := e.Check(context.Background(), long, "email", ""); !r.Safe {
		t.Fatalf("expected pass on email, got %+v", r)
	}
}

func TestCheckCleanTextMetadata(t *testing.T) {
	engine, err := store.NewEngine(filepath.Join(t.TempDir(), "neonhub.db"))
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	defer engine.Close()

	e := NewEnforcer(engine, testLimits)
	ctx := context.Background()

	t.Run("no snippets on file", func(t *testing.T) {
		result := e.Check(ctx, "All good here.", "email", "brand-1")
		if !result.Safe {
			t.Fatalf("expected safe, got %+v", result)
		}
		if v, ok := result.Metadata["checkedAgainst"]; !ok || v != nil {
			t.Fatalf("expected nil checkedAgainst, got %v", result.Metadata)
		}
	})

	t.Run("benchmarks against the best snippet", func(t *testing.T) {
		s := &store.Snippet{BrandID: "brand-1", Channel: "email", Name: "winner", Content: "c", WinRate: 0.7}
		if err := engine.SaveSnippet(s); err != nil {
			t.Fatalf("SaveSnippet error: %v", err)
		}

		result := e.Check(ctx, "All good here.", "email", "brand-1")
		if !result.Safe {
			t.Fatalf("expected safe, got %+v", result)
		}
		if result.Metadata["checkedAgainst"] != s.ID {
			t.Fatalf("expected snippet id, got %v", result.Metadata["checkedAgainst"])
		}
		if result.Metadata["baselineWinRate"] != 0.7 {
			t.Fatalf("expected win rate, got %v", result.Metadata["baselineWinRate"])
		}
	})
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("expected passthrough, got %q", got)
	}
	if got := Truncate("abcdefghij", 8); got != "abcde..." {
		t.Fatalf("expected 8-char truncation, got %q", got)
	}
	if got := Truncate("abcdef", 2); got != "ab" {
		t.Fatalf("expected hard cut below ellipsis room, got %q", got)
	}
}
