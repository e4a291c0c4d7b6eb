// Package channel hosts the outbound senders: each one resolves the
// person's contact endpoint, checks consent, composes and checks the
// message, hands it to a transport, and records the send as an event.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/KofiRusu/neonhub-go/internal/compose"
	"github.com/KofiRusu/neonhub-go/internal/guardrail"
	"github.com/KofiRusu/neonhub-go/internal/intake"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

var (
	// ErrConsentNotGranted is the policy error for sends to people
	// whose channel consent is revoked or pending.
	ErrConsentNotGranted = errors.New("channel: consent not granted")

	// ErrMissingEndpoint is returned when the person has no contact
	// endpoint for the channel.
	ErrMissingEndpoint = errors.New("channel: missing contact endpoint")

	// ErrGuardrailViolation is the policy error for content that fails
	// the guardrail check.
	ErrGuardrailViolation = errors.New("channel: guardrail violation")
)

// SendRequest asks a sender to message a person on behalf of a brand.
type SendRequest struct {
	OrgID       string         `json:"organizationId"`
	PersonID    string         `json:"personId"`
	BrandID     string         `json:"brandId"`
	Objective   string         `json:"objective"`
	OperatorID  string         `json:"operatorId,omitempty"`
	Constraints map[string]any `json:"constraints,omitempty"`
}

// Delivery is the transport-facing message shape.
type Delivery struct {
	To      string
	Subject string
	Body    string
}

// Transport dispatches a delivery over the wire. Network delivery is
// an external concern; tests and unconfigured channels use a logging
// no-op.
type Transport interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Sender composes and dispatches on one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, req SendRequest) error
}

// logTransport stands in when no real transport is configured.
type logTransport struct {
	channel string
}

func (t *logTransport) Deliver(_ context.Context, d Delivery) error {
	log.Printf("[%s] transport not configured, skipping delivery to %s (%d chars)", t.channel, d.To, len(d.Body))
	return nil
}

// baseSender carries the pipeline shared by every channel sender.
type baseSender struct {
	name      string
	engine    *store.Engine
	composer  *compose.Composer
	enforcer  *guardrail.Enforcer
	pipeline  *intake.Pipeline
	transport Transport
}

// checkConsent enforces channel consent. An absent consent row is
// treated as granted; anything recorded but not granted blocks the
// send as a policy error.
func (s *baseSender) checkConsent(personID string) error {
	status, err := s.engine.GetConsent(personID, s.name)
	if err != nil {
		return fmt.Errorf("%s consent: %w", s.name, err)
	}
	if status != "" && status != store.ConsentGranted {
		return fmt.Errorf("%s for person %s: %w", s.name, personID, ErrConsentNotGranted)
	}
	return nil
}

// composeBody runs the composer and picks the first variant's body, as
// the historical agents did, falling back to the primary body.
func (s *baseSender) composeBody(ctx context.Context, req SendRequest, constraints map[string]any) (*compose.Result, string, error) {
	result, err := s.composer.Compose(ctx, compose.Args{
		Channel:     s.name,
		Objective:   req.Objective,
		PersonID:    req.PersonID,
		BrandID:     req.BrandID,
		Constraints: constraints,
	})
	if err != nil {
		return nil, "", err
	}
	body := result.Body
	if len(result.Variants) > 0 && strings.TrimSpace(result.Variants[0].Body) != "" {
		body = result.Variants[0].Body
	}
	return result, body, nil
}

// checkGuardrail blocks dispatch of unsafe content as a policy error.
func (s *baseSender) checkGuardrail(ctx context.Context, body, brandID string) error {
	verdict := s.enforcer.Check(ctx, body, s.name, brandID)
	if !verdict.Safe {
		return fmt.Errorf("%s: %v: %w", s.name, verdict.Violations, ErrGuardrailViolation)
	}
	return nil
}

// recordSend closes the loop: the dispatched message becomes an event
// so future composition sees it.
func (s *baseSender) recordSend(ctx context.Context, req SendRequest, body string) error {
	return s.pipeline.Ingest(ctx, intake.RawEvent{
		OrgID:    req.OrgID,
		PersonID: req.PersonID,
		Channel:  s.name,
		Type:     "send",
		Source:   s.name + "-sender",
		Payload:  map[string]any{"body": body},
		Metadata: map[string]any{
			"brandId":    req.BrandID,
			"objective":  req.Objective,
			"operatorId": req.OperatorID,
		},
	})
}
