package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KofiRusu/neonhub-go/internal/compose"
	"github.com/KofiRusu/neonhub-go/internal/guardrail"
	"github.com/KofiRusu/neonhub-go/internal/intake"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

var blockedEmailDomains = map[string]bool{
	"example.com":  true,
	"test.com":     true,
	"invalid.test": true,
}

type EmailSender struct {
	baseSender
}

func NewEmailSender(engine *store.Engine, composer *compose.Composer, enforcer *guardrail.Enforcer, pipeline *intake.Pipeline, transport Transport) *EmailSender {
	if transport == nil {
		transport = &logTransport{channel: "email"}
	}
	return &EmailSender{baseSender{
		name:      "email",
		engine:    engine,
		composer:  composer,
		enforcer:  enforcer,
		pipeline:  pipeline,
		transport: transport,
	}}
}

func (s *EmailSender) Name() string { return s.name }

func (s *EmailSender) Send(ctx context.Context, req SendRequest) error {
	person, err := s.engine.GetPerson(req.PersonID)
	if err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	if err := s.checkConsent(req.PersonID); err != nil {
		return err
	}

	address := person.PrimaryEmail
	if ident, err := s.engine.FindIdentity(req.PersonID, store.IdentityEmail); err == nil {
		address = ident.Value
	}
	if address == "" {
		return fmt.Errorf("email for person %s: %w", req.PersonID, ErrMissingEndpoint)
	}
	if err := ensureDeliverability(address); err != nil {
		return fmt.Errorf("email send: %w", err)
	}

	result, body, err := s.composeBody(ctx, req, req.Constraints)
	if err != nil {
		return fmt.Errorf("email send: %w", err)
	}

	subject := result.Subject
	if len(result.Variants) > 0 && result.Variants[0].Subject != "" {
		subject = result.Variants[0].Subject
	}
	if subject == "" {
		subject = "Quick update on " + req.Objective
	}

	// The guardrail must see exactly what goes out, CTA included.
	if result.CTA != "" {
		body = body + "\n\n" + result.CTA
	}
	if err := s.checkGuardrail(ctx, body, req.BrandID); err != nil {
		return err
	}

	if err := s.transport.Deliver(ctx, Delivery{To: address, Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("email delivery: %w", err)
	}
	return s.recordSend(ctx, req, body)
}

func ensureDeliverability(address string) error {
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return errors.New("invalid email address")
	}
	domain := strings.ToLower(address[at+1:])
	if blockedEmailDomains[domain] {
		return fmt.Errorf("email domain %s is not allowed for delivery", domain)
	}
	return nil
}
