package channel

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/KofiRusu/neonhub-go/internal/compose"
	"github.com/KofiRusu/neonhub-go/internal/guardrail"
	"github.com/KofiRusu/neonhub-go/internal/intake"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

const smsBodyLimit = 160

var (
	phoneCharsRE = regexp.MustCompile(`[^+\d]`)
	linkRE       = regexp.MustCompile(`https?://\S+`)
)

type SMSSender struct {
	baseSender
}

func NewSMSSender(engine *store.Engine, composer *compose.Composer, enforcer *guardrail.Enforcer, pipeline *intake.Pipeline, transport Transport) *SMSSender {
	if transport == nil {
		transport = &logTransport{channel: "sms"}
	}
	return &SMSSender{baseSender{
		name:      "sms",
		engine:    engine,
		composer:  composer,
		enforcer:  enforcer,
		pipeline:  pipeline,
		transport: transport,
	}}
}

func (s *SMSSender) Name() string { return s.name }

func (s *SMSSender) Send(ctx context.Context, req SendRequest) error {
	person, err := s.engine.GetPerson(req.PersonID)
	if err != nil {
		return fmt.Errorf("sms send: %w", err)
	}
	if err := s.checkConsent(req.PersonID); err != nil {
		return err
	}

	phone := person.PrimaryPhone
	if ident, err := s.engine.FindIdentity(req.PersonID, store.IdentityPhone); err == nil {
		phone = ident.Value
	}
	phone = NormalizePhone(phone)
	if phone == "" {
		return fmt.Errorf("sms for person %s: %w", req.PersonID, ErrMissingEndpoint)
	}

	constraints := map[string]any{"maxLength": smsBodyLimit}
	for k, v := range req.Constraints {
		constraints[k] = v
	}
	_, body, err := s.composeBody(ctx, req, constraints)
	if err != nil {
		return fmt.Errorf("sms send: %w", err)
	}

	body = ShortenLinks(body)
	body = guardrail.Truncate(body, smsBodyLimit)
	if err := s.checkGuardrail(ctx, body, req.BrandID); err != nil {
		return err
	}

	if err := s.transport.Deliver(ctx, Delivery{To: phone, Body: body}); err != nil {
		return fmt.Errorf("sms delivery: %w", err)
	}
	return s.recordSend(ctx, req, body)
}

// NormalizePhone strips everything but digits and a leading plus.
func NormalizePhone(raw string) string {
	return phoneCharsRE.ReplaceAllString(raw, "")
}

// ShortenLinks rewrites URLs to compact redirect slugs so long links
// don't eat the character budget.
func ShortenLinks(body string) string {
	return linkRE.ReplaceAllStringFunc(body, func(url string) string {
		slug := base64.StdEncoding.EncodeToString([]byte(url))
		if len(slug) > 6 {
			slug = slug[:6]
		}
		return "https://n.hub/" + slug
	})
}
