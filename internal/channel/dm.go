package channel

import (
	"context"
	"fmt"
	"log"

	"github.com/KofiRusu/neonhub-go/internal/compose"
	"github.com/KofiRusu/neonhub-go/internal/guardrail"
	"github.com/KofiRusu/neonhub-go/internal/intake"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

// Per-platform DM length limits. Unlisted platforms fall back to the
// default social cap.
var platformLimits = map[string]int{
	"x":         280,
	"instagram": 1000,
	"facebook":  2000,
	"whatsapp":  4096,
	"telegram":  4096,
}

const defaultDMLimit = 500

type DMSender struct {
	baseSender
	platform string
}

func NewDMSender(engine *store.Engine, composer *compose.Composer, enforcer *guardrail.Enforcer, pipeline *intake.Pipeline, transport Transport, platform string) *DMSender {
	if transport == nil {
		transport = &logTransport{channel: "dm"}
	}
	return &DMSender{
		baseSender: baseSender{
			name:      "dm",
			engine:    engine,
			composer:  composer,
			enforcer:  enforcer,
			pipeline:  pipeline,
			transport: transport,
		},
		platform: platform,
	}
}

func (s *DMSender) Name() string { return s.name }

func (s *DMSender) Send(ctx context.Context, req SendRequest) error {
	person, err := s.engine.GetPerson(req.PersonID)
	if err != nil {
		return fmt.Errorf("dm send: %w", err)
	}

	// WhatsApp consent rides on the phone-number opt-in.
	consentChannel := s.name
	if s.platform == "whatsapp" {
		consentChannel = "sms"
	}
	status, err := s.engine.GetConsent(req.PersonID, consentChannel)
	if err != nil {
		return fmt.Errorf("dm consent: %w", err)
	}
	if status != "" && status != store.ConsentGranted {
		return fmt.Errorf("dm for person %s: %w", req.PersonID, ErrConsentNotGranted)
	}

	handle := person.PrimaryHandle
	if ident, err := s.engine.FindIdentity(req.PersonID, store.IdentityHandle); err == nil {
		handle = ident.Value
	}
	if handle == "" {
		log.Printf("[dm] person %s has no handle, skipping %s dispatch", req.PersonID, s.platform)
		return fmt.Errorf("dm for person %s: %w", req.PersonID, ErrMissingEndpoint)
	}

	limit := defaultDMLimit
	if l, ok := platformLimits[s.platform]; ok {
		limit = l
	}
	constraints := map[string]any{"maxLength": limit, "platform": s.platform}
	for k, v := range req.Constraints {
		constraints[k] = v
	}
	_, body, err := s.composeBody(ctx, req, constraints)
	if err != nil {
		return fmt.Errorf("dm send: %w", err)
	}

	body = guardrail.Truncate(body, limit)
	if err := s.checkGuardrail(ctx, body, req.BrandID); err != nil {
		return err
	}

	if err := s.transport.Deliver(ctx, Delivery{To: handle, Body: body}); err != nil {
		return fmt.Errorf("dm delivery: %w", err)
	}
	return s.recordSendDM(ctx, req, body, handle)
}

func (s *DMSender) recordSendDM(ctx context.Context, req SendRequest, body, handle string) error {
	return s.pipeline.Ingest(ctx, intake.RawEvent{
		OrgID:    req.OrgID,
		PersonID: req.PersonID,
		Channel:  s.name,
		Type:     "send",
		Source:   s.name + "-sender",
		Payload:  map[string]any{"platform": s.platform, "handle": handle, "body": body},
		Metadata: map[string]any{
			"brandId":    req.BrandID,
			"objective":  req.Objective,
			"operatorId": req.OperatorID,
		},
	})
}
