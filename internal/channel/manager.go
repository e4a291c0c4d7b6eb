package channel

import (
	"context"
	"fmt"
	"log"

	"github.com/KofiRusu/neonhub-go/internal/bus"
	"github.com/KofiRusu/neonhub-go/internal/compose"
	"github.com/KofiRusu/neonhub-go/internal/config"
	"github.com/KofiRusu/neonhub-go/internal/guardrail"
	"github.com/KofiRusu/neonhub-go/internal/intake"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

// Manager owns the enabled senders and their transports.
type Manager struct {
	senders    map[string]Sender
	transports []*TelegramTransport
	bus        *bus.MessageBus
}

func NewManager(cfg *config.Config, engine *store.Engine, composer *compose.Composer, enforcer *guardrail.Enforcer, pipeline *intake.Pipeline, b *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		senders: make(map[string]Sender),
		bus:     b,
	}

	if cfg.Channels.Email.Enabled {
		m.senders["email"] = NewEmailSender(engine, composer, enforcer, pipeline, nil)
	}

	if cfg.Channels.SMS.Enabled {
		m.senders["sms"] = NewSMSSender(engine, composer, enforcer, pipeline, nil)
	}

	if cfg.Channels.DM.Enabled {
		var transport Transport
		if cfg.Channels.DM.Token != "" {
			tg, err := NewTelegramTransport(cfg.Channels.DM, b)
			if err != nil {
				return nil, fmt.Errorf("init telegram transport: %w", err)
			}
			m.transports = append(m.transports, tg)
			transport = tg
		}
		m.senders["dm"] = NewDMSender(engine, composer, enforcer, pipeline, transport, "telegram")
	}

	for name, sender := range m.senders {
		s := sender
		b.SubscribeOutbound(name, func(msg bus.OutboundMessage) {
			req := SendRequest{
				OrgID:     cfg.Organization,
				PersonID:  msg.To,
				Objective: msg.Subject,
			}
			if id, ok := msg.Metadata["brandId"].(string); ok {
				req.BrandID = id
			}
			if obj, ok := msg.Metadata["objective"].(string); ok && obj != "" {
				req.Objective = obj
			}
			if err := s.Send(context.Background(), req); err != nil {
				log.Printf("[channel-mgr] send on %s failed: %v", s.Name(), err)
			}
		})
	}

	return m, nil
}

// StartAll brings up every transport that needs a receive loop.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, tg := range m.transports {
		log.Printf("[channel-mgr] starting telegram transport")
		if err := tg.Start(ctx); err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
	}
	return nil
}

func (m *Manager) StopAll() error {
	for _, tg := range m.transports {
		log.Printf("[channel-mgr] stopping telegram transport")
		if err := tg.Stop(); err != nil {
			log.Printf("[channel-mgr] error stopping telegram: %v", err)
		}
	}
	return nil
}

// Sender returns the sender registered for channel, or nil.
func (m *Manager) Sender(channel string) Sender {
	return m.senders[channel]
}

// EnabledChannels lists the channels with a registered sender.
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.senders))
	for name := range m.senders {
		names = append(names, name)
	}
	return names
}
