// Package gateway wires the store, intake pipeline, composer and
// channel senders together and fronts them with an HTTP API.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/KofiRusu/neonhub-go/internal/bus"
	"github.com/KofiRusu/neonhub-go/internal/channel"
	"github.com/KofiRusu/neonhub-go/internal/compose"
	"github.com/KofiRusu/neonhub-go/internal/config"
	"github.com/KofiRusu/neonhub-go/internal/guardrail"
	"github.com/KofiRusu/neonhub-go/internal/identity"
	"github.com/KofiRusu/neonhub-go/internal/intake"
	"github.com/KofiRusu/neonhub-go/internal/retention"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

// Options for creating a Gateway.
type Options struct {
	SignalChan chan os.Signal // for testing signal handling
}

type Gateway struct {
	cfg        *config.Config
	engine     *store.Engine
	bus        *bus.MessageBus
	resolver   *identity.Resolver
	pipeline   *intake.Pipeline
	composer   *compose.Composer
	enforcer   *guardrail.Enforcer
	channels   *channel.Manager
	retention  *retention.Service
	server     *http.Server
	signalChan chan os.Signal
}

// New creates a Gateway with default options.
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing.
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.NewMessageBus(config.DefaultBusSize)

	dbPath := strings.TrimSpace(cfg.Store.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "neonhub.db")
	}
	engine, err := store.NewEngine(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.engine = engine

	g.resolver = identity.NewResolver(engine)

	var embedder intake.Embedder
	if e := compose.NewEmbedder(cfg); e != nil {
		embedder = e
	}
	g.pipeline = intake.NewPipeline(engine, g.resolver, embedder)

	g.composer = compose.NewComposer(engine, compose.NewCompleter(cfg), cfg)
	g.enforcer = guardrail.NewEnforcer(engine, cfg)

	chMgr, err := channel.NewManager(cfg, engine, g.composer, g.enforcer, g.pipeline, g.bus)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	if cfg.Retention.Enabled {
		g.retention = retention.NewService(cfg, engine)
	}

	g.signalChan = opts.SignalChan
	return g, nil
}

// Run starts the transports, the retention schedule, the inbound loop
// and the HTTP server, then blocks until SIGINT or SIGTERM.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if g.retention != nil {
		if err := g.retention.Start(ctx); err != nil {
			log.Printf("[gateway] retention start warning: %v", err)
		}
	}

	go g.processLoop(ctx)

	g.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port),
		Handler: g.routes(),
	}

	go func() {
		log.Printf("[gateway] listening on %s", g.server.Addr)
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[gateway] server error: %v", err)
		}
	}()

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

// processLoop turns inbound transport messages into reply events so
// the intake pipeline records them against the person.
func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound():
			handle := msg.SenderID
			if username, ok := msg.Metadata["username"].(string); ok && username != "" {
				handle = username
			}
			source := msg.Channel
			if platform, ok := msg.Metadata["platform"].(string); ok && platform != "" {
				source = platform
			}

			raw := intake.RawEvent{
				OrgID:      g.cfg.Organization,
				Handle:     handle,
				Channel:    msg.Channel,
				Type:       "reply",
				Source:     source,
				Payload:    map[string]any{"body": msg.Content, "chatId": msg.ChatID},
				Metadata:   msg.Metadata,
				OccurredAt: msg.Timestamp.UTC().Format(time.RFC3339),
			}
			if err := g.pipeline.Ingest(ctx, raw); err != nil {
				log.Printf("[gateway] inbound ingest from %s/%s failed: %v", msg.Channel, msg.SenderID, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) Shutdown() error {
	if g.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.server.Shutdown(ctx); err != nil {
			log.Printf("[gateway] server shutdown warning: %v", err)
		}
	}

	if err := g.channels.StopAll(); err != nil {
		log.Printf("[gateway] channels stop warning: %v", err)
	}

	if g.retention != nil {
		g.retention.Stop()
	}

	if err := g.engine.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	log.Printf("[gateway] shutdown complete")
	return nil
}

// Engine exposes the store for CLI subcommands sharing the wiring.
func (g *Gateway) Engine() *store.Engine { return g.engine }

// Pipeline exposes the intake pipeline.
func (g *Gateway) Pipeline() *intake.Pipeline { return g.pipeline }

// Composer exposes the message composer.
func (g *Gateway) Composer() *compose.Composer { return g.composer }

// Enforcer exposes the guardrail enforcer.
func (g *Gateway) Enforcer() *guardrail.Enforcer { return g.enforcer }

// Resolver exposes the identity resolver.
func (g *Gateway) Resolver() *identity.Resolver { return g.resolver }
