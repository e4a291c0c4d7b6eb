package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/KofiRusu/neonhub-go/internal/compose"
	"github.com/KofiRusu/neonhub-go/internal/config"
	"github.com/KofiRusu/neonhub-go/internal/gateway"
	"github.com/KofiRusu/neonhub-go/internal/guardrail"
	"github.com/KofiRusu/neonhub-go/internal/identity"
	"github.com/KofiRusu/neonhub-go/internal/intake"
	"github.com/KofiRusu/neonhub-go/internal/retention"
	"github.com/KofiRusu/neonhub-go/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "neonhub",
	Short: "neonhub - customer messaging core",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway (HTTP API + channel transports + retention)",
	RunE:  runServe,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize config and data directory",
	RunE:  runInit,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show neonhub status",
	RunE:  runStatus,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve contact fields to a person id",
	RunE:  runResolve,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a raw event from a JSON file or stdin",
	RunE:  runIngest,
}

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Compose a message for a person",
	RunE:  runCompose,
}

var guardrailCmd = &cobra.Command{
	Use:   "guardrail [text]",
	Short: "Check text against the content guardrail",
	Args:  cobra.ExactArgs(1),
	RunE:  runGuardrail,
}

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Run a retention pass now (purge memories, decay topics)",
	RunE:  runRetention,
}

var (
	emailFlag     string
	phoneFlag     string
	handleFlag    string
	externalFlag  string
	personFlag    string
	brandFlag     string
	channelFlag   string
	objectiveFlag string
	fileFlag      string
)

func init() {
	resolveCmd.Flags().StringVar(&emailFlag, "email", "", "Email address")
	resolveCmd.Flags().StringVar(&phoneFlag, "phone", "", "Phone number")
	resolveCmd.Flags().StringVar(&handleFlag, "handle", "", "Social handle")
	resolveCmd.Flags().StringVar(&externalFlag, "external-id", "", "External system id")

	ingestCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "JSON event file (defaults to stdin)")

	composeCmd.Flags().StringVar(&personFlag, "person", "", "Person id")
	composeCmd.Flags().StringVar(&brandFlag, "brand", "", "Brand id")
	composeCmd.Flags().StringVar(&channelFlag, "channel", "email", "Target channel")
	composeCmd.Flags().StringVar(&objectiveFlag, "objective", "", "Message objective")
	_ = composeCmd.MarkFlagRequired("person")
	_ = composeCmd.MarkFlagRequired("objective")

	guardrailCmd.Flags().StringVar(&channelFlag, "channel", "email", "Target channel")
	guardrailCmd.Flags().StringVar(&brandFlag, "brand", "", "Brand id")

	rootCmd.AddCommand(serveCmd, initCmd, statusCmd, resolveCmd, ingestCmd, composeCmd, guardrailCmd, retentionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runInit(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	engine, err := store.NewEngine(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer engine.Close()

	fmt.Printf("Store ready: %s\n", cfg.Store.DBPath)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to configure channels\n", cfgPath)
	fmt.Println("  2. Set NEONHUB_API_KEY (or OPENAI_API_KEY) to enable LLM composition")
	fmt.Println("  3. Run 'neonhub serve' to start the gateway")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Organization: %s\n", cfg.Organization)
	fmt.Printf("Store: %s\n", cfg.Store.DBPath)
	fmt.Printf("Model: %s\n", cfg.Model())
	if key := cfg.Provider.APIKey; key != "" && len(key) > 8 {
		fmt.Printf("API Key: %s...%s\n", key[:4], key[len(key)-4:])
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set (composition uses the deterministic fallback)")
	}
	fmt.Printf("Email: enabled=%v\n", cfg.Channels.Email.Enabled)
	fmt.Printf("SMS: enabled=%v\n", cfg.Channels.SMS.Enabled)
	fmt.Printf("DM: enabled=%v\n", cfg.Channels.DM.Enabled)
	fmt.Printf("Retention: enabled=%v schedule=%q\n", cfg.Retention.Enabled, cfg.RetentionSchedule())
	return nil
}

// runtime is the minimal wiring shared by the one-shot subcommands.
type runtime struct {
	cfg      *config.Config
	engine   *store.Engine
	resolver *identity.Resolver
	pipeline *intake.Pipeline
	composer *compose.Composer
	enforcer *guardrail.Enforcer
}

func openRuntime() (*runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	engine, err := store.NewEngine(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	resolver := identity.NewResolver(engine)
	var embedder intake.Embedder
	if e := compose.NewEmbedder(cfg); e != nil {
		embedder = e
	}
	return &runtime{
		cfg:      cfg,
		engine:   engine,
		resolver: resolver,
		pipeline: intake.NewPipeline(engine, resolver, embedder),
		composer: compose.NewComposer(engine, compose.NewCompleter(cfg), cfg),
		enforcer: guardrail.NewEnforcer(engine, cfg),
	}, nil
}

func (r *runtime) close() {
	_ = r.engine.Close()
}

func runResolve(cmd *cobra.Command, args []string) error {
	if emailFlag == "" && phoneFlag == "" && handleFlag == "" && externalFlag == "" {
		return fmt.Errorf("at least one of --email, --phone, --handle, --external-id is required")
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	personID, err := rt.resolver.Resolve(context.Background(), identity.Descriptor{
		OrgID:      rt.cfg.Organization,
		Email:      emailFlag,
		Phone:      phoneFlag,
		Handle:     handleFlag,
		ExternalID: externalFlag,
	})
	if err != nil {
		return err
	}
	fmt.Println(personID)
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if fileFlag != "" {
		data, err = os.ReadFile(fileFlag)
	} else {
		data, err = readStdin()
	}
	if err != nil {
		return fmt.Errorf("read event: %w", err)
	}

	var raw intake.RawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	if raw.OrgID == "" {
		raw.OrgID = rt.cfg.Organization
	}
	if err := rt.pipeline.Ingest(context.Background(), raw); err != nil {
		return err
	}
	fmt.Println("ingested")
	return nil
}

func runCompose(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.composer.Compose(context.Background(), compose.Args{
		Channel:   channelFlag,
		Objective: objectiveFlag,
		PersonID:  personFlag,
		BrandID:   brandFlag,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runGuardrail(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	verdict := rt.enforcer.Check(context.Background(), args[0], channelFlag, brandFlag)
	out, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runRetention(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	svc := retention.NewService(rt.cfg, rt.engine)
	purged, decayed, err := svc.RunOnce()
	if err != nil {
		return err
	}
	fmt.Printf("purged %d memories, decayed %d topics\n", purged, decayed)
	return nil
}

func readStdin() ([]byte, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("no event file given and stdin is a terminal")
	}
	return io.ReadAll(os.Stdin)
}
