package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/lifesaver/internal/profile"
	"github.com/hrygo/lifesaver/plugin/ai/metrics"
	"github.com/hrygo/lifesaver/plugin/ai/observer"
	"github.com/hrygo/lifesaver/plugin/ai/orchestrator"
	"github.com/hrygo/lifesaver/plugin/ai/protocol"
	"github.com/hrygo/lifesaver/plugin/ai/reasoner"
	"github.com/hrygo/lifesaver/plugin/ai/timeout"
	"github.com/hrygo/lifesaver/server"
	"github.com/hrygo/lifesaver/store"
	"github.com/hrygo/lifesaver/store/db"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := profile.NewViper()
	rootCmd := &cobra.Command{
		Use:          "lifesaver",
		Short:        "Emergency first-aid guidance service",
		Long:         "lifesaver walks a bystander through a first-aid protocol one confirmed step at a time and hands responders an incident report.",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("driver", "memory", "session store driver: memory, sqlite or postgres")
	flags.String("dsn", "", "database source name")
	flags.String("data", "", "data directory for the sqlite driver")
	flags.String("protocols-file", "", "YAML file with additional protocols")
	flags.String("llm-provider", "openai", `reasoner provider, "rule" runs without an LLM`)
	flags.String("llm-model", "gpt-4o-mini", "chat completion model")
	flags.String("llm-base-url", "https://api.openai.com/v1", "OpenAI-compatible API base url")
	for _, name := range []string{"mode", "driver", "dsn", "data", "protocols-file", "llm-provider", "llm-model", "llm-base-url"} {
		_ = v.BindPFlag(flagKey(name), flags.Lookup(name))
	}

	rootCmd.AddCommand(newServeCmd(v), newDemoCmd(v), newVersionCmd())
	return rootCmd
}

func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProfile(v)
			if err != nil {
				return err
			}
			setupLogger(p, os.Stderr)

			app, err := newApp(p)
			if err != nil {
				return err
			}
			defer app.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.NewServer(p, app.store, app.orchestrator, app.metrics).Run(ctx)
		},
	}
	cmd.Flags().String("addr", "", "address of server")
	cmd.Flags().Int("port", 8081, "port of server")
	_ = v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("port", cmd.Flags().Lookup("port"))
	return cmd
}

func loadProfile(v *viper.Viper) (*profile.Profile, error) {
	p := &profile.Profile{}
	p.FromViper(v)
	p.Version = version
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate profile: %w", err)
	}
	return p, nil
}

func setupLogger(p *profile.Profile, w io.Writer) {
	level := slog.LevelInfo
	if p.Mode == "dev" {
		level = slog.LevelDebug
	}
	var handler slog.Handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	if p.Mode == "prod" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// app holds the wired components shared by the commands.
type app struct {
	store        *store.Store
	orchestrator *orchestrator.Orchestrator
	metrics      *metrics.Aggregator
	dispatcher   *observer.Dispatcher
}

func newApp(p *profile.Profile) (*app, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	s := store.New(driver)

	agg := metrics.NewAggregator()
	dispatcher := observer.NewDispatcher(observer.NewLogObserver(slog.Default()), agg)

	orch, err := orchestrator.New(s, newReasoner(p), newLookup(p), orchestrator.Config{
		ConfidenceThreshold: p.ConfidenceThreshold,
		ClarificationCap:    p.ClarificationCap,
		LookupTimeout:       p.LookupTimeout,
	}, orchestrator.WithEmitter(dispatcher))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return &app{store: s, orchestrator: orch, metrics: agg, dispatcher: dispatcher}, nil
}

func (a *app) close() {
	a.dispatcher.Wait()
	if err := a.store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
}

func newLookup(p *profile.Profile) protocol.Lookup {
	if p.ProtocolsFile == "" {
		return protocol.NewBuiltin()
	}
	return protocol.NewCached(protocol.NewFileLookup(p.ProtocolsFile, protocol.NewBuiltin()), timeout.ProtocolCacheTTL)
}

func newReasoner(p *profile.Profile) reasoner.Reasoner {
	if !p.IsLLMEnabled() {
		slog.Info("no LLM configured, using the rule reasoner")
		return reasoner.RuleReasoner{}
	}
	llm := reasoner.NewOpenAIReasoner(reasoner.OpenAIConfig{
		APIKey:  p.LLMAPIKey,
		BaseURL: p.LLMBaseURL,
		Model:   p.LLMModel,
	})
	return reasoner.NewResilient(llm, p.ReasonerTimeout, p.RetryBackoff)
}

// runScript feeds messages to one session and prints every reply.
func runScript(ctx context.Context, w io.Writer, orch *orchestrator.Orchestrator, messages []string) (*orchestrator.TurnResponse, error) {
	var last *orchestrator.TurnResponse
	sessionID := ""
	for _, msg := range messages {
		resp, err := orch.HandleTurn(ctx, &orchestrator.TurnRequest{SessionID: sessionID, Message: msg})
		if err != nil {
			return nil, fmt.Errorf("failed to handle %q: %w", msg, err)
		}
		sessionID = resp.SessionID
		fmt.Fprintf(w, "> %s\n%s\n[%s]\n\n", msg, resp.ReplyText, resp.Status)
		last = resp
		if resp.Status.IsTerminal() {
			break
		}
	}
	return last, nil
}
