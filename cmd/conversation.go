package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/simonyos/roundtable/internal/config"
	"github.com/simonyos/roundtable/internal/export"
	"github.com/simonyos/roundtable/internal/llm"
	"github.com/simonyos/roundtable/internal/metrics"
	"github.com/simonyos/roundtable/internal/orchestrator"
	"github.com/simonyos/roundtable/internal/relay"
	"github.com/simonyos/roundtable/internal/tui"
)

var (
	convTopicFlag    string
	convTitleFlag    string
	convModeFlag     string
	convPersonaFlags []string

	runWatchFlag   bool
	runRelayFlag   bool
	runCheckFlag   bool
	runMetricsFlag string

	watchRemoteFlag bool

	exportFormatFlag string
	exportOutputFlag string
)

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Create, run and inspect conversations",
	Long: `Create, run and inspect conversations between personas.

Examples:
  roundtable conv new --topic "Is free will an illusion?" --mode debate --persona <id> --persona <id>
  roundtable conv run <id> --watch
  roundtable conv turn <id>
  roundtable conv export <id> --format markdown -o transcript.md`,
}

var convNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := orchestrator.ParseMode(convModeFlag)
		if err != nil {
			return err
		}

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if _, err := a.store.GetPersonas(ctx, convPersonaFlags); err != nil {
			return err
		}

		conv := orchestrator.Conversation{
			Title:      convTitleFlag,
			Topic:      convTopicFlag,
			Mode:       mode,
			PersonaIDs: convPersonaFlags,
		}
		if err := conv.Validate(); err != nil {
			return err
		}
		if err := a.store.CreateConversation(ctx, &conv); err != nil {
			return err
		}

		fmt.Printf("Created conversation %s\n", conv.ID)
		fmt.Printf("Run it with: roundtable conv run %s --watch\n", conv.ID)
		return nil
	},
}

var convListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List conversations",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		convs, err := a.store.ListConversations(cmd.Context())
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Println("No conversations yet.")
			return nil
		}

		for _, c := range convs {
			fmt.Printf("  %s  %s\n", titleStyle().Render(c.Title), mutedStyle().Render(c.ID))
			fmt.Printf("  %-12s %s  %d personas  updated %s\n", c.Mode, statusBadge(c.Status), len(c.PersonaIDs), formatTime(c.UpdatedAt))
			fmt.Println()
		}
		return nil
	},
}

var convShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		conv, err := a.store.GetConversation(ctx, args[0])
		if err != nil {
			return err
		}
		msgs, err := a.store.ListMessages(ctx, conv.ID)
		if err != nil {
			return err
		}

		fmt.Println(titleStyle().Render(conv.Title))
		fmt.Printf("%s · %s · %d/%d turns\n\n", conv.Mode, statusBadge(conv.Status), len(msgs), orchestrator.MaxTurns)
		if conv.Topic != "" {
			fmt.Printf("Topic: %s\n\n", conv.Topic)
		}
		for _, msg := range msgs {
			printMessage(*conv, msg)
		}
		return nil
	},
}

var convDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a conversation and its messages",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.DeleteConversation(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted conversation %s.\n", args[0])
		return nil
	},
}

var convTurnCmd = &cobra.Command{
	Use:   "turn <id>",
	Short: "Run a single turn and stream it to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		engine, err := a.engine(ctx, args[0], nil)
		if err != nil {
			return err
		}
		more, err := engine.ShouldContinue(ctx)
		if err != nil {
			return err
		}
		if !more {
			return a.finish(ctx, engine)
		}

		if err := a.store.SetStatus(ctx, args[0], orchestrator.StatusRunning); err != nil {
			return err
		}
		events, err := engine.ExecuteTurn(ctx)
		if err != nil {
			return err
		}
		if err := streamEvents(os.Stdout, events); err != nil {
			return err
		}
		return a.finish(ctx, engine)
	},
}

var convRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run turns until the conversation reaches its turn cap",
	Long: fmt.Sprintf(`Run turns until the conversation reaches %d messages, a turn fails or
the run is interrupted.

With --watch the conversation is shown in a full screen view. With --relay
every event is also published to NATS so other terminals can follow along
with 'roundtable conv watch <id> --remote'.`, orchestrator.MaxTurns),
	Args: cobra.ExactArgs(1),
	RunE: runConversation,
}

var convWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Watch a conversation",
	Long: `Watch a conversation.

Without --remote the conversation is run in this process, like 'conv run --watch'.
With --remote the view follows events published by another process.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !watchRemoteFlag {
			runWatchFlag = true
			return runConversation(cmd, args)
		}
		return watchRemote(cmd.Context(), args[0])
	},
}

var convExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a conversation as Markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormatFlag)
		if err != nil {
			return err
		}

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		conv, err := a.store.GetConversation(ctx, args[0])
		if err != nil {
			return err
		}
		msgs, err := a.store.ListMessages(ctx, conv.ID)
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		path := exportOutputFlag
		if path != "" {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, export.Filename(conv.ID, format))
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			defer f.Close()
			w = f
		}

		if err := export.Write(w, format, *conv, msgs); err != nil {
			return err
		}
		if path != "" {
			fmt.Fprintf(os.Stderr, "Exported %d message(s) to %s\n", len(msgs), path)
		}
		a.logger.Debug("conversation exported", zap.String("conversation", conv.ID), zap.String("format", string(format)))
		return nil
	},
}

var convStatsCmd = &cobra.Command{
	Use:   "stats <id>",
	Short: "Show word counts and speaking time for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		conv, err := a.store.GetConversation(ctx, args[0])
		if err != nil {
			return err
		}
		msgs, err := a.store.ListMessages(ctx, conv.ID)
		if err != nil {
			return err
		}
		printStats(*conv, export.ComputeStats(msgs))
		return nil
	},
}

// engine opens the engine for id, reporting to observer when it is not nil
func (a *app) engine(ctx context.Context, id string, observer orchestrator.Observer) (*orchestrator.Engine, error) {
	return orchestrator.OpenEngine(ctx, id, orchestrator.Config{
		Store:       a.store,
		Providers:   a.registry,
		Credentials: config.Credentials{},
		Observer:    observer,
		Logger:      a.logger,
	})
}

// finish marks the conversation completed once it has reached its turn cap
func (a *app) finish(ctx context.Context, engine *orchestrator.Engine) error {
	more, err := engine.ShouldContinue(ctx)
	if err != nil || more {
		return err
	}
	return a.store.SetStatus(ctx, engine.Conversation().ID, orchestrator.StatusCompleted)
}

func streamEvents(w io.Writer, events <-chan orchestrator.Event) error {
	var turnErr error
	for ev := range events {
		printEvent(w, ev)
		if ev.Type == orchestrator.EventError {
			turnErr = ev.Err
		}
	}
	return turnErr
}

func printEvent(w io.Writer, ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventPersona:
		fmt.Fprintf(w, "%s %s\n", titleStyle().Render(strings.TrimSpace(ev.Persona.Avatar+" "+ev.Persona.Name)), mutedStyle().Render(ev.Persona.Model))
	case orchestrator.EventContent:
		fmt.Fprint(w, ev.Content)
	case orchestrator.EventDone:
		fmt.Fprint(w, "\n\n")
	case orchestrator.EventError:
		fmt.Fprintln(w, errorStyle().Render("\nError: "+ev.Err.Error()))
	}
}

func runConversation(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := openApp(runWatchFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	var observer orchestrator.Observer
	var collector *metrics.Collector
	if runMetricsFlag != "" {
		reg := prometheus.NewRegistry()
		collector = metrics.NewCollector(reg)
		observer = collector
		go func() {
			if err := metrics.Serve(ctx, runMetricsFlag, reg, a.logger); err != nil {
				a.logger.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	engine, err := a.engine(ctx, id, observer)
	if err != nil {
		return err
	}
	if runCheckFlag {
		if err := a.checkBackends(ctx, engine.Conversation(), collector); err != nil {
			return err
		}
	}

	var forward func(orchestrator.Event)
	if runRelayFlag {
		r, err := connectRelay(a.logger)
		if err != nil {
			return err
		}
		defer r.Close()
		forward = r.Forward(id, nil)
	}

	if err := a.store.SetStatus(ctx, id, orchestrator.StatusRunning); err != nil {
		return err
	}

	if runWatchFlag {
		err = watchLocal(ctx, a, engine, forward)
	} else {
		err = engine.Run(ctx, func(ev orchestrator.Event) {
			if forward != nil {
				forward(ev)
			}
			printEvent(os.Stdout, ev)
		})
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}
	if err != nil {
		return err
	}
	return a.finish(context.WithoutCancel(ctx), engine)
}

// checkBackends validates the credential of every backend seated in conv
func (a *app) checkBackends(ctx context.Context, conv orchestrator.Conversation, collector *metrics.Collector) error {
	personas, err := a.store.GetPersonas(ctx, conv.PersonaIDs)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var errs []error
	for _, p := range personas {
		if seen[p.Backend] {
			continue
		}
		seen[p.Backend] = true

		provider, ok := a.registry.Get(p.Backend)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", orchestrator.ErrUnknownBackend, p.Backend))
			continue
		}
		credential, _ := config.Credentials{}.Credential(p.Backend)
		result := llm.Validate(ctx, provider, credential)
		if collector != nil {
			collector.RecordValidation(result.Backend, result.Valid)
		}
		a.logger.Info("backend checked",
			zap.String("backend", result.Backend),
			zap.Bool("valid", result.Valid),
			zap.Int("models", result.ModelCount))
		if !result.Valid {
			errs = append(errs, fmt.Errorf("backend %s rejected its credential or is unreachable", p.Backend))
		}
	}
	return errors.Join(errs...)
}

func watchLocal(ctx context.Context, a *app, engine *orchestrator.Engine, forward func(orchestrator.Event)) error {
	conv := engine.Conversation()
	personas, err := a.store.GetPersonas(ctx, conv.PersonaIDs)
	if err != nil {
		return err
	}
	history, err := a.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return err
	}

	session := tui.StartLocal(ctx, engine, forward)
	if err := tui.Run(tui.New(conv, personas, history, session)); err != nil {
		session.Stop()
		return err
	}
	session.Stop()
	return session.Err()
}

func watchRemote(ctx context.Context, id string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := a.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	personas, err := a.store.GetPersonas(ctx, conv.PersonaIDs)
	if err != nil {
		return err
	}
	history, err := a.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return err
	}

	r, err := connectRelay(a.logger)
	if err != nil {
		return err
	}
	session, err := tui.WatchRemote(r, conv.ID)
	if err != nil {
		_ = r.Close()
		return err
	}
	defer session.Stop()

	return tui.Run(tui.New(*conv, personas, history, session))
}

func connectRelay(logger *zap.Logger) (*relay.Relay, error) {
	cfg := relay.DefaultNATSConfig()
	if url := config.NATSURL(); url != "" {
		cfg.URL = url
	}
	r := relay.New(cfg, logger)
	if err := r.Connect(); err != nil {
		return nil, err
	}
	return r, nil
}

func printStats(conv orchestrator.Conversation, s export.Stats) {
	fmt.Println(titleStyle().Render(conv.Title))
	fmt.Println()
	fmt.Printf("  Messages:         %d\n", s.TotalMessages)
	fmt.Printf("  Words:            %d\n", s.TotalWords)
	fmt.Printf("  Estimated tokens: %d\n", s.EstimatedTokens)
	fmt.Printf("  Duration:         %s\n", export.FormatDuration(s.Duration))
	fmt.Println()

	if len(s.Personas) > 0 {
		fmt.Println(titleStyle().Render("Participation"))
		for _, p := range s.Personas {
			name := speakerStyle(conv, p.PersonaID).Render(fmt.Sprintf("%-24s", p.Name))
			fmt.Printf("  %s %3d messages  %5d words  avg %d\n", name, p.Messages, p.Words, p.AverageWords())
		}
		fmt.Println()
	}

	if len(s.TopWords) > 0 {
		fmt.Println(titleStyle().Render("Top words"))
		for _, w := range s.TopWords {
			fmt.Printf("  %-20s %d\n", w.Word, w.Count)
		}
	}
}

func init() {
	convNewCmd.Flags().StringVar(&convTopicFlag, "topic", "", "Topic the personas discuss")
	convNewCmd.Flags().StringVar(&convTitleFlag, "title", "", "Title (defaults to the topic)")
	convNewCmd.Flags().StringVar(&convModeFlag, "mode", string(orchestrator.ModeRoundRobin), "Mode: "+orchestrator.ModeNames(", "))
	convNewCmd.Flags().StringArrayVarP(&convPersonaFlags, "persona", "p", nil, "Persona id, repeat for each seat in speaking order")
	_ = convNewCmd.MarkFlagRequired("topic")
	_ = convNewCmd.MarkFlagRequired("persona")

	convRunCmd.Flags().BoolVarP(&runWatchFlag, "watch", "w", false, "Show the conversation in a full screen view")
	convRunCmd.Flags().BoolVar(&runRelayFlag, "relay", false, "Publish events to NATS")
	convRunCmd.Flags().BoolVar(&runCheckFlag, "check", false, "Validate every seated backend before the first turn")
	convRunCmd.Flags().StringVar(&runMetricsFlag, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	convWatchCmd.Flags().BoolVar(&watchRemoteFlag, "remote", false, "Follow events published by another process")
	convWatchCmd.Flags().BoolVar(&runRelayFlag, "relay", false, "Publish events to NATS when running locally")
	convWatchCmd.Flags().StringVar(&runMetricsFlag, "metrics-addr", "", "Serve Prometheus metrics on this address when running locally")

	convExportCmd.Flags().StringVarP(&exportFormatFlag, "format", "f", "markdown", "Export format: markdown or json")
	convExportCmd.Flags().StringVarP(&exportOutputFlag, "output", "o", "", "Write to this file or directory instead of stdout")

	conversationCmd.AddCommand(convNewCmd)
	conversationCmd.AddCommand(convListCmd)
	conversationCmd.AddCommand(convShowCmd)
	conversationCmd.AddCommand(convDeleteCmd)
	conversationCmd.AddCommand(convTurnCmd)
	conversationCmd.AddCommand(convRunCmd)
	conversationCmd.AddCommand(convWatchCmd)
	conversationCmd.AddCommand(convExportCmd)
	conversationCmd.AddCommand(convStatsCmd)
	rootCmd.AddCommand(conversationCmd)
}
