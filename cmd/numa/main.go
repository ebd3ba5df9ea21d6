package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"numa/internal/config"
	"numa/internal/fim"
	"numa/internal/ledger"
	"numa/internal/logging"
	"numa/internal/orchestrator"
	"numa/internal/server"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "numa",
	Short: "Numa - asistente de finanzas personales por voz",
	Long: `Numa is a voice-first personal finance assistant for Mexican Spanish.

It transcribes spoken expenses, resolves financial intent through a
three-level cascade, and keeps every peso in a verifiable ledger where
provisional entries are settled against receipts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if verbose {
			level = "debug"
		}
		var err error
		logger, err = logging.New(level)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask [owner-id] [message]",
	Short: "Process one text message for an owner and print the reply",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

var registerCmd = &cobra.Command{
	Use:   "register [email] [name] [password]",
	Short: "Create a user account",
	Args:  cobra.ExactArgs(3),
	RunE:  runRegister,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, askCmd, registerCmd)
}

// buildStack wires config into the ledger, motor and orchestrator.
func buildStack(cfg *config.Config) (*ledger.Store, *orchestrator.Orchestrator, error) {
	llm := fim.NewGeminiClient(fim.GeminiConfig{
		APIKey:  cfg.Reasoning.APIKey,
		BaseURL: cfg.Reasoning.BaseURL,
		Model:   cfg.Reasoning.Model,
		Timeout: config.ParseTimeout(cfg.Reasoning.Timeout, 30*time.Second),
	}, logger)

	store, err := ledger.Open(cfg.Storage.Path,
		ledger.WithLogger(logger),
		ledger.WithCategorizer(
			fim.NewCategoryClassifier(llm, fim.WithAntLimit(cfg.Intent.AntExpenseThreshold)),
			cfg.Intent.ConfidenceThreshold),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	sttKey := cfg.STT.APIKey
	if sttKey == "" {
		sttKey = cfg.Reasoning.APIKey
	}
	transcriber := fim.NewGoogleTranscriber(fim.STTConfig{
		APIKey:       sttKey,
		BaseURL:      cfg.STT.Endpoint,
		LanguageCode: cfg.STT.Language,
		Model:        cfg.STT.Model,
		Timeout:      config.ParseTimeout(cfg.STT.Timeout, 15*time.Second),
	}, logger)

	orch := orchestrator.New(orchestrator.Config{
		Store:               store,
		Classifier:          fim.NewClassifier(llm, logger, fim.WithAntExpenseLimit(cfg.Intent.AntExpenseThreshold)),
		Transcriber:         transcriber,
		Analyzer:            fim.NewDocumentAnalyzer(llm),
		Advisor:             fim.NewAdvisor(llm),
		Logger:              logger,
		Deadline:            cfg.RequestDeadline(),
		ConfidenceThreshold: cfg.Intent.ConfidenceThreshold,
	})
	return store, orch, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, orch, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(server.Config{
		Addr:     cfg.Server.Addr,
		Secret:   cfg.Auth.Secret,
		TokenTTL: config.ParseTimeout(cfg.Auth.TokenTTL, 24*time.Hour),
		Store:    store,
		Orch:     orch,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Start(ctx)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, orch, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ownerID := args[0]
	message := args[1]
	envelope := orch.HandleText(cmd.Context(), ownerID, message)
	fmt.Println(envelope.Message)
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := ledger.Open(cfg.Storage.Path, ledger.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()

	user, err := store.CreateUser(cmd.Context(), args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (%s)\n", user.Email, user.ID)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
