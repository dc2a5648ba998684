package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mwhitfield/foliochat/internal/actions"
	"github.com/mwhitfield/foliochat/internal/api"
	"github.com/mwhitfield/foliochat/internal/compose"
	"github.com/mwhitfield/foliochat/internal/config"
	"github.com/mwhitfield/foliochat/internal/delivery"
	"github.com/mwhitfield/foliochat/internal/engine"
	"github.com/mwhitfield/foliochat/internal/ingest"
	"github.com/mwhitfield/foliochat/internal/retrieval"
	"github.com/mwhitfield/foliochat/internal/storage"
	"github.com/mwhitfield/foliochat/internal/turn"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the foliochat server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running foliochat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "foliochat.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// distributionRecorder adapts the storage layer to the executor's event
// interface, stamping id and timestamp at record time.
type distributionRecorder struct {
	store *storage.Store
}

func (r distributionRecorder) RecordDistribution(sessionID, email, name, deliveryID string) error {
	return r.store.RecordDistribution(storage.Distribution{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Email:      email,
		Name:       name,
		DeliveryID: deliveryID,
		CreatedAt:  time.Now().UTC(),
	})
}

// smsDisabled satisfies the SMS interface when no credentials are
// configured. Notification is best-effort anyway.
type smsDisabled struct{}

func (smsDisabled) Send(_ context.Context, _ string) error { return nil }

func runServer() error {
	fmt.Fprintf(os.Stderr, "foliochat version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to double-start: probe the health endpoint before claiming
	// the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("foliochat is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("foliochat is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local inference engine readiness.
	eng := engine.NewOllamaEngine(cfg.Ollama.BaseURL)
	if err := engine.EnsureReady(ctx, eng, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Retrieval and answer generation.
	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	retriever := retrieval.NewRetriever(embedder, vectorStore)
	composer := compose.New(cfg.Owner.Name, 0)
	generator := compose.NewGenerator(
		retriever, composer, eng, cfg.Ollama.ChatModel,
		cfg.Retrieval.TopK, float32(cfg.Retrieval.MinScore), nil,
	)

	// Delivery stack.
	emailFrom := cfg.Delivery.EmailFrom
	if emailFrom == "" {
		emailFrom = fmt.Sprintf("%s <onboarding@resend.dev>", cfg.Owner.Name)
	}
	emailSubject := fmt.Sprintf("Resume — %s", cfg.Owner.Name)
	emailClient := delivery.NewEmailClient(cfg.Delivery.EmailAPIKey, emailFrom, emailSubject)

	var sms actions.SMSSender = smsDisabled{}
	if cfg.Delivery.SMSEnabled() {
		sms = delivery.NewSMSClient(
			cfg.Delivery.SMSAccountSID, cfg.Delivery.SMSAuthToken,
			cfg.Delivery.SMSFrom, cfg.Delivery.SMSTo,
		)
	} else {
		slog.Info("sms notifications disabled: credentials incomplete")
	}

	assets := delivery.NewResumeAssets(cfg.Owner.ResumePDF)
	executor := actions.NewExecutor(assets, emailClient, sms, store, distributionRecorder{store: store}, nil)

	// Per-turn pipeline.
	pipe := turn.NewPipeline(store, store, generator, executor, nil, nil)

	publicHandler := api.NewPublicHandler(pipe)
	adminHandler := api.NewAdminHandler(api.AdminDeps{
		Store:      store,
		Token:      cfg.Server.AdminToken,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Vectors:    vectorStore,
	})

	topRouter := chi.NewRouter()
	topRouter.Mount("/", publicHandler)
	topRouter.Mount("/admin", adminHandler)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: topRouter,
	}

	// Background embedding worker.
	worker := ingest.NewWorker(store, embedder, vectorStore, 500*time.Millisecond, nil)
	go worker.Run(ctx)

	// MCP server on stdio.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:      store,
		Turns:      pipe,
		Retriever:  retriever,
		MinScore:   float32(cfg.Retrieval.MinScore),
		OwnerName:  cfg.Owner.Name,
		ResumePath: cfg.Owner.ResumePDF,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "foliochat listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("foliochat is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop foliochat (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to foliochat (PID %d)", pid)
	return nil
}
