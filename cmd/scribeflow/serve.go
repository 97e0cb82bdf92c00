package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	sched "github.com/scribeflow/sched"
	"github.com/scribeflow/sched/agent"
	"github.com/scribeflow/sched/httpapi"
	"github.com/scribeflow/sched/stage"
	"github.com/scribeflow/sched/store"
	"github.com/scribeflow/sched/store/memory"
	redisstore "github.com/scribeflow/sched/store/redis"
)

var serveFlags struct {
	listen        string
	transcribeURL string
	generateURL   string
	model         string
	agentsFile    string
	redisURL      string
	logJSON       bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduling daemon",
	Long: `Starts the dispatcher and the HTTP API.

Scheduler tuning (concurrency, queue depth, retry budget, backoff,
input grace, retention) comes from SCHED_* environment variables.
Endpoints and storage are set by flags.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.listen, "listen", ":8080", "HTTP API listen address")
	f.StringVar(&serveFlags.transcribeURL, "transcribe-url", "http://localhost:8001/v1/audio/transcriptions", "whisper-compatible transcription endpoint")
	f.StringVar(&serveFlags.generateURL, "generate-url", "http://localhost:1234/v1/chat/completions", "OpenAI-compatible chat completions endpoint")
	f.StringVar(&serveFlags.model, "model", "default", "model name sent with generation requests")
	f.StringVar(&serveFlags.agentsFile, "agents", "", "YAML file with agent profile overrides")
	f.StringVar(&serveFlags.redisURL, "redis", "", "redis URL for the outcome archive (in-memory when empty)")
	f.BoolVar(&serveFlags.logJSON, "log-json", false, "emit JSON logs")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger(serveFlags.logJSON)

	cfg, err := sched.ConfigFromEnv()
	if err != nil {
		return err
	}

	agents := agent.NewRegistry()
	if serveFlags.agentsFile != "" {
		if err := agents.LoadFile(serveFlags.agentsFile); err != nil {
			return err
		}
		logger.Info("loaded agent profiles", "path", serveFlags.agentsFile)
	}

	archive, closeArchive, err := newArchive(cmd.Context(), logger)
	if err != nil {
		return err
	}
	defer closeArchive()

	d, err := sched.New(cfg,
		sched.WithLogger(logger),
		sched.WithTranscriber(&stage.TranscribeClient{URL: serveFlags.transcribeURL}),
		sched.WithGenerator(&stage.GenerateClient{
			URL:    serveFlags.generateURL,
			Model:  serveFlags.model,
			Agents: agents,
		}),
		sched.WithStore(archive),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		return err
	}

	api := httpapi.New(d, httpapi.WithLogger(logger), httpapi.WithArchive(archive))
	srv := &http.Server{
		Addr:              serveFlags.listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http api listening", "addr", serveFlags.listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		return d.Stop(shutdownCtx)
	})

	return g.Wait()
}

func newLogger(jsonOut bool) *slog.Logger {
	if jsonOut {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// newArchive picks the outcome store: redis when --redis is set, the
// in-process memory store otherwise.
func newArchive(ctx context.Context, logger *slog.Logger) (store.Store, func(), error) {
	if serveFlags.redisURL == "" {
		return memory.New(), func() {}, nil
	}

	opts, err := goredis.ParseURL(serveFlags.redisURL)
	if err != nil {
		return nil, nil, err
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Info("redis archive connected", "addr", opts.Addr)

	return redisstore.New(client, redisstore.WithLogger(logger)), func() { client.Close() }, nil
}
