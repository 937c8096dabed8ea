package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"udon-bot/handler"
	"udon-bot/internal/config"
	"udon-bot/internal/conversation"
	"udon-bot/internal/integrations/hotpepper"
	"udon-bot/internal/integrations/line"
	"udon-bot/internal/integrations/openai"
	"udon-bot/internal/integrations/paramstore"
	"udon-bot/internal/observability/metrics"
	"udon-bot/internal/repository"
	"udon-bot/internal/usecase"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "err", err)
	}
	setupLogger(os.Getenv("LOCAL_ADDR") != "")

	// ---- AWS SDK config (only when SSM or DynamoDB are in use) ----
	paramPrefix := os.Getenv("PARAM_PREFIX")
	var awsCfg aws.Config
	if paramPrefix != "" || os.Getenv("TRANSCRIPT_TABLE") != "" {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
	}

	// ---- Configuration (read only here) ----
	var params config.Getter
	if paramPrefix != "" {
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			slog.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		params = ssmClient
	}
	cfg, err := config.Load(ctx, os.Getenv, params, paramPrefix)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// ---- Conversation state ----
	sessions, err := conversation.NewSessions(cfg.ConversationScope)
	if err != nil {
		slog.Error("failed to create conversation sessions", "err", err)
		os.Exit(1)
	}
	if shared, ok := sessions.(*conversation.SharedSessions); ok {
		shared.Session("").Reset()
	}

	botMetrics := metrics.NewBotMetrics(prometheus.DefaultRegisterer)

	// ---- Clients ----
	llm, err := openai.NewClient(cfg.AzureEndpoint, cfg.AzureAPIKey, cfg.AzureAPIVersion, cfg.AzureModel)
	if err != nil {
		slog.Error("failed to create Azure OpenAI client", "err", err)
		os.Exit(1)
	}
	shopSearch, err := hotpepper.NewClient(cfg.HotPepperAPIKey, hotpepper.WithBaseURL(cfg.HotPepperBaseURL))
	if err != nil {
		slog.Error("failed to create HotPepper client", "err", err)
		os.Exit(1)
	}
	lineClient, err := line.NewClient(cfg.LineChannelToken)
	if err != nil {
		slog.Error("failed to create LINE client", "err", err)
		os.Exit(1)
	}

	// ---- Use cases ----
	picker, err := usecase.NewShopPicker(shopSearch, usecase.WithPickerMetrics(botMetrics))
	if err != nil {
		slog.Error("failed to create shop picker", "err", err)
		os.Exit(1)
	}
	replyOpts := []usecase.ReplyOption{usecase.WithMetrics(botMetrics)}
	if cfg.TranscriptTable != "" {
		archive, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.TranscriptTable)
		if err != nil {
			slog.Error("failed to create transcript archive", "err", err)
			os.Exit(1)
		}
		replyOpts = append(replyOpts, usecase.WithArchive(archive))
	}
	replies, err := usecase.NewReplyService(sessions, llm, picker, replyOpts...)
	if err != nil {
		slog.Error("failed to create reply service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(cfg.LineChannelSecret, replies, lineClient, sessions, handler.WithMetrics(botMetrics))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	if cfg.LocalAddr != "" {
		serveLocal(cfg.LocalAddr, handler.NewRouter(h, promhttp.Handler()))
		return
	}
	lambda.Start(h.Handle)
}

func setupLogger(local bool) {
	var h slog.Handler
	if local {
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		h = slog.NewJSONHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(h))
}

func serveLocal(addr string, router http.Handler) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
