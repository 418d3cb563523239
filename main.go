package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/john/speakerlog/internal/config"
	"github.com/john/speakerlog/internal/csvlog"
	"github.com/john/speakerlog/internal/health"
	"github.com/john/speakerlog/internal/kick"
	"github.com/john/speakerlog/internal/logger"
	"github.com/john/speakerlog/internal/message"
	"github.com/john/speakerlog/internal/natsrc"
	"github.com/john/speakerlog/internal/speaker"
	"github.com/john/speakerlog/internal/twitch"
	"github.com/john/speakerlog/internal/uploader"
)

// source is a chat event producer
type source interface {
	Start(ctx context.Context, messageChan chan<- message.Message) error
}

func main() {
	// Get config path from environment variable or use default
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Speakerlog starting",
		zap.String("target", cfg.Target),
		zap.String("output_path", cfg.OutputPath),
	)
	if cfg.Target == "" {
		log.Warn("No target configured; chat will not be logged until one is set via PUT /target")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	messageChan := make(chan message.Message, cfg.Recorder.BufferSize)

	writer := csvlog.NewWriter(cfg.OutputPath)
	if cfg.Target != "" {
		if err := writer.EnsureHeader(); err != nil {
			log.Warn("Failed to prepare output file", zap.Error(err))
		}
	}
	spk := speaker.New(cfg.Target, writer, log)

	sources := map[string]source{}
	if cfg.TwitchEnabled() {
		log.Info("Monitoring Twitch channels", zap.Strings("channels", cfg.Twitch.Channels))
		sources["twitch"] = twitch.New(cfg.Twitch.Username, cfg.Twitch.OAuth, cfg.Twitch.Channels, log)
	}
	if cfg.KickEnabled() {
		channels := make([]kick.ChannelConfig, 0, len(cfg.Kick.Channels))
		for _, ch := range cfg.Kick.Channels {
			channels = append(channels, kick.ChannelConfig{Slug: ch.Slug, ChatroomID: ch.ChatroomID})
		}
		log.Info("Monitoring Kick channels", zap.Int("count", len(channels)))
		sources["kick"] = kick.New(channels, log)
	}
	if cfg.NATSEnabled() {
		sources["nats"] = natsrc.New(cfg.NATS.URL, cfg.NATS.Token, cfg.NATS.Subject, log)
	}

	uploaderInstance, err := newUploader(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create uploader", zap.Error(err))
	}

	if cfg.Health.Token == "" {
		log.Warn("health.token is not set; PUT /target is unauthenticated", zap.String("addr", cfg.Health.Addr))
	}
	healthServer := health.New(cfg.Health.Addr, cfg.Health.Token, spk, log)

	var wg sync.WaitGroup

	for name, src := range sources {
		wg.Add(1)
		go func(name string, src source) {
			defer wg.Done()
			if err := src.Start(ctx, messageChan); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Source stopped", zap.String("source", name), zap.Error(err))
			}
		}(name, src)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := spk.Start(ctx, messageChan); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Speaker logger error", zap.Error(err))
		}
	}()

	if uploaderInstance != nil {
		interval := time.Duration(cfg.Uploader.IntervalSeconds) * time.Second
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := uploaderInstance.Start(ctx, cfg.OutputPath, interval); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Uploader error", zap.Error(err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("Health server error", zap.Error(err))
		}
	}()

	log.Info("All components started successfully")

	// Wait for shutdown signal
	go func() {
		<-sigChan
		log.Info("Shutdown signal received, initiating graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("Error shutting down health server", zap.Error(err))
		}

		// Cancel main context to stop other components
		cancel()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Info("All components stopped gracefully")
		case <-shutdownCtx.Done():
			log.Warn("Shutdown timeout exceeded, forcing exit")
		}

		log.Sync()
		os.Exit(0)
	}()

	wg.Wait()
	log.Info("Speakerlog stopped")
}

// newUploader builds the S3 archiver, or returns nil when S3 is not configured
func newUploader(ctx context.Context, cfg *config.Config, log *zap.Logger) (*uploader.Uploader, error) {
	if !cfg.S3Enabled() {
		log.Info("S3 archival disabled")
		return nil, nil
	}

	opts := uploader.Options{
		Bucket:     cfg.S3.Bucket,
		Region:     cfg.S3.Region,
		Prefix:     cfg.S3.Prefix,
		Endpoint:   cfg.S3.Endpoint,
		MaxRetries: cfg.Uploader.MaxRetries,
	}

	if cfg.S3.RoleARN != "" {
		log.Info("Using OIDC authentication", zap.String("role_arn", cfg.S3.RoleARN))
		return uploader.New(ctx, opts, cfg.S3.RoleARN, log)
	}

	log.Warn("Using static AWS credentials (deprecated). Migrate to OIDC for better security.")
	return uploader.NewWithStaticCredentials(ctx, opts, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, log)
}
