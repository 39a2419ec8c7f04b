package main

import (
	"context"
	"fmt"
	"time"

	"github.com/masganem/PuffleBot/internal/config"
	"github.com/masganem/PuffleBot/internal/domain"
	"github.com/masganem/PuffleBot/internal/reply"
	"github.com/masganem/PuffleBot/internal/store"
	"github.com/masganem/PuffleBot/internal/twitter"
)

// openJournal opens the SQLite journal when the store is enabled. The
// returned journal is nil otherwise.
func openJournal(cfg *config.Config) (domain.Journal, func(), error) {
	if !cfg.Store.Enabled {
		return nil, func() {}, nil
	}
	j, err := store.Open(cfg.Store.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("journal: %w", err)
	}
	return j, func() {
		if err := j.Close(); err != nil {
			logger.Warn("journal close", "err", err)
		}
	}, nil
}

func credentials(cfg *config.Config) twitter.Credentials {
	return twitter.Credentials{
		ConsumerKey:       cfg.Twitter.ConsumerKey,
		ConsumerSecret:    cfg.Twitter.ConsumerSecret,
		AccessToken:       cfg.Twitter.AccessToken,
		AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
	}
}

// newDispatcher wires signer, client, uploader, and dispatcher.
func newDispatcher(cfg *config.Config, journal domain.Journal) (*twitter.Dispatcher, error) {
	creds := credentials(cfg)
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Twitter.TimeoutMs) * time.Millisecond
	twLogger := logger.With("component", "twitter")
	client := twitter.NewClient(twitter.ClientConfig{
		Endpoints: twitter.Endpoints{API: cfg.Twitter.APIURL, Upload: cfg.Twitter.UploadURL},
		Signer:    twitter.NewSigner(twitter.SignerConfig{Credentials: creds}),
		Timeout:   timeout,
		Logger:    twLogger,
	})

	uploader := twitter.NewUploader(twitter.UploaderConfig{
		Client: client,
		Fetcher: &twitter.HTTPFetcher{
			Client:   twitter.NewHTTPClient(timeout),
			MaxBytes: cfg.Twitter.MaxMediaBytes,
		},
		SegmentSize: cfg.Twitter.SegmentSize,
		Journal:     journal,
		OnAbort: func(ctx context.Context, s twitter.UploadSession, cause error) {
			if s.MediaID == "" {
				return
			}
			// Twitter expires unfinalized media on its own; surface it for operators.
			twLogger.Warn("media upload left unfinalized",
				"upload", s.ID, "media_id", s.MediaID, "source", s.Source, "err", cause)
		},
		Logger: twLogger,
	})

	return twitter.NewDispatcher(twitter.DispatcherConfig{
		Client:   client,
		Uploader: uploader,
		Journal:  journal,
		Logger:   twLogger,
	}), nil
}

// newRegistry builds the reply registry from built-ins and rule files.
func newRegistry(cfg *config.Config) (*reply.Registry, error) {
	registry := reply.NewRegistry(logger)
	if cfg.Replies.Builtins {
		registry.RegisterBuiltins()
	}
	if cfg.Replies.RulesPath == "" {
		return registry, nil
	}

	rules, err := reply.Load(cfg.Replies.RulesPath, logger)
	if err != nil {
		return nil, fmt.Errorf("reply rules: %w", err)
	}
	for _, rule := range rules {
		if err := registry.Register(rule); err != nil {
			return nil, fmt.Errorf("reply rule %q: %w", rule.Name, err)
		}
	}
	logger.Info("reply rules loaded", "path", cfg.Replies.RulesPath, "count", len(rules))
	return registry, nil
}
