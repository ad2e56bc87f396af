package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/dedupe"
	"github.com/joescharf/btcmap-triage/internal/evidence"
	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/osm"
	"github.com/joescharf/btcmap-triage/internal/outreach"
	"github.com/joescharf/btcmap-triage/internal/store"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

// newLogger returns the structured logger used by the pipeline and server.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newEvidenceCache returns Redis when cache.redis_url is set, otherwise an
// in-process cache. An unreachable Redis degrades to the in-process cache.
func newEvidenceCache(ctx context.Context, logger *slog.Logger) (evidence.Cache, func()) {
	rawURL := viper.GetString("cache.redis_url")
	if rawURL == "" {
		return evidence.NewMemoryCache(), func() {}
	}
	rc, err := evidence.NewRedisCache(rawURL)
	if err == nil {
		err = rc.Ping(ctx)
	}
	if err != nil {
		logger.Warn("redis cache unavailable, using memory cache", "error", err)
		if rc != nil {
			_ = rc.Close()
		}
		return evidence.NewMemoryCache(), func() {}
	}
	return rc, func() { _ = rc.Close() }
}

// buildProviders wires the live evidence providers, each behind the cache.
func buildProviders(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]triage.EvidenceProvider, func(), error) {
	ledger, err := evidence.LoadLedger(viper.GetString("ledger_path"))
	if err != nil {
		return nil, nil, err
	}

	overpass := osm.NewClient(viper.GetString("overpass.endpoint"), viper.GetDuration("overpass.interval"), nil)
	web := evidence.NewWebsiteProvider(&http.Client{Timeout: viper.GetDuration("website.timeout")}, viper.GetString("website.user_agent"))

	live := []triage.EvidenceProvider{
		osm.NewProvider(overpass, 0, 0),
		web,
		evidence.NewSocialProvider(ledger, cfg.SocialRecencyWindow),
		evidence.NewCrossRefProvider(ledger),
		evidence.ConsistencyProvider{},
	}

	cache, closeCache := newEvidenceCache(ctx, logger)
	ttl := viper.GetDuration("cache.ttl")
	providers := make([]triage.EvidenceProvider, len(live))
	for i, p := range live {
		providers[i] = evidence.NewCached(p, cache, ttl, logger)
	}
	return providers, closeCache, nil
}

// newOutreachProvider returns nil when outreach is disabled; the pipeline
// then reports every channel as unavailable.
func newOutreachProvider(s store.Store, logger *slog.Logger, extra ...outreach.Option) (triage.OutreachProvider, error) {
	if !viper.GetBool("outreach.enabled") {
		return nil, nil
	}

	var channels []models.Channel
	for _, name := range viper.GetStringSlice("outreach.channels") {
		ch := models.Channel(name)
		if ch != models.ChannelEmail && ch != models.ChannelSocialDM {
			return nil, fmt.Errorf("unknown outreach channel %q", name)
		}
		channels = append(channels, ch)
	}

	var classifier outreach.Classifier = outreach.KeywordClassifier{}
	if client := newLLMClient(); client != nil {
		classifier = outreach.LLMClassifier{Model: client, Fallback: outreach.KeywordClassifier{}, Logger: logger}
	}

	opts := []outreach.Option{
		outreach.WithChannels(channels...),
		outreach.WithClassifier(classifier),
		outreach.WithPollInterval(viper.GetDuration("outreach.poll_interval")),
		outreach.WithLogger(logger),
	}
	return outreach.NewProvider(s, append(opts, extra...)...), nil
}

// buildPipeline assembles the live pipeline. The returned func releases the
// evidence cache. Request-driven callers (API, MCP) pass
// outreach.WithoutWaiting so a request never blocks on a merchant reply.
func buildPipeline(ctx context.Context, s store.Store, cfg config.Config, logger *slog.Logger, outreachOpts ...outreach.Option) (*triage.Pipeline, func(), error) {
	providers, closeCache, err := buildProviders(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := []triage.Option{
		triage.WithLogger(logger),
		triage.WithDuplicates(dedupe.NewRegistry(cfg.DuplicateRadius, s)),
	}
	op, err := newOutreachProvider(s, logger, outreachOpts...)
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	if op != nil {
		opts = append(opts, triage.WithOutreach(op))
	}

	return triage.NewPipeline(providers, opts...), closeCache, nil
}
