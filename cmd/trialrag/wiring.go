package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/trialmatch/trialrag/internal/bus"
	"github.com/trialmatch/trialrag/internal/cache"
	"github.com/trialmatch/trialrag/internal/config"
	"github.com/trialmatch/trialrag/internal/lightrag"
	"github.com/trialmatch/trialrag/internal/metrics"
	"github.com/trialmatch/trialrag/internal/pkg/logger"
	"github.com/trialmatch/trialrag/internal/store"
)

// app holds what every command shares. close releases it in reverse order
// and writes the metrics textfile.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	format  string

	closers []io.Closer
}

func newApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	verbose, _ := cmd.Flags().GetBool("verbose")
	format, _ := cmd.Flags().GetString("format")

	cfg, err := config.LoadWithEnvFile(configPath, envFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	log, logCloser, err := logger.NewFile(cfg.Log.File, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		format:  format,
		closers: []io.Closer{logCloser},
	}, nil
}

func (a *app) onClose(c io.Closer) {
	a.closers = append(a.closers, c)
}

func (a *app) close() {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.File); err != nil {
		a.log.Warn("Failed to write metrics textfile", "path", a.cfg.Metrics.File, "error", err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

// bus returns the configured event bus, counting publishes in metrics.
func (a *app) bus() (bus.Bus, error) {
	return a.busFor(a.cfg.Bus)
}

func (a *app) busFor(cfg config.BusConfig) (bus.Bus, error) {
	b, err := bus.NewBus(cfg, a.log)
	if err != nil {
		return nil, err
	}
	ib := bus.NewInstrumentedBus(b, a.metrics)
	a.onClose(ib)
	return ib, nil
}

// cache returns the configured response cache, nil when disabled.
func (a *app) cache() (cache.Cache, error) {
	c, err := cache.New(a.cfg.Cache)
	if err != nil || c == nil {
		return nil, err
	}
	a.onClose(c)
	return c, nil
}

func (a *app) fetcher() (*store.Fetcher, error) {
	db := a.cfg.Database
	return store.NewFetcher(store.PostgresOpener(db.DSN()), store.Config{
		StudiesRelation:  db.StudiesRelation(),
		CriteriaRelation: db.CriteriaRelation(),
		ConnectTimeout:   db.ConnectTimeout,
	}, a.log, a.metrics)
}

func (a *app) lightrag() *lightrag.Client {
	lc := a.cfg.LightRAG
	return lightrag.New(lightrag.Config{
		BaseURL:           lc.URL,
		APIKey:            lc.APIKey,
		Timeout:           lc.Timeout,
		RequestsPerSecond: lc.RequestsPerSecond,
		FinalizePoll:      lc.FinalizePoll,
		FinalizeTimeout:   lc.FinalizeTimeout,
	}, a.log, a.metrics)
}

// queryParam builds the retrieval parameters from configuration.
func (a *app) queryParam() lightrag.QueryParam {
	q := a.cfg.Query
	p := lightrag.DefaultQueryParam()
	p.Mode = q.Mode
	p.TopK = q.TopK
	p.ChunkTopK = q.ChunkTopK
	p.MaxEntityTokens = q.MaxEntityTokens
	p.MaxRelationTokens = q.MaxRelationTokens
	p.EnableRerank = q.EnableRerank
	p.ResponseType = q.ResponseType
	return p
}
