// File: cmd/factory.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
	"github.com/harrymomomedia/admachin-sub003/internal/browser"
	"github.com/harrymomomedia/admachin-sub003/internal/config"
	"github.com/harrymomomedia/admachin-sub003/internal/driver"
	"github.com/harrymomomedia/admachin-sub003/internal/extract"
	"github.com/harrymomomedia/admachin-sub003/internal/observability"
	"github.com/harrymomomedia/admachin-sub003/internal/pipeline"
	"github.com/harrymomomedia/admachin-sub003/internal/resolver"
	"github.com/harrymomomedia/admachin-sub003/internal/store"
	"github.com/harrymomomedia/admachin-sub003/internal/wait"
)

// How long a clicked candidate has to produce its expected follow-on UI
// state before the resolver moves to the next one.
const (
	postConditionInterval = 400 * time.Millisecond
	postConditionWindow   = 3 * time.Second
)

// Components holds the initialized services a run needs. Centralizing
// construction here keeps the commands thin and the teardown order in one
// place.
type Components struct {
	DBPool         *pgxpool.Pool
	Store          *store.Store
	BrowserManager *browser.Manager
	Driver         *driver.Driver
}

// NewComponents wires the full service graph from the loaded configuration.
// The store connection is verified here; the browser only launches when the
// driver actually opens a session.
func NewComponents(ctx context.Context, cfg *config.Config) (*Components, error) {
	logger := observability.GetLogger()

	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}

	st, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to task store: %w", err)
	}

	mgr, err := browser.NewManager(ctx, logger, cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("preparing browser: %w", err)
	}

	res := resolver.New(logger, wait.Bounded(postConditionInterval, postConditionWindow), nil)
	pl := pipeline.New(logger, cfg.Pipeline, cfg.Browser.Viewport, res, nil)
	ex := extract.New(logger, extract.NewHeuristicSet(cfg.Extractor))

	newPage := func(ctx context.Context) (schemas.Page, func(), error) {
		session, err := mgr.NewSession(ctx)
		if err != nil {
			return nil, nil, err
		}
		return session, session.Close, nil
	}

	return &Components{
		DBPool:         pool,
		Store:          st,
		BrowserManager: mgr,
		Driver:         driver.New(logger, st, pl, ex, newPage),
	}, nil
}

// Shutdown releases everything in the reverse of construction order.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()

	if c.BrowserManager != nil {
		c.BrowserManager.Shutdown()
		logger.Debug("Browser manager shut down.")
	}
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database pool closed.")
	}
}
