package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lattice-dev/lattice/internal/ambientconfig"
	"github.com/lattice-dev/lattice/internal/artifact"
	"github.com/lattice-dev/lattice/internal/cache"
	"github.com/lattice-dev/lattice/internal/clock"
	"github.com/lattice-dev/lattice/internal/config"
	"github.com/lattice-dev/lattice/internal/eventlog"
	"github.com/lattice-dev/lattice/internal/hooks"
	"github.com/lattice-dev/lattice/internal/idgen"
	"github.com/lattice-dev/lattice/internal/integrity"
	"github.com/lattice-dev/lattice/internal/lock"
	"github.com/lattice-dev/lattice/internal/metrics"
	"github.com/lattice-dev/lattice/internal/selector"
	"github.com/lattice-dev/lattice/internal/store"
	"github.com/lattice-dev/lattice/internal/task"
)

// Version is set via ldflags at build time.
var Version = "dev"

// app bundles every collaborator a subcommand needs, assembled once
// from the discovered state directory and ambient config.
type app struct {
	ambient *ambientconfig.Config
	store   *store.Store
	cfgSvc  *config.Service
	svc     *task.Service
	sel     *selector.Selector
	checker *integrity.Checker
	metrics *metrics.Registry
	cache   *cache.Cache
	logger  zerolog.Logger
}

// newApp discovers the project root, loads ambient config, and wires
// every package's constructor in dependency order. rootOverride is the
// --root flag; empty defers to LATTICE_ROOT then upward search.
func newApp(rootOverride, configPath string) (*app, error) {
	ambient, err := ambientconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading ambient config: %w", err)
	}

	logger := newLogger(ambient.Log)

	st, err := store.Open(rootOverride)
	if err != nil {
		return nil, err
	}

	cfgSvc, err := config.Load(st, logger)
	if err != nil {
		return nil, fmt.Errorf("loading workflow config: %w", err)
	}

	m := metrics.DefaultRegisterer()
	if !ambient.Metrics.Enabled {
		m = nil
	}

	ids := idgen.New()
	clk := clock.System{}
	log := eventlog.New(st, ids, clk, m)
	locks := lock.New(st.LocksDir(), 5*time.Second, m)
	artifacts := artifact.New(st, ids, clk, 0)
	hookTimeout := time.Duration(ambient.Hooks.TimeoutSeconds) * time.Second
	h := hooks.New(st.Root, ambient.Hooks.Enabled, hookTimeout, logger)

	svc := task.New(st, locks, cfgSvc, ids, clk, log, artifacts, h, m, logger)
	c := cache.Open(st.CachePath(), logger)
	sel := selector.New(st, svc, c)
	checker := integrity.New(st, log, cfgSvc, artifacts)

	return &app{
		ambient: ambient,
		store:   st,
		cfgSvc:  cfgSvc,
		svc:     svc,
		sel:     sel,
		checker: checker,
		metrics: m,
		cache:   c,
		logger:  logger,
	}, nil
}

func newLogger(cfg ambientconfig.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out zerolog.Logger
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		out = zerolog.New(os.Stderr)
	}
	return out.Level(level).With().Timestamp().Logger()
}

// resolveActor applies LATTICE_ACTOR/config-default precedence on top
// of an explicit CLI flag.
func (a *app) resolveActor(explicit string) string {
	return task.ResolveActor(explicit, a.cfgSvc.Current())
}
