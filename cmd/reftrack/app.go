package main

import (
	"fmt"
	"io"

	"github.com/scrypster/reftrack/internal/config"
	"github.com/scrypster/reftrack/internal/document/sqlite"
	"github.com/scrypster/reftrack/internal/logging"
	"github.com/scrypster/reftrack/internal/notify"
	"github.com/scrypster/reftrack/internal/reftrack"
	"github.com/scrypster/reftrack/internal/reftrack/asset"
	"github.com/scrypster/reftrack/internal/registry"
	"github.com/scrypster/reftrack/internal/registry/postgres"
)

// options are the global command line flags.
type options struct {
	configPath string
	document   string
	manifest   string
	logLevel   string
	json       bool
}

// app holds everything a command needs.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	doc    *sqlite.Document
	files  registry.Registry
	pg     *postgres.Registry
	ctrl   *reftrack.Controller
	json   bool
	stdout io.Writer
}

func loadConfig(opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadConfigFile(opts.configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	if opts.document != "" {
		cfg.Document.Path = opts.document
	}
	if opts.manifest != "" {
		cfg.Registry.Manifest = opts.manifest
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

func newApp(opts options, stdout, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	builder := logging.New().FromWriter(stderr).Level(cfg.Log.Level).Format(cfg.Log.Format)
	if cfg.Log.File != "" {
		builder = builder.FromPath(cfg.Log.File)
	}
	logger, err := builder.Make()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: logger, json: opts.json, stdout: stdout}
	if err := a.open(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// open connects the registry and the document and builds the controller.
func (a *app) open() error {
	switch a.cfg.Registry.Backend {
	case config.RegistryPostgres:
		pg, err := postgres.NewRegistry(a.cfg.Registry.PostgresDSN, a.cfg.Registry.ProjectRoot)
		if err != nil {
			return err
		}
		a.pg = pg
		a.files = registry.NewBreaker(pg, registry.BreakerConfig{
			MaxFailures: uint32(a.cfg.Breaker.MaxFailures),
			Timeout:     a.cfg.Breaker.Timeout,
		}, a.log.Logger)
	default:
		m, err := registry.LoadManifest(a.cfg.Registry.Manifest)
		if err != nil {
			return err
		}
		a.files = m
	}

	doc, err := sqlite.NewDocument(a.cfg.Document.Path, sqlite.WithLogger(a.log.Logger))
	if err != nil {
		return err
	}
	a.doc = doc

	typeRegistry := reftrack.NewTypeRegistry()
	if err := asset.Register(typeRegistry); err != nil {
		return fmt.Errorf("register asset strategy: %w", err)
	}

	ctrlOpts := []reftrack.ControllerOption{reftrack.WithLogger(a.log.Logger)}
	if a.cfg.Events.Path != "" {
		ctrlOpts = append(ctrlOpts, reftrack.WithNotifier(notify.NewEventWriter(a.cfg.Events.Path, a.cfg.Document.Path)))
	}
	a.ctrl = reftrack.NewController(doc, a.files, typeRegistry, ctrlOpts...)
	return nil
}

// Close releases the document, the registry and the log file.
func (a *app) Close() {
	if a.doc != nil {
		if err := a.doc.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close document")
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close registry")
		}
	}
	_ = a.log.Close()
}
