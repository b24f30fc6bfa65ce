package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/viant/sqlite-minhash/config"
	"github.com/viant/sqlite-minhash/engine"
	"github.com/viant/sqlite-minhash/geocode"
	"github.com/viant/sqlite-minhash/index"
	"github.com/viant/sqlite-minhash/index/bruteforce"
	"github.com/viant/sqlite-minhash/index/lsh"
	"github.com/viant/sqlite-minhash/proof"
	"github.com/viant/sqlite-minhash/proof/zipfilter"
	"github.com/viant/sqlite-minhash/server"
	"github.com/viant/sqlite-minhash/service"
	"github.com/viant/sqlite-minhash/store"
)

// App is the assembled process: one database, one index, one service.
type App struct {
	Config  *config.Config
	Service *service.Service
	Issuer  *proof.Issuer
	Server  *server.Server

	db     *sql.DB
	badger *badger.DB
}

// Build opens storage and wires every component. The index is empty until
// Service.Rehydrate runs.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if dir := filepath.Dir(cfg.Store.DBFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	if app.db, err = engine.OpenStore(cfg.Store.DBFile); err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(ctx, app.db, cfg.MinHash.NumPerm)
	if err != nil {
		return nil, err
	}
	ix, err := newIndex(cfg.MinHash)
	if err != nil {
		return nil, err
	}
	if app.Service, err = service.New(st, ix, cfg.MinHash.NumPerm,
		service.WithLogger(logger),
		service.WithSeed(cfg.MinHash.Seed),
		service.WithLookupParallelism(cfg.MinHash.LookupParallelism),
	); err != nil {
		return nil, err
	}

	if app.Issuer, err = app.newIssuer(ctx, cfg.Proof, logger); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if app.Server, err = server.New(app.Service, app.Issuer, server.Options{
		APIKey:      cfg.Server.APIKey,
		Logger:      logger,
		CORSOrigins: cfg.Server.CORSOrigins,
		Registry:    reg,
	}); err != nil {
		return nil, err
	}
	return app, nil
}

func newIndex(cfg config.MinHashConfig) (index.Index, error) {
	switch cfg.Index {
	case "brute":
		return bruteforce.New(cfg.NumPerm, cfg.Threshold)
	case "lsh", "":
		var opts []lsh.Option
		if cfg.Bands > 0 {
			opts = append(opts, lsh.WithParams(lsh.Params{Bands: cfg.Bands, Rows: cfg.Rows}))
		}
		return lsh.New(cfg.NumPerm, cfg.Threshold, opts...)
	}
	return nil, fmt.Errorf("unknown index kind %q", cfg.Index)
}

func (a *App) newIssuer(ctx context.Context, cfg config.ProofConfig, logger *slog.Logger) (*proof.Issuer, error) {
	var (
		ps  proof.Store
		err error
	)
	switch cfg.Backend {
	case "badger":
		if a.badger, err = proof.OpenBadger(proof.BadgerConfig{
			Path:       cfg.BadgerDir,
			SyncWrites: true,
			Logger:     logger.With("component", "badger"),
		}); err != nil {
			return nil, err
		}
		ps, err = proof.NewBadgerStore(a.badger)
	default:
		ps, err = proof.NewSQLiteStore(ctx, a.db)
	}
	if err != nil {
		return nil, err
	}

	policy := proof.AmazonExportPolicy()
	if cfg.Policy == "custom" {
		patterns, err := proof.CompilePatterns(cfg.Locators.Patterns)
		if err != nil {
			return nil, err
		}
		policy = &proof.AllowList{
			Schemes:        cfg.Locators.Schemes,
			HostSuffixes:   cfg.Locators.HostSuffixes,
			HostSubstrings: cfg.Locators.HostSubstrings,
			PathSuffixes:   cfg.Locators.PathSuffixes,
			PathSubstrings: cfg.Locators.PathSubstrings,
			Patterns:       patterns,
		}
	}
	opts := []proof.IssuerOption{
		proof.WithFetcher(proof.NewHTTPFetcher(cfg.FetchTimeout)),
		proof.WithPolicy(policy),
		proof.WithIssuerLogger(logger),
	}
	if cfg.AnonymizeAddresses {
		google, err := geocode.NewGoogle(geocode.GoogleConfig{
			APIKey:            cfg.GMapsAPIKey,
			RequestsPerSecond: cfg.GeocodeRPS,
		})
		if err != nil {
			return nil, err
		}
		filter, err := zipfilter.New(geocode.NewCache(google), zipfilter.Config{
			Columns: cfg.AddressColumns,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, proof.WithFilter(filter))
	}
	return proof.NewIssuer(ps, opts...)
}

// Close releases storage handles.
func (a *App) Close() error {
	var errs []error
	if a.badger != nil {
		errs = append(errs, a.badger.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
