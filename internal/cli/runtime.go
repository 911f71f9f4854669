package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/c0deZ3R0/go-merkle-sync/config"
	"github.com/c0deZ3R0/go-merkle-sync/logging"
	"github.com/c0deZ3R0/go-merkle-sync/replica"
	"github.com/c0deZ3R0/go-merkle-sync/storage"
	"github.com/c0deZ3R0/go-merkle-sync/storage/memory"
	"github.com/c0deZ3R0/go-merkle-sync/storage/postgres"
	"github.com/c0deZ3R0/go-merkle-sync/storage/sqlite"
	"github.com/c0deZ3R0/go-merkle-sync/synckit"
	"github.com/c0deZ3R0/go-merkle-sync/transport/httptransport"
)

var errNoServer = errors.New("no sync server configured (set client.url)")

func newLogger(cfg *config.Config) (*logging.Logger, *logging.DynamicLevelVar) {
	lc := cfg.Logging
	if lc.Output == nil {
		lc.Output = os.Stderr
	}
	logger, level := logging.NewLoggerWithDynamicLevel(lc)
	logging.Init(logger)
	return logger, level
}

// openStore opens the key-value store selected by cfg.Storage.
func openStore(cfg *config.Config, logger *logging.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		sc := sqlite.DefaultConfig(cfg.Storage.DSN)
		sc.Logger = logger
		return sqlite.New(sc)
	case config.DriverPostgres:
		pc := postgres.DefaultConfig(cfg.Storage.DSN)
		pc.Logger = logger
		return postgres.New(pc)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func schemaFor(cfg *config.Config) replica.Schema {
	if len(cfg.Tables) == 0 {
		return replica.AnyTable()
	}
	return replica.Tables(cfg.Tables...)
}

func newTransport(cfg *config.Config, logger *logging.Logger) (synckit.Transport, bool, error) {
	if cfg.Client.URL == "" {
		return synckit.TransportFunc(func(context.Context, synckit.SyncRequest) (synckit.SyncResponse, error) {
			return synckit.SyncResponse{}, errNoServer
		}), false, nil
	}
	client, err := httptransport.NewClient(cfg.Client.URL,
		httptransport.WithClientTimeout(cfg.Client.Timeout),
		httptransport.WithClientCompression(cfg.Client.CompressionEnabled()),
		httptransport.WithClientLogger(logger),
	)
	if err != nil {
		return nil, false, err
	}
	return client, true, nil
}

// replicaEnv is a coordinator with the store it owns.
type replicaEnv struct {
	cfg         *config.Config
	logger      *logging.Logger
	store       storage.Store
	coordinator *synckit.Coordinator
	hasServer   bool
}

func (e *replicaEnv) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing store", slog.String("error", err.Error()))
	}
}

// openReplica loads the local replica described by the config.
func (o *RootOptions) openReplica(ctx context.Context) (*replicaEnv, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	logger, _ := newLogger(cfg)

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open storage", err)
	}

	transport, hasServer, err := newTransport(cfg, logger)
	if err != nil {
		store.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create transport", err)
	}

	coordinator, err := synckit.NewCoordinatorBuilder().
		WithNodeID(cfg.NodeID).
		WithGroupID(cfg.GroupID).
		WithReplicaID(cfg.ReplicaID).
		WithSchema(schemaFor(cfg)).
		WithStore(store).
		WithTransport(transport).
		WithMaxRounds(cfg.Sync.MaxRounds).
		WithMaxDrift(cfg.Sync.Drift()).
		WithOnline(hasServer && !cfg.Client.Offline).
		WithLogger(logger).
		Build(ctx)
	if err != nil {
		store.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load replica", err)
	}

	return &replicaEnv{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		coordinator: coordinator,
		hasServer:   hasServer,
	}, nil
}
