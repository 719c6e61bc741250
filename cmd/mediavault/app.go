package main

import (
	"context"
	"fmt"
	"os"

	"github.com/TheEntropyCollective/mediavault/pkg/access"
	"github.com/TheEntropyCollective/mediavault/pkg/core/crypto"
	"github.com/TheEntropyCollective/mediavault/pkg/infrastructure/config"
	"github.com/TheEntropyCollective/mediavault/pkg/infrastructure/logging"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata/badgerstore"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata/postgres"
	"github.com/TheEntropyCollective/mediavault/pkg/search"
	"github.com/TheEntropyCollective/mediavault/pkg/storage"
	_ "github.com/TheEntropyCollective/mediavault/pkg/storage/backends"
	"github.com/TheEntropyCollective/mediavault/pkg/util"
	"github.com/TheEntropyCollective/mediavault/pkg/vault"
)

// cliUser is recorded as the grantor of grants made from the command line.
const cliUser = "mediavault-cli"

// app holds everything a command needs. Close releases it.
type app struct {
	config *config.Config
	logger *logging.Logger
	store  metadata.Store
	index  *search.Index
	vault  *vault.Vault
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	path, err := config.GetDefaultConfigPath()
	if err != nil {
		return ""
	}
	return path
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseLogFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	logConfig := logging.DefaultConfig()
	logConfig.Level = level
	logConfig.Format = format
	logConfig.Output = os.Stderr
	if cfg.Logging.Output == "file" {
		output, err := logging.CreateFileOutput(cfg.Logging.File)
		if err != nil {
			return nil, err
		}
		logConfig.Output = output
	}

	logging.InitGlobalLogger(logConfig)
	return logging.GetGlobalLogger(), nil
}

func postgresConfig(cfg *config.Config) *postgres.DatabaseConfig {
	return &postgres.DatabaseConfig{
		ConnectionString: cfg.Database.URL,
		MaxConnections:   cfg.Database.MaxConnections,
		ConnectTimeout:   cfg.StoreTimeoutDuration(),
	}
}

func openMetadataStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (metadata.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		store, err := postgres.Open(ctx, postgresConfig(cfg), logger.Logrus())
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := badgerstore.Open(badgerstore.StoreConfig{
			Path:     cfg.Database.BadgerPath,
			InMemory: cfg.Database.InMemory,
			Logger:   logger.Logrus(),
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func backendConfig(cfg *config.Config) *storage.BackendConfig {
	bc := &storage.BackendConfig{
		Type:    cfg.Storage.Backend,
		Timeout: cfg.StoreTimeoutDuration(),
	}
	switch cfg.Storage.Backend {
	case storage.BackendTypeIPFS:
		bc.Endpoint = cfg.Storage.IPFS.APIEndpoint
		bc.RootPath = cfg.Storage.IPFS.RootPath
	case storage.BackendTypeMinIO:
		bc.Endpoint = cfg.Storage.MinIO.Endpoint
		bc.Bucket = cfg.Storage.MinIO.Bucket
		bc.Region = cfg.Storage.MinIO.Region
		bc.AccessKey = cfg.Storage.MinIO.AccessKey
		bc.SecretKey = cfg.Storage.MinIO.SecretKey
		bc.UseSSL = cfg.Storage.MinIO.UseSSL
	}
	return bc
}

// newApp wires the vault from configuration. The master key is read once
// and discarded after the sealing key is derived from it.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return nil, err
	}

	masterKey, err := util.ReadMasterKey(cfg.Vault.MasterKeyFile)
	if err != nil {
		return nil, err
	}
	sealer, err := crypto.NewSecretSealer(masterKey)
	crypto.SecureZero(masterKey)
	if err != nil {
		return nil, err
	}

	store, err := openMetadataStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	objects, err := storage.CreateBackend(backendConfig(cfg))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	index, err := search.NewIndex()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	v, err := vault.New(store, objects, sealer, vault.Config{
		StoreTimeout:   cfg.StoreTimeoutDuration(),
		MaxConcurrency: cfg.Vault.MaxConcurrency,
		SweepGrace:     cfg.SweepGracePeriod(),
		Logger:         logger,
		Index:          index,
	})
	if err != nil {
		_ = index.Close()
		_ = store.Close()
		return nil, err
	}

	return &app{config: cfg, logger: logger, store: store, index: index, vault: v}, nil
}

func (a *app) Close() {
	if err := a.index.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to close search index")
	}
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to close metadata store")
	}
}

// cliIdentity is the identity commands act with: an administrator unless
// --as names a user.
func cliIdentity() access.Identity {
	if actAs != "" {
		return access.Identity{UserID: actAs}
	}
	return access.Identity{UserID: cliUser, IsAdministrator: true}
}
