package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/tokengate/tokengate/config"
	"github.com/tokengate/tokengate/core/database"
	"github.com/tokengate/tokengate/infrastructure/valkey"
	"github.com/tokengate/tokengate/platform/discord"
	"github.com/tokengate/tokengate/platform/indexer"
	"github.com/tokengate/tokengate/verification/application"
	"github.com/tokengate/tokengate/verification/domain"
	"github.com/tokengate/tokengate/verification/repository"
)

// services bundles everything the subcommands wire up.
type services struct {
	db         *gorm.DB
	valkey     *valkey.Client // nil when disabled
	nonces     domain.NonceStore
	rules      *repository.RuleGormRepository
	ledger     *repository.AssignmentGormRepository
	engine     *application.Engine
	reconciler *application.Reconciler
}

func buildServices(ctx context.Context) (*services, error) {
	db, err := database.New()
	if err != nil {
		return nil, err
	}

	rules := repository.NewRuleGormRepository(db)
	if err := rules.InitSchema(ctx); err != nil {
		return nil, err
	}
	ledger := repository.NewAssignmentGormRepository(db)
	if err := ledger.InitSchema(ctx); err != nil {
		return nil, err
	}

	var vk *valkey.Client
	var nonces domain.NonceStore
	if config.ValkeyEnabled {
		vk, err = valkey.NewClient(valkey.Config{
			Address:   config.ValkeyAddress,
			Password:  config.ValkeyPassword,
			DB:        config.ValkeyDB,
			KeyPrefix: config.ValkeyKeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		nonces = repository.NewValkeyNonceStore(vk, config.NonceTTL)
		logrus.Info("Using Valkey nonce store")
	} else {
		nonces = repository.NewMemoryNonceStore(config.NonceTTL)
		logrus.Info("Using in-memory nonce store")
	}

	assets := indexer.NewClient(config.IndexerBaseURL, config.IndexerAPIKey)
	roles := discord.NewRoleClient(config.PlatformAPIBaseURL, config.PlatformBotToken)

	verifier := application.NewSignatureVerifier(
		nonces,
		config.ChallengeDomainName,
		config.ChallengeDomainVersion,
		config.ChallengeChainID,
	)
	engine := application.NewEngine(rules, ledger, nonces, assets, roles, verifier)
	reconciler := application.NewReconciler(
		ledger, rules, assets, roles,
		config.SweepInterval, config.SweepPageSize, config.SweepRowTimeout,
	)

	return &services{
		db:         db,
		valkey:     vk,
		nonces:     nonces,
		rules:      rules,
		ledger:     ledger,
		engine:     engine,
		reconciler: reconciler,
	}, nil
}

func (s *services) close() {
	if s.valkey != nil {
		s.valkey.Close()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
