package config

import (
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	AppVersion             = "v1.2.0"
	AppPort                = "3000"
	AppDebug               = false
	AppBasePath            = ""
	AppBasicAuthCredential []string
	AppTrustedProxies      []string // Trusted proxy IP ranges (e.g., "0.0.0.0/0" for all, or specific CIDRs)

	DBDriver   = "sqlite"
	DBName     = "storages/tokengate.db" // File path for SQLite, DB name for Postgres
	DBHost     = "localhost"
	DBPort     = 5432
	DBUser     = "postgres"
	DBPassword = ""

	ValkeyEnabled   = false
	ValkeyAddress   = "localhost:6379"
	ValkeyPassword  = ""
	ValkeyDB        = 0
	ValkeyKeyPrefix = "tokengate:"

	// Challenge settings. The EIP-712 domain is fixed: wallets sign against
	// name/version/chainId, so changing these invalidates in-flight challenges.
	NonceTTL               = 5 * time.Minute
	ChallengeDomainName    = "TokenGate"
	ChallengeDomainVersion = "1"
	ChallengeChainID       int64 = 1

	// Reconciliation sweep settings
	SweepInterval   = 1 * time.Hour
	SweepPageSize   = 100
	SweepRowTimeout = 15 * time.Second

	// Chat platform role API
	PlatformAPIBaseURL = "https://discord.com/api/v10"
	PlatformBotToken   = ""

	// Asset indexer API
	IndexerBaseURL = "https://api.opensea.io/api/v2"
	IndexerAPIKey  = ""
)
