package cmd

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tokengate/tokengate/config"
	"github.com/tokengate/tokengate/pkg/utils"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tokengate",
	Short: "Token-gated role service for chat communities",
	Long: `Grants and revokes chat platform roles based on a user proving
control of a wallet address whose holdings match admin-configured rules.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	cobra.OnInitialize(initEnvConfig, initLogger)
}

// initEnvConfig loads configuration from environment variables
func initEnvConfig() {
	if envPort := viper.GetString("app_port"); envPort != "" {
		config.AppPort = envPort
	}
	if envDebug := viper.GetBool("app_debug"); envDebug {
		config.AppDebug = envDebug
	}
	if envBasePath := viper.GetString("app_base_path"); envBasePath != "" {
		config.AppBasePath = envBasePath
	}
	if envBasicAuth := viper.GetString("app_basic_auth"); envBasicAuth != "" {
		config.AppBasicAuthCredential = strings.Split(envBasicAuth, ",")
	}
	if envTrustedProxies := viper.GetString("app_trusted_proxies"); envTrustedProxies != "" {
		config.AppTrustedProxies = strings.Split(envTrustedProxies, ",")
	}

	// Database settings
	if envDriver := viper.GetString("db_driver"); envDriver != "" {
		config.DBDriver = envDriver
	}
	if envName := viper.GetString("db_name"); envName != "" {
		config.DBName = envName
	}
	if envHost := viper.GetString("db_host"); envHost != "" {
		config.DBHost = envHost
	}
	if envPort := viper.GetInt("db_port"); envPort != 0 {
		config.DBPort = envPort
	}
	if envUser := viper.GetString("db_user"); envUser != "" {
		config.DBUser = envUser
	}
	if envPassword := viper.GetString("db_password"); envPassword != "" {
		config.DBPassword = envPassword
	}

	// Valkey settings
	if viper.GetBool("valkey_enabled") {
		config.ValkeyEnabled = true
	}
	if envAddr := viper.GetString("valkey_address"); envAddr != "" {
		config.ValkeyAddress = envAddr
	}
	if envPassword := viper.GetString("valkey_password"); envPassword != "" {
		config.ValkeyPassword = envPassword
	}
	if envDB := viper.GetInt("valkey_db"); envDB != 0 {
		config.ValkeyDB = envDB
	}
	if envPrefix := viper.GetString("valkey_key_prefix"); envPrefix != "" {
		config.ValkeyKeyPrefix = envPrefix
	}

	// Challenge settings
	if envTTL := viper.GetDuration("nonce_ttl"); envTTL > 0 {
		config.NonceTTL = envTTL
	}
	if envName := viper.GetString("challenge_domain_name"); envName != "" {
		config.ChallengeDomainName = envName
	}
	if envVersion := viper.GetString("challenge_domain_version"); envVersion != "" {
		config.ChallengeDomainVersion = envVersion
	}
	if envChain := viper.GetInt64("challenge_chain_id"); envChain != 0 {
		config.ChallengeChainID = envChain
	}

	// Sweep settings
	if envInterval := viper.GetDuration("sweep_interval"); envInterval > 0 {
		config.SweepInterval = envInterval
	}
	if envPage := viper.GetInt("sweep_page_size"); envPage > 0 {
		config.SweepPageSize = envPage
	}
	if envTimeout := viper.GetDuration("sweep_row_timeout"); envTimeout > 0 {
		config.SweepRowTimeout = envTimeout
	}

	// External APIs
	if envURL := viper.GetString("platform_api_base_url"); envURL != "" {
		config.PlatformAPIBaseURL = envURL
	}
	if envToken := viper.GetString("platform_bot_token"); envToken != "" {
		config.PlatformBotToken = envToken
	}
	if envURL := viper.GetString("indexer_base_url"); envURL != "" {
		config.IndexerBaseURL = envURL
	}
	if envKey := viper.GetString("indexer_api_key"); envKey != "" {
		config.IndexerAPIKey = envKey
	}
}

func initLogger() {
	if config.AppDebug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalln(err)
	}
}
