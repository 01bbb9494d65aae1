package main

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/MarkoPoloResearchLab/bankledger/internal/app"
	"github.com/MarkoPoloResearchLab/bankledger/internal/httpapi"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagEnvFile          = "env-file"
	flagBackend          = "backend"
	flagDataDir          = "data-dir"
	flagDatabaseURL      = "database-url"
	flagLogLevel         = "log-level"
	flagAMQPURL          = "amqp-url"
	flagAMQPExchange     = "amqp-exchange"
	flagListenAddr       = "listen-addr"
	flagAllowedOrigins   = "allowed-origins"
	flagRequestTimeout   = "request-timeout"
	flagJWTSigningKey    = "jwt-signing-key"
	flagJWTIssuer        = "jwt-issuer"
	flagSessionTTL       = "session-ttl"
	flagAdminSecretHash  = "admin-secret-hash"
	flagInterestSchedule = "interest-schedule"
	flagInterestRate     = "interest-rate"
	flagRate             = "rate"
	flagAccount          = "account"
	flagFormat           = "format"
	flagOut              = "out"
	envPrefix            = "BANKD"
	defaultEnvFile       = ".env"
)

var persistentFlags = []string{flagBackend, flagDataDir, flagDatabaseURL, flagLogLevel, flagAMQPURL, flagAMQPExchange}

var serveFlags = []string{flagListenAddr, flagAllowedOrigins, flagRequestTimeout, flagJWTSigningKey, flagJWTIssuer, flagSessionTTL, flagAdminSecretHash, flagInterestSchedule, flagInterestRate}

// loadEnvFile reads KEY=VALUE pairs into the process environment. A missing
// file is not an error; variables already set win.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// loadConfig binds flags and BANKD_* environment variables into an app.Config.
func loadConfig(cmd *cobra.Command, flagNames []string) (app.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range flagNames {
		flag := cmd.Flag(flagName)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(flagName, flag); err != nil {
			return app.Config{}, err
		}
	}

	cfg := app.Config{
		Backend:          strings.TrimSpace(v.GetString(flagBackend)),
		DataDir:          strings.TrimSpace(v.GetString(flagDataDir)),
		DatabaseURL:      strings.TrimSpace(v.GetString(flagDatabaseURL)),
		LogLevel:         strings.TrimSpace(v.GetString(flagLogLevel)),
		AMQPURL:          strings.TrimSpace(v.GetString(flagAMQPURL)),
		AMQPExchange:     strings.TrimSpace(v.GetString(flagAMQPExchange)),
		InterestSchedule: strings.TrimSpace(v.GetString(flagInterestSchedule)),
		InterestRate:     strings.TrimSpace(v.GetString(flagInterestRate)),
		HTTP: httpapi.Config{
			ListenAddr:        strings.TrimSpace(v.GetString(flagListenAddr)),
			AllowedOrigins:    httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
			RequestTimeout:    v.GetDuration(flagRequestTimeout),
			SessionSigningKey: v.GetString(flagJWTSigningKey),
			SessionIssuer:     strings.TrimSpace(v.GetString(flagJWTIssuer)),
			SessionTTL:        v.GetDuration(flagSessionTTL),
			AdminSecretHash:   strings.TrimSpace(v.GetString(flagAdminSecretHash)),
		},
	}
	if err := cfg.Validate(); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}
