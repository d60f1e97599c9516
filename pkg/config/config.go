package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"

	pkgerrors "github.com/certikapp/certik-backend/pkg/errors"
)

type Config struct {
	App    AppConfig
	Pinata PinataConfig
	Ledger LedgerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Ledger.ensureContract(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CERTIK_APP_ENV" required:"true"`
	Port         string `envconfig:"CERTIK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CERTIK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CERTIK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type PinataConfig struct {
	JWT       string        `envconfig:"CERTIK_PINATA_JWT"`
	APIKey    string        `envconfig:"CERTIK_PINATA_API_KEY"`
	APISecret string        `envconfig:"CERTIK_PINATA_API_SECRET"`
	BaseURL   string        `envconfig:"CERTIK_PINATA_BASE_URL" default:"https://api.pinata.cloud"`
	Gateway   string        `envconfig:"CERTIK_PINATA_GATEWAY" default:"https://gateway.pinata.cloud/ipfs"`
	Timeout   time.Duration `envconfig:"CERTIK_PINATA_TIMEOUT" default:"30s"`
}

// Configured reports whether any credential material is present. Either the
// JWT or the key/secret pair authenticates against the pinning API.
func (p PinataConfig) Configured() bool {
	if strings.TrimSpace(p.JWT) != "" {
		return true
	}
	return strings.TrimSpace(p.APIKey) != "" && strings.TrimSpace(p.APISecret) != ""
}

type LedgerConfig struct {
	RPCURL          string        `envconfig:"CERTIK_LEDGER_RPC_URL"`
	FallbackRPCURLs []string      `envconfig:"CERTIK_LEDGER_FALLBACK_RPC_URLS" default:"https://base-sepolia-rpc.publicnode.com,https://sepolia.base.org,https://base-sepolia.blockpi.network/v1/rpc/public"`
	ContractAddress string        `envconfig:"CERTIK_LEDGER_CONTRACT_ADDRESS" required:"true"`
	ChainID         int64         `envconfig:"CERTIK_LEDGER_CHAIN_ID" default:"84532"`
	PrivateKey      string        `envconfig:"CERTIK_LEDGER_PRIVATE_KEY"`
	ConfirmInterval time.Duration `envconfig:"CERTIK_LEDGER_CONFIRM_INTERVAL" default:"2s"`
	CallTimeout     time.Duration `envconfig:"CERTIK_LEDGER_CALL_TIMEOUT" default:"15s"`
}

// HasSigningKey reports whether server-side writes are possible. Absence is
// not an error at load time; read paths keep working.
func (l LedgerConfig) HasSigningKey() bool {
	return strings.TrimSpace(l.PrivateKey) != ""
}

// RPCURLs returns the configured endpoint followed by the public fallbacks.
func (l LedgerConfig) RPCURLs() []string {
	urls := make([]string, 0, len(l.FallbackRPCURLs)+1)
	if strings.TrimSpace(l.RPCURL) != "" {
		urls = append(urls, strings.TrimSpace(l.RPCURL))
	}
	for _, u := range l.FallbackRPCURLs {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

func (l *LedgerConfig) ensureContract() error {
	addr := strings.TrimSpace(l.ContractAddress)
	if !common.IsHexAddress(addr) {
		return pkgerrors.New(pkgerrors.CodeConfiguration,
			fmt.Sprintf("%s must be a hex contract address", EnvLedgerContractAddress))
	}
	l.ContractAddress = common.HexToAddress(addr).Hex()
	return nil
}
