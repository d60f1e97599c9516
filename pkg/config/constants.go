package config

const EnvPrefix = "certik"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names, exported so tests and tooling can reference
// them without duplicating strings.
const (
	EnvAppEnv       = "CERTIK_APP_ENV"
	EnvPort         = "CERTIK_APP_PORT"
	EnvLogLevel     = "CERTIK_LOG_LEVEL"
	EnvLogWarnStack = "CERTIK_LOG_WARN_STACK"

	EnvPinataJWT       = "CERTIK_PINATA_JWT"
	EnvPinataAPIKey    = "CERTIK_PINATA_API_KEY"
	EnvPinataAPISecret = "CERTIK_PINATA_API_SECRET"
	EnvPinataBaseURL   = "CERTIK_PINATA_BASE_URL"
	EnvPinataGateway   = "CERTIK_PINATA_GATEWAY"
	EnvPinataTimeout   = "CERTIK_PINATA_TIMEOUT"

	EnvLedgerRPCURL          = "CERTIK_LEDGER_RPC_URL"
	EnvLedgerFallbackRPCURLs = "CERTIK_LEDGER_FALLBACK_RPC_URLS"
	EnvLedgerContractAddress = "CERTIK_LEDGER_CONTRACT_ADDRESS"
	EnvLedgerChainID         = "CERTIK_LEDGER_CHAIN_ID"
	EnvLedgerPrivateKey      = "CERTIK_LEDGER_PRIVATE_KEY"
	EnvLedgerConfirmInterval = "CERTIK_LEDGER_CONFIRM_INTERVAL"
	EnvLedgerCallTimeout     = "CERTIK_LEDGER_CALL_TIMEOUT"
)
