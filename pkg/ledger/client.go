package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certikapp/certik-backend/pkg/config"
	pkgerrors "github.com/certikapp/certik-backend/pkg/errors"
	"github.com/certikapp/certik-backend/pkg/logger"
)

// Gas limits match the deployed contract's worst case; fixed limits keep the
// submission path off the estimator.
const (
	mintGasLimit   = 300_000
	revokeGasLimit = 100_000

	defaultConfirmInterval = 2 * time.Second
)

var (
	errBackendRequired  = errors.New("ledger backend is required")
	errSignerRequired   = errors.New("write operation requires a signer; client is read-only")
	errPrivateKeyUnset  = errors.New("ledger signing key is not configured")
	errNoUsableEndpoint = errors.New("no usable rpc endpoint")
)

// Backend is the read/write connection the client needs. *ethclient.Client
// satisfies it; tests substitute a fake.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Credential is the ledger-resident record for one certificate.
type Credential struct {
	TokenID     uint64         `json:"tokenId"`
	Owner       common.Address `json:"owner"`
	Issuer      common.Address `json:"issuer"`
	MetadataURI string         `json:"metadataURI"`
	IssuedAt    time.Time      `json:"issuedAt"`
	Valid       bool           `json:"isValid"`
	Revoked     bool           `json:"revoked"`
}

// PendingTx references a submitted, not yet confirmed transaction.
type PendingTx struct {
	Hash common.Hash
}

// MintReceipt is the confirmed outcome of a mint. A nil TokenID means the
// transaction confirmed but the mint event was absent from the logs: an
// ambiguous success, distinct from both success and failure.
type MintReceipt struct {
	TxHash  common.Hash
	TokenID *uint64
}

// Ambiguous reports whether the token id could not be recovered.
func (r *MintReceipt) Ambiguous() bool {
	return r == nil || r.TokenID == nil
}

// Receipt is the confirmed outcome of a non-mint write.
type Receipt struct {
	TxHash common.Hash
}

// Client wraps the certificate contract over a Backend. Write operations are
// available only when the client was built with a signer.
type Client struct {
	backend         Backend
	contract        *bind.BoundContract
	address         common.Address
	opts            *bind.TransactOpts
	confirmInterval time.Duration
	logger          *logger.Logger
}

// Dial connects to the first responsive RPC endpoint from the configured URL
// and the public fallbacks, verifying the chain id.
func Dial(ctx context.Context, cfg config.LedgerConfig, logg *logger.Logger) (*ethclient.Client, error) {
	var lastErr error = errNoUsableEndpoint
	for _, url := range cfg.RPCURLs() {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		chainID, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			lastErr = err
			continue
		}
		if cfg.ChainID > 0 && chainID.Int64() != cfg.ChainID {
			client.Close()
			lastErr = fmt.Errorf("endpoint %s serves chain %d, want %d", url, chainID, cfg.ChainID)
			continue
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "rpc_url", url), "ledger rpc connected")
		}
		return client, nil
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, lastErr, "dial ledger rpc")
}

// NewReadOnly builds a client that can only call view functions.
func NewReadOnly(backend Backend, contract common.Address, logg *logger.Logger) (*Client, error) {
	return newClient(backend, contract, nil, logg)
}

// NewWithKey builds a client that signs locally with a privately-held key.
// Rejects construction when no key material is configured so the failure is
// a clear configuration error instead of an obscure signing error later.
func NewWithKey(backend Backend, contract common.Address, hexKey string, chainID int64, logg *logger.Logger) (*Client, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, errPrivateKeyUnset, "ledger client")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "parse ledger signing key")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "build transactor")
	}
	return newClient(backend, contract, opts, logg)
}

// NewWithSigner builds a client that delegates signing to an external signer,
// typically a wallet-connection provider.
func NewWithSigner(backend Backend, contract common.Address, from common.Address, signer bind.SignerFn, logg *logger.Logger) (*Client, error) {
	if signer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "ledger signer function is required")
	}
	return newClient(backend, contract, &bind.TransactOpts{From: from, Signer: signer}, logg)
}

func newClient(backend Backend, contract common.Address, opts *bind.TransactOpts, logg *logger.Logger) (*Client, error) {
	if backend == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, errBackendRequired, "ledger client")
	}
	return &Client{
		backend:         backend,
		contract:        bind.NewBoundContract(contract, certABI, backend, backend, backend),
		address:         contract,
		opts:            opts,
		confirmInterval: defaultConfirmInterval,
		logger:          logg,
	}, nil
}

// SetConfirmInterval overrides the receipt polling interval.
func (c *Client) SetConfirmInterval(interval time.Duration) {
	if interval > 0 {
		c.confirmInterval = interval
	}
}

// CanWrite reports whether the client holds a signer.
func (c *Client) CanWrite() bool {
	return c != nil && c.opts != nil
}

// Mint submits a mint transaction and blocks until it is confirmed.
func (c *Client) Mint(ctx context.Context, recipient common.Address, metadataURI string) (*MintReceipt, error) {
	pending, err := c.SubmitMint(ctx, recipient, metadataURI)
	if err != nil {
		return nil, err
	}
	return c.WaitMint(ctx, pending)
}

// SubmitMint sends the mint transaction and returns once the network has
// accepted it into the mempool. Submission cannot be cancelled afterwards.
func (c *Client) SubmitMint(ctx context.Context, recipient common.Address, metadataURI string) (*PendingTx, error) {
	if !c.CanWrite() {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, errSignerRequired, "mint certificate")
	}

	tx, err := c.contract.Transact(c.txOpts(ctx, mintGasLimit), "mintCertificate", recipient, metadataURI)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLedgerSubmission, err, "submit mint")
	}

	c.logTx(ctx, "mint submitted", tx.Hash())
	return &PendingTx{Hash: tx.Hash()}, nil
}

// WaitMint blocks until the pending mint is included, then recovers the
// assigned token identifier from the emitted event log.
func (c *Client) WaitMint(ctx context.Context, pending *PendingTx) (*MintReceipt, error) {
	receipt, err := c.waitMined(ctx, pending.Hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeLedgerSubmission,
			fmt.Sprintf("transaction %s reverted", pending.Hash.Hex()))
	}

	tokenID := c.mintedTokenID(receipt)
	if tokenID == nil && c.logger != nil {
		c.logger.Warn(c.logger.WithField(ctx, "tx_hash", pending.Hash.Hex()),
			"mint confirmed without a recoverable token id")
	}

	return &MintReceipt{TxHash: pending.Hash, TokenID: tokenID}, nil
}

// Revoke submits a revocation and blocks until it is confirmed. Re-revoking
// an already-revoked certificate is the ledger's call to reject; the error
// comes back verbatim.
func (c *Client) Revoke(ctx context.Context, tokenID uint64) (*Receipt, error) {
	pending, err := c.SubmitRevoke(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return c.WaitRevoke(ctx, pending)
}

// SubmitRevoke sends the revocation transaction without waiting for
// inclusion.
func (c *Client) SubmitRevoke(ctx context.Context, tokenID uint64) (*PendingTx, error) {
	if !c.CanWrite() {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, errSignerRequired, "revoke certificate")
	}

	tx, err := c.contract.Transact(c.txOpts(ctx, revokeGasLimit), "revokeCertificate", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLedgerSubmission, err, "submit revoke")
	}
	c.logTx(ctx, "revoke submitted", tx.Hash())
	return &PendingTx{Hash: tx.Hash()}, nil
}

// WaitRevoke blocks until the pending revocation is included.
func (c *Client) WaitRevoke(ctx context.Context, pending *PendingTx) (*Receipt, error) {
	receipt, err := c.waitMined(ctx, pending.Hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeLedgerSubmission,
			fmt.Sprintf("transaction %s reverted", pending.Hash.Hex()))
	}
	return &Receipt{TxHash: pending.Hash}, nil
}

// Info reads the full on-ledger record for a token.
func (c *Client) Info(ctx context.Context, tokenID uint64) (*Credential, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getCertificateInfo", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get certificate info")
	}
	if len(out) != 6 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "get certificate info returned unexpected shape")
	}

	issuedAt, _ := out[3].(*big.Int)
	cred := &Credential{
		TokenID:     tokenID,
		Owner:       out[0].(common.Address),
		Issuer:      out[1].(common.Address),
		MetadataURI: out[2].(string),
		Valid:       out[4].(bool),
		Revoked:     out[5].(bool),
	}
	if issuedAt != nil {
		cred.IssuedAt = time.Unix(issuedAt.Int64(), 0).UTC()
	}
	return cred, nil
}

// IsValid reads the contract's validity view for a token.
func (c *Client) IsValid(ctx context.Context, tokenID uint64) (bool, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "isCertificateValid", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check certificate validity")
	}
	return out[0].(bool), nil
}

// TotalSupply reads the count of minted certificates. Token ids are dense
// and 1-based, so this bounds an ownership scan.
func (c *Client) TotalSupply(ctx context.Context) (uint64, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getTotalCertificates")
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get total certificates")
	}
	return out[0].(*big.Int).Uint64(), nil
}

// OwnerOf reads the current owner of a token.
func (c *Client) OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return common.Address{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get token owner")
	}
	return out[0].(common.Address), nil
}

// waitMined polls for the receipt until ctx expires. Abandoning the wait does
// not cancel the transaction; it still lands.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	interval := c.confirmInterval
	if interval <= 0 {
		interval = defaultConfirmInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, pkgerrors.Wrap(pkgerrors.CodeConfirmationTimeout, ctx.Err(),
				fmt.Sprintf("confirmation of %s not observed; the transaction may still land", hash.Hex()))
		case <-ticker.C:
		}
	}
}

func (c *Client) mintedTokenID(receipt *types.Receipt) *uint64 {
	eventID := certABI.Events[eventCertificateMinted].ID
	for _, entry := range receipt.Logs {
		if entry == nil || entry.Address != c.address {
			continue
		}
		if len(entry.Topics) < 2 || entry.Topics[0] != eventID {
			continue
		}
		tokenID := new(big.Int).SetBytes(entry.Topics[1].Bytes()).Uint64()
		return &tokenID
	}
	return nil
}

func (c *Client) txOpts(ctx context.Context, gasLimit uint64) *bind.TransactOpts {
	opts := *c.opts
	opts.Context = ctx
	opts.GasLimit = gasLimit
	return &opts
}

func (c *Client) logTx(ctx context.Context, msg string, hash common.Hash) {
	if c.logger == nil {
		return
	}
	c.logger.Info(c.logger.WithField(ctx, "tx_hash", hash.Hex()), msg)
}
