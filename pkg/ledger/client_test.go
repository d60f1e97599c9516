package ledger

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	pkgerrors "github.com/certikapp/certik-backend/pkg/errors"
)

// Well-known throwaway key, never funded anywhere real.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testChainID = 84532

var (
	testContract  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testRecipient = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	testIssuer    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

type fakeBackend struct {
	mu       sync.Mutex
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	callFn   func(msg ethereum.CallMsg) ([]byte, error)

	// When set, SendTransaction schedules a receipt for the sent hash.
	receiptForSent func(tx *types.Transaction) *types.Receipt
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{receipts: map[common.Hash]*types.Receipt{}}
}

func (b *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (b *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if b.callFn == nil {
		return nil, ethereum.NotFound
	}
	return b.callFn(msg)
}

func (b *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	// Nil BaseFee keeps the transactor on the legacy gas-price path.
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (b *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x01}, nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 1, nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21_000, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	if b.receiptForSent != nil {
		if receipt := b.receiptForSent(tx); receipt != nil {
			receipt.TxHash = tx.Hash()
			b.receipts[tx.Hash()] = receipt
		}
	}
	return nil
}

func (b *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, ethereum.NotFound
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if receipt, ok := b.receipts[hash]; ok {
		return receipt, nil
	}
	return nil, ethereum.NotFound
}

func (b *fakeBackend) lastSent(t *testing.T) *types.Transaction {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		t.Fatal("expected a transaction to be sent")
	}
	return b.sent[len(b.sent)-1]
}

func newSigningClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	client, err := NewWithKey(backend, testContract, testKeyHex, testChainID, nil)
	if err != nil {
		t.Fatalf("NewWithKey: %v", err)
	}
	client.confirmInterval = time.Millisecond
	return client
}

func mintedLog(tokenID uint64) *types.Log {
	return &types.Log{
		Address: testContract,
		Topics: []common.Hash{
			certABI.Events[eventCertificateMinted].ID,
			common.BigToHash(new(big.Int).SetUint64(tokenID)),
			common.BytesToHash(testRecipient.Bytes()),
			common.BytesToHash(testIssuer.Bytes()),
		},
	}
}

func TestMintRecoversTokenIDFromEvent(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptForSent = func(*types.Transaction) *types.Receipt {
		return &types.Receipt{
			Status: types.ReceiptStatusSuccessful,
			Logs:   []*types.Log{mintedLog(7)},
		}
	}
	client := newSigningClient(t, backend)

	receipt, err := client.Mint(context.Background(), testRecipient, "ipfs://bafymeta")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if receipt.Ambiguous() {
		t.Fatal("expected a recovered token id")
	}
	if *receipt.TokenID != 7 {
		t.Fatalf("expected token id 7, got %d", *receipt.TokenID)
	}
	if tx := backend.lastSent(t); tx.Gas() != mintGasLimit {
		t.Fatalf("expected mint gas limit %d, got %d", mintGasLimit, tx.Gas())
	}
}

func TestMintIgnoresForeignLogs(t *testing.T) {
	foreign := mintedLog(3)
	foreign.Address = testRecipient

	backend := newFakeBackend()
	backend.receiptForSent = func(*types.Transaction) *types.Receipt {
		return &types.Receipt{
			Status: types.ReceiptStatusSuccessful,
			Logs:   []*types.Log{foreign, mintedLog(9)},
		}
	}
	client := newSigningClient(t, backend)

	receipt, err := client.Mint(context.Background(), testRecipient, "ipfs://bafymeta")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if receipt.Ambiguous() || *receipt.TokenID != 9 {
		t.Fatalf("expected token id 9 from the contract's own log, got %+v", receipt)
	}
}

func TestMintWithoutEventIsAmbiguous(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptForSent = func(*types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusSuccessful}
	}
	client := newSigningClient(t, backend)

	receipt, err := client.Mint(context.Background(), testRecipient, "ipfs://bafymeta")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if !receipt.Ambiguous() {
		t.Fatal("expected an ambiguous receipt when the event log is missing")
	}
	if receipt.TxHash == (common.Hash{}) {
		t.Fatal("ambiguous receipt must still carry the tx hash")
	}
}

func TestMintRevertedTransaction(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptForSent = func(*types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusFailed}
	}
	client := newSigningClient(t, backend)

	_, err := client.Mint(context.Background(), testRecipient, "ipfs://bafymeta")
	if !pkgerrors.HasCode(err, pkgerrors.CodeLedgerSubmission) {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeLedgerSubmission, err)
	}
}

func TestWaitMintContextExpiry(t *testing.T) {
	backend := newFakeBackend() // never produces a receipt
	client := newSigningClient(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	pending, err := client.SubmitMint(ctx, testRecipient, "ipfs://bafymeta")
	if err != nil {
		t.Fatalf("SubmitMint: %v", err)
	}
	_, err = client.WaitMint(ctx, pending)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConfirmationTimeout) {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeConfirmationTimeout, err)
	}
}

func TestRevoke(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptForSent = func(*types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusSuccessful}
	}
	client := newSigningClient(t, backend)

	receipt, err := client.Revoke(context.Background(), 12)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if receipt.TxHash == (common.Hash{}) {
		t.Fatal("expected a tx hash on the revoke receipt")
	}
	if tx := backend.lastSent(t); tx.Gas() != revokeGasLimit {
		t.Fatalf("expected revoke gas limit %d, got %d", revokeGasLimit, tx.Gas())
	}
}

func TestRevokeReverted(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptForSent = func(*types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusFailed}
	}
	client := newSigningClient(t, backend)

	_, err := client.Revoke(context.Background(), 12)
	if !pkgerrors.HasCode(err, pkgerrors.CodeLedgerSubmission) {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeLedgerSubmission, err)
	}
}

func TestReadOnlyClientRejectsWrites(t *testing.T) {
	client, err := NewReadOnly(newFakeBackend(), testContract, nil)
	if err != nil {
		t.Fatalf("NewReadOnly: %v", err)
	}
	if client.CanWrite() {
		t.Fatal("read-only client must not report write capability")
	}

	_, err = client.SubmitMint(context.Background(), testRecipient, "ipfs://bafymeta")
	if !pkgerrors.HasCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeConfiguration, err)
	}
	_, err = client.Revoke(context.Background(), 1)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeConfiguration, err)
	}
}

func TestNewWithKeyRequiresKeyMaterial(t *testing.T) {
	for _, key := range []string{"", "  ", "0x"} {
		_, err := NewWithKey(newFakeBackend(), testContract, key, testChainID, nil)
		if !pkgerrors.HasCode(err, pkgerrors.CodeConfiguration) {
			t.Fatalf("key %q: expected %s, got %v", key, pkgerrors.CodeConfiguration, err)
		}
	}

	_, err := NewWithKey(newFakeBackend(), testContract, "not-hex", testChainID, nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected %s for malformed key, got %v", pkgerrors.CodeConfiguration, err)
	}
}

func TestInfo(t *testing.T) {
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	backend := newFakeBackend()
	backend.callFn = func(ethereum.CallMsg) ([]byte, error) {
		return certABI.Methods["getCertificateInfo"].Outputs.Pack(
			testRecipient, testIssuer, "ipfs://bafymeta",
			big.NewInt(issuedAt.Unix()), true, false,
		)
	}
	client, err := NewReadOnly(backend, testContract, nil)
	if err != nil {
		t.Fatalf("NewReadOnly: %v", err)
	}

	cred, err := client.Info(context.Background(), 5)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if cred.TokenID != 5 {
		t.Fatalf("expected token id 5, got %d", cred.TokenID)
	}
	if cred.Owner != testRecipient || cred.Issuer != testIssuer {
		t.Fatalf("unexpected parties: %+v", cred)
	}
	if cred.MetadataURI != "ipfs://bafymeta" {
		t.Fatalf("unexpected metadata uri %q", cred.MetadataURI)
	}
	if !cred.IssuedAt.Equal(issuedAt) {
		t.Fatalf("expected issuedAt %v, got %v", issuedAt, cred.IssuedAt)
	}
	if !cred.Valid || cred.Revoked {
		t.Fatalf("unexpected validity flags: %+v", cred)
	}
}

func TestReadViews(t *testing.T) {
	backend := newFakeBackend()
	backend.callFn = func(msg ethereum.CallMsg) ([]byte, error) {
		method, err := certABI.MethodById(msg.Data[:4])
		if err != nil {
			return nil, err
		}
		switch method.Name {
		case "isCertificateValid":
			return method.Outputs.Pack(true)
		case "getTotalCertificates":
			return method.Outputs.Pack(big.NewInt(42))
		case "ownerOf":
			return method.Outputs.Pack(testRecipient)
		default:
			return nil, ethereum.NotFound
		}
	}
	client, err := NewReadOnly(backend, testContract, nil)
	if err != nil {
		t.Fatalf("NewReadOnly: %v", err)
	}
	ctx := context.Background()

	valid, err := client.IsValid(ctx, 3)
	if err != nil || !valid {
		t.Fatalf("IsValid: valid=%v err=%v", valid, err)
	}
	total, err := client.TotalSupply(ctx)
	if err != nil || total != 42 {
		t.Fatalf("TotalSupply: total=%d err=%v", total, err)
	}
	owner, err := client.OwnerOf(ctx, 3)
	if err != nil || owner != testRecipient {
		t.Fatalf("OwnerOf: owner=%s err=%v", owner, err)
	}
}

func TestReadErrorsMapToDependencyCode(t *testing.T) {
	backend := newFakeBackend()
	backend.callFn = func(ethereum.CallMsg) ([]byte, error) {
		return nil, ethereum.NotFound
	}
	client, err := NewReadOnly(backend, testContract, nil)
	if err != nil {
		t.Fatalf("NewReadOnly: %v", err)
	}

	if _, err := client.OwnerOf(context.Background(), 99); !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeDependency, err)
	}
}
