package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	testTokenAddr    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testRegistryAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testOwnerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

type fakeSigner struct{ addr common.Address }

func (s *fakeSigner) Address() common.Address { return s.addr }

func (s *fakeSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	return tx, nil
}

type minedTx struct {
	tx          *types.Transaction
	availableAt time.Time
	receipt     *types.Receipt
}

// fakeBackend is an in-memory node: token state, registry status view and
// instant (or delayed) mining of everything broadcast to it.
type fakeBackend struct {
	mu sync.Mutex

	chainID   *big.Int
	allowance *big.Int
	balance   *big.Int

	// statusSatisfied drives the registry's idempotency view.
	statusSatisfied bool

	// allowanceLag is how many allowance reads after an approval still see
	// the stale value, modeling read-after-write lag.
	allowanceLag     int
	lagRemaining     int
	pendingAllowance *big.Int

	// receiptDelay postpones receipt visibility after broadcast.
	receiptDelay time.Duration
	// actionLogs are attached to receipts of registry (non-token) txs.
	actionLogs []*types.Log

	estimateGas uint64
	estimateErr error
	simulateErr error
	sendErr     error
	// sendErrOnce fails only the next broadcast, then clears itself.
	sendErrOnce error
	callErr     error

	// mineFailed marks every mined receipt as reverted.
	mineFailed bool

	nonce uint64
	mined map[common.Hash]*minedTx
	sent  []*types.Transaction
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:     big.NewInt(11155111),
		allowance:   big.NewInt(0),
		balance:     big.NewInt(0),
		estimateGas: 100_000,
		mined:       make(map[common.Hash]*minedTx),
	}
}

func (f *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.chainID), nil
}

func selector(sig string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(sig))[:4])
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	if len(msg.Data) < 4 {
		return nil, errors.New("missing selector")
	}
	switch hex.EncodeToString(msg.Data[:4]) {
	case selector("allowance(address,address)"):
		return common.LeftPadBytes(f.readAllowanceLocked().Bytes(), 32), nil
	case selector("balanceOf(address)"):
		return common.LeftPadBytes(f.balance.Bytes(), 32), nil
	case selector("isEndorsed(address,bytes32)"), selector("assetMinted(bytes32)"):
		if f.statusSatisfied {
			return common.LeftPadBytes(big.NewInt(1).Bytes(), 32), nil
		}
		return make([]byte, 32), nil
	default:
		if f.simulateErr != nil {
			return nil, f.simulateErr
		}
		return make([]byte, 32), nil
	}
}

// readAllowanceLocked applies the configured read-after-write lag.
func (f *fakeBackend) readAllowanceLocked() *big.Int {
	if f.pendingAllowance != nil {
		if f.lagRemaining > 0 {
			f.lagRemaining--
		} else {
			f.allowance = f.pendingAllowance
			f.pendingAllowance = nil
		}
	}
	return new(big.Int).Set(f.allowance)
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimateGas, nil
}

func (f *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(1_000_000_000), Number: big.NewInt(100)}, nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.sendErrOnce != nil {
		err := f.sendErrOnce
		f.sendErrOnce = nil
		return err
	}
	f.nonce++
	f.sent = append(f.sent, tx)

	status := types.ReceiptStatusSuccessful
	if f.mineFailed {
		status = types.ReceiptStatusFailed
	}
	receipt := &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(101),
	}
	if tx.To() != nil && *tx.To() == testTokenAddr {
		if len(tx.Data()) >= 4 {
			f.applyTokenCallLocked(tx.Data())
		}
	} else {
		receipt.Logs = f.actionLogs
	}
	f.mined[tx.Hash()] = &minedTx{
		tx:          tx,
		availableAt: time.Now().Add(f.receiptDelay),
		receipt:     receipt,
	}
	return nil
}

func (f *fakeBackend) applyTokenCallLocked(data []byte) {
	amount := new(big.Int).SetBytes(data[len(data)-32:])
	switch hex.EncodeToString(data[:4]) {
	case selector("approve(address,uint256)"):
		f.pendingAllowance = amount
		f.lagRemaining = f.allowanceLag
	case selector("increaseAllowance(address,uint256)"):
		f.pendingAllowance = new(big.Int).Add(f.allowance, amount)
		f.lagRemaining = f.allowanceLag
	}
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.mined[txHash]
	if !ok || time.Now().Before(entry.availableAt) {
		return nil, ethereum.NotFound
	}
	return entry.receipt, nil
}

func (f *fakeBackend) sentToToken() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, tx := range f.sent {
		if tx.To() != nil && *tx.To() == testTokenAddr {
			count++
		}
	}
	return count
}

func (f *fakeBackend) sentTotal() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeBackend) sentData(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[i].Data()
}

// memStore is an in-memory AttemptStore keyed by attempt id.
type memStore struct {
	mu       sync.Mutex
	attempts []SubmissionAttempt
}

func (m *memStore) SaveAttempt(attempt SubmissionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.attempts {
		if m.attempts[i].AttemptID == attempt.AttemptID {
			m.attempts[i] = attempt
			return nil
		}
	}
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *memStore) LatestAttempt(actionKey string) (SubmissionAttempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.attempts) - 1; i >= 0; i-- {
		if m.attempts[i].ActionKey == actionKey {
			return m.attempts[i], true, nil
		}
	}
	return SubmissionAttempt{}, false, nil
}

func fastNegotiateOptions() NegotiateOptions {
	return NegotiateOptions{
		PollBase:            time.Millisecond,
		PollStep:            time.Millisecond,
		PollCap:             5 * time.Millisecond,
		PollAttempts:        8,
		ConfirmPollInterval: time.Millisecond,
		ConfirmTimeout:      time.Second,
	}
}

func fastExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		WalletTimeout:  200 * time.Millisecond,
		PollInterval:   2 * time.Millisecond,
		ConfirmTimeout: time.Second,
	}
}

func endorseRequest(backend *fakeBackend, fee int64) *ActionRequest {
	versionID := common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	data, err := registryABI.Pack("endorseVersion", versionID, []byte{0x01}, []*big.Int{})
	if err != nil {
		panic(err)
	}
	statusData, err := registryABI.Pack("isEndorsed", testOwnerAddr, versionID)
	if err != nil {
		panic(err)
	}
	req := &ActionRequest{
		ActionKey:  "endorse|" + testOwnerAddr.Hex() + "|" + versionID.Hex(),
		Method:     "endorseVersion",
		Target:     testRegistryAddr,
		Data:       data,
		StatusData: statusData,
	}
	if fee >= 0 {
		req.Payment = &PaymentRequirement{
			Token:   testTokenAddr,
			Spender: testRegistryAddr,
			Required: func(ctx context.Context) (*big.Int, error) {
				return big.NewInt(fee), nil
			},
		}
	}
	return req
}

func endorsedLog(versionID common.Hash, feePaid int64) *types.Log {
	return &types.Log{
		Address: testRegistryAddr,
		Topics: []common.Hash{
			registryABI.Events["VersionEndorsed"].ID,
			common.BytesToHash(testOwnerAddr.Bytes()),
			versionID,
		},
		Data: common.LeftPadBytes(big.NewInt(feePaid).Bytes(), 32),
	}
}
