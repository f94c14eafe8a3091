// Package testutil holds an in-process node used by the SDK and service tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// CallHandler answers one contract method. args are the ABI-decoded inputs and the
// returned values are packed with the method outputs.
type CallHandler func(args []interface{}) ([]interface{}, error)

type fakeContract struct {
	abi      abi.ABI
	handlers map[string]CallHandler
}

// FakeBackend is a chain.Backend that keeps state in memory. eth_call is served by
// decoding the selector against the registered ABI; sent transactions are recorded
// and, with AutoMine, receive a successful receipt in a new block.
type FakeBackend struct {
	mu        sync.Mutex
	chainID   *big.Int
	head      uint64
	nonces    map[common.Address]uint64
	contracts map[common.Address]*fakeContract
	receipts  map[common.Hash]*types.Receipt
	sent      []*types.Transaction

	AutoMine bool
	CallErr  error
	SendErr  error
	// Stall makes calls and sends block until their context ends
	Stall bool
}

// NewFakeBackend returns a backend at block 1 that mines every transaction it receives
func NewFakeBackend(chainID int64) *FakeBackend {
	return &FakeBackend{
		chainID:   big.NewInt(chainID),
		head:      1,
		nonces:    make(map[common.Address]uint64),
		contracts: make(map[common.Address]*fakeContract),
		receipts:  make(map[common.Hash]*types.Receipt),
		AutoMine:  true,
	}
}

// Register installs a contract at addr with method handlers keyed by ABI method name
func (b *FakeBackend) Register(addr common.Address, contractABI abi.ABI, handlers map[string]CallHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contracts[addr] = &fakeContract{abi: contractABI, handlers: handlers}
}

// Sent returns the transactions received so far
func (b *FakeBackend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*types.Transaction, len(b.sent))
	copy(out, b.sent)
	return out
}

// LastSent returns the most recent transaction or nil
func (b *FakeBackend) LastSent() *types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		return nil
	}
	return b.sent[len(b.sent)-1]
}

// Mine advances the head by n empty blocks
func (b *FakeBackend) Mine(n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head += n
}

// SetReceipt stores a receipt for hash in the given block
func (b *FakeBackend) SetReceipt(hash common.Hash, status uint64, block uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receipts[hash] = &types.Receipt{
		TxHash:      hash,
		Status:      status,
		BlockNumber: new(big.Int).SetUint64(block),
	}
	if block > b.head {
		b.head = block
	}
}

// DecodeInput unpacks the calldata of tx against contractABI
func DecodeInput(contractABI abi.ABI, tx *types.Transaction) (string, []interface{}, error) {
	data := tx.Data()
	if len(data) < 4 {
		return "", nil, errors.New("calldata too short")
	}
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return "", nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, err
	}
	return method.Name, args, nil
}

func (b *FakeBackend) CodeAt(_ context.Context, contract common.Address, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.contracts[contract]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (b *FakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if b.Stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if b.CallErr != nil {
		return nil, b.CallErr
	}
	if call.To == nil {
		return nil, errors.New("call without target")
	}
	b.mu.Lock()
	contract, ok := b.contracts[*call.To]
	b.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if len(call.Data) < 4 {
		return nil, errors.New("calldata too short")
	}
	method, err := contract.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	handler, ok := contract.handlers[method.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted: %s not implemented", method.Name)
	}
	out, err := handler(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (b *FakeBackend) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(b.head)}, nil
}

func (b *FakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return b.CodeAt(ctx, account, nil)
}

func (b *FakeBackend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *FakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *FakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *FakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 500_000, nil
}

func (b *FakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if b.Stall {
		<-ctx.Done()
		return ctx.Err()
	}
	if b.SendErr != nil {
		return b.SendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	b.nonces[from] = tx.Nonce() + 1

	if b.AutoMine {
		b.head++
		receipt := &types.Receipt{
			TxHash:      tx.Hash(),
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: new(big.Int).SetUint64(b.head),
		}
		if tx.To() == nil {
			receipt.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
		}
		b.receipts[tx.Hash()] = receipt
	}
	return nil
}

func (b *FakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *FakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

func (b *FakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (b *FakeBackend) BlockNumber(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head, nil
}

func (b *FakeBackend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}
