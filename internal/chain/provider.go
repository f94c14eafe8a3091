// Package chain connects the gateway to an EVM node and the account it acts for.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/MoMannn/wanchain-example/internal/infrastructure/config"
)

var (
	// ErrNoSigningKey is returned by write operations when no key is configured
	ErrNoSigningKey = errors.New("no signing key configured")
	// ErrAccountMismatch means the configured key does not belong to the configured account
	ErrAccountMismatch = errors.New("signing key does not match account")
)

// Backend is everything the SDK layer needs from a node. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// NodeError wraps a failed round trip to the node
type NodeError struct {
	Op  string
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Op, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// WrapNode tags err as a node failure unless it is nil or already tagged
func WrapNode(op string, err error) error {
	if err == nil {
		return nil
	}
	var ne *NodeError
	if errors.As(err, &ne) {
		return err
	}
	return &NodeError{Op: op, Err: err}
}

// Provider binds a node connection to the account that signs transactions.
// Without a key it is read-only: calls work, Transactor and SignHash fail.
type Provider struct {
	backend       Backend
	key           *ecdsa.PrivateKey
	account       common.Address
	chainID       *big.Int
	confirmations uint64
	gasLimit      uint64
	callTimeout   time.Duration
	logger        *zap.Logger
}

// Dial connects to cfg.URL and builds a Provider for the configured account
func Dial(ctx context.Context, cfg config.ChainConfig, logger *zap.Logger) (*Provider, error) {
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	client, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, WrapNode("dial", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, WrapNode("chain id", err)
	}

	key, err := LoadKey(cfg)
	if err != nil {
		client.Close()
		return nil, err
	}

	p, err := NewProvider(client, key, chainID, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("connected to node",
		zap.String("url", cfg.URL),
		zap.String("chain_id", chainID.String()),
		zap.String("account", p.account.Hex()),
		zap.Bool("can_sign", p.CanSign()))
	return p, nil
}

// NewProvider assembles a Provider over an existing backend. key may be nil.
func NewProvider(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, cfg config.ChainConfig, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var account common.Address
	if cfg.AccountID != "" {
		if !common.IsHexAddress(cfg.AccountID) {
			return nil, fmt.Errorf("invalid account id %q", cfg.AccountID)
		}
		account = common.HexToAddress(cfg.AccountID)
	}
	if key != nil {
		keyAddr := crypto.PubkeyToAddress(key.PublicKey)
		if cfg.AccountID != "" && keyAddr != account {
			return nil, fmt.Errorf("%w: key is %s, account is %s", ErrAccountMismatch, keyAddr.Hex(), account.Hex())
		}
		account = keyAddr
	}

	confirmations := cfg.RequiredConfirmations
	if confirmations == 0 {
		confirmations = 1
	}

	return &Provider{
		backend:       backend,
		key:           key,
		account:       account,
		chainID:       chainID,
		confirmations: confirmations,
		gasLimit:      cfg.GasLimit,
		callTimeout:   cfg.CallTimeout,
		logger:        logger,
	}, nil
}

// LoadKey reads the signing key from a hex private key or an encrypted keystore file.
// It returns nil when neither is configured.
func LoadKey(cfg config.ChainConfig) (*ecdsa.PrivateKey, error) {
	switch {
	case cfg.PrivateKey != "":
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return key, nil
	case cfg.KeystorePath != "":
		data, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read keystore: %w", err)
		}
		key, err := keystore.DecryptKey(data, cfg.KeystorePassword)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
		}
		return key.PrivateKey, nil
	default:
		return nil, nil
	}
}

func (p *Provider) Account() common.Address { return p.account }

func (p *Provider) Backend() Backend { return p.backend }

func (p *Provider) ChainID() *big.Int { return new(big.Int).Set(p.chainID) }

func (p *Provider) RequiredConfirmations() uint64 { return p.confirmations }

func (p *Provider) Logger() *zap.Logger { return p.logger }

// CanSign reports whether write operations are available
func (p *Provider) CanSign() bool { return p.key != nil }

// WithCallTimeout bounds a node round trip by the configured call timeout.
// With no timeout configured ctx is returned as is.
func (p *Provider) WithCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.callTimeout)
}

// Transactor returns transaction options signed by the provider account
func (p *Provider) Transactor(ctx context.Context) (*bind.TransactOpts, error) {
	if p.key == nil {
		return nil, ErrNoSigningKey
	}
	opts, err := bind.NewKeyedTransactorWithChainID(p.key, p.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = p.gasLimit
	return opts, nil
}

// CallOpts returns read options sent from the provider account
func (p *Provider) CallOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{From: p.account, Context: ctx}
}

// SignHash signs hash as an eth_sign personal message. v is 27 or 28.
func (p *Provider) SignHash(hash []byte) ([]byte, error) {
	if p.key == nil {
		return nil, ErrNoSigningKey
	}
	sig, err := crypto.Sign(accounts.TextHash(hash), p.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Ping checks the node answers
func (p *Provider) Ping(ctx context.Context) error {
	ctx, cancel := p.WithCallTimeout(ctx)
	defer cancel()
	_, err := p.backend.BlockNumber(ctx)
	return WrapNode("block number", err)
}

// Close releases the node connection when the backend holds one
func (p *Provider) Close() {
	if c, ok := p.backend.(interface{ Close() }); ok {
		c.Close()
	}
}

// RecoverSigner returns the address that produced an eth_sign signature over hash
func RecoverSigner(hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(hash), normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
