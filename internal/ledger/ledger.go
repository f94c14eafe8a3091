// Package ledger is a client for deployed asset ledger contracts.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MoMannn/wanchain-example/internal/chain"
	"github.com/MoMannn/wanchain-example/internal/mutation"
	"github.com/MoMannn/wanchain-example/pkg/metrics"
)

var (
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidAssetID    = errors.New("asset id must be an unsigned 256-bit decimal integer")
	ErrInvalidHash       = errors.New("value must be a 32-byte hex string")
	ErrUnknownCapability = errors.New("unknown capability")
	ErrBytecodeMissing   = errors.New("asset ledger bytecode is not configured")
)

var tracer = otel.Tracer("github.com/MoMannn/wanchain-example/internal/ledger")

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// DeployRecipe describes a new asset ledger
type DeployRecipe struct {
	Name         string
	Symbol       string
	URIBase      string
	SchemaID     string
	Capabilities []Capability
}

// AssetRecipe describes an asset to create
type AssetRecipe struct {
	ReceiverID string
	ID         string
	Imprint    string
}

// TransferRecipe moves an asset held by the provider account
type TransferRecipe struct {
	ReceiverID string
	ID         string
}

// Info is the ledger metadata
type Info struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	URIBase  string `json:"uriBase"`
	SchemaID string `json:"schemaId"`
	Supply   string `json:"supply"`
}

// Asset is a single asset on a ledger
type Asset struct {
	ID      string `json:"id"`
	URI     string `json:"uri"`
	Imprint string `json:"imprint"`
}

// Ledger is a handle on one deployed asset ledger
type Ledger struct {
	id       common.Address
	provider *chain.Provider
	contract *bind.BoundContract
	logger   *zap.Logger
}

// LoadBytecode reads hex contract bytecode from path
func LoadBytecode(path string) ([]byte, error) {
	if path == "" {
		return nil, ErrBytecodeMissing
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bytecode: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(text, "0x") {
		text = "0x" + text
	}
	code, err := hexutil.Decode(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bytecode: %w", err)
	}
	if len(code) == 0 {
		return nil, ErrBytecodeMissing
	}
	return code, nil
}

// Deploy submits the creation transaction of a new ledger signed by the provider account
func Deploy(ctx context.Context, p *chain.Provider, bytecode []byte, recipe DeployRecipe) (*mutation.Mutation, error) {
	if len(bytecode) == 0 {
		return nil, ErrBytecodeMissing
	}
	schemaID, err := ParseBytes32(recipe.SchemaID)
	if err != nil {
		return nil, fmt.Errorf("schemaId: %w", err)
	}
	codes, err := InterfaceCodes(recipe.Capabilities)
	if err != nil {
		return nil, err
	}

	ctx, cancel := p.WithCallTimeout(ctx)
	defer cancel()
	opts, err := p.Transactor(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	addr, tx, _, err := bind.DeployContract(opts, ParsedABI, bytecode, p.Backend(),
		recipe.Name, recipe.Symbol, recipe.URIBase, schemaID, codes)
	metrics.ObserveLedgerCall("deploy", start, err)
	if err != nil {
		return nil, chain.WrapNode("deploy", err)
	}

	m := mutation.New(mutation.KindDeploy, tx, opts.From)
	m.LedgerID = addr
	p.Logger().Info("asset ledger deployment submitted",
		zap.String("mutation_id", m.ID),
		zap.String("ledger_id", addr.Hex()),
		zap.String("name", recipe.Name),
		zap.String("symbol", recipe.Symbol))
	return m, nil
}

// GetInstance binds the ledger deployed at id
func GetInstance(p *chain.Provider, id string) (*Ledger, error) {
	if !common.IsHexAddress(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, id)
	}
	addr := common.HexToAddress(id)
	backend := p.Backend()
	return &Ledger{
		id:       addr,
		provider: p,
		contract: bind.NewBoundContract(addr, ParsedABI, backend, backend, backend),
		logger:   p.Logger().With(zap.String("ledger_id", addr.Hex())),
	}, nil
}

// ID returns the ledger address
func (l *Ledger) ID() common.Address { return l.id }

// CreateAsset mints a new asset to recipe.ReceiverID
func (l *Ledger) CreateAsset(ctx context.Context, recipe AssetRecipe) (*mutation.Mutation, error) {
	receiver, err := ParseAddress(recipe.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("receiverId: %w", err)
	}
	id, err := ParseAssetID(recipe.ID)
	if err != nil {
		return nil, err
	}
	imprint, err := ParseBytes32(recipe.Imprint)
	if err != nil {
		return nil, fmt.Errorf("imprint: %w", err)
	}

	m, err := l.transact(ctx, mutation.KindCreateAsset, "create", receiver, id, imprint)
	if err != nil {
		return nil, err
	}
	m.ReceiverID = receiver
	m.AssetID = id.String()
	m.Affects = []common.Address{l.id}
	return m, nil
}

// TransferAsset moves an asset from the provider account to recipe.ReceiverID
func (l *Ledger) TransferAsset(ctx context.Context, recipe TransferRecipe) (*mutation.Mutation, error) {
	receiver, err := ParseAddress(recipe.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("receiverId: %w", err)
	}
	id, err := ParseAssetID(recipe.ID)
	if err != nil {
		return nil, err
	}

	m, err := l.transact(ctx, mutation.KindTransferAsset, "safeTransferFrom", l.provider.Account(), receiver, id)
	if err != nil {
		return nil, err
	}
	m.ReceiverID = receiver
	m.AssetID = id.String()
	return m, nil
}

// GetInfo reads the ledger metadata
func (l *Ledger) GetInfo(ctx context.Context) (*Info, error) {
	name, err := l.callString(ctx, "name")
	if err != nil {
		return nil, err
	}
	symbol, err := l.callString(ctx, "symbol")
	if err != nil {
		return nil, err
	}
	uriBase, err := l.callString(ctx, "uriBase")
	if err != nil {
		return nil, err
	}
	out, err := l.call(ctx, "schemaId")
	if err != nil {
		return nil, err
	}
	schemaID := *abi.ConvertType(out[0], new([32]byte)).(*[32]byte)
	supply, err := l.callBig(ctx, "totalSupply")
	if err != nil {
		return nil, err
	}

	return &Info{
		Name:     name,
		Symbol:   symbol,
		URIBase:  uriBase,
		SchemaID: hexutil.Encode(schemaID[:]),
		Supply:   supply.String(),
	}, nil
}

// GetAsset reads uri and imprint of an asset
func (l *Ledger) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	id, err := ParseAssetID(assetID)
	if err != nil {
		return nil, err
	}
	uri, err := l.callString(ctx, "tokenURI", id)
	if err != nil {
		return nil, err
	}
	out, err := l.call(ctx, "tokenImprint", id)
	if err != nil {
		return nil, err
	}
	imprint := *abi.ConvertType(out[0], new([32]byte)).(*[32]byte)

	return &Asset{
		ID:      id.String(),
		URI:     uri,
		Imprint: hexutil.Encode(imprint[:]),
	}, nil
}

// GetAssetAccount returns the owner of an asset
func (l *Ledger) GetAssetAccount(ctx context.Context, assetID string) (string, error) {
	id, err := ParseAssetID(assetID)
	if err != nil {
		return "", err
	}
	out, err := l.call(ctx, "ownerOf", id)
	if err != nil {
		return "", err
	}
	owner := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	return owner.Hex(), nil
}

// GetBalance returns how many assets owner holds, as a decimal string
func (l *Ledger) GetBalance(ctx context.Context, owner string) (string, error) {
	addr, err := ParseAddress(owner)
	if err != nil {
		return "", fmt.Errorf("owner: %w", err)
	}
	balance, err := l.callBig(ctx, "balanceOf", addr)
	if err != nil {
		return "", err
	}
	return balance.String(), nil
}

// GetCapabilities returns the capabilities whose interface the ledger supports
func (l *Ledger) GetCapabilities(ctx context.Context) ([]Capability, error) {
	supported := make([]Capability, 0, len(capabilityCodes))
	for _, c := range AllCapabilities() {
		code, _ := c.InterfaceCode()
		out, err := l.call(ctx, "supportsInterface", code)
		if err != nil {
			return nil, err
		}
		if *abi.ConvertType(out[0], new(bool)).(*bool) {
			supported = append(supported, c)
		}
	}
	return supported, nil
}

func (l *Ledger) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	ctx, span := l.startSpan(ctx, method)
	defer span.End()
	ctx, cancel := l.provider.WithCallTimeout(ctx)
	defer cancel()

	var out []interface{}
	start := time.Now()
	err := l.contract.Call(l.provider.CallOpts(ctx), &out, method, args...)
	metrics.ObserveLedgerCall(method, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Debug("ledger call failed", zap.String("method", method), zap.Error(err))
		return nil, chain.WrapNode(method, err)
	}
	l.logger.Debug("ledger call", zap.String("method", method), zap.Duration("took", time.Since(start)))
	return out, nil
}

func (l *Ledger) callString(ctx context.Context, method string, args ...interface{}) (string, error) {
	out, err := l.call(ctx, method, args...)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (l *Ledger) callBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := l.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (l *Ledger) transact(ctx context.Context, kind mutation.Kind, method string, args ...interface{}) (*mutation.Mutation, error) {
	ctx, span := l.startSpan(ctx, method)
	defer span.End()
	ctx, cancel := l.provider.WithCallTimeout(ctx)
	defer cancel()

	opts, err := l.provider.Transactor(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tx, err := l.contract.Transact(opts, method, args...)
	metrics.ObserveLedgerCall(method, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Error("ledger transaction failed", zap.String("method", method), zap.Error(err))
		return nil, chain.WrapNode(method, err)
	}

	m := mutation.New(kind, tx, opts.From)
	l.logger.Info("ledger mutation submitted",
		zap.String("method", method),
		zap.String("mutation_id", m.ID))
	return m, nil
}

func (l *Ledger) startSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ledger."+method, trace.WithAttributes(
		attribute.String("ledger.id", l.id.Hex()),
		attribute.String("ledger.method", method)))
}

// ParseAddress validates a hex account or contract address
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ParseAssetID parses a decimal uint256 asset id
func ParseAssetID(s string) (*big.Int, error) {
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAssetID, s)
	}
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() < 0 || id.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAssetID, s)
	}
	return id, nil
}

// ParseBytes32 parses a 0x-prefixed or bare 64-digit hex string
func ParseBytes32(s string) ([32]byte, error) {
	var out [32]byte
	text := s
	if len(text) >= 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		text = text[2:]
	}
	if len(text) != 64 {
		return out, fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	b, err := hexutil.Decode("0x" + text)
	if err != nil {
		return out, fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	copy(out[:], b)
	return out, nil
}
