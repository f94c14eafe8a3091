// Package gateway builds, claims and performs atomic multi-action orders.
package gateway

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/MoMannn/wanchain-example/internal/chain"
	"github.com/MoMannn/wanchain-example/internal/ledger"
	"github.com/MoMannn/wanchain-example/internal/mutation"
	"github.com/MoMannn/wanchain-example/pkg/metrics"
)

var (
	ErrInvalidOrder = errors.New("invalid order")
	ErrInvalidClaim = errors.New("invalid claim")
	ErrNotMaker     = errors.New("provider account is not the order maker")
	ErrNotTaker     = errors.New("provider account is not the order taker")
	ErrExpired      = errors.New("order has expired")
	ErrNotDeployed  = errors.New("order gateway is not configured")
)

// ActionKind selects what an action does
type ActionKind string

const (
	ActionCreateAsset   ActionKind = "create_asset"
	ActionTransferAsset ActionKind = "transfer_asset"
)

// SignatureKind of a claim; only eth_sign is produced
const SignatureEthSign uint8 = 0

// Action is one step of an order
type Action struct {
	Kind         ActionKind `json:"kind"`
	LedgerID     string     `json:"ledgerId"`
	SenderID     string     `json:"senderId,omitempty"`
	ReceiverID   string     `json:"receiverId"`
	AssetID      string     `json:"assetId"`
	AssetImprint string     `json:"assetImprint,omitempty"`
}

// Order bundles actions that execute atomically. Seed is unix milliseconds,
// Expiration unix seconds.
type Order struct {
	MakerID    string   `json:"makerId"`
	TakerID    string   `json:"takerId"`
	Actions    []Action `json:"actions"`
	Seed       int64    `json:"seed"`
	Expiration int64    `json:"expiration"`
}

// Config holds the proxy ids actions are routed through
type Config struct {
	CreateProxyID   uint32
	TransferProxyID uint32
	OrderTTL        time.Duration
}

// Gateway is a handle on a deployed order gateway
type Gateway struct {
	id       common.Address
	provider *chain.Provider
	contract *bind.BoundContract
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// GetInstance binds the gateway deployed at id
func GetInstance(p *chain.Provider, id string, cfg Config) (*Gateway, error) {
	if id == "" {
		return nil, ErrNotDeployed
	}
	if !common.IsHexAddress(id) {
		return nil, fmt.Errorf("%w: gateway %q", ledger.ErrInvalidAddress, id)
	}
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = 24 * time.Hour
	}
	addr := common.HexToAddress(id)
	backend := p.Backend()
	return &Gateway{
		id:       addr,
		provider: p,
		contract: bind.NewBoundContract(addr, ParsedABI, backend, backend, backend),
		cfg:      cfg,
		logger:   p.Logger().With(zap.String("gateway_id", addr.Hex())),
		now:      time.Now,
	}, nil
}

// ID returns the gateway address
func (g *Gateway) ID() common.Address { return g.id }

// Prepare fills defaults and validates the order. The input is not modified.
func (g *Gateway) Prepare(order Order) (*Order, error) {
	out := order
	out.Actions = make([]Action, len(order.Actions))
	copy(out.Actions, order.Actions)

	now := g.now()
	if out.MakerID == "" {
		out.MakerID = g.provider.Account().Hex()
	}
	if out.Seed == 0 {
		out.Seed = now.UnixMilli()
	}
	if out.Expiration == 0 {
		out.Expiration = now.Add(g.cfg.OrderTTL).Unix()
	}

	if _, err := g.encode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Hash returns the order digest the maker signs
func (g *Gateway) Hash(order *Order) (common.Hash, error) {
	data, err := g.encode(order)
	if err != nil {
		return common.Hash{}, err
	}
	return g.hash(data), nil
}

func (g *Gateway) hash(data *OrderData) common.Hash {
	var actionsHash common.Hash
	for _, a := range data.Actions {
		proxy := make([]byte, 4)
		binary.BigEndian.PutUint32(proxy, a.Proxy)
		actionsHash = crypto.Keccak256Hash(
			actionsHash.Bytes(),
			[]byte{a.Kind},
			proxy,
			a.Token.Bytes(),
			a.Param1[:],
			a.To.Bytes(),
			common.LeftPadBytes(a.Value.Bytes(), 32),
		)
	}
	return crypto.Keccak256Hash(
		g.id.Bytes(),
		data.Maker.Bytes(),
		data.Taker.Bytes(),
		actionsHash.Bytes(),
		common.LeftPadBytes(data.Seed.Bytes(), 32),
		common.LeftPadBytes(data.Expiration.Bytes(), 32),
	)
}

// Claim signs the order as its maker and returns the prepared order with the claim
func (g *Gateway) Claim(_ context.Context, order Order) (*Order, string, error) {
	prepared, err := g.Prepare(order)
	if err != nil {
		return nil, "", err
	}
	if common.HexToAddress(prepared.MakerID) != g.provider.Account() {
		return nil, "", ErrNotMaker
	}

	hash, err := g.Hash(prepared)
	if err != nil {
		return nil, "", err
	}
	sig, err := g.provider.SignHash(hash.Bytes())
	if err != nil {
		return nil, "", err
	}

	g.logger.Info("order claimed",
		zap.String("order_hash", hash.Hex()),
		zap.String("maker", prepared.MakerID),
		zap.String("taker", prepared.TakerID),
		zap.Int("actions", len(prepared.Actions)))
	return prepared, fmt.Sprintf("%d:%s", SignatureEthSign, hexutil.Encode(sig)), nil
}

// VerifyClaim checks claim is the maker's signature over order
func (g *Gateway) VerifyClaim(order *Order, claim string) (SignatureData, error) {
	sig, err := ParseClaim(claim)
	if err != nil {
		return SignatureData{}, err
	}
	hash, err := g.Hash(order)
	if err != nil {
		return SignatureData{}, err
	}

	raw := make([]byte, 0, 65)
	raw = append(raw, sig.R[:]...)
	raw = append(raw, sig.S[:]...)
	raw = append(raw, sig.V)
	signer, err := chain.RecoverSigner(hash.Bytes(), raw)
	if err != nil {
		return SignatureData{}, fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
	if signer != common.HexToAddress(order.MakerID) {
		return SignatureData{}, fmt.Errorf("%w: signed by %s, maker is %s", ErrInvalidClaim, signer.Hex(), order.MakerID)
	}
	return sig, nil
}

// Perform submits a claimed order as its taker
func (g *Gateway) Perform(ctx context.Context, order Order, claim string) (*mutation.Mutation, error) {
	data, err := g.encode(&order)
	if err != nil {
		return nil, err
	}
	if data.Taker != (common.Address{}) && data.Taker != g.provider.Account() {
		return nil, ErrNotTaker
	}
	if order.Expiration <= g.now().Unix() {
		return nil, ErrExpired
	}
	sig, err := g.VerifyClaim(&order, claim)
	if err != nil {
		return nil, err
	}

	ctx, cancel := g.provider.WithCallTimeout(ctx)
	defer cancel()
	opts, err := g.provider.Transactor(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	tx, err := g.contract.Transact(opts, "perform", *data, sig)
	metrics.ObserveLedgerCall("perform", start, err)
	if err != nil {
		g.logger.Error("order perform failed", zap.Error(err))
		return nil, chain.WrapNode("perform", err)
	}

	m := mutation.New(mutation.KindPerformOrder, tx, opts.From)
	m.AssetID = order.Actions[0].AssetID
	for _, a := range data.Actions {
		if a.Kind == 0 {
			m.Affects = append(m.Affects, a.Token)
		}
	}
	g.logger.Info("order perform submitted", zap.String("mutation_id", m.ID))
	return m, nil
}

// ParseClaim decodes "<kind>:<0x r||s||v>"
func ParseClaim(claim string) (SignatureData, error) {
	var sig SignatureData
	kindText, sigText, ok := strings.Cut(claim, ":")
	if !ok {
		return sig, fmt.Errorf("%w: missing signature kind", ErrInvalidClaim)
	}
	kind, err := strconv.ParseUint(kindText, 10, 8)
	if err != nil || uint8(kind) != SignatureEthSign {
		return sig, fmt.Errorf("%w: unsupported signature kind %q", ErrInvalidClaim, kindText)
	}
	raw, err := hexutil.Decode(sigText)
	if err != nil || len(raw) != crypto.SignatureLength {
		return sig, fmt.Errorf("%w: signature must be %d hex bytes", ErrInvalidClaim, crypto.SignatureLength)
	}
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64]
	sig.Kind = uint8(kind)
	return sig, nil
}

// encode validates order and converts it to its contract representation
func (g *Gateway) encode(order *Order) (*OrderData, error) {
	maker, err := ledger.ParseAddress(order.MakerID)
	if err != nil {
		return nil, fmt.Errorf("%w: makerId: %v", ErrInvalidOrder, err)
	}
	var taker common.Address
	if order.TakerID != "" {
		if taker, err = ledger.ParseAddress(order.TakerID); err != nil {
			return nil, fmt.Errorf("%w: takerId: %v", ErrInvalidOrder, err)
		}
	}
	if len(order.Actions) == 0 {
		return nil, fmt.Errorf("%w: at least one action is required", ErrInvalidOrder)
	}
	if order.Seed <= 0 || order.Expiration <= 0 {
		return nil, fmt.Errorf("%w: seed and expiration must be positive", ErrInvalidOrder)
	}

	data := &OrderData{
		Maker:      maker,
		Taker:      taker,
		Actions:    make([]ActionData, 0, len(order.Actions)),
		Seed:       big.NewInt(order.Seed),
		Expiration: big.NewInt(order.Expiration),
	}
	for i, a := range order.Actions {
		ad, err := g.encodeAction(a, maker)
		if err != nil {
			return nil, fmt.Errorf("%w: actions[%d]: %v", ErrInvalidOrder, i, err)
		}
		data.Actions = append(data.Actions, ad)
	}
	return data, nil
}

func (g *Gateway) encodeAction(a Action, maker common.Address) (ActionData, error) {
	token, err := ledger.ParseAddress(a.LedgerID)
	if err != nil {
		return ActionData{}, fmt.Errorf("ledgerId: %w", err)
	}
	to, err := ledger.ParseAddress(a.ReceiverID)
	if err != nil {
		return ActionData{}, fmt.Errorf("receiverId: %w", err)
	}
	value, err := ledger.ParseAssetID(a.AssetID)
	if err != nil {
		return ActionData{}, err
	}

	ad := ActionData{Token: token, To: to, Value: value}
	switch a.Kind {
	case ActionCreateAsset:
		imprint, err := ledger.ParseBytes32(a.AssetImprint)
		if err != nil {
			return ActionData{}, fmt.Errorf("assetImprint: %w", err)
		}
		ad.Kind = 0
		ad.Proxy = g.cfg.CreateProxyID
		ad.Param1 = imprint
	case ActionTransferAsset:
		sender := maker
		if a.SenderID != "" {
			if sender, err = ledger.ParseAddress(a.SenderID); err != nil {
				return ActionData{}, fmt.Errorf("senderId: %w", err)
			}
		}
		ad.Kind = 1
		ad.Proxy = g.cfg.TransferProxyID
		copy(ad.Param1[:], common.LeftPadBytes(sender.Bytes(), 32))
	default:
		return ActionData{}, fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return ad, nil
}
