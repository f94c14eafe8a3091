// Package asset serves the gateway's HTTP operations on top of the ledger SDK layer.
package asset

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MoMannn/wanchain-example/internal/cache"
	"github.com/MoMannn/wanchain-example/internal/chain"
	"github.com/MoMannn/wanchain-example/internal/gateway"
	"github.com/MoMannn/wanchain-example/internal/infrastructure/config"
	"github.com/MoMannn/wanchain-example/internal/ledger"
	"github.com/MoMannn/wanchain-example/internal/mutation"
	"github.com/MoMannn/wanchain-example/pkg/metrics"
)

// Options wires the service dependencies. Cache and Publisher are optional.
type Options struct {
	Provider  *chain.Provider
	Bytecode  []byte
	Gateway   config.GatewayConfig
	Mutation  config.MutationConfig
	Store     *mutation.Store
	Publisher mutation.Publisher
	Cache     *cache.LedgerCache
	Logger    *zap.Logger
}

// Service implements every gateway operation
type Service struct {
	provider  *chain.Provider
	bytecode  []byte
	gwConfig  config.GatewayConfig
	store     *mutation.Store
	publisher mutation.Publisher
	cache     *cache.LedgerCache
	tracker   *mutation.Tracker
	logger    *zap.Logger
}

// NewService creates the service and starts its mutation tracker
func NewService(opts Options) (*Service, error) {
	if opts.Provider == nil {
		return nil, errors.New("provider is required")
	}
	if opts.Store == nil {
		return nil, errors.New("mutation store is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Publisher == nil {
		opts.Publisher = mutation.NewLogPublisher(opts.Logger)
	}

	s := &Service{
		provider:  opts.Provider,
		bytecode:  opts.Bytecode,
		gwConfig:  opts.Gateway,
		store:     opts.Store,
		publisher: opts.Publisher,
		cache:     opts.Cache,
		logger:    opts.Logger,
	}
	s.tracker = mutation.NewTracker(opts.Provider.Backend(), mutation.TrackerConfig{
		RequiredConfirmations: opts.Provider.RequiredConfirmations(),
		PollInterval:          opts.Mutation.PollInterval,
		Timeout:               opts.Mutation.Timeout,
	}, opts.Logger, s.onFinished)

	return s, nil
}

// Deploy submits a new asset ledger
func (s *Service) Deploy(ctx context.Context, recipe ledger.DeployRecipe) (*mutation.Mutation, error) {
	m, err := ledger.Deploy(ctx, s.provider, s.bytecode, recipe)
	if err != nil {
		return nil, err
	}
	s.submit(ctx, m)
	return m, nil
}

// Mint creates an asset on ledgerID
func (s *Service) Mint(ctx context.Context, ledgerID string, recipe ledger.AssetRecipe) (*mutation.Mutation, error) {
	l, err := ledger.GetInstance(s.provider, ledgerID)
	if err != nil {
		return nil, err
	}
	m, err := l.CreateAsset(ctx, recipe)
	if err != nil {
		return nil, err
	}
	s.submit(ctx, m)
	return m, nil
}

// Transfer moves an asset held by the gateway account
func (s *Service) Transfer(ctx context.Context, ledgerID string, recipe ledger.TransferRecipe) (*mutation.Mutation, error) {
	l, err := ledger.GetInstance(s.provider, ledgerID)
	if err != nil {
		return nil, err
	}
	m, err := l.TransferAsset(ctx, recipe)
	if err != nil {
		return nil, err
	}
	s.submit(ctx, m)
	return m, nil
}

// LedgerInfo returns ledger metadata, served from cache when possible
func (s *Service) LedgerInfo(ctx context.Context, ledgerID string) (*ledger.Info, error) {
	l, err := ledger.GetInstance(s.provider, ledgerID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		info, err := s.cache.GetInfo(ctx, ledgerID)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("ledger info cache unavailable", zap.Error(err))
		}
	}

	info, err := l.GetInfo(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetInfo(ctx, ledgerID, info)
	}
	return info, nil
}

// LedgerCapabilities returns the capabilities the ledger supports
func (s *Service) LedgerCapabilities(ctx context.Context, ledgerID string) ([]ledger.Capability, error) {
	l, err := ledger.GetInstance(s.provider, ledgerID)
	if err != nil {
		return nil, err
	}
	return l.GetCapabilities(ctx)
}

// AssetInfo returns asset metadata, served from cache when possible
func (s *Service) AssetInfo(ctx context.Context, ledgerID, assetID string) (*ledger.Asset, error) {
	l, err := ledger.GetInstance(s.provider, ledgerID)
	if err != nil {
		return nil, err
	}
	if _, err := ledger.ParseAssetID(assetID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		asset, err := s.cache.GetAsset(ctx, ledgerID, assetID)
		if err == nil {
			return asset, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("asset cache unavailable", zap.Error(err))
		}
	}

	asset, err := l.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetAsset(ctx, ledgerID, asset)
	}
	return asset, nil
}

// AssetOwner returns the account holding an asset
func (s *Service) AssetOwner(ctx context.Context, ledgerID, assetID string) (string, error) {
	l, err := ledger.GetInstance(s.provider, ledgerID)
	if err != nil {
		return "", err
	}
	return l.GetAssetAccount(ctx, assetID)
}

// Balance returns how many assets owner holds on a ledger
func (s *Service) Balance(ctx context.Context, ledgerID, owner string) (string, error) {
	l, err := ledger.GetInstance(s.provider, ledgerID)
	if err != nil {
		return "", err
	}
	return l.GetBalance(ctx, owner)
}

// CreateOrder prepares and claims an atomic order as its maker
func (s *Service) CreateOrder(ctx context.Context, order gateway.Order) (*gateway.Order, string, error) {
	gw, err := s.gateway()
	if err != nil {
		return nil, "", err
	}
	return gw.Claim(ctx, order)
}

// PerformOrder submits a claimed order as its taker
func (s *Service) PerformOrder(ctx context.Context, order gateway.Order, claim string) (*mutation.Mutation, error) {
	gw, err := s.gateway()
	if err != nil {
		return nil, err
	}
	m, err := gw.Perform(ctx, order, claim)
	if err != nil {
		return nil, err
	}
	s.submit(ctx, m)
	return m, nil
}

// Mutation returns the journal record of a mutation
func (s *Service) Mutation(ctx context.Context, id string) (*mutation.Record, error) {
	return s.store.Get(ctx, id)
}

// Mutations lists recent journal records
func (s *Service) Mutations(ctx context.Context, ledgerID string, limit int) ([]mutation.Record, error) {
	if ledgerID != "" {
		if _, err := ledger.ParseAddress(ledgerID); err != nil {
			return nil, err
		}
	}
	return s.store.List(ctx, ledgerID, limit)
}

// Close stops tracking. Pending mutations stay pending in the journal.
func (s *Service) Close() {
	s.tracker.Stop()
}

func (s *Service) gateway() (*gateway.Gateway, error) {
	return gateway.GetInstance(s.provider, s.gwConfig.ID, gateway.Config{
		CreateProxyID:   s.gwConfig.CreateProxyID,
		TransferProxyID: s.gwConfig.TransferProxyID,
		OrderTTL:        s.gwConfig.OrderTTL,
	})
}

// submit journals, announces and watches a mutation that is already on its way to the node.
// Failures here are logged; the caller still gets the mutation id.
func (s *Service) submit(ctx context.Context, m *mutation.Mutation) {
	metrics.MutationsSubmitted.WithLabelValues(string(m.Kind)).Inc()

	rec, err := s.store.Create(ctx, m)
	if err != nil {
		s.logger.Error("failed to journal mutation", zap.String("mutation_id", m.ID), zap.Error(err))
	} else if err := s.publisher.Publish(ctx, mutation.NewEvent(mutation.EventSubmitted, rec)); err != nil {
		s.logger.Warn("failed to publish mutation event", zap.String("mutation_id", m.ID), zap.Error(err))
	}

	s.tracker.Watch(m)
}

func (s *Service) onFinished(ctx context.Context, res mutation.Result) {
	m := res.Mutation
	metrics.MutationsFinished.WithLabelValues(string(m.Kind), string(res.Status)).Inc()

	log := s.logger.With(
		zap.String("mutation_id", m.ID),
		zap.String("kind", string(m.Kind)),
		zap.String("status", string(res.Status)),
		zap.Uint64("block", res.BlockNumber))
	if res.Err != nil {
		log.Error("mutation failed", zap.Error(res.Err))
	} else {
		log.Info("mutation completed", zap.Uint64("confirmations", res.Confirmations))
	}

	if res.Status == mutation.StatusCompleted && s.cache != nil {
		for _, id := range m.Affects {
			if err := s.cache.InvalidateLedger(ctx, id.Hex()); err != nil {
				log.Warn("failed to invalidate ledger cache", zap.Error(err))
			}
		}
	}

	if err := s.store.Finish(ctx, res); err != nil {
		log.Error("failed to record mutation result", zap.Error(err))
		return
	}
	rec, err := s.store.Get(ctx, m.ID)
	if err != nil {
		log.Error("failed to reload mutation", zap.Error(err))
		return
	}

	eventType := mutation.EventCompleted
	if res.Status != mutation.StatusCompleted {
		eventType = mutation.EventFailed
	}
	if err := s.publisher.Publish(ctx, mutation.NewEvent(eventType, rec)); err != nil {
		log.Warn("failed to publish mutation event", zap.String("event", eventType), zap.Error(err))
	}
}
