package mutation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

// ErrNotFound is returned for unknown mutation ids
var ErrNotFound = errors.New("mutation not found")

// List bounds
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ClampLimit applies the List bounds to a requested limit
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// Record is the journal row of a mutation
type Record struct {
	ID            string    `gorm:"primaryKey;size:66" json:"id"`
	Kind          Kind      `gorm:"size:32;not null" json:"kind"`
	LedgerID      string    `gorm:"size:42;index" json:"ledgerId,omitempty"`
	SenderID      string    `gorm:"size:42" json:"senderId"`
	ReceiverID    string    `gorm:"size:42" json:"receiverId,omitempty"`
	AssetID       string    `gorm:"size:80" json:"assetId,omitempty"`
	Status        Status    `gorm:"size:16;index;not null" json:"status"`
	Confirmations uint64    `json:"confirmations"`
	BlockNumber   uint64    `json:"blockNumber,omitempty"`
	Error         string    `gorm:"size:512" json:"error,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TableName sets the journal table name
func (Record) TableName() string { return "mutations" }

// Store journals mutations in a SQL database
type Store struct {
	db *gorm.DB
}

// NewStore migrates the journal schema and returns a store over db
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate mutations: %w", err)
	}
	return &Store{db: db}, nil
}

// Create journals a freshly submitted mutation as pending
func (s *Store) Create(ctx context.Context, m *Mutation) (*Record, error) {
	rec := &Record{
		ID:        normalizeID(m.ID),
		Kind:      m.Kind,
		SenderID:  m.SenderID.Hex(),
		AssetID:   m.AssetID,
		Status:    StatusPending,
		CreatedAt: m.SubmittedAt,
	}
	if m.LedgerID != (common.Address{}) {
		rec.LedgerID = m.LedgerID.Hex()
	}
	if m.ReceiverID != (common.Address{}) {
		rec.ReceiverID = m.ReceiverID.Hex()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to journal mutation %s: %w", m.ID, err)
	}
	return rec, nil
}

// Finish stores the outcome of a watched mutation
func (s *Store) Finish(ctx context.Context, res Result) error {
	updates := map[string]interface{}{
		"status":        res.Status,
		"confirmations": res.Confirmations,
		"block_number":  res.BlockNumber,
		"updated_at":    time.Now().UTC(),
	}
	if res.Err != nil {
		updates["error"] = truncate(res.Err.Error(), 512)
	}
	if res.Mutation.Kind == KindDeploy && res.ContractAddress != (common.Address{}) {
		updates["ledger_id"] = res.ContractAddress.Hex()
	}

	tx := s.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", normalizeID(res.Mutation.ID)).
		Updates(updates)
	if tx.Error != nil {
		return fmt.Errorf("failed to update mutation %s: %w", res.Mutation.ID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the journal record for a transaction hash
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("id = ?", normalizeID(id)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mutation %s: %w", id, err)
	}
	return &rec, nil
}

// List returns the newest records, optionally restricted to one ledger
func (s *Store) List(ctx context.Context, ledgerID string, limit int) ([]Record, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(ClampLimit(limit))
	if ledgerID != "" {
		q = q.Where("ledger_id = ?", common.HexToAddress(ledgerID).Hex())
	}
	var recs []Record
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list mutations: %w", err)
	}
	return recs, nil
}

// Ping checks the journal database
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func normalizeID(id string) string {
	return strings.ToLower(id)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
