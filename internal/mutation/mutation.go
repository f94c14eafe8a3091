// Package mutation tracks state-changing transactions from submission to finality.
package mutation

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Kind names the ledger operation behind a mutation
type Kind string

const (
	KindDeploy        Kind = "deploy"
	KindCreateAsset   Kind = "create_asset"
	KindTransferAsset Kind = "transfer_asset"
	KindPerformOrder  Kind = "perform_order"
)

// Status of a mutation in the journal
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Mutation is a submitted transaction. ID is the transaction hash.
type Mutation struct {
	ID          string
	Kind        Kind
	LedgerID    common.Address
	SenderID    common.Address
	ReceiverID  common.Address
	AssetID     string
	Tx          *types.Transaction
	SubmittedAt time.Time

	// Affects lists ledgers whose metadata changes once the mutation completes
	Affects []common.Address
}

// New wraps a sent transaction
func New(kind Kind, tx *types.Transaction, sender common.Address) *Mutation {
	m := &Mutation{
		Kind:        kind,
		SenderID:    sender,
		Tx:          tx,
		SubmittedAt: time.Now().UTC(),
	}
	if tx != nil {
		m.ID = tx.Hash().Hex()
		if to := tx.To(); to != nil {
			m.LedgerID = *to
		}
	}
	return m
}

// Hash returns the transaction hash of the mutation
func (m *Mutation) Hash() common.Hash {
	return common.HexToHash(m.ID)
}
