package storage

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// OperationKind names the SDK operation a journal entry belongs to.
type OperationKind string

const (
	OperationLoad     OperationKind = "load"
	OperationTransfer OperationKind = "transfer"
	OperationMerge    OperationKind = "merge"
)

// EntryStatus is the outcome of one submitted transaction.
type EntryStatus string

const (
	StatusConfirmed EntryStatus = "confirmed"
	StatusFailed    EntryStatus = "failed"
)

// JournalModel records one transaction submitted by an operation. An
// operation spanning several transactions has one entry per batch sharing
// OperationID.
type JournalModel struct {
	ID           string        `json:"id" bson:"_id,omitempty" db:"id"`
	OperationID  string        `json:"operation_id" bson:"operation_id" db:"operation_id"`
	Kind         OperationKind `json:"kind" bson:"kind" db:"kind"`
	Owner        string        `json:"owner" bson:"owner" db:"owner"`
	Mint         string        `json:"mint" bson:"mint" db:"mint"`
	Amount       uint64        `json:"amount" bson:"amount" db:"amount"`
	Signature    string        `json:"signature,omitempty" bson:"signature,omitempty" db:"signature"`
	BatchIndex   int           `json:"batch_index" bson:"batch_index" db:"batch_index"`
	BatchCount   int           `json:"batch_count" bson:"batch_count" db:"batch_count"`
	ComputeUnits uint32        `json:"compute_units" bson:"compute_units" db:"compute_units"`
	Status       EntryStatus   `json:"status" bson:"status" db:"status"`
	ErrorMessage string        `json:"error_message,omitempty" bson:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time     `json:"created_at" bson:"created_at" db:"created_at"`
}

// NewOperationID returns a fresh operation identifier.
func NewOperationID() string {
	return uuid.NewString()
}

// BatchToModel builds the entry of one submitted batch. A zero signature is
// left empty; err marks the entry failed.
func BatchToModel(operationID string, kind OperationKind, owner, mint solana.PublicKey, amount uint64, batchIndex, batchCount int, computeUnits uint32, sig solana.Signature, err error) *JournalModel {
	model := &JournalModel{
		ID:           uuid.NewString(),
		OperationID:  operationID,
		Kind:         kind,
		Owner:        owner.String(),
		Mint:         mint.String(),
		Amount:       amount,
		BatchIndex:   batchIndex,
		BatchCount:   batchCount,
		ComputeUnits: computeUnits,
		Status:       StatusConfirmed,
		CreatedAt:    time.Now().UTC(),
	}
	if !sig.IsZero() {
		model.Signature = sig.String()
	}
	if err != nil {
		model.Status = StatusFailed
		model.ErrorMessage = err.Error()
	}
	return model
}
