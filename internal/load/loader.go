// Package load turns a token balance spread across representations into a
// balance on one on-chain account, and submits the resulting transactions.
//
// A load classifies the owner's balance, wraps SPL and Token-2022 balances
// through the mint's pool when asked to, and decompresses every compressed
// leaf in proof-sized chunks. Each chunk becomes one transaction.
package load

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-ctoken/internal/classifier"
	"github.com/lugondev/go-ctoken/internal/common"
	"github.com/lugondev/go-ctoken/internal/metrics"
	"github.com/lugondev/go-ctoken/internal/selector"
	"github.com/lugondev/go-ctoken/internal/storage"
	"github.com/lugondev/go-ctoken/pkg/types"
)

// ChainReader reads on-chain state.
type ChainReader interface {
	classifier.AccountReader
	GetMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
	GetTokenPoolInfos(ctx context.Context, mint solana.PublicKey) ([]types.TokenPoolInfo, error)
}

// Indexer lists compressed accounts and proves them.
type Indexer interface {
	classifier.CompressedAccountLister
	GetCompressedTokenAccountsByDelegate(ctx context.Context, delegate, mint solana.PublicKey) ([]types.TokenAccountSource, error)
	GetValidityProof(ctx context.Context, inputs []types.ProofInput) (*types.ProofResult, error)
}

// Sender submits signed transactions and waits for confirmation.
type Sender interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Loader builds and submits load, transfer and merge transactions.
type Loader struct {
	common.LoggerMixin

	reader     ChainReader
	indexer    Indexer
	sender     Sender
	classifier *classifier.Classifier
	journal    storage.JournalRepository
	metrics    metrics.Metrics
	rng        *rand.Rand

	maxInputs        int
	maxSelection     int
	computeUnitPrice uint64
}

// New creates a loader. sender may be nil when only instructions are built.
func New(reader ChainReader, indexer Indexer, sender Sender) *Loader {
	return &Loader{
		LoggerMixin:  common.NewLoggerMixin(),
		reader:       reader,
		indexer:      indexer,
		sender:       sender,
		classifier:   classifier.New(reader, indexer),
		metrics:      metrics.NewNoopMetrics(),
		maxInputs:    selector.DefaultChunkSize,
		maxSelection: selector.DefaultMaxCardinality,
	}
}

// WithLogger sets the logger of the loader and its classifier.
func (l *Loader) WithLogger(logger *slog.Logger) *Loader {
	l.SetLogger(logger)
	l.classifier.WithLogger(logger)
	return l
}

// WithMetrics sets the metrics sink of the loader and its classifier.
func (l *Loader) WithMetrics(m metrics.Metrics) *Loader {
	if m != nil {
		l.metrics = m
		l.classifier.WithMetrics(m)
	}
	return l
}

// WithJournal records every submitted transaction in journal.
func (l *Loader) WithJournal(journal storage.JournalRepository) *Loader {
	l.journal = journal
	return l
}

// WithRand sets the source used to shuffle pools.
func (l *Loader) WithRand(rng *rand.Rand) *Loader {
	l.rng = rng
	return l
}

// WithMaxInputs sets the number of compressed inputs per transaction.
func (l *Loader) WithMaxInputs(n int) *Loader {
	if n > 0 {
		l.maxInputs = n
	}
	return l
}

// WithMaxSelection sets the number of inputs a merge consolidates.
func (l *Loader) WithMaxSelection(n int) *Loader {
	if n > 0 {
		l.maxSelection = n
	}
	return l
}

// WithComputeUnitPrice sets the priority fee in micro-lamports per unit.
func (l *Loader) WithComputeUnitPrice(microLamports uint64) *Loader {
	l.computeUnitPrice = microLamports
	return l
}

// Classify exposes the loader's classifier.
func (l *Loader) Classify(ctx context.Context, q classifier.Query) (*types.UnifiedAccountView, error) {
	return l.classifier.Classify(ctx, q)
}
