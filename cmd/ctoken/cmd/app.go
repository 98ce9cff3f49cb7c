package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-ctoken/internal/common"
	"github.com/lugondev/go-ctoken/internal/indexer"
	"github.com/lugondev/go-ctoken/internal/load"
	"github.com/lugondev/go-ctoken/internal/metrics"
	solanaclient "github.com/lugondev/go-ctoken/internal/solana"
	"github.com/lugondev/go-ctoken/internal/storage"
	_ "github.com/lugondev/go-ctoken/internal/storage/mongo"
	_ "github.com/lugondev/go-ctoken/internal/storage/mysql"
	_ "github.com/lugondev/go-ctoken/internal/storage/postgres"
)

// app holds the clients a command works with.
type app struct {
	logger  *slog.Logger
	chain   *solanaclient.Client
	indexer *indexer.Client
	loader  *load.Loader
	metrics *metrics.LogMetrics
	journal storage.Repository
}

func newApp(ctx context.Context) (*app, error) {
	logger := common.NewLoggerTo(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	chain := solanaclient.NewClient(cfg.Solana.GetRPCEndpoint()).
		WithLogger(logger).
		WithCommitment(cfg.Solana.Commitment).
		WithPollInterval(cfg.Transaction.GetPollInterval())

	idx := indexer.NewClient(cfg.GetIndexerEndpoint(), nil).
		WithLogger(logger).
		WithRateLimit(cfg.Indexer.RequestsPerSecond, cfg.Indexer.Burst).
		WithMaxPages(cfg.Indexer.MaxPages)

	journal, err := storage.Open(ctx, &cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	m := metrics.NewLogMetrics(logger)
	if err := m.Initialize(ctx); err != nil {
		journal.Close()
		return nil, err
	}

	loader := load.New(chain, idx, chain).
		WithLogger(logger).
		WithMetrics(m).
		WithJournal(journal.Journal()).
		WithMaxInputs(cfg.Transaction.MaxInputsPerInstruction).
		WithMaxSelection(cfg.Transaction.MaxSelection).
		WithComputeUnitPrice(cfg.Transaction.ComputeUnitPrice)

	return &app{
		logger:  logger,
		chain:   chain,
		indexer: idx,
		loader:  loader,
		metrics: m,
		journal: journal,
	}, nil
}

// Close flushes metrics and closes the journal.
func (a *app) Close(ctx context.Context) {
	if err := a.metrics.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to flush metrics", "error", err)
	}
	if err := a.journal.Close(); err != nil {
		a.logger.Warn("failed to close journal", "error", err)
	}
}

// submitContext bounds an operation that waits for confirmations.
func submitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, cfg.Transaction.GetConfirmTimeout())
}

func parseKey(name, value string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return key, nil
}

// signersFrom loads the owner keypair and, when set, a separate fee payer.
func signersFrom(keypair, payerKeypair string) (solanaclient.Signers, *solanaclient.Wallet, error) {
	if keypair == "" {
		return nil, nil, fmt.Errorf("--keypair is required")
	}
	owner, err := solanaclient.WalletFromFile(keypair)
	if err != nil {
		return nil, nil, err
	}
	signers := solanaclient.Signers{owner}
	payer := owner
	if payerKeypair != "" {
		if payer, err = solanaclient.WalletFromFile(payerKeypair); err != nil {
			return nil, nil, err
		}
		signers = append(signers, payer)
	}
	return signers, payer, nil
}
