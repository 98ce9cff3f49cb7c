package load

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-ctoken/internal/budget"
	"github.com/lugondev/go-ctoken/internal/classifier"
	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/internal/instruction"
	"github.com/lugondev/go-ctoken/internal/metrics"
	"github.com/lugondev/go-ctoken/internal/programs"
	"github.com/lugondev/go-ctoken/internal/selector"
	solanaclient "github.com/lugondev/go-ctoken/internal/solana"
	"github.com/lugondev/go-ctoken/internal/storage"
	"github.com/lugondev/go-ctoken/pkg/types"
)

var errNoSender = errors.New("loader has no sender")

// Load builds and submits every batch of the load in order. It returns the
// signature of the last transaction, or nil when nothing had to move.
func (l *Loader) Load(ctx context.Context, p LoadParams, signers solanaclient.Signers) (*solana.Signature, error) {
	batches, err := l.BuildLoadInstructions(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, nil
	}
	return l.submit(ctx, storage.OperationLoad, p.Owner, p.Mint, p.Payer, batches, signers)
}

// TransferParams moves Amount from the owner's light-token ATA to an existing
// light-token account, loading cold and wrapped balance first as needed.
type TransferParams struct {
	Owner       solana.PublicKey
	Mint        solana.PublicKey
	Payer       solana.PublicKey
	Destination solana.PublicKey
	Amount      uint64
	Wrap        bool

	// Authority signs the transfer. It defaults to Owner; a delegate spends
	// only what is delegated to it.
	Authority *solana.PublicKey
}

// BuildTransfer returns the batches of a transfer. When the hot balance falls
// short, only the compressed inputs selected to cover the shortfall are
// decompressed, and the hot transfer rides in that batch. A shortfall no
// single-generation selection can cover loads the whole balance instead.
func (l *Loader) BuildTransfer(ctx context.Context, p TransferParams) ([]Batch, error) {
	if p.Amount == 0 {
		return nil, cerrors.ZeroAmount("transfer")
	}
	acc, err := l.reader.GetAccountInfo(ctx, p.Destination)
	if err != nil {
		return nil, fmt.Errorf("failed to get destination account: %w", err)
	}
	if acc == nil {
		return nil, cerrors.AccountNotFoundAtAddress(p.Destination)
	}

	loadParams := LoadParams{Owner: p.Owner, Mint: p.Mint, Payer: p.Payer, Wrap: p.Wrap, Authority: p.Authority}
	authority := loadParams.authority()
	v, err := l.view(ctx, loadParams)
	if err != nil {
		return nil, err
	}
	if spendable := classifier.SpendableAmountForAuthority(v, authority); p.Amount > spendable {
		return nil, cerrors.InsufficientBalance(p.Amount, spendable)
	}

	var batches []Batch
	if hot := spendableOf(v.SourcesOf(types.KindCTokenOnchain), authority); hot < p.Amount {
		if batches, err = l.buildShortfall(ctx, loadParams, v, p.Amount-hot); err != nil {
			return nil, err
		}
	} else if frozen, ok := firstFrozen(v); ok && frozen.Kind == types.KindCTokenOnchain {
		return nil, cerrors.FrozenAccount(frozen.Address)
	}

	source, err := l.destination(loadParams)
	if err != nil {
		return nil, err
	}
	ix, err := instruction.Transfer(instruction.HotTransferParams{
		Kind:        types.KindCTokenOnchain,
		Source:      source,
		Destination: p.Destination,
		Authority:   authority,
		Mint:        p.Mint,
		Amount:      p.Amount,
	})
	if err != nil {
		return nil, err
	}

	if len(batches) == 0 {
		batch, err := l.batch([]types.Instruction{ix}, budget.Estimate(budget.Params{Kind: budget.KindHotTransfer}))
		if err != nil {
			return nil, err
		}
		batch.Amount = p.Amount
		return []Batch{batch}, nil
	}

	last := &batches[len(batches)-1]
	rebuilt, err := l.batch(append(withoutBudget(last.Instructions), ix), last.ComputeUnits+budget.BaseHotTransfer)
	if err != nil {
		return nil, err
	}
	rebuilt.Inputs = last.Inputs
	rebuilt.Wraps = last.Wraps
	rebuilt.Amount = p.Amount
	*last = rebuilt
	return batches, nil
}

// buildShortfall plans the load of need more units onto the hot account.
// Wrapped balances count first; the rest is selected from one tree
// generation of compressed inputs and decompressed in a single transaction.
func (l *Loader) buildShortfall(ctx context.Context, p LoadParams, v *types.UnifiedAccountView, need uint64) ([]Batch, error) {
	if frozen, ok := firstFrozen(v); ok {
		return nil, cerrors.FrozenAccount(frozen.Address)
	}

	pl := plan{wraps: wrapSources(v, p.Wrap)}
	wrapped := types.SumAmounts(pl.wraps)
	if wrapped >= need {
		return l.assemble(ctx, p, v, pl)
	}
	need -= wrapped

	sel, err := l.selectCold(ctx, v.ColdSources(), need, p.authority())
	switch {
	case err == nil:
	case errors.Is(err, cerrors.ErrInsufficientBalance), errors.Is(err, cerrors.ErrCrossGenerationSelection):
		l.GetLogger().Debug("selection cannot cover shortfall, loading all", "owner", p.Owner, "mint", p.Mint, "need", need, "error", err)
		return l.buildFromView(ctx, p, v)
	default:
		return nil, err
	}

	pl.chunks = [][]types.TokenAccountSource{sel.Chosen}
	pl.amounts = []uint64{sel.Total - sel.ChangeAmount}
	return l.assemble(ctx, p, v, pl)
}

// selectCold picks the compressed inputs covering need, sized by what
// authority can spend from each. The chosen sources keep their full amounts
// so the remainder returns as change.
func (l *Loader) selectCold(ctx context.Context, cold []types.TokenAccountSource, need uint64, authority solana.PublicKey) (*selector.Selection, error) {
	metrics.Inc(ctx, l.metrics, metrics.MetricSelectCalls)

	candidates := make([]types.TokenAccountSource, 0, len(cold))
	originals := make(map[*types.LoadContext]types.TokenAccountSource, len(cold))
	for _, s := range cold {
		c := s
		c.Amount = spendableBy(s, authority)
		candidates = append(candidates, c)
		originals[s.LoadContext] = s
	}

	sel, err := selector.SelectByGeneration(candidates, need, l.maxSelection)
	if err != nil {
		if errors.Is(err, cerrors.ErrInsufficientBalance) {
			metrics.Inc(ctx, l.metrics, metrics.MetricSelectInsufficient)
		}
		return nil, err
	}
	for i, c := range sel.Chosen {
		sel.Chosen[i] = originals[c.LoadContext]
	}
	_ = l.metrics.IncrementCounter(ctx, metrics.MetricSelectInputs, uint64(len(sel.Chosen)))
	return sel, nil
}

// Transfer builds and submits a transfer.
func (l *Loader) Transfer(ctx context.Context, p TransferParams, signers solanaclient.Signers) (*solana.Signature, error) {
	batches, err := l.BuildTransfer(ctx, p)
	if err != nil {
		return nil, err
	}
	return l.submit(ctx, storage.OperationTransfer, p.Owner, p.Mint, p.Payer, batches, signers)
}

// MergeParams consolidates an owner's compressed leaves.
type MergeParams struct {
	Owner solana.PublicKey
	Mint  solana.PublicKey
	Payer solana.PublicKey
}

// BuildMerge returns a batch spending up to the loader's selection bound of
// same-generation leaves into a single leaf for the owner. The generation
// with more leaves is merged, V2 on a tie.
func (l *Loader) BuildMerge(ctx context.Context, p MergeParams) (*Batch, error) {
	v, err := l.classifier.Classify(ctx, classifier.Query{Owner: p.Owner, Mint: p.Mint})
	if err != nil {
		return nil, err
	}

	byGen := selector.PartitionByGeneration(v.ColdSources())
	group := byGen[types.TreeTypeStateV2]
	if v1 := byGen[types.TreeTypeStateV1]; len(v1) > len(group) {
		group = v1
	}
	var candidates []types.TokenAccountSource
	for _, s := range group {
		if s.Amount > 0 {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) < 2 {
		return nil, cerrors.AccountNotFound(p.Owner, p.Mint).
			WithDetails(map[string]any{"reason": "fewer than two compressed accounts to merge"})
	}
	candidates = candidates[:min(len(candidates), l.maxSelection)]

	sel, err := selector.SelectAll(candidates, l.maxSelection)
	if err != nil {
		return nil, err
	}

	metrics.Inc(ctx, l.metrics, metrics.MetricProofRequests)
	proof, err := l.indexer.GetValidityProof(ctx, types.ProofInputsFor(sel.Chosen))
	if err != nil {
		return nil, fmt.Errorf("failed to get validity proof: %w", err)
	}

	ix, err := instruction.CompressedTransfer(instruction.CompressedTransferParams{
		Payer:     p.Payer,
		Authority: p.Owner,
		Mint:      p.Mint,
		Inputs:    sel.Chosen,
		Proof:     proof,
		Recipient: p.Owner,
		Amount:    sel.Total,
	})
	if err != nil {
		return nil, err
	}

	batch, err := l.batch([]types.Instruction{ix}, budget.EstimateInputs(sel.Chosen, proof != nil && proof.Proof != nil, 0))
	if err != nil {
		return nil, err
	}
	batch.Amount = sel.Total
	batch.Inputs = len(sel.Chosen)
	return &batch, nil
}

// Merge builds and submits a merge.
func (l *Loader) Merge(ctx context.Context, p MergeParams, signers solanaclient.Signers) (*solana.Signature, error) {
	batch, err := l.BuildMerge(ctx, p)
	if err != nil {
		return nil, err
	}
	return l.submit(ctx, storage.OperationMerge, p.Owner, p.Mint, p.Payer, []Batch{*batch}, signers)
}

// submit signs, sends and confirms batches in order, stopping at the first
// failure. Every attempt is journaled under one operation ID.
func (l *Loader) submit(ctx context.Context, kind storage.OperationKind, owner, mint, payer solana.PublicKey, batches []Batch, signers solanaclient.Signers) (*solana.Signature, error) {
	if l.sender == nil {
		return nil, errNoSender
	}

	operationID := storage.NewOperationID()
	logger := l.GetLogger().With("operation", operationID, "kind", kind)

	var last *solana.Signature
	for i, b := range batches {
		_ = l.metrics.RecordHistogram(ctx, metrics.MetricEstimatedComputeUnits, float64(b.ComputeUnits))

		sig, err := l.send(ctx, b, payer, signers)
		l.record(ctx, storage.BatchToModel(operationID, kind, owner, mint, b.Amount, i, len(batches), b.ComputeUnits, sig, err))
		if err != nil {
			metrics.Inc(ctx, l.metrics, metrics.MetricTransactionsFailed)
			logger.Error("batch failed", "batch", i, "batches", len(batches), "error", err)
			return last, fmt.Errorf("failed to submit batch %d of %d: %w", i+1, len(batches), err)
		}

		metrics.Inc(ctx, l.metrics, metrics.MetricTransactionsSubmitted)
		logger.Info("batch confirmed", "batch", i, "batches", len(batches), "signature", sig)
		last = &sig
	}
	return last, nil
}

func (l *Loader) send(ctx context.Context, b Batch, payer solana.PublicKey, signers solanaclient.Signers) (solana.Signature, error) {
	blockhash, err := l.sender.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	tx, err := solanaclient.BuildAndSignTx(b.Instructions, payer, blockhash, signers)
	if err != nil {
		return solana.Signature{}, err
	}
	return l.sender.SendAndConfirm(ctx, tx)
}

// record journals entry. A journal failure never fails the operation.
func (l *Loader) record(ctx context.Context, entry *storage.JournalModel) {
	if l.journal == nil {
		return
	}
	if err := l.journal.Save(ctx, entry); err != nil {
		l.GetLogger().Warn("failed to journal batch", "operation", entry.OperationID, "batch", entry.BatchIndex, "error", err)
	}
}

func withoutBudget(ixs []types.Instruction) []types.Instruction {
	out := make([]types.Instruction, 0, len(ixs))
	for _, ix := range ixs {
		if !ix.ProgramID.Equals(programs.ComputeBudgetProgramID) {
			out = append(out, ix)
		}
	}
	return out
}
