package load

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/lugondev/go-ctoken/internal/budget"
	"github.com/lugondev/go-ctoken/internal/classifier"
	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/internal/instruction"
	"github.com/lugondev/go-ctoken/internal/metrics"
	"github.com/lugondev/go-ctoken/internal/programs"
	"github.com/lugondev/go-ctoken/internal/selector"
	"github.com/lugondev/go-ctoken/pkg/types"
)

// LoadParams describes a load.
//
// With Wrap set the target is the owner's light-token ATA and SPL and
// Token-2022 balances are wrapped into it. Without Wrap only compressed
// balance moves, into the owner's ATA of Target.
type LoadParams struct {
	Owner  solana.PublicKey
	Mint   solana.PublicKey
	Payer  solana.PublicKey
	Wrap   bool
	Target types.TokenAccountKind

	// Destination, when set, must be the derived ATA of the target.
	Destination *solana.PublicKey

	// MaxInputs overrides the loader's inputs per transaction.
	MaxInputs int

	// Authority signs for the compressed inputs. It defaults to Owner; a
	// delegate moves only the balance delegated to it and cannot wrap.
	Authority *solana.PublicKey
}

// Batch is the content of one transaction.
type Batch struct {
	Instructions []types.Instruction
	ComputeUnits uint32
	Amount       uint64
	Inputs       int
	Wraps        int
}

// prerequisites are fetched concurrently before any instruction is built.
type prerequisites struct {
	pools        []types.TokenPoolInfo
	decimals     uint8
	targetExists bool
	proofs       []*types.ProofResult
}

// plan is what one load moves: balances to wrap and compressed inputs to
// spend, one chunk per transaction. amounts holds what each chunk credits to
// the destination; the rest of a chunk returns to the owner as change.
type plan struct {
	wraps   []types.TokenAccountSource
	chunks  [][]types.TokenAccountSource
	amounts []uint64
}

// BuildLoadInstructions returns the transactions that move the owner's
// balance onto the target account, in submission order. It returns nil when
// the balance is already loaded.
//
// Any frozen source rejects the whole load; no partial load is built.
func (l *Loader) BuildLoadInstructions(ctx context.Context, p LoadParams) ([]Batch, error) {
	start := time.Now()
	defer metrics.ObserveSince(ctx, l.metrics, metrics.MetricLoadMilliseconds, start)
	metrics.Inc(ctx, l.metrics, metrics.MetricLoadCalls)

	if _, err := l.destination(p); err != nil {
		return nil, err
	}
	v, err := l.view(ctx, p)
	if err != nil {
		return nil, err
	}
	return l.buildFromView(ctx, p, v)
}

// view classifies the owner's balance as the load's authority sees it. A
// delegate sees only the sources delegated to it, with compressed leaves
// listed by delegate.
func (l *Loader) view(ctx context.Context, p LoadParams) (*types.UnifiedAccountView, error) {
	v, err := l.classifier.Classify(ctx, classifier.Query{Owner: p.Owner, Mint: p.Mint, Wrap: p.Wrap})
	if err != nil {
		return nil, err
	}
	authority := p.authority()
	if authority.Equals(p.Owner) {
		return v, nil
	}
	if p.Wrap {
		return nil, cerrors.NewError(cerrors.ErrCodeInvalidAuthority,
			fmt.Sprintf("only owner %s can wrap, not delegate %s", p.Owner, authority))
	}

	delegated, err := l.indexer.GetCompressedTokenAccountsByDelegate(ctx, authority, p.Mint)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts delegated to %s: %w", authority, err)
	}
	sources := make([]types.TokenAccountSource, 0, len(v.Sources)+len(delegated))
	for _, s := range v.Sources {
		if s.Kind != types.KindCTokenCompressed {
			sources = append(sources, s)
		}
	}
	for _, s := range delegated {
		if s.Owner.Equals(p.Owner) && s.Mint.Equals(p.Mint) {
			sources = append(sources, s)
		}
	}

	merged := classifier.BuildView(sources, v.Address)
	merged.Owner = v.Owner
	merged.Mint = v.Mint
	if !classifier.IsAuthority(merged, authority) {
		return nil, cerrors.InvalidAuthority(authority, p.Owner)
	}
	return classifier.FilterForAuthority(merged, authority), nil
}

func (p LoadParams) authority() solana.PublicKey {
	if p.Authority != nil {
		return *p.Authority
	}
	return p.Owner
}

func (p LoadParams) target() types.TokenAccountKind {
	if p.Wrap {
		return types.KindCTokenOnchain
	}
	return p.Target
}

func (l *Loader) destination(p LoadParams) (solana.PublicKey, error) {
	target := p.target()
	if !target.IsHot() {
		return solana.PublicKey{}, cerrors.NewError(cerrors.ErrCodeUnsupportedProgram,
			fmt.Sprintf("cannot load into a %s account", target))
	}
	ata, _, err := programs.DeriveAssociatedAddress(p.Owner, p.Mint, target)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if p.Destination != nil && !p.Destination.Equals(ata) {
		return solana.PublicKey{}, cerrors.InvalidDestination(*p.Destination, ata)
	}
	return ata, nil
}

func (l *Loader) buildFromView(ctx context.Context, p LoadParams, v *types.UnifiedAccountView) ([]Batch, error) {
	if frozen, ok := firstFrozen(v); ok {
		return nil, cerrors.FrozenAccount(frozen.Address)
	}

	authority := p.authority()
	pl := plan{wraps: wrapSources(v, p.Wrap)}
	pl.chunks = l.chunk(v.ColdSources(), p.MaxInputs, authority)
	for _, chunk := range pl.chunks {
		pl.amounts = append(pl.amounts, spendableOf(chunk, authority))
	}
	if len(pl.wraps) == 0 && len(pl.chunks) == 0 {
		metrics.Inc(ctx, l.metrics, metrics.MetricLoadAlreadyLoaded)
		l.GetLogger().Debug("balance already loaded", "owner", p.Owner, "mint", p.Mint, "target", p.target())
		return nil, nil
	}
	return l.assemble(ctx, p, v, pl)
}

// assemble turns a plan into batches: ATA creation and wraps ride in the
// first transaction, followed by one decompression per chunk.
func (l *Loader) assemble(ctx context.Context, p LoadParams, v *types.UnifiedAccountView, pl plan) ([]Batch, error) {
	destination, err := l.destination(p)
	if err != nil {
		return nil, err
	}

	target := p.target()
	pre, err := l.fetch(ctx, p, destination, len(pl.wraps) > 0, pl.chunks)
	if err != nil {
		return nil, err
	}

	var head []types.Instruction
	if !pre.targetExists && !(target == types.KindCTokenOnchain && v.Has(types.KindCTokenOnchain)) {
		ix, err := instruction.CreateAssociatedTokenAccountIdempotent(p.Payer, p.Owner, p.Mint, target)
		if err != nil {
			return nil, err
		}
		head = append(head, ix)
	}

	var wrapped uint64
	for _, s := range pl.wraps {
		pool, err := selector.FirstInitializedPool(p.Mint, poolsOf(pre.pools, s.Kind))
		if err != nil {
			return nil, err
		}
		ix, err := instruction.Wrap(instruction.WrapParams{
			Payer:       p.Payer,
			Owner:       p.Owner,
			Mint:        p.Mint,
			Source:      s.Address,
			Destination: destination,
			Amount:      s.Amount,
			Decimals:    pre.decimals,
			Pool:        pool,
		})
		if err != nil {
			return nil, err
		}
		head = append(head, ix)
		wrapped += s.Amount
	}

	var (
		decompressPool *types.TokenPoolInfo
		decompressed   uint64
		inputs         int
	)
	for i, chunk := range pl.chunks {
		decompressed += pl.amounts[i]
		inputs += len(chunk)
	}
	if target != types.KindCTokenOnchain && len(pl.chunks) > 0 {
		pool, err := selector.SelectPool(p.Mint, poolsOf(pre.pools, target), decompressed, l.rng)
		if err != nil {
			return nil, err
		}
		decompressPool = &pool
	}

	batches := make([]Batch, 0, max(len(pl.chunks), 1))
	if len(pl.chunks) == 0 {
		batch, err := l.batch(head, budget.Estimate(budget.Params{Kind: budget.KindDecompress, Wraps: len(pl.wraps)}))
		if err != nil {
			return nil, err
		}
		batch.Amount = wrapped
		batch.Wraps = len(pl.wraps)
		batches = append(batches, batch)
	}
	for i, chunk := range pl.chunks {
		amount := pl.amounts[i]
		ix, err := instruction.Decompress(instruction.DecompressParams{
			Payer:                       p.Payer,
			Authority:                   p.authority(),
			Mint:                        p.Mint,
			Inputs:                      chunk,
			Proof:                       pre.proofs[i],
			Destination:                 destination,
			Amount:                      amount,
			Decimals:                    pre.decimals,
			Pool:                        decompressPool,
			RequireCanonicalDestination: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build decompress batch %d: %w", i, err)
		}

		var (
			ixs       []types.Instruction
			wrapCount int
		)
		if i == 0 {
			ixs = append(ixs, head...)
			wrapCount = len(pl.wraps)
			amount += wrapped
		}
		ixs = append(ixs, ix)

		hasProof := pre.proofs[i] != nil && pre.proofs[i].Proof != nil
		batch, err := l.batch(ixs, budget.EstimateInputs(chunk, hasProof, wrapCount))
		if err != nil {
			return nil, err
		}
		batch.Amount = amount
		batch.Inputs = len(chunk)
		batch.Wraps = wrapCount
		batches = append(batches, batch)
	}

	_ = l.metrics.IncrementCounter(ctx, metrics.MetricLoadBatches, uint64(len(batches)))
	l.GetLogger().Debug("built load",
		"owner", p.Owner,
		"mint", p.Mint,
		"target", target,
		"batches", len(batches),
		"wraps", len(pl.wraps),
		"cold_inputs", inputs,
	)
	return batches, nil
}

// batch prefixes ixs with the compute-budget request for units.
func (l *Loader) batch(ixs []types.Instruction, units uint32) (Batch, error) {
	units = budget.Clamp(units)
	prefix, err := budget.Instructions(units, l.computeUnitPrice)
	if err != nil {
		return Batch{}, err
	}
	return Batch{
		Instructions: append(prefix, ixs...),
		ComputeUnits: units,
	}, nil
}

// fetch loads pools, decimals, target existence and one proof per chunk in
// parallel. The first failure cancels the rest.
func (l *Loader) fetch(ctx context.Context, p LoadParams, destination solana.PublicKey, wrapping bool, chunks [][]types.TokenAccountSource) (*prerequisites, error) {
	pre := &prerequisites{proofs: make([]*types.ProofResult, len(chunks))}
	target := p.target()
	needPools := wrapping || target != types.KindCTokenOnchain

	g, gctx := errgroup.WithContext(ctx)
	if needPools {
		g.Go(func() error {
			pools, err := l.reader.GetTokenPoolInfos(gctx, p.Mint)
			if err != nil {
				return fmt.Errorf("failed to get token pools: %w", err)
			}
			pre.pools = pools
			return nil
		})
		g.Go(func() error {
			decimals, err := l.reader.GetMintDecimals(gctx, p.Mint)
			if err != nil {
				return fmt.Errorf("failed to get mint decimals: %w", err)
			}
			pre.decimals = decimals
			return nil
		})
	}
	if target != types.KindCTokenOnchain {
		g.Go(func() error {
			acc, err := l.reader.GetAccountInfo(gctx, destination)
			if err != nil {
				return fmt.Errorf("failed to get destination account: %w", err)
			}
			pre.targetExists = acc != nil
			return nil
		})
	}
	for i, chunk := range chunks {
		g.Go(func() error {
			metrics.Inc(gctx, l.metrics, metrics.MetricProofRequests)
			proof, err := l.indexer.GetValidityProof(gctx, types.ProofInputsFor(chunk))
			if err != nil {
				return fmt.Errorf("failed to get validity proof for batch %d: %w", i, err)
			}
			pre.proofs[i] = proof
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pre, nil
}

// chunk splits the cold sources authority can spend into per-transaction
// input sets. A set never mixes tree generations; V2 sets come first.
func (l *Loader) chunk(cold []types.TokenAccountSource, maxInputs int, authority solana.PublicKey) [][]types.TokenAccountSource {
	if maxInputs <= 0 {
		maxInputs = l.maxInputs
	}
	byGen := selector.PartitionByGeneration(cold)
	var chunks [][]types.TokenAccountSource
	for _, gen := range []types.TreeType{types.TreeTypeStateV2, types.TreeTypeStateV1} {
		var nonZero []types.TokenAccountSource
		for _, s := range byGen[gen] {
			if spendableBy(s, authority) > 0 {
				nonZero = append(nonZero, s)
			}
		}
		chunks = append(chunks, selector.ChunkInputs(nonZero, maxInputs)...)
	}
	return chunks
}

func wrapSources(v *types.UnifiedAccountView, wrap bool) []types.TokenAccountSource {
	if !wrap {
		return nil
	}
	var out []types.TokenAccountSource
	for _, kind := range []types.TokenAccountKind{types.KindSplOnchain, types.KindToken2022Onchain} {
		for _, s := range v.SourcesOf(kind) {
			if s.Amount > 0 {
				out = append(out, s)
			}
		}
	}
	return out
}

// spendableBy is what authority can move out of s: all of it for the owner,
// at most the delegated amount for the delegate, nothing otherwise.
func spendableBy(s types.TokenAccountSource, authority solana.PublicKey) uint64 {
	if s.Owner.Equals(authority) {
		return s.Amount
	}
	if s.Delegate != nil && s.Delegate.Equals(authority) {
		return min(s.Amount, s.DelegatedAmount)
	}
	return 0
}

func spendableOf(sources []types.TokenAccountSource, authority solana.PublicKey) uint64 {
	var sum uint64
	for _, s := range sources {
		sum += spendableBy(s, authority)
	}
	return sum
}

func firstFrozen(v *types.UnifiedAccountView) (types.TokenAccountSource, bool) {
	if !v.AnyFrozen {
		return types.TokenAccountSource{}, false
	}
	for _, s := range v.Sources {
		if s.IsFrozen() {
			return s, true
		}
	}
	return types.TokenAccountSource{}, false
}

// poolsOf keeps the pools custodying balances of kind's token program.
func poolsOf(pools []types.TokenPoolInfo, kind types.TokenAccountKind) []types.TokenPoolInfo {
	program := programs.ProgramForKind(kind)
	var out []types.TokenPoolInfo
	for _, p := range pools {
		if p.TokenProgram.Equals(program) {
			out = append(out, p)
		}
	}
	return out
}
