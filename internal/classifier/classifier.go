// Package classifier discovers every representation holding a token balance
// and aggregates them into one view.
//
// Four representations are checked: the hot light-token account, compressed
// light-token leaves, the SPL Token account and the Token-2022 account. The
// checks run concurrently and settle independently; a failed check only
// removes its representation from the result.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sourcegraph/conc/pool"

	"github.com/lugondev/go-ctoken/internal/common"
	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/internal/metrics"
	"github.com/lugondev/go-ctoken/internal/programs"
	"github.com/lugondev/go-ctoken/pkg/types"
	"github.com/lugondev/go-ctoken/pkg/view"
)

// AccountReader reads on-chain accounts. It returns nil, nil for missing accounts.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*types.Account, error)
}

// CompressedAccountLister lists compressed token leaves.
type CompressedAccountLister interface {
	GetCompressedTokenAccountsByOwner(ctx context.Context, owner, mint solana.PublicKey) ([]types.TokenAccountSource, error)
}

// Query selects what to classify.
//
// With Owner and Mint set the canonical associated accounts are derived per
// program. With Address set (and Owner zero) that address is checked under
// every program and used as the compressed owner key. With both, Address
// replaces the derived light-token account.
type Query struct {
	Owner   solana.PublicKey
	Mint    solana.PublicKey
	Address *solana.PublicKey

	// Program restricts the checks to one token program.
	Program *solana.PublicKey

	// Wrap includes the SPL and Token-2022 accounts in owner/mint auto-detect.
	Wrap bool
}

func (q Query) byOwner() bool {
	return !q.Owner.IsZero()
}

// errMiss marks a check whose account does not exist, is owned by another
// program, or belongs to another mint.
var errMiss = errors.New("no account")

type check struct {
	kind    types.TokenAccountKind
	address solana.PublicKey
}

// Classifier resolves token balances across representations.
type Classifier struct {
	common.LoggerMixin

	reader  AccountReader
	indexer CompressedAccountLister
	metrics metrics.Metrics
}

// New creates a classifier.
func New(reader AccountReader, indexer CompressedAccountLister) *Classifier {
	return &Classifier{
		LoggerMixin: common.NewLoggerMixin(),
		reader:      reader,
		indexer:     indexer,
		metrics:     metrics.NewNoopMetrics(),
	}
}

// WithLogger sets the logger.
func (c *Classifier) WithLogger(logger *slog.Logger) *Classifier {
	c.SetLogger(logger)
	return c
}

// WithMetrics sets the metrics sink.
func (c *Classifier) WithMetrics(m metrics.Metrics) *Classifier {
	if m != nil {
		c.metrics = m
	}
	return c
}

// Classify runs the checks selected by q and aggregates the successes.
func (c *Classifier) Classify(ctx context.Context, q Query) (*types.UnifiedAccountView, error) {
	start := time.Now()
	defer metrics.ObserveSince(ctx, c.metrics, metrics.MetricClassifyMilliseconds, start)
	metrics.Inc(ctx, c.metrics, metrics.MetricClassifyCalls)

	if !q.byOwner() && q.Address == nil {
		return nil, fmt.Errorf("classify: owner or address is required")
	}

	canonical, err := c.canonicalAddress(q)
	if err != nil {
		return nil, err
	}

	checks, withCold, err := c.plan(q, canonical)
	if err != nil {
		return nil, err
	}

	sources, failures := c.run(ctx, q, checks, withCold)
	if failures != nil {
		_ = c.metrics.IncrementCounter(ctx, metrics.MetricClassifyCheckFailures, uint64(len(cerrors.Unjoin(failures))))
		c.GetLogger().Debug("classifier checks failed", "address", canonical, "error", failures)
	}

	if len(sources) == 0 {
		metrics.Inc(ctx, c.metrics, metrics.MetricClassifyNotFound)
		var notFound *cerrors.CTokenError
		switch {
		case q.Program != nil:
			notFound = cerrors.AccountNotFoundUnderProgram(canonical, *q.Program)
		case q.byOwner():
			notFound = cerrors.AccountNotFound(q.Owner, q.Mint)
		default:
			notFound = cerrors.AccountNotFoundAtAddress(canonical)
		}
		if transport := transportFailures(failures); transport != nil {
			notFound = notFound.WithCause(transport)
		}
		return nil, notFound
	}

	SortSources(sources)
	v := BuildView(sources, canonical)
	if q.byOwner() {
		v.Owner = q.Owner
		v.Mint = q.Mint
	}

	_ = c.metrics.IncrementCounter(ctx, metrics.MetricClassifySources, uint64(len(sources)))
	c.GetLogger().Debug("classified account",
		"address", v.Address,
		"sources", len(v.Sources),
		"total_amount", v.TotalAmount,
		"is_cold", v.IsCold,
	)
	return v, nil
}

// canonicalAddress is the address the view reports: the explicit address, the
// derived account of the explicit program, or the light-token account.
func (c *Classifier) canonicalAddress(q Query) (solana.PublicKey, error) {
	if q.Address != nil {
		return *q.Address, nil
	}
	kind := types.KindCTokenOnchain
	if q.Program != nil {
		k, err := programs.KindForProgram(*q.Program)
		if err != nil {
			return solana.PublicKey{}, err
		}
		kind = k
	}
	addr, _, err := programs.DeriveAssociatedAddress(q.Owner, q.Mint, kind)
	return addr, err
}

// plan lists the on-chain checks and whether the compressed lookup runs.
func (c *Classifier) plan(q Query, canonical solana.PublicKey) ([]check, bool, error) {
	if q.Program != nil {
		kind, err := programs.KindForProgram(*q.Program)
		if err != nil {
			return nil, false, err
		}
		switch kind {
		case types.KindCTokenOnchain:
			return []check{{kind: types.KindCTokenOnchain, address: canonical}}, true, nil
		case types.KindSplOnchain, types.KindToken2022Onchain:
			return []check{{kind: kind, address: canonical}}, false, nil
		case types.KindCTokenCompressed:
			return nil, false, cerrors.UnsupportedProgram(*q.Program)
		}
	}

	if !q.byOwner() {
		return []check{
			{kind: types.KindCTokenOnchain, address: canonical},
			{kind: types.KindSplOnchain, address: canonical},
			{kind: types.KindToken2022Onchain, address: canonical},
		}, true, nil
	}

	checks := []check{{kind: types.KindCTokenOnchain, address: canonical}}
	if q.Wrap {
		for _, kind := range []types.TokenAccountKind{types.KindSplOnchain, types.KindToken2022Onchain} {
			addr, _, err := programs.DeriveAssociatedAddress(q.Owner, q.Mint, kind)
			if err != nil {
				return nil, false, err
			}
			checks = append(checks, check{kind: kind, address: addr})
		}
	}
	return checks, true, nil
}

// run executes every check concurrently and returns the successes plus the
// joined failures. No check cancels another.
func (c *Classifier) run(ctx context.Context, q Query, checks []check, withCold bool) ([]types.TokenAccountSource, error) {
	p := pool.NewWithResults[[]types.TokenAccountSource]().WithErrors().WithContext(ctx)

	for _, chk := range checks {
		p.Go(func(ctx context.Context) ([]types.TokenAccountSource, error) {
			source, err := c.checkOnchain(ctx, chk, q.Mint)
			if err != nil {
				return nil, fmt.Errorf("%s check at %s: %w", chk.kind, chk.address, err)
			}
			return []types.TokenAccountSource{source}, nil
		})
	}

	if withCold {
		coldOwner := q.Owner
		if !q.byOwner() {
			coldOwner = *q.Address
		}
		p.Go(func(ctx context.Context) ([]types.TokenAccountSource, error) {
			sources, err := c.checkCompressed(ctx, coldOwner, q.Mint)
			if err != nil {
				return nil, fmt.Errorf("%s check for %s: %w", types.KindCTokenCompressed, coldOwner, err)
			}
			return sources, nil
		})
	}

	results, err := p.Wait()

	var sources []types.TokenAccountSource
	for _, r := range results {
		sources = append(sources, r...)
	}
	return sources, err
}

func (c *Classifier) checkOnchain(ctx context.Context, chk check, mint solana.PublicKey) (types.TokenAccountSource, error) {
	acc, err := c.reader.GetAccountInfo(ctx, chk.address)
	if err != nil {
		return types.TokenAccountSource{}, err
	}
	if acc == nil {
		return types.TokenAccountSource{}, errMiss
	}

	program := programs.ProgramForKind(chk.kind)
	if !acc.Owner.Equals(program) {
		return types.TokenAccountSource{}, fmt.Errorf("%w: owned by %s, not %s", errMiss, acc.Owner, program)
	}

	v, err := view.NewTokenAccountView(acc.Data)
	if err != nil {
		return types.TokenAccountSource{}, err
	}
	if !mint.IsZero() && !v.Mint().Equals(mint) {
		return types.TokenAccountSource{}, fmt.Errorf("%w: mint %s, not %s", errMiss, v.Mint(), mint)
	}
	return v.ToSource(chk.kind, chk.address), nil
}

func (c *Classifier) checkCompressed(ctx context.Context, owner, mint solana.PublicKey) ([]types.TokenAccountSource, error) {
	sources, err := c.indexer.GetCompressedTokenAccountsByOwner(ctx, owner, mint)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errMiss
	}
	return sources, nil
}

// transportFailures keeps the failures that are not plain misses, so that an
// all-failed classification caused by an unreachable RPC is distinguishable.
func transportFailures(err error) error {
	var out []error
	for _, e := range cerrors.Unjoin(err) {
		if !errors.Is(e, errMiss) {
			out = append(out, e)
		}
	}
	return errors.Join(out...)
}

// SortSources orders sources by kind priority. The sort is stable, so
// compressed leaves keep the indexer's order.
func SortSources(sources []types.TokenAccountSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Kind.Priority() < sources[j].Kind.Priority()
	})
}

// BuildView aggregates sorted sources. The total counts every source once.
func BuildView(sources []types.TokenAccountSource, address solana.PublicKey) *types.UnifiedAccountView {
	v := &types.UnifiedAccountView{
		Address:            address,
		Sources:            sources,
		NeedsConsolidation: len(sources) > 1,
	}
	if len(sources) == 0 {
		return v
	}

	v.PrimarySource = sources[0]
	v.Owner = sources[0].Owner
	v.Mint = sources[0].Mint
	v.IsCold = sources[0].Kind.IsCold()
	for i := range sources {
		v.TotalAmount += sources[i].Amount
		if sources[i].Delegate != nil {
			v.HasDelegate = true
		}
		if sources[i].IsFrozen() {
			v.AnyFrozen = true
		}
	}
	return v
}
