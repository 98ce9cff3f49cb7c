// Package indexer is a client for the Photon compression indexer: compressed
// token listings and validity proofs.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/ybbus/jsonrpc"
	"golang.org/x/time/rate"

	"github.com/lugondev/go-ctoken/internal/common"
	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/pkg/types"
)

const (
	methodTokenAccountsByOwner    = "getCompressedTokenAccountsByOwnerV2"
	methodTokenAccountsByDelegate = "getCompressedTokenAccountsByDelegateV2"
	methodValidityProof           = "getValidityProofV2"
	methodIndexerHealth           = "getIndexerHealth"

	// DefaultMaxPages bounds cursor pagination.
	DefaultMaxPages = 100
	// DefaultPageSize is the number of items requested per page.
	DefaultPageSize = 1000
)

// Client talks to a Photon JSON-RPC endpoint.
type Client struct {
	common.LoggerMixin

	rpc      jsonrpc.RPCClient
	limiter  *rate.Limiter
	maxPages int
	pageSize int
}

// NewClient returns a client for endpoint. opts may be nil.
func NewClient(endpoint string, opts *jsonrpc.RPCClientOpts) *Client {
	var rpcClient jsonrpc.RPCClient
	if opts == nil {
		rpcClient = jsonrpc.NewClient(endpoint)
	} else {
		rpcClient = jsonrpc.NewClientWithOpts(endpoint, opts)
	}
	return &Client{
		LoggerMixin: common.NewLoggerMixin(),
		rpc:         rpcClient,
		limiter:     rate.NewLimiter(rate.Inf, 0),
		maxPages:    DefaultMaxPages,
		pageSize:    DefaultPageSize,
	}
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.SetLogger(logger)
	return c
}

// WithRateLimit paces outgoing requests. A non-positive rps disables pacing.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithMaxPages sets the pagination bound.
func (c *Client) WithMaxPages(n int) *Client {
	if n > 0 {
		c.maxPages = n
	}
	return c
}

// WithPageSize sets the number of items requested per page.
func (c *Client) WithPageSize(n int) *Client {
	if n > 0 {
		c.pageSize = n
	}
	return c
}

// call waits for the limiter and performs one request. The JSON-RPC client has
// no context support, so cancellation is only observed before the request.
func (c *Client) call(ctx context.Context, out any, method string, params any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	if err := c.rpc.CallFor(out, method, params); err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	return nil
}

// Health reports whether the indexer is caught up.
func (c *Client) Health(ctx context.Context) error {
	var status string
	if err := c.call(ctx, &status, methodIndexerHealth, nil); err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("indexer unhealthy: %s", status)
	}
	return nil
}

// GetCompressedTokenAccountsByOwner returns every compressed light-token leaf
// of owner for mint, following the cursor across pages.
func (c *Client) GetCompressedTokenAccountsByOwner(ctx context.Context, owner, mint solana.PublicKey) ([]types.TokenAccountSource, error) {
	return c.paginate(ctx, methodTokenAccountsByOwner, func(cursor *string) any {
		return ownerParams{Owner: owner.String(), Mint: mintParam(mint), Cursor: cursor, Limit: c.pageSize}
	})
}

// GetCompressedTokenAccountsByDelegate returns the leaves delegated to delegate for mint.
func (c *Client) GetCompressedTokenAccountsByDelegate(ctx context.Context, delegate, mint solana.PublicKey) ([]types.TokenAccountSource, error) {
	return c.paginate(ctx, methodTokenAccountsByDelegate, func(cursor *string) any {
		return delegateParams{Delegate: delegate.String(), Mint: mintParam(mint), Cursor: cursor, Limit: c.pageSize}
	})
}

func (c *Client) paginate(ctx context.Context, method string, params func(cursor *string) any) ([]types.TokenAccountSource, error) {
	var (
		sources []types.TokenAccountSource
		cursor  *string
	)
	for page := 0; ; page++ {
		if page >= c.maxPages {
			return nil, cerrors.PaginationLimit(c.maxPages)
		}

		var result contextResult[tokenAccountList]
		if err := c.call(ctx, &result, method, params(cursor)); err != nil {
			return nil, err
		}

		for _, item := range result.Value.Items {
			source, ok, err := item.Account.toSource()
			if err != nil {
				return nil, err
			}
			if ok {
				sources = append(sources, source)
			}
		}

		if result.Value.Cursor == nil || *result.Value.Cursor == "" {
			break
		}
		cursor = result.Value.Cursor
	}

	c.GetLogger().Debug("listed compressed token accounts", "method", method, "count", len(sources))
	return sources, nil
}

// GetValidityProof requests a proof for inputs. The returned accounts are in
// input order, matched by hash. Proof is nil when every input is provable by
// index.
func (c *Client) GetValidityProof(ctx context.Context, inputs []types.ProofInput) (*types.ProofResult, error) {
	if len(inputs) == 0 {
		return &types.ProofResult{}, nil
	}

	hashes := make([]string, len(inputs))
	for i, in := range inputs {
		hashes[i] = base58.Encode(in.Hash[:])
	}

	var result contextResult[validityProofResult]
	if err := c.call(ctx, &result, methodValidityProof, proofParams{
		Hashes:                hashes,
		NewAddressesWithTrees: []string{},
	}); err != nil {
		return nil, err
	}

	byHash := make(map[[32]byte]types.ProofAccount, len(result.Value.Accounts))
	for _, acc := range result.Value.Accounts {
		hash, err := decodeHash(acc.Hash)
		if err != nil {
			return nil, err
		}
		tree, err := acc.MerkleContext.toTreeInfo()
		if err != nil {
			return nil, err
		}
		byHash[hash] = types.ProofAccount{
			Hash:         hash,
			RootIndex:    acc.RootIndex.RootIndex,
			ProveByIndex: acc.RootIndex.ProveByIndex,
			TreeInfo:     tree,
			LeafIndex:    acc.LeafIndex,
		}
	}

	out := &types.ProofResult{Accounts: make([]types.ProofAccount, len(inputs))}
	for i, in := range inputs {
		acc, ok := byHash[in.Hash]
		if !ok {
			return nil, cerrors.InvalidResponse(fmt.Sprintf("proof response is missing hash %s", hashes[i]))
		}
		out.Accounts[i] = acc
	}

	if p := result.Value.CompressedProof; p != nil {
		if len(p.A) != 32 || len(p.B) != 64 || len(p.C) != 32 {
			return nil, cerrors.InvalidResponse(fmt.Sprintf(
				"proof components have lengths %d/%d/%d, want 32/64/32", len(p.A), len(p.B), len(p.C)))
		}
		proof := &types.ValidityProof{}
		copy(proof.A[:], p.A)
		copy(proof.B[:], p.B)
		copy(proof.C[:], p.C)
		out.Proof = proof
	}

	return out, nil
}

func mintParam(mint solana.PublicKey) string {
	if mint.IsZero() {
		return ""
	}
	return mint.String()
}
