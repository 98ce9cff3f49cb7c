package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/lugondev/go-ctoken/internal/common"
	"github.com/lugondev/go-ctoken/internal/programs"
	txlog "github.com/lugondev/go-ctoken/pkg/log"
	"github.com/lugondev/go-ctoken/pkg/types"
	"github.com/lugondev/go-ctoken/pkg/view"
)

// Client wraps the Solana RPC client with the reads and submissions the
// token SDK needs.
type Client struct {
	common.LoggerMixin

	rpc          *rpc.Client
	commitment   rpc.CommitmentType
	pollInterval time.Duration
}

// NewClient creates a new Solana client
func NewClient(endpoint string) *Client {
	return &Client{
		LoggerMixin:  common.NewLoggerMixin(),
		rpc:          rpc.New(endpoint),
		commitment:   rpc.CommitmentConfirmed,
		pollInterval: 500 * time.Millisecond,
	}
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.SetLogger(logger)
	return c
}

// WithCommitment sets the commitment used for reads and confirmation.
func (c *Client) WithCommitment(commitment string) *Client {
	if commitment != "" {
		c.commitment = rpc.CommitmentType(commitment)
	}
	return c
}

// WithPollInterval sets the signature status poll interval.
func (c *Client) WithPollInterval(d time.Duration) *Client {
	if d > 0 {
		c.pollInterval = d
	}
	return c
}

// RPC exposes the underlying client.
func (c *Client) RPC() *rpc.Client {
	return c.rpc
}

// GetBalance returns the balance of an account in lamports
func (c *Client) GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	result, err := c.rpc.GetBalance(ctx, pubkey, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return result.Value, nil
}

// GetLatestBlockhash returns the latest blockhash
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	result, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return result.Value.Blockhash, nil
}

// GetAccountInfo returns the account at pubkey, or nil when it does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*types.Account, error) {
	result, err := c.rpc.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}
	if result == nil || result.Value == nil {
		return nil, nil
	}
	return toAccount(result.Value), nil
}

// GetMultipleAccounts returns the accounts in request order; missing accounts are nil.
func (c *Client) GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) ([]*types.Account, error) {
	if len(pubkeys) == 0 {
		return nil, nil
	}
	result, err := c.rpc.GetMultipleAccountsWithOpts(ctx, pubkeys, &rpc.GetMultipleAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get multiple accounts: %w", err)
	}
	if len(result.Value) != len(pubkeys) {
		return nil, fmt.Errorf("failed to get multiple accounts: got %d results for %d keys", len(result.Value), len(pubkeys))
	}

	accounts := make([]*types.Account, len(pubkeys))
	for i, acc := range result.Value {
		if acc != nil {
			accounts[i] = toAccount(acc)
		}
	}
	return accounts, nil
}

// GetMintDecimals reads the decimals of an SPL or Token-2022 mint.
func (c *Client) GetMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	acc, err := c.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, err
	}
	if acc == nil {
		return 0, fmt.Errorf("mint %s not found", mint)
	}

	var m token.Mint
	if err := bin.NewBinDecoder(acc.Data).Decode(&m); err != nil {
		return 0, fmt.Errorf("failed to decode mint %s: %w", mint, err)
	}
	return m.Decimals, nil
}

// GetTokenPoolInfos reads every pool PDA of mint in one request. Pools that do
// not exist are returned uninitialized.
func (c *Client) GetTokenPoolInfos(ctx context.Context, mint solana.PublicKey) ([]types.TokenPoolInfo, error) {
	pools, err := programs.DeriveAllPoolAddresses(mint)
	if err != nil {
		return nil, err
	}

	keys := make([]solana.PublicKey, len(pools))
	for i, p := range pools {
		keys[i] = p.Address
	}

	accounts, err := c.GetMultipleAccounts(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to get token pools: %w", err)
	}

	for i, acc := range accounts {
		if acc == nil {
			continue
		}
		amount, err := view.ReadAmount(acc.Data)
		if err != nil {
			c.GetLogger().Warn("skipping malformed token pool", "pool", pools[i].Address, "error", err)
			continue
		}
		pools[i].IsInitialized = true
		pools[i].Balance = amount
		pools[i].TokenProgram = acc.Owner
	}
	return pools, nil
}

// SendTransaction sends a transaction
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		if f := simulationFailure(err); f != nil {
			c.GetLogger().Debug("preflight failed",
				"program", f.ProgramID,
				"reason", f.Reason,
				"logs", f.Messages,
				"compute_units", f.ComputeUnits,
			)
			return solana.Signature{}, fmt.Errorf("failed to send transaction: %w: %s", err, f)
		}
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// simulationFailure extracts the failing program from the logs a node
// attaches to a rejected preflight simulation.
func simulationFailure(err error) *txlog.Failure {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return nil
	}
	data, ok := rpcErr.Data.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := data["logs"].([]any)
	if !ok {
		return nil
	}
	logs := make([]string, 0, len(raw))
	for _, l := range raw {
		if s, ok := l.(string); ok {
			logs = append(logs, s)
		}
	}
	return txlog.NewParser().Failure(logs)
}

// ConfirmTransaction polls the signature status until it reaches the client's
// commitment, the transaction fails, or ctx is done.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		result, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			return fmt.Errorf("failed to get signature status: %w", err)
		}
		if len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, status.Err)
			}
			if reached(status.ConfirmationStatus, c.commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s not confirmed: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// SendAndConfirm sends tx and waits for confirmation.
func (c *Client) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	c.GetLogger().Debug("transaction sent", "signature", sig)

	if err := c.ConfirmTransaction(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func reached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	switch commitment {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentProcessed:
		return status != ""
	default:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	}
}

func toAccount(acc *rpc.Account) *types.Account {
	out := &types.Account{
		Lamports:   acc.Lamports,
		Owner:      acc.Owner,
		Executable: acc.Executable,
	}
	if acc.Data != nil {
		out.Data = acc.Data.GetBinary()
	}
	return out
}
