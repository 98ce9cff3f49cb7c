package load

import (
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lugondev/go-ctoken/internal/budget"
	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/internal/instruction"
	"github.com/lugondev/go-ctoken/internal/metrics"
	"github.com/lugondev/go-ctoken/internal/programs"
	"github.com/lugondev/go-ctoken/internal/selector"
	solanaclient "github.com/lugondev/go-ctoken/internal/solana"
	"github.com/lugondev/go-ctoken/internal/storage"
	"github.com/lugondev/go-ctoken/pkg/types"
)

type fakeChain struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*types.Account
	pools    []types.TokenPoolInfo
	decimals uint8
}

func (f *fakeChain) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[pubkey], nil
}

func (f *fakeChain) GetMintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	return f.decimals, nil
}

func (f *fakeChain) GetTokenPoolInfos(ctx context.Context, mint solana.PublicKey) ([]types.TokenPoolInfo, error) {
	return f.pools, nil
}

type fakeIndexer struct {
	mu        sync.Mutex
	sources   map[solana.PublicKey][]types.TokenAccountSource
	delegated map[solana.PublicKey][]types.TokenAccountSource
	proofs    int
}

func (f *fakeIndexer) GetCompressedTokenAccountsByOwner(ctx context.Context, owner, mint solana.PublicKey) ([]types.TokenAccountSource, error) {
	return f.sources[owner], nil
}

func (f *fakeIndexer) GetCompressedTokenAccountsByDelegate(ctx context.Context, delegate, mint solana.PublicKey) ([]types.TokenAccountSource, error) {
	return f.delegated[delegate], nil
}

func (f *fakeIndexer) GetValidityProof(ctx context.Context, inputs []types.ProofInput) (*types.ProofResult, error) {
	f.mu.Lock()
	f.proofs++
	f.mu.Unlock()

	result := &types.ProofResult{Proof: &types.ValidityProof{A: [32]byte{1}, B: [64]byte{2}, C: [32]byte{3}}}
	for i, in := range inputs {
		result.Accounts = append(result.Accounts, types.ProofAccount{Hash: in.Hash, RootIndex: uint16(i)})
	}
	return result, nil
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []*solana.Transaction
	failAt int
}

func (f *fakeSender) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return solana.Hash{9}, nil
}

func (f *fakeSender) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if f.failAt == len(f.sent) {
		return tx.Signatures[0], errors.New("transaction simulation failed")
	}
	return tx.Signatures[0], nil
}

type fixture struct {
	wallet    *solanaclient.Wallet
	owner     solana.PublicKey
	mint      solana.PublicKey
	ctokenATA solana.PublicKey
	splATA    solana.PublicKey
	chain     *fakeChain
	indexer   *fakeIndexer
	sender    *fakeSender
	journal   *storage.MemoryRepository
	metrics   *metrics.LogMetrics
	loader    *Loader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		wallet:  solanaclient.NewWallet(),
		mint:    solana.NewWallet().PublicKey(),
		chain:   &fakeChain{accounts: make(map[solana.PublicKey]*types.Account), decimals: 6},
		indexer: &fakeIndexer{
			sources:   make(map[solana.PublicKey][]types.TokenAccountSource),
			delegated: make(map[solana.PublicKey][]types.TokenAccountSource),
		},
		sender:  &fakeSender{},
		journal: storage.NewMemoryRepository(),
		metrics: metrics.NewLogMetrics(nil),
	}
	f.owner = f.wallet.PublicKey()
	f.ctokenATA = programs.MustDeriveAssociatedAddress(f.owner, f.mint, types.KindCTokenOnchain)
	f.splATA = programs.MustDeriveAssociatedAddress(f.owner, f.mint, types.KindSplOnchain)
	f.loader = New(f.chain, f.indexer, f.sender).
		WithJournal(f.journal).
		WithMetrics(f.metrics).
		WithRand(rand.New(rand.NewSource(1)))
	return f
}

func (f *fixture) params(wrap bool) LoadParams {
	return LoadParams{Owner: f.owner, Mint: f.mint, Payer: f.owner, Wrap: wrap}
}

func (f *fixture) hot(program, address solana.PublicKey, amount uint64, state types.AccountState) {
	data := make([]byte, 165)
	copy(data[0:32], f.mint[:])
	copy(data[32:64], f.owner[:])
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = byte(state)
	f.chain.accounts[address] = &types.Account{Owner: program, Data: data, Lamports: 2_039_280}
}

func (f *fixture) cold(tree types.TreeInfo, amounts ...uint64) {
	for _, amount := range amounts {
		leaf := uint32(len(f.indexer.sources[f.owner]))
		f.indexer.sources[f.owner] = append(f.indexer.sources[f.owner], types.TokenAccountSource{
			Kind:    types.KindCTokenCompressed,
			Address: f.owner,
			Amount:  amount,
			Mint:    f.mint,
			Owner:   f.owner,
			State:   types.AccountStateInitialized,
			LoadContext: &types.LoadContext{
				TreeInfo:  tree,
				LeafIndex: leaf,
				Hash:      [32]byte{byte(leaf), byte(leaf >> 8), 0xcc},
			},
		})
	}
}

// delegatedCold adds a leaf of amount with delegated of it approved to delegate.
func (f *fixture) delegatedCold(delegate solana.PublicKey, amount, delegated uint64) {
	f.cold(programs.DefaultTreeV2, amount)
	leaves := f.indexer.sources[f.owner]
	leaf := &leaves[len(leaves)-1]
	leaf.Delegate = &delegate
	leaf.DelegatedAmount = delegated
	f.indexer.delegated[delegate] = append(f.indexer.delegated[delegate], *leaf)
}

func (f *fixture) destinationAccount() solana.PublicKey {
	dest := solana.NewWallet().PublicKey()
	f.chain.accounts[dest] = &types.Account{Owner: programs.LightTokenProgramID}
	return dest
}

func (f *fixture) pool(program solana.PublicKey) types.TokenPoolInfo {
	addr, bump, err := programs.DerivePoolAddress(f.mint, 0)
	if err != nil {
		panic(err)
	}
	p := types.TokenPoolInfo{
		Mint:          f.mint,
		Address:       addr,
		TokenProgram:  program,
		Bump:          bump,
		IsInitialized: true,
		Balance:       1_000_000,
	}
	f.chain.pools = append(f.chain.pools, p)
	return p
}

func programsOf(ixs []types.Instruction) []solana.PublicKey {
	out := make([]solana.PublicKey, len(ixs))
	for i, ix := range ixs {
		out[i] = ix.ProgramID
	}
	return out
}

func last(ixs []types.Instruction) types.Instruction {
	return ixs[len(ixs)-1]
}

func TestAlreadyLoaded(t *testing.T) {
	f := newFixture(t)
	f.hot(programs.LightTokenProgramID, f.ctokenATA, 100, types.AccountStateInitialized)

	batches, err := f.loader.BuildLoadInstructions(context.Background(), f.params(false))
	require.NoError(t, err)
	assert.Nil(t, batches)
	assert.Equal(t, uint64(1), f.metrics.Counter(metrics.MetricLoadAlreadyLoaded))
	assert.Zero(t, f.indexer.proofs)
}

func TestNoSourcesIsAccountNotFound(t *testing.T) {
	f := newFixture(t)

	batches, err := f.loader.BuildLoadInstructions(context.Background(), f.params(true))
	require.ErrorIs(t, err, cerrors.ErrAccountNotFound)
	assert.Nil(t, batches)
}

func TestLoadColdIntoLightToken(t *testing.T) {
	f := newFixture(t)
	f.cold(programs.DefaultTreeV2, 60, 30, 10)

	batches, err := f.loader.BuildLoadInstructions(context.Background(), f.params(false))
	require.NoError(t, err)
	require.Len(t, batches, 1)

	b := batches[0]
	assert.Equal(t, []solana.PublicKey{
		programs.ComputeBudgetProgramID,
		programs.LightTokenProgramID,
		programs.LightTokenProgramID,
	}, programsOf(b.Instructions))
	assert.Equal(t, instruction.DiscriminatorCreateAssociatedIdempotent, b.Instructions[1].Data[0])
	assert.Equal(t, uint64(100), b.Amount)
	assert.Equal(t, 3, b.Inputs)

	cold := f.indexer.sources[f.owner]
	assert.Equal(t, budget.EstimateInputs(cold, true, 0), b.ComputeUnits)

	ix := last(b.Instructions)
	data, err := instruction.DecodeTransfer2(ix.Data)
	require.NoError(t, err)
	assert.Len(t, data.InTokenData, 3)
	assert.Empty(t, data.OutTokenData)
	assert.Equal(t, uint64(100), data.TotalCompressed(instruction.ModeDecompress))

	params := instruction.DecompressParams{
		Payer:       f.owner,
		Authority:   f.owner,
		Mint:        f.mint,
		Inputs:      cold,
		Destination: f.ctokenATA,
	}
	table, err := params.Pack()
	require.NoError(t, err)
	packed := instruction.PackedAccounts(ix)
	assert.Equal(t, table.AccountMetas(), packed)

	recipient := packed[data.Compressions[0].SourceOrRecipient]
	assert.Equal(t, f.ctokenATA, recipient.Pubkey)
	assert.True(t, recipient.IsWritable)
	assert.False(t, packed[data.Compressions[0].Mint].IsWritable)
}

func TestExistingHotSkipsCreate(t *testing.T) {
	f := newFixture(t)
	f.hot(programs.LightTokenProgramID, f.ctokenATA, 5, types.AccountStateInitialized)
	f.cold(programs.DefaultTreeV2, 20)

	batches, err := f.loader.BuildLoadInstructions(context.Background(), f.params(false))
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Instructions, 2)
	assert.Equal(t, uint64(20), batches[0].Amount)
}

func TestChunksInputs(t *testing.T) {
	f := newFixture(t)
	amounts := make([]uint64, 17)
	for i := range amounts {
		amounts[i] = uint64(100 + i)
	}
	f.cold(programs.DefaultTreeV2, amounts...)

	batches, err := f.loader.BuildLoadInstructions(context.Background(), f.params(false))
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, 3, f.indexer.proofs)
	assert.Equal(t, uint64(3), f.metrics.Counter(metrics.MetricLoadBatches))

	var total uint64
	for i, b := range batches {
		data, err := instruction.DecodeTransfer2(last(b.Instructions).Data)
		require.NoError(t, err)
		assert.Len(t, data.InTokenData, b.Inputs)
		assert.Equal(t, b.Amount, data.TotalCompressed(instruction.ModeDecompress))
		total += b.Amount

		if i == 0 {
			assert.Len(t, b.Instructions, 3, "first batch creates the ATA")
		} else {
			assert.Len(t, b.Instructions, 2)
		}
	}
	assert.Equal(t, []int{8, 8, 1}, []int{batches[0].Inputs, batches[1].Inputs, batches[2].Inputs})
	assert.Equal(t, types.SumAmounts(f.indexer.sources[f.owner]), total)
}

func TestMaxInputsOverride(t *testing.T) {
	f := newFixture(t)
	f.cold(programs.DefaultTreeV2, 1, 2, 3, 4, 5)

	p := f.params(false)
	p.MaxInputs = 2
	batches, err := f.loader.BuildLoadInstructions(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, batches, 3)
}

func TestBatchesNeverMixGenerations(t *testing.T) {
	f := newFixture(t)
	f.cold(programs.DefaultTreeV1, 10, 20)
	f.cold(programs.DefaultTreeV2, 30, 40)

	batches, err := f.loader.BuildLoadInstructions(context.Background(), f.params(false))
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, uint64(70), batches[0].Amount, "V2 first")
	assert.Equal(t, uint64(30), batches[1].Amount)
}

func TestWrapAndDecompress(t *testing.T) {
	f := newFixture(t)
	pool := f.pool(programs.SplTokenProgramID)
	f.hot(programs.SplTokenProgramID, f.splATA, 50, types.AccountStateInitialized)
	f.cold(programs.DefaultTreeV2, 30)

	batches, err := f.loader.BuildLoadInstructions(context.Background(), f.params(true))
	require.NoError(t, err)
	require.Len(t, batches, 1)

	b := batches[0]
	require.Len(t, b.Instructions, 4)
	assert.Equal(t, uint64(80), b.Amount)
	assert.Equal(t, 1, b.Wraps)
	assert.Equal(t, budget.EstimateInputs(f.indexer.sources[f.owner], true, 1), b.ComputeUnits)

	wrap, err := instruction.DecodeTransfer2(b.Instructions[2].Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), wrap.TotalCompressed(instruction.ModeCompress))
	assert.Equal(t, uint64(50), wrap.TotalCompressed(instruction.ModeDecompress))
	assert.Equal(t, uint8(6), wrap.Compressions[0].Decimals)
	assert.Equal(t, pool.Bump, wrap.Compressions[0].Bump)
}

func TestWrapOnly(t *testing.T) {
	f := newFixture(t)
	f.pool(programs.SplTokenProgramID)
	f.hot(programs.LightTokenProgramID, f.ctokenATA, 5, types.AccountStateInitialized)
	f.hot(programs.SplTokenProgramID, f.splATA, 50, types.AccountStateInitialized)

	batches, err := f.loader.BuildLoadInstructions(context.Background(), f.params(true))
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Instructions, 2)
	assert.Equal(t, uint64(50), batches[0].Amount)
	assert.Zero(t, f.indexer.proofs)
}

func TestWrapWithoutPool(t *testing.T) {
	f := newFixture(t)
	f.hot(programs.SplTokenProgramID, f.splATA, 50, types.AccountStateInitialized)

	_, err := f.loader.BuildLoadInstructions(context.Background(), f.params(true))
	assert.ErrorIs(t, err, cerrors.ErrNoInitializedPool)
}

func TestFrozenRejectsLoad(t *testing.T) {
	tests := []struct {
		name  string
		wrap  bool
		setup func(f *fixture)
	}{
		{
			name: "hot frozen without cold",
			setup: func(f *fixture) {
				f.hot(programs.LightTokenProgramID, f.ctokenATA, 10, types.AccountStateFrozen)
			},
		},
		{
			name: "hot frozen with cold",
			setup: func(f *fixture) {
				f.hot(programs.LightTokenProgramID, f.ctokenATA, 10, types.AccountStateFrozen)
				f.cold(programs.DefaultTreeV2, 20)
			},
		},
		{
			name: "spl frozen",
			wrap: true,
			setup: func(f *fixture) {
				f.pool(programs.SplTokenProgramID)
				f.hot(programs.SplTokenProgramID, f.splATA, 10, types.AccountStateFrozen)
			},
		},
		{
			name: "spl frozen with cold",
			wrap: true,
			setup: func(f *fixture) {
				f.pool(programs.SplTokenProgramID)
				f.hot(programs.SplTokenProgramID, f.splATA, 10, types.AccountStateFrozen)
				f.cold(programs.DefaultTreeV2, 20)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			batches, err := f.loader.BuildLoadInstructions(context.Background(), f.params(tt.wrap))
			require.ErrorIs(t, err, cerrors.ErrFrozenAccount)
			assert.Nil(t, batches)
			assert.Zero(t, f.indexer.proofs)
		})
	}
}

func TestLoadIntoSpl(t *testing.T) {
	f := newFixture(t)
	pool := f.pool(programs.SplTokenProgramID)
	f.cold(programs.DefaultTreeV2, 25, 15)

	p := f.params(false)
	p.Target = types.KindSplOnchain
	batches, err := f.loader.BuildLoadInstructions(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	b := batches[0]
	assert.Equal(t, []solana.PublicKey{
		programs.ComputeBudgetProgramID,
		programs.AssociatedTokenProgramID,
		programs.LightTokenProgramID,
	}, programsOf(b.Instructions))

	ix := last(b.Instructions)
	data, err := instruction.DecodeTransfer2(ix.Data)
	require.NoError(t, err)
	packed := instruction.PackedAccounts(ix)
	c := data.Compressions[0]
	assert.Equal(t, uint64(40), c.Amount)
	assert.Equal(t, f.splATA, packed[c.SourceOrRecipient].Pubkey)
	assert.Equal(t, pool.Address, packed[c.PoolAccountIndex].Pubkey)
	assert.Equal(t, uint8(6), c.Decimals)
}

func TestLoadIntoExistingSplSkipsCreate(t *testing.T) {
	f := newFixture(t)
	f.pool(programs.SplTokenProgramID)
	f.hot(programs.SplTokenProgramID, f.splATA, 0, types.AccountStateInitialized)
	f.cold(programs.DefaultTreeV2, 25)

	p := f.params(false)
	p.Target = types.KindSplOnchain
	batches, err := f.loader.BuildLoadInstructions(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Instructions, 2)
}

func TestDestinationMustBeCanonical(t *testing.T) {
	f := newFixture(t)
	f.cold(programs.DefaultTreeV2, 25)

	p := f.params(false)
	other := solana.NewWallet().PublicKey()
	p.Destination = &other
	_, err := f.loader.BuildLoadInstructions(context.Background(), p)
	assert.ErrorIs(t, err, cerrors.ErrInvalidDestination)

	p.Destination = &f.ctokenATA
	_, err = f.loader.BuildLoadInstructions(context.Background(), p)
	assert.NoError(t, err)
}

func TestLoadSubmitsAndJournals(t *testing.T) {
	f := newFixture(t)
	amounts := make([]uint64, 10)
	for i := range amounts {
		amounts[i] = 7
	}
	f.cold(programs.DefaultTreeV2, amounts...)

	sig, err := f.loader.Load(context.Background(), f.params(false), solanaclient.Signers{f.wallet})
	require.NoError(t, err)
	require.NotNil(t, sig)
	require.Len(t, f.sender.sent, 2)
	assert.Equal(t, f.sender.sent[1].Signatures[0], *sig)
	assert.Equal(t, uint64(2), f.metrics.Counter(metrics.MetricTransactionsSubmitted))

	entries, err := f.journal.FindByOwner(context.Background(), f.owner.String(), 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byOp, err := f.journal.FindByOperation(context.Background(), entries[0].OperationID)
	require.NoError(t, err)
	require.Len(t, byOp, 2)
	for i, e := range byOp {
		assert.Equal(t, i, e.BatchIndex)
		assert.Equal(t, 2, e.BatchCount)
		assert.Equal(t, storage.OperationLoad, e.Kind)
		assert.Equal(t, storage.StatusConfirmed, e.Status)
	}
	assert.Equal(t, uint64(56), byOp[0].Amount)
	assert.Equal(t, uint64(14), byOp[1].Amount)
}

func TestLoadStopsAtFailedBatch(t *testing.T) {
	f := newFixture(t)
	amounts := make([]uint64, 20)
	for i := range amounts {
		amounts[i] = 1
	}
	f.cold(programs.DefaultTreeV2, amounts...)
	f.sender.failAt = 2

	sig, err := f.loader.Load(context.Background(), f.params(false), solanaclient.Signers{f.wallet})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 2 of 3")
	require.NotNil(t, sig, "first batch landed")
	assert.Len(t, f.sender.sent, 2)
	assert.Equal(t, uint64(1), f.metrics.Counter(metrics.MetricTransactionsFailed))

	entries, err := f.journal.FindByOwner(context.Background(), f.owner.String(), 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	byOp, err := f.journal.FindByOperation(context.Background(), entries[0].OperationID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusConfirmed, byOp[0].Status)
	assert.Equal(t, storage.StatusFailed, byOp[1].Status)
	assert.Contains(t, byOp[1].ErrorMessage, "simulation failed")
}

func TestLoadNothingSubmitsNothing(t *testing.T) {
	f := newFixture(t)
	f.hot(programs.LightTokenProgramID, f.ctokenATA, 100, types.AccountStateInitialized)

	sig, err := f.loader.Load(context.Background(), f.params(false), solanaclient.Signers{f.wallet})
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Empty(t, f.sender.sent)
}

func TestLoadMissingSigner(t *testing.T) {
	f := newFixture(t)
	f.cold(programs.DefaultTreeV2, 5)

	_, err := f.loader.Load(context.Background(), f.params(false), solanaclient.Signers{solanaclient.NewWallet()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing signer")
	assert.Empty(t, f.sender.sent)
}

func TestBuildTransferHotOnly(t *testing.T) {
	f := newFixture(t)
	f.hot(programs.LightTokenProgramID, f.ctokenATA, 100, types.AccountStateInitialized)
	dest := solana.NewWallet().PublicKey()
	f.chain.accounts[dest] = &types.Account{Owner: programs.LightTokenProgramID}

	batches, err := f.loader.BuildTransfer(context.Background(), TransferParams{
		Owner: f.owner, Mint: f.mint, Payer: f.owner, Destination: dest, Amount: 40,
	})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Instructions, 2)
	assert.Equal(t, budget.BaseHotTransfer, batches[0].ComputeUnits)

	ix := batches[0].Instructions[1]
	assert.Equal(t, programs.LightTokenProgramID, ix.ProgramID)
	assert.Equal(t, f.ctokenATA, ix.Accounts[0].Pubkey)
	assert.Equal(t, dest, ix.Accounts[1].Pubkey)
	assert.Equal(t, uint64(40), binary.LittleEndian.Uint64(ix.Data[1:9]))
}

func TestBuildTransferLoadsFirst(t *testing.T) {
	f := newFixture(t)
	f.hot(programs.LightTokenProgramID, f.ctokenATA, 10, types.AccountStateInitialized)
	f.cold(programs.DefaultTreeV2, 50)
	dest := solana.NewWallet().PublicKey()
	f.chain.accounts[dest] = &types.Account{Owner: programs.LightTokenProgramID}

	batches, err := f.loader.BuildTransfer(context.Background(), TransferParams{
		Owner: f.owner, Mint: f.mint, Payer: f.owner, Destination: dest, Amount: 40,
	})
	require.NoError(t, err)
	require.Len(t, batches, 1)

	b := batches[0]
	require.Len(t, b.Instructions, 3)
	assert.Equal(t, programs.ComputeBudgetProgramID, b.Instructions[0].ProgramID)
	assert.Equal(t, instruction.DiscriminatorTransfer2, b.Instructions[1].Data[0])
	assert.Equal(t, instruction.DiscriminatorHotTransfer, b.Instructions[2].Data[0])
	assert.Equal(t, budget.EstimateInputs(f.indexer.sources[f.owner], true, 0)+budget.BaseHotTransfer, b.ComputeUnits)
	assert.Equal(t, uint64(40), b.Amount)
}

func TestBuildTransferSelectsShortfall(t *testing.T) {
	f := newFixture(t)
	f.cold(programs.DefaultTreeV2, 100, 100, 100, 100, 100, 100)
	dest := f.destinationAccount()
	cold := f.indexer.sources[f.owner]

	batches, err := f.loader.BuildTransfer(context.Background(), TransferParams{
		Owner: f.owner, Mint: f.mint, Payer: f.owner, Destination: dest, Amount: 150,
	})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 1, f.indexer.proofs)

	sel, err := selector.SelectByGeneration(cold, 150, selector.DefaultMaxCardinality)
	require.NoError(t, err)
	require.Equal(t, cold[:2], sel.Chosen)

	b := batches[0]
	assert.Equal(t, 2, b.Inputs)
	assert.Equal(t, uint64(150), b.Amount)
	assert.Equal(t, budget.EstimateInputs(sel.Chosen, true, 0)+budget.BaseHotTransfer, b.ComputeUnits)
	assert.Equal(t, []solana.PublicKey{
		programs.ComputeBudgetProgramID,
		programs.LightTokenProgramID,
		programs.LightTokenProgramID,
		programs.LightTokenProgramID,
	}, programsOf(b.Instructions))

	data, err := instruction.DecodeTransfer2(b.Instructions[2].Data)
	require.NoError(t, err)
	require.Len(t, data.InTokenData, 2)
	assert.Equal(t, uint32(0), data.InTokenData[0].MerkleContext.LeafIndex)
	assert.Equal(t, uint32(1), data.InTokenData[1].MerkleContext.LeafIndex)
	assert.Equal(t, sel.Total-sel.ChangeAmount, data.TotalCompressed(instruction.ModeDecompress))
	require.Len(t, data.OutTokenData, 1)
	assert.Equal(t, sel.ChangeAmount, data.OutTokenData[0].Amount)

	assert.Equal(t, uint64(1), f.metrics.Counter(metrics.MetricSelectCalls))
	assert.Equal(t, uint64(2), f.metrics.Counter(metrics.MetricSelectInputs))
}

func TestBuildTransferLoadsAllWhenSelectionFails(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(f *fixture)
		amount       uint64
		batches      int
		insufficient uint64
	}{
		{
			name: "across generations",
			setup: func(f *fixture) {
				f.cold(programs.DefaultTreeV2, 30)
				f.cold(programs.DefaultTreeV1, 30)
			},
			amount:  50,
			batches: 2,
		},
		{
			name: "beyond cardinality",
			setup: func(f *fixture) {
				f.cold(programs.DefaultTreeV2, 1, 1, 1, 1, 1, 1)
			},
			amount:       5,
			batches:      1,
			insufficient: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			dest := f.destinationAccount()

			batches, err := f.loader.BuildTransfer(context.Background(), TransferParams{
				Owner: f.owner, Mint: f.mint, Payer: f.owner, Destination: dest, Amount: tt.amount,
			})
			require.NoError(t, err)
			require.Len(t, batches, tt.batches)
			assert.Equal(t, instruction.DiscriminatorHotTransfer, last(batches[len(batches)-1].Instructions).Data[0])

			var inputs int
			for _, b := range batches {
				inputs += b.Inputs
			}
			assert.Equal(t, len(f.indexer.sources[f.owner]), inputs)
			assert.Equal(t, uint64(1), f.metrics.Counter(metrics.MetricSelectCalls))
			assert.Equal(t, tt.insufficient, f.metrics.Counter(metrics.MetricSelectInsufficient))
		})
	}
}

func TestBuildTransferByDelegate(t *testing.T) {
	f := newFixture(t)
	delegate := solana.NewWallet().PublicKey()
	f.cold(programs.DefaultTreeV2, 100)
	f.delegatedCold(delegate, 80, 30)
	dest := f.destinationAccount()

	p := TransferParams{
		Owner: f.owner, Mint: f.mint, Payer: delegate, Destination: dest, Amount: 20, Authority: &delegate,
	}
	batches, err := f.loader.BuildTransfer(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 1, batches[0].Inputs)

	ixs := batches[0].Instructions
	data, err := instruction.DecodeTransfer2(ixs[len(ixs)-2].Data)
	require.NoError(t, err)
	require.Len(t, data.InTokenData, 1)
	assert.Equal(t, uint64(80), data.InTokenData[0].Amount)
	assert.True(t, data.InTokenData[0].HasDelegate)
	assert.Equal(t, uint64(20), data.TotalCompressed(instruction.ModeDecompress))
	require.Len(t, data.OutTokenData, 1)
	assert.Equal(t, uint64(60), data.OutTokenData[0].Amount)

	packed := instruction.PackedAccounts(ixs[len(ixs)-2])
	assert.Equal(t, f.owner, packed[data.OutTokenData[0].Owner].Pubkey)
	authority := packed[data.Compressions[0].Authority]
	assert.Equal(t, delegate, authority.Pubkey)
	assert.True(t, authority.IsSigner)

	hot := last(ixs)
	assert.Equal(t, f.ctokenATA, hot.Accounts[0].Pubkey)
	assert.Equal(t, delegate, hot.Accounts[2].Pubkey)

	p.Amount = 31
	_, err = f.loader.BuildTransfer(context.Background(), p)
	assert.ErrorIs(t, err, cerrors.ErrInsufficientBalance, "delegate spends at most the delegated amount")

	stranger := solana.NewWallet().PublicKey()
	p.Amount = 5
	p.Authority = &stranger
	_, err = f.loader.BuildTransfer(context.Background(), p)
	assert.ErrorIs(t, err, cerrors.ErrInvalidAuthority)

	p.Authority = &delegate
	p.Wrap = true
	_, err = f.loader.BuildTransfer(context.Background(), p)
	assert.ErrorIs(t, err, cerrors.ErrInvalidAuthority, "only the owner wraps")
}

func TestLoadByDelegate(t *testing.T) {
	f := newFixture(t)
	delegate := solana.NewWallet().PublicKey()
	f.cold(programs.DefaultTreeV2, 100)
	f.delegatedCold(delegate, 80, 30)
	f.delegatedCold(delegate, 50, 0)

	p := f.params(false)
	p.Authority = &delegate
	batches, err := f.loader.BuildLoadInstructions(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 1, batches[0].Inputs, "leaves with nothing delegated are skipped")
	assert.Equal(t, uint64(30), batches[0].Amount)

	data, err := instruction.DecodeTransfer2(last(batches[0].Instructions).Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), data.TotalCompressed(instruction.ModeDecompress))
	require.Len(t, data.OutTokenData, 1)
	assert.Equal(t, uint64(50), data.OutTokenData[0].Amount)
}

func TestBuildTransferFailures(t *testing.T) {
	f := newFixture(t)
	f.hot(programs.LightTokenProgramID, f.ctokenATA, 10, types.AccountStateInitialized)
	dest := solana.NewWallet().PublicKey()

	p := TransferParams{Owner: f.owner, Mint: f.mint, Payer: f.owner, Destination: dest, Amount: 5}
	_, err := f.loader.BuildTransfer(context.Background(), p)
	assert.ErrorIs(t, err, cerrors.ErrAccountNotFound, "destination must exist")

	f.chain.accounts[dest] = &types.Account{Owner: programs.LightTokenProgramID}
	p.Amount = 11
	_, err = f.loader.BuildTransfer(context.Background(), p)
	assert.ErrorIs(t, err, cerrors.ErrInsufficientBalance)

	p.Amount = 0
	_, err = f.loader.BuildTransfer(context.Background(), p)
	assert.ErrorIs(t, err, cerrors.ErrZeroAmount)
}

func TestTransferJournalsAsTransfer(t *testing.T) {
	f := newFixture(t)
	f.hot(programs.LightTokenProgramID, f.ctokenATA, 10, types.AccountStateInitialized)
	dest := solana.NewWallet().PublicKey()
	f.chain.accounts[dest] = &types.Account{Owner: programs.LightTokenProgramID}

	sig, err := f.loader.Transfer(context.Background(), TransferParams{
		Owner: f.owner, Mint: f.mint, Payer: f.owner, Destination: dest, Amount: 3,
	}, solanaclient.Signers{f.wallet})
	require.NoError(t, err)
	require.NotNil(t, sig)

	entry, err := f.journal.FindBySignature(context.Background(), sig.String())
	require.NoError(t, err)
	assert.Equal(t, storage.OperationTransfer, entry.Kind)
	assert.Equal(t, uint64(3), entry.Amount)
}

func TestBuildMerge(t *testing.T) {
	f := newFixture(t)
	f.cold(programs.DefaultTreeV2, 50, 40, 30, 20, 10)

	batch, err := f.loader.BuildMerge(context.Background(), MergeParams{Owner: f.owner, Mint: f.mint, Payer: f.owner})
	require.NoError(t, err)
	assert.Equal(t, 4, batch.Inputs)
	assert.Equal(t, uint64(140), batch.Amount)

	data, err := instruction.DecodeTransfer2(last(batch.Instructions).Data)
	require.NoError(t, err)
	assert.Len(t, data.InTokenData, 4)
	require.Len(t, data.OutTokenData, 1)
	assert.Equal(t, uint64(140), data.OutTokenData[0].Amount)
	assert.Nil(t, data.Compressions)

	packed := instruction.PackedAccounts(last(batch.Instructions))
	assert.Equal(t, f.owner, packed[data.OutTokenData[0].Owner].Pubkey)
}

func TestBuildMergePicksLargerGeneration(t *testing.T) {
	f := newFixture(t)
	f.cold(programs.DefaultTreeV2, 50)
	f.cold(programs.DefaultTreeV1, 10, 20, 30)

	batch, err := f.loader.BuildMerge(context.Background(), MergeParams{Owner: f.owner, Mint: f.mint, Payer: f.owner})
	require.NoError(t, err)
	assert.Equal(t, 3, batch.Inputs)
	assert.Equal(t, uint64(60), batch.Amount)
}

func TestBuildMergeNeedsTwoAccounts(t *testing.T) {
	f := newFixture(t)
	f.hot(programs.LightTokenProgramID, f.ctokenATA, 10, types.AccountStateInitialized)
	f.cold(programs.DefaultTreeV2, 50)

	_, err := f.loader.BuildMerge(context.Background(), MergeParams{Owner: f.owner, Mint: f.mint, Payer: f.owner})
	assert.ErrorIs(t, err, cerrors.ErrAccountNotFound)
}

func TestSubmitWithoutSender(t *testing.T) {
	f := newFixture(t)
	f.cold(programs.DefaultTreeV2, 5)
	loader := New(f.chain, f.indexer, nil)

	_, err := loader.Load(context.Background(), f.params(false), solanaclient.Signers{f.wallet})
	assert.ErrorIs(t, err, errNoSender)
}
