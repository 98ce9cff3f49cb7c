package instruction

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/internal/packer"
	"github.com/lugondev/go-ctoken/internal/programs"
	"github.com/lugondev/go-ctoken/pkg/types"
)

var (
	payer = solana.PublicKey{0xfe}
	owner = solana.PublicKey{0x01}
	mint  = solana.PublicKey{0x02}
)

func cold(amount uint64, leaf uint32) types.TokenAccountSource {
	return types.TokenAccountSource{
		Kind:    types.KindCTokenCompressed,
		Address: owner,
		Amount:  amount,
		Mint:    mint,
		Owner:   owner,
		State:   types.AccountStateInitialized,
		LoadContext: &types.LoadContext{
			TreeInfo:  programs.DefaultTreeV2,
			LeafIndex: leaf,
			Hash:      [32]byte{byte(leaf), 0xcc},
		},
	}
}

func proofFor(sources ...types.TokenAccountSource) *types.ProofResult {
	result := &types.ProofResult{Proof: &types.ValidityProof{A: [32]byte{1}, B: [64]byte{2}, C: [32]byte{3}}}
	for i, s := range sources {
		result.Accounts = append(result.Accounts, types.ProofAccount{
			Hash:      s.LoadContext.Hash,
			RootIndex: uint16(100 + i),
			TreeInfo:  s.LoadContext.TreeInfo,
			LeafIndex: s.LoadContext.LeafIndex,
		})
	}
	return result
}

func pool(program solana.PublicKey) *types.TokenPoolInfo {
	addr, bump, err := programs.DerivePoolAddress(mint, 0)
	if err != nil {
		panic(err)
	}
	return &types.TokenPoolInfo{
		Mint:          mint,
		Address:       addr,
		TokenProgram:  program,
		Bump:          bump,
		IsInitialized: true,
		Balance:       1_000_000,
	}
}

func TestTransfer2EmptyLayout(t *testing.T) {
	data := &Transfer2Data{
		MaxTopUp:     DefaultMaxTopUp,
		InTokenData:  []packer.PackedTokenInput{},
		OutTokenData: []TokenOutput{},
	}
	raw, err := data.Encode()
	require.NoError(t, err)

	want := []byte{
		101,        // discriminator
		0, 0, 0, 0, // flags and lamports change indices
		0,          // output queue
		0xff, 0xff, // max top up
		0, 0, 0,    // cpi context, compressions, proof
		0, 0, 0, 0, // in token data
		0, 0, 0, 0, // out token data
		0, 0, 0, 0, // in/out lamports, in/out tlv
	}
	assert.Equal(t, want, raw)
}

func TestTransfer2RoundTrip(t *testing.T) {
	data := &Transfer2Data{
		WithTransactionHash:       true,
		WithLamportsChangeTreeIdx: true,
		LamportsChangeTreeIndex:   3,
		LamportsChangeOwnerIndex:  4,
		OutputQueue:               1,
		MaxTopUp:                  500,
		CPIContext:                &CPIContext{SetContext: true, CPIContextAccountIndex: 9},
		Compressions: []Compression{{
			Mode:              ModeCompressAndClose,
			Amount:            1 << 40,
			Mint:              2,
			SourceOrRecipient: 5,
			Authority:         3,
			PoolAccountIndex:  6,
			PoolIndex:         1,
			Bump:              254,
			Decimals:          9,
		}},
		Proof: &types.ValidityProof{A: [32]byte{1, 2}, B: [64]byte{3, 4}, C: [32]byte{5, 6}},
		InTokenData: []packer.PackedTokenInput{{
			Owner:       3,
			Amount:      77,
			HasDelegate: true,
			Delegate:    4,
			Mint:        2,
			Version:     3,
			MerkleContext: packer.PackedMerkleContext{
				TreeIndex:    0,
				QueueIndex:   1,
				LeafIndex:    123456,
				ProveByIndex: true,
			},
			RootIndex: 42,
		}},
		OutTokenData: []TokenOutput{{Owner: 3, Amount: 70, Mint: 2, Version: 3}},
		InLamports:   []uint64{1},
		OutLamports:  []uint64{},
	}

	raw, err := data.Encode()
	require.NoError(t, err)

	decoded, err := DecodeTransfer2(raw)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestDecodeTransfer2Rejects(t *testing.T) {
	_, err := DecodeTransfer2(nil)
	assert.Error(t, err)

	_, err = DecodeTransfer2([]byte{DiscriminatorHotTransfer})
	assert.Error(t, err)

	raw, err := (&Transfer2Data{}).Encode()
	require.NoError(t, err)

	_, err = DecodeTransfer2(append(raw, 0))
	assert.Error(t, err, "trailing bytes")

	withTLV := append([]byte{}, raw...)
	withTLV[len(withTLV)-1] = 1
	_, err = DecodeTransfer2(withTLV)
	assert.Error(t, err, "tlv extensions")

	_, err = DecodeTransfer2(raw[:10])
	assert.Error(t, err, "truncated")
}

func TestCreateAssociatedTokenAccount(t *testing.T) {
	ata, bump, err := programs.DeriveAssociatedAddress(owner, mint, types.KindCTokenOnchain)
	require.NoError(t, err)

	ix, err := CreateAssociatedTokenAccount(payer, owner, mint, false)
	require.NoError(t, err)
	assert.Equal(t, programs.LightTokenProgramID, ix.ProgramID)
	assert.Equal(t, []byte{100, bump}, ix.Data)
	assert.Equal(t, []types.AccountMeta{
		types.NewAccountMeta(owner, false, false),
		types.NewAccountMeta(mint, false, false),
		types.NewAccountMeta(payer, true, true),
		types.NewAccountMeta(ata, true, false),
		types.NewAccountMeta(programs.SystemProgramID, false, false),
	}, ix.Accounts)

	ix, err = CreateAssociatedTokenAccountIdempotent(payer, owner, mint, types.KindCTokenOnchain)
	require.NoError(t, err)
	assert.Equal(t, []byte{102, bump}, ix.Data)
}

func TestCreateTokenAssociatedIdempotent(t *testing.T) {
	for _, kind := range []types.TokenAccountKind{types.KindSplOnchain, types.KindToken2022Onchain} {
		t.Run(kind.String(), func(t *testing.T) {
			ix, err := CreateAssociatedTokenAccountIdempotent(payer, owner, mint, kind)
			require.NoError(t, err)
			assert.Equal(t, programs.AssociatedTokenProgramID, ix.ProgramID)
			assert.Equal(t, []byte{1}, ix.Data)
			require.Len(t, ix.Accounts, 6)
			assert.Equal(t, programs.MustDeriveAssociatedAddress(owner, mint, kind), ix.Accounts[1].Pubkey)
			assert.Equal(t, programs.ProgramForKind(kind), ix.Accounts[5].Pubkey)
			assert.Equal(t, []types.Pubkey{payer}, ix.Signers())
		})
	}

	_, err := CreateAssociatedTokenAccountIdempotent(payer, owner, mint, types.KindCTokenCompressed)
	assert.ErrorIs(t, err, cerrors.ErrUnsupportedProgram)
}

func TestWrap(t *testing.T) {
	splPool := pool(programs.SplTokenProgramID)
	source := programs.MustDeriveAssociatedAddress(owner, mint, types.KindSplOnchain)
	destination := programs.MustDeriveAssociatedAddress(owner, mint, types.KindCTokenOnchain)

	ix, err := Wrap(WrapParams{
		Payer:       payer,
		Owner:       owner,
		Mint:        mint,
		Source:      source,
		Destination: destination,
		Amount:      500,
		Decimals:    6,
		Pool:        *splPool,
	})
	require.NoError(t, err)

	assert.Equal(t, programs.LightTokenProgramID, ix.ProgramID)
	assert.Equal(t, programs.LightTokenCPIAuthority, ix.Accounts[0].Pubkey)
	assert.Equal(t, types.NewAccountMeta(payer, true, true), ix.Accounts[1])

	packed := PackedAccounts(ix)
	assert.Equal(t, []types.AccountMeta{
		types.NewAccountMeta(mint, false, false),
		types.NewAccountMeta(owner, false, true),
		types.NewAccountMeta(source, true, false),
		types.NewAccountMeta(destination, true, false),
		types.NewAccountMeta(splPool.Address, true, false),
		types.NewAccountMeta(programs.SplTokenProgramID, false, false),
	}, packed)

	data, err := DecodeTransfer2(ix.Data)
	require.NoError(t, err)
	require.Len(t, data.Compressions, 2)
	assert.Equal(t, Compression{
		Mode: ModeCompress, Amount: 500, Mint: 0, SourceOrRecipient: 2, Authority: 1,
		PoolAccountIndex: 4, PoolIndex: 0, Bump: splPool.Bump, Decimals: 6,
	}, data.Compressions[0])
	assert.Equal(t, Compression{
		Mode: ModeDecompress, Amount: 500, Mint: 0, SourceOrRecipient: 3, Authority: 1,
	}, data.Compressions[1])
	assert.Empty(t, data.InTokenData)
	assert.Nil(t, data.Proof)
}

func TestWrapFailures(t *testing.T) {
	params := WrapParams{
		Payer:       payer,
		Owner:       owner,
		Mint:        mint,
		Source:      solana.PublicKey{7},
		Destination: solana.PublicKey{8},
		Amount:      1,
		Pool:        *pool(programs.SplTokenProgramID),
	}

	zero := params
	zero.Amount = 0
	_, err := Wrap(zero)
	assert.ErrorIs(t, err, cerrors.ErrZeroAmount)

	uninitialized := params
	uninitialized.Pool.IsInitialized = false
	_, err = Wrap(uninitialized)
	assert.ErrorIs(t, err, cerrors.ErrNoInitializedPool)

	same := params
	same.Destination = same.Source
	_, err = Wrap(same)
	assert.ErrorIs(t, err, cerrors.ErrInvalidDestination)
}

func TestUnwrap(t *testing.T) {
	t22Pool := pool(programs.Token2022ProgramID)
	source := programs.MustDeriveAssociatedAddress(owner, mint, types.KindCTokenOnchain)
	destination := programs.MustDeriveAssociatedAddress(owner, mint, types.KindToken2022Onchain)

	ix, err := Unwrap(UnwrapParams{
		Payer:       payer,
		Owner:       owner,
		Mint:        mint,
		Source:      source,
		Destination: destination,
		Amount:      10,
		Decimals:    2,
		Pool:        *t22Pool,
	})
	require.NoError(t, err)

	data, err := DecodeTransfer2(ix.Data)
	require.NoError(t, err)
	require.Len(t, data.Compressions, 2)
	assert.Zero(t, data.Compressions[0].PoolAccountIndex)
	assert.Equal(t, ModeDecompress, data.Compressions[1].Mode)
	assert.Equal(t, uint8(4), data.Compressions[1].PoolAccountIndex)
	assert.Equal(t, uint8(2), data.Compressions[1].Decimals)
	assert.Equal(t, programs.Token2022ProgramID, PackedAccounts(ix)[5].Pubkey)
}

func TestDecompressToLightToken(t *testing.T) {
	inputs := []types.TokenAccountSource{cold(60, 1), cold(40, 2)}
	destination := programs.MustDeriveAssociatedAddress(owner, mint, types.KindCTokenOnchain)
	params := DecompressParams{
		Payer:       payer,
		Authority:   owner,
		Mint:        mint,
		Inputs:      inputs,
		Proof:       proofFor(inputs...),
		Destination: destination,
		Amount:      70,
		Decimals:    6,

		RequireCanonicalDestination: true,
	}

	ix, err := Decompress(params)
	require.NoError(t, err)
	require.Len(t, ix.Accounts, FixedAccountCount+5)
	assert.Equal(t, programs.LightSystemProgramID, ix.Accounts[0].Pubkey)
	assert.Equal(t, types.NewAccountMeta(payer, true, true), ix.Accounts[1])

	table, err := params.Pack()
	require.NoError(t, err)
	assert.Equal(t, table.AccountMetas(), PackedAccounts(ix))

	data, err := DecodeTransfer2(ix.Data)
	require.NoError(t, err)
	assert.Equal(t, proofFor().Proof, data.Proof)
	require.Len(t, data.InTokenData, 2)
	assert.Equal(t, uint16(100), data.InTokenData[0].RootIndex)
	assert.Equal(t, uint16(101), data.InTokenData[1].RootIndex)
	assert.Equal(t, table.MustIndex(programs.DefaultTreeV2.Queue), data.OutputQueue)

	require.Len(t, data.OutTokenData, 1)
	assert.Equal(t, uint64(30), data.OutTokenData[0].Amount)
	assert.Equal(t, table.MustIndex(owner), data.OutTokenData[0].Owner)
	assert.Equal(t, uint8(types.TokenDataVersionShaFlat), data.OutTokenData[0].Version)

	require.Len(t, data.Compressions, 1)
	assert.Equal(t, ModeDecompress, data.Compressions[0].Mode)
	assert.Equal(t, uint64(70), data.Compressions[0].Amount)
	assert.Equal(t, table.MustIndex(destination), data.Compressions[0].SourceOrRecipient)
	assert.Zero(t, data.Compressions[0].PoolAccountIndex)
}

func TestDecompressFullBalanceHasNoChange(t *testing.T) {
	inputs := []types.TokenAccountSource{cold(60, 1)}
	ix, err := Decompress(DecompressParams{
		Payer:       payer,
		Authority:   owner,
		Mint:        mint,
		Inputs:      inputs,
		Destination: solana.PublicKey{9},
		Amount:      60,
	})
	require.NoError(t, err)

	data, err := DecodeTransfer2(ix.Data)
	require.NoError(t, err)
	assert.Empty(t, data.OutTokenData)
	assert.Nil(t, data.Proof)
}

func TestDecompressThroughPool(t *testing.T) {
	inputs := []types.TokenAccountSource{cold(5, 1)}
	splPool := pool(programs.SplTokenProgramID)
	destination := programs.MustDeriveAssociatedAddress(owner, mint, types.KindSplOnchain)

	params := DecompressParams{
		Payer:       payer,
		Authority:   owner,
		Mint:        mint,
		Inputs:      inputs,
		Proof:       proofFor(inputs...),
		Destination: destination,
		Amount:      5,
		Decimals:    9,
		Pool:        splPool,

		RequireCanonicalDestination: true,
	}
	ix, err := Decompress(params)
	require.NoError(t, err)

	table, err := params.Pack()
	require.NoError(t, err)
	data, err := DecodeTransfer2(ix.Data)
	require.NoError(t, err)

	c := data.Compressions[0]
	assert.Equal(t, table.MustIndex(splPool.Address), c.PoolAccountIndex)
	assert.Equal(t, splPool.Bump, c.Bump)
	assert.Equal(t, uint8(9), c.Decimals)
	assert.True(t, table.Entry(c.PoolAccountIndex).Writable)

	params.Destination = programs.MustDeriveAssociatedAddress(owner, mint, types.KindToken2022Onchain)
	_, err = Decompress(params)
	assert.ErrorIs(t, err, cerrors.ErrInvalidDestination)
}

func TestDecompressFailures(t *testing.T) {
	base := DecompressParams{
		Payer:       payer,
		Authority:   owner,
		Mint:        mint,
		Inputs:      []types.TokenAccountSource{cold(10, 1)},
		Destination: solana.PublicKey{9},
		Amount:      5,
	}

	tests := []struct {
		name    string
		mutate  func(p *DecompressParams)
		wantErr error
	}{
		{name: "no inputs", mutate: func(p *DecompressParams) { p.Inputs = nil }, wantErr: cerrors.ErrNoInputAccounts},
		{name: "zero amount", mutate: func(p *DecompressParams) { p.Amount = 0 }, wantErr: cerrors.ErrZeroAmount},
		{name: "insufficient", mutate: func(p *DecompressParams) { p.Amount = 11 }, wantErr: cerrors.ErrInsufficientBalance},
		{name: "frozen input", mutate: func(p *DecompressParams) {
			p.Inputs = []types.TokenAccountSource{cold(10, 1)}
			p.Inputs[0].State = types.AccountStateFrozen
		}, wantErr: cerrors.ErrFrozenAccount},
		{name: "foreign authority", mutate: func(p *DecompressParams) { p.Authority = solana.PublicKey{0x33} }, wantErr: cerrors.ErrInvalidAccountData},
		{name: "other mint", mutate: func(p *DecompressParams) { p.Mint = solana.PublicKey{0x44} }, wantErr: cerrors.ErrInvalidAccountData},
		{name: "uninitialized pool", mutate: func(p *DecompressParams) { p.Pool = &types.TokenPoolInfo{Mint: mint} }, wantErr: cerrors.ErrNoInitializedPool},
		{name: "non canonical destination", mutate: func(p *DecompressParams) { p.RequireCanonicalDestination = true }, wantErr: cerrors.ErrInvalidDestination},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := Decompress(p)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecompressByDelegate(t *testing.T) {
	delegate := solana.PublicKey{0x55}
	input := cold(10, 1)
	input.Delegate = &delegate
	input.DelegatedAmount = 10

	params := DecompressParams{
		Payer:       payer,
		Authority:   delegate,
		Mint:        mint,
		Inputs:      []types.TokenAccountSource{input},
		Destination: solana.PublicKey{9},
		Amount:      4,
	}
	ix, err := Decompress(params)
	require.NoError(t, err)

	table, err := params.Pack()
	require.NoError(t, err)
	assert.False(t, table.Entry(table.MustIndex(owner)).Signer)
	assert.True(t, table.Entry(table.MustIndex(delegate)).Signer)

	data, err := DecodeTransfer2(ix.Data)
	require.NoError(t, err)
	assert.True(t, data.InTokenData[0].HasDelegate)
	assert.Equal(t, table.MustIndex(delegate), data.InTokenData[0].Delegate)
	assert.Equal(t, table.MustIndex(owner), data.OutTokenData[0].Owner, "change returns to the owner")
}

func TestDecompressMigratesV1Outputs(t *testing.T) {
	input := cold(10, 1)
	input.LoadContext.TreeInfo = programs.DefaultTreeV1

	params := DecompressParams{
		Payer:       payer,
		Authority:   owner,
		Mint:        mint,
		Inputs:      []types.TokenAccountSource{input},
		Destination: solana.PublicKey{9},
		Amount:      4,
	}
	ix, err := Decompress(params)
	require.NoError(t, err)

	table, err := params.Pack()
	require.NoError(t, err)
	data, err := DecodeTransfer2(ix.Data)
	require.NoError(t, err)
	assert.Equal(t, table.MustIndex(programs.DefaultTreeV2.Queue), data.OutputQueue)
	assert.Equal(t, uint8(types.TokenDataVersionV1), data.InTokenData[0].Version)
	assert.Equal(t, uint8(types.TokenDataVersionShaFlat), data.OutTokenData[0].Version)
}

func TestCompressedTransfer(t *testing.T) {
	recipient := solana.PublicKey{0x66}
	inputs := []types.TokenAccountSource{cold(30, 1), cold(30, 2)}

	params := CompressedTransferParams{
		Payer:     payer,
		Authority: owner,
		Mint:      mint,
		Inputs:    inputs,
		Proof:     proofFor(inputs...),
		Recipient: recipient,
		Amount:    45,
	}
	ix, err := CompressedTransfer(params)
	require.NoError(t, err)

	table, err := params.Pack()
	require.NoError(t, err)
	data, err := DecodeTransfer2(ix.Data)
	require.NoError(t, err)

	assert.Nil(t, data.Compressions)
	require.Len(t, data.OutTokenData, 2)
	assert.Equal(t, table.MustIndex(recipient), data.OutTokenData[0].Owner)
	assert.Equal(t, uint64(45), data.OutTokenData[0].Amount)
	assert.Equal(t, table.MustIndex(owner), data.OutTokenData[1].Owner)
	assert.Equal(t, uint64(15), data.OutTokenData[1].Amount)

	merge := params
	merge.Recipient = owner
	merge.Amount = 60
	ix, err = CompressedTransfer(merge)
	require.NoError(t, err)
	data, err = DecodeTransfer2(ix.Data)
	require.NoError(t, err)
	require.Len(t, data.OutTokenData, 1)
	assert.Equal(t, uint64(60), data.OutTokenData[0].Amount)
}

func TestHotTransfer(t *testing.T) {
	source := programs.MustDeriveAssociatedAddress(owner, mint, types.KindCTokenOnchain)
	destination := solana.PublicKey{0x77}

	ix, err := Transfer(HotTransferParams{
		Kind:        types.KindCTokenOnchain,
		Source:      source,
		Destination: destination,
		Authority:   owner,
		Mint:        mint,
		Amount:      1234,

		RequireCanonicalSource: true,
	})
	require.NoError(t, err)
	assert.Equal(t, programs.LightTokenProgramID, ix.ProgramID)
	require.Len(t, ix.Data, 9)
	assert.Equal(t, DiscriminatorHotTransfer, ix.Data[0])
	assert.Equal(t, uint64(1234), binary.LittleEndian.Uint64(ix.Data[1:]))
	assert.Equal(t, []types.AccountMeta{
		types.NewAccountMeta(source, true, false),
		types.NewAccountMeta(destination, true, false),
		types.NewAccountMeta(owner, false, true),
	}, ix.Accounts)
}

func TestHotTransferChecked(t *testing.T) {
	source := programs.MustDeriveAssociatedAddress(owner, mint, types.KindToken2022Onchain)

	ix, err := Transfer(HotTransferParams{
		Kind:        types.KindToken2022Onchain,
		Source:      source,
		Destination: solana.PublicKey{0x77},
		Authority:   owner,
		Mint:        mint,
		Amount:      5,
		Decimals:    6,
	})
	require.NoError(t, err)
	assert.Equal(t, programs.Token2022ProgramID, ix.ProgramID)
	require.Len(t, ix.Data, 10)
	assert.Equal(t, byte(12), ix.Data[0])
	assert.Equal(t, uint64(5), binary.LittleEndian.Uint64(ix.Data[1:9]))
	assert.Equal(t, byte(6), ix.Data[9])
	require.Len(t, ix.Accounts, 4)
	assert.Equal(t, mint, ix.Accounts[1].Pubkey)
}

func TestHotTransferFailures(t *testing.T) {
	base := HotTransferParams{
		Kind:        types.KindCTokenOnchain,
		Source:      solana.PublicKey{0x70},
		Destination: solana.PublicKey{0x71},
		Authority:   owner,
		Mint:        mint,
		Amount:      1,
	}

	zero := base
	zero.Amount = 0
	_, err := Transfer(zero)
	assert.ErrorIs(t, err, cerrors.ErrZeroAmount)

	canonical := base
	canonical.RequireCanonicalSource = true
	_, err = Transfer(canonical)
	assert.ErrorIs(t, err, cerrors.ErrInvalidDestination)

	self := base
	self.Destination = self.Source
	_, err = Transfer(self)
	assert.ErrorIs(t, err, cerrors.ErrInvalidDestination)

	compressed := base
	compressed.Kind = types.KindCTokenCompressed
	_, err = Transfer(compressed)
	assert.ErrorIs(t, err, cerrors.ErrUnsupportedProgram)
}
