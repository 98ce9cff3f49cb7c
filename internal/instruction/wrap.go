package instruction

import (
	"github.com/gagliardetto/solana-go"

	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/internal/packer"
	"github.com/lugondev/go-ctoken/pkg/types"
)

// WrapParams moves Amount from an SPL or Token-2022 account into a
// light-token account through the mint's pool.
type WrapParams struct {
	Payer       solana.PublicKey
	Owner       solana.PublicKey
	Mint        solana.PublicKey
	Source      solana.PublicKey
	Destination solana.PublicKey
	Amount      uint64
	Decimals    uint8
	Pool        types.TokenPoolInfo
}

// UnwrapParams moves Amount from a light-token account into an SPL or
// Token-2022 account through the mint's pool.
type UnwrapParams struct {
	Payer       solana.PublicKey
	Owner       solana.PublicKey
	Mint        solana.PublicKey
	Source      solana.PublicKey
	Destination solana.PublicKey
	Amount      uint64
	Decimals    uint8
	Pool        types.TokenPoolInfo
}

// Wrap compresses from the pool-backed source into the pool and decompresses
// the same amount into the light-token destination in one instruction.
func Wrap(p WrapParams) (types.Instruction, error) {
	if p.Amount == 0 {
		return types.Instruction{}, cerrors.ZeroAmount("wrap")
	}
	if err := checkPool(p.Mint, p.Pool); err != nil {
		return types.Instruction{}, err
	}

	table, err := poolMoveTable(p.Owner, p.Mint, p.Source, p.Destination, p.Pool)
	if err != nil {
		return types.Instruction{}, err
	}

	mint, owner, pool := table.MustIndex(p.Mint), table.MustIndex(p.Owner), table.MustIndex(p.Pool.Address)
	data := &Transfer2Data{
		MaxTopUp: DefaultMaxTopUp,
		Compressions: []Compression{
			{
				Mode:              ModeCompress,
				Amount:            p.Amount,
				Mint:              mint,
				SourceOrRecipient: table.MustIndex(p.Source),
				Authority:         owner,
				PoolAccountIndex:  pool,
				PoolIndex:         p.Pool.PoolIndex,
				Bump:              p.Pool.Bump,
				Decimals:          p.Decimals,
			},
			{
				Mode:              ModeDecompress,
				Amount:            p.Amount,
				Mint:              mint,
				SourceOrRecipient: table.MustIndex(p.Destination),
				Authority:         owner,
			},
		},
		InTokenData:  []packer.PackedTokenInput{},
		OutTokenData: []TokenOutput{},
	}
	return compressionsOnlyInstruction(p.Payer, table, data)
}

// Unwrap compresses from the light-token source and decompresses the same
// amount out of the pool into the SPL or Token-2022 destination.
func Unwrap(p UnwrapParams) (types.Instruction, error) {
	if p.Amount == 0 {
		return types.Instruction{}, cerrors.ZeroAmount("unwrap")
	}
	if err := checkPool(p.Mint, p.Pool); err != nil {
		return types.Instruction{}, err
	}

	table, err := poolMoveTable(p.Owner, p.Mint, p.Source, p.Destination, p.Pool)
	if err != nil {
		return types.Instruction{}, err
	}

	mint, owner, pool := table.MustIndex(p.Mint), table.MustIndex(p.Owner), table.MustIndex(p.Pool.Address)
	data := &Transfer2Data{
		MaxTopUp: DefaultMaxTopUp,
		Compressions: []Compression{
			{
				Mode:              ModeCompress,
				Amount:            p.Amount,
				Mint:              mint,
				SourceOrRecipient: table.MustIndex(p.Source),
				Authority:         owner,
			},
			{
				Mode:              ModeDecompress,
				Amount:            p.Amount,
				Mint:              mint,
				SourceOrRecipient: table.MustIndex(p.Destination),
				Authority:         owner,
				PoolAccountIndex:  pool,
				PoolIndex:         p.Pool.PoolIndex,
				Bump:              p.Pool.Bump,
				Decimals:          p.Decimals,
			},
		},
		InTokenData:  []packer.PackedTokenInput{},
		OutTokenData: []TokenOutput{},
	}
	return compressionsOnlyInstruction(p.Payer, table, data)
}

func poolMoveTable(owner, mint, source, destination solana.PublicKey, pool types.TokenPoolInfo) (*packer.Table, error) {
	if source.Equals(destination) {
		return nil, cerrors.InvalidDestination(destination, source)
	}
	b := packer.NewBuilder()
	b.AddMint(mint)
	b.AddOwner(owner, true)
	b.AddTokenAccount(source, true)
	b.AddTokenAccount(destination, true)
	b.AddTokenAccount(pool.Address, true)
	b.AddProgram(pool.TokenProgram)
	return b.Build()
}

func checkPool(mint solana.PublicKey, pool types.TokenPoolInfo) error {
	if !pool.IsInitialized || !pool.Mint.Equals(mint) {
		return cerrors.NoInitializedPool(mint)
	}
	return nil
}
