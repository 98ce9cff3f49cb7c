package instruction

import (
	"github.com/gagliardetto/solana-go"

	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/internal/packer"
	"github.com/lugondev/go-ctoken/internal/programs"
	"github.com/lugondev/go-ctoken/pkg/types"
)

// DecompressParams spends compressed inputs into an on-chain account.
//
// Authority is the input owner or their delegate and signs the instruction.
// Pool is required when Destination is an SPL or Token-2022 account and must
// be nil for a light-token destination. Any input amount above Amount returns
// to Authority's owner as a compressed change output.
type DecompressParams struct {
	Payer       solana.PublicKey
	Authority   solana.PublicKey
	Mint        solana.PublicKey
	Inputs      []types.TokenAccountSource
	Proof       *types.ProofResult
	Destination solana.PublicKey
	Amount      uint64
	Decimals    uint8
	Pool        *types.TokenPoolInfo
	OutputTree  *types.TreeInfo

	// RequireCanonicalDestination rejects a destination other than the
	// owner's ATA in the destination's representation.
	RequireCanonicalDestination bool
}

// Pack stages and freezes the packed accounts of the decompression.
func (p DecompressParams) Pack() (*packer.Table, error) {
	b := packer.NewBuilder()
	b.AddInputs(p.Inputs, p.Authority)
	b.AddQueue(outputTree(p.Inputs, p.OutputTree).OutputAccount())
	b.AddMint(p.Mint)
	b.AddOwner(p.Authority, true)
	b.AddTokenAccount(p.Destination, true)
	if p.Pool != nil {
		b.AddTokenAccount(p.Pool.Address, true)
		b.AddProgram(p.Pool.TokenProgram)
	}
	return b.Build()
}

// Decompress builds a Transfer2 that spends Inputs and credits Amount to
// Destination.
func Decompress(p DecompressParams) (types.Instruction, error) {
	if err := validateInputs("decompress", p.Inputs, p.Mint, p.Authority); err != nil {
		return types.Instruction{}, err
	}
	if p.Amount == 0 {
		return types.Instruction{}, cerrors.ZeroAmount("decompress")
	}
	total := types.SumAmounts(p.Inputs)
	if p.Amount > total {
		return types.Instruction{}, cerrors.InsufficientBalance(p.Amount, total)
	}
	if p.Pool != nil {
		if err := checkPool(p.Mint, *p.Pool); err != nil {
			return types.Instruction{}, err
		}
	}
	if p.RequireCanonicalDestination {
		if err := checkCanonicalDestination(p); err != nil {
			return types.Instruction{}, err
		}
	}

	table, err := p.Pack()
	if err != nil {
		return types.Instruction{}, err
	}
	inputs, err := packer.PackInputs(table, p.Inputs, p.Proof)
	if err != nil {
		return types.Instruction{}, err
	}

	out := outputTree(p.Inputs, p.OutputTree)
	data := &Transfer2Data{
		OutputQueue:  table.MustIndex(out.OutputAccount()),
		MaxTopUp:     DefaultMaxTopUp,
		Proof:        proofOf(p.Proof),
		InTokenData:  inputs,
		OutTokenData: []TokenOutput{},
	}

	mint := table.MustIndex(p.Mint)
	if change := total - p.Amount; change > 0 {
		owner, err := table.Index(p.Inputs[0].Owner)
		if err != nil {
			return types.Instruction{}, err
		}
		data.OutTokenData = append(data.OutTokenData, TokenOutput{
			Owner:   owner,
			Amount:  change,
			Mint:    mint,
			Version: uint8(types.DefaultTokenDataVersion(out.TreeType)),
		})
	}

	c := Compression{
		Mode:              ModeDecompress,
		Amount:            p.Amount,
		Mint:              mint,
		SourceOrRecipient: table.MustIndex(p.Destination),
		Authority:         table.MustIndex(p.Authority),
		Decimals:          p.Decimals,
	}
	if p.Pool != nil {
		c.PoolAccountIndex = table.MustIndex(p.Pool.Address)
		c.PoolIndex = p.Pool.PoolIndex
		c.Bump = p.Pool.Bump
	}
	data.Compressions = []Compression{c}

	return transfer2Instruction(p.Payer, table, data)
}

// CompressedTransferParams moves compressed balance to another owner without
// touching any on-chain token account.
type CompressedTransferParams struct {
	Payer      solana.PublicKey
	Authority  solana.PublicKey
	Mint       solana.PublicKey
	Inputs     []types.TokenAccountSource
	Proof      *types.ProofResult
	Recipient  solana.PublicKey
	Amount     uint64
	OutputTree *types.TreeInfo
}

// Pack stages and freezes the packed accounts of the transfer.
func (p CompressedTransferParams) Pack() (*packer.Table, error) {
	b := packer.NewBuilder()
	b.AddInputs(p.Inputs, p.Authority)
	b.AddQueue(outputTree(p.Inputs, p.OutputTree).OutputAccount())
	b.AddMint(p.Mint)
	b.AddOwner(p.Authority, true)
	b.AddOwner(p.Recipient, false)
	return b.Build()
}

// CompressedTransfer builds a Transfer2 with a recipient output of Amount and
// a change output to the inputs' owner for the rest. A transfer to the owner
// of the full input total consolidates the inputs into one leaf.
func CompressedTransfer(p CompressedTransferParams) (types.Instruction, error) {
	if err := validateInputs("transfer", p.Inputs, p.Mint, p.Authority); err != nil {
		return types.Instruction{}, err
	}
	if p.Amount == 0 {
		return types.Instruction{}, cerrors.ZeroAmount("transfer")
	}
	total := types.SumAmounts(p.Inputs)
	if p.Amount > total {
		return types.Instruction{}, cerrors.InsufficientBalance(p.Amount, total)
	}

	table, err := p.Pack()
	if err != nil {
		return types.Instruction{}, err
	}
	inputs, err := packer.PackInputs(table, p.Inputs, p.Proof)
	if err != nil {
		return types.Instruction{}, err
	}

	out := outputTree(p.Inputs, p.OutputTree)
	mint := table.MustIndex(p.Mint)
	version := uint8(types.DefaultTokenDataVersion(out.TreeType))
	outputs := []TokenOutput{{
		Owner:   table.MustIndex(p.Recipient),
		Amount:  p.Amount,
		Mint:    mint,
		Version: version,
	}}
	if change := total - p.Amount; change > 0 {
		owner, err := table.Index(p.Inputs[0].Owner)
		if err != nil {
			return types.Instruction{}, err
		}
		outputs = append(outputs, TokenOutput{
			Owner:   owner,
			Amount:  change,
			Mint:    mint,
			Version: version,
		})
	}

	data := &Transfer2Data{
		OutputQueue:  table.MustIndex(out.OutputAccount()),
		MaxTopUp:     DefaultMaxTopUp,
		Proof:        proofOf(p.Proof),
		InTokenData:  inputs,
		OutTokenData: outputs,
	}
	return transfer2Instruction(p.Payer, table, data)
}

func proofOf(result *types.ProofResult) *types.ValidityProof {
	if result == nil {
		return nil
	}
	return result.Proof
}

func checkCanonicalDestination(p DecompressParams) error {
	kind := types.KindCTokenOnchain
	if p.Pool != nil {
		var err error
		if kind, err = programs.KindForProgram(p.Pool.TokenProgram); err != nil {
			return err
		}
	}
	want, _, err := programs.DeriveAssociatedAddress(p.Inputs[0].Owner, p.Mint, kind)
	if err != nil {
		return err
	}
	if !want.Equals(p.Destination) {
		return cerrors.InvalidDestination(p.Destination, want)
	}
	return nil
}
