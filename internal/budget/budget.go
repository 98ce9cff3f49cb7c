// Package budget estimates compute units for light-token transactions and
// builds the compute-budget instructions that request them.
//
// Estimates are additive over fixed per-driver costs and never subtract, so
// adding an input or a wrap never lowers the result.
package budget

import (
	"fmt"

	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"

	"github.com/lugondev/go-ctoken/pkg/types"
)

// Kind selects the base cost of an operation.
type Kind int

const (
	// KindDecompress covers every operation that spends compressed inputs or
	// moves tokens through a pool.
	KindDecompress Kind = iota
	// KindHotTransfer is a plain on-chain transfer.
	KindHotTransfer
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindDecompress:
		return "decompress"
	case KindHotTransfer:
		return "hot-transfer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Compute unit costs.
const (
	BaseDecompress    uint32 = 50_000
	BaseHotTransfer   uint32 = 5_000
	ValidityProofCost uint32 = 100_000
	InputCost         uint32 = 30_000
	InputByIndexCost  uint32 = 10_000
	WrapCost          uint32 = 5_000

	// MaxComputeUnits is the most a transaction may request.
	MaxComputeUnits uint32 = 1_400_000
)

// Input is the cost-relevant shape of one compressed input.
type Input struct {
	ProveByIndex bool
}

// Params describes a transaction to estimate.
type Params struct {
	Kind     Kind
	Inputs   []Input
	HasProof bool
	Wraps    int
}

// Estimate returns the compute units params need. The result is not
// clamped; Instructions clamps when building the request.
func Estimate(p Params) uint32 {
	units := BaseDecompress
	if p.Kind == KindHotTransfer {
		units = BaseHotTransfer
	}
	if p.HasProof {
		units += ValidityProofCost
	}
	for _, in := range p.Inputs {
		if in.ProveByIndex {
			units += InputByIndexCost
		} else {
			units += InputCost
		}
	}
	if p.Wraps > 0 {
		units += uint32(p.Wraps) * WrapCost
	}
	return units
}

// EstimateCount estimates a decompression with n inputs none of which is
// provable by index.
func EstimateCount(n int, hasProof bool, wraps int) uint32 {
	return Estimate(Params{
		Kind:     KindDecompress,
		Inputs:   make([]Input, n),
		HasProof: hasProof,
		Wraps:    wraps,
	})
}

// EstimateInputs estimates a decompression of sources, pricing each input by
// its prove-by-index flag.
func EstimateInputs(sources []types.TokenAccountSource, hasProof bool, wraps int) uint32 {
	inputs := make([]Input, 0, len(sources))
	for _, s := range sources {
		if s.LoadContext == nil {
			continue
		}
		inputs = append(inputs, Input{ProveByIndex: s.LoadContext.ProveByIndex})
	}
	return Estimate(Params{
		Kind:     KindDecompress,
		Inputs:   inputs,
		HasProof: hasProof,
		Wraps:    wraps,
	})
}

// Clamp caps units at MaxComputeUnits.
func Clamp(units uint32) uint32 {
	return min(units, MaxComputeUnits)
}

// Instructions returns the compute-budget instructions requesting units,
// plus a price instruction when microLamports is non-zero.
func Instructions(units uint32, microLamports uint64) ([]types.Instruction, error) {
	limit, err := computebudget.NewSetComputeUnitLimitInstructionBuilder().
		SetUnits(Clamp(units)).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute unit limit instruction: %w", err)
	}
	ix, err := types.FromSolanaInstruction(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to encode compute unit limit instruction: %w", err)
	}
	out := []types.Instruction{ix}

	if microLamports > 0 {
		price, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
			SetMicroLamports(microLamports).
			ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("failed to build compute unit price instruction: %w", err)
		}
		ix, err := types.FromSolanaInstruction(price)
		if err != nil {
			return nil, fmt.Errorf("failed to encode compute unit price instruction: %w", err)
		}
		out = append(out, ix)
	}
	return out, nil
}
