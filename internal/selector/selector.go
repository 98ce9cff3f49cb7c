// Package selector picks compressed inputs for an amount and token pools for
// wrap and unwrap.
//
// Input selection is a greedy prefix: candidates are taken in the given order
// until the running sum covers the target. It never backtracks, so the chosen
// set is not necessarily the smallest one; fewer proof inputs and a
// predictable transaction shape matter more than minimal change.
package selector

import (
	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/pkg/types"
)

const (
	// DefaultMaxCardinality bounds the inputs of one selection.
	DefaultMaxCardinality = 4
	// DefaultChunkSize is the number of inputs one Transfer2 instruction accepts.
	DefaultChunkSize = 8
)

// Selection is the result of input selection.
type Selection struct {
	Chosen       []types.TokenAccountSource `json:"chosen"`
	Requested    uint64                     `json:"requested"`
	Total        uint64                     `json:"total"`
	ChangeAmount uint64                     `json:"change_amount"`
	Generation   types.TreeType             `json:"generation"`
}

// SelectInputs accumulates candidates in order until their sum reaches
// target, using at most maxCardinality non-zero candidates. It fails with
// InsufficientBalance, reporting the sum of the reachable prefix, rather than
// return a partial selection.
func SelectInputs(candidates []types.TokenAccountSource, target uint64, maxCardinality int) (*Selection, error) {
	if target == 0 {
		return nil, cerrors.ZeroAmount("select inputs")
	}
	if maxCardinality <= 0 {
		maxCardinality = DefaultMaxCardinality
	}

	sel := &Selection{Requested: target}
	for _, c := range candidates {
		if c.Amount == 0 {
			continue
		}
		if len(sel.Chosen) == maxCardinality {
			break
		}
		sel.Chosen = append(sel.Chosen, c)
		sel.Total = addSaturating(sel.Total, c.Amount)
		if sel.Total >= target {
			sel.ChangeAmount = sel.Total - target
			sel.Generation = generationOf(sel.Chosen)
			return sel, nil
		}
	}
	return nil, cerrors.InsufficientBalance(target, sel.Total)
}

// SelectAll returns every non-zero candidate for a full-balance operation.
// More than maxCardinality fragments fail with TooManyInputs; the caller must
// merge first.
func SelectAll(candidates []types.TokenAccountSource, maxCardinality int) (*Selection, error) {
	if maxCardinality <= 0 {
		maxCardinality = DefaultMaxCardinality
	}

	sel := &Selection{}
	for _, c := range candidates {
		if c.Amount == 0 {
			continue
		}
		sel.Chosen = append(sel.Chosen, c)
		sel.Total = addSaturating(sel.Total, c.Amount)
	}
	if len(sel.Chosen) == 0 {
		return nil, cerrors.NoInputAccounts("select all")
	}
	if len(sel.Chosen) > maxCardinality {
		return nil, cerrors.TooManyInputs(len(sel.Chosen), maxCardinality)
	}
	sel.Requested = sel.Total
	sel.Generation = generationOf(sel.Chosen)
	return sel, nil
}

// SelectByGeneration selects from a single tree generation: V2 alone when it
// covers target, else V1 alone. When only a mix of both would cover target it
// fails with CrossGenerationSelection.
func SelectByGeneration(candidates []types.TokenAccountSource, target uint64, maxCardinality int) (*Selection, error) {
	if target == 0 {
		return nil, cerrors.ZeroAmount("select inputs")
	}

	byGen := PartitionByGeneration(candidates)
	var best uint64
	for _, gen := range []types.TreeType{types.TreeTypeStateV2, types.TreeTypeStateV1} {
		group := byGen[gen]
		if len(group) == 0 {
			continue
		}
		sel, err := SelectInputs(group, target, maxCardinality)
		if err == nil {
			return sel, nil
		}
		if available, ok := availableOf(err); ok && available > best {
			best = available
		}
	}

	if mixed, err := SelectInputs(candidates, target, maxCardinality); err == nil {
		if err := ValidateSingleGeneration(mixed.Chosen); err != nil {
			return nil, err
		}
	}
	return nil, cerrors.InsufficientBalance(target, best)
}

// PartitionByGeneration groups candidates by tree type, keeping order within
// each group. Sources without a load context are dropped.
func PartitionByGeneration(candidates []types.TokenAccountSource) map[types.TreeType][]types.TokenAccountSource {
	out := make(map[types.TreeType][]types.TokenAccountSource)
	for _, c := range candidates {
		if c.LoadContext == nil {
			continue
		}
		gen := c.TreeType()
		out[gen] = append(out[gen], c)
	}
	return out
}

// ValidateSingleGeneration fails when chosen spans more than one tree generation.
func ValidateSingleGeneration(chosen []types.TokenAccountSource) error {
	var (
		seen  []string
		first types.TreeType
	)
	for i, c := range chosen {
		gen := c.TreeType()
		if i == 0 {
			first = gen
			seen = append(seen, gen.String())
			continue
		}
		if gen != first {
			seen = append(seen, gen.String())
			return cerrors.CrossGenerationSelection(seen...)
		}
	}
	return nil
}

// ChunkInputs splits sources into consecutive batches of at most size.
func ChunkInputs(sources []types.TokenAccountSource, size int) [][]types.TokenAccountSource {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]types.TokenAccountSource
	for start := 0; start < len(sources); start += size {
		end := min(start+size, len(sources))
		chunks = append(chunks, sources[start:end])
	}
	return chunks
}

func generationOf(chosen []types.TokenAccountSource) types.TreeType {
	if len(chosen) == 0 {
		return 0
	}
	return chosen[0].TreeType()
}

func availableOf(err error) (uint64, bool) {
	var cerr *cerrors.CTokenError
	if !cerrors.As(err, &cerr) {
		return 0, false
	}
	v, ok := cerr.Detail("available")
	if !ok {
		return 0, false
	}
	available, ok := v.(uint64)
	return available, ok
}

func addSaturating(a, b uint64) uint64 {
	if sum := a + b; sum >= a {
		return sum
	}
	return ^uint64(0)
}
