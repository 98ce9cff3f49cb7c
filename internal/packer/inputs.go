package packer

import (
	"fmt"

	"github.com/lugondev/go-ctoken/pkg/types"
)

// PackedMerkleContext locates an input leaf by table indices.
type PackedMerkleContext struct {
	TreeIndex    uint8  `json:"tree_index"`
	QueueIndex   uint8  `json:"queue_index"`
	LeafIndex    uint32 `json:"leaf_index"`
	ProveByIndex bool   `json:"prove_by_index"`
}

// PackedTokenInput is a compressed input with every key replaced by its
// table index.
type PackedTokenInput struct {
	Owner         uint8               `json:"owner"`
	Amount        uint64              `json:"amount"`
	HasDelegate   bool                `json:"has_delegate"`
	Delegate      uint8               `json:"delegate"`
	Mint          uint8               `json:"mint"`
	Version       uint8               `json:"version"`
	MerkleContext PackedMerkleContext `json:"merkle_context"`
	RootIndex     uint16              `json:"root_index"`
}

// PackInputs resolves the indices of compressed sources against table.
// proof supplies root indices and the authoritative prove-by-index flag, in
// source order; a nil proof leaves root indices at zero and keeps the flags
// the indexer reported.
func PackInputs(table *Table, sources []types.TokenAccountSource, proof *types.ProofResult) ([]PackedTokenInput, error) {
	if proof != nil && len(proof.Accounts) != len(sources) {
		return nil, fmt.Errorf("proof covers %d accounts, want %d", len(proof.Accounts), len(sources))
	}

	out := make([]PackedTokenInput, len(sources))
	for i, s := range sources {
		if s.LoadContext == nil {
			return nil, fmt.Errorf("input %d is not a compressed account", i)
		}

		owner, err := table.Index(s.Owner)
		if err != nil {
			return nil, err
		}
		mint, err := table.Index(s.Mint)
		if err != nil {
			return nil, err
		}
		tree, err := table.Index(s.LoadContext.TreeInfo.Tree)
		if err != nil {
			return nil, err
		}
		queue, err := table.Index(s.LoadContext.TreeInfo.Queue)
		if err != nil {
			return nil, err
		}

		in := PackedTokenInput{
			Owner:   owner,
			Amount:  s.Amount,
			Mint:    mint,
			Version: uint8(versionOf(s.LoadContext)),
			MerkleContext: PackedMerkleContext{
				TreeIndex:    tree,
				QueueIndex:   queue,
				LeafIndex:    s.LoadContext.LeafIndex,
				ProveByIndex: s.LoadContext.ProveByIndex,
			},
		}
		if s.Delegate != nil {
			delegate, err := table.Index(*s.Delegate)
			if err != nil {
				return nil, err
			}
			in.HasDelegate = true
			in.Delegate = delegate
		}
		if proof != nil {
			acc := proof.Accounts[i]
			if acc.Hash != s.LoadContext.Hash {
				return nil, fmt.Errorf("proof account %d does not match input hash", i)
			}
			in.RootIndex = acc.RootIndex
			in.MerkleContext.ProveByIndex = acc.ProveByIndex
		}
		out[i] = in
	}
	return out, nil
}

func versionOf(lc *types.LoadContext) types.TokenDataVersion {
	if lc.Version != 0 {
		return lc.Version
	}
	return types.DefaultTokenDataVersion(lc.TreeInfo.TreeType)
}
