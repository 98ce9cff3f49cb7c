package types

import "fmt"

// TokenAccountKind is the representation a token balance lives in.
// The set is fixed by the protocol; consumers switch over it exhaustively.
type TokenAccountKind int

const (
	// KindCTokenOnchain is the hot light-token account.
	KindCTokenOnchain TokenAccountKind = iota
	// KindCTokenCompressed is a compressed (cold) light-token leaf.
	KindCTokenCompressed
	// KindSplOnchain is a legacy SPL Token account.
	KindSplOnchain
	// KindToken2022Onchain is a Token-2022 account.
	KindToken2022Onchain
)

// String returns the string representation of the kind.
func (k TokenAccountKind) String() string {
	switch k {
	case KindCTokenOnchain:
		return "ctoken-hot"
	case KindCTokenCompressed:
		return "ctoken-cold"
	case KindSplOnchain:
		return "spl"
	case KindToken2022Onchain:
		return "token2022"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Priority orders kinds for primary-source selection; lower sorts first.
func (k TokenAccountKind) Priority() int {
	switch k {
	case KindCTokenOnchain:
		return 0
	case KindCTokenCompressed:
		return 1
	case KindSplOnchain:
		return 2
	case KindToken2022Onchain:
		return 3
	default:
		return 4
	}
}

// IsCold reports whether the kind is a compressed representation.
func (k TokenAccountKind) IsCold() bool {
	return k == KindCTokenCompressed
}

// IsHot reports whether the kind is an ordinary on-chain account.
func (k TokenAccountKind) IsHot() bool {
	switch k {
	case KindCTokenOnchain, KindSplOnchain, KindToken2022Onchain:
		return true
	default:
		return false
	}
}

// TreeType identifies the state tree generation a compressed leaf lives in.
type TreeType uint8

const (
	// TreeTypeStateV1 is the legacy concurrent state tree.
	TreeTypeStateV1 TreeType = 1
	// TreeTypeStateV2 is the batched state tree.
	TreeTypeStateV2 TreeType = 3
)

// String returns the string representation of the tree type.
func (t TreeType) String() string {
	switch t {
	case TreeTypeStateV1:
		return "state-v1"
	case TreeTypeStateV2:
		return "state-v2"
	default:
		return fmt.Sprintf("tree-type(%d)", uint8(t))
	}
}

// TreeInfo describes a state tree and its queue.
type TreeInfo struct {
	Tree       Pubkey    `json:"tree"`
	Queue      Pubkey    `json:"queue"`
	CPIContext *Pubkey   `json:"cpi_context,omitempty"`
	TreeType   TreeType  `json:"tree_type"`
	Next       *TreeInfo `json:"next,omitempty"`
}

// OutputTree returns the tree new leaves should be appended to: the rollover
// successor when one is set, else the tree itself.
func (t TreeInfo) OutputTree() TreeInfo {
	if t.Next != nil {
		return *t.Next
	}
	return t
}

// OutputAccount returns the account outputs are written to. V2 trees append
// through their queue; V1 trees are written directly.
func (t TreeInfo) OutputAccount() Pubkey {
	if t.TreeType == TreeTypeStateV2 {
		return t.Queue
	}
	return t.Tree
}

// TokenDataVersion is the hashing scheme of compressed token data.
type TokenDataVersion uint8

const (
	TokenDataVersionV1      TokenDataVersion = 1
	TokenDataVersionV2      TokenDataVersion = 2
	TokenDataVersionShaFlat TokenDataVersion = 3
)

// DefaultTokenDataVersion returns the version new outputs use in the tree type.
func DefaultTokenDataVersion(t TreeType) TokenDataVersion {
	if t == TreeTypeStateV2 {
		return TokenDataVersionShaFlat
	}
	return TokenDataVersionV1
}

// LoadContext carries what is needed to spend a compressed leaf.
type LoadContext struct {
	TreeInfo     TreeInfo         `json:"tree_info"`
	LeafIndex    uint32           `json:"leaf_index"`
	Hash         [32]byte         `json:"hash"`
	ProveByIndex bool             `json:"prove_by_index"`
	Version      TokenDataVersion `json:"version"`
}

// AccountState is the token account state byte.
type AccountState uint8

const (
	AccountStateUninitialized AccountState = 0
	AccountStateInitialized   AccountState = 1
	AccountStateFrozen        AccountState = 2
)

// String returns the string representation of the state.
func (s AccountState) String() string {
	switch s {
	case AccountStateUninitialized:
		return "uninitialized"
	case AccountStateInitialized:
		return "initialized"
	case AccountStateFrozen:
		return "frozen"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// TokenAccountSource is one observed balance for an (owner, mint) pair.
type TokenAccountSource struct {
	Kind TokenAccountKind `json:"kind"`

	// Address is the on-chain account for hot kinds, or the owner key for
	// compressed leaves, which have no address of their own.
	Address Pubkey `json:"address"`

	Amount          uint64       `json:"amount"`
	Mint            Pubkey       `json:"mint"`
	Owner           Pubkey       `json:"owner"`
	Delegate        *Pubkey      `json:"delegate,omitempty"`
	DelegatedAmount uint64       `json:"delegated_amount"`
	State           AccountState `json:"state"`

	// LoadContext is set for compressed leaves only.
	LoadContext *LoadContext `json:"load_context,omitempty"`
}

// IsFrozen reports whether the source is frozen.
func (s *TokenAccountSource) IsFrozen() bool {
	return s.State == AccountStateFrozen
}

// TreeType returns the generation of a compressed source, or zero for hot ones.
func (s *TokenAccountSource) TreeType() TreeType {
	if s.LoadContext == nil {
		return 0
	}
	return s.LoadContext.TreeInfo.TreeType
}

// UnifiedAccountView aggregates every source found for one logical account.
type UnifiedAccountView struct {
	Address            Pubkey               `json:"address"`
	Owner              Pubkey               `json:"owner"`
	Mint               Pubkey               `json:"mint"`
	PrimarySource      TokenAccountSource   `json:"primary_source"`
	Sources            []TokenAccountSource `json:"sources"`
	TotalAmount        uint64               `json:"total_amount"`
	NeedsConsolidation bool                 `json:"needs_consolidation"`
	HasDelegate        bool                 `json:"has_delegate"`
	AnyFrozen          bool                 `json:"any_frozen"`
	IsCold             bool                 `json:"is_cold"`
}

// SourcesOf returns the sources of the given kind, in view order.
func (v *UnifiedAccountView) SourcesOf(kind TokenAccountKind) []TokenAccountSource {
	var out []TokenAccountSource
	for _, s := range v.Sources {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// ColdSources returns the compressed sources.
func (v *UnifiedAccountView) ColdSources() []TokenAccountSource {
	return v.SourcesOf(KindCTokenCompressed)
}

// HotSources returns the on-chain sources.
func (v *UnifiedAccountView) HotSources() []TokenAccountSource {
	var out []TokenAccountSource
	for _, s := range v.Sources {
		if s.Kind.IsHot() {
			out = append(out, s)
		}
	}
	return out
}

// Has reports whether any source of the given kind exists.
func (v *UnifiedAccountView) Has(kind TokenAccountKind) bool {
	for _, s := range v.Sources {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// AmountOf sums the amounts of the given kind.
func (v *UnifiedAccountView) AmountOf(kind TokenAccountKind) uint64 {
	var total uint64
	for _, s := range v.Sources {
		if s.Kind == kind {
			total += s.Amount
		}
	}
	return total
}

// TokenPoolInfo describes a custody pool bridging SPL/Token-2022 balances and
// the light-token representations.
type TokenPoolInfo struct {
	Mint          Pubkey `json:"mint"`
	Address       Pubkey `json:"address"`
	TokenProgram  Pubkey `json:"token_program"`
	PoolIndex     uint8  `json:"pool_index"`
	Bump          uint8  `json:"bump"`
	IsInitialized bool   `json:"is_initialized"`
	Balance       uint64 `json:"balance"`
}

// ValidityProof is a compressed Groth16 proof.
type ValidityProof struct {
	A [32]byte `json:"a"`
	B [64]byte `json:"b"`
	C [32]byte `json:"c"`
}

// ProofAccount is the per-input part of a proof response.
type ProofAccount struct {
	Hash         [32]byte `json:"hash"`
	RootIndex    uint16   `json:"root_index"`
	ProveByIndex bool     `json:"prove_by_index"`
	TreeInfo     TreeInfo `json:"tree_info"`
	LeafIndex    uint32   `json:"leaf_index"`
}

// ProofResult is the response of the proof service. Proof is nil when every
// input is provable by index; that is a valid outcome, not an error.
type ProofResult struct {
	Proof    *ValidityProof `json:"proof,omitempty"`
	Accounts []ProofAccount `json:"accounts"`
}

// ProofInput identifies one leaf to prove.
type ProofInput struct {
	Hash  [32]byte
	Tree  Pubkey
	Queue Pubkey
}

// ProofInputsFor builds proof inputs from compressed sources.
func ProofInputsFor(sources []TokenAccountSource) []ProofInput {
	inputs := make([]ProofInput, 0, len(sources))
	for _, s := range sources {
		if s.LoadContext == nil {
			continue
		}
		inputs = append(inputs, ProofInput{
			Hash:  s.LoadContext.Hash,
			Tree:  s.LoadContext.TreeInfo.Tree,
			Queue: s.LoadContext.TreeInfo.Queue,
		})
	}
	return inputs
}

// SumAmounts returns the total amount of the sources.
func SumAmounts(sources []TokenAccountSource) uint64 {
	var total uint64
	for _, s := range sources {
		total += s.Amount
	}
	return total
}
