package indexer

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/internal/programs"
	"github.com/lugondev/go-ctoken/pkg/types"
	"github.com/lugondev/go-ctoken/pkg/view"
)

// Photon wraps every result in {context, value}.
type contextResult[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

type tokenAccountList struct {
	Cursor *string            `json:"cursor"`
	Items  []tokenAccountItem `json:"items"`
}

type tokenAccountItem struct {
	Account compressedAccount `json:"account"`
}

type compressedAccount struct {
	Hash          string        `json:"hash"`
	Address       *string       `json:"address"`
	Data          *accountData  `json:"data"`
	Lamports      flexUint64    `json:"lamports"`
	LeafIndex     uint32        `json:"leafIndex"`
	Owner         string        `json:"owner"`
	ProveByIndex  bool          `json:"proveByIndex"`
	MerkleContext merkleContext `json:"merkleContext"`
}

type accountData struct {
	Discriminator flexUint64 `json:"discriminator"`
	Data          string     `json:"data"`
	DataHash      string     `json:"dataHash"`
}

type merkleContext struct {
	Tree            string         `json:"tree"`
	Queue           string         `json:"queue"`
	TreeType        flexTreeType   `json:"treeType"`
	CPIContext      *string        `json:"cpiContext"`
	NextTreeContext *merkleContext `json:"nextTreeContext"`
}

type validityProofResult struct {
	CompressedProof *compressedProof `json:"compressedProof"`
	Accounts        []proofAccount   `json:"accounts"`
}

type compressedProof struct {
	A []byte `json:"a"`
	B []byte `json:"b"`
	C []byte `json:"c"`
}

// Photon sends the proof components as JSON number arrays, which
// encoding/json does not decode into []byte directly.
func (p *compressedProof) UnmarshalJSON(data []byte) error {
	var raw struct {
		A []uint8 `json:"a"`
		B []uint8 `json:"b"`
		C []uint8 `json:"c"`
	}
	var ints struct {
		A []int `json:"a"`
		B []int `json:"b"`
		C []int `json:"c"`
	}
	if err := json.Unmarshal(data, &ints); err != nil {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		p.A, p.B, p.C = raw.A, raw.B, raw.C
		return nil
	}
	var err error
	if p.A, err = intsToBytes(ints.A); err != nil {
		return err
	}
	if p.B, err = intsToBytes(ints.B); err != nil {
		return err
	}
	p.C, err = intsToBytes(ints.C)
	return err
}

type proofAccount struct {
	Hash      string `json:"hash"`
	Root      string `json:"root"`
	RootIndex struct {
		RootIndex    uint16 `json:"rootIndex"`
		ProveByIndex bool   `json:"proveByIndex"`
	} `json:"rootIndex"`
	MerkleContext merkleContext `json:"merkleContext"`
	LeafIndex     uint32        `json:"leafIndex"`
}

type ownerParams struct {
	Owner  string  `json:"owner"`
	Mint   string  `json:"mint,omitempty"`
	Cursor *string `json:"cursor,omitempty"`
	Limit  int     `json:"limit,omitempty"`
}

type delegateParams struct {
	Delegate string  `json:"delegate"`
	Mint     string  `json:"mint,omitempty"`
	Cursor   *string `json:"cursor,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

type proofParams struct {
	Hashes                []string `json:"hashes"`
	NewAddressesWithTrees []string `json:"newAddressesWithTrees"`
}

// flexUint64 accepts u64 values sent either as JSON numbers or strings.
type flexUint64 uint64

func (f *flexUint64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %s: %w", string(data), err)
	}
	*f = flexUint64(v)
	return nil
}

// flexTreeType accepts the tree type as its numeric tag or its name.
type flexTreeType types.TreeType

func (f *flexTreeType) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch strings.ToLower(strings.ReplaceAll(s, "_", "")) {
	case "statev1", "1":
		*f = flexTreeType(types.TreeTypeStateV1)
	case "statev2", "3":
		*f = flexTreeType(types.TreeTypeStateV2)
	default:
		v, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return fmt.Errorf("unknown tree type %s", string(data))
		}
		*f = flexTreeType(v)
	}
	return nil
}

func intsToBytes(in []int) ([]byte, error) {
	out := make([]byte, len(in))
	for i, v := range in {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

func decodeHash(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := base58.Decode(s)
	if err != nil {
		return out, cerrors.InvalidResponse(fmt.Sprintf("invalid hash %q: %v", s, err))
	}
	if len(raw) != 32 {
		return out, cerrors.InvalidResponse(fmt.Sprintf("hash %q is %d bytes, want 32", s, len(raw)))
	}
	copy(out[:], raw)
	return out, nil
}

func decodeKey(s string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, cerrors.InvalidResponse(fmt.Sprintf("invalid public key %q: %v", s, err))
	}
	return key, nil
}

func (m merkleContext) toTreeInfo() (types.TreeInfo, error) {
	tree, err := decodeKey(m.Tree)
	if err != nil {
		return types.TreeInfo{}, err
	}
	queue, err := decodeKey(m.Queue)
	if err != nil {
		return types.TreeInfo{}, err
	}
	info := types.TreeInfo{
		Tree:     tree,
		Queue:    queue,
		TreeType: types.TreeType(m.TreeType),
	}
	if m.CPIContext != nil && *m.CPIContext != "" {
		cpi, err := decodeKey(*m.CPIContext)
		if err != nil {
			return types.TreeInfo{}, err
		}
		info.CPIContext = &cpi
	}
	if m.NextTreeContext != nil {
		next, err := m.NextTreeContext.toTreeInfo()
		if err != nil {
			return types.TreeInfo{}, err
		}
		info.Next = &next
	}
	return info, nil
}

// Token data discriminators as stored on the compressed account.
var (
	discriminatorV1      = [8]byte{2, 0, 0, 0, 0, 0, 0, 0}
	discriminatorV2      = [8]byte{0, 0, 0, 0, 0, 0, 0, 3}
	discriminatorShaFlat = [8]byte{0, 0, 0, 0, 0, 0, 0, 4}
)

// versionFor maps the account discriminator to the token data version,
// falling back to the tree's default for unknown values.
func versionFor(disc uint64, treeType types.TreeType) types.TokenDataVersion {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], disc)
	switch b {
	case discriminatorV1:
		return types.TokenDataVersionV1
	case discriminatorV2:
		return types.TokenDataVersionV2
	case discriminatorShaFlat:
		return types.TokenDataVersionShaFlat
	default:
		return types.DefaultTokenDataVersion(treeType)
	}
}

// toSource converts an indexer item. ok is false for items that are not
// light-token leaves or carry no data; those are skipped, not failed.
func (a compressedAccount) toSource() (types.TokenAccountSource, bool, error) {
	if a.Data == nil || a.Data.Data == "" {
		return types.TokenAccountSource{}, false, nil
	}
	owner, err := decodeKey(a.Owner)
	if err != nil {
		return types.TokenAccountSource{}, false, err
	}
	if !owner.Equals(programs.LightTokenProgramID) {
		return types.TokenAccountSource{}, false, nil
	}

	raw, err := base64.StdEncoding.DecodeString(a.Data.Data)
	if err != nil {
		return types.TokenAccountSource{}, false, cerrors.InvalidResponse(fmt.Sprintf("invalid account data encoding: %v", err))
	}
	data, err := view.NewCompressedTokenDataView(raw)
	if err != nil {
		return types.TokenAccountSource{}, false, err
	}

	hash, err := decodeHash(a.Hash)
	if err != nil {
		return types.TokenAccountSource{}, false, err
	}
	tree, err := a.MerkleContext.toTreeInfo()
	if err != nil {
		return types.TokenAccountSource{}, false, err
	}

	return data.ToSource(types.LoadContext{
		TreeInfo:     tree,
		LeafIndex:    a.LeafIndex,
		Hash:         hash,
		ProveByIndex: a.ProveByIndex,
		Version:      versionFor(uint64(a.Data.Discriminator), tree.TreeType),
	}), true, nil
}
