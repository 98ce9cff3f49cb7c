// Package packer builds the packed account list an instruction payload refers
// to by index.
//
// Keys are staged in a Builder by group and frozen into a Table. The table
// orders groups as trees, queues, mints, owners, token accounts, programs;
// within a group keys keep first-seen order, and a key re-added under another
// group stays in its first group. Indices are stable once built.
package packer

import (
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"

	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/pkg/types"
)

// MaxPackedAccounts is the most entries a table can index with one byte.
const MaxPackedAccounts = 256

// Group is the ordering class of a packed key.
type Group int

const (
	GroupTree Group = iota
	GroupQueue
	GroupMint
	GroupOwner
	GroupTokenAccount
	GroupProgram
)

// String returns the string representation of the group.
func (g Group) String() string {
	switch g {
	case GroupTree:
		return "tree"
	case GroupQueue:
		return "queue"
	case GroupMint:
		return "mint"
	case GroupOwner:
		return "owner"
	case GroupTokenAccount:
		return "token-account"
	case GroupProgram:
		return "program"
	default:
		return fmt.Sprintf("group(%d)", int(g))
	}
}

// Entry is one packed key with its account-meta flags.
type Entry struct {
	Pubkey   solana.PublicKey
	Group    Group
	Index    uint8
	Writable bool
	Signer   bool

	seq int
}

// Builder stages keys before the order is frozen. Adding a key twice keeps
// one entry and merges the flags.
type Builder struct {
	positions map[solana.PublicKey]int
	entries   []Entry
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{positions: make(map[solana.PublicKey]int)}
}

// Add stages key under group. Flags are OR-ed into an existing entry.
func (b *Builder) Add(key solana.PublicKey, group Group, writable, signer bool) {
	if pos, ok := b.positions[key]; ok {
		e := &b.entries[pos]
		e.Writable = e.Writable || writable
		e.Signer = e.Signer || signer
		return
	}
	b.positions[key] = len(b.entries)
	b.entries = append(b.entries, Entry{
		Pubkey:   key,
		Group:    group,
		Writable: writable,
		Signer:   signer,
		seq:      len(b.entries),
	})
}

// AddTree stages a state tree. Trees are writable.
func (b *Builder) AddTree(key solana.PublicKey) { b.Add(key, GroupTree, true, false) }

// AddQueue stages an output or nullifier queue. Queues are writable.
func (b *Builder) AddQueue(key solana.PublicKey) { b.Add(key, GroupQueue, true, false) }

// AddMint stages a mint. Mints are read-only.
func (b *Builder) AddMint(key solana.PublicKey) { b.Add(key, GroupMint, false, false) }

// AddOwner stages an owner or authority, optionally as signer.
func (b *Builder) AddOwner(key solana.PublicKey, signer bool) { b.Add(key, GroupOwner, false, signer) }

// AddTokenAccount stages a token account; accounts whose balance changes are writable.
func (b *Builder) AddTokenAccount(key solana.PublicKey, writable bool) {
	b.Add(key, GroupTokenAccount, writable, false)
}

// AddProgram stages a program ID. Programs are never writable.
func (b *Builder) AddProgram(key solana.PublicKey) { b.Add(key, GroupProgram, false, false) }

// AddReadonly stages any other read-only key after the token accounts.
func (b *Builder) AddReadonly(key solana.PublicKey) { b.Add(key, GroupTokenAccount, false, false) }

// AddTreeInfo stages the tree and queue of info.
func (b *Builder) AddTreeInfo(info types.TreeInfo) {
	b.AddTree(info.Tree)
	b.AddQueue(info.Queue)
}

// AddInputs stages every key compressed inputs refer to: their trees and
// queues, mints, owners and delegates. The owner signs unless authority is a
// delegate, in which case only the authority signs.
func (b *Builder) AddInputs(sources []types.TokenAccountSource, authority solana.PublicKey) {
	for _, s := range sources {
		if s.LoadContext != nil {
			b.AddTree(s.LoadContext.TreeInfo.Tree)
		}
	}
	for _, s := range sources {
		if s.LoadContext != nil {
			b.AddQueue(s.LoadContext.TreeInfo.Queue)
		}
	}
	for _, s := range sources {
		b.AddMint(s.Mint)
	}
	for _, s := range sources {
		b.AddOwner(s.Owner, s.Owner.Equals(authority))
		if s.Delegate != nil {
			b.AddOwner(*s.Delegate, s.Delegate.Equals(authority))
		}
	}
}

// Len returns the number of distinct staged keys.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Build freezes the order and assigns indices.
func (b *Builder) Build() (*Table, error) {
	if len(b.entries) > MaxPackedAccounts {
		return nil, fmt.Errorf("packed accounts: %d entries exceed the maximum of %d", len(b.entries), MaxPackedAccounts)
	}

	entries := make([]Entry, len(b.entries))
	copy(entries, b.entries)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Group != entries[j].Group {
			return entries[i].Group < entries[j].Group
		}
		return entries[i].seq < entries[j].seq
	})

	index := make(map[solana.PublicKey]uint8, len(entries))
	for i := range entries {
		entries[i].Index = uint8(i)
		index[entries[i].Pubkey] = uint8(i)
	}
	return &Table{entries: entries, index: index}, nil
}

// Table is a frozen packed account list.
type Table struct {
	entries []Entry
	index   map[solana.PublicKey]uint8
}

// Index returns the position of key. A missing key is a caller defect and
// yields an UnpackedReference error.
func (t *Table) Index(key solana.PublicKey) (uint8, error) {
	i, ok := t.index[key]
	if !ok {
		return 0, cerrors.UnpackedReference(key)
	}
	return i, nil
}

// MustIndex is Index for keys the caller staged itself.
func (t *Table) MustIndex(key solana.PublicKey) uint8 {
	i, err := t.Index(key)
	if err != nil {
		panic(err)
	}
	return i
}

// Has reports whether key is packed.
func (t *Table) Has(key solana.PublicKey) bool {
	_, ok := t.index[key]
	return ok
}

// Len returns the number of packed keys.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns the entries in index order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Entry returns the entry at index i.
func (t *Table) Entry(i uint8) Entry {
	return t.entries[i]
}

// AccountMetas returns one meta per entry in index order.
func (t *Table) AccountMetas() []types.AccountMeta {
	metas := make([]types.AccountMeta, len(t.entries))
	for i, e := range t.entries {
		metas[i] = types.NewAccountMeta(e.Pubkey, e.Writable, e.Signer)
	}
	return metas
}
