package view

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/pkg/types"
)

// Token account layout shared by SPL Token, Token-2022 and the light-token
// hot account. Extensions, when present, follow byte 165.
const (
	TokenAccountSize = 165

	offsetMint            = 0
	offsetOwner           = 32
	offsetAmount          = 64
	offsetDelegate        = 72
	offsetState           = 108
	offsetIsNative        = 109
	offsetDelegatedAmount = 121
	offsetCloseAuthority  = 129

	amountEnd = offsetAmount + 8
)

// ReadAmount reads the balance at offset 64.
func ReadAmount(data []byte) (uint64, error) {
	if len(data) < amountEnd {
		return 0, cerrors.InvalidAccountData("token account", len(data), amountEnd)
	}
	return binary.LittleEndian.Uint64(data[offsetAmount:amountEnd]), nil
}

// TokenAccountView reads fields out of a raw token account buffer.
type TokenAccountView struct {
	buffer []byte
}

// NewTokenAccountView validates the buffer length and returns a view over it.
func NewTokenAccountView(buffer []byte) (*TokenAccountView, error) {
	if len(buffer) < TokenAccountSize {
		return nil, cerrors.InvalidAccountData("token account", len(buffer), TokenAccountSize)
	}
	return &TokenAccountView{buffer: buffer}, nil
}

func (v *TokenAccountView) Mint() solana.PublicKey {
	return solana.PublicKeyFromBytes(v.buffer[offsetMint : offsetMint+32])
}

func (v *TokenAccountView) Owner() solana.PublicKey {
	return solana.PublicKeyFromBytes(v.buffer[offsetOwner : offsetOwner+32])
}

func (v *TokenAccountView) Amount() uint64 {
	return binary.LittleEndian.Uint64(v.buffer[offsetAmount:amountEnd])
}

// Delegate returns the delegate when the COption tag is set.
func (v *TokenAccountView) Delegate() *solana.PublicKey {
	return readCOptionKey(v.buffer, offsetDelegate)
}

func (v *TokenAccountView) State() types.AccountState {
	return types.AccountState(v.buffer[offsetState])
}

// IsNative returns the rent-exempt reserve of a wrapped SOL account.
func (v *TokenAccountView) IsNative() *uint64 {
	if binary.LittleEndian.Uint32(v.buffer[offsetIsNative:offsetIsNative+4]) == 0 {
		return nil
	}
	reserve := binary.LittleEndian.Uint64(v.buffer[offsetIsNative+4 : offsetIsNative+12])
	return &reserve
}

func (v *TokenAccountView) DelegatedAmount() uint64 {
	return binary.LittleEndian.Uint64(v.buffer[offsetDelegatedAmount : offsetDelegatedAmount+8])
}

func (v *TokenAccountView) CloseAuthority() *solana.PublicKey {
	return readCOptionKey(v.buffer, offsetCloseAuthority)
}

// Extensions returns the bytes after the base layout.
func (v *TokenAccountView) Extensions() []byte {
	if len(v.buffer) <= TokenAccountSize {
		return nil
	}
	return v.buffer[TokenAccountSize:]
}

// ToSource normalizes the account into a source of the given kind.
func (v *TokenAccountView) ToSource(kind types.TokenAccountKind, address solana.PublicKey) types.TokenAccountSource {
	return types.TokenAccountSource{
		Kind:            kind,
		Address:         address,
		Amount:          v.Amount(),
		Mint:            v.Mint(),
		Owner:           v.Owner(),
		Delegate:        v.Delegate(),
		DelegatedAmount: v.DelegatedAmount(),
		State:           v.State(),
	}
}

func readCOptionKey(buf []byte, offset int) *solana.PublicKey {
	if binary.LittleEndian.Uint32(buf[offset:offset+4]) == 0 {
		return nil
	}
	key := solana.PublicKeyFromBytes(buf[offset+4 : offset+36])
	return &key
}

// Compressed token data layout. The delegate slot is always 32 bytes wide
// whether or not the flag is set.
const (
	CompressedTokenDataPrefix = 32 + 32 + 8 + 1 + 32 + 1 + 1

	cOffsetMint         = 0
	cOffsetOwner        = 32
	cOffsetAmount       = 64
	cOffsetDelegateFlag = 72
	cOffsetDelegate     = 73
	cOffsetState        = 105
	cOffsetTLVFlag      = 106
	cOffsetTLV          = 107

	// ExtensionCompressedOnly carries the delegated amount of leaves created
	// by compress-and-close.
	ExtensionCompressedOnly = 31

	extensionTokenMetadata      = 19
	extensionTransferFee        = 29
	extensionTransferHook       = 30
	extensionCompressible       = 32
	compressedOnlyExtensionSize = 17
)

// extensionDataSize returns the fixed data width of a TLV entry, or false for
// variable-width and unknown entries.
func extensionDataSize(disc byte) (int, bool) {
	switch {
	case disc == extensionTokenMetadata, disc == extensionCompressible:
		return 0, false
	case disc <= 28:
		return 0, true
	case disc == extensionTransferFee:
		return 8, true
	case disc == extensionTransferHook:
		return 1, true
	case disc == ExtensionCompressedOnly:
		return compressedOnlyExtensionSize, true
	}
	return 0, false
}

// CompressedTokenDataView reads compressed token data.
type CompressedTokenDataView struct {
	buffer []byte
}

// NewCompressedTokenDataView validates the fixed prefix and returns a view.
func NewCompressedTokenDataView(buffer []byte) (*CompressedTokenDataView, error) {
	if len(buffer) < CompressedTokenDataPrefix {
		return nil, cerrors.InvalidAccountData("compressed token", len(buffer), CompressedTokenDataPrefix)
	}
	return &CompressedTokenDataView{buffer: buffer}, nil
}

func (v *CompressedTokenDataView) Mint() solana.PublicKey {
	return solana.PublicKeyFromBytes(v.buffer[cOffsetMint : cOffsetMint+32])
}

func (v *CompressedTokenDataView) Owner() solana.PublicKey {
	return solana.PublicKeyFromBytes(v.buffer[cOffsetOwner : cOffsetOwner+32])
}

func (v *CompressedTokenDataView) Amount() uint64 {
	return binary.LittleEndian.Uint64(v.buffer[cOffsetAmount : cOffsetAmount+8])
}

func (v *CompressedTokenDataView) Delegate() *solana.PublicKey {
	if v.buffer[cOffsetDelegateFlag] == 0 {
		return nil
	}
	key := solana.PublicKeyFromBytes(v.buffer[cOffsetDelegate : cOffsetDelegate+32])
	return &key
}

func (v *CompressedTokenDataView) State() types.AccountState {
	return types.AccountState(v.buffer[cOffsetState])
}

// TLV returns the raw extension bytes, or nil when the flag is unset.
func (v *CompressedTokenDataView) TLV() []byte {
	if v.buffer[cOffsetTLVFlag] == 0 {
		return nil
	}
	return v.buffer[cOffsetTLV:]
}

// DelegatedAmount returns the amount the delegate may spend: the value of the
// CompressedOnly extension when present, else the full amount if a delegate is
// set, else zero.
func (v *CompressedTokenDataView) DelegatedAmount() uint64 {
	if amount, ok := compressedOnlyDelegatedAmount(v.TLV()); ok {
		return amount
	}
	if v.Delegate() != nil {
		return v.Amount()
	}
	return 0
}

// ToSource normalizes the leaf into a compressed source.
func (v *CompressedTokenDataView) ToSource(ctx types.LoadContext) types.TokenAccountSource {
	owner := v.Owner()
	return types.TokenAccountSource{
		Kind:            types.KindCTokenCompressed,
		Address:         owner,
		Amount:          v.Amount(),
		Mint:            v.Mint(),
		Owner:           owner,
		Delegate:        v.Delegate(),
		DelegatedAmount: v.DelegatedAmount(),
		State:           v.State(),
		LoadContext:     &ctx,
	}
}

// The TLV is a borsh Vec<ExtensionStruct>: u32 length, then a one-byte
// discriminator and the entry data. Fixed-width entries before CompressedOnly
// are skipped; a variable-width entry stops the scan.
func compressedOnlyDelegatedAmount(tlv []byte) (uint64, bool) {
	if len(tlv) < 4 {
		return 0, false
	}
	count := binary.LittleEndian.Uint32(tlv[:4])
	offset := 4
	for i := uint32(0); i < count; i++ {
		if offset >= len(tlv) {
			return 0, false
		}
		disc := tlv[offset]
		offset++
		if disc == ExtensionCompressedOnly {
			if offset+8 > len(tlv) {
				return 0, false
			}
			return binary.LittleEndian.Uint64(tlv[offset : offset+8]), true
		}
		size, ok := extensionDataSize(disc)
		if !ok {
			return 0, false
		}
		offset += size
	}
	return 0, false
}
