// Package instruction builds light-token instructions.
//
// Builders are pure: every address, amount, proof and pool they need is
// passed in, and they return a types.Instruction without touching the
// network. Compressed inputs and pool movements go through the Transfer2
// instruction, whose payload refers to accounts by their index in a
// packer.Table placed after the fixed accounts.
package instruction

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/lugondev/go-ctoken/internal/packer"
	"github.com/lugondev/go-ctoken/pkg/types"
)

// Light-token instruction discriminators.
const (
	DiscriminatorHotTransfer                uint8 = 3
	DiscriminatorCreateAssociatedAccount    uint8 = 100
	DiscriminatorTransfer2                  uint8 = 101
	DiscriminatorCreateAssociatedIdempotent uint8 = 102
)

// DefaultMaxTopUp leaves rent top-ups uncapped.
const DefaultMaxTopUp uint16 = 65535

// CompressionMode is the direction of a Transfer2 compression.
type CompressionMode uint8

const (
	// ModeCompress moves tokens out of an on-chain account.
	ModeCompress CompressionMode = 0
	// ModeDecompress moves tokens into an on-chain account.
	ModeDecompress CompressionMode = 1
	// ModeCompressAndClose compresses the full balance and closes the account.
	ModeCompressAndClose CompressionMode = 2
)

// String returns the string representation of the mode.
func (m CompressionMode) String() string {
	switch m {
	case ModeCompress:
		return "compress"
	case ModeDecompress:
		return "decompress"
	case ModeCompressAndClose:
		return "compress-and-close"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Compression moves Amount between an on-chain account and the compressed
// balance of the instruction. Pool fields are set when the account is an
// SPL or Token-2022 account, whose tokens are held by the pool.
type Compression struct {
	Mode              CompressionMode `json:"mode"`
	Amount            uint64          `json:"amount"`
	Mint              uint8           `json:"mint"`
	SourceOrRecipient uint8           `json:"source_or_recipient"`
	Authority         uint8           `json:"authority"`
	PoolAccountIndex  uint8           `json:"pool_account_index"`
	PoolIndex         uint8           `json:"pool_index"`
	Bump              uint8           `json:"bump"`
	Decimals          uint8           `json:"decimals"`
}

// CPIContext is the optional CPI context section.
type CPIContext struct {
	SetContext             bool  `json:"set_context"`
	FirstSetContext        bool  `json:"first_set_context"`
	CPIContextAccountIndex uint8 `json:"cpi_context_account_index"`
}

// TokenOutput is a new compressed token leaf.
type TokenOutput struct {
	Owner       uint8  `json:"owner"`
	Amount      uint64 `json:"amount"`
	HasDelegate bool   `json:"has_delegate"`
	Delegate    uint8  `json:"delegate"`
	Mint        uint8  `json:"mint"`
	Version     uint8  `json:"version"`
}

// Transfer2Data is the Transfer2 payload after the discriminator.
// A nil Compressions encodes as None, an empty non-nil one as an empty vector.
// Token extension TLVs are not produced and always encode as None.
type Transfer2Data struct {
	WithTransactionHash       bool                      `json:"with_transaction_hash"`
	WithLamportsChangeTreeIdx bool                      `json:"with_lamports_change_tree_idx"`
	LamportsChangeTreeIndex   uint8                     `json:"lamports_change_tree_index"`
	LamportsChangeOwnerIndex  uint8                     `json:"lamports_change_owner_index"`
	OutputQueue               uint8                     `json:"output_queue"`
	MaxTopUp                  uint16                    `json:"max_top_up"`
	CPIContext                *CPIContext               `json:"cpi_context,omitempty"`
	Compressions              []Compression             `json:"compressions,omitempty"`
	Proof                     *types.ValidityProof      `json:"proof,omitempty"`
	InTokenData               []packer.PackedTokenInput `json:"in_token_data"`
	OutTokenData              []TokenOutput             `json:"out_token_data"`
	InLamports                []uint64                  `json:"in_lamports,omitempty"`
	OutLamports               []uint64                  `json:"out_lamports,omitempty"`
}

// Encode returns the discriminator followed by the payload.
func (d *Transfer2Data) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteUint8(DiscriminatorTransfer2); err != nil {
		return nil, err
	}
	if err := d.MarshalWithEncoder(enc); err != nil {
		return nil, fmt.Errorf("failed to encode transfer2 data: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeTransfer2 parses instruction data produced by Encode.
func DecodeTransfer2(data []byte) (*Transfer2Data, error) {
	if len(data) == 0 || data[0] != DiscriminatorTransfer2 {
		return nil, fmt.Errorf("not a transfer2 instruction")
	}
	dec := bin.NewBorshDecoder(data[1:])
	d := new(Transfer2Data)
	if err := d.UnmarshalWithDecoder(dec); err != nil {
		return nil, fmt.Errorf("failed to decode transfer2 data: %w", err)
	}
	if dec.Remaining() != 0 {
		return nil, fmt.Errorf("failed to decode transfer2 data: %d trailing bytes", dec.Remaining())
	}
	return d, nil
}

func (d Transfer2Data) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBool(d.WithTransactionHash); err != nil {
		return err
	}
	if err := encoder.WriteBool(d.WithLamportsChangeTreeIdx); err != nil {
		return err
	}
	if err := encoder.WriteUint8(d.LamportsChangeTreeIndex); err != nil {
		return err
	}
	if err := encoder.WriteUint8(d.LamportsChangeOwnerIndex); err != nil {
		return err
	}
	if err := encoder.WriteUint8(d.OutputQueue); err != nil {
		return err
	}
	if err := encoder.WriteUint16(d.MaxTopUp, bin.LE); err != nil {
		return err
	}

	if err := encoder.WriteOption(d.CPIContext != nil); err != nil {
		return err
	}
	if d.CPIContext != nil {
		if err := encoder.WriteBool(d.CPIContext.SetContext); err != nil {
			return err
		}
		if err := encoder.WriteBool(d.CPIContext.FirstSetContext); err != nil {
			return err
		}
		if err := encoder.WriteUint8(d.CPIContext.CPIContextAccountIndex); err != nil {
			return err
		}
	}

	if err := encoder.WriteOption(d.Compressions != nil); err != nil {
		return err
	}
	if d.Compressions != nil {
		if err := encoder.WriteUint32(uint32(len(d.Compressions)), bin.LE); err != nil {
			return err
		}
		for _, c := range d.Compressions {
			if err := writeCompression(encoder, c); err != nil {
				return err
			}
		}
	}

	if err := encoder.WriteOption(d.Proof != nil); err != nil {
		return err
	}
	if d.Proof != nil {
		for _, part := range [][]byte{d.Proof.A[:], d.Proof.B[:], d.Proof.C[:]} {
			if err := encoder.WriteBytes(part, false); err != nil {
				return err
			}
		}
	}

	if err := encoder.WriteUint32(uint32(len(d.InTokenData)), bin.LE); err != nil {
		return err
	}
	for _, in := range d.InTokenData {
		if err := writeInput(encoder, in); err != nil {
			return err
		}
	}

	if err := encoder.WriteUint32(uint32(len(d.OutTokenData)), bin.LE); err != nil {
		return err
	}
	for _, out := range d.OutTokenData {
		if err := writeOutput(encoder, out); err != nil {
			return err
		}
	}

	for _, lamports := range [][]uint64{d.InLamports, d.OutLamports} {
		if err := writeOptionalU64s(encoder, lamports); err != nil {
			return err
		}
	}

	// in_tlv, out_tlv
	if err := encoder.WriteOption(false); err != nil {
		return err
	}
	return encoder.WriteOption(false)
}

func (d *Transfer2Data) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if d.WithTransactionHash, err = decoder.ReadBool(); err != nil {
		return err
	}
	if d.WithLamportsChangeTreeIdx, err = decoder.ReadBool(); err != nil {
		return err
	}
	if d.LamportsChangeTreeIndex, err = decoder.ReadUint8(); err != nil {
		return err
	}
	if d.LamportsChangeOwnerIndex, err = decoder.ReadUint8(); err != nil {
		return err
	}
	if d.OutputQueue, err = decoder.ReadUint8(); err != nil {
		return err
	}
	if d.MaxTopUp, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}

	ok, err := decoder.ReadOption()
	if err != nil {
		return err
	}
	if ok {
		d.CPIContext = new(CPIContext)
		if d.CPIContext.SetContext, err = decoder.ReadBool(); err != nil {
			return err
		}
		if d.CPIContext.FirstSetContext, err = decoder.ReadBool(); err != nil {
			return err
		}
		if d.CPIContext.CPIContextAccountIndex, err = decoder.ReadUint8(); err != nil {
			return err
		}
	}

	if ok, err = decoder.ReadOption(); err != nil {
		return err
	}
	if ok {
		n, err := readLength(decoder)
		if err != nil {
			return err
		}
		d.Compressions = make([]Compression, n)
		for i := range d.Compressions {
			if d.Compressions[i], err = readCompression(decoder); err != nil {
				return err
			}
		}
	}

	if ok, err = decoder.ReadOption(); err != nil {
		return err
	}
	if ok {
		d.Proof = new(types.ValidityProof)
		for _, part := range [][]byte{d.Proof.A[:], d.Proof.B[:], d.Proof.C[:]} {
			raw, err := decoder.ReadNBytes(len(part))
			if err != nil {
				return err
			}
			copy(part, raw)
		}
	}

	n, err := readLength(decoder)
	if err != nil {
		return err
	}
	d.InTokenData = make([]packer.PackedTokenInput, n)
	for i := range d.InTokenData {
		if d.InTokenData[i], err = readInput(decoder); err != nil {
			return err
		}
	}

	if n, err = readLength(decoder); err != nil {
		return err
	}
	d.OutTokenData = make([]TokenOutput, n)
	for i := range d.OutTokenData {
		if d.OutTokenData[i], err = readOutput(decoder); err != nil {
			return err
		}
	}

	if d.InLamports, err = readOptionalU64s(decoder); err != nil {
		return err
	}
	if d.OutLamports, err = readOptionalU64s(decoder); err != nil {
		return err
	}

	for _, name := range []string{"in_tlv", "out_tlv"} {
		ok, err := decoder.ReadOption()
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%s extensions are not supported", name)
		}
	}
	return nil
}

// TotalCompressed sums the amounts of compressions in mode.
func (d *Transfer2Data) TotalCompressed(mode CompressionMode) uint64 {
	var total uint64
	for _, c := range d.Compressions {
		if c.Mode == mode {
			total += c.Amount
		}
	}
	return total
}

func writeCompression(e *bin.Encoder, c Compression) error {
	if err := e.WriteUint8(uint8(c.Mode)); err != nil {
		return err
	}
	if err := e.WriteUint64(c.Amount, bin.LE); err != nil {
		return err
	}
	for _, b := range []uint8{c.Mint, c.SourceOrRecipient, c.Authority, c.PoolAccountIndex, c.PoolIndex, c.Bump, c.Decimals} {
		if err := e.WriteUint8(b); err != nil {
			return err
		}
	}
	return nil
}

func readCompression(d *bin.Decoder) (c Compression, err error) {
	mode, err := d.ReadUint8()
	if err != nil {
		return c, err
	}
	c.Mode = CompressionMode(mode)
	if c.Amount, err = d.ReadUint64(bin.LE); err != nil {
		return c, err
	}
	for _, field := range []*uint8{&c.Mint, &c.SourceOrRecipient, &c.Authority, &c.PoolAccountIndex, &c.PoolIndex, &c.Bump, &c.Decimals} {
		if *field, err = d.ReadUint8(); err != nil {
			return c, err
		}
	}
	return c, nil
}

func writeInput(e *bin.Encoder, in packer.PackedTokenInput) error {
	if err := e.WriteUint8(in.Owner); err != nil {
		return err
	}
	if err := e.WriteUint64(in.Amount, bin.LE); err != nil {
		return err
	}
	if err := e.WriteBool(in.HasDelegate); err != nil {
		return err
	}
	for _, b := range []uint8{in.Delegate, in.Mint, in.Version, in.MerkleContext.TreeIndex, in.MerkleContext.QueueIndex} {
		if err := e.WriteUint8(b); err != nil {
			return err
		}
	}
	if err := e.WriteUint32(in.MerkleContext.LeafIndex, bin.LE); err != nil {
		return err
	}
	if err := e.WriteBool(in.MerkleContext.ProveByIndex); err != nil {
		return err
	}
	return e.WriteUint16(in.RootIndex, bin.LE)
}

func readInput(d *bin.Decoder) (in packer.PackedTokenInput, err error) {
	if in.Owner, err = d.ReadUint8(); err != nil {
		return in, err
	}
	if in.Amount, err = d.ReadUint64(bin.LE); err != nil {
		return in, err
	}
	if in.HasDelegate, err = d.ReadBool(); err != nil {
		return in, err
	}
	for _, field := range []*uint8{&in.Delegate, &in.Mint, &in.Version, &in.MerkleContext.TreeIndex, &in.MerkleContext.QueueIndex} {
		if *field, err = d.ReadUint8(); err != nil {
			return in, err
		}
	}
	if in.MerkleContext.LeafIndex, err = d.ReadUint32(bin.LE); err != nil {
		return in, err
	}
	if in.MerkleContext.ProveByIndex, err = d.ReadBool(); err != nil {
		return in, err
	}
	in.RootIndex, err = d.ReadUint16(bin.LE)
	return in, err
}

func writeOutput(e *bin.Encoder, out TokenOutput) error {
	if err := e.WriteUint8(out.Owner); err != nil {
		return err
	}
	if err := e.WriteUint64(out.Amount, bin.LE); err != nil {
		return err
	}
	if err := e.WriteBool(out.HasDelegate); err != nil {
		return err
	}
	for _, b := range []uint8{out.Delegate, out.Mint, out.Version} {
		if err := e.WriteUint8(b); err != nil {
			return err
		}
	}
	return nil
}

func readOutput(d *bin.Decoder) (out TokenOutput, err error) {
	if out.Owner, err = d.ReadUint8(); err != nil {
		return out, err
	}
	if out.Amount, err = d.ReadUint64(bin.LE); err != nil {
		return out, err
	}
	if out.HasDelegate, err = d.ReadBool(); err != nil {
		return out, err
	}
	for _, field := range []*uint8{&out.Delegate, &out.Mint, &out.Version} {
		if *field, err = d.ReadUint8(); err != nil {
			return out, err
		}
	}
	return out, nil
}

func writeOptionalU64s(e *bin.Encoder, values []uint64) error {
	if err := e.WriteOption(values != nil); err != nil {
		return err
	}
	if values == nil {
		return nil
	}
	if err := e.WriteUint32(uint32(len(values)), bin.LE); err != nil {
		return err
	}
	for _, v := range values {
		if err := e.WriteUint64(v, bin.LE); err != nil {
			return err
		}
	}
	return nil
}

func readOptionalU64s(d *bin.Decoder) ([]uint64, error) {
	ok, err := d.ReadOption()
	if err != nil || !ok {
		return nil, err
	}
	n, err := readLength(d)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		if out[i], err = d.ReadUint64(bin.LE); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// readLength reads a vector length, rejecting lengths the remaining bytes
// cannot hold.
func readLength(d *bin.Decoder) (int, error) {
	n, err := d.ReadUint32(bin.LE)
	if err != nil {
		return 0, err
	}
	if int(n) > d.Remaining() {
		return 0, fmt.Errorf("vector length %d exceeds remaining %d bytes", n, d.Remaining())
	}
	return int(n), nil
}
