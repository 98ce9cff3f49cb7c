package instruction

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/internal/packer"
	"github.com/lugondev/go-ctoken/internal/programs"
	"github.com/lugondev/go-ctoken/pkg/types"
)

// FixedAccountCount is the number of accounts preceding the packed accounts
// in a Transfer2 instruction that spends compressed inputs.
const FixedAccountCount = 7

// CompressionsOnlyAccountCount is the number of accounts preceding the packed
// accounts in a Transfer2 instruction that only moves on-chain balances.
const CompressionsOnlyAccountCount = 2

func systemAccounts(payer solana.PublicKey) []types.AccountMeta {
	return []types.AccountMeta{
		types.NewAccountMeta(programs.LightSystemProgramID, false, false),
		types.NewAccountMeta(payer, true, true),
		types.NewAccountMeta(programs.LightTokenCPIAuthority, false, false),
		types.NewAccountMeta(programs.RegisteredProgramPDA, false, false),
		types.NewAccountMeta(programs.AccountCompressionAuthority, false, false),
		types.NewAccountMeta(programs.AccountCompressionProgramID, false, false),
		types.NewAccountMeta(programs.SystemProgramID, false, false),
	}
}

func transfer2Instruction(payer solana.PublicKey, table *packer.Table, data *Transfer2Data) (types.Instruction, error) {
	payload, err := data.Encode()
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programs.LightTokenProgramID,
		Accounts:  append(systemAccounts(payer), table.AccountMetas()...),
		Data:      payload,
	}, nil
}

func compressionsOnlyInstruction(payer solana.PublicKey, table *packer.Table, data *Transfer2Data) (types.Instruction, error) {
	payload, err := data.Encode()
	if err != nil {
		return types.Instruction{}, err
	}
	accounts := []types.AccountMeta{
		types.NewAccountMeta(programs.LightTokenCPIAuthority, false, false),
		types.NewAccountMeta(payer, true, true),
	}
	return types.Instruction{
		ProgramID: programs.LightTokenProgramID,
		Accounts:  append(accounts, table.AccountMetas()...),
		Data:      payload,
	}, nil
}

// PackedAccounts returns the packed part of a Transfer2 instruction built by
// this package.
func PackedAccounts(ix types.Instruction) []types.AccountMeta {
	if len(ix.Accounts) > 0 && ix.Accounts[0].Pubkey.Equals(programs.LightSystemProgramID) {
		return ix.Accounts[FixedAccountCount:]
	}
	return ix.Accounts[min(CompressionsOnlyAccountCount, len(ix.Accounts)):]
}

// validateInputs checks compressed inputs can be spent by authority.
func validateInputs(operation string, inputs []types.TokenAccountSource, mint, authority solana.PublicKey) error {
	if len(inputs) == 0 {
		return cerrors.NoInputAccounts(operation)
	}
	for i, in := range inputs {
		if in.LoadContext == nil {
			return cerrors.NewError(cerrors.ErrCodeInvalidAccountData,
				fmt.Sprintf("%s input %d is not a compressed account", operation, i))
		}
		if !in.Mint.Equals(mint) {
			return cerrors.NewError(cerrors.ErrCodeInvalidAccountData,
				fmt.Sprintf("%s input %d has mint %s, want %s", operation, i, in.Mint, mint))
		}
		if in.IsFrozen() {
			return cerrors.FrozenAccount(in.Address)
		}
		delegated := in.Delegate != nil && in.Delegate.Equals(authority)
		if !in.Owner.Equals(authority) && !delegated {
			return cerrors.NewError(cerrors.ErrCodeInvalidAccountData,
				fmt.Sprintf("authority %s cannot spend %s input %d owned by %s", authority, operation, i, in.Owner))
		}
	}
	return nil
}

// outputTree picks the tree outputs go to. V2 inputs keep writing to their
// own tree or its successor; V1 inputs migrate to the default V2 tree.
func outputTree(inputs []types.TokenAccountSource, override *types.TreeInfo) types.TreeInfo {
	if override != nil {
		return *override
	}
	for _, in := range inputs {
		if in.LoadContext == nil {
			continue
		}
		if out := in.LoadContext.TreeInfo.OutputTree(); out.TreeType == types.TreeTypeStateV2 {
			return out
		}
	}
	return programs.DefaultTreeV2
}
