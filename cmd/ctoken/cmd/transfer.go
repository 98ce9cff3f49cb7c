package cmd

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/lugondev/go-ctoken/internal/load"
)

var transferCmd = &cobra.Command{
	Use:   "transfer [mint] [destination] [amount]",
	Short: "Transfer light tokens to an existing light-token account",
	Long: `Transfer amount from the keypair's light-token account to the destination
account. Compressed and, with --wrap, SPL and Token-2022 balance is loaded
first when the hot balance does not cover the amount. The amount is in
tokens unless --raw is set. With --owner the keypair signs as a delegate
and spends only what the owner delegated to it.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		mint, err := parseKey("mint", args[0])
		if err != nil {
			return err
		}
		destination, err := parseKey("destination", args[1])
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		keypair, _ := flags.GetString("keypair")
		payerKeypair, _ := flags.GetString("payer")
		wrap, _ := flags.GetBool("wrap")
		raw, _ := flags.GetBool("raw")
		ownerAddress, _ := flags.GetString("owner")

		signers, payer, err := signersFrom(keypair, payerKeypair)
		if err != nil {
			return err
		}
		owner, authority, err := transferAuthority(signers[0].PublicKey(), ownerAddress)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		decimals := 0
		if !raw {
			d, err := a.chain.GetMintDecimals(ctx, mint)
			if err != nil {
				return err
			}
			decimals = int(d)
		}
		amount, err := parseAmount(args[2], decimals)
		if err != nil {
			return err
		}

		ctx, cancel := submitContext(ctx)
		defer cancel()
		sig, err := a.loader.Transfer(ctx, load.TransferParams{
			Owner:       owner,
			Mint:        mint,
			Payer:       payer.PublicKey(),
			Destination: destination,
			Amount:      amount,
			Wrap:        wrap,
			Authority:   authority,
		}, signers)
		return printSignature(cmd.OutOrStdout(), sig, err, "Nothing submitted")
	},
}

// transferAuthority resolves who owns the tokens and who signs for them. An
// empty owner means the signer moves its own tokens.
func transferAuthority(signer solana.PublicKey, owner string) (solana.PublicKey, *solana.PublicKey, error) {
	if owner == "" {
		return signer, nil, nil
	}
	key, err := parseKey("owner", owner)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	if key.Equals(signer) {
		return signer, nil, nil
	}
	return key, &signer, nil
}

// parseAmount converts a token amount to base units. It rejects amounts
// finer than the mint's decimals and amounts that overflow 64 bits.
func parseAmount(s string, decimals int) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	base := d.Shift(int32(decimals))
	if !base.Equal(base.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimals", s, decimals)
	}
	if base.Sign() <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	if base.BigInt().BitLen() > 64 {
		return 0, fmt.Errorf("amount %s is too large", s)
	}
	return base.BigInt().Uint64(), nil
}

func init() {
	addSignerFlags(transferCmd)
	transferCmd.Flags().Bool("wrap", false, "also draw on SPL and Token-2022 balances")
	transferCmd.Flags().Bool("raw", false, "amount is in base units")
	transferCmd.Flags().String("owner", "", "owner of the tokens when the keypair is their delegate")

	rootCmd.AddCommand(transferCmd)
}
