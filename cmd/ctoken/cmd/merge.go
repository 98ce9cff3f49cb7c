package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lugondev/go-ctoken/internal/load"
)

var mergeCmd = &cobra.Command{
	Use:   "merge [mint]",
	Short: "Merge compressed accounts into one",
	Long: `Consolidate several of the keypair's compressed accounts of the mint into a
single compressed account, reducing the inputs later loads must prove.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mint, err := parseKey("mint", args[0])
		if err != nil {
			return err
		}
		keypair, _ := cmd.Flags().GetString("keypair")
		payerKeypair, _ := cmd.Flags().GetString("payer")
		signers, payer, err := signersFrom(keypair, payerKeypair)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		ctx, cancel := submitContext(ctx)
		defer cancel()
		sig, err := a.loader.Merge(ctx, load.MergeParams{
			Owner: signers[0].PublicKey(),
			Mint:  mint,
			Payer: payer.PublicKey(),
		}, signers)
		return printSignature(cmd.OutOrStdout(), sig, err, "Nothing to merge")
	},
}

func init() {
	addSignerFlags(mergeCmd)
	rootCmd.AddCommand(mergeCmd)
}
