package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lugondev/go-ctoken/internal/load"
	"github.com/lugondev/go-ctoken/pkg/types"
)

var loadCmd = &cobra.Command{
	Use:   "load [mint]",
	Short: "Load compressed and wrapped balance into one account",
	Long: `Decompress every compressed leaf of the keypair's balance of the mint into
its associated account. With --wrap, SPL and Token-2022 balances are wrapped
into the light-token account as well. Large balances span several
transactions, submitted in order.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mint, err := parseKey("mint", args[0])
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		keypair, _ := flags.GetString("keypair")
		payerKeypair, _ := flags.GetString("payer")
		wrap, _ := flags.GetBool("wrap")
		targetName, _ := flags.GetString("target")
		maxInputs, _ := flags.GetInt("max-inputs")
		dryRun, _ := flags.GetBool("dry-run")

		target, err := kindByName(targetName)
		if err != nil {
			return err
		}
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

		p := load.LoadParams{
			Owner:     signers[0].PublicKey(),
			Mint:      mint,
			Payer:     payer.PublicKey(),
			Wrap:      wrap,
			Target:    target,
			MaxInputs: maxInputs,
		}
		out := cmd.OutOrStdout()

		if dryRun {
			batches, err := a.loader.BuildLoadInstructions(ctx, p)
			if err != nil {
				return err
			}
			renderBatches(out, batches)
			return nil
		}

		ctx, cancel := submitContext(ctx)
		defer cancel()
		sig, err := a.loader.Load(ctx, p, signers)
		return printSignature(out, sig, err, "Nothing to load")
	},
}

func kindByName(name string) (types.TokenAccountKind, error) {
	switch name {
	case "", "ctoken", "light":
		return types.KindCTokenOnchain, nil
	case "spl", "token":
		return types.KindSplOnchain, nil
	case "token2022", "token-2022":
		return types.KindToken2022Onchain, nil
	default:
		return 0, fmt.Errorf("unknown target %q (ctoken, spl or token2022)", name)
	}
}

func renderBatches(w io.Writer, batches []load.Batch) {
	if len(batches) == 0 {
		fmt.Fprintln(w, "Nothing to load")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Batch", "Instructions", "Inputs", "Wraps", "Amount", "Compute Units"})
	for i, b := range batches {
		t.AppendRow(table.Row{i + 1, len(b.Instructions), b.Inputs, b.Wraps, b.Amount, b.ComputeUnits})
	}
	t.Render()
}

// printSignature reports the outcome of a submission. A failure after some
// batches confirmed still prints the last confirmed signature.
func printSignature(w io.Writer, sig *solana.Signature, err error, nothing string) error {
	if sig != nil {
		if err != nil {
			fmt.Fprintf(w, "Last confirmed: %s\n", sig)
		} else {
			fmt.Fprintf(w, "Confirmed: %s\n", sig)
		}
	} else if err == nil {
		fmt.Fprintln(w, nothing)
	}
	return err
}

func addSignerFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("keypair", "k", "", "owner keypair file (Solana CLI format)")
	cmd.Flags().String("payer", "", "fee payer keypair file (default is the owner)")
}

func init() {
	addSignerFlags(loadCmd)
	flags := loadCmd.Flags()
	flags.Bool("wrap", false, "also wrap SPL and Token-2022 balances into the light-token account")
	flags.String("target", "ctoken", "account to load into without --wrap (ctoken, spl, token2022)")
	flags.Int("max-inputs", 0, "compressed inputs per transaction (default from config)")
	flags.Bool("dry-run", false, "print the planned transactions without submitting")

	rootCmd.AddCommand(loadCmd)
}
