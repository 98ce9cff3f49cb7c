package cmd

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/lugondev/go-ctoken/internal/classifier"
	"github.com/lugondev/go-ctoken/internal/programs"
	"github.com/lugondev/go-ctoken/pkg/types"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [owner] [mint]",
	Short: "Show an owner's unified balance of a mint",
	Long: `Classify every account holding the owner's balance of the mint and show
them as one view: the light-token account, compressed leaves and, with
--wrap, the SPL and Token-2022 associated accounts.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseKey("owner", args[0])
		if err != nil {
			return err
		}
		mint, err := parseKey("mint", args[1])
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		format, _ := flags.GetString("output")
		if err := checkFormat(format); err != nil {
			return err
		}
		wrap, _ := flags.GetBool("wrap")
		program, _ := flags.GetString("program")
		address, _ := flags.GetString("address")
		decimals, _ := flags.GetInt("decimals")

		q := classifier.Query{Owner: owner, Mint: mint, Wrap: wrap}
		if program != "" {
			id, err := programByName(program)
			if err != nil {
				return err
			}
			q.Program = &id
		}
		if address != "" {
			key, err := parseKey("address", address)
			if err != nil {
				return err
			}
			q.Address = &key
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		v, err := a.loader.Classify(ctx, q)
		if err != nil {
			return err
		}
		if decimals < 0 {
			decimals = a.mintDecimals(ctx, mint)
		}
		return renderBalance(cmd.OutOrStdout(), v, decimals, format)
	},
}

// mintDecimals returns the mint's decimals, or zero when the mint cannot be
// read so amounts print in base units.
func (a *app) mintDecimals(ctx context.Context, mint solana.PublicKey) int {
	d, err := a.chain.GetMintDecimals(ctx, mint)
	if err != nil {
		a.logger.Warn("failed to read mint decimals, showing base units", "mint", mint, "error", err)
		return 0
	}
	return int(d)
}

func programByName(name string) (solana.PublicKey, error) {
	switch name {
	case "ctoken", "light":
		return programs.ProgramForKind(types.KindCTokenOnchain), nil
	case "spl", "token":
		return programs.ProgramForKind(types.KindSplOnchain), nil
	case "token2022", "token-2022":
		return programs.ProgramForKind(types.KindToken2022Onchain), nil
	default:
		return solana.PublicKey{}, fmt.Errorf("unknown token program %q (ctoken, spl or token2022)", name)
	}
}

func init() {
	flags := balanceCmd.Flags()
	flags.Bool("wrap", false, "include SPL and Token-2022 associated accounts")
	flags.String("program", "", "restrict to one token program (ctoken, spl, token2022)")
	flags.String("address", "", "classify this account address instead of the owner's associated accounts")
	flags.Int("decimals", -1, "mint decimals used for display (default reads the mint)")
	flags.StringP("output", "o", formatTable, "output format (table, json, yaml)")

	rootCmd.AddCommand(balanceCmd)
}
