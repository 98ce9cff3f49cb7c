package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	solanaclient "github.com/lugondev/go-ctoken/internal/solana"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Wallet management commands",
	Long:  `Commands for generating keypairs and reading their addresses.`,
}

var walletNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a new wallet",
	Long:  `Generate a new Solana wallet keypair, optionally saving it in Solana CLI format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wallet := solanaclient.NewWallet()
		out := cmd.OutOrStdout()

		if path, _ := cmd.Flags().GetString("out"); path != "" {
			if err := wallet.SaveToFile(path); err != nil {
				return err
			}
			fmt.Fprintf(out, "Keypair saved to %s\n", path)
		}

		fmt.Fprintln(out, "New wallet generated!")
		fmt.Fprintf(out, "  Public Key:  %s\n", wallet.PublicKey())
		fmt.Fprintf(out, "  Private Key: %s\n", wallet.PrivateKey())
		fmt.Fprintln(out, "\nWARNING: Save your private key securely. Never share it with anyone!")
		return nil
	},
}

var walletAddressCmd = &cobra.Command{
	Use:   "address [keypair]",
	Short: "Print the address of a keypair file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wallet, err := solanaclient.WalletFromFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), wallet.PublicKey())
		return nil
	},
}

var walletBalanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Check wallet balance",
	Long:  `Check the SOL balance of a wallet address.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pubKey, err := parseKey("address", args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		chain := solanaclient.NewClient(cfg.Solana.GetRPCEndpoint()).WithCommitment(cfg.Solana.Commitment)
		lamports, err := chain.GetBalance(ctx, pubKey)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Address: %s\n", pubKey)
		fmt.Fprintf(cmd.OutOrStdout(), "Balance: %s SOL\n", formatAmount(lamports, 9))
		return nil
	},
}

func init() {
	walletNewCmd.Flags().String("out", "", "write the keypair to this file")

	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletNewCmd)
	walletCmd.AddCommand(walletAddressCmd)
	walletCmd.AddCommand(walletBalanceCmd)
}
