package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lugondev/go-ctoken/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ctoken",
	Short: "ctoken CLI - light-token balances on Solana",
	Long: `ctoken inspects and moves light-token balances on the Solana blockchain.

It provides commands for:
- Unified balances across hot, compressed, SPL and Token-2022 accounts
- Loading compressed and wrapped balance into one account
- Transfers and compressed account merges
- The journal of submitted transactions`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ctoken.yaml)")
	flags.String("rpc", "", "Solana RPC endpoint")
	flags.String("network", "devnet", "Solana network (mainnet, devnet, testnet, localnet)")
	flags.String("indexer", "", "compression indexer endpoint (default is the RPC endpoint)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	for key, flag := range map[string]string{
		"solana.rpc":     "rpc",
		"solana.network": "network",
		"indexer.url":    "indexer",
		"log.level":      "log-level",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding flag: %v\n", err)
		}
	}
}

func initConfig() error {
	loaded, err := config.LoadWith(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
	cfg = loaded
	return nil
}
