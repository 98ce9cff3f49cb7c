package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lugondev/go-ctoken/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history [owner]",
	Short: "List journaled transactions",
	Long: `List the transactions submitted for an owner, newest first, from the
configured journal. With --operation, list the batches of one operation
instead; with --signature, show the entry of one transaction.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		format, _ := flags.GetString("output")
		if err := checkFormat(format); err != nil {
			return err
		}
		operation, _ := flags.GetString("operation")
		signature, _ := flags.GetString("signature")
		limit, _ := flags.GetInt("limit")
		offset, _ := flags.GetInt("offset")

		if !cfg.Journal.Enabled {
			return errors.New("journal is disabled; set journal.enabled in the config")
		}

		ctx := cmd.Context()
		repo, err := storage.Open(ctx, &cfg.Journal)
		if err != nil {
			return err
		}
		defer repo.Close()

		var entries []*storage.JournalModel
		switch {
		case signature != "":
			entry, err := repo.Journal().FindBySignature(ctx, signature)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		case operation != "":
			if entries, err = repo.Journal().FindByOperation(ctx, operation); err != nil {
				return err
			}
		case len(args) == 1:
			owner, err := parseKey("owner", args[0])
			if err != nil {
				return err
			}
			if entries, err = repo.Journal().FindByOwner(ctx, owner.String(), limit, offset); err != nil {
				return err
			}
		default:
			return fmt.Errorf("an owner, --operation or --signature is required")
		}
		return renderHistory(cmd.OutOrStdout(), entries, format)
	},
}

var historyPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the journal connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repo, err := storage.Open(ctx, &cfg.Journal)
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := repo.Ping(ctx); err != nil {
			return fmt.Errorf("journal unreachable: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Journal %s reachable\n", journalName())
		return nil
	},
}

func journalName() string {
	if !cfg.Journal.Enabled {
		return string(storage.DatabaseTypeMemory)
	}
	return cfg.Journal.Type
}

func init() {
	flags := historyCmd.Flags()
	flags.String("operation", "", "list the batches of one operation")
	flags.String("signature", "", "show the entry of one transaction")
	flags.Int("limit", 20, "maximum entries (0 for all)")
	flags.Int("offset", 0, "entries to skip")
	flags.StringP("output", "o", formatTable, "output format (table, json, yaml)")

	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyPingCmd)
}
