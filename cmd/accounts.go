package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/accountkeeper/internal/config"
	"github.com/teemow/accountkeeper/internal/keeper"
	"github.com/teemow/accountkeeper/internal/logging"
)

// openStore opens the state database used by the accounts subcommands.
// The serve process holds an exclusive lock on the database, so these
// commands are for offline inspection and maintenance.
func openStore() (*keeper.BoltStore, error) {
	path := os.Getenv("ACCOUNTKEEPER_STATE_PATH")
	if path == "" {
		var err error
		path, err = keeper.DefaultStatePath()
		if err != nil {
			return nil, fmt.Errorf("resolving state path: %w", err)
		}
	}

	cfg, err := config.Load()
	level, environment := "info", "development"
	if err == nil {
		level, environment = cfg.LogLevel, cfg.Environment
	}

	return keeper.OpenBoltStore(path, logging.Setup(level, environment))
}

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect and manage registered accounts",
		Long: `Inspect and manage the account registry directly, without going
through the MCP server. Stop the serve process first; the state
database is locked by a single process at a time.`,
	}

	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsRegisterCmd())
	cmd.AddCommand(newAccountsRevokeCmd())

	return cmd
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered accounts and their credential status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			accounts, err := store.Accounts(ctx)
			if err != nil {
				return err
			}

			if len(accounts) == 0 {
				fmt.Println("No accounts registered.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ACCOUNT\tCATEGORY\tSCOPES\tEXPIRES\tREFRESH")
			for _, acc := range accounts {
				scopes, expires, refresh := "-", "-", "-"
				cred, err := store.GetCredential(ctx, acc.ID)
				if err == nil {
					scopes = fmt.Sprintf("%d", len(cred.Scopes))
					if !cred.Expiry.IsZero() {
						expires = cred.Expiry.Local().Format(time.RFC3339)
					}
					refresh = "no"
					if cred.RefreshToken != "" {
						refresh = "yes"
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", acc.ID, acc.Category, scopes, expires, refresh)
			}
			return w.Flush()
		},
	}
}

func newAccountsRegisterCmd() *cobra.Command {
	var category, description string

	cmd := &cobra.Command{
		Use:   "register <account>",
		Short: "Register an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			acc, err := store.RegisterAccount(context.Background(), args[0], category, description)
			if err != nil {
				return err
			}

			fmt.Printf("Registered %s (seq %d)\n", acc.ID, acc.Seq)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Free-form grouping label, e.g. 'work'")
	cmd.Flags().StringVar(&description, "description", "", "Human-readable note about the account")

	return cmd
}

func newAccountsRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <account>",
		Short: "Remove an account and its stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			if err := store.DeleteCredential(ctx, args[0]); err != nil {
				return err
			}
			if err := store.RemoveAccount(ctx, args[0]); err != nil {
				return err
			}

			fmt.Printf("Removed %s\n", args[0])
			return nil
		},
	}
}
