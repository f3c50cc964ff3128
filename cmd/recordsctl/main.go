// Command recordsctl runs maintenance tasks against the records database:
// key generation, schema migration, archiving, history purge and field key
// rotation.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/fieldcrypt"
	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/memqueue"
	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/recordmap"
	"github.com/ericfisherdev/civicrecords/internal/application"
	"github.com/ericfisherdev/civicrecords/internal/config"
	"github.com/ericfisherdev/civicrecords/internal/storage"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "recordsctl",
		Short:         "Maintenance commands for the civic records database",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(keygenCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(archiveCmd())
	root.AddCommand(purgeHistoryCmd())
	root.AddCommand(rotateCmd())

	return root
}

func keygenCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a new field key entry for CIVICRECORDS_FIELD_KEYS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// NewKeyring applies the same id rules the server does.
			if _, err := fieldcrypt.NewKeyring(id, map[string][]byte{id: make([]byte, fieldcrypt.KeySize)}, nil); err != nil {
				return err
			}
			key, err := fieldcrypt.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", id, key)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "k1", "key id (lower-case letters and digits)")
	return cmd
}

func migrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer closeQuietly(backend)

			if !statusOnly {
				if err := backend.Migrate(); err != nil {
					return err
				}
			}

			version, dirty, err := backend.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "driver=%s version=%d dirty=%t\n", backend.Driver(), version, dirty)
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "only report the applied version")
	return cmd
}

func archiveCmd() *cobra.Command {
	var allTerminal bool

	cmd := &cobra.Command{
		Use:   "archive [transaction-id...]",
		Short: "Move finished certificate requests into history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if allTerminal == (len(args) > 0) {
				return errors.New("pass either transaction ids or --all-terminal")
			}

			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseInt(a, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid transaction id %q", a)
				}
				ids = append(ids, id)
			}

			return withServices(cmd.Context(), func(svc *application.TransactionService, _ storage.Stores) error {
				if allTerminal {
					page, err := svc.BulkList(cmd.Context())
					if err != nil {
						return err
					}
					for _, t := range page.Transactions {
						if t.Status.Terminal() {
							ids = append(ids, t.ID)
						}
					}
					for _, f := range page.Failed {
						slog.Warn("skipping unreadable transaction", "transaction_id", f.ID, "reason", f.Reason)
					}
				}

				archived := 0
				for _, id := range ids {
					if err := svc.Archive(cmd.Context(), id); err != nil {
						return fmt.Errorf("archive transaction %d: %w", id, err)
					}
					archived++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "archived %d transaction(s)\n", archived)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&allTerminal, "all-terminal", false, "archive every Released, Rejected or Cancelled request")
	return cmd
}

func purgeHistoryCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "purge-history",
		Short: "Irreversibly delete every archived transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return errors.New("purge-history deletes all archived transactions; rerun with --yes")
			}

			return withServices(cmd.Context(), func(svc *application.TransactionService, _ storage.Stores) error {
				n, err := svc.PurgeHistory(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d history row(s)\n", n)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the purge")
	return cmd
}

func rotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Re-encrypt rows still sealed under a non-primary field key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(_ *application.TransactionService, stores storage.Stores) error {
				res, err := application.RotateFieldKeys(cmd.Context(), stores.Residents, stores.Transactions)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "re-encrypted %d resident(s) and %d transaction(s)\n", res.Residents, res.Transactions)
				return nil
			})
		},
	}
}

func openBackend(ctx context.Context) (*storage.Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	return storage.Open(ctx, cfg)
}

// withServices opens a migrated backend with the field keyring and runs fn.
// Maintenance commands never notify residents, so the queue is discarded.
func withServices(ctx context.Context, fn func(*application.TransactionService, storage.Stores) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ring, err := cfg.RequireKeyring()
	if err != nil {
		return err
	}

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly(backend)

	if err := backend.Migrate(); err != nil {
		return err
	}

	stores := backend.Stores(recordmap.New(fieldcrypt.New(ring)))
	queue := memqueue.New(1)
	defer queue.Close()

	svc := application.NewTransactionService(stores.Transactions, stores.Residents, stores.Credentials, queue)
	return fn(svc, stores)
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
