package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/content-ledger/pkg/contentledger"
	"github.com/tendant/content-ledger/pkg/contentledger/api"
	repopg "github.com/tendant/content-ledger/pkg/contentledger/repo/postgres"
	reposqlite "github.com/tendant/content-ledger/pkg/contentledger/repo/sqlite"
)

// NewCreateCommand creates the create command
func NewCreateCommand(opts *globalOptions) *cobra.Command {
	var hexFingerprint bool

	cmd := &cobra.Command{
		Use:   "create <fingerprint>",
		Short: "Register content for the caller",
		Long:  `Register a content fingerprint and receive its content key. The caller becomes the owner.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.identity()
			if err != nil {
				return err
			}

			fingerprint := []byte(args[0])
			if hexFingerprint {
				fingerprint, err = hex.DecodeString(args[0])
				if err != nil {
					return fmt.Errorf("invalid hex fingerprint: %w", err)
				}
			}

			ledger, err := opts.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer ledger.Close()

			item, err := ledger.Service.CreateContent(cmd.Context(), contentledger.CreateContentRequest{
				Caller:      caller,
				Fingerprint: fingerprint,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Content registered\n")
			printContent(cmd.OutOrStdout(), item)
			return nil
		},
	}

	cmd.Flags().BoolVar(&hexFingerprint, "hex", false, "decode the fingerprint argument as hex")

	return cmd
}

// NewListCommand creates the list command
func NewListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the caller's content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.identity()
			if err != nil {
				return err
			}

			ledger, err := opts.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer ledger.Close()

			items, err := ledger.Service.ListContent(cmd.Context(), caller)
			if err != nil {
				return err
			}

			if len(items) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No content found for %s\n", caller)
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n",
					contentledger.FormatContentKey(item.ContentKey), item.CreatedTimestamp)
			}
			return nil
		},
	}
}

// NewShowCommand creates the show command
func NewShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <content-key>",
		Short: "Show one of the caller's content items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.identity()
			if err != nil {
				return err
			}
			key, err := contentledger.ParseContentKey(args[0])
			if err != nil {
				return err
			}

			ledger, err := opts.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer ledger.Close()

			item, err := ledger.Service.GetContent(cmd.Context(), contentledger.GetContentRequest{Owner: caller, ContentKey: key})
			if err != nil {
				return err
			}
			printContent(cmd.OutOrStdout(), item)
			return nil
		},
	}
}

// NewLeaseCommand creates the lease command
func NewLeaseCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lease <content-key> <subject>",
		Short: "Grant subject a lease on the caller's content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.identity()
			if err != nil {
				return err
			}
			key, err := contentledger.ParseContentKey(args[0])
			if err != nil {
				return err
			}

			ledger, err := opts.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer ledger.Close()

			err = ledger.Service.LeaseContent(cmd.Context(), contentledger.LeaseContentRequest{
				Caller:     caller,
				ContentKey: key,
				Subject:    contentledger.Identity(args[1]),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Lease granted to %s\n", args[1])
			return nil
		},
	}
}

// NewRevokeCommand creates the revoke command
func NewRevokeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <content-key> <subject>",
		Short: "Revoke subject's lease on the caller's content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.identity()
			if err != nil {
				return err
			}
			key, err := contentledger.ParseContentKey(args[0])
			if err != nil {
				return err
			}

			ledger, err := opts.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer ledger.Close()

			err = ledger.Service.RevokeLease(cmd.Context(), contentledger.RevokeLeaseRequest{
				Caller:     caller,
				ContentKey: key,
				Subject:    contentledger.Identity(args[1]),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Lease revoked for %s\n", args[1])
			return nil
		},
	}
}

// NewPolicyCommand creates the policy command
func NewPolicyCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "policy <subject> <content-key>",
		Short: "Show a subject's access policy on a content key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := contentledger.ParseContentKey(args[1])
			if err != nil {
				return err
			}

			ledger, err := opts.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer ledger.Close()

			policy, err := ledger.Service.GetAccessPolicy(cmd.Context(), contentledger.AccessPolicyRequest{
				Subject:    contentledger.Identity(args[0]),
				ContentKey: key,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Policy: %s\nHas access: %t\n", policy, policy.GrantsAccess())
			return nil
		},
	}
}

// NewCounterCommand creates the counter command and its subcommands
func NewCounterCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Read and write the ledger counter",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "store <value>",
		Short: "Store a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.identity()
			if err != nil {
				return err
			}
			value, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}

			ledger, err := opts.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer ledger.Close()

			if err := ledger.Service.StoreValue(cmd.Context(), caller, uint32(value)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d\n", value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "increment",
		Short: "Increment the stored value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.identity()
			if err != nil {
				return err
			}

			ledger, err := opts.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer ledger.Close()

			value, err := ledger.Service.IncrementValue(cmd.Context(), caller)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the stored value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := opts.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer ledger.Close()

			value, err := ledger.Service.GetValue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", value)
			return nil
		},
	})

	return cmd
}

// NewTokenCommand creates the token command
func NewTokenCommand() *cobra.Command {
	var secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token for the HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or CONTENT_LEDGER_JWT_SECRET is required")
			}
			token, err := api.IssueToken(secret, contentledger.Identity(args[0]), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", envOr("CONTENT_LEDGER_JWT_SECRET", ""), "HS256 signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")

	return cmd
}

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.serverConfig()
			if err != nil {
				return err
			}

			switch cfg.DatabaseType {
			case "sqlite":
				// Open applies pending migrations
				repo, err := reposqlite.Open(cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer repo.Close()

				version, dirty, err := reposqlite.SchemaVersion(repo.DB())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d (dirty: %t)\n", version, dirty)
			case "postgres":
				if err := repopg.Migrate(cmd.Context(), cfg.DatabaseURL, cfg.DBSchema); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied to schema %s\n", cfg.DBSchema)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Nothing to migrate for %s database\n", cfg.DatabaseType)
			}
			return nil
		},
	}
}

func printContent(w io.Writer, item *contentledger.ContentItem) {
	seq, _ := item.Sequence()
	fmt.Fprintf(w, "Content key: %s\n", contentledger.FormatContentKey(item.ContentKey))
	fmt.Fprintf(w, "Fingerprint: %x\n", item.Fingerprint)
	fmt.Fprintf(w, "Sequence: %d\n", seq)
	fmt.Fprintf(w, "Created: %s\n", item.CreatedTimestamp)
}
