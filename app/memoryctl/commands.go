package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yoockh/yoomemory/internal/bootstrap"
)

var (
	backfillLimit int
	exportOut     string
	confirmDelete bool
	auditLimit    int
	auditMirror   bool

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run retention, consent expiry and idle-session sweeps once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App, log *logrus.Logger) error {
				rep, err := app.Sweeper.RunOnce(cmd.Context())
				if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil {
					return perr
				}
				return err
			})
		},
	}

	backfillCmd = &cobra.Command{
		Use:   "backfill",
		Short: "Embed stored messages that have no embedding yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App, log *logrus.Logger) error {
				rep, err := app.Retrieval.Backfill(cmd.Context(), backfillLimit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}

	exportCmd = &cobra.Command{
		Use:   "export <user-id>",
		Short: "Export everything stored about a user as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App, log *logrus.Logger) error {
				out, err := app.DataRights.ExportUserData(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if exportOut == "" || exportOut == "-" {
					return printJSON(cmd.OutOrStdout(), out)
				}
				f, err := os.Create(exportOut)
				if err != nil {
					return err
				}
				defer f.Close()
				return printJSON(f, out)
			})
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete all data for a user except the audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmDelete {
				return errors.New("refusing to delete without --yes")
			}
			return withApp(cmd.Context(), func(app *bootstrap.App, log *logrus.Logger) error {
				counts, err := app.DataRights.DeleteUserData(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), counts)
			})
		},
	}

	anonymizeCmd = &cobra.Command{
		Use:   "anonymize <user-id>",
		Short: "Redact a user's message content and profile details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App, log *logrus.Logger) error {
				counts, err := app.DataRights.AnonymizeUserData(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), counts)
			})
		},
	}

	auditCmd = &cobra.Command{
		Use:   "audit <user-id>",
		Short: "List a user's audit entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App, log *logrus.Logger) error {
				if auditMirror {
					if app.Mirror == nil {
						return fmt.Errorf("--mirror needs MONGO_URI")
					}
					rows, err := app.Mirror.ListByUser(cmd.Context(), args[0], int64(auditLimit))
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), rows)
				}
				rows, err := app.Audit.List(cmd.Context(), args[0], auditLimit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
)

func init() {
	rootCmd.AddCommand(sweepCmd, backfillCmd, exportCmd, deleteCmd, anonymizeCmd, auditCmd)

	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 500, "maximum messages to process")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "-", "output file, - for stdout")
	deleteCmd.Flags().BoolVar(&confirmDelete, "yes", false, "confirm the deletion")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 100, "maximum entries")
	auditCmd.Flags().BoolVar(&auditMirror, "mirror", false, "read from the mongo audit mirror")
}
