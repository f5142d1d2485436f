// Dossier is the command-line client for dossierd.
//
// It manages cases, uploads documents, and asks questions against the
// running daemon, including an interactive chat loop.
//
// Usage:
//
//	dossier cases list
//	dossier cases new "Client Acme 2023"
//	dossier ingest acme lease.pdf scans/*.png
//	dossier ask acme "when does the lease end?"
//	dossier chat acme
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var serverURL string

	root := &cobra.Command{
		Use:           "dossier",
		Short:         "Case document assistant",
		Long:          "Dossier manages document cases and answers questions grounded on their contents.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "server",
		envOr("DOSSIER_SERVER", "http://localhost:9180"),
		"dossierd base URL")

	api := func() *client { return newClient(serverURL) }

	root.AddCommand(
		newCasesCmd(api),
		newIngestCmd(api),
		newAskCmd(api),
		newChatCmd(api),
	)
	return root
}

func newCasesCmd(api func() *client) *cobra.Command {
	cases := &cobra.Command{
		Use:   "cases",
		Short: "Manage cases",
	}

	cases.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cases, pinned first",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := api().listCases(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				cmd.Println("No cases yet. Create one with: dossier cases new NAME")
				return nil
			}
			for _, c := range list {
				marker := " "
				if c.Pinned {
					marker = "*"
				}
				cmd.Printf("%s %s\n", marker, c.Name)
			}
			return nil
		},
	})

	cases.AddCommand(&cobra.Command{
		Use:   "new NAME",
		Short: "Create a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := api().createCase(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("Created case %s\n", name)
			return nil
		},
	})

	cases.AddCommand(&cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := api().renameCase(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			cmd.Printf("Renamed %s to %s\n", args[0], name)
			return nil
		},
	})

	var unpin bool
	pin := &cobra.Command{
		Use:   "pin NAME",
		Short: "Pin a case to the top of the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := api().pinCase(cmd.Context(), args[0], !unpin); err != nil {
				return err
			}
			if unpin {
				cmd.Printf("Unpinned %s\n", args[0])
			} else {
				cmd.Printf("Pinned %s\n", args[0])
			}
			return nil
		},
	}
	pin.Flags().BoolVar(&unpin, "unpin", false, "remove the pin instead")
	cases.AddCommand(pin)

	cases.AddCommand(&cobra.Command{
		Use:   "rm NAME",
		Short: "Move a case to the trash (removed at next daemon start)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := api().deleteCase(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("Trashed %s\n", args[0])
			return nil
		},
	})

	return cases
}

func newIngestCmd(api func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest CASE FILE...",
		Short: "Upload documents into a case",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := api().ingest(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			printIngestReport(cmd, report)
			return nil
		},
	}
}

func printIngestReport(cmd *cobra.Command, report *ingestResponse) {
	for _, f := range report.Files {
		switch f.Status {
		case "indexed":
			cmd.Printf("  %-30s %d fragments\n", f.Name, f.Fragments)
		default:
			cmd.Printf("  %-30s %s (%s)\n", f.Name, f.Status, f.Detail)
		}
	}
	cmd.Printf("Indexed %d fragments in %d batches\n", report.Indexed, report.Batches)
	if report.Error != "" {
		cmd.Printf("Warning: indexing stopped early: %s\n", report.Error)
	}
}

func newAskCmd(api func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "ask CASE QUESTION",
		Short: "Ask a question against a case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := api().ask(cmd.Context(), args[0], args[1], func(chunk string) {
				cmd.Print(chunk)
			})
			cmd.Println()
			if err != nil {
				return err
			}
			if len(sources) > 0 {
				cmd.Printf("\nSources: %v\n", sources)
			}
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
