package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// newChatCmd is the interactive loop: questions stream answers, slash
// commands manage the session.
func newChatCmd(api func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "chat CASE",
		Short: "Interactive question loop against a case",
		Long: `Chat opens an interactive session against one case.

Plain input is asked as a question; the answer streams back with its
sources. Commands:

  /attach FILE...   upload documents into the current case
  /switch CASE      change the active case
  /cases            list cases
  /quit             leave the chat`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := api()
			if err := c.waitHealthy(cmd.Context(), 3*time.Second); err != nil {
				return err
			}
			return runChat(cmd, c, args[0])
		},
	}
}

func runChat(cmd *cobra.Command, c *client, caseName string) error {
	cmd.Printf("Chatting against case %s. /quit to leave, /attach FILE to upload.\n", caseName)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		cmd.Printf("\n%s> ", caseName)
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, newCase, err := runChatCommand(cmd, c, caseName, line)
			if err != nil {
				cmd.Printf("Error: %v\n", err)
				continue
			}
			if quit {
				return nil
			}
			if newCase != "" {
				caseName = newCase
			}
			continue
		}

		sources, err := c.ask(cmd.Context(), caseName, line, func(chunk string) {
			cmd.Print(chunk)
		})
		cmd.Println()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			continue
		}
		if len(sources) > 0 {
			cmd.Printf("  [sources: %s]\n", strings.Join(sources, ", "))
		}
	}
}

// runChatCommand handles one slash command. It reports whether to quit
// and, for /switch, the new case name.
func runChatCommand(cmd *cobra.Command, c *client, caseName, line string) (bool, string, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, "", nil

	case "/cases":
		list, err := c.listCases(cmd.Context())
		if err != nil {
			return false, "", err
		}
		for _, entry := range list {
			marker := " "
			if entry.Pinned {
				marker = "*"
			}
			cmd.Printf("%s %s\n", marker, entry.Name)
		}
		return false, "", nil

	case "/switch":
		if len(fields) != 2 {
			return false, "", fmt.Errorf("usage: /switch CASE")
		}
		cmd.Printf("Switched to %s\n", fields[1])
		return false, fields[1], nil

	case "/attach":
		if len(fields) < 2 {
			return false, "", fmt.Errorf("usage: /attach FILE...")
		}
		report, err := c.ingest(cmd.Context(), caseName, fields[1:])
		if err != nil {
			return false, "", err
		}
		printIngestReport(cmd, report)
		return false, "", nil

	default:
		return false, "", fmt.Errorf("unknown command %s", fields[0])
	}
}
