package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nostrchat/internal/pool"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Manage the configured relay set",
}

var relayListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured relays",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(false)
		if err != nil {
			return err
		}
		defer sess.close()

		for _, relayURL := range sess.settings.Relays {
			fmt.Println(relayURL)
		}
		return nil
	},
}

var relayAddCmd = &cobra.Command{
	Use:   "add <wss-url>",
	Short: "Add a relay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(false)
		if err != nil {
			return err
		}
		defer sess.close()

		if !sess.settings.AddRelay(args[0]) {
			fmt.Println("already configured")
			return nil
		}
		return sess.settings.Save()
	},
}

var relayRemoveCmd = &cobra.Command{
	Use:   "remove <wss-url>",
	Short: "Remove a relay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(false)
		if err != nil {
			return err
		}
		defer sess.close()

		if !sess.settings.RemoveRelay(args[0]) {
			fmt.Println("not configured")
			return nil
		}
		return sess.settings.Save()
	},
}

var relayHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every configured relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(false)
		if err != nil {
			return err
		}
		defer sess.close()

		for _, report := range pool.CheckAll(cmd.Context(), sess.settings.Relays) {
			if report.Status == pool.StatusConnected {
				fmt.Printf("%-40s %s (%d ms)\n", report.URL, report.Status, report.LatencyMs)
			} else {
				fmt.Printf("%-40s %s (%s)\n", report.URL, report.Status, report.ErrorMsg)
			}
		}
		return nil
	},
}

func init() {
	relayCmd.AddCommand(relayListCmd, relayAddCmd, relayRemoveCmd, relayHealthCmd)
	rootCmd.AddCommand(relayCmd)
}
