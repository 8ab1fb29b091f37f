package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the session token and clear the local session",
	Long: `Asks the Auth API to revoke the current token, then clears the local
session. The local session is cleared even when revocation fails.`,
	RunE: runLogout,
}

func runLogout(cmd *cobra.Command, args []string) error {
	session, cleanup, err := newSession()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := session.Logout(cmd.Context(), false); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "signed out")
	return nil
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
