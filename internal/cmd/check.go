package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <resource>",
	Short: "Check access to a permission-gated resource",
	Long: `Asks the Auth API whether the current session grants access to the
named resource. Always revalidates; permission state is never served
from the local cache.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	session, cleanup, err := newSession()
	if err != nil {
		return err
	}
	defer cleanup()

	resource := args[0]
	granted, err := session.HasPermission(cmd.Context(), resource)
	if err != nil {
		return err
	}
	if !granted {
		return fmt.Errorf("access to %q denied", resource)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "access to %q granted\n", resource)
	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
