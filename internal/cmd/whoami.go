package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiRefresh bool

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

func runWhoami(cmd *cobra.Command, args []string) error {
	session, cleanup, err := newSession()
	if err != nil {
		return err
	}
	defer cleanup()

	get := session.GetUser
	if whoamiRefresh {
		get = session.RefreshUser
	}
	user, err := get(cmd.Context())
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("not signed in")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:        %s\n", user.ID)
	fmt.Fprintf(out, "email:     %s\n", user.Email)
	fmt.Fprintf(out, "name:      %s\n", user.Name)
	fmt.Fprintf(out, "verified:  %t\n", user.IsVerified)
	fmt.Fprintf(out, "admin:     %t\n", user.IsAdmin)
	for _, p := range user.Permissions {
		fmt.Fprintf(out, "permission: %s=%t\n", p.Resource, p.CanAccess)
	}
	return nil
}

func init() {
	whoamiCmd.Flags().BoolVar(&whoamiRefresh, "refresh", false,
		"revalidate against the Auth API instead of the cached user")
	rootCmd.AddCommand(whoamiCmd)
}
