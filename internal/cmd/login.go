package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inmapper/authkit/internal/tui"
	"github.com/inmapper/authkit/pkg/otp"
)

var loginCallback string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a one-time email code",
	Long: `Starts the interactive OTP flow: enter your email, receive a six-digit
code, and type or paste it. On success the session token is stored
locally. With --callback, the token is handed off to the given URL
instead of finishing locally.`,
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	session, cleanup, err := newSession()
	if err != nil {
		return err
	}
	defer cleanup()

	flow := otp.New(session.API(), session, loginCallback)
	if err := tui.Run(flow); err != nil {
		return err
	}

	if flow.State() != otp.StateVerifiedSuccess {
		return fmt.Errorf("sign in not completed")
	}
	if user := flow.User(); user != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", user.Email)
	}
	return nil
}

func init() {
	loginCmd.Flags().StringVar(&loginCallback, "callback", "",
		"hand the token off to this URL after verification")
	rootCmd.AddCommand(loginCmd)
}
