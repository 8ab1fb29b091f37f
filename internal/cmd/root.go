// Package cmd wires the inmapper-auth CLI: an OTP sign-in flow plus
// session inspection commands, all backed by the session client with a
// durable SQLite store.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/inmapper/authkit/pkg/client"
)

var (
	apiURL   string
	loginURL string
	dataDir  string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "inmapper-auth",
	Short: "Sign in to inMapper and manage the local session",
	Long: `inmapper-auth signs you in to the inMapper Auth API with a one-time
email code and keeps the resulting session on disk, where other tools
can use it for authenticated requests.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api",
		envOr("INMAPPER_API_URL", "https://auth.inmapper.com"),
		"Auth API base URL")
	rootCmd.PersistentFlags().StringVar(&loginURL, "login-url",
		envOr("INMAPPER_LOGIN_URL", "https://login.inmapper.com"),
		"shared login origin")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"directory for the session database (default: user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose client logging")
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// newSession builds the session client over the on-disk store. The
// returned cleanup closes the store.
func newSession() (*client.Client, func(), error) {
	dir := dataDir
	if dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't locate config dir: %w", err)
		}
		dir = filepath.Join(configDir, "inmapper")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("couldn't create data dir: %w", err)
	}

	store, err := client.NewSQLiteStore(filepath.Join(dir, "session.db"))
	if err != nil {
		return nil, nil, err
	}

	logLevel := client.LogLevelError
	if verbose {
		logLevel = client.LogLevelDebug
	}

	c := client.New(client.Config{
		APIURL:   apiURL,
		LoginURL: loginURL,
		Store:    store,
		// a CLI has nowhere to redirect a browser to
		DisableAutoRedirect: true,
		LogLevel:            logLevel,
	})
	cleanup := func() { _ = store.Close() }
	return c, cleanup, nil
}
