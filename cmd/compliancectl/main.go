// compliancectl is a terminal client for the compliance platform: it logs in,
// keeps the session across runs, and follows live task status over the push
// stream.
package main

import (
	"fmt"
	"os"

	"compliance-stream/logger"
	"compliance-stream/src/client"
	"compliance-stream/src/credstore"

	"github.com/spf13/cobra"
)

var (
	apiURL    string
	tokenFile string
)

var rootCmd = &cobra.Command{
	Use:   "compliancectl",
	Short: "Client for the compliance platform task stream",
	Long: `compliancectl authenticates against the compliance platform and follows
asynchronous task status (evidence parsing, report generation) in real time
over the server-push stream.`,
	SilenceUsage: true,
}

func main() {
	logger.Init()

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url",
		os.Getenv("COMPLIANCE_API_URL"), "Base URL of the compliance API (or COMPLIANCE_API_URL)")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file",
		"", "Path of the persisted auth token (defaults to the user config dir)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func requireAPIURL() error {
	if apiURL == "" {
		return fmt.Errorf("no API URL: set --api-url or COMPLIANCE_API_URL")
	}
	return nil
}

func newCredStore() (*credstore.Store, error) {
	path := tokenFile
	if path == "" {
		var err error
		path, err = credstore.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return credstore.NewStore(path), nil
}

func newSessionStore() (*client.SessionStore, error) {
	if err := requireAPIURL(); err != nil {
		return nil, err
	}
	creds, err := newCredStore()
	if err != nil {
		return nil, err
	}
	return client.NewSessionStore(apiURL, creds, nil), nil
}
