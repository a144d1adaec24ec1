package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"compliance-stream/logger"
	"compliance-stream/src/models"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"
)

var loginUsername string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and persist the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := newSessionStore()
		if err != nil {
			return err
		}

		username := loginUsername
		if username == "" {
			fmt.Print("Username: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read username: %w", err)
			}
			username = strings.TrimSpace(line)
		}

		fmt.Print("Password: ")
		password, err := terminal.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		if err := store.Login(cmd.Context(), username, string(password)); err != nil {
			if errors.Is(err, models.ErrInvalidCredentials) {
				return fmt.Errorf("login rejected: invalid username or password")
			}
			return err
		}

		user := store.User()
		logger.Logger.Infof("Logged in as %s (role %s)", user.Username, user.Role.Name)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := newSessionStore()
		if err != nil {
			return err
		}
		// Restore first so logout revokes the token server-side instead of
		// only deleting the local file.
		if _, err := store.Restore(cmd.Context()); err != nil {
			logger.Logger.Warnf("Could not restore session before logout: %v", err)
		}
		if err := store.Logout(); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username to authenticate as")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
