package main

import (
	"errors"
	"fmt"
	"sort"

	"compliance-stream/src/client"
	"compliance-stream/src/models"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity behind the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := newSessionStore()
		if err != nil {
			return err
		}
		restored, err := store.Restore(cmd.Context())
		if err != nil {
			return err
		}
		if !restored {
			return fmt.Errorf("not logged in, run 'compliancectl login' first")
		}

		// Round-trip through the gateway so the displayed identity is the
		// server's current answer, not the restored snapshot.
		gateway := client.NewGateway(apiURL, store, nil)
		var user models.User
		if err := gateway.Get(cmd.Context(), "/auth/me", &user); err != nil {
			if errors.Is(err, models.ErrTokenInvalid) {
				_ = store.Logout()
				return fmt.Errorf("session expired, run 'compliancectl login' again")
			}
			return err
		}

		fmt.Printf("%s (id %d, role %s)\n", user.Username, user.ID, user.Role.Name)
		permissions := make([]string, 0, len(user.Role.Permissions))
		for name, granted := range user.Role.Permissions {
			if granted {
				permissions = append(permissions, name)
			}
		}
		sort.Strings(permissions)
		for _, name := range permissions {
			fmt.Printf("  permission: %s\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
