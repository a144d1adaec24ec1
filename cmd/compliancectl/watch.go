package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"compliance-stream/logger"
	"compliance-stream/src/client"
	"compliance-stream/src/models"

	"github.com/spf13/cobra"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live task status updates",
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

		stream := client.NewStreamClient(apiURL, store, nil,
			client.WithConnectHook(func() {
				logger.Logger.Info("Stream connected, task state may have gaps to reconcile")
			}))
		// The stream must not outlive this command or its session on any
		// exit path.
		store.Bind(stream)
		defer stream.Close()

		if err := stream.Connect(); err != nil {
			return err
		}

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()

		var lastPrinted *models.TaskUpdate
		for {
			select {
			case <-interrupt:
				fmt.Println("\nStopping watch")
				return nil
			case <-ticker.C:
				if errMsg := stream.ConnectionError(); errMsg != "" {
					logger.Logger.Warnf("Connection: %s", errMsg)
				}
				update := stream.LastUpdate()
				if update == nil || sameUpdate(update, lastPrinted) {
					continue
				}
				lastPrinted = update
				printUpdate(update)
			}
		}
	},
}

func sameUpdate(a, b *models.TaskUpdate) bool {
	if b == nil {
		return false
	}
	return a.TaskID == b.TaskID && a.Status == b.Status && progressOf(a) == progressOf(b)
}

func progressOf(u *models.TaskUpdate) int {
	if u.Progress == nil {
		return -1
	}
	return *u.Progress
}

func printUpdate(update *models.TaskUpdate) {
	line := fmt.Sprintf("task %d [%s] %s", update.TaskID, update.TaskType, update.Status)
	if update.Progress != nil {
		line += fmt.Sprintf(" %d%%", *update.Progress)
	}
	if update.Error != "" {
		line += " error: " + update.Error
	}
	fmt.Println(line)
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "How often to render stream state")
	rootCmd.AddCommand(watchCmd)
}
