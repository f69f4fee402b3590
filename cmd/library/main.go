// cmd/library/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "library",
		Short:         "Library lending service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")

	load := func() (*app, error) { return newApp(envFile) }

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Run one lifecycle sweep and exit",
	}
	sweep.AddCommand(
		newJobCmd(load, "overdue", "Mark past-due loans overdue", jobMarkOverdue),
		newJobCmd(load, "reservations", "Expire stale reservations", jobExpireReservations),
	)

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		sweep,
		newRemindCmd(load),
	)
	return root
}
