package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LaPingvino/offlinecache/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the offline store and block, for manual testing",
	Long: `serve is not a network server: it opens the facade over the configured
store and asset root and blocks until interrupted, so the database file can
be inspected or driven from another offlinectl invocation while it is held
open.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	log := logging.GetModuleLogger("offlinectl").Module("serve")
	log.Info("offline store open, press Ctrl-C to exit")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Println()
	log.Info("shutting down")
	return nil
}
