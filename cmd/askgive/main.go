package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "askgive",
	Short:         "Normalize BNI chapter ask/give rosters and find referral matches",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(
		rosterImportCmd,
		rosterSyncCmd,
		referenceImportCmd,
		membersCmd,
		matchCmd,
		exportCmd,
		mailFetchCmd,
		mailProcessCmd,
		mailListenCmd,
		serveCmd,
	)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(rootCmd.ExecuteContext(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
