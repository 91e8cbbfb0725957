// Command calldesk is a terminal softphone for the calldesk backend.
//
// Place an outbound call:
//
//	calldesk call +14155551234
//
// Answer a ringing inbound call by room name:
//
//	calldesk join call-3f2a... --caller +442079460018
//
// Browse history and transcripts:
//
//	calldesk history --direction inbound --pages 2
//	calldesk transcript <call-id> --follow
//
// Run the local development backend:
//
//	calldesk devserver
//
// Configuration is read from config.yaml (see --config) and CALLDESK_*
// environment variables, e.g. CALLDESK_BASE_URL or CALLDESK_SESSION_COOKIE.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/calldesk/internal/api"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

// Process exit codes.
const (
	exitOK            = 0
	exitFailure       = 1
	exitLoginRequired = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := buildRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	stop()

	os.Exit(exitCode(err, rootCmd.ErrOrStderr()))
}

// exitCode reports err on w and maps it to a process exit code.
func exitCode(err error, w io.Writer) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitOK
	case api.IsUnauthorized(err):
		fmt.Fprintln(w, "login required: run `calldesk login <identity> --save` or set CALLDESK_SESSION_COOKIE")
		return exitLoginRequired
	case api.IsInsufficientBalance(err):
		fmt.Fprintln(w, "insufficient balance: top up the account to place calls")
		return exitFailure
	default:
		fmt.Fprintln(w, "error:", err)
		return exitFailure
	}
}

func buildRootCmd() *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:     "calldesk",
		Short:   "calldesk - terminal softphone for PSTN calls over LiveKit",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Errors are reported by exitCode.
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to YAML configuration file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve client Prometheus metrics on this address")

	rootCmd.AddCommand(
		buildCallCmd(&flags),
		buildJoinCmd(&flags),
		buildHistoryCmd(&flags),
		buildTranscriptCmd(&flags),
		buildLoginCmd(&flags),
		buildDevServerCmd(&flags),
		buildConfigCmd(&flags),
	)

	return rootCmd
}
