package main

import (
	"github.com/spf13/cobra"

	"github.com/vovakirdan/calldesk/internal/proto"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

func buildCallCmd(flags *rootFlags) *cobra.Command {
	var opts callOptions

	cmd := &cobra.Command{
		Use:   "call <number>",
		Short: "Dial a phone number and join the call",
		Long: `Dial a phone number through the backend and join the media room.

While the call is up press "m" to toggle the microphone and "q" to hang up.
Ctrl-C also hangs up.`,
		Example: `  calldesk call +14155551234
  calldesk call "(415) 555-1234" --region US --agent support`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.number = args[0]
			return runCall(cmd, flags, opts)
		},
	}

	cmd.Flags().StringVar(&opts.phoneNumberID, "from", "", "Caller phone number id (defaults to phone_number_id)")
	cmd.Flags().StringVar(&opts.region, "region", "", "Region for national-format numbers (defaults to default_region)")
	cmd.Flags().StringVar(&opts.agentName, "agent", "", "Agent name to attach to the call")
	cmd.Flags().StringVar(&opts.channel, "channel", "", "Channel tag to attach to the call")

	return cmd
}

func buildJoinCmd(flags *rootFlags) *cobra.Command {
	var opts joinOptions

	cmd := &cobra.Command{
		Use:   "join <room>",
		Short: "Answer an inbound call by joining its room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.room = args[0]
			return runJoin(cmd, flags, opts)
		},
	}

	cmd.Flags().StringVar(&opts.callerNumber, "caller", "", "Caller number to display")
	cmd.Flags().StringVar(&opts.callerName, "caller-name", "", "Caller name to display")

	return cmd
}

func buildHistoryCmd(flags *rootFlags) *cobra.Command {
	var opts historyOptions

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List call history, newest first",
		Example: `  calldesk history
  calldesk history --direction inbound --status missed --pages 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, flags, opts)
		},
	}

	cmd.Flags().StringVar(&opts.direction, "direction", "", "Filter by direction (inbound, outbound)")
	cmd.Flags().StringVar(&opts.status, "status", "", "Filter by status (e.g. completed, missed)")
	cmd.Flags().IntVar(&opts.pages, "pages", 1, "Number of pages to load (0 loads all)")

	return cmd
}

func buildTranscriptCmd(flags *rootFlags) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "transcript <call-id>",
		Short: "Print a call transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscript(cmd, flags, args[0], follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new segments while the call is live")

	return cmd
}

func buildLoginCmd(flags *rootFlags) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "login <identity>",
		Short: "Open a session on the development backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, flags, args[0], save)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Store the session cookie and identity in the config file")

	return cmd
}

func buildDevServerCmd(flags *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run the local development backend",
		Long: `Run a local backend implementing the calldesk REST contract on SQLite.

It issues LiveKit tokens with the configured API key, records outbound calls
against a per-identity balance and serves call history and transcripts.
Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevServer(cmd, flags, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (defaults to devserver.addr)")

	return cmd
}

func buildConfigCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, flags)
		},
	}
}

// parseDirection validates the --direction flag.
func parseDirection(raw string) (proto.CallDirection, bool) {
	switch d := proto.CallDirection(raw); d {
	case "", proto.DirectionInbound, proto.DirectionOutbound:
		return d, true
	default:
		return "", false
	}
}
