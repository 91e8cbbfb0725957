package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/calldesk/internal/proto"
	"github.com/vovakirdan/calldesk/internal/service/calls"
)

type historyOptions struct {
	direction string
	status    string
	pages     int
}

func runHistory(cmd *cobra.Command, flags *rootFlags, opts historyOptions) error {
	direction, ok := parseDirection(opts.direction)
	if !ok {
		return fmt.Errorf("invalid --direction %q: want inbound or outbound", opts.direction)
	}

	ctx := cmd.Context()
	cl, _, _, err := openClient(ctx, flags)
	if err != nil {
		return err
	}

	pages := cl.Calls.History(calls.HistoryFilter{
		Direction: direction,
		Status:    proto.CallStatus(opts.status),
	})
	for opts.pages <= 0 || pages.PageCount() < opts.pages {
		if !pages.HasNext() {
			break
		}
		if _, err := pages.FetchNext(ctx); err != nil {
			return err
		}
	}

	records := pages.Items()
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no calls")
		return nil
	}
	writeHistory(cmd.OutOrStdout(), records)
	if pages.HasNext() {
		fmt.Fprintf(cmd.OutOrStdout(), "more calls available, use --pages %d\n", pages.PageCount()+1)
	}
	return nil
}

func writeHistory(w io.Writer, records []proto.CallRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDIRECTION\tSTATUS\tFROM\tTO\tSTARTED\tDURATION")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Direction,
			r.Status,
			orDash(r.SourceE164),
			orDash(r.DestinationE164),
			r.StartedAt.Local().Format(time.DateTime),
			formatDuration(r.DurationSeconds),
		)
	}
	_ = tw.Flush()
}

func runTranscript(cmd *cobra.Command, flags *rootFlags, callID string, follow bool) error {
	ctx := cmd.Context()
	cl, _, _, err := openClient(ctx, flags)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !follow {
		segments, err := cl.Calls.Transcript(ctx, callID)
		if err != nil {
			return err
		}
		if len(segments) == 0 {
			fmt.Fprintln(out, "no transcript")
			return nil
		}
		for _, seg := range segments {
			writeSegment(out, seg)
		}
		return nil
	}

	err = cl.Calls.FollowTranscript(ctx, callID, func(seg proto.TranscriptSegment) error {
		writeSegment(out, seg)
		return nil
	})
	return ignoreCanceled(err)
}

func writeSegment(w io.Writer, seg proto.TranscriptSegment) {
	fmt.Fprintf(w, "[%s] %s: %s\n", formatOffset(seg.StartTime), seg.ParticipantIdentity, seg.Text)
}

// formatOffset renders seconds from call start as m:ss.
func formatOffset(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
