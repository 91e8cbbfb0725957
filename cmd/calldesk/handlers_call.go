package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/calldesk/internal/core"
	"github.com/vovakirdan/calldesk/internal/service/calls"
)

type callOptions struct {
	number        string
	phoneNumberID string
	region        string
	agentName     string
	channel       string
}

type joinOptions struct {
	room         string
	callerNumber string
	callerName   string
}

// callSession is the part of *core.Session the interactive loop drives.
type callSession interface {
	Events() <-chan core.Event
	ToggleMicrophone(ctx context.Context) (bool, error)
	End()
	Err() error
	Info() core.Info
}

const (
	keyMute   = 'm'
	keyHangUp = 'q'
	keyCtrlC  = 3
)

func runCall(cmd *cobra.Command, flags *rootFlags, opts callOptions) error {
	ctx := cmd.Context()
	cl, cfg, logger, err := openClient(ctx, flags)
	if err != nil {
		return err
	}
	if err := requireIdentity(cfg); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "dialing %s...\n", opts.number)
	sess, err := cl.Calls.Dial(ctx, calls.DialRequest{
		Number:        opts.number,
		PhoneNumberID: opts.phoneNumberID,
		Region:        opts.region,
		AgentName:     opts.agentName,
		Channel:       opts.channel,
	})
	if err != nil {
		return err
	}
	logger.Debug().Str("room", sess.Info().RoomName).Msg("call session started")

	return interact(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), sess)
}

func runJoin(cmd *cobra.Command, flags *rootFlags, opts joinOptions) error {
	ctx := cmd.Context()
	cl, cfg, _, err := openClient(ctx, flags)
	if err != nil {
		return err
	}
	if err := requireIdentity(cfg); err != nil {
		return err
	}

	sess, err := cl.Calls.Accept(ctx, calls.AcceptRequest{
		RoomName:     opts.room,
		CallerNumber: opts.callerNumber,
		CallerName:   opts.callerName,
	})
	if err != nil {
		return err
	}

	return interact(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), sess)
}

// interact reads single keystrokes from in while the session runs.
func interact(ctx context.Context, in io.Reader, out io.Writer, sess callSession) error {
	keys, restore := readKeys(in)
	defer restore()
	if isRaw(in) {
		out = crlfWriter{out}
	}
	return attend(ctx, keys, out, sess)
}

// attend prints session events and handles keys until the session is
// disconnected. Cancelling ctx hangs up.
func attend(ctx context.Context, keys <-chan byte, out io.Writer, sess callSession) error {
	info := sess.Info()
	caller := info.CallerNumber
	if info.CallerName != "" {
		caller = fmt.Sprintf("%s (%s)", info.CallerName, info.CallerNumber)
	}
	fmt.Fprintf(out, "room %s as %s", info.RoomName, info.Identity)
	if caller != "" {
		fmt.Fprintf(out, ", caller %s", caller)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "press m to toggle the microphone, q to hang up")

	events := sess.Events()
	done := ctx.Done()
	for {
		select {
		case <-done:
			done = nil
			fmt.Fprintln(out, "hanging up")
			go sess.End()

		case key, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			switch key {
			case keyMute, 'M':
				enabled, err := sess.ToggleMicrophone(ctx)
				if err != nil {
					fmt.Fprintf(out, "microphone: %v\n", err)
				} else if !enabled {
					fmt.Fprintln(out, "microphone off")
				}
			case keyHangUp, 'Q', keyCtrlC:
				fmt.Fprintln(out, "hanging up")
				go sess.End()
			}

		case ev, ok := <-events:
			if !ok {
				if err := sess.Err(); err != nil {
					return err
				}
				fmt.Fprintln(out, "call ended")
				return nil
			}
			printEvent(out, ev)
		}
	}
}

func printEvent(out io.Writer, ev core.Event) {
	switch ev.Kind {
	case core.EventPhaseChanged:
		fmt.Fprintf(out, "[%s]\n", ev.Phase)
	case core.EventParticipantJoined:
		fmt.Fprintf(out, "%s joined\n", ev.Identity)
	case core.EventParticipantLeft:
		fmt.Fprintf(out, "%s left\n", ev.Identity)
	case core.EventMicChanged:
		if ev.MicEnabled {
			fmt.Fprintln(out, "microphone on")
		}
	case core.EventFailed:
		fmt.Fprintf(out, "call failed: %v\n", ev.Err)
	}
}

// readKeys streams keystrokes from in. A terminal is switched to raw mode
// so keys arrive without Enter; restore puts it back.
func readKeys(in io.Reader) (<-chan byte, func()) {
	keys := make(chan byte, 8)
	restore := func() {}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if state, err := term.MakeRaw(int(f.Fd())); err == nil {
			restore = func() { _ = term.Restore(int(f.Fd()), state) }
		}
	}

	go func() {
		defer close(keys)
		r := bufio.NewReader(in)
		for {
			b, err := r.ReadByte()
			if err != nil {
				return
			}
			if b == '\n' || b == '\r' {
				continue
			}
			keys <- b
		}
	}()

	return keys, restore
}

func isRaw(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// crlfWriter adds carriage returns for terminals in raw mode.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(c.w, strings.ReplaceAll(string(p), "\n", "\r\n")); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ignoreCanceled treats a context cancellation as a clean stop.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
