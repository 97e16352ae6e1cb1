package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/moonshubh/Agent-Sparrow-sub001/retry"
)

var showPanel bool

// chatCmd sends one message, or reads messages from stdin when none is given.
var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Send a message and stream the reply",
	Long: `Sends a message to the agent and streams the reply to stdout.

Without arguments, each line read from stdin is sent as a message. Lines
typed while a reply is streaming steer the running turn. Press Ctrl+C to
abort the current reply.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&showPanel, "panel", false, "Print the reasoning panel after each reply")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	p := newPrinter(out)
	unsubscribe := s.Runner().Subscribe(p.Update)
	defer unsubscribe()

	fmt.Fprintf(cmd.ErrOrStderr(), "session %s\n", s.Runner().SessionID())

	send := func(msg string) error {
		res, err := s.Send(ctx, msg)
		if err != nil {
			return err
		}
		p.Finish(res)
		if showPanel {
			writePanel(out, res.Panel, res.Recovery)
		}
		return nil
	}

	if len(args) > 0 {
		return send(strings.Join(args, " "))
	}
	return chatLoop(ctx, os.Stdin, send)
}

// chatLoop sends each non-empty line of r until EOF or ctx is done. Each
// line is sent on its own goroutine so a line read during a reply steers it.
func chatLoop(ctx context.Context, r io.Reader, send func(string) error) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := send(line)
			if err == nil || errors.Is(err, retry.ErrAborted) || errors.Is(err, context.Canceled) {
				return
			}
			fmt.Fprintln(os.Stderr, "error:", err)
		}()
	}
	return sc.Err()
}
