package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moonshubh/Agent-Sparrow-sub001/persist"
)

// historyCmd prints the persisted transcript of a session.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the persisted messages of a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sessionID == "" {
			return errors.New("--session is required")
		}
		ctx, cancel := signalContext()
		defer cancel()

		s, err := open(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		msgs, err := s.History(ctx, sessionID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range msgs {
			fmt.Fprintf(out, "[%s] %s", m.MessageType, strings.TrimSpace(m.Content))
			if n := len(persist.ArtifactsFrom(m.Metadata)); n > 0 {
				fmt.Fprintf(out, " (%d artifacts)", n)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}
