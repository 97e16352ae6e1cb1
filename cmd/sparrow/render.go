package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/panel"
	"github.com/moonshubh/Agent-Sparrow-sub001/runner"
)

// printer writes the streaming assistant reply incrementally.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	id   string
	text string
	done bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

// Update prints whatever part of the trailing assistant message is new.
func (p *printer) Update(snap runner.Snapshot) {
	if len(snap.Messages) == 0 {
		return
	}
	m := snap.Messages[len(snap.Messages)-1]
	if m.Role != core.RoleAssistant {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(m)
}

// Finish completes the reply of a turn and reports its error, if any.
func (p *printer) Finish(res *runner.TurnResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res.Assistant != nil {
		p.write(*res.Assistant)
	}
	if p.text != "" && !p.done {
		fmt.Fprintln(p.w)
	}
	p.done = true
	if res.Error != "" {
		fmt.Fprintf(p.w, "error: %s\n", res.Error)
	}
}

func (p *printer) write(m core.Message) {
	if m.ID != p.id {
		// Reconciliation swaps the local ID for a durable one; same text.
		if p.text == "" || !strings.HasPrefix(m.Content, p.text) {
			if p.text != "" && !p.done {
				fmt.Fprintln(p.w)
			}
			p.text = ""
			p.done = false
		}
		p.id = m.ID
	}
	if p.done || !strings.HasPrefix(m.Content, p.text) {
		return
	}
	if delta := m.Content[len(p.text):]; delta != "" {
		io.WriteString(p.w, delta)
		p.text = m.Content
	}
}

// writePanel prints lanes with their objectives, then todos and recovery.
func writePanel(w io.Writer, st panel.State, rec core.StreamRecovery) {
	fmt.Fprintf(w, "run %s: %s\n", orDash(st.RunID), st.RunStatus)
	for _, id := range st.LaneOrder {
		lane, ok := st.Lanes[id]
		if !ok {
			continue
		}
		label := lane.Label
		if label == "" {
			label = lane.ID
		}
		fmt.Fprintf(w, "  lane %s [%s]\n", label, lane.Status)
		for _, o := range st.LaneObjectives(id) {
			title := o.Title
			if title == "" {
				title = string(o.Kind)
			}
			fmt.Fprintf(w, "    - %-8s %-10s %s\n", o.Phase, o.Status, title)
		}
	}
	if len(st.Todos) > 0 {
		fmt.Fprintln(w, "  todos")
		for _, t := range st.Todos {
			fmt.Fprintf(w, "    [%s] %s\n", t.Status, t.Title)
		}
	}
	if rec.AttemptsUsed > 1 || rec.Exhausted || rec.Incomplete {
		fmt.Fprintf(w, "  recovery: attempts=%d exhausted=%t incomplete=%t\n",
			rec.AttemptsUsed, rec.Exhausted, rec.Incomplete)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
