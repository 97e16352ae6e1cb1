// Package retry classifies run failures and holds the backoff policy applied
// to transient transport errors.
package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/moonshubh/Agent-Sparrow-sub001/internal/util"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
)

// ErrAborted marks a run cancelled by the user or by prompt steering.
var ErrAborted = errors.New("run aborted")

// Class is the failure taxonomy of a run.
type Class int

const (
	// Fatal errors end the turn and are surfaced as-is.
	Fatal Class = iota
	// Transient transport errors are retried with backoff.
	Transient
	// Abort is a deliberate cancellation; never retried, never surfaced.
	Abort
	// TokenLimit means the request no longer fits the model context.
	TokenLimit
	// Backend is a run failure reported by the agent backend.
	Backend
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Abort:
		return "abort"
	case TokenLimit:
		return "token_limit"
	case Backend:
		return "backend"
	default:
		return "fatal"
	}
}

// User-facing messages.
const (
	ExhaustedMessage  = "Partial output — connection was unstable. Some steps may be incomplete."
	TokenLimitMessage = "This conversation is too long for the model's context window. Start a new chat or remove large attachments and try again."
)

// MaxMessageLen bounds surfaced backend error text.
const MaxMessageLen = 500

var (
	tokenLimitPattern = regexp.MustCompile(`(?i)(context[ _-]?length|context window|maximum context|too many tokens|token limit|max[_ ]?tokens|prompt is too long|request too large|payload too large)`)
	transientPattern  = regexp.MustCompile(`(?i)(failed to fetch|network ?error|econnreset|econnrefused|connection reset|connection refused|broken pipe|unexpected eof|timed? ?out|timeout|temporarily unavailable|stream (was )?(closed|interrupted))`)
)

// Classify maps err onto the failure taxonomy. Token-limit detection wins
// over backend classification so an oversized request is never retried.
func Classify(err error) Class {
	if err == nil {
		return Fatal
	}
	if errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) {
		return Abort
	}
	msg := err.Error()
	if tokenLimitPattern.MatchString(msg) {
		return TokenLimit
	}

	var runErr *protocol.RunFailedError
	if errors.As(err, &runErr) {
		return Backend
	}
	var statusErr *protocol.HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusRequestEntityTooLarge {
			return TokenLimit
		}
		if statusErr.Transient() {
			return Transient
		}
		return Fatal
	}

	if errors.Is(err, protocol.ErrStreamEnded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	if transientPattern.MatchString(msg) {
		return Transient
	}
	return Fatal
}

// Policy is the retry schedule. Attempt n (1-based) that fails transiently
// is followed by a wait of n*BaseDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy retries up to four attempts in total: 2.5s, 5s, 7.5s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: 2500 * time.Millisecond}
}

// Delay returns the wait after the given failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * p.BaseDelay
}

// Budget counts attempts against a policy. It is safe for concurrent use.
type Budget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewBudget creates a budget of max attempts. max <= 0 means unlimited.
func NewBudget(max int) *Budget {
	return &Budget{max: max}
}

// Begin records an attempt and returns an error once the budget is spent.
func (b *Budget) Begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.count >= b.max {
		return fmt.Errorf("exceeded max attempts: %d", b.max)
	}
	b.count++
	return nil
}

// Used returns the number of attempts started.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Remaining returns how many attempts are left, or -1 when unlimited.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max <= 0 {
		return -1
	}
	return b.max - b.count
}

// Exhausted reports whether no attempts are left.
func (b *Budget) Exhausted() bool {
	return b.Remaining() == 0
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MessageOf renders an arbitrary failure payload as one bounded line.
// Errors use their text, strings are used verbatim, and structured values
// prefer a "message", "error" or "detail" field.
func MessageOf(v any) string {
	var msg string
	switch x := v.(type) {
	case nil:
		msg = ""
	case error:
		msg = x.Error()
	case string:
		msg = x
	case map[string]any:
		msg = fieldMessage(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			msg = fmt.Sprint(x)
			break
		}
		var m map[string]any
		if json.Unmarshal(b, &m) == nil {
			msg = fieldMessage(m)
		} else {
			msg = string(b)
		}
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "The agent run failed."
	}
	return util.Clamp(msg, MaxMessageLen)
}

func fieldMessage(m map[string]any) string {
	for _, k := range []string{"message", "error", "detail", "reason"} {
		switch v := m[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]any:
			if s := fieldMessage(v); s != "" {
				return s
			}
		}
	}
	if len(m) == 0 {
		return ""
	}
	b, _ := json.Marshal(m)
	return string(b)
}

// UserMessage returns the text surfaced to the user for err, or "" for
// aborts.
func UserMessage(err error) string {
	switch Classify(err) {
	case Abort:
		return ""
	case TokenLimit:
		return TokenLimitMessage
	case Backend:
		var runErr *protocol.RunFailedError
		if errors.As(err, &runErr) {
			return MessageOf(runErr.Payload)
		}
	}
	return MessageOf(err)
}
