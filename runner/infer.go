package runner

import (
	"path"
	"regexp"
	"strings"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
)

// AgentTypeLogAnalysis is sent when a message looks like a log-analysis
// request.
const AgentTypeLogAnalysis = "log_analysis"

// LogHeuristics tunes log-analysis intent inference. The rules are lexical
// heuristics and may be adjusted freely.
type LogHeuristics struct {
	// Disabled turns inference off.
	Disabled bool
	// Extensions of attached files that imply log analysis.
	Extensions []string
	// MimeTypes of attached files that imply log analysis.
	MimeTypes []string
	// Phrases in the message text that imply log analysis.
	Phrases []string
	// MinLogLines is the number of log-shaped lines in a pasted message that
	// implies log analysis.
	MinLogLines int
}

// DefaultLogHeuristics returns the default inference rules.
func DefaultLogHeuristics() LogHeuristics {
	return LogHeuristics{
		Extensions:  []string{".log", ".txt", ".out", ".err", ".trace"},
		MimeTypes:   []string{"text/x-log", "application/x-log"},
		Phrases:     []string{"analyze this log", "analyze the log", "log file", "stack trace", "error log", "logs attached"},
		MinLogLines: 3,
	}
}

var logLinePattern = regexp.MustCompile(`(?m)^\s*(\[?\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}|\[?(TRACE|DEBUG|INFO|WARN|WARNING|ERROR|FATAL)\]?[\s:])`)

// InferAgentType returns AgentTypeLogAnalysis when the content or
// attachments look like a log-analysis request, else "".
func (h LogHeuristics) InferAgentType(content string, attachments []core.Attachment) string {
	if h.Disabled {
		return ""
	}
	for _, a := range attachments {
		ext := strings.ToLower(path.Ext(a.Name))
		for _, e := range h.Extensions {
			if ext == e {
				return AgentTypeLogAnalysis
			}
		}
		mt := strings.ToLower(a.MimeType)
		for _, m := range h.MimeTypes {
			if mt == m {
				return AgentTypeLogAnalysis
			}
		}
	}

	lower := strings.ToLower(content)
	for _, p := range h.Phrases {
		if strings.Contains(lower, p) {
			return AgentTypeLogAnalysis
		}
	}
	if h.MinLogLines > 0 && len(logLinePattern.FindAllStringIndex(content, h.MinLogLines)) >= h.MinLogLines {
		return AgentTypeLogAnalysis
	}
	return ""
}
