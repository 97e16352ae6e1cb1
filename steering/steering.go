// Package steering decides whether a message typed while a run is still in
// flight continues the unfinished objective or starts something new.
//
// The decision is lexical: the message and the objective are reduced to
// keyword sets and compared. Thresholds are heuristic and configurable.
package steering

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/internal/util"
)

// Decision is the outcome of comparing a message with an objective.
type Decision int

const (
	// Ambiguous needs an explicit answer from the user.
	Ambiguous Decision = iota
	// Continue resumes the unfinished objective with the new message.
	Continue
	// Unrelated starts a fresh run without objective context.
	Unrelated
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Unrelated:
		return "unrelated"
	default:
		return "ambiguous"
	}
}

// ContextKey is the forwarded-props key carrying the overlap context.
const ContextKey = "overlap_objective_context"

// DefaultPrompt is rendered into the overlap context as "prompt".
const DefaultPrompt = `The user sent a follow-up while "{{.title}}" was still in progress.` +
	`{{if .summary}} Last known state: {{clamp 300 .summary}}.{{end}}` +
	` Treat the new message as guidance for that objective and resume it.`

// Options tunes the heuristic.
type Options struct {
	// MinOverlap is the fraction of objective tokens the message must share.
	MinOverlap float64
	// MinShared is the minimum number of shared tokens for Continue.
	MinShared int
	// Window is how long an ambiguous decision waits for the user.
	Window time.Duration
	// Markers are phrases that always mean a new topic.
	Markers []string
	// StopWords are ignored by the tokeniser.
	StopWords []string
	// Prompt is the text/template rendered into the overlap context.
	Prompt string
}

// DefaultMarkers are the explicit new-topic phrases.
var DefaultMarkers = []string{"different topic", "new topic", "unrelated", "switch to"}

var defaultStopWords = []string{
	"the", "and", "for", "are", "but", "not", "you", "all", "any", "can", "had", "her",
	"was", "one", "our", "out", "has", "him", "his", "how", "its", "let", "may", "now",
	"see", "she", "too", "use", "way", "who", "did", "get", "got", "yes", "please",
	"this", "that", "with", "from", "have", "what", "when", "where", "which", "will",
	"would", "could", "should", "about", "into", "just", "than", "then", "them", "they",
	"there", "their", "these", "those", "your", "been", "were", "also", "some", "more",
	"very", "like", "want", "need", "make", "sure", "thanks", "okay",
}

// Steerer applies the heuristic. It is immutable and safe for concurrent use.
type Steerer struct {
	minOverlap float64
	minShared  int
	window     time.Duration
	markers    []string
	stop       map[string]struct{}
	prompt     string
}

// New creates a Steerer with the default thresholds.
func New(optFns ...func(o *Options)) *Steerer {
	opts := Options{
		MinOverlap: 0.5,
		MinShared:  2,
		Window:     5 * time.Second,
		Markers:    DefaultMarkers,
		StopWords:  defaultStopWords,
		Prompt:     DefaultPrompt,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	stop := make(map[string]struct{}, len(opts.StopWords))
	for _, w := range opts.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	markers := make([]string, 0, len(opts.Markers))
	for _, m := range opts.Markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}

	return &Steerer{
		minOverlap: opts.MinOverlap,
		minShared:  opts.MinShared,
		window:     opts.Window,
		markers:    markers,
		stop:       stop,
		prompt:     opts.Prompt,
	}
}

// Window returns how long an ambiguous decision stays open.
func (s *Steerer) Window() time.Duration { return s.window }

// Tokenize lower-cases text and returns its distinct keywords in order of
// first appearance. Stop-words and tokens shorter than three runes are
// dropped.
func (s *Steerer) Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, ok := s.stop[f]; ok {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Score is the lexical overlap between a message and an objective.
type Score struct {
	Ratio  float64
	Shared []string
}

// Overlap computes |message ∩ objective| / |objective| over the objective's
// title and summary.
func (s *Steerer) Overlap(message string, obj core.Objective) Score {
	target := s.Tokenize(obj.Title + " " + obj.Summary)
	if len(target) == 0 {
		return Score{}
	}
	words := make(map[string]struct{})
	for _, w := range s.Tokenize(message) {
		words[w] = struct{}{}
	}
	var shared []string
	for _, w := range target {
		if _, ok := words[w]; ok {
			shared = append(shared, w)
		}
	}
	sort.Strings(shared)
	return Score{Ratio: float64(len(shared)) / float64(len(target)), Shared: shared}
}

// Result is a decision plus the evidence it was made on.
type Result struct {
	Decision  Decision
	Score     Score
	Objective core.Objective
}

// Decide classifies message against the unfinished objective obj.
func (s *Steerer) Decide(message string, obj core.Objective) Result {
	res := Result{Objective: obj}
	lower := strings.ToLower(message)
	for _, m := range s.markers {
		if strings.Contains(lower, m) {
			res.Decision = Unrelated
			return res
		}
	}

	res.Score = s.Overlap(message, obj)
	switch {
	case res.Score.Ratio >= s.minOverlap && len(res.Score.Shared) >= s.minShared:
		res.Decision = Continue
	case len(res.Score.Shared) == 0:
		res.Decision = Unrelated
	default:
		res.Decision = Ambiguous
	}
	return res
}

// DecideAmong picks the best match across the unresolved objectives. With
// none it returns Unrelated.
func (s *Steerer) DecideAmong(message string, objs []core.Objective) Result {
	best := Result{Decision: Unrelated}
	for i, obj := range objs {
		r := s.Decide(message, obj)
		if i == 0 || rank(r) > rank(best) ||
			(rank(r) == rank(best) && r.Score.Ratio > best.Score.Ratio) {
			best = r
		}
	}
	return best
}

func rank(r Result) int {
	switch r.Decision {
	case Continue:
		return 2
	case Ambiguous:
		return 1
	default:
		return 0
	}
}

// Context builds the overlap context forwarded to the next run.
func (s *Steerer) Context(r Result) (map[string]any, error) {
	vars := map[string]any{
		"objective_id": r.Objective.ID,
		"lane_id":      r.Objective.LaneID,
		"title":        r.Objective.Title,
		"summary":      r.Objective.Summary,
		"score":        r.Score.Ratio,
	}
	prompt, err := util.RenderTemplate(s.prompt, vars)
	if err != nil {
		return nil, fmt.Errorf("render steering prompt: %w", err)
	}
	vars["prompt"] = strings.TrimSpace(prompt)
	vars["shared_terms"] = append([]string(nil), r.Score.Shared...)
	return vars, nil
}
