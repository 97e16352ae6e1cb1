package core

// Status is the lifecycle state shared by objectives, lanes and runs.
type Status string

const (
	// StatusPending marks work that is known but not started.
	StatusPending Status = "pending"
	// StatusRunning marks work in progress.
	StatusRunning Status = "running"
	// StatusDone marks work that completed successfully.
	StatusDone Status = "done"
	// StatusError marks work that failed.
	StatusError Status = "error"
	// StatusUnknown marks work whose outcome cannot be trusted.
	StatusUnknown Status = "unknown"
)

// IsTerminal reports whether the status can no longer progress.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError || s == StatusUnknown
}

// Weight orders statuses from least to most final. It breaks ties between
// updates carrying the same timestamp.
func (s Status) Weight() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusUnknown:
		return 2
	case StatusDone:
		return 3
	case StatusError:
		return 4
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return s.Weight() >= 0 }

// severity ranks statuses for the worst-case fold used by lanes and runs.
func (s Status) severity() int {
	switch s {
	case StatusError:
		return 4
	case StatusRunning:
		return 3
	case StatusPending:
		return 2
	case StatusUnknown:
		return 1
	default:
		return 0
	}
}

// FoldStatus returns the dominating status of the inputs: errors dominate,
// then running, then pending, then unknown, else done. An empty input folds
// to done.
func FoldStatus(statuses ...Status) Status {
	out := StatusDone
	for _, s := range statuses {
		if s.severity() > out.severity() {
			out = s
		}
	}
	return out
}
