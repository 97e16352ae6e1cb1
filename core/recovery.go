package core

// StreamRecovery reports the retry bookkeeping of the current turn. It is
// reset at the start of every SendMessage.
type StreamRecovery struct {
	IsRetrying   bool `json:"is_retrying"`
	AttemptsUsed int  `json:"attempts_used"`
	Exhausted    bool `json:"exhausted"`
	Incomplete   bool `json:"incomplete"`
}
