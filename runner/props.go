package runner

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"
)

// Forwarded property keys set by the runner.
const (
	PropAgentType = "agent_type"
	PropSessionID = "session_id"
)

// forwardedProps builds the props sent with every attempt of a turn. The
// result is built once so retries see identical values.
func forwardedProps(base map[string]any, sessionID, agentType string) (map[string]any, error) {
	raw := []byte("{}")
	if len(base) > 0 {
		b, err := json.Marshal(base)
		if err != nil {
			return nil, fmt.Errorf("encode forwarded props: %w", err)
		}
		raw = b
	}

	var err error
	if raw, err = sjson.SetBytes(raw, PropSessionID, sessionID); err != nil {
		return nil, fmt.Errorf("set %s: %w", PropSessionID, err)
	}
	if agentType != "" {
		if raw, err = sjson.SetBytes(raw, PropAgentType, agentType); err != nil {
			return nil, fmt.Errorf("set %s: %w", PropAgentType, err)
		}
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode forwarded props: %w", err)
	}
	return out, nil
}

// withProp returns a copy of props with key set to the JSON encoding of v.
// key is an sjson path; the keys used here are plain identifiers.
func withProp(props map[string]any, key string, v any) (map[string]any, error) {
	raw := []byte("{}")
	if len(props) > 0 {
		b, err := json.Marshal(props)
		if err != nil {
			return nil, fmt.Errorf("encode forwarded props: %w", err)
		}
		raw = b
	}
	raw, err := sjson.SetBytes(raw, key, v)
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", key, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode forwarded props: %w", err)
	}
	return out, nil
}
