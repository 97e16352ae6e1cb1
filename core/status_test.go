package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_TerminalAndWeight(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusDone.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.True(t, StatusUnknown.IsTerminal())

	assert.Less(t, StatusPending.Weight(), StatusRunning.Weight())
	assert.Less(t, StatusRunning.Weight(), StatusUnknown.Weight())
	assert.Less(t, StatusUnknown.Weight(), StatusDone.Weight())
	assert.Less(t, StatusDone.Weight(), StatusError.Weight())
	assert.False(t, Status("bogus").Valid())
}

func TestFoldStatus(t *testing.T) {
	tests := []struct {
		name string
		in   []Status
		want Status
	}{
		{"empty folds to done", nil, StatusDone},
		{"all done", []Status{StatusDone, StatusDone}, StatusDone},
		{"error dominates", []Status{StatusRunning, StatusError, StatusPending}, StatusError},
		{"running over pending", []Status{StatusPending, StatusRunning}, StatusRunning},
		{"pending over unknown", []Status{StatusUnknown, StatusPending, StatusDone}, StatusPending},
		{"unknown over done", []Status{StatusDone, StatusUnknown}, StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FoldStatus(tt.in...))
		})
	}
}

func TestMessage_CloneIsolation(t *testing.T) {
	m := NewUserMessage("hello")
	m.Metadata = map[string]any{"k": "v"}
	c := m.Clone()
	c.Metadata["k"] = "changed"
	if m.Metadata["k"] != "v" {
		t.Fatalf("clone shares metadata map")
	}
	if m.ID == "" || m.Role != RoleUser {
		t.Fatalf("NewUserMessage malformed: %+v", m)
	}
}

func TestStoredMessage_Message(t *testing.T) {
	sm := StoredMessage{ID: "42", MessageType: "assistant", Content: "hi"}
	assert.Equal(t, RoleAssistant, sm.Message().Role)
	sm.MessageType = "agent"
	assert.Equal(t, RoleAssistant, sm.Message().Role)
	sm.MessageType = "user"
	assert.Equal(t, RoleUser, sm.Message().Role)
}
