// Package model turns a language model into a protocol.Agent.
//
// A Model streams text for a conversation. Agent wraps any Model and speaks
// the run protocol: it reports its progress as objective hints, streams the
// text as message deltas and closes the run with the final message list.
// Vendor adapters live in sub-packages (openai, anthropic). EchoModel is a
// deterministic in-memory Model for tests, demos and offline use.
package model
