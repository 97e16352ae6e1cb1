// Package session houses implementations of core.MessageStore, the
// persistence API of chat sessions.
//
// The interface itself lives in the core package so that the runner and the
// persistence reconciler never depend on a concrete backend. This package
// provides the process-local store; durable backends live in sub-packages
// (sqlite for a local database file, httpapi for the remote REST API).
package session
