// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when scripting agent runs, building custom-event
// payloads and AG-UI wire frames, and recording handler callbacks. They are
// not intended for production usage.
package testutil
