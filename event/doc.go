// Package event turns loosely-typed custom-event payloads from the agent
// backend into a closed set of typed domain events.
//
// Normalize never panics: payloads that do not match any known shape are
// reported as "not an event". Field access is lenient (camelCase and
// snake_case keys are both accepted), statuses are coerced onto core.Status,
// and text fields are clamped to fixed budgets so a misbehaving backend
// cannot grow panel state without bound.
//
// Key produces the deterministic dedup key consumed by the dispatch package.
package event
