// Package core provides the foundational domain types and small interfaces
// shared by every other package of the runtime. It defines:
//
//   - Statuses, phases and kinds used by the run panel (lanes, objectives,
//     todos, tool evidence, subagent bookkeeping)
//   - Messages exchanged with the agent backend and the persistence API
//   - StreamRecovery, the per-turn retry bookkeeping surfaced to callers
//   - Pluggable stores for persisted messages and rendered artifacts
//
// The package keeps implementation concerns (reduction, transport,
// persistence) out of scope, exposing plain data types and narrow interfaces
// so that hosts can supply their own backends.
package core
