// Package fleet implements the concurrent task orchestrator at the heart of
// repoteer.
//
// One operation runner per manifest repository executes its permitted
// operation sequence (clone, pull, push, status) strictly in order; a bounded
// worker pool schedules runners across repositories; a policy evaluator
// decides, purely from observed repository state, which operations are
// allowed; and a live reporter renders concurrently arriving progress events
// as one non-interleaved display region per repository. The append-only
// outcome event stream is the sole authority for each repository's reported
// status.
package fleet
