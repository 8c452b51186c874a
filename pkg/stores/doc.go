// Package stores persists reconciliation run history to SQLite.
// It records runs, their stage events, and the drift entries each run
// detected, using WAL mode and embedded migrations. The history is
// advisory only: reconciliation decisions always come from the live
// platform state, never from this store.
package stores
