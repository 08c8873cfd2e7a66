// Package unitofwork coordinates one DataContext: commit with optimistic
// concurrency retry, reconciliation of tracked state after a failed or
// abandoned commit, and raw SQL or stored procedure calls mapped into typed
// results.
package unitofwork
