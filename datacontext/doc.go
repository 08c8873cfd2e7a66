// Package datacontext is the ORM session under the repository and unit of
// work: a change tracker over bun models, SaveChanges with optimistic
// concurrency detection, entity reload, and a raw command surface for text
// and stored-procedure execution.
package datacontext
