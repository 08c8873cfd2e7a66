// Package repository provides a generic repository over a DataContext: typed
// reads, storage-evaluated predicates, pagination, and staged inserts,
// updates and deletes that persist when the unit of work commits.
package repository
