// Package mapper turns forward-only result cursors into typed entities by
// matching column names to exported struct fields, case-insensitively.
package mapper
