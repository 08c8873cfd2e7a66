// Package database opens and supervises the bun connection a DataContext
// runs on: configuration loading, driver and dialect selection, pool tuning,
// health checks, query logging hooks, SQL error classification and the
// logging facade shared by the other packages.
package database
