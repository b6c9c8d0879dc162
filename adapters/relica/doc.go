// Package relica provides storage implementations backed by the Relica
// query builder and database/sql.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database
// query builder for Go with zero production dependencies. Simple CRUD goes
// through Relica; the queue store runs its leasing and fan-out paths on raw
// database/sql transactions because they need row locks (SELECT ... FOR
// UPDATE) held across a read-then-write inside a single transaction.
//
// This package implements the topicbus storage contracts:
//   - QueueStore
//   - MessageRepository
//   - TopicRepository
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/topicbus"
//	    "github.com/coregx/topicbus/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/topicbus_db?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// driverName should be "mysql", "postgres", or "sqlite3"
//	stores := relica.NewStores(db, "mysql")
//
//	backend, err := topicbus.NewBackend(
//	    topicbus.WithBackendStores(stores.Queue, stores.Message, stores.Topic),
//	    topicbus.WithBackendLogger(logger),
//	)
package relica
