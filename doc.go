// Package topicbus provides a topic-based pub/sub engine for Go with
// pattern-matched access control, durable per-subscription queues and
// at-least-once delivery.
//
// Works both as a library for embedding in your application AND as a
// standalone microservice with REST API.
//
// # Features
//
//   - Pattern-matched permissions: dotted topic globs ("orders.*",
//     "orders.**"), per-operation "pub="/"sub=" prefixes, exact matches
//     preferred over wildcards
//   - In-memory topic registry with auto-created topics and atomic rename
//   - Durable per-subscription queues with lease / acknowledge / discard
//     semantics and transactional lease exclusivity
//   - At-least-once delivery: abandoned leases are requeued by a background
//     reaper, exhausted ones discarded after a configurable attempt limit
//   - Backfill on subscribe: messages published before a subscription was
//     created are moved into its queue
//   - Options Pattern constructors, pluggable Logger and notifications
//   - Multi-Database Support: MySQL, PostgreSQL, SQLite via Relica adapters
//   - Embedded Migrations for easy database setup
//   - Cloud Native: 12-factor app, ENV config, health checks
//
// # Quick Start
//
// Apply the embedded migrations, then wire the stores into a Backend:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/topicbus"
//	    adapter "github.com/coregx/topicbus/adapters/relica"
//	    "github.com/coregx/topicbus/model"
//	    _ "github.com/mattn/go-sqlite3"
//	)
//
//	db, _ := sql.Open("sqlite3", "topicbus.db")
//	stores := adapter.NewStores(db, "sqlite3")
//
//	backend, _ := topicbus.NewBackend(
//	    topicbus.WithBackendStores(stores.Queue, stores.Message, stores.Topic),
//	)
//
//	// Grant a client access, subscribe, publish.
//	backend.Matcher().AddClient("alice", []model.Permission{
//	    model.NewPermission(1, "orders.**", model.AccessPublisherSubscriber),
//	})
//
// See examples/basic for a complete runnable program and cmd/topicbus-server
// for the standalone HTTP service.
package topicbus
