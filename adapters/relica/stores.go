package relica

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/coregx/topicbus"
)

const defaultTablePrefix = "topicbus_"

// Stores holds all storage implementations.
type Stores struct {
	Queue   topicbus.QueueStore
	Message topicbus.MessageRepository
	Topic   topicbus.TopicRepository
}

// NewStores creates all storage implementations with the default table
// prefix.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or
// SQLite. The driverName should be "mysql", "postgres", or "sqlite3".
func NewStores(db *sql.DB, driverName string) *Stores {
	return NewStoresWithPrefix(db, driverName, defaultTablePrefix)
}

// NewStoresWithPrefix creates all storage implementations with a custom
// table prefix.
func NewStoresWithPrefix(db *sql.DB, driverName, prefix string) *Stores {
	return &Stores{
		Queue:   NewQueueStoreWithPrefix(db, driverName, prefix),
		Message: NewMessageRepositoryWithPrefix(db, driverName, prefix),
		Topic:   NewTopicRepositoryWithPrefix(db, driverName, prefix),
	}
}

// rebind converts "?" placeholders to the driver's positional style.
// PostgreSQL expects $1..$n; MySQL and SQLite take "?" as-is.
func rebind(driverName, query string) string {
	if driverName != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns a comma-joined run of n "?" markers for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// lockClause returns the row-locking suffix of the lease query for the
// given driver. SQLite has no FOR UPDATE; its single-writer lock already
// serializes the transaction.
func lockClause(driverName string) string {
	switch driverName {
	case "postgres":
		return " FOR UPDATE OF q"
	case "mysql":
		return " FOR UPDATE"
	default:
		return ""
	}
}
