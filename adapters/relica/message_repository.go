package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"
	"github.com/coregx/topicbus"
	"github.com/coregx/topicbus/model"
)

// MessageRepository implements topicbus.MessageRepository using Relica.
type MessageRepository struct {
	db          *relica.DB
	sqlDB       *sql.DB
	driverName  string
	tablePrefix string
}

// NewMessageRepository creates a new MessageRepository with default table prefix.
func NewMessageRepository(sqlDB *sql.DB, driverName string) *MessageRepository {
	return NewMessageRepositoryWithPrefix(sqlDB, driverName, defaultTablePrefix)
}

// NewMessageRepositoryWithPrefix creates a new MessageRepository with custom table prefix.
func NewMessageRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageRepository {
	return &MessageRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		sqlDB:       sqlDB,
		driverName:  driverName,
		tablePrefix: prefix,
	}
}

func (r *MessageRepository) tableName() string {
	return r.tablePrefix + "message"
}

// Save creates or updates a message.
func (r *MessageRepository) Save(ctx context.Context, m *model.Message) (*model.Message, error) {
	if m.ID == 0 {
		err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Insert()
		if err != nil {
			return m, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to insert message", err)
		}
		// m.ID is auto-populated by Model().Insert()
		return m, nil
	}

	err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Update()
	if err != nil {
		return m, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to update message", err)
	}
	return m, nil
}

// Load retrieves a message by its pub_msg_id.
func (r *MessageRepository) Load(ctx context.Context, clusterID int64, pubMsgID string) (model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).
		Where("cluster_id = ? AND pub_msg_id = ?", clusterID, pubMsgID).One(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return msg, topicbus.ErrNoData
	}
	if err != nil {
		return msg, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to load message", err)
	}
	return msg, nil
}

// DeleteExpiredUnreferenced removes messages that expired before now and
// are referenced by no queue row. Uses raw SQL for the NOT EXISTS
// correlated subquery.
func (r *MessageRepository) DeleteExpiredUnreferenced(ctx context.Context, clusterID int64, now time.Time) (int, error) {
	query := `DELETE FROM ` + r.tableName() + `
	WHERE cluster_id = ? AND expiration_time < ?
		AND NOT EXISTS (
			SELECT 1 FROM ` + r.tablePrefix + `queue q
			WHERE q.cluster_id = ` + r.tableName() + `.cluster_id
				AND q.pub_msg_id = ` + r.tableName() + `.pub_msg_id
		)`

	result, err := r.sqlDB.ExecContext(ctx, rebind(r.driverName, query), clusterID, now)
	if err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to delete expired messages", err)
	}
	return rowsAffected(result), nil
}
