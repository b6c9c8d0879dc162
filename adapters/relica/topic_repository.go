package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/coregx/topicbus"
	"github.com/coregx/topicbus/model"
)

// TopicRepository implements topicbus.TopicRepository using Relica.
type TopicRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewTopicRepository creates a new TopicRepository with default table prefix.
func NewTopicRepository(sqlDB *sql.DB, driverName string) *TopicRepository {
	return NewTopicRepositoryWithPrefix(sqlDB, driverName, defaultTablePrefix)
}

// NewTopicRepositoryWithPrefix creates a new TopicRepository with custom table prefix.
func NewTopicRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *TopicRepository {
	return &TopicRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *TopicRepository) tableName() string {
	return r.tablePrefix + "topic"
}

// Save creates or updates a topic.
func (r *TopicRepository) Save(ctx context.Context, m *model.Topic) (*model.Topic, error) {
	if m.ID == 0 {
		err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Insert()
		if err != nil {
			return m, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to insert topic", err)
		}
		return m, nil
	}

	err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Update()
	if err != nil {
		return m, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to update topic", err)
	}
	return m, nil
}

// GetByName retrieves a topic by name.
func (r *TopicRepository) GetByName(ctx context.Context, name string) (model.Topic, error) {
	var topic model.Topic
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("name = ?", name).One(&topic)
	if errors.Is(err, sql.ErrNoRows) {
		return topic, topicbus.ErrNoData
	}
	if err != nil {
		return topic, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to load topic", err)
	}
	return topic, nil
}

// Rename updates a topic row's name. Renaming a topic that has no durable
// row is not an error.
func (r *TopicRepository) Rename(ctx context.Context, oldName, newName string) error {
	_, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"name": newName,
		}).
		Where("name = ?", oldName).
		WithContext(ctx).
		Execute()

	if err != nil {
		return topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to rename topic", err)
	}
	return nil
}
