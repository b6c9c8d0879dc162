package relica

import (
	"context"
	"database/sql"
	"time"

	"github.com/coregx/topicbus"
	"github.com/coregx/topicbus/model"
)

// QueueStore implements topicbus.QueueStore on database/sql transactions.
//
// The lease, fan-out and acknowledgement paths run raw SQL inside explicit
// transactions: the lease takes row locks (SELECT ... FOR UPDATE) that must
// stay held across the status flip, which is outside a query builder's
// one-statement surface.
type QueueStore struct {
	db          *sql.DB
	driverName  string
	tablePrefix string
}

// NewQueueStore creates a QueueStore with the default table prefix.
func NewQueueStore(db *sql.DB, driverName string) *QueueStore {
	return NewQueueStoreWithPrefix(db, driverName, defaultTablePrefix)
}

// NewQueueStoreWithPrefix creates a QueueStore with a custom table prefix.
func NewQueueStoreWithPrefix(db *sql.DB, driverName, prefix string) *QueueStore {
	return &QueueStore{
		db:          db,
		driverName:  driverName,
		tablePrefix: prefix,
	}
}

func (s *QueueStore) queueTable() string {
	return s.tablePrefix + "queue"
}

func (s *QueueStore) messageTable() string {
	return s.tablePrefix + "message"
}

// GetMessages leases up to batchSize deliverable messages for subKey inside
// one transaction. The selected rows are locked until commit, so a
// concurrent lease for the same subKey blocks and then sees the rows as no
// longer INITIALIZED. The returned snapshots reflect the rows before the
// status flip.
func (s *QueueStore) GetMessages(ctx context.Context, clusterID int64, subKey string, batchSize int, now time.Time) ([]model.QueueMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to begin lease transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT q.pub_msg_id, q.topic_id, q.delivery_count,
		m.topic_name, m.data, m.priority, m.size, m.publisher,
		m.correl_id, m.in_reply_to, m.ext_client_id, m.ext_pub_time, m.expiration_time
	FROM ` + s.queueTable() + ` q
	JOIN ` + s.messageTable() + ` m
		ON m.cluster_id = q.cluster_id AND m.pub_msg_id = q.pub_msg_id
	WHERE q.cluster_id = ? AND q.sub_key = ? AND q.delivery_status = ?
		AND q.is_in_staging = ? AND m.expiration_time >= ?
	ORDER BY m.ext_pub_time DESC
	LIMIT ?` + lockClause(s.driverName)

	rows, err := tx.QueryContext(ctx, rebind(s.driverName, query),
		clusterID, subKey, model.StatusInitialized, false, now, batchSize)
	if err != nil {
		return nil, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to select leaseable rows", err)
	}

	var msgs []model.QueueMessage
	for rows.Next() {
		var m model.QueueMessage
		m.SubKey = subKey
		if err := rows.Scan(&m.MsgID, &m.TopicID, &m.DeliveryCount,
			&m.TopicName, &m.Data, &m.Priority, &m.Size, &m.Publisher,
			&m.CorrelID, &m.InReplyTo, &m.ExtClientID, &m.PubTime, &m.ExpirationTime); err != nil {
			rows.Close()
			return nil, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to scan queue row", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to read queue rows", err)
	}
	rows.Close()

	if len(msgs) == 0 {
		return nil, tx.Commit()
	}

	msgIDs := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		msgIDs = append(msgIDs, m.MsgID)
	}

	update := `UPDATE ` + s.queueTable() + `
	SET delivery_status = ?, delivery_time = ?, delivery_count = delivery_count + 1
	WHERE cluster_id = ? AND sub_key = ? AND pub_msg_id IN (` + placeholders(len(msgIDs)) + `)`

	args := append([]interface{}{model.StatusWaitingForConfirmation, now, clusterID, subKey}, msgIDs...)
	if _, err := tx.ExecContext(ctx, rebind(s.driverName, update), args...); err != nil {
		return nil, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to mark rows leased", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to commit lease", err)
	}
	return msgs, nil
}

// AcknowledgeDelivery transitions leased messages to DELIVERED.
func (s *QueueStore) AcknowledgeDelivery(ctx context.Context, clusterID int64, subKey string, msgIDs []string, now time.Time) error {
	return s.setStatus(ctx, clusterID, subKey, msgIDs, now,
		model.StatusDelivered, model.StatusWaitingForConfirmation)
}

// SetToDelete flags messages for deletion from any state.
func (s *QueueStore) SetToDelete(ctx context.Context, clusterID int64, subKey string, msgIDs []string, now time.Time) error {
	return s.setStatus(ctx, clusterID, subKey, msgIDs, now, model.StatusToDelete, 0)
}

// setStatus moves the listed messages to a new delivery status, optionally
// requiring a current status (0 = any state).
func (s *QueueStore) setStatus(ctx context.Context, clusterID int64, subKey string, msgIDs []string, now time.Time,
	to, from model.DeliveryStatus) error {

	if len(msgIDs) == 0 {
		return nil
	}

	query := `UPDATE ` + s.queueTable() + `
	SET delivery_status = ?, delivery_time = ?
	WHERE cluster_id = ? AND sub_key = ? AND pub_msg_id IN (` + placeholders(len(msgIDs)) + `)`

	args := []interface{}{to, now, clusterID, subKey}
	for _, id := range msgIDs {
		args = append(args, id)
	}
	if from != 0 {
		query += ` AND delivery_status = ?`
		args = append(args, from)
	}

	if _, err := s.db.ExecContext(ctx, rebind(s.driverName, query), args...); err != nil {
		return topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to update delivery status", err)
	}
	return nil
}

// GetQueueDepthBySubKey counts deliverable messages for one sub_key:
// INITIALIZED, not in staging, not expired.
func (s *QueueStore) GetQueueDepthBySubKey(ctx context.Context, clusterID int64, subKey string, now time.Time) (int, error) {
	query := `SELECT COUNT(*)
	FROM ` + s.queueTable() + ` q
	JOIN ` + s.messageTable() + ` m
		ON m.cluster_id = q.cluster_id AND m.pub_msg_id = q.pub_msg_id
	WHERE q.cluster_id = ? AND q.sub_key = ? AND q.delivery_status = ?
		AND q.is_in_staging = ? AND m.expiration_time >= ?`

	var depth int
	err := s.db.QueryRowContext(ctx, rebind(s.driverName, query),
		clusterID, subKey, model.StatusInitialized, false, now).Scan(&depth)
	if err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to count queue depth", err)
	}
	return depth, nil
}

// GetQueueDepthByTopicIDList counts deliverable messages per topic ID.
// Topics with no deliverable messages are absent from the result.
func (s *QueueStore) GetQueueDepthByTopicIDList(ctx context.Context, clusterID int64, topicIDs []int64, now time.Time) (map[int64]int, error) {
	depths := make(map[int64]int, len(topicIDs))
	if len(topicIDs) == 0 {
		return depths, nil
	}

	query := `SELECT q.topic_id, COUNT(*)
	FROM ` + s.queueTable() + ` q
	JOIN ` + s.messageTable() + ` m
		ON m.cluster_id = q.cluster_id AND m.pub_msg_id = q.pub_msg_id
	WHERE q.cluster_id = ? AND q.delivery_status = ? AND q.is_in_staging = ?
		AND m.expiration_time >= ? AND q.topic_id IN (` + placeholders(len(topicIDs)) + `)
	GROUP BY q.topic_id`

	args := []interface{}{clusterID, model.StatusInitialized, false, now}
	for _, id := range topicIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, rebind(s.driverName, query), args...)
	if err != nil {
		return nil, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to count queue depths", err)
	}
	defer rows.Close()

	for rows.Next() {
		var topicID int64
		var count int
		if err := rows.Scan(&topicID, &count); err != nil {
			return nil, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to scan depth row", err)
		}
		depths[topicID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to read depth rows", err)
	}
	return depths, nil
}

// EnqueueForSubKeys inserts one INITIALIZED queue row per sub_key for a
// just-published message and flags the message as queued.
func (s *QueueStore) EnqueueForSubKeys(ctx context.Context, clusterID, topicID int64, pubMsgID string, subKeys []string) (int, error) {
	if len(subKeys) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to begin fan-out transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := s.insertQueueRows(ctx, tx, clusterID, topicID, pubMsgID, subKeys)
	if err != nil {
		return 0, err
	}

	flag := `UPDATE ` + s.messageTable() + `
	SET is_in_sub_queue = ?
	WHERE cluster_id = ? AND pub_msg_id = ? AND is_in_sub_queue = ?`
	if _, err := tx.ExecContext(ctx, rebind(s.driverName, flag), true, clusterID, pubMsgID, false); err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to flag message as queued", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to commit fan-out", err)
	}
	return inserted, nil
}

// MoveMessagesToSubQueue backfills subKey's queue with the topic's
// eligible messages: published no later than pubTimeMax, not expired
// relative to it, and not already enqueued for this exact sub_key. The
// is_in_sub_queue flag is flipped false->true only for messages just
// inserted. Callers hold the topic's advisory lock, which is what makes
// the read-then-write pair atomic relative to concurrent fan-out for the
// same topic.
func (s *QueueStore) MoveMessagesToSubQueue(ctx context.Context, clusterID, topicID int64, subKey string, pubTimeMax time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to begin backfill transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	eligible := `SELECT m.pub_msg_id
	FROM ` + s.messageTable() + ` m
	WHERE m.cluster_id = ? AND m.topic_id = ?
		AND m.ext_pub_time <= ? AND m.expiration_time >= ?
		AND NOT EXISTS (
			SELECT 1 FROM ` + s.queueTable() + ` q
			WHERE q.cluster_id = m.cluster_id AND q.pub_msg_id = m.pub_msg_id AND q.sub_key = ?
		)`

	rows, err := tx.QueryContext(ctx, rebind(s.driverName, eligible),
		clusterID, topicID, pubTimeMax, pubTimeMax, subKey)
	if err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to select eligible messages", err)
	}

	var pubMsgIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to scan eligible message", err)
		}
		pubMsgIDs = append(pubMsgIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to read eligible messages", err)
	}
	rows.Close()

	if len(pubMsgIDs) == 0 {
		return 0, tx.Commit()
	}

	for _, pubMsgID := range pubMsgIDs {
		if _, err := s.insertQueueRows(ctx, tx, clusterID, topicID, pubMsgID, []string{subKey}); err != nil {
			return 0, err
		}
	}

	flagArgs := []interface{}{true, clusterID, false}
	for _, id := range pubMsgIDs {
		flagArgs = append(flagArgs, id)
	}
	flag := `UPDATE ` + s.messageTable() + `
	SET is_in_sub_queue = ?
	WHERE cluster_id = ? AND is_in_sub_queue = ?
		AND pub_msg_id IN (` + placeholders(len(pubMsgIDs)) + `)`
	if _, err := tx.ExecContext(ctx, rebind(s.driverName, flag), flagArgs...); err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to flag backfilled messages", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to commit backfill", err)
	}
	return len(pubMsgIDs), nil
}

// insertQueueRows inserts one INITIALIZED row per sub_key for pubMsgID.
func (s *QueueStore) insertQueueRows(ctx context.Context, tx *sql.Tx, clusterID, topicID int64, pubMsgID string, subKeys []string) (int, error) {
	insert := `INSERT INTO ` + s.queueTable() + `
	(pub_msg_id, cluster_id, topic_id, sub_key, creation_time, delivery_status, delivery_count, is_in_staging)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	inserted := 0
	for _, subKey := range subKeys {
		if _, err := tx.ExecContext(ctx, rebind(s.driverName, insert),
			pubMsgID, clusterID, topicID, subKey, now, model.StatusInitialized, 0, false); err != nil {
			return inserted, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to insert queue row", err)
		}
		inserted++
	}
	return inserted, nil
}

// RequeueExpiredLeases reverts abandoned leases to INITIALIZED.
func (s *QueueStore) RequeueExpiredLeases(ctx context.Context, clusterID int64, cutoff time.Time) (int, error) {
	query := `UPDATE ` + s.queueTable() + `
	SET delivery_status = ?
	WHERE cluster_id = ? AND delivery_status = ? AND delivery_time < ?`

	result, err := s.db.ExecContext(ctx, rebind(s.driverName, query),
		model.StatusInitialized, clusterID, model.StatusWaitingForConfirmation, cutoff)
	if err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to requeue expired leases", err)
	}
	return rowsAffected(result), nil
}

// DiscardExhaustedLeases flags timed-out leases that used up their delivery
// attempts as TO_DELETE.
func (s *QueueStore) DiscardExhaustedLeases(ctx context.Context, clusterID int64, maxDeliveryCount int, cutoff time.Time) (int, error) {
	query := `UPDATE ` + s.queueTable() + `
	SET delivery_status = ?
	WHERE cluster_id = ? AND delivery_status = ? AND delivery_time < ? AND delivery_count >= ?`

	result, err := s.db.ExecContext(ctx, rebind(s.driverName, query),
		model.StatusToDelete, clusterID, model.StatusWaitingForConfirmation, cutoff, maxDeliveryCount)
	if err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to discard exhausted leases", err)
	}
	return rowsAffected(result), nil
}

// DeleteQueueForSubKey removes every queue row of a subscription.
func (s *QueueStore) DeleteQueueForSubKey(ctx context.Context, clusterID int64, subKey string) (int, error) {
	query := `DELETE FROM ` + s.queueTable() + ` WHERE cluster_id = ? AND sub_key = ?`

	result, err := s.db.ExecContext(ctx, rebind(s.driverName, query), clusterID, subKey)
	if err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to delete subscriber queue", err)
	}
	return rowsAffected(result), nil
}

// DeleteExpired removes TO_DELETE rows and rows whose message expired.
func (s *QueueStore) DeleteExpired(ctx context.Context, clusterID int64, now time.Time) (int, error) {
	query := `DELETE FROM ` + s.queueTable() + `
	WHERE cluster_id = ? AND (
		delivery_status = ?
		OR pub_msg_id IN (
			SELECT pub_msg_id FROM ` + s.messageTable() + `
			WHERE cluster_id = ? AND expiration_time < ?
		)
	)`

	result, err := s.db.ExecContext(ctx, rebind(s.driverName, query),
		clusterID, model.StatusToDelete, clusterID, now)
	if err != nil {
		return 0, topicbus.NewErrorWithCause(topicbus.ErrCodeDatabase, "failed to delete expired queue rows", err)
	}
	return rowsAffected(result), nil
}

func rowsAffected(result sql.Result) int {
	n, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
