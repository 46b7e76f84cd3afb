package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"PPGateway/module/chat/model"
	"PPGateway/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// 表结构沿用消息服务的命名（"GroupMember" / "Message"，列名驼峰需加引号）
const (
	sqlUserGroups = `SELECT "groupId" FROM "GroupMember" WHERE "userId" = $1`

	sqlMessageByID = `SELECT id, "senderId", COALESCE("receiverId", ''), COALESCE("groupId", ''),
		COALESCE(to_jsonb(content)::text, ''), COALESCE("messageType", ''), COALESCE(to_jsonb(reactions)::text, ''),
		COALESCE("readBy", '{}'), COALESCE("deletedBy", '{}'), "createdAt", "updatedAt"
		FROM "Message" WHERE id = $1`
)

// PostgresStore 直接读消息服务的库，只读
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.WrapMsg(err, "pgxpool.New failed")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "postgres ping failed")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) GetUserGroups(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, sqlUserGroups, userID)
	if err != nil {
		return nil, errs.WrapMsg(err, "query user groups", "user", userID)
	}
	groups, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errs.WrapMsg(err, "scan user groups", "user", userID)
	}
	return groups, nil
}

func (s *PostgresStore) FindMessageByID(ctx context.Context, messageID string) (*model.MessageRecord, error) {
	var (
		m                  model.MessageRecord
		content, reactions string
		msgType            string
		createdAt, updated time.Time
	)
	err := s.pool.QueryRow(ctx, sqlMessageByID, messageID).Scan(
		&m.ID,
		&m.SenderID,
		&m.ReceiverID,
		&m.GroupID,
		&content,
		&msgType,
		&reactions,
		&m.ReadBy,
		&m.DeletedBy,
		&createdAt,
		&updated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errs.WrapMsg(err, "query message", "id", messageID)
	}
	m.Content = rawJSON(content)
	m.Reactions = rawJSON(reactions)
	m.MessageType = model.MessageType(msgType)
	m.CreatedAt, m.UpdatedAt = createdAt, updated
	return &m, nil
}

// rawJSON 空串与 JSON null 都视为缺省
func rawJSON(s string) json.RawMessage {
	if s == "" || s == "null" {
		return nil
	}
	return json.RawMessage(s)
}
