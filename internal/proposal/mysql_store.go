package proposal

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "AgoraChain/internal/errors"
)

// MySQLStore 使用 MySQL 记录提案台账。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 proposals 表失败")
	}
	return store, nil
}

// Save 插入一条提案记录，主键冲突视为重复提交。
func (s *MySQLStore) Save(ctx context.Context, record *Record) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "record 不能为空")
	}
	if strings.TrimSpace(record.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "提案记录 ID 不能为空")
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}

	const stmt = `INSERT INTO proposals
        (id, title, decision, summary, amount_wei, target, tx_hash, deadline, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.Title,
		record.Decision,
		record.Summary,
		record.AmountWei,
		record.Target,
		record.TxHash,
		record.Deadline,
		record.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提案记录重复")
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入提案记录失败")
	}
	return nil
}

// Get 查询指定提案记录。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Record, error) {
	const stmt = `SELECT id, title, decision, summary, amount_wei, target, tx_hash, deadline, created_at
        FROM proposals WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)

	var record Record
	if err := row.Scan(
		&record.ID,
		&record.Title,
		&record.Decision,
		&record.Summary,
		&record.AmountWei,
		&record.Target,
		&record.TxHash,
		&record.Deadline,
		&record.CreatedAt,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询提案记录失败")
	}
	return &record, nil
}

// List 按创建时间倒序返回最近的提案记录。
func (s *MySQLStore) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}

	const stmt = `SELECT id, title, decision, summary, amount_wei, target, tx_hash, deadline, created_at
        FROM proposals ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询提案列表失败")
	}
	defer rows.Close()

	records := make([]*Record, 0, limit)
	for rows.Next() {
		var record Record
		if err := rows.Scan(
			&record.ID,
			&record.Title,
			&record.Decision,
			&record.Summary,
			&record.AmountWei,
			&record.Target,
			&record.TxHash,
			&record.Deadline,
			&record.CreatedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析提案记录失败")
		}
		recordCopy := record
		records = append(records, &recordCopy)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历提案记录失败")
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*MySQLStore)(nil)
