package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iabetor/emotts/internal/database"
)

// 话语结果。
const (
	OutcomeCompleted   = "completed"
	OutcomeSaved       = "saved"
	OutcomeInterrupted = "interrupted"
	OutcomeFailed      = "failed"
)

// 设置项键名。
const (
	KeyStyle = "speech.style"
	KeyVoice = "speech.voice"
)

const timeLayout = "2006-01-02 15:04:05.000"

// Utterance 是一条话语日志。
type Utterance struct {
	ID        string
	Text      string
	Style     string
	Dialect   string
	Voice     string
	Engine    string
	Outcome   string
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// Store 持久化设置项和话语日志。
type Store struct {
	db *database.DB
}

// NewStore 基于已迁移的数据库创建存储。
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// GetSetting 读取设置项，不存在时第二个返回值为 false。
func (s *Store) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM system_config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("读取设置 %s 失败: %w", key, err)
	}
	return value, true, nil
}

// SetSetting 写入或覆盖设置项。
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO system_config (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("保存设置 %s 失败: %w", key, err)
	}
	return nil
}

// RecordUtterance 写入一条话语日志，CreatedAt 为零值时使用当前时间。
func (s *Store) RecordUtterance(u Utterance) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO utterances
			(id, text, style, dialect, voice, engine, outcome, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Text, u.Style, u.Dialect, u.Voice, u.Engine, u.Outcome, u.Error,
		u.Duration.Milliseconds(), u.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("记录话语失败: %w", err)
	}
	return nil
}

// Recent 返回最近的 limit 条话语日志，按时间倒序。
func (s *Store) Recent(limit int) ([]Utterance, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, text, style, dialect, voice, engine, outcome, error, duration_ms, created_at
		FROM utterances ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询话语日志失败: %w", err)
	}
	defer rows.Close()

	var out []Utterance
	for rows.Next() {
		var u Utterance
		var durationMs int64
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Text, &u.Style, &u.Dialect, &u.Voice, &u.Engine,
			&u.Outcome, &u.Error, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("读取话语日志失败: %w", err)
		}
		u.Duration = time.Duration(durationMs) * time.Millisecond
		u.CreatedAt = parseTime(createdAt)
		out = append(out, u)
	}
	return out, rows.Err()
}

// Count 返回指定结果的话语数量，outcome 为空时统计全部。
func (s *Store) Count(outcome string) (int, error) {
	var n int
	var err error
	if outcome == "" {
		err = s.db.QueryRow("SELECT COUNT(*) FROM utterances").Scan(&n)
	} else {
		err = s.db.QueryRow("SELECT COUNT(*) FROM utterances WHERE outcome = ?", outcome).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("统计话语失败: %w", err)
	}
	return n, nil
}

// parseTime 兼容驱动把 DATETIME 列转换为 RFC3339 的情况。
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
