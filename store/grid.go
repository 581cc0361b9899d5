package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Grid session status
const (
	GridActive  = "ACTIVE"
	GridStopped = "STOPPED"
)

// GridStore 网格会话与挂单意图存储
type GridStore struct {
	db *sql.DB
}

// GridSession 一次网格部署
//
// AnchorPrice 记录建网时的锚点价格，重建判定依赖它。
type GridSession struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	AnchorPrice float64   `json:"anchor_price"`
	UpperPrice  float64   `json:"upper_price"`
	LowerPrice  float64   `json:"lower_price"`
	Supports    []float64 `json:"supports"`
	Resistances []float64 `json:"resistances"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	StoppedAt   time.Time `json:"stopped_at,omitempty"`
}

// OrderIntent 网格挂单意图
type OrderIntent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"` // BUY | SELL
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Status    string    `json:"status"` // PENDING | PLACED | FILLED | CANCELLED
	CreatedAt time.Time `json:"created_at"`
}

func (s *GridStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS grid_sessions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			anchor_price REAL NOT NULL,
			upper_price REAL DEFAULT 0,
			lower_price REAL DEFAULT 0,
			supports_json TEXT DEFAULT '[]',
			resistances_json TEXT DEFAULT '[]',
			status TEXT DEFAULT 'ACTIVE',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			stopped_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grid_sessions_symbol ON grid_sessions(symbol, status)`,
		`CREATE TABLE IF NOT EXISTS order_intents (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			price REAL NOT NULL,
			quantity REAL NOT NULL,
			status TEXT DEFAULT 'PENDING',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_intents_session ON order_intents(session_id)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create grid tables: %w", err)
		}
	}
	return nil
}

// SaveSession 保存新会话并停止同 symbol 的旧会话
func (s *GridStore) SaveSession(session *GridSession) error {
	supportsJSON, err := json.Marshal(session.Supports)
	if err != nil {
		return err
	}
	resistancesJSON, err := json.Marshal(session.Resistances)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE grid_sessions SET status = ?, stopped_at = CURRENT_TIMESTAMP
		 WHERE symbol = ? AND status = ?`,
		GridStopped, session.Symbol, GridActive,
	); err != nil {
		return fmt.Errorf("failed to stop old sessions: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO grid_sessions (id, symbol, anchor_price, upper_price, lower_price,
			supports_json, resistances_json, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Symbol, session.AnchorPrice, session.UpperPrice, session.LowerPrice,
		string(supportsJSON), string(resistancesJSON), GridActive,
	); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return tx.Commit()
}

// ActiveSession 返回当前活跃会话，无则返回 nil
func (s *GridStore) ActiveSession(symbol string) (*GridSession, error) {
	row := s.db.QueryRow(
		`SELECT id, symbol, anchor_price, upper_price, lower_price,
			supports_json, resistances_json, status, created_at
		 FROM grid_sessions WHERE symbol = ? AND status = ? ORDER BY created_at DESC LIMIT 1`,
		symbol, GridActive,
	)

	var sess GridSession
	var supportsJSON, resistancesJSON string
	err := row.Scan(&sess.ID, &sess.Symbol, &sess.AnchorPrice, &sess.UpperPrice, &sess.LowerPrice,
		&supportsJSON, &resistancesJSON, &sess.Status, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(supportsJSON), &sess.Supports); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(resistancesJSON), &sess.Resistances); err != nil {
		return nil, err
	}
	return &sess, nil
}

// StopSession 标记会话停止
func (s *GridStore) StopSession(sessionID string) error {
	_, err := s.db.Exec(
		`UPDATE grid_sessions SET status = ?, stopped_at = CURRENT_TIMESTAMP WHERE id = ?`,
		GridStopped, sessionID,
	)
	return err
}

// SaveIntents 批量保存挂单意图
func (s *GridStore) SaveIntents(intents []OrderIntent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, intent := range intents {
		if _, err := tx.Exec(
			`INSERT INTO order_intents (id, session_id, symbol, side, price, quantity, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			intent.ID, intent.SessionID, intent.Symbol, intent.Side,
			intent.Price, intent.Quantity, intent.Status,
		); err != nil {
			return fmt.Errorf("failed to insert order intent: %w", err)
		}
	}
	return tx.Commit()
}

// IntentsBySession 返回会话的所有挂单意图
func (s *GridStore) IntentsBySession(sessionID string) ([]OrderIntent, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, symbol, side, price, quantity, status, created_at
		 FROM order_intents WHERE session_id = ? ORDER BY price DESC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []OrderIntent
	for rows.Next() {
		var it OrderIntent
		if err := rows.Scan(&it.ID, &it.SessionID, &it.Symbol, &it.Side,
			&it.Price, &it.Quantity, &it.Status, &it.CreatedAt); err != nil {
			return nil, err
		}
		intents = append(intents, it)
	}
	return intents, rows.Err()
}

// UpdateIntentStatus 更新挂单意图状态
func (s *GridStore) UpdateIntentStatus(intentID, status string) error {
	_, err := s.db.Exec(`UPDATE order_intents SET status = ? WHERE id = ?`, status, intentID)
	return err
}
