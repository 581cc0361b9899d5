package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"klgrid/level"
)

// AuditStore ATR 审计记录存储
type AuditStore struct {
	db *sql.DB
}

// AuditRecord 一次审计的落库形态
type AuditRecord struct {
	ID        int64              `json:"id"`
	Symbol    string             `json:"symbol"`
	Role      string             `json:"role"`
	Result    *level.AuditResult `json:"result"`
	CreatedAt time.Time          `json:"created_at"`
}

func (s *AuditStore) initTables() error {
	query := `CREATE TABLE IF NOT EXISTS audit_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		role TEXT NOT NULL,
		result_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create audit_records table: %w", err)
	}
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_records_symbol
		ON audit_records(symbol, role)`)
	return err
}

// Save 保存审计结果
func (s *AuditStore) Save(symbol string, role level.Role, result *level.AuditResult) error {
	if result == nil {
		return nil
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal audit result: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO audit_records (symbol, role, result_json) VALUES (?, ?, ?)`,
		symbol, string(role), string(resultJSON),
	)
	return err
}

// Latest 返回最近一条审计记录，无则返回 nil
func (s *AuditStore) Latest(symbol string, role level.Role) (*AuditRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, symbol, role, result_json, created_at
		 FROM audit_records WHERE symbol = ? AND role = ? ORDER BY id DESC LIMIT 1`,
		symbol, string(role),
	)

	var rec AuditRecord
	var resultJSON string
	err := row.Scan(&rec.ID, &rec.Symbol, &rec.Role, &resultJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audit result: %w", err)
	}
	return &rec, nil
}
