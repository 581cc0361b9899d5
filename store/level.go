package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"klgrid/level"
)

// Snapshot lifecycle status
const (
	SnapshotActive  = "ACTIVE"
	SnapshotRetired = "RETIRED"
)

// LevelStore 关键位快照存储
//
// 每次生成落一份快照，同 symbol+role 的旧快照自动转为 RETIRED，
// 保留完整历史供回溯。
type LevelStore struct {
	db *sql.DB
}

// LevelSnapshot 一次生成的完整结果
type LevelSnapshot struct {
	ID           int64               `json:"id"`
	Symbol       string              `json:"symbol"`
	Role         string              `json:"role"`
	CurrentPrice float64             `json:"current_price"`
	Trend        string              `json:"trend"`
	Levels       []level.ScoredLevel `json:"levels"`
	Status       string              `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
}

func (s *LevelStore) initTables() error {
	query := `CREATE TABLE IF NOT EXISTS level_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		role TEXT NOT NULL,
		current_price REAL NOT NULL,
		trend TEXT DEFAULT '',
		levels_json TEXT NOT NULL,
		status TEXT DEFAULT 'ACTIVE',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create level_snapshots table: %w", err)
	}
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_level_snapshots_symbol_role
		ON level_snapshots(symbol, role, status)`)
	return err
}

// SaveSnapshot 保存快照并退役同方向旧快照
func (s *LevelStore) SaveSnapshot(symbol string, role level.Role, currentPrice float64, trend level.TrendState, levels []level.ScoredLevel) (int64, error) {
	levelsJSON, err := json.Marshal(levels)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal levels: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE level_snapshots SET status = ? WHERE symbol = ? AND role = ? AND status = ?`,
		SnapshotRetired, symbol, string(role), SnapshotActive,
	); err != nil {
		return 0, fmt.Errorf("failed to retire old snapshots: %w", err)
	}

	result, err := tx.Exec(
		`INSERT INTO level_snapshots (symbol, role, current_price, trend, levels_json, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		symbol, string(role), currentPrice, string(trend), string(levelsJSON), SnapshotActive,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// UpdateScores 原地更新活跃快照的评分 (刷新流程, 价格不变)
func (s *LevelStore) UpdateScores(symbol string, role level.Role, levels []level.ScoredLevel) error {
	levelsJSON, err := json.Marshal(levels)
	if err != nil {
		return fmt.Errorf("failed to marshal levels: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE level_snapshots SET levels_json = ? WHERE symbol = ? AND role = ? AND status = ?`,
		string(levelsJSON), symbol, string(role), SnapshotActive,
	)
	return err
}

// GetActive 返回当前活跃快照，无则返回 nil
func (s *LevelStore) GetActive(symbol string, role level.Role) (*LevelSnapshot, error) {
	row := s.db.QueryRow(
		`SELECT id, symbol, role, current_price, trend, levels_json, status, created_at
		 FROM level_snapshots
		 WHERE symbol = ? AND role = ? AND status = ?
		 ORDER BY id DESC LIMIT 1`,
		symbol, string(role), SnapshotActive,
	)
	return scanSnapshot(row)
}

// History 按时间倒序返回历史快照
func (s *LevelStore) History(symbol string, limit int) ([]*LevelSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, symbol, role, current_price, trend, levels_json, status, created_at
		 FROM level_snapshots WHERE symbol = ? ORDER BY id DESC LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*LevelSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*LevelSnapshot, error) {
	var snap LevelSnapshot
	var levelsJSON string
	err := row.Scan(&snap.ID, &snap.Symbol, &snap.Role, &snap.CurrentPrice,
		&snap.Trend, &levelsJSON, &snap.Status, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(levelsJSON), &snap.Levels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal levels: %w", err)
	}
	return &snap, nil
}
