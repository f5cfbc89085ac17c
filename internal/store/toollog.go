package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendToolLog appends an entry with a monotonically increasing, contiguous
// per-workid ordinal and returns it. The sequence read and the insert run in
// one transaction so concurrent writers cannot interleave them.
func (s *LibSQLStore) AppendToolLog(ctx context.Context, entry *ToolLogEntry) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tool log tx: %w", err)
	}
	defer tx.Rollback()

	if err := appendToolLogTx(ctx, tx, entry); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tool log: %w", err)
	}
	return entry.Ordinal, nil
}

// appendToolLogTx assigns the next ordinal and inserts the entry inside an
// existing transaction. Used by AppendToolLog and CommitStep.
func appendToolLogTx(ctx context.Context, tx *sql.Tx, entry *ToolLogEntry) error {
	// Write-intent statement forces immediate lock acquisition; in WAL mode
	// a deferred transaction would let two writers read the same max ordinal.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var ordinal int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ordinal), 0) + 1 FROM tool_log WHERE work_id = ?`, entry.WorkID,
	).Scan(&ordinal)
	if err != nil {
		return fmt.Errorf("get next ordinal: %w", err)
	}
	entry.Ordinal = ordinal

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO tool_log (work_id, plan_id, task_id, node_id, tool, request, response,
		 ordinal, reversed, reversal_of, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.WorkID, nullStr(entry.PlanID), entry.TaskID, nullStr(entry.NodeID), entry.Tool,
		nullRaw(entry.Request), nullRaw(entry.Response),
		ordinal, boolToInt(entry.Reversed), entry.ReversalOf, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert tool log entry: %w", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// ToolLogHistory returns all entries for a workid in ordinal order.
// Reversed entries are flagged, never absent.
func (s *LibSQLStore) ToolLogHistory(ctx context.Context, workID string) ([]*ToolLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, work_id, plan_id, task_id, node_id, tool, request, response,
		 ordinal, reversed, reversal_of, timestamp
		 FROM tool_log WHERE work_id = ? ORDER BY ordinal`, workID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*ToolLogEntry
	for rows.Next() {
		e := &ToolLogEntry{}
		var planID, nodeID, request, response sql.NullString
		var taskID sql.NullInt64
		var reversed int
		if err := rows.Scan(&e.ID, &e.WorkID, &planID, &taskID, &nodeID, &e.Tool,
			&request, &response, &e.Ordinal, &reversed, &e.ReversalOf, &e.Timestamp); err != nil {
			return nil, err
		}
		e.PlanID = planID.String
		e.TaskID = taskID.Int64
		e.NodeID = nodeID.String
		e.Request = rawOrNil(request)
		e.Response = rawOrNil(response)
		e.Reversed = reversed != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReverseToolLog flags the entry at the given ordinal as reversed.
// Idempotent: reversing an already-reversed entry is a no-op, not an error.
// A missing ordinal fails with NOT_FOUND.
func (s *LibSQLStore) ReverseToolLog(ctx context.Context, workID string, ordinal int64) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM tool_log WHERE work_id = ? AND ordinal = ?`, workID, ordinal,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return storeNotFound("tool log entry", fmt.Sprintf("%s/%d", workID, ordinal))
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE tool_log SET reversed = 1 WHERE work_id = ? AND ordinal = ? AND reversed = 0`,
		workID, ordinal)
	return err
}
