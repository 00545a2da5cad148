package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
	pkgch "FinFolio/pkg/clickhouse"
)

// CHAnalysisLog stores analysis requests and history in ClickHouse. Request
// status changes are new row versions collapsed by ReplacingMergeTree.
type CHAnalysisLog struct {
	db       *sql.DB
	requests string
	history  string
}

func NewCHAnalysisLog(ch *pkgch.Client, database string) *CHAnalysisLog {
	return &CHAnalysisLog{
		db:       ch.DB(),
		requests: database + ".analysis_requests",
		history:  database + ".analysis_history",
	}
}

func (s *CHAnalysisLog) SaveRequest(ctx context.Context, req *models.AnalysisRequest) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, scope_kind, scope_id, status, error_message, analysis_id, requested_at, completed_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.requests)
	var completed interface{}
	if req.CompletedAt != nil {
		completed = req.CompletedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, q,
		req.ID, string(req.Scope.Kind), req.Scope.ID, string(req.Status), req.ErrorMessage, req.AnalysisID,
		req.RequestedAt.UTC(), completed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save analysis request: %w", err)
	}
	return nil
}

func (s *CHAnalysisLog) GetRequest(ctx context.Context, id string) (*models.AnalysisRequest, error) {
	q := fmt.Sprintf(`
        SELECT id, scope_kind, scope_id, status, error_message, analysis_id, requested_at, completed_at
        FROM %s FINAL
        WHERE id = ?
        LIMIT 1`, s.requests)
	var (
		r         models.AnalysisRequest
		kind      string
		status    string
		completed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&r.ID, &kind, &r.Scope.ID, &status, &r.ErrorMessage, &r.AnalysisID, &r.RequestedAt, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domrepo.ErrRequestNotFound
		}
		return nil, fmt.Errorf("get analysis request: %w", err)
	}
	r.Scope.Kind = models.ScopeKind(kind)
	r.Status = models.AnalysisStatus(status)
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func (s *CHAnalysisLog) AppendRecord(ctx context.Context, rec *models.AnalysisRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal analysis payload: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, scope_kind, scope_id, payload, generated_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`, s.history)
	if _, err := s.db.ExecContext(ctx, q,
		rec.ID, string(rec.Scope.Kind), rec.Scope.ID, string(payload), rec.GeneratedAt.UTC(), rec.ExpiresAt.UTC(),
	); err != nil {
		return fmt.Errorf("append analysis record: %w", err)
	}
	return nil
}

func (s *CHAnalysisLog) History(ctx context.Context, f domrepo.HistoryFilter) ([]models.AnalysisRecord, error) {
	where := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)
	if f.Kind != "" {
		where = append(where, "scope_kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.ID != "" {
		where = append(where, "scope_id = ?")
		args = append(args, f.ID)
	}
	q := fmt.Sprintf("SELECT id, scope_kind, scope_id, payload, generated_at, expires_at FROM %s", s.history)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY generated_at DESC LIMIT ?"
	args = append(args, historyLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("analysis history: %w", err)
	}
	defer rows.Close()

	var out []models.AnalysisRecord
	for rows.Next() {
		var (
			r       models.AnalysisRecord
			kind    string
			payload string
		)
		if err := rows.Scan(&r.ID, &kind, &r.Scope.ID, &payload, &r.GeneratedAt, &r.ExpiresAt); err != nil {
			return nil, fmt.Errorf("analysis history scan: %w", err)
		}
		r.Scope.Kind = models.ScopeKind(kind)
		if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
			return nil, fmt.Errorf("analysis history payload %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func historyLimit(n int) int {
	if n <= 0 {
		return 10
	}
	if n > 100 {
		return 100
	}
	return n
}
