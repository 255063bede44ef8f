// Package history persists completed analysis runs and serves them back
// to the API and the retention cleanup job. Each run is stored twice:
// flat columns for listing and filtering, and the full summary as JSON
// for lossless retrieval.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/vigil/internal/database"
	"github.com/aristath/vigil/internal/domain"
)

// Repository handles analysis run persistence in history.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a repository on the history database connection.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// RunRecord is the flat listing view of a stored run, without the
// per-agent signal payloads.
type RunRecord struct {
	RunID              string    `json:"run_id"`
	GeneratedAt        time.Time `json:"generated_at"`
	Symbols            []string  `json:"symbols"`
	Period             string    `json:"period"`
	UnifiedScore       float64   `json:"unified_score"`
	UnifiedLevel       string    `json:"unified_level"`
	AdvisoryAction     string    `json:"advisory_action"`
	AdvisoryConfidence float64   `json:"advisory_confidence"`
	DurationMS         int64     `json:"duration_ms"`
}

// SaveRun writes a completed run and its alerts in one transaction.
func (r *Repository) SaveRun(summary *domain.UnifiedSummary) error {
	if summary == nil || summary.RunID == "" {
		return fmt.Errorf("refusing to save run without an ID")
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO analysis_runs (
				run_id, generated_at, symbols, period, unified_score,
				unified_level, advisory_action, advisory_confidence,
				duration_ms, summary_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			summary.RunID,
			summary.GeneratedAt.UTC().Format(time.RFC3339),
			strings.Join(summary.Symbols, ","),
			summary.Period,
			summary.UnifiedScore,
			string(summary.UnifiedLevel),
			summary.Advisory.OverallRecommendation,
			summary.Advisory.Confidence,
			summary.DurationMS,
			string(payload),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		for _, alert := range summary.Alerts {
			_, err := tx.Exec(`
				INSERT INTO analysis_alerts (run_id, type, severity, message, value, symbol, source)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`,
				summary.RunID,
				alert.Type,
				string(alert.Severity),
				alert.Message,
				alert.Value,
				alert.Symbol,
				alert.Source,
			)
			if err != nil {
				return fmt.Errorf("failed to insert alert: %w", err)
			}
		}

		return nil
	})
}

// Latest returns the most recent run, or nil when none are stored.
func (r *Repository) Latest() (*domain.UnifiedSummary, error) {
	return r.querySummary(`
		SELECT summary_json
		FROM analysis_runs
		ORDER BY generated_at DESC
		LIMIT 1
	`)
}

// Get returns one run by ID, or nil when it does not exist.
func (r *Repository) Get(runID string) (*domain.UnifiedSummary, error) {
	return r.querySummary("SELECT summary_json FROM analysis_runs WHERE run_id = ?", runID)
}

func (r *Repository) querySummary(query string, args ...interface{}) (*domain.UnifiedSummary, error) {
	var payload string
	err := r.db.QueryRow(query, args...).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	var summary domain.UnifiedSummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return nil, fmt.Errorf("failed to deserialize summary: %w", err)
	}
	return &summary, nil
}

// Recent returns flat records for the newest runs, most recent first.
// A non-positive limit falls back to 20.
func (r *Repository) Recent(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`
		SELECT run_id, generated_at, symbols, period, unified_score,
		       unified_level, advisory_action, advisory_confidence, duration_ms
		FROM analysis_runs
		ORDER BY generated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var generatedAt, symbols string

		err := rows.Scan(
			&rec.RunID,
			&generatedAt,
			&symbols,
			&rec.Period,
			&rec.UnifiedScore,
			&rec.UnifiedLevel,
			&rec.AdvisoryAction,
			&rec.AdvisoryConfidence,
			&rec.DurationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if ts, err := time.Parse(time.RFC3339, generatedAt); err == nil {
			rec.GeneratedAt = ts
		}
		if symbols != "" {
			rec.Symbols = strings.Split(symbols, ",")
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return records, nil
}

// Alerts returns stored alerts for one run in stored order, which is the
// severity order the engine wrote them in. An empty runID selects the
// latest run; a non-empty minSeverity is a case-insensitive floor keeping
// alerts at or above that severity.
func (r *Repository) Alerts(runID, minSeverity string) ([]domain.Alert, error) {
	query := `
		SELECT type, severity, message, value, symbol, source
		FROM analysis_alerts
		WHERE run_id = `
	var args []interface{}

	if runID == "" {
		query += "(SELECT run_id FROM analysis_runs ORDER BY generated_at DESC LIMIT 1)"
	} else {
		query += "?"
		args = append(args, runID)
	}
	if minSeverity != "" {
		minRank := domain.SeverityRank(domain.Severity(strings.ToUpper(minSeverity)))
		if minRank == 0 {
			return nil, fmt.Errorf("unknown severity %q", minSeverity)
		}
		placeholders := make([]string, 0, 4)
		for _, s := range []domain.Severity{domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical} {
			if domain.SeverityRank(s) >= minRank {
				placeholders = append(placeholders, "?")
				args = append(args, string(s))
			}
		}
		query += " AND severity IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY id"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []domain.Alert{}
	for rows.Next() {
		var alert domain.Alert
		var symbol, source sql.NullString

		err := rows.Scan(&alert.Type, &alert.Severity, &alert.Message, &alert.Value, &symbol, &source)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		alert.Symbol = symbol.String
		alert.Source = source.String
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// DeleteOlderThan removes runs generated before the cutoff and returns
// the number of runs removed. Alert rows follow through the cascade.
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(
		"DELETE FROM analysis_runs WHERE generated_at < ?",
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted runs: %w", err)
	}

	if deleted > 0 {
		r.log.Info().Int64("runs", deleted).Time("cutoff", cutoff).Msg("Pruned analysis history")
	}
	return deleted, nil
}

// Count returns the number of stored runs.
func (r *Repository) Count() (int64, error) {
	var count int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM analysis_runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}
