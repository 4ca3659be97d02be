package repository

import (
	"context"
	"database/sql"
	"fmt"

	"gridcast/backend/libs/db"
	"gridcast/backend/services/energy-service/internal/models"
)

// HistoricalRepository reads the long-lived historical_timeseries table.
type HistoricalRepository struct {
	session *db.Session
}

// NewHistoricalRepository returns repository.
func NewHistoricalRepository(session *db.Session) *HistoricalRepository {
	return &HistoricalRepository{session: session}
}

// LoadAll scans the whole table in timestamp order. Process_ID is exposed as StationID.
func (r *HistoricalRepository) LoadAll(ctx context.Context) ([]models.Reading, error) {
	query := fmt.Sprintf(`SELECT %s FROM historical_timeseries ORDER BY "Timestamp"`, readingColumns)

	var out []models.Reading
	err := r.session.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("historical: query: %w", err)
		}
		out, err = collect(rows)
		if err != nil {
			return fmt.Errorf("historical: scan: %w", err)
		}
		return nil
	})
	return out, err
}

// Stations lists the distinct station ids of the historical table.
func (r *HistoricalRepository) Stations(ctx context.Context) ([]string, error) {
	var out []string
	err := r.session.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT DISTINCT "Process_ID" FROM historical_timeseries WHERE "Process_ID" IS NOT NULL ORDER BY "Process_ID"`)
		if err != nil {
			return fmt.Errorf("historical: query stations: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("historical: scan station: %w", err)
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	return out, err
}
