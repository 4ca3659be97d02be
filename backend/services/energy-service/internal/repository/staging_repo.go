package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"gridcast/backend/libs/db"
	"gridcast/backend/services/energy-service/internal/models"
	"gridcast/backend/services/energy-service/internal/partition"
)

const undefinedTable = "42P01"

// AllStations selects every station in ReadRecent.
const AllStations = "Overall"

// ErrPartitionMissing reports a read against a day that has no staging table yet.
var ErrPartitionMissing = errors.New("staging: partition table does not exist")

// StagingRepository persists the current day's readings into date-partitioned tables.
type StagingRepository struct {
	session *db.Session
}

// NewStagingRepository returns repository.
func NewStagingRepository(session *db.Session) *StagingRepository {
	return &StagingRepository{session: session}
}

// EnsurePartition creates the day's table if to_regclass does not find it.
// The check-then-create is not atomic; a single producer per partition is assumed.
func (r *StagingRepository) EnsurePartition(ctx context.Context, key partition.Key) (bool, error) {
	table := key.Table()
	created := false
	err := r.session.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		var existing sql.NullString
		if err := conn.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, table).Scan(&existing); err != nil {
			return fmt.Errorf("staging: lookup %s: %w", table, err)
		}
		if existing.Valid {
			return nil
		}
		if _, err := conn.ExecContext(ctx, createTableSQL(table)); err != nil {
			return fmt.Errorf("staging: create %s: %w", table, err)
		}
		created = true
		return nil
	})
	return created, err
}

// Insert writes one reading into its day's table. Each statement commits on its own.
func (r *StagingRepository) Insert(ctx context.Context, reading models.Reading) error {
	table := partition.For(reading.Timestamp).Table()
	n := reading.Normalized()
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, quote(table), readingColumns)

	return r.session.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, query,
			n.StationID,
			n.SequenceID,
			n.Timestamp,
			n.Voltage,
			n.Current,
			n.Power,
			n.Energy,
			n.Frequency,
			n.PowerFactor,
		)
		if err != nil {
			return translate(table, fmt.Errorf("staging: insert into %s: %w", table, err))
		}
		return nil
	})
}

// ReadRecent returns up to limit rows of the partition, newest first.
// station "" or AllStations reads every station.
func (r *StagingRepository) ReadRecent(ctx context.Context, key partition.Key, station string, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		return nil, nil
	}
	table := key.Table()

	var (
		query string
		args  []any
	)
	if station == "" || strings.EqualFold(station, AllStations) {
		query = fmt.Sprintf(`SELECT %s FROM %s ORDER BY "Timestamp" DESC LIMIT $1`, readingColumns, quote(table))
		args = []any{limit}
	} else {
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE "Process_ID" = $1 ORDER BY "Timestamp" DESC LIMIT $2`, readingColumns, quote(table))
		args = []any{station, limit}
	}

	var out []models.Reading
	err := r.session.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return translate(table, fmt.Errorf("staging: query %s: %w", table, err))
		}
		out, err = collect(rows)
		if err != nil {
			return fmt.Errorf("staging: scan %s: %w", table, err)
		}
		return nil
	})
	return out, err
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
		"Process_ID" VARCHAR(50),
		"ID" INTEGER,
		"Timestamp" TIMESTAMP WITHOUT TIME ZONE NOT NULL,
		"Voltage" NUMERIC(6,2),
		"Current" NUMERIC(6,2),
		"Power" NUMERIC(8,2),
		"Energy" NUMERIC(8,3),
		"Frequency" NUMERIC(5,2),
		"PF" NUMERIC(3,2)
	)`, quote(table))
}

func quote(table string) string {
	return pgx.Identifier{table}.Sanitize()
}

func translate(table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s", ErrPartitionMissing, table)
	}
	return err
}
