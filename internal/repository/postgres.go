package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"netfinder/internal/model"
)

const schema = `
    CREATE TABLE IF NOT EXISTS network_ranges (
        seq          BIGINT PRIMARY KEY,
        network      TEXT NOT NULL,
        min_ip       NUMERIC(20, 0) NOT NULL,
        max_ip       NUMERIC(20, 0) NOT NULL,
        asn          TEXT NOT NULL,
        organization TEXT NOT NULL,
        country      TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS network_ranges_bounds_idx ON network_ranges (min_ip, max_ip);
`

// PostgresRepository stores the range dataset in a table and answers
// narrowest-match queries in SQL.
type PostgresRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewPostgresRepository(db *sqlx.DB, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// SaveRanges replaces the table content with ranges in a single transaction.
func (r *PostgresRepository) SaveRanges(ctx context.Context, ranges []model.NetworkRange) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE network_ranges"); err != nil {
		return fmt.Errorf("truncating network_ranges: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("network_ranges",
		"seq", "network", "min_ip", "max_ip", "asn", "organization", "country"))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ipRange := range ranges {
		_, err = stmt.ExecContext(ctx,
			ipRange.Seq,
			ipRange.Network,
			strconv.FormatUint(ipRange.MinIP, 10),
			strconv.FormatUint(ipRange.MaxIP, 10),
			ipRange.ASN,
			ipRange.Organization,
			ipRange.Country)
		if err != nil {
			r.logger.Error("failed to copy network range",
				zap.String("network", ipRange.Network),
				zap.Int64("seq", ipRange.Seq),
				zap.Error(err))
			return err
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing copy: %w", err)
	}

	return tx.Commit()
}

func (r *PostgresRepository) FindRange(ctx context.Context, ip uint32) (*model.NetworkRange, error) {
	query := `
        SELECT seq, network, min_ip, max_ip, asn, organization, country
        FROM network_ranges
        WHERE min_ip <= $1 AND $1 <= max_ip
        ORDER BY max_ip - min_ip ASC, seq ASC
        LIMIT 1
    `

	var ipRange model.NetworkRange
	err := r.db.GetContext(ctx, &ipRange, query, strconv.FormatUint(uint64(ip), 10))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		r.logger.Error("failed to find network range",
			zap.Uint32("ip", ip),
			zap.Error(err))
		return nil, err
	}

	return &ipRange, nil
}

func (r *PostgresRepository) GetRangesCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, "SELECT count(*) FROM network_ranges")
	return count, err
}

// Version hashes the table content in row order. It scans the whole table,
// so it is meant for startup only.
func (r *PostgresRepository) Version(ctx context.Context) (string, error) {
	query := `
        SELECT md5(coalesce(string_agg(
            concat_ws('|', seq, network, min_ip, max_ip, asn, organization, country),
            E'\n' ORDER BY seq), ''))
        FROM network_ranges
    `

	var sum string
	if err := r.db.GetContext(ctx, &sum, query); err != nil {
		return "", err
	}
	return "pg-" + sum[:16], nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
