package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"availsdk/internal/application"
	"availsdk/internal/domain"
	"availsdk/internal/infrastructure/sqlquery"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Repository is the MySQL ledger store.
type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS blocks (
			network VARCHAR(32) NOT NULL,
			block_number BIGINT UNSIGNED NOT NULL,
			block_hash VARCHAR(66) NOT NULL,
			parent_hash VARCHAR(66) NOT NULL DEFAULT '',
			PRIMARY KEY (network, block_number)
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			network VARCHAR(32) NOT NULL,
			block_number BIGINT UNSIGNED NOT NULL,
			block_hash VARCHAR(66) NOT NULL,
			tx_hash VARCHAR(66) NOT NULL,
			tx_index INT UNSIGNED NOT NULL,
			signer VARCHAR(64) NOT NULL,
			app_id INT UNSIGNED NOT NULL,
			data MEDIUMTEXT NOT NULL,
			data_size INT UNSIGNED NOT NULL,
			observed_at BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (network, block_hash, tx_index),
			KEY submissions_block_idx (network, block_number),
			KEY submissions_app_idx (network, app_id),
			KEY submissions_signer_idx (network, signer)
		)`,
		`CREATE TABLE IF NOT EXISTS tx_results (
			network VARCHAR(32) NOT NULL,
			tx_hash VARCHAR(66) NOT NULL,
			block_hash VARCHAR(66) NOT NULL DEFAULT '',
			block_number BIGINT UNSIGNED NOT NULL DEFAULT 0,
			tx_index INT UNSIGNED NOT NULL DEFAULT 0,
			call_name VARCHAR(128) NOT NULL,
			signer VARCHAR(64) NOT NULL,
			status VARCHAR(32) NOT NULL,
			success TINYINT(1) NOT NULL,
			reason VARCHAR(1024) NOT NULL DEFAULT '',
			submitted_at BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (network, tx_hash),
			KEY tx_results_signer_idx (network, signer)
		)`,
		`CREATE TABLE IF NOT EXISTS state (
			state_key VARCHAR(64) NOT NULL,
			state_value VARCHAR(64) NOT NULL,
			PRIMARY KEY (state_key)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	if err := ensureColumn(db, "blocks", "extrinsic_count", "INT UNSIGNED NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	return ensureColumn(db, "tx_results", "reason", "VARCHAR(1024) NOT NULL DEFAULT ''")
}

// ensureColumn adds columns introduced after a table was first created.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	var count int
	row := db.QueryRow(
		`SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
		table,
		column,
	)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

// execBatch runs stmt once per row inside one transaction.
func (r *Repository) execBatch(ctx context.Context, span trace.Span, stmt string, n int, row func(i int) []any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return spanError(span, err)
	}
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		_ = tx.Rollback()
		return spanError(span, err)
	}
	defer prepared.Close()

	for i := 0; i < n; i++ {
		if _, err := prepared.ExecContext(ctx, row(i)...); err != nil {
			_ = tx.Rollback()
			return spanError(span, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return spanError(span, err)
	}
	return nil
}

func (r *Repository) StoreBlocks(ctx context.Context, blocks []domain.BlockRecord) error {
	if len(blocks) == 0 {
		return nil
	}
	ctx, span := startDBSpan(ctx, "mysql.StoreBlocks", attribute.Int("block.count", len(blocks)))
	defer span.End()
	return r.execBatch(ctx, span, `INSERT INTO blocks (network, block_number, block_hash, parent_hash, extrinsic_count)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			block_hash = VALUES(block_hash),
			parent_hash = VALUES(parent_hash),
			extrinsic_count = VALUES(extrinsic_count)`, len(blocks), func(i int) []any {
		b := blocks[i]
		return []any{b.Network, b.BlockNumber, b.BlockHash, b.ParentHash, b.ExtrinsicCount}
	})
}

func (r *Repository) GetBlockHash(ctx context.Context, network string, blockNumber uint64) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT block_hash FROM blocks WHERE network = ? AND block_number = ?`, network, blockNumber).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

func (r *Repository) DeleteBlocksFrom(ctx context.Context, network string, fromBlock uint64) error {
	return r.deleteFrom(ctx, "mysql.DeleteBlocksFrom", "blocks", network, fromBlock)
}

func (r *Repository) DeleteSubmissionsFrom(ctx context.Context, network string, fromBlock uint64) error {
	return r.deleteFrom(ctx, "mysql.DeleteSubmissionsFrom", "submissions", network, fromBlock)
}

func (r *Repository) deleteFrom(ctx context.Context, spanName, table, network string, fromBlock uint64) error {
	ctx, span := startDBSpan(ctx, spanName,
		attribute.String("network", network),
		attribute.Int64("from.block", int64(fromBlock)),
	)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE network = ? AND block_number >= ?`, network, fromBlock)
	if err != nil {
		return spanError(span, err)
	}
	return nil
}

// StoreSubmissions is idempotent: a redelivered submission is ignored.
func (r *Repository) StoreSubmissions(ctx context.Context, submissions []domain.SubmissionRecord) error {
	if len(submissions) == 0 {
		return nil
	}
	ctx, span := startDBSpan(ctx, "mysql.StoreSubmissions", attribute.Int("submission.count", len(submissions)))
	defer span.End()
	return r.execBatch(ctx, span, `INSERT IGNORE INTO submissions (`+sqlquery.SubmissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(submissions), func(i int) []any {
		s := submissions[i]
		return []any{s.Network, s.BlockNumber, s.BlockHash, s.TxHash, s.TxIndex, s.Signer, s.AppID, s.Data, s.DataSize, sqlquery.Millis(s.ObservedAt)}
	})
}

// StoreTxResults keeps the latest outcome per transaction hash.
func (r *Repository) StoreTxResults(ctx context.Context, results []domain.TxResultRecord) error {
	if len(results) == 0 {
		return nil
	}
	ctx, span := startDBSpan(ctx, "mysql.StoreTxResults", attribute.Int("result.count", len(results)))
	defer span.End()
	return r.execBatch(ctx, span, `INSERT INTO tx_results (`+sqlquery.TxResultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			block_hash = VALUES(block_hash),
			block_number = VALUES(block_number),
			tx_index = VALUES(tx_index),
			status = VALUES(status),
			success = VALUES(success),
			reason = VALUES(reason)`, len(results), func(i int) []any {
		t := results[i]
		return []any{t.Network, t.TxHash, t.BlockHash, t.BlockNumber, t.TxIndex, t.Call, t.Signer, t.Status, sqlquery.Bool(t.Success), sqlquery.Truncate(t.Reason, 1024), sqlquery.Millis(t.SubmittedAt)}
	})
}

func (r *Repository) QuerySubmissions(ctx context.Context, filter application.SubmissionQueryFilter) ([]domain.SubmissionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	query, args := sqlquery.Submissions(filter)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlquery.ScanSubmissions(rows)
}

func (r *Repository) QueryTxResults(ctx context.Context, filter application.TxResultQueryFilter) ([]domain.TxResultRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	query, args := sqlquery.TxResults(filter)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlquery.ScanTxResults(rows)
}

func (r *Repository) LastProcessedBlock(ctx context.Context, network string) (uint64, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT state_value FROM state WHERE state_key = ?`, sqlquery.StateKey(network)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	block, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return block, true, nil
}

func (r *Repository) SetLastProcessedBlock(ctx context.Context, network string, block uint64) error {
	ctx, span := startDBSpan(ctx, "mysql.SetLastProcessedBlock",
		attribute.String("network", network),
		attribute.Int64("block.number", int64(block)),
	)
	defer span.End()
	_, err := r.db.ExecContext(ctx, `INSERT INTO state (state_key, state_value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE state_value = VALUES(state_value)`, sqlquery.StateKey(network), strconv.FormatUint(block, 10))
	if err != nil {
		return spanError(span, err)
	}
	return nil
}

func (r *Repository) ClearLastProcessedBlock(ctx context.Context, network string) error {
	ctx, span := startDBSpan(ctx, "mysql.ClearLastProcessedBlock", attribute.String("network", network))
	defer span.End()
	_, err := r.db.ExecContext(ctx, `DELETE FROM state WHERE state_key = ?`, sqlquery.StateKey(network))
	if err != nil {
		return spanError(span, err)
	}
	return nil
}

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("availsdk/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
