package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"availsdk/internal/application"
	"availsdk/internal/domain"
	"availsdk/internal/infrastructure/sqlquery"

	_ "modernc.org/sqlite"
)

// Repository is the embedded SQLite ledger store.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS blocks (
			network TEXT NOT NULL,
			block_number INTEGER NOT NULL,
			block_hash TEXT NOT NULL,
			parent_hash TEXT NOT NULL DEFAULT '',
			extrinsic_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (network, block_number)
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			network TEXT NOT NULL,
			block_number INTEGER NOT NULL,
			block_hash TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			tx_index INTEGER NOT NULL,
			signer TEXT NOT NULL,
			app_id INTEGER NOT NULL,
			data TEXT NOT NULL,
			data_size INTEGER NOT NULL,
			observed_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (network, block_hash, tx_index)
		)`,
		`CREATE INDEX IF NOT EXISTS submissions_block_idx ON submissions (network, block_number)`,
		`CREATE INDEX IF NOT EXISTS submissions_app_idx ON submissions (network, app_id)`,
		`CREATE TABLE IF NOT EXISTS tx_results (
			network TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			block_hash TEXT NOT NULL DEFAULT '',
			block_number INTEGER NOT NULL DEFAULT 0,
			tx_index INTEGER NOT NULL DEFAULT 0,
			call_name TEXT NOT NULL,
			signer TEXT NOT NULL,
			status TEXT NOT NULL,
			success INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			submitted_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (network, tx_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) execBatch(ctx context.Context, stmt string, n int, row func(i int) []any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer prepared.Close()
	for i := 0; i < n; i++ {
		if _, err := prepared.ExecContext(ctx, row(i)...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *Repository) StoreBlocks(ctx context.Context, blocks []domain.BlockRecord) error {
	if len(blocks) == 0 {
		return nil
	}
	return r.execBatch(ctx, `INSERT INTO blocks (network, block_number, block_hash, parent_hash, extrinsic_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(network, block_number) DO UPDATE SET
			block_hash = excluded.block_hash,
			parent_hash = excluded.parent_hash,
			extrinsic_count = excluded.extrinsic_count`, len(blocks), func(i int) []any {
		b := blocks[i]
		return []any{b.Network, b.BlockNumber, b.BlockHash, b.ParentHash, b.ExtrinsicCount}
	})
}

func (r *Repository) GetBlockHash(ctx context.Context, network string, blockNumber uint64) (string, bool, error) {
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
	_, err := r.db.ExecContext(ctx, `DELETE FROM blocks WHERE network = ? AND block_number >= ?`, network, fromBlock)
	return err
}

func (r *Repository) DeleteSubmissionsFrom(ctx context.Context, network string, fromBlock uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE network = ? AND block_number >= ?`, network, fromBlock)
	return err
}

func (r *Repository) StoreSubmissions(ctx context.Context, submissions []domain.SubmissionRecord) error {
	if len(submissions) == 0 {
		return nil
	}
	return r.execBatch(ctx, `INSERT OR IGNORE INTO submissions (`+sqlquery.SubmissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(submissions), func(i int) []any {
		s := submissions[i]
		return []any{s.Network, s.BlockNumber, s.BlockHash, s.TxHash, s.TxIndex, s.Signer, s.AppID, s.Data, s.DataSize, sqlquery.Millis(s.ObservedAt)}
	})
}

func (r *Repository) StoreTxResults(ctx context.Context, results []domain.TxResultRecord) error {
	if len(results) == 0 {
		return nil
	}
	return r.execBatch(ctx, `INSERT INTO tx_results (`+sqlquery.TxResultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(network, tx_hash) DO UPDATE SET
			block_hash = excluded.block_hash,
			block_number = excluded.block_number,
			tx_index = excluded.tx_index,
			status = excluded.status,
			success = excluded.success,
			reason = excluded.reason`, len(results), func(i int) []any {
		t := results[i]
		return []any{t.Network, t.TxHash, t.BlockHash, t.BlockNumber, t.TxIndex, t.Call, t.Signer, t.Status, sqlquery.Bool(t.Success), t.Reason, sqlquery.Millis(t.SubmittedAt)}
	})
}

func (r *Repository) QuerySubmissions(ctx context.Context, filter application.SubmissionQueryFilter) ([]domain.SubmissionRecord, error) {
	query, args := sqlquery.Submissions(filter)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlquery.ScanSubmissions(rows)
}

func (r *Repository) QueryTxResults(ctx context.Context, filter application.TxResultQueryFilter) ([]domain.TxResultRecord, error) {
	query, args := sqlquery.TxResults(filter)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlquery.ScanTxResults(rows)
}

func (r *Repository) LastProcessedBlock(ctx context.Context, network string) (uint64, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, sqlquery.StateKey(network)).Scan(&value)
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
	_, err := r.db.ExecContext(ctx, `INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, sqlquery.StateKey(network), strconv.FormatUint(block, 10))
	return err
}

func (r *Repository) ClearLastProcessedBlock(ctx context.Context, network string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM state WHERE key = ?`, sqlquery.StateKey(network))
	return err
}
