package sqlquery

import (
	"database/sql"
	"time"
	"unicode/utf8"

	"availsdk/internal/domain"
)

// Timestamps are stored as unix milliseconds so both drivers round-trip them identically.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func Bool(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func ScanSubmissions(rows *sql.Rows) ([]domain.SubmissionRecord, error) {
	defer rows.Close()
	var out []domain.SubmissionRecord
	for rows.Next() {
		var rec domain.SubmissionRecord
		var observed int64
		if err := rows.Scan(&rec.Network, &rec.BlockNumber, &rec.BlockHash, &rec.TxHash, &rec.TxIndex,
			&rec.Signer, &rec.AppID, &rec.Data, &rec.DataSize, &observed); err != nil {
			return nil, err
		}
		rec.ObservedAt = FromMillis(observed)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func ScanTxResults(rows *sql.Rows) ([]domain.TxResultRecord, error) {
	defer rows.Close()
	var out []domain.TxResultRecord
	for rows.Next() {
		var rec domain.TxResultRecord
		var success int
		var submitted int64
		if err := rows.Scan(&rec.Network, &rec.TxHash, &rec.BlockHash, &rec.BlockNumber, &rec.TxIndex,
			&rec.Call, &rec.Signer, &rec.Status, &success, &rec.Reason, &submitted); err != nil {
			return nil, err
		}
		rec.Success = success != 0
		rec.SubmittedAt = FromMillis(submitted)
		out = append(out, rec)
	}
	return out, rows.Err()
}
