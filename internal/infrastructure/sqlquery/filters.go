// Package sqlquery builds the ledger read queries shared by the MySQL and SQLite repositories.
package sqlquery

import (
	"strings"

	"availsdk/internal/application"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > MaxLimit {
		return DefaultLimit
	}
	return limit
}

const SubmissionColumns = `network, block_number, block_hash, tx_hash, tx_index, signer, app_id, data, data_size, observed_at`

const TxResultColumns = `network, tx_hash, block_hash, block_number, tx_index, call_name, signer, status, success, reason, submitted_at`

// Submissions returns the submission query for filter and its arguments.
func Submissions(filter application.SubmissionQueryFilter) (string, []any) {
	var w where
	w.eq("network", filter.Network)
	if filter.AppID != nil {
		w.add("app_id = ?", *filter.AppID)
	}
	w.eq("signer", filter.Signer)
	w.eq("tx_hash", filter.TxHash)
	if filter.FromBlock != nil {
		w.add("block_number >= ?", *filter.FromBlock)
	}
	if filter.ToBlock != nil {
		w.add("block_number <= ?", *filter.ToBlock)
	}
	query := "SELECT " + SubmissionColumns + " FROM submissions" + w.sql() +
		" ORDER BY block_number ASC, tx_index ASC LIMIT ?"
	return query, append(w.args, NormalizeLimit(filter.Limit))
}

func TxResults(filter application.TxResultQueryFilter) (string, []any) {
	var w where
	w.eq("network", filter.Network)
	w.eq("signer", filter.Signer)
	w.eq("tx_hash", filter.TxHash)
	w.eq("call_name", filter.Call)
	if filter.Success != nil {
		success := 0
		if *filter.Success {
			success = 1
		}
		w.add("success = ?", success)
	}
	query := "SELECT " + TxResultColumns + " FROM tx_results" + w.sql() +
		" ORDER BY submitted_at DESC LIMIT ?"
	return query, append(w.args, NormalizeLimit(filter.Limit))
}

type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

// eq adds column = value unless value is empty.
func (w *where) eq(column, value string) {
	if value != "" {
		w.add(column+" = ?", value)
	}
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// StateKey is the state table key holding the last processed block of network.
func StateKey(network string) string {
	return "last_block:" + network
}
