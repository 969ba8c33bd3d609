package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// LogStatus is a TransactionLog's reconciliation state (spec.md §4.5).
type LogStatus string

const (
	LogStatusBuilt     LogStatus = "built"
	LogStatusPending   LogStatus = "pending"
	LogStatusSucceeded LogStatus = "succeeded"
	LogStatusFailed    LogStatus = "failed"
)

// OutputKind distinguishes a TransactionLog's payload outputs (paid to a
// recipient) from its change output.
type OutputKind string

const (
	OutputKindPayload OutputKind = "payload"
	OutputKindChange  OutputKind = "change"
)

// TransactionLog is the Store's row shape for one built/submitted
// transaction (spec.md §3).
type TransactionLog struct {
	ID                  TransactionLogID
	AccountID           AccountID
	FeeValue            uint64
	FeeTokenID          uint64
	ValuePerToken       map[uint64]uint64
	SubmittedBlockIndex *uint64
	TombstoneBlockIndex uint64
	FinalizedBlockIndex *uint64
	Status              LogStatus
	Comment             string
	FailureCode         string
	FailureMessage      string
	SentAt              *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TransactionLogOutput is one payload or change output row linked to a
// TransactionLog.
type TransactionLogOutput struct {
	TxoID             TxoID
	Kind              OutputKind
	RecipientAddress  string
	ConfirmationCode  string // hex-encoded keys.ConfirmationCode
}

// CreateTransactionLog writes a new log in status "built" together with its
// input and output link rows, inside tx so callers can combine it with the
// insertion of newly minted output TXOs (spec.md §4.4 "Transaction log is
// written atomically").
func (s *Store) CreateTransactionLog(tx *sql.Tx, log TransactionLog, inputs []TxoID, outputs []TransactionLogOutput) error {
	if log.Status == "" {
		log.Status = LogStatusBuilt
	}
	valuePerToken, err := json.Marshal(log.ValuePerToken)
	if err != nil {
		return fmt.Errorf("store: marshal value_per_token: %w", err)
	}

	now := time.Now()
	var sentAt any
	if log.SentAt != nil {
		sentAt = log.SentAt.Unix()
	}

	_, err = tx.Exec(`
		INSERT INTO transaction_logs (
			id, account_id, fee_value, fee_token_id, value_per_token,
			submitted_block_index, tombstone_block_index, finalized_block_index,
			status, comment, failure_code, failure_message, sent_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID.Hex(), log.AccountID.Hex(), strconv.FormatUint(log.FeeValue, 10), log.FeeTokenID, string(valuePerToken),
		nil, log.TombstoneBlockIndex, nil,
		string(log.Status), log.Comment, nullIfEmpty(log.FailureCode), nullIfEmpty(log.FailureMessage), sentAt, now.Unix(), now.Unix(),
	)
	if err != nil {
		return AlreadyExists("transaction_log", log.ID.Hex())
	}

	for _, txoID := range inputs {
		if _, err := tx.Exec(`INSERT INTO transaction_log_inputs (id, log_id, txo_id) VALUES (?, ?, ?)`,
			uuid.NewString(), log.ID.Hex(), txoID.Hex()); err != nil {
			return IOError("transaction_log", "insert input", err)
		}
	}
	for _, out := range outputs {
		if _, err := tx.Exec(`INSERT INTO transaction_log_outputs (id, log_id, txo_id, kind, recipient_address, confirmation_code) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), log.ID.Hex(), out.TxoID.Hex(), string(out.Kind), out.RecipientAddress, out.ConfirmationCode); err != nil {
			return IOError("transaction_log", "insert output", err)
		}
	}
	return nil
}

// TransitionToPending moves a log built -> pending on successful
// submission (spec.md §4.5).
func (s *Store) TransitionToPending(tx *sql.Tx, id TransactionLogID, submittedBlockIndex uint64) error {
	res, err := tx.Exec(`
		UPDATE transaction_logs SET status = ?, submitted_block_index = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(LogStatusPending), submittedBlockIndex, time.Now().Unix(), id.Hex(), string(LogStatusBuilt))
	if err != nil {
		return IOError("transaction_log", "transition to pending", err)
	}
	return requireTransitionAffected(res, id, LogStatusBuilt, LogStatusPending)
}

// TransitionToSucceeded moves a log pending -> succeeded once its inputs
// and outputs are observed atomically in the same block (spec.md §4.5).
func (s *Store) TransitionToSucceeded(tx *sql.Tx, id TransactionLogID, finalizedBlockIndex uint64) error {
	res, err := tx.Exec(`
		UPDATE transaction_logs SET status = ?, finalized_block_index = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(LogStatusSucceeded), finalizedBlockIndex, time.Now().Unix(), id.Hex(), string(LogStatusPending))
	if err != nil {
		return IOError("transaction_log", "transition to succeeded", err)
	}
	return requireTransitionAffected(res, id, LogStatusPending, LogStatusSucceeded)
}

// TransitionToFailed moves a log pending -> failed, e.g. on tombstone
// expiry or protocol rejection (spec.md §4.5, §7).
func (s *Store) TransitionToFailed(tx *sql.Tx, id TransactionLogID, code, message string) error {
	res, err := tx.Exec(`
		UPDATE transaction_logs SET status = ?, failure_code = ?, failure_message = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(LogStatusFailed), code, message, time.Now().Unix(), id.Hex(), string(LogStatusBuilt), string(LogStatusPending))
	if err != nil {
		return IOError("transaction_log", "transition to failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return IOError("transaction_log", "rows affected", err)
	}
	if n == 0 {
		return InvariantViolation("transaction_log", "cannot fail a terminal log")
	}
	return nil
}

// GetTransactionLog reads a log and its input/output link rows.
func (s *Store) GetTransactionLog(id TransactionLogID) (TransactionLog, []TxoID, []TransactionLogOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, err := scanTransactionLog(s.db.QueryRow(`
		SELECT id, account_id, fee_value, fee_token_id, value_per_token,
		       submitted_block_index, tombstone_block_index, finalized_block_index,
		       status, comment, failure_code, failure_message, sent_at, created_at, updated_at
		FROM transaction_logs WHERE id = ?`, id.Hex()).Scan)
	if err == sql.ErrNoRows {
		return TransactionLog{}, nil, nil, NotFound("transaction_log", id.Hex())
	}
	if err != nil {
		return TransactionLog{}, nil, nil, IOError("transaction_log", "read", err)
	}

	inputRows, err := s.db.Query(`SELECT txo_id FROM transaction_log_inputs WHERE log_id = ?`, id.Hex())
	if err != nil {
		return TransactionLog{}, nil, nil, IOError("transaction_log", "read inputs", err)
	}
	defer inputRows.Close()
	var inputs []TxoID
	for inputRows.Next() {
		var hex string
		if err := inputRows.Scan(&hex); err != nil {
			return TransactionLog{}, nil, nil, IOError("transaction_log", "scan input", err)
		}
		id, err := ParseTxoID(hex)
		if err != nil {
			return TransactionLog{}, nil, nil, err
		}
		inputs = append(inputs, id)
	}

	outputRows, err := s.db.Query(`SELECT txo_id, kind, recipient_address, confirmation_code FROM transaction_log_outputs WHERE log_id = ?`, id.Hex())
	if err != nil {
		return TransactionLog{}, nil, nil, IOError("transaction_log", "read outputs", err)
	}
	defer outputRows.Close()
	var outputs []TransactionLogOutput
	for outputRows.Next() {
		var out TransactionLogOutput
		var hex, kind string
		if err := outputRows.Scan(&hex, &kind, &out.RecipientAddress, &out.ConfirmationCode); err != nil {
			return TransactionLog{}, nil, nil, IOError("transaction_log", "scan output", err)
		}
		out.Kind = OutputKind(kind)
		id, err := ParseTxoID(hex)
		if err != nil {
			return TransactionLog{}, nil, nil, err
		}
		out.TxoID = id
		outputs = append(outputs, out)
	}

	return log, inputs, outputs, nil
}

// ListTransactionLogsForAccount lists an account's logs, optionally
// filtered by status, newest first.
func (s *Store) ListTransactionLogsForAccount(id AccountID, status *LogStatus) ([]TransactionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, account_id, fee_value, fee_token_id, value_per_token,
		       submitted_block_index, tombstone_block_index, finalized_block_index,
		       status, comment, failure_code, failure_message, sent_at, created_at, updated_at
		FROM transaction_logs WHERE account_id = ?`
	args := []any{id.Hex()}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, IOError("transaction_log", "list", err)
	}
	defer rows.Close()

	var out []TransactionLog
	for rows.Next() {
		log, err := scanTransactionLog(rows.Scan)
		if err != nil {
			return nil, IOError("transaction_log", "scan", err)
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

// ListPendingTransactionLogs returns an account's pending logs, used by the
// Account Scanner's per-block reconciliation pass (spec.md §4.5).
func (s *Store) ListPendingTransactionLogs(tx *sql.Tx, accountID AccountID) ([]TransactionLog, error) {
	rows, err := tx.Query(`
		SELECT id, account_id, fee_value, fee_token_id, value_per_token,
		       submitted_block_index, tombstone_block_index, finalized_block_index,
		       status, comment, failure_code, failure_message, sent_at, created_at, updated_at
		FROM transaction_logs WHERE account_id = ? AND status = ?`, accountID.Hex(), string(LogStatusPending))
	if err != nil {
		return nil, IOError("transaction_log", "list pending", err)
	}
	defer rows.Close()

	var out []TransactionLog
	for rows.Next() {
		log, err := scanTransactionLog(rows.Scan)
		if err != nil {
			return nil, IOError("transaction_log", "scan", err)
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

// ListTransactionLogInputs returns a log's input TXO ids, composable inside
// an Atomic transaction (used by the Account Scanner's reconciliation pass).
func (s *Store) ListTransactionLogInputs(tx *sql.Tx, logID TransactionLogID) ([]TxoID, error) {
	rows, err := tx.Query(`SELECT txo_id FROM transaction_log_inputs WHERE log_id = ?`, logID.Hex())
	if err != nil {
		return nil, IOError("transaction_log", "list inputs", err)
	}
	defer rows.Close()

	var out []TxoID
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, IOError("transaction_log", "scan input", err)
		}
		id, err := ParseTxoID(hex)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListTransactionLogOutputs returns a log's output rows, composable inside
// an Atomic transaction (used by the Account Scanner's reconciliation pass).
func (s *Store) ListTransactionLogOutputs(tx *sql.Tx, logID TransactionLogID) ([]TransactionLogOutput, error) {
	rows, err := tx.Query(`SELECT txo_id, kind, recipient_address, confirmation_code FROM transaction_log_outputs WHERE log_id = ?`, logID.Hex())
	if err != nil {
		return nil, IOError("transaction_log", "list outputs", err)
	}
	defer rows.Close()

	var out []TransactionLogOutput
	for rows.Next() {
		var o TransactionLogOutput
		var hex, kind string
		if err := rows.Scan(&hex, &kind, &o.RecipientAddress, &o.ConfirmationCode); err != nil {
			return nil, IOError("transaction_log", "scan output", err)
		}
		o.Kind = OutputKind(kind)
		id, err := ParseTxoID(hex)
		if err != nil {
			return nil, err
		}
		o.TxoID = id
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanTransactionLog(scan func(dest ...any) error) (TransactionLog, error) {
	var log TransactionLog
	var idHex, accountIDHex, feeValueStr, valuePerTokenJSON, status string
	var comment string
	var submittedBlock, finalizedBlock, sentAt sql.NullInt64
	var failureCode, failureMessage sql.NullString
	var createdAt, updatedAt int64

	err := scan(
		&idHex, &accountIDHex, &feeValueStr, &log.FeeTokenID, &valuePerTokenJSON,
		&submittedBlock, &log.TombstoneBlockIndex, &finalizedBlock,
		&status, &comment, &failureCode, &failureMessage, &sentAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return TransactionLog{}, err
	}

	id, err := ParseTransactionLogID(idHex)
	if err != nil {
		return TransactionLog{}, err
	}
	log.ID = id

	accountID, err := ParseAccountID(accountIDHex)
	if err != nil {
		return TransactionLog{}, err
	}
	log.AccountID = accountID

	feeValue, err := strconv.ParseUint(feeValueStr, 10, 64)
	if err != nil {
		return TransactionLog{}, fmt.Errorf("parse fee_value: %w", err)
	}
	log.FeeValue = feeValue

	if err := json.Unmarshal([]byte(valuePerTokenJSON), &log.ValuePerToken); err != nil {
		return TransactionLog{}, fmt.Errorf("unmarshal value_per_token: %w", err)
	}

	if submittedBlock.Valid {
		v := uint64(submittedBlock.Int64)
		log.SubmittedBlockIndex = &v
	}
	if finalizedBlock.Valid {
		v := uint64(finalizedBlock.Int64)
		log.FinalizedBlockIndex = &v
	}
	if sentAt.Valid {
		t := time.Unix(sentAt.Int64, 0).UTC()
		log.SentAt = &t
	}

	log.Status = LogStatus(status)
	log.Comment = comment
	if failureCode.Valid {
		log.FailureCode = failureCode.String
	}
	if failureMessage.Valid {
		log.FailureMessage = failureMessage.String
	}
	log.CreatedAt = time.Unix(createdAt, 0).UTC()
	log.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return log, nil
}

func requireTransitionAffected(res sql.Result, id TransactionLogID, from, to LogStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return IOError("transaction_log", "rows affected", err)
	}
	if n == 0 {
		return InvariantViolation("transaction_log", fmt.Sprintf("cannot transition %s: %s -> %s", id.Hex(), from, to))
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
