package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/pkg/helpers"
)

// TxoStatus is the derived status of a TXO, computed from its stored
// attributes and, for "pending", from whether it is referenced as an input
// of a submitted-but-not-finalized TransactionLog (spec.md §3).
type TxoStatus string

const (
	TxoStatusUnverified TxoStatus = "unverified"
	TxoStatusUnspent    TxoStatus = "unspent"
	TxoStatusPending    TxoStatus = "pending"
	TxoStatusSpent      TxoStatus = "spent"
	TxoStatusSecreted   TxoStatus = "secreted"
	TxoStatusOrphaned   TxoStatus = "orphaned"
)

// Txo is the Store's row shape for one ledger output (spec.md §3).
type Txo struct {
	TxoID               TxoID
	PublicKey           cryptoiface.PublicKey
	TargetKey           cryptoiface.PublicKey
	Value               uint64
	TokenID             uint64
	EncryptedHint       []byte
	OutputBlob          []byte
	SubaddressIndex     *uint64
	KeyImage            *cryptoiface.KeyImage
	ReceivedBlockIndex  *uint64
	SpentBlockIndex     *uint64
	ReceivedAccountID   *AccountID
	MintedAccountID     *AccountID
	SharedSecret        *[32]byte
	Memo                []byte
	Secreted            bool
	CreatedAt           time.Time
	pendingInputKnown   bool
	pendingInput        bool
}

// Status computes the derived status described in spec.md §3. Callers that
// obtained t from GetTxo/ListTxos have the pending-input bit already
// resolved.
func (t Txo) Status() TxoStatus {
	switch {
	case t.Secreted:
		return TxoStatusSecreted
	case t.MintedAccountID != nil && t.ReceivedBlockIndex == nil && t.KeyImage == nil:
		return TxoStatusUnverified
	case t.pendingInputKnown && t.pendingInput:
		return TxoStatusPending
	case t.SpentBlockIndex != nil:
		return TxoStatusSpent
	case t.ReceivedBlockIndex != nil && t.SubaddressIndex == nil:
		return TxoStatusOrphaned
	case t.ReceivedBlockIndex != nil:
		return TxoStatusUnspent
	default:
		return TxoStatusUnverified
	}
}

// InsertTxoIfAbsent inserts t if no row with its txo_id exists yet,
// returning whether an insert happened. Used by the Account Scanner
// (received outputs) and Transaction Builder (minted outputs).
func (s *Store) InsertTxoIfAbsent(tx *sql.Tx, t Txo) (bool, error) {
	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM txos WHERE txo_id = ?`, t.TxoID.Hex()).Scan(&exists); err != nil {
		return false, IOError("txo", "check existence", err)
	}
	if exists > 0 {
		return false, nil
	}

	var subIdx, receivedBlock, spentBlock any
	if t.SubaddressIndex != nil {
		subIdx = *t.SubaddressIndex
	}
	if t.ReceivedBlockIndex != nil {
		receivedBlock = *t.ReceivedBlockIndex
	}
	if t.SpentBlockIndex != nil {
		spentBlock = *t.SpentBlockIndex
	}
	var keyImage, sharedSecret any
	if t.KeyImage != nil {
		keyImage = helpers.BytesToHex(t.KeyImage[:])
	}
	if t.SharedSecret != nil {
		sharedSecret = helpers.BytesToHex(t.SharedSecret[:])
	}
	var receivedAccount, mintedAccount any
	if t.ReceivedAccountID != nil {
		receivedAccount = t.ReceivedAccountID.Hex()
	}
	if t.MintedAccountID != nil {
		mintedAccount = t.MintedAccountID.Hex()
	}

	_, err := tx.Exec(`
		INSERT INTO txos (
			txo_id, public_key, target_key, value, token_id, encrypted_hint, output_blob,
			subaddress_index, key_image, received_block_index, spent_block_index,
			received_account_id, minted_account_id, shared_secret, memo, secreted, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TxoID.Hex(), helpers.BytesToHex(t.PublicKey[:]), helpers.BytesToHex(t.TargetKey[:]),
		strconv.FormatUint(t.Value, 10), t.TokenID, t.EncryptedHint, t.OutputBlob,
		subIdx, keyImage, receivedBlock, spentBlock,
		receivedAccount, mintedAccount, sharedSecret, t.Memo, boolToInt(t.Secreted), time.Now().Unix(),
	)
	if err != nil {
		return false, IOError("txo", "insert", err)
	}
	return true, nil
}

// MarkReceived records that txoID was observed received by accountID at
// subaddressIndex in block b (spec.md §4.3 step 2b). subaddressIndex is nil
// for an orphaned observation.
func (s *Store) MarkReceived(tx *sql.Tx, txoID TxoID, accountID AccountID, subaddressIndex *uint64, blockIndex uint64, sharedSecret *[32]byte) error {
	var subIdx any
	if subaddressIndex != nil {
		subIdx = *subaddressIndex
	}
	var shared any
	if sharedSecret != nil {
		shared = helpers.BytesToHex(sharedSecret[:])
	}
	res, err := tx.Exec(`
		UPDATE txos SET received_account_id = ?, subaddress_index = ?, received_block_index = ?, shared_secret = ?
		WHERE txo_id = ?`, accountID.Hex(), subIdx, blockIndex, shared, txoID.Hex())
	if err != nil {
		return IOError("txo", "mark received", err)
	}
	return requireRowsAffected(res, "txo", txoID.Hex())
}

// MarkSpentByKeyImage marks spent, at block b, whichever TXO (if any) owns
// keyImage. Returns the matched txo id, or ok=false if no TXO is known by
// that key image (spec.md §4.3 step 3).
func (s *Store) MarkSpentByKeyImage(tx *sql.Tx, keyImage cryptoiface.KeyImage, blockIndex uint64) (id TxoID, ok bool, err error) {
	row := tx.QueryRow(`SELECT txo_id, received_block_index FROM txos WHERE key_image = ?`, helpers.BytesToHex(keyImage[:]))
	var txoIDHex string
	var receivedBlock sql.NullInt64
	if err := row.Scan(&txoIDHex, &receivedBlock); err != nil {
		if err == sql.ErrNoRows {
			return TxoID{}, false, nil
		}
		return TxoID{}, false, IOError("txo", "lookup by key image", err)
	}
	if receivedBlock.Valid && uint64(receivedBlock.Int64) > blockIndex {
		return TxoID{}, false, InvariantViolation("txo", "spent_block_index must be >= received_block_index")
	}

	txoID, err := ParseTxoID(txoIDHex)
	if err != nil {
		return TxoID{}, false, err
	}
	if _, err := tx.Exec(`UPDATE txos SET spent_block_index = ? WHERE txo_id = ?`, blockIndex, txoIDHex); err != nil {
		return TxoID{}, false, IOError("txo", "mark spent", err)
	}
	return txoID, true, nil
}

// GetTxoKeyImage returns the stored key image for a TXO, if any, composable
// inside an Atomic transaction. Used by the Account Scanner's reconciliation
// pass to check whether a transaction log's input TXOs have all been
// observed spent (spec.md §4.5).
func (s *Store) GetTxoKeyImage(tx *sql.Tx, id TxoID) (*cryptoiface.KeyImage, error) {
	var hex sql.NullString
	err := tx.QueryRow(`SELECT key_image FROM txos WHERE txo_id = ?`, id.Hex()).Scan(&hex)
	if err == sql.ErrNoRows {
		return nil, NotFound("txo", id.Hex())
	}
	if err != nil {
		return nil, IOError("txo", "read key image", err)
	}
	if !hex.Valid {
		return nil, nil
	}
	b, err := helpers.FixedHexToBytes(hex.String, cryptoiface.KeySize)
	if err != nil {
		return nil, err
	}
	var img cryptoiface.KeyImage
	copy(img[:], b)
	return &img, nil
}

// SetKeyImage records a TXO's key image once it becomes derivable, e.g.
// after orphan recovery assigns the subaddress index a one-time key was
// derived against (spec.md §4.3 "Orphan recovery"). A no-op if the key
// image is already set, so repeated recovery passes stay idempotent.
func (s *Store) SetKeyImage(tx *sql.Tx, txoID TxoID, keyImage cryptoiface.KeyImage) error {
	res, err := tx.Exec(`UPDATE txos SET key_image = ? WHERE txo_id = ? AND key_image IS NULL`,
		helpers.BytesToHex(keyImage[:]), txoID.Hex())
	if err != nil {
		return IOError("txo", "set key image", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return IOError("txo", "rows affected", err)
	}
	if n > 0 {
		return nil
	}
	existing, err := s.GetTxoKeyImage(tx, txoID)
	if err != nil {
		return err
	}
	if existing == nil {
		return NotFound("txo", txoID.Hex())
	}
	return nil
}

// AttachMemo stores memo on an existing TXO as given; it does not decode or
// validate the blob.
func (s *Store) AttachMemo(tx *sql.Tx, txoID TxoID, memo []byte) error {
	res, err := tx.Exec(`UPDATE txos SET memo = ? WHERE txo_id = ?`, memo, txoID.Hex())
	if err != nil {
		return IOError("txo", "attach memo", err)
	}
	return requireRowsAffected(res, "txo", txoID.Hex())
}

// LinkOrphanToSubaddress assigns subaddressIndex to a previously orphaned
// TXO once its owning subaddress has been materialized (spec.md §4.3
// "Orphan recovery").
func (s *Store) LinkOrphanToSubaddress(tx *sql.Tx, txoID TxoID, subaddressIndex uint64) error {
	res, err := tx.Exec(`UPDATE txos SET subaddress_index = ? WHERE txo_id = ? AND subaddress_index IS NULL`, subaddressIndex, txoID.Hex())
	if err != nil {
		return IOError("txo", "link orphan", err)
	}
	return requireRowsAffected(res, "txo", txoID.Hex())
}

// ListOrphanedTxos returns every received-but-unassigned TXO of an account.
func (s *Store) ListOrphanedTxos(accountID AccountID) ([]Txo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+txoColumns+`
		FROM txos WHERE received_account_id = ? AND subaddress_index IS NULL`, accountID.Hex())
	if err != nil {
		return nil, IOError("txo", "list orphans", err)
	}
	defer rows.Close()
	return scanTxoRows(rows, false)
}

// GetTxo reads a single TXO by id, with its pending-input status resolved.
func (s *Store) GetTxo(id TxoID) (Txo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+txoColumns+`, EXISTS (
		SELECT 1 FROM transaction_log_inputs tli
		JOIN transaction_logs tl ON tl.id = tli.log_id
		WHERE tli.txo_id = txos.txo_id AND tl.status = 'pending'
	) FROM txos WHERE txo_id = ?`, id.Hex())

	t, err := scanTxo(row.Scan, true)
	if err == sql.ErrNoRows {
		return Txo{}, NotFound("txo", id.Hex())
	}
	if err != nil {
		return Txo{}, IOError("txo", "read", err)
	}
	return t, nil
}

// TxoFilter selects a page of TXOs for ListTxos.
type TxoFilter struct {
	AccountID        *AccountID
	SubaddressIndex  *uint64
	Status           *TxoStatus
	MinReceivedBlock *uint64
	MaxReceivedBlock *uint64
	Limit            int
	Offset           int
}

// ListTxos enumerates TXOs for an account, paginated and deterministically
// ordered by ascending received_block_index then txo_id (spec.md §4.1).
func (s *Store) ListTxos(f TxoFilter) ([]Txo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + txoColumns + `, EXISTS (
		SELECT 1 FROM transaction_log_inputs tli
		JOIN transaction_logs tl ON tl.id = tli.log_id
		WHERE tli.txo_id = txos.txo_id AND tl.status = 'pending'
	) FROM txos WHERE 1 = 1`
	var args []any

	if f.AccountID != nil {
		query += ` AND received_account_id = ?`
		args = append(args, f.AccountID.Hex())
	}
	if f.SubaddressIndex != nil {
		query += ` AND subaddress_index = ?`
		args = append(args, *f.SubaddressIndex)
	}
	if f.MinReceivedBlock != nil {
		query += ` AND received_block_index >= ?`
		args = append(args, *f.MinReceivedBlock)
	}
	if f.MaxReceivedBlock != nil {
		query += ` AND received_block_index <= ?`
		args = append(args, *f.MaxReceivedBlock)
	}
	query += ` ORDER BY received_block_index ASC, txo_id ASC`

	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, IOError("txo", "list", err)
	}
	defer rows.Close()
	out, err := scanTxoRows(rows, true)
	if err != nil {
		return nil, err
	}
	if f.Status == nil {
		return out, nil
	}

	// Status is derived (Txo.Status()), not a stored column, so the status
	// dimension of this filter is applied post-query rather than pushed
	// into the WHERE clause.
	filtered := out[:0]
	for _, t := range out {
		if t.Status() == *f.Status {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

const txoColumns = `txo_id, public_key, target_key, value, token_id, encrypted_hint, output_blob,
		subaddress_index, key_image, received_block_index, spent_block_index,
		received_account_id, minted_account_id, shared_secret, memo, secreted, created_at`

func scanTxoRows(rows *sql.Rows, withPending bool) ([]Txo, error) {
	var out []Txo
	for rows.Next() {
		t, err := scanTxo(rows.Scan, withPending)
		if err != nil {
			return nil, IOError("txo", "scan", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTxo(scan func(dest ...any) error, withPending bool) (Txo, error) {
	var t Txo
	var txoIDHex, publicKeyHex, targetKeyHex, valueStr string
	var subIdx, receivedBlock, spentBlock sql.NullInt64
	var keyImageHex, sharedSecretHex, receivedAccountHex, mintedAccountHex sql.NullString
	var secreted int
	var createdAt int64
	var pending bool

	dests := []any{
		&txoIDHex, &publicKeyHex, &targetKeyHex, &valueStr, &t.TokenID, &t.EncryptedHint, &t.OutputBlob,
		&subIdx, &keyImageHex, &receivedBlock, &spentBlock,
		&receivedAccountHex, &mintedAccountHex, &sharedSecretHex, &t.Memo, &secreted, &createdAt,
	}
	if withPending {
		dests = append(dests, &pending)
	}
	if err := scan(dests...); err != nil {
		return Txo{}, err
	}

	txoID, err := ParseTxoID(txoIDHex)
	if err != nil {
		return Txo{}, err
	}
	t.TxoID = txoID

	publicKey, err := helpers.FixedHexToBytes(publicKeyHex, cryptoiface.KeySize)
	if err != nil {
		return Txo{}, err
	}
	copy(t.PublicKey[:], publicKey)

	targetKey, err := helpers.FixedHexToBytes(targetKeyHex, cryptoiface.KeySize)
	if err != nil {
		return Txo{}, err
	}
	copy(t.TargetKey[:], targetKey)

	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return Txo{}, fmt.Errorf("parse txo value: %w", err)
	}
	t.Value = value

	if subIdx.Valid {
		v := uint64(subIdx.Int64)
		t.SubaddressIndex = &v
	}
	if receivedBlock.Valid {
		v := uint64(receivedBlock.Int64)
		t.ReceivedBlockIndex = &v
	}
	if spentBlock.Valid {
		v := uint64(spentBlock.Int64)
		t.SpentBlockIndex = &v
	}
	if keyImageHex.Valid {
		b, err := helpers.FixedHexToBytes(keyImageHex.String, cryptoiface.KeySize)
		if err != nil {
			return Txo{}, err
		}
		var img cryptoiface.KeyImage
		copy(img[:], b)
		t.KeyImage = &img
	}
	if sharedSecretHex.Valid {
		b, err := helpers.FixedHexToBytes(sharedSecretHex.String, 32)
		if err != nil {
			return Txo{}, err
		}
		var s [32]byte
		copy(s[:], b)
		t.SharedSecret = &s
	}
	if receivedAccountHex.Valid {
		id, err := ParseAccountID(receivedAccountHex.String)
		if err != nil {
			return Txo{}, err
		}
		t.ReceivedAccountID = &id
	}
	if mintedAccountHex.Valid {
		id, err := ParseAccountID(mintedAccountHex.String)
		if err != nil {
			return Txo{}, err
		}
		t.MintedAccountID = &id
	}
	t.Secreted = secreted != 0
	t.CreatedAt = time.Unix(createdAt, 0).UTC()

	if withPending {
		t.pendingInputKnown = true
		t.pendingInput = pending
	}
	return t, nil
}
