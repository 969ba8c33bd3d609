package store

import (
	"database/sql"
	"time"

	"github.com/ledgervault/walletd/internal/config"
	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/pkg/helpers"
)

// Account is the Store's row shape for one wallet account (spec.md §3).
type Account struct {
	AccountID              AccountID
	Name                   string
	DerivationVersion      config.KeyDerivationVersion
	ViewPrivateKey         cryptoiface.PrivateKey
	ViewPublicKey          cryptoiface.PublicKey
	SpendPrivateKey        *cryptoiface.PrivateKey // nil for view-only accounts
	SpendPublicKey         cryptoiface.PublicKey
	FirstBlockIndex        uint64
	NextBlockIndex         uint64
	MainSubaddressIndex    uint64
	ChangeSubaddressIndex  uint64
	NextSubaddressIndex    uint64
	RequireSpendSubaddress bool
	RemoteSignerURL        string
	CreatedAt              time.Time
}

// CreateAccount inserts a new account together with its main and change
// subaddresses in one transaction. The caller derives mainSub/changeSub via
// internal/keys before calling — the Store doesn't do key derivation.
func (s *Store) CreateAccount(a Account, mainSub, changeSub Subaddress) error {
	if a.NextBlockIndex < a.FirstBlockIndex {
		return InvariantViolation("account", "next_block_index must be >= first_block_index")
	}
	maxReserved := a.MainSubaddressIndex
	if a.ChangeSubaddressIndex > maxReserved {
		maxReserved = a.ChangeSubaddressIndex
	}
	if a.NextSubaddressIndex < maxReserved+1 {
		return InvariantViolation("account", "next_subaddress_index must be > max(main, change)")
	}

	now := time.Now()
	a.CreatedAt = now

	return s.withTx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM accounts WHERE account_id = ?`, a.AccountID.Hex()).Scan(&exists); err != nil {
			return IOError("account", "check existence", err)
		}
		if exists > 0 {
			return AlreadyExists("account", a.AccountID.Hex())
		}

		var spendPriv, spendPub any
		if a.SpendPrivateKey != nil {
			spendPriv = helpers.BytesToHex(a.SpendPrivateKey[:])
		}
		spendPub = helpers.BytesToHex(a.SpendPublicKey[:])

		_, err := tx.Exec(`
			INSERT INTO accounts (
				account_id, name, derivation_version,
				view_private_key, view_public_key, spend_private_key, spend_public_key,
				first_block_index, next_block_index,
				main_subaddress_index, change_subaddress_index, next_subaddress_index,
				require_spend_subaddress, remote_signer_url, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.AccountID.Hex(), a.Name, a.DerivationVersion,
			helpers.BytesToHex(a.ViewPrivateKey[:]), helpers.BytesToHex(a.ViewPublicKey[:]), spendPriv, spendPub,
			a.FirstBlockIndex, a.NextBlockIndex,
			a.MainSubaddressIndex, a.ChangeSubaddressIndex, a.NextSubaddressIndex,
			boolToInt(a.RequireSpendSubaddress), a.RemoteSignerURL, now.Unix(),
		)
		if err != nil {
			return IOError("account", "insert", err)
		}

		for _, sub := range []Subaddress{mainSub, changeSub} {
			sub.AccountID = a.AccountID
			if err := insertSubaddress(tx, sub, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAccount reads an account by id. Soft-deleted accounts are not
// returned.
func (s *Store) GetAccount(id AccountID) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT account_id, name, derivation_version,
		       view_private_key, view_public_key, spend_private_key, spend_public_key,
		       first_block_index, next_block_index,
		       main_subaddress_index, change_subaddress_index, next_subaddress_index,
		       require_spend_subaddress, remote_signer_url, created_at
		FROM accounts WHERE account_id = ? AND deleted_at IS NULL`, id.Hex())

	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return Account{}, NotFound("account", id.Hex())
	}
	if err != nil {
		return Account{}, IOError("account", "read", err)
	}
	return a, nil
}

// ListAccounts returns every non-deleted account, ordered by creation time.
func (s *Store) ListAccounts() ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT account_id, name, derivation_version,
		       view_private_key, view_public_key, spend_private_key, spend_public_key,
		       first_block_index, next_block_index,
		       main_subaddress_index, change_subaddress_index, next_subaddress_index,
		       require_spend_subaddress, remote_signer_url, created_at
		FROM accounts WHERE deleted_at IS NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, IOError("account", "list", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccountRows(rows)
		if err != nil {
			return nil, IOError("account", "scan", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RenameAccount updates an account's display name.
func (s *Store) RenameAccount(id AccountID, name string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE accounts SET name = ? WHERE account_id = ? AND deleted_at IS NULL`, name, id.Hex())
		if err != nil {
			return IOError("account", "rename", err)
		}
		return requireRowsAffected(res, "account", id.Hex())
	})
}

// SetRequireSpendSubaddress updates an account's spend-subaddress policy.
func (s *Store) SetRequireSpendSubaddress(id AccountID, require bool) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE accounts SET require_spend_subaddress = ? WHERE account_id = ? AND deleted_at IS NULL`, boolToInt(require), id.Hex())
		if err != nil {
			return IOError("account", "set_require_spend_subaddress", err)
		}
		return requireRowsAffected(res, "account", id.Hex())
	})
}

// AdvanceNextBlockIndex moves an account's scan cursor forward. It is a
// no-op (not an error) if to <= the current cursor, since cursors must be
// monotonically non-decreasing (spec.md §4.1).
func (s *Store) AdvanceNextBlockIndex(tx *sql.Tx, id AccountID, to uint64) error {
	_, err := tx.Exec(`UPDATE accounts SET next_block_index = ? WHERE account_id = ? AND deleted_at IS NULL AND next_block_index < ?`,
		to, id.Hex(), to)
	if err != nil {
		return IOError("account", "advance cursor", err)
	}
	return nil
}

// AllocateSubaddressIndex reserves and returns the next subaddress index for
// an account, advancing next_subaddress_index monotonically.
func (s *Store) AllocateSubaddressIndex(id AccountID) (uint64, error) {
	var next uint64
	err := s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT next_subaddress_index FROM accounts WHERE account_id = ? AND deleted_at IS NULL`, id.Hex())
		if err := row.Scan(&next); err != nil {
			if err == sql.ErrNoRows {
				return NotFound("account", id.Hex())
			}
			return IOError("account", "read next_subaddress_index", err)
		}
		if _, err := tx.Exec(`UPDATE accounts SET next_subaddress_index = next_subaddress_index + 1 WHERE account_id = ?`, id.Hex()); err != nil {
			return IOError("account", "advance next_subaddress_index", err)
		}
		return nil
	})
	return next, err
}

// DeleteAccount atomically removes an account and every Subaddress and
// TransactionLog it owns. TXOs referenced only by this account are
// soft-deleted (received_account_id cleared) rather than removed, so that
// content-addressed txo_id uniqueness is preserved if the same output is
// re-observed (spec.md §4.1 "soft-deletes TXOs referenced only by this
// account").
func (s *Store) DeleteAccount(id AccountID) error {
	return s.withTx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM accounts WHERE account_id = ? AND deleted_at IS NULL`, id.Hex()).Scan(&exists); err != nil {
			return IOError("account", "check existence", err)
		}
		if exists == 0 {
			return NotFound("account", id.Hex())
		}

		logRows, err := tx.Query(`SELECT id FROM transaction_logs WHERE account_id = ?`, id.Hex())
		if err != nil {
			return IOError("account", "list logs for delete", err)
		}
		var logIDs []string
		for logRows.Next() {
			var logID string
			if err := logRows.Scan(&logID); err != nil {
				logRows.Close()
				return IOError("account", "scan log id", err)
			}
			logIDs = append(logIDs, logID)
		}
		logRows.Close()

		for _, logID := range logIDs {
			if _, err := tx.Exec(`DELETE FROM transaction_log_inputs WHERE log_id = ?`, logID); err != nil {
				return IOError("account", "delete log inputs", err)
			}
			if _, err := tx.Exec(`DELETE FROM transaction_log_outputs WHERE log_id = ?`, logID); err != nil {
				return IOError("account", "delete log outputs", err)
			}
		}
		if _, err := tx.Exec(`DELETE FROM transaction_logs WHERE account_id = ?`, id.Hex()); err != nil {
			return IOError("account", "delete logs", err)
		}
		if _, err := tx.Exec(`DELETE FROM subaddresses WHERE account_id = ?`, id.Hex()); err != nil {
			return IOError("account", "delete subaddresses", err)
		}
		if _, err := tx.Exec(`UPDATE txos SET received_account_id = NULL, subaddress_index = NULL WHERE received_account_id = ?`, id.Hex()); err != nil {
			return IOError("account", "soft-delete received txos", err)
		}
		if _, err := tx.Exec(`UPDATE txos SET minted_account_id = NULL WHERE minted_account_id = ?`, id.Hex()); err != nil {
			return IOError("account", "soft-delete minted txos", err)
		}
		now := time.Now().Unix()
		if _, err := tx.Exec(`UPDATE accounts SET deleted_at = ? WHERE account_id = ?`, now, id.Hex()); err != nil {
			return IOError("account", "soft-delete account", err)
		}
		return nil
	})
}

func scanAccount(row *sql.Row) (Account, error) {
	return scanAccountInto(row.Scan)
}

func scanAccountRows(rows *sql.Rows) (Account, error) {
	return scanAccountInto(rows.Scan)
}

func scanAccountInto(scan func(dest ...any) error) (Account, error) {
	var a Account
	var accountIDHex, viewPrivHex, viewPubHex, spendPubHex, remoteSignerURL string
	var spendPrivHex sql.NullString
	var requireSpendSub int
	var derivationVersion uint32
	var createdAt int64

	err := scan(
		&accountIDHex, &a.Name, &derivationVersion,
		&viewPrivHex, &viewPubHex, &spendPrivHex, &spendPubHex,
		&a.FirstBlockIndex, &a.NextBlockIndex,
		&a.MainSubaddressIndex, &a.ChangeSubaddressIndex, &a.NextSubaddressIndex,
		&requireSpendSub, &remoteSignerURL, &createdAt,
	)
	if err != nil {
		return Account{}, err
	}

	accountID, err := ParseAccountID(accountIDHex)
	if err != nil {
		return Account{}, err
	}
	a.AccountID = accountID
	a.DerivationVersion = config.KeyDerivationVersion(derivationVersion)

	viewPriv, err := helpers.FixedHexToBytes(viewPrivHex, cryptoiface.KeySize)
	if err != nil {
		return Account{}, err
	}
	copy(a.ViewPrivateKey[:], viewPriv)

	viewPub, err := helpers.FixedHexToBytes(viewPubHex, cryptoiface.KeySize)
	if err != nil {
		return Account{}, err
	}
	copy(a.ViewPublicKey[:], viewPub)

	spendPub, err := helpers.FixedHexToBytes(spendPubHex, cryptoiface.KeySize)
	if err != nil {
		return Account{}, err
	}
	copy(a.SpendPublicKey[:], spendPub)

	if spendPrivHex.Valid {
		spendPriv, err := helpers.FixedHexToBytes(spendPrivHex.String, cryptoiface.KeySize)
		if err != nil {
			return Account{}, err
		}
		var k cryptoiface.PrivateKey
		copy(k[:], spendPriv)
		a.SpendPrivateKey = &k
	}

	a.RequireSpendSubaddress = requireSpendSub != 0
	a.RemoteSignerURL = remoteSignerURL
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return a, nil
}

func requireRowsAffected(res sql.Result, entity, detail string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return IOError(entity, "rows affected", err)
	}
	if n == 0 {
		return NotFound(entity, detail)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
