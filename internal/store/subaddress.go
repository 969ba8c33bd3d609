package store

import (
	"database/sql"
	"time"

	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/pkg/helpers"
)

// Subaddress is the Store's row shape for one materialized subaddress
// (spec.md §3).
type Subaddress struct {
	AccountID        AccountID
	SubaddressIndex  uint64
	PublicAddressB58 string
	PublicSpendKey   cryptoiface.PublicKey
	PublicViewKey    cryptoiface.PublicKey
	Comment          string
	CreatedAt        time.Time
}

// AssignSubaddress materializes a new subaddress for an account. Callers
// first reserve the index via Store.AllocateSubaddressIndex and derive the
// keys via internal/keys before calling this.
func (s *Store) AssignSubaddress(sub Subaddress) error {
	return s.withTx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM accounts WHERE account_id = ? AND deleted_at IS NULL`, sub.AccountID.Hex()).Scan(&exists); err != nil {
			return IOError("subaddress", "check account existence", err)
		}
		if exists == 0 {
			return NotFound("account", sub.AccountID.Hex())
		}
		return insertSubaddress(tx, sub, time.Now())
	})
}

func insertSubaddress(tx *sql.Tx, sub Subaddress, now time.Time) error {
	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM subaddresses WHERE account_id = ? AND subaddress_index = ?`,
		sub.AccountID.Hex(), sub.SubaddressIndex).Scan(&exists); err != nil {
		return IOError("subaddress", "check existence", err)
	}
	if exists > 0 {
		return AlreadyExists("subaddress", sub.PublicAddressB58)
	}

	_, err := tx.Exec(`
		INSERT INTO subaddresses (account_id, subaddress_index, public_address_b58, public_spend_key, public_view_key, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.AccountID.Hex(), sub.SubaddressIndex, sub.PublicAddressB58,
		helpers.BytesToHex(sub.PublicSpendKey[:]), helpers.BytesToHex(sub.PublicViewKey[:]), sub.Comment, now.Unix(),
	)
	if err != nil {
		return AlreadyExists("subaddress", sub.PublicAddressB58)
	}
	return nil
}

// GetSubaddressesForAccount lists every materialized subaddress of an
// account, ordered by index.
func (s *Store) GetSubaddressesForAccount(id AccountID) ([]Subaddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT account_id, subaddress_index, public_address_b58, public_spend_key, public_view_key, comment, created_at
		FROM subaddresses WHERE account_id = ? ORDER BY subaddress_index ASC`, id.Hex())
	if err != nil {
		return nil, IOError("subaddress", "list", err)
	}
	defer rows.Close()

	var out []Subaddress
	for rows.Next() {
		sub, err := scanSubaddress(rows.Scan)
		if err != nil {
			return nil, IOError("subaddress", "scan", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// GetSubaddressByPublicAddress looks up the subaddress owning a printable
// address, used by verify_address/get_address_status.
func (s *Store) GetSubaddressByPublicAddress(addr string) (Subaddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT account_id, subaddress_index, public_address_b58, public_spend_key, public_view_key, comment, created_at
		FROM subaddresses WHERE public_address_b58 = ?`, addr)

	sub, err := scanSubaddress(row.Scan)
	if err == sql.ErrNoRows {
		return Subaddress{}, NotFound("subaddress", addr)
	}
	if err != nil {
		return Subaddress{}, IOError("subaddress", "read", err)
	}
	return sub, nil
}

// FindSubaddressBySpendKey looks up a materialized subaddress of account
// by its recovered spend public key, used by the Account Scanner to decide
// whether a view-key-matched output belongs to a known subaddress or is
// orphaned (spec.md §4.3 step 2b).
func (s *Store) FindSubaddressBySpendKey(id AccountID, spendKey cryptoiface.PublicKey) (Subaddress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT account_id, subaddress_index, public_address_b58, public_spend_key, public_view_key, comment, created_at
		FROM subaddresses WHERE account_id = ? AND public_spend_key = ?`, id.Hex(), helpers.BytesToHex(spendKey[:]))

	sub, err := scanSubaddress(row.Scan)
	if err == sql.ErrNoRows {
		return Subaddress{}, false, nil
	}
	if err != nil {
		return Subaddress{}, false, IOError("subaddress", "read", err)
	}
	return sub, true, nil
}

func scanSubaddress(scan func(dest ...any) error) (Subaddress, error) {
	var sub Subaddress
	var accountIDHex, spendKeyHex, viewKeyHex string
	var createdAt int64

	err := scan(&accountIDHex, &sub.SubaddressIndex, &sub.PublicAddressB58, &spendKeyHex, &viewKeyHex, &sub.Comment, &createdAt)
	if err != nil {
		return Subaddress{}, err
	}

	accountID, err := ParseAccountID(accountIDHex)
	if err != nil {
		return Subaddress{}, err
	}
	sub.AccountID = accountID

	spendKey, err := helpers.FixedHexToBytes(spendKeyHex, cryptoiface.KeySize)
	if err != nil {
		return Subaddress{}, err
	}
	copy(sub.PublicSpendKey[:], spendKey)

	viewKey, err := helpers.FixedHexToBytes(viewKeyHex, cryptoiface.KeySize)
	if err != nil {
		return Subaddress{}, err
	}
	copy(sub.PublicViewKey[:], viewKey)

	sub.CreatedAt = time.Unix(createdAt, 0).UTC()
	return sub, nil
}
