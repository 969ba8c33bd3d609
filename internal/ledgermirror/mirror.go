// Package ledgermirror implements the wallet's local, append-only replica
// of the ledger the Account Scanner, Transaction Builder, and internal/ring
// read against (spec.md §4.2). It stores one row per block and one row per
// output in its own SQLite database, separate from internal/store's
// relational wallet state, and exposes a background worker that keeps the
// replica caught up with a set of internal/peer.Peer endpoints.
package ledgermirror

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/internal/ring"
	"github.com/ledgervault/walletd/pkg/helpers"
)

// ErrDiscontinuous is returned by Append when the block's index does not
// immediately follow the local tip.
var ErrDiscontinuous = fmt.Errorf("ledgermirror: discontinuous block")

// ErrHashMismatch is returned by Append when the block's ParentID does not
// match the locally stored tip's ID.
var ErrHashMismatch = fmt.Errorf("ledgermirror: parent hash mismatch")

// ErrNotFound is returned when a requested block index has not been
// mirrored locally.
var ErrNotFound = fmt.Errorf("ledgermirror: block not found")

// Mirror is the local append-only ledger replica.
type Mirror struct {
	db *sql.DB
	mu sync.RWMutex
}

// Config configures where the Mirror persists its database file.
type Config struct {
	Path string
}

// New opens (creating if necessary) the Mirror database at cfg.Path.
func New(cfg Config) (*Mirror, error) {
	path := expandPath(cfg.Path)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("ledgermirror: create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledgermirror: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledgermirror: ping database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledgermirror: initialize schema: %w", err)
	}

	return &Mirror{db: db}, nil
}

// Close closes the underlying database connection.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// Tip returns the highest locally mirrored block index and whether the
// Mirror has mirrored any blocks at all.
func (m *Mirror) Tip() (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var idx sql.NullInt64
	err := m.db.QueryRow(`SELECT MAX(block_index) FROM blocks`).Scan(&idx)
	if err != nil {
		return 0, false, fmt.Errorf("ledgermirror: tip: %w", err)
	}
	if !idx.Valid {
		return 0, false, nil
	}
	return uint64(idx.Int64), true, nil
}

// Append validates and persists the next block. It enforces contiguity
// (b.Index must be exactly tip+1, or 0 if the Mirror is empty) and parent
// hash continuity (b.ParentID must equal the tip block's ID), per spec.md
// §4.2.
func (m *Mirror) Append(b peer.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("ledgermirror: begin: %w", err)
	}
	defer tx.Rollback()

	var tipIndex sql.NullInt64
	var tipID sql.NullString
	err = tx.QueryRow(`SELECT block_index, block_id FROM blocks ORDER BY block_index DESC LIMIT 1`).Scan(&tipIndex, &tipID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("ledgermirror: read tip: %w", err)
	}

	if !tipIndex.Valid {
		if b.Index != 0 {
			return ErrDiscontinuous
		}
	} else {
		if b.Index != uint64(tipIndex.Int64)+1 {
			return ErrDiscontinuous
		}
		if helpers.BytesToHex(b.ParentID[:]) != tipID.String {
			return ErrHashMismatch
		}
	}

	keyImages := make([]string, len(b.KeyImagesSpent))
	for i, ki := range b.KeyImagesSpent {
		keyImages[i] = helpers.BytesToHex(ki[:])
	}
	kiJSON, err := json.Marshal(keyImages)
	if err != nil {
		return fmt.Errorf("ledgermirror: marshal key images: %w", err)
	}

	now := time.Now().Unix()
	_, err = tx.Exec(
		`INSERT INTO blocks (block_index, block_id, parent_id, contents_hash, key_images_spent, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.Index, helpers.BytesToHex(b.ID[:]), helpers.BytesToHex(b.ParentID[:]), helpers.BytesToHex(b.ContentsHash[:]), string(kiJSON), now,
	)
	if err != nil {
		return fmt.Errorf("ledgermirror: insert block: %w", err)
	}

	for _, o := range b.Outputs {
		var maskedValue, maskedTokenID [8]byte
		binary.BigEndian.PutUint64(maskedValue[:], o.MaskedValue)
		binary.BigEndian.PutUint64(maskedTokenID[:], o.MaskedTokenID)

		_, err = tx.Exec(
			`INSERT INTO outputs (global_index, block_index, public_key, target_key, commitment, masked_value, masked_token_id, encrypted_hint, output_index)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.GlobalIndex, b.Index, helpers.BytesToHex(o.PublicKey[:]), helpers.BytesToHex(o.TargetKey[:]),
			helpers.BytesToHex(o.Commitment[:]), helpers.BytesToHex(maskedValue[:]), helpers.BytesToHex(maskedTokenID[:]),
			o.EncryptedHint, o.OutputIndex,
		)
		if err != nil {
			return fmt.Errorf("ledgermirror: insert output %d: %w", o.GlobalIndex, err)
		}
	}

	return tx.Commit()
}

// BlockAt returns the mirrored block at index.
func (m *Mirror) BlockAt(index uint64) (peer.Block, error) {
	blocks, err := m.BlockRange(index, index)
	if err != nil {
		return peer.Block{}, err
	}
	if len(blocks) == 0 {
		return peer.Block{}, ErrNotFound
	}
	return blocks[0], nil
}

// BlockRange returns mirrored blocks [from, to] inclusive, in order.
func (m *Mirror) BlockRange(from, to uint64) ([]peer.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if from > to {
		return nil, fmt.Errorf("ledgermirror: invalid range [%d, %d]", from, to)
	}

	rows, err := m.db.Query(
		`SELECT block_index, block_id, parent_id, contents_hash, key_images_spent FROM blocks
		 WHERE block_index BETWEEN ? AND ? ORDER BY block_index ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("ledgermirror: query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []peer.Block
	for rows.Next() {
		var index uint64
		var idHex, parentHex, contentsHex, kiJSON string
		if err := rows.Scan(&index, &idHex, &parentHex, &contentsHex, &kiJSON); err != nil {
			return nil, fmt.Errorf("ledgermirror: scan block: %w", err)
		}

		b := peer.Block{Index: index}
		if err := decodeFixed(idHex, b.ID[:]); err != nil {
			return nil, err
		}
		if err := decodeFixed(parentHex, b.ParentID[:]); err != nil {
			return nil, err
		}
		if err := decodeFixed(contentsHex, b.ContentsHash[:]); err != nil {
			return nil, err
		}

		var kiHex []string
		if err := json.Unmarshal([]byte(kiJSON), &kiHex); err != nil {
			return nil, fmt.Errorf("ledgermirror: unmarshal key images: %w", err)
		}
		b.KeyImagesSpent = make([]cryptoiface.KeyImage, len(kiHex))
		for i, h := range kiHex {
			if err := decodeFixed(h, b.KeyImagesSpent[i][:]); err != nil {
				return nil, err
			}
		}

		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledgermirror: iterate blocks: %w", err)
	}

	outRows, err := m.db.Query(
		`SELECT block_index, global_index, public_key, target_key, commitment, masked_value, masked_token_id, encrypted_hint, output_index
		 FROM outputs WHERE block_index BETWEEN ? AND ? ORDER BY global_index ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("ledgermirror: query outputs: %w", err)
	}
	defer outRows.Close()

	byIndex := make(map[uint64]*peer.Block, len(blocks))
	for i := range blocks {
		byIndex[blocks[i].Index] = &blocks[i]
	}
	for outRows.Next() {
		var blockIndex, globalIndex, outputIndex uint64
		var pubHex, targetHex, commitHex, maskedValueHex, maskedTokenIDHex string
		var hint []byte
		if err := outRows.Scan(&blockIndex, &globalIndex, &pubHex, &targetHex, &commitHex, &maskedValueHex, &maskedTokenIDHex, &hint, &outputIndex); err != nil {
			return nil, fmt.Errorf("ledgermirror: scan output: %w", err)
		}
		o := peer.Output{GlobalIndex: globalIndex, EncryptedHint: hint, OutputIndex: outputIndex}
		if err := decodeFixed(pubHex, o.PublicKey[:]); err != nil {
			return nil, err
		}
		if err := decodeFixed(targetHex, o.TargetKey[:]); err != nil {
			return nil, err
		}
		if err := decodeFixed(commitHex, o.Commitment[:]); err != nil {
			return nil, err
		}
		var maskedValue, maskedTokenID [8]byte
		if err := decodeFixed(maskedValueHex, maskedValue[:]); err != nil {
			return nil, err
		}
		if err := decodeFixed(maskedTokenIDHex, maskedTokenID[:]); err != nil {
			return nil, err
		}
		o.MaskedValue = binary.BigEndian.Uint64(maskedValue[:])
		o.MaskedTokenID = binary.BigEndian.Uint64(maskedTokenID[:])
		if blk, ok := byIndex[blockIndex]; ok {
			blk.Outputs = append(blk.Outputs, o)
		}
	}
	if err := outRows.Err(); err != nil {
		return nil, fmt.Errorf("ledgermirror: iterate outputs: %w", err)
	}

	return blocks, nil
}

// OutputCount implements ring.GlobalOutputSource.
func (m *Mirror) OutputCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count uint64
	if err := m.db.QueryRow(`SELECT COUNT(*) FROM outputs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ledgermirror: output count: %w", err)
	}
	return count, nil
}

// OutputAt implements ring.GlobalOutputSource.
func (m *Mirror) OutputAt(globalIndex uint64) (ring.GlobalOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pubHex, commitHex string
	err := m.db.QueryRow(`SELECT public_key, commitment FROM outputs WHERE global_index = ?`, globalIndex).Scan(&pubHex, &commitHex)
	if err == sql.ErrNoRows {
		return ring.GlobalOutput{}, ErrNotFound
	}
	if err != nil {
		return ring.GlobalOutput{}, fmt.Errorf("ledgermirror: output at %d: %w", globalIndex, err)
	}

	out := ring.GlobalOutput{GlobalIndex: globalIndex}
	if err := decodeFixed(pubHex, out.PublicKey[:]); err != nil {
		return ring.GlobalOutput{}, err
	}
	if err := decodeFixed(commitHex, out.Commitment[:]); err != nil {
		return ring.GlobalOutput{}, err
	}
	return out, nil
}

func decodeFixed(s string, out []byte) error {
	b, err := helpers.FixedHexToBytes(s, len(out))
	if err != nil {
		return fmt.Errorf("ledgermirror: %w", err)
	}
	copy(out, b)
	return nil
}

func expandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

var _ ring.GlobalOutputSource = (*Mirror)(nil)
