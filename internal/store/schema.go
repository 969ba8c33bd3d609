package store

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	account_id              TEXT PRIMARY KEY,
	name                    TEXT NOT NULL DEFAULT '',
	derivation_version      INTEGER NOT NULL,
	view_private_key        TEXT NOT NULL,
	view_public_key         TEXT NOT NULL,
	spend_private_key       TEXT,
	spend_public_key        TEXT NOT NULL,
	first_block_index       INTEGER NOT NULL DEFAULT 0,
	next_block_index        INTEGER NOT NULL DEFAULT 0,
	main_subaddress_index   INTEGER NOT NULL DEFAULT 0,
	change_subaddress_index INTEGER NOT NULL DEFAULT 1,
	next_subaddress_index   INTEGER NOT NULL DEFAULT 2,
	require_spend_subaddress INTEGER NOT NULL DEFAULT 0,
	remote_signer_url       TEXT NOT NULL DEFAULT '',
	created_at              INTEGER NOT NULL,
	deleted_at              INTEGER
);

CREATE INDEX IF NOT EXISTS idx_accounts_deleted ON accounts(deleted_at);

CREATE TABLE IF NOT EXISTS subaddresses (
	account_id         TEXT NOT NULL,
	subaddress_index   INTEGER NOT NULL,
	public_address_b58 TEXT NOT NULL UNIQUE,
	public_spend_key   TEXT NOT NULL,
	public_view_key    TEXT NOT NULL,
	comment            TEXT NOT NULL DEFAULT '',
	created_at         INTEGER NOT NULL,
	PRIMARY KEY (account_id, subaddress_index),
	FOREIGN KEY (account_id) REFERENCES accounts(account_id)
);

CREATE INDEX IF NOT EXISTS idx_subaddresses_spend_key ON subaddresses(account_id, public_spend_key);

CREATE TABLE IF NOT EXISTS txos (
	txo_id                TEXT PRIMARY KEY,
	public_key            TEXT NOT NULL,
	target_key            TEXT NOT NULL,
	value                 TEXT NOT NULL,
	token_id              INTEGER NOT NULL,
	encrypted_hint        BLOB,
	output_blob           BLOB,
	subaddress_index      INTEGER,
	key_image             TEXT,
	received_block_index  INTEGER,
	spent_block_index     INTEGER,
	received_account_id   TEXT,
	minted_account_id     TEXT,
	shared_secret         TEXT,
	memo                  BLOB,
	secreted              INTEGER NOT NULL DEFAULT 0,
	created_at            INTEGER NOT NULL,
	FOREIGN KEY (received_account_id) REFERENCES accounts(account_id),
	FOREIGN KEY (minted_account_id) REFERENCES accounts(account_id)
);

CREATE INDEX IF NOT EXISTS idx_txos_received_account ON txos(received_account_id, subaddress_index, received_block_index);
CREATE INDEX IF NOT EXISTS idx_txos_key_image ON txos(key_image);
CREATE INDEX IF NOT EXISTS idx_txos_minted_account ON txos(minted_account_id);

CREATE TABLE IF NOT EXISTS transaction_logs (
	id                     TEXT PRIMARY KEY,
	account_id             TEXT NOT NULL,
	fee_value              TEXT NOT NULL,
	fee_token_id           INTEGER NOT NULL,
	value_per_token        TEXT NOT NULL,
	submitted_block_index  INTEGER,
	tombstone_block_index  INTEGER NOT NULL,
	finalized_block_index  INTEGER,
	status                 TEXT NOT NULL,
	comment                TEXT NOT NULL DEFAULT '',
	failure_code           TEXT,
	failure_message        TEXT,
	sent_at                INTEGER,
	created_at             INTEGER NOT NULL,
	updated_at             INTEGER NOT NULL,
	FOREIGN KEY (account_id) REFERENCES accounts(account_id)
);

CREATE INDEX IF NOT EXISTS idx_tx_logs_account_status ON transaction_logs(account_id, status);
CREATE INDEX IF NOT EXISTS idx_tx_logs_tombstone ON transaction_logs(status, tombstone_block_index);

CREATE TABLE IF NOT EXISTS transaction_log_inputs (
	id             TEXT PRIMARY KEY,
	log_id         TEXT NOT NULL,
	txo_id         TEXT NOT NULL,
	FOREIGN KEY (log_id) REFERENCES transaction_logs(id),
	FOREIGN KEY (txo_id) REFERENCES txos(txo_id),
	UNIQUE (log_id, txo_id)
);

CREATE INDEX IF NOT EXISTS idx_tx_log_inputs_log ON transaction_log_inputs(log_id);
CREATE INDEX IF NOT EXISTS idx_tx_log_inputs_txo ON transaction_log_inputs(txo_id);

CREATE TABLE IF NOT EXISTS transaction_log_outputs (
	id                  TEXT PRIMARY KEY,
	log_id              TEXT NOT NULL,
	txo_id              TEXT NOT NULL,
	kind                TEXT NOT NULL,
	recipient_address   TEXT NOT NULL DEFAULT '',
	confirmation_code   TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (log_id) REFERENCES transaction_logs(id),
	FOREIGN KEY (txo_id) REFERENCES txos(txo_id),
	UNIQUE (log_id, txo_id)
);

CREATE INDEX IF NOT EXISTS idx_tx_log_outputs_log ON transaction_log_outputs(log_id);
CREATE INDEX IF NOT EXISTS idx_tx_log_outputs_txo ON transaction_log_outputs(txo_id);
`
