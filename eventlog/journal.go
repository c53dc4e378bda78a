// Package eventlog persists applied ledger events to SQLite. The journal is
// an observer: the token runs fine without it, and nothing reads it back for
// authorization decisions.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sekadau-online/The-Cloud-Rain-Protocol/token"
)

// Journal is an append-only record of token events backed by a SQLite file.
type Journal struct {
	db *sql.DB
}

// Record is one journaled event. Amount holds the decimal base-unit value
// and is empty for kinds that move no value.
type Record struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// Open opens or creates the journal database at path. Use ":memory:" for an
// ephemeral journal.
func Open(path string) (*Journal, error) {
	db, openErr := sql.Open("sqlite", path)
	if openErr != nil {
		return nil, fmt.Errorf("opening journal database: %w", openErr)
	}

	journal := &Journal{db: db}
	if migrateErr := journal.migrate(); migrateErr != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal schema: %w", migrateErr)
	}
	return journal, nil
}

func (journal *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS events_kind ON events(kind);
	`
	_, err := journal.db.Exec(schema)
	return err
}

func (journal *Journal) Close() error {
	return journal.db.Close()
}

// Append journals one applied event.
func (journal *Journal) Append(ctx context.Context, event token.Event) error {
	amount := ""
	if event.Amount != nil {
		amount = event.Amount.ToBig().String()
	}
	createdAt := event.Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `INSERT INTO events (id, kind, sender, recipient, amount, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, execErr := journal.db.ExecContext(ctx, query,
		uuid.NewString(), string(event.Kind), event.From.Hex(), event.To.Hex(), amount, createdAt.Unix())
	if execErr != nil {
		return fmt.Errorf("appending event: %w", execErr)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (journal *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT id, kind, sender, recipient, amount, created_at FROM events ORDER BY rowid DESC LIMIT ?`
	rows, queryErr := journal.db.QueryContext(ctx, query, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("selecting events: %w", queryErr)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		if scanErr := rows.Scan(&record.ID, &record.Kind, &record.Sender, &record.Recipient, &record.Amount, &record.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return records, nil
}

// MintedBurnedTotals sums the journaled mint and burn amounts. Against a
// journal that has observed every event since genesis, minted minus burned
// equals the live total supply.
func (journal *Journal) MintedBurnedTotals(ctx context.Context) (minted, burned *big.Int, err error) {
	query := `SELECT kind, amount FROM events WHERE kind IN (?, ?)`
	rows, queryErr := journal.db.QueryContext(ctx, query, string(token.EventMint), string(token.EventBurn))
	if queryErr != nil {
		return nil, nil, fmt.Errorf("selecting supply events: %w", queryErr)
	}
	defer rows.Close()

	minted = new(big.Int)
	burned = new(big.Int)
	for rows.Next() {
		var kind, amount string
		if scanErr := rows.Scan(&kind, &amount); scanErr != nil {
			return nil, nil, scanErr
		}
		value, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, nil, fmt.Errorf("journal holds a malformed amount %q", amount)
		}
		if kind == string(token.EventMint) {
			minted.Add(minted, value)
		} else {
			burned.Add(burned, value)
		}
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, nil, rowsErr
	}
	return minted, burned, nil
}
