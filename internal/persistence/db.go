// Package persistence provides SQLite-based marketplace state storage and
// compressed snapshot export. The catalog owns ware definitions; the
// database owns dynamic state (quantities, remainders, account balances)
// and the trade event log.
package persistence

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/danielvanorman/commandeconomy-sub003/internal/account"
	"github.com/danielvanorman/commandeconomy-sub003/internal/market"
	"github.com/danielvanorman/commandeconomy-sub003/internal/ware"
)

// DB wraps a SQLite connection for marketplace state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS wares (
		id TEXT PRIMARY KEY,
		quantity INTEGER NOT NULL,
		remainder INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		name TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		balance REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_events (
		id TEXT PRIMARY KEY,
		time TEXT NOT NULL,
		actor TEXT NOT NULL,
		ware_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		fee REAL NOT NULL,
		side TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS market_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trade_events_time ON trade_events(time);
	CREATE INDEX IF NOT EXISTS idx_trade_events_ware ON trade_events(ware_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveWares writes dynamic state for the given wares (upsert). Pass the
// registry's changed set for incremental saves or all wares for a full save.
func (db *DB) SaveWares(wares []*ware.Ware) error {
	if len(wares) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO wares
		(id, quantity, remainder) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, w := range wares {
		if _, err := stmt.Exec(w.ID, w.Quantity(), w.Remainder()); err != nil {
			return fmt.Errorf("insert ware %s: %w", w.ID, err)
		}
	}

	return tx.Commit()
}

// SaveAccounts writes all accounts to the database (full replace).
func (db *DB) SaveAccounts(accounts []account.Account) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM accounts"); err != nil {
		return err
	}

	for _, a := range accounts {
		_, err := tx.Exec(
			"INSERT INTO accounts (name, owner, balance) VALUES (?, ?, ?)",
			a.Name, a.Owner, a.Balance,
		)
		if err != nil {
			return fmt.Errorf("insert account %s: %w", a.Name, err)
		}
	}

	return tx.Commit()
}

// SaveTradeEvents appends trade events to the log.
func (db *DB) SaveTradeEvents(events []market.TradeEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO trade_events
			(id, time, actor, ware_id, quantity, price, fee, side)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID.String(), e.Time.Format(timeLayout), e.Actor,
			e.WareID, e.Quantity, e.Price, e.Fee, e.Side,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair in market metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO market_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM market_meta WHERE key = ?", key)
	return value, err
}

// SaveMarketState performs a full save of all marketplace state.
func (db *DB) SaveMarketState(reg *ware.Registry, ledger *account.Ledger) error {
	wares := reg.Wares()
	accounts := ledger.Accounts()
	slog.Info("saving market state", "wares", len(wares), "accounts", len(accounts))

	if err := db.SaveWares(wares); err != nil {
		return fmt.Errorf("save wares: %w", err)
	}
	if err := db.SaveAccounts(accounts); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	for _, w := range wares {
		w.ClearChanged()
	}
	ledger.ClearChanged()

	slog.Info("market state saved")
	return nil
}

// SaveChanged persists only wares whose quantity moved since the last save,
// plus the ledger when any balance changed.
func (db *DB) SaveChanged(reg *ware.Registry, ledger *account.Ledger) error {
	changed := reg.Changed()
	if err := db.SaveWares(changed); err != nil {
		return fmt.Errorf("save wares: %w", err)
	}
	for _, w := range changed {
		w.ClearChanged()
	}

	if ledger.Changed() {
		if err := db.SaveAccounts(ledger.Accounts()); err != nil {
			return fmt.Errorf("save accounts: %w", err)
		}
		ledger.ClearChanged()
	}
	return nil
}

// RestoreMarketState overlays persisted quantities and remainders onto a
// freshly loaded registry and restores all accounts. Wares present in the
// database but absent from the catalog are skipped with a warning.
func (db *DB) RestoreMarketState(reg *ware.Registry, ledger *account.Ledger) error {
	rows, err := db.conn.Queryx("SELECT id, quantity, remainder FROM wares")
	if err != nil {
		return fmt.Errorf("load wares: %w", err)
	}
	defer rows.Close()

	restored := 0
	for rows.Next() {
		var id string
		var quantity, remainder int
		if err := rows.Scan(&id, &quantity, &remainder); err != nil {
			return fmt.Errorf("scan ware: %w", err)
		}
		w, ok := reg.Resolve(id)
		if !ok {
			slog.Warn("persisted ware missing from catalog", "id", id)
			continue
		}
		if w.Kind == ware.Linked {
			w.SetRemainder(remainder)
		} else {
			w.SetQuantity(quantity)
		}
		w.ClearChanged()
		restored++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var accounts []account.Account
	if err := db.conn.Select(&accounts, "SELECT name, owner, balance FROM accounts"); err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	for _, a := range accounts {
		ledger.Restore(a)
	}
	ledger.ClearChanged()

	slog.Info("market state restored", "wares", restored, "accounts", len(accounts))
	return nil
}

// RecentTradeEvents returns the most recent N trade events, newest first.
func (db *DB) RecentTradeEvents(limit int) ([]TradeRow, error) {
	var events []TradeRow
	err := db.conn.Select(&events,
		`SELECT id, time, actor, ware_id, quantity, price, fee, side
		FROM trade_events ORDER BY time DESC LIMIT ?`,
		limit,
	)
	return events, err
}

// TradeRow is one persisted trade event.
type TradeRow struct {
	ID       string  `db:"id" json:"id"`
	Time     string  `db:"time" json:"time"`
	Actor    string  `db:"actor" json:"actor"`
	WareID   string  `db:"ware_id" json:"ware_id"`
	Quantity int     `db:"quantity" json:"quantity"`
	Price    float64 `db:"price" json:"price"`
	Fee      float64 `db:"fee" json:"fee"`
	Side     string  `db:"side" json:"side"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
