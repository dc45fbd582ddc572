package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"market-streamer/src/logger"
	"market-streamer/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	// Schema is named after the executable so several tools can share a database
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresDB{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) table(name string) string {
	return fmt.Sprintf(`"%s"."%s"`, d.Schema, name)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	statements := []struct{ name, query string }{
		{"bars", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				symbol TEXT NOT NULL,
				timeframe TEXT NOT NULL,
				timestamp BIGINT NOT NULL,
				open DOUBLE PRECISION,
				high DOUBLE PRECISION,
				low DOUBLE PRECISION,
				close DOUBLE PRECISION,
				volume DOUBLE PRECISION,
				PRIMARY KEY (symbol, timeframe, timestamp)
			);`, d.table("bars"))},
		{"quotes", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				symbol TEXT NOT NULL,
				captured_at BIGINT NOT NULL,
				bid_price DOUBLE PRECISION,
				bid_size DOUBLE PRECISION,
				bid_exchange TEXT,
				ask_price DOUBLE PRECISION,
				ask_size DOUBLE PRECISION,
				ask_exchange TEXT,
				spread DOUBLE PRECISION
			);`, d.table("quotes"))},
		{"quotes index", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_quotes_symbol_time ON %s (symbol, captured_at);`, d.table("quotes"))},
		{"symbols", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				symbol TEXT PRIMARY KEY,
				event_type TEXT,
				updated_at BIGINT
			);`, d.table("symbols"))},
	}

	for _, st := range statements {
		if _, err := d.DB.Exec(st.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", st.name, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveBars(bars []models.MBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`, d.table("bars"))
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(b.Symbol, b.Interval, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return err
		}
	}

	if err := registerSymbols(tx, fmt.Sprintf(postgresRegisterQuery, d.table("symbols")), symbolsOfBars(bars), "Candle"); err != nil {
		return err
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveQuotes(quotes []models.MQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, captured_at, bid_price, bid_size, bid_exchange, ask_price, ask_size, ask_exchange, spread)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.table("quotes"))
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, q := range quotes {
		_, err := stmt.Exec(q.Symbol, q.CapturedAt.UnixMilli(), q.BidPrice, q.BidSize, q.BidExchange, q.AskPrice, q.AskSize, q.AskExchange, q.Spread)
		if err != nil {
			return err
		}
	}

	if err := registerSymbols(tx, fmt.Sprintf(postgresRegisterQuery, d.table("symbols")), symbolsOfQuotes(quotes), "Quote"); err != nil {
		return err
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) LoadBars(symbol string, interval models.Timeframe, from, to time.Time) ([]models.MBar, error) {
	query := fmt.Sprintf(`
		SELECT symbol, timeframe, timestamp, open, high, low, close, volume
		FROM %s
		WHERE symbol = $1 AND timeframe = $2 AND timestamp BETWEEN $3 AND $4
		ORDER BY timestamp ASC
	`, d.table("bars"))

	rows, err := d.DB.Query(query, symbol, interval.String(), from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBars(rows)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) ListSymbols() ([]string, error) {
	rows, err := d.DB.Query(fmt.Sprintf(`SELECT symbol FROM %s ORDER BY symbol`, d.table("symbols")))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStrings(rows)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CleanupOldData() error {
	retentionDays := d.Config.Storage.RetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).UnixMilli()

	d.Logger.Info("Cleaning up data older than %d days (timestamp < %d)...", retentionDays, cutoff)

	if _, err := d.DB.Exec(fmt.Sprintf(`DELETE FROM %s WHERE timestamp < $1`, d.table("bars")), cutoff); err != nil {
		d.Logger.Error("Cleanup bars error: %v", err)
	}
	if _, err := d.DB.Exec(fmt.Sprintf(`DELETE FROM %s WHERE captured_at < $1`, d.table("quotes")), cutoff); err != nil {
		d.Logger.Error("Cleanup quotes error: %v", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
