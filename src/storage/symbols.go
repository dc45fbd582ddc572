package storage

import (
	"database/sql"
	"sort"
	"time"

	"market-streamer/src/models"
)

// Symbol registry shared by both backends: every symbol that ever produced a stored
// bar or quote is listed with the event type it was last seen with.

const (
	sqliteRegisterQuery = `
		INSERT INTO symbols (symbol, event_type, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			event_type = excluded.event_type,
			updated_at = excluded.updated_at`

	postgresRegisterQuery = `
		INSERT INTO %s (symbol, event_type, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET
			event_type = EXCLUDED.event_type,
			updated_at = EXCLUDED.updated_at`
)

// -----------------------------------------------------------------------------

func registerSymbols(tx *sql.Tx, query string, symbols []string, eventType string) error {
	if len(symbols) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixMilli()
	for _, s := range symbols {
		if _, err := stmt.Exec(s, eventType, now); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func symbolsOfBars(bars []models.MBar) []string {
	seen := make(map[string]struct{})
	for _, b := range bars {
		seen[b.Symbol] = struct{}{}
	}
	return sortedKeys(seen)
}

func symbolsOfQuotes(quotes []models.MQuote) []string {
	seen := make(map[string]struct{})
	for _, q := range quotes {
		seen[q.Symbol] = struct{}{}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------

func scanBars(rows *sql.Rows) ([]models.MBar, error) {
	bars := []models.MBar{}
	for rows.Next() {
		var b models.MBar
		if err := rows.Scan(&b.Symbol, &b.Interval, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
