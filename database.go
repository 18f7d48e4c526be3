package main

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
	CREATE TABLE IF NOT EXISTS saved_game (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		saved_at INTEGER NOT NULL,
		state TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_saved_game_saved_at ON saved_game(saved_at);
`

// openDB connects to dsn and makes sure the schema exists.
func openDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dsn, err)
	}
	if !strings.Contains(dsn, "mode=memory") && !strings.Contains(dsn, ":memory:") {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	logger.Infof("Database initialized successfully")
	return db, nil
}

// dumpDB renders every table for the database log.
func dumpDB(db *sqlx.DB, context string) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n========== DATABASE DUMP [%s] ==========\n", time.Now().Format("15:04:05.000"))
	fmt.Fprintf(&buf, "Context: %s\n\n", context)

	var tables []string
	if err := db.Select(&tables, "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name"); err != nil {
		fmt.Fprintf(&buf, "Error getting tables: %v\n", err)
		return buf.String()
	}

	for _, table := range tables {
		fmt.Fprintf(&buf, "--- Table: %s ---\n", table)

		rows, err := db.Queryx("SELECT * FROM " + table)
		if err != nil {
			fmt.Fprintf(&buf, "Error: %v\n\n", err)
			continue
		}

		rowCount := 0
		for rows.Next() {
			rowCount++
			values, err := rows.SliceScan()
			if err != nil {
				fmt.Fprintf(&buf, "Error scanning row: %v\n", err)
				continue
			}
			var cells []string
			for _, v := range values {
				switch val := v.(type) {
				case nil:
					cells = append(cells, "NULL")
				case []byte:
					cells = append(cells, truncate(string(val), 120))
				case string:
					cells = append(cells, truncate(val, 120))
				default:
					cells = append(cells, fmt.Sprintf("%v", val))
				}
			}
			fmt.Fprintf(&buf, "Row %d: %s\n", rowCount, strings.Join(cells, " | "))
		}
		rows.Close()

		if rowCount == 0 {
			buf.WriteString("(empty)\n")
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
