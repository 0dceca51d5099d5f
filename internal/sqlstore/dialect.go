package sqlstore

import (
	"database/sql"
	"fmt"
	"slices"
	"strings"
)

// Dialect captures the statement differences between the supported databases.
type Dialect struct {
	Name string

	// numbered databases use $1, $2, ... instead of ? placeholders
	numbered bool

	insertIgnore string
	onConflict   string

	upsert func(table string, keys, cols []string) string

	// Isolation is the level used for read-modify-write transactions.
	Isolation sql.IsolationLevel
}

var SQLite = Dialect{
	Name:         "sqlite",
	insertIgnore: "INSERT OR IGNORE INTO",
	upsert:       upsertExcluded,
	Isolation:    sql.LevelDefault,
}

var MySQL = Dialect{
	Name:         "mysql",
	insertIgnore: "INSERT IGNORE INTO",
	upsert: func(table string, keys, cols []string) string {
		sets := make([]string, 0, len(cols))
		for _, c := range cols {
			if !slices.Contains(keys, c) {
				sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
			}
		}

		return insert("INSERT INTO", table, cols) + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	},
	Isolation: sql.LevelReadCommitted,
}

var Postgres = Dialect{
	Name:         "postgres",
	numbered:     true,
	insertIgnore: "INSERT INTO",
	onConflict:   " ON CONFLICT DO NOTHING",
	upsert:       upsertExcluded,
	Isolation:    sql.LevelReadCommitted,
}

// Rebind rewrites ? placeholders into the form the database expects.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

// InsertIgnore returns an insert statement that silently skips rows violating a unique key.
func (d Dialect) InsertIgnore(table string, cols ...string) string {
	return d.Rebind(insert(d.insertIgnore, table, cols) + d.onConflict)
}

// Upsert returns an insert statement that replaces the non-key columns of an existing row.
func (d Dialect) Upsert(table string, keys []string, cols ...string) string {
	return d.Rebind(d.upsert(table, keys, cols))
}

func (d Dialect) txOptions() *sql.TxOptions {
	if d.Isolation == sql.LevelDefault {
		return nil
	}

	return &sql.TxOptions{Isolation: d.Isolation}
}

func upsertExcluded(table string, keys, cols []string) string {
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if !slices.Contains(keys, c) {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}

	return insert("INSERT INTO", table, cols) +
		fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
}

func insert(verb, table string, cols []string) string {
	return fmt.Sprintf(
		"%s %s (%s) VALUES (%s)",
		verb, table, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	)
}
