// Package catalog maintains a sqlite index of the archives written to an
// output directory, so that timesteps can be found by iteration number.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by Lookup for iterations that aren't in the
// catalog.
var ErrNotFound = errors.New("iteration not in catalog")

// Parallel batch jobs write to the same catalog, so writers wait on each
// other rather than failing.
const busyTimeoutMs = 30000

var schema = []string{
	`CREATE TABLE IF NOT EXISTS timestep (
		iteration INTEGER PRIMARY KEY,
		time REAL NOT NULL,
		archive TEXT NOT NULL,
		source TEXT NOT NULL,
		points INTEGER NOT NULL,
		run TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS property (
		iteration INTEGER NOT NULL
			REFERENCES timestep(iteration) ON DELETE CASCADE,
		name TEXT NOT NULL,
		PRIMARY KEY (iteration, name)
	);`,
}

// Entry describes one archive.
type Entry struct {
	Iteration  int
	Time       float64
	Archive    string // Archive file name, relative to the output directory.
	Source     string // Name of the text files it was made from.
	Points     int
	Run        string
	Properties []string // Sorted.
}

type Catalog struct {
	db    *sql.DB
	fname string
}

// Open opens the catalog in fname, creating it if it doesn't exist.
func Open(fname string) (*Catalog, error) {
	// Caution: PRAGMA foreign_keys = ON is not sticky.
	db, err := sql.Open("sqlite3", dsn(fname, fmt.Sprintf(
		"_foreign_keys=yes&_busy_timeout=%d&_txlock=immediate", busyTimeoutMs,
	)))
	if err != nil {
		return nil, err
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing catalog '%s': %w", fname, err)
		}
	}

	return &Catalog{db, fname}, nil
}

// OpenReadOnly opens an existing catalog for lookups. It never creates
// fname: if fname is missing, the returned error satisfies
// errors.Is(err, os.ErrNotExist).
func OpenReadOnly(fname string) (*Catalog, error) {
	if _, err := os.Stat(fname); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn(fname, fmt.Sprintf(
		"mode=ro&_busy_timeout=%d", busyTimeoutMs,
	)))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening catalog '%s': %w", fname, err)
	}
	return &Catalog{db, fname}, nil
}

// dsn escapes fname so that '?' and '#' in paths aren't read as URI syntax.
func dsn(fname, params string) string {
	path := (&url.URL{Path: fname}).EscapedPath()
	return "file:" + path + "?" + params
}

func (cat *Catalog) Close() error { return cat.db.Close() }

// Add inserts e, replacing any earlier entry for the same iteration.
func (cat *Catalog) Add(e Entry) error {
	tx, err := cat.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM property WHERE iteration = ?;`, e.Iteration,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO timestep
			(iteration, time, archive, source, points, run)
			VALUES (?, ?, ?, ?, ?, ?);`,
		e.Iteration, e.Time, e.Archive, e.Source, e.Points, e.Run,
	); err != nil {
		return err
	}
	for _, name := range e.Properties {
		if _, err := tx.Exec(
			`INSERT INTO property (iteration, name) VALUES (?, ?);`,
			e.Iteration, name,
		); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("adding iteration %d to catalog '%s': %w",
			e.Iteration, cat.fname, err)
	}
	return nil
}

// Lookup returns the entry for iteration.
func (cat *Catalog) Lookup(iteration int) (Entry, error) {
	entries, err := cat.query(`WHERE t.iteration = ?`, iteration)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, iteration)
	}
	return entries[0], nil
}

// Entries returns every entry ordered by iteration.
func (cat *Catalog) Entries() ([]Entry, error) {
	return cat.query("")
}

func (cat *Catalog) query(where string, args ...interface{}) ([]Entry, error) {
	rows, err := cat.db.Query(`SELECT
		t.iteration, t.time, t.archive, t.source, t.points, t.run,
		COALESCE(GROUP_CONCAT(p.name, char(31)), '')
		FROM timestep t
		LEFT JOIN property p ON p.iteration = t.iteration `+where+`
		GROUP BY t.iteration
		ORDER BY t.iteration;`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e := Entry{}
		var props string
		if err := rows.Scan(
			&e.Iteration, &e.Time, &e.Archive, &e.Source, &e.Points, &e.Run,
			&props,
		); err != nil {
			return nil, err
		}
		e.Properties = []string{}
		if props != "" {
			e.Properties = strings.Split(props, "\x1f")
			sort.Strings(e.Properties)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
