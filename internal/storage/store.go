package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/san-kum/numlab/internal/dynamo"
	"github.com/san-kum/numlab/internal/report"
)

// DBName is the catalog file created inside the data directory.
const DBName = "numlab.db"

var ErrNotFound = errors.New("storage: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	kind         TEXT NOT NULL,
	method       TEXT,
	status       TEXT NOT NULL,
	steps        INTEGER NOT NULL,
	created_at   TEXT NOT NULL,
	config_yaml  TEXT,
	summary_json TEXT,
	error        TEXT
);

CREATE TABLE IF NOT EXISTS warnings (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id  TEXT NOT NULL,
	kind    TEXT NOT NULL,
	step    INTEGER NOT NULL,
	value   REAL,
	message TEXT,
	FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS series (
	run_id  TEXT NOT NULL,
	name    TEXT NOT NULL,
	points  INTEGER NOT NULL,
	columns INTEGER NOT NULL,
	PRIMARY KEY (run_id, name),
	FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
`

// Store catalogs runs in SQLite and keeps their samples as .dat files, one
// directory per run.
type Store struct {
	db      *sql.DB
	baseDir string
}

func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", filepath.Join(baseDir, DBName))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, baseDir: baseDir}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RunDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

type Run struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Kind      string             `json:"kind"`
	Method    string             `json:"method"`
	Status    string             `json:"status"`
	Steps     int                `json:"steps"`
	CreatedAt time.Time          `json:"created_at"`
	Config    string             `json:"config,omitempty"`
	Summary   map[string]float64 `json:"summary"`
	Warnings  []dynamo.Warning   `json:"warnings,omitempty"`
	Err       string             `json:"error,omitempty"`
	// Series maps each stored series to its number of tuples.
	Series map[string]int `json:"series,omitempty"`
}

func (r *Run) WarningCounts() map[string]int {
	out := make(map[string]int)
	for _, w := range r.Warnings {
		out[string(w.Kind)]++
	}
	return out
}

// SeriesSet is the read side of a recorded run.
type SeriesSet interface {
	Names() []string
	Rows(series string) [][]float64
}

// Save writes the series files and catalogs run. An empty ID is assigned a
// new UUID.
func (s *Store) Save(run *Run, series SeriesSet) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	run.Series = make(map[string]int)
	columns := make(map[string]int)
	if series != nil {
		dir := s.RunDir(run.ID)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
		for _, name := range series.Names() {
			rows := series.Rows(name)
			if err := writeSeries(filepath.Join(dir, name+report.DatExt), rows); err != nil {
				return "", fmt.Errorf("write series %s: %w", name, err)
			}
			run.Series[name] = len(rows)
			if len(rows) > 0 {
				columns[name] = len(rows[0])
			}
		}
	}

	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, name, kind, method, status, steps, created_at, config_yaml, summary_json, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Kind, run.Method, run.Status, run.Steps,
		run.CreatedAt.Format(time.RFC3339Nano), run.Config, string(summary), run.Err,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, w := range run.Warnings {
		_, err = tx.Exec(
			`INSERT INTO warnings (run_id, kind, step, value, message) VALUES (?, ?, ?, ?, ?)`,
			run.ID, string(w.Kind), w.Step, w.Value, w.Message,
		)
		if err != nil {
			return "", fmt.Errorf("insert warning: %w", err)
		}
	}

	for name, n := range run.Series {
		_, err = tx.Exec(
			`INSERT INTO series (run_id, name, points, columns) VALUES (?, ?, ?, ?)`,
			run.ID, name, n, columns[name],
		)
		if err != nil {
			return "", fmt.Errorf("insert series: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return run.ID, nil
}

func writeSeries(path string, rows [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteDat(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var method, config, summary, errText sql.NullString
	var created string
	if err := sc.Scan(&r.ID, &r.Name, &r.Kind, &method, &r.Status, &r.Steps, &created, &config, &summary, &errText); err != nil {
		return Run{}, err
	}
	r.Method = method.String
	r.Config = config.String
	r.Err = errText.String
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	r.Summary = make(map[string]float64)
	if summary.Valid && summary.String != "" {
		if err := json.Unmarshal([]byte(summary.String), &r.Summary); err != nil {
			return Run{}, fmt.Errorf("unmarshal summary: %w", err)
		}
	}
	return r, nil
}

const runColumns = `run_id, name, kind, method, status, steps, created_at, config_yaml, summary_json, error`

// List returns every run, newest first.
func (s *Store) List() ([]Run, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Resolve expands a unique prefix of a run ID.
func (s *Store) Resolve(prefix string) (string, error) {
	rows, err := s.db.Query(`SELECT run_id FROM runs WHERE run_id LIKE ? || '%' LIMIT 2`, prefix)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", prefix, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return ids[0], nil
	}
	return "", fmt.Errorf("run id prefix %q is ambiguous", prefix)
}

// Load reads a run with its warnings and series index.
func (s *Store) Load(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}

	wrows, err := s.db.Query(`SELECT kind, step, value, message FROM warnings WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load warnings: %w", err)
	}
	defer wrows.Close()
	for wrows.Next() {
		var w dynamo.Warning
		var kind string
		var msg sql.NullString
		if err := wrows.Scan(&kind, &w.Step, &w.Value, &msg); err != nil {
			return nil, err
		}
		w.Kind = dynamo.WarningKind(kind)
		w.Message = msg.String
		r.Warnings = append(r.Warnings, w)
	}
	if err := wrows.Err(); err != nil {
		return nil, err
	}

	srows, err := s.db.Query(`SELECT name, points FROM series WHERE run_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load series index: %w", err)
	}
	defer srows.Close()
	r.Series = make(map[string]int)
	for srows.Next() {
		var name string
		var n int
		if err := srows.Scan(&name, &n); err != nil {
			return nil, err
		}
		r.Series[name] = n
	}
	return &r, srows.Err()
}

func (s *Store) LoadSeries(id, name string) ([][]float64, error) {
	f, err := os.Open(filepath.Join(s.RunDir(id), name+report.DatExt))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return report.ReadDat(f)
}

// Delete removes a run from the catalog and its series directory.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return os.RemoveAll(s.RunDir(id))
}
