package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DatExt is the extension of the whitespace-separated series files.
const DatExt = ".dat"

func FormatRow(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', 10, 64)
	}
	return strings.Join(parts, " ")
}

// DatDir writes one file per series into a directory, each line one tuple.
// Files are opened on the first tuple of their series.
type DatDir struct {
	dir   string
	files map[string]*datFile
}

type datFile struct {
	f *os.File
	w *bufio.Writer
}

func NewDatDir(dir string) (*DatDir, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DatDir{dir: dir, files: make(map[string]*datFile)}, nil
}

func (d *DatDir) Dir() string { return d.dir }

func (d *DatDir) Emit(series string, values ...float64) error {
	df, ok := d.files[series]
	if !ok {
		f, err := os.Create(filepath.Join(d.dir, series+DatExt))
		if err != nil {
			return err
		}
		df = &datFile{f: f, w: bufio.NewWriter(f)}
		d.files[series] = df
	}
	_, err := fmt.Fprintln(df.w, FormatRow(values))
	return err
}

func (d *DatDir) Close() error {
	var first error
	for _, df := range d.files {
		if err := df.w.Flush(); err != nil && first == nil {
			first = err
		}
		if err := df.f.Close(); err != nil && first == nil {
			first = err
		}
	}
	d.files = make(map[string]*datFile)
	return first
}

func WriteDat(w io.Writer, rows [][]float64) error {
	bw := bufio.NewWriter(w)
	for _, row := range rows {
		if _, err := fmt.Fprintln(bw, FormatRow(row)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadDat parses a series file, skipping blank lines and # comments.
func ReadDat(r io.Reader) ([][]float64, error) {
	var rows [][]float64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		row := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}

// ListDat returns the series names stored in dir, sorted.
func ListDat(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != DatExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), DatExt))
	}
	sort.Strings(names)
	return names, nil
}
