package storage

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/san-kum/numlab/internal/report"
)

type ExportData struct {
	*Run
	Data map[string][][]float64 `json:"data"`
}

func (s *Store) loadAll(id string) (*ExportData, error) {
	run, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	data := &ExportData{Run: run, Data: make(map[string][][]float64)}
	for name := range run.Series {
		rows, err := s.LoadSeries(id, name)
		if err != nil {
			return nil, err
		}
		data.Data[name] = rows
	}
	return data, nil
}

// ExportJSON writes the run, its warnings and every series as one document.
func (s *Store) ExportJSON(w io.Writer, id string) error {
	data, err := s.loadAll(id)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// ExportDat copies the series files of a run into dir and returns the
// written paths in name order.
func (s *Store) ExportDat(id, dir string) ([]string, error) {
	data, err := s.loadAll(id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(data.Data))
	for name := range data.Data {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, data.Name+"_"+name+report.DatExt)
		if err := writeSeries(path, data.Data[name]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
