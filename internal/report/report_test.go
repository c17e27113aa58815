package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Emit("solution", 0, 1)
	r.Emit("error", 0, 0)
	r.Emit("solution", 0.1, 0.9)

	names := r.Names()
	if len(names) != 2 || names[0] != "solution" || names[1] != "error" {
		t.Errorf("expected first-seen order, got %v", names)
	}
	if len(r.Rows("solution")) != 2 {
		t.Errorf("expected 2 rows, got %d", len(r.Rows("solution")))
	}
	col := r.Column("solution", 1)
	if col[0] != 1 || col[1] != 0.9 {
		t.Errorf("column: got %v", col)
	}

	vals := []float64{5, 6}
	r.Emit("x", vals...)
	vals[0] = 99
	if r.Rows("x")[0][0] != 5 {
		t.Error("recorder must copy emitted values")
	}
}

type failSink struct{ closed bool }

func (f *failSink) Emit(string, ...float64) error { return errors.New("full") }
func (f *failSink) Close() error {
	f.closed = true
	return errors.New("close failed")
}

func TestMulti(t *testing.T) {
	rec := NewRecorder()
	bad := &failSink{}
	m := Multi(rec, bad)

	if err := m.Emit("x", 1); err == nil {
		t.Error("expected emit error")
	}
	if len(rec.Rows("x")) != 1 {
		t.Error("earlier sinks should still receive the tuple")
	}
	if err := m.Close(); err == nil {
		t.Error("expected close error")
	}
	if !rec.Closed() || !bad.closed {
		t.Error("every sink must be closed")
	}
}

func TestDatDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	d, err := NewDatDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	d.Emit("solution", 0, 1)
	d.Emit("solution", 0.1, 0.905)
	d.Emit("error", 0.1, 1.5e-8)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	names, err := ListDat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "error" {
		t.Errorf("expected [error solution], got %v", names)
	}

	f, err := os.Open(filepath.Join(dir, "error.dat"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := ReadDat(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0][1] != 1.5e-8 {
		t.Errorf("small values must survive the round trip, got %v", rows)
	}
}

func TestReadDat(t *testing.T) {
	in := "# x y\n0 1\n\n0.5 2\n"
	rows, err := ReadDat(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][0] != 0.5 {
		t.Errorf("got %v", rows)
	}

	if _, err := ReadDat(strings.NewReader("1 abc\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestWriteDat(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDat(&buf, [][]float64{{1, 2}, {3, 4.25}}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "1 2\n3 4.25\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots", "sol.png")
	rows := [][]float64{{0, 0}, {1, 1}, {2, 4}}
	if err := SavePNG(path, "test", "x", "y", Line{Label: "y", Rows: rows, XCol: 0, YCol: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("png is empty")
	}

	if err := SavePNG(path, "t", "x", "y"); err == nil {
		t.Error("expected error without lines")
	}
	bad := Line{Rows: [][]float64{{1}}, XCol: 0, YCol: 1}
	if err := SavePNG(path, "t", "x", "y", bad); err == nil {
		t.Error("expected error for short rows")
	}
}

func TestASCIIPlot(t *testing.T) {
	out := ASCIIPlot([]float64{0, 1, 2, 1, 0}, "wave", 20, 5)
	if !strings.Contains(out, "wave") {
		t.Error("expected caption in output")
	}
	if ASCIIPlot(nil, "empty", 20, 5) != "" {
		t.Error("expected empty output for no data")
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{1e-6, "excellent"},
		{5e-3, "good"},
		{5e-2, "acceptable"},
		{0.5, "poor"},
	}
	for _, tt := range tests {
		if got := Grade(tt.v); got != tt.want {
			t.Errorf("Grade(%g) = %s, expected %s", tt.v, got, tt.want)
		}
	}
}

func TestCard(t *testing.T) {
	c := Card{
		Name:     "rotation",
		Kind:     "system",
		Status:   "completed",
		Steps:    200,
		Summary:  map[string]float64{"max_error": 1e-6, "invariant_variation": 0.02},
		Warnings: map[string]int{"growth": 2},
	}
	g := c.Grades()
	if g["precision"] != "excellent" || g["conservation"] != "acceptable" {
		t.Errorf("unexpected grades %v", g)
	}
	out := c.Render()
	for _, want := range []string{"rotation", "completed", "growth", "excellent"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}
