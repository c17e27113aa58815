package dynamo

import (
	"errors"
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		v     float64
		valid bool
	}{
		{"zero", 0.0, true},
		{"negative large", -1e99, true},
		{"positive large", 1e99, true},
		{"limit", 1e100, true},
		{"NaN", math.NaN(), false},
		{"+Inf", math.Inf(1), false},
		{"-Inf", math.Inf(-1), false},
		{"overflow", 1e101, false},
		{"negative overflow", -1e101, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.v); got != tt.valid {
				t.Errorf("IsValid(%v) = %v, want %v", tt.v, got, tt.valid)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	if err := Require("k1", 3.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := Require("k2", math.NaN())
	if err == nil {
		t.Fatal("expected fault for NaN")
	}
	if !errors.Is(err, ErrNumericFault) {
		t.Errorf("expected ErrNumericFault, got %v", err)
	}

	var fault *NumericFault
	if !errors.As(err, &fault) {
		t.Fatalf("expected *NumericFault, got %T", err)
	}
	if fault.Name != "k2" {
		t.Errorf("expected name k2, got %s", fault.Name)
	}
}

func TestRequireAll(t *testing.T) {
	if err := RequireAll("x", State{1, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := RequireAll("x", State{1, math.Inf(1)})
	var fault *NumericFault
	if !errors.As(err, &fault) {
		t.Fatalf("expected *NumericFault, got %v", err)
	}
	if fault.Name != "x[1]" {
		t.Errorf("expected name x[1], got %s", fault.Name)
	}
}

func TestFirst(t *testing.T) {
	if err := First(nil, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	want := errors.New("boom")
	if err := First(nil, want, errors.New("later")); err != want {
		t.Errorf("expected first error, got %v", err)
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0, 3.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{1.0, math.Inf(1)}, false},
		{"beyond limit", State{1e101, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestState_Norm(t *testing.T) {
	if n := (State{3, 4}).Norm(); math.Abs(n-5) > 1e-12 {
		t.Errorf("Norm = %v, want 5", n)
	}
	c := State{1, 2}
	d := c.Clone()
	d[0] = 9
	if c[0] != 1 {
		t.Error("Clone must not share storage")
	}
}

func TestSecondOrderReduction(t *testing.T) {
	sys := SecondOrder{F: func(x, y, yp float64) float64 { return -y }}
	dx := sys.Derive(0, State{2, 3})
	if dx[0] != 3 || dx[1] != -2 {
		t.Errorf("expected [3 -2], got %v", dx)
	}
}

func TestDiagnostics(t *testing.T) {
	d := NewDiagnostics()
	d.Add(Warning{Kind: WarnGrowth, Step: 6}, Warning{Kind: WarnGrowth, Step: 7})
	d.Add(Warning{Kind: WarnEnergyDrift, Step: 12})

	if d.Len() != 3 {
		t.Errorf("expected 3 warnings, got %d", d.Len())
	}
	if d.Count(WarnGrowth) != 2 {
		t.Errorf("expected 2 growth warnings, got %d", d.Count(WarnGrowth))
	}
	kinds := d.Kinds()
	if len(kinds) != 2 || kinds[0] != WarnEnergyDrift {
		t.Errorf("unexpected kinds: %v", kinds)
	}
}
