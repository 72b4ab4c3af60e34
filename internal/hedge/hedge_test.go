package hedge

import (
	"math"
	"testing"
)

func TestComputeTargetUnderAffordable(t *testing.T) {
	s := Compute(9.96, 100, 25, 1000)
	if s.MaxAffordable != 250 {
		t.Fatalf("max affordable = %v, want 250", s.MaxAffordable)
	}
	if s.Effective != 9.96 {
		t.Fatalf("effective = %v, want 9.96", s.Effective)
	}
}

func TestComputeClampsToAffordable(t *testing.T) {
	s := Compute(50, 100, 1, 1000)
	if s.MaxAffordable != 10 {
		t.Fatalf("max affordable = %v, want 10", s.MaxAffordable)
	}
	if s.Effective != 10 {
		t.Fatalf("effective = %v, want 10", s.Effective)
	}
}

func TestComputeBudgetFallback(t *testing.T) {
	// budget absent: falls back to target*entry = 996, so at 2x leverage
	// the affordable size is 2*target.
	s := Compute(9.96, 100, 2, 0)
	if s.MaxAffordable != 19.92 {
		t.Fatalf("max affordable = %v, want 19.92", s.MaxAffordable)
	}
	if s.Effective != 9.96 {
		t.Fatalf("effective = %v, want 9.96", s.Effective)
	}

	if s := Compute(9.96, 100, 2, math.NaN()); s.Effective != 9.96 {
		t.Fatalf("NaN budget should fall back, got %+v", s)
	}
}

func TestComputeNeverNegative(t *testing.T) {
	if s := Compute(-5, 100, 10, 1000); s.Effective != 0 {
		t.Fatalf("negative target should clamp to 0, got %v", s.Effective)
	}
	if s := Compute(5, 0, 10, 1000); s.Effective != 0 {
		t.Fatalf("zero entry should clamp to 0, got %v", s.Effective)
	}
	if s := Compute(5, 100, 0, 1000); s.Effective != 0 {
		t.Fatalf("zero leverage affords nothing, got %v", s.Effective)
	}
}
