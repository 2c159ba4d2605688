package series

import (
	"strings"
	"testing"
)

func TestSumEmptyList(t *testing.T) {
	if got := Sum(nil, 1000); got != nil {
		t.Fatalf("expected nil for empty list, got %v", got)
	}
}

func TestSumSingleEqualsResample(t *testing.T) {
	in := Series{{Time: 300, Value: 10}, {Time: 2700, Value: 58}}
	summed := Sum([]Series{in}, 500)
	resampled := Resample(in, 500)

	if len(summed) != len(resampled) {
		t.Fatalf("expected %d points, got %d", len(resampled), len(summed))
	}
	for i := range resampled {
		if summed[i] != resampled[i] {
			t.Fatalf("point %d: expected %v, got %v", i, resampled[i], summed[i])
		}
	}
}

func TestSumLateStarter(t *testing.T) {
	a := Series{{Time: 0, Value: 0}, {Time: 1_000_000, Value: 500_000}}
	b := Series{{Time: 500_000, Value: 0}, {Time: 1_000_000, Value: 500_000}}
	out := Sum([]Series{a, b}, 500_000)

	want := Series{
		{Time: 0, Value: 0},
		{Time: 500_000, Value: 250_000},
		{Time: 1_000_000, Value: 1_000_000},
	}
	if len(out) != len(want) {
		t.Fatalf("expected %d points, got %d: %v", len(want), len(out), out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("point %d: expected %v, got %v", i, want[i], out[i])
		}
	}
}

func TestSumUnionRange(t *testing.T) {
	// Disjoint in time: a covers [0, 1s], b covers [2s, 3s]. The combined
	// grid spans the union, with a contributing its final total after it
	// ends and b contributing zero before it starts.
	a := Series{{Time: 0, Value: 0}, {Time: 1_000_000, Value: 100}}
	b := Series{{Time: 2_000_000, Value: 0}, {Time: 3_000_000, Value: 50}}
	out := Sum([]Series{a, b}, 1_000_000)

	want := Series{
		{Time: 0, Value: 0},
		{Time: 1_000_000, Value: 100},
		{Time: 2_000_000, Value: 100},
		{Time: 3_000_000, Value: 150},
	}
	if len(out) != len(want) {
		t.Fatalf("expected %d points, got %d: %v", len(want), len(out), out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("point %d: expected %v, got %v", i, want[i], out[i])
		}
	}
}

func TestSumDifferentCadences(t *testing.T) {
	a := Series{{Time: 0, Value: 0}, {Time: 900, Value: 90}}
	b := Series{{Time: 0, Value: 0}, {Time: 250, Value: 50}, {Time: 1000, Value: 200}}
	out := Sum([]Series{a, b}, 500)

	if len(out) != 3 {
		t.Fatalf("expected 3 points, got %d: %v", len(out), out)
	}
	// At 500: a interpolates to 50, b interpolates to 100.
	if out[1].Value != 150 {
		t.Fatalf("expected 150 at 500, got %v", out[1].Value)
	}
}

func TestAlignedLookupPanicsBetweenPoints(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic for a query between grid points")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "between grid points") {
			t.Fatalf("unexpected panic value: %v", r)
		}
	}()

	stream := aligned{samples: Series{{Time: 0, Value: 1}, {Time: 1000, Value: 2}}}
	stream.at(500)
}
