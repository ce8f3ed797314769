package geo

import (
	"math"
	"testing"
)

func TestDistanceKnownCities(t *testing.T) {
	// Berlin -> Hamburg, roughly 255 km great-circle.
	d := Distance(52.5200, 13.4050, 53.5511, 9.9937)
	if d < 250 || d > 260 {
		t.Fatalf("Berlin-Hamburg distance = %.1f km, want ~255", d)
	}
}

func TestDistanceZero(t *testing.T) {
	d := Distance(48.1351, 11.5820, 48.1351, 11.5820)
	if d != 0 {
		t.Fatalf("distance to self = %f, want 0", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := Distance(52.52, 13.405, 48.1351, 11.582)
	b := Distance(48.1351, 11.582, 52.52, 13.405)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", a, b)
	}
}

func TestBearingCardinal(t *testing.T) {
	// Due north.
	b := Bearing(50.0, 10.0, 51.0, 10.0)
	if math.Abs(b) > 0.5 {
		t.Fatalf("northward bearing = %f, want ~0", b)
	}

	// Due east on the equator.
	b = Bearing(0.0, 10.0, 0.0, 11.0)
	if math.Abs(b-90) > 0.5 {
		t.Fatalf("eastward bearing = %f, want ~90", b)
	}
}
