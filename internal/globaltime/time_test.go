package globaltime

import (
	"testing"
	"time"
)

func TestFreezeAndRestore(t *testing.T) {
	pinned := time.Date(2026, 3, 10, 23, 30, 0, 0, time.FixedZone("TRT", 3*3600))
	restore := Freeze(pinned)

	if !Now().Equal(pinned) {
		t.Fatalf("expected frozen time %v, got %v", pinned, Now())
	}
	if UTC().Location() != time.UTC {
		t.Fatalf("expected UTC location")
	}

	restore()
	if Now().Equal(pinned) {
		t.Fatalf("expected clock restored")
	}
}

func TestDayKeyUsesUTC(t *testing.T) {
	t.Parallel()

	local := time.Date(2026, 3, 11, 1, 15, 0, 0, time.FixedZone("TRT", 3*3600))
	if got := DayKey(local); got != "2026-03-10" {
		t.Fatalf("unexpected day key %q", got)
	}
}
