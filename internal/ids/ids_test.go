package ids

import (
	"testing"
	"time"
)

func TestAtCarriesTimestamp(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := At(at)
	got, err := Time(id)
	if err != nil {
		t.Fatalf("time: %v", err)
	}
	if !got.Equal(at) {
		t.Fatalf("expected %s, got %s", at, got)
	}
}

func TestSameInstantIdsIncrease(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := At(at)
	for i := 0; i < 100; i++ {
		next := At(at)
		if next <= prev {
			t.Fatalf("id %s not after %s", next, prev)
		}
		prev = next
	}
}

func TestTimeRejectsGarbage(t *testing.T) {
	if _, err := Time("not-an-id"); err == nil {
		t.Fatal("expected parse error")
	}
}
