package snowflake

import (
	"testing"
	"time"
)

func TestTimestampMSKnownValue(t *testing.T) {
	// 175928847299117063 >> 22 == 41944705796 ms past the epoch.
	got, err := TimestampMS("175928847299117063")
	if err != nil {
		t.Fatalf("TimestampMS: %v", err)
	}
	want := Epoch + 41944705796
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestTimestampMSZero(t *testing.T) {
	got, err := TimestampMS("0")
	if err != nil {
		t.Fatalf("TimestampMS: %v", err)
	}
	if got != Epoch {
		t.Errorf("got %d, want epoch %d", got, Epoch)
	}
}

func TestTimestampMSInvalid(t *testing.T) {
	if _, err := TimestampMS("not-a-snowflake"); err == nil {
		t.Error("expected error for non-numeric id")
	}
	if _, err := TimestampMS("-5"); err == nil {
		t.Error("expected error for negative id")
	}
}

func TestRoundTrip(t *testing.T) {
	want := int64(1609459200000) // 2021-01-01T00:00:00Z
	id := FromTimestampMS(want)
	got, err := TimestampMS(id)
	if err != nil {
		t.Fatalf("TimestampMS: %v", err)
	}
	if got != want {
		t.Errorf("round trip got %d, want %d", got, want)
	}
}

func TestFromTimestampMSEpoch(t *testing.T) {
	if got := FromTimestampMS(Epoch); got != "0" {
		t.Errorf("got %s, want 0", got)
	}
	// Pre-epoch timestamps clamp rather than underflow.
	if got := FromTimestampMS(Epoch - 1000); got != "0" {
		t.Errorf("got %s, want 0", got)
	}
}

func TestTime(t *testing.T) {
	id := FromTimestampMS(1623760200000) // 2021-06-15T12:30:00Z
	got, err := Time(id)
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	want := time.Date(2021, 6, 15, 12, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Errorf("expected UTC, got %v", got.Location())
	}
}
