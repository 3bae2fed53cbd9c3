package efirma

import (
	"errors"
	"testing"
	"time"
)

func TestCheckValidity(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	tests := []struct {
		name      string
		notBefore time.Time
		notAfter  time.Time
		want      ValidityState
	}{
		{"inside window", now.Add(-day), now.Add(day), Valid},
		{"window entirely past", now.Add(-2 * day), now.Add(-day), Expired},
		{"window entirely future", now.Add(day), now.Add(2 * day), NotYetValid},
		{"lower bound inclusive", now, now.Add(day), Valid},
		{"upper bound inclusive", now.Add(-day), now, Valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CheckValidity(tt.notBefore, tt.notAfter, now); got != tt.want {
				t.Errorf("CheckValidity = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidityState_Err(t *testing.T) {
	t.Parallel()

	if Valid.Err() != nil {
		t.Error("Valid must not produce an error")
	}
	if !errors.Is(NotYetValid.Err(), ErrNotYetValid) {
		t.Error("NotYetValid must map to ErrNotYetValid")
	}
	if !errors.Is(Expired.Err(), ErrExpired) {
		t.Error("Expired must map to ErrExpired")
	}
}
