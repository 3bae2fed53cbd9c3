package efirma

import (
	"fmt"
	"time"
)

// ValidityState classifies an instant against a certificate's validity window.
type ValidityState string

const (
	NotYetValid ValidityState = "NOT_YET_VALID"
	Valid       ValidityState = "VALID"
	Expired     ValidityState = "EXPIRED"
)

// CheckValidity classifies now against [notBefore, notAfter]. Both bounds are
// inclusive.
func CheckValidity(notBefore, notAfter, now time.Time) ValidityState {
	switch {
	case now.Before(notBefore):
		return NotYetValid
	case now.After(notAfter):
		return Expired
	default:
		return Valid
	}
}

// Err returns ErrNotYetValid or ErrExpired for the corresponding states and
// nil for Valid.
func (s ValidityState) Err() error {
	switch s {
	case NotYetValid:
		return ErrNotYetValid
	case Expired:
		return ErrExpired
	default:
		return nil
	}
}

func validityMessage(state ValidityState, notBefore, notAfter time.Time) string {
	switch state {
	case NotYetValid:
		return fmt.Sprintf("certificate is not valid yet (valid from %s)", notBefore.UTC().Format(time.RFC3339))
	case Expired:
		return fmt.Sprintf("certificate expired on %s", notAfter.UTC().Format(time.RFC3339))
	default:
		return ""
	}
}
