package gateway

import (
	"fmt"
	"math"

	"github.com/courseloom/api/services/enroll"
)

// MaxReceiptLength is the gateway's cap on receipt references.
const MaxReceiptLength = 40

// minorUnitsPerMajor converts major currency units to the gateway's minor
// unit (paise for INR, cents for USD).
const minorUnitsPerMajor = 100

// MinorUnits converts a major-unit amount to an integer minor-unit amount.
// An amount that does not land exactly on a minor unit, or that is not
// positive, is rejected rather than silently truncated. Rejections wrap
// enroll.ErrInvalidAmount so they surface to the caller as a bad request.
func MinorUnits(amount float64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive, got %v", enroll.ErrInvalidAmount, amount)
	}

	scaled := amount * minorUnitsPerMajor
	rounded := math.Round(scaled)
	if math.Abs(scaled-rounded) > 1e-6 {
		return 0, fmt.Errorf("%w: amount %v does not convert to a whole minor-unit value", enroll.ErrInvalidAmount, amount)
	}

	minor := int64(rounded)
	if minor <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive, got %v", enroll.ErrInvalidAmount, amount)
	}
	return minor, nil
}
