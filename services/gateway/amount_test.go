package gateway

import (
	"errors"
	"testing"

	"github.com/courseloom/api/services/enroll"
)

func TestMinorUnits(t *testing.T) {
	t.Run("converts exact amounts", func(t *testing.T) {
		cases := []struct {
			amount float64
			want   int64
		}{
			{1, 100},
			{499, 49900},
			{501, 50100},
			{1000, 100000}, // 499 + 501 basket total
			{0.01, 1},
			{1234.56, 123456},
		}
		for _, tc := range cases {
			got, err := MinorUnits(tc.amount)
			if err != nil {
				t.Errorf("MinorUnits(%v) returned error: %v", tc.amount, err)
				continue
			}
			if got != tc.want {
				t.Errorf("MinorUnits(%v) = %d, want %d", tc.amount, got, tc.want)
			}
		}
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		for _, amount := range []float64{0, -1, -0.01} {
			if _, err := MinorUnits(amount); err == nil {
				t.Errorf("MinorUnits(%v) should fail", amount)
			}
		}
	})

	t.Run("rejects fractional minor units", func(t *testing.T) {
		for _, amount := range []float64{10.555, 0.001, 99.999} {
			if _, err := MinorUnits(amount); err == nil {
				t.Errorf("MinorUnits(%v) should fail", amount)
			}
		}
	})

	t.Run("rejections carry the invalid-amount sentinel", func(t *testing.T) {
		for _, amount := range []float64{0, -1, 10.005} {
			_, err := MinorUnits(amount)
			if !errors.Is(err, enroll.ErrInvalidAmount) {
				t.Errorf("MinorUnits(%v) error = %v, want ErrInvalidAmount in chain", amount, err)
			}
		}
	})

	t.Run("tolerates float representation error", func(t *testing.T) {
		// 0.1+0.2 is not exactly 0.3 in float64; conversion must still work.
		got, err := MinorUnits(0.1 + 0.2)
		if err != nil {
			t.Fatalf("MinorUnits(0.1+0.2) returned error: %v", err)
		}
		if got != 30 {
			t.Errorf("MinorUnits(0.1+0.2) = %d, want 30", got)
		}
	})
}
