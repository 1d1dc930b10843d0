package application

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var ErrInvalidCommission = errors.New("commission is limited to whole percentages from 0 to 100")

// ZeroCommissionPerbill is what the chain expects for a zero percent commission.
// The chain rejects "0" here; keep "1" until that is confirmed fixed on-chain.
const ZeroCommissionPerbill = "1"

// CommissionToPerbill converts a whole percentage into the Perbill string the chain accepts.
func CommissionToPerbill(percent float64) (string, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 || percent != math.Trunc(percent) {
		return "", fmt.Errorf("%w: %v", ErrInvalidCommission, percent)
	}
	if percent == 0 {
		return ZeroCommissionPerbill, nil
	}
	return strconv.Itoa(int(percent)) + "0000000", nil
}

func commissionPerbill(percent float64) (uint32, error) {
	raw, err := CommissionToPerbill(percent)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse perbill %q: %w", raw, err)
	}
	return uint32(value), nil
}
