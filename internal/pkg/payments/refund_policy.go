package payments

import (
	"fmt"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
)

// Default policy percentages. Both are configurable per call; the defaults
// mirror the platform-wide cancellation terms.
const (
	DefaultHoldPercent        = 15
	DefaultPlatformFeePercent = 8
)

// RefundBreakdown is the settlement of one cancellation, in integer
// eurocents. Invariants: RefundedCents + HoldCents == TotalCents and
// HoldCents == PlatformKeptCents + CompanyKeptCents, exactly.
type RefundBreakdown struct {
	TotalCents        int64
	HoldCents         int64
	PlatformKeptCents int64
	CompanyKeptCents  int64
	RefundedCents     int64
}

// BookingStatus returns the booking status the cancellation lands in: a
// zero hold means a full refund, a positive hold means money was partially
// retained and the booking stays cancelled.
func (b RefundBreakdown) BookingStatus() string {
	if b.HoldCents == 0 {
		return models.BookingStatusRefunded
	}
	return models.BookingStatusCancelled
}

// ComputeRefund settles a cancellation. A normal cancellation holds nothing;
// a late one holds floor(total*holdPercent/100), of which
// floor(hold*platformFeePercent/100) goes to the platform and the remainder
// to the company. All arithmetic is integer floor division so the invariants
// hold for any percentage in [0,100].
func ComputeRefund(totalCents int64, cancelType string, holdPercent, platformFeePercent int64) (RefundBreakdown, error) {
	if totalCents < 0 {
		return RefundBreakdown{}, fmt.Errorf("total amount must be non-negative, got %d", totalCents)
	}
	if holdPercent < 0 || holdPercent > 100 {
		return RefundBreakdown{}, fmt.Errorf("hold percent out of range: %d", holdPercent)
	}
	if platformFeePercent < 0 || platformFeePercent > 100 {
		return RefundBreakdown{}, fmt.Errorf("platform fee percent out of range: %d", platformFeePercent)
	}

	var hold int64
	switch cancelType {
	case models.CancelTypeNormal:
		hold = 0
	case models.CancelTypeLate:
		hold = totalCents * holdPercent / 100
	default:
		return RefundBreakdown{}, fmt.Errorf("unknown cancel type %q", cancelType)
	}

	platformKept := hold * platformFeePercent / 100
	return RefundBreakdown{
		TotalCents:        totalCents,
		HoldCents:         hold,
		PlatformKeptCents: platformKept,
		CompanyKeptCents:  hold - platformKept,
		RefundedCents:     totalCents - hold,
	}, nil
}

// PlatformFeeCents computes the platform fee taken at payment creation:
// floor(amount * percent / 100).
func PlatformFeeCents(amountCents, percent int64) int64 {
	if amountCents <= 0 || percent <= 0 {
		return 0
	}
	return amountCents * percent / 100
}
