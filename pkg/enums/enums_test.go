package enums

import "testing"

func TestPaymentStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentStatusPending, PaymentStatusSucceeded, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusSucceeded, PaymentStatusRefunded, true},
		{PaymentStatusSucceeded, PaymentStatusFailed, false},
		{PaymentStatusFailed, PaymentStatusSucceeded, false},
		{PaymentStatusRefunded, PaymentStatusSucceeded, false},
		{PaymentStatusSucceeded, PaymentStatusSucceeded, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.want, got)
		}
	}
	if !PaymentStatusFailed.IsTerminal() || !PaymentStatusRefunded.IsTerminal() {
		t.Fatalf("failed and refunded should be terminal")
	}
	if PaymentStatusSucceeded.IsTerminal() {
		t.Fatalf("succeeded can still be refunded")
	}
}

func TestBookingStatusTransitions(t *testing.T) {
	if !BookingStatusPending.CanTransitionTo(BookingStatusConfirmed) {
		t.Fatalf("pending should confirm")
	}
	if !BookingStatusConfirmed.CanTransitionTo(BookingStatusCancelled) {
		t.Fatalf("confirmed should cancel")
	}
	if BookingStatusPending.CanTransitionTo(BookingStatusCompleted) {
		t.Fatalf("pending cannot jump to completed")
	}
	if BookingStatusCompleted.CanTransitionTo(BookingStatusCancelled) {
		t.Fatalf("completed cannot be cancelled")
	}
}

func TestPayoutStatusTransitions(t *testing.T) {
	if !PayoutStatusPending.CanTransitionTo(PayoutStatusProcessing) {
		t.Fatalf("pending should move to processing")
	}
	if !PayoutStatusProcessing.CanTransitionTo(PayoutStatusPaid) {
		t.Fatalf("processing should move to paid")
	}
	if !PayoutStatusFailed.CanTransitionTo(PayoutStatusPending) {
		t.Fatalf("failed payouts can be re-driven")
	}
	if PayoutStatusPaid.CanTransitionTo(PayoutStatusFailed) {
		t.Fatalf("paid is terminal")
	}
}

func TestParseHelpers(t *testing.T) {
	if _, err := ParsePaymentStatus("succeeded"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParsePaymentStatus("settled"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if src, err := ParseCreditSource("PURCHASE"); err != nil || src != CreditSourcePurchase {
		t.Fatalf("unexpected credit source %q err %v", src, err)
	}
	if CreditSourcePurchase.IsManual() || !CreditSourceAdjustment.IsManual() {
		t.Fatalf("unexpected manual classification")
	}
	if role, err := ParseRole(" Instructor "); err != nil || role != RoleInstructor {
		t.Fatalf("unexpected role %q err %v", role, err)
	}
	if _, err := ParseDiscountType("bogo"); err == nil {
		t.Fatalf("expected error for unknown discount type")
	}
}
