package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreditMigrationKeepsBalanceNonNegative(t *testing.T) {
	assertContains(t, readMigration(t, "create_learner_credits_and_ledger"), []string{
		"CREATE TABLE IF NOT EXISTS learner_credits",
		"CONSTRAINT learner_credits_pair_key UNIQUE (learner_id, instructor_id)",
		"CHECK (total_purchased_minutes + adjusted_minutes - used_minutes >= 0)",
		"version bigint NOT NULL DEFAULT 0",
		"CREATE TABLE IF NOT EXISTS credit_ledger",
		"CHECK (delta_minutes <> 0)",
		"ON credit_ledger (payment_id) WHERE source = 'PURCHASE'",
		"DROP TABLE IF EXISTS credit_ledger",
	})
}

func TestPayoutMigrationEnforcesOnePerInstructorAndFriday(t *testing.T) {
	assertContains(t, readMigration(t, "create_payouts"), []string{
		"CONSTRAINT payouts_instructor_date_key UNIQUE (instructor_id, payout_date)",
		"CHECK (EXTRACT(ISODOW FROM payout_date) = 5)",
		"PRIMARY KEY (payout_id, payment_id)",
		"DROP TABLE IF EXISTS payouts",
	})
}

func TestPaymentMigrationUniqueReferences(t *testing.T) {
	assertContains(t, readMigration(t, "create_payments_and_refunds"), []string{
		"CONSTRAINT payments_stripe_payment_intent_id_key UNIQUE (stripe_payment_intent_id)",
		"CONSTRAINT refunds_stripe_refund_id_key UNIQUE (stripe_refund_id)",
		"CHECK (platform_fee_refund_pence + instructor_refund_pence = amount_pence)",
	})
}

func TestPaymentMigrationAllowsOneLivePaymentPerBooking(t *testing.T) {
	assertContains(t, readMigration(t, "add_payments_booking_live_index"), []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS payments_booking_live_key",
		"WHERE booking_id IS NOT NULL AND status IN ('pending', 'succeeded')",
		"DROP INDEX IF EXISTS payments_booking_live_key",
	})
}
