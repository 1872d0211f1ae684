// Package dbtest opens throwaway sqlite databases carrying the application
// schema so repository and service tests can run without postgres.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE profiles (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  full_name TEXT NOT NULL,
  role TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE instructors (
  id TEXT PRIMARY KEY,
  hourly_rate_pence INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE bookings (
  id TEXT PRIMARY KEY,
  learner_id TEXT NOT NULL,
  instructor_id TEXT NOT NULL,
  start_at DATETIME NOT NULL,
  end_at DATETIME NOT NULL,
  duration_minutes INTEGER NOT NULL,
  price_pence INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE discount_codes (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  discount_type TEXT NOT NULL,
  discount_value INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  valid_from DATETIME,
  valid_until DATETIME,
  max_uses INTEGER,
  times_used INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE payments (
  id TEXT PRIMARY KEY,
  learner_id TEXT NOT NULL,
  instructor_id TEXT NOT NULL,
  booking_id TEXT,
  total_amount_pence INTEGER NOT NULL,
  platform_fee_pence INTEGER NOT NULL,
  instructor_amount_pence INTEGER NOT NULL,
  discount_amount_pence INTEGER NOT NULL DEFAULT 0,
  discount_code_id TEXT,
  currency TEXT NOT NULL DEFAULT 'gbp',
  payment_method TEXT NOT NULL DEFAULT 'card',
  status TEXT NOT NULL DEFAULT 'pending',
  stripe_payment_intent_id TEXT NOT NULL UNIQUE,
  metadata BLOB,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX payments_booking_live_key ON payments (booking_id) WHERE booking_id IS NOT NULL AND status IN ('pending', 'succeeded');`,
	`CREATE TABLE refunds (
  id TEXT PRIMARY KEY,
  payment_id TEXT NOT NULL,
  stripe_refund_id TEXT NOT NULL UNIQUE,
  amount_pence INTEGER NOT NULL,
  platform_fee_refund_pence INTEGER NOT NULL,
  instructor_refund_pence INTEGER NOT NULL,
  reason TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE learner_credits (
  id TEXT PRIMARY KEY,
  learner_id TEXT NOT NULL,
  instructor_id TEXT NOT NULL,
  total_purchased_minutes INTEGER NOT NULL DEFAULT 0,
  used_minutes INTEGER NOT NULL DEFAULT 0,
  adjusted_minutes INTEGER NOT NULL DEFAULT 0,
  hourly_rate_pence INTEGER NOT NULL DEFAULT 0,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (learner_id, instructor_id)
);`,
	`CREATE TABLE credit_ledger (
  id TEXT PRIMARY KEY,
  learner_id TEXT NOT NULL,
  instructor_id TEXT NOT NULL,
  delta_minutes INTEGER NOT NULL,
  source TEXT NOT NULL,
  booking_id TEXT,
  payment_id TEXT,
  note TEXT NOT NULL DEFAULT '',
  created_at DATETIME
);`,
	`CREATE UNIQUE INDEX credit_ledger_purchase_payment_key ON credit_ledger (payment_id) WHERE source = 'PURCHASE';`,
	`CREATE TABLE stripe_connect_accounts (
  id TEXT PRIMARY KEY,
  instructor_id TEXT NOT NULL UNIQUE,
  stripe_account_id TEXT NOT NULL UNIQUE,
  charges_enabled INTEGER NOT NULL DEFAULT 0,
  payouts_enabled INTEGER NOT NULL DEFAULT 0,
  details_submitted INTEGER NOT NULL DEFAULT 0,
  requirements BLOB,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE payouts (
  id TEXT PRIMARY KEY,
  instructor_id TEXT NOT NULL,
  payout_date DATETIME NOT NULL,
  period_start DATETIME NOT NULL,
  period_end DATETIME NOT NULL,
  total_amount_pence INTEGER NOT NULL,
  platform_fee_pence INTEGER NOT NULL,
  net_amount_pence INTEGER NOT NULL,
  lesson_count INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'gbp',
  status TEXT NOT NULL DEFAULT 'pending',
  stripe_account_id TEXT NOT NULL,
  stripe_transfer_id TEXT UNIQUE,
  failure_reason TEXT,
  attempts INTEGER NOT NULL DEFAULT 0,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (instructor_id, payout_date)
);`,
	`CREATE TABLE payout_payments (
  payout_id TEXT NOT NULL,
  payment_id TEXT NOT NULL,
  created_at DATETIME,
  PRIMARY KEY (payout_id, payment_id)
);`,
}

// Open returns a fresh in-memory database with every table created. Each call
// gets its own named database so parallel tests never share rows.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the named memory database alive for the whole test
	// and serializes transactions the way row locks would on postgres.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}
