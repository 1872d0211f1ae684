package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Primary keys are assigned client-side so callers can reference a row before
// the insert returns and so non-postgres test databases need no uuid default.

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (b *Booking) BeforeCreate(*gorm.DB) error {
	assignID(&b.ID)
	return nil
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func (r *Refund) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

func (c *LearnerCredit) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

func (e *CreditLedgerEntry) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

func (p *Payout) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func (a *StripeConnectAccount) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}

func (d *DiscountCode) BeforeCreate(*gorm.DB) error {
	assignID(&d.ID)
	return nil
}
