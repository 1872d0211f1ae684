package enums

import "fmt"

// CreditSource maps to the credit_source enum on credit_ledger rows.
type CreditSource string

const (
	CreditSourcePurchase    CreditSource = "PURCHASE"
	CreditSourceConsumption CreditSource = "CONSUMPTION"
	CreditSourceRefund      CreditSource = "REFUND"
	CreditSourceAdjustment  CreditSource = "ADJUSTMENT"
)

var validCreditSources = []CreditSource{
	CreditSourcePurchase,
	CreditSourceConsumption,
	CreditSourceRefund,
	CreditSourceAdjustment,
}

// IsValid reports whether the value matches the canonical credit source enum.
func (s CreditSource) IsValid() bool {
	for _, candidate := range validCreditSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsManual reports whether the source may be written through Adjust.
func (s CreditSource) IsManual() bool {
	return s == CreditSourceRefund || s == CreditSourceAdjustment
}

// ParseCreditSource converts raw input into CreditSource.
func ParseCreditSource(value string) (CreditSource, error) {
	for _, candidate := range validCreditSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit source %q", value)
}
