package models

import "time"

// TenantLedger tracks monthly credit usage for one owner.
//
// Invariant: 0 <= CreditsUsed <= CreditsMax between resets. The reset is
// lazy: the first admission observed after ResetDate zeroes CreditsUsed and
// advances ResetDate to the first day of the next month. Resets are
// idempotent under concurrent admissions (see ledger.Service).
type TenantLedger struct {
	OwnerID     string    `json:"owner_id"`
	Tier        string    `json:"tier"`
	CreditsUsed int       `json:"credits_used"`
	CreditsMax  int       `json:"credits_max"`
	ResetDate   time.Time `json:"reset_date"` // first day of the next billing cycle
	UpdatedAt   time.Time `json:"updated_at"`
}

// NextResetDate returns the first day of the month following t, at midnight UTC.
func NextResetDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
