package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Withdrawal statuses.
const (
	WithdrawalPending  = "pending"
	WithdrawalApproved = "approved"
	WithdrawalRejected = "rejected"
)

// Payout methods.
const (
	MethodUPI  = "upi"
	MethodBank = "bank"
)

// PayoutDetails stores method-specific payout fields as JSONB:
// upi_id for UPI, or account_number / ifsc / holder_name for bank.
type PayoutDetails map[string]string

func (d PayoutDetails) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	return json.Marshal(d)
}

func (d *PayoutDetails) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into PayoutDetails", value)
	}
	return json.Unmarshal(b, d)
}

type Withdrawal struct {
	ID           int           `json:"id" db:"id"`
	WithdrawalID string        `json:"withdrawal_id" db:"withdrawal_id"`
	UserID       int           `json:"user_id" db:"user_id"`
	Amount       int64         `json:"amount" db:"amount"` // in paise
	Method       string        `json:"method" db:"method"`
	Details      PayoutDetails `json:"details" db:"details"`
	Status       string        `json:"status" db:"status"`
	AdminNote    string        `json:"admin_note,omitempty" db:"admin_note"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	ProcessedAt  *time.Time    `json:"processed_at,omitempty" db:"processed_at"`
}
