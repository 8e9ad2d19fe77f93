package appointments

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Appointment statuses. Only pending appointments may transition; see
// the service methods for the allowed moves.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Payment methods accepted at booking time.
const (
	PaymentCash = "cash"
	PaymentMaya = "maya"
	PaymentHMO  = "hmo"
)

// Payment statuses assigned at creation.
const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusAwaiting = "awaiting_payment"
)

// Appointment is one booking row. TimeSlot keeps the stored
// "HH:MM-HH:MM" encoding; parsing happens at the boundary.
type Appointment struct {
	ID            string     `json:"id"`
	PatientID     string     `json:"patient_id"`
	ServiceID     string     `json:"service_id"`
	PatientHMOID  *string    `json:"patient_hmo_id"`
	Date          time.Time  `json:"-"`
	TimeSlot      string     `json:"time_slot"`
	ReferenceCode string     `json:"reference_code"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method"`
	PaymentStatus string     `json:"payment_status"`
	Notes         string     `json:"notes"`
	RemindedAt    *time.Time `json:"reminded_at"`
	CanceledAt    *time.Time `json:"canceled_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DateString renders the appointment date for JSON payloads.
func (a Appointment) DateString() string {
	return a.Date.Format("2006-01-02")
}

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newReferenceCode generates an 8-character uppercase alphanumeric
// booking reference. Uniqueness is enforced by the database; the service
// retries on collision.
func newReferenceCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("appointments: generate reference code: %w", err)
	}
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return string(buf), nil
}
