// Package appointments implements capacity-checked booking and the
// appointment lifecycle (approve, reject, cancel).
package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smilepoint/clinic-server/internal/catalog"
	"github.com/smilepoint/clinic-server/internal/clinicsettings"
	"github.com/smilepoint/clinic-server/internal/observability/metrics"
	"github.com/smilepoint/clinic-server/internal/patients"
	"github.com/smilepoint/clinic-server/internal/schedule"
	"github.com/smilepoint/clinic-server/pkg/logging"
)

var appointmentsTracer trace.Tracer = otel.Tracer("clinic.internal.appointments")

const dateLayout = "2006-01-02"

// referenceAttempts bounds reference-code regeneration on collision.
const referenceAttempts = 3

// Notifier records appointment events for asynchronous delivery. Tx
// methods take a Querier so the write shares the caller's transaction;
// a pool also satisfies Querier for non-transactional paths.
type Notifier interface {
	AppointmentBookedTx(ctx context.Context, q Querier, a *Appointment) error
	AppointmentStatusTx(ctx context.Context, q Querier, a *Appointment, message string) error
}

// Service runs booking and lifecycle transitions.
type Service struct {
	repo     *Repository
	patients *patients.Repository
	catalog  *catalog.Repository
	settings *clinicsettings.Store
	notifier Notifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewService constructs the appointments service.
func NewService(
	repo *Repository,
	patientRepo *patients.Repository,
	catalogRepo *catalog.Repository,
	settings *clinicsettings.Store,
	notifier Notifier,
	bookingMetrics *metrics.BookingMetrics,
	logger *logging.Logger,
) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		patients: patientRepo,
		catalog:  catalogRepo,
		settings: settings,
		notifier: notifier,
		metrics:  bookingMetrics,
		logger:   logger,
		now:      time.Now,
	}
}

// BookingRequest is one booking attempt from an authenticated user.
type BookingRequest struct {
	UserID        string
	Date          string
	Start         string
	ServiceID     string
	PaymentMethod string
	PatientHMOID  *string
	Notes         string
}

// Book validates and persists one appointment. Validation is fail-fast:
// service, date window, day open, grid, hours, capacity, patient
// identity, then HMO coverage. Capacity is decided and the row inserted
// under the per-date lock, so two racing requests for the last opening
// serialize and the loser is refused.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.date", req.Date),
		attribute.String("clinic.service_id", req.ServiceID),
	)

	appt, err := s.book(ctx, req)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			s.metrics.ObserveBooking(string(rej.Reason))
			s.logger.Info("booking refused",
				"reason", rej.Reason, "date", req.Date, "start", req.Start)
		} else {
			span.RecordError(err)
			s.metrics.ObserveBooking("error")
		}
		return nil, err
	}

	s.metrics.ObserveBooking("created")
	s.logger.Info("appointment booked",
		"reference_code", appt.ReferenceCode, "date", appt.DateString(), "time_slot", appt.TimeSlot)
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	switch req.PaymentMethod {
	case PaymentCash, PaymentMaya, PaymentHMO:
	default:
		return nil, reject(ReasonBadRequest, "unknown payment method %q", req.PaymentMethod)
	}

	service, err := s.catalog.GetByID(ctx, req.ServiceID)
	if errors.Is(err, catalog.ErrServiceNotFound) {
		return nil, reject(ReasonBadRequest, "unknown service")
	}
	if err != nil {
		return nil, err
	}
	if !service.Active {
		return nil, reject(ReasonBadRequest, "service is not bookable")
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, reject(ReasonBadRequest, "invalid date %q, want YYYY-MM-DD", req.Date)
	}
	startMin, err := schedule.ParseClock(req.Start)
	if err != nil {
		return nil, reject(ReasonBadRequest, "invalid start time %q", req.Start)
	}

	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	today := settings.Today(s.now())
	earliest := today.AddDate(0, 0, 1)
	latest := today.AddDate(0, 0, settings.BookingWindowDays)
	if date.Before(earliest) || date.After(latest) {
		return nil, reject(ReasonOutsideWindow, "bookings are accepted from %s to %s",
			earliest.Format(dateLayout), latest.Format(dateLayout))
	}

	tx, err := s.repo.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := schedule.LockDateTx(ctx, tx, date); err != nil {
		return nil, err
	}

	resolveStart := s.now()
	day, err := schedule.ResolveDayTx(ctx, tx, date)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveResolveLatency(time.Since(resolveStart).Seconds())

	if !day.IsOpen {
		return nil, reject(ReasonDayClosed, "clinic is closed on %s", req.Date)
	}

	grid := day.Grid()
	if !schedule.OnGrid(grid, startMin) {
		return nil, reject(ReasonOffGrid, "start time %s is not a bookable slot", req.Start)
	}

	blocks := schedule.BlocksNeeded(service.EstimatedMinutes)
	endMin := startMin + blocks*schedule.SlotMinutes
	if endMin > day.CloseTime {
		return nil, reject(ReasonOutsideHours, "%s needs %d minutes and would run past closing",
			service.Name, service.EstimatedMinutes)
	}

	booked, err := schedule.ListBookedSlotsTx(ctx, tx, date)
	if err != nil {
		return nil, err
	}
	usage := schedule.AccumulateUsage(booked, s.logger)
	result := schedule.CheckCapacity(startMin, blocks, usage, grid, day.EffectiveCapacity)
	if !result.OK {
		s.metrics.ObserveCapacityConflict()
		return nil, &RejectionError{
			Reason:  ReasonCapacityFull,
			Message: fmt.Sprintf("no dentist is free at %s", schedule.FormatClock(result.FullAt)),
			FullAt:  schedule.FormatClock(result.FullAt),
		}
	}

	patient, err := s.patients.PatientForUser(ctx, req.UserID)
	if errors.Is(err, patients.ErrNoLinkedPatient) {
		return nil, reject(ReasonNoLinkedPatient, "no patient record is linked to this account")
	}
	if err != nil {
		return nil, err
	}

	hmoID, err := s.validateHMO(ctx, req, patient.ID, date)
	if err != nil {
		return nil, err
	}

	paymentStatus := PaymentStatusUnpaid
	if req.PaymentMethod == PaymentMaya {
		paymentStatus = PaymentStatusAwaiting
	}

	appt := &Appointment{
		ID:            uuid.NewString(),
		PatientID:     patient.ID,
		ServiceID:     service.ID,
		PatientHMOID:  hmoID,
		Date:          date,
		TimeSlot:      schedule.FormatClock(startMin) + "-" + schedule.FormatClock(endMin),
		Status:        StatusPending,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: paymentStatus,
		Notes:         req.Notes,
	}

	if err := s.insertWithReference(ctx, tx, appt); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		if err := s.notifier.AppointmentBookedTx(ctx, tx, appt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit booking tx: %w", err)
	}
	return appt, nil
}

// validateHMO applies the payment-method rules: HMO bookings need an
// enrollment that belongs to the patient and covers the date; any HMO id
// sent with a non-HMO method is silently discarded.
func (s *Service) validateHMO(ctx context.Context, req BookingRequest, patientID string, date time.Time) (*string, error) {
	if req.PaymentMethod != PaymentHMO {
		return nil, nil
	}
	if req.PatientHMOID == nil || *req.PatientHMOID == "" {
		return nil, reject(ReasonHMOInvalid, "hmo payment requires an hmo enrollment")
	}
	hmo, err := s.patients.GetHMO(ctx, *req.PatientHMOID)
	if errors.Is(err, patients.ErrHMONotFound) {
		return nil, reject(ReasonHMOInvalid, "hmo enrollment not found")
	}
	if err != nil {
		return nil, err
	}
	if hmo.PatientID != patientID {
		return nil, reject(ReasonHMOInvalid, "hmo enrollment belongs to another patient")
	}
	if !hmo.CoversDate(date) {
		return nil, reject(ReasonHMOInvalid, "hmo enrollment is not valid on %s", date.Format(dateLayout))
	}
	return &hmo.ID, nil
}

// insertWithReference generates a booking reference and inserts the row,
// retrying on the rare collision.
func (s *Service) insertWithReference(ctx context.Context, q Querier, appt *Appointment) error {
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		code, err := newReferenceCode()
		if err != nil {
			return err
		}
		exists, err := referenceExistsTx(ctx, q, code)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		appt.ReferenceCode = code
		// A duplicate-key failure aborts the surrounding transaction, so
		// each attempt runs under a savepoint the collision can roll back
		// to without losing the capacity check already done in this tx.
		if _, err := q.Exec(ctx, `SAVEPOINT insert_reference`); err != nil {
			return fmt.Errorf("appointments: savepoint: %w", err)
		}
		err = insertTx(ctx, q, appt)
		if errors.Is(err, errReferenceCollision) {
			if _, err := q.Exec(ctx, `ROLLBACK TO SAVEPOINT insert_reference`); err != nil {
				return fmt.Errorf("appointments: rollback to savepoint: %w", err)
			}
			continue
		}
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx, `RELEASE SAVEPOINT insert_reference`); err != nil {
			return fmt.Errorf("appointments: release savepoint: %w", err)
		}
		return nil
	}
	return fmt.Errorf("appointments: could not allocate a unique reference code after %d attempts", referenceAttempts)
}

// AvailableSlots lists the start times still bookable for a service on a
// date. A closed day yields an empty list, not an error.
func (s *Service) AvailableSlots(ctx context.Context, dateStr, serviceID string) ([]string, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.slots")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.date", dateStr))

	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return nil, reject(ReasonBadRequest, "invalid date %q, want YYYY-MM-DD", dateStr)
	}
	service, err := s.catalog.GetByID(ctx, serviceID)
	if errors.Is(err, catalog.ErrServiceNotFound) {
		return nil, reject(ReasonBadRequest, "unknown service")
	}
	if err != nil {
		return nil, err
	}

	day, err := schedule.ResolveDayTx(ctx, s.repo.db, date)
	if err != nil {
		return nil, err
	}
	if !day.IsOpen || day.EffectiveCapacity == 0 {
		return []string{}, nil
	}

	booked, err := schedule.ListBookedSlotsTx(ctx, s.repo.db, date)
	if err != nil {
		return nil, err
	}
	usage := schedule.AccumulateUsage(booked, s.logger)
	grid := day.Grid()
	blocks := schedule.BlocksNeeded(service.EstimatedMinutes)

	slots := []string{}
	for _, start := range grid {
		if start+blocks*schedule.SlotMinutes > day.CloseTime {
			break
		}
		if schedule.CheckCapacity(start, blocks, usage, grid, day.EffectiveCapacity).OK {
			slots = append(slots, schedule.FormatClock(start))
		}
	}
	return slots, nil
}

// Approve moves a pending appointment to approved after re-checking that
// the day still has room for it. The re-check runs under the same
// per-date lock as booking, excluding the appointment's own slot, so an
// approval can never overcommit a day whose capacity was lowered.
func (s *Service) Approve(ctx context.Context, id string) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.approve")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", id))

	// Read the date outside the lock so the lock is always taken before
	// the row lock, matching the booking path's ordering.
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := s.repo.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin approve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := schedule.LockDateTx(ctx, tx, existing.Date); err != nil {
		return nil, err
	}
	appt, err := getByID(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusPending {
		return nil, reject(ReasonAlreadyProcessed, "appointment %s was already processed", appt.ReferenceCode)
	}

	day, err := schedule.ResolveDayTx(ctx, tx, appt.Date)
	if err != nil {
		return nil, err
	}
	if !day.IsOpen {
		return nil, reject(ReasonConflict, "clinic is now closed on %s", appt.DateString())
	}

	slot, err := schedule.ParseTimeSlot(appt.TimeSlot)
	if err != nil {
		return nil, fmt.Errorf("appointments: approve %s: %w", id, err)
	}
	blocks := (slot.End - slot.Start) / schedule.SlotMinutes
	if blocks < 1 {
		blocks = 1
	}

	others, err := listOtherBookedSlotsTx(ctx, tx, appt.Date, appt.ID)
	if err != nil {
		return nil, err
	}
	usage := schedule.AccumulateUsage(others, s.logger)
	result := schedule.CheckCapacity(slot.Start, blocks, usage, day.Grid(), day.EffectiveCapacity)
	if !result.OK {
		s.metrics.ObserveCapacityConflict()
		return nil, &RejectionError{
			Reason:  ReasonConflict,
			Message: fmt.Sprintf("day no longer has room at %s", schedule.FormatClock(result.FullAt)),
			FullAt:  schedule.FormatClock(result.FullAt),
		}
	}

	ct, err := tx.Exec(ctx, `UPDATE appointments SET status = 'approved' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return nil, fmt.Errorf("appointments: approve: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, reject(ReasonAlreadyProcessed, "appointment %s was already processed", appt.ReferenceCode)
	}
	appt.Status = StatusApproved

	if s.notifier != nil {
		msg := fmt.Sprintf("Your appointment %s on %s at %s is confirmed.",
			appt.ReferenceCode, appt.DateString(), appt.TimeSlot)
		if err := s.notifier.AppointmentStatusTx(ctx, tx, appt, msg); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit approve tx: %w", err)
	}
	s.logger.Info("appointment approved", "reference_code", appt.ReferenceCode, "date", appt.DateString())
	return appt, nil
}

// listOtherBookedSlotsTx returns the pending/approved slots for a date
// excluding one appointment, for the approval re-check.
func listOtherBookedSlotsTx(ctx context.Context, q Querier, date time.Time, excludeID string) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT time_slot FROM appointments
		WHERE date = $1 AND status IN ('pending', 'approved') AND id <> $2
	`, date, excludeID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list booked slots: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("appointments: scan slot: %w", err)
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

// Reject refuses a pending appointment with a staff-supplied reason.
func (s *Service) Reject(ctx context.Context, id, reason string) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.reject")
	defer span.End()

	if reason == "" {
		reason = "Rejected by clinic staff"
	}
	if err := s.repo.RejectPending(ctx, id, reason); err != nil {
		return nil, err
	}
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		msg := fmt.Sprintf("Your appointment %s on %s was declined: %s",
			appt.ReferenceCode, appt.DateString(), reason)
		if err := s.notifier.AppointmentStatusTx(ctx, s.repo.db, appt, msg); err != nil {
			s.logger.Error("queue rejection notice", "error", err, "appointment_id", id)
		}
	}
	s.logger.Info("appointment rejected", "reference_code", appt.ReferenceCode, "reason", reason)
	return appt, nil
}

// Cancel lets the owning patient withdraw a pending appointment.
func (s *Service) Cancel(ctx context.Context, id, userID string) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.cancel")
	defer span.End()

	if err := s.repo.CancelPending(ctx, id, userID, s.now()); err != nil {
		return nil, err
	}
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment cancelled", "reference_code", appt.ReferenceCode)
	return appt, nil
}

// ListMine returns the caller's appointments.
func (s *Service) ListMine(ctx context.Context, userID string) ([]Appointment, error) {
	return s.repo.ListForUser(ctx, userID)
}
