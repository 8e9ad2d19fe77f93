package notify

import (
	"context"
	"time"

	"github.com/smilepoint/clinic-server/pkg/logging"
)

// subjects per notification kind; anything unknown falls back to the
// generic line.
var emailSubjects = map[string]string{
	KindClosureTargeted:   "Your appointment was cancelled",
	KindAppointmentBooked: "Appointment request received",
	KindAppointmentStatus: "Appointment update",
}

const defaultSubject = "SmilePoint Dental notification"

// Deliverer polls for undelivered targeted notifications and emails
// them. Rows without a usable address are stamped delivered so they do
// not clog the queue; the in-app feed still shows them.
type Deliverer struct {
	store     *Store
	sender    EmailSender
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

// NewDeliverer constructs a deliverer.
func NewDeliverer(store *Store, sender EmailSender, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		sender:    sender,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

// WithInterval overrides the polling interval.
func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithBatchSize overrides the per-poll batch size.
func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

// Start polls until the context is cancelled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.sender == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	pending, err := d.store.FetchPendingEmails(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("notification fetch failed", "error", err)
		return
	}
	for _, p := range pending {
		if p.Email != "" {
			subject := emailSubjects[p.Kind]
			if subject == "" {
				subject = defaultSubject
			}
			err := d.sender.Send(ctx, EmailMessage{
				To:      p.Email,
				ToName:  p.ToName,
				Subject: subject,
				Body:    p.Message,
			})
			if err != nil {
				d.logger.Error("notification email failed", "error", err, "notification_id", p.ID)
				continue
			}
		}
		if ok, err := d.store.MarkDelivered(ctx, p.ID); err != nil {
			d.logger.Error("failed to mark notification delivered", "error", err, "notification_id", p.ID)
		} else if ok {
			d.logger.Debug("notification delivered", "notification_id", p.ID, "kind", p.Kind)
		}
	}
}
