package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []EmailMessage
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestDrainSendsAndMarksDelivered(t *testing.T) {
	mock, store := newMockStore(t)
	sender := &recordingSender{}
	d := NewDeliverer(store, sender, nil).WithBatchSize(10)

	withEmail := uuid.New()
	withoutEmail := uuid.New()
	mock.ExpectQuery("FROM notifications n").WithArgs(int32(10)).WillReturnRows(
		pgxmock.NewRows([]string{"id", "kind", "message", "email", "name"}).
			AddRow(withEmail, KindClosureTargeted, "Your appointment was cancelled.", "ana@example.com", "Ana Reyes").
			AddRow(withoutEmail, KindAppointmentStatus, "Your appointment was approved.", "", ""))
	mock.ExpectExec("UPDATE notifications").WithArgs(withEmail).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE notifications").WithArgs(withoutEmail).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	d.drain(context.Background())

	require.Len(t, sender.sent, 1, "only the addressed row should produce an email")
	assert.Equal(t, "ana@example.com", sender.sent[0].To)
	assert.Equal(t, "Your appointment was cancelled", sender.sent[0].Subject)
	assert.Equal(t, "Your appointment was cancelled.", sender.sent[0].Body)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainKeepsRowPendingOnSendFailure(t *testing.T) {
	mock, store := newMockStore(t)
	sender := &recordingSender{err: errors.New("smtp down")}
	d := NewDeliverer(store, sender, nil).WithBatchSize(10)

	mock.ExpectQuery("FROM notifications n").WithArgs(int32(10)).WillReturnRows(
		pgxmock.NewRows([]string{"id", "kind", "message", "email", "name"}).
			AddRow(uuid.New(), KindClosureTargeted, "Your appointment was cancelled.", "ana@example.com", "Ana Reyes"))

	d.drain(context.Background())

	assert.Empty(t, sender.sent)
	require.NoError(t, mock.ExpectationsWereMet(), "no delivery mark expected after a failed send")
}
