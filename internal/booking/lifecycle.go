package booking

import (
	"context"
	"fmt"

	"github.com/Ilyushechek/secretar/internal/events"
	"github.com/Ilyushechek/secretar/internal/model"
)

// CompletionReport carries the provider's answers about a finished service.
type CompletionReport struct {
	RecordID        int64
	ProviderID      int64
	DurationMinutes int
	WentWell        bool
	Notes           string
}

// Complete marks an active record completed and queues the client's notice.
// The store guard re-checks ownership and status; a record resolved in the
// meantime surfaces as storage.ErrStaleRecord with nothing changed.
func (w *Workflow) Complete(ctx context.Context, rep CompletionReport) (*model.ServiceRecord, error) {
	if err := w.store.CompleteRecord(ctx, rep.RecordID, rep.ProviderID, rep.DurationMinutes, rep.WentWell, rep.Notes); err != nil {
		return nil, err
	}
	rec, err := w.store.GetRecord(ctx, rep.RecordID)
	if err != nil {
		return nil, fmt.Errorf("load completed record: %w", err)
	}

	status := "завершена ⚠️"
	if rep.WentWell {
		status = "успешно завершена ✅"
	}
	text := fmt.Sprintf("🔔 Ваша запись '%s' %s.\nДлительность: %d мин\nКомментарии: %s",
		rec.ServiceName, status, rep.DurationMinutes, rep.Notes)
	if err := w.queue.Enqueue(ctx, rec.ClientID, model.RoleClient, text); err != nil {
		w.logger.Error().Err(err).Int64("record_id", rec.ID).Msg("enqueue completion notification")
	}

	w.bus.Publish(events.Event{Type: events.BookingCompleted, ActorID: rep.ProviderID, SubjectID: rec.ID})
	w.logger.Info().Int64("record_id", rec.ID).Bool("went_well", rep.WentWell).Msg("record completed")
	return rec, nil
}

// Cancel voids an active record and queues the client's notice, same guard
// as Complete.
func (w *Workflow) Cancel(ctx context.Context, recordID, providerID int64) (*model.ServiceRecord, error) {
	if err := w.store.CancelRecord(ctx, recordID, providerID); err != nil {
		return nil, err
	}
	rec, err := w.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("load cancelled record: %w", err)
	}

	text := fmt.Sprintf("❌ Мастер отменил запись '%s' на %s %s.",
		rec.ServiceName, rec.DateLabel(), rec.Time)
	if err := w.queue.Enqueue(ctx, rec.ClientID, model.RoleClient, text); err != nil {
		w.logger.Error().Err(err).Int64("record_id", rec.ID).Msg("enqueue cancellation notification")
	}

	w.bus.Publish(events.Event{Type: events.BookingCancelled, ActorID: providerID, SubjectID: rec.ID})
	w.logger.Info().Int64("record_id", rec.ID).Msg("record cancelled")
	return rec, nil
}

// ActiveRecords lists the provider's active records in picker order.
func (w *Workflow) ActiveRecords(ctx context.Context, providerID int64) ([]model.ServiceRecord, error) {
	return w.store.ActiveRecordsForProvider(ctx, providerID)
}
