package main

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/virtual-waiting-room/internal/adapters/rabbit"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
)

type completer interface {
	Complete(ctx context.Context, id string) error
}

type completionMessage struct {
	ReservationID string `json:"reservationId"`
}

// completionHandler ends reservation sessions reported done by the booking
// collaborator. Unknown or already expired reservations are acked.
func completionHandler(h completer, logger observability.Logger) rabbit.Handler {
	return func(ctx context.Context, body []byte) error {
		var msg completionMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return rabbit.Permanent(errors.Wrap(err, "decode completion message"))
		}

		err := h.Complete(ctx, msg.ReservationID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrReservationNotFound):
			logger.WithField("reservation_id", msg.ReservationID).Debug("completion for unknown reservation")
			return nil
		case errors.Is(err, domain.ErrInvalidInput):
			return rabbit.Permanent(err)
		default:
			return err
		}
	}
}
