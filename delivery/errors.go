package delivery

import (
	"fmt"

	"github.com/coreybb/qcdash/models"
)

// RefusedError reports a command that was not sent because the row's
// action is disabled.
type RefusedError struct {
	Action   string
	ID       models.DeliveryID
	Filename string
	Reason   string
}

func (e *RefusedError) Error() string {
	switch {
	case e.Filename != "":
		return fmt.Sprintf("cannot %s delivery %s: %s", e.Action, e.Filename, e.Reason)
	case e.ID != "":
		return fmt.Sprintf("cannot %s delivery %s: %s", e.Action, e.ID, e.Reason)
	default:
		return fmt.Sprintf("cannot %s: %s", e.Action, e.Reason)
	}
}

// UnknownDeliveryError is returned when a command names a delivery that
// neither a held table nor the QC server knows.
type UnknownDeliveryError struct {
	ID models.DeliveryID
}

func (e *UnknownDeliveryError) Error() string {
	return fmt.Sprintf("delivery %s does not exist", e.ID)
}
