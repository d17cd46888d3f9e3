package presenter

import (
	"fmt"

	"github.com/coreybb/qcdash/models"
)

// ValidationError reports a record the presenter cannot render.
type ValidationError struct {
	ID      models.DeliveryID
	Field   string
	Problem string
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid delivery record: %s %s", e.Field, e.Problem)
	}
	return fmt.Sprintf("invalid delivery record %s: %s %s", e.ID, e.Field, e.Problem)
}
