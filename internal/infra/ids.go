package infra

import (
	"github.com/google/uuid"

	"vidar/internal/domain"
)

// NewOrderID mints a fresh order id for callers that do not bring their own.
func NewOrderID() domain.OrderID {
	return domain.OrderID(uuid.NewString())
}
