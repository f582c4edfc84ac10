package masterdata

import (
	"context"
	"errors"
	"time"
)

// Device represents a registered pump controller.
type Device struct {
	ID        string
	Site      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks device invariants.
func (d Device) Validate() error {
	if d.ID == "" {
		return errors.New("device: empty id")
	}
	return nil
}

// DeviceRepository manages device persistence.
type DeviceRepository interface {
	Get(ctx context.Context, id string) (*Device, error)
	List(ctx context.Context) ([]Device, error)
	Save(ctx context.Context, device *Device) error
}
