package thing

import "time"

// Thing is one registered shadow-backed device.
type Thing struct {
	// ID is the unique identifier naming the device's shadow topics.
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Address is the transport-level address of the physical device,
	// opaque to Shadow Core.
	Address string `json:"address"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
