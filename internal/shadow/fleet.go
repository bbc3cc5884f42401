package shadow

import "sync"

// Fleet is the set of live shadow devices managed by one service instance,
// keyed by thing ID.
type Fleet struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewFleet creates an empty fleet.
func NewFleet() *Fleet {
	return &Fleet{devices: make(map[string]*Device)}
}

// Add registers a device under its thing ID, replacing any previous entry.
func (f *Fleet) Add(dev *Device) {
	f.mu.Lock()
	f.devices[dev.Identity().ThingID] = dev
	f.mu.Unlock()
}

// Device returns the device for a thing ID.
func (f *Fleet) Device(thingID string) (*Device, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	dev, ok := f.devices[thingID]
	return dev, ok
}

// All returns a snapshot of every device in the fleet.
func (f *Fleet) All() []*Device {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Device, 0, len(f.devices))
	for _, dev := range f.devices {
		out = append(out, dev)
	}
	return out
}

// Len returns the number of devices in the fleet.
func (f *Fleet) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.devices)
}

// ResyncAll triggers a fresh snapshot handshake on every device. Called
// after a transport reconnect, when responses may have been missed.
func (f *Fleet) ResyncAll() {
	for _, dev := range f.All() {
		dev.Resync()
	}
}

// Close shuts down every device's update worker.
func (f *Fleet) Close() {
	for _, dev := range f.All() {
		dev.Close()
	}
}
