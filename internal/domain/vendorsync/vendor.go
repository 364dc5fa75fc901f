package vendorsync

import (
	"slices"
	"time"
)

// Cadence is a periodic schedule a vendor can be synced on
type Cadence string

const (
	CadenceHourly Cadence = "hourly"
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

// IsValid checks if the cadence is valid
func (c Cadence) IsValid() bool {
	switch c {
	case CadenceHourly, CadenceDaily, CadenceWeekly:
		return true
	}
	return false
}

// Vendor is an external system the engine synchronizes with
type Vendor struct {
	ID            string
	Name          string
	Active        bool
	AdapterConfig AdapterConfig
	// Cadences limits periodic syncs; empty means every cadence
	Cadences  []Cadence
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyncsOn reports whether periodic ticks of cadence c include this vendor
func (v *Vendor) SyncsOn(c Cadence) bool {
	if !v.Active {
		return false
	}
	return len(v.Cadences) == 0 || slices.Contains(v.Cadences, c)
}
