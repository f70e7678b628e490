package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/example/trafficgen/internal/catalog"
)

// Device is the device class a session presents as.
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
)

// Plan is a fully resolved session: everything the executor needs to replay
// one visitor, with no randomness left.
type Plan struct {
	// ID uniquely identifies the session.
	ID uuid.UUID

	// Source is the traffic origin the session arrives from.
	Source catalog.Source

	// Device is the session's device class.
	Device Device

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// ReferrerURL is the Referer header for the first page. Empty for
	// direct traffic.
	ReferrerURL string

	// Pages are the URLs visited, in order. The first entry is always a
	// configured target URL.
	Pages []string

	// DwellTimes holds the simulated per-page reading pause. Same length
	// as Pages; the last entry is not waited out.
	DwellTimes []time.Duration

	// IsBounce reports whether the session views exactly one page.
	IsBounce bool

	// Country is the session's geo tag. Empty when geo targeting is off.
	Country string

	// CreatedAt is when the plan was synthesized.
	CreatedAt time.Time
}

// PageCount returns the number of pages the session visits.
func (p *Plan) PageCount() int {
	return len(p.Pages)
}
