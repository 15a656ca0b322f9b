package workflow

import (
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PresenceDecision string

const (
	// PresenceNewEntry: first sighting of the tag, recorded as "in".
	PresenceNewEntry PresenceDecision = "new_entry"
	// PresenceSuppressed: inside the cooldown window, nothing recorded.
	PresenceSuppressed PresenceDecision = "suppressed"
	// PresenceStateChanged: window elapsed, state toggled.
	PresenceStateChanged PresenceDecision = "state_changed"
)

// Changed reports whether the decision wrote a new presence row.
func (d PresenceDecision) Changed() bool {
	return d == PresenceNewEntry || d == PresenceStateChanged
}

// DecidePresence is the per-tag in/out machine. A read less than cooldown after
// the last recorded one is noise from the same pass; after that the tag is
// assumed to have crossed the boundary and the state flips.
func DecidePresence(last *models.PresenceState, now time.Time, cooldown time.Duration) (models.PresenceStatus, PresenceDecision) {
	if last == nil {
		return models.PresenceStatusIn, PresenceNewEntry
	}
	if now.Sub(last.SeenAt) < cooldown {
		return last.Status, PresenceSuppressed
	}
	return last.Status.Opposite(), PresenceStateChanged
}

// PresenceObservation is what a scan tells the tracker about a tag.
type PresenceObservation struct {
	TagCode             string
	PurchaseOrderNumber string
	ItemNumber          string
	Quantity            decimal.Decimal
	UserId              int
	LocationName        string
}

type PresenceResult struct {
	// State is the authoritative row after the scan: the new row, or the
	// previous one when suppressed.
	State    models.PresenceState
	Decision PresenceDecision
}

// TrackPresence applies one observation. The caller must hold the tag's
// presence lock so two late scans cannot both see an expired window.
func TrackPresence(tx *gorm.DB, obs PresenceObservation, now time.Time, cooldown time.Duration) (*PresenceResult, error) {
	last, err := models.GetLatestPresenceState(tx, obs.TagCode)
	if err != nil {
		return nil, err
	}
	status, decision := DecidePresence(last, now, cooldown)
	if decision == PresenceSuppressed {
		return &PresenceResult{State: *last, Decision: decision}, nil
	}

	state := models.PresenceState{
		TagCode:             obs.TagCode,
		Status:              status,
		PurchaseOrderNumber: obs.PurchaseOrderNumber,
		ItemNumber:          obs.ItemNumber,
		Quantity:            obs.Quantity,
		UserId:              obs.UserId,
		LocationName:        obs.LocationName,
		SeenAt:              now,
	}
	if err := tx.Create(&state).Error; err != nil {
		return nil, err
	}
	return &PresenceResult{State: state, Decision: decision}, nil
}
