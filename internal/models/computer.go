package models

import (
	"time"

	"cloudrent/api/internal/utils"
)

// AvailabilityStatus describes whether a computer can currently be booked.
type AvailabilityStatus string

const (
	StatusAvailable   AvailabilityStatus = "available"
	StatusRented      AvailabilityStatus = "rented"
	StatusMaintenance AvailabilityStatus = "maintenance"
	StatusOffline     AvailabilityStatus = "offline"
)

// Specs holds the hardware description of a listed machine.
type Specs struct {
	CPU     string `bson:"cpu" json:"cpu"`
	GPU     string `bson:"gpu" json:"gpu"`
	RAM     string `bson:"ram" json:"ram"`
	Storage string `bson:"storage" json:"storage"`
	OS      string `bson:"os" json:"os"`
}

// PriceTiers holds the per-unit rates. A zero value means the tier is not offered.
type PriceTiers struct {
	Hourly  float64 `bson:"hourly" json:"hourly"`
	Daily   float64 `bson:"daily" json:"daily"`
	Weekly  float64 `bson:"weekly" json:"weekly"`
	Monthly float64 `bson:"monthly" json:"monthly"`
}

// Tier returns the rate for the given rental type and whether that tier is offered.
func (p PriceTiers) Tier(rt RentalType) (float64, bool) {
	var v float64
	switch rt {
	case RentalHourly:
		v = p.Hourly
	case RentalDaily:
		v = p.Daily
	case RentalWeekly:
		v = p.Weekly
	case RentalMonthly:
		v = p.Monthly
	default:
		return 0, false
	}
	return v, v > 0
}

// MaintenanceWindow is an owner-declared downtime period.
type MaintenanceWindow struct {
	StartDate time.Time `bson:"start_date" json:"start_date"`
	EndDate   time.Time `bson:"end_date" json:"end_date"`
	Reason    string    `bson:"reason,omitempty" json:"reason,omitempty"`
}

// ActivePeriod records a window during which the computer was (or is) rented out.
type ActivePeriod struct {
	RentalID  utils.SixID `bson:"rental_id" json:"rental_id"`
	StartDate time.Time   `bson:"start_date" json:"start_date"`
	EndDate   time.Time   `bson:"end_date" json:"end_date"`
}

// Availability is the booking state of a computer. Status is the single
// source of truth for "can this machine be rented right now".
type Availability struct {
	Status             AvailabilityStatus  `bson:"status" json:"status"`
	MaintenanceWindows []MaintenanceWindow `bson:"maintenance_windows" json:"maintenance_windows"`
	ActivePeriods      []ActivePeriod      `bson:"active_periods" json:"active_periods"`
}

// Review is an append-only buyer review of a computer.
type Review struct {
	UserID    utils.SixID `bson:"user_id" json:"user_id"`
	Rating    int         `bson:"rating" json:"rating"` // 1..5
	Comment   string      `bson:"comment" json:"comment"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}

// Computer represents a rentable machine listing.
type Computer struct {
	Base          `bson:",inline"`
	OwnerID       utils.SixID  `bson:"owner_id" json:"owner_id"`
	Title         string       `bson:"title" json:"title"`
	Description   string       `bson:"description" json:"description"`
	Specs         Specs        `bson:"specs" json:"specs"`
	Location      string       `bson:"location" json:"location"`
	Price         PriceTiers   `bson:"price" json:"price"`
	Availability  Availability `bson:"availability" json:"availability"`
	Photos        []string     `bson:"photos" json:"photos"` // S3 keys
	Reviews       []Review     `bson:"reviews" json:"reviews"`
	AverageRating float64      `bson:"average_rating" json:"average_rating"`
	CreatedAt     time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `bson:"updated_at" json:"updated_at"`
}
