package models

import (
	"time"

	"cloudrent/api/internal/utils"
)

// RentalType selects the billing unit for a booking.
type RentalType string

const (
	RentalHourly  RentalType = "hourly"
	RentalDaily   RentalType = "daily"
	RentalWeekly  RentalType = "weekly"
	RentalMonthly RentalType = "monthly"
)

// RentalStatus is the lifecycle state of a rental.
type RentalStatus string

const (
	RentalPending   RentalStatus = "pending"
	RentalActive    RentalStatus = "active"
	RentalCompleted RentalStatus = "completed"
	RentalCancelled RentalStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible from s.
func (s RentalStatus) IsTerminal() bool {
	return s == RentalCompleted || s == RentalCancelled
}

// PaymentInfo is the payment stub attached to a rental. There is no real
// payment gateway; rentals are stamped paid when they go active.
type PaymentInfo struct {
	Method        string     `bson:"method" json:"method"`
	TransactionID string     `bson:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	IsPaid        bool       `bson:"is_paid" json:"is_paid"`
	PaidAt        *time.Time `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
}

// AccessDetails holds the credentials the owner hands over for the rented
// machine. PasswordEnc is AES-GCM ciphertext and is never serialized to JSON.
type AccessDetails struct {
	IPAddress   string `bson:"ip_address" json:"ip_address"`
	Username    string `bson:"username" json:"username"`
	PasswordEnc string `bson:"password_enc,omitempty" json:"-"`
	AccessURL   string `bson:"access_url,omitempty" json:"access_url,omitempty"`
}

// Rental is a booking of a computer for a time window.
type Rental struct {
	Base          `bson:",inline"`
	ComputerID    utils.SixID    `bson:"computer_id" json:"computer_id"`
	RenterID      utils.SixID    `bson:"renter_id" json:"renter_id"`
	OwnerID       utils.SixID    `bson:"owner_id" json:"owner_id"`
	StartDate     time.Time      `bson:"start_date" json:"start_date"`
	EndDate       time.Time      `bson:"end_date" json:"end_date"`
	RentalType    RentalType     `bson:"rental_type" json:"rental_type"`
	TotalPrice    float64        `bson:"total_price" json:"total_price"`
	Status        RentalStatus   `bson:"status" json:"status"`
	PaymentInfo   PaymentInfo    `bson:"payment_info" json:"payment_info"`
	AccessDetails *AccessDetails `bson:"access_details,omitempty" json:"access_details,omitempty"`
	CreatedAt     time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `bson:"updated_at" json:"updated_at"`
}
