package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cloudrent/api/internal/config"
	"cloudrent/api/internal/crypto"
	"cloudrent/api/internal/db"
	"cloudrent/api/internal/models"
	"cloudrent/api/internal/utils"
)

// IRentalService defines the interface for rental lifecycle operations.
type IRentalService interface {
	CreateRental(ctx context.Context, computerID, renterID utils.SixID, startDate, endDate time.Time, rentalType models.RentalType) (*models.Rental, error)
	UpdateStatus(ctx context.Context, rentalID, actorID utils.SixID, target models.RentalStatus) (*models.Rental, error)
	SetAccessDetails(ctx context.Context, rentalID, actorID utils.SixID, details models.AccessDetails) (*models.Rental, error)
	FindRentalByID(ctx context.Context, rentalID, actorID utils.SixID) (*models.Rental, error)
	ListRentalsByActor(ctx context.Context, actorID utils.SixID) ([]models.Rental, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

const rentalsCollection = "rentals"

// allowedTransitions is the explicit rental state machine. Anything not
// listed here is rejected before permissions are even considered.
var allowedTransitions = map[models.RentalStatus][]models.RentalStatus{
	models.RentalPending: {models.RentalActive, models.RentalCancelled},
	models.RentalActive:  {models.RentalCompleted, models.RentalCancelled},
}

func transitionAllowed(from, to models.RentalStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// rentalService implements IRentalService.
type rentalService struct {
	db     *mongo.Database
	cfg    *config.Config
	cipher *crypto.FieldCipher
}

// NewRentalService creates a new RentalService.
func NewRentalService(db *mongo.Database, cfg *config.Config, cipher *crypto.FieldCipher) IRentalService {
	return &rentalService{db: db, cfg: cfg, cipher: cipher}
}

// unitDuration returns the billing unit for a rental type. Monthly is a
// fixed 30 days, weekly a fixed 7; there is no calendar-month billing.
func unitDuration(rt models.RentalType) (time.Duration, error) {
	switch rt {
	case models.RentalHourly:
		return time.Hour, nil
	case models.RentalDaily:
		return 24 * time.Hour, nil
	case models.RentalWeekly:
		return 7 * 24 * time.Hour, nil
	case models.RentalMonthly:
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: unknown rental type %q", ErrInvalidInput, rt)
	}
}

// QuotePrice computes tier * ceil(duration / unit) for the given window.
func QuotePrice(tier float64, startDate, endDate time.Time, rentalType models.RentalType) (float64, error) {
	unit, err := unitDuration(rentalType)
	if err != nil {
		return 0, err
	}
	if !endDate.After(startDate) {
		return 0, fmt.Errorf("%w: end date must be after start date", ErrInvalidInput)
	}

	units := math.Ceil(float64(endDate.Sub(startDate)) / float64(unit))
	total := tier * units
	if math.IsNaN(total) || total <= 0 {
		return 0, fmt.Errorf("%w: computed price is not positive", ErrInvalidInput)
	}
	return total, nil
}

// CreateRental books a computer for the given window.
//
// The availability check and flip are a single conditional FindOneAndUpdate
// on the computer document: only one of any number of concurrent creates can
// move it from "available" to "rented"; the rest get ErrConflict. If the
// subsequent rental insert fails, the flip is rolled back.
func (s *rentalService) CreateRental(ctx context.Context, computerID, renterID utils.SixID, startDate, endDate time.Time, rentalType models.RentalType) (*models.Rental, error) {
	computers := s.db.Collection(computersCollection)

	var computer models.Computer
	err := computers.FindOne(ctx, bson.M{"_id": computerID}).Decode(&computer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: computer %s", ErrNotFound, computerID.String())
		}
		return nil, fmt.Errorf("error finding computer %s: %w", computerID.String(), err)
	}

	if computer.OwnerID == renterID {
		return nil, fmt.Errorf("%w: cannot rent your own computer", ErrForbidden)
	}
	tier, ok := computer.Price.Tier(rentalType)
	if !ok {
		return nil, fmt.Errorf("%w: computer %s has no %s rate", ErrInvalidInput, computerID.String(), rentalType)
	}
	totalPrice, err := QuotePrice(tier, startDate, endDate, rentalType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rentalID := utils.NewSixID()

	// Atomic flip: available -> rented. Exactly one concurrent caller wins.
	flipFilter := bson.M{
		"_id":                 computerID,
		"availability.status": models.StatusAvailable,
	}
	flipUpdate := bson.M{
		"$set": bson.M{
			"availability.status": models.StatusRented,
			"updated_at":          now,
		},
		"$push": bson.M{
			"availability.active_periods": models.ActivePeriod{
				RentalID:  rentalID,
				StartDate: startDate,
				EndDate:   endDate,
			},
		},
	}
	err = computers.FindOneAndUpdate(ctx, flipFilter, flipUpdate).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: computer %s is not available", ErrConflict, computerID.String())
		}
		return nil, fmt.Errorf("db error reserving computer %s: %w", computerID.String(), err)
	}

	// Payment is a stub: rentals go straight to active and are stamped paid.
	paidAt := now
	rental := &models.Rental{
		Base:       models.Base{ID: rentalID},
		ComputerID: computerID,
		RenterID:   renterID,
		OwnerID:    computer.OwnerID,
		StartDate:  startDate,
		EndDate:    endDate,
		RentalType: rentalType,
		TotalPrice: totalPrice,
		Status:     models.RentalActive,
		PaymentInfo: models.PaymentInfo{
			Method:        "stub",
			TransactionID: uuid.NewString(),
			IsPaid:        true,
			PaidAt:        &paidAt,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	operation := func() error {
		// Regenerate on a duplicate-key retry; the active period keeps the
		// original ID but is rewritten below if the ID changed.
		if rental.ID.IsZero() {
			rental.GenID()
		}
		_, insertErr := s.db.Collection(rentalsCollection).InsertOne(ctx, rental)
		if db.IsMongoDuplicateKeyError(insertErr) {
			rental.ID = utils.SixID{}
		}
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		// Roll the reservation back so the machine is not stranded as rented.
		s.releaseComputer(ctx, computerID, rentalID)
		return nil, fmt.Errorf("failed to insert rental for computer %s: %w", computerID.String(), err)
	}

	if rental.ID != rentalID {
		// Insert succeeded on a retry with a fresh ID; fix the active period reference.
		_, fixErr := computers.UpdateOne(ctx,
			bson.M{"_id": computerID, "availability.active_periods.rental_id": rentalID},
			bson.M{"$set": bson.M{"availability.active_periods.$.rental_id": rental.ID}})
		if fixErr != nil {
			log.Printf("WARN: failed to relink active period for computer %s to rental %s: %v",
				computerID.String(), rental.ID.String(), fixErr)
		}
	}

	return rental, nil
}

// releaseComputer sets a computer back to available and closes the active
// period created for the given rental.
func (s *rentalService) releaseComputer(ctx context.Context, computerID, rentalID utils.SixID) {
	update := bson.M{
		"$set": bson.M{
			"availability.status": models.StatusAvailable,
			"updated_at":          time.Now().UTC(),
		},
		"$pull": bson.M{
			"availability.active_periods": bson.M{"rental_id": rentalID},
		},
	}
	if _, err := s.db.Collection(computersCollection).UpdateByID(ctx, computerID, update); err != nil {
		log.Printf("CRITICAL: failed to release computer %s after rental %s: %v",
			computerID.String(), rentalID.String(), err)
	}
}

// UpdateStatus applies a lifecycle transition.
//
// Permissions: cancelled is the renter's move; active and completed are the
// owner's. Transition legality is validated against allowedTransitions
// first, so an authorized actor still cannot jump e.g. completed -> active.
func (s *rentalService) UpdateStatus(ctx context.Context, rentalID, actorID utils.SixID, target models.RentalStatus) (*models.Rental, error) {
	rentals := s.db.Collection(rentalsCollection)

	var rental models.Rental
	err := rentals.FindOne(ctx, bson.M{"_id": rentalID}).Decode(&rental)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: rental %s", ErrNotFound, rentalID.String())
		}
		return nil, fmt.Errorf("error finding rental %s: %w", rentalID.String(), err)
	}

	switch target {
	case models.RentalCancelled:
		if actorID != rental.RenterID {
			return nil, fmt.Errorf("%w: only the renter can cancel", ErrForbidden)
		}
	case models.RentalActive, models.RentalCompleted:
		if actorID != rental.OwnerID {
			return nil, fmt.Errorf("%w: only the owner can set status %s", ErrForbidden, target)
		}
	default:
		return nil, fmt.Errorf("%w: unknown target status %q", ErrInvalidInput, target)
	}

	if !transitionAllowed(rental.Status, target) {
		return nil, fmt.Errorf("%w: cannot transition rental from %s to %s", ErrConflict, rental.Status, target)
	}

	now := time.Now().UTC()
	set := bson.M{"status": target, "updated_at": now}
	if target == models.RentalActive && !rental.PaymentInfo.IsPaid {
		set["payment_info.is_paid"] = true
		set["payment_info.paid_at"] = now
		if rental.PaymentInfo.TransactionID == "" {
			set["payment_info.transaction_id"] = uuid.NewString()
		}
	}

	// Guard on the current status so two racing transitions cannot both apply.
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Rental
	err = rentals.FindOneAndUpdate(ctx,
		bson.M{"_id": rentalID, "status": rental.Status},
		bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: rental %s changed state concurrently", ErrConflict, rentalID.String())
		}
		return nil, fmt.Errorf("failed to update rental %s: %w", rentalID.String(), err)
	}

	// Terminal transitions hand the machine back.
	if target == models.RentalCancelled || target == models.RentalCompleted {
		s.releaseComputer(ctx, rental.ComputerID, rentalID)
	}

	return &updated, nil
}

// SetAccessDetails attaches machine credentials to a rental. Owner only.
// The password is encrypted at rest and stripped from every representation
// returned to clients.
func (s *rentalService) SetAccessDetails(ctx context.Context, rentalID, actorID utils.SixID, details models.AccessDetails) (*models.Rental, error) {
	rentals := s.db.Collection(rentalsCollection)

	var rental models.Rental
	err := rentals.FindOne(ctx, bson.M{"_id": rentalID}).Decode(&rental)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: rental %s", ErrNotFound, rentalID.String())
		}
		return nil, fmt.Errorf("error finding rental %s: %w", rentalID.String(), err)
	}
	if actorID != rental.OwnerID {
		return nil, fmt.Errorf("%w: only the owner can set access details", ErrForbidden)
	}
	if details.IPAddress == "" || details.Username == "" {
		return nil, fmt.Errorf("%w: ip address and username are required", ErrInvalidInput)
	}

	if details.PasswordEnc != "" {
		// The handler passes the plaintext through PasswordEnc; seal it here.
		sealed, err := s.cipher.Encrypt(details.PasswordEnc)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt access password for rental %s: %w", rentalID.String(), err)
		}
		details.PasswordEnc = sealed
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Rental
	err = rentals.FindOneAndUpdate(ctx,
		bson.M{"_id": rentalID},
		bson.M{"$set": bson.M{"access_details": details, "updated_at": time.Now().UTC()}},
		opts).Decode(&updated)
	if err != nil {
		return nil, fmt.Errorf("failed to set access details on rental %s: %w", rentalID.String(), err)
	}

	return &updated, nil
}

// FindRentalByID fetches a rental visible to the actor (renter or owner).
func (s *rentalService) FindRentalByID(ctx context.Context, rentalID, actorID utils.SixID) (*models.Rental, error) {
	var rental models.Rental
	err := s.db.Collection(rentalsCollection).FindOne(ctx, bson.M{"_id": rentalID}).Decode(&rental)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: rental %s", ErrNotFound, rentalID.String())
		}
		return nil, fmt.Errorf("error finding rental %s: %w", rentalID.String(), err)
	}
	if actorID != rental.RenterID && actorID != rental.OwnerID {
		return nil, fmt.Errorf("%w: rental %s is not visible to user %s", ErrForbidden, rentalID.String(), actorID.String())
	}
	return &rental, nil
}

// ListRentalsByActor lists rentals where the actor is renter or owner, newest first.
func (s *rentalService) ListRentalsByActor(ctx context.Context, actorID utils.SixID) ([]models.Rental, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"renter_id": actorID},
		bson.M{"owner_id": actorID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := s.db.Collection(rentalsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list rentals for user %s: %w", actorID.String(), err)
	}
	defer cursor.Close(ctx)

	var rentals []models.Rental
	if err = cursor.All(ctx, &rentals); err != nil {
		return nil, fmt.Errorf("failed to decode rentals for user %s: %w", actorID.String(), err)
	}
	return rentals, nil
}

// SweepExpired completes active rentals whose end date has passed and hands
// their machines back. Returns the number of rentals completed. Runs from
// the background worker.
func (s *rentalService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	rentals := s.db.Collection(rentalsCollection)

	cursor, err := rentals.Find(ctx, bson.M{
		"status":   models.RentalActive,
		"end_date": bson.M{"$lt": now},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query expired rentals: %w", err)
	}
	defer cursor.Close(ctx)

	var expired []models.Rental
	if err = cursor.All(ctx, &expired); err != nil {
		return 0, fmt.Errorf("failed to decode expired rentals: %w", err)
	}

	count := 0
	for _, r := range expired {
		// Same status guard as UpdateStatus, so a concurrent manual
		// completion or cancellation wins cleanly.
		result, err := rentals.UpdateOne(ctx,
			bson.M{"_id": r.ID, "status": models.RentalActive},
			bson.M{"$set": bson.M{"status": models.RentalCompleted, "updated_at": now}})
		if err != nil {
			log.Printf("WARN: sweep failed to complete rental %s: %v", r.ID.String(), err)
			continue
		}
		if result.ModifiedCount == 0 {
			continue
		}
		s.releaseComputer(ctx, r.ComputerID, r.ID)
		count++
	}

	return count, nil
}
