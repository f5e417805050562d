package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cloudrent/api/internal/cache"
	"cloudrent/api/internal/config"
	"cloudrent/api/internal/db"
	"cloudrent/api/internal/models"
	"cloudrent/api/internal/utils"
)

// IComputerService defines the interface for computer listing operations.
type IComputerService interface {
	CreateComputer(ctx context.Context, ownerID utils.SixID, title, description string, specs models.Specs, location string, price models.PriceTiers) (*models.Computer, error)
	FindComputerByID(ctx context.Context, computerID utils.SixID) (*models.Computer, error)
	SearchComputers(ctx context.Context, filter ComputerFilter) ([]models.Computer, error)
	UpdateComputer(ctx context.Context, computerID, actorID utils.SixID, updates map[string]interface{}) (*models.Computer, error)
	DeleteComputer(ctx context.Context, computerID, actorID utils.SixID) error
	AddReview(ctx context.Context, computerID, reviewerID utils.SixID, rating int, comment string) (*models.Computer, error)
	AddPhoto(ctx context.Context, computerID utils.SixID, photoKey string) error
	SetMaintenance(ctx context.Context, computerID, actorID utils.SixID, enabled bool, window *models.MaintenanceWindow) error
}

// ComputerFilter narrows SearchComputers results. Zero values mean "no constraint".
type ComputerFilter struct {
	Status         models.AvailabilityStatus
	Location       string
	OwnerID        *utils.SixID
	MaxHourlyPrice float64
	Limit          int
}

const computersCollection = "computers"

// computerService implements IComputerService.
type computerService struct {
	db    *mongo.Database
	cfg   *config.Config
	cache *cache.ComputerCache
}

// NewComputerService creates a new ComputerService. cache may be nil.
func NewComputerService(db *mongo.Database, cfg *config.Config, cache *cache.ComputerCache) IComputerService {
	return &computerService{db: db, cfg: cfg, cache: cache}
}

// CreateComputer creates a new listing in the available state.
func (s *computerService) CreateComputer(ctx context.Context, ownerID utils.SixID, title, description string, specs models.Specs, location string, price models.PriceTiers) (*models.Computer, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if price.Hourly <= 0 && price.Daily <= 0 && price.Weekly <= 0 && price.Monthly <= 0 {
		return nil, fmt.Errorf("%w: at least one price tier must be set", ErrInvalidInput)
	}

	collection := s.db.Collection(computersCollection)
	now := time.Now().UTC()

	var computer *models.Computer
	operation := func() error {
		computer = &models.Computer{
			Base:        models.NewBase(),
			OwnerID:     ownerID,
			Title:       title,
			Description: description,
			Specs:       specs,
			Location:    location,
			Price:       price,
			Availability: models.Availability{
				Status:             models.StatusAvailable,
				MaintenanceWindows: []models.MaintenanceWindow{},
				ActivePeriods:      []models.ActivePeriod{},
			},
			Photos:    []string{},
			Reviews:   []models.Review{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, insertErr := collection.InsertOne(ctx, computer)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert new computer for owner %s after multiple retries: %w",
			ownerID.String(), err)
	}

	return computer, nil
}

// FindComputerByID finds a computer by its ID, going through the read cache.
func (s *computerService) FindComputerByID(ctx context.Context, computerID utils.SixID) (*models.Computer, error) {
	if cached, _ := s.cache.Get(ctx, computerID); cached != nil {
		return cached, nil
	}

	var computer models.Computer
	err := s.db.Collection(computersCollection).FindOne(ctx, bson.M{"_id": computerID}).Decode(&computer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: computer %s", ErrNotFound, computerID.String())
		}
		return nil, fmt.Errorf("error finding computer by ID %s: %w", computerID.String(), err)
	}

	s.cache.Set(ctx, &computer)
	return &computer, nil
}

// SearchComputers lists computers matching the filter, newest first.
func (s *computerService) SearchComputers(ctx context.Context, filter ComputerFilter) ([]models.Computer, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["availability.status"] = filter.Status
	}
	if filter.Location != "" {
		query["location"] = filter.Location
	}
	if filter.OwnerID != nil {
		query["owner_id"] = *filter.OwnerID
	}
	if filter.MaxHourlyPrice > 0 {
		query["price.hourly"] = bson.M{"$gt": 0, "$lte": filter.MaxHourlyPrice}
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := s.db.Collection(computersCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to execute computer search query: %w", err)
	}
	defer cursor.Close(ctx)

	var results []models.Computer
	if err = cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode computer search results: %w", err)
	}
	return results, nil
}

// UpdateComputer updates mutable fields of a computer owned by the actor.
// Availability, reviews and photos have dedicated methods and cannot be
// touched here.
func (s *computerService) UpdateComputer(ctx context.Context, computerID, actorID utils.SixID, updates map[string]interface{}) (*models.Computer, error) {
	allowedUpdates := bson.M{}
	for key, value := range updates {
		switch key {
		case "title", "description", "specs", "location", "price":
			allowedUpdates[key] = value
		default:
			return nil, fmt.Errorf("%w: field '%s' cannot be updated", ErrInvalidInput, key)
		}
	}
	if len(allowedUpdates) == 0 {
		return nil, fmt.Errorf("%w: no valid fields provided for update", ErrInvalidInput)
	}
	allowedUpdates["updated_at"] = time.Now().UTC()

	collection := s.db.Collection(computersCollection)
	filter := bson.M{"_id": computerID, "owner_id": actorID}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Computer
	err := collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": allowedUpdates}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.explainOwnershipMiss(ctx, computerID, actorID)
		}
		return nil, fmt.Errorf("failed to update computer %s: %w", computerID.String(), err)
	}

	s.cache.Invalidate(ctx, computerID)
	return &updated, nil
}

// DeleteComputer removes a listing owned by the actor. A currently rented
// machine cannot be deleted out from under its renter.
func (s *computerService) DeleteComputer(ctx context.Context, computerID, actorID utils.SixID) error {
	collection := s.db.Collection(computersCollection)
	filter := bson.M{
		"_id":                 computerID,
		"owner_id":            actorID,
		"availability.status": bson.M{"$ne": models.StatusRented},
	}
	result, err := collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("db error deleting computer %s: %w", computerID.String(), err)
	}
	if result.DeletedCount == 0 {
		var computer models.Computer
		checkErr := collection.FindOne(ctx, bson.M{"_id": computerID}).Decode(&computer)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return fmt.Errorf("%w: computer %s", ErrNotFound, computerID.String())
		}
		if checkErr == nil && computer.OwnerID != actorID {
			return fmt.Errorf("%w: computer %s does not belong to user %s", ErrForbidden, computerID.String(), actorID.String())
		}
		return fmt.Errorf("%w: computer %s is currently rented", ErrConflict, computerID.String())
	}

	s.cache.Invalidate(ctx, computerID)
	return nil
}

// AddReview appends a review and recomputes the average rating in one
// pipeline update. Owners cannot review their own machines.
func (s *computerService) AddReview(ctx context.Context, computerID, reviewerID utils.SixID, rating int, comment string) (*models.Computer, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}

	computer, err := s.FindComputerByID(ctx, computerID)
	if err != nil {
		return nil, err
	}
	if computer.OwnerID == reviewerID {
		return nil, fmt.Errorf("%w: owners cannot review their own computer", ErrForbidden)
	}

	review := models.Review{
		UserID:    reviewerID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}

	// Pipeline update so the append and the average recompute are one write.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"reviews":    bson.M{"$concatArrays": bson.A{"$reviews", bson.A{review}}},
			"updated_at": review.CreatedAt,
		}}},
		{{Key: "$set", Value: bson.M{
			"average_rating": bson.M{"$avg": "$reviews.rating"},
		}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Computer
	err = s.db.Collection(computersCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": computerID}, update, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: computer %s", ErrNotFound, computerID.String())
		}
		return nil, fmt.Errorf("failed to add review to computer %s: %w", computerID.String(), err)
	}

	s.cache.Invalidate(ctx, computerID)
	return &updated, nil
}

// AddPhoto adds a processed photo key to a computer's photo array.
// Called by the photo processing task after resize/upload completes.
func (s *computerService) AddPhoto(ctx context.Context, computerID utils.SixID, photoKey string) error {
	collection := s.db.Collection(computersCollection)

	update := bson.M{
		"$addToSet": bson.M{"photos": photoKey},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}
	result, err := collection.UpdateOne(ctx, bson.M{"_id": computerID}, update)
	if err != nil {
		return fmt.Errorf("db error adding photo %s to computer %s: %w", photoKey, computerID.String(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: computer %s", ErrNotFound, computerID.String())
	}

	s.cache.Invalidate(ctx, computerID)
	return nil
}

// SetMaintenance flips a machine between available and maintenance. Only the
// owner may do this, and never while the machine is rented.
func (s *computerService) SetMaintenance(ctx context.Context, computerID, actorID utils.SixID, enabled bool, window *models.MaintenanceWindow) error {
	from, to := models.StatusAvailable, models.StatusMaintenance
	if !enabled {
		from, to = models.StatusMaintenance, models.StatusAvailable
	}

	update := bson.M{"$set": bson.M{
		"availability.status": to,
		"updated_at":          time.Now().UTC(),
	}}
	if enabled && window != nil {
		update["$push"] = bson.M{"availability.maintenance_windows": window}
	}

	collection := s.db.Collection(computersCollection)
	filter := bson.M{
		"_id":                 computerID,
		"owner_id":            actorID,
		"availability.status": from,
	}
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error setting maintenance on computer %s: %w", computerID.String(), err)
	}
	if result.MatchedCount == 0 {
		if err := s.explainOwnershipMiss(ctx, computerID, actorID); !errors.Is(err, ErrConflict) {
			return err
		}
		return fmt.Errorf("%w: computer %s is not %s", ErrConflict, computerID.String(), from)
	}

	s.cache.Invalidate(ctx, computerID)
	return nil
}

// explainOwnershipMiss turns a zero-match owner-filtered write into the
// precise taxonomy error: missing, not owned, or a state conflict.
func (s *computerService) explainOwnershipMiss(ctx context.Context, computerID, actorID utils.SixID) error {
	var computer models.Computer
	err := s.db.Collection(computersCollection).FindOne(ctx, bson.M{"_id": computerID}).Decode(&computer)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: computer %s", ErrNotFound, computerID.String())
	}
	if err != nil {
		return fmt.Errorf("error checking computer %s: %w", computerID.String(), err)
	}
	if computer.OwnerID != actorID {
		return fmt.Errorf("%w: computer %s does not belong to user %s", ErrForbidden, computerID.String(), actorID.String())
	}
	return fmt.Errorf("%w: computer %s cannot be updated", ErrConflict, computerID.String())
}
