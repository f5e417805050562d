package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"cloudrent/api/internal/utils"
)

func setupTestDBUser(t *testing.T, dbName string) *mongo.Database {
	return utils.SetupTestDB(t, dbName, "users")
}

func TestUserService_Register(t *testing.T) {
	db := setupTestDBUser(t, "testdb_user_register")
	svc := NewUserService(db)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Alice", "Alice@Example.com", "s3cretpass")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.False(t, user.IsAdmin)
	assert.NotEqual(t, "s3cretpass", user.PasswordHash)

	// Same email again, regardless of case.
	_, err = svc.Register(ctx, "Alice Again", "alice@example.com", "s3cretpass")
	assert.ErrorIs(t, err, ErrConflict)

	// Validation failures.
	_, err = svc.Register(ctx, "", "bob@example.com", "s3cretpass")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Register(ctx, "Bob", "not-an-email", "s3cretpass")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Register(ctx, "Bob", "bob@example.com", "short")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUserService_Authenticate(t *testing.T) {
	db := setupTestDBUser(t, "testdb_user_authenticate")
	svc := NewUserService(db)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "Alice", "alice@example.com", "s3cretpass")
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, "alice@example.com", "s3cretpass")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	// Wrong password and unknown email are indistinguishable.
	_, err = svc.Authenticate(ctx, "alice@example.com", "wrongpass")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cretpass")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUserService_Find(t *testing.T) {
	db := setupTestDBUser(t, "testdb_user_find")
	svc := NewUserService(db)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "Alice", "alice@example.com", "s3cretpass")
	require.NoError(t, err)

	byID, err := svc.FindByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", byID.Name)

	byEmail, err := svc.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, byEmail.ID)

	_, err = svc.FindByID(ctx, utils.NewSixID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}
