package services

import (
	"testing"
	"time"

	"chat-broker/auth"
	"chat-broker/errors"
	"chat-broker/mocks"
	"chat-broker/repositories"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestIssuer() *auth.TokenIssuer {
	return auth.NewTokenIssuer("test-signing-secret", 24*time.Hour)
}

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	svc := NewAuthService(mockRepo, newTestIssuer())

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)
		username := "alice"
		password := "secret123"
		expectedUserID := "user-uuid"

		// Expect CreateUser to be called with a hashed password (not the plain one)
		mockRepo.EXPECT().
			CreateUser(username, gomock.Not(gomock.Eq(password))).
			Return(expectedUserID, nil).
			Times(1)

		identity, err := svc.Register(username, password)

		req.NoError(err)
		req.Equal(expectedUserID, identity.UserID)
		req.Equal(username, identity.Username)
		req.NotEmpty(identity.Token)
	})

	t.Run("should fail when password is too short", func(t *testing.T) {
		req := require.New(t)

		// Repository should NEVER be called
		mockRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Times(0)

		identity, err := svc.Register("alice", "short")

		req.Error(err)
		req.ErrorIs(err, errors.ErrInvalidPassword)
		req.Empty(identity.Token)
	})

	t.Run("should fail when user already exists in repository", func(t *testing.T) {
		req := require.New(t)
		username := "duplicate"
		password := "secret123"

		mockRepo.EXPECT().
			CreateUser(username, gomock.Any()).
			Return("", errors.ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register(username, password)

		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	issuer := newTestIssuer()
	svc := NewAuthService(mockRepo, issuer)

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)
		username := "alice"
		password := "Secret123456!"

		hashedPassword, _ := auth.HashPassword(password)
		storedUser := repositories.User{
			ID:           "uuid-123",
			Username:     username,
			PasswordHash: hashedPassword,
			Roles:        []string{"user"},
		}

		mockRepo.EXPECT().
			GetUserByUsername(username).
			Return(storedUser, nil).
			Times(1)

		identity, err := svc.Login(username, password)

		req.NoError(err)
		req.NotEmpty(identity.Token)

		claims, err := issuer.Validate(identity.Token)
		req.NoError(err)
		req.Equal(storedUser.ID, claims.UserID)
		req.Equal(username, claims.Username)
	})

	t.Run("should return invalid credentials on wrong password", func(t *testing.T) {
		req := require.New(t)
		username := "alice"

		hashedPassword, _ := auth.HashPassword("CorrectPassword123!")
		storedUser := repositories.User{
			Username:     username,
			PasswordHash: hashedPassword,
		}

		mockRepo.EXPECT().
			GetUserByUsername(username).
			Return(storedUser, nil).
			Times(1)

		_, err := svc.Login(username, "WrongPassword123!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should return the same error when the user is unknown", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			GetUserByUsername("ghost").
			Return(repositories.User{}, errors.ErrInvalidCredentials).
			Times(1)

		// Unknown user and wrong password are indistinguishable to the caller
		_, err := svc.Login("ghost", "Whatever123!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}
