//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-broker/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// UserKeyPrefix namespaces credential records inside the shared Badger store.
const UserKeyPrefix = "user:"

type IUserRepository interface {
	CreateUser(username, hashedPassword string) (string, error)
	GetUserByUsername(username string) (User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the domain-friendly representation of a credential record.
// Records are created once and never mutated or deleted.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUser persists a credential record keyed by username.
// The existence check and the write share one transaction, so under
// concurrent registrations of the same username only one caller wins.
// It returns the newly generated user ID.
func (u UserRepository) CreateUser(username, hashedPassword string) (string, error) {
	record := User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := []byte(UserKeyPrefix + username)
		if _, err = txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return "", err
	}

	return record.ID, nil
}

// GetUserByUsername retrieves a credential record from Badger.
func (u UserRepository) GetUserByUsername(username string) (User, error) {
	var record User

	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(UserKeyPrefix + username))
		if err != nil {
			return err // Callers collapse this into ErrInvalidCredentials
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})

	if err != nil {
		return User{}, err
	}

	return record, nil
}
