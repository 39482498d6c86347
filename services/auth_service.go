package services

import (
	"fmt"

	"chat-broker/auth"
	"chat-broker/errors"
	"chat-broker/repositories"
)

type IAuthService interface {
	Login(username, password string) (Identity, error)
	Register(username, password string) (Identity, error)
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokens         *auth.TokenIssuer
}

// Identity is what a successful handshake yields: the stable user ID plus
// a session token the client may present to other services.
type Identity struct {
	UserID   string
	Username string
	Token    string
}

func NewAuthService(repo repositories.IUserRepository, tokens *auth.TokenIssuer) IAuthService {
	return &AuthService{userRepository: repo, tokens: tokens}
}

func (s *AuthService) Register(username, password string) (Identity, error) {
	valReq := auth.RegisterRequest{
		Username: username,
		Password: password,
	}

	// 1. Validate business rules (username format, password length)
	// Checked before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return Identity{}, err
	}

	// 2. Hash the password using Argon2id
	// Done in the service layer to keep the repository unaware of plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return Identity{}, fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist the user with the generated hash
	userID, err := s.userRepository.CreateUser(username, hashedPassword)
	if err != nil {
		return Identity{}, err // Propagates ErrUserAlreadyExists if the name is taken
	}

	// 4. Generate the initial session token
	token, err := s.tokens.Generate(userID, username)
	if err != nil {
		return Identity{}, errors.ErrTokenGeneration
	}

	return Identity{UserID: userID, Username: username, Token: token}, nil
}

func (s *AuthService) Login(username, password string) (Identity, error) {
	// 1. Retrieve user by username from storage
	user, err := s.userRepository.GetUserByUsername(username)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return Identity{}, errors.ErrInvalidCredentials
	}

	// 2. Compare the provided password with the stored hash
	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Identity{}, errors.ErrInvalidCredentials
	}

	// 3. Issue the session token
	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return Identity{}, errors.ErrTokenGeneration
	}

	return Identity{UserID: user.ID, Username: user.Username, Token: token}, nil
}
