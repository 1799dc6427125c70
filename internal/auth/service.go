// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/models"
)

// ErrInvalidCredentials is returned for an unknown email or wrong password.
// The two cases are deliberately indistinguishable to callers.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserRepository is the subset of the user store the service needs.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Result is returned by Register and Login.
type Result struct {
	User  models.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// Service implements register and login.
type Service struct {
	users UserRepository
	jwt   *JWTManager
	cost  int

	// dummyHash keeps the unknown-email path as slow as a wrong password.
	dummyHash []byte
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates the auth service.
func NewService(users UserRepository, jwtManager *JWTManager, opts ...Option) (*Service, error) {
	s := &Service{users: users, jwt: jwtManager, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("worldmap-dummy-password"), s.cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	s.dummyHash = hash
	return s, nil
}

// JWT returns the token manager used for bearer authentication.
func (s *Service) JWT() *JWTManager {
	return s.jwt
}

// Register creates an account and returns it with a fresh token. A taken
// email returns an error wrapping models.ErrConflict.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{Email: in.Email, Name: in.Name, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	token, err := s.jwt.GenerateToken(u)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("user_id", u.ID).Msg("User registered")
	return &Result{User: u.Public(), Token: token}, nil
}

// Login checks the password and returns a fresh token.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(u)
	if err != nil {
		return nil, err
	}
	return &Result{User: u.Public(), Token: token}, nil
}
