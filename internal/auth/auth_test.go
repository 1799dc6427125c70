// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/worldmap/internal/config"
	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

const testSecret = "0123456789abcdef0123456789abcdef"

type memUsers struct {
	mu    sync.Mutex
	next  int
	users map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*models.User)}
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, ok := m.users[email]; ok {
		return fmt.Errorf("email %s: %w", email, models.ErrConflict)
	}
	m.next++
	u.ID = fmt.Sprintf("user-%d", m.next)
	u.Email = email
	cp := *u
	m.users[email] = &cp
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func newManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(&config.SecurityConfig{JWTSecret: testSecret, TokenTTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(newMemUsers(), newManager(t), WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewJWTManagerRequiresSecret(t *testing.T) {
	if _, err := NewJWTManager(&config.SecurityConfig{}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := newManager(t)
	token, err := m.GenerateToken(&models.User{ID: "u1", Email: "a@b.c"})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.ID != "u1" || claims.Email != "a@b.c" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenClaimNames(t *testing.T) {
	m := newManager(t)
	token, _ := m.GenerateToken(&models.User{ID: "u1", Email: "a@b.c"})

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		t.Fatal(err)
	}
	mc := parsed.Claims.(jwt.MapClaims)
	if mc["id"] != "u1" || mc["email"] != "a@b.c" {
		t.Errorf("claims = %v, want id and email", mc)
	}
	if parsed.Method.Alg() != "HS256" {
		t.Errorf("alg = %s", parsed.Method.Alg())
	}
}

func TestValidateTokenRejects(t *testing.T) {
	m := newManager(t)
	good, _ := m.GenerateToken(&models.User{ID: "u1", Email: "a@b.c"})

	other, _ := NewJWTManager(&config.SecurityConfig{JWTSecret: strings.Repeat("z", 32), TokenTTL: time.Hour})
	foreign, _ := other.GenerateToken(&models.User{ID: "u1", Email: "a@b.c"})

	expiredMgr := newManager(t)
	expiredMgr.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiredMgr.GenerateToken(&models.User{ID: "u1", Email: "a@b.c"})

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{ID: "u1"})
	noneToken, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"tampered":     good[:len(good)-2] + "xx",
		"wrong secret": foreign,
		"expired":      expired,
		"alg none":     noneToken,
		"garbage":      "not-a-token",
		"empty":        "",
	}
	for name, token := range tests {
		if _, err := m.ValidateToken(token); err == nil {
			t.Errorf("%s: ValidateToken() succeeded", name)
		}
	}
}

func TestRegisterAndLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	reg, err := s.Register(ctx, RegisterInput{Email: "Ada@example.com", Password: "s3cret!", Name: "Ada"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if reg.User.ID == "" || reg.User.Email != "ada@example.com" || reg.User.Name != "Ada" {
		t.Errorf("registered user = %+v", reg.User)
	}
	claims, err := s.JWT().ValidateToken(reg.Token)
	if err != nil || claims.ID != reg.User.ID || claims.Email != reg.User.Email {
		t.Errorf("register token claims = %+v, %v", claims, err)
	}

	login, err := s.Login(ctx, "ada@example.com", "s3cret!")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if login.User != reg.User {
		t.Errorf("login user = %+v, want %+v", login.User, reg.User)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	if _, err := s.Register(ctx, RegisterInput{Email: "a@b.c", Password: "pw1234"}); err != nil {
		t.Fatal(err)
	}
	_, err := s.Register(ctx, RegisterInput{Email: "A@B.C", Password: "other1"})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("Register() error = %v, want ErrConflict", err)
	}
}

func TestLoginInvalid(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	if _, err := s.Register(ctx, RegisterInput{Email: "a@b.c", Password: "right1"}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Login(ctx, "a@b.c", "wrong1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v", err)
	}
	if _, err := s.Login(ctx, "nobody@b.c", "right1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email error = %v", err)
	}
}

func TestPasswordIsHashed(t *testing.T) {
	users := newMemUsers()
	s, err := NewService(users, newManager(t), WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Register(context.Background(), RegisterInput{Email: "a@b.c", Password: "plain1"}); err != nil {
		t.Fatal(err)
	}
	u, _ := users.GetByEmail(context.Background(), "a@b.c")
	if string(u.PasswordHash) == "plain1" {
		t.Fatal("password stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte("plain1")); err != nil {
		t.Errorf("stored hash does not match: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := BearerToken(r)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v", tt.header, got, ok)
		}
	}
}

func TestClaimsContext(t *testing.T) {
	ctx := context.Background()
	if UserIDFromContext(ctx) != "" {
		t.Error("expected empty user id")
	}
	ctx = ContextWithClaims(ctx, &Claims{ID: "u9"})
	if UserIDFromContext(ctx) != "u9" {
		t.Errorf("UserIDFromContext() = %q", UserIDFromContext(ctx))
	}
}
