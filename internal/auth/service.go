package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidToken       = errors.New("invalid token")
)

// Roles carried in issued tokens.
const (
	RoleAdmin  = "admin"
	RoleDoctor = "doctor"
)

const defaultTokenTTL = 12 * time.Hour

// Claims are the JWT claims issued for dashboard sessions. DoctorID is
// empty for admin tokens.
type Claims struct {
	Role     string `json:"role"`
	DoctorID string `json:"doctor_id,omitempty"`
	jwt.RegisteredClaims
}

// Service handles admin and doctor authentication against Postgres.
type Service struct {
	db       *sql.DB
	secret   []byte
	tokenTTL time.Duration

	now func() time.Time
}

func NewService(db *sql.DB, secret string) *Service {
	return &Service{
		db:       db,
		secret:   []byte(secret),
		tokenTTL: defaultTokenTTL,
		now:      time.Now,
	}
}

// AdminLogin verifies an admin's password and issues an admin token.
func (s *Service) AdminLogin(ctx context.Context, username, password string) (string, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, password_hash FROM admins WHERE username = $1", username,
	).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return s.CreateToken(RoleAdmin, id, "")
}

// DoctorLogin verifies a doctor's password and issues a doctor token bound
// to their doctor id.
func (s *Service) DoctorLogin(ctx context.Context, email, password string) (string, string, error) {
	var doctorID, hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT doctor_id, password_hash FROM doctor_credentials WHERE email = $1", email,
	).Scan(&doctorID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrInvalidCredentials
	}
	if err != nil {
		return "", "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", "", ErrInvalidCredentials
	}
	token, err := s.CreateToken(RoleDoctor, doctorID, doctorID)
	return token, doctorID, err
}

// CreateAdmin registers an admin account. Intended for bootstrap tooling.
func (s *Service) CreateAdmin(ctx context.Context, username, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO admins (id, username, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (username) DO NOTHING`,
		uuid.New().String(), username, email, string(hash), s.now().UTC())
	return err
}

// RegisterDoctor creates login credentials for an existing doctor record.
func (s *Service) RegisterDoctor(ctx context.Context, doctorID, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO doctor_credentials (doctor_id, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (doctor_id) DO NOTHING`,
		doctorID, email, string(hash), s.now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountExists
	}
	return nil
}

// ResetPassword replaces a doctor's password with a generated temporary one
// and returns it so the caller can deliver it out of band.
func (s *Service) ResetPassword(ctx context.Context, email string) (string, error) {
	temp, err := tempPassword()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(temp), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE doctor_credentials SET password_hash = $1 WHERE email = $2",
		string(hash), email)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrAccountNotFound
	}
	return temp, nil
}

// CreateToken issues a signed session token for the given role and subject.
func (s *Service) CreateToken(role, subject, doctorID string) (string, error) {
	now := s.now()
	claims := Claims{
		Role:     role,
		DoctorID: doctorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyToken parses and validates a session token.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

const tempPasswordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func tempPassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = tempPasswordAlphabet[int(b)%len(tempPasswordAlphabet)]
	}
	return string(buf), nil
}
