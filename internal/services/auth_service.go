package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/engagemarket/backend/internal/models"
)

const userColumns = `id, email, role, display_name, follower_count, status, created_at, updated_at`

type AuthService struct {
	db     *sql.DB
	redis  *redis.Client
	ledger *LedgerService
	log    *logrus.Entry
	now    func() time.Time
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"owner@cafe-lumiere.fr"`
	Password string `json:"password" validate:"required,min=8" example:"correct-horse"`
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure. Admin accounts cannot self-register.
type RegisterRequest struct {
	Email         string      `json:"email" validate:"required,email" example:"owner@cafe-lumiere.fr"`
	Password      string      `json:"password" validate:"required,min=8" example:"correct-horse"`
	Role          models.Role `json:"role" validate:"required,oneof=business influencer" example:"business"`
	DisplayName   string      `json:"display_name" validate:"required,min=2,max=100" example:"Café Lumière"`
	FollowerCount int64       `json:"follower_count" validate:"gte=0" example:"0"`
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token     string      `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

type ProfileUpdate struct {
	DisplayName   string `json:"display_name" validate:"required,min=2,max=100"`
	FollowerCount int64  `json:"follower_count" validate:"gte=0"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService, log *logrus.Entry) *AuthService {
	return &AuthService{
		db:     db,
		redis:  redisClient,
		ledger: ledger,
		log:    log,
		now:    time.Now,
	}
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Role, &u.DisplayName, &u.FollowerCount, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Register creates the user and an empty wallet in one transaction.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if req.Role != models.RoleBusiness && req.Role != models.RoleInfluencer {
		return nil, fmt.Errorf("%w: role must be business or influencer", ErrInvalidInput)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	s.log.WithField("email", email).Info("[AUTH] Registration request")

	hashed, err := hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := models.User{
		Email:         email,
		Role:          req.Role,
		DisplayName:   req.DisplayName,
		FollowerCount: req.FollowerCount,
		Status:        models.UserActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.ledger.Atomic(ctx, func(tx *sql.Tx, _ *Batch) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO users (email, password_hash, role, display_name, follower_count, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			RETURNING id`,
			user.Email, hashed, user.Role, user.DisplayName, user.FollowerCount, user.Status, now).
			Scan(&user.ID)
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		if err != nil {
			return err
		}
		return s.ledger.CreateWalletTx(ctx, tx, user.ID)
	})
	if err != nil {
		s.log.WithError(err).WithField("email", email).Warn("[AUTH] Registration failed")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("[AUTH] User created")
	return s.issue(&user)
}

// Login checks credentials. Suspended and deleted accounts cannot log in.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var hashed string
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT `+userColumns+`, password_hash FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.Role, &u.DisplayName, &u.FollowerCount, &u.Status, &u.CreatedAt, &u.UpdatedAt, &hashed)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.WithField("email", email).Info("[AUTH] Login for unknown email")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !verifyPassword(req.Password, hashed) {
		s.log.WithField("user_id", u.ID).Info("[AUTH] Invalid password")
		return nil, ErrInvalidCredentials
	}
	if !u.Active() {
		s.log.WithFields(logrus.Fields{"user_id": u.ID, "status": u.Status}).Info("[AUTH] Login refused")
		return nil, ErrAccountDisabled
	}

	s.log.WithField("user_id", u.ID).Info("[AUTH] Login successful")
	return s.issue(&u)
}

func (s *AuthService) issue(u *models.User) (*AuthResponse, error) {
	token, expires, err := generateJWT(u.ID, u.Role, s.now())
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &AuthResponse{Token: token, ExpiresAt: expires, User: *u}, nil
}

func blacklistKey(token string) string {
	return fmt.Sprintf("blacklist:%s", token)
}

func revokedUserKey(userID string) string {
	return fmt.Sprintf("revoked_user:%s", userID)
}

func tokenLifetime() time.Duration {
	return time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
}

// Logout blacklists the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, token string, expiresAt time.Time) error {
	if s.redis == nil || token == "" {
		return nil
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, blacklistKey(token), "1", ttl).Err(); err != nil {
		s.log.WithError(err).Warn("[AUTH] Failed to blacklist token")
		return err
	}
	return nil
}

// IsRevoked reports whether the token was logged out or its owner was
// suspended or deleted. Without Redis, or when Redis fails, only the account
// status in Postgres is checked.
func (s *AuthService) IsRevoked(ctx context.Context, token, userID string) (bool, error) {
	if s.redis == nil {
		return s.accountBlocked(ctx, userID)
	}
	n, err := s.redis.Exists(ctx, blacklistKey(token), revokedUserKey(userID)).Result()
	if err != nil {
		blocked, dbErr := s.accountBlocked(ctx, userID)
		if dbErr != nil {
			return false, err
		}
		return blocked, err
	}
	return n > 0, nil
}

// accountBlocked reports whether userID is unknown or no longer active.
func (s *AuthService) accountBlocked(ctx context.Context, userID string) (bool, error) {
	var status models.UserStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM users WHERE id = $1`, userID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return status != models.UserActive, nil
}

// syncRevocation marks every token of a suspended or deleted user as revoked
// for as long as any of them can still be valid, and clears the mark on
// reactivation.
func (s *AuthService) syncRevocation(ctx context.Context, userID string, status models.UserStatus) error {
	if s.redis == nil {
		return nil
	}
	if status == models.UserActive {
		return s.redis.Del(ctx, revokedUserKey(userID)).Err()
	}
	return s.redis.Set(ctx, revokedUserKey(userID), string(status), tokenLifetime()).Err()
}

func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (*models.User, error) {
	if p.FollowerCount < 0 {
		return nil, fmt.Errorf("%w: follower count must not be negative", ErrInvalidInput)
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users SET display_name = $1, follower_count = $2, updated_at = $3
		WHERE id = $4 AND status = 'active'
		RETURNING `+userColumns,
		p.DisplayName, p.FollowerCount, s.now().UTC(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, err
}

// ListInfluencers returns active sellers, largest audience first.
func (s *AuthService) ListInfluencers(ctx context.Context, limit int) ([]models.User, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'influencer' AND status = 'active'
		ORDER BY follower_count DESC, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *AuthService) setStatus(ctx context.Context, adminID, userID string, status models.UserStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET status = $1, updated_at = $2
		WHERE id = $3 AND role <> 'admin' AND status <> 'deleted'`,
		status, s.now().UTC(), userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	entry := s.log.WithFields(logrus.Fields{"admin_id": adminID, "user_id": userID, "status": status})
	entry.Warn("[AUTH] Account status changed")

	if err := s.syncRevocation(ctx, userID, status); err != nil {
		entry.WithError(err).Error("[AUTH] Failed to update session revocation")
		return fmt.Errorf("account %s is %s but its sessions were not updated: %w", userID, status, err)
	}
	return nil
}

func (s *AuthService) Suspend(ctx context.Context, adminID, userID string) error {
	return s.setStatus(ctx, adminID, userID, models.UserSuspended)
}

func (s *AuthService) Reactivate(ctx context.Context, adminID, userID string) error {
	return s.setStatus(ctx, adminID, userID, models.UserActive)
}

// Delete is a soft delete: the row and its ledger history stay.
func (s *AuthService) Delete(ctx context.Context, adminID, userID string) error {
	return s.setStatus(ctx, adminID, userID, models.UserDeleted)
}

// EnsureAdmin creates the admin account when it does not exist yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	return s.ledger.Atomic(ctx, func(tx *sql.Tx, _ *Batch) error {
		var id string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO users (email, password_hash, role, display_name, status)
			VALUES ($1, $2, 'admin', 'Administrator', 'active')
			ON CONFLICT (email) DO NOTHING
			RETURNING id`, email, hashed).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		s.log.WithField("user_id", id).Info("[AUTH] Admin account seeded")
		return s.ledger.CreateWalletTx(ctx, tx, id)
	})
}

func generateJWT(userID string, role models.Role, now time.Time) (string, time.Time, error) {
	expires := now.Add(tokenLifetime())
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"iat":     now.Unix(),
		"exp":     expires.Unix(),
	})

	signed, err := token.SignedString([]byte(viper.GetString("jwt.secret_key")))
	return signed, expires, err
}

func argonKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}
	hash := argonKey(password, salt)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(hash, argonKey(password, salt)) == 1
}
