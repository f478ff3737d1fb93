package services

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagemarket/backend/internal/models"
)

var userColumnNames = []string{"id", "email", "role", "display_name", "follower_count", "status", "created_at", "updated_at"}

func setupAuthConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 1024)
	viper.Set("argon2.threads", 1)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func newTestAuth(t *testing.T) (*AuthService, sqlmock.Sqlmock, redismock.ClientMock) {
	t.Helper()
	setupAuthConfig()
	ledger, mock, _ := newTestLedger(t, nil)
	client, redisMock := redismock.NewClientMock()
	log, _ := nullLog()
	svc := NewAuthService(ledger.db, client, ledger, log)
	svc.now = func() time.Time { return fixedNow }
	return svc, mock, redisMock
}

func expectUserByEmail(mock sqlmock.Sqlmock, email, password string, status models.UserStatus) {
	hashed, _ := hashPassword(password)
	mock.ExpectQuery("SELECT (.+), password_hash FROM users WHERE email = \\$1").
		WithArgs(email).
		WillReturnRows(sqlmock.NewRows(append(userColumnNames, "password_hash")).
			AddRow("user-1", email, "business", "Café Lumière", 0, string(status), fixedNow, fixedNow, hashed))
}

func TestAuthService_Register(t *testing.T) {
	t.Run("successful registration opens a wallet", func(t *testing.T) {
		svc, mock, _ := newTestAuth(t)
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("owner@cafe.fr", sqlmock.AnyArg(), "business", "Café Lumière", int64(0), "active", fixedNow).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-1"))
		mock.ExpectExec("INSERT INTO wallets").
			WithArgs("user-1", fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		resp, err := svc.Register(bg(), RegisterRequest{
			Email:       "Owner@Cafe.fr ",
			Password:    "correct-horse",
			Role:        models.RoleBusiness,
			DisplayName: "Café Lumière",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "owner@cafe.fr", resp.User.Email)
		assert.Equal(t, fixedNow.Add(24*time.Hour), resp.ExpiresAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("email already taken", func(t *testing.T) {
		svc, mock, _ := newTestAuth(t)
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})
		mock.ExpectRollback()

		_, err := svc.Register(bg(), RegisterRequest{
			Email: "owner@cafe.fr", Password: "correct-horse", Role: models.RoleInfluencer, DisplayName: "Cafe",
		})
		assert.ErrorIs(t, err, ErrEmailTaken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admins cannot self register", func(t *testing.T) {
		svc, _, _ := newTestAuth(t)
		_, err := svc.Register(bg(), RegisterRequest{
			Email: "root@engagemarket.fr", Password: "correct-horse", Role: models.RoleAdmin, DisplayName: "Root",
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestAuthService_Login(t *testing.T) {
	t.Run("successful login", func(t *testing.T) {
		svc, mock, _ := newTestAuth(t)
		expectUserByEmail(mock, "owner@cafe.fr", "correct-horse", models.UserActive)

		resp, err := svc.Login(bg(), LoginRequest{Email: "owner@cafe.fr", Password: "correct-horse"})
		require.NoError(t, err)

		parsed, err := jwt.Parse(resp.Token, func(*jwt.Token) (interface{}, error) {
			return []byte("test-secret"), nil
		}, jwt.WithTimeFunc(func() time.Time { return fixedNow }))
		require.NoError(t, err)
		claims := parsed.Claims.(jwt.MapClaims)
		assert.Equal(t, "user-1", claims["user_id"])
		assert.Equal(t, "business", claims["role"])
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, mock, _ := newTestAuth(t)
		expectUserByEmail(mock, "owner@cafe.fr", "correct-horse", models.UserActive)

		_, err := svc.Login(bg(), LoginRequest{Email: "owner@cafe.fr", Password: "wrong-horse"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		svc, mock, _ := newTestAuth(t)
		mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs("ghost@cafe.fr").
			WillReturnRows(sqlmock.NewRows(append(userColumnNames, "password_hash")))

		_, err := svc.Login(bg(), LoginRequest{Email: "ghost@cafe.fr", Password: "whatever1"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("suspended accounts cannot log in", func(t *testing.T) {
		svc, mock, _ := newTestAuth(t)
		expectUserByEmail(mock, "owner@cafe.fr", "correct-horse", models.UserSuspended)

		_, err := svc.Login(bg(), LoginRequest{Email: "owner@cafe.fr", Password: "correct-horse"})
		assert.ErrorIs(t, err, ErrAccountDisabled)
	})
}

func TestAuthService_Logout(t *testing.T) {
	svc, _, redisMock := newTestAuth(t)
	redisMock.ExpectSet("blacklist:tok", "1", 2*time.Hour).SetVal("OK")
	redisMock.ExpectExists("blacklist:tok", "revoked_user:user-1").SetVal(1)
	redisMock.ExpectExists("blacklist:other", "revoked_user:user-1").SetVal(0)

	require.NoError(t, svc.Logout(bg(), "tok", fixedNow.Add(2*time.Hour)))

	revoked, err := svc.IsRevoked(bg(), "tok", "user-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = svc.IsRevoked(bg(), "other", "user-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	// already expired tokens need no blacklist entry
	require.NoError(t, svc.Logout(bg(), "old", fixedNow.Add(-time.Minute)))
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestAuthService_AdminActions(t *testing.T) {
	t.Run("suspend revokes existing tokens", func(t *testing.T) {
		svc, mock, redisMock := newTestAuth(t)
		mock.ExpectExec("UPDATE users SET status = \\$1, updated_at = \\$2 WHERE id = \\$3 AND role <> 'admin'").
			WithArgs("suspended", fixedNow, "user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		redisMock.ExpectSet("revoked_user:user-1", "suspended", 24*time.Hour).SetVal("OK")
		redisMock.ExpectExists("blacklist:tok", "revoked_user:user-1").SetVal(1)

		require.NoError(t, svc.Suspend(bg(), "admin-1", "user-1"))

		revoked, err := svc.IsRevoked(bg(), "tok", "user-1")
		require.NoError(t, err)
		assert.True(t, revoked)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("reactivate clears the revocation", func(t *testing.T) {
		svc, mock, redisMock := newTestAuth(t)
		mock.ExpectExec("UPDATE users SET status").
			WithArgs("active", fixedNow, "user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		redisMock.ExpectDel("revoked_user:user-1").SetVal(1)

		require.NoError(t, svc.Reactivate(bg(), "admin-1", "user-1"))
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("failed revocation is reported", func(t *testing.T) {
		svc, mock, redisMock := newTestAuth(t)
		mock.ExpectExec("UPDATE users SET status").
			WithArgs("deleted", fixedNow, "user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		redisMock.ExpectSet("revoked_user:user-1", "deleted", 24*time.Hour).SetErr(errors.New("redis down"))

		assert.Error(t, svc.Delete(bg(), "admin-1", "user-1"))
	})

	t.Run("delete unknown or already deleted user", func(t *testing.T) {
		svc, mock, _ := newTestAuth(t)
		mock.ExpectExec("UPDATE users SET status").
			WithArgs("deleted", fixedNow, "user-9").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, svc.Delete(bg(), "admin-1", "user-9"), ErrNotFound)
	})
}

func TestAuthService_IsRevokedFallsBackToAccountStatus(t *testing.T) {
	t.Run("redis outage still blocks a suspended account", func(t *testing.T) {
		svc, mock, redisMock := newTestAuth(t)
		redisMock.ExpectExists("blacklist:tok", "revoked_user:user-1").SetErr(errors.New("redis down"))
		mock.ExpectQuery("SELECT status FROM users WHERE id = \\$1").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("suspended"))

		revoked, err := svc.IsRevoked(bg(), "tok", "user-1")
		assert.Error(t, err)
		assert.True(t, revoked)
	})

	t.Run("without redis the account status decides", func(t *testing.T) {
		svc, mock, _ := newTestAuth(t)
		svc.redis = nil
		mock.ExpectQuery("SELECT status FROM users WHERE id = \\$1").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("active"))
		mock.ExpectQuery("SELECT status FROM users WHERE id = \\$1").
			WithArgs("user-2").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("deleted"))

		revoked, err := svc.IsRevoked(bg(), "tok", "user-1")
		require.NoError(t, err)
		assert.False(t, revoked)

		revoked, err = svc.IsRevoked(bg(), "tok", "user-2")
		require.NoError(t, err)
		assert.True(t, revoked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuthService_GetUser(t *testing.T) {
	svc, mock, _ := newTestAuth(t)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userColumnNames).
			AddRow("user-1", "inf@example.com", "influencer", "Inf", 12000, "active", fixedNow, fixedNow))
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows(userColumnNames))

	u, err := svc.GetUser(bg(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleInfluencer, u.Role)
	assert.Equal(t, int64(12000), u.FollowerCount)

	_, err = svc.GetUser(bg(), "user-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPasswordHashing(t *testing.T) {
	setupAuthConfig()
	hashed, err := hashPassword("correct-horse")
	require.NoError(t, err)

	assert.True(t, verifyPassword("correct-horse", hashed))
	assert.False(t, verifyPassword("Correct-horse", hashed))
	assert.False(t, verifyPassword("correct-horse", "not-a-hash"))

	other, err := hashPassword("correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, hashed, other)
}
