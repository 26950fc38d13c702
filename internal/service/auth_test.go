package service

import (
	"context"
	"testing"
	"time"

	"github.com/Skotchmaster/auth_platform/internal/audit"
	"github.com/Skotchmaster/auth_platform/internal/hash"
	"github.com/Skotchmaster/auth_platform/internal/limiter"
	"github.com/Skotchmaster/auth_platform/internal/models"
	"github.com/Skotchmaster/auth_platform/internal/repo"
	"github.com/Skotchmaster/auth_platform/internal/subject"
	"github.com/Skotchmaster/auth_platform/internal/tokens"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	svc      *AuthService
	rp       *repo.GormRepo
	codec    *tokens.Codec
	recorder *audit.Recorder
}

func newTestEnv(t *testing.T, maxSessions int, policy limiter.Policy) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.Account{}, &models.RefreshToken{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	rp := &repo.GormRepo{DB: db}
	codec := &tokens.Codec{Secret: []byte("test-secret"), Issuer: "auth_platform_test"}
	recorder := &audit.Recorder{}

	return &testEnv{
		svc: &AuthService{
			Repo:       rp,
			Codec:      codec,
			Limiter:    limiter.New(rp, maxSessions, policy),
			Audit:      recorder,
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 168 * time.Hour,
		},
		rp:       rp,
		codec:    codec,
		recorder: recorder,
	}
}

func (env *testEnv) createAccount(t *testing.T, typ subject.Type, id uint, username string) subject.Subject {
	t.Helper()

	pwHash, err := hash.HashPassword("Secret123")
	require.NoError(t, err)

	account := models.Account{
		ID:           id,
		SubjectType:  string(typ),
		Username:     username,
		PasswordHash: pwHash,
		IsActive:     true,
	}
	require.NoError(t, env.rp.DB.Create(&account).Error)
	return subject.Subject{Type: typ, ID: id}
}

func actionsOf(events []audit.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func TestIssue_ThenValidateAccess_ReturnsSubject(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 45, "alice")

	pair, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	account, err := env.svc.ValidateAccess(ctx, pair.AccessToken, subject.TypeUser)
	require.NoError(t, err)
	assert.Equal(t, uint(45), account.ID)
	assert.Equal(t, "USER", account.SubjectType)

	assert.Contains(t, actionsOf(env.recorder.Events()), audit.ActionSessionIssued)
}

func TestIssue_AccessClaimsChainToRecord(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 45, "alice")

	fixed := time.Unix(1725148800, 0).UTC()
	env.svc.Now = func() time.Time { return fixed }

	pair, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)

	record, err := env.rp.FindRefreshByValue(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// the fixed iat lies in the past, so inspect the claims without the
	// parser's expiry enforcement
	var claims tokens.AccessClaims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	_, err = parser.ParseWithClaims(pair.AccessToken, &claims, func(*jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)

	assert.Equal(t, "USER-45", claims.Subject)
	assert.Equal(t, record.ID, claims.RefID)
	assert.Equal(t, int64(1725148800), claims.IssuedAt.Unix())
	assert.Equal(t, int64(1725150600), claims.ExpiresAt.Unix())
	assert.Equal(t, int64(1725150600), pair.AccessExp.Unix())
}

func TestValidateRefresh_MintsChainedAccessToken(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 7, "bob")

	pair, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)

	accessToken, accessExp, err := env.svc.ValidateRefresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, accessToken)
	assert.True(t, accessExp.After(time.Now()))

	account, err := env.svc.ValidateAccess(ctx, accessToken, subject.TypeUser)
	require.NoError(t, err)
	assert.Equal(t, subj.ID, account.ID)

	// the refresh token is not rotated: the same one keeps working
	record, err := env.rp.FindRefreshByValue(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, record.IsActive)

	claims, err := env.codec.DecodeAccess(accessToken)
	require.NoError(t, err)
	assert.Equal(t, record.ID, claims.RefID)
}

func TestRevocation_PreemptsExpiry(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 8, "carol")

	pair, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)

	record, err := env.rp.FindRefreshByValue(ctx, pair.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, record.ID))

	// access token exp has not elapsed, but the record is gone
	_, err = env.svc.ValidateAccess(ctx, pair.AccessToken, subject.TypeUser)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, _, err = env.svc.ValidateRefresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Logout is idempotent at the service level too
	require.NoError(t, env.svc.Logout(ctx, record.ID))
}

func TestValidateAccess_JWTExpiry_IndependentOfStore(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 9, "dave")

	env.svc.Now = func() time.Time { return time.Now().UTC().Add(-31 * time.Minute) }
	pair, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)
	env.svc.Now = nil

	// record is still active, token expired at the JWT level
	record, err := env.rp.FindRefreshByValue(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.True(t, record.IsActive)

	_, err = env.svc.ValidateAccess(ctx, pair.AccessToken, subject.TypeUser)
	assert.ErrorIs(t, err, ErrUnauthorized)

	got, err := env.rp.FindRefreshByID(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestValidateAccess_LazyExpiry_DeactivatesRecord(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 10, "erin")

	pair, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)

	record, err := env.rp.FindRefreshByValue(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// age the record past the refresh TTL while its access token is fresh
	require.NoError(t, env.rp.DB.Model(&models.RefreshToken{}).
		Where("id = ?", record.ID).
		Update("created_at", time.Now().UTC().Add(-169*time.Hour)).Error)

	_, err = env.svc.ValidateAccess(ctx, pair.AccessToken, subject.TypeUser)
	assert.ErrorIs(t, err, ErrUnauthorized)

	got, err := env.rp.FindRefreshByID(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.DeactivatedReason)
	assert.Equal(t, models.ReasonExpiredOnRead, *got.DeactivatedReason)
	assert.Contains(t, actionsOf(env.recorder.Events()), audit.ActionExpiredOnRead)
}

func TestValidateRefresh_LazyExpiry_DeactivatesRecord(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 11, "frank")

	// refresh JWT exp is ahead of the stored record's computed expiry, so
	// the store check is the one that trips
	env.svc.RefreshTTL = 200 * time.Hour
	pair, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)
	env.svc.RefreshTTL = time.Hour

	record, err := env.rp.FindRefreshByValue(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, env.rp.DB.Model(&models.RefreshToken{}).
		Where("id = ?", record.ID).
		Update("created_at", time.Now().UTC().Add(-2*time.Hour)).Error)

	_, _, err = env.svc.ValidateRefresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	got, err := env.rp.FindRefreshByID(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestValidateAccess_SubjectTypeScoping(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeAdmin, 12, "root")

	pair, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)

	// ADMIN token on a USER-only endpoint
	_, err = env.svc.ValidateAccess(ctx, pair.AccessToken, subject.TypeUser)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// and accepted where ADMIN is expected
	account, err := env.svc.ValidateAccess(ctx, pair.AccessToken, subject.TypeUser, subject.TypeAdmin)
	require.NoError(t, err)
	assert.Equal(t, subj.ID, account.ID)
}

func TestValidateAccess_MalformedSubClaims(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 13, "grace")

	pair, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)
	record, err := env.rp.FindRefreshByValue(ctx, pair.RefreshToken)
	require.NoError(t, err)

	now := time.Now().UTC()
	for _, sub := range []string{"ROOT-1", "USER45", "USER-", "USER-abc"} {
		forged, err := env.codec.EncodeAccess(sub, record.ID, now, now.Add(time.Minute))
		require.NoError(t, err)

		_, err = env.svc.ValidateAccess(ctx, forged, subject.TypeUser)
		assert.ErrorIs(t, err, ErrUnauthorized, "sub %q must be rejected", sub)
	}
}

func TestValidateAccess_RejectsRefreshToken(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 14, "heidi")

	pair, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)

	_, err = env.svc.ValidateAccess(ctx, pair.RefreshToken, subject.TypeUser)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, _, err = env.svc.ValidateRefresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidateAccess_UnknownOrDeactivatedAccount(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 15, "ivan")

	pair, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)

	require.NoError(t, env.rp.DB.Model(&models.Account{}).
		Where("id = ?", subj.ID).
		Update("is_active", false).Error)

	_, err = env.svc.ValidateAccess(ctx, pair.AccessToken, subject.TypeUser)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSessionCap_EvictsOldest(t *testing.T) {
	env := newTestEnv(t, 2, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 16, "judy")

	first, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)
	firstRecord, err := env.rp.FindRefreshByValue(ctx, first.RefreshToken)
	require.NoError(t, err)
	// separate created_at so eviction order is deterministic
	require.NoError(t, env.rp.DB.Model(&models.RefreshToken{}).
		Where("id = ?", firstRecord.ID).
		Update("created_at", time.Now().UTC().Add(-2*time.Minute)).Error)

	second, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)
	secondRecord, err := env.rp.FindRefreshByValue(ctx, second.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, env.rp.DB.Model(&models.RefreshToken{}).
		Where("id = ?", secondRecord.ID).
		Update("created_at", time.Now().UTC().Add(-time.Minute)).Error)

	_, err = env.svc.Issue(ctx, subj)
	require.NoError(t, err)

	count, err := env.rp.CountActive(ctx, subj)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	evictedRecord, err := env.rp.FindRefreshByID(ctx, firstRecord.ID)
	require.NoError(t, err)
	assert.False(t, evictedRecord.IsActive)
	require.NotNil(t, evictedRecord.DeactivatedReason)
	assert.Equal(t, models.ReasonEvicted, *evictedRecord.DeactivatedReason)

	stillActive, err := env.rp.FindRefreshByID(ctx, secondRecord.ID)
	require.NoError(t, err)
	assert.True(t, stillActive.IsActive)

	assert.Contains(t, actionsOf(env.recorder.Events()), audit.ActionEvicted)
}

func TestSessionCap_RejectPolicy(t *testing.T) {
	env := newTestEnv(t, 1, limiter.PolicyReject)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 17, "kate")

	_, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)

	_, err = env.svc.Issue(ctx, subj)
	require.Error(t, err)
	assert.ErrorIs(t, err, limiter.ErrMaxSignInExceeded)

	count, err := env.rp.CountActive(ctx, subj)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLogoutAll_ClosesEverySession(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 18, "leo")

	var pairs []*TokenPair
	for i := 0; i < 3; i++ {
		pair, err := env.svc.Issue(ctx, subj)
		require.NoError(t, err)
		pairs = append(pairs, pair)
	}

	affected, err := env.svc.LogoutAll(ctx, subj)
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)

	for _, pair := range pairs {
		_, err := env.svc.ValidateAccess(ctx, pair.AccessToken, subject.TypeUser)
		assert.ErrorIs(t, err, ErrUnauthorized)
	}

	assert.Contains(t, actionsOf(env.recorder.Events()), audit.ActionForcedLogout)

	affected, err = env.svc.LogoutAll(ctx, subj)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()

	account, err := env.svc.Register(ctx, subject.TypeUser, "mallory", "Secret123")
	require.NoError(t, err)
	require.NotZero(t, account.ID)

	_, err = env.svc.Register(ctx, subject.TypeUser, "mallory", "Secret123")
	assert.ErrorIs(t, err, repo.ErrAccountExists)

	pair, err := env.svc.Login(ctx, subject.TypeUser, "mallory", "Secret123")
	require.NoError(t, err)

	got, err := env.svc.ValidateAccess(ctx, pair.AccessToken, subject.TypeUser)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	_, err = env.svc.Login(ctx, subject.TypeUser, "mallory", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.Login(ctx, subject.TypeUser, "nobody", "Secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// the same username under a different subject type is a different flow
	_, err = env.svc.Login(ctx, subject.TypeAdmin, "mallory", "Secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, subject.TypeUser, "", "secret")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Register(ctx, subject.TypeUser, "user", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLogoutByToken(t *testing.T) {
	env := newTestEnv(t, 0, limiter.PolicyEvict)
	ctx := context.Background()
	subj := env.createAccount(t, subject.TypeUser, 19, "nina")

	pair, err := env.svc.Issue(ctx, subj)
	require.NoError(t, err)

	require.NoError(t, env.svc.LogoutByToken(ctx, pair.RefreshToken))

	_, _, err = env.svc.ValidateRefresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// unknown token is a no-op, not an error
	require.NoError(t, env.svc.LogoutByToken(ctx, "unknown-token"))
}
