package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/tienda/internal/hash"
	"github.com/Skotchmaster/tienda/internal/metrics"
	"github.com/Skotchmaster/tienda/internal/models"
	"github.com/Skotchmaster/tienda/internal/repo"
	"github.com/Skotchmaster/tienda/internal/testutil"
	"github.com/Skotchmaster/tienda/internal/tokens"
)

type recordedEvent struct {
	topic, key string
	event      Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (f *fakePublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, recordedEvent{topic: topic, key: key, event: event.(Event)})
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.event.Type)
	}
	return out
}

type testEnv struct {
	svc    *SessionService
	repo   *repo.GormRepo
	events *fakePublisher
	clock  *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	testutil.SeedRoles(t, db)
	r := repo.New(db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env := &testEnv{repo: r, events: &fakePublisher{}, clock: &now}

	signer := tokens.NewSigner([]byte("test-jwt-key-test-jwt-key-test-jwt"), "tienda-test", "tienda-clients", 15*time.Minute)
	signer.Now = func() time.Time { return *env.clock }

	svc := NewSessionService(r, hash.Bcrypt{Cost: 4}, signer, tokens.DefaultRefreshTTL)
	svc.Events = env.events
	svc.Metrics = metrics.New()
	svc.Now = func() time.Time { return *env.clock }
	env.svc = svc
	return env
}

func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

func anaInput() RegisterInput {
	return RegisterInput{
		FirstName:     "Ana",
		FatherSurname: "Garcia",
		MotherSurname: "Ruiz",
		Email:         "ana@example.com",
		Username:      "ana",
		Password:      "Secr3t!",
	}
}

func registerAna(t *testing.T, env *testEnv) {
	t.Helper()
	_, err := env.svc.Register(context.Background(), anaInput())
	require.NoError(t, err)
}

func TestRegisterLoginRefreshScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	msg, err := env.svc.Register(ctx, anaInput())
	require.NoError(t, err)
	assert.Contains(t, msg, "registered successfully")

	data, err := env.svc.Login(ctx, LoginInput{Username: "ana", Password: "Secr3t!"})
	require.NoError(t, err)
	assert.True(t, data.Authenticated)
	assert.Equal(t, []string{models.DefaultRole}, data.Roles)
	assert.Equal(t, "ana@example.com", data.Email)
	assert.NotEmpty(t, data.Token)
	assert.NotEmpty(t, data.RefreshToken)
	assert.WithinDuration(t, env.clock.Add(10*24*time.Hour), data.RefreshTokenExpiration, time.Second)

	refreshed, err := env.svc.Refresh(ctx, data.RefreshToken)
	require.NoError(t, err)
	assert.True(t, refreshed.Authenticated)
	assert.NotEqual(t, data.RefreshToken, refreshed.RefreshToken)

	_, old, err := env.repo.FindUserByRefreshToken(ctx, data.RefreshToken)
	require.NoError(t, err)
	assert.False(t, old.IsActive(*env.clock))
	require.NotNil(t, old.ReplacedByID)

	bad, err := env.svc.Login(ctx, LoginInput{Username: "ana", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	require.NotNil(t, bad)
	assert.False(t, bad.Authenticated)
	assert.Empty(t, bad.Token)

	assert.Equal(t,
		[]string{"user_registered", "user_logged_in", "refresh_token_rotated"},
		env.events.types(),
	)
}

func TestRegisteredUserHoldsDefaultRoleAndHash(t *testing.T) {
	env := newTestEnv(t)
	registerAna(t, env)

	u, err := env.repo.FindUserByUsername(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, []string{models.DefaultRole}, u.RoleNames())
	assert.NotEqual(t, "Secr3t!", u.PasswordHash)

	h := hash.Bcrypt{Cost: 4}
	assert.Equal(t, hash.VerifySuccess, h.Verify(u.PasswordHash, "Secr3t!"))
	assert.Equal(t, hash.VerifyFailed, h.Verify(u.PasswordHash, "secr3t!"))
}

func TestRegisterDuplicateAnyCase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAna(t, env)

	for _, name := range []string{"ana", "ANA", "Ana"} {
		in := anaInput()
		in.Username = name
		msg, err := env.svc.Register(ctx, in)
		assert.ErrorIs(t, err, ErrConflict, name)
		assert.Contains(t, msg, "already registered")
	}

	var count int64
	require.NoError(t, env.repo.DB.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	in := anaInput()
	in.Username = "  "
	in.Password = ""
	msg, err := env.svc.Register(context.Background(), in)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, msg, "username")
	assert.Contains(t, msg, "password")
}

func TestRegisterWithoutDefaultRole(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.repo.DB.Where("name = ?", models.DefaultRole).Delete(&models.Role{}).Error)

	msg, err := env.svc.Register(context.Background(), anaInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.True(t, len(msg) > 0)
}

type failingStore struct {
	UserStore
	createErr error
}

func (f failingStore) CreateUser(context.Context, *models.User) error {
	return f.createErr
}

func TestRegisterStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	cause := errors.New("disk full")
	env.svc.Store = failingStore{UserStore: env.repo, createErr: cause}

	msg, err := env.svc.Register(context.Background(), anaInput())
	require.Error(t, err)
	assert.Equal(t, "Error: disk full", msg)

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "create user", se.Op)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, env.events.types())
}

func TestLoginUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	data, err := env.svc.Login(context.Background(), LoginInput{Username: "ghost", Password: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NotNil(t, data)
	assert.False(t, data.Authenticated)
	assert.Contains(t, data.Message, "ghost")
}

func TestLoginReusesActiveRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAna(t, env)

	first, err := env.svc.Login(ctx, LoginInput{Username: "ana", Password: "Secr3t!"})
	require.NoError(t, err)

	env.advance(time.Hour)
	second, err := env.svc.Login(ctx, LoginInput{Username: "ANA", Password: "Secr3t!"})
	require.NoError(t, err)

	assert.Equal(t, first.RefreshToken, second.RefreshToken)
	assert.WithinDuration(t, first.RefreshTokenExpiration, second.RefreshTokenExpiration, time.Millisecond)
	assert.NotEqual(t, first.Token, second.Token)

	u, err := env.repo.FindUserByUsername(ctx, "ana")
	require.NoError(t, err)
	list, err := env.repo.RefreshTokensOf(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLoginAfterExpiryCreatesNewRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAna(t, env)

	first, err := env.svc.Login(ctx, LoginInput{Username: "ana", Password: "Secr3t!"})
	require.NoError(t, err)

	env.advance(tokens.DefaultRefreshTTL + time.Minute)
	second, err := env.svc.Login(ctx, LoginInput{Username: "ana", Password: "Secr3t!"})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.True(t, second.RefreshTokenExpiration.After(*env.clock))
}

func TestLoginAccessTokenClaims(t *testing.T) {
	env := newTestEnv(t)
	registerAna(t, env)

	data, err := env.svc.Login(context.Background(), LoginInput{Username: "ana", Password: "Secr3t!"})
	require.NoError(t, err)

	claims, err := env.svc.Signer.Parse(data.Token)
	require.NoError(t, err)
	assert.Equal(t, "ana", claims.Subject)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.True(t, claims.HasRole(models.DefaultRole))
	assert.NotZero(t, claims.UID)
}

func TestRefreshReplayFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAna(t, env)

	data, err := env.svc.Login(ctx, LoginInput{Username: "ana", Password: "Secr3t!"})
	require.NoError(t, err)

	t2, err := env.svc.Refresh(ctx, data.RefreshToken)
	require.NoError(t, err)

	replay, err := env.svc.Refresh(ctx, data.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.False(t, replay.Authenticated)

	_, err = env.svc.Refresh(ctx, t2.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshExpiredAndUnknown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAna(t, env)

	data, err := env.svc.Login(ctx, LoginInput{Username: "ana", Password: "Secr3t!"})
	require.NoError(t, err)

	_, err = env.svc.Refresh(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	env.advance(tokens.DefaultRefreshTTL)
	_, err = env.svc.Refresh(ctx, data.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshRevokedToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAna(t, env)

	data, err := env.svc.Login(ctx, LoginInput{Username: "ana", Password: "Secr3t!"})
	require.NoError(t, err)
	require.NoError(t, env.svc.Logout(ctx, data.RefreshToken))

	_, err = env.svc.Refresh(ctx, data.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConcurrentRefreshOneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAna(t, env)

	data, err := env.svc.Login(ctx, LoginInput{Username: "ana", Password: "Secr3t!"})
	require.NoError(t, err)

	const callers = 5
	results := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.svc.Refresh(ctx, data.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.Equal(t, 1, wins)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAna(t, env)

	data, err := env.svc.Login(ctx, LoginInput{Username: "ana", Password: "Secr3t!"})
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, data.RefreshToken))
	require.NoError(t, env.svc.Logout(ctx, data.RefreshToken))
	require.NoError(t, env.svc.Logout(ctx, "unknown"))

	_, tok, err := env.repo.FindUserByRefreshToken(ctx, data.RefreshToken)
	require.NoError(t, err)
	assert.True(t, tok.IsRevoked())
	assert.Nil(t, tok.ReplacedByID)

	next, err := env.svc.Login(ctx, LoginInput{Username: "ana", Password: "Secr3t!"})
	require.NoError(t, err)
	assert.NotEqual(t, data.RefreshToken, next.RefreshToken)
}

func TestAddRoleIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAna(t, env)

	in := AddRoleInput{Username: "ana", Password: "Secr3t!", Role: "gerente"}
	_, err := env.svc.AddRole(ctx, in)
	require.NoError(t, err)
	msg, err := env.svc.AddRole(ctx, in)
	require.NoError(t, err)
	assert.Contains(t, msg, "already has role")

	u, err := env.repo.FindUserByUsername(ctx, "ana")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{models.RoleEmployee, models.RoleManager}, u.RoleNames())

	var rows int64
	require.NoError(t, env.repo.DB.Table("users_roles").
		Where("user_id = ? AND role_id = ?", u.ID, u.Roles[indexOfRole(u, models.RoleManager)].ID).
		Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	data, err := env.svc.Login(ctx, LoginInput{Username: "ana", Password: "Secr3t!"})
	require.NoError(t, err)
	assert.Contains(t, data.Roles, models.RoleManager)
}

func indexOfRole(u *models.User, name string) int {
	for i, r := range u.Roles {
		if r.Name == name {
			return i
		}
	}
	return -1
}

func TestAddRoleFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAna(t, env)

	_, err := env.svc.AddRole(ctx, AddRoleInput{Username: "ana", Password: "nope", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.AddRole(ctx, AddRoleInput{Username: "bob", Password: "Secr3t!", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.AddRole(ctx, AddRoleInput{Username: "ana", Password: "Secr3t!", Role: "Auditor"})
	assert.ErrorIs(t, err, ErrNotFound)

	u, err := env.repo.FindUserByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, []string{models.DefaultRole}, u.RoleNames())
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv(t)
	env.events.err = errors.New("broker down")

	msg, err := env.svc.Register(context.Background(), anaInput())
	require.NoError(t, err)
	assert.Contains(t, msg, "registered successfully")
}

func TestEmptySignerKeyFailsLogin(t *testing.T) {
	env := newTestEnv(t)
	registerAna(t, env)
	env.svc.Signer.Key = nil

	data, err := env.svc.Login(context.Background(), LoginInput{Username: "ana", Password: "Secr3t!"})
	assert.ErrorIs(t, err, tokens.ErrSignerConfig)
	assert.False(t, data.Authenticated)
}
