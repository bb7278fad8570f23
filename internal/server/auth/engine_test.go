package auth

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/authgate/authgate/internal/common"
	"github.com/authgate/authgate/internal/cryptox"
	"github.com/authgate/authgate/internal/logging"
	"github.com/authgate/authgate/internal/server/denylist"
	"github.com/authgate/authgate/internal/server/models"
	"github.com/authgate/authgate/internal/server/token"
	"github.com/authgate/authgate/internal/server/users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory authorizations.Repository. Rotate implements
// the same compare-and-swap discipline as the SQL implementation.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Authorization
	black  []*models.AuthBlacklist
	audits []*models.AuditLogEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, rows: map[int64]*models.Authorization{}}
}

func (s *fakeStore) Create(_ context.Context, auth *models.Authorization) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	cp := *auth
	cp.ID = id
	s.rows[id] = &cp
	return id, nil
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*models.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *fakeStore) GetByUUID(_ context.Context, id uuid.UUID) (*models.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.UUID == id {
			cp := *row
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (s *fakeStore) Rotate(_ context.Context, id int64, prevRefreshJTI uuid.UUID, rot models.Rotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || !row.Enabled || row.RefreshTokenJTI != prevRefreshJTI {
		return common.ErrConflict
	}
	row.RefreshTokenJTI = rot.RefreshTokenJTI
	row.AccessTokenJTI = rot.AccessTokenJTI
	row.AccessTokenExp = rot.AccessTokenExp
	row.AccessTokenIat = rot.AccessTokenIat
	row.UpdatedAt = rot.At
	row.LastRefreshAt = rot.At
	return nil
}

func (s *fakeStore) Disable(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	row.Enabled = false
	row.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) InsertBlacklist(_ context.Context, entry *models.AuthBlacklist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.black = append(s.black, entry)
	return nil
}

func (s *fakeStore) AppendAudit(_ context.Context, entry *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, entry)
	return nil
}

func (s *fakeStore) auditCodes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]int, 0, len(s.audits))
	for _, a := range s.audits {
		codes = append(codes, a.Code)
	}
	return codes
}

// fakeDirectory is an in-memory UserDirectory with plaintext fixtures.
type fakeDirectory struct {
	mu    sync.Mutex
	users map[int64]*models.User
	creds map[string]string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: map[int64]*models.User{}, creds: map[string]string{}}
}

func (d *fakeDirectory) add(user *models.User, password string) {
	d.users[user.ID] = user
	d.creds[user.Username] = password
}

func (d *fakeDirectory) Authenticate(_ context.Context, username, password string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var user *models.User
	for _, u := range d.users {
		if u.Username == username {
			user = u
			break
		}
	}
	if user == nil {
		return nil, users.ErrUnknownUser
	}
	if user.Deleted {
		return user, users.ErrUserDeleted
	}
	if !user.Enabled {
		return user, users.ErrUserDisabled
	}
	if d.creds[username] != password {
		return user, users.ErrBadPassword
	}
	return user, nil
}

func (d *fakeDirectory) GetByID(_ context.Context, id int64) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return user, nil
}

func (d *fakeDirectory) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if user, ok := d.users[id]; ok {
		user.LastLoginAt = at
	}
	return nil
}

func (d *fakeDirectory) ChangePassword(_ context.Context, id int64, oldPassword, newPassword string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[id]
	if !ok {
		return users.ErrUnknownUser
	}
	if user.Deleted {
		return users.ErrUserDeleted
	}
	if !user.Enabled {
		return users.ErrUserDisabled
	}
	if d.creds[user.Username] != oldPassword {
		return users.ErrBadPassword
	}
	d.creds[user.Username] = newPassword
	return nil
}

type engineFixture struct {
	engine    *Engine
	store     *fakeStore
	directory *fakeDirectory
	deny      *denylist.MemoryDenyList
	codec     *token.Codec
}

var testClient = models.ClientInfo{IP: "10.0.0.1", UserAgent: "test"}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	store := newFakeStore()
	directory := newFakeDirectory()
	deny := denylist.NewMemoryDenyList()
	codec := token.NewCodec([]byte("test-signing-key"), []byte("0123456789abcdef"))
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	directory.add(&models.User{
		ID: 42, Username: "alice",
		Password: cryptox.HashPassword([]byte("hunter2"), []byte("salt")),
		UserType: 1, Enabled: true,
	}, "hunter2")
	directory.add(&models.User{
		ID: 43, Username: "root", UserType: 10, Enabled: true,
	}, "toor")
	directory.add(&models.User{
		ID: 44, Username: "blocked", UserType: 1, Enabled: false,
	}, "pw")

	return &engineFixture{
		engine:    NewEngine(store, directory, deny, codec, logger, 15*time.Minute, time.Hour),
		store:     store,
		directory: directory,
		deny:      deny,
		codec:     codec,
	}
}

func TestLogin_MemberScopes(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	session, err := f.engine.Login(ctx, "alice", "hunter2", testClient)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, session.ID)

	claims, err := f.codec.VerifyAndDecode(session.AccessToken.Value)
	require.NoError(t, err)
	require.Equal(t, "42", claims.Subject)
	require.Equal(t, []string{common.ScopeMember}, claims.Scopes)

	rt, err := f.codec.VerifyAndDecode(session.RefreshToken.Value)
	require.NoError(t, err)
	require.Equal(t, []string{common.ScopeRefresh}, rt.Scopes)
	// Refresh token subject is the Authorization id, not the user id.
	require.Equal(t, "1", rt.Subject)

	require.Equal(t, []int{AuditLogin}, f.store.auditCodes())
	require.False(t, f.directory.users[42].LastLoginAt.IsZero())
}

func TestLogin_AdminGetsAdminScope(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	session, err := f.engine.Login(ctx, "root", "toor", testClient)
	require.NoError(t, err)

	claims, err := f.codec.VerifyAndDecode(session.AccessToken.Value)
	require.NoError(t, err)
	require.Equal(t, []string{common.ScopeMember, common.ScopeAdmin}, claims.Scopes)
}

func TestLogin_FailuresAreUniformButAuditedDistinctly(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	_, err := f.engine.Login(ctx, "nobody", "pw", testClient)
	require.ErrorIs(t, err, common.ErrAuthFailure)

	_, err = f.engine.Login(ctx, "alice", "wrong", testClient)
	require.ErrorIs(t, err, common.ErrAuthFailure)

	_, err = f.engine.Login(ctx, "blocked", "pw", testClient)
	require.ErrorIs(t, err, common.ErrAuthFailure)

	require.Equal(t, []int{AuditLoginUnknownUser, AuditLoginBadPassword, AuditLoginUserDisabled}, f.store.auditCodes())
}

func TestVerify_ScopeEnforcement(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	session, err := f.engine.Login(ctx, "alice", "hunter2", testClient)
	require.NoError(t, err)

	principal, err := f.engine.Verify(ctx, session.AccessToken.Value, common.ScopeMember)
	require.NoError(t, err)
	require.Equal(t, int64(42), principal.UserID)

	_, err = f.engine.Verify(ctx, session.AccessToken.Value, common.ScopeAdmin)
	require.ErrorIs(t, err, common.ErrNoPermission)

	admin, err := f.engine.Login(ctx, "root", "toor", testClient)
	require.NoError(t, err)
	principal, err = f.engine.Verify(ctx, admin.AccessToken.Value, common.ScopeAdmin)
	require.NoError(t, err)
	require.Equal(t, []string{common.ScopeMember, common.ScopeAdmin}, principal.Scopes)
}

func TestVerify_GarbageBearer(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	_, err := f.engine.Verify(ctx, "garbage", "")
	require.ErrorIs(t, err, common.ErrAuthFailure)
}

func TestRefresh_RotatesAndDeniesOldAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	session, err := f.engine.Login(ctx, "alice", "hunter2", testClient)
	require.NoError(t, err)

	// Old access token verifies before the rotation.
	_, err = f.engine.Verify(ctx, session.AccessToken.Value, "")
	require.NoError(t, err)

	rotated, err := f.engine.Refresh(ctx, session.ID.String(), session.RefreshToken.Value, testClient)
	require.NoError(t, err)
	require.Equal(t, session.ID, rotated.ID)
	require.NotEqual(t, session.AccessToken.JTI, rotated.AccessToken.JTI)

	// The superseded access token is dead immediately, despite its
	// signature and expiry still being valid.
	_, err = f.engine.Verify(ctx, session.AccessToken.Value, "")
	require.ErrorIs(t, err, common.ErrAuthFailure)

	// The new pair works.
	_, err = f.engine.Verify(ctx, rotated.AccessToken.Value, "")
	require.NoError(t, err)

	// Durable blacklist row written alongside the cache entry.
	require.Len(t, f.store.black, 1)
	require.Equal(t, session.AccessToken.JTI, f.store.black[0].AccessTokenJTI)
}

func TestRefresh_StaleRefreshTokenRejected(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	session, err := f.engine.Login(ctx, "alice", "hunter2", testClient)
	require.NoError(t, err)

	rotated, err := f.engine.Refresh(ctx, session.ID.String(), session.RefreshToken.Value, testClient)
	require.NoError(t, err)

	// Replaying the superseded refresh token fails.
	_, err = f.engine.Refresh(ctx, session.ID.String(), session.RefreshToken.Value, testClient)
	require.ErrorIs(t, err, common.ErrAuthFailure)
	require.Contains(t, f.store.auditCodes(), AuditRefreshStaleToken)

	// The replacement still works.
	_, err = f.engine.Refresh(ctx, session.ID.String(), rotated.RefreshToken.Value, testClient)
	require.NoError(t, err)
}

func TestRefresh_AccessTokenLacksRefreshScope(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	session, err := f.engine.Login(ctx, "alice", "hunter2", testClient)
	require.NoError(t, err)

	_, err = f.engine.Refresh(ctx, session.ID.String(), session.AccessToken.Value, testClient)
	require.ErrorIs(t, err, common.ErrNoPermission)
	require.Contains(t, f.store.auditCodes(), AuditRefreshNoScope)
}

func TestRefresh_SessionIDMismatch(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	first, err := f.engine.Login(ctx, "alice", "hunter2", testClient)
	require.NoError(t, err)
	second, err := f.engine.Login(ctx, "alice", "hunter2", testClient)
	require.NoError(t, err)

	// A refresh token replayed against a different session handle fails.
	_, err = f.engine.Refresh(ctx, second.ID.String(), first.RefreshToken.Value, testClient)
	require.ErrorIs(t, err, common.ErrAuthFailure)
	require.Contains(t, f.store.auditCodes(), AuditRefreshSessionMismatch)
}

func TestRefresh_MalformedSessionID(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	_, err := f.engine.Refresh(ctx, "not-a-uuid", "whatever", testClient)
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestRefresh_DisabledUserRejected(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	session, err := f.engine.Login(ctx, "alice", "hunter2", testClient)
	require.NoError(t, err)

	f.directory.users[42].Enabled = false

	_, err = f.engine.Refresh(ctx, session.ID.String(), session.RefreshToken.Value, testClient)
	require.ErrorIs(t, err, common.ErrAuthFailure)
	require.Contains(t, f.store.auditCodes(), AuditRefreshUserDisabled)
}

func TestRevoke_KillsSessionAndTokens(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	session, err := f.engine.Login(ctx, "alice", "hunter2", testClient)
	require.NoError(t, err)

	require.NoError(t, f.engine.Revoke(ctx, session.ID.String(), testClient))

	// Access token dead before its natural expiry.
	_, err = f.engine.Verify(ctx, session.AccessToken.Value, "")
	require.ErrorIs(t, err, common.ErrAuthFailure)

	// Refresh of a revoked session fails.
	_, err = f.engine.Refresh(ctx, session.ID.String(), session.RefreshToken.Value, testClient)
	require.ErrorIs(t, err, common.ErrAuthFailure)

	// A second revoke fails the same way for the caller, with its own
	// audit code.
	err = f.engine.Revoke(ctx, session.ID.String(), testClient)
	require.ErrorIs(t, err, common.ErrAuthFailure)
	require.Contains(t, f.store.auditCodes(), AuditRevokeAlreadyRevoked)
}

func TestRevoke_UnknownSession(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	err := f.engine.Revoke(ctx, uuid.NewString(), testClient)
	require.ErrorIs(t, err, common.ErrAuthFailure)
	require.Contains(t, f.store.auditCodes(), AuditRevokeUnknownSession)

	err = f.engine.Revoke(ctx, "not-a-uuid", testClient)
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	err := f.engine.ChangePassword(ctx, 42, "hunter2", "correct horse", testClient)
	require.NoError(t, err)
	require.Equal(t, []int{AuditPasswordChange}, f.store.auditCodes())

	// The old password no longer logs in; the new one does.
	_, err = f.engine.Login(ctx, "alice", "hunter2", testClient)
	require.ErrorIs(t, err, common.ErrAuthFailure)
	_, err = f.engine.Login(ctx, "alice", "correct horse", testClient)
	require.NoError(t, err)
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	err := f.engine.ChangePassword(ctx, 42, "wrong", "irrelevant", testClient)
	require.ErrorIs(t, err, common.ErrValidation)
	// Failed attempts are not audited and do not change the credential.
	require.Empty(t, f.store.auditCodes())
	_, err = f.engine.Login(ctx, "alice", "hunter2", testClient)
	require.NoError(t, err)
}

func TestChangePassword_DisabledUser(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	err := f.engine.ChangePassword(ctx, 44, "pw", "new", testClient)
	require.ErrorIs(t, err, common.ErrAuthFailure)
}

func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	session, err := f.engine.Login(ctx, "alice", "hunter2", testClient)
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = f.engine.Refresh(ctx, session.ID.String(), session.RefreshToken.Value, testClient)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, common.ErrAuthFailure)
		}
	}
	require.Equal(t, 1, wins, "exactly one concurrent refresh may succeed")
}
