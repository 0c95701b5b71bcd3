package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/identity-api/internal/domain/entity"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
)

// ============================================================================
// Mocks shared by the service tests
// ============================================================================

// MockUserRepository implements repository.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(user *entity.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(id string) (*entity.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(email string) (*entity.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(username string) (*entity.User, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) EmailExists(email string) (bool, error) {
	args := m.Called(email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) UsernameExists(username string) (bool, error) {
	args := m.Called(username)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) UpdateProfile(userID string, updates map[string]interface{}) error {
	args := m.Called(userID, updates)
	return args.Error(0)
}

func (m *MockUserRepository) UpdatePassword(userID string, newPassword string) error {
	args := m.Called(userID, newPassword)
	return args.Error(0)
}

func (m *MockUserRepository) Activate(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockUserRepository) Delete(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockUserRepository) List(limit, offset int) ([]entity.User, error) {
	args := m.Called(limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.User), args.Error(1)
}

// MockLinkRepository implements repository.LinkRepository
type MockLinkRepository struct {
	mock.Mock
}

func (m *MockLinkRepository) Create(link *entity.FederatedLink) error {
	args := m.Called(link)
	return args.Error(0)
}

func (m *MockLinkRepository) GetByProviderSub(provider, providerSub string) (*entity.FederatedLink, error) {
	args := m.Called(provider, providerSub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.FederatedLink), args.Error(1)
}

func (m *MockLinkRepository) GetByUserAndProvider(userID, provider string) (*entity.FederatedLink, error) {
	args := m.Called(userID, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.FederatedLink), args.Error(1)
}

func (m *MockLinkRepository) ListByUser(userID string) ([]entity.FederatedLink, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.FederatedLink), args.Error(1)
}

func (m *MockLinkRepository) ListAll() ([]entity.FederatedLink, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.FederatedLink), args.Error(1)
}

func (m *MockLinkRepository) DeleteByUserAndProvider(userID, provider string) error {
	args := m.Called(userID, provider)
	return args.Error(0)
}

func (m *MockLinkRepository) DeleteByUserID(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

// MockCacheRepository implements repository.CacheRepository
type MockCacheRepository struct {
	mock.Mock
}

func (m *MockCacheRepository) Set(key string, value interface{}, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepository) Get(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *MockCacheRepository) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockCacheRepository) Increment(key string) (int64, error) {
	args := m.Called(key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCacheRepository) SetJSON(key string, value interface{}, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepository) GetJSON(key string, dest interface{}) error {
	args := m.Called(key, dest)
	return args.Error(0)
}

func (m *MockCacheRepository) Exists(key string) (bool, error) {
	args := m.Called(key)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheRepository) SetNX(key string, value interface{}, expiration time.Duration) (bool, error) {
	args := m.Called(key, value, expiration)
	return args.Bool(0), args.Error(1)
}

// stubProvider is a canned Provider for flow tests.
type stubProvider struct {
	name      string
	claims    *ProfileClaims
	verifyErr error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Verify(ctx context.Context, token string) (*ProfileClaims, error) {
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	return p.claims, nil
}

func (p *stubProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	return "", errors.New("not implemented")
}

func googleStub(claims *ProfileClaims, verifyErr error) *stubProvider {
	return &stubProvider{name: GoogleProvider, claims: claims, verifyErr: verifyErr}
}

func testClaims() *ProfileClaims {
	return &ProfileClaims{
		ProviderSub:   "sub-123",
		Email:         "alice@example.com",
		EmailVerified: true,
		GivenName:     "Alice",
		FamilyName:    "Smith",
		DisplayName:   "Alice Smith",
	}
}

// ============================================================================
// LinkService tests
// ============================================================================

func newTestLinkService(t *testing.T, userRepo *MockUserRepository, linkRepo *MockLinkRepository, providers ...Provider) *LinkService {
	t.Helper()
	svc, err := NewLinkService(userRepo, linkRepo, NewProviderRegistry(providers...))
	require.NoError(t, err)
	return svc
}

func TestLinkService_Connect_Success(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	provider := googleStub(testClaims(), nil)

	userRepo.On("GetByID", "user-1").Return(&entity.User{ID: "user-1"}, nil)
	linkRepo.On("GetByProviderSub", GoogleProvider, "sub-123").Return(nil, apperrors.ErrNotFound)
	linkRepo.On("GetByUserAndProvider", "user-1", GoogleProvider).Return(nil, apperrors.ErrNotFound)
	linkRepo.On("Create", mock.AnythingOfType("*entity.FederatedLink")).Return(nil)
	userRepo.On("UpdateProfile", "user-1", map[string]interface{}{"federated_auth_enabled": true}).Return(nil)

	svc := newTestLinkService(t, userRepo, linkRepo, provider)

	link, err := svc.Connect(context.Background(), Caller{UserID: "user-1"}, "user-1", GoogleProvider, "token", true)

	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "user-1", link.UserID)
	assert.Equal(t, GoogleProvider, link.Provider)
	assert.Equal(t, "sub-123", link.ProviderSub)
	assert.Equal(t, "alice@example.com", link.ProviderEmail)
	userRepo.AssertExpectations(t)
	linkRepo.AssertExpectations(t)
}

func TestLinkService_Connect_PermissionDenied(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	provider := googleStub(testClaims(), nil)

	svc := newTestLinkService(t, userRepo, linkRepo, provider)

	// Session user differs from the target account.
	link, err := svc.Connect(context.Background(), Caller{UserID: "user-2"}, "user-1", GoogleProvider, "token", true)

	assert.Nil(t, link)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	linkRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestLinkService_Connect_SystemCallerSkipsPermission(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	provider := googleStub(testClaims(), nil)

	userRepo.On("GetByID", "user-1").Return(&entity.User{ID: "user-1"}, nil)
	linkRepo.On("GetByProviderSub", GoogleProvider, "sub-123").Return(nil, apperrors.ErrNotFound)
	linkRepo.On("GetByUserAndProvider", "user-1", GoogleProvider).Return(nil, apperrors.ErrNotFound)
	linkRepo.On("Create", mock.AnythingOfType("*entity.FederatedLink")).Return(nil)
	userRepo.On("UpdateProfile", "user-1", mock.Anything).Return(nil)

	svc := newTestLinkService(t, userRepo, linkRepo, provider)

	_, err := svc.Connect(context.Background(), SystemCaller, "user-1", GoogleProvider, "token", true)

	require.NoError(t, err)
}

func TestLinkService_Connect_InvalidToken(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	provider := googleStub(nil, ErrInvalidToken)

	svc := newTestLinkService(t, userRepo, linkRepo, provider)

	link, err := svc.Connect(context.Background(), Caller{UserID: "user-1"}, "user-1", GoogleProvider, "bad", true)

	assert.Nil(t, link)
	assert.ErrorIs(t, err, ErrInvalidToken)
	linkRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestLinkService_Connect_IdentityAlreadyLinked(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	provider := googleStub(testClaims(), nil)

	userRepo.On("GetByID", "user-1").Return(&entity.User{ID: "user-1"}, nil)
	// Someone (possibly another account) already owns this provider identity.
	linkRepo.On("GetByProviderSub", GoogleProvider, "sub-123").
		Return(&entity.FederatedLink{UserID: "user-9", Provider: GoogleProvider, ProviderSub: "sub-123"}, nil)

	svc := newTestLinkService(t, userRepo, linkRepo, provider)

	link, err := svc.Connect(context.Background(), Caller{UserID: "user-1"}, "user-1", GoogleProvider, "token", true)

	assert.Nil(t, link)
	var alreadyLinked *AlreadyLinkedError
	require.ErrorAs(t, err, &alreadyLinked)
	assert.Equal(t, GoogleProvider, alreadyLinked.Provider)
	assert.Equal(t, "alice@example.com", alreadyLinked.Email)
	linkRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestLinkService_Connect_AccountAlreadyHasProviderLink(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	provider := googleStub(testClaims(), nil)

	userRepo.On("GetByID", "user-1").Return(&entity.User{ID: "user-1"}, nil)
	linkRepo.On("GetByProviderSub", GoogleProvider, "sub-123").Return(nil, apperrors.ErrNotFound)
	linkRepo.On("GetByUserAndProvider", "user-1", GoogleProvider).
		Return(&entity.FederatedLink{UserID: "user-1", Provider: GoogleProvider, ProviderSub: "other-sub", ProviderEmail: "old@example.com"}, nil)

	svc := newTestLinkService(t, userRepo, linkRepo, provider)

	link, err := svc.Connect(context.Background(), Caller{UserID: "user-1"}, "user-1", GoogleProvider, "token", true)

	assert.Nil(t, link)
	var alreadyLinked *AlreadyLinkedError
	require.ErrorAs(t, err, &alreadyLinked)
	assert.Equal(t, "old@example.com", alreadyLinked.Email)
	linkRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestLinkService_Connect_ConcurrentConflictFromConstraint(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	provider := googleStub(testClaims(), nil)

	userRepo.On("GetByID", "user-1").Return(&entity.User{ID: "user-1"}, nil)
	linkRepo.On("GetByProviderSub", GoogleProvider, "sub-123").Return(nil, apperrors.ErrNotFound)
	linkRepo.On("GetByUserAndProvider", "user-1", GoogleProvider).Return(nil, apperrors.ErrNotFound)
	// A concurrent connect won the race; the unique constraint fires.
	linkRepo.On("Create", mock.AnythingOfType("*entity.FederatedLink")).Return(apperrors.ErrConflict)

	svc := newTestLinkService(t, userRepo, linkRepo, provider)

	link, err := svc.Connect(context.Background(), Caller{UserID: "user-1"}, "user-1", GoogleProvider, "token", true)

	assert.Nil(t, link)
	var alreadyLinked *AlreadyLinkedError
	assert.ErrorAs(t, err, &alreadyLinked)
}

func TestLinkService_Connect_UnknownProvider(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)

	svc := newTestLinkService(t, userRepo, linkRepo, googleStub(testClaims(), nil))

	link, err := svc.Connect(context.Background(), Caller{UserID: "user-1"}, "user-1", "github", "token", true)

	assert.Nil(t, link)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestLinkService_Disconnect_IdempotentAndClearsFlag(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	provider := googleStub(testClaims(), nil)

	linkRepo.On("DeleteByUserAndProvider", "user-1", GoogleProvider).Return(nil)
	linkRepo.On("ListByUser", "user-1").Return([]entity.FederatedLink{}, nil)
	userRepo.On("UpdateProfile", "user-1", map[string]interface{}{"federated_auth_enabled": false}).Return(nil)

	svc := newTestLinkService(t, userRepo, linkRepo, provider)

	err := svc.Disconnect(context.Background(), Caller{UserID: "user-1"}, "user-1", GoogleProvider, true)

	require.NoError(t, err)
	userRepo.AssertExpectations(t)
	linkRepo.AssertExpectations(t)
}

func TestLinkService_Disconnect_KeepsFlagWhileLinksRemain(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	provider := googleStub(testClaims(), nil)

	linkRepo.On("DeleteByUserAndProvider", "user-1", GoogleProvider).Return(nil)
	linkRepo.On("ListByUser", "user-1").Return([]entity.FederatedLink{
		{UserID: "user-1", Provider: FacebookProvider, ProviderSub: "fb-1"},
	}, nil)

	svc := newTestLinkService(t, userRepo, linkRepo, provider)

	err := svc.Disconnect(context.Background(), Caller{UserID: "user-1"}, "user-1", GoogleProvider, true)

	require.NoError(t, err)
	userRepo.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything)
}

func TestLinkService_Disconnect_PermissionDenied(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	provider := googleStub(testClaims(), nil)

	svc := newTestLinkService(t, userRepo, linkRepo, provider)

	err := svc.Disconnect(context.Background(), Caller{UserID: "user-2"}, "user-1", GoogleProvider, true)

	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	linkRepo.AssertNotCalled(t, "DeleteByUserAndProvider", mock.Anything, mock.Anything)
}

func TestLinkService_DisconnectAll_Cascade(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	provider := googleStub(testClaims(), nil)

	linkRepo.On("DeleteByUserID", "user-1").Return(nil)
	linkRepo.On("ListByUser", "user-1").Return([]entity.FederatedLink{}, nil)
	userRepo.On("UpdateProfile", "user-1", map[string]interface{}{"federated_auth_enabled": false}).Return(nil)

	svc := newTestLinkService(t, userRepo, linkRepo, provider)

	err := svc.DisconnectAll(context.Background(), "user-1")

	require.NoError(t, err)
	linkRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}
