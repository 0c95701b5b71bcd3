package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/identity-api/internal/config"
	"github.com/yourusername/identity-api/internal/domain/entity"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
)

func newTestRegistrationService(
	t *testing.T,
	userRepo *MockUserRepository,
	linkRepo *MockLinkRepository,
	cacheRepo *MockCacheRepository,
	authCfg config.AuthConfig,
	providers ...Provider,
) *RegistrationService {
	t.Helper()
	registry := NewProviderRegistry(providers...)
	linkService, err := NewLinkService(userRepo, linkRepo, registry)
	require.NoError(t, err)
	svc, err := NewRegistrationService(userRepo, linkService, registry, cacheRepo, &NoopEmailService{}, authCfg)
	require.NoError(t, err)
	return svc
}

func expectLinkCreation(userRepo *MockUserRepository, linkRepo *MockLinkRepository, userID string) {
	userRepo.On("GetByID", userID).Return(&entity.User{ID: userID}, nil)
	linkRepo.On("GetByProviderSub", GoogleProvider, "sub-123").Return(nil, apperrors.ErrNotFound)
	linkRepo.On("GetByUserAndProvider", userID, GoogleProvider).Return(nil, apperrors.ErrNotFound)
	linkRepo.On("Create", mock.AnythingOfType("*entity.FederatedLink")).Return(nil)
	userRepo.On("UpdateProfile", userID, map[string]interface{}{"federated_auth_enabled": true}).Return(nil)
}

func TestRegistrationService_Register_AutoActivation(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	cacheRepo := new(MockCacheRepository)
	provider := googleStub(testClaims(), nil)

	userRepo.On("EmailExists", "alice@example.com").Return(false, nil)
	userRepo.On("GetByUsername", "alice").Return(nil, apperrors.ErrNotFound)
	userRepo.On("Create", mock.AnythingOfType("*entity.User")).Run(func(args mock.Arguments) {
		args.Get(0).(*entity.User).ID = "user-1"
	}).Return(nil)
	expectLinkCreation(userRepo, linkRepo, "user-1")

	svc := newTestRegistrationService(t, userRepo, linkRepo, cacheRepo,
		config.AuthConfig{ActivationMode: config.ActivationAuto}, provider)

	user, err := svc.Register(context.Background(), GoogleProvider, "token")

	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.Active)
	assert.False(t, user.PasswordAuthEnabled)
	assert.NotNil(t, user.EmailVerifiedAt)
	userRepo.AssertExpectations(t)
	linkRepo.AssertExpectations(t)
}

func TestRegistrationService_Register_ManualActivationLeavesInactive(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	cacheRepo := new(MockCacheRepository)
	provider := googleStub(testClaims(), nil)

	userRepo.On("EmailExists", "alice@example.com").Return(false, nil)
	userRepo.On("GetByUsername", "alice").Return(nil, apperrors.ErrNotFound)
	userRepo.On("Create", mock.AnythingOfType("*entity.User")).Run(func(args mock.Arguments) {
		args.Get(0).(*entity.User).ID = "user-1"
	}).Return(nil)
	expectLinkCreation(userRepo, linkRepo, "user-1")

	svc := newTestRegistrationService(t, userRepo, linkRepo, cacheRepo,
		config.AuthConfig{ActivationMode: config.ActivationManual}, provider)

	user, err := svc.Register(context.Background(), GoogleProvider, "token")

	require.NoError(t, err)
	assert.False(t, user.Active)
}

func TestRegistrationService_Register_MailActivationStoresCode(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	cacheRepo := new(MockCacheRepository)
	provider := googleStub(testClaims(), nil)

	userRepo.On("EmailExists", "alice@example.com").Return(false, nil)
	userRepo.On("GetByUsername", "alice").Return(nil, apperrors.ErrNotFound)
	userRepo.On("Create", mock.AnythingOfType("*entity.User")).Run(func(args mock.Arguments) {
		args.Get(0).(*entity.User).ID = "user-1"
	}).Return(nil)
	expectLinkCreation(userRepo, linkRepo, "user-1")
	cacheRepo.On("Set", mock.MatchedBy(func(key string) bool {
		return len(key) > len(activationCodePrefix)
	}), "user-1", activationCodeTTL).Return(nil)

	svc := newTestRegistrationService(t, userRepo, linkRepo, cacheRepo,
		config.AuthConfig{ActivationMode: config.ActivationMail}, provider)

	user, err := svc.Register(context.Background(), GoogleProvider, "token")

	require.NoError(t, err)
	assert.False(t, user.Active)
	cacheRepo.AssertExpectations(t)
}

func TestRegistrationService_Register_EmailAlreadyExists(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	cacheRepo := new(MockCacheRepository)
	provider := googleStub(testClaims(), nil)

	userRepo.On("EmailExists", "alice@example.com").Return(true, nil)

	svc := newTestRegistrationService(t, userRepo, linkRepo, cacheRepo,
		config.AuthConfig{ActivationMode: config.ActivationAuto}, provider)

	user, err := svc.Register(context.Background(), GoogleProvider, "token")

	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
	userRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestRegistrationService_Register_UnverifiedEmailRejected(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	cacheRepo := new(MockCacheRepository)
	claims := testClaims()
	claims.EmailVerified = false
	provider := googleStub(claims, nil)

	svc := newTestRegistrationService(t, userRepo, linkRepo, cacheRepo,
		config.AuthConfig{ActivationMode: config.ActivationAuto}, provider)

	user, err := svc.Register(context.Background(), GoogleProvider, "token")

	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestRegistrationService_Register_UnverifiedEmailAllowedByPolicy(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	cacheRepo := new(MockCacheRepository)
	claims := testClaims()
	claims.EmailVerified = false
	provider := googleStub(claims, nil)

	userRepo.On("EmailExists", "alice@example.com").Return(false, nil)
	userRepo.On("GetByUsername", "alice").Return(nil, apperrors.ErrNotFound)
	userRepo.On("Create", mock.AnythingOfType("*entity.User")).Run(func(args mock.Arguments) {
		args.Get(0).(*entity.User).ID = "user-1"
	}).Return(nil)
	expectLinkCreation(userRepo, linkRepo, "user-1")

	svc := newTestRegistrationService(t, userRepo, linkRepo, cacheRepo,
		config.AuthConfig{ActivationMode: config.ActivationAuto, AllowUnverifiedEmailAddresses: true}, provider)

	user, err := svc.Register(context.Background(), GoogleProvider, "token")

	require.NoError(t, err)
	assert.Nil(t, user.EmailVerifiedAt)
}

func TestRegistrationService_Register_NoEmailInToken(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	cacheRepo := new(MockCacheRepository)
	claims := testClaims()
	claims.Email = ""
	provider := googleStub(claims, nil)

	svc := newTestRegistrationService(t, userRepo, linkRepo, cacheRepo,
		config.AuthConfig{ActivationMode: config.ActivationAuto}, provider)

	user, err := svc.Register(context.Background(), GoogleProvider, "token")

	assert.Nil(t, user)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRegistrationService_Register_UsernameCollisionGetsSuffix(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	cacheRepo := new(MockCacheRepository)
	provider := googleStub(testClaims(), nil)

	userRepo.On("EmailExists", "alice@example.com").Return(false, nil)
	userRepo.On("GetByUsername", "alice").Return(&entity.User{ID: "user-9", Username: "alice"}, nil)
	userRepo.On("GetByUsername", "alice_1").Return(nil, apperrors.ErrNotFound)
	userRepo.On("Create", mock.AnythingOfType("*entity.User")).Run(func(args mock.Arguments) {
		args.Get(0).(*entity.User).ID = "user-1"
	}).Return(nil)
	expectLinkCreation(userRepo, linkRepo, "user-1")

	svc := newTestRegistrationService(t, userRepo, linkRepo, cacheRepo,
		config.AuthConfig{ActivationMode: config.ActivationAuto}, provider)

	user, err := svc.Register(context.Background(), GoogleProvider, "token")

	require.NoError(t, err)
	assert.Equal(t, "alice_1", user.Username)
}

func TestRegistrationService_Activate_Success(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	cacheRepo := new(MockCacheRepository)
	provider := googleStub(testClaims(), nil)

	cacheRepo.On("Get", activationCodePrefix+"code-1").Return("user-1", nil)
	userRepo.On("Activate", "user-1").Return(nil)
	cacheRepo.On("Delete", activationCodePrefix+"code-1").Return(nil)

	svc := newTestRegistrationService(t, userRepo, linkRepo, cacheRepo,
		config.AuthConfig{ActivationMode: config.ActivationMail}, provider)

	err := svc.Activate(context.Background(), "code-1")

	require.NoError(t, err)
	userRepo.AssertExpectations(t)
	cacheRepo.AssertExpectations(t)
}

func TestRegistrationService_Activate_UnknownCode(t *testing.T) {
	userRepo := new(MockUserRepository)
	linkRepo := new(MockLinkRepository)
	cacheRepo := new(MockCacheRepository)
	provider := googleStub(testClaims(), nil)

	cacheRepo.On("Get", activationCodePrefix+"nope").Return("", apperrors.ErrNotFound)

	svc := newTestRegistrationService(t, userRepo, linkRepo, cacheRepo,
		config.AuthConfig{ActivationMode: config.ActivationMail}, provider)

	err := svc.Activate(context.Background(), "nope")

	assert.ErrorIs(t, err, apperrors.ErrValidation)
	userRepo.AssertNotCalled(t, "Activate", mock.Anything)
}
