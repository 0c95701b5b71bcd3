package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/yourusername/identity-api/internal/config"
	"github.com/yourusername/identity-api/internal/domain/entity"
	"github.com/yourusername/identity-api/internal/domain/repository"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
)

const (
	activationCodePrefix = "activation:"
	activationCodeTTL    = 24 * time.Hour
)

// RegistrationService creates host accounts from verified provider tokens.
// The account never gets a usable password; the provider link is its only
// authenticator.
type RegistrationService struct {
	userRepo     repository.UserRepository
	linkService  *LinkService
	registry     *ProviderRegistry
	cacheRepo    repository.CacheRepository
	emailService EmailService
	authCfg      config.AuthConfig
}

func NewRegistrationService(
	userRepo repository.UserRepository,
	linkService *LinkService,
	registry *ProviderRegistry,
	cacheRepo repository.CacheRepository,
	emailService EmailService,
	authCfg config.AuthConfig,
) (*RegistrationService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if linkService == nil {
		return nil, fmt.Errorf("link service is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if cacheRepo == nil {
		return nil, fmt.Errorf("cache repository is required")
	}
	if emailService == nil {
		emailService = &NoopEmailService{}
	}
	return &RegistrationService{
		userRepo:     userRepo,
		linkService:  linkService,
		registry:     registry,
		cacheRepo:    cacheRepo,
		emailService: emailService,
		authCfg:      authCfg,
	}, nil
}

// Register creates a new account for the provider identity in the token and
// links it. Fails with ErrEmailAlreadyExists when the address is already
// taken (login with the existing account is the way in, possibly via
// auto-link), with ErrEmailNotVerified when the provider reports the address
// unverified and policy forbids that, and with AlreadyLinkedError when the
// provider identity is already connected somewhere.
func (s *RegistrationService) Register(ctx context.Context, providerTag, token string) (*entity.User, error) {
	provider, err := s.registry.Get(providerTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	claims, err := provider.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	email := normalizeEmail(claims.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: provider token carries no email address", apperrors.ErrValidation)
	}
	if !claims.EmailVerified && !s.authCfg.AllowUnverifiedEmailAddresses {
		return nil, ErrEmailNotVerified
	}

	exists, err := s.userRepo.EmailExists(email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailAlreadyExists
	}

	username, err := s.generateUniqueUsername(email, provider.Name(), claims.ProviderSub)
	if err != nil {
		return nil, err
	}
	randomPassword, err := generateRandomHex(32)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &entity.User{
		Username:            username,
		Email:               email,
		Password:            randomPassword,
		PasswordAuthEnabled: false,
		FirstName:           claims.GivenName,
		LastName:            claims.FamilyName,
		Active:              s.authCfg.ActivationMode == config.ActivationAuto,
	}
	if claims.EmailVerified {
		user.EmailVerifiedAt = &now
	}

	if err := s.userRepo.Create(user); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if _, err := s.linkService.Connect(ctx, SystemCaller, user.ID, provider.Name(), token, false); err != nil {
		return nil, err
	}

	if s.authCfg.ActivationMode == config.ActivationMail {
		if err := s.sendActivationMail(ctx, user); err != nil {
			log.Printf("[RegistrationService] failed to send activation mail for account %s: %v", user.ID, err)
		}
	}

	log.Printf("[RegistrationService] registered account %s via %s (activation=%s)", user.ID, provider.Name(), s.authCfg.ActivationMode)
	return user, nil
}

// Activate consumes a mailed activation code and activates the account.
func (s *RegistrationService) Activate(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%w: empty activation code", apperrors.ErrValidation)
	}

	userID, err := s.cacheRepo.Get(activationCodePrefix + code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("%w: unknown or expired activation code", apperrors.ErrValidation)
		}
		return err
	}

	if err := s.userRepo.Activate(userID); err != nil {
		return err
	}
	if err := s.cacheRepo.Delete(activationCodePrefix + code); err != nil {
		log.Printf("[RegistrationService] failed to delete activation code for account %s: %v", userID, err)
	}
	return nil
}

func (s *RegistrationService) sendActivationMail(ctx context.Context, user *entity.User) error {
	code, err := generateRandomHex(16)
	if err != nil {
		return err
	}
	if err := s.cacheRepo.Set(activationCodePrefix+code, user.ID, activationCodeTTL); err != nil {
		return fmt.Errorf("failed to store activation code: %w", err)
	}
	idempotencyKey := fmt.Sprintf("activation:%s:%s", user.ID, code[:8])
	return s.emailService.SendActivationMail(ctx, user.Email, code, idempotencyKey)
}

func (s *RegistrationService) generateUniqueUsername(email, providerName, sub string) (string, error) {
	base := sanitizeUsername(strings.Split(email, "@")[0])
	if base == "" {
		base = providerName + "_" + sanitizeUsername(sub)
	}
	if len(base) < 3 {
		base = providerName + "user"
	}
	if len(base) > 42 {
		base = base[:42]
	}

	candidates := []string{base}
	for i := 1; i <= 100; i++ {
		candidates = append(candidates, fmt.Sprintf("%s_%d", base, i))
	}

	for _, candidate := range candidates {
		_, err := s.userRepo.GetByUsername(candidate)
		if errors.Is(err, apperrors.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}

	randomSuffix, err := generateRandomHex(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s", base, randomSuffix), nil
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	var b strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func generateRandomHex(byteLen int) (string, error) {
	if byteLen <= 0 {
		byteLen = 16
	}
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
