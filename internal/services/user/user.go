// Package user manages accounts, employee and client profiles, logins and feedback.
package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"sales-crm/internal/database/models"
	"sales-crm/internal/logger"
	"sales-crm/internal/services/access"
	"sales-crm/internal/utils"
)

const (
	USER_CACHE_PREFIX = "user:"
	CACHE_TTL_MEDIUM  = 30 * time.Minute

	MinPasswordLength = 10
	maxUsernameLength = 32
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("account not found")
	ErrHasReports         = errors.New("employee still manages other employees")
	ErrHasClients         = errors.New("salesperson still serves active clients")
	ErrInvalidSalesperson = errors.New("salesperson is not available to you")
	ErrInvalidFeedback    = errors.New("feedback is only possible between a client and its salesperson")
)

type UserHandler struct {
	db     *gorm.DB
	redis  *redis.Client
	issuer *utils.TokenIssuer
	cost   int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewUserHandler wires the account store. redisClient may be nil, which disables the
// profile cache.
func NewUserHandler(db *gorm.DB, redisClient *redis.Client, issuer *utils.TokenIssuer) *UserHandler {
	return &UserHandler{
		db:     db,
		redis:  redisClient,
		issuer: issuer,
		cost:   bcrypt.DefaultCost,
	}
}

// Credentials is a new password typed twice.
type Credentials struct {
	Password string
	Confirm  string
}

func (c Credentials) validate() error {
	if len(c.Password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if c.Password != c.Confirm {
		return ErrPasswordMismatch
	}
	return nil
}

func validateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxUsernameLength {
		return "", fmt.Errorf("%w: username must be 1-%d characters", ErrInvalidInput, maxUsernameLength)
	}
	return username, nil
}

func (h *UserHandler) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// newAccount validates the username and credentials and creates the account row in tx.
func (h *UserHandler) newAccount(tx *gorm.DB, username string, creds Credentials, isEmployee bool) (*models.Account, error) {
	username, err := validateUsername(username)
	if err != nil {
		return nil, err
	}
	if err := creds.validate(); err != nil {
		return nil, err
	}

	var taken int64
	if err := tx.Model(&models.Account{}).Where("username = ?", username).Count(&taken).Error; err != nil {
		return nil, err
	}
	if taken > 0 {
		return nil, ErrUsernameTaken
	}

	pwHash, err := h.hash(creds.Password)
	if err != nil {
		return nil, err
	}

	account := models.Account{
		Username:     username,
		PasswordHash: pwHash,
		IsEmployee:   isEmployee,
		Active:       true,
	}
	if err := tx.Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

type LoginResult struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Account   models.Account `json:"account"`
}

// Authenticate verifies a password and issues a session token. A bcrypt comparison runs
// even when the username is unknown so both failures take the same time.
func (h *UserHandler) Authenticate(ctx context.Context, username, password string) (*LoginResult, error) {
	log := logger.FromContext(ctx)

	var account models.Account
	err := h.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&account).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load account: %w", err)
	}

	hashed := []byte(account.PasswordHash)
	if account.ID == 0 {
		hashed = h.dummy()
	}
	if bcrypt.CompareHashAndPassword(hashed, []byte(password)) != nil || account.ID == 0 || !account.Active {
		log.Info("login rejected", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	token, exp, err := h.issuer.GenerateToken(account.ID, account.Username, account.IsEmployee)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := time.Now().UTC()
	if err := h.db.WithContext(ctx).Model(&account).UpdateColumn("last_login", now).Error; err != nil {
		log.Warn("failed to record last login", zap.Int64("account_id", account.ID), zap.Error(err))
	}
	account.LastLogin = &now
	h.invalidate(ctx, account.ID)

	log.Info("login", zap.Int64("account_id", account.ID))
	return &LoginResult{Token: token, ExpiresAt: exp, Account: account}, nil
}

func (h *UserHandler) dummy() []byte {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("no such account"), h.cost)
	})
	return h.dummyHash
}

type CreateUserRequest struct {
	Username    string
	Credentials Credentials
}

// CreateUser adds a bare account with neither an employee nor a client profile.
func (h *UserHandler) CreateUser(ctx context.Context, actor access.Actor, req CreateUserRequest) (*models.Account, error) {
	if err := access.Check(actor, access.RequireEmployee(models.TitleDirector)); err != nil {
		return nil, err
	}
	account, err := h.newAccount(h.db.WithContext(ctx), req.Username, req.Credentials, false)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("account created",
		zap.Int64("account_id", account.ID), zap.Int64("by", actor.Account.ID))
	return account, nil
}

// Profile is what an account sees about itself.
type Profile struct {
	Account  models.Account          `json:"account"`
	Employee *models.EmployeeProfile `json:"employee,omitempty"`
	Client   *models.ClientProfile   `json:"client,omitempty"`
}

func (h *UserHandler) GetProfile(ctx context.Context, actor access.Actor) (*Profile, error) {
	if err := access.Check(actor); err != nil {
		return nil, err
	}
	id := actor.Account.ID

	if cached, ok := h.cached(ctx, id); ok {
		return cached, nil
	}

	var account models.Account
	err := h.db.WithContext(ctx).
		Preload("Employee").
		Preload("Client").
		Preload("Client.Salesperson").
		First(&account, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	profile := &Profile{Account: account, Employee: account.Employee, Client: account.Client}
	profile.Account.Employee = nil
	profile.Account.Client = nil
	h.store(ctx, id, profile)
	return profile, nil
}

func cacheKey(accountID int64) string {
	return fmt.Sprintf("%s%d", USER_CACHE_PREFIX, accountID)
}

func (h *UserHandler) cached(ctx context.Context, accountID int64) (*Profile, bool) {
	if h.redis == nil {
		return nil, false
	}
	raw, err := h.redis.Get(ctx, cacheKey(accountID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.FromContext(ctx).Warn("profile cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (h *UserHandler) store(ctx context.Context, accountID int64, p *Profile) {
	if h.redis == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := h.redis.Set(ctx, cacheKey(accountID), raw, CACHE_TTL_MEDIUM).Err(); err != nil {
		logger.FromContext(ctx).Warn("profile cache write failed", zap.Error(err))
	}
}

// invalidate drops cached profiles after a change to the given accounts.
func (h *UserHandler) invalidate(ctx context.Context, accountIDs ...int64) {
	if h.redis == nil || len(accountIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		keys = append(keys, cacheKey(id))
	}
	if err := h.redis.Del(ctx, keys...).Err(); err != nil {
		logger.FromContext(ctx).Warn("profile cache invalidation failed",
			zap.Int64s("account_ids", accountIDs), zap.Error(err))
	}
}
