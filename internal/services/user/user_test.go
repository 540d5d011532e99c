package user

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"sales-crm/internal/database/models"
	"sales-crm/internal/database/testdb"
	"sales-crm/internal/logger"
	"sales-crm/internal/services/access"
	"sales-crm/internal/utils"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var creds = Credentials{Password: "0123456789", Confirm: "0123456789"}

func newHandler(t *testing.T, db *gorm.DB) (*UserHandler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := NewUserHandler(db, client, utils.NewTokenIssuer("test-secret", time.Hour))
	h.cost = bcrypt.MinCost
	return h, mr
}

func actorFor(t *testing.T, db *gorm.DB, accountID int64) access.Actor {
	t.Helper()
	a, err := access.LoadActor(context.Background(), db, accountID)
	require.NoError(t, err)
	return a
}

func scopeFor(t *testing.T, db *gorm.DB, accountID int64) access.Scope {
	t.Helper()
	s, err := access.LoadScope(context.Background(), db, actorFor(t, db, accountID))
	require.NoError(t, err)
	return s
}

func TestAuthenticate(t *testing.T) {
	db := testdb.Open(t)
	seed := testdb.SeedHierarchy(t, db)
	h, _ := newHandler(t, db)
	ctx := context.Background()

	res, err := h.Authenticate(ctx, "s1", testdb.Password)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.True(t, res.ExpiresAt.After(time.Now()))
	assert.Equal(t, seed.S1.AccountID, res.Account.ID)

	claims, err := h.issuer.ParseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, seed.S1.AccountID, claims.AccountID)
	assert.True(t, claims.IsEmployee)

	var stored models.Account
	require.NoError(t, db.First(&stored, seed.S1.AccountID).Error)
	assert.NotNil(t, stored.LastLogin)

	_, err = h.Authenticate(ctx, "s1", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = h.Authenticate(ctx, "nobody", testdb.Password)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, db.Model(&models.Account{}).Where("id = ?", seed.C1.AccountID).Update("active", false).Error)
	_, err = h.Authenticate(ctx, "c1", testdb.Password)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateUser(t *testing.T) {
	db := testdb.Open(t)
	seed := testdb.SeedHierarchy(t, db)
	h, _ := newHandler(t, db)
	ctx := context.Background()
	director := actorFor(t, db, seed.Root.AccountID)

	account, err := h.CreateUser(ctx, director, CreateUserRequest{Username: "plain", Credentials: creds})
	require.NoError(t, err)
	assert.False(t, account.IsEmployee)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(creds.Password)))

	_, err = h.CreateUser(ctx, director, CreateUserRequest{Username: "plain", Credentials: creds})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = h.CreateUser(ctx, director, CreateUserRequest{Username: "short", Credentials: Credentials{Password: "123", Confirm: "123"}})
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = h.CreateUser(ctx, director, CreateUserRequest{Username: "typo", Credentials: Credentials{Password: "0123456789", Confirm: "0123456780"}})
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	_, err = h.CreateUser(ctx, actorFor(t, db, seed.M1.AccountID), CreateUserRequest{Username: "other", Credentials: creds})
	assert.ErrorIs(t, err, access.ErrForbidden)
}

func TestAddEmployee(t *testing.T) {
	db := testdb.Open(t)
	seed := testdb.SeedHierarchy(t, db)
	h, _ := newHandler(t, db)
	ctx := context.Background()
	m1Scope := scopeFor(t, db, seed.M1.AccountID)

	s, err := h.AddEmployee(ctx, m1Scope, AddEmployeeRequest{
		Username:    "s1b",
		Credentials: creds,
		Title:       models.TitleSalesperson,
		ManagedBy:   &seed.M1.ID,
		Commission:  dec("7.5"),
		MaxDiscount: dec("15"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TitleSalesperson, s.Title)
	require.NotNil(t, s.ManagedBy)
	assert.Equal(t, seed.M1.ID, *s.ManagedBy)

	// A manager cannot be managed by a manager.
	_, err = h.AddEmployee(ctx, m1Scope, AddEmployeeRequest{
		Username: "m1b", Credentials: creds, Title: models.TitleManager, ManagedBy: &seed.M1.ID,
	})
	assert.ErrorIs(t, err, access.ErrInvalidRole)

	// m2 belongs to another director.
	_, err = h.AddEmployee(ctx, m1Scope, AddEmployeeRequest{
		Username: "s2b", Credentials: creds, Title: models.TitleSalesperson, ManagedBy: &seed.M2.ID,
	})
	assert.ErrorIs(t, err, access.ErrForbidden)

	_, err = h.AddEmployee(ctx, scopeFor(t, db, seed.Root.AccountID), AddEmployeeRequest{
		Username: "boss", Credentials: creds, Title: models.TitleDirector,
	})
	assert.ErrorIs(t, err, access.ErrForbidden)

	_, err = h.AddEmployee(ctx, scopeFor(t, db, seed.S1.AccountID), AddEmployeeRequest{
		Username: "x", Credentials: creds, Title: models.TitleSalesperson, ManagedBy: &seed.M1.ID,
	})
	assert.ErrorIs(t, err, access.ErrForbidden)

	_, err = h.AddEmployee(ctx, m1Scope, AddEmployeeRequest{
		Username: "greedy", Credentials: creds, Title: models.TitleSalesperson, ManagedBy: &seed.M1.ID,
		Commission: dec("120"),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEditAndDeactivateEmployee(t *testing.T) {
	db := testdb.Open(t)
	seed := testdb.SeedHierarchy(t, db)
	h, _ := newHandler(t, db)
	ctx := context.Background()
	rootScope := scopeFor(t, db, seed.Root.AccountID)

	salesperson := models.TitleSalesperson
	_, err := h.EditEmployee(ctx, rootScope, seed.M1.ID, EditEmployeeRequest{Title: &salesperson})
	assert.ErrorIs(t, err, ErrHasReports)

	maxDiscount := dec("12")
	s1, err := h.EditEmployee(ctx, rootScope, seed.S1.ID, EditEmployeeRequest{MaxDiscount: &maxDiscount})
	require.NoError(t, err)
	assert.True(t, s1.MaxDiscount.Equal(maxDiscount))
	assert.Equal(t, "s1", s1.Account.Username)

	_, err = h.EditEmployee(ctx, rootScope, seed.S2.ID, EditEmployeeRequest{MaxDiscount: &maxDiscount})
	assert.ErrorIs(t, err, access.ErrNotVisible)

	_, err = h.EditEmployee(ctx, scopeFor(t, db, seed.M1.AccountID), seed.M1.ID, EditEmployeeRequest{MaxDiscount: &maxDiscount})
	assert.ErrorIs(t, err, access.ErrNotVisible)

	assert.ErrorIs(t, h.DeactivateEmployee(ctx, rootScope, seed.M1.ID), ErrHasReports)
	assert.ErrorIs(t, h.DeactivateEmployee(ctx, rootScope, seed.S1.ID), ErrHasClients)
	require.NoError(t, h.DeactivateClient(ctx, rootScope, seed.C1.ID))
	require.NoError(t, h.DeactivateEmployee(ctx, rootScope, seed.S1.ID))
	require.NoError(t, h.DeactivateEmployee(ctx, scopeFor(t, db, seed.Root.AccountID), seed.M1.ID))

	_, err = access.LoadActor(ctx, db, seed.S1.AccountID)
	assert.ErrorIs(t, err, access.ErrUnauthenticated)
}

func TestSalespersonWithClientsKeepsTitle(t *testing.T) {
	db := testdb.Open(t)
	seed := testdb.SeedHierarchy(t, db)
	h, _ := newHandler(t, db)
	ctx := context.Background()
	rootScope := scopeFor(t, db, seed.Root.AccountID)

	manager := models.TitleManager
	promote := EditEmployeeRequest{Title: &manager, ManagedBy: &seed.Root.ID}

	_, err := h.EditEmployee(ctx, rootScope, seed.S1.ID, promote)
	assert.ErrorIs(t, err, ErrHasClients)

	var s1 models.EmployeeProfile
	require.NoError(t, db.First(&s1, seed.S1.ID).Error)
	assert.Equal(t, models.TitleSalesperson, s1.Title)
	assert.Equal(t, seed.M1.ID, *s1.ManagedBy)

	// a deactivated client no longer pins the salesperson
	require.NoError(t, h.DeactivateClient(ctx, rootScope, seed.C1.ID))
	promoted, err := h.EditEmployee(ctx, scopeFor(t, db, seed.Root.AccountID), seed.S1.ID, promote)
	require.NoError(t, err)
	assert.Equal(t, models.TitleManager, promoted.Title)
}

func TestListEmployeesAndSalespeople(t *testing.T) {
	db := testdb.Open(t)
	seed := testdb.SeedHierarchy(t, db)
	h, _ := newHandler(t, db)
	ctx := context.Background()

	list, err := h.ListEmployees(ctx, scopeFor(t, db, seed.Root.AccountID))
	require.NoError(t, err)
	ids := []int64{}
	for _, e := range list {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []int64{seed.M1.ID, seed.S1.ID}, ids)

	eligible, err := h.EligibleSalespeople(ctx, scopeFor(t, db, seed.M1.AccountID))
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, seed.S1.ID, eligible[0].ID)

	require.NoError(t, db.Model(&models.Account{}).Where("id = ?", seed.S1.AccountID).Update("active", false).Error)
	eligible, err = h.EligibleSalespeople(ctx, scopeFor(t, db, seed.M1.AccountID))
	require.NoError(t, err)
	assert.Empty(t, eligible)

	_, err = h.ListEmployees(ctx, scopeFor(t, db, seed.C1.AccountID))
	assert.ErrorIs(t, err, access.ErrForbidden)
}

func TestClients(t *testing.T) {
	db := testdb.Open(t)
	seed := testdb.SeedHierarchy(t, db)
	h, _ := newHandler(t, db)
	ctx := context.Background()
	m1Scope := scopeFor(t, db, seed.M1.AccountID)

	c, err := h.AddClient(ctx, m1Scope, AddClientRequest{
		Username: "c1b", Credentials: creds, Company: "Hooli", SalespersonID: seed.S1.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, seed.S1.ID, c.SalespersonID)

	_, err = h.AddClient(ctx, m1Scope, AddClientRequest{
		Username: "c2b", Credentials: creds, Company: "Hooli", SalespersonID: seed.S2.ID,
	})
	assert.ErrorIs(t, err, ErrInvalidSalesperson)

	_, err = h.AddClient(ctx, m1Scope, AddClientRequest{
		Username: "c3b", Credentials: creds, Company: "Hooli", SalespersonID: seed.M1.ID,
	})
	assert.ErrorIs(t, err, ErrInvalidSalesperson)

	rootList, err := h.ListClients(ctx, scopeFor(t, db, seed.Root.AccountID))
	require.NoError(t, err)
	assert.Len(t, rootList, 2)

	s2List, err := h.ListClients(ctx, scopeFor(t, db, seed.S2.AccountID))
	require.NoError(t, err)
	assert.Empty(t, s2List)

	_, err = h.GetClient(ctx, scopeFor(t, db, seed.S2.AccountID), seed.C1.ID)
	assert.ErrorIs(t, err, access.ErrNotVisible)

	own, err := h.GetClient(ctx, scopeFor(t, db, seed.C1.AccountID), seed.C1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Globex", own.Company)

	company := "Globex Corp"
	edited, err := h.EditClient(ctx, m1Scope, seed.C1.ID, EditClientRequest{Company: &company})
	require.NoError(t, err)
	assert.Equal(t, company, edited.Company)
	require.NotNil(t, edited.Salesperson)
	assert.Equal(t, "s1", edited.Salesperson.Account.Username)

	_, err = h.EditClient(ctx, m1Scope, seed.C1.ID, EditClientRequest{SalespersonID: &seed.S2.ID})
	assert.ErrorIs(t, err, ErrInvalidSalesperson)

	require.NoError(t, h.DeactivateClient(ctx, m1Scope, c.ID))
	assert.ErrorIs(t, h.DeactivateClient(ctx, scopeFor(t, db, seed.M2.AccountID), seed.C1.ID), access.ErrNotVisible)
}

func TestProfileCache(t *testing.T) {
	db := testdb.Open(t)
	seed := testdb.SeedHierarchy(t, db)
	h, mr := newHandler(t, db)
	ctx := context.Background()
	actor := actorFor(t, db, seed.C1.AccountID)

	p, err := h.GetProfile(ctx, actor)
	require.NoError(t, err)
	require.NotNil(t, p.Client)
	assert.Equal(t, "Globex", p.Client.Company)
	assert.Nil(t, p.Employee)
	assert.True(t, mr.Exists(cacheKey(seed.C1.AccountID)))

	// A stale row is served from the cache until an edit invalidates it.
	require.NoError(t, db.Model(&models.ClientProfile{}).Where("id = ?", seed.C1.ID).Update("company", "Changed").Error)
	p, err = h.GetProfile(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, "Globex", p.Client.Company)

	company := "Edited"
	_, err = h.EditClient(ctx, scopeFor(t, db, seed.M1.AccountID), seed.C1.ID, EditClientRequest{Company: &company})
	require.NoError(t, err)
	assert.False(t, mr.Exists(cacheKey(seed.C1.AccountID)))

	p, err = h.GetProfile(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, "Edited", p.Client.Company)
}

func TestInvalidationFailureIsLogged(t *testing.T) {
	db := testdb.Open(t)
	seed := testdb.SeedHierarchy(t, db)
	h, mr := newHandler(t, db)

	core, logs := observer.New(zap.WarnLevel)
	ctx := logger.WithContext(context.Background(), zap.New(core))

	mr.Close()
	h.invalidate(ctx, seed.C1.AccountID)

	entries := logs.FilterMessage("profile cache invalidation failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{seed.C1.AccountID}, entries[0].ContextMap()["account_ids"])
}

func TestFeedback(t *testing.T) {
	db := testdb.Open(t)
	seed := testdb.SeedHierarchy(t, db)
	h, _ := newHandler(t, db)
	ctx := context.Background()
	client := actorFor(t, db, seed.C1.AccountID)
	s1 := actorFor(t, db, seed.S1.AccountID)

	_, err := h.GiveFeedback(ctx, client, seed.S1.AccountID, true)
	require.NoError(t, err)
	_, err = h.GiveFeedback(ctx, s1, seed.C1.AccountID, false)
	require.NoError(t, err)

	_, err = h.GiveFeedback(ctx, client, seed.S2.AccountID, true)
	assert.ErrorIs(t, err, ErrInvalidFeedback)
	_, err = h.GiveFeedback(ctx, actorFor(t, db, seed.M1.AccountID), seed.C1.AccountID, true)
	assert.ErrorIs(t, err, ErrInvalidFeedback)

	received, err := h.ReceivedFeedback(ctx, s1)
	require.NoError(t, err)
	assert.Equal(t, 1, received.Positive)
	assert.Zero(t, received.Negative)
	require.Len(t, received.Entries, 1)
	assert.Equal(t, seed.C1.AccountID, received.Entries[0].FromAccountID)

	received, err = h.ReceivedFeedback(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, 1, received.Negative)
}

func TestBootstrapDirector(t *testing.T) {
	db := testdb.Open(t)
	h, _ := newHandler(t, db)
	ctx := context.Background()

	d, err := h.BootstrapDirector(ctx, BootstrapRequest{
		Username: "admin", Credentials: creds, Commission: dec("5"), MaxDiscount: dec("30"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TitleDirector, d.Title)
	assert.Nil(t, d.ManagedBy)

	res, err := h.Authenticate(ctx, "admin", creds.Password)
	require.NoError(t, err)
	assert.True(t, res.Account.IsEmployee)
}
