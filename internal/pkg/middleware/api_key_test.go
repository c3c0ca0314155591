package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/FelixWeidner/OpsForge/app/models"
	"github.com/FelixWeidner/OpsForge/app/repository"
	"github.com/FelixWeidner/OpsForge/internal/pkg/usercontext"
)

// fakeKeyRepo serves a single key/user/entitlement triple by hash.
type fakeKeyRepo struct {
	key  *models.APIKey
	user *models.User
	ent  *models.Entitlement
}

func (f *fakeKeyRepo) Create(*models.APIKey) error { return nil }

func (f *fakeKeyRepo) GetByHash(hash string) (*models.APIKey, *models.User, *models.Entitlement, error) {
	if f.key == nil || hash != f.key.KeyHash {
		return nil, nil, nil, gorm.ErrRecordNotFound
	}
	return f.key, f.user, f.ent, nil
}

func (f *fakeKeyRepo) TouchLastUsed(uint) error { return nil }

func (f *fakeKeyRepo) ListByUser(uint) ([]models.APIKey, error) { return nil, nil }

func newAuthTestApp(t *testing.T, repo *fakeKeyRepo) *fiber.App {
	t.Helper()
	repository.ResetGlobalFactory()
	repository.SetGlobalFactory(repository.NewFactoryWithRepositories(&repository.Repositories{APIKey: repo}))
	t.Cleanup(repository.ResetGlobalFactory)

	app := fiber.New()
	app.Get("/guarded", APIKeyAuthMiddleware(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"plan": usercontext.GetPlan(c)})
	})
	return app
}

const testRawKey = "ofk_testkeymaterialtestkeymaterial"

func testTriple(userStatus, keyStatus string, ent *models.Entitlement) *fakeKeyRepo {
	return &fakeKeyRepo{
		key:  &models.APIKey{ID: 3, UserID: 7, KeyHash: models.HashAPIKey(testRawKey), Status: keyStatus},
		user: &models.User{ID: 7, Name: "kim", Status: userStatus},
		ent:  ent,
	}
}

func TestAPIKeyAuth_MissingKey(t *testing.T) {
	app := newAuthTestApp(t, &fakeKeyRepo{})

	resp, err := app.Test(httptest.NewRequest("GET", "/guarded", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyAuth_UnknownKey(t *testing.T) {
	app := newAuthTestApp(t, &fakeKeyRepo{})

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-API-Key", "ofk_nosuchkey")
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyAuth_RevokedKeyUnauthorized(t *testing.T) {
	app := newAuthTestApp(t, testTriple(models.STATUS_ACTIVE, models.APIKeyStatusRevoked, nil))

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-API-Key", testRawKey)
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyAuth_SuspendedAccountForbidden(t *testing.T) {
	// A perfectly valid key on a suspended account must yield 403, never 401.
	app := newAuthTestApp(t, testTriple(models.STATUS_SUSPENDED, models.APIKeyStatusActive, nil))

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-API-Key", testRawKey)
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAPIKeyAuth_SuspendedAccountBeatsRevokedKey(t *testing.T) {
	// Account standing is checked before key standing.
	app := newAuthTestApp(t, testTriple(models.STATUS_SUSPENDED, models.APIKeyStatusRevoked, nil))

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-API-Key", testRawKey)
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAPIKeyAuth_SuspendedEntitlementForbidden(t *testing.T) {
	ent := &models.Entitlement{UserID: 7, Plan: "pro", Status: models.EntitlementStatusSuspended}
	app := newAuthTestApp(t, testTriple(models.STATUS_ACTIVE, models.APIKeyStatusActive, ent))

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-API-Key", testRawKey)
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAPIKeyAuth_ActiveKeyAdmitsWithPlan(t *testing.T) {
	ent := &models.Entitlement{UserID: 7, Plan: "team", Status: models.EntitlementStatusActive}
	app := newAuthTestApp(t, testTriple(models.STATUS_ACTIVE, models.APIKeyStatusActive, ent))

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-API-Key", testRawKey)
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "team", body["plan"])
}

func TestAPIKeyAuth_BearerHeaderAccepted(t *testing.T) {
	app := newAuthTestApp(t, testTriple(models.STATUS_ACTIVE, models.APIKeyStatusActive, nil))

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+testRawKey)
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
