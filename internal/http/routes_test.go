package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clika/admin-api/internal/data"
	domainauth "github.com/clika/admin-api/internal/domain/auth"
	"github.com/clika/admin-api/internal/domain/model"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/service"
)

// memFlagStore is a minimal service.FlagStore for router tests.
type memFlagStore struct {
	flags map[string]*model.FeatureFlag
}

func (s *memFlagStore) Create(
	_ context.Context,
	req *model.CreateFlagRequest,
) (*model.FeatureFlag, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if _, ok := s.flags[req.Key]; ok {
		return nil, data.ErrFlagKeyExists
	}
	flag := &model.FeatureFlag{ID: "id-" + req.Key, Key: req.Key}
	if req.Enabled != nil {
		flag.Enabled = *req.Enabled
	}
	if req.Rules != nil {
		flag.Rules = *req.Rules
	}
	s.flags[req.Key] = flag
	return flag, nil
}

func (s *memFlagStore) GetByKey(_ context.Context, key string) (*model.FeatureFlag, error) {
	if flag, ok := s.flags[key]; ok {
		return flag, nil
	}
	return nil, data.ErrFlagNotFound
}

func (s *memFlagStore) List(
	_ context.Context,
	_ model.FlagListOptions,
) ([]*model.FeatureFlag, error) {
	out := make([]*model.FeatureFlag, 0, len(s.flags))
	for _, f := range s.flags {
		out = append(out, f)
	}
	return out, nil
}

func (s *memFlagStore) Update(
	_ context.Context,
	key string,
	req model.UpdateFlagRequest,
) (*model.FeatureFlag, error) {
	flag, ok := s.flags[key]
	if !ok {
		return nil, data.ErrFlagNotFound
	}
	if req.Enabled != nil {
		flag.Enabled = *req.Enabled
	}
	if req.Rules != nil {
		flag.Rules = *req.Rules
	}
	return flag, nil
}

func (s *memFlagStore) Delete(_ context.Context, key string) (bool, error) {
	_, ok := s.flags[key]
	delete(s.flags, key)
	return ok, nil
}

func newTestRouter(ctrl *stubController) http.Handler {
	return NewRouter(RouterServices{
		Auth:  ctrl,
		Guard: testGuard(),
		Flags: service.NewFlagService(flagServiceOptionsForTest()),
	})
}

// flagServiceOptionsForTest seeds a fresh in-memory flag store.
func flagServiceOptionsForTest() service.FlagServiceOptions {
	return service.FlagServiceOptions{
		Store: &memFlagStore{flags: make(map[string]*model.FeatureFlag)},
	}
}

func TestRouter_Healthz(t *testing.T) {
	router := newTestRouter(&stubController{state: domainauth.State{Initialized: true}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_SessionIsPublic(t *testing.T) {
	router := newTestRouter(&stubController{state: domainauth.State{Initialized: true}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_FlagWritesAreAdminOnly(t *testing.T) {
	editor := &stubController{state: signedInState("user-1", "alice@clika.gg", domainauth.RoleEditor)}
	router := newTestRouter(editor)

	body := strings.NewReader(`{"key":"lobby.banner"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/flags", body))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := &stubController{state: signedInState("user-2", "root@clika.gg", domainauth.RoleAdmin)}
	router = newTestRouter(admin)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/flags",
		strings.NewReader(`{"key":"lobby.banner","enabled":true}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"key":"lobby.banner"`)
}

func TestRouter_FlagReadNeedsAuthOnly(t *testing.T) {
	reviewer := &stubController{state: signedInState("user-1", "rev@clika.gg", domainauth.RoleReviewer)}
	router := newTestRouter(reviewer)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flags", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	anon := &stubController{state: domainauth.State{Initialized: true}}
	router = newTestRouter(anon)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flags", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_FlagEvaluate(t *testing.T) {
	admin := &stubController{state: signedInState("user-1", "root@clika.gg", domainauth.RoleAdmin)}
	router := newTestRouter(admin)

	create := httptest.NewRequest(http.MethodPost, "/api/flags",
		strings.NewReader(`{"key":"lobby.banner","enabled":true,"rules":{"expression":"player.level >= `+"`5`"+`","rollout_percent":100}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, create)
	require.Equal(t, http.StatusCreated, rec.Code)

	eval := httptest.NewRequest(http.MethodPost, "/api/flags/evaluate",
		strings.NewReader(`{"player_id":"p-1","context":{"player":{"level":9}}}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, eval)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lobby.banner":true`)
}

func TestRouter_UnknownFlagIs404(t *testing.T) {
	admin := &stubController{state: signedInState("user-1", "root@clika.gg", domainauth.RoleAdmin)}
	router := newTestRouter(admin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flags/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
