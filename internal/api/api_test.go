// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/historiographus/internal/archive"
	"github.com/tomtom215/historiographus/internal/auth"
	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/report"
	"github.com/tomtom215/historiographus/internal/store"
	"github.com/tomtom215/historiographus/internal/websocket"
)

const testJWTSecret = "api-test-secret-with-32-characters!!"

type fakeHistorian struct {
	testErr error
	tags    []models.BrowsedTag
	current []models.Sample
	readErr error
}

func (f *fakeHistorian) TestConnection(_ context.Context, _ models.Endpoint) error {
	return f.testErr
}

func (f *fakeHistorian) Browse(_ context.Context, _ models.Endpoint, _ string) ([]models.BrowsedTag, error) {
	return f.tags, nil
}

func (f *fakeHistorian) ReadCurrent(_ context.Context, _ models.Endpoint, _ []string) ([]models.Sample, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.current, nil
}

type fakeGenerator struct {
	record models.ReportRecord
	err    error
	lastBy string
}

func (f *fakeGenerator) Generate(_ context.Context, spec models.ReportSpec, generatedBy string) (models.ReportRecord, error) {
	f.lastBy = generatedBy
	if f.err != nil {
		return models.ReportRecord{}, f.err
	}
	rec := f.record
	rec.Title = spec.Title
	return rec, nil
}

type fakeTrigger struct {
	err error
	ids []string
}

func (f *fakeTrigger) TriggerNow(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	return nil
}

type apiFixture struct {
	handler   *Handler
	router    http.Handler
	users     *store.UserStore
	archive   *archive.Archive
	registry  *report.Registry
	historian *fakeHistorian
	generator *fakeGenerator
	trigger   *fakeTrigger
	jwt       *auth.JWTManager
}

func newAPIFixture(t *testing.T, authMode string) *apiFixture {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, Environment: "development"},
		Security: config.SecurityConfig{
			AuthMode:          authMode,
			JWTSecret:         testJWTSecret,
			SessionTimeout:    time.Hour,
			RateLimitDisabled: true,
		},
	}

	encryptor, err := config.NewCredentialEncryptor(testJWTSecret)
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error = %v", err)
	}
	endpoints, err := store.NewEndpointStore(filepath.Join(dir, "endpoints.json"), encryptor)
	if err != nil {
		t.Fatalf("NewEndpointStore() error = %v", err)
	}
	users, err := store.NewUserStore(filepath.Join(dir, "users.json"))
	if err != nil {
		t.Fatalf("NewUserStore() error = %v", err)
	}
	schedules, err := store.NewScheduleStore(filepath.Join(dir, "schedules.json"))
	if err != nil {
		t.Fatalf("NewScheduleStore() error = %v", err)
	}
	arc, err := archive.Open(":memory:", "")
	if err != nil {
		t.Fatalf("archive.Open() error = %v", err)
	}
	t.Cleanup(func() { arc.Close() })
	registry, err := report.NewRegistry(filepath.Join(dir, "reports"))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	lockout := auth.NewLockoutManager(auth.DefaultLockoutConfig())

	f := &apiFixture{
		users:     users,
		archive:   arc,
		registry:  registry,
		historian: &fakeHistorian{},
		generator: &fakeGenerator{},
		trigger:   &fakeTrigger{},
		jwt:       jwtManager,
	}

	f.handler = NewHandler(Dependencies{
		Config:    cfg,
		Endpoints: endpoints,
		Users:     users,
		Schedules: schedules,
		Archive:   arc,
		Historian: f.historian,
		Registry:  registry,
		Generator: f.generator,
		Trigger:   f.trigger,
		Hub:       websocket.NewHub(),
		JWT:       jwtManager,
		Lockout:   lockout,
	})
	authn := auth.NewAuthenticator(&cfg.Security, jwtManager, users, lockout)
	f.router = NewRouter(f.handler, authn)
	return f
}

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
		}
	}
	return rec, env
}

func testEndpointBody() map[string]interface{} {
	return map[string]interface{}{
		"name":    "Boiler Historian",
		"url":     "opc.tcp://historian:4840",
		"enabled": true,
		"tags": []map[string]string{
			{"node_id": "ns=2;s=Boiler.Temp", "alias": "Boiler Temp", "unit": "C"},
		},
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, config.AuthModeNone)

	rec, env := f.do(t, http.MethodGet, "/api/v1/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.Status != "success" {
		t.Errorf("envelope status = %q", env.Status)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("missing ETag header")
	}
}

func TestEndpointCRUD(t *testing.T) {
	f := newAPIFixture(t, config.AuthModeNone)

	rec, env := f.do(t, http.MethodPost, "/api/v1/endpoints", testEndpointBody(), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created models.Endpoint
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode created endpoint: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created endpoint has no ID")
	}

	rec, env = f.do(t, http.MethodGet, "/api/v1/endpoints", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if listed.Count != 1 {
		t.Errorf("list count = %d, want 1", listed.Count)
	}

	rec, _ = f.do(t, http.MethodGet, "/api/v1/endpoints/"+created.ID, nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	update := testEndpointBody()
	update["name"] = "Renamed Historian"
	rec, env = f.do(t, http.MethodPut, "/api/v1/endpoints/"+created.ID, update, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	var updated models.Endpoint
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatalf("decode updated endpoint: %v", err)
	}
	if updated.Name != "Renamed Historian" {
		t.Errorf("updated name = %q", updated.Name)
	}

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/endpoints/"+created.ID, nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec, env = f.do(t, http.MethodGet, "/api/v1/endpoints/"+created.ID, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("error envelope = %+v", env.Error)
	}
}

func TestCreateEndpointValidation(t *testing.T) {
	f := newAPIFixture(t, config.AuthModeNone)

	body := testEndpointBody()
	delete(body, "url")
	rec, env := f.do(t, http.MethodPost, "/api/v1/endpoints", body, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v, want VALIDATION_ERROR", env.Error)
	}
}

func TestDuplicateEndpointName(t *testing.T) {
	f := newAPIFixture(t, config.AuthModeNone)

	rec, _ := f.do(t, http.MethodPost, "/api/v1/endpoints", testEndpointBody(), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rec.Code)
	}
	rec, env := f.do(t, http.MethodPost, "/api/v1/endpoints", testEndpointBody(), "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second create status = %d, want 409", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "DUPLICATE_NAME" {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestEndpointConnectivityTest(t *testing.T) {
	f := newAPIFixture(t, config.AuthModeNone)

	rec, env := f.do(t, http.MethodPost, "/api/v1/endpoints/test", testEndpointBody(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result struct {
		Reachable bool `json:"reachable"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Reachable {
		t.Error("reachable = false, want true")
	}

	f.historian.testErr = context.DeadlineExceeded
	_, env = f.do(t, http.MethodPost, "/api/v1/endpoints/test", testEndpointBody(), "")
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Reachable {
		t.Error("reachable = true, want false")
	}
}

func TestUserProtections(t *testing.T) {
	f := newAPIFixture(t, config.AuthModeNone)
	if err := f.users.EnsureAdmin("admin", "admin-password-123"); err != nil {
		t.Fatalf("EnsureAdmin() error = %v", err)
	}

	shadow, err := f.users.ShadowUser()
	if err != nil {
		t.Fatalf("ShadowUser() error = %v", err)
	}
	rec, env := f.do(t, http.MethodDelete, "/api/v1/users/"+shadow.ID, nil, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("delete shadow status = %d, want 403", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "SHADOW_ACCOUNT" {
		t.Errorf("error = %+v", env.Error)
	}

	admin, err := f.users.GetByUsername("admin")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	rec, env = f.do(t, http.MethodDelete, "/api/v1/users/"+admin.ID, nil, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("delete last admin status = %d, want 409", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "LAST_ADMIN" {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestCreateUserStripsHash(t *testing.T) {
	f := newAPIFixture(t, config.AuthModeNone)

	rec, env := f.do(t, http.MethodPost, "/api/v1/users", map[string]string{
		"username": "operator",
		"role":     "viewer",
		"password": "viewer-password-1",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if bytes.Contains(env.Data, []byte("password_hash")) {
		t.Error("response leaked password hash")
	}
}

func TestSamplesQuery(t *testing.T) {
	f := newAPIFixture(t, config.AuthModeNone)

	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	samples := make([]models.Sample, 0, 60)
	for i := 0; i < 60; i++ {
		samples = append(samples, models.Sample{
			EndpointID: "ep-1",
			Tag:        "ns=2;s=Temp",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Value:      float64(i),
			Quality:    models.QualityGood,
		})
	}
	if err := f.archive.InsertBatch(context.Background(), samples); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	path := "/api/v1/samples?endpoint_id=ep-1&tag=ns%3D2%3Bs%3DTemp" +
		"&start=2026-08-24T10:00:00Z&end=2026-08-24T11:00:00Z"
	rec, env := f.do(t, http.MethodGet, path, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Count != 60 {
		t.Errorf("count = %d, want 60", result.Count)
	}

	rec, env = f.do(t, http.MethodGet, path+"&bucket_seconds=600", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("aggregate status = %d", rec.Code)
	}
	var agg struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &agg); err != nil {
		t.Fatalf("decode aggregate: %v", err)
	}
	if agg.Count != 6 {
		t.Errorf("bucket count = %d, want 6", agg.Count)
	}

	rec, _ = f.do(t, http.MethodGet, "/api/v1/samples?tag=only", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing endpoint_id status = %d, want 400", rec.Code)
	}
}

func TestStatsPreview(t *testing.T) {
	f := newAPIFixture(t, config.AuthModeNone)

	rec, _ := f.do(t, http.MethodGet,
		"/api/v1/stats/preview?endpoint_id=ep-1&tag=none&start=2026-08-24T10:00:00Z&end=2026-08-24T11:00:00Z",
		nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty preview status = %d, want 404", rec.Code)
	}

	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	var samples []models.Sample
	for i := 0; i < 10; i++ {
		samples = append(samples, models.Sample{
			EndpointID: "ep-1", Tag: "ns=2;s=Temp",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Value:     20 + float64(i), Quality: models.QualityGood,
		})
	}
	if err := f.archive.InsertBatch(context.Background(), samples); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	rec, env := f.do(t, http.MethodGet,
		"/api/v1/stats/preview?endpoint_id=ep-1&tag=ns%3D2%3Bs%3DTemp&start=2026-08-24T10:00:00Z&end=2026-08-24T11:00:00Z",
		nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Summary struct {
			Count int `json:"count"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if result.Summary.Count != 10 {
		t.Errorf("summary count = %d, want 10", result.Summary.Count)
	}
}
