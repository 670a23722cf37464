package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/paulmach/orb/maptile"

	handler "github.com/halalchain/halalmap/internal/adapters/http"
	"github.com/halalchain/halalmap/internal/adapters/tiles"
	"github.com/halalchain/halalmap/internal/core/domain"
	"github.com/halalchain/halalmap/internal/core/usecases"
)

// ---- Mock repositories ----

type mockRestaurantRepo struct {
	data       []domain.Restaurant
	listFn     func(ctx context.Context, f domain.Filter) ([]domain.Restaurant, int, error)
	getByIDFn  func(ctx context.Context, id string) (*domain.Restaurant, error)
	updateFn   func(ctx context.Context, id string, u domain.RestaurantUpdate) (*domain.Restaurant, error)
	deleteFn   func(ctx context.Context, id string) error
	statsFn    func(ctx context.Context) (*domain.Stats, error)
	lastFilter domain.Filter
}

func (m *mockRestaurantRepo) Upsert(ctx context.Context, r *domain.Restaurant) error { return nil }
func (m *mockRestaurantRepo) UpsertBatch(ctx context.Context, rs []domain.Restaurant) error {
	return nil
}
func (m *mockRestaurantRepo) GetByID(ctx context.Context, id string) (*domain.Restaurant, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	for _, r := range m.data {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockRestaurantRepo) List(ctx context.Context, f domain.Filter) ([]domain.Restaurant, int, error) {
	m.lastFilter = f
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	var out []domain.Restaurant
	for _, r := range m.data {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	total := len(out)
	if f.Offset >= total {
		return []domain.Restaurant{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return out[f.Offset:end], total, nil
}
func (m *mockRestaurantRepo) Update(ctx context.Context, id string, u domain.RestaurantUpdate) (*domain.Restaurant, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, u)
	}
	r, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Apply(r)
	return r, nil
}
func (m *mockRestaurantRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	_, err := m.GetByID(ctx, id)
	return err
}
func (m *mockRestaurantRepo) SetVerified(ctx context.Context, id string, verified bool) error {
	return nil
}
func (m *mockRestaurantRepo) ExpiringBefore(ctx context.Context, t time.Time) ([]domain.Restaurant, error) {
	return nil, nil
}
func (m *mockRestaurantRepo) Stats(ctx context.Context) (*domain.Stats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	st := &domain.Stats{Restaurants: len(m.data)}
	for _, r := range m.data {
		if r.Verified {
			st.Verified++
		} else {
			st.Pending++
		}
		st.Scans += r.QRScanCount
	}
	return st, nil
}

type mockScanRepo struct {
	recordFn func(ctx context.Context, scan *domain.QRScan) error
	recentFn func(ctx context.Context, restaurantID string, limit int) ([]domain.QRScan, error)
}

func (m *mockScanRepo) Record(ctx context.Context, scan *domain.QRScan) error {
	if m.recordFn != nil {
		return m.recordFn(ctx, scan)
	}
	return nil
}
func (m *mockScanRepo) Recent(ctx context.Context, restaurantID string, limit int) ([]domain.QRScan, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, restaurantID, limit)
	}
	return nil, nil
}

type fakeTiles struct {
	fetchFn func(ctx context.Context, t maptile.Tile) (*tiles.Image, error)
}

func (f *fakeTiles) Fetch(ctx context.Context, t maptile.Tile) (*tiles.Image, error) {
	return f.fetchFn(ctx, t)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// ---- Test helpers ----

var testSecret = []byte("test-secret")

func sampleRestaurants() []domain.Restaurant {
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Restaurant{
		{
			ID: "r-jakarta", Name: "Sate Khas Senayan", Address: "Jl. Kebon Sirih No. 31A",
			Province: "DKI Jakarta", Cuisine: "Indonesian", Latitude: -6.2088, Longitude: 106.8456,
			Verified: true, CertificationID: "HC-2024-001", IssuingAuthority: "BPJPH",
			TxHash: "0xabc123", BlockNumber: "52341234", ExpiryDate: &expiry, QRScanCount: 4,
		},
		{
			ID: "r-bandung", Name: "Warung Nasi Ampera", Address: "Jl. Braga No. 12",
			Province: "Jawa Barat", Cuisine: "Sundanese", Latitude: -6.9175, Longitude: 107.6191,
			QRScanCount: 1,
		},
		{
			ID: "r-surabaya", Name: "Rawon Setan", Address: "Jl. Embong Malang No. 78",
			Province: "Jawa Timur", Cuisine: "Javanese", Latitude: -7.2575, Longitude: 112.7521,
			Verified: true,
		},
	}
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	return makeDepsWith(&mockRestaurantRepo{data: sampleRestaurants()}, &mockScanRepo{}, opts...)
}

func makeDepsWith(repo *mockRestaurantRepo, scans *mockScanRepo, opts ...func(*handler.Dependencies)) *handler.Dependencies {
	d := &handler.Dependencies{
		Restaurants: usecases.NewRestaurantService(repo, scans, nil, nil),
		Auth:        handler.AuthSettings{Secret: testSecret},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func bearer(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin@halalmap",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	})
	s, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + s
}

type listResponse struct {
	Data       []domain.Restaurant `json:"data"`
	Pagination handler.Pagination  `json:"pagination"`
}

// ---- Restaurant list tests ----

func TestListRestaurants_Success(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/restaurants", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result listResponse
	if err := json.Unmarshal(readBody(t, resp.Body), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Data) != 3 {
		t.Errorf("expected 3 restaurants, got %d", len(result.Data))
	}
	if result.Pagination.Total != 3 || result.Pagination.Limit != 50 {
		t.Errorf("unexpected pagination %+v", result.Pagination)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=30" {
		t.Errorf("expected short public cache, got %q", cc)
	}
}

func TestListRestaurants_FiltersReachRepository(t *testing.T) {
	repo := &mockRestaurantRepo{data: sampleRestaurants()}
	app := setupApp(makeDepsWith(repo, &mockScanRepo{}))

	req := httptest.NewRequest("GET", "/v1/restaurants?province=DKI+Jakarta&search=sate&verified=true&bbox=106,-7,107,-6", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	f := repo.lastFilter
	if f.Province != "DKI Jakarta" || f.Search != "sate" {
		t.Errorf("unexpected text filter %+v", f)
	}
	if f.Verified == nil || !*f.Verified {
		t.Error("expected verified=true")
	}
	if f.Bounds == nil || f.Bounds.MinLng != 106 || f.Bounds.MaxLat != -6 {
		t.Errorf("unexpected bounds %+v", f.Bounds)
	}

	var result listResponse
	json.Unmarshal(readBody(t, resp.Body), &result)
	if len(result.Data) != 1 || result.Data[0].ID != "r-jakarta" {
		t.Errorf("expected only r-jakarta, got %+v", result.Data)
	}
}

func TestListRestaurants_AllProvincesIsNoFilter(t *testing.T) {
	repo := &mockRestaurantRepo{data: sampleRestaurants()}
	app := setupApp(makeDepsWith(repo, &mockScanRepo{}))

	req := httptest.NewRequest("GET", "/v1/restaurants?province=All+Provinces", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if repo.lastFilter.Province != "" {
		t.Errorf("expected province filter dropped, got %q", repo.lastFilter.Province)
	}
}

func TestListRestaurants_Nearby(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/restaurants?lat=-6.2&lng=106.84&radius=5000", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result listResponse
	json.Unmarshal(readBody(t, resp.Body), &result)
	if len(result.Data) != 1 || result.Data[0].ID != "r-jakarta" {
		t.Fatalf("expected only r-jakarta within 5km, got %+v", result.Data)
	}
	if result.Data[0].Distance == nil || *result.Data[0].Distance > 5000 {
		t.Errorf("expected distance under 5000m, got %v", result.Data[0].Distance)
	}
}

func TestListRestaurants_BadParams(t *testing.T) {
	app := setupApp(makeDeps())

	tests := []struct {
		name  string
		query string
	}{
		{"verified not bool", "verified=maybe"},
		{"lat without lng", "lat=-6.2"},
		{"lat out of range", "lat=95&lng=106"},
		{"radius zero", "lat=-6.2&lng=106.8&radius=0"},
		{"radius too large", "lat=-6.2&lng=106.8&radius=500000"},
		{"bbox short", "bbox=1,2,3"},
		{"bbox inverted lat", "bbox=106,-5,107,-7"},
		{"search too long", "search=" + strings.Repeat("a", 201)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/restaurants?"+tt.query, nil)
			resp, _ := app.Test(req, -1)
			if resp.StatusCode != 400 {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			var apiErr handler.APIError
			json.Unmarshal(readBody(t, resp.Body), &apiErr)
			if apiErr.Code != "bad_request" || apiErr.Message == "" {
				t.Errorf("unexpected error body %+v", apiErr)
			}
		})
	}
}

func TestListRestaurants_RepositoryError(t *testing.T) {
	repo := &mockRestaurantRepo{
		listFn: func(ctx context.Context, f domain.Filter) ([]domain.Restaurant, int, error) {
			return nil, 0, errors.New("connection refused")
		},
	}
	app := setupApp(makeDepsWith(repo, &mockScanRepo{}))

	req := httptest.NewRequest("GET", "/v1/restaurants", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body := string(readBody(t, resp.Body))
	if strings.Contains(body, "connection refused") {
		t.Errorf("internal error leaked: %s", body)
	}
}

func TestListRestaurants_LinkHeader(t *testing.T) {
	data := make([]domain.Restaurant, 10)
	for i := range data {
		data[i] = domain.Restaurant{ID: fmt.Sprintf("r%d", i), Name: fmt.Sprintf("Warung %d", i), Province: "Bali"}
	}
	app := setupApp(makeDepsWith(&mockRestaurantRepo{data: data}, &mockScanRepo{}))

	req := httptest.NewRequest("GET", "/v1/restaurants?province=Bali&offset=3&limit=3", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	link := resp.Header.Get("Link")
	for _, rel := range []string{`rel="first"`, `rel="prev"`, `rel="next"`, `rel="last"`} {
		if !strings.Contains(link, rel) {
			t.Errorf("expected %s in Link, got %s", rel, link)
		}
	}
	if !strings.Contains(link, "province=Bali") {
		t.Errorf("expected filter carried into links, got %s", link)
	}
	if !strings.Contains(link, "offset=6") {
		t.Errorf("expected next offset 6, got %s", link)
	}
}

// ---- Single restaurant tests ----

func TestGetRestaurant_NotFound(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/restaurants/missing", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	var apiErr handler.APIError
	json.Unmarshal(readBody(t, resp.Body), &apiErr)
	if apiErr.Code != "not_found" || apiErr.Message != "restaurant not found" {
		t.Errorf("unexpected error body %+v", apiErr)
	}
	if apiErr.RequestID == "" {
		t.Error("expected request_id in error envelope")
	}
}

func TestGetRestaurant_IncludesRecentScans(t *testing.T) {
	var gotLimit int
	scans := &mockScanRepo{
		recentFn: func(ctx context.Context, id string, limit int) ([]domain.QRScan, error) {
			gotLimit = limit
			return []domain.QRScan{{ID: "s1", RestaurantID: id, Location: "Jakarta", ScannedAt: time.Now()}}, nil
		},
	}
	app := setupApp(makeDepsWith(&mockRestaurantRepo{data: sampleRestaurants()}, scans))

	req := httptest.NewRequest("GET", "/v1/restaurants/r-jakarta", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var r domain.Restaurant
	json.Unmarshal(readBody(t, resp.Body), &r)
	if r.Name != "Sate Khas Senayan" {
		t.Errorf("unexpected name %q", r.Name)
	}
	if len(r.RecentScans) != 1 || r.RecentScans[0].Location != "Jakarta" {
		t.Errorf("expected one recent scan, got %+v", r.RecentScans)
	}
	if gotLimit != 10 {
		t.Errorf("expected 10 recent scans requested, got %d", gotLimit)
	}
}

func TestUpdateRestaurant_RequiresToken(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("PUT", "/v1/restaurants/r-jakarta", strings.NewReader(`{"name":"New"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestUpdateRestaurant_RejectsBadTokens(t *testing.T) {
	tests := []struct {
		name    string
		auth    string
		message string
	}{
		{"expired", "", "token expired"},
		{"garbage", "Bearer not-a-jwt", "invalid token"},
		{"wrong scheme", "Basic YWRtaW46cGFzcw==", "missing bearer token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := tt.auth
			if auth == "" {
				auth = bearer(t, -time.Hour)
			}
			app := setupApp(makeDeps())

			req := httptest.NewRequest("PUT", "/v1/restaurants/r-jakarta", strings.NewReader(`{"name":"New"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", auth)
			resp, _ := app.Test(req, -1)
			if resp.StatusCode != 401 {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
			var apiErr handler.APIError
			json.Unmarshal(readBody(t, resp.Body), &apiErr)
			if apiErr.Message != tt.message {
				t.Errorf("expected %q, got %q", tt.message, apiErr.Message)
			}
		})
	}
}

func TestUpdateRestaurant_NoSecretRejectsAll(t *testing.T) {
	app := setupApp(makeDeps(func(d *handler.Dependencies) { d.Auth = handler.AuthSettings{} }))

	req := httptest.NewRequest("DELETE", "/v1/restaurants/r-jakarta", nil)
	req.Header.Set("Authorization", bearer(t, time.Hour))
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestUpdateRestaurant_Success(t *testing.T) {
	var gotID string
	repo := &mockRestaurantRepo{data: sampleRestaurants()}
	repo.updateFn = func(ctx context.Context, id string, u domain.RestaurantUpdate) (*domain.Restaurant, error) {
		gotID = id
		r := sampleRestaurants()[0]
		u.Apply(&r)
		return &r, nil
	}
	app := setupApp(makeDepsWith(repo, &mockScanRepo{}))

	req := httptest.NewRequest("PUT", "/v1/restaurants/r-jakarta", strings.NewReader(`{"name":"Sate Senayan","phone":"+62 21 123"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, time.Hour))
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}

	var r domain.Restaurant
	json.Unmarshal(readBody(t, resp.Body), &r)
	if gotID != "r-jakarta" || r.Name != "Sate Senayan" || r.Phone != "+62 21 123" {
		t.Errorf("unexpected update result id=%s %+v", gotID, r)
	}
}

func TestUpdateRestaurant_InvalidInput(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("PUT", "/v1/restaurants/r-jakarta", strings.NewReader(`{"latitude":120}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, time.Hour))
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDeleteRestaurant(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("DELETE", "/v1/restaurants/r-bandung", nil)
	req.Header.Set("Authorization", bearer(t, time.Hour))
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("DELETE", "/v1/restaurants/missing", nil)
	req.Header.Set("Authorization", bearer(t, time.Hour))
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRecordScan_DeviceFallsBackToUserAgent(t *testing.T) {
	var recorded *domain.QRScan
	scans := &mockScanRepo{
		recordFn: func(ctx context.Context, scan *domain.QRScan) error {
			recorded = scan
			return nil
		},
	}
	app := setupApp(makeDepsWith(&mockRestaurantRepo{data: sampleRestaurants()}, scans))

	req := httptest.NewRequest("POST", "/v1/restaurants/r-jakarta/scans", strings.NewReader(`{"location":"Blok M"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "HalalScanner/2.1")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if recorded == nil || recorded.Device != "HalalScanner/2.1" || recorded.Location != "Blok M" {
		t.Fatalf("unexpected scan %+v", recorded)
	}
	if recorded.ID == "" || recorded.RestaurantID != "r-jakarta" {
		t.Errorf("scan missing ids: %+v", recorded)
	}
}

func TestRecordScan_UnknownRestaurant(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("POST", "/v1/restaurants/missing/scans", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestVerifyRestaurant(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/restaurants/r-jakarta/verify", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var v domain.Verification
	json.Unmarshal(readBody(t, resp.Body), &v)
	if !v.Verified || !v.Active {
		t.Errorf("expected verified and active, got %+v", v)
	}
	if v.ExplorerURL != "https://polygonscan.com/tx/0xabc123" {
		t.Errorf("unexpected explorer url %q", v.ExplorerURL)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=60" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}
}

func TestScheduleCertification_NotConfigured(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("POST", "/v1/restaurants/r-jakarta/certification/schedule", nil)
	req.Header.Set("Authorization", bearer(t, time.Hour))
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

// ---- Export and reference data ----

func TestRestaurantsGeoJSON(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/restaurants.geojson?verified=true", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("unexpected content type %q", ct)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(readBody(t, resp.Body), &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("expected 2 verified features, got %+v", fc)
	}
	first := fc.Features[0]
	if first.Geometry.Coordinates[0] != 106.8456 || first.Geometry.Coordinates[1] != -6.2088 {
		t.Errorf("expected [lng, lat] order, got %v", first.Geometry.Coordinates)
	}
	if first.Properties["certification_id"] != "HC-2024-001" {
		t.Errorf("unexpected properties %v", first.Properties)
	}
}

func TestProvinces(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/provinces", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var provinces []string
	json.Unmarshal(readBody(t, resp.Body), &provinces)
	if len(provinces) != len(domain.Provinces) || provinces[0] != domain.AllProvinces {
		t.Errorf("unexpected provinces %v", provinces)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=86400" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}
}

func TestStats(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/stats", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var st domain.Stats
	json.Unmarshal(readBody(t, resp.Body), &st)
	if st != (domain.Stats{Restaurants: 3, Verified: 2, Pending: 1, Scans: 5}) {
		t.Errorf("unexpected stats %+v", st)
	}
}

// ---- Map frame ----

type frameResponse struct {
	Viewport struct {
		Center domain.GeoPoint `json:"center"`
		Zoom   int             `json:"zoom"`
	} `json:"viewport"`
	Tiles []struct {
		X   int    `json:"x"`
		Y   int    `json:"y"`
		Z   int    `json:"z"`
		URL string `json:"url"`
	} `json:"tiles"`
	Markers []struct {
		ID      string `json:"id"`
		Visible bool   `json:"visible"`
	} `json:"markers"`
	Selection struct {
		FocusedID string `json:"focused_id"`
	} `json:"selection"`
	Focused *domain.Restaurant `json:"focused"`
	Status  struct {
		Error     string `json:"error"`
		Retryable bool   `json:"retryable"`
		Total     int    `json:"total"`
		Verified  int    `json:"verified"`
		Pending   int    `json:"pending"`
	} `json:"status"`
}

func TestMapFrame_HomeView(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/map/frame", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var f frameResponse
	json.Unmarshal(readBody(t, resp.Body), &f)
	if f.Viewport.Zoom != 5 || f.Viewport.Center.Lat != -2.5 || f.Viewport.Center.Lng != 118 {
		t.Errorf("expected home view, got %+v", f.Viewport)
	}
	if len(f.Tiles) == 0 {
		t.Fatal("expected tiles")
	}
	for _, tile := range f.Tiles {
		if tile.Z != 5 || tile.X < 0 || tile.X >= 32 || tile.Y < 0 || tile.Y >= 32 {
			t.Errorf("tile out of pyramid: %+v", tile)
		}
	}
	if len(f.Markers) != 3 {
		t.Errorf("expected 3 markers, got %d", len(f.Markers))
	}
	if f.Status.Total != 3 || f.Status.Verified != 2 || f.Status.Pending != 1 {
		t.Errorf("unexpected legend %+v", f.Status)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "private, max-age=0" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}
}

func TestMapFrame_FocusAndClamp(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/map/frame?zoom=40&focus=r-jakarta", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var f frameResponse
	json.Unmarshal(readBody(t, resp.Body), &f)
	if f.Selection.FocusedID != "r-jakarta" || f.Focused == nil {
		t.Fatalf("expected focused r-jakarta, got %+v", f.Selection)
	}
	if f.Viewport.Zoom != 12 {
		t.Errorf("expected detail zoom 12, got %d", f.Viewport.Zoom)
	}
	if f.Viewport.Center.Lat != -6.2088 {
		t.Errorf("expected centre on restaurant, got %+v", f.Viewport.Center)
	}
}

func TestMapFrame_FetchErrorIsRetryable(t *testing.T) {
	repo := &mockRestaurantRepo{
		listFn: func(ctx context.Context, f domain.Filter) ([]domain.Restaurant, int, error) {
			return nil, 0, errors.New("db down")
		},
	}
	app := setupApp(makeDepsWith(repo, &mockScanRepo{}))

	req := httptest.NewRequest("GET", "/v1/map/frame?lat=-6.2&lng=106.8&zoom=10", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var f frameResponse
	json.Unmarshal(readBody(t, resp.Body), &f)
	if f.Status.Error == "" || !f.Status.Retryable {
		t.Errorf("expected retryable error status, got %+v", f.Status)
	}
	if len(f.Markers) != 0 {
		t.Errorf("expected no markers, got %d", len(f.Markers))
	}
	if len(f.Tiles) == 0 || f.Viewport.Zoom != 10 {
		t.Errorf("viewport should be unaffected by fetch failure: %+v", f.Viewport)
	}
}

func TestMapFrame_BadSize(t *testing.T) {
	app := setupApp(makeDeps())

	for _, q := range []string{"width=0", "height=5000", "lat=abc&lng=1"} {
		req := httptest.NewRequest("GET", "/v1/map/frame?"+q, nil)
		resp, _ := app.Test(req, -1)
		if resp.StatusCode != 400 {
			t.Errorf("%s: expected 400, got %d", q, resp.StatusCode)
		}
	}
}

// ---- Tile proxy ----

func TestTileProxy(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}

	tests := []struct {
		name       string
		path       string
		fetch      func(ctx context.Context, t maptile.Tile) (*tiles.Image, error)
		wantStatus int
	}{
		{
			name: "ok",
			path: "/tiles/5/25/16.png",
			fetch: func(ctx context.Context, tl maptile.Tile) (*tiles.Image, error) {
				if tl.Z != 5 || tl.X != 25 || tl.Y != 16 {
					return nil, fmt.Errorf("unexpected tile %v", tl)
				}
				return &tiles.Image{Data: png, ContentType: "image/png"}, nil
			},
			wantStatus: 200,
		},
		{name: "outside pyramid", path: "/tiles/2/4/0.png", wantStatus: 400},
		{name: "not a number", path: "/tiles/a/1/1.png", wantStatus: 400},
		{
			name: "busy",
			path: "/tiles/3/1/1.png",
			fetch: func(ctx context.Context, tl maptile.Tile) (*tiles.Image, error) {
				return nil, tiles.ErrBusy
			},
			wantStatus: 503,
		},
		{
			name: "upstream failure",
			path: "/tiles/3/1/1.png",
			fetch: func(ctx context.Context, tl maptile.Tile) (*tiles.Image, error) {
				return nil, fmt.Errorf("%w: status 500", tiles.ErrUpstream)
			},
			wantStatus: 502,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := makeDeps(func(d *handler.Dependencies) {
				d.Tiles = &fakeTiles{fetchFn: tt.fetch}
			})
			resp, _ := setupApp(deps).Test(httptest.NewRequest("GET", tt.path, nil), -1)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if tt.wantStatus == 200 {
				if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
					t.Errorf("unexpected content type %q", ct)
				}
				if string(readBody(t, resp.Body)) != string(png) {
					t.Error("tile body not passed through")
				}
			}
			if tt.name == "busy" && resp.Header.Get("Retry-After") != "1" {
				t.Error("expected Retry-After on busy")
			}
		})
	}
}

func TestTileProxy_NotConfigured(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/tiles/3/1/1.png", nil), -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

// ---- Cross-cutting middleware ----

func TestLegacyAlias_DeprecationHeaders(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/api/restaurants/r-jakarta", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Deprecation") != "true" {
		t.Error("expected Deprecation header")
	}
	if resp.Header.Get("Sunset") == "" {
		t.Error("expected Sunset header")
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, `</v1/restaurants/r-jakarta>; rel="successor-version"`) {
		t.Errorf("unexpected Link %q", link)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/v1/restaurants/r-jakarta", nil), -1)
	if resp.Header.Get("Deprecation") != "" {
		t.Error("v1 route must not be marked deprecated")
	}
}

func TestLegacyList_KeepsPaginationLinks(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/api/restaurants?limit=1", nil), -1)
	link := resp.Header.Get("Link")
	if !strings.Contains(link, `rel="next"`) || !strings.Contains(link, `rel="successor-version"`) {
		t.Errorf("expected pagination and successor links, got %q", link)
	}
}

func TestETag_NotModified(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/stats", nil), -1)
	etag := resp.Header.Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("expected weak ETag, got %q", etag)
	}

	req := httptest.NewRequest("GET", "/v1/stats", nil)
	req.Header.Set("If-None-Match", etag)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}
}

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		deps       func(*handler.Dependencies)
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no database",
			deps:       func(d *handler.Dependencies) {},
			wantStatus: 503,
			wantChecks: map[string]string{"database": "not configured"},
		},
		{
			name: "database down",
			deps: func(d *handler.Dependencies) {
				d.DB = fakePinger{err: errors.New("refused")}
			},
			wantStatus: 503,
			wantChecks: map[string]string{"database": "error: refused"},
		},
		{
			name: "cache down is degraded only",
			deps: func(d *handler.Dependencies) {
				d.DB = fakePinger{}
				d.Cache = fakePinger{err: errors.New("timeout")}
				d.Changes = handler.NewChangeHub()
			},
			wantStatus: 200,
			wantChecks: map[string]string{
				"database":     "ok",
				"cache":        "error: timeout",
				"broker":       "not configured",
				"map_sessions": "0",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(makeDeps(tt.deps))
			resp, _ := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}

			var result struct {
				Checks map[string]string `json:"checks"`
			}
			json.Unmarshal(readBody(t, resp.Body), &result)
			for k, v := range tt.wantChecks {
				if result.Checks[k] != v {
					t.Errorf("check %s: expected %q, got %q", k, v, result.Checks[k])
				}
			}
		})
	}
}

func TestAPIVersionHeader(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if v := resp.Header.Get("X-API-Version"); v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected no-cache on health, got %q", cc)
	}
}

func TestWebSocketRoute_RequiresUpgrade(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/ws/map", nil), -1)
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}

// TestAccessLogMiddleware verifies structured access logging is emitted.
func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(handler.AccessLogMiddleware())
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "test-req-123")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ok") {
		t.Errorf("expected response body to contain 'ok', got %s", string(body))
	}
}

func TestDocs(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/docs", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(readBody(t, resp.Body)), "/docs/openapi.yaml") {
		t.Error("swagger page should point at the embedded document")
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/docs/openapi.yaml", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("expected application/yaml, got %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=300" {
		t.Errorf("expected handler cache policy to win, got %q", cc)
	}
	if !strings.Contains(string(readBody(t, resp.Body)), "HalalMap API") {
		t.Error("expected the HalalMap document")
	}
}
