package http_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func postGraphQL(t *testing.T, query string) gqlResponse {
	t.Helper()
	app := setupApp(makeDeps())

	body, _ := json.Marshal(map[string]string{"query": query})
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out gqlResponse
	if err := json.Unmarshal(readBody(t, resp.Body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestGraphQL_Restaurants(t *testing.T) {
	out := postGraphQL(t, `{ restaurants(province: "Jawa Timur") { id name verified latitude } }`)
	if len(out.Errors) > 0 {
		t.Fatalf("unexpected errors: %+v", out.Errors)
	}

	var rs []struct {
		ID       string  `json:"id"`
		Name     string  `json:"name"`
		Verified bool    `json:"verified"`
		Latitude float64 `json:"latitude"`
	}
	json.Unmarshal(out.Data["restaurants"], &rs)
	if len(rs) != 1 || rs[0].ID != "r-surabaya" || !rs[0].Verified || rs[0].Latitude != -7.2575 {
		t.Errorf("unexpected restaurants %+v", rs)
	}
}

func TestGraphQL_RestaurantWithDates(t *testing.T) {
	out := postGraphQL(t, `{ restaurant(id: "r-jakarta") { name expiry_date certified_date } missing: restaurant(id: "nope") { id } }`)
	if len(out.Errors) > 0 {
		t.Fatalf("unexpected errors: %+v", out.Errors)
	}

	var r struct {
		Name          string  `json:"name"`
		ExpiryDate    string  `json:"expiry_date"`
		CertifiedDate *string `json:"certified_date"`
	}
	json.Unmarshal(out.Data["restaurant"], &r)
	if r.ExpiryDate != "2030-01-01T00:00:00Z" || r.CertifiedDate != nil {
		t.Errorf("unexpected dates %+v", r)
	}
	if string(out.Data["missing"]) != "null" {
		t.Errorf("expected null for unknown id, got %s", out.Data["missing"])
	}
}

func TestGraphQL_StatsAndProvinces(t *testing.T) {
	out := postGraphQL(t, `{ stats { restaurants verified pending scans } provinces }`)
	if len(out.Errors) > 0 {
		t.Fatalf("unexpected errors: %+v", out.Errors)
	}

	var st map[string]int
	json.Unmarshal(out.Data["stats"], &st)
	if st["restaurants"] != 3 || st["verified"] != 2 || st["pending"] != 1 || st["scans"] != 5 {
		t.Errorf("unexpected stats %v", st)
	}

	var provinces []string
	json.Unmarshal(out.Data["provinces"], &provinces)
	if len(provinces) == 0 || provinces[0] != "All Provinces" {
		t.Errorf("unexpected provinces %v", provinces)
	}
}

func TestGraphQL_MapFrame(t *testing.T) {
	out := postGraphQL(t, `{ mapFrame(lat: -6.2, lng: 106.8, zoom: 10, width: 640, height: 480, verified: true) {
		viewport { zoom center { lat lng } }
		tiles { x y z }
		markers { id visible }
		status { total verified pending }
	} }`)
	if len(out.Errors) > 0 {
		t.Fatalf("unexpected errors: %+v", out.Errors)
	}

	var f struct {
		Viewport struct {
			Zoom int `json:"zoom"`
		} `json:"viewport"`
		Tiles   []struct{ Z int } `json:"tiles"`
		Markers []struct {
			ID      string `json:"id"`
			Visible bool   `json:"visible"`
		} `json:"markers"`
		Status struct {
			Total    int `json:"total"`
			Verified int `json:"verified"`
		} `json:"status"`
	}
	json.Unmarshal(out.Data["mapFrame"], &f)
	if f.Viewport.Zoom != 10 || len(f.Tiles) == 0 {
		t.Errorf("unexpected viewport %+v with %d tiles", f.Viewport, len(f.Tiles))
	}
	if f.Status.Total != 2 || f.Status.Verified != 2 {
		t.Errorf("unexpected status %+v", f.Status)
	}

	visible := map[string]bool{}
	for _, m := range f.Markers {
		visible[m.ID] = m.Visible
	}
	if !visible["r-jakarta"] || visible["r-surabaya"] {
		t.Errorf("expected only Jakarta on screen, got %v", visible)
	}
}

func TestGraphQL_MapFrameRejectsBadSize(t *testing.T) {
	out := postGraphQL(t, `{ mapFrame(width: 0) { mode } }`)
	if len(out.Errors) == 0 {
		t.Fatal("expected an error for zero width")
	}
}

func TestGraphQL_EmptyQuery(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
