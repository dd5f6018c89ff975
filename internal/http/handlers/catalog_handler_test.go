package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/tbourn/go-portfolio-backend/internal/domain"
	"github.com/tbourn/go-portfolio-backend/internal/repo"
)

func seedCatalog(t *testing.T, e *testEnv) {
	t.Helper()
	rezero := domain.Appearance{Slug: "re-zero", Name: "Re:Zero"}
	konosuba := domain.Appearance{Slug: "konosuba", Name: "KonoSuba"}
	items := []domain.Waifu{
		{Slug: "rem", Name: "Rem", DisplayPicture: "rem.png", Appearances: []domain.Appearance{rezero}},
		{Slug: "ram", Name: "Ram", DisplayPicture: "ram.png", Appearances: []domain.Appearance{rezero}},
		{Slug: "emilia", Name: "Emilia", DisplayPicture: "emilia.png", Appearances: []domain.Appearance{rezero, konosuba}},
		{Slug: "megumin", Name: "Megumin", DisplayPicture: "megumin.png", Appearances: []domain.Appearance{konosuba}},
		{Slug: "solo", Name: "Solo", DisplayPicture: "solo.png"},
	}
	for i := 0; i < 20; i++ {
		items = append(items, domain.Waifu{Slug: fmt.Sprintf("extra-%02d", i), Name: fmt.Sprintf("Extra %02d", i)})
	}
	if err := repo.UpsertWaifus(context.Background(), e.db, items); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func signedInEnv(t *testing.T) (*testEnv, string) {
	t.Helper()
	e := newTestEnv(t)
	seedCatalog(t, e)
	return e, e.signup(t, "alice", "hunter22")
}

func TestSearch_RequiresLogin(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/api/search", `{"text":"rem"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
	if er := decodeError(t, w); er.Redirect != "http://example.com/login" || er.Code != ErrCodeUnauthorized {
		t.Fatalf("body %+v", er)
	}
}

func TestSearch_Matches(t *testing.T) {
	e, tok := signedInEnv(t)

	w := e.do(http.MethodPost, "/api/search", `{"text":"EM"}`, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got []SearchResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Rem" || got[1].Name != "Emilia" {
		t.Fatalf("results %+v", got)
	}
	want := SearchResult{Name: "Rem", Series: SeriesLink{Name: "Re:Zero", Endpoint: "re-zero"}, Endpoint: "/waifus/rem"}
	if got[0] != want {
		t.Fatalf("shape %+v; want %+v", got[0], want)
	}
}

func TestSearch_NoSeriesAndNoHits(t *testing.T) {
	e, tok := signedInEnv(t)

	w := e.do(http.MethodPost, "/api/search", `{"text":"solo"}`, tok)
	var got []SearchResult
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if len(got) != 1 || got[0].Series != (SeriesLink{}) {
		t.Fatalf("results %+v", got)
	}

	w = e.do(http.MethodPost, "/api/search", `{"text":"zzz"}`, tok)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("no hits: %d %s", w.Code, w.Body.String())
	}
}

func TestSearch_EmptyText(t *testing.T) {
	e, tok := signedInEnv(t)
	for _, body := range []string{`{"text":""}`, `{}`} {
		w := e.do(http.MethodPost, "/api/search", body, tok)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", body, w.Code)
		}
		if er := decodeError(t, w); er.Error != "No text provided" {
			t.Fatalf("%s: body %+v", body, er)
		}
	}

	w := e.do(http.MethodPost, "/api/search", `{"text":"   "}`, tok)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("blank text: %d %s", w.Code, w.Body.String())
	}
}

func TestList_Pages(t *testing.T) {
	e, tok := signedInEnv(t)

	w := e.do(http.MethodGet, "/api/list?page=1", "", tok)
	var page []BrowseResult
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil || w.Code != http.StatusOK {
		t.Fatalf("page 1: %d %s", w.Code, w.Body.String())
	}
	if len(page) != 20 {
		t.Fatalf("page 1 size = %d", len(page))
	}
	want := BrowseResult{
		Name:     "Rem",
		Image:    "rem.png",
		Series:   SeriesLink{Name: "Re:Zero", Endpoint: "/series/re-zero"},
		Endpoint: "/waifus/rem",
	}
	if page[0] != want {
		t.Fatalf("first entry %+v; want %+v", page[0], want)
	}

	w = e.do(http.MethodGet, "/api/list?page=2", "", tok)
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if len(page) != 5 {
		t.Fatalf("page 2 size = %d", len(page))
	}

	w = e.do(http.MethodGet, "/api/list?page=9", "", tok)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("past the end: %d %s", w.Code, w.Body.String())
	}
}

func TestList_QueryAndErrors(t *testing.T) {
	e, tok := signedInEnv(t)

	for _, q := range []string{"query=meg", "waifu=meg"} {
		w := e.do(http.MethodGet, "/api/list?"+q, "", tok)
		var got []BrowseResult
		_ = json.Unmarshal(w.Body.Bytes(), &got)
		if len(got) != 1 || got[0].Endpoint != "/waifus/megumin" {
			t.Fatalf("%s: %s", q, w.Body.String())
		}
	}

	cases := map[string]string{
		"/api/list":                 "Missing page or query",
		"/api/list?page=0":          "Page must be a positive number",
		"/api/list?page=abc":        "Page must be a positive number",
		"/api/list?page=-1&query=x": "Page must be a positive number",
	}
	for path, msg := range cases {
		w := e.do(http.MethodGet, path, "", tok)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status=%d", path, w.Code)
			continue
		}
		if er := decodeError(t, w); er.Error != msg {
			t.Errorf("%s: %+v", path, er)
		}
	}
}

func TestWaifuDetail(t *testing.T) {
	e, tok := signedInEnv(t)

	w := e.do(http.MethodGet, "/api/waifus/emilia", "", tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got WaifuResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.Waifu == nil || got.Waifu.Slug != "emilia" || len(got.Series) != 2 || got.Series[1].Endpoint != "konosuba" {
		t.Fatalf("body %s", w.Body.String())
	}

	w = e.do(http.MethodGet, "/api/waifus/nobody", "", tok)
	if w.Code != http.StatusNotFound || decodeError(t, w).Error != "No waifu found" {
		t.Fatalf("missing: %d %s", w.Code, w.Body.String())
	}
}

func TestSeriesDetail(t *testing.T) {
	e, tok := signedInEnv(t)

	w := e.do(http.MethodGet, "/api/series/konosuba", "", tok)
	var got SeriesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got.Name != "KonoSuba" || len(got.Waifus) != 2 || got.Waifus[0].Name != "Emilia" || got.Waifus[1].Name != "Megumin" {
		t.Fatalf("series %+v", got)
	}

	w = e.do(http.MethodGet, "/api/series/none", "", tok)
	if w.Code != http.StatusNotFound || decodeError(t, w).Error != "No series found" {
		t.Fatalf("missing: %d %s", w.Code, w.Body.String())
	}
}
