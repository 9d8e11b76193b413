package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"playset/controller"
	"playset/database"
	"playset/loader"
	"playset/metadata"
	"playset/models"
	"playset/playset"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	dir := t.TempDir()
	lib := playset.NewLibrary(playset.NewItemSet(
		models.Song{Name: "a"},
		models.Song{Name: "b"},
		models.Song{Name: "c"},
	), playset.WithSubsetsDir(dir))

	router := gin.New()
	NewManager(controller.NewStaticController(lib), nil).Register(router)
	return router, dir
}

func do(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d; want %d (body %s)", w.Code, want, w.Body.String())
	}
}

func TestCreateCombineAndFlatten(t *testing.T) {
	router, dir := newRouter(t)

	expectStatus(t, do(router, http.MethodPost, "/sets", CreateSetRequest{Name: "X"}), http.StatusCreated)
	if _, err := os.Stat(filepath.Join(dir, "X")); err != nil {
		t.Fatalf("set not persisted: %v", err)
	}

	w := do(router, http.MethodPost, "/sets/X/combine", CombineRequest{Op: "union", Operand: "U"})
	expectStatus(t, w, http.StatusOK)
	var expr ExpressionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &expr); err != nil {
		t.Fatal(err)
	}
	if expr.Expression != "({} | U)" || len(expr.References) != 1 || expr.References[0] != "U" {
		t.Errorf("expression = %+v", expr)
	}

	w = do(router, http.MethodGet, "/sets/X", nil)
	expectStatus(t, w, http.StatusOK)
	var set SetResponse
	if err := json.Unmarshal(w.Body.Bytes(), &set); err != nil {
		t.Fatal(err)
	}
	if set.Count != 3 || set.Items[0].Name != "a" || set.Items[2].Name != "c" {
		t.Errorf("set = %+v", set)
	}

	w = do(router, http.MethodGet, "/sets", nil)
	expectStatus(t, w, http.StatusOK)
	var list struct {
		Sets []string `json:"sets"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if fmt.Sprint(list.Sets) != "[U X]" {
		t.Errorf("sets = %v", list.Sets)
	}
}

func TestAddItemAndDelete(t *testing.T) {
	router, dir := newRouter(t)
	expectStatus(t, do(router, http.MethodPost, "/sets", CreateSetRequest{Name: "X"}), http.StatusCreated)

	expectStatus(t, do(router, http.MethodPost, "/sets/X/items", AddItemRequest{Item: "b"}), http.StatusOK)
	w := do(router, http.MethodGet, "/sets/X", nil)
	var set SetResponse
	json.Unmarshal(w.Body.Bytes(), &set)
	if set.Count != 1 || set.Items[0].Name != "b" {
		t.Errorf("set = %+v", set)
	}

	expectStatus(t, do(router, http.MethodDelete, "/sets/X", nil), http.StatusNoContent)
	if _, err := os.Stat(filepath.Join(dir, "X")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file still present: %v", err)
	}
	expectStatus(t, do(router, http.MethodGet, "/sets/X", nil), http.StatusNotFound)
}

func TestErrorStatuses(t *testing.T) {
	router, _ := newRouter(t)
	expectStatus(t, do(router, http.MethodPost, "/sets", CreateSetRequest{Name: "X"}), http.StatusCreated)
	expectStatus(t, do(router, http.MethodPost, "/sets", CreateSetRequest{Name: "Y"}), http.StatusCreated)
	expectStatus(t, do(router, http.MethodPost, "/sets/Y/combine", CombineRequest{Op: "|", Operand: "X"}), http.StatusOK)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
		kind   string
	}{
		{"duplicate", http.MethodPost, "/sets", CreateSetRequest{Name: "X"}, http.StatusConflict, "store"},
		{"universal is reserved", http.MethodPost, "/sets", CreateSetRequest{Name: "U"}, http.StatusConflict, "store"},
		{"invalid name", http.MethodPost, "/sets", CreateSetRequest{Name: "a/b"}, http.StatusBadRequest, "store"},
		{"missing body", http.MethodPost, "/sets", nil, http.StatusBadRequest, "request"},
		{"cycle", http.MethodPost, "/sets/X/combine", CombineRequest{Op: "&", Operand: "Y"}, http.StatusConflict, "reference"},
		{"self reference", http.MethodPost, "/sets/X/combine", CombineRequest{Op: "&", Operand: "X"}, http.StatusConflict, "reference"},
		{"unknown operand", http.MethodPost, "/sets/X/combine", CombineRequest{Op: "-", Operand: "Z"}, http.StatusNotFound, "reference"},
		{"unknown operator", http.MethodPost, "/sets/X/combine", CombineRequest{Op: "xor", Operand: "Y"}, http.StatusBadRequest, "store"},
		{"edit universal", http.MethodPost, "/sets/U/items", AddItemRequest{Item: "a"}, http.StatusConflict, "store"},
		{"unknown item", http.MethodPost, "/sets/X/items", AddItemRequest{Item: "zzz"}, http.StatusUnprocessableEntity, "reference"},
		{"delete universal", http.MethodDelete, "/sets/U", nil, http.StatusConflict, "store"},
		{"unknown set", http.MethodGet, "/sets/nope/expression", nil, http.StatusNotFound, "reference"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d; want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Kind != tt.kind {
				t.Errorf("kind = %q; want %q (%s)", resp.Kind, tt.kind, resp.Error)
			}
		})
	}
}

func TestNotReady(t *testing.T) {
	router := gin.New()
	NewManager(controller.NewController(nil), nil).Register(router)

	expectStatus(t, do(router, http.MethodGet, "/sets", nil), http.StatusServiceUnavailable)
	expectStatus(t, do(router, http.MethodGet, "/healthz", nil), http.StatusServiceUnavailable)
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newRouter(t)
	expectStatus(t, do(router, http.MethodGet, "/healthz", nil), http.StatusOK)
	do(router, http.MethodGet, "/sets", nil)

	w := do(router, http.MethodGet, "/metrics", nil)
	expectStatus(t, w, http.StatusOK)
	if !bytes.Contains(w.Body.Bytes(), []byte("playset_http_requests_total")) {
		t.Error("request counter missing from /metrics")
	}
}

type nameExtractor struct{}

func (nameExtractor) Extract(ctx context.Context, path string) (models.Song, error) {
	return models.Song{Name: filepath.Base(path)}, nil
}

// newServer runs the handlers over a real listener, backed by a library
// loaded from disk.
func newServer(t *testing.T) (*httptest.Server, *controller.Controller, string) {
	t.Helper()
	root := t.TempDir()
	items := filepath.Join(root, "U")
	if err := os.MkdirAll(items, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(items, "a"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	db, err := database.New(filepath.Join(root, "playset.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	l := loader.NewLoader(playset.LoadOptions{
		ItemsDir:   items,
		SubsetsDir: filepath.Join(root, "subsets"),
		Extractor:  metadata.NewCachedExtractor(db, nameExtractor{}),
	}, db)
	c := controller.NewController(l)
	c.Start(ctx)
	t.Cleanup(func() {
		cancel()
		l.Wait()
	})
	if err := c.WaitLoaded(ctx); err != nil {
		t.Fatal(err)
	}

	router := gin.New()
	NewManager(c, db).Register(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, c, items
}

func TestReloadOverHTTP(t *testing.T) {
	server, c, items := newServer(t)
	first, err := c.Library()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(items, "b"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(server.URL+"/reload", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /reload = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		lib, _ := c.Library()
		if lib != first && len(lib.Universal()) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("library not replaced after reload: %+v", c.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err = http.Get(server.URL + "/sets/U")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var set SetResponse
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		t.Fatal(err)
	}
	if set.Count != 2 {
		t.Errorf("GET /sets/U after reload = %+v", set)
	}
}

func TestLoads(t *testing.T) {
	server, _, _ := newServer(t)

	resp, err := http.Get(server.URL + "/loads?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /loads = %d", resp.StatusCode)
	}
	var loads LoadsResponse
	if err := json.NewDecoder(resp.Body).Decode(&loads); err != nil {
		t.Fatal(err)
	}
	if len(loads.Loads) != 1 || loads.Loads[0].Items != 1 || loads.CachedSongs != 1 {
		t.Errorf("loads = %+v", loads)
	}

	bad, err := http.Get(server.URL + "/loads?limit=zero")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("GET /loads?limit=zero = %d", bad.StatusCode)
	}

	router, _ := newRouter(t)
	expectStatus(t, do(router, http.MethodGet, "/loads", nil), http.StatusNotFound)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&playset.ParseError{Set: "X", Err: playset.ErrMissingOperands}, http.StatusUnprocessableEntity},
		{&playset.ParseError{Set: "X", Err: playset.ErrUnresolvedItemName}, http.StatusUnprocessableEntity},
		{&playset.DuplicateNameError{Name: "X"}, http.StatusConflict},
		{&playset.ReferenceError{Name: "X", Err: playset.ErrCyclicReference}, http.StatusConflict},
		{&playset.ReferenceError{Name: "X", Err: playset.ErrUnknownSetReference}, http.StatusNotFound},
		{playset.ErrImmutableUniversal, http.StatusConflict},
		{&playset.IOError{Op: "rename", Path: "X", Err: os.ErrPermission}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d; want %d", tt.err, got, tt.want)
		}
	}
}
