package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"playset/loader"
	"playset/models"
	"playset/playset"
)

type nameExtractor struct{ err error }

func (n nameExtractor) Extract(ctx context.Context, path string) (models.Song, error) {
	if n.err != nil {
		return models.Song{}, n.err
	}
	return models.Song{Name: filepath.Base(path)}, nil
}

func newLoader(t *testing.T, extractor playset.Extractor) *loader.Loader {
	t.Helper()
	root := t.TempDir()
	items := filepath.Join(root, "U")
	subsets := filepath.Join(root, "subsets")
	for _, dir := range []string{items, subsets} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(items, "a"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(subsets, "X"), []byte("U\x01"), 0644)
	os.WriteFile(filepath.Join(subsets, "bad"), []byte("\x10"), 0644)
	return loader.NewLoader(playset.LoadOptions{
		ItemsDir:   items,
		SubsetsDir: subsets,
		Extractor:  extractor,
		Policy:     playset.PolicySkip,
	}, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestControllerServesLoadedLibrary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewController(newLoader(t, nameExtractor{}))
	if _, err := c.Library(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Library() before load: %v", err)
	}
	c.Start(ctx)
	if err := c.WaitLoaded(ctx); err != nil {
		t.Fatal(err)
	}

	lib, err := c.Library()
	if err != nil {
		t.Fatalf("Library(): %v", err)
	}
	items, err := lib.FlattenSet("X")
	if err != nil || !items.Contains("a") {
		t.Errorf("FlattenSet(X) = %v, %v", items, err)
	}

	status := c.Status()
	if status.State != Ready || status.Songs != 1 || status.Sets != 1 || len(status.Skipped) != 1 {
		t.Errorf("Status() = %+v", status)
	}
}

func TestControllerReloadKeepsServing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewController(newLoader(t, nameExtractor{}))
	c.Start(ctx)
	c.WaitLoaded(ctx)
	first, _ := c.Library()

	first.PushEmptySet("scratch")
	if err := c.Reload(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		lib, _ := c.Library()
		return lib != first
	})
	lib, _ := c.Library()
	if _, ok := lib.Get("scratch"); ok {
		t.Error("unpersisted set survived a reload")
	}
}

func TestControllerFailedLoad(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	missing := filepath.Join(t.TempDir(), "missing")
	c := NewController(loader.NewLoader(playset.LoadOptions{
		ItemsDir:   filepath.Join(missing, "U"),
		SubsetsDir: filepath.Join(missing, "subsets"),
		Extractor:  nameExtractor{},
		Policy:     playset.PolicyAbort,
	}, nil))
	c.Start(ctx)
	c.WaitLoaded(ctx)

	status := c.Status()
	if status.State != Failed || status.Error == "" {
		t.Errorf("Status() = %+v", status)
	}
	if _, err := c.Library(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Library() after failure: %v", err)
	}
}

func TestControllerReloadRequiresStart(t *testing.T) {
	c := NewController(newLoader(t, nameExtractor{}))
	if err := c.Reload(); err == nil {
		t.Error("Reload before Start should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.WaitLoaded(ctx)
	cancel()
	if err := c.Reload(); !errors.Is(err, context.Canceled) {
		t.Errorf("Reload after shutdown = %v; want context.Canceled", err)
	}
}

func TestStaticController(t *testing.T) {
	lib := playset.NewLibrary(playset.NewItemSet(models.Song{Name: "a"}))
	c := NewStaticController(lib)
	got, err := c.Library()
	if err != nil || got != lib {
		t.Fatalf("Library() = %v, %v", got, err)
	}
	if err := c.Reload(); err == nil {
		t.Error("Reload without a loader should fail")
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Status()
			c.Library()
		}()
	}
	wg.Wait()
}
