package collect

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarlens/jarlens/internal/pipeline"
	"github.com/jarlens/jarlens/internal/store"
	"github.com/jarlens/jarlens/internal/transport"
)

// fakeTransport serves canned listings for both List and ListTree.
type fakeTransport struct {
	entries []transport.Entry
	skipped int
	err     error
}

func (f *fakeTransport) List(ctx context.Context, path string) ([]transport.Entry, int, error) {
	return f.entries, f.skipped, f.err
}

func (f *fakeTransport) ListTree(ctx context.Context, path string) ([]transport.Entry, int, error) {
	return f.entries, f.skipped, f.err
}

func (f *fakeTransport) Fetch(ctx context.Context, src, dst string) error { return f.err }
func (f *fakeTransport) Close() error                                     { return nil }

func setupCollector(t *testing.T, ft *fakeTransport) (*Collector, *store.Store, *store.Service) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	svc := &store.Service{
		ServiceName: "dsop_gateway", Environment: "production",
		JarPath: "lib/{service_name}", ClassesPath: "classes/{service_name}",
		JarDecompileOutputDir: "o1", ClassDecompileOutputDir: "o2",
	}
	if _, err := s.UpsertService(svc); err != nil {
		t.Fatal(err)
	}

	c := New(s, []string{"dsop"}, func(*store.Service) (transport.Transport, error) {
		return ft, nil
	})
	return c, s, svc
}

func TestCollectJars_InsertsAndClassifies(t *testing.T) {
	mtime := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	ft := &fakeTransport{entries: []transport.Entry{
		{Name: "dsop_common.jar", Size: 100, ModTime: mtime},
		{Name: "spring-core.jar", Size: 200, ModTime: mtime},
		{Name: "README.txt", Size: 5, ModTime: mtime},
	}, skipped: 1}

	c, s, svc := setupCollector(t, ft)

	res, err := c.CollectJars(context.Background(), svc)
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 2 || res.Updated != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.SkippedLines != 1 {
		t.Errorf("skipped lines not propagated: %d", res.SkippedLines)
	}

	internal, err := s.GetJarFile(svc.ID, "dsop_common.jar")
	if err != nil {
		t.Fatal(err)
	}
	if internal.IsThirdParty {
		t.Error("dsop_common.jar classified as third-party")
	}
	third, err := s.GetJarFile(svc.ID, "spring-core.jar")
	if err != nil {
		t.Fatal(err)
	}
	if !third.IsThirdParty {
		t.Error("spring-core.jar should be third-party")
	}
}

func TestCollectJars_ReListingUpdates(t *testing.T) {
	ft := &fakeTransport{entries: []transport.Entry{
		{Name: "dsop_common.jar", Size: 100},
	}}
	c, s, svc := setupCollector(t, ft)

	if _, err := c.CollectJars(context.Background(), svc); err != nil {
		t.Fatal(err)
	}
	ft.entries[0].Size = 150
	res, err := c.CollectJars(context.Background(), svc)
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 0 || res.Updated != 1 {
		t.Fatalf("re-listing result = %+v", res)
	}

	jf, _ := s.GetJarFile(svc.ID, "dsop_common.jar")
	if jf.FileSize != 150 {
		t.Errorf("size not refreshed: %d", jf.FileSize)
	}
}

func TestCollectJars_TransportErrorWritesNothing(t *testing.T) {
	ft := &fakeTransport{err: errors.New("connection refused")}
	c, s, svc := setupCollector(t, ft)

	_, err := c.CollectJars(context.Background(), svc)
	if !errors.Is(err, pipeline.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	rows, _ := s.JarFilesForService(svc.ID)
	if len(rows) != 0 {
		t.Errorf("transport failure must not write rows, found %d", len(rows))
	}
}

func TestCollectClasses_DerivesFullNames(t *testing.T) {
	ft := &fakeTransport{entries: []transport.Entry{
		{Name: "com/dsop/Gateway.class", Size: 10},
		{Name: "com/dsop/Gateway$1.class", Size: 3},
		{Name: "log4j.properties", Size: 1},
	}}
	c, s, svc := setupCollector(t, ft)

	res, err := c.CollectClasses(context.Background(), svc)
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 2 {
		t.Fatalf("inserted = %d, want 2", res.Inserted)
	}

	cf, err := s.GetClassFile(svc.ID, "com.dsop.Gateway")
	if err != nil {
		t.Fatal(err)
	}
	if cf.FileSize != 10 {
		t.Errorf("size = %d", cf.FileSize)
	}
	if _, err := s.GetClassFile(svc.ID, "com.dsop.Gateway$1"); err != nil {
		t.Errorf("inner class missing: %v", err)
	}
}

func TestCollect_BadPathTemplate(t *testing.T) {
	c, _, svc := setupCollector(t, &fakeTransport{})
	svc.JarPath = "lib/{unknown}"

	_, err := c.CollectJars(context.Background(), svc)
	if !errors.Is(err, pipeline.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
