package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocal_List(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.jar"), []byte("aa"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.jar"), []byte("bbbb"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "nested.jar"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	entries, skipped, err := NewLocal().List(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d", skipped)
	}
	if len(entries) != 2 {
		t.Fatalf("List must not recurse: got %d entries", len(entries))
	}
	sizes := map[string]int64{}
	for _, e := range entries {
		sizes[e.Name] = e.Size
	}
	if sizes["a.jar"] != 2 || sizes["b.jar"] != 4 {
		t.Errorf("sizes = %v", sizes)
	}
}

func TestLocal_ListTree(t *testing.T) {
	dir := t.TempDir()
	paths := []string{"com/dsop/Gateway.class", "com/dsop/sub/Inner$1.class", "top.class"}
	for _, p := range paths {
		full := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	entries, _, err := NewLocal().ListTree(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.Name] = true
	}
	for _, p := range paths {
		if !seen[p] {
			t.Errorf("missing relative slash path %q in %v", p, seen)
		}
	}
}

func TestLocal_Fetch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jar")
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "deep", "nested", "dst.jar")
	if err := NewLocal().Fetch(context.Background(), src, dst); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Errorf("fetched content = %q", got)
	}
}

func TestLocal_ListMissingDir(t *testing.T) {
	_, _, err := NewLocal().List(context.Background(), filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
