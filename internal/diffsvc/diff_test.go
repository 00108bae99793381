package diffsvc

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarlens/jarlens/internal/store"
)

func setupDiff(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

// seedJarVersions builds two versions of dsop_common.jar:
// v1 carries Gateway (old) + Removed; v2 carries Gateway (new) + Added.
// Shared is identical in both.
func seedJarVersions(t *testing.T, s *store.Store) {
	t.Helper()
	svc := &store.Service{
		ServiceName: "dsop_gateway", Environment: "production",
		JarPath: "lib", ClassesPath: "classes",
		JarDecompileOutputDir: "o1", ClassDecompileOutputDir: "o2",
	}
	require.NoError(t, errOf(s.UpsertService(svc)))
	svc2 := &store.Service{
		ServiceName: "dsop_core", Environment: "production",
		JarPath: "lib", ClassesPath: "classes",
		JarDecompileOutputDir: "o1", ClassDecompileOutputDir: "o2",
	}
	require.NoError(t, errOf(s.UpsertService(svc2)))

	j1 := &store.JarFile{ServiceID: svc.ID, JarName: "dsop_common.jar", FileSize: 100}
	j2 := &store.JarFile{ServiceID: svc2.ID, JarName: "dsop_common.jar", FileSize: 200}
	require.NoError(t, errOf(s.UpsertJarFile(j1)))
	require.NoError(t, errOf(s.UpsertJarFile(j2)))
	require.NoError(t, s.AssignJarVersions("dsop_common.jar", map[int64]int64{100: 1, 200: 2}, 2))

	link := func(jarID int64, className, content string) {
		ident, err := s.GetOrCreateIdentity(className)
		require.NoError(t, err)
		sv := &store.SourceVersion{
			SourceIdentityID: ident.ID,
			FileContent:      content,
			FileHash:         className + ":" + content,
		}
		_, err = s.GetOrCreateSourceVersion(sv)
		require.NoError(t, err)
		require.NoError(t, s.LinkJarSource(jarID, sv.ID))
	}

	link(j1.ID, "com.dsop.Gateway", "class Gateway {\n    int a;\n}\n")
	link(j1.ID, "com.dsop.Removed", "class Removed {}\n")
	link(j1.ID, "com.dsop.Shared", "class Shared {}\n")

	link(j2.ID, "com.dsop.Gateway", "class Gateway {\n    int a;\n    int b;\n}\n")
	link(j2.ID, "com.dsop.Added", "class Added {}\n")
	link(j2.ID, "com.dsop.Shared", "class Shared {}\n")
}

func errOf(_ bool, err error) error { return err }

func TestCompare_CountsPerFileChanges(t *testing.T) {
	d, s := setupDiff(t)
	seedJarVersions(t, s)

	res, err := d.Compare(context.Background(), store.KindJar, "dsop_common.jar", 1, 2)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 3, res.Summary.FilesChanged, "Shared is identical and must not appear")

	byPath := map[string]*store.DiffFile{}
	for _, df := range res.Files {
		byPath[df.FilePath] = df
	}

	mod := byPath["com.dsop.Gateway"]
	require.NotNil(t, mod)
	assert.Equal(t, ChangeModified, mod.ChangeType)
	assert.Equal(t, 1, mod.Additions)
	assert.Equal(t, 0, mod.Deletions)
	assert.True(t, strings.Contains(mod.UnifiedText, "+    int b;"), "unified text:\n%s", mod.UnifiedText)
	assert.True(t, strings.Contains(mod.UnifiedText, "com.dsop.Gateway@1"))

	added := byPath["com.dsop.Added"]
	require.NotNil(t, added)
	assert.Equal(t, ChangeAdded, added.ChangeType)
	assert.Equal(t, 100, added.ChangePercentage)

	removed := byPath["com.dsop.Removed"]
	require.NotNil(t, removed)
	assert.Equal(t, ChangeDeleted, removed.ChangeType)
	assert.Equal(t, 1, removed.Deletions)

	assert.Equal(t, res.Summary.Insertions, mod.Additions+added.Additions)
	assert.Equal(t, res.Summary.Deletions, mod.Deletions+removed.Deletions)

	// Files come back sorted by class name.
	assert.Equal(t, "com.dsop.Added", res.Files[0].FilePath)
}

func TestCompare_SecondCallHitsCache(t *testing.T) {
	d, s := setupDiff(t)
	seedJarVersions(t, s)

	first, err := d.Compare(context.Background(), store.KindJar, "dsop_common.jar", 1, 2)
	require.NoError(t, err)
	second, err := d.Compare(context.Background(), store.KindJar, "dsop_common.jar", 1, 2)
	require.NoError(t, err)

	assert.True(t, second.FromCache)
	assert.Equal(t, first.Summary.ID, second.Summary.ID)
	assert.Len(t, second.Files, len(first.Files))
}

// TestCompare_StaleCacheRecomputes: touching an endpoint source version
// after the cache entry was written forces a recompute.
func TestCompare_StaleCacheRecomputes(t *testing.T) {
	d, s := setupDiff(t)
	seedJarVersions(t, s)

	first, err := d.Compare(context.Background(), store.KindJar, "dsop_common.jar", 1, 2)
	require.NoError(t, err)

	// Backdate the cache row so the endpoint update is strictly newer.
	_, err = s.DB().Exec(`UPDATE diff_cache SET created_at = '2000-01-01T00:00:00Z' WHERE id = ?`, first.Summary.ID)
	require.NoError(t, err)

	second, err := d.Compare(context.Background(), store.KindJar, "dsop_common.jar", 1, 2)
	require.NoError(t, err)
	assert.False(t, second.FromCache, "stale entry must be recomputed")
	assert.NotEqual(t, first.Summary.ID, second.Summary.ID)
}

func TestCompare_EqualVersionsIsEmpty(t *testing.T) {
	d, s := setupDiff(t)
	seedJarVersions(t, s)

	res, err := d.Compare(context.Background(), store.KindJar, "dsop_common.jar", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Summary.FilesChanged)
	assert.Empty(t, res.Files)
	assert.False(t, res.FromCache)
}

func TestCompare_RefusesDegenerateRequests(t *testing.T) {
	d, s := setupDiff(t)
	seedJarVersions(t, s)

	_, err := d.Compare(context.Background(), store.KindJar, "dsop_common.jar", 0, 2)
	assert.Error(t, err, "non-positive version")

	_, err = d.Compare(context.Background(), store.KindJar, "dsop_common.jar", 1, 9)
	assert.Error(t, err, "unknown version")
}

func TestCompare_ClassArtifact(t *testing.T) {
	d, s := setupDiff(t)

	svc := &store.Service{
		ServiceName: "dsop_gateway", Environment: "production",
		JarPath: "lib", ClassesPath: "classes",
		JarDecompileOutputDir: "o1", ClassDecompileOutputDir: "o2",
	}
	require.NoError(t, errOf(s.UpsertService(svc)))

	mkVersion := func(size int64, content string) {
		cf := &store.ClassFile{ServiceID: svc.ID, ClassFullName: "com.dsop.Gateway", FileSize: size}
		_, err := s.UpsertClassFile(cf)
		require.NoError(t, err)
		ident, err := s.GetOrCreateIdentity("com.dsop.Gateway")
		require.NoError(t, err)
		sv := &store.SourceVersion{SourceIdentityID: ident.ID, FileContent: content, FileHash: content}
		_, err = s.GetOrCreateSourceVersion(sv)
		require.NoError(t, err)
		require.NoError(t, s.SetClassSourceVersion(cf.ID, sv.ID))
	}

	// Upserting the same (service, class) twice refreshes one row, so the
	// two versions live on two services.
	mkVersion(10, "class Gateway { int a; }\n")
	svc2 := &store.Service{
		ServiceName: "dsop_core", Environment: "production",
		JarPath: "lib", ClassesPath: "classes",
		JarDecompileOutputDir: "o1", ClassDecompileOutputDir: "o2",
	}
	require.NoError(t, errOf(s.UpsertService(svc2)))
	cf2 := &store.ClassFile{ServiceID: svc2.ID, ClassFullName: "com.dsop.Gateway", FileSize: 20}
	_, err := s.UpsertClassFile(cf2)
	require.NoError(t, err)
	ident, err := s.GetOrCreateIdentity("com.dsop.Gateway")
	require.NoError(t, err)
	sv2 := &store.SourceVersion{SourceIdentityID: ident.ID, FileContent: "class Gateway { int a; int b; }\n", FileHash: "v2"}
	_, err = s.GetOrCreateSourceVersion(sv2)
	require.NoError(t, err)
	require.NoError(t, s.SetClassSourceVersion(cf2.ID, sv2.ID))

	require.NoError(t, s.AssignClassVersions("com.dsop.Gateway", map[int64]int64{10: 1, 20: 2}, 2))

	res, err := d.Compare(context.Background(), store.KindClass, "com.dsop.Gateway", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.FilesChanged)
	assert.Equal(t, ChangeModified, res.Files[0].ChangeType)
}

func TestFile_ReturnsSingleDiff(t *testing.T) {
	d, s := setupDiff(t)
	seedJarVersions(t, s)

	df, err := d.File(context.Background(), store.KindJar, "dsop_common.jar", 1, 2, "com.dsop.Gateway")
	require.NoError(t, err)
	assert.Equal(t, "com.dsop.Gateway", df.FilePath)

	_, err = d.File(context.Background(), store.KindJar, "dsop_common.jar", 1, 2, "com.dsop.Shared")
	assert.Error(t, err, "unchanged file has no diff row")
}

// TestDiffPair_CountsLinesStartingWithDashes: content lines that start
// with -- or ++ must not be mistaken for the file headers.
func TestDiffPair_CountsLinesStartingWithDashes(t *testing.T) {
	df := diffPair("com.dsop.Counter", "int i;\n--i;\n", "int i;\n", 1, 2)
	assert.Equal(t, 1, df.Deletions)
	assert.Equal(t, 0, df.Additions)

	df = diffPair("com.dsop.Counter", "int i;\n", "int i;\n++i;\n", 1, 2)
	assert.Equal(t, 1, df.Additions)
	assert.Equal(t, 0, df.Deletions)
}

func TestChangePercentage(t *testing.T) {
	assert.Equal(t, 0, changePercentage(0, 0, 0, 0))
	assert.Equal(t, 100, changePercentage(5, 0, 0, 5))
	assert.Equal(t, 50, changePercentage(1, 1, 4, 4))
	assert.Equal(t, 33, changePercentage(1, 0, 3, 3))
	assert.Equal(t, 67, changePercentage(2, 0, 3, 3), "rounds, not truncates")
}
