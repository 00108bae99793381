package version

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarlens/jarlens/internal/store"
)

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestOrderSizes_EarliestMtimeFirst(t *testing.T) {
	obs := []observation{
		{size: 300, modified: day(3), serviceName: "svc_a"},
		{size: 100, modified: day(1), serviceName: "svc_b"},
		{size: 200, modified: day(2), serviceName: "svc_c"},
	}
	m, last := orderSizes(obs)
	assert.Equal(t, int64(3), last)
	assert.Equal(t, int64(1), m[100])
	assert.Equal(t, int64(2), m[200])
	assert.Equal(t, int64(3), m[300])
}

func TestOrderSizes_SizeGroupUsesEarliestObservation(t *testing.T) {
	// The same size seen on two services takes its earliest mtime.
	obs := []observation{
		{size: 100, modified: day(5), serviceName: "svc_a"},
		{size: 100, modified: day(1), serviceName: "svc_b"},
		{size: 200, modified: day(3), serviceName: "svc_a"},
	}
	m, last := orderSizes(obs)
	assert.Equal(t, int64(2), last)
	assert.Equal(t, int64(1), m[100], "size 100 was first seen on day 1")
	assert.Equal(t, int64(2), m[200])
}

func TestOrderSizes_TieBreaks(t *testing.T) {
	// Equal mtimes: ascending size wins, then lexicographic service.
	obs := []observation{
		{size: 500, modified: day(1), serviceName: "svc_a"},
		{size: 100, modified: day(1), serviceName: "svc_z"},
	}
	m, _ := orderSizes(obs)
	assert.Equal(t, int64(1), m[100])
	assert.Equal(t, int64(2), m[500])
}

func TestOrderSizes_ZeroTimesSortLast(t *testing.T) {
	obs := []observation{
		{size: 100, serviceName: "svc_a"}, // no mtime
		{size: 200, modified: day(1), serviceName: "svc_b"},
	}
	m, _ := orderSizes(obs)
	assert.Equal(t, int64(1), m[200])
	assert.Equal(t, int64(2), m[100])
}

// TestOrderSizes_AppendOnly verifies the core invariant: an assigned
// version never moves, new sizes get the next free numbers even when
// their mtimes predate existing assignments.
func TestOrderSizes_AppendOnly(t *testing.T) {
	obs := []observation{
		{size: 100, modified: day(5), serviceName: "svc_a", existing: 1},
		{size: 200, modified: day(6), serviceName: "svc_a", existing: 2},
		{size: 50, modified: day(1), serviceName: "svc_b"}, // older but new
	}
	m, last := orderSizes(obs)
	assert.Equal(t, int64(1), m[100])
	assert.Equal(t, int64(2), m[200])
	assert.Equal(t, int64(3), m[50], "new size must append, not renumber")
	assert.Equal(t, int64(3), last)
}

func setupAssigner(t *testing.T) (*Assigner, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func seedService(t *testing.T, s *store.Store, name string) *store.Service {
	t.Helper()
	svc := &store.Service{
		ServiceName: name, Environment: "production",
		JarPath: "lib", ClassesPath: "classes",
		JarDecompileOutputDir: "o1", ClassDecompileOutputDir: "o2",
	}
	_, err := s.UpsertService(svc)
	require.NoError(t, err)
	return svc
}

func TestAssignJars_EndToEnd(t *testing.T) {
	a, s := setupAssigner(t)
	sa := seedService(t, s, "svc_a")
	sb := seedService(t, s, "svc_b")

	for _, jf := range []*store.JarFile{
		{ServiceID: sa.ID, JarName: "dsop_common.jar", FileSize: 100, LastModified: day(1)},
		{ServiceID: sb.ID, JarName: "dsop_common.jar", FileSize: 200, LastModified: day(2)},
	} {
		_, err := s.UpsertJarFile(jf)
		require.NoError(t, err)
	}

	var sum Summary
	require.NoError(t, a.AssignJars(context.Background(), nil, &sum))
	assert.Equal(t, 1, sum.JarNamesProcessed)

	rows, err := s.JarFilesByName("dsop_common.jar")
	require.NoError(t, err)
	for _, jf := range rows {
		assert.Equal(t, int64(2), jf.LastVersionNo)
		if jf.FileSize == 100 {
			assert.Equal(t, int64(1), jf.VersionNo)
		} else {
			assert.Equal(t, int64(2), jf.VersionNo)
		}
	}

	// A third size observed later appends version 3; 1 and 2 stand.
	_, err = s.UpsertJarFile(&store.JarFile{
		ServiceID: sa.ID, JarName: "dsop_common.jar", FileSize: 300, LastModified: day(0),
	})
	// Same (service, name) key: the upsert refreshed svc_a's row to size 300.
	require.NoError(t, err)

	var sum2 Summary
	require.NoError(t, a.AssignJars(context.Background(), nil, &sum2))
	rows, err = s.JarFilesByName("dsop_common.jar")
	require.NoError(t, err)
	for _, jf := range rows {
		assert.Equal(t, int64(3), jf.LastVersionNo)
		if jf.FileSize == 300 {
			assert.Equal(t, int64(3), jf.VersionNo, "new size appends even with the oldest mtime")
		}
	}
}

func TestRelabel_WritesTokenSets(t *testing.T) {
	a, s := setupAssigner(t)
	svc := seedService(t, s, "svc_a")

	jf := &store.JarFile{ServiceID: svc.ID, JarName: "dsop_common.jar", FileSize: 100, LastModified: day(1)}
	_, err := s.UpsertJarFile(jf)
	require.NoError(t, err)
	cf := &store.ClassFile{ServiceID: svc.ID, ClassFullName: "com.dsop.Gateway", FileSize: 10, LastModified: day(1)}
	_, err = s.UpsertClassFile(cf)
	require.NoError(t, err)

	ident, err := s.GetOrCreateIdentity("com.dsop.Gateway")
	require.NoError(t, err)
	sv := &store.SourceVersion{SourceIdentityID: ident.ID, FileHash: "h1"}
	_, err = s.GetOrCreateSourceVersion(sv)
	require.NoError(t, err)

	require.NoError(t, s.LinkJarSource(jf.ID, sv.ID))
	require.NoError(t, s.SetClassSourceVersion(cf.ID, sv.ID))

	var sum Summary
	require.NoError(t, a.AssignJars(context.Background(), nil, &sum))
	require.NoError(t, a.AssignClasses(context.Background(), nil, &sum))
	require.NoError(t, a.Relabel(context.Background(), &sum))
	assert.Equal(t, 1, sum.LabelsWritten)

	got, err := s.GetSourceVersion(sv.ID)
	require.NoError(t, err)
	// Sorted token set: class token before jar token.
	assert.Equal(t, "class:com.dsop.Gateway@1 jar:dsop_common.jar@1", got.Version)

	// Relabelling again with nothing changed writes nothing.
	var sum2 Summary
	require.NoError(t, a.Relabel(context.Background(), &sum2))
	assert.Zero(t, sum2.LabelsWritten)
}

func TestMergeSources_SameVersionRowsShareLinks(t *testing.T) {
	a, s := setupAssigner(t)
	sa := seedService(t, s, "svc_a")
	sb := seedService(t, s, "svc_b")

	// Two services run the identical binary (same size -> same version).
	ja := &store.JarFile{ServiceID: sa.ID, JarName: "dsop_common.jar", FileSize: 100, LastModified: day(1)}
	jb := &store.JarFile{ServiceID: sb.ID, JarName: "dsop_common.jar", FileSize: 100, LastModified: day(2)}
	for _, jf := range []*store.JarFile{ja, jb} {
		_, err := s.UpsertJarFile(jf)
		require.NoError(t, err)
	}

	ident, err := s.GetOrCreateIdentity("com.dsop.Gateway")
	require.NoError(t, err)
	sv := &store.SourceVersion{SourceIdentityID: ident.ID, FileHash: "h1"}
	_, err = s.GetOrCreateSourceVersion(sv)
	require.NoError(t, err)

	// Only svc_a's copy was decompiled and ingested.
	require.NoError(t, s.LinkJarSource(ja.ID, sv.ID))

	var sum Summary
	require.NoError(t, a.AssignJars(context.Background(), nil, &sum))
	require.NoError(t, a.MergeSources(context.Background(), &sum))
	assert.Equal(t, 1, sum.RowsMerged)

	ids, err := s.LinkedVersionIDsForJar(jb.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{sv.ID}, ids, "svc_b's identical jar adopts svc_a's links")
}
