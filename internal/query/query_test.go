package query

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/jarlens/jarlens/internal/store"
)

func setupQuery(t *testing.T) (*Query, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func seedService(t *testing.T, s *store.Store, name, env string) *store.Service {
	t.Helper()
	svc := &store.Service{
		ServiceName: name, Environment: env, Host: "10.0.0.1",
		JarPath: "lib", ClassesPath: "classes",
		JarDecompileOutputDir: "o1", ClassDecompileOutputDir: "o2",
	}
	if _, err := s.UpsertService(svc); err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestServices_RollupCountsBehindArtifacts(t *testing.T) {
	q, s := setupQuery(t)
	sa := seedService(t, s, "svc_a", "production")
	sb := seedService(t, s, "svc_b", "production")

	// svc_a runs v1, svc_b runs v2 of the same jar; third-party excluded.
	for _, jf := range []*store.JarFile{
		{ServiceID: sa.ID, JarName: "dsop_common.jar", FileSize: 100},
		{ServiceID: sb.ID, JarName: "dsop_common.jar", FileSize: 200},
		{ServiceID: sa.ID, JarName: "spring-core.jar", FileSize: 5, IsThirdParty: true},
	} {
		if _, err := s.UpsertJarFile(jf); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AssignJarVersions("dsop_common.jar", map[int64]int64{100: 1, 200: 2}, 2); err != nil {
		t.Fatal(err)
	}

	sums, err := q.Services("")
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 {
		t.Fatalf("services = %d", len(sums))
	}

	byName := map[string]*ServiceSummary{}
	for _, sum := range sums {
		byName[sum.Service.ServiceName] = sum
	}
	a := byName["svc_a"]
	if a.JarCount != 1 {
		t.Errorf("svc_a JarCount = %d, want 1 (third-party excluded)", a.JarCount)
	}
	if a.JarsBehind != 1 {
		t.Errorf("svc_a JarsBehind = %d, want 1", a.JarsBehind)
	}
	b := byName["svc_b"]
	if b.JarsBehind != 0 {
		t.Errorf("svc_b JarsBehind = %d, want 0 (runs the latest)", b.JarsBehind)
	}
}

func TestServices_EnvironmentFilter(t *testing.T) {
	q, s := setupQuery(t)
	seedService(t, s, "svc_a", "production")
	seedService(t, s, "svc_a", "staging")

	sums, err := q.Services("staging")
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 || sums[0].Service.Environment != "staging" {
		t.Fatalf("filter failed: %+v", sums)
	}
}

func TestVersions_GroupsByAssignedVersion(t *testing.T) {
	q, s := setupQuery(t)
	sa := seedService(t, s, "svc_a", "production")
	sb := seedService(t, s, "svc_b", "production")

	for _, jf := range []*store.JarFile{
		{ServiceID: sa.ID, JarName: "dsop_common.jar", FileSize: 100},
		{ServiceID: sb.ID, JarName: "dsop_common.jar", FileSize: 200},
	} {
		if _, err := s.UpsertJarFile(jf); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AssignJarVersions("dsop_common.jar", map[int64]int64{100: 1, 200: 2}, 2); err != nil {
		t.Fatal(err)
	}

	hist, err := q.Versions(store.KindJar, "dsop_common.jar")
	if err != nil {
		t.Fatal(err)
	}
	if hist.LastVersionNo != 2 {
		t.Errorf("LastVersionNo = %d", hist.LastVersionNo)
	}
	if len(hist.ByVersion[1]) != 1 || hist.ByVersion[1][0].ServiceName != "svc_a" {
		t.Errorf("v1 rows = %+v", hist.ByVersion[1])
	}
	if len(hist.ByVersion[2]) != 1 || hist.ByVersion[2][0].ServiceName != "svc_b" {
		t.Errorf("v2 rows = %+v", hist.ByVersion[2])
	}

	if _, err := q.Versions(store.KindJar, "unknown.jar"); err == nil {
		t.Error("expected error for unknown artifact")
	}
}

func TestSearch(t *testing.T) {
	q, s := setupQuery(t)
	svc := seedService(t, s, "svc_a", "production")

	if _, err := s.UpsertJarFile(&store.JarFile{ServiceID: svc.ID, JarName: "dsop_common.jar", FileSize: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertClassFile(&store.ClassFile{ServiceID: svc.ID, ClassFullName: "com.dsop.Gateway", FileSize: 1}); err != nil {
		t.Fatal(err)
	}

	res, err := q.Search("dsop")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Jars) != 1 || len(res.Classes) != 1 {
		t.Fatalf("result = %+v", res)
	}

	res, err = q.Search("nomatch")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Jars)+len(res.Classes) != 0 {
		t.Fatalf("expected no matches, got %+v", res)
	}
}

// TestSources_AggregateHashIsOrderIndependent: the aggregate is computed
// over the class-name-sorted hash list, so link insertion order must not
// change it.
func TestSources_AggregateHash(t *testing.T) {
	q, s := setupQuery(t)
	sa := seedService(t, s, "svc_a", "production")
	sb := seedService(t, s, "svc_b", "production")

	seed := func(svcID int64, names []string) int64 {
		jf := &store.JarFile{ServiceID: svcID, JarName: "dsop_common.jar", FileSize: 100}
		if _, err := s.UpsertJarFile(jf); err != nil {
			t.Fatal(err)
		}
		for _, name := range names {
			ident, err := s.GetOrCreateIdentity(name)
			if err != nil {
				t.Fatal(err)
			}
			sv := &store.SourceVersion{SourceIdentityID: ident.ID, FileHash: "hash-of-" + name}
			if _, err := s.GetOrCreateSourceVersion(sv); err != nil {
				t.Fatal(err)
			}
			if err := s.LinkJarSource(jf.ID, sv.ID); err != nil {
				t.Fatal(err)
			}
		}
		return jf.ID
	}

	// Same classes linked in opposite orders on the two rows.
	seed(sa.ID, []string{"com.A", "com.B"})
	seed(sb.ID, []string{"com.B", "com.A"})
	if err := s.AssignJarVersions("dsop_common.jar", map[int64]int64{100: 1}, 1); err != nil {
		t.Fatal(err)
	}

	listing, err := q.Sources(store.KindJar, "dsop_common.jar", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(listing.Files) != 2 {
		t.Fatalf("files = %d", len(listing.Files))
	}
	if listing.ClassNames[0] != "com.A" || listing.ClassNames[1] != "com.B" {
		t.Errorf("class names not sorted: %v", listing.ClassNames)
	}
	// The digest is the sha-256 of the concatenated sorted per-file hashes.
	want := sha256.Sum256([]byte("hash-of-com.A" + "hash-of-com.B"))
	if listing.AggregateHash != hex.EncodeToString(want[:]) {
		t.Errorf("aggregate hash = %s", listing.AggregateHash)
	}

	// Recomputing yields the same digest.
	again, err := q.Sources(store.KindJar, "dsop_common.jar", 1)
	if err != nil {
		t.Fatal(err)
	}
	if again.AggregateHash != listing.AggregateHash {
		t.Error("aggregate hash not deterministic")
	}

	// The same digest shows up on the version history entry.
	hist, err := q.Versions(store.KindJar, "dsop_common.jar")
	if err != nil {
		t.Fatal(err)
	}
	if hist.SourceHashes[1] != listing.AggregateHash {
		t.Errorf("history source hash = %s", hist.SourceHashes[1])
	}
}

func TestStats(t *testing.T) {
	q, s := setupQuery(t)
	svc := seedService(t, s, "svc_a", "production")

	if _, err := s.UpsertJarFile(&store.JarFile{ServiceID: svc.ID, JarName: "dsop_common.jar", FileSize: 1}); err != nil {
		t.Fatal(err)
	}

	st, err := q.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Services != 1 {
		t.Errorf("Services = %d", st.Services)
	}
	if st.Jars.TotalFiles != 1 || st.Jars.WithVersions != 0 {
		t.Errorf("Jars = %+v", st.Jars)
	}
}
