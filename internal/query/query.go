// Package query is the read side of the inventory: which services run
// which artifact versions, which of those are behind, and what sources
// a given version carries.
package query

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/jarlens/jarlens/internal/pipeline"
	"github.com/jarlens/jarlens/internal/store"
)

// Query answers read-only questions against the store.
type Query struct {
	store *store.Store
}

// New returns a Query backed by st.
func New(st *store.Store) *Query {
	return &Query{store: st}
}

// ServiceSummary is one service's inventory rollup.
type ServiceSummary struct {
	Service    *store.Service
	JarCount   int
	ClassCount int
	// Behind counts internal artifacts whose assigned version trails the
	// fleet-wide latest for that name.
	JarsBehind    int
	ClassesBehind int
	Failures      int
}

// Services returns the rollup for every service, or for one environment
// when environment is non-empty.
func (q *Query) Services(environment string) ([]*ServiceSummary, error) {
	var services []*store.Service
	var err error
	if environment == "" {
		services, err = q.store.ListServices()
	} else {
		services, err = q.store.ListServicesByEnvironment(environment)
	}
	if err != nil {
		return nil, err
	}

	out := make([]*ServiceSummary, 0, len(services))
	for _, svc := range services {
		sum := &ServiceSummary{Service: svc}

		jars, err := q.store.JarFilesForService(svc.ID)
		if err != nil {
			return nil, err
		}
		for _, jf := range jars {
			if jf.IsThirdParty {
				continue
			}
			sum.JarCount++
			if jf.VersionNo > 0 && jf.VersionNo < jf.LastVersionNo {
				sum.JarsBehind++
			}
			if jf.LastError != "" {
				sum.Failures++
			}
		}

		classes, err := q.store.ClassFilesForService(svc.ID)
		if err != nil {
			return nil, err
		}
		for _, cf := range classes {
			sum.ClassCount++
			if cf.VersionNo > 0 && cf.VersionNo < cf.LastVersionNo {
				sum.ClassesBehind++
			}
			if cf.LastError != "" {
				sum.Failures++
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// VersionRow is one observation of an artifact name on one service.
type VersionRow struct {
	ServiceName  string
	Environment  string
	Host         string
	FileSize     int64
	LastModified time.Time
	VersionNo    int64
	LastError    string
}

// VersionHistory is every fleet observation of one artifact name,
// grouped by assigned version.
type VersionHistory struct {
	Kind          store.ArtifactKind
	Name          string
	LastVersionNo int64
	ByVersion     map[int64][]VersionRow
	// SourceHashes maps each version to its aggregate source hash.
	// Versions with no ingested sources have no entry.
	SourceHashes map[int64]string
}

// Versions reports where every version of one artifact name runs.
func (q *Query) Versions(kind store.ArtifactKind, name string) (*VersionHistory, error) {
	serviceByID, err := q.serviceIndex()
	if err != nil {
		return nil, err
	}

	hist := &VersionHistory{Kind: kind, Name: name, ByVersion: make(map[int64][]VersionRow)}
	add := func(serviceID, version, last, size int64, modified time.Time, lastError string) {
		svc := serviceByID[serviceID]
		if svc == nil {
			return
		}
		if last > hist.LastVersionNo {
			hist.LastVersionNo = last
		}
		hist.ByVersion[version] = append(hist.ByVersion[version], VersionRow{
			ServiceName:  svc.ServiceName,
			Environment:  svc.Environment,
			Host:         svc.Host,
			FileSize:     size,
			LastModified: modified,
			VersionNo:    version,
			LastError:    lastError,
		})
	}

	switch kind {
	case store.KindJar:
		rows, err := q.store.JarFilesByName(name)
		if err != nil {
			return nil, err
		}
		for _, jf := range rows {
			add(jf.ServiceID, jf.VersionNo, jf.LastVersionNo, jf.FileSize, jf.LastModified, jf.LastError)
		}
	case store.KindClass:
		rows, err := q.store.ClassFilesByName(name)
		if err != nil {
			return nil, err
		}
		for _, cf := range rows {
			add(cf.ServiceID, cf.VersionNo, cf.LastVersionNo, cf.FileSize, cf.LastModified, cf.LastError)
		}
	default:
		return nil, fmt.Errorf("%w: unknown artifact kind %q", pipeline.ErrInvariant, kind)
	}

	if len(hist.ByVersion) == 0 {
		return nil, fmt.Errorf("no observations of %s %s", kind, name)
	}

	hist.SourceHashes = make(map[int64]string)
	for v := range hist.ByVersion {
		if v <= 0 {
			continue
		}
		sources, err := q.resolveSources(kind, name, v)
		if err != nil {
			continue // nothing ingested for this version yet
		}
		hist.SourceHashes[v] = aggregateHash(sources)
	}
	return hist, nil
}

// SearchResult holds name matches for both artifact kinds.
type SearchResult struct {
	Jars    []string
	Classes []string
}

// Search finds artifact names containing the substring.
func (q *Query) Search(term string) (*SearchResult, error) {
	jars, err := q.store.SearchJarNames(term)
	if err != nil {
		return nil, err
	}
	classes, err := q.store.SearchClassNames(term)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Jars: jars, Classes: classes}, nil
}

// SourceListing is the source contents of one artifact version.
type SourceListing struct {
	Kind    store.ArtifactKind
	Name    string
	Version int64
	// AggregateHash is the sha-256 of the concatenated, sorted per-file
	// content hashes; two versions with identical sources share it.
	AggregateHash string
	Files         []*store.SourceVersion
	ClassNames    []string
}

// Sources lists the ingested source versions carried by one artifact version.
func (q *Query) Sources(kind store.ArtifactKind, name string, version int64) (*SourceListing, error) {
	sources, err := q.resolveSources(kind, name, version)
	if err != nil {
		return nil, err
	}

	listing := &SourceListing{Kind: kind, Name: name, Version: version}
	for className := range sources {
		listing.ClassNames = append(listing.ClassNames, className)
	}
	sort.Strings(listing.ClassNames)

	for _, className := range listing.ClassNames {
		listing.Files = append(listing.Files, sources[className])
	}
	listing.AggregateHash = aggregateHash(sources)
	return listing, nil
}

// aggregateHash digests the sorted per-file content hashes, concatenated.
func aggregateHash(sources map[string]*store.SourceVersion) string {
	hashes := make([]string, 0, len(sources))
	for _, sv := range sources {
		hashes = append(hashes, sv.FileHash)
	}
	sort.Strings(hashes)
	h := sha256.New()
	for _, fh := range hashes {
		h.Write([]byte(fh))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Stats is the fleet-wide pipeline progress rollup.
type Stats struct {
	Services int
	Jars     *store.VersionStats
	Classes  *store.VersionStats
	Orphans  int
}

// Stats summarizes pipeline coverage across the store.
func (q *Query) Stats() (*Stats, error) {
	services, err := q.store.ListServices()
	if err != nil {
		return nil, err
	}
	jars, err := q.store.JarVersionStats()
	if err != nil {
		return nil, err
	}
	classes, err := q.store.ClassVersionStats()
	if err != nil {
		return nil, err
	}
	orphans, err := q.store.OrphanSourceVersions()
	if err != nil {
		return nil, err
	}
	orphanVersions := 0
	for _, o := range orphans {
		orphanVersions += len(o.VersionIDs)
	}
	return &Stats{Services: len(services), Jars: jars, Classes: classes, Orphans: orphanVersions}, nil
}

func (q *Query) resolveSources(kind store.ArtifactKind, name string, version int64) (map[string]*store.SourceVersion, error) {
	switch kind {
	case store.KindJar:
		rows, err := q.store.JarFilesByName(name)
		if err != nil {
			return nil, err
		}
		for _, jf := range rows {
			if jf.VersionNo != version {
				continue
			}
			sources, err := q.store.SourceVersionsForJar(jf.ID)
			if err != nil {
				return nil, err
			}
			if len(sources) > 0 {
				return sources, nil
			}
		}
		return nil, fmt.Errorf("no ingested sources for jar %s version %d", name, version)

	case store.KindClass:
		rows, err := q.store.ClassFilesByName(name)
		if err != nil {
			return nil, err
		}
		for _, cf := range rows {
			if cf.VersionNo != version || cf.SourceVersionID == 0 {
				continue
			}
			sv, err := q.store.GetSourceVersion(cf.SourceVersionID)
			if err != nil && err != sql.ErrNoRows {
				return nil, err
			}
			if sv != nil {
				return map[string]*store.SourceVersion{name: sv}, nil
			}
		}
		return nil, fmt.Errorf("no ingested source for class %s version %d", name, version)

	default:
		return nil, fmt.Errorf("%w: unknown artifact kind %q", pipeline.ErrInvariant, kind)
	}
}

func (q *Query) serviceIndex() (map[int64]*store.Service, error) {
	services, err := q.store.ListServices()
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*store.Service, len(services))
	for _, svc := range services {
		out[svc.ID] = svc
	}
	return out, nil
}
