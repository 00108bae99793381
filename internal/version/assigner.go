// Package version assigns compact integer versions to distinct binary
// contents of each artifact name across the fleet, and propagates JAR
// versions onto the source versions they contain.
package version

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jarlens/jarlens/internal/logging"
	"github.com/jarlens/jarlens/internal/store"
)

// Assigner runs the version-assignment stage.
type Assigner struct {
	store *store.Store
}

// Summary aggregates one assignment pass.
type Summary struct {
	JarNamesProcessed   int
	ClassNamesProcessed int
	LabelsWritten       int
	RowsMerged          int
}

// New returns an Assigner backed by st.
func New(st *store.Store) *Assigner {
	return &Assigner{store: st}
}

// observation is one artifact row reduced to what ordering needs.
type observation struct {
	size        int64
	modified    time.Time
	serviceName string
	existing    int64 // already-assigned version, 0 if none
}

// orderSizes produces the size→version mapping for one artifact name.
//
// Existing assignments are append-only: sizes that already carry a version
// keep it. Unversioned sizes are ordered by earliest last_modified, then
// ascending size, then the lexicographically first service observed, and
// receive the next integers.
func orderSizes(obs []observation) (sizeToVersion map[int64]int64, last int64) {
	type sizeKey struct {
		size     int64
		earliest time.Time
		service  string
		existing int64
	}

	bySize := make(map[int64]*sizeKey)
	for _, o := range obs {
		k, ok := bySize[o.size]
		if !ok {
			bySize[o.size] = &sizeKey{size: o.size, earliest: o.modified, service: o.serviceName, existing: o.existing}
			continue
		}
		if !o.modified.IsZero() && (k.earliest.IsZero() || o.modified.Before(k.earliest)) {
			k.earliest = o.modified
		}
		if o.serviceName < k.service {
			k.service = o.serviceName
		}
		if o.existing > 0 && (k.existing == 0 || o.existing < k.existing) {
			k.existing = o.existing
		}
	}

	sizeToVersion = make(map[int64]int64, len(bySize))
	var unassigned []*sizeKey
	for _, k := range bySize {
		if k.existing > 0 {
			sizeToVersion[k.size] = k.existing
			if k.existing > last {
				last = k.existing
			}
		} else {
			unassigned = append(unassigned, k)
		}
	}

	sort.Slice(unassigned, func(i, j int) bool {
		a, b := unassigned[i], unassigned[j]
		if !a.earliest.Equal(b.earliest) {
			// Zero times sort last: rows with no mtime are newest-unknown.
			if a.earliest.IsZero() {
				return false
			}
			if b.earliest.IsZero() {
				return true
			}
			return a.earliest.Before(b.earliest)
		}
		if a.size != b.size {
			return a.size < b.size
		}
		return a.service < b.service
	})

	for _, k := range unassigned {
		last++
		sizeToVersion[k.size] = last
	}
	return sizeToVersion, last
}

// AssignJars numbers every jar_name in names (all known names when nil).
func (a *Assigner) AssignJars(ctx context.Context, names []string, sum *Summary) error {
	log := logging.WithComponent("version")

	if names == nil {
		var err error
		names, err = a.store.DistinctJarNames(false)
		if err != nil {
			return err
		}
	}
	serviceNames, err := a.serviceNames()
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := a.store.JarFilesByName(name)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}

		obs := make([]observation, 0, len(rows))
		for _, jf := range rows {
			obs = append(obs, observation{
				size:        jf.FileSize,
				modified:    jf.LastModified,
				serviceName: serviceNames[jf.ServiceID],
				existing:    jf.VersionNo,
			})
		}
		sizeToVersion, last := orderSizes(obs)
		if err := a.store.AssignJarVersions(name, sizeToVersion, last); err != nil {
			return err
		}
		sum.JarNamesProcessed++
		log.Debug().Str("jar", name).Int64("versions", last).Msg("assigned jar versions")
	}
	return nil
}

// AssignClasses numbers every class_full_name in names (all when nil).
func (a *Assigner) AssignClasses(ctx context.Context, names []string, sum *Summary) error {
	log := logging.WithComponent("version")

	if names == nil {
		var err error
		names, err = a.store.DistinctClassNames()
		if err != nil {
			return err
		}
	}
	serviceNames, err := a.serviceNames()
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := a.store.ClassFilesByName(name)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}

		obs := make([]observation, 0, len(rows))
		for _, cf := range rows {
			obs = append(obs, observation{
				size:        cf.FileSize,
				modified:    cf.LastModified,
				serviceName: serviceNames[cf.ServiceID],
				existing:    cf.VersionNo,
			})
		}
		sizeToVersion, last := orderSizes(obs)
		if err := a.store.AssignClassVersions(name, sizeToVersion, last); err != nil {
			return err
		}
		sum.ClassNamesProcessed++
		log.Debug().Str("class", name).Int64("versions", last).Msg("assigned class versions")
	}
	return nil
}

// Relabel rewrites the version token set of every source version from the
// current numbering: "jar:{name}@{v}" for each JAR version containing it,
// "class:{name}@{v}" for each class version pointing at it. Only rows
// whose label actually changes are written.
func (a *Assigner) Relabel(ctx context.Context, sum *Summary) error {
	jarTokens, err := a.store.JarVersionTokens()
	if err != nil {
		return err
	}
	classTokens, err := a.store.ClassVersionTokens()
	if err != nil {
		return err
	}
	current, err := a.store.SourceVersionLabels()
	if err != nil {
		return err
	}

	tokens := make(map[int64]map[string]bool)
	add := func(svID int64, tok string) {
		set, ok := tokens[svID]
		if !ok {
			set = make(map[string]bool)
			tokens[svID] = set
		}
		set[tok] = true
	}
	for svID, toks := range jarTokens {
		for _, t := range toks {
			add(svID, t)
		}
	}
	for svID, toks := range classTokens {
		for _, t := range toks {
			add(svID, t)
		}
	}

	for svID, set := range tokens {
		if err := ctx.Err(); err != nil {
			return err
		}
		sorted := make([]string, 0, len(set))
		for t := range set {
			sorted = append(sorted, t)
		}
		sort.Strings(sorted)
		label := strings.Join(sorted, " ")
		if current[svID] == label {
			continue
		}
		if err := a.store.SetSourceVersionLabel(svID, label); err != nil {
			return err
		}
		sum.LabelsWritten++
	}
	return nil
}

// MergeSources makes rows of the same (name, version_no) share source
// links: later JAR rows adopt the first row's link set, later class rows
// adopt the first row's source-version pointer.
func (a *Assigner) MergeSources(ctx context.Context, sum *Summary) error {
	if err := a.mergeJarLinks(ctx, sum); err != nil {
		return err
	}
	return a.mergeClassPointers(ctx, sum)
}

func (a *Assigner) mergeJarLinks(ctx context.Context, sum *Summary) error {
	names, err := a.store.DistinctJarNames(false)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := a.store.JarFilesByName(name)
		if err != nil {
			return err
		}
		byVersion := make(map[int64][]*store.JarFile)
		for _, jf := range rows {
			if jf.VersionNo > 0 {
				byVersion[jf.VersionNo] = append(byVersion[jf.VersionNo], jf)
			}
		}
		for _, group := range byVersion {
			if len(group) <= 1 {
				continue
			}
			canonical, err := a.store.LinkedVersionIDsForJar(group[0].ID)
			if err != nil {
				return err
			}
			if len(canonical) == 0 {
				continue
			}
			for _, other := range group[1:] {
				if err := a.store.ReplaceJarLinks(other.ID, canonical); err != nil {
					return err
				}
				sum.RowsMerged++
			}
		}
	}
	return nil
}

func (a *Assigner) mergeClassPointers(ctx context.Context, sum *Summary) error {
	names, err := a.store.DistinctClassNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := a.store.ClassFilesByName(name)
		if err != nil {
			return err
		}
		byVersion := make(map[int64][]*store.ClassFile)
		for _, cf := range rows {
			if cf.VersionNo > 0 {
				byVersion[cf.VersionNo] = append(byVersion[cf.VersionNo], cf)
			}
		}
		for _, group := range byVersion {
			if len(group) <= 1 || group[0].SourceVersionID == 0 {
				continue
			}
			for _, other := range group[1:] {
				if other.SourceVersionID == group[0].SourceVersionID {
					continue
				}
				if err := a.store.SetClassSourceVersion(other.ID, group[0].SourceVersionID); err != nil {
					return err
				}
				sum.RowsMerged++
			}
		}
	}
	return nil
}

func (a *Assigner) serviceNames() (map[int64]string, error) {
	services, err := a.store.ListServices()
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(services))
	for _, svc := range services {
		out[svc.ID] = svc.ServiceName
	}
	return out, nil
}
