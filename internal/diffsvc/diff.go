// Package diffsvc answers "what source changed between version X and Y
// of this artifact". Results are cached in the store and recomputed only
// when an endpoint source version moved underneath the cache entry.
package diffsvc

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/jarlens/jarlens/internal/logging"
	"github.com/jarlens/jarlens/internal/pipeline"
	"github.com/jarlens/jarlens/internal/store"
)

const contextLines = 3

// Change types recorded per file.
const (
	ChangeAdded    = "added"
	ChangeDeleted  = "deleted"
	ChangeModified = "modified"
)

// Result is one diff answer: the aggregate plus per-file detail.
type Result struct {
	Summary   *store.DiffSummary
	Files     []*store.DiffFile
	FromCache bool
}

// Service computes and caches version diffs.
type Service struct {
	store *store.Store
}

// New returns a diff Service backed by st.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// Compare diffs two versions of one artifact. Equal versions answer with
// an empty summary without touching the cache.
func (s *Service) Compare(ctx context.Context, kind store.ArtifactKind, name string, from, to int64) (*Result, error) {
	if from == to {
		if _, err := s.resolve(kind, name, from); err != nil {
			return nil, err
		}
		return &Result{Summary: &store.DiffSummary{
			ArtifactKind: kind, ArtifactName: name,
			FromVersion: from, ToVersion: to,
		}}, nil
	}
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("%w: versions must be positive", pipeline.ErrInvariant)
	}
	log := logging.WithComponent("diff")

	fromSources, err := s.resolve(kind, name, from)
	if err != nil {
		return nil, err
	}
	toSources, err := s.resolve(kind, name, to)
	if err != nil {
		return nil, err
	}

	newest := newestUpdate(fromSources, toSources)
	if cached, err := s.store.GetDiffSummary(kind, name, from, to); err == nil {
		if store.DiffFresh(cached.CreatedAt, newest) {
			files, err := s.store.DiffFiles(cached.ID, "")
			if err != nil {
				return nil, err
			}
			log.Debug().Str("artifact", name).Int64("from", from).Int64("to", to).Msg("diff cache hit")
			return &Result{Summary: cached, Files: files, FromCache: true}, nil
		}
		log.Debug().Str("artifact", name).Msg("diff cache stale, recomputing")
	} else if err != sql.ErrNoRows {
		return nil, err
	}

	summary := &store.DiffSummary{
		ArtifactKind: kind,
		ArtifactName: name,
		FromVersion:  from,
		ToVersion:    to,
	}
	files := diffSourceSets(fromSources, toSources, from, to)
	for _, df := range files {
		summary.Insertions += df.Additions
		summary.Deletions += df.Deletions
	}
	summary.FilesChanged = len(files)

	if err := s.store.PutDiff(summary, files); err != nil {
		return nil, err
	}
	log.Info().Str("artifact", name).Int64("from", from).Int64("to", to).
		Int("files_changed", summary.FilesChanged).Msg("computed diff")
	return &Result{Summary: summary, Files: files}, nil
}

// File returns the cached per-file diff for one path, computing the full
// diff first when the cache has no fresh entry.
func (s *Service) File(ctx context.Context, kind store.ArtifactKind, name string, from, to int64, filePath string) (*store.DiffFile, error) {
	res, err := s.Compare(ctx, kind, name, from, to)
	if err != nil {
		return nil, err
	}
	files, err := s.store.DiffFiles(res.Summary.ID, filePath)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no change recorded for %s between %d and %d", filePath, from, to)
	}
	return files[0], nil
}

// Invalidate drops the cached entry for one diff key.
func (s *Service) Invalidate(kind store.ArtifactKind, name string, from, to int64) error {
	return s.store.InvalidateDiff(kind, name, from, to)
}

// resolve maps one (kind, name, version) endpoint to its source versions
// keyed by class full name. Any row carrying that version works: rows of
// the same assigned version share content by construction.
func (s *Service) resolve(kind store.ArtifactKind, name string, version int64) (map[string]*store.SourceVersion, error) {
	switch kind {
	case store.KindJar:
		rows, err := s.store.JarFilesByName(name)
		if err != nil {
			return nil, err
		}
		for _, jf := range rows {
			if jf.VersionNo != version {
				continue
			}
			sources, err := s.store.SourceVersionsForJar(jf.ID)
			if err != nil {
				return nil, err
			}
			if len(sources) > 0 {
				return sources, nil
			}
		}
		return nil, fmt.Errorf("%w: no ingested sources for jar %s version %d", pipeline.ErrInvariant, name, version)

	case store.KindClass:
		rows, err := s.store.ClassFilesByName(name)
		if err != nil {
			return nil, err
		}
		for _, cf := range rows {
			if cf.VersionNo != version || cf.SourceVersionID == 0 {
				continue
			}
			sv, err := s.store.GetSourceVersion(cf.SourceVersionID)
			if err != nil {
				return nil, err
			}
			return map[string]*store.SourceVersion{name: sv}, nil
		}
		return nil, fmt.Errorf("%w: no ingested source for class %s version %d", pipeline.ErrInvariant, name, version)

	default:
		return nil, fmt.Errorf("%w: unknown artifact kind %q", pipeline.ErrInvariant, kind)
	}
}

// diffSourceSets pairs two source sets by class name and emits one DiffFile
// per added, deleted, or content-changed class. Identical hashes produce
// no row.
func diffSourceSets(from, to map[string]*store.SourceVersion, fromV, toV int64) []*store.DiffFile {
	names := make(map[string]bool, len(from)+len(to))
	for n := range from {
		names[n] = true
	}
	for n := range to {
		names[n] = true
	}

	var out []*store.DiffFile
	for name := range names {
		a, inFrom := from[name]
		b, inTo := to[name]

		switch {
		case inFrom && inTo:
			if a.FileHash == b.FileHash {
				continue
			}
			df := diffPair(name, a.FileContent, b.FileContent, fromV, toV)
			df.ChangeType = ChangeModified
			out = append(out, df)
		case inTo:
			df := diffPair(name, "", b.FileContent, fromV, toV)
			df.ChangeType = ChangeAdded
			out = append(out, df)
		default:
			df := diffPair(name, a.FileContent, "", fromV, toV)
			df.ChangeType = ChangeDeleted
			out = append(out, df)
		}
	}
	sortFiles(out)
	return out
}

// diffPair builds the unified diff for one class and counts its lines.
func diffPair(name, oldText, newText string, fromV, toV int64) *store.DiffFile {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: fmt.Sprintf("%s@%d", name, fromV),
		ToFile:   fmt.Sprintf("%s@%d", name, toV),
		Context:  contextLines,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		// SplitLines never yields inputs the writer rejects; keep the
		// row with an empty body rather than dropping the change.
		text = ""
	}

	df := &store.DiffFile{FilePath: name, UnifiedText: text}
	// Only the first two lines are file headers; content lines may
	// themselves start with --- or +++ (e.g. a deleted "--i;").
	for i, line := range strings.Split(text, "\n") {
		if i < 2 {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+"):
			df.Additions++
		case strings.HasPrefix(line, "-"):
			df.Deletions++
		}
	}
	df.ChangePercentage = changePercentage(df.Additions, df.Deletions, lineCount(oldText), lineCount(newText))
	return df
}

// lineCount counts content lines: newlines, plus one for an unterminated
// final line. SplitLines pads a trailing element, so its length skews
// percentages for pure adds and deletes.
func lineCount(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

// changePercentage is touched lines over the larger side of the pair,
// rounded. A pure add or delete is always 100.
func changePercentage(additions, deletions, oldLines, newLines int) int {
	base := oldLines
	if newLines > base {
		base = newLines
	}
	if base < 1 {
		base = 1
	}
	return int(math.Round(float64(additions+deletions) * 100 / float64(base)))
}

func newestUpdate(sets ...map[string]*store.SourceVersion) time.Time {
	var newest time.Time
	for _, set := range sets {
		for _, sv := range set {
			if sv.UpdatedAt.After(newest) {
				newest = sv.UpdatedAt
			}
		}
	}
	return newest
}

func sortFiles(files []*store.DiffFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].FilePath < files[j].FilePath })
}
