// Package ingest walks decompile output trees and materializes the
// content-addressed source store: identities, versions and the links
// tying them back to concrete artifacts.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jarlens/jarlens/internal/logging"
	"github.com/jarlens/jarlens/internal/store"
)

// Selector narrows one ingestion pass. All fields compose.
type Selector struct {
	JarName   string // only files under this JAR's decompile output
	ClassName string // only this class's decompile output
	DryRun    bool   // report planned writes without executing them
}

// Report summarizes one ingestion pass.
type Report struct {
	FilesSeen       int
	VersionsCreated int
	VersionsReused  int
	LinksCreated    int
	PointersSet     int
	Planned         []string // dry-run plan lines
}

// Ingestor runs the source ingestion stage.
type Ingestor struct {
	store *store.Store
}

// New returns an Ingestor backed by st.
func New(st *store.Store) *Ingestor {
	return &Ingestor{store: st}
}

// Run ingests the decompile outputs of every given service.
func (in *Ingestor) Run(ctx context.Context, services []*store.Service, sel Selector) (*Report, error) {
	rep := &Report{}
	for _, svc := range services {
		if err := in.ingestJarTree(ctx, svc, sel, rep); err != nil {
			return rep, err
		}
		if err := in.ingestClassTree(ctx, svc, sel, rep); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// ingestJarTree walks {jar_root}/{jar_stem}/{date-service@host}/pkg/Cls.java.
// Each file links the owning JarFile row to a deduplicated SourceVersion.
func (in *Ingestor) ingestJarTree(ctx context.Context, svc *store.Service, sel Selector, rep *Report) error {
	log := logging.WithService(svc.ServiceName)
	root := svc.JarDecompileOutputDir
	if root == "" || !dirExists(root) {
		return nil
	}

	// jar_name in the store includes .jar; directory stems do not.
	jars, err := in.store.JarFilesForService(svc.ID)
	if err != nil {
		return err
	}
	byStem := make(map[string]*store.JarFile, len(jars))
	for _, jf := range jars {
		byStem[strings.TrimSuffix(jf.JarName, ".jar")] = jf
	}

	return in.walk(ctx, root, func(parts []string, fullPath string) error {
		stem, tag, javaParts := parts[0], parts[1], parts[2:]
		if sel.JarName != "" && stem != strings.TrimSuffix(sel.JarName, ".jar") {
			return nil
		}
		if tagService(tag) != svc.ServiceName {
			return nil
		}
		jf, ok := byStem[stem]
		if !ok {
			log.Warn().Str("jar", stem).Msg("decompile output with no jar row")
			return nil
		}

		className := classNameFromJavaPath(javaParts)
		if className == "" {
			return nil
		}
		if sel.ClassName != "" && className != sel.ClassName {
			return nil
		}
		rep.FilesSeen++

		if sel.DryRun {
			rep.Planned = append(rep.Planned,
				fmt.Sprintf("link jar=%s class=%s file=%s", jf.JarName, className, fullPath))
			return nil
		}

		sv, created, err := in.storeVersion(className, fullPath)
		if err != nil {
			return err
		}
		if created {
			rep.VersionsCreated++
		} else {
			rep.VersionsReused++
		}
		if err := in.store.LinkJarSource(jf.ID, sv.ID); err != nil {
			return err
		}
		rep.LinksCreated++
		return nil
	})
}

// ingestClassTree walks {class_root}/{class_full_name}/{date-service@host}/pkg/Cls.java.
// Each file points the owning ClassFile row at its SourceVersion.
func (in *Ingestor) ingestClassTree(ctx context.Context, svc *store.Service, sel Selector, rep *Report) error {
	log := logging.WithService(svc.ServiceName)
	root := svc.ClassDecompileOutputDir
	if root == "" || !dirExists(root) {
		return nil
	}

	return in.walk(ctx, root, func(parts []string, fullPath string) error {
		owner, tag, javaParts := parts[0], parts[1], parts[2:]
		if sel.ClassName != "" && owner != sel.ClassName {
			return nil
		}
		if sel.JarName != "" {
			return nil // jar selector excludes the class tree
		}
		if tagService(tag) != svc.ServiceName {
			return nil
		}

		className := classNameFromJavaPath(javaParts)
		if className == "" {
			return nil
		}
		rep.FilesSeen++

		cf, err := in.store.GetClassFile(svc.ID, owner)
		if err != nil {
			log.Warn().Str("class", owner).Msg("decompile output with no class row")
			return nil
		}

		if sel.DryRun {
			rep.Planned = append(rep.Planned,
				fmt.Sprintf("point class=%s at file=%s", owner, fullPath))
			return nil
		}

		// The identity is the owning class row's full name, not the name
		// derived from the .java path: decompiler output for inner classes
		// can land under the outer class's file name.
		sv, created, err := in.storeVersion(owner, fullPath)
		if err != nil {
			return err
		}
		if created {
			rep.VersionsCreated++
		} else {
			rep.VersionsReused++
		}
		if err := in.store.SetClassSourceVersion(cf.ID, sv.ID); err != nil {
			return err
		}
		rep.PointersSet++
		return nil
	})
}

// storeVersion hashes one .java file and dedups it into the source store.
func (in *Ingestor) storeVersion(className, fullPath string) (*store.SourceVersion, bool, error) {
	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", fullPath, err)
	}
	normalized := Normalize(raw)

	ident, err := in.store.GetOrCreateIdentity(className)
	if err != nil {
		return nil, false, err
	}

	sv := &store.SourceVersion{
		SourceIdentityID: ident.ID,
		FilePath:         fullPath,
		FileContent:      string(normalized),
		FileSize:         int64(len(normalized)),
		FileHash:         HashContent(normalized),
		LineCount:        LineCount(normalized),
	}
	created, err := in.store.GetOrCreateSourceVersion(sv)
	if err != nil {
		return nil, false, err
	}
	return sv, created, nil
}

// walk visits every .java file at least three levels below root, skipping
// the _jar and _class directories of retained originals. parts is the
// slash-split relative path.
func (in *Ingestor) walk(ctx context.Context, root string, visit func(parts []string, fullPath string) error) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if d.Name() == "_jar" || d.Name() == "_class" {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".java") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 3 {
			return nil // not under a timestamp directory
		}
		return visit(parts, p)
	})
}

// tagService extracts the service name from a "{YYYYMMDD}-{service}@{host}"
// directory name.
func tagService(tag string) string {
	i := strings.Index(tag, "-")
	if i < 0 {
		return ""
	}
	rest := tag[i+1:]
	if j := strings.Index(rest, "@"); j >= 0 {
		return rest[:j]
	}
	return rest
}

// classNameFromJavaPath maps pkg/sub/Cls.java to pkg.sub.Cls.
func classNameFromJavaPath(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	last := parts[len(parts)-1]
	if !strings.HasSuffix(last, ".java") {
		return ""
	}
	joined := append(append([]string(nil), parts[:len(parts)-1]...), strings.TrimSuffix(last, ".java"))
	return strings.Join(joined, ".")
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
