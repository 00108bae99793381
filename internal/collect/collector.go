// Package collect implements the fleet collector: per-service listings of
// JAR archives and loose class files, normalized into the store without
// downloading any contents.
package collect

import (
	"context"
	"fmt"
	"strings"

	"github.com/jarlens/jarlens/internal/logging"
	"github.com/jarlens/jarlens/internal/pipeline"
	"github.com/jarlens/jarlens/internal/registry"
	"github.com/jarlens/jarlens/internal/store"
	"github.com/jarlens/jarlens/internal/transport"
)

// TransportFactory opens a transport for one service. Injected so tests
// can supply a fake host.
type TransportFactory func(svc *store.Service) (transport.Transport, error)

// Collector runs the JAR and class listing passes.
type Collector struct {
	store            *store.Store
	internalPrefixes []string
	dial             TransportFactory
}

// Result summarizes one collection pass over one service.
type Result struct {
	Inserted     int
	Updated      int
	SkippedLines int
}

// New returns a Collector using the given transport factory.
func New(st *store.Store, internalPrefixes []string, dial TransportFactory) *Collector {
	return &Collector{store: st, internalPrefixes: internalPrefixes, dial: dial}
}

// CollectJars lists the service's lib directory and upserts one JarFile
// row per *.jar entry. A transport failure leaves prior rows untouched.
func (c *Collector) CollectJars(ctx context.Context, svc *store.Service) (*Result, error) {
	log := logging.WithService(svc.ServiceName)

	jarDir, err := registry.RenderPath(svc, svc.JarPath)
	if err != nil {
		return nil, err
	}

	entries, skipped, err := c.list(ctx, svc, jarDir, false)
	if err != nil {
		return nil, fmt.Errorf("%w: list jars for %s: %v", pipeline.ErrTransport, svc.ServiceName, err)
	}

	res := &Result{SkippedLines: skipped}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name, ".jar") {
			continue
		}
		jf := &store.JarFile{
			ServiceID:    svc.ID,
			JarName:      e.Name,
			FileSize:     e.Size,
			LastModified: e.ModTime,
			IsThirdParty: IsThirdParty(e.Name, c.internalPrefixes),
		}
		created, err := c.store.UpsertJarFile(jf)
		if err != nil {
			return res, err
		}
		if created {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	log.Info().Int("inserted", res.Inserted).Int("updated", res.Updated).
		Int("skipped_lines", res.SkippedLines).Msg("collected jar listing")
	return res, nil
}

// CollectClasses walks the service's classes directory and upserts one
// ClassFile row per *.class entry, deriving the fully-qualified name
// from the relative path.
func (c *Collector) CollectClasses(ctx context.Context, svc *store.Service) (*Result, error) {
	log := logging.WithService(svc.ServiceName)

	classesDir, err := registry.RenderPath(svc, svc.ClassesPath)
	if err != nil {
		return nil, err
	}

	entries, skipped, err := c.list(ctx, svc, classesDir, true)
	if err != nil {
		return nil, fmt.Errorf("%w: list classes for %s: %v", pipeline.ErrTransport, svc.ServiceName, err)
	}

	res := &Result{SkippedLines: skipped}
	for _, e := range entries {
		name := ClassFullName(e.Name)
		if name == "" {
			continue
		}
		cf := &store.ClassFile{
			ServiceID:     svc.ID,
			ClassFullName: name,
			FileSize:      e.Size,
			LastModified:  e.ModTime,
		}
		created, err := c.store.UpsertClassFile(cf)
		if err != nil {
			return res, err
		}
		if created {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	log.Info().Int("inserted", res.Inserted).Int("updated", res.Updated).
		Int("skipped_lines", res.SkippedLines).Msg("collected class listing")
	return res, nil
}

func (c *Collector) list(ctx context.Context, svc *store.Service, dir string, tree bool) ([]transport.Entry, int, error) {
	t, err := c.dial(svc)
	if err != nil {
		return nil, 0, err
	}
	defer t.Close()

	if tree {
		return t.ListTree(ctx, dir)
	}
	return t.List(ctx, dir)
}
