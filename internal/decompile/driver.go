// Package decompile retrieves artifact binaries and drives the external
// decompiler, materializing per-(artifact, service) source trees.
package decompile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jarlens/jarlens/internal/logging"
	"github.com/jarlens/jarlens/internal/pipeline"
	"github.com/jarlens/jarlens/internal/registry"
	"github.com/jarlens/jarlens/internal/store"
	"github.com/jarlens/jarlens/internal/transport"
)

// TransportFactory opens a transport for one service.
type TransportFactory func(svc *store.Service) (transport.Transport, error)

// Options tunes one decompile pass.
type Options struct {
	// Workers bounds concurrency across services; within a service,
	// artifacts are processed serially to avoid SSH connection thrash.
	Workers int

	// Force re-runs artifacts whose decompile output already exists.
	Force bool

	// IncludeThirdParty also decompiles third-party JARs.
	IncludeThirdParty bool
}

// Summary aggregates one pass.
type Summary struct {
	Decompiled int
	Skipped    int
	Failed     int
}

// Driver runs the retrieval-and-decompile stages.
type Driver struct {
	store      *store.Store
	dial       TransportFactory
	decompiler Decompiler
}

// New returns a Driver with the injected decompiler.
func New(st *store.Store, dial TransportFactory, dec Decompiler) *Driver {
	return &Driver{store: st, dial: dial, decompiler: dec}
}

// DecompileJars processes every JAR row of the given services, sharded by
// service across a bounded worker pool.
func (d *Driver) DecompileJars(ctx context.Context, services []*store.Service, opts Options) (*Summary, error) {
	return d.run(ctx, services, opts, d.jarsForService)
}

// DecompileClasses is the class-file analogue of DecompileJars.
func (d *Driver) DecompileClasses(ctx context.Context, services []*store.Service, opts Options) (*Summary, error) {
	return d.run(ctx, services, opts, d.classesForService)
}

type serviceFn func(ctx context.Context, svc *store.Service, opts Options, sum *Summary) error

func (d *Driver) run(ctx context.Context, services []*store.Service, opts Options, fn serviceFn) (*Summary, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	summaries := make([]Summary, len(services))
	dialErrs := make([]error, len(services))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, svc := range services {
		i, svc := i, svc
		g.Go(func() error {
			err := fn(ctx, svc, opts, &summaries[i])
			// An unreachable service is fatal for that service only;
			// the pool keeps draining the others.
			if errors.Is(err, pipeline.ErrTransport) {
				dialErrs[i] = err
				return nil
			}
			return err
		})
	}
	err := g.Wait()

	var total Summary
	for _, s := range summaries {
		total.Decompiled += s.Decompiled
		total.Skipped += s.Skipped
		total.Failed += s.Failed
	}
	if err != nil {
		return &total, err
	}
	for _, derr := range dialErrs {
		if derr != nil {
			return &total, derr
		}
	}
	if total.Failed > 0 {
		return &total, fmt.Errorf("%w: %d artifacts failed", pipeline.ErrDecompile, total.Failed)
	}
	return &total, nil
}

func (d *Driver) jarsForService(ctx context.Context, svc *store.Service, opts Options, sum *Summary) error {
	log := logging.WithService(svc.ServiceName)

	jars, err := d.store.JarFilesForService(svc.ID)
	if err != nil {
		return err
	}
	jarDir, err := registry.RenderPath(svc, svc.JarPath)
	if err != nil {
		return err
	}

	t, err := d.dial(svc)
	if err != nil {
		logging.Failure(svc.ServiceName, "", "decompile-jars", err)
		sum.Failed++
		return fmt.Errorf("%w: connect %s: %v", pipeline.ErrTransport, svc.ServiceName, err)
	}
	defer t.Close()

	for _, jf := range jars {
		if err := ctx.Err(); err != nil {
			return err
		}
		if jf.IsThirdParty && !opts.IncludeThirdParty {
			sum.Skipped++
			continue
		}

		outDir := OutputDir(svc.JarDecompileOutputDir, JarStem(jf.JarName),
			svc.ServiceName, svc.Host, jf.LastModified)
		if !opts.Force && outputReady(jf.DecompilePath, outDir) {
			sum.Skipped++
			continue
		}

		src := path.Join(strings.ReplaceAll(jarDir, "\\", "/"), jf.JarName)
		dst := RetainedJarPath(svc.JarDecompileOutputDir, svc.ServiceName, svc.Host, jf.JarName)

		if err := d.one(ctx, t, src, dst, outDir); err != nil {
			sum.Failed++
			logging.Failure(svc.ServiceName, jf.JarName, "decompile-jars", err)
			if serr := d.store.SetJarFailed(jf.ID, err.Error()); serr != nil {
				return serr
			}
			continue
		}
		if err := d.store.SetJarRetrieved(jf.ID, dst); err != nil {
			return err
		}
		if err := d.store.SetJarDecompiled(jf.ID, outDir); err != nil {
			return err
		}
		sum.Decompiled++
		log.Debug().Str("jar", jf.JarName).Str("out", outDir).Msg("decompiled jar")
	}
	return nil
}

func (d *Driver) classesForService(ctx context.Context, svc *store.Service, opts Options, sum *Summary) error {
	log := logging.WithService(svc.ServiceName)

	classes, err := d.store.ClassFilesForService(svc.ID)
	if err != nil {
		return err
	}
	classesDir, err := registry.RenderPath(svc, svc.ClassesPath)
	if err != nil {
		return err
	}

	t, err := d.dial(svc)
	if err != nil {
		logging.Failure(svc.ServiceName, "", "decompile-classes", err)
		sum.Failed++
		return fmt.Errorf("%w: connect %s: %v", pipeline.ErrTransport, svc.ServiceName, err)
	}
	defer t.Close()

	for _, cf := range classes {
		if err := ctx.Err(); err != nil {
			return err
		}

		outDir := OutputDir(svc.ClassDecompileOutputDir, cf.ClassFullName,
			svc.ServiceName, svc.Host, cf.LastModified)
		if !opts.Force && outputReady(cf.DecompilePath, outDir) {
			sum.Skipped++
			continue
		}

		rel := ClassRelPath(cf.ClassFullName)
		src := path.Join(strings.ReplaceAll(classesDir, "\\", "/"), rel)
		dst := RetainedClassPath(svc.ClassDecompileOutputDir, svc.ServiceName, svc.Host, rel)

		if err := d.one(ctx, t, src, dst, outDir); err != nil {
			sum.Failed++
			logging.Failure(svc.ServiceName, cf.ClassFullName, "decompile-classes", err)
			if serr := d.store.SetClassFailed(cf.ID, err.Error()); serr != nil {
				return serr
			}
			continue
		}
		if err := d.store.SetClassRetrieved(cf.ID, dst); err != nil {
			return err
		}
		if err := d.store.SetClassDecompiled(cf.ID, outDir); err != nil {
			return err
		}
		sum.Decompiled++
		log.Debug().Str("class", cf.ClassFullName).Str("out", outDir).Msg("decompiled class")
	}
	return nil
}

// one fetches a binary and decompiles it into outDir.
func (d *Driver) one(ctx context.Context, t transport.Transport, src, dst, outDir string) error {
	if err := t.Fetch(ctx, src, dst); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := d.decompiler(ctx, dst, outDir); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrDecompile, err)
	}
	return nil
}

// outputReady reports whether a recorded decompile output can be reused:
// the recorded path matches the expected directory and is non-empty.
func outputReady(recorded, expected string) bool {
	if recorded == "" || recorded != expected {
		return false
	}
	dirents, err := os.ReadDir(recorded)
	return err == nil && len(dirents) > 0
}
