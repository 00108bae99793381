package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jarlens/jarlens/internal/collect"
	"github.com/jarlens/jarlens/internal/config"
	"github.com/jarlens/jarlens/internal/decompile"
	"github.com/jarlens/jarlens/internal/diffsvc"
	"github.com/jarlens/jarlens/internal/ingest"
	"github.com/jarlens/jarlens/internal/logging"
	"github.com/jarlens/jarlens/internal/pipeline"
	"github.com/jarlens/jarlens/internal/query"
	"github.com/jarlens/jarlens/internal/registry"
	"github.com/jarlens/jarlens/internal/store"
	"github.com/jarlens/jarlens/internal/sweep"
	"github.com/jarlens/jarlens/internal/transport"
	"github.com/jarlens/jarlens/internal/version"
)

var (
	flagConfig   string
	flagDB       string
	flagLogLevel string
	flagJSONLogs bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jarlens",
		Short: "Fleet-wide Java artifact inventory and version tracking",
		Long: `jarlens inventories the JAR archives and loose class files deployed
across a fleet of services, decompiles them, and tracks which binary
version of each artifact every service runs -- and what source changed
between versions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(logging.Config{Level: flagLogLevel, JSONOutput: flagJSONLogs})
		},
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: ~/.jarlens/config.json)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Override database path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "Emit logs as JSON")

	rootCmd.AddCommand(registerServicesCmd())
	rootCmd.AddCommand(collectJarsCmd())
	rootCmd.AddCommand(collectClassesCmd())
	rootCmd.AddCommand(decompileJarsCmd())
	rootCmd.AddCommand(decompileClassesCmd())
	rootCmd.AddCommand(ingestSourcesCmd())
	rootCmd.AddCommand(assignVersionsCmd())
	rootCmd.AddCommand(sweepOrphansCmd())
	rootCmd.AddCommand(diffCmd())
	rootCmd.AddCommand(servicesCmd())
	rootCmd.AddCommand(versionsCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(pipeline.ExitCode(err))
	}
}

// loadConfig resolves the config file and applies the --db override.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: load config %s: %v", pipeline.ErrConfig, path, err)
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.DBPath, err)
	}
	return s, nil
}

// serviceSelector holds the shared --service/--all-services/--environment
// flags of the stage commands.
type serviceSelector struct {
	service     string
	all         bool
	environment string
}

func (sel *serviceSelector) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sel.service, "service", "", "Run for a single service name")
	cmd.Flags().BoolVar(&sel.all, "all-services", false, "Run for every registered service")
	cmd.Flags().StringVar(&sel.environment, "environment", "", "Restrict to one environment")
}

// resolve picks the services a stage command operates on. Exactly one of
// --service or --all-services is required; --environment narrows both.
func (sel *serviceSelector) resolve(s *store.Store) ([]*store.Service, error) {
	if sel.service == "" && !sel.all {
		return nil, fmt.Errorf("%w: one of --service or --all-services is required", pipeline.ErrConfig)
	}
	if sel.service != "" && sel.all {
		return nil, fmt.Errorf("%w: --service and --all-services are mutually exclusive", pipeline.ErrConfig)
	}

	if sel.service != "" {
		env := sel.environment
		if env == "" {
			env = "production"
		}
		svc, err := s.GetServiceByName(sel.service, env)
		if err != nil {
			return nil, fmt.Errorf("service %s (%s) not registered", sel.service, env)
		}
		return []*store.Service{svc}, nil
	}

	if sel.environment != "" {
		return s.ListServicesByEnvironment(sel.environment)
	}
	return s.ListServices()
}

func transportFactory(cfg *config.Config) func(svc *store.Service) (transport.Transport, error) {
	opts := transport.Options{
		ConnectTimeout: cfg.SSHConnectTimeout,
		CommandTimeout: cfg.SSHCommandTimeout,
	}
	return func(svc *store.Service) (transport.Transport, error) {
		return transport.For(svc, opts)
	}
}

func registerServicesCmd() *cobra.Command {
	var (
		file         string
		createSample bool
	)

	cmd := &cobra.Command{
		Use:   "register-services",
		Short: "Sync service descriptors from a JSON document into the store",
		Long: `Validate and upsert the services listed in a configuration document.
The whole document is validated before the first write; a duplicate
(service_name, environment) pair aborts the batch. Services are never
deleted by this command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if createSample {
				if file == "" {
					file = "services.sample.json"
				}
				if err := registry.CreateSample(file); err != nil {
					return fmt.Errorf("write sample config: %w", err)
				}
				fmt.Printf("sample configuration written to %s\n", file)
				return nil
			}
			if file == "" {
				return fmt.Errorf("%w: --file is required", pipeline.ErrConfig)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := registry.New(s).LoadFile(file)
			if err != nil {
				return err
			}
			fmt.Printf("services: %d inserted, %d updated\n", res.Inserted, res.Updated)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Service configuration document")
	cmd.Flags().BoolVar(&createSample, "create-sample", false, "Write a sample configuration and exit")

	return cmd
}

func collectJarsCmd() *cobra.Command {
	var sel serviceSelector

	cmd := &cobra.Command{
		Use:   "collect-jars",
		Short: "List each service's lib directory and record JAR observations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, &sel, true)
		},
	}
	sel.register(cmd)
	return cmd
}

func collectClassesCmd() *cobra.Command {
	var sel serviceSelector

	cmd := &cobra.Command{
		Use:   "collect-classes",
		Short: "Walk each service's classes directory and record class observations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, &sel, false)
		},
	}
	sel.register(cmd)
	return cmd
}

// runCollect runs one listing pass. A transport failure on one service is
// reported and the remaining services still run; the worst error decides
// the exit code.
func runCollect(cmd *cobra.Command, sel *serviceSelector, jars bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	services, err := sel.resolve(s)
	if err != nil {
		return err
	}

	c := collect.New(s, cfg.InternalPrefixes, collect.TransportFactory(transportFactory(cfg)))

	var firstErr error
	var total collect.Result
	for _, svc := range services {
		var res *collect.Result
		if jars {
			res, err = c.CollectJars(cmd.Context(), svc)
		} else {
			res, err = c.CollectClasses(cmd.Context(), svc)
		}
		if err != nil {
			logging.Failure(svc.ServiceName, "", "collect", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total.Inserted += res.Inserted
		total.Updated += res.Updated
		total.SkippedLines += res.SkippedLines
	}

	fmt.Printf("collected: %d inserted, %d updated, %d listing lines skipped\n",
		total.Inserted, total.Updated, total.SkippedLines)
	return firstErr
}

func decompileJarsCmd() *cobra.Command {
	var (
		sel        serviceSelector
		opts       decompile.Options
		workerFlag int
	)

	cmd := &cobra.Command{
		Use:   "decompile-jars",
		Short: "Fetch and decompile each service's JAR archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecompile(cmd, &sel, opts, workerFlag, true)
		},
	}
	sel.register(cmd)
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Re-decompile artifacts with existing output")
	cmd.Flags().BoolVar(&opts.IncludeThirdParty, "include-third-party", false, "Also decompile third-party JARs")
	cmd.Flags().IntVar(&workerFlag, "workers", 0, "Concurrent services (default: from config)")
	return cmd
}

func decompileClassesCmd() *cobra.Command {
	var (
		sel        serviceSelector
		opts       decompile.Options
		workerFlag int
	)

	cmd := &cobra.Command{
		Use:   "decompile-classes",
		Short: "Fetch and decompile each service's loose class files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecompile(cmd, &sel, opts, workerFlag, false)
		},
	}
	sel.register(cmd)
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Re-decompile artifacts with existing output")
	cmd.Flags().IntVar(&workerFlag, "workers", 0, "Concurrent services (default: from config)")
	return cmd
}

func runDecompile(cmd *cobra.Command, sel *serviceSelector, opts decompile.Options, workers int, jars bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.DecompilerJar); err != nil {
		return fmt.Errorf("%w: decompiler jar %s: %v", pipeline.ErrConfig, cfg.DecompilerJar, err)
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	services, err := sel.resolve(s)
	if err != nil {
		return err
	}

	opts.Workers = workers
	if opts.Workers <= 0 {
		opts.Workers = cfg.Workers
	}

	d := decompile.New(s, decompile.TransportFactory(transportFactory(cfg)),
		decompile.CFR(cfg.DecompilerJar, cfg.DecompileTimeout))

	var sum *decompile.Summary
	if jars {
		sum, err = d.DecompileJars(cmd.Context(), services, opts)
	} else {
		sum, err = d.DecompileClasses(cmd.Context(), services, opts)
	}
	if sum != nil {
		fmt.Printf("decompiled: %d done, %d skipped, %d failed\n",
			sum.Decompiled, sum.Skipped, sum.Failed)
	}
	return err
}

func ingestSourcesCmd() *cobra.Command {
	var (
		sel      serviceSelector
		ingSel   ingest.Selector
		jarName  string
		clsName  string
		planOnly bool
	)

	cmd := &cobra.Command{
		Use:   "ingest-sources",
		Short: "Walk decompile outputs into the content-addressed source store",
		Long: `Hash every decompiled .java file (CRLF-normalized, sha-256) and
deduplicate it into the source store: one identity per fully-qualified
class name, one version per distinct content. JAR sources are linked to
their JAR rows; loose class sources become the class row's source pointer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			services, err := sel.resolve(s)
			if err != nil {
				return err
			}

			ingSel.JarName = jarName
			ingSel.ClassName = clsName
			ingSel.DryRun = planOnly

			rep, err := ingest.New(s).Run(cmd.Context(), services, ingSel)
			if err != nil {
				return err
			}
			if planOnly {
				for _, line := range rep.Planned {
					fmt.Println(line)
				}
				fmt.Printf("plan: %d files\n", rep.FilesSeen)
				return nil
			}
			fmt.Printf("ingested %d files: %d new versions, %d reused, %d jar links, %d class pointers\n",
				rep.FilesSeen, rep.VersionsCreated, rep.VersionsReused, rep.LinksCreated, rep.PointersSet)
			return nil
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVar(&jarName, "jar-name", "", "Only ingest one JAR's decompile output")
	cmd.Flags().StringVar(&clsName, "class-name", "", "Only ingest one class's decompile output")
	cmd.Flags().BoolVar(&planOnly, "dry-run", false, "Print planned writes without executing them")
	return cmd
}

func assignVersionsCmd() *cobra.Command {
	var (
		jarsOnly    bool
		classesOnly bool
		jarName     string
		clsName     string
		skipMerge   bool
	)

	cmd := &cobra.Command{
		Use:   "assign-versions",
		Short: "Number distinct binary contents of each artifact across the fleet",
		Long: `Group each artifact name's fleet observations by file size, number the
distinct sizes 1..K ordered by earliest modification time, and stamp
every source version with the jar:{name}@{v} and class:{name}@{v}
tokens that carry it. Existing numbers are never reassigned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			var jarNames, classNames []string
			if jarName != "" {
				jarNames = []string{jarName}
			}
			if clsName != "" {
				classNames = []string{clsName}
			}

			a := version.New(s)
			var sum version.Summary
			runJars, runClasses := selectKinds(jarsOnly, classesOnly, jarName, clsName)
			if runJars {
				if err := a.AssignJars(cmd.Context(), jarNames, &sum); err != nil {
					return err
				}
			}
			if runClasses {
				if err := a.AssignClasses(cmd.Context(), classNames, &sum); err != nil {
					return err
				}
			}
			if err := a.Relabel(cmd.Context(), &sum); err != nil {
				return err
			}
			if !skipMerge {
				if err := a.MergeSources(cmd.Context(), &sum); err != nil {
					return err
				}
			}

			fmt.Printf("versions: %d jar names, %d class names, %d labels written, %d rows merged\n",
				sum.JarNamesProcessed, sum.ClassNamesProcessed, sum.LabelsWritten, sum.RowsMerged)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jarsOnly, "jars", false, "Assign JAR versions")
	cmd.Flags().BoolVar(&classesOnly, "classes", false, "Assign class versions")
	cmd.Flags().StringVar(&jarName, "jar", "", "Only this JAR name")
	cmd.Flags().StringVar(&clsName, "class", "", "Only this class name")
	cmd.Flags().BoolVar(&skipMerge, "no-merge", false, "Skip merging source links across same-version rows")
	return cmd
}

// selectKinds decides which artifact kinds an assignment pass covers:
// a kind runs when its switch is set or a name of that kind is given;
// with no flags at all both kinds run.
func selectKinds(jarsOnly, classesOnly bool, jarName, clsName string) (jars, classes bool) {
	jars = jarsOnly || jarName != ""
	classes = classesOnly || clsName != ""
	if !jars && !classes {
		return true, true
	}
	return jars, classes
}

func sweepOrphansCmd() *cobra.Command {
	var (
		execute     bool
		service     string
		environment string
	)

	cmd := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "Remove source versions no longer referenced by any artifact",
		Long: `Find source versions referenced by neither a class row nor a JAR link
and report them. Nothing is deleted unless --execute is given.
With --service, only orphans of identities that service references are
considered; the orphan test itself stays fleet-wide.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			sw := sweep.New(s)
			var rep *sweep.Report
			if service != "" {
				env := environment
				if env == "" {
					env = "production"
				}
				svc, err := s.GetServiceByName(service, env)
				if err != nil {
					return fmt.Errorf("%w: service %s (%s) not registered", pipeline.ErrConfig, service, env)
				}
				rep, err = sw.RunService(cmd.Context(), svc.ID, execute)
				if err != nil {
					return err
				}
			} else {
				rep, err = sw.Run(cmd.Context(), execute)
				if err != nil {
					return err
				}
			}

			names := make([]string, 0, len(rep.ByIdentity))
			for name := range rep.ByIdentity {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%s: %d orphaned version(s)\n", name, rep.ByIdentity[name])
			}
			if rep.DryRun {
				fmt.Printf("dry run: %d identities affected; re-run with --execute to delete\n", len(names))
			} else {
				fmt.Printf("removed %d versions, %d identities\n", rep.VersionsRemoved, rep.IdentitiesRemoved)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "Actually delete (default is a dry run)")
	cmd.Flags().StringVar(&service, "service", "", "Only orphans referenced by this service")
	cmd.Flags().StringVar(&environment, "environment", "", "Environment of --service (default production)")
	return cmd
}

func diffCmd() *cobra.Command {
	var (
		filePath   string
		invalidate bool
	)

	cmd := &cobra.Command{
		Use:   "diff <jar|class> <name> <from> <to>",
		Short: "Show what source changed between two versions of an artifact",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			from, err1 := strconv.ParseInt(args[2], 10, 64)
			to, err2 := strconv.ParseInt(args[3], 10, 64)
			if err1 != nil || err2 != nil {
				return fmt.Errorf("%w: versions must be integers", pipeline.ErrConfig)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			svc := diffsvc.New(s)
			if invalidate {
				if err := svc.Invalidate(kind, args[1], from, to); err != nil {
					return err
				}
			}

			if filePath != "" {
				df, err := svc.File(cmd.Context(), kind, args[1], from, to, filePath)
				if err != nil {
					return err
				}
				fmt.Print(df.UnifiedText)
				return nil
			}

			res, err := svc.Compare(cmd.Context(), kind, args[1], from, to)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s: v%d -> v%d: %d files changed, +%d -%d",
				res.Summary.ArtifactKind, res.Summary.ArtifactName,
				res.Summary.FromVersion, res.Summary.ToVersion,
				res.Summary.FilesChanged, res.Summary.Insertions, res.Summary.Deletions)
			if res.FromCache {
				fmt.Print(" (cached)")
			}
			fmt.Println()
			for _, df := range res.Files {
				fmt.Printf("  %-9s %s  +%d -%d (%d%%)\n",
					df.ChangeType, df.FilePath, df.Additions, df.Deletions, df.ChangePercentage)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "Print the unified diff of one class")
	cmd.Flags().BoolVar(&invalidate, "recompute", false, "Drop the cached diff before answering")
	return cmd
}

func servicesCmd() *cobra.Command {
	var environment string

	cmd := &cobra.Command{
		Use:   "services",
		Short: "List registered services with inventory rollups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			sums, err := query.New(s).Services(environment)
			if err != nil {
				return err
			}
			fmt.Printf("%-24s %-12s %-18s %6s %8s %8s %8s\n",
				"SERVICE", "ENV", "HOST", "JARS", "CLASSES", "BEHIND", "FAILURES")
			for _, sum := range sums {
				fmt.Printf("%-24s %-12s %-18s %6d %8d %8d %8d\n",
					sum.Service.ServiceName, sum.Service.Environment, sum.Service.Host,
					sum.JarCount, sum.ClassCount, sum.JarsBehind+sum.ClassesBehind, sum.Failures)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&environment, "environment", "", "Restrict to one environment")
	return cmd
}

func versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <jar|class> <name>",
		Short: "Show which services run which version of an artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			hist, err := query.New(s).Versions(kind, args[1])
			if err != nil {
				return err
			}

			versions := make([]int64, 0, len(hist.ByVersion))
			for v := range hist.ByVersion {
				versions = append(versions, v)
			}
			sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

			fmt.Printf("%s %s (latest: v%d)\n", hist.Kind, hist.Name, hist.LastVersionNo)
			for _, v := range versions {
				label := fmt.Sprintf("v%d", v)
				if v == 0 {
					label = "unassigned"
				}
				fmt.Printf("  %s:\n", label)
				for _, row := range hist.ByVersion[v] {
					mark := ""
					if v > 0 && v < hist.LastVersionNo {
						mark = "  [behind]"
					}
					fmt.Printf("    %-24s %-12s %-18s %10d bytes  %s%s\n",
						row.ServiceName, row.Environment, row.Host, row.FileSize,
						row.LastModified.Format("2006-01-02 15:04:05"), mark)
				}
			}
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Find artifact names containing a substring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := query.New(s).Search(args[0])
			if err != nil {
				return err
			}
			for _, name := range res.Jars {
				fmt.Printf("jar   %s\n", name)
			}
			for _, name := range res.Classes {
				fmt.Printf("class %s\n", name)
			}
			if len(res.Jars)+len(res.Classes) == 0 {
				fmt.Println("no matches")
			}
			return nil
		},
	}
}

func sourcesCmd() *cobra.Command {
	var showHashes bool

	cmd := &cobra.Command{
		Use:   "sources <jar|class> <name> <version>",
		Short: "List the ingested sources carried by one artifact version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 3 {
				return fmt.Errorf("%w: expected <jar|class> <name> <version>", pipeline.ErrConfig)
			}
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			v, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: version must be an integer", pipeline.ErrConfig)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			listing, err := query.New(s).Sources(kind, args[1], v)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s v%d: %d source files, aggregate %s\n",
				listing.Kind, listing.Name, listing.Version, len(listing.Files), listing.AggregateHash)
			for i, name := range listing.ClassNames {
				sv := listing.Files[i]
				if showHashes {
					fmt.Printf("  %s  %s  %d lines\n", sv.FileHash, name, sv.LineCount)
				} else {
					fmt.Printf("  %s  %d lines  [%s]\n", name, sv.LineCount, sv.Version)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showHashes, "hashes", false, "Show per-file content hashes")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show pipeline coverage across the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := query.New(s).Stats()
			if err != nil {
				return err
			}
			fmt.Printf("services: %d\n", st.Services)
			fmt.Printf("internal jars: %d rows, %d names, %d versioned\n",
				st.Jars.TotalFiles, st.Jars.UniqueNames, st.Jars.WithVersions)
			fmt.Printf("classes: %d rows, %d names, %d versioned\n",
				st.Classes.TotalFiles, st.Classes.UniqueNames, st.Classes.WithVersions)
			fmt.Printf("orphaned source versions: %d\n", st.Orphans)
			return nil
		},
	}
}

func parseKind(arg string) (store.ArtifactKind, error) {
	switch strings.ToLower(arg) {
	case "jar":
		return store.KindJar, nil
	case "class":
		return store.KindClass, nil
	default:
		return "", fmt.Errorf("%w: artifact kind must be jar or class, got %q", pipeline.ErrConfig, arg)
	}
}
