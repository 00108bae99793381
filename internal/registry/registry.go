// Package registry loads service descriptors from a JSON configuration
// document into the store and renders their path templates.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/jarlens/jarlens/internal/logging"
	"github.com/jarlens/jarlens/internal/pipeline"
	"github.com/jarlens/jarlens/internal/store"
)

// ServiceDoc is one entry of the configuration document. Unknown keys are
// ignored by the JSON decoder; missing required keys are a config error.
type ServiceDoc struct {
	ServiceName             string `json:"service_name"`
	Environment             string `json:"environment"`
	Host                    string `json:"host"`
	Port                    int    `json:"port"`
	Username                string `json:"username"`
	Password                string `json:"password"`
	ServerBasePath          string `json:"server_base_path"`
	JarPath                 string `json:"jar_path"`
	ClassesPath             string `json:"classes_path"`
	JarDecompileOutputDir   string `json:"jar_decompile_output_dir"`
	ClassDecompileOutputDir string `json:"class_decompile_output_dir"`
	Description             string `json:"description"`
}

// Document is the top-level configuration shape.
type Document struct {
	Services []ServiceDoc `json:"services"`
}

// Result summarizes one registry sync.
type Result struct {
	Inserted int
	Updated  int
	Skipped  int
}

// Registry syncs service descriptors into the store.
type Registry struct {
	store *store.Store
}

// New returns a Registry backed by st.
func New(st *store.Store) *Registry {
	return &Registry{store: st}
}

// LoadFile parses and syncs a configuration file. Any validation error
// aborts the whole batch before the first write.
func (r *Registry) LoadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", pipeline.ErrConfig, path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", pipeline.ErrConfig, path, err)
	}
	return r.Load(&doc)
}

// Load validates the whole document, then upserts every service.
// Duplicate (service_name, environment) pairs in the input abort the batch
// without partial writes. Services are never deleted here.
func (r *Registry) Load(doc *Document) (*Result, error) {
	log := logging.WithComponent("registry")

	if len(doc.Services) == 0 {
		return nil, fmt.Errorf("%w: document contains no services", pipeline.ErrConfig)
	}

	seen := make(map[string]bool, len(doc.Services))
	for i := range doc.Services {
		sd := &doc.Services[i]
		applyDefaults(sd)
		if err := validate(sd); err != nil {
			return nil, err
		}
		key := sd.ServiceName + "\x00" + sd.Environment
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate service %s (%s)",
				pipeline.ErrConfig, sd.ServiceName, sd.Environment)
		}
		seen[key] = true
	}

	var res Result
	for i := range doc.Services {
		sd := &doc.Services[i]
		svc := &store.Service{
			ServiceName:             sd.ServiceName,
			Environment:             sd.Environment,
			Host:                    sd.Host,
			Port:                    sd.Port,
			Username:                sd.Username,
			Password:                sd.Password,
			ServerBasePath:          sd.ServerBasePath,
			JarPath:                 sd.JarPath,
			ClassesPath:             sd.ClassesPath,
			JarDecompileOutputDir:   sd.JarDecompileOutputDir,
			ClassDecompileOutputDir: sd.ClassDecompileOutputDir,
			Description:             sd.Description,
		}
		created, err := r.store.UpsertService(svc)
		if err != nil {
			return nil, err
		}
		if created {
			res.Inserted++
			log.Info().Str("service", svc.ServiceName).Str("environment", svc.Environment).Msg("registered service")
		} else {
			res.Updated++
			log.Info().Str("service", svc.ServiceName).Str("environment", svc.Environment).Msg("updated service")
		}
	}
	return &res, nil
}

func applyDefaults(sd *ServiceDoc) {
	if sd.Environment == "" {
		sd.Environment = "production"
	}
	if sd.Port == 0 {
		sd.Port = 22
	}
}

func validate(sd *ServiceDoc) error {
	required := map[string]string{
		"service_name":               sd.ServiceName,
		"jar_path":                   sd.JarPath,
		"classes_path":               sd.ClassesPath,
		"jar_decompile_output_dir":   sd.JarDecompileOutputDir,
		"class_decompile_output_dir": sd.ClassDecompileOutputDir,
	}
	for field, v := range required {
		if v == "" {
			return fmt.Errorf("%w: service %q: required field %q is missing or empty",
				pipeline.ErrConfig, sd.ServiceName, field)
		}
	}
	return nil
}

var placeholderRe = regexp.MustCompile(`\{([^{}]*)\}`)

// RenderPath substitutes {service_name} and {server_base_path} in a path
// template. Any other placeholder is a hard error.
func RenderPath(svc *store.Service, template string) (string, error) {
	rendered := template
	rendered = strings.ReplaceAll(rendered, "{service_name}", svc.ServiceName)
	rendered = strings.ReplaceAll(rendered, "{server_base_path}", svc.ServerBasePath)

	if m := placeholderRe.FindStringSubmatch(rendered); m != nil {
		return "", fmt.Errorf("%w: unknown placeholder {%s} in path template %q",
			pipeline.ErrConfig, m[1], template)
	}
	return rendered, nil
}

// CreateSample writes a documented two-service example configuration.
func CreateSample(path string) error {
	doc := Document{Services: []ServiceDoc{
		{
			ServiceName:             "dsop_gateway",
			Environment:             "production",
			Host:                    "10.20.151.32",
			Port:                    22,
			ServerBasePath:          "/app/apprun/tomcat_server/webapps/dsop_gateway/WEB-INF",
			JarPath:                 "work/prod/lib-download/{service_name}{server_base_path}/lib",
			ClassesPath:             "work/prod/classes-download/{service_name}{server_base_path}/classes",
			JarDecompileOutputDir:   "work/prod/lib-decompile",
			ClassDecompileOutputDir: "work/prod/classes-decompile",
			Description:             "DSOP Gateway Service",
		},
		{
			ServiceName:             "dsop_core",
			Environment:             "production",
			Host:                    "10.20.151.2",
			Port:                    22,
			ServerBasePath:          "/app/apprun/tomcat_server/webapps/dsop_core/WEB-INF",
			JarPath:                 "work/prod/lib-download/{service_name}{server_base_path}/lib",
			ClassesPath:             "work/prod/classes-download/{service_name}{server_base_path}/classes",
			JarDecompileOutputDir:   "work/prod/lib-decompile",
			ClassDecompileOutputDir: "work/prod/classes-decompile",
			Description:             "DSOP Core Service",
		},
	}}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
