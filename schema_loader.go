package xsd

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/pkg/errors"
)

// SchemaLoader loads a schema document together with its imports and
// includes. Every document in the closure is staged into one shared registry
// and the registry is built once at the end, so cross-document references
// resolve no matter which file declares them.
type SchemaLoader struct {
	// BaseDir is the directory relative schema locations resolve against.
	BaseDir string

	// AllowRemote enables http(s) schemaLocation fetching. Off by default.
	AllowRemote bool

	registry   *Registry
	loaded     map[string]*Schema
	loading    map[string]bool
	httpClient *http.Client
	mu         sync.Mutex
}

// NewSchemaLoader creates a new schema loader with a fresh registry.
func NewSchemaLoader() *SchemaLoader {
	return &SchemaLoader{
		registry:   NewRegistry(ValidationStrict),
		loaded:     make(map[string]*Schema),
		loading:    make(map[string]bool),
		httpClient: &http.Client{},
	}
}

// SetBaseDir sets the directory relative schema locations resolve against.
func (sl *SchemaLoader) SetBaseDir(dir string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.BaseDir = dir
}

// Registry returns the shared registry holding every loaded component.
func (sl *SchemaLoader) Registry() *Registry { return sl.registry }

// LoadSchemaWithImports loads a schema file and its whole import/include
// closure, then builds the combined component graph.
func (sl *SchemaLoader) LoadSchemaWithImports(location string) (*Schema, error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	absLocation, err := sl.resolveLocation(location)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve location %s", location)
	}

	schema, err := sl.loadRecursive(absLocation)
	if err != nil {
		return nil, err
	}
	if err := schema.Build(); err != nil {
		return nil, err
	}
	return schema, nil
}

// ParseWithLocations stages an already parsed schema document, follows its
// schemaLocation references, and builds the combined graph.
func (sl *SchemaLoader) ParseWithLocations(doc xmldom.Document) (*Schema, error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	schema, err := ParseInto(doc, sl.registry)
	if err != nil {
		return nil, err
	}
	if err := sl.loadReferences(schema, ""); err != nil {
		return nil, err
	}
	if err := schema.Build(); err != nil {
		return nil, err
	}
	return schema, nil
}

// loadRecursive stages one schema document and recurses into its imports and
// includes. Already loaded locations are shared; a location seen while still
// loading marks a cycle and is skipped, since its globals are staged already.
func (sl *SchemaLoader) loadRecursive(absLocation string) (*Schema, error) {
	if schema, ok := sl.loaded[absLocation]; ok {
		return schema, nil
	}
	if sl.loading[absLocation] {
		return nil, nil
	}
	sl.loading[absLocation] = true
	defer delete(sl.loading, absLocation)

	doc, err := sl.loadDocument(absLocation)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load schema from %s", absLocation)
	}

	schema, err := ParseInto(doc, sl.registry)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse schema from %s", absLocation)
	}
	sl.loaded[absLocation] = schema

	if err := sl.loadReferences(schema, absLocation); err != nil {
		return nil, err
	}
	return schema, nil
}

// loadReferences follows a staged schema's import and include locations.
func (sl *SchemaLoader) loadReferences(schema *Schema, base string) error {
	for _, imp := range schema.Imports {
		if imp.SchemaLocation == "" {
			// Imports without a location rely on the namespace being
			// registered some other way.
			continue
		}
		impLocation := sl.resolveRelative(imp.SchemaLocation, base)
		imported, err := sl.loadRecursive(impLocation)
		if err != nil {
			// Import failures are often non-fatal: the namespace may be
			// satisfied by an already registered schema.
			slog.Warn("failed to import schema", "location", imp.SchemaLocation, "error", err)
			continue
		}
		if imported != nil {
			schema.ImportedSchemas[imp.Namespace] = imported
		}
	}

	for _, includeLocation := range schema.Includes {
		incLocation := sl.resolveRelative(includeLocation, base)
		included, err := sl.loadRecursive(incLocation)
		if err != nil {
			return errors.Wrapf(err, "failed to include %s", includeLocation)
		}
		if included != nil && included.TargetNamespace != "" &&
			schema.TargetNamespace != "" && included.TargetNamespace != schema.TargetNamespace {
			return errors.Errorf("included schema %s has target namespace %q, want %q",
				includeLocation, included.TargetNamespace, schema.TargetNamespace)
		}
	}
	return nil
}

// resolveLocation resolves a location to an absolute path or URL.
func (sl *SchemaLoader) resolveLocation(location string) (string, error) {
	if filepath.IsAbs(location) {
		return location, nil
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if !sl.AllowRemote {
			return "", errors.New("remote schema loading is disabled")
		}
		return location, nil
	}
	if sl.BaseDir != "" {
		return filepath.Abs(filepath.Join(sl.BaseDir, location))
	}
	return filepath.Abs(location)
}

// resolveRelative resolves a relative location against a base location.
func (sl *SchemaLoader) resolveRelative(relative, base string) string {
	if filepath.IsAbs(relative) {
		return relative
	}
	if strings.HasPrefix(relative, "http://") || strings.HasPrefix(relative, "https://") {
		return relative
	}
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		baseURL, err := url.Parse(base)
		if err != nil {
			return relative
		}
		relURL, err := baseURL.Parse(relative)
		if err != nil {
			return relative
		}
		return relURL.String()
	}
	if base == "" {
		if sl.BaseDir != "" {
			return filepath.Join(sl.BaseDir, relative)
		}
		return relative
	}
	return filepath.Join(filepath.Dir(base), relative)
}

// loadDocument loads an XML document from a file path or URL.
func (sl *SchemaLoader) loadDocument(location string) (xmldom.Document, error) {
	var reader io.ReadCloser

	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if !sl.AllowRemote {
			return nil, errors.New("remote schema loading is disabled")
		}
		resp, err := sl.httpClient.Get(location)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch %s", location)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, errors.Errorf("HTTP %d from %s", resp.StatusCode, location)
		}
		reader = resp.Body
	} else {
		file, err := os.Open(location)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %s", location)
		}
		reader = file
	}
	defer reader.Close()

	doc, err := xmldom.Decode(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse XML")
	}
	return doc, nil
}

// LoadSchemaFromString loads a schema from a string with import/include
// support relative to baseDir.
func LoadSchemaFromString(content string, baseDir string) (*Schema, error) {
	doc, err := xmldom.Decode(strings.NewReader(content))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse XML")
	}
	loader := NewSchemaLoader()
	loader.SetBaseDir(baseDir)
	return loader.ParseWithLocations(doc)
}

// LoadSchemaWithImports is a convenience function
func LoadSchemaWithImports(location string) (*Schema, error) {
	loader := NewSchemaLoader()
	loader.SetBaseDir(filepath.Dir(location))
	return loader.LoadSchemaWithImports(location)
}
