package xsd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/pkg/errors"
)

// SchemaCache manages cached schemas keyed by resolved file path. Each entry
// loads exactly once via sync.Once, so concurrent Gets for the same location
// share one parse.
type SchemaCache struct {
	mu       sync.RWMutex
	schemas  map[string]*schemaEntry
	BasePath string // base path for resolving relative schema locations
}

type schemaEntry struct {
	loader func() (*Schema, error)
	once   sync.Once
	schema *Schema
	err    error
}

// GlobalCache is the singleton schema cache
var GlobalCache = NewSchemaCache("")

// NewSchemaCache creates a new schema cache
func NewSchemaCache(basePath string) *SchemaCache {
	return &SchemaCache{
		schemas:  make(map[string]*schemaEntry),
		BasePath: basePath,
	}
}

// SetBasePath sets the base path for resolving relative schema locations
func (sc *SchemaCache) SetBasePath(path string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.BasePath = path
}

// Get retrieves a schema from cache or loads it if not present
func (sc *SchemaCache) Get(location string) (*Schema, error) {
	resolvedPath := sc.resolvePath(location)

	sc.mu.RLock()
	entry, exists := sc.schemas[resolvedPath]
	sc.mu.RUnlock()

	if !exists {
		entry = &schemaEntry{
			loader: func() (*Schema, error) {
				return sc.loadSchema(resolvedPath)
			},
		}
		sc.mu.Lock()
		if existing, ok := sc.schemas[resolvedPath]; ok {
			entry = existing
		} else {
			sc.schemas[resolvedPath] = entry
		}
		sc.mu.Unlock()
	}

	entry.once.Do(func() {
		if entry.loader != nil {
			entry.schema, entry.err = entry.loader()
		}
	})
	return entry.schema, entry.err
}

// GetOrLoad gets a schema from cache or parses it from the provided document
func (sc *SchemaCache) GetOrLoad(location string, doc xmldom.Document) (*Schema, error) {
	if schema, err := sc.Get(location); err == nil {
		return schema, nil
	}

	schema, err := Parse(doc)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	sc.schemas[sc.resolvePath(location)] = &schemaEntry{schema: schema}
	sc.mu.Unlock()

	return schema, nil
}

// Clear removes all cached schemas
func (sc *SchemaCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.schemas = make(map[string]*schemaEntry)
}

// Remove removes a specific schema from cache
func (sc *SchemaCache) Remove(location string) {
	resolvedPath := sc.resolvePath(location)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.schemas, resolvedPath)
}

func (sc *SchemaCache) resolvePath(location string) string {
	if filepath.IsAbs(location) {
		return location
	}
	if sc.BasePath != "" {
		return filepath.Join(sc.BasePath, location)
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return location
	}
	return abs
}

// loadSchema reads and parses a schema file, then resolves its imports and
// includes through the loader so the whole closure shares one registry.
func (sc *SchemaCache) loadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read schema file %s", path)
	}

	decoder := xmldom.NewDecoderFromBytes(data)
	doc, err := decoder.Decode()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse schema file %s", path)
	}

	loader := NewSchemaLoader()
	loader.SetBaseDir(filepath.Dir(path))
	schema, err := loader.ParseWithLocations(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse XSD schema %s", path)
	}
	slog.Debug("loaded schema", "path", path, "targetNamespace", schema.TargetNamespace)
	return schema, nil
}

// SchemaRegistry maps target namespaces to schemas so documents can be routed
// to the right one by their root namespace.
type SchemaRegistry struct {
	mu            sync.RWMutex
	namespaces    map[string]*Schema
	defaultSchema *Schema
	cache         *SchemaCache
}

// NewSchemaRegistry creates a new schema registry
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		namespaces: make(map[string]*Schema),
		cache:      NewSchemaCache(""),
	}
}

// Register registers a schema for a namespace
func (sr *SchemaRegistry) Register(namespace string, schema *Schema) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.namespaces[namespace] = schema
}

// RegisterFile registers a schema from a file
func (sr *SchemaRegistry) RegisterFile(namespace, location string) error {
	schema, err := sr.cache.Get(location)
	if err != nil {
		return err
	}
	sr.Register(namespace, schema)
	return nil
}

// SetDefault sets the default schema for elements without namespaces
func (sr *SchemaRegistry) SetDefault(schema *Schema) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.defaultSchema = schema
}

// GetForNamespace retrieves the schema for a namespace
func (sr *SchemaRegistry) GetForNamespace(namespace string) (*Schema, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	if namespace == "" && sr.defaultSchema != nil {
		return sr.defaultSchema, true
	}

	schema, ok := sr.namespaces[namespace]
	return schema, ok
}

// Validate validates a document against the schema registered for its root
// namespace. Imported namespaces are covered by the schema's own component
// registry, so one validator pass suffices.
func (sr *SchemaRegistry) Validate(doc xmldom.Document) []Violation {
	root := doc.DocumentElement()
	if root == nil {
		return []Violation{{
			Code:    "xsd-no-root",
			Message: "Document has no root element",
		}}
	}

	rootNS := string(root.NamespaceURI())
	schema, ok := sr.GetForNamespace(rootNS)
	if !ok && sr.defaultSchema != nil {
		schema = sr.defaultSchema
	}
	if schema == nil {
		return []Violation{{
			Code:    "xsd-no-schema",
			Message: fmt.Sprintf("No schema found for namespace '%s'", rootNS),
		}}
	}

	return NewValidator(schema).Validate(doc)
}
