package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

const componentsURL = "mem://adminhub/components.json"

//go:embed components.json
var componentsJSON []byte

// Compiler validates wire component data against the per-kind definitions
// embedded in components.json. Definitions are compiled on first use.
type Compiler struct {
	mu       sync.Mutex
	compiler *js.Compiler
	cache    *expirable.LRU[string, *js.Schema]
	defs     map[string]struct{}
}

// NewCompilerWithCache creates a compiler holding at most maxSize compiled definitions.
func NewCompilerWithCache(maxSize int) (*Compiler, error) {
	c := js.NewCompiler()
	c.Draft = js.Draft2020
	if err := c.AddResource(componentsURL, bytes.NewReader(componentsJSON)); err != nil {
		return nil, fmt.Errorf("failed to add component schemas: %w", err)
	}

	var doc struct {
		Defs map[string]json.RawMessage `json:"$defs"`
	}
	if err := json.Unmarshal(componentsJSON, &doc); err != nil {
		return nil, fmt.Errorf("failed to read component schemas: %w", err)
	}
	defs := make(map[string]struct{}, len(doc.Defs))
	for name := range doc.Defs {
		defs[name] = struct{}{}
	}

	return &Compiler{
		compiler: c,
		cache:    expirable.NewLRU[string, *js.Schema](maxSize, nil, time.Hour),
		defs:     defs,
	}, nil
}

// Has reports whether a definition exists for the wire kind.
func (c *Compiler) Has(kind string) bool {
	_, ok := c.defs[kind]
	return ok
}

// Prepare compiles and caches the definition for a wire kind.
func (c *Compiler) Prepare(kind string) (*js.Schema, error) {
	if compiled, ok := c.cache.Get(kind); ok {
		return compiled, nil
	}
	if !c.Has(kind) {
		return nil, fmt.Errorf("no schema for kind %q", kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	compiled, err := c.compiler.Compile(componentsURL + "#/$defs/" + kind)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %q: %w", kind, err)
	}
	c.cache.Add(kind, compiled)
	return compiled, nil
}

// Validate checks raw JSON data against the definition for kind.
func (c *Compiler) Validate(kind string, data []byte) error {
	compiled, err := c.Prepare(kind)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
