package cache

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
)

// Attr declares one persisted attribute: its storage kind, its name within
// the stage's namespace, and a pointer to the stage field holding it.
type Attr struct {
	Kind  Kind
	Name  string
	Value any
}

// Uniquer is one (name, value) pair whose string form contributes to the
// cache identity. Values typically render the stage's configuration and the
// identity strings of its upstream stages, so an upstream change invalidates
// downstream caches transitively.
type Uniquer struct {
	Name  string
	Value string
}

// Stage is an expensive preprocessing step that derives its declared
// attributes deterministically from its configuration.
type Stage interface {
	// TypeName is the stable stage name prefixed to the identity.
	TypeName() string

	// CachedAttrs declares the attributes to persist. Each Value must be a
	// non-nil pointer to the stage field.
	CachedAttrs() []Attr

	// Uniquers lists the identity-determining values, in a fixed order.
	Uniquers() []Uniquer

	// Process computes every declared attribute from scratch.
	Process() error
}

// Cacheable drives a Stage through the compute-or-load cycle against a
// backing store. Concurrent Ensure calls for the same identity may both
// compute and both store; the design tolerates that as last-writer-wins and
// provides no cross-process locking.
type Cacheable struct {
	stage Stage
	store Store
	log   *slog.Logger
}

// New wraps a stage over a store.
func New(stage Stage, store Store) *Cacheable {
	return &Cacheable{stage: stage, store: store, log: slog.Default()}
}

// WithLogger replaces the logger.
func (c *Cacheable) WithLogger(log *slog.Logger) *Cacheable {
	c.log = log
	return c
}

// Identity returns the content-addressed cache key:
// typeName + "-" + "-".join(name_value). Two stages of equal type and equal
// uniquer values always share an identity.
func (c *Cacheable) Identity() string {
	uniquers := c.stage.Uniquers()
	parts := make([]string, 0, len(uniquers)+1)
	parts = append(parts, c.stage.TypeName())
	for _, u := range uniquers {
		parts = append(parts, u.Name+"_"+u.Value)
	}
	return strings.Join(parts, "-")
}

// blobName returns the stable per-attribute key, "{attr}.{kind}". Together
// with the identity namespace this layout is a contract external tooling
// may rely on for manual inspection and clearing.
func blobName(attr Attr) string {
	return attr.Name + "." + string(attr.Kind)
}

// Exists reports whether every declared attribute has a persisted blob
// under the current identity.
func (c *Cacheable) Exists() (bool, error) {
	identity := c.Identity()
	for _, attr := range c.stage.CachedAttrs() {
		if _, err := serializerFor(attr.Kind); err != nil {
			return false, err
		}
		ok, err := c.store.Exists(identity, blobName(attr))
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Load deserializes every declared attribute blob into its stage field.
func (c *Cacheable) Load() error {
	identity := c.Identity()
	for _, attr := range c.stage.CachedAttrs() {
		s, err := serializerFor(attr.Kind)
		if err != nil {
			return err
		}
		if err := validAttrTarget(attr); err != nil {
			return err
		}
		blob, err := c.store.Read(identity, blobName(attr))
		if err != nil {
			return fmt.Errorf("cache: read %s/%s: %w", identity, blobName(attr), err)
		}
		if err := s.decode(blob, attr.Value); err != nil {
			return err
		}
	}
	return nil
}

// Store serializes every declared attribute's current value.
func (c *Cacheable) Store() error {
	identity := c.Identity()
	for _, attr := range c.stage.CachedAttrs() {
		s, err := serializerFor(attr.Kind)
		if err != nil {
			return err
		}
		if err := boundAttr(attr); err != nil {
			return err
		}
		blob, err := s.encode(attr.Value)
		if err != nil {
			return err
		}
		if err := c.store.Write(identity, blobName(attr), blob); err != nil {
			return fmt.Errorf("cache: write %s/%s: %w", identity, blobName(attr), err)
		}
	}
	return nil
}

// Ensure loads the stage from cache when possible, and otherwise runs
// Process and stores the result. After it returns nil, every declared
// attribute is bound and consistent with either a prior Store or a fresh
// Process, never partially populated.
func (c *Cacheable) Ensure(ignoreCache bool) error {
	identity := c.Identity()

	if !ignoreCache {
		ok, err := c.Exists()
		if err != nil {
			return err
		}
		if ok {
			c.log.Info("cache hit", "identity", identity)
			return c.Load()
		}
	}

	c.log.Info("cache miss, processing", "identity", identity)
	if err := c.stage.Process(); err != nil {
		return fmt.Errorf("cache: process %s: %w", identity, err)
	}
	for _, attr := range c.stage.CachedAttrs() {
		if err := boundAttr(attr); err != nil {
			return err
		}
	}
	return c.Store()
}

// validAttrTarget checks the declaration: Value must be a non-nil pointer.
func validAttrTarget(attr Attr) error {
	rv := reflect.ValueOf(attr.Value)
	if attr.Value == nil || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("cache: attribute %q declared without a pointer target: %w",
			attr.Name, ErrMissingAttribute)
	}
	return nil
}

// boundAttr additionally requires the pointed-to value to be set, so an
// attribute Process forgot to bind fails loudly instead of writing an empty
// blob.
func boundAttr(attr Attr) error {
	if err := validAttrTarget(attr); err != nil {
		return err
	}
	if reflect.ValueOf(attr.Value).Elem().IsZero() {
		return fmt.Errorf("cache: attribute %q not bound by process: %w",
			attr.Name, ErrMissingAttribute)
	}
	return nil
}
