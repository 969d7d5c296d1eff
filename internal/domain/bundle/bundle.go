package bundle

import (
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the current config document schema version.
// The migration runner brings older environments up to it.
const SchemaVersion = 3

// Well-known payload types. The set is open: operators may introduce new
// types without a schema change, these are the ones the factory flow uses.
const (
	PayloadToolkit      = "toolkit"
	PayloadFirmware     = "firmware"
	PayloadReleaseImage = "release_image"
	PayloadTestImage    = "test_image"
	PayloadTestList     = "test_list"
	PayloadHWIDDatabase = "hwid"
)

var (
	// ErrEmptyBundleID is returned when a bundle has no id.
	ErrEmptyBundleID = errors.New("bundle id must not be empty")
	// ErrDuplicateBundleID is returned when two bundles share an id.
	ErrDuplicateBundleID = errors.New("duplicate bundle id")
	// ErrUnknownDefaultBundle is returned when the default bundle id
	// references no bundle in the document.
	ErrUnknownDefaultBundle = errors.New("default bundle not present in config")
	// ErrBundleNotFound is returned when a bundle id is not in the config.
	ErrBundleNotFound = errors.New("bundle not found")
)

// Actor identifies who performed an action in the system.
type Actor struct {
	// Hostname is the machine name where the action was performed.
	Hostname string
	// Username is the system user who triggered the action.
	Username string
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// String renders the actor for audit log lines.
func (a *Actor) String() string {
	if a == nil {
		return "unknown"
	}

	return a.Username + "@" + a.Hostname
}

// ResourceInfo describes a blob held by the resource repository.
type ResourceInfo struct {
	// ID is the content-addressed identifier (CIDv1, raw, sha2-256).
	ID string
	// Name is the original file name supplied on upload, may be empty.
	Name string
	// Size is the blob size in bytes.
	Size int64
	// Created is when the blob first entered the repository.
	Created time.Time
	// Touched is when the blob was last referenced or re-uploaded.
	Touched time.Time
}

// Clone returns a copy of the resource info.
func (r *ResourceInfo) Clone() *ResourceInfo {
	if r == nil {
		return nil
	}

	cloned := *r

	return &cloned
}

// Payload is one deployable part of a bundle, backed by a repository resource.
type Payload struct {
	// Resource is the content-addressed id of the backing blob.
	Resource string
	// Name is the file name the payload is installed under on the device.
	Name string
	// Size is the payload size in bytes.
	Size int64
}

// Clone returns a copy of the payload.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}

	cloned := *p

	return &cloned
}

// Bundle is a versioned set of payloads deployed together.
type Bundle struct {
	// ID uniquely names the bundle within a config document.
	ID string
	// Note is free-form operator text describing the bundle.
	Note string
	// Payloads maps payload type to its resource-backed payload.
	Payloads map[string]*Payload
}

// Clone returns a deep copy of the bundle.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}

	cloned := &Bundle{
		ID:       b.ID,
		Note:     b.Note,
		Payloads: make(map[string]*Payload, len(b.Payloads)),
	}

	for payloadType, payload := range b.Payloads {
		cloned.Payloads[payloadType] = payload.Clone()
	}

	return cloned
}

// Config is one version of the deployment configuration document.
type Config struct {
	// Schema is the document schema version.
	Schema int
	// Bundles lists all bundles known to the server, in import order.
	Bundles []*Bundle
	// DefaultBundle is the id of the bundle served to devices by default.
	DefaultBundle string
}

// NewConfig returns an empty config document at the current schema version.
func NewConfig() *Config {
	return &Config{
		Schema: SchemaVersion,
	}
}

// Clone returns a deep copy of the config document.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	cloned := &Config{
		Schema:        c.Schema,
		Bundles:       make([]*Bundle, 0, len(c.Bundles)),
		DefaultBundle: c.DefaultBundle,
	}

	for _, b := range c.Bundles {
		cloned.Bundles = append(cloned.Bundles, b.Clone())
	}

	return cloned
}

// FindBundle returns the bundle with the given id or ErrBundleNotFound.
func (c *Config) FindBundle(id string) (*Bundle, error) {
	for _, b := range c.Bundles {
		if b.ID == id {
			return b, nil
		}
	}

	return nil, fmt.Errorf("%q: %w", id, ErrBundleNotFound)
}

// PutBundle adds the bundle or replaces an existing one with the same id.
// The first bundle added becomes the default when none is set.
func (c *Config) PutBundle(b *Bundle) {
	for i, existing := range c.Bundles {
		if existing.ID == b.ID {
			c.Bundles[i] = b
			return
		}
	}

	c.Bundles = append(c.Bundles, b)

	if c.DefaultBundle == "" {
		c.DefaultBundle = b.ID
	}
}

// ReferencedResources returns the set of resource ids referenced by any
// payload in the document. Used by validation and resource GC.
func (c *Config) ReferencedResources() map[string]struct{} {
	referenced := make(map[string]struct{})

	for _, b := range c.Bundles {
		for _, payload := range b.Payloads {
			referenced[payload.Resource] = struct{}{}
		}
	}

	return referenced
}

// Validate checks structural invariants of the document: non-empty unique
// bundle ids and a resolvable default bundle. Resource existence is checked
// by the service against the repository.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Bundles))

	for _, b := range c.Bundles {
		if b.ID == "" {
			return ErrEmptyBundleID
		}

		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("%q: %w", b.ID, ErrDuplicateBundleID)
		}

		seen[b.ID] = struct{}{}
	}

	if c.DefaultBundle != "" {
		if _, ok := seen[c.DefaultBundle]; !ok {
			return fmt.Errorf("%q: %w", c.DefaultBundle, ErrUnknownDefaultBundle)
		}
	}

	return nil
}

// DeploymentRecord captures one promotion of a config version to active.
type DeploymentRecord struct {
	// Version is the config document version that became active.
	Version int
	// Timestamp is when the deployment happened.
	Timestamp time.Time
	// Actor is who triggered the deployment.
	Actor *Actor
	// Note distinguishes ordinary deployments from rollbacks.
	Note string
}

// Clone returns a deep copy of the record.
func (d *DeploymentRecord) Clone() *DeploymentRecord {
	if d == nil {
		return nil
	}

	cloned := *d
	cloned.Actor = d.Actor.Clone()

	return &cloned
}

// StatusInfo is the server status snapshot returned to operators.
type StatusInfo struct {
	// ActiveVersion is the active config version, 0 when none is deployed.
	ActiveVersion int
	// StagingVersion is the staged config version, 0 when nothing is staged.
	StagingVersion int
	// Bundles are the bundles of the active config (staging when no active).
	Bundles []*Bundle
	// DefaultBundle is the default bundle id of the reported config.
	DefaultBundle string
	// PendingBuilds is the number of build tasks waiting for a worker.
	PendingBuilds int
}
