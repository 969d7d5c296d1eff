package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/logger"
	"github.com/shopfloor/umpire/internal/queue"
	"github.com/shopfloor/umpire/internal/repository/configstore"
	"github.com/shopfloor/umpire/internal/repository/resources"
)

// service encapsulates the umpire business logic and storage orchestration.
// It is unexported to keep the transport decoupled from the implementation.
type service struct {
	// resources is the content-addressed blob repository.
	resources *resources.Repository
	// store holds versioned config documents.
	store *configstore.Store
	// queue holds bundle build tasks.
	queue *queue.Queue
	// leaseTTL bounds how long a worker may sit on a build task.
	leaseTTL time.Duration
}

// newService wires the storage layers into one service.
func newService(repo *resources.Repository, store *configstore.Store, q *queue.Queue, leaseTTL time.Duration) *service {
	return &service{
		resources: repo,
		store:     store,
		queue:     q,
		leaseTTL:  leaseTTL,
	}
}

// Status reports the deployment state of the data root.
func (s *service) Status(ctx context.Context) (*domain.StatusInfo, error) {
	info := &domain.StatusInfo{}

	activeCfg, activeVersion, err := s.store.Active(ctx)
	if err != nil && !errors.Is(err, configstore.ErrNotFound) {
		return nil, err
	}

	stagingCfg, stagingVersion, err := s.store.Staging(ctx)
	if err != nil && !errors.Is(err, configstore.ErrNotFound) {
		return nil, err
	}

	info.ActiveVersion = activeVersion
	info.StagingVersion = stagingVersion

	// Report bundles of the active config, falling back to staging on a
	// root that has never deployed.
	reported := activeCfg
	if reported == nil {
		reported = stagingCfg
	}

	if reported != nil {
		info.Bundles = reported.Clone().Bundles
		info.DefaultBundle = reported.DefaultBundle
	}

	pending, err := s.queue.PendingCount(ctx)
	if err != nil {
		return nil, err
	}

	info.PendingBuilds = pending

	return info, nil
}

// AddResource stores a blob, deduplicating by content.
func (s *service) AddResource(ctx context.Context, name string, data []byte) (*domain.ResourceInfo, error) {
	info, _, err := s.resources.Put(ctx, name, data)

	return info, err
}

// GetResource returns the bytes of one stored resource.
func (s *service) GetResource(ctx context.Context, id string) ([]byte, error) {
	return s.resources.Get(ctx, id)
}

// StatResource returns bookkeeping about one stored resource.
func (s *service) StatResource(ctx context.Context, id string) (*domain.ResourceInfo, error) {
	return s.resources.Stat(ctx, id)
}

// ImportBundle registers a bundle on top of the active config and stages
// the result as a new version. Fails while another config is staged so an
// import never silently discards a pending deployment.
func (s *service) ImportBundle(ctx context.Context, b *domain.Bundle, actor *domain.Actor) (int, error) {
	if _, _, err := s.store.Staging(ctx); err == nil {
		return 0, configstore.ErrAlreadyStaged
	} else if !errors.Is(err, configstore.ErrNotFound) {
		return 0, err
	}

	if err := s.checkPayloads(ctx, b); err != nil {
		return 0, err
	}

	cfg, _, err := s.store.Active(ctx)
	if errors.Is(err, configstore.ErrNotFound) {
		cfg = domain.NewConfig()
	} else if err != nil {
		return 0, err
	}

	cfg.PutBundle(b.Clone())

	version, err := s.store.Save(ctx, cfg)
	if err != nil {
		return 0, err
	}

	staged, err := s.store.Stage(ctx, version)
	if err != nil {
		return 0, err
	}

	logger.InfoKV(ctx, "Imported bundle",
		"bundle", b.ID,
		"version", staged,
		"actor", actor.String())

	return staged, nil
}

// StageConfig stages a stored version; zero means the latest.
func (s *service) StageConfig(ctx context.Context, version int) (int, error) {
	return s.store.Stage(ctx, version)
}

// UnstageConfig drops the staged config.
func (s *service) UnstageConfig(ctx context.Context) error {
	return s.store.Unstage(ctx)
}

// Deploy promotes the staged config to active.
func (s *service) Deploy(ctx context.Context, actor *domain.Actor) (int, error) {
	return s.store.Deploy(ctx, actor)
}

// Rollback re-deploys an older config version.
func (s *service) Rollback(ctx context.Context, version int, actor *domain.Actor) (int, error) {
	return s.store.Rollback(ctx, version, actor)
}

// GetConfig resolves a selector to a stored config. Accepted selectors are
// "active" (or empty), "staging" and a plain version number.
func (s *service) GetConfig(ctx context.Context, selector string) (*domain.Config, int, error) {
	switch selector {
	case "", "active":
		return s.store.Active(ctx)
	case "staging":
		return s.store.Staging(ctx)
	default:
		version, err := strconv.Atoi(selector)
		if err != nil || version <= 0 {
			return nil, 0, fmt.Errorf("selector %q: %w", selector, configstore.ErrNotFound)
		}

		cfg, err := s.store.Load(ctx, version)
		if err != nil {
			return nil, 0, err
		}

		return cfg, version, nil
	}
}

// History returns the deployment audit trail.
func (s *service) History(ctx context.Context) ([]*domain.DeploymentRecord, error) {
	return s.store.History(ctx)
}

// SubmitBuild enqueues a build request after verifying its resources.
func (s *service) SubmitBuild(ctx context.Context, req *domain.BuildRequest) (*domain.BuildTask, error) {
	if req.BundleID == "" {
		return nil, domain.ErrEmptyBundleID
	}

	for payloadType, resource := range req.Payloads {
		ok, err := s.resources.Has(ctx, resource)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, fmt.Errorf("payload %q: %s: %w", payloadType, resource, resources.ErrNotFound)
		}
	}

	return s.queue.Submit(ctx, req)
}

// LeaseBuild hands the oldest pending build task to a worker.
func (s *service) LeaseBuild(ctx context.Context, worker string) (*domain.BuildTask, error) {
	return s.queue.Lease(ctx, worker, s.leaseTTL)
}

// CompleteBuild records a successful build.
func (s *service) CompleteBuild(ctx context.Context, id, worker string, result *domain.BuildResult) error {
	return s.queue.Complete(ctx, id, worker, result)
}

// FailBuild records a failed build attempt.
func (s *service) FailBuild(ctx context.Context, id, worker, reason string) error {
	return s.queue.Fail(ctx, id, worker, reason)
}

// GetBuild returns one build task by id.
func (s *service) GetBuild(ctx context.Context, id string) (*domain.BuildTask, error) {
	return s.queue.Get(ctx, id)
}

// CollectGarbage removes blobs not referenced by any stored config version.
func (s *service) CollectGarbage(ctx context.Context) (int, int64, error) {
	versions, err := s.store.Versions(ctx)
	if err != nil {
		return 0, 0, err
	}

	referenced := make(map[string]struct{})

	for _, version := range versions {
		cfg, err := s.store.Load(ctx, version)
		if err != nil {
			return 0, 0, err
		}

		for id := range cfg.ReferencedResources() {
			referenced[id] = struct{}{}
		}
	}

	return s.resources.GC(ctx, referenced)
}

// checkPayloads verifies every payload resource of a bundle is stored.
func (s *service) checkPayloads(ctx context.Context, b *domain.Bundle) error {
	for payloadType, payload := range b.Payloads {
		ok, err := s.resources.Has(ctx, payload.Resource)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("payload %q: %s: %w", payloadType, payload.Resource, resources.ErrNotFound)
		}
	}

	return nil
}
