package worker

import (
	"context"
	"fmt"

	api "github.com/shopfloor/umpire/internal/api/grpc/umpire"
	"github.com/shopfloor/umpire/internal/archive"
	domain "github.com/shopfloor/umpire/internal/domain/bundle"
)

// executeBuild turns a build request into a registered bundle: payloads are
// fetched, packed into one archive, and the bundle is imported as a new
// staged config version. The archive itself is stored as a resource so the
// finished bundle can be fetched as a single blob later.
func executeBuild(ctx context.Context, client *api.Client, task *domain.BuildTask, actor *domain.Actor) (*domain.BuildResult, error) {
	req := task.Request

	files := make(map[string][]byte, len(req.Payloads))
	payloads := make(map[string]*domain.Payload, len(req.Payloads))

	for payloadType, resource := range req.Payloads {
		info, err := client.StatResource(ctx, resource)
		if err != nil {
			return nil, fmt.Errorf("payload %q: %w", payloadType, err)
		}

		data, err := client.GetResource(ctx, resource)
		if err != nil {
			return nil, fmt.Errorf("payload %q: %w", payloadType, err)
		}

		// Entries live under their payload type so two payloads sharing an
		// upload file name cannot clobber each other in the archive.
		files[payloadType+"/"+info.Name] = data
		payloads[payloadType] = &domain.Payload{
			Resource: info.ID,
			Name:     info.Name,
			Size:     info.Size,
		}
	}

	packed, err := archive.PackBytes(files)
	if err != nil {
		return nil, fmt.Errorf("pack bundle: %w", err)
	}

	archiveInfo, err := client.AddResource(ctx, req.BundleID+".tar.gz", packed)
	if err != nil {
		return nil, fmt.Errorf("store bundle archive: %w", err)
	}

	requester := req.Requester
	if requester == nil {
		requester = actor
	}

	version, err := client.ImportBundle(ctx, &domain.Bundle{
		ID:       req.BundleID,
		Note:     req.Note,
		Payloads: payloads,
	}, requester)
	if err != nil {
		return nil, fmt.Errorf("import bundle: %w", err)
	}

	return &domain.BuildResult{
		ArchiveResource: archiveInfo.ID,
		ConfigVersion:   version,
	}, nil
}
