package umpire

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/queue"
	"github.com/shopfloor/umpire/internal/repository/configstore"
	"github.com/shopfloor/umpire/internal/repository/resources"
)

// TestConfigRoundTrip checks that a config document survives the wire form.
func TestConfigRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := domain.NewConfig()
	cfg.PutBundle(&domain.Bundle{
		ID:   "mlb-rev3",
		Note: "third revision",
		Payloads: map[string]*domain.Payload{
			domain.PayloadToolkit: {
				Resource: "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy",
				Name:     "toolkit.tar.gz",
				Size:     1 << 20,
			},
			domain.PayloadTestImage: {
				Resource: "bafkreidgqyyzdbdlb7vvdvmy34qclj3nnvhmcz4u6wuaarz67nqp5r6l7i",
				Name:     "test-image.bin",
				Size:     4 << 20,
			},
		},
	})

	message, err := newStruct(configMap(cfg, 7))
	require.NoError(t, err)

	decoded, version, err := configFromMap(message.AsMap())
	require.NoError(t, err)
	require.Equal(t, 7, version)
	require.Equal(t, cfg.Schema, decoded.Schema)
	require.Equal(t, cfg.DefaultBundle, decoded.DefaultBundle)
	require.Len(t, decoded.Bundles, 1)
	require.Equal(t, cfg.Bundles[0].Payloads, decoded.Bundles[0].Payloads)
}

// TestTaskRoundTrip checks that a build task survives the wire form,
// including timestamps and the nested request and result.
func TestTaskRoundTrip(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 11, 3, 12, 30, 0, 0, time.UTC)

	task := &domain.BuildTask{
		ID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Request: &domain.BuildRequest{
			BundleID: "mlb",
			Note:     "push to line 2",
			Payloads: map[string]string{
				domain.PayloadToolkit: "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy",
			},
			Requester: &domain.Actor{Hostname: "ops-1", Username: "operator"},
		},
		State:         domain.TaskLeased,
		Created:       created,
		Attempts:      2,
		LeaseOwner:    "worker-7",
		LeaseDeadline: created.Add(10 * time.Minute),
		Result: &domain.BuildResult{
			ArchiveResource: "bafkreidgqyyzdbdlb7vvdvmy34qclj3nnvhmcz4u6wuaarz67nqp5r6l7i",
			ConfigVersion:   4,
			Finished:        created.Add(5 * time.Minute),
		},
	}

	message, err := newStruct(taskMap(task))
	require.NoError(t, err)

	decoded := taskFromMap(message.AsMap())
	require.Equal(t, task.ID, decoded.ID)
	require.Equal(t, task.State, decoded.State)
	require.True(t, task.Created.Equal(decoded.Created))
	require.True(t, task.LeaseDeadline.Equal(decoded.LeaseDeadline))
	require.Equal(t, task.Attempts, decoded.Attempts)
	require.Equal(t, task.Request.Payloads, decoded.Request.Payloads)
	require.Equal(t, task.Request.Requester, decoded.Request.Requester)
	require.Equal(t, task.Result.ConfigVersion, decoded.Result.ConfigVersion)
	require.True(t, task.Result.Finished.Equal(decoded.Result.Finished))
}

// TestTaskWithoutResult checks that optional fields stay nil.
func TestTaskWithoutResult(t *testing.T) {
	t.Parallel()

	task := &domain.BuildTask{
		ID:      "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		State:   domain.TaskPending,
		Created: time.Now().UTC(),
		Request: &domain.BuildRequest{
			BundleID: "mlb",
			Payloads: map[string]string{},
		},
	}

	message, err := newStruct(taskMap(task))
	require.NoError(t, err)

	decoded := taskFromMap(message.AsMap())
	require.Nil(t, decoded.Result)
	require.Nil(t, decoded.Request.Requester)
	require.True(t, decoded.LeaseDeadline.IsZero())
}

// TestStatusRoundTrip checks the status document conversion.
func TestStatusRoundTrip(t *testing.T) {
	t.Parallel()

	info := &domain.StatusInfo{
		ActiveVersion:  3,
		StagingVersion: 4,
		Bundles: []*domain.Bundle{
			{ID: "mlb", Payloads: map[string]*domain.Payload{}},
		},
		DefaultBundle: "mlb",
		PendingBuilds: 2,
	}

	message, err := newStruct(statusMap(info))
	require.NoError(t, err)

	decoded, err := statusFromMap(message.AsMap())
	require.NoError(t, err)
	require.Equal(t, info.ActiveVersion, decoded.ActiveVersion)
	require.Equal(t, info.StagingVersion, decoded.StagingVersion)
	require.Equal(t, info.DefaultBundle, decoded.DefaultBundle)
	require.Equal(t, info.PendingBuilds, decoded.PendingBuilds)
	require.Len(t, decoded.Bundles, 1)
}

// TestBytesWire checks the base64 framing of resource data.
func TestBytesWire(t *testing.T) {
	t.Parallel()

	data := []byte{0x00, 0xff, 0x10, 'a', 'b'}

	decoded, err := bytesFromWire(bytesToWire(data))
	require.NoError(t, err)
	require.Equal(t, data, decoded)

	_, err = bytesFromWire("not base64 !!!")
	require.ErrorIs(t, err, errMalformedMessage)
}

// TestErrorMapping checks that sentinels survive the status-code round trip.
func TestErrorMapping(t *testing.T) {
	t.Parallel()

	for _, sentinel := range []error{
		queue.ErrEmpty,
		queue.ErrTaskNotFound,
		queue.ErrNotLeaseOwner,
		resources.ErrNotFound,
		resources.ErrInvalidID,
		configstore.ErrNotFound,
		configstore.ErrAlreadyStaged,
		configstore.ErrNothingStaged,
		domain.ErrBundleNotFound,
		domain.ErrDuplicateBundleID,
	} {
		// Services wrap sentinels with context before they hit the transport.
		wrapped := fmt.Errorf("operation on x: %w", sentinel)
		require.ErrorIs(t, mapRPC(mapErr(wrapped)), sentinel, "sentinel %v", sentinel)
	}

	// Unknown errors surface as Internal and stay errors.
	mapped := mapErr(fmt.Errorf("disk on fire"))
	require.Equal(t, codes.Internal, status.Code(mapped))
	require.Error(t, mapRPC(mapped))
}
