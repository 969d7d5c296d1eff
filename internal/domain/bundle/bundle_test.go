package bundle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestConfigValidate covers the structural invariants of a config document.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	// Empty bundle id.
	cfg.Bundles = append(cfg.Bundles, &Bundle{})
	require.ErrorIs(t, cfg.Validate(), ErrEmptyBundleID)

	// Duplicate ids.
	cfg = NewConfig()
	cfg.PutBundle(&Bundle{ID: "20260830-proto"})
	cfg.Bundles = append(cfg.Bundles, &Bundle{ID: "20260830-proto"})
	require.ErrorIs(t, cfg.Validate(), ErrDuplicateBundleID)

	// Unknown default bundle.
	cfg = NewConfig()
	cfg.PutBundle(&Bundle{ID: "20260830-proto"})
	cfg.DefaultBundle = "missing"
	require.ErrorIs(t, cfg.Validate(), ErrUnknownDefaultBundle)
}

// TestPutBundle replaces in place and promotes the first bundle to default.
func TestPutBundle(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.PutBundle(&Bundle{ID: "a", Note: "first"})
	cfg.PutBundle(&Bundle{ID: "b"})
	cfg.PutBundle(&Bundle{ID: "a", Note: "replaced"})

	require.Len(t, cfg.Bundles, 2)
	require.Equal(t, "a", cfg.DefaultBundle)

	got, err := cfg.FindBundle("a")
	require.NoError(t, err)
	require.Equal(t, "replaced", got.Note)

	_, err = cfg.FindBundle("missing")
	require.ErrorIs(t, err, ErrBundleNotFound)
}

// TestReferencedResources collects payload resource ids across bundles.
func TestReferencedResources(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.PutBundle(&Bundle{
		ID: "a",
		Payloads: map[string]*Payload{
			PayloadToolkit:  {Resource: "cid-1", Name: "toolkit.tar.gz"},
			PayloadFirmware: {Resource: "cid-2", Name: "firmware.bin"},
		},
	})
	cfg.PutBundle(&Bundle{
		ID: "b",
		Payloads: map[string]*Payload{
			PayloadToolkit: {Resource: "cid-1", Name: "toolkit.tar.gz"},
		},
	})

	refs := cfg.ReferencedResources()
	require.Len(t, refs, 2)
	require.Contains(t, refs, "cid-1")
	require.Contains(t, refs, "cid-2")
}

// TestClones ensure deep copies do not alias the originals.
func TestClones(t *testing.T) {
	t.Parallel()

	original := &Bundle{
		ID: "a",
		Payloads: map[string]*Payload{
			PayloadToolkit: {Resource: "cid-1"},
		},
	}

	cloned := original.Clone()
	cloned.Payloads[PayloadToolkit].Resource = "cid-2"
	require.Equal(t, "cid-1", original.Payloads[PayloadToolkit].Resource)

	task := &BuildTask{
		ID: "t",
		Request: &BuildRequest{
			BundleID: "a",
			Payloads: map[string]string{PayloadToolkit: "cid-1"},
			Requester: &Actor{
				Hostname: "factory-line-3",
				Username: "operator",
			},
		},
	}

	taskClone := task.Clone()
	taskClone.Request.Payloads[PayloadToolkit] = "cid-2"
	require.Equal(t, "cid-1", task.Request.Payloads[PayloadToolkit])

	var nilActor *Actor
	require.Nil(t, nilActor.Clone())
	require.Equal(t, "unknown", nilActor.String())
}
