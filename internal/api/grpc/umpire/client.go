package umpire

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/queue"
	"github.com/shopfloor/umpire/internal/repository/configstore"
	"github.com/shopfloor/umpire/internal/repository/resources"
)

// Client is a typed wrapper over the Umpire gRPC API speaking domain objects.
type Client struct {
	cc     *grpc.ClientConn
	client UmpireClient

	// timeout applies per RPC when non-zero.
	timeout time.Duration
}

// DialOptions tune the client connection.
type DialOptions struct {
	// CallTimeout applies to every RPC when non-zero.
	CallTimeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero. Resource
	// uploads can be large, so servers and clients raise this together.
	MaxMsgBytes int
}

// Dial connects to an umpire server.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}

	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		cc:      cc,
		client:  NewUmpireClient(cc),
		timeout: opts.CallTimeout,
	}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}

	return c.cc.Close()
}

// callCtx derives the per-RPC context.
func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}

	return context.WithCancel(ctx)
}

// Status reports the deployment state of the server.
func (c *Client) Status(ctx context.Context) (*domain.StatusInfo, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	reply, err := c.client.GetStatus(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, mapRPC(err)
	}

	return statusFromMap(reply.AsMap())
}

// AddResource uploads a blob and returns its stored form.
func (c *Client) AddResource(ctx context.Context, name string, data []byte) (*domain.ResourceInfo, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	req, err := newStruct(map[string]any{
		"name": name,
		"data": bytesToWire(data),
	})
	if err != nil {
		return nil, err
	}

	reply, err := c.client.AddResource(ctx, req)
	if err != nil {
		return nil, mapRPC(err)
	}

	return resourceInfoFromMap(reply.AsMap()), nil
}

// GetResource downloads the bytes of one stored resource.
func (c *Client) GetResource(ctx context.Context, id string) ([]byte, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	reply, err := c.client.GetResource(ctx, wrapperspb.String(id))
	if err != nil {
		return nil, mapRPC(err)
	}

	return reply.GetValue(), nil
}

// StatResource returns bookkeeping about one stored resource.
func (c *Client) StatResource(ctx context.Context, id string) (*domain.ResourceInfo, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	reply, err := c.client.StatResource(ctx, wrapperspb.String(id))
	if err != nil {
		return nil, mapRPC(err)
	}

	return resourceInfoFromMap(reply.AsMap()), nil
}

// ImportBundle registers a bundle into a new staged config version.
func (c *Client) ImportBundle(ctx context.Context, b *domain.Bundle, actor *domain.Actor) (int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	req, err := newStruct(map[string]any{
		"bundle": bundleMap(b),
		"actor":  actorMap(actor),
	})
	if err != nil {
		return 0, err
	}

	reply, err := c.client.ImportBundle(ctx, req)
	if err != nil {
		return 0, mapRPC(err)
	}

	return int(reply.GetValue()), nil
}

// StageConfig stages a stored config version; zero means the latest.
func (c *Client) StageConfig(ctx context.Context, version int) (int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	reply, err := c.client.StageConfig(ctx, wrapperspb.Int64(int64(version)))
	if err != nil {
		return 0, mapRPC(err)
	}

	return int(reply.GetValue()), nil
}

// UnstageConfig drops the staged config.
func (c *Client) UnstageConfig(ctx context.Context) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	if _, err := c.client.UnstageConfig(ctx, &emptypb.Empty{}); err != nil {
		return mapRPC(err)
	}

	return nil
}

// Deploy promotes the staged config to active.
func (c *Client) Deploy(ctx context.Context, actor *domain.Actor) (int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	req, err := newStruct(map[string]any{"actor": actorMap(actor)})
	if err != nil {
		return 0, err
	}

	reply, err := c.client.Deploy(ctx, req)
	if err != nil {
		return 0, mapRPC(err)
	}

	return int(reply.GetValue()), nil
}

// Rollback re-deploys an older config version.
func (c *Client) Rollback(ctx context.Context, version int, actor *domain.Actor) (int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	req, err := newStruct(map[string]any{
		"version": version,
		"actor":   actorMap(actor),
	})
	if err != nil {
		return 0, err
	}

	reply, err := c.client.Rollback(ctx, req)
	if err != nil {
		return 0, mapRPC(err)
	}

	return int(reply.GetValue()), nil
}

// GetConfig fetches a stored config: "active", "staging" or a version number.
func (c *Client) GetConfig(ctx context.Context, selector string) (*domain.Config, int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	reply, err := c.client.GetConfig(ctx, wrapperspb.String(selector))
	if err != nil {
		return nil, 0, mapRPC(err)
	}

	return configFromMap(reply.AsMap())
}

// History returns the deployment audit trail.
func (c *Client) History(ctx context.Context) ([]*domain.DeploymentRecord, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	reply, err := c.client.GetHistory(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, mapRPC(err)
	}

	return historyFromList(reply)
}

// SubmitBuild enqueues a bundle build request.
func (c *Client) SubmitBuild(ctx context.Context, req *domain.BuildRequest) (*domain.BuildTask, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	message, err := newStruct(requestMap(req))
	if err != nil {
		return nil, err
	}

	reply, err := c.client.SubmitBuild(ctx, message)
	if err != nil {
		return nil, mapRPC(err)
	}

	return taskFromMap(reply.AsMap()), nil
}

// LeaseBuild asks for the oldest pending build task. Returns queue.ErrEmpty
// when no task is waiting.
func (c *Client) LeaseBuild(ctx context.Context, worker string) (*domain.BuildTask, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	req, err := newStruct(map[string]any{"worker": worker})
	if err != nil {
		return nil, err
	}

	reply, err := c.client.LeaseBuild(ctx, req)
	if err != nil {
		return nil, mapRPC(err)
	}

	return taskFromMap(reply.AsMap()), nil
}

// CompleteBuild records a successful build.
func (c *Client) CompleteBuild(ctx context.Context, id, worker string, result *domain.BuildResult) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	req, err := newStruct(map[string]any{
		"task":   id,
		"worker": worker,
		"result": resultMap(result),
	})
	if err != nil {
		return err
	}

	if _, err := c.client.CompleteBuild(ctx, req); err != nil {
		return mapRPC(err)
	}

	return nil
}

// FailBuild records a failed build attempt.
func (c *Client) FailBuild(ctx context.Context, id, worker, reason string) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	req, err := newStruct(map[string]any{
		"task":   id,
		"worker": worker,
		"reason": reason,
	})
	if err != nil {
		return err
	}

	if _, err := c.client.FailBuild(ctx, req); err != nil {
		return mapRPC(err)
	}

	return nil
}

// GetBuild fetches one build task by id.
func (c *Client) GetBuild(ctx context.Context, id string) (*domain.BuildTask, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	reply, err := c.client.GetBuild(ctx, wrapperspb.String(id))
	if err != nil {
		return nil, mapRPC(err)
	}

	return taskFromMap(reply.AsMap()), nil
}

// CollectGarbage asks the server to drop unreferenced resources. Returns
// how many blobs were removed and how many bytes were freed.
func (c *Client) CollectGarbage(ctx context.Context) (int, int64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	reply, err := c.client.CollectGarbage(ctx, &emptypb.Empty{})
	if err != nil {
		return 0, 0, mapRPC(err)
	}

	fields := reply.AsMap()

	return intField(fields, "removed"), int64(intField(fields, "freed")), nil
}

// sentinels the server encodes into status messages, checked in order.
var wireSentinels = []error{
	queue.ErrEmpty,
	queue.ErrTaskNotFound,
	queue.ErrNotLeaseOwner,
	resources.ErrNotFound,
	resources.ErrInvalidID,
	configstore.ErrNotFound,
	configstore.ErrAlreadyStaged,
	configstore.ErrNothingStaged,
	domain.ErrBundleNotFound,
	domain.ErrEmptyBundleID,
	domain.ErrDuplicateBundleID,
	domain.ErrUnknownDefaultBundle,
}

// mapRPC translates gRPC status errors back into the sentinels the rest of
// the code checks with errors.Is.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	for _, sentinel := range wireSentinels {
		if strings.Contains(st.Message(), sentinel.Error()) {
			return sentinel
		}
	}

	return err
}
