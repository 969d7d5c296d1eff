package umpire

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	domain "github.com/shopfloor/umpire/internal/domain/bundle"
	"github.com/shopfloor/umpire/internal/queue"
	"github.com/shopfloor/umpire/internal/repository/configstore"
	"github.com/shopfloor/umpire/internal/repository/resources"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	Status(ctx context.Context) (*domain.StatusInfo, error)
	AddResource(ctx context.Context, name string, data []byte) (*domain.ResourceInfo, error)
	GetResource(ctx context.Context, id string) ([]byte, error)
	StatResource(ctx context.Context, id string) (*domain.ResourceInfo, error)
	ImportBundle(ctx context.Context, b *domain.Bundle, actor *domain.Actor) (int, error)
	StageConfig(ctx context.Context, version int) (int, error)
	UnstageConfig(ctx context.Context) error
	Deploy(ctx context.Context, actor *domain.Actor) (int, error)
	Rollback(ctx context.Context, version int, actor *domain.Actor) (int, error)
	GetConfig(ctx context.Context, selector string) (*domain.Config, int, error)
	History(ctx context.Context) ([]*domain.DeploymentRecord, error)
	SubmitBuild(ctx context.Context, req *domain.BuildRequest) (*domain.BuildTask, error)
	LeaseBuild(ctx context.Context, worker string) (*domain.BuildTask, error)
	CompleteBuild(ctx context.Context, id, worker string, result *domain.BuildResult) error
	FailBuild(ctx context.Context, id, worker, reason string) error
	GetBuild(ctx context.Context, id string) (*domain.BuildTask, error)
	CollectGarbage(ctx context.Context) (removed int, freed int64, err error)
}

// Server implements the Umpire gRPC API over a Service.
type Server struct {
	UnimplementedUmpireServer

	// service provides the business logic for umpire operations.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// GetStatus reports the deployment state of the server.
func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	info, err := s.service.Status(ctx)
	if err != nil {
		return nil, mapErr(err)
	}

	return newStruct(statusMap(info))
}

// AddResource stores a blob in the resource repository.
func (s *Server) AddResource(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()

	name := stringField(fields, "name")
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "resource name is required")
	}

	data, err := bytesFromWire(stringField(fields, "data"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	info, err := s.service.AddResource(ctx, name, data)
	if err != nil {
		return nil, mapErr(err)
	}

	return newStruct(resourceInfoMap(info))
}

// GetResource returns the bytes of one stored resource.
func (s *Server) GetResource(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	data, err := s.service.GetResource(ctx, req.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}

	return wrapperspb.Bytes(data), nil
}

// StatResource returns bookkeeping about one stored resource.
func (s *Server) StatResource(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	info, err := s.service.StatResource(ctx, req.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}

	return newStruct(resourceInfoMap(info))
}

// ImportBundle registers a bundle into a new staged config version.
func (s *Server) ImportBundle(ctx context.Context, req *structpb.Struct) (*wrapperspb.Int64Value, error) {
	fields := req.AsMap()

	rawBundle, ok := fields["bundle"].(map[string]any)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "bundle is required")
	}

	b, err := bundleFromMap(rawBundle)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rawActor, _ := fields["actor"].(map[string]any)

	version, err := s.service.ImportBundle(ctx, b, actorFromMap(rawActor))
	if err != nil {
		return nil, mapErr(err)
	}

	return wrapperspb.Int64(int64(version)), nil
}

// StageConfig stages a stored config version; zero means the latest.
func (s *Server) StageConfig(ctx context.Context, req *wrapperspb.Int64Value) (*wrapperspb.Int64Value, error) {
	version, err := s.service.StageConfig(ctx, int(req.GetValue()))
	if err != nil {
		return nil, mapErr(err)
	}

	return wrapperspb.Int64(int64(version)), nil
}

// UnstageConfig drops the staged config.
func (s *Server) UnstageConfig(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.service.UnstageConfig(ctx); err != nil {
		return nil, mapErr(err)
	}

	return &emptypb.Empty{}, nil
}

// Deploy promotes the staged config to active.
func (s *Server) Deploy(ctx context.Context, req *structpb.Struct) (*wrapperspb.Int64Value, error) {
	rawActor, _ := req.AsMap()["actor"].(map[string]any)

	version, err := s.service.Deploy(ctx, actorFromMap(rawActor))
	if err != nil {
		return nil, mapErr(err)
	}

	return wrapperspb.Int64(int64(version)), nil
}

// Rollback re-deploys an older config version.
func (s *Server) Rollback(ctx context.Context, req *structpb.Struct) (*wrapperspb.Int64Value, error) {
	fields := req.AsMap()

	version := intField(fields, "version")
	if version <= 0 {
		return nil, status.Error(codes.InvalidArgument, "version is required")
	}

	rawActor, _ := fields["actor"].(map[string]any)

	deployed, err := s.service.Rollback(ctx, version, actorFromMap(rawActor))
	if err != nil {
		return nil, mapErr(err)
	}

	return wrapperspb.Int64(int64(deployed)), nil
}

// GetConfig returns a stored config: "active", "staging" or a version number.
func (s *Server) GetConfig(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	cfg, version, err := s.service.GetConfig(ctx, req.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}

	return newStruct(configMap(cfg, version))
}

// GetHistory returns the deployment audit trail.
func (s *Server) GetHistory(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	records, err := s.service.History(ctx)
	if err != nil {
		return nil, mapErr(err)
	}

	list, err := structpb.NewList(historyList(records))
	if err != nil {
		return nil, status.Error(codes.Internal, "build history message")
	}

	return list, nil
}

// SubmitBuild enqueues a bundle build request.
func (s *Server) SubmitBuild(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	request := requestFromMap(req.AsMap())
	if request.BundleID == "" {
		return nil, status.Error(codes.InvalidArgument, "bundle_id is required")
	}

	task, err := s.service.SubmitBuild(ctx, request)
	if err != nil {
		return nil, mapErr(err)
	}

	return newStruct(taskMap(task))
}

// LeaseBuild hands the oldest pending build task to a worker.
func (s *Server) LeaseBuild(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	worker := stringField(req.AsMap(), "worker")
	if worker == "" {
		return nil, status.Error(codes.InvalidArgument, "worker is required")
	}

	task, err := s.service.LeaseBuild(ctx, worker)
	if err != nil {
		return nil, mapErr(err)
	}

	return newStruct(taskMap(task))
}

// CompleteBuild records a successful build.
func (s *Server) CompleteBuild(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.AsMap()

	rawResult, _ := fields["result"].(map[string]any)

	err := s.service.CompleteBuild(ctx,
		stringField(fields, "task"),
		stringField(fields, "worker"),
		resultFromMap(rawResult))
	if err != nil {
		return nil, mapErr(err)
	}

	return &emptypb.Empty{}, nil
}

// FailBuild records a failed build attempt.
func (s *Server) FailBuild(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.AsMap()

	err := s.service.FailBuild(ctx,
		stringField(fields, "task"),
		stringField(fields, "worker"),
		stringField(fields, "reason"))
	if err != nil {
		return nil, mapErr(err)
	}

	return &emptypb.Empty{}, nil
}

// GetBuild returns one build task by id.
func (s *Server) GetBuild(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	task, err := s.service.GetBuild(ctx, req.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}

	return newStruct(taskMap(task))
}

// CollectGarbage removes resources not referenced by any config version.
func (s *Server) CollectGarbage(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	removed, freed, err := s.service.CollectGarbage(ctx)
	if err != nil {
		return nil, mapErr(err)
	}

	return newStruct(map[string]any{
		"removed": removed,
		"freed":   freed,
	})
}

// mapErr translates service errors into gRPC status codes. Messages keep
// the sentinel text so clients can translate them back.
func mapErr(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, resources.ErrNotFound),
		errors.Is(err, configstore.ErrNotFound),
		errors.Is(err, queue.ErrTaskNotFound),
		errors.Is(err, queue.ErrEmpty),
		errors.Is(err, domain.ErrBundleNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, configstore.ErrAlreadyStaged),
		errors.Is(err, configstore.ErrNothingStaged),
		errors.Is(err, queue.ErrNotLeaseOwner):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, resources.ErrInvalidID),
		errors.Is(err, domain.ErrEmptyBundleID),
		errors.Is(err, domain.ErrDuplicateBundleID),
		errors.Is(err, domain.ErrUnknownDefaultBundle),
		errors.Is(err, errMalformedMessage):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
