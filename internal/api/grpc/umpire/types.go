package umpire

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/shopfloor/umpire/internal/domain/bundle"
)

// errMalformedMessage is returned when a wire document misses required
// fields or carries the wrong shapes.
var errMalformedMessage = errors.New("malformed message")

// Timestamps travel as RFC 3339 strings inside structpb documents.
const wireTimeFormat = time.RFC3339Nano

func timeToWire(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(wireTimeFormat)
}

func timeFromWire(value string) time.Time {
	if value == "" {
		return time.Time{}
	}

	t, err := time.Parse(wireTimeFormat, value)
	if err != nil {
		return time.Time{}
	}

	return t
}

func actorMap(actor *domain.Actor) map[string]any {
	if actor == nil {
		return nil
	}

	return map[string]any{
		"hostname": actor.Hostname,
		"username": actor.Username,
	}
}

func actorFromMap(fields map[string]any) *domain.Actor {
	if fields == nil {
		return nil
	}

	return &domain.Actor{
		Hostname: stringField(fields, "hostname"),
		Username: stringField(fields, "username"),
	}
}

func resourceInfoMap(info *domain.ResourceInfo) map[string]any {
	return map[string]any{
		"id":      info.ID,
		"name":    info.Name,
		"size":    info.Size,
		"created": timeToWire(info.Created),
		"touched": timeToWire(info.Touched),
	}
}

func resourceInfoFromMap(fields map[string]any) *domain.ResourceInfo {
	return &domain.ResourceInfo{
		ID:      stringField(fields, "id"),
		Name:    stringField(fields, "name"),
		Size:    int64(intField(fields, "size")),
		Created: timeFromWire(stringField(fields, "created")),
		Touched: timeFromWire(stringField(fields, "touched")),
	}
}

func bundleMap(b *domain.Bundle) map[string]any {
	payloads := make(map[string]any, len(b.Payloads))
	for payloadType, payload := range b.Payloads {
		payloads[payloadType] = map[string]any{
			"resource": payload.Resource,
			"name":     payload.Name,
			"size":     payload.Size,
		}
	}

	return map[string]any{
		"id":       b.ID,
		"note":     b.Note,
		"payloads": payloads,
	}
}

func bundleFromMap(fields map[string]any) (*domain.Bundle, error) {
	b := &domain.Bundle{
		ID:       stringField(fields, "id"),
		Note:     stringField(fields, "note"),
		Payloads: make(map[string]*domain.Payload),
	}

	rawPayloads, _ := fields["payloads"].(map[string]any)
	for payloadType, rawPayload := range rawPayloads {
		payloadFields, ok := rawPayload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("payload %q: %w", payloadType, errMalformedMessage)
		}

		b.Payloads[payloadType] = &domain.Payload{
			Resource: stringField(payloadFields, "resource"),
			Name:     stringField(payloadFields, "name"),
			Size:     int64(intField(payloadFields, "size")),
		}
	}

	return b, nil
}

func configMap(cfg *domain.Config, version int) map[string]any {
	bundles := make([]any, 0, len(cfg.Bundles))
	for _, b := range cfg.Bundles {
		bundles = append(bundles, bundleMap(b))
	}

	return map[string]any{
		"version":        version,
		"schema":         cfg.Schema,
		"default_bundle": cfg.DefaultBundle,
		"bundles":        bundles,
	}
}

func configFromMap(fields map[string]any) (*domain.Config, int, error) {
	cfg := &domain.Config{
		Schema:        intField(fields, "schema"),
		DefaultBundle: stringField(fields, "default_bundle"),
	}

	rawBundles, _ := fields["bundles"].([]any)
	for _, rawBundle := range rawBundles {
		bundleFields, ok := rawBundle.(map[string]any)
		if !ok {
			return nil, 0, fmt.Errorf("bundle entry: %w", errMalformedMessage)
		}

		b, err := bundleFromMap(bundleFields)
		if err != nil {
			return nil, 0, err
		}

		cfg.Bundles = append(cfg.Bundles, b)
	}

	return cfg, intField(fields, "version"), nil
}

func statusMap(info *domain.StatusInfo) map[string]any {
	bundles := make([]any, 0, len(info.Bundles))
	for _, b := range info.Bundles {
		bundles = append(bundles, bundleMap(b))
	}

	return map[string]any{
		"active_version":  info.ActiveVersion,
		"staging_version": info.StagingVersion,
		"bundles":         bundles,
		"default_bundle":  info.DefaultBundle,
		"pending_builds":  info.PendingBuilds,
	}
}

func statusFromMap(fields map[string]any) (*domain.StatusInfo, error) {
	info := &domain.StatusInfo{
		ActiveVersion:  intField(fields, "active_version"),
		StagingVersion: intField(fields, "staging_version"),
		DefaultBundle:  stringField(fields, "default_bundle"),
		PendingBuilds:  intField(fields, "pending_builds"),
	}

	rawBundles, _ := fields["bundles"].([]any)
	for _, rawBundle := range rawBundles {
		bundleFields, ok := rawBundle.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("bundle entry: %w", errMalformedMessage)
		}

		b, err := bundleFromMap(bundleFields)
		if err != nil {
			return nil, err
		}

		info.Bundles = append(info.Bundles, b)
	}

	return info, nil
}

func requestMap(req *domain.BuildRequest) map[string]any {
	payloads := make(map[string]any, len(req.Payloads))
	for payloadType, resource := range req.Payloads {
		payloads[payloadType] = resource
	}

	fields := map[string]any{
		"bundle_id": req.BundleID,
		"note":      req.Note,
		"payloads":  payloads,
	}

	// Absent keys decode back to nil; a nil map would become an empty
	// document.
	if req.Requester != nil {
		fields["requester"] = actorMap(req.Requester)
	}

	return fields
}

func requestFromMap(fields map[string]any) *domain.BuildRequest {
	req := &domain.BuildRequest{
		BundleID: stringField(fields, "bundle_id"),
		Note:     stringField(fields, "note"),
		Payloads: make(map[string]string),
	}

	rawPayloads, _ := fields["payloads"].(map[string]any)
	for payloadType, rawResource := range rawPayloads {
		resource, _ := rawResource.(string)
		req.Payloads[payloadType] = resource
	}

	rawRequester, _ := fields["requester"].(map[string]any)
	req.Requester = actorFromMap(rawRequester)

	return req
}

func resultMap(result *domain.BuildResult) map[string]any {
	if result == nil {
		return nil
	}

	return map[string]any{
		"archive_resource": result.ArchiveResource,
		"config_version":   result.ConfigVersion,
		"error":            result.Error,
		"finished":         timeToWire(result.Finished),
	}
}

func resultFromMap(fields map[string]any) *domain.BuildResult {
	if fields == nil {
		return nil
	}

	return &domain.BuildResult{
		ArchiveResource: stringField(fields, "archive_resource"),
		ConfigVersion:   intField(fields, "config_version"),
		Error:           stringField(fields, "error"),
		Finished:        timeFromWire(stringField(fields, "finished")),
	}
}

func taskMap(task *domain.BuildTask) map[string]any {
	fields := map[string]any{
		"id":             task.ID,
		"state":          string(task.State),
		"created":        timeToWire(task.Created),
		"attempts":       task.Attempts,
		"lease_owner":    task.LeaseOwner,
		"lease_deadline": timeToWire(task.LeaseDeadline),
		"request":        requestMap(task.Request),
	}

	if task.Result != nil {
		fields["result"] = resultMap(task.Result)
	}

	return fields
}

func taskFromMap(fields map[string]any) *domain.BuildTask {
	task := &domain.BuildTask{
		ID:            stringField(fields, "id"),
		State:         domain.TaskState(stringField(fields, "state")),
		Created:       timeFromWire(stringField(fields, "created")),
		Attempts:      intField(fields, "attempts"),
		LeaseOwner:    stringField(fields, "lease_owner"),
		LeaseDeadline: timeFromWire(stringField(fields, "lease_deadline")),
	}

	rawRequest, _ := fields["request"].(map[string]any)
	if rawRequest != nil {
		task.Request = requestFromMap(rawRequest)
	}

	rawResult, _ := fields["result"].(map[string]any)
	task.Result = resultFromMap(rawResult)

	return task
}

func historyList(records []*domain.DeploymentRecord) []any {
	entries := make([]any, 0, len(records))

	for _, record := range records {
		entry := map[string]any{
			"version":   record.Version,
			"timestamp": timeToWire(record.Timestamp),
			"note":      record.Note,
		}

		if record.Actor != nil {
			entry["actor"] = actorMap(record.Actor)
		}

		entries = append(entries, entry)
	}

	return entries
}

func historyFromList(list *structpb.ListValue) ([]*domain.DeploymentRecord, error) {
	records := make([]*domain.DeploymentRecord, 0, len(list.GetValues()))

	for _, value := range list.GetValues() {
		fields, ok := value.AsInterface().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("history entry: %w", errMalformedMessage)
		}

		rawActor, _ := fields["actor"].(map[string]any)

		records = append(records, &domain.DeploymentRecord{
			Version:   intField(fields, "version"),
			Timestamp: timeFromWire(stringField(fields, "timestamp")),
			Actor:     actorFromMap(rawActor),
			Note:      stringField(fields, "note"),
		})
	}

	return records, nil
}

// Resource bytes inside structpb documents travel base64-encoded, matching
// how protobuf JSON renders bytes fields.
func bytesToWire(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func bytesFromWire(value string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("resource data: %w", errMalformedMessage)
	}

	return data, nil
}

// newStruct wraps structpb.NewStruct with the package's error vocabulary.
func newStruct(fields map[string]any) (*structpb.Struct, error) {
	document, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}

	return document, nil
}

// stringField extracts a string value, tolerating absent keys.
func stringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)

	return value
}

// intField extracts a numeric value; structpb numbers decode as float64.
func intField(fields map[string]any, key string) int {
	value, _ := fields[key].(float64)

	return int(value)
}
