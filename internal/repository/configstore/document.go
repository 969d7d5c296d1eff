package configstore

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/shopfloor/umpire/internal/domain/bundle"
)

// errMalformedDocument is returned when a stored document fails to decode.
var errMalformedDocument = errors.New("malformed config document")

// encodeDocument renders a config document as operator-readable JSON.
// JSON is produced via protobuf JSON (protojson) over structpb to stay
// aligned with the gRPC surface, which speaks the same representation.
func encodeDocument(cfg *domain.Config) ([]byte, error) {
	document, err := documentToStruct(cfg)
	if err != nil {
		return nil, err
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
		Indent:    "  ",
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("encode config document: %w", err)
	}

	return data, nil
}

// decodeDocument parses a stored config document.
func decodeDocument(data []byte) (*domain.Config, error) {
	var document structpb.Struct
	if err := protojson.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("decode config document: %w", err)
	}

	return documentFromStruct(&document)
}

// documentToStruct converts the domain config into its structpb form.
func documentToStruct(cfg *domain.Config) (*structpb.Struct, error) {
	bundles := make([]any, 0, len(cfg.Bundles))

	for _, b := range cfg.Bundles {
		payloads := make(map[string]any, len(b.Payloads))
		for payloadType, payload := range b.Payloads {
			payloads[payloadType] = map[string]any{
				"resource": payload.Resource,
				"name":     payload.Name,
				"size":     payload.Size,
			}
		}

		bundles = append(bundles, map[string]any{
			"id":       b.ID,
			"note":     b.Note,
			"payloads": payloads,
		})
	}

	document, err := structpb.NewStruct(map[string]any{
		"schema":         cfg.Schema,
		"default_bundle": cfg.DefaultBundle,
		"bundles":        bundles,
	})
	if err != nil {
		return nil, fmt.Errorf("build config document: %w", err)
	}

	return document, nil
}

// documentFromStruct converts the structpb form back into the domain config.
func documentFromStruct(document *structpb.Struct) (*domain.Config, error) {
	fields := document.AsMap()

	cfg := &domain.Config{
		Schema:        intField(fields, "schema"),
		DefaultBundle: stringField(fields, "default_bundle"),
	}

	rawBundles, _ := fields["bundles"].([]any)
	for _, rawBundle := range rawBundles {
		bundleFields, ok := rawBundle.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("bundle entry: %w", errMalformedDocument)
		}

		b := &domain.Bundle{
			ID:       stringField(bundleFields, "id"),
			Note:     stringField(bundleFields, "note"),
			Payloads: make(map[string]*domain.Payload),
		}

		rawPayloads, _ := bundleFields["payloads"].(map[string]any)
		for payloadType, rawPayload := range rawPayloads {
			payloadFields, ok := rawPayload.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("payload %q: %w", payloadType, errMalformedDocument)
			}

			b.Payloads[payloadType] = &domain.Payload{
				Resource: stringField(payloadFields, "resource"),
				Name:     stringField(payloadFields, "name"),
				Size:     int64(intField(payloadFields, "size")),
			}
		}

		cfg.Bundles = append(cfg.Bundles, b)
	}

	return cfg, nil
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
