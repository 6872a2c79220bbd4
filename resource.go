package restcore

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// ResourceRef identifies one mutable remote object. Immutable once
// constructed.
type ResourceRef struct {
	SpaceID       string
	EnvironmentID string
	ResourceID    string
}

func (r ResourceRef) String() string {
	return r.SpaceID + "/" + r.EnvironmentID + "/" + r.ResourceID
}

// Sys is the server-assigned metadata returned with every resource
// representation. Version increases monotonically on each successful
// mutation and is the optimistic-lock token; Status drives asynchronous
// resource polling.
type Sys struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Version int    `json:"version"`
	Status  string `json:"status,omitempty"`
}

// VersionedPayload pairs typed resource data with the Sys observed when
// it was fetched. The caller owns it between fetch and mutate and must
// carry the fetched Sys.Version into the next mutation.
type VersionedPayload[T any] struct {
	Sys  Sys `json:"sys"`
	Data T   `json:"data"`
}

// Codec maps typed resource payloads to and from wire bytes. The domain
// layer supplies it; [JSONCodec] is the default.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSONCodec is a zero-value [Codec] backed by JSON.
type JSONCodec struct{}

// Encode marshals v to JSON.
func (JSONCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }

// Decode unmarshals JSON data into v.
func (JSONCodec) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }

// DecodePayload decodes a fetched resource body into a typed payload.
func DecodePayload[T any](c Codec, body []byte) (VersionedPayload[T], error) {
	var p VersionedPayload[T]
	if err := c.Decode(body, &p); err != nil {
		return p, fmt.Errorf("restcore: decode payload: %w", err)
	}

	return p, nil
}

// EncodePayload encodes a typed payload into a mutation request body.
func EncodePayload[T any](c Codec, p VersionedPayload[T]) ([]byte, error) {
	body, err := c.Encode(p)
	if err != nil {
		return nil, fmt.Errorf("restcore: encode payload: %w", err)
	}

	return body, nil
}
