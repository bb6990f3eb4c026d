// Package codec provides the payload codecs used on the wire by the offline
// channels: JSON for the near-field token envelope, canonical CBOR for chunk
// envelopes, and Protobuf for callers that exchange typed messages.
package codec

// Codec marshals typed messages deterministically enough for cross-device
// exchange.
type Codec interface {
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs.
type Registry struct{ byType map[string]Codec }

// NewRegistry constructs a registry preloaded with the JSON and Protobuf
// codecs. CBOR is added explicitly via Register(MustCBOR()) because its
// construction can fail.
func NewRegistry() *Registry {
    r := &Registry{byType: make(map[string]Codec)}
    r.Register(JSON())
    r.Register(Proto())
    return r
}

// Register adds or replaces a codec under its content type.
func (r *Registry) Register(c Codec) { r.byType[c.ContentType()] = c }

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }

// Content types handled by the built-in codecs.
const (
    ContentJSON  = "application/json"
    ContentCBOR  = "application/cbor"
    ContentProto = "application/x-protobuf"
)
