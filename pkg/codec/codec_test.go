package codec

import (
    "bytes"
    "testing"

    "google.golang.org/protobuf/types/known/structpb"

    "tokentap/pkg/chunk"
)

func TestJSONCodec(t *testing.T) {
    c := JSON()
    in := map[string]any{"a": 1, "b": "x"}
    b, err := c.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out map[string]any
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out["a"].(float64) != 1 || out["b"].(string) != "x" {
        t.Fatalf("roundtrip mismatch: %#v", out)
    }
}

func TestCBORCodecChunkEnvelope(t *testing.T) {
    c := MustCBOR()
    in := chunk.Envelope{Seq: 2, Total: 5, Data: []byte{0xDE, 0xAD}}
    b, err := c.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out chunk.Envelope
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out.Seq != in.Seq || out.Total != in.Total || !bytes.Equal(out.Data, in.Data) {
        t.Fatalf("roundtrip mismatch: %#v", out)
    }
}

func TestCBORCanonicalStability(t *testing.T) {
    c := MustCBOR()
    in := chunk.Envelope{Seq: 1, Total: 3, Data: []byte("abc")}
    b1, _ := c.Marshal(in)
    b2, _ := c.Marshal(in)
    if !bytes.Equal(b1, b2) { t.Fatalf("canonical encoding not stable") }
}

func TestProtoCodec(t *testing.T) {
    c := Proto()
    s, err := structpb.NewStruct(map[string]any{"k": "v"})
    if err != nil { t.Fatalf("struct: %v", err) }
    b, err := c.Marshal(s)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out structpb.Struct
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out.Fields["k"].GetStringValue() != "v" { t.Fatalf("roundtrip mismatch") }
}

func TestProtoCodecRejectsNonMessage(t *testing.T) {
    c := Proto()
    if _, err := c.Marshal(42); err == nil { t.Fatalf("want error for non-message") }
}

func TestRegistry(t *testing.T) {
    r := NewRegistry()
    if r.Get(ContentJSON) == nil { t.Fatalf("json codec missing") }
    if r.Get(ContentProto) == nil { t.Fatalf("proto codec missing") }
    if r.Get(ContentCBOR) != nil { t.Fatalf("cbor registered implicitly") }
    r.Register(MustCBOR())
    if r.Get(ContentCBOR) == nil { t.Fatalf("cbor codec missing after register") }
}
