package visual

import (
    "bytes"
    "compress/flate"
    "fmt"
    "io"
)

// Transform is a reversible byte transform applied before frames are
// encoded and inverted after reassembly. Implementations must be lossless.
type Transform interface {
    Name() string
    Apply(data []byte) ([]byte, error)
    Invert(data []byte) ([]byte, error)
}

type deflateTransform struct{ level int }

// Deflate returns the built-in size-reducing transform (DEFLATE,
// RFC 1951). It is the default plug-in; any lossless transform satisfies
// the interface.
func Deflate() Transform { return deflateTransform{level: flate.BestCompression} }

func (deflateTransform) Name() string { return "deflate" }

func (t deflateTransform) Apply(data []byte) ([]byte, error) {
    var buf bytes.Buffer
    w, err := flate.NewWriter(&buf, t.level)
    if err != nil { return nil, err }
    if _, err := w.Write(data); err != nil { return nil, err }
    if err := w.Close(); err != nil { return nil, err }
    return buf.Bytes(), nil
}

func (deflateTransform) Invert(data []byte) ([]byte, error) {
    r := flate.NewReader(bytes.NewReader(data))
    out, err := io.ReadAll(r)
    if err != nil { return nil, fmt.Errorf("inflate: %w", err) }
    if err := r.Close(); err != nil { return nil, err }
    return out, nil
}
