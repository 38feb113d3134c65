// Package queue — codec.go
//
// Snapshot wire format: JSON, gzip+base64 encoded. Always gzipped: the
// cache is meant for localStorage-class handles where bytes are scarce,
// and gzip+base64 round-trips plain JSON transparently.

package queue

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
)

func marshalSnapshot(s snapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	enc := make([]byte, base64.StdEncoding.EncodedLen(buf.Len()))
	base64.StdEncoding.Encode(enc, buf.Bytes())
	return enc, nil
}

func unmarshalSnapshot(data []byte) (snapshot, error) {
	var s snapshot
	dec := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(dec, data)
	if err != nil {
		return s, err
	}
	gz, err := gzip.NewReader(bytes.NewReader(dec[:n]))
	if err != nil {
		return s, err
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, err
	}
	return s, nil
}
