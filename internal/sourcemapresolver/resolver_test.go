package sourcemapresolver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
)

// simpleMap builds a one-line source map whose single segment maps
// generated column 0 back to src/app.ts line 0 column 0.
func simpleMap(t *testing.T) []byte {
	t.Helper()
	doc := rawSourceMap{
		Version:        3,
		Sources:        []string{"src/app.ts"},
		SourcesContent: []string{"export const x = 1"},
		Names:          nil,
		Mappings:       "AAAA",
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestConsumer_ResolveBasicMapping(t *testing.T) {
	c, err := Parse(simpleMap(t))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pos := c.Resolve(1, 1234)
	if pos == nil {
		t.Fatalf("expected a resolved position")
	}
	if pos.Source != "src/app.ts" {
		t.Fatalf("unexpected source: %q", pos.Source)
	}
	if pos.Line < 1 || pos.Column < 0 {
		t.Fatalf("unexpected position: %+v", pos)
	}
}

func TestCandidateNames_Heuristics(t *testing.T) {
	names := candidateNames("build/app.min.js")
	want := []string{"build/app.min.js.map", "app.min.js.map", "app.min.js.map", "app.min.js.js.map"}
	// dedup collapses the repeated entries; just check the first heuristic is present.
	found := false
	for _, n := range names {
		if n == want[0] {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %q among candidates, got %v", want[0], names)
	}
}

type fakeOpener struct {
	files map[string][]byte
}

func (f *fakeOpener) Open(projectID, version, relPath string) (io.ReadCloser, error) {
	data, ok := f.files[relPath]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestScenario_S5_SourceMapResolution(t *testing.T) {
	opener := &fakeOpener{files: map[string][]byte{
		"app.min.js.map": simpleMap(t),
	}}
	r, err := New(opener, 0, 0, nil)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	pos, err := r.Resolve(context.Background(), "p1", "v1", "app.min.js", 1, 1234)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pos == nil || pos.Source != "src/app.ts" || pos.Line < 1 || pos.Column < 0 {
		t.Fatalf("unexpected resolve result: %+v", pos)
	}

	// second call should hit cache, not the opener, for the same key.
	opener.files = nil
	pos2, err := r.Resolve(context.Background(), "p1", "v1", "app.min.js", 1, 1234)
	if err != nil || pos2 == nil || pos2.Source != "src/app.ts" {
		t.Fatalf("expected cached resolve to succeed: %+v %v", pos2, err)
	}
}

func TestResolver_MissingMapReturnsNilNotError(t *testing.T) {
	opener := &fakeOpener{files: map[string][]byte{}}
	r, err := New(opener, 0, 0, nil)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	pos, err := r.Resolve(context.Background(), "p1", "v1", "missing.js", 1, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if pos != nil {
		t.Fatalf("expected nil position for missing map, got %+v", pos)
	}
}
