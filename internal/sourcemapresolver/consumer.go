// Package sourcemapresolver — consumer.go
//
// Consumer parses a Source Map v3 JSON document and answers position
// lookups. Mirrors the shape of the SDK's resolved SourceLocation so a
// successful lookup can be assigned directly onto an aggregation.

package sourcemapresolver

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type rawSourceMap struct {
	Version        int      `json:"version"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// mapping is one decoded entry: generated position -> original position.
type mapping struct {
	genLine, genCol int
	srcIdx          int
	srcLine, srcCol int
	nameIdx         int
	hasName         bool
}

// Consumer answers (line, column) -> original source lookups for one
// parsed source map.
type Consumer struct {
	sources        []string
	sourcesContent []string
	names          []string
	mappings       []mapping // sorted by (genLine, genCol)
}

// Position is a resolved original-source location.
type Position struct {
	Source        string
	Line          int
	Column        int
	Name          string
	SourceContent string
}

// Parse decodes a Source Map v3 document.
func Parse(data []byte) (*Consumer, error) {
	var raw rawSourceMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode source map json: %w", err)
	}
	if raw.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", raw.Version)
	}

	c := &Consumer{
		sources:        raw.Sources,
		sourcesContent: raw.SourcesContent,
		names:          raw.Names,
	}

	genLine := 0
	srcIdx, srcLine, srcCol, nameIdx := 0, 0, 0, 0
	for _, lineStr := range strings.Split(raw.Mappings, ";") {
		genCol := 0
		if lineStr != "" {
			for _, seg := range strings.Split(lineStr, ",") {
				if seg == "" {
					continue
				}
				vals, err := decodeVLQSegment(seg)
				if err != nil {
					return nil, fmt.Errorf("decode mapping segment %q: %w", seg, err)
				}
				if len(vals) < 1 {
					continue
				}
				genCol += vals[0]
				m := mapping{genLine: genLine, genCol: genCol}
				if len(vals) >= 4 {
					srcIdx += vals[1]
					srcLine += vals[2]
					srcCol += vals[3]
					m.srcIdx, m.srcLine, m.srcCol = srcIdx, srcLine, srcCol
					if len(vals) >= 5 {
						nameIdx += vals[4]
						m.nameIdx = nameIdx
						m.hasName = true
					}
					c.mappings = append(c.mappings, m)
				}
			}
		}
		genLine++
	}

	sort.Slice(c.mappings, func(i, j int) bool {
		if c.mappings[i].genLine != c.mappings[j].genLine {
			return c.mappings[i].genLine < c.mappings[j].genLine
		}
		return c.mappings[i].genCol < c.mappings[j].genCol
	})

	return c, nil
}

// Resolve finds the original position for a 1-based line and 0-based
// column in the generated file, returning the mapping with the greatest
// genCol not exceeding the query on the matching line, or nil.
func (c *Consumer) Resolve(line, col int) *Position {
	genLine := line - 1
	idx := sort.Search(len(c.mappings), func(i int) bool {
		m := c.mappings[i]
		return m.genLine > genLine || (m.genLine == genLine && m.genCol > col)
	})
	if idx == 0 {
		return nil
	}
	m := c.mappings[idx-1]
	if m.genLine != genLine {
		return nil
	}

	pos := &Position{
		Line:   m.srcLine + 1,
		Column: m.srcCol,
	}
	if m.srcIdx >= 0 && m.srcIdx < len(c.sources) {
		pos.Source = c.sources[m.srcIdx]
	}
	if m.srcIdx >= 0 && m.srcIdx < len(c.sourcesContent) {
		pos.SourceContent = c.sourcesContent[m.srcIdx]
	}
	if m.hasName && m.nameIdx >= 0 && m.nameIdx < len(c.names) {
		pos.Name = c.names[m.nameIdx]
	}
	return pos
}
