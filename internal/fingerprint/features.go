// Package fingerprint — features.go
//
// Feature extraction for the MinHash fingerprint.
//
// An error is reduced to a bounded set of string features before hashing:
//
//	type:<ErrorType>                     if known
//	msg:<token>                          cleaned message tokens
//	stack:<normalized line>              up to maxStackDepth lines
//	func:<name>                          when a frame carries a function name
//	file:<basename>                      top stack frame file
//	dir:<parent>                         top stack frame parent directory
//
// The feature set is capped at maxFeatures, with a per-category budget
// derived from the category weights {message:0.4, stack:0.4, file:0.15,
// type:0.05}.

package fingerprint

import (
	"regexp"
	"strings"
)

// Weights assigns a share of the feature budget to each category.
type Weights struct {
	Message float64
	Stack   float64
	File    float64
	Type    float64
}

// DefaultWeights is the standard message/stack/file/type category split.
func DefaultWeights() Weights {
	return Weights{Message: 0.4, Stack: 0.4, File: 0.15, Type: 0.05}
}

// Options bounds feature extraction.
type Options struct {
	MaxStackDepth int
	MaxFeatures   int
	Weights       Weights
}

// DefaultOptions returns the extraction bounds used in production.
func DefaultOptions() Options {
	return Options{MaxStackDepth: 10, MaxFeatures: 50, Weights: DefaultWeights()}
}

// Input is the minimal shape fingerprinting needs from an error event.
type Input struct {
	Type    string
	Message string
	Stack   string
	File    string
}

var (
	reNumber    = regexp.MustCompile(`\d+`)
	reURL       = regexp.MustCompile(`https?://\S+`)
	rePath      = regexp.MustCompile(`(?:/[\w.\-]+)+`)
	reTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?`)
	reUUID      = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reNonWord   = regexp.MustCompile(`[^\w]+`)
	reLineCol   = regexp.MustCompile(`:\d+:\d+`)
	reStackLoc  = regexp.MustCompile(`(?:https?://\S+?/|/[\w.\-]*/)`)
	reFuncName  = regexp.MustCompile(`at\s+([\w.$]+)\s*\(`)
)

// Extract builds the ordered, capped feature list for in.
func Extract(in Input, opt Options) []string {
	budget := featureBudget(opt)

	var feats []string
	if in.Type != "" {
		feats = append(feats, "type:"+in.Type)
	}

	msgFeats := cleanMessage(in.Message)
	feats = append(feats, capped("msg:", msgFeats, budget.message)...)

	stackFeats, funcFeats := normalizeStack(in.Stack, opt.MaxStackDepth)
	feats = append(feats, capped("stack:", stackFeats, budget.stack)...)
	feats = append(feats, capped("func:", funcFeats, budget.stack)...)

	if in.File != "" {
		base, dir := splitPath(in.File)
		if base != "" {
			feats = append(feats, "file:"+base)
		}
		if dir != "" {
			feats = append(feats, "dir:"+dir)
		}
	} else if top := firstStackFile(in.Stack); top != "" {
		base, dir := splitPath(top)
		if base != "" {
			feats = append(feats, "file:"+base)
		}
		if dir != "" {
			feats = append(feats, "dir:"+dir)
		}
	}

	if len(feats) > opt.MaxFeatures {
		feats = feats[:opt.MaxFeatures]
	}
	return feats
}

type budget struct {
	message int
	stack   int
	file    int
	typ     int
}

func featureBudget(opt Options) budget {
	total := float64(opt.MaxFeatures)
	w := opt.Weights
	return budget{
		message: int(total * w.Message),
		stack:   int(total * w.Stack),
		file:    int(total * w.File),
		typ:     int(total * w.Type),
	}
}

func capped(prefix string, items []string, max int) []string {
	if max <= 0 {
		max = len(items)
	}
	if len(items) > max {
		items = items[:max]
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = prefix + it
	}
	return out
}

// cleanMessage lowercases the message, substitutes volatile substrings with
// stable placeholders, splits on non-word runs, and drops tokens of length
// <= 2.
func cleanMessage(msg string) []string {
	s := strings.ToLower(msg)
	s = reUUID.ReplaceAllString(s, "uuid")
	s = reTimestamp.ReplaceAllString(s, "timestamp")
	s = reURL.ReplaceAllString(s, "url")
	s = rePath.ReplaceAllString(s, "path")
	s = reNumber.ReplaceAllString(s, "num")
	tokens := reNonWord.Split(s, -1)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) > 2 {
			out = append(out, t)
		}
	}
	return out
}

// normalizeStack strips URL/path prefixes and line:col pairs from up to
// maxDepth stack lines, collapsing whitespace, and separately collects any
// recoverable function names.
func normalizeStack(stack string, maxDepth int) (lines []string, funcs []string) {
	if stack == "" {
		return nil, nil
	}
	raw := strings.Split(stack, "\n")
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(lines) >= maxDepth {
			break
		}
		if m := reFuncName.FindStringSubmatch(line); len(m) == 2 {
			funcs = append(funcs, m[1])
		}
		norm := reStackLoc.ReplaceAllString(line, "")
		norm = reLineCol.ReplaceAllString(norm, ":LINE:COL")
		norm = strings.Join(strings.Fields(norm), " ")
		lines = append(lines, norm)
	}
	return lines, funcs
}

// splitPath returns the basename and parent directory component of p.
func splitPath(p string) (base, dir string) {
	p = strings.TrimRight(p, "/")
	idx := strings.LastIndexAny(p, "/\\")
	if idx < 0 {
		return p, ""
	}
	base = p[idx+1:]
	rest := p[:idx]
	dirIdx := strings.LastIndexAny(rest, "/\\")
	if dirIdx < 0 {
		dir = rest
	} else {
		dir = rest[dirIdx+1:]
	}
	return base, dir
}

// firstStackFile extracts a plausible file path from the first stack line,
// used when the event carries no explicit filename.
func firstStackFile(stack string) string {
	if stack == "" {
		return ""
	}
	first := strings.SplitN(stack, "\n", 2)[0]
	m := rePath.FindString(first)
	return m
}
