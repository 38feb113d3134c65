// Package aggregation — level.go
//
// Error-level threshold table: derives the 1-4 severity band of an
// aggregation from its occurrence count and affected-user count.
// Thresholds are evaluated highest-first, mirroring the sequential
// threshold pattern used elsewhere in this codebase for severity mapping.
package aggregation

// Thresholds holds the occurrence/user-count boundaries for each error
// level. All counts must be non-negative and levels evaluated high to low.
type Thresholds struct {
	Level4Count, Level4Users int
	Level3Count, Level3Users int
	Level2Count, Level2Users int
}

// DefaultThresholds are the standard severity bands:
//
//	count>=100 or users>=50 -> 4
//	count>=50  or users>=20 -> 3
//	count>=10  or users>=5  -> 2
//	otherwise               -> 1
func DefaultThresholds() Thresholds {
	return Thresholds{
		Level4Count: 100, Level4Users: 50,
		Level3Count: 50, Level3Users: 20,
		Level2Count: 10, Level2Users: 5,
	}
}

// Level computes the 1-4 error level for the given occurrence/user counts.
func Level(count, affectedUsers int, t Thresholds) int {
	switch {
	case count >= t.Level4Count || affectedUsers >= t.Level4Users:
		return 4
	case count >= t.Level3Count || affectedUsers >= t.Level3Users:
		return 3
	case count >= t.Level2Count || affectedUsers >= t.Level2Users:
		return 2
	default:
		return 1
	}
}
