// Package adapter — filter.go
//
// The feedback-loop filter contract. Any capability that might observe
// the SDK's own upload traffic must run events through these checks
// first.

package adapter

import "strings"

// telemetryPathPrefixes are the endpoints performance capture must never
// record a sample for.
var telemetryPathPrefixes = []string{
	"/api/monitor/",
	"/api/error-logs",
	"/api/health",
}

// sdkSymbols are substrings that identify the SDK's own code in a stack or
// message, used to drop self-referential error reports.
var sdkSymbols = []string{
	"MonitorSDK",
	"PlatformAdapter",
	"sendData",
	"transformDataToReportDto",
}

// IsTelemetryURL reports whether url targets one of the SDK's own upload
// endpoints and must be excluded from performance capture.
func IsTelemetryURL(url string) bool {
	for _, prefix := range telemetryPathPrefixes {
		if strings.Contains(url, prefix) {
			return true
		}
	}
	return false
}

// IsSelfError reports whether message or stack references the SDK's own
// internals and must be dropped to avoid a feedback loop.
func IsSelfError(message, stack string) bool {
	haystack := message + "\n" + stack
	for _, sym := range sdkSymbols {
		if strings.Contains(haystack, sym) {
			return true
		}
	}
	return false
}
