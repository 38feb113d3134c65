// Package model — report.go
//
// ReportDTO mirrors the JSON body POST /api/monitor/report accepts
// (internal/model.ReportDTO on the server side). Network.SendData builds
// one of these from a MonitorData and marshals it directly; the two
// types never need to agree on anything but their json tags.

package model

import "encoding/json"

// ReportType is the wire-level event type the intake endpoint expects.
type ReportType string

const (
	ReportJSError              ReportType = "jsError"
	ReportUnhandledRejection   ReportType = "unHandleRejection"
	ReportRequestError         ReportType = "reqError"
	ReportPerformanceInfoReady ReportType = "performanceInfoReady"
	ReportSlowHTTPRequest      ReportType = "slowHttpRequest"
)

// ReportDTO is the JSON body posted to the intake endpoint.
type ReportDTO struct {
	ProjectID      string     `json:"projectId"`
	Type           ReportType `json:"type"`
	PageURL        string     `json:"pageUrl,omitempty"`
	UserAgent      string     `json:"userAgent,omitempty"`
	ProjectVersion string     `json:"projectVersion,omitempty"`

	ErrorMessage string `json:"errorMessage,omitempty"`
	ErrorStack   string `json:"errorStack,omitempty"`
	Filename     string `json:"filename,omitempty"`
	Lineno       int    `json:"lineno,omitempty"`
	Colno        int    `json:"colno,omitempty"`
	UserID       string `json:"userId,omitempty"`

	RequestURL     string  `json:"requestUrl,omitempty"`
	RequestMethod  string  `json:"requestMethod,omitempty"`
	ResponseStatus int     `json:"responseStatus,omitempty"`
	Duration       float64 `json:"duration,omitempty"`

	PerformanceData json.RawMessage  `json:"performanceData,omitempty"`
	ExtraData       map[string]Value `json:"extraData,omitempty"`
}
