// Package model — report.go
//
// ReportDTO is the wire shape the intake endpoint accepts. It is
// deliberately flatter than MonitorData: the SDK's richer error taxonomy is
// collapsed into the backend's five-member Type enumeration before upload.

package model

import "encoding/json"

// ReportType is the backend-side event type enumeration.
type ReportType string

const (
	ReportJSError              ReportType = "jsError"
	ReportUnhandledRejection   ReportType = "unHandleRejection"
	ReportRequestError         ReportType = "reqError"
	ReportPerformanceInfoReady ReportType = "performanceInfoReady"
	ReportSlowHTTPRequest      ReportType = "slowHttpRequest"
)

func (t ReportType) Valid() bool {
	switch t {
	case ReportJSError, ReportUnhandledRejection, ReportRequestError,
		ReportPerformanceInfoReady, ReportSlowHTTPRequest:
		return true
	default:
		return false
	}
}

// ReportDTO mirrors the JSON body accepted by POST /api/monitor/report.
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

// Validate checks the required fields and rejects unknown types. It does
// not perform project existence checks — that is a repository lookup the
// intake handler performs separately.
func (r *ReportDTO) Validate() error {
	if r.ProjectID == "" {
		return errMissingField
	}
	if !r.Type.Valid() {
		return errInvalidVariant
	}
	return nil
}
