package model

// ProjectConfig is the read-mostly configuration record for a monitored
// project. Created by the admin surface (out of scope here); referenced
// read-only by every worker through a short-TTL cache.
type ProjectConfig struct {
	ProjectID  string `json:"projectId"`
	Name       string `json:"name"`
	APIKey     string `json:"apiKey"`
	AlertEmail string `json:"alertEmail,omitempty"`
	AlertLevel int    `json:"alertLevel"` // 1, 2 or 3

	FeatureAIDiagnosis bool `json:"featureAiDiagnosis"`
	FeatureAggregation bool `json:"featureAggregation"`
	FeatureSourcemap   bool `json:"featureSourcemap"`

	SourcemapPath string `json:"sourcemapPath,omitempty"`
}
