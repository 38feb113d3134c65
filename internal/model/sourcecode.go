package model

import "time"

// SourceCodeFile is one content-addressable file extracted from an upload.
type SourceCodeFile struct {
	Path     string `json:"path"`
	FileHash string `json:"fileHash"`
	Size     int64  `json:"size"`
}

// SourceCodeVersion uniquely identifies an uploaded source-code archive for
// a project. At most one version per project may be IsActive.
type SourceCodeVersion struct {
	ProjectID   string           `json:"projectId"`
	Version     string           `json:"version"`
	Files       []SourceCodeFile `json:"files"`
	ArchiveSize int64            `json:"archiveSize"`
	IsActive    bool             `json:"isActive"`
	UploadedAt  time.Time        `json:"uploadedAt"`
}
