package ingest

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lqt0707/monitor/internal/model"
	"github.com/lqt0707/monitor/internal/store"
)

const maxUploadMemory = 32 << 20 // buffer this much of a multipart body in memory before spilling to disk

// handleSourceUpload implements both POST /api/monitor/sourcemap and
// POST /api/monitor/sourcecode: the archive shape and bucket differ only
// by which form field and source version flag the client sets. Both
// land under the same per-(project, version) blob directory so the
// sourcemap worker can resolve a minified file against whichever
// version most recently uploaded it.
func (h *handlers) handleSourceUpload(w http.ResponseWriter, r *http.Request) {
	proj := projectFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.reject(w, http.StatusBadRequest, "invalid_body")
		return
	}

	version := r.FormValue("version")
	if version == "" {
		h.reject(w, http.StatusBadRequest, "missing_version")
		return
	}

	file, header, err := r.FormFile("archive")
	if err != nil {
		h.reject(w, http.StatusBadRequest, "missing_archive")
		return
	}
	defer file.Close()

	archiveType := archiveTypeFromFilename(header.Filename)
	if !archiveType.Valid() {
		h.reject(w, http.StatusBadRequest, "unsupported_archive_type")
		return
	}

	extracted, err := h.deps.Blobs.Extract(r.Context(), proj.ProjectID, version, archiveType, file)
	if err != nil {
		h.log.Warn("source archive extraction failed",
			zap.String("projectId", proj.ProjectID), zap.String("version", version), zap.Error(err))
		h.reject(w, http.StatusBadRequest, "invalid_archive")
		return
	}

	files := make([]model.SourceCodeFile, len(extracted))
	var total int64
	for i, ef := range extracted {
		files[i] = model.SourceCodeFile{Path: ef.RelPath, FileHash: ef.FileHash, Size: ef.Size}
		total += ef.Size
	}

	sv := &model.SourceCodeVersion{
		ProjectID:   proj.ProjectID,
		Version:     version,
		Files:       files,
		ArchiveSize: total,
		IsActive:    r.FormValue("activate") != "false",
		UploadedAt:  time.Now(),
	}
	if err := h.deps.SourceArchives.PutVersion(r.Context(), sv); err != nil {
		h.log.Error("persist source version failed", zap.Error(err))
		h.reject(w, http.StatusInternalServerError, "storage_error")
		return
	}

	if h.deps.Resolver != nil {
		h.deps.Resolver.Purge(proj.ProjectID)
	}

	writeJSON(w, http.StatusCreated, sv)
}

func archiveTypeFromFilename(name string) store.ArchiveType {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return store.ArchiveGz
	case strings.HasSuffix(lower, ".tar"):
		return store.ArchiveTar
	case strings.HasSuffix(lower, ".zip"):
		return store.ArchiveZip
	case strings.HasSuffix(lower, ".rar"):
		return store.ArchiveRar
	case strings.HasSuffix(lower, ".7z"):
		return store.ArchiveSevenZ
	default:
		return store.ArchiveType(strings.TrimPrefix(filepath.Ext(lower), "."))
	}
}
