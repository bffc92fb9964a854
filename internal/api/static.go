package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yegors/interview-scribe/pkg/logger"
)

// StaticFileHandler serves the upload UI from a directory, falling back to
// index.html for unknown paths so client-side routes resolve
type StaticFileHandler struct {
	root   string
	logger *logger.Logger
}

// NewStaticFileHandler creates a new static file handler
func NewStaticFileHandler(staticDir string, log *logger.Logger) *StaticFileHandler {
	root, err := filepath.Abs(staticDir)
	if err != nil {
		root = filepath.Clean(staticDir)
	}
	return &StaticFileHandler{
		root:   root,
		logger: log.Named("static-handler"),
	}
}

// resolve maps a URL path onto a file below root. ok is false for paths
// that escape root.
func (h *StaticFileHandler) resolve(urlPath string) (string, bool) {
	rel := strings.TrimPrefix(filepath.Clean("/"+urlPath), "/")
	full := filepath.Join(h.root, rel)
	if full != h.root && !strings.HasPrefix(full, h.root+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

// ServeHTTP serves static files
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	full, ok := h.resolve(r.URL.Path)
	if !ok {
		h.logger.Warn("Rejected path outside static root", logger.String("path", r.URL.Path))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		full = filepath.Join(full, "index.html")
		info, err = os.Stat(full)
	}
	if err != nil {
		if !os.IsNotExist(err) {
			h.logger.Error("Failed to stat file", logger.Error(err), logger.String("path", full))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		// unknown asset paths 404, anything else gets the app shell
		if filepath.Ext(full) != "" {
			http.NotFound(w, r)
			return
		}
		full = filepath.Join(h.root, "index.html")
		if _, err := os.Stat(full); err != nil {
			http.NotFound(w, r)
			return
		}
	}

	if strings.HasSuffix(full, "index.html") {
		w.Header().Set("Cache-Control", "no-cache")
	}

	h.logger.Debug("Serving static file",
		logger.String("requested_path", r.URL.Path),
		logger.String("file_path", full))

	http.ServeFile(w, r, full)
}
