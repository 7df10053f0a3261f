package api

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kalambet/stockwise/internal/tools"
)

const maxUploadSize = 10 << 20 // 10MB

// DetectResponse is the answer to an image upload.
type DetectResponse struct {
	Status     string         `json:"status"`
	Filename   string         `json:"filename"`
	Prediction any            `json:"prediction"`
	Confidence *float64       `json:"confidence"`
	Metadata   map[string]any `json:"metadata"`
}

// handleDetect stores the uploaded image in a temporary file and runs the
// product classifier on its path. The file is removed before returning.
func handleDetect(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Inference == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "inference service not configured")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required: %v", err)
			return
		}
		defer file.Close()

		path, err := saveUpload(file, header.Filename)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving upload: %v", err)
			return
		}
		defer os.Remove(path)

		rec, err := deps.Inference.Predict(r.Context(), tools.ClassifierModel, path, false)
		if err != nil {
			slog.Warn("detect failed", "filename", header.Filename, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		writeJSON(w, http.StatusOK, DetectResponse{
			Status:     "success",
			Filename:   header.Filename,
			Prediction: rec.Prediction,
			Confidence: rec.Confidence,
			Metadata:   rec.Metadata,
		})
	}
}

// saveUpload copies src into a temp file whose name keeps the upload's base
// name and extension.
func saveUpload(src io.Reader, filename string) (string, error) {
	base := sanitizeFilename(filepath.Base(filename))
	f, err := os.CreateTemp("", "detect-*-"+base)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func sanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}
