// Package asset stores and serves map background images.
package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"github.com/stargety/oasis-mapeditor/internal/typeid"
)

const (
	maxUploadSize = 10 << 20 // 10MB
	// maxDimension bounds either side of a background in pixels.
	maxDimension = 8192
)

var ErrNotFound = errors.New("asset not found")

// UploadResponse is returned from the upload endpoint. Width and Height
// let the client size the map to its background.
type UploadResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Type   string `json:"type"`
	Name   string `json:"name"`
}

// Handler serves asset upload and retrieval endpoints.
type Handler struct {
	dir string
}

// NewHandler creates the asset directory if needed.
func NewHandler(dir string) (*Handler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &Handler{dir: dir}, nil
}

// Upload handles POST /assets/upload (multipart form with "file" field).
// Images are re-encoded as PNG.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "file too large (max 10MB)", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/png") && !strings.HasPrefix(contentType, "image/jpeg") {
		http.Error(w, "only PNG and JPEG images are supported", http.StatusBadRequest)
		return
	}

	img, _, err := image.Decode(file)
	if err != nil {
		http.Error(w, "invalid image: "+err.Error(), http.StatusBadRequest)
		return
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxDimension || bounds.Dy() > maxDimension {
		http.Error(w, fmt.Sprintf("image larger than %dx%d", maxDimension, maxDimension), http.StatusBadRequest)
		return
	}

	assetID := typeid.NewAssetID()
	filename := assetID + ".png"
	if err := h.writePNG(filepath.Join(h.dir, filename), img); err != nil {
		slog.Error("save asset", "error", err, "asset", assetID)
		http.Error(w, "failed to save file", http.StatusInternalServerError)
		return
	}

	slog.Info("asset uploaded", "asset", assetID, "width", bounds.Dx(), "height", bounds.Dy())

	resp := UploadResponse{
		ID:     assetID,
		URL:    URL(assetID),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Type:   "png",
		Name:   header.Filename,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) writePNG(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create asset file: %w", err)
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		os.Remove(path)
		return fmt.Errorf("encode png: %w", err)
	}
	return out.Close()
}

// Serve returns an http.Handler that serves stored asset files with caching headers.
func (h *Handler) Serve() http.Handler {
	fs := http.FileServer(http.Dir(h.dir))
	return http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Asset IDs are unique, so files are immutable
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		fs.ServeHTTP(w, r)
	}))
}

// HandleDelete handles DELETE /assets/{assetId}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["assetId"]
	if err := typeid.Validate(assetID, typeid.PrefixAsset); err != nil {
		http.Error(w, "invalid asset id", http.StatusBadRequest)
		return
	}
	if err := h.Delete(assetID); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		slog.Error("delete asset", "error", err, "asset", assetID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes an asset file from disk.
func (h *Handler) Delete(assetID string) error {
	err := os.Remove(filepath.Join(h.dir, filepath.Base(assetID)+".png"))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, assetID)
	}
	return err
}

// URL is where an uploaded asset is served.
func URL(assetID string) string {
	return "/assets/" + assetID + ".png"
}
