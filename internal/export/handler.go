package export

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/shape"
)

const maxDocumentSize = 8 << 20 // 8MB

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// ExportSVG handles POST /export/svg with a map document as the body.
// ?category= may be repeated to filter shapes; ?background=false drops the
// background.
func (h *Handler) ExportSVG(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentSize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "request too large", http.StatusBadRequest)
		return
	}

	doc, err := document.Parse(data)
	if err != nil {
		http.Error(w, "invalid document: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := doc.Validate(); err != nil {
		http.Error(w, "invalid document: "+err.Error(), http.StatusBadRequest)
		return
	}

	opts, err := ParseOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	Respond(w, doc, opts)
}

// ParseOptions reads export options from the query string.
func ParseOptions(r *http.Request) (Options, error) {
	var opts Options
	q := r.URL.Query()
	for _, raw := range q["category"] {
		c, err := shape.ParseCategory(raw)
		if err != nil {
			return Options{}, err
		}
		opts.Categories = append(opts.Categories, c)
	}
	opts.NoBackground = q.Get("background") == "false"
	return opts, nil
}

// Respond writes doc as an SVG attachment named after the map.
func Respond(w http.ResponseWriter, doc *document.MapDocument, opts Options) {
	out, err := RenderSVG(doc, opts)
	if err != nil {
		slog.Error("render svg", "error", err, "map", doc.Map.ID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.svg"`, FileName(doc.Map.Name)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// FileName turns a map name into a safe file name stem.
func FileName(name string) string {
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, strings.TrimSpace(name))
	if strings.Trim(name, "-") == "" {
		return "map"
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
