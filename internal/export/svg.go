// Package export renders map documents as standalone SVG files.
package export

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/editor"
	"github.com/stargety/oasis-mapeditor/internal/shape"
)

// Options filters and decorates the output.
type Options struct {
	// Categories limits output to these categories; empty means all.
	Categories []shape.Category
	// NoBackground omits the background fill rectangle.
	NoBackground bool
}

func (o Options) includes(c shape.Category) bool {
	if len(o.Categories) == 0 {
		return true
	}
	for _, want := range o.Categories {
		if want == c {
			return true
		}
	}
	return false
}

// WriteSVG writes doc as an SVG whose user space is the map's world space.
// Shapes keep painter's order; each carries its ID, category and metadata
// as data attributes.
func WriteSVG(w io.Writer, doc *document.MapDocument, opts Options) error {
	bw := bufio.NewWriter(w)
	info := doc.Map

	fmt.Fprintf(bw, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		info.Width, info.Height, info.Width, info.Height)
	if info.Name != "" {
		fmt.Fprintf(bw, "  <title>%s</title>\n", escape(info.Name))
	}
	if !opts.NoBackground && info.Background != "" {
		fmt.Fprintf(bw, `  <rect width="%d" height="%d" fill="%s"/>`+"\n", info.Width, info.Height, escape(info.Background))
	}

	shapes := make([]shape.Shape, 0, len(doc.Shapes))
	for _, s := range doc.Shapes {
		if opts.includes(s.Category) {
			shapes = append(shapes, s)
		}
	}
	for _, cmd := range editor.CompileShapes(shapes, nil, 1) {
		s := findShape(shapes, cmd.ShapeID)
		fmt.Fprintf(bw, `  <path id="%s" data-category="%s" d="%s"`, escape(cmd.ShapeID), escape(string(s.Category)), PathData(cmd.Path))
		writePaint(bw, cmd)
		for _, k := range sortedKeys(s.Metadata) {
			fmt.Fprintf(bw, ` data-%s="%s"`, attrName(k), escape(s.Metadata[k]))
		}
		if name := s.Metadata["name"]; name != "" {
			fmt.Fprintf(bw, "><title>%s</title></path>\n", escape(name))
		} else {
			bw.WriteString("/>\n")
		}
	}

	bw.WriteString("</svg>\n")
	return bw.Flush()
}

// RenderSVG returns WriteSVG's output as bytes.
func RenderSVG(doc *document.MapDocument, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteSVG(&buf, doc, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PathData converts editor path commands to an SVG d attribute.
func PathData(path []editor.PathCommand) string {
	var sb strings.Builder
	for i, c := range path {
		if len(c) == 0 {
			continue
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		verb, _ := c[0].(string)
		sb.WriteString(verb)
		for _, v := range c[1:] {
			f, ok := v.(float64)
			if !ok {
				continue
			}
			sb.WriteByte(' ')
			sb.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		}
	}
	return sb.String()
}

func writePaint(w *bufio.Writer, cmd editor.DrawCommand) {
	fill := cmd.Fill
	if fill == "" {
		fill = "none"
	}
	fmt.Fprintf(w, ` fill="%s"`, escape(fill))
	if cmd.Stroke != "" && cmd.StrokeWidth > 0 {
		fmt.Fprintf(w, ` stroke="%s" stroke-width="%s"`, escape(cmd.Stroke), strconv.FormatFloat(cmd.StrokeWidth, 'f', -1, 64))
	}
	if cmd.Opacity > 0 && cmd.Opacity < 1 {
		fmt.Fprintf(w, ` opacity="%s"`, strconv.FormatFloat(cmd.Opacity, 'f', -1, 64))
	}
}

func findShape(shapes []shape.Shape, id string) shape.Shape {
	for _, s := range shapes {
		if s.ID == id {
			return s
		}
	}
	return shape.Shape{}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// attrName lowercases a metadata key and replaces anything outside
// [a-z0-9-] so it forms a valid data-* attribute.
func attrName(k string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, k)
}
