package shape

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"

	"github.com/klauspost/compress/zlib"

	"github.com/apien/apien/internal/request"
)

// Mode is the single output choice for a response.
type Mode int

const (
	// ModeRaw writes the canonical JSON as is.
	ModeRaw Mode = iota
	// ModeCompressed writes the canonical JSON as a zlib stream.
	ModeCompressed
	// ModePretty writes indented JSON inside a <pre> block for browsers.
	ModePretty
)

// Content types and the payload encoding marker for compressed bodies.
const (
	ContentTypeJSON = "application/json"
	ContentTypeHTML = "text/html; charset=utf-8"
	EncodingZlib    = "zlib"
)

func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeCompressed:
		return "compressed"
	case ModePretty:
		return "pretty"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ModeFor derives the output mode from options. Pretty takes precedence, so
// pretty output is never compressed.
func ModeFor(opts request.OptionSet) Mode {
	switch {
	case opts.Pretty:
		return ModePretty
	case opts.Gzip:
		return ModeCompressed
	default:
		return ModeRaw
	}
}

// Rendered is a response body ready to write.
type Rendered struct {
	Body        []byte
	ContentType string
	// Encoding is set for compressed bodies; the content type stays JSON.
	Encoding string
}

// Render produces the wire body for canonical payload bytes.
func Render(mode Mode, canonical []byte) (Rendered, error) {
	switch mode {
	case ModeRaw:
		return Rendered{Body: canonical, ContentType: ContentTypeJSON}, nil

	case ModeCompressed:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(canonical); err != nil {
			return Rendered{}, fmt.Errorf("shape: compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return Rendered{}, fmt.Errorf("shape: compress: %w", err)
		}
		return Rendered{Body: buf.Bytes(), ContentType: ContentTypeJSON, Encoding: EncodingZlib}, nil

	case ModePretty:
		var indented bytes.Buffer
		if err := json.Indent(&indented, canonical, "", "    "); err != nil {
			return Rendered{}, fmt.Errorf("shape: indent: %w", err)
		}
		body := "<pre>" + html.EscapeString(indented.String()) + "</pre>"
		return Rendered{Body: []byte(body), ContentType: ContentTypeHTML}, nil

	default:
		return Rendered{}, fmt.Errorf("shape: unknown mode %d", int(mode))
	}
}
