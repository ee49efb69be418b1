package content

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencds/mediaserver/internal/config"
)

// ContentSniffer is consulted when an extension has no configured MIME
// mapping (spec §4.5 step 4's "magic-style content sniffer"). No pack
// library provides byte-signature sniffing; the default implementation
// uses net/http.DetectContentType (see DESIGN.md for the stdlib
// justification).
type ContentSniffer interface {
	Sniff(path string) (string, error)
}

// DefaultSniffer reads the first 512 bytes and classifies via
// net/http.DetectContentType's built-in signature table.
type DefaultSniffer struct{}

func (DefaultSniffer) Sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

// classifyMimeType implements spec §4.5 step 4's extension→MIME lookup
// with a content-sniffer fallback, honoring ignore_unknown_extensions.
func classifyMimeType(cfg *config.Config, sniffer ContentSniffer, path string) (mimeType string, ignored bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if mt, ok := cfg.ExtensionMimeType(ext); ok {
		return mt, false
	}
	if cfg.Import.IgnoreUnknownExtension {
		return "", true
	}
	if sniffer == nil {
		return "application/octet-stream", false
	}
	mt, err := sniffer.Sniff(path)
	if err != nil || mt == "" {
		return "application/octet-stream", false
	}
	return mt, false
}

// classifyUpnpClass implements the MIME→upnp:class lookup, falling back
// through Config.MimeTypeUpnpClass's own major-type wildcard handling.
func classifyUpnpClass(cfg *config.Config, mimeType string) string {
	if class, ok := cfg.MimeTypeUpnpClass(mimeType); ok {
		return class
	}
	return "object.item"
}
