package identifier

import (
	"net/url"
	"path"
	"strings"
)

// Kind is the classification of a stored reference.
type Kind string

const (
	KindUnknown    Kind = "unknown"
	KindUploadID   Kind = "upload_id"
	KindAssetID    Kind = "asset_id"
	KindPlaybackID Kind = "playback_id"
)

// Identifier is a classified reference. Value keeps the original string; ID is
// the bare token with any URL wrapping removed.
type Identifier struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
	ID    string `json:"id,omitempty"`
}

const (
	DefaultStreamingHost        = "stream.mux.com"
	DefaultThumbnailURLTemplate = "https://image.mux.com/{playback_id}/thumbnail.jpg"
	DefaultMinLongIDLength      = 40
	DefaultUploadPrefix         = "upl"

	canonicalExtension  = ".m3u8"
	playbackPlaceholder = "{playback_id}"
)

// Rules holds the provider conventions classification depends on.
type Rules struct {
	StreamingHost        string
	ThumbnailURLTemplate string
	UploadPrefixes       []string
	MinLongIDLength      int
}

// DefaultRules returns the conventions used when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		StreamingHost:        DefaultStreamingHost,
		ThumbnailURLTemplate: DefaultThumbnailURLTemplate,
		UploadPrefixes:       []string{DefaultUploadPrefix},
		MinLongIDLength:      DefaultMinLongIDLength,
	}
}

// Classify applies DefaultRules.
func Classify(raw string) Identifier {
	return DefaultRules().Classify(raw)
}

// Classify never fails: shapes it does not recognize come back as KindUnknown.
// Upload ids are detected before the generic long-id rule because every upload
// id is also a long alphanumeric string, and a streaming URL wrapping an upload
// id is still an upload id.
func (r Rules) Classify(raw string) Identifier {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Identifier{Kind: KindUnknown, Value: raw}
	}
	if id, _, ok := r.streamingSegment(trimmed); ok {
		if r.looksLikeUploadID(id) {
			return Identifier{Kind: KindUploadID, Value: raw, ID: id}
		}
		return Identifier{Kind: KindPlaybackID, Value: raw, ID: id}
	}
	if len(trimmed) < r.minLength() || !isAlphanumeric(trimmed) {
		return Identifier{Kind: KindUnknown, Value: raw}
	}
	if r.hasUploadPrefix(trimmed) {
		return Identifier{Kind: KindUploadID, Value: raw, ID: trimmed}
	}
	return Identifier{Kind: KindAssetID, Value: raw, ID: trimmed}
}

// PlaybackURL builds the canonical streaming URL for a playback id.
func (r Rules) PlaybackURL(playbackID string) string {
	return "https://" + r.host() + "/" + strings.TrimSpace(playbackID) + canonicalExtension
}

// ThumbnailURL renders the thumbnail template, or "" when none is configured.
func (r Rules) ThumbnailURL(playbackID string) string {
	tmpl := strings.TrimSpace(r.ThumbnailURLTemplate)
	if tmpl == "" || strings.TrimSpace(playbackID) == "" {
		return ""
	}
	return strings.ReplaceAll(tmpl, playbackPlaceholder, strings.TrimSpace(playbackID))
}

// IsCanonicalURL reports whether value is exactly the canonical playback URL of
// a playback id. A canonical-looking URL wrapping an upload id is not
// canonical: that is the shape left behind by the upload/playback mix-up.
func (r Rules) IsCanonicalURL(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme != "https" || parsed.RawQuery != "" || parsed.Fragment != "" {
		return false
	}
	if !strings.EqualFold(parsed.Host, r.host()) {
		return false
	}
	id, ext, ok := r.streamingSegment(value)
	if !ok || ext != canonicalExtension || parsed.Path != "/"+id+canonicalExtension {
		return false
	}
	return !r.looksLikeUploadID(id)
}

// EmbeddedID extracts the id carried by a stored URL, whatever its extension.
// On the streaming host the first path segment wins; on other hosts the first
// segment shaped like a long provider id is used.
func (r Rules) EmbeddedID(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if id, _, ok := r.streamingSegment(value); ok {
		return id, true
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	for _, segment := range strings.Split(parsed.Path, "/") {
		candidate := stripExtension(segment)
		if len(candidate) >= r.minLength() && isAlphanumeric(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// streamingSegment finds "<host>/" inside value and returns the first path
// segment after it, split into id and extension.
func (r Rules) streamingSegment(value string) (string, string, bool) {
	host := strings.ToLower(r.host()) + "/"
	idx := strings.Index(strings.ToLower(value), host)
	if idx < 0 {
		return "", "", false
	}
	rest := value[idx+len(host):]
	if cut := strings.IndexAny(rest, "?#"); cut >= 0 {
		rest = rest[:cut]
	}
	segment, _, _ := strings.Cut(rest, "/")
	ext := path.Ext(segment)
	id := strings.TrimSuffix(segment, ext)
	if id == "" || !isAlphanumeric(id) {
		return "", "", false
	}
	return id, strings.ToLower(ext), true
}

func (r Rules) looksLikeUploadID(id string) bool {
	return len(id) >= r.minLength() && isAlphanumeric(id) && r.hasUploadPrefix(id)
}

func (r Rules) hasUploadPrefix(value string) bool {
	for _, prefix := range r.UploadPrefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && len(value) > len(prefix) && strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

func (r Rules) host() string {
	host := strings.TrimSpace(r.StreamingHost)
	if host == "" {
		return DefaultStreamingHost
	}
	return strings.TrimSuffix(host, "/")
}

func (r Rules) minLength() int {
	if r.MinLongIDLength <= 0 {
		return DefaultMinLongIDLength
	}
	return r.MinLongIDLength
}

func stripExtension(segment string) string {
	return strings.TrimSuffix(segment, path.Ext(segment))
}

func isAlphanumeric(value string) bool {
	if value == "" {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
