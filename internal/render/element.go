package render

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/mnhsh/digital-capsule/internal/capsule"
)

type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaImage
	MediaVideo
	MediaAudio
	MediaLink
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	case MediaLink:
		return "link"
	default:
		return "none"
	}
}

const (
	DownloadLabel = "Download attachment"
	DefaultAlt    = "photo"
	CaptionSep    = " • "
)

// Element is the display form of a single entry.
type Element struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Posted  string `json:"posted"`
	Message string `json:"message"`
	Media   *Media `json:"media,omitempty"`
}

func (e Element) Caption() string {
	return e.Author + CaptionSep + e.Posted
}

type Media struct {
	Kind  MediaKind `json:"kind"`
	URL   string    `json:"url"`
	Alt   string    `json:"alt,omitempty"`
	Label string    `json:"label,omitempty"`
}

// URLResolver maps a stored attachment URL to one a browser can fetch.
type URLResolver interface {
	Resolve(ctx context.Context, raw string) (string, error)
}

type passthrough struct{}

func (passthrough) Resolve(_ context.Context, raw string) (string, error) {
	return raw, nil
}

var extensionKinds = map[string]MediaKind{
	".jpg": MediaImage, ".jpeg": MediaImage, ".png": MediaImage, ".gif": MediaImage,
	".webp": MediaImage, ".bmp": MediaImage, ".svg": MediaImage, ".heic": MediaImage,
	".avif": MediaImage,
	".mp4": MediaVideo, ".webm": MediaVideo, ".mov": MediaVideo, ".m4v": MediaVideo,
	".ogv": MediaVideo, ".mkv": MediaVideo,
	".mp3": MediaAudio, ".wav": MediaAudio, ".ogg": MediaAudio, ".oga": MediaAudio,
	".m4a": MediaAudio, ".aac": MediaAudio, ".flac": MediaAudio, ".opus": MediaAudio,
}

// KindOf picks how an attachment is shown. A declared type wins; the URL's
// extension is only consulted when nothing was declared.
func KindOf(fileType, fileURL string) MediaKind {
	if fileType = strings.ToLower(strings.TrimSpace(fileType)); fileType != "" {
		switch {
		case strings.HasPrefix(fileType, "image"):
			return MediaImage
		case strings.HasPrefix(fileType, "video"):
			return MediaVideo
		case strings.HasPrefix(fileType, "audio"):
			return MediaAudio
		default:
			return MediaLink
		}
	}
	if kind, ok := extensionKinds[extensionOf(fileURL)]; ok {
		return kind
	}
	return MediaLink
}

func extensionOf(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

func buildElement(ctx context.Context, id string, e capsule.Entry, tf TimeFormat, resolver URLResolver) (Element, error) {
	el := Element{
		ID:      id,
		Author:  e.Author(),
		Posted:  tf.Format(e.Timestamp),
		Message: e.Message,
	}
	if !e.HasAttachment() {
		return el, nil
	}

	src, err := resolver.Resolve(ctx, e.FileURL)
	if err != nil {
		return el, err
	}
	media := &Media{Kind: KindOf(e.FileType, e.FileURL), URL: src}
	switch media.Kind {
	case MediaImage:
		media.Alt = e.Name
		if media.Alt == "" {
			media.Alt = DefaultAlt
		}
	case MediaLink:
		media.Label = DownloadLabel
	}
	el.Media = media
	return el, nil
}
