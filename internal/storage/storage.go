package storage

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
)

// ObjectStore saves an image and returns a URL anyone can fetch it from
type ObjectStore interface {
	Put(ctx context.Context, data []byte, key, contentType string) (string, error)
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
	"image/heif": ".heif",
}

// Extension maps an image content type to a file extension, .jpg by default
func Extension(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = contentType
	}
	if ext, ok := extensions[strings.ToLower(mt)]; ok {
		return ext
	}
	return ".jpg"
}

// ObjectKey namespaces an object under its device: <device>/<id><ext>
func ObjectKey(deviceID, id, contentType string) string {
	return deviceID + "/" + id + Extension(contentType)
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("object key is empty")
	}
	if strings.HasPrefix(key, "/") || path.Clean(key) != key {
		return fmt.Errorf("invalid object key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("invalid object key %q", key)
		}
	}
	return nil
}

func escapeKey(key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}
