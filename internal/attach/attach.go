// Package attach loads image files for the next chat turn.
package attach

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/arin/llmchat/internal/history"
)

// MaxSize is the largest image accepted, in bytes.
const MaxSize = 20 << 20

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
)

// Supported lists the accepted MIME types.
var Supported = []string{"image/gif", "image/jpeg", "image/png", "image/webp"}

var byExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// Load reads and encodes the image at path. A leading "~/" is expanded.
func Load(path string) (*history.Image, int64, error) {
	path = expandHome(strings.Trim(strings.TrimSpace(path), `"'`))

	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("image not found: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxSize {
		return nil, 0, fmt.Errorf("%w (%.1f MB, max %d MB)", ErrTooLarge, float64(info.Size())/(1<<20), MaxSize>>20)
	}

	mimeType := Detect(path)
	if !slices.Contains(Supported, mimeType) {
		return nil, 0, fmt.Errorf("%w %q (supported: %s)", ErrUnsupportedType, mimeType, strings.Join(Supported, ", "))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read image: %w", err)
	}

	return &history.Image{
		Path: path,
		MIME: mimeType,
		Data: base64.StdEncoding.EncodeToString(raw),
	}, info.Size(), nil
}

// Detect guesses the MIME type from the file extension.
func Detect(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, _, err := mime.ParseMediaType(mime.TypeByExtension(ext)); err == nil && t != "" {
		return t
	}
	return byExtension[ext]
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
