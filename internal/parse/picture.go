package parse

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrNoPicture means the profile has no reference picture.
	ErrNoPicture = errors.New("no profile picture")
	// ErrRemotePicture means the picture is a URL; only local files are used.
	ErrRemotePicture = errors.New("profile picture is a remote URL")
	// ErrInvalidPicture means the path escapes the picture directory.
	ErrInvalidPicture = errors.New("invalid profile picture path")
)

// PicturePath normalises a stored profile picture reference into a path
// relative to the picture directory. Uploads sometimes store the directory
// prefix as part of the value; it is stripped once.
func PicturePath(raw, prefix string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrNoPicture
	}

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return "", ErrRemotePicture
	}

	s = strings.ReplaceAll(s, "\\", "/")
	if prefix != "" {
		p := strings.ReplaceAll(prefix, "\\", "/")
		s = strings.TrimPrefix(s, p)
		// Also accept the prefix without its trailing slash.
		s = strings.TrimPrefix(s, strings.TrimSuffix(p, "/")+"/")
	}

	if strings.HasPrefix(s, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidPicture, raw)
	}

	cleaned := path.Clean(s)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPicture, raw)
	}
	return cleaned, nil
}
