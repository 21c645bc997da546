package chatsync

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"neuralchat/models"
	wire "neuralchat/protocol"
)

// Upload limits, checked before anything leaves the client.
const (
	MaxImageSize = 5 << 20
	MaxFileSize  = 20 << 20
)

var (
	ErrFileTooLarge = errors.New("file too large")
	ErrNotAFile     = errors.New("not a regular file")
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// InspectFile stats path, detects its mime type and kind, and enforces the
// size limit of that kind.
func InspectFile(path string) (LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return LocalFile{}, err
	}
	if !info.Mode().IsRegular() {
		return LocalFile{}, fmt.Errorf("%s: %w", path, ErrNotAFile)
	}

	mimeType, err := detectMime(path)
	if err != nil {
		return LocalFile{}, err
	}

	file := LocalFile{
		Path:     path,
		Name:     filepath.Base(path),
		Size:     info.Size(),
		Kind:     models.KindFile,
		MimeType: mimeType,
	}
	if strings.HasPrefix(mimeType, "image/") {
		file.Kind = models.KindImage
	}

	switch {
	case file.Kind == models.KindImage && file.Size > MaxImageSize:
		return LocalFile{}, fmt.Errorf("%w: maximum size for images is 5MB", ErrFileTooLarge)
	case file.Size > MaxFileSize:
		return LocalFile{}, fmt.Errorf("%w: maximum size for files is 20MB", ErrFileTooLarge)
	}
	return file, nil
}

func detectMime(path string) (string, error) {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

// SanitizeFileName replaces everything outside [a-zA-Z0-9.-] with '_'.
func SanitizeFileName(name string) string {
	return unsafeName.ReplaceAllString(name, "_")
}

// StorageKey is owner/<unix millis>_<sanitized name>. The owner prefix is
// what the store checks uploads against.
func StorageKey(owner string, now time.Time, name string) string {
	return owner + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + SanitizeFileName(name)
}

// BucketFor picks the bucket an attachment kind is stored in.
func BucketFor(kind string) string {
	if kind == models.KindImage {
		return wire.BucketImages
	}
	return wire.BucketFiles
}
