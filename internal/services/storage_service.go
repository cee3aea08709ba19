package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxAttachmentBytes caps chat uploads at 10 MiB.
const MaxAttachmentBytes = 10 << 20

// StoredFile is the reference a completed upload hands back; the URL is
// relative to the serving host and gets qualified client-side.
type StoredFile struct {
	URL          string `json:"url"`
	MimeType     string `json:"type"`
	OriginalName string `json:"originalName"`
}

type StorageService interface {
	Save(header *multipart.FileHeader) (*StoredFile, error)
}

// LocalStorageService persists chat attachments to a content directory on
// disk under collision-resistant, timestamp-prefixed names.
type LocalStorageService struct {
	dir          string
	publicPrefix string
}

func NewLocalStorageService(dir, publicPrefix string) *LocalStorageService {
	return &LocalStorageService{
		dir:          dir,
		publicPrefix: "/" + strings.Trim(publicPrefix, "/"),
	}
}

var allowedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	".mp3": {}, ".wav": {}, ".ogg": {}, ".m4a": {},
	".mp4": {}, ".mov": {}, ".webm": {},
	".pdf": {},
}

func allowedMimeType(mimeType string) bool {
	switch {
	case strings.HasPrefix(mimeType, "image/"),
		strings.HasPrefix(mimeType, "audio/"),
		strings.HasPrefix(mimeType, "video/"):
		return true
	case mimeType == "application/pdf":
		return true
	default:
		return false
	}
}

// Save validates the upload against the size cap and the type allow-list
// (extension and declared MIME type both have to pass) and writes it to the
// content directory.
func (s *LocalStorageService) Save(header *multipart.FileHeader) (*StoredFile, error) {
	if header.Size > MaxAttachmentBytes {
		return nil, ErrPayloadTooLarge
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, ErrUnsupportedType
	}

	mimeType := header.Header.Get("Content-Type")
	if !allowedMimeType(mimeType) {
		return nil, ErrUnsupportedType
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	name := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString()[:8], ext)

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}

	return &StoredFile{
		URL:          path.Join(s.publicPrefix, name),
		MimeType:     mimeType,
		OriginalName: header.Filename,
	}, nil
}
