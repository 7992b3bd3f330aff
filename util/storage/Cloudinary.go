package storage

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/MaikZ91/liebefeld/config"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gabriel-vasile/mimetype"
)

// Upload folders.
const (
	FolderEvents  = "events"
	FolderAvatars = "avatars"
)

var (
	ErrNotConfigured = errors.New("object storage is not configured")
	ErrNotAnImage    = errors.New("upload is not an image")
)

type Cloudinary struct {
	CLD *cloudinary.Cloudinary
}

func NewCloudinary(cfg *config.Config) *Cloudinary {
	if cfg.CloudinaryCloudName == "" {
		log.Println("[Storage]: cloudinary credentials missing, uploads disabled")
		return &Cloudinary{}
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	if err != nil {
		log.Fatalf("Failed to initialize Cloudinary: %v", err)
	}

	return &Cloudinary{CLD: cld}
}

// ValidFolder reports whether folder is one of the known upload folders.
func ValidFolder(folder string) bool {
	return folder == FolderEvents || folder == FolderAvatars
}

// UploadImage stores the image and returns its public https URL.
func (c *Cloudinary) UploadImage(ctx context.Context, file io.Reader, folder string) (string, error) {
	if c == nil || c.CLD == nil {
		return "", ErrNotConfigured
	}
	resp, err := c.CLD.Upload.Upload(ctx, file, uploader.UploadParams{Folder: folder})
	if err != nil {
		return "", err
	}
	return resp.SecureURL, nil
}

// DetectImage sniffs the content type of file and rewinds it. Anything that is
// not an image yields ErrNotAnImage.
func DetectImage(file io.ReadSeeker) (string, error) {
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return mtype.String(), ErrNotAnImage
	}
	return mtype.String(), nil
}
