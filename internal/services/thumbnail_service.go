package services

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
)

const (
	previewMaxDim  = 480
	previewQuality = 80
)

// ThumbnailService writes preview images next to stored photos
type ThumbnailService struct {
	basePath string
}

// NewThumbnailService creates a new ThumbnailService
func NewThumbnailService(basePath string) *ThumbnailService {
	return &ThumbnailService{basePath: basePath}
}

// GeneratePreview writes {dir}/.thumbs/{recordID}_preview.jpg and returns its relative path
func (s *ThumbnailService) GeneratePreview(imageData []byte, recordID, storedPath string, orientation int) (string, error) {
	img, err := decodeImage(imageData, storedPath)
	if err != nil {
		return "", err
	}

	img = applyOrientation(img, orientation)
	preview := imaging.Fit(img, previewMaxDim, previewMaxDim, imaging.Lanczos)

	thumbDir := filepath.Join(filepath.Dir(filepath.FromSlash(storedPath)), ".thumbs")
	if err := os.MkdirAll(filepath.Join(s.basePath, thumbDir), 0755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	relativePath := filepath.Join(thumbDir, recordID+"_preview.jpg")
	fullPath := filepath.Join(s.basePath, relativePath)

	out, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	if err := imaging.Encode(out, preview, imaging.JPEG, imaging.JPEGQuality(previewQuality)); err != nil {
		out.Close()
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	return filepath.ToSlash(relativePath), nil
}

func decodeImage(data []byte, name string) (image.Image, error) {
	if IsHEIC(name) {
		img, err := goheif.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode HEIC image: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// applyOrientation corrects image orientation based on EXIF data
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// IsHEIC checks if the file is HEIC/HEIF format
func IsHEIC(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".heic" || ext == ".heif"
}
