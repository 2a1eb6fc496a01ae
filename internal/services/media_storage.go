package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fieldsync/agent/internal/models"
)

// StoredMedia describes a file written by MediaStorageService
type StoredMedia struct {
	Path string // relative, forward slashes
	Hash string // sha256 of the content
	Size int64
}

// MediaStorageService keeps captured photos on disk in Year/Month folders
type MediaStorageService struct {
	basePath          string
	allowedExtensions map[string]bool
	maxFileSizeBytes  int64
}

// NewMediaStorageService creates a new MediaStorageService
func NewMediaStorageService(basePath string, allowedExtensions []string, maxFileSizeMB int64) (*MediaStorageService, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, err
	}

	if len(allowedExtensions) == 0 {
		allowedExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".heic", ".heif"}
	}
	extSet := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		extSet[strings.ToLower(ext)] = true
	}

	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 25
	}

	return &MediaStorageService{
		basePath:          absPath,
		allowedExtensions: extSet,
		maxFileSizeBytes:  maxFileSizeMB * 1024 * 1024,
	}, nil
}

// BasePath returns the absolute storage root
func (s *MediaStorageService) BasePath() string {
	return s.basePath
}

// Allowed reports whether the file extension is one the store accepts
func (s *MediaStorageService) Allowed(name string) bool {
	return s.allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// Store writes the content under YYYY/MM of capturedAt and hashes it on the way
func (s *MediaStorageService) Store(r io.Reader, originalFilename string, capturedAt time.Time) (*StoredMedia, error) {
	filename := models.SanitizeFilename(originalFilename)
	ext := strings.ToLower(filepath.Ext(filename))
	if !s.allowedExtensions[ext] {
		return nil, models.ErrInvalidExtension
	}

	relativeFolder := filepath.Join(capturedAt.Format("2006"), capturedAt.Format("01"))
	absoluteFolder := filepath.Join(s.basePath, relativeFolder)
	if err := os.MkdirAll(absoluteFolder, 0755); err != nil {
		return nil, err
	}

	relativePath := filepath.Join(relativeFolder, uniqueFilename(filename, absoluteFolder))
	absolutePath := filepath.Join(s.basePath, relativePath)
	if !s.within(absolutePath) {
		return nil, models.ErrPathTraversal
	}

	file, err := os.OpenFile(absolutePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	written, err := io.Copy(io.MultiWriter(file, h), io.LimitReader(r, s.maxFileSizeBytes+1))
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > s.maxFileSizeBytes {
		err = models.ErrFileTooLarge
	}
	if err == nil && written == 0 {
		err = models.ErrEmptyImage
	}
	if err != nil {
		os.Remove(absolutePath)
		return nil, err
	}

	return &StoredMedia{
		Path: filepath.ToSlash(relativePath),
		Hash: hex.EncodeToString(h.Sum(nil)),
		Size: written,
	}, nil
}

// Delete removes a file by its stored path
func (s *MediaStorageService) Delete(storedPath string) bool {
	fullPath, err := s.GetFullPath(storedPath)
	if err != nil {
		return false
	}
	return os.Remove(fullPath) == nil
}

// GetFullPath returns the absolute path for a stored path
func (s *MediaStorageService) GetFullPath(storedPath string) (string, error) {
	if strings.TrimSpace(storedPath) == "" {
		return "", fmt.Errorf("stored path cannot be empty")
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(storedPath)))
	if err != nil {
		return "", err
	}
	if !s.within(absPath) {
		return "", models.ErrPathTraversal
	}
	return absPath, nil
}

// Exists checks if a file exists at the given stored path
func (s *MediaStorageService) Exists(storedPath string) bool {
	fullPath, err := s.GetFullPath(storedPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

func (s *MediaStorageService) within(absPath string) bool {
	return absPath == s.basePath || strings.HasPrefix(absPath, s.basePath+string(os.PathSeparator))
}

// uniqueFilename appends a counter when the name is taken
func uniqueFilename(filename, folderPath string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	ext := filepath.Ext(filename)
	candidate := filename

	for counter := 1; ; counter++ {
		if _, err := os.Stat(filepath.Join(folderPath, candidate)); os.IsNotExist(err) {
			return candidate
		}
		if counter > 9999 {
			return fmt.Sprintf("%s_%d%s", base, time.Now().UnixNano(), ext)
		}
		candidate = fmt.Sprintf("%s_%03d%s", base, counter, ext)
	}
}

// moveFile renames src to dst, copying when they are on different devices
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}
