package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"
)

// maxDocumentSize caps collateral and KYC uploads at 10MB
const maxDocumentSize = 10 * 1024 * 1024

// allowedContentTypes lists the MIME types accepted for loan documents.
// Collateral evidence arrives as scans or phone photos, so PDFs and the
// common image formats cover what officers actually upload.
var allowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
}

// LocalStorage keeps loan documents on the local filesystem, grouped by
// month under the base path (e.g. "loans/2026/01"). Paths stored on loans
// are always relative to the base so the disk location can move.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the base directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// monthDir resolves the bucket a new document lands in, creating it on
// first use
func (s *LocalStorage) monthDir(subDir string) (string, error) {
	dir := filepath.Join(s.basePath, subDir, time.Now().Format("2006/01"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	return dir, nil
}

// Upload saves an uploaded document and returns its relative path. The
// stored name is a random ID so client filenames never leak into URLs.
func (s *LocalStorage) Upload(file multipart.File, header *multipart.FileHeader, subDir string) (string, error) {
	dir, err := s.monthDir(subDir)
	if err != nil {
		return "", err
	}

	filePath := filepath.Join(dir, randomName(header.Filename))
	dst, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	relPath, _ := filepath.Rel(s.basePath, filePath)
	return relPath, nil
}

// UploadFromBytes saves generated content, such as a rendered statement,
// and returns its relative path
func (s *LocalStorage) UploadFromBytes(data []byte, filename string, subDir string) (string, error) {
	dir, err := s.monthDir(subDir)
	if err != nil {
		return "", err
	}

	filePath := filepath.Join(dir, randomName(filename))
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	relPath, _ := filepath.Rel(s.basePath, filePath)
	return relPath, nil
}

// Download opens a stored document for reading
func (s *LocalStorage) Download(relativePath string) (*os.File, error) {
	return os.Open(filepath.Join(s.basePath, relativePath))
}

// Delete removes a stored document
func (s *LocalStorage) Delete(relativePath string) error {
	return os.Remove(filepath.Join(s.basePath, relativePath))
}

// Exists reports whether a document is still on disk
func (s *LocalStorage) Exists(relativePath string) bool {
	_, err := os.Stat(filepath.Join(s.basePath, relativePath))
	return err == nil
}

// GetFullPath returns the absolute path for serving a document
func (s *LocalStorage) GetFullPath(relativePath string) string {
	return filepath.Join(s.basePath, relativePath)
}

// GetSize returns a stored document's size in bytes
func (s *LocalStorage) GetSize(relativePath string) (int64, error) {
	info, err := os.Stat(filepath.Join(s.basePath, relativePath))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// randomName keeps the original extension on a random 16-byte hex stem
func randomName(original string) string {
	stem := make([]byte, 16)
	rand.Read(stem)
	return hex.EncodeToString(stem) + filepath.Ext(original)
}

// MaxFileSize returns the upload size limit in bytes
func MaxFileSize() int64 {
	return maxDocumentSize
}

// IsValidContentType reports whether a MIME type is accepted for loan
// documents
func IsValidContentType(contentType string) bool {
	return allowedContentTypes[contentType]
}
