package artifacts

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"time"
)

// FixedTime is stamped on every zip entry so identical inputs produce
// byte-identical archives.
var FixedTime = time.Date(1995, time.September, 24, 0, 0, 0, 0, time.UTC)

// ZipEntry is one file inside an archive.
type ZipEntry struct {
	Name string
	Data []byte
}

// Zip deflates entries, in order, into an in-memory archive.
func Zip(entries []ZipEntry, modTime time.Time) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, entry := range entries {
		header := &zip.FileHeader{
			Name:     entry.Name,
			Method:   zip.Deflate,
			Modified: modTime,
		}
		header.SetMode(0o644)
		f, err := w.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("zip %s: %w", entry.Name, err)
		}
		if _, err := f.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("zip %s: %w", entry.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// ZipArtifacts reads each artifact from disk and archives it under its Name.
func ZipArtifacts(files []Artifact) ([]byte, error) {
	entries := make([]ZipEntry, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file.Path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ZipEntry{Name: file.Name, Data: data})
	}
	return Zip(entries, FixedTime)
}

// CodeSha256 returns the base64 SHA-256 digest, the format AWS Lambda
// reports for deployed code.
func CodeSha256(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}
