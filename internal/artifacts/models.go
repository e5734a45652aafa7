package artifacts

import (
	"mime"
	"path"
	"strings"
)

type ArtifactKind string

const (
	BundleArtifact     ArtifactKind = "bundle"     // compiled javascript
	StylesheetArtifact ArtifactKind = "stylesheet" // emitted css
	DocumentArtifact   ArtifactKind = "document"   // README, CHANGELOG
	ManifestArtifact   ArtifactKind = "manifest"   // package.json
	ArchiveArtifact    ArtifactKind = "archive"    // zip bundles
	AssetArtifact      ArtifactKind = "asset"
)

// Artifact is one file headed for a publish destination.
type Artifact struct {
	// Path is the file's location on disk.
	Path string
	// Name is the slash-separated path relative to the publish root; it is
	// appended to the destination prefix to form the object key.
	Name string
	Kind ArtifactKind

	Checksum    *string
	ContentType string
}

// New describes the file at diskPath published under name.
func New(diskPath, name string) Artifact {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	return Artifact{
		Path:        diskPath,
		Name:        name,
		Kind:        KindOf(name),
		ContentType: ContentTypeOf(name),
	}
}

// KindOf classifies a file by name.
func KindOf(name string) ArtifactKind {
	base := path.Base(name)
	switch {
	case base == "package.json":
		return ManifestArtifact
	case strings.EqualFold(path.Ext(base), ".md"):
		return DocumentArtifact
	}
	switch strings.ToLower(path.Ext(base)) {
	case ".js", ".mjs", ".cjs":
		return BundleArtifact
	case ".css":
		return StylesheetArtifact
	case ".zip":
		return ArchiveArtifact
	default:
		return AssetArtifact
	}
}

// CountKinds tallies files by kind.
func CountKinds(files []Artifact) map[ArtifactKind]int {
	counts := make(map[ArtifactKind]int)
	for _, file := range files {
		counts[file.Kind]++
	}
	return counts
}

// ContentTypeOf infers a content type from the file extension, or "" when
// the extension is unknown.
func ContentTypeOf(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case "":
		return ""
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".map":
		return "application/json"
	}
	return mime.TypeByExtension(ext)
}
