package artifacts

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", rel, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func names(files []Artifact) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name)
	}
	return out
}

func TestWalkExcludesNoiseAtAnyDepth(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, rel := range []string{
		"main.js",
		"README.md",
		"LICENSE",
		".git/HEAD",
		".github/workflows/main.yaml",
		".replit",
		"assets/logo.png",
		"assets/README.md",
		"nested/deep/LICENSE",
		"nested/deep/worker.js",
		"nested/.git/config",
	} {
		writeFile(t, root, rel, rel)
	}

	files, err := Walk(root)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := []string{"assets/logo.png", "main.js", "nested/deep/worker.js"}
	if got := names(files); !reflect.DeepEqual(got, want) {
		t.Fatalf("Walk() = %v, want %v", got, want)
	}

	again, err := Walk(root)
	if err != nil {
		t.Fatalf("Walk() second pass error = %v", err)
	}
	if !reflect.DeepEqual(names(again), want) {
		t.Fatalf("Walk() is not order-stable: %v", names(again))
	}
}

func TestWhitelistKeepsOnlyExistingFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "extension.js", "x")
	writeFile(t, root, "package.json", "{}")
	writeFile(t, root, "src/index.ts", "y")

	files, err := Whitelist(root, DepotFiles)
	if err != nil {
		t.Fatalf("Whitelist() error = %v", err)
	}
	want := []string{"extension.js", "package.json"}
	if got := names(files); !reflect.DeepEqual(got, want) {
		t.Fatalf("Whitelist() = %v, want %v", got, want)
	}
	if files[0].Kind != BundleArtifact || files[1].Kind != ManifestArtifact {
		t.Fatalf("unexpected kinds: %v, %v", files[0].Kind, files[1].Kind)
	}
}

func TestZipIsReproducible(t *testing.T) {
	t.Parallel()

	entries := []ZipEntry{{Name: "index.js", Data: []byte("exports.handler = () => 1;")}}

	first, err := Zip(entries, FixedTime)
	if err != nil {
		t.Fatalf("Zip() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	second, err := Zip(entries, FixedTime)
	if err != nil {
		t.Fatalf("Zip() error = %v", err)
	}

	if CodeSha256(first) != CodeSha256(second) {
		t.Fatal("identical inputs produced different archive hashes")
	}

	changed, err := Zip([]ZipEntry{{Name: "index.js", Data: []byte("exports.handler = () => 2;")}}, FixedTime)
	if err != nil {
		t.Fatalf("Zip() error = %v", err)
	}
	if CodeSha256(first) == CodeSha256(changed) {
		t.Fatal("different inputs produced the same archive hash")
	}

	reader, err := zip.NewReader(bytes.NewReader(first), int64(len(first)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(reader.File) != 1 || !reader.File[0].Modified.Equal(FixedTime) {
		t.Fatalf("unexpected zip entries: %+v", reader.File)
	}
}

func TestCodeSha256MatchesLambdaFormat(t *testing.T) {
	t.Parallel()

	// sha256("") in base64
	if got := CodeSha256(nil); got != "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=" {
		t.Fatalf("CodeSha256(nil) = %q", got)
	}
}

func TestContentTypeOf(t *testing.T) {
	t.Parallel()

	if got := ContentTypeOf("extension.css"); got != "text/css; charset=utf-8" {
		t.Fatalf("ContentTypeOf(css) = %q", got)
	}
	if got := ContentTypeOf("README.md"); got != "text/markdown; charset=utf-8" {
		t.Fatalf("ContentTypeOf(md) = %q", got)
	}
	if got := ContentTypeOf("LICENSE"); got != "" {
		t.Fatalf("ContentTypeOf(no ext) = %q, want empty", got)
	}
}

func TestCountKinds(t *testing.T) {
	t.Parallel()

	files := []Artifact{
		New("/b/main.js", "main.js"),
		New("/b/chunk.mjs", "chunks/chunk.mjs"),
		New("/b/main.css", "main.css"),
		New("/b/README.md", "README.md"),
		New("/b/package.json", "package.json"),
		New("/b/logo.png", "logo.png"),
	}
	want := map[ArtifactKind]int{
		BundleArtifact:     2,
		StylesheetArtifact: 1,
		DocumentArtifact:   1,
		ManifestArtifact:   1,
		AssetArtifact:      1,
	}
	if got := CountKinds(files); !reflect.DeepEqual(got, want) {
		t.Fatalf("CountKinds() = %v, want %v", got, want)
	}
}

func TestLocalStoreWritesArtifact(t *testing.T) {
	t.Parallel()

	store := &LocalStore{BaseDir: t.TempDir()}
	artifact, err := store.StoreArtifact("lambdas/query.zip", []byte("zipdata"))
	if err != nil {
		t.Fatalf("StoreArtifact() error = %v", err)
	}
	if artifact.Kind != ArchiveArtifact {
		t.Fatalf("Kind = %q, want archive", artifact.Kind)
	}
	if artifact.Checksum == nil || *artifact.Checksum != CodeSha256([]byte("zipdata")) {
		t.Fatalf("unexpected checksum: %v", artifact.Checksum)
	}
	data, err := os.ReadFile(artifact.Path)
	if err != nil || string(data) != "zipdata" {
		t.Fatalf("stored file = %q, %v", data, err)
	}
}
