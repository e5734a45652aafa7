package simple

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/roamjs/roamjs-scripts/internal/args"
	"github.com/roamjs/roamjs-scripts/internal/bundle"
	"github.com/roamjs/roamjs-scripts/internal/lambdas"
	"github.com/roamjs/roamjs-scripts/internal/setup"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newInvocation(t *testing.T, tokens ...string) *Invocation {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"roamjs-todont"}`)
	return &Invocation{
		Dir:     dir,
		Options: args.Parse(tokens),
		Env:     setup.NewEnvironment(nil),
		Now:     func() time.Time { return time.Date(2024, time.May, 1, 10, 30, 0, 0, time.UTC) },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestLoadParsesFlagsAndProject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, setup.ProjectFile), "max_size: 42\n")
	inv, err := Load(dir, []string{"--depot", "--path", "todont"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !inv.Options.Depot() || inv.Options.String("path", "") != "todont" {
		t.Fatalf("options = %v", inv.Options)
	}
	if inv.Project.MaxSize != 42 {
		t.Fatalf("project = %+v", inv.Project)
	}
}

func TestTargetEnvironment(t *testing.T) {
	t.Parallel()

	base := setup.NewEnvironment(map[string]string{"ROAM_DEPOT": "true"})
	dev := targetEnvironment(base, false)
	if dev.Depot() || dev.Get("API_URL") != setup.DefaultDevAPIURL {
		t.Fatalf("dev env: depot=%v api=%q", dev.Depot(), dev.Get("API_URL"))
	}
	depot := targetEnvironment(base.With("API_URL", "http://custom"), true)
	if !depot.Depot() || depot.Get("API_URL") != "http://custom" {
		t.Fatalf("depot env: depot=%v api=%q", depot.Depot(), depot.Get("API_URL"))
	}
}

func TestLabsEnvironmentDefinesBlueprintNamespace(t *testing.T) {
	t.Parallel()

	inv := newInvocation(t)
	env := labsEnvironment(targetEnvironment(inv.Env, true))
	defines := bundle.EnvDefines(env, labsAllow(inv.Project, TestEnv))
	if defines["process.env.BLUEPRINT_NAMESPACE"] != `"bp3"` {
		t.Fatalf("BLUEPRINT_NAMESPACE define = %q", defines["process.env.BLUEPRINT_NAMESPACE"])
	}

	custom := labsEnvironment(setup.NewEnvironment(map[string]string{"BLUEPRINT_NAMESPACE": "bp4"}))
	if got := custom.Get("BLUEPRINT_NAMESPACE"); got != "bp4" {
		t.Fatalf("override BLUEPRINT_NAMESPACE = %q", got)
	}
}

func TestBuildStampsVersionAndBundles(t *testing.T) {
	t.Parallel()

	inv := newInvocation(t)
	writeFile(t, filepath.Join(inv.Dir, "src", "index.ts"), "console.log(process.env.ROAMJS_VERSION, process.env.ROAMJS_EXTENSION_ID);\n")

	if err := Build(context.Background(), inv); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	values, err := godotenv.Read(filepath.Join(inv.Dir, ".env"))
	if err != nil {
		t.Fatalf("read .env: %v", err)
	}
	if values["ROAMJS_VERSION"] != "2024-05-01-10-30" {
		t.Fatalf(".env = %v", values)
	}
	out, err := os.ReadFile(filepath.Join(inv.Dir, "build", "main.js"))
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	for _, want := range []string{"2024-05-01-10-30", "todont"} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("expected %q in bundle %q", want, out)
		}
	}
}

func TestBuildDepotUsesDepotAPI(t *testing.T) {
	t.Parallel()

	inv := newInvocation(t, "--marketplace")
	writeFile(t, filepath.Join(inv.Dir, "src", "index.ts"), "export default { api: process.env.API_URL };\n")

	if err := Build(context.Background(), inv); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	out, err := os.ReadFile(filepath.Join(inv.Dir, "extension.js"))
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if !strings.Contains(string(out), setup.DefaultDepotAPIURL) {
		t.Fatalf("expected depot API in %q", out)
	}
}

func TestLambdasBuildWritesZips(t *testing.T) {
	t.Parallel()

	inv := newInvocation(t, "--build")
	writeFile(t, filepath.Join(inv.Dir, lambdas.DefaultDir, "hello.ts"), "export const handler = async () => ({ statusCode: 200 });\n")

	outcomes, err := Lambdas(context.Background(), inv)
	if err != nil {
		t.Fatalf("Lambdas() error = %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Action != lambdas.ActionBuilt {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if _, err := os.Stat(filepath.Join(inv.Dir, lambdas.OutDir, "hello.zip")); err != nil {
		t.Fatalf("expected zip: %v", err)
	}
}

func TestPublishRequiresDeveloperToken(t *testing.T) {
	t.Parallel()

	inv := newInvocation(t)
	writeFile(t, filepath.Join(inv.Dir, "build", "main.js"), "console.log(1);\n")

	_, err := Publish(context.Background(), inv)
	var userErr *setup.UserError
	if !errors.As(err, &userErr) || !strings.Contains(err.Error(), "ROAMJS_DEVELOPER_TOKEN") {
		t.Fatalf("Publish() error = %v", err)
	}
}

func TestInitRequiresName(t *testing.T) {
	t.Parallel()

	_, err := Init(context.Background(), newInvocation(t))
	var userErr *setup.UserError
	if !errors.As(err, &userErr) || err.Error() != "--name parameter is required" {
		t.Fatalf("Init() error = %v", err)
	}
}

func TestTestFailsWithoutEntry(t *testing.T) {
	t.Parallel()

	code, err := Test(context.Background(), newInvocation(t, "--forward", "a.spec.ts"))
	var userErr *setup.UserError
	if code != 1 || !errors.As(err, &userErr) {
		t.Fatalf("Test() = %d, %v", code, err)
	}
}
