package bundle

import (
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/roamjs/roamjs-scripts/internal/setup"
)

const (
	// DefaultMaxSize caps any single emitted file for production builds.
	DefaultMaxSize int64 = 5_000_000
	// DevMaxSize is the looser cap applied while serving.
	DevMaxSize int64 = 20_000_000
)

// Options describes one extension build.
type Options struct {
	Dir   string
	Name  string
	Depot bool
	Env   setup.Environment
	// EnvAllow restricts injected variables to these names when non-empty.
	EnvAllow  []string
	Externals []string
	MaxSize   int64
	Analyze   bool
	Color     bool
}

// Config is an assembled bundler configuration ready for Build or Serve.
type Config struct {
	Build   api.BuildOptions
	OutDir  string
	Outputs []string
	MaxSize int64
	Analyze bool
	Color   bool
}

// MainOutput is the entry name for the extension's main bundle.
func MainOutput(depot bool) string {
	if depot {
		return "extension"
	}
	return "main"
}

// Assemble resolves the entry points, output layout and injected constants
// for opts. Depot builds emit an ES module named extension.js into the
// project root; everything else emits main.js into build/.
func Assemble(opts Options) (*Config, error) {
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, err
	}
	srcDir := filepath.Join(dir, "src")

	entry, err := FindEntry(srcDir, opts.Name)
	if err != nil {
		return nil, err
	}
	workers, err := Workers(srcDir)
	if err != nil {
		return nil, err
	}
	externals, err := MergeExternals(opts.Externals)
	if err != nil {
		return nil, setup.Userf("%v", err)
	}

	main := MainOutput(opts.Depot)
	entryPoints := []api.EntryPoint{{InputPath: filepath.Join(srcDir, entry), OutputPath: main}}
	outputs := []string{main}
	for _, name := range sortedKeys(workers) {
		entryPoints = append(entryPoints, api.EntryPoint{InputPath: workers[name], OutputPath: name})
		outputs = append(outputs, name)
	}

	outDir := filepath.Join(dir, "build")
	format := api.FormatIIFE
	if opts.Depot {
		outDir = dir
		format = api.FormatESModule
	}

	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &Config{
		Build: api.BuildOptions{
			AbsWorkingDir:       dir,
			EntryPointsAdvanced: entryPoints,
			Outdir:              outDir,
			EntryNames:          "[name]",
			AssetNames:          "[name]-[hash]",
			Bundle:              true,
			Write:               true,
			Metafile:            true,
			Format:              format,
			Platform:            api.PlatformBrowser,
			Target:              api.ES2020,
			LogLevel:            api.LogLevelSilent,
			NodePaths:           []string{filepath.Join(dir, "node_modules")},
			ResolveExtensions:   []string{".ts", ".js", ".tsx", ".jsx"},
			Define:              EnvDefines(opts.Env, opts.EnvAllow),
			Loader: map[string]api.Loader{
				".png":   api.LoaderFile,
				".jpg":   api.LoaderFile,
				".jpeg":  api.LoaderFile,
				".gif":   api.LoaderFile,
				".cur":   api.LoaderFile,
				".svg":   api.LoaderText,
				".woff":  api.LoaderDataURL,
				".woff2": api.LoaderDataURL,
				".eot":   api.LoaderDataURL,
				".ttf":   api.LoaderDataURL,
			},
			Plugins: []api.Plugin{GlobalsPlugin(externals)},
		},
		OutDir:  outDir,
		Outputs: outputs,
		MaxSize: maxSize,
		Analyze: opts.Analyze,
		Color:   opts.Color,
	}, nil
}

func withDefine(base map[string]string, key, value string) map[string]string {
	defines := make(map[string]string, len(base)+1)
	for k, v := range base {
		defines[k] = v
	}
	defines[key] = value
	return defines
}
