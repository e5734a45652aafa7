package bundle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

const globalsNamespace = "roamjs-global"

// DefaultExternals are the shared libraries Roam already exposes on window;
// extensions import them by module name and receive the host's copy.
var DefaultExternals = map[string]string{
	"@blueprintjs/core":     "window.Blueprint.Core",
	"@blueprintjs/datetime": "window.Blueprint.DateTime",
	"@blueprintjs/select":   "window.Blueprint.Select",
	"chrono-node":           "window.ChronoNode",
	"crypto":                "window.crypto",
	"crypto-js":             "window.CryptoJS",
	"file-saver":            "window.FileSaver",
	"idb":                   "window.idb",
	"jszip":                 "window.RoamLazy.JSZip",
	"marked":                "window.RoamLazy.Marked",
	"marked-react":          "window.RoamLazy.MarkedReact",
	"nanoid":                "window.Nanoid",
	"react":                 "window.React",
	"react-dom":             "window.ReactDOM",
	"react-dom/client":      "window.ReactDOM",
	"react-youtube":         "window.ReactYoutube",
	"tslib":                 "window.TSLib",
}

var globalPathPattern = regexp.MustCompile(`^[A-Za-z_$][\w$]*(\.[A-Za-z_$][\w$]*)*$`)

// ParseExternal reads a "module=window.Path" mapping.
func ParseExternal(mapping string) (string, string, error) {
	module, global, ok := strings.Cut(strings.TrimSpace(mapping), "=")
	module = strings.TrimSpace(module)
	global = strings.TrimSpace(global)
	if !ok || module == "" || global == "" {
		return "", "", fmt.Errorf("external %q must look like module=window.Global", mapping)
	}
	if !globalPathPattern.MatchString(global) {
		return "", "", fmt.Errorf("external %q: %q is not a global path", mapping, global)
	}
	return module, global, nil
}

// MergeExternals returns DefaultExternals overlaid with extra mappings.
func MergeExternals(extra []string) (map[string]string, error) {
	merged := make(map[string]string, len(DefaultExternals)+len(extra))
	for k, v := range DefaultExternals {
		merged[k] = v
	}
	for _, mapping := range extra {
		module, global, err := ParseExternal(mapping)
		if err != nil {
			return nil, err
		}
		merged[module] = global
	}
	return merged, nil
}

// GlobalsPlugin resolves each mapped module to a stub that re-exports the
// host global instead of bundling the package.
func GlobalsPlugin(globals map[string]string) api.Plugin {
	modules := sortedKeys(globals)
	quoted := make([]string, len(modules))
	for i, module := range modules {
		quoted[i] = regexp.QuoteMeta(module)
	}
	filter := "^(" + strings.Join(quoted, "|") + ")$"

	return api.Plugin{
		Name: "roamjs-globals",
		Setup: func(build api.PluginBuild) {
			if len(modules) == 0 {
				return
			}
			build.OnResolve(api.OnResolveOptions{Filter: filter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{Path: args.Path, Namespace: globalsNamespace}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: globalsNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				contents := GlobalStub(globals[args.Path])
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}

// GlobalStub is the module body standing in for an external.
func GlobalStub(global string) string {
	return fmt.Sprintf("module.exports = %s;", global)
}
