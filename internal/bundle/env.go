package bundle

import (
	"encoding/json"
	"regexp"

	"github.com/roamjs/roamjs-scripts/internal/setup"
)

// DeniedEnv never reaches a bundle when the whole environment is injected.
var DeniedEnv = map[string]struct{}{
	"AWS_ACCESS_KEY_ID":            {},
	"AWS_SECRET_ACCESS_KEY":        {},
	"AWS_SESSION_TOKEN":            {},
	"GITHUB_TOKEN":                 {},
	"ROAMJS_DEVELOPER_TOKEN":       {},
	"ROAMJS_RELEASE_TOKEN":         {},
	"TERRAFORM_ORGANIZATION_TOKEN": {},
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// EnvDefines renders compile-time constants for process.env lookups. With
// an allowlist only the named variables are injected; otherwise every
// variable except DeniedEnv is. Names that are not identifiers are skipped.
func EnvDefines(env setup.Environment, allow []string) map[string]string {
	defines := map[string]string{}
	add := func(key string) {
		if !identifierPattern.MatchString(key) {
			return
		}
		value, ok := env.Lookup(key)
		if !ok {
			return
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return
		}
		defines["process.env."+key] = string(encoded)
	}

	if len(allow) > 0 {
		for _, key := range allow {
			add(key)
		}
		return defines
	}
	for _, key := range env.Keys() {
		if _, denied := DeniedEnv[key]; denied {
			continue
		}
		add(key)
	}
	return defines
}
