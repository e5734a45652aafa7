package scaffold

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// templateData feeds the embedded templates.
type templateData struct {
	Extension   string
	Description string
	Author      string
	Year        int
	Backend     bool
}

func render(name string, data templateData) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

type packageJSON struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Main        string            `json:"main"`
	Scripts     map[string]string `json:"scripts"`
	License     string            `json:"license"`
}

type tsconfig struct {
	Extends string   `json:"extends"`
	Include []string `json:"include"`
	Exclude []string `json:"exclude"`
}

func packageJSONFile(extension, description string) ([]byte, error) {
	return encodeJSON(packageJSON{
		Name:        extension,
		Version:     "1.0.0",
		Description: description,
		Main:        "./build/main.js",
		Scripts: map[string]string{
			"prebuild:roam": "npm install",
			"build:roam":    "roamjs-scripts build --depot",
			"start":         "roamjs-scripts dev --depot",
		},
		License: "MIT",
	})
}

func tsconfigFile(backend bool) ([]byte, error) {
	include := []string{"src"}
	if backend {
		include = append(include, "lambdas")
	}
	return encodeJSON(tsconfig{
		Extends: "./node_modules/roamjs-scripts/default.tsconfig",
		Include: include,
		Exclude: []string{"node_modules"},
	})
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
