package scaffold

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/roamjs/roamjs-scripts/internal/setup"
)

// Workflow is the subset of a GitHub Actions workflow the scaffolder writes.
type Workflow struct {
	Name string            `yaml:"name"`
	On   Triggers          `yaml:"on"`
	Env  map[string]string `yaml:"env,omitempty"`
	Jobs map[string]Job    `yaml:"jobs"`
}

type Triggers struct {
	WorkflowDispatch struct{} `yaml:"workflow_dispatch"`
	Push             Push     `yaml:"push"`
}

type Push struct {
	Branches []string `yaml:"branches"`
	Paths    []string `yaml:"paths,omitempty"`
}

type Job struct {
	RunsOn string `yaml:"runs-on"`
	Steps  []Step `yaml:"steps"`
}

type Step struct {
	Name string `yaml:"name,omitempty"`
	Uses string `yaml:"uses,omitempty"`
	Run  string `yaml:"run,omitempty"`
}

func secretRef(name string) string {
	return "${{ secrets." + name + " }}"
}

// PublishWorkflow builds and publishes the extension on every push to main
// that touches its sources.
func PublishWorkflow(extension, email string) Workflow {
	return Workflow{
		Name: "Publish Extension",
		On: Triggers{Push: Push{
			Branches: []string{"main"},
			Paths:    []string{"src/**", "package.json", ".github/workflows/main.yaml"},
		}},
		Env: map[string]string{
			"API_URL":                setup.DefaultDepotAPIURL,
			"ROAMJS_DEVELOPER_TOKEN": secretRef("ROAMJS_DEVELOPER_TOKEN"),
			"ROAMJS_EMAIL":           email,
			"ROAMJS_EXTENSION_ID":    extension,
			"ROAMJS_RELEASE_TOKEN":   secretRef("ROAMJS_RELEASE_TOKEN"),
		},
		Jobs: map[string]Job{
			"deploy": {
				RunsOn: "ubuntu-latest",
				Steps: []Step{
					{Uses: "actions/checkout@v3"},
					{Name: "install", Run: "npm install"},
					{Name: "build", Run: "npx roamjs-scripts build --depot"},
					{Name: "publish", Run: "npx roamjs-scripts publish --depot"},
				},
			},
		},
	}
}

// LambdasWorkflow deploys changed functions under lambdas/.
func LambdasWorkflow() Workflow {
	return Workflow{
		Name: "Deploy Lambdas",
		On: Triggers{Push: Push{
			Branches: []string{"main"},
			Paths:    []string{"lambdas/**", ".github/workflows/lambdas.yaml"},
		}},
		Env: map[string]string{
			"AWS_ACCESS_KEY_ID":     secretRef("AWS_ACCESS_KEY_ID"),
			"AWS_SECRET_ACCESS_KEY": secretRef("AWS_SECRET_ACCESS_KEY"),
			"AWS_REGION":            "us-east-1",
		},
		Jobs: map[string]Job{
			"deploy": {
				RunsOn: "ubuntu-latest",
				Steps: []Step{
					{Uses: "actions/checkout@v3"},
					{Name: "install", Run: "npm install"},
					{Name: "deploy", Run: "npx roamjs-scripts lambdas"},
				},
			},
		},
	}
}

// Encode renders w as YAML with two space indentation.
func (w Workflow) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(w); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
