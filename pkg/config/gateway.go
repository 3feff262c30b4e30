package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GatewaySettings is the part of the gateway settings file shown to users
type GatewaySettings struct {
	// Path is the file the settings were read from
	Path string

	// Models lists model_list[].model_name in file order
	Models []string

	// Guardrails lists guardrails[].guardrail_name in file order
	Guardrails []string
}

type gatewayFile struct {
	ModelList []struct {
		ModelName string `yaml:"model_name"`
	} `yaml:"model_list"`
	Guardrails []struct {
		GuardrailName string `yaml:"guardrail_name"`
	} `yaml:"guardrails"`
}

// InspectGateway reads model and guardrail names from a gateway settings
// file. Other keys are ignored.
func InspectGateway(path string) (*GatewaySettings, error) {
	if !isValidFilePath(path) {
		return nil, fmt.Errorf("invalid file path: %s", path)
	}

	data, err := os.ReadFile(path) // #nosec G304 - Path is validated with isValidFilePath() before use
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway settings: %w", err)
	}

	var file gatewayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gateway settings: %w", err)
	}

	settings := &GatewaySettings{Path: path}
	for _, model := range file.ModelList {
		if model.ModelName != "" {
			settings.Models = append(settings.Models, model.ModelName)
		}
	}
	for _, guardrail := range file.Guardrails {
		if guardrail.GuardrailName != "" {
			settings.Guardrails = append(settings.Guardrails, guardrail.GuardrailName)
		}
	}

	return settings, nil
}
