package http

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

var (
	openAPIJSON     []byte
	openAPIJSONErr  error
	openAPIJSONOnce sync.Once
)

// getOpenAPIJSON returns the embedded OpenAPI document as JSON, converting it once.
func getOpenAPIJSON() ([]byte, error) {
	openAPIJSONOnce.Do(func() {
		openAPIJSON, openAPIJSONErr = yamlToJSON(openAPIYAML)
	})
	return openAPIJSON, openAPIJSONErr
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing OpenAPI document: %w", err)
	}
	return json.MarshalIndent(jsonCompatible(doc), "", "  ")
}

// jsonCompatible rewrites non-string map keys, which YAML allows (e.g. status
// codes) and encoding/json rejects.
func jsonCompatible(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		for key, value := range v {
			v[key] = jsonCompatible(value)
		}
		return v
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			out[fmt.Sprint(key)] = jsonCompatible(value)
		}
		return out
	case []interface{}:
		for i, value := range v {
			v[i] = jsonCompatible(value)
		}
		return v
	default:
		return v
	}
}
