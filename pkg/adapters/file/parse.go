package file

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Format selects the document decoder.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Parse decodes a flow document. The document is either a single flow or a
// mapping with a "flows" list. Keys match field names regardless of case,
// underscores or dashes, so nextNodeId, next_node_id and next-node-id are equivalent.
func Parse(data []byte, format Format) ([]domain.DoubtFlow, error) {
	var raw any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	}

	var items []any
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if list, ok := v["flows"]; ok {
			l, ok := list.([]any)
			if !ok {
				return nil, fmt.Errorf("invalid flows list type: %T", list)
			}
			items = l
		} else {
			items = []any{v}
		}
	case []any:
		items = v
	default:
		return nil, fmt.Errorf("invalid flow document type: %T", v)
	}

	flows := make([]domain.DoubtFlow, 0, len(items))
	for i, item := range items {
		flow, err := decodeFlow(item)
		if err != nil {
			return nil, fmt.Errorf("flow #%d: %w", i+1, err)
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

func decodeFlow(item any) (domain.DoubtFlow, error) {
	var flow domain.DoubtFlow
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &flow,
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return flow, err
	}
	if err := dec.Decode(item); err != nil {
		return flow, fmt.Errorf("failed to decode flow: %w", err)
	}
	if flow.ID == "" {
		return flow, fmt.Errorf("flow missing id")
	}
	return flow, nil
}

func normalizeKey(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer("_", "", "-", "").Replace(s)
}
