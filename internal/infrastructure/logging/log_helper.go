package logging

import (
	"maps"
	"slices"
)

// sortedKeys keeps field order stable so log lines diff cleanly.
func sortedKeys(extra map[ExtraKey]any) []ExtraKey {
	return slices.Sorted(maps.Keys(extra))
}

func zapFields(extra map[ExtraKey]any) []any {
	fields := make([]any, 0, len(extra)*2)
	for _, k := range sortedKeys(extra) {
		fields = append(fields, string(k), extra[k])
	}
	return fields
}

func zeroFields(extra map[ExtraKey]any) map[string]any {
	fields := make(map[string]any, len(extra))
	for k, v := range extra {
		fields[string(k)] = v
	}
	return fields
}
