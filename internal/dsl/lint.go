package dsl

import (
	"fmt"

	"klinika/internal/schema"
)

// Issue: противоречие в seed-файлах, найденное до записи в реестр.
type Issue struct {
	Type    string `json:"type"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Lint проверяет набор типов целиком. known сообщает, есть ли тип
// с таким именем в реестре; может быть nil.
func Lint(cts []*ContentType, known func(name string) bool) []Issue {
	var issues []Issue
	names := make(map[string]bool, len(cts))
	for _, ct := range cts {
		if names[ct.Input.Name] {
			issues = append(issues, Issue{Type: ct.Input.Name, Code: "type_duplicate",
				Message: fmt.Sprintf("type %s is declared twice", ct.Input.Name)})
		}
		names[ct.Input.Name] = true
		if schema.ReservedTypeName(ct.Input.Name) {
			issues = append(issues, Issue{Type: ct.Input.Name, Code: "type_reserved",
				Message: fmt.Sprintf("%s is a reserved name", ct.Input.Name)})
		}
	}

	for _, ct := range cts {
		seen := map[string]bool{}
		for _, f := range ct.Fields {
			if seen[f.Name] {
				issues = append(issues, Issue{Type: ct.Input.Name, Field: f.Name, Code: "field_duplicate",
					Message: fmt.Sprintf("field %s is declared twice", f.Name)})
			}
			seen[f.Name] = true

			if f.Unique && f.Translatable {
				issues = append(issues, Issue{Type: ct.Input.Name, Field: f.Name, Code: "unique_translatable",
					Message: "a translatable field cannot be unique"})
			}
			if f.Type == schema.TypeEnum {
				if vs, _ := f.Options["values"].([]any); len(vs) == 0 {
					issues = append(issues, Issue{Type: ct.Input.Name, Field: f.Name, Code: "enum_empty",
						Message: "enum needs at least one value"})
				}
			}
			if f.Type != schema.TypeRelation {
				continue
			}
			target, _ := f.Options["target"].(string)
			switch {
			case target == "":
				issues = append(issues, Issue{Type: ct.Input.Name, Field: f.Name, Code: "relation_target_empty",
					Message: "relation has no target"})
			case !names[target] && (known == nil || !known(target)):
				issues = append(issues, Issue{Type: ct.Input.Name, Field: f.Name, Code: "relation_target_unknown",
					Message: fmt.Sprintf("relation target %s is not defined", target)})
			}
		}
	}
	return issues
}
