// Package reference: YAML-справочники для первичного заполнения.
package reference

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadLanguages читает каталог языков. Пустой Order берётся из позиции в файле.
func LoadLanguages(path string) (*LanguageCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseLanguages(data)
}

func ParseLanguages(data []byte) (*LanguageCatalog, error) {
	var cat LanguageCatalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("languages catalog: %w", err)
	}
	seen := map[string]bool{}
	for i := range cat.Languages {
		l := &cat.Languages[i]
		l.Code = strings.TrimSpace(l.Code)
		if l.Code == "" {
			return nil, fmt.Errorf("languages catalog: item %d has no code", i+1)
		}
		if seen[l.Code] {
			return nil, fmt.Errorf("languages catalog: duplicate code %q", l.Code)
		}
		seen[l.Code] = true
		if l.Name == "" {
			l.Name = l.Code
		}
		if l.Order == 0 {
			l.Order = i + 1
		}
	}
	// без явного default: первый в списке
	if cat.Default == "" && len(cat.Languages) > 0 {
		cat.Default = cat.Languages[0].Code
	}
	if cat.Default != "" && !seen[cat.Default] {
		return nil, fmt.Errorf("languages catalog: default %q is not in the list", cat.Default)
	}
	return &cat, nil
}
