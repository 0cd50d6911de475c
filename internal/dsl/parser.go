// Package dsl читает seed-файлы *.dsl с описанием типов контента.
//
//	type treatments: display="Treatments" singular="Treatment" draftable
//	  title: string required unique max=120
//	  name: string translatable
//	  category: enum[ortho, implant, hygiene]
//	  doctors: relation[doctors] manyToMany
package dsl

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"klinika/internal/schema"
)

var (
	typeRe     = regexp.MustCompile(`^type\s+([a-z][a-z0-9_]*)\s*:(.*)$`)
	fieldRe    = regexp.MustCompile(`^\s*([a-z][a-z0-9_]*):\s*([^\s#]+)(.*)$`)
	enumRe     = regexp.MustCompile(`^enum\[(.*)\]$`)
	relationRe = regexp.MustCompile(`^relation\[([a-z][a-z0-9_]*)\]$`)
)

// splitOptionTokens делит "k=v k2='v 2' pattern=^[A-Z0-9 _-]+$" на токены,
// не рвёт по пробелам внутри кавычек и скобок.
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false
	bracketDepth := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble && bracketDepth == 0 {
				inSingle = !inSingle
			}
			buf = append(buf, r)
		case '"':
			if !inSingle && bracketDepth == 0 {
				inDouble = !inDouble
			}
			buf = append(buf, r)
		case '[':
			if !inSingle && !inDouble {
				bracketDepth++
			}
			buf = append(buf, r)
		case ']':
			if !inSingle && !inDouble && bracketDepth > 0 {
				bracketDepth--
			}
			buf = append(buf, r)
		default:
			if (r == ' ' || r == '\t') && !inSingle && !inDouble && bracketDepth == 0 {
				flush()
				continue
			}
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

// parseOptions: флаг без значения → "true", кавычки снимаются, ключи в нижнем регистре.
func parseOptions(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, " #"); i >= 0 {
		raw = raw[:i]
	} else if strings.HasPrefix(raw, "#") {
		raw = ""
	}
	out := map[string]string{}
	for _, tok := range splitOptionTokens(strings.TrimSpace(raw)) {
		tok = strings.TrimSuffix(strings.TrimSpace(tok), ",")
		if tok == "" {
			continue
		}
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			out[strings.ToLower(tok)] = "true"
			continue
		}
		v = strings.TrimSpace(v)
		if len(v) >= 2 && (v[0] == '"' && v[len(v)-1] == '"' || v[0] == '\'' && v[len(v)-1] == '\'') {
			v = v[1 : len(v)-1]
		}
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// Parse читает один seed-файл; name нужен только для сообщений об ошибках.
func Parse(r io.Reader, name string) ([]*ContentType, error) {
	var out []*ContentType
	var current *ContentType
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := typeRe.FindStringSubmatch(line); m != nil {
			ct, err := typeHeader(m[1], parseOptions(m[2]))
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", name, lineNo, err)
			}
			ct.Source = name
			out = append(out, ct)
			current = ct
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("%s:%d: field outside of a type block", name, lineNo)
		}
		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%s:%d: cannot parse %q", name, lineNo, line)
		}
		rawType, tail := m[2], m[3]
		// enum[a, b] с пробелами внутри скобок
		if strings.HasPrefix(rawType, "enum[") && !strings.Contains(rawType, "]") {
			if idx := strings.Index(tail, "]"); idx >= 0 {
				rawType += tail[:idx+1]
				tail = tail[idx+1:]
			}
		}
		f, err := field(m[1], rawType, parseOptions(tail))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, lineNo, err)
		}
		current.Fields = append(current.Fields, f)
	}
	return out, scanner.Err()
}

func typeHeader(name string, opts map[string]string) (*ContentType, error) {
	in := schema.ContentTypeInput{
		Name:         name,
		DisplayName:  opts["display"],
		SingularName: opts["singular"],
		Kind:         schema.KindCollection,
		Draftable:    opts["draftable"] == "true",
		Publishable:  opts["publishable"] == "true",
		Reviewable:   opts["reviewable"] == "true",
	}
	if in.DisplayName == "" {
		in.DisplayName = name
	}
	if in.SingularName == "" {
		in.SingularName = in.DisplayName
	}
	switch opts["kind"] {
	case "", "collection", string(schema.KindCollection):
	case "single", string(schema.KindSingle):
		in.Kind = schema.KindSingle
	default:
		return nil, fmt.Errorf("type %s: unknown kind %q", name, opts["kind"])
	}
	if opts["single"] == "true" {
		in.Kind = schema.KindSingle
	}
	return &ContentType{Input: in}, nil
}

var cardinalities = map[string]schema.Cardinality{
	"onetoone":   schema.OneToOne,
	"manytoone":  schema.ManyToOne,
	"onetomany":  schema.OneToMany,
	"manytomany": schema.ManyToMany,
}

func field(name, rawType string, opts map[string]string) (schema.FieldInput, error) {
	f := schema.FieldInput{
		Name:         name,
		DisplayName:  opts["display"],
		Required:     opts["required"] == "true",
		Unique:       opts["unique"] == "true",
		Translatable: opts["translatable"] == "true",
		RegexPattern: opts["pattern"],
	}
	switch {
	case enumRe.MatchString(rawType):
		f.Type = schema.TypeEnum
		var values []any
		for _, p := range strings.Split(enumRe.FindStringSubmatch(rawType)[1], ",") {
			if s := strings.Trim(strings.TrimSpace(p), `"'`); s != "" {
				values = append(values, s)
			}
		}
		f.Options = map[string]any{"values": values}
	case relationRe.MatchString(rawType):
		f.Type = schema.TypeRelation
		card := schema.ManyToOne
		for k, c := range cardinalities {
			if opts[k] == "true" {
				card = c
			}
		}
		if v, ok := opts["cardinality"]; ok {
			c, ok := cardinalities[strings.ToLower(v)]
			if !ok {
				return f, fmt.Errorf("field %s: unknown cardinality %q", name, v)
			}
			card = c
		}
		f.Options = map[string]any{"target": relationRe.FindStringSubmatch(rawType)[1], "cardinality": string(card)}
	default:
		f.Type = schema.FieldType(rawType)
		if !schema.KnownType(f.Type) {
			return f, fmt.Errorf("field %s: unknown type %q", name, rawType)
		}
	}
	if opts["hidden"] == "true" {
		hide := false
		f.ShowInList = &hide
	}
	if v, ok := opts["default"]; ok {
		f.DefaultValue = v
	}

	// min/max: длина для текстовых, значение для числовых
	for _, k := range []string{"min", "max"} {
		v, ok := opts[k]
		if !ok {
			continue
		}
		if f.Type.Textual() {
			n, err := strconv.Atoi(v)
			if err != nil {
				return f, fmt.Errorf("field %s: %s must be an integer", name, k)
			}
			if k == "min" {
				f.MinLength = &n
			} else {
				f.MaxLength = &n
			}
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, fmt.Errorf("field %s: %s must be a number", name, k)
		}
		if k == "min" {
			f.MinValue = &n
		} else {
			f.MaxValue = &n
		}
	}
	return f, nil
}

// LoadFile читает один файл.
func LoadFile(path string) ([]*ContentType, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, path)
}

// LoadDir обходит root и читает все *.dsl по алфавиту путей.
// Повторное имя типа в разных файлах: ошибка.
func LoadDir(root string) ([]*ContentType, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(d.Name()), ".dsl") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	seen := map[string]string{}
	var out []*ContentType
	for _, p := range paths {
		cts, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		for _, ct := range cts {
			if prev, dup := seen[ct.Input.Name]; dup {
				return nil, fmt.Errorf("duplicate type %q in %s (first in %s)", ct.Input.Name, p, prev)
			}
			seen[ct.Input.Name] = p
			out = append(out, ct)
		}
	}
	return out, nil
}
