package dsl

import "klinika/internal/schema"

// ContentType из seed-файла: тело создания и поля по порядку.
type ContentType struct {
	Input  schema.ContentTypeInput
	Fields []schema.FieldInput
	Source string // файл, из которого прочитан
}
