package pg

import (
	"fmt"
	"strings"

	"klinika/internal/content"
	"klinika/internal/schema"
	"klinika/internal/sections"
)

// sqlIdent: имя в кавычках; имена типов и полей уже прошли NamePattern.
func sqlIdent(s string) string { return `"` + strings.ReplaceAll(strings.ToLower(s), `"`, `""`) + `"` }

func uniqueIndex(table, field string) string { return table + "_" + field + "_uq" }

const systemTables = `
create table if not exists "content_types" (
  "id" text primary key,
  "name" text not null unique,
  "display_name" text not null,
  "singular_name" text not null,
  "kind" text not null default 'collectionType',
  "draftable" boolean not null default false,
  "publishable" boolean not null default false,
  "reviewable" boolean not null default false,
  "settings" jsonb,
  "created_at" timestamp with time zone not null,
  "updated_at" timestamp with time zone not null
);
create table if not exists "content_type_fields" (
  "id" text primary key,
  "content_type_id" text not null references "content_types"("id") on delete cascade,
  "name" text not null,
  "display_name" text not null,
  "type" text not null,
  "required" boolean not null default false,
  "is_unique" boolean not null default false,
  "translatable" boolean not null default false,
  "default_value" jsonb,
  "display_order" integer not null default 0,
  "show_in_list" boolean not null default true,
  "show_in_form" boolean not null default true,
  "options" jsonb,
  "min_length" integer,
  "max_length" integer,
  "min_value" double precision,
  "max_value" double precision,
  "regex_pattern" text not null default '',
  "created_at" timestamp with time zone not null,
  "updated_at" timestamp with time zone not null,
  unique ("content_type_id", "name")
);
create table if not exists "content_type_relations" (
  "id" text primary key,
  "name" text not null,
  "source_content_type_id" text not null references "content_types"("id") on delete cascade,
  "target_content_type_id" text not null references "content_types"("id") on delete restrict,
  "cardinality" text not null,
  "created_at" timestamp with time zone not null,
  unique ("source_content_type_id", "name")
);
create table if not exists "languages" (
  "code" text primary key,
  "name" text not null,
  "native_name" text not null default '',
  "enabled" boolean not null default true,
  "is_default" boolean not null default false,
  "display_order" integer not null default 0,
  "created_at" timestamp with time zone not null,
  "updated_at" timestamp with time zone not null
);
create unique index if not exists "languages_default_uq" on "languages"("is_default") where "is_default";
create table if not exists "pages" (
  "id" text primary key,
  "title" text not null,
  "slug" text not null unique,
  "status" text not null default 'draft',
  "locale" text not null default '',
  "metadata" jsonb,
  "created_at" timestamp with time zone not null,
  "updated_at" timestamp with time zone not null
);
create table if not exists "page_sections" (
  "id" text primary key,
  "page_id" text not null references "pages"("id") on delete cascade,
  "section_type" text not null,
  "section_id" text not null,
  "display_order" integer not null,
  "created_at" timestamp with time zone not null,
  constraint "page_sections_order_uq" unique ("page_id", "display_order") deferrable initially deferred
);
create index if not exists "page_sections_page_idx" on "page_sections"("page_id");
`

// SystemDDL: системные таблицы и таблицы компонентов секций из каталога.
func SystemDDL() map[string]string {
	out := map[string]string{"000_system": systemTables}
	for _, st := range sections.List() {
		cols := []string{`"id" text primary key`}
		for _, f := range st.Fields {
			cols = append(cols, fmt.Sprintf("%s %s", sqlIdent(f.Name), f.Type.SQLType()))
		}
		cols = append(cols,
			`"created_at" timestamp with time zone not null default now()`,
			`"updated_at" timestamp with time zone not null default now()`)
		out["010_"+st.Table] = fmt.Sprintf("create table if not exists %s (\n  %s\n);",
			sqlIdent(st.Table), strings.Join(cols, ",\n  "))
	}
	return out
}

// TypeDDL приводит таблицы типа к его определению: базовая таблица,
// таблица переводов, колонки, уникальные индексы и link-таблицы.
// Только добавление; удаление колонок идёт через DropFieldDDL.
// NOT NULL для required не ставим: колонку добавляют к таблице с данными,
// обязательность проверяет сервис.
func TypeDDL(ct *schema.ContentType) map[string]string {
	table := ct.Name
	trans := content.TranslationTable(ct.Name)
	out := make(map[string]string)

	out["100_"+table+"_table"] = fmt.Sprintf(`create table if not exists %s (
  "id" text primary key,
  "status" text not null default 'draft',
  "display_order" integer not null default 0,
  "created_at" timestamp with time zone not null,
  "updated_at" timestamp with time zone not null
);`, sqlIdent(table))

	out["110_"+table+"_translations"] = fmt.Sprintf(`create table if not exists %s (
  "entity_id" text not null references %s("id") on delete cascade,
  "language_code" text not null,
  "created_at" timestamp with time zone not null default now(),
  "updated_at" timestamp with time zone not null default now(),
  primary key ("entity_id", "language_code")
);`, sqlIdent(trans), sqlIdent(table))

	var cols, idx strings.Builder
	for _, f := range ct.Fields {
		if !f.Column() {
			continue
		}
		target := table
		if f.Translatable {
			target = trans
		}
		fmt.Fprintf(&cols, "alter table %s add column if not exists %s %s;\n",
			sqlIdent(target), sqlIdent(f.Name), f.Type.SQLType())
		if f.Translatable {
			continue
		}
		if f.Unique {
			fmt.Fprintf(&idx, "create unique index if not exists %s on %s(%s);\n",
				sqlIdent(uniqueIndex(table, f.Name)), sqlIdent(table), sqlIdent(f.Name))
		} else {
			fmt.Fprintf(&idx, "drop index if exists %s;\n", sqlIdent(uniqueIndex(table, f.Name)))
		}
	}
	if cols.Len() > 0 {
		out["120_"+table+"_columns"] = cols.String()
	}
	if idx.Len() > 0 {
		out["130_"+table+"_unique"] = idx.String()
	}

	var links strings.Builder
	for _, f := range ct.Fields {
		if f.Type != schema.TypeRelation {
			continue
		}
		rel := ct.RelationByName(f.Name)
		if rel == nil {
			continue
		}
		fmt.Fprintf(&links, `create table if not exists %s (
  "source_id" text not null references %s("id") on delete cascade,
  "target_id" text not null references %s("id") on delete cascade,
  "position" integer not null default 0,
  primary key ("source_id", "target_id")
);
`, sqlIdent(content.LinkTable(table, f.Name)), sqlIdent(table), sqlIdent(rel.TargetName))
	}
	if links.Len() > 0 {
		out["200_"+table+"_links"] = links.String()
	}
	return out
}

// DropFieldDDL: удаление колонки или link-таблицы связи.
func DropFieldDDL(ct *schema.ContentType, f *schema.Field) string {
	if f.Type == schema.TypeRelation {
		return fmt.Sprintf("drop table if exists %s;", sqlIdent(content.LinkTable(ct.Name, f.Name)))
	}
	table := ct.Name
	if f.Translatable {
		table = content.TranslationTable(ct.Name)
	}
	return fmt.Sprintf("alter table %s drop column if exists %s;", sqlIdent(table), sqlIdent(f.Name))
}

// DropTypeDDL: link-таблицы, переводы, затем базовая таблица.
func DropTypeDDL(ct *schema.ContentType) string {
	var b strings.Builder
	for _, f := range ct.Fields {
		if f.Type == schema.TypeRelation {
			fmt.Fprintf(&b, "drop table if exists %s;\n", sqlIdent(content.LinkTable(ct.Name, f.Name)))
		}
	}
	fmt.Fprintf(&b, "drop table if exists %s;\n", sqlIdent(content.TranslationTable(ct.Name)))
	fmt.Fprintf(&b, "drop table if exists %s;\n", sqlIdent(ct.Name))
	return b.String()
}
