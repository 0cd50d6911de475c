package api

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"klinika/internal/apperr"
	"klinika/internal/content"
	"klinika/internal/domain"
)

// filters[title][$eq]=x, filters[title]=x (то же, что $eq)
var filterKeyRe = regexp.MustCompile(`^filters\[([^\]]+)\](?:\[([^\]]+)\])?$`)

// parseContentQuery разбирает query-параметры find/findOne/count.
func parseContentQuery(q url.Values) (content.Query, error) {
	var out content.Query

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	// порядок фильтров в url.Values случайный; сортируем для стабильных ошибок
	sort.Strings(keys)

	for _, key := range keys {
		vals := q[key]
		switch key {
		case "populate":
			for _, v := range vals {
				for _, p := range strings.Split(v, ",") {
					if p = strings.TrimSpace(p); p != "" {
						out.Populate = append(out.Populate, p)
					}
				}
			}
			continue
		case "sort":
			out.Sort = content.ParseSort(strings.Join(vals, ","))
			continue
		case "locale":
			out.Locale = strings.TrimSpace(q.Get("locale"))
			continue
		case "publicationState":
			ps, err := domain.ParsePublicationState(q.Get("publicationState"))
			if err != nil {
				return out, err
			}
			out.PublicationState = ps
			continue
		case "pagination[page]":
			n, err := positiveInt(key, q.Get(key))
			if err != nil {
				return out, err
			}
			out.Pagination.Page = n
			continue
		case "pagination[pageSize]":
			n, err := positiveInt(key, q.Get(key))
			if err != nil {
				return out, err
			}
			out.Pagination.PageSize = n
			continue
		}

		m := filterKeyRe.FindStringSubmatch(key)
		if m == nil {
			continue // прочие параметры игнорируем
		}
		opRaw := m[2]
		if opRaw == "" {
			opRaw = "eq"
		}
		op, ok := content.ParseOp(opRaw)
		if !ok {
			return out, apperr.FieldValidation(m[1], "Unknown filter operator '%s'", opRaw)
		}
		out.Filters = append(out.Filters, content.Condition{Field: m[1], Op: op, Values: vals})
	}
	return out, nil
}

func positiveInt(key, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, apperr.FieldValidation(key, "%s must be a positive integer", key)
	}
	return n, nil
}

// boolParam: "1", "true", "yes" → true.
func boolParam(q url.Values, key string) bool {
	switch strings.ToLower(strings.TrimSpace(q.Get(key))) {
	case "1", "true", "yes":
		return true
	}
	return false
}
