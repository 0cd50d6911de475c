package content

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"klinika/internal/apperr"
	"klinika/internal/domain"
)

// relationResult: данные одной связи для всех записей страницы.
type relationResult struct {
	rel      *RelationDesc
	links    map[string][]string
	targets  map[string]Entity // nil, если связь не запрошена в populate
	populate bool
}

// entities строит объекты и прикладывает связи: id без populate, объекты с ним.
// Каждая связь: отдельная выборка, связи грузятся параллельно.
func (s *Service) entities(ctx context.Context, sch *Schema, rows []*Row, locale string, q Query) ([]Entity, error) {
	out := make([]Entity, len(rows))
	for i, r := range rows {
		out[i] = toEntity(sch, r, locale)
	}
	if len(rows) == 0 || len(sch.Relations) == 0 {
		if err := checkPopulate(sch, q.Populate); err != nil {
			return nil, err
		}
		return out, nil
	}
	want, err := populateSet(sch, q.Populate)
	if err != nil {
		return nil, err
	}

	sourceIDs := make([]string, len(rows))
	for i, r := range rows {
		sourceIDs[i] = r.ID
	}

	results := make([]relationResult, len(sch.Relations))
	g, gctx := errgroup.WithContext(ctx)
	for i, rel := range sch.Relations {
		i, rel := i, rel
		results[i] = relationResult{rel: rel, populate: want[rel.Field.Name]}
		g.Go(func() error {
			links, err := s.store.FindLinks(gctx, sch, rel, sourceIDs)
			if err != nil {
				return err
			}
			results[i].links = links
			if !results[i].populate {
				return nil
			}
			targets, err := s.fetchTargets(gctx, rel, links, locale, q.PublicationState)
			if err != nil {
				return err
			}
			results[i].targets = targets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, e := range out {
		id := e.ID()
		for _, res := range results {
			e[res.rel.Field.Name] = attach(res, res.links[id])
		}
	}
	return out, nil
}

func attach(res relationResult, targetIDs []string) any {
	if !res.populate {
		if res.rel.ToMany {
			if targetIDs == nil {
				return []string{}
			}
			return targetIDs
		}
		if len(targetIDs) == 0 {
			return nil
		}
		return targetIDs[0]
	}
	if res.rel.ToMany {
		items := make([]Entity, 0, len(targetIDs))
		for _, tid := range targetIDs {
			if t, ok := res.targets[tid]; ok {
				items = append(items, t)
			}
		}
		return items
	}
	for _, tid := range targetIDs {
		if t, ok := res.targets[tid]; ok {
			return t
		}
	}
	return nil
}

func (s *Service) fetchTargets(ctx context.Context, rel *RelationDesc, links map[string][]string, locale string, state domain.PublicationState) (map[string]Entity, error) {
	seen := make(map[string]struct{})
	var tids []string
	for _, ts := range links {
		for _, t := range ts {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				tids = append(tids, t)
			}
		}
	}
	if len(tids) == 0 {
		return map[string]Entity{}, nil
	}
	target, err := s.resolver.Resolve(ctx, rel.Target)
	if err != nil {
		return nil, err
	}
	rq := RowQuery{IDs: tids, Locale: locale}
	if state != domain.PublicationPreview {
		rq.Statuses = []domain.Status{domain.StatusPublished}
	}
	rows, _, err := s.store.FindRows(ctx, target, rq)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Entity, len(rows))
	for _, r := range rows {
		out[r.ID] = toEntity(target, r, locale)
	}
	return out, nil
}

// populateSet: "*" значит все связи; неизвестное имя даёт ValidationError.
func populateSet(sch *Schema, names []string) (map[string]bool, error) {
	want := make(map[string]bool)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if n == "*" {
			for _, rel := range sch.Relations {
				want[rel.Field.Name] = true
			}
			continue
		}
		if _, ok := sch.Relation(n); !ok {
			return nil, apperr.FieldValidation("populate", "Unknown relation '%s'", n)
		}
		want[n] = true
	}
	return want, nil
}

func checkPopulate(sch *Schema, names []string) error {
	_, err := populateSet(sch, names)
	return err
}
