package pages

import (
	"context"
	"errors"
	"strings"

	"klinika/internal/apperr"
	"klinika/internal/sections"
)

type AddSectionInput struct {
	PageID       string         `json:"page_id"`
	SectionType  string         `json:"section_type"`
	SectionData  map[string]any `json:"section_data"`
	DisplayOrder *int           `json:"display_order"`
}

func catalogType(key string) (*sections.Type, error) {
	st, ok := sections.Lookup(key)
	if !ok {
		return nil, apperr.FieldValidation("section_type", "Unknown section type: %s", key)
	}
	return st, nil
}

// componentData приводит поля компонента; незнакомые ключи отбрасываются.
func componentData(st *sections.Type, raw map[string]any, create bool) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for key, v := range raw {
		f := st.Field(key)
		if f == nil {
			continue
		}
		cv, err := f.Coerce(v)
		if err != nil {
			return nil, apperr.FieldValidation(key, "%s: %v", key, err)
		}
		if cv == nil && f.Required {
			return nil, apperr.FieldValidation(key, "Missing required field: %s", key)
		}
		out[key] = cv
	}
	if create {
		for _, f := range st.Fields {
			if _, ok := out[f.Name]; !ok && f.Required {
				return nil, apperr.FieldValidation(f.Name, "Missing required field: %s", f.Name)
			}
		}
	}
	return out, nil
}

// AddSection вставляет строку компонента и junction. Без display_order
// секция встаёт в конец. Все проверки идут до первой записи.
func (s *Service) AddSection(ctx context.Context, in AddSectionInput) (*Section, error) {
	st, err := catalogType(in.SectionType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.PageID) == "" {
		return nil, apperr.FieldValidation("page_id", "page_id: cannot be blank")
	}
	if _, err := s.store.GetPage(ctx, in.PageID); err != nil {
		return nil, err
	}
	data, err := componentData(st, in.SectionData, true)
	if err != nil {
		return nil, err
	}
	js, err := s.store.ListJunctions(ctx, in.PageID)
	if err != nil {
		return nil, err
	}
	order := 1
	for _, j := range js {
		if j.DisplayOrder >= order {
			order = j.DisplayOrder + 1
		}
	}
	if in.DisplayOrder != nil {
		for _, j := range js {
			if j.DisplayOrder == *in.DisplayOrder {
				return nil, apperr.FieldValidation("display_order", "display_order %d is already used on this page", *in.DisplayOrder)
			}
		}
		order = *in.DisplayOrder
	}

	compID := s.ids.New()
	if err := s.store.InsertComponent(ctx, st.Table, compID, data); err != nil {
		return nil, err
	}
	j := &Junction{
		ID:           s.ids.New(),
		PageID:       in.PageID,
		SectionType:  st.Key,
		SectionID:    compID,
		DisplayOrder: order,
		CreatedAt:    s.now(),
	}
	if err := s.store.InsertJunction(ctx, j); err != nil {
		if derr := s.store.DeleteComponent(context.WithoutCancel(ctx), st.Table, compID); derr != nil {
			s.log.Error("rollback section component", "table", st.Table, "id", compID, "err", derr)
		}
		return nil, err
	}
	s.log.Info("section added", "page", in.PageID, "type", st.Key, "order", order)
	data["id"] = compID
	return &Section{
		ID:           j.ID,
		PageID:       j.PageID,
		SectionType:  j.SectionType,
		SectionID:    compID,
		DisplayOrder: order,
		Data:         data,
	}, nil
}

// junctionFor ищет junction страницы по строке компонента.
func (s *Service) junctionFor(ctx context.Context, pageID, sectionID, sectionType string) (*Junction, error) {
	if _, err := s.store.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	js, err := s.store.ListJunctions(ctx, pageID)
	if err != nil {
		return nil, err
	}
	for _, j := range js {
		if j.SectionID == sectionID && j.SectionType == sectionType {
			return j, nil
		}
	}
	return nil, apperr.NotFound("Section not found")
}

// UpdateSection правит строку компонента на месте; порядок не меняется.
func (s *Service) UpdateSection(ctx context.Context, pageID, sectionID, sectionType string, updates map[string]any) (*Section, error) {
	st, err := catalogType(sectionType)
	if err != nil {
		return nil, err
	}
	j, err := s.junctionFor(ctx, pageID, sectionID, st.Key)
	if err != nil {
		return nil, err
	}
	data, err := componentData(st, updates, false)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := s.store.UpdateComponent(ctx, st.Table, sectionID, data); err != nil {
			return nil, err
		}
	}
	got, err := s.store.GetComponents(ctx, st.Table, []string{sectionID})
	if err != nil {
		return nil, err
	}
	row, ok := got[sectionID]
	if !ok {
		return nil, apperr.NotFound("Section not found")
	}
	return &Section{
		ID:           j.ID,
		PageID:       j.PageID,
		SectionType:  j.SectionType,
		SectionID:    j.SectionID,
		DisplayOrder: j.DisplayOrder,
		Data:         row,
	}, nil
}

// DeleteSection удаляет строку компонента, затем junction. При сбое на
// junction повторный вызов доводит удаление до конца: чтение пропускает
// junction без компонента, а отсутствующий компонент здесь не ошибка.
func (s *Service) DeleteSection(ctx context.Context, pageID, sectionID, sectionType string) error {
	st, err := catalogType(sectionType)
	if err != nil {
		return err
	}
	j, err := s.junctionFor(ctx, pageID, sectionID, st.Key)
	if err != nil {
		return err
	}
	if err := s.store.DeleteComponent(ctx, st.Table, sectionID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if err := s.store.DeleteJunction(ctx, j.ID); err != nil {
		return err
	}
	s.log.Info("section deleted", "page", pageID, "type", st.Key, "id", sectionID)
	return nil
}

// ReorderSections переписывает display_order junction-строк страницы одной
// пачкой. Чужие id, повторы и совпадающие итоговые позиции отклоняют весь
// набор, ничего не записав.
func (s *Service) ReorderSections(ctx context.Context, pageID string, orders []SectionOrder) ([]*Section, error) {
	if _, err := s.store.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, apperr.FieldValidation("sections", "sections: cannot be blank")
	}
	js, err := s.store.ListJunctions(ctx, pageID)
	if err != nil {
		return nil, err
	}
	final := make(map[string]int, len(js))
	for _, j := range js {
		final[j.ID] = j.DisplayOrder
	}
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if _, ok := final[o.JunctionID]; !ok {
			return nil, apperr.FieldValidation("sections", "Section %s does not belong to page %s", o.JunctionID, pageID)
		}
		if seen[o.JunctionID] {
			return nil, apperr.FieldValidation("sections", "Section %s listed twice", o.JunctionID)
		}
		seen[o.JunctionID] = true
		final[o.JunctionID] = o.Order
	}
	used := make(map[int]string, len(final))
	for id, ord := range final {
		if other, dup := used[ord]; dup {
			return nil, apperr.FieldValidation("sections", "Sections %s and %s would share order %d", other, id, ord)
		}
		used[ord] = id
	}
	if err := s.store.ReorderJunctions(ctx, pageID, orders); err != nil {
		return nil, err
	}
	s.log.Info("sections reordered", "page", pageID, "count", len(orders))
	return s.sectionsOf(ctx, pageID)
}
