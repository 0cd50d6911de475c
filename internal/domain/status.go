package domain

import (
	"strings"

	"klinika/internal/apperr"
)

// Status: жизненный цикл записи и страницы.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// ParseStatus нормализует строку статуса; неизвестное значение: ValidationError.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusDraft, StatusPublished, StatusArchived:
		return s, nil
	default:
		return "", apperr.FieldValidation("status", "Invalid status %q (allowed: draft|published|archived)", raw)
	}
}

// StatusForAction переводит действие из POST .../actions в статус.
func StatusForAction(action string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "publish":
		return StatusPublished, nil
	case "unpublish":
		return StatusDraft, nil
	case "archive":
		return StatusArchived, nil
	default:
		return "", apperr.FieldValidation("action", "Unknown action %q (allowed: publish|unpublish|archive)", action)
	}
}

// PublicationState: live (только опубликованное) или preview (всё).
type PublicationState string

const (
	PublicationLive    PublicationState = "live"
	PublicationPreview PublicationState = "preview"
)

func ParsePublicationState(raw string) (PublicationState, error) {
	switch p := PublicationState(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PublicationLive, nil
	case PublicationLive, PublicationPreview:
		return p, nil
	default:
		return "", apperr.FieldValidation("publicationState", "Invalid publicationState %q (allowed: live|preview)", raw)
	}
}
