// Package resources contains the entities listed on a class page. Entities
// keep their identity across re-scrapes of their listing, once an entity
// disappears from its listing every field access fails with ErrInvalidated.
package resources

import (
	"errors"
	"fmt"
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"sync"
)

var (
	ErrInvalidated = errors.New("resource is no longer listed")
	// ErrExpiredLink is returned when a download stays expired after the
	// listing it belongs to was scraped again.
	ErrExpiredLink = errors.New("download link expired")
	// ErrDownloadExpired is returned when the portal answers a download with
	// something other than a file.
	ErrDownloadExpired = errors.New("download expired")
)

type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Reason)
}

type ResourceType string

const (
	RESOURCE_FILE        ResourceType = "file"
	RESOURCE_QUIZ        ResourceType = "quiz"
	RESOURCE_HOMEWORK    ResourceType = "homework"
	RESOURCE_NEWS        ResourceType = "news"
	RESOURCE_WEB_CONTENT ResourceType = "web-content"
)

// Resource is implemented by every entity.
type Resource interface {
	StableId() string
	Type() ResourceType
	Invalidated() bool
}

// entity holds the fields of a resource, a nil active means the resource
// has been invalidated.
type entity[R any] struct {
	id     string
	mutex  sync.RWMutex
	active *R
}

func (e *entity[R]) init(id string, row R) {
	e.id = id
	e.active = &row
}

func (e *entity[R]) StableId() string {
	return e.id
}

func (e *entity[R]) fields() (R, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	if e.active == nil {
		var zero R
		return zero, ErrInvalidated
	}
	return *e.active, nil
}

// replace swaps the fields of the entity, it also revives an invalidated
// entity that showed up again.
func (e *entity[R]) replace(kind ResourceType, id string, row R) error {
	if id != e.id {
		return ValidationError{
			Entity: string(kind),
			Field:  "id",
			Reason: fmt.Sprintf("changed from '%s' to '%s'", e.id, id),
		}
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.active = &row
	return nil
}

func (e *entity[R]) Invalidate() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.active = nil
}

func (e *entity[R]) Invalidated() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.active == nil
}

func validateForm(kind ResourceType, field string, form postback.Form) error {
	if form.Action == nil {
		return ValidationError{Entity: string(kind), Field: field, Reason: "has no action"}
	}
	if form.Fields == nil {
		return ValidationError{Entity: string(kind), Field: field, Reason: "has no fields"}
	}
	return nil
}

func validateOptionalForm(kind ResourceType, field string, form *postback.Form) error {
	if form == nil {
		return nil
	}
	return validateForm(kind, field, *form)
}
