// Package reconcile merges a fresh scrape of a listing into the entities
// previously built from it.
package reconcile

import "fmt"

// Row is a scraped description of a listed resource.
type Row interface {
	StableId() string
	Validate() error
}

// Entity is a long lived object built from rows.
type Entity[R Row] interface {
	StableId() string
	// Update replaces the fields of the entity with the ones of the row, the
	// row always has the same stable id as the entity.
	Update(row R) error
	// Invalidate marks the entity as gone from its listing.
	Invalidate()
}

// Reconcile returns the entities for rows. Entities in held whose stable id
// appears in rows are updated in place and kept in their original order,
// ids seen for the first time are constructed and appended in row order.
// Held entities with no matching row are invalidated and dropped.
//
// Rows are all validated before anything is modified, so an invalid row
// leaves held untouched.
func Reconcile[E Entity[R], R Row](held []E, rows []R, construct func(row R) (E, error)) ([]E, error) {
	for i, row := range rows {
		err := row.Validate()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}

	byId := make(map[string]E, len(held))
	for _, e := range held {
		byId[e.StableId()] = e
	}

	seen := map[string]bool{}
	var created []E
	for _, row := range rows {
		id := row.StableId()
		if e, ok := byId[id]; ok {
			err := e.Update(row)
			if err != nil {
				return nil, fmt.Errorf("update '%s': %w", id, err)
			}
			seen[id] = true
			continue
		}

		e, err := construct(row)
		if err != nil {
			return nil, fmt.Errorf("construct '%s': %w", id, err)
		}
		byId[id] = e
		seen[id] = true
		created = append(created, e)
	}

	out := make([]E, 0, len(seen))
	for _, e := range held {
		if seen[e.StableId()] {
			out = append(out, e)
			continue
		}
		e.Invalidate()
	}
	out = append(out, created...)
	return out, nil
}

// Upsert updates the entity in held with the stable id of row or constructs
// and appends a new one, nothing is invalidated. It is used when rows of a
// listing are discovered piecemeal (ex. topic attachments).
func Upsert[E Entity[R], R Row](held []E, row R, construct func(row R) (E, error)) ([]E, E, error) {
	var zero E
	err := row.Validate()
	if err != nil {
		return held, zero, err
	}

	id := row.StableId()
	for _, e := range held {
		if e.StableId() != id {
			continue
		}
		err := e.Update(row)
		if err != nil {
			return held, zero, fmt.Errorf("update '%s': %w", id, err)
		}
		return held, e, nil
	}

	e, err := construct(row)
	if err != nil {
		return held, zero, fmt.Errorf("construct '%s': %w", id, err)
	}
	return append(held, e), e, nil
}
