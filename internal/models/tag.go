package models

// Tag is a label that can be attached to a series upstream
type Tag struct {
	ID    int
	Label string
}

// FindTagID returns the id of the first tag whose label equals label (case-sensitive),
// or nil when no tag matches.
func FindTagID(tags []Tag, label string) *int {
	for _, tag := range tags {
		if tag.Label == label {
			id := tag.ID
			return &id
		}
	}
	return nil
}
