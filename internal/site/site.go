// Package site defines the read-only records served by the club backend.
//
// Records are authored out-of-band as JSON files and never mutated at
// runtime. Optional fields are pointers or omitempty so that a record
// round-trips exactly as it was written: an absent list stays absent and an
// empty one stays empty.
package site

// EventKind classifies a ClubEvent as ahead of or behind today.
type EventKind string

const (
	EventUpcoming EventKind = "upcoming"
	EventPast     EventKind = "past"
)

// SocialLinks holds optional profile links for a member.
type SocialLinks struct {
	Instagram string `json:"instagram,omitempty" validate:"omitempty,url"`
	LinkedIn  string `json:"linkedin,omitempty" validate:"omitempty,url"`
	GitHub    string `json:"github,omitempty" validate:"omitempty,url"`
}

// Member is one entry of the officer roster.
type Member struct {
	ID       string       `json:"id" validate:"required"`
	Name     string       `json:"name" validate:"required"`
	Role     string       `json:"role" validate:"required"`
	ImageURL string       `json:"imageUrl" validate:"required"`
	Socials  *SocialLinks `json:"socials" validate:"required"`
}

// EventLink is a labelled external link attached to an event.
type EventLink struct {
	Label string `json:"label" validate:"required"`
	URL   string `json:"url" validate:"required,url"`
}

// ClubEvent is a past or upcoming club event.
type ClubEvent struct {
	ID          string      `json:"id" validate:"required"`
	Title       string      `json:"title" validate:"required"`
	Description string      `json:"description" validate:"required"`
	DateISO     string      `json:"dateISO" validate:"min=4"`
	Kind        EventKind   `json:"kind" validate:"oneof=upcoming past"`
	Links       []EventLink `json:"links,omitzero" validate:"omitempty,dive"`
}

// TimelineItem is one milestone in the club history.
type TimelineItem struct {
	ID          string  `json:"id" validate:"required"`
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description,omitempty"`
	DateISO     string  `json:"dateISO" validate:"min=4"`
}

// Identifiable is implemented by every record kept in a dataset.
type Identifiable interface {
	RecordID() string
}

func (m Member) RecordID() string       { return m.ID }
func (e ClubEvent) RecordID() string    { return e.ID }
func (t TimelineItem) RecordID() string { return t.ID }
