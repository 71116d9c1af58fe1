package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestMembersAcceptsValidRoster(t *testing.T) {
	data := []byte(`[
		{"id":"1","name":"A","role":"Chairperson","imageUrl":"img1","socials":{}},
		{"id":"2","name":"B","role":"Secretary","imageUrl":"execom/b.jpg",
		 "socials":{"github":"https://github.com/b","linkedin":"https://linkedin.com/in/b"}}
	]`)

	members, err := Members(data)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[1].Socials == nil || members[1].Socials.GitHub != "https://github.com/b" {
		t.Fatalf("unexpected socials: %#v", members[1].Socials)
	}

	out, err := json.Marshal(members[:1])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"id":"1","name":"A","role":"Chairperson","imageUrl":"img1","socials":{}}]`
	if string(out) != want {
		t.Fatalf("round trip mismatch:\n got %s\nwant %s", out, want)
	}
}

func TestDecodeRejections(t *testing.T) {
	cases := []struct {
		name    string
		decode  func([]byte) error
		data    string
		field   string
		index   int
		contain string
	}{
		{
			name:    "top level object",
			decode:  members,
			data:    `{"id":"1"}`,
			index:   -1,
			contain: "must be an array",
		},
		{
			name:    "unknown key",
			decode:  members,
			data:    `[{"id":"1","name":"A","role":"R","imageUrl":"i","socials":{},"age":3}]`,
			field:   "age",
			contain: "unknown field",
		},
		{
			name:    "unknown nested key",
			decode:  members,
			data:    `[{"id":"1","name":"A","role":"R","imageUrl":"i","socials":{"twitter":"https://x.com/a"}}]`,
			field:   "socials.twitter",
			contain: "unknown field",
		},
		{
			name:    "key differing only in case",
			decode:  members,
			data:    `[{"id":"1","Name":"A","role":"R","imageUrl":"i","socials":{}}]`,
			field:   "Name",
			contain: "unknown field",
		},
		{
			name:    "upper and lower case id",
			decode:  members,
			data:    `[{"ID":"1","id":"2","name":"A","role":"R","imageUrl":"i","socials":{}}]`,
			field:   "ID",
			contain: "unknown field",
		},
		{
			name:    "nested key differing only in case",
			decode:  members,
			data:    `[{"id":"1","name":"A","role":"R","imageUrl":"i","socials":{"GitHub":"https://g.com"}}]`,
			field:   "socials.GitHub",
			contain: "unknown field",
		},
		{
			name:    "null optional description",
			decode:  timeline,
			data:    `[{"id":"t","title":"A","description":null,"dateISO":"2020"}]`,
			field:   "description",
			contain: "must not be null",
		},
		{
			name:    "null optional links",
			decode:  events,
			data:    `[{"id":"e","title":"T","description":"D","dateISO":"2024","kind":"past","links":null}]`,
			field:   "links",
			contain: "must not be null",
		},
		{
			name:    "unknown key inside link",
			decode:  events,
			data:    `[{"id":"e","title":"T","description":"D","dateISO":"2024","kind":"past","links":[{"label":"L","url":"https://x.org","URL":"https://y.org"}]}]`,
			field:   "links[0].URL",
			contain: "unknown field",
		},
		{
			name:    "empty image url",
			decode:  members,
			data:    `[{"id":"1","name":"A","role":"R","imageUrl":"","socials":{}}]`,
			field:   "imageUrl",
			contain: "non-empty",
		},
		{
			name:    "missing socials",
			decode:  members,
			data:    `[{"id":"1","name":"A","role":"R","imageUrl":"i"}]`,
			field:   "socials",
			contain: "required",
		},
		{
			name:    "malformed social url",
			decode:  members,
			data:    `[{"id":"1","name":"A","role":"R","imageUrl":"i","socials":{"instagram":"not a url"}}]`,
			field:   "socials.instagram",
			contain: "URL",
		},
		{
			name:    "wrong type",
			decode:  members,
			data:    `[{"id":1,"name":"A","role":"R","imageUrl":"i","socials":{}}]`,
			field:   "id",
			contain: "must be a string",
		},
		{
			name:    "bad kind",
			decode:  events,
			data:    `[{"id":"e","title":"T","description":"D","dateISO":"2024-01-01","kind":"cancelled"}]`,
			field:   "kind",
			contain: "upcoming, past",
		},
		{
			name:    "short date",
			decode:  events,
			data:    `[{"id":"e","title":"T","description":"D","dateISO":"24","kind":"past"}]`,
			field:   "dateISO",
			contain: "at least 4",
		},
		{
			name:    "bad link url",
			decode:  events,
			data:    `[{"id":"e","title":"T","description":"D","dateISO":"2024","kind":"past","links":[{"label":"L","url":"nope"}]}]`,
			field:   "links[0].url",
			contain: "URL",
		},
		{
			name:    "duplicate ids",
			decode:  timeline,
			data:    `[{"id":"t","title":"A","dateISO":"2020"},{"id":"t","title":"B","dateISO":"2021"}]`,
			field:   "id",
			index:   1,
			contain: "unique",
		},
		{
			name:    "null element",
			decode:  timeline,
			data:    `[null]`,
			contain: "must be an object",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.decode([]byte(tc.data))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T %v", err, err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q (%v)", tc.field, verr.Field, verr)
			}
			if verr.Index != tc.index {
				t.Fatalf("expected index %d, got %d (%v)", tc.index, verr.Index, verr)
			}
			if !strings.Contains(verr.Error(), tc.contain) {
				t.Fatalf("expected %q in %q", tc.contain, verr.Error())
			}
		})
	}
}

func TestTimelineKeepsOptionalDescription(t *testing.T) {
	items, err := Timeline([]byte(`[
		{"id":"a","title":"Founded","dateISO":"2019-08-01"},
		{"id":"b","title":"First hackathon","description":"","dateISO":"2020-02-10"}
	]`))
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if items[0].Description != nil {
		t.Fatalf("expected absent description to stay nil")
	}
	if items[1].Description == nil || *items[1].Description != "" {
		t.Fatalf("expected empty description to be preserved")
	}
}

func TestEventsRoundTripLinks(t *testing.T) {
	in := `[{"id":"a","title":"T","description":"D","dateISO":"2024","kind":"past","links":[]},` +
		`{"id":"b","title":"T","description":"D","dateISO":"2024","kind":"upcoming"},` +
		`{"id":"c","title":"T","description":"D","dateISO":"2024","kind":"past","links":[{"label":"L","url":"https://x.org"}]}]`

	items, err := Events([]byte(in))
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	out, err := json.Marshal(items)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != in {
		t.Fatalf("round trip mismatch:\n got %s\nwant %s", out, in)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Dataset: "events", Index: 2, Field: "kind", Constraint: "must be one of [upcoming, past]"}
	if got := err.Error(); got != "events[2].kind: must be one of [upcoming, past]" {
		t.Fatalf("unexpected message %q", got)
	}
}

func members(data []byte) error {
	_, err := Members(data)
	return err
}

func events(data []byte) error {
	_, err := Events(data)
	return err
}

func timeline(data []byte) error {
	_, err := Timeline(data)
	return err
}
