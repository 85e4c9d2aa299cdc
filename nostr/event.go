package nostr

import (
	"errors"
	"slices"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrMalformedEvent is returned when an event payload is not a JSON object with the NIP-01 field types.
	ErrMalformedEvent = errors.New("event json is malformed")

	// ErrMissingEventField is returned when a required event field is absent or empty.
	ErrMissingEventField = errors.New("event field is missing or empty")

	// ErrNegativeKind is returned when an event carries a negative kind.
	ErrNegativeKind = errors.New("event kind must not be negative")
)

// Tag is a single event tag, the first element is the tag name.
type Tag = []string

// Tags is the ordered tag list of an event.
type Tags [][]string

// MarshalJSON always encodes an absent tag list as an empty array, NIP-01 does not allow null.
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}

	return json.Marshal([][]string(t))
}

// Find returns the first tag with the given name.
func (t Tags) Find(name string) (Tag, bool) {
	for _, tag := range t {
		if len(tag) > 0 && tag[0] == name {
			return tag, true
		}
	}

	return nil, false
}

// ContainsAny reports whether some tag with the given name has a value in values.
func (t Tags) ContainsAny(name string, values []string) bool {
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == name && slices.Contains(values, tag[1]) {
			return true
		}
	}

	return false
}

// Event is a signed Nostr event. It is never mutated after creation.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Class returns the lifecycle class derived from the event kind.
func (e Event) Class() EventClass {
	return ClassifyKind(e.Kind)
}

// DTag returns the value of the first "d" tag. A "d" tag without a value yields "" and true.
func (e Event) DTag() (string, bool) {
	tag, found := e.Tags.Find("d")
	if !found {
		return "", false
	}

	if len(tag) < 2 {
		return "", true
	}

	return tag[1], true
}

// MarshalEvent encodes the event as its NIP-01 JSON object.
func MarshalEvent(e Event) ([]byte, error) {
	if e.Tags == nil {
		e.Tags = Tags{}
	}

	return json.Marshal(e)
}

// rawEvent keeps track of which fields were present so that missing integers are not silently zero.
type rawEvent struct {
	ID        *string     `json:"id"`
	PubKey    *string     `json:"pubkey"`
	CreatedAt *int64      `json:"created_at"`
	Kind      *int        `json:"kind"`
	Tags      *[][]string `json:"tags"`
	Content   *string     `json:"content"`
	Sig       *string     `json:"sig"`
}

// DecodeEvent decodes a NIP-01 event object and enforces the field types.
//
// It does not check the id or the signature, that is the job of the validator.
func DecodeEvent(data []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, errors.Join(ErrMalformedEvent, err)
	}

	if raw.ID == nil || raw.PubKey == nil || raw.Sig == nil ||
		raw.CreatedAt == nil || raw.Kind == nil || raw.Tags == nil || raw.Content == nil {

		return Event{}, ErrMissingEventField
	}

	event := Event{
		ID:        *raw.ID,
		PubKey:    *raw.PubKey,
		CreatedAt: *raw.CreatedAt,
		Kind:      *raw.Kind,
		Tags:      Tags(*raw.Tags),
		Content:   *raw.Content,
		Sig:       *raw.Sig,
	}

	if err := CheckStructure(event); err != nil {
		return Event{}, err
	}

	return event, nil
}

// CheckStructure verifies the structural completeness of an already typed event.
func CheckStructure(e Event) error {
	if e.ID == "" || e.PubKey == "" || e.Sig == "" {
		return ErrMissingEventField
	}

	if e.Kind < 0 {
		return ErrNegativeKind
	}

	for _, tag := range e.Tags {
		if tag == nil {
			return ErrMalformedEvent
		}
	}

	return nil
}

// ExtractEventID pulls the "id" string out of an event payload on a best-effort basis.
// It is used to address OK responses for events that could not be decoded.
func ExtractEventID(data []byte) string {
	id := json.Get(data, "id")
	if id.ValueType() != jsoniter.StringValue {
		return ""
	}

	return id.ToString()
}
