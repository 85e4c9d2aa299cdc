package fixtures

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/nostr-relay-go/nostr"
)

// Author is a test identity that signs events.
type Author struct {
	key    *btcec.PrivateKey
	PubKey string
}

// GivenAuthor creates an author with a fresh private key.
func GivenAuthor(t testing.TB) Author {
	key, err := nostr.GeneratePrivateKey()
	assert.NoError(t, err, "error in arranging test data")

	return Author{key: key, PubKey: nostr.PublicKeyHex(key)}
}

// Sign returns a copy of the event with pubkey, id and sig set by this author.
func (a Author) Sign(t testing.TB, event nostr.Event) nostr.Event {
	err := nostr.SignEvent(&event, a.key)
	assert.NoError(t, err, "error in arranging test data")

	return event
}

// Event builds and signs an event of any kind.
func (a Author) Event(t testing.TB, kind int, createdAt int64, content string, tags ...nostr.Tag) nostr.Event {
	return a.Sign(t, nostr.Event{
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      nostr.Tags(tags),
		Content:   content,
	})
}

// TextNote builds a signed kind 1 event.
func (a Author) TextNote(t testing.TB, createdAt int64, content string, tags ...nostr.Tag) nostr.Event {
	return a.Event(t, nostr.KindTextNote, createdAt, content, tags...)
}

// Metadata builds a signed kind 0 (replaceable) event.
func (a Author) Metadata(t testing.TB, createdAt int64, name string) nostr.Event {
	return a.Event(t, nostr.KindMetadata, createdAt, fmt.Sprintf(`{"name":%q}`, name))
}

// Addressable builds a signed event in the addressable range with the given d tag.
func (a Author) Addressable(t testing.TB, kind int, createdAt int64, dTag string, content string) nostr.Event {
	return a.Event(t, kind, createdAt, content, nostr.Tag{"d", dTag})
}

// UnsignedEvent builds an event that is only good for matcher tests, its id is random.
func UnsignedEvent(kind int, pubKey string, createdAt int64, tags ...nostr.Tag) nostr.Event {
	return nostr.Event{
		ID:        uuid.NewString(),
		PubKey:    pubKey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      nostr.Tags(tags),
		Content:   "",
		Sig:       "unsigned",
	}
}

// Int64 returns a pointer to v, handy for Filter.Since and Filter.Until.
func Int64(v int64) *int64 {
	return &v
}

// Int returns a pointer to v, handy for Filter.Limit.
func Int(v int) *int {
	return &v
}
