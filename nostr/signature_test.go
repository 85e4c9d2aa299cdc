package nostr_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/nostr-relay-go/nostr"
	"github.com/AntonStoeckl/nostr-relay-go/testutil/fixtures"
)

func Test_SchnorrValidator_When_EventIsSignedCorrectly(t *testing.T) {
	for _, cacheSize := range []int{0, nostr.DefaultVerifiedCacheSize} {
		// arrange
		validator, err := nostr.NewSchnorrValidator(cacheSize)
		require.NoError(t, err)
		event := fixtures.GivenAuthor(t).TextNote(t, 1700000000, "hello\nworld", nostr.Tag{"t", "go"})

		// act / assert
		assert.True(t, validator.Validate(context.Background(), event))
		assert.True(t, validator.Validate(context.Background(), event), "second validation must hit the cache path")
	}
}

func Test_SchnorrValidator_When_EventIsTampered(t *testing.T) {
	author := fixtures.GivenAuthor(t)
	other := fixtures.GivenAuthor(t)
	event := author.TextNote(t, 1700000000, "original")

	tests := []struct {
		name   string
		tamper func(e nostr.Event) nostr.Event
	}{
		{
			name: "content_changed",
			tamper: func(e nostr.Event) nostr.Event {
				e.Content = "changed"
				return e
			},
		},
		{
			name: "content_changed_and_id_recomputed",
			tamper: func(e nostr.Event) nostr.Event {
				e.Content = "changed"
				e.ID = nostr.ComputeID(e)
				return e
			},
		},
		{
			name: "pubkey_swapped_and_id_recomputed",
			tamper: func(e nostr.Event) nostr.Event {
				e.PubKey = other.PubKey
				e.ID = nostr.ComputeID(e)
				return e
			},
		},
		{
			name: "signature_flipped",
			tamper: func(e nostr.Event) nostr.Event {
				last := e.Sig[len(e.Sig)-1]
				replacement := "0"
				if last == '0' {
					replacement = "1"
				}
				e.Sig = e.Sig[:len(e.Sig)-1] + replacement
				return e
			},
		},
		{
			name: "signature_not_hex",
			tamper: func(e nostr.Event) nostr.Event {
				e.Sig = strings.Repeat("z", 128)
				return e
			},
		},
		{
			name: "signature_missing",
			tamper: func(e nostr.Event) nostr.Event {
				e.Sig = ""
				return e
			},
		},
		{
			name: "negative_kind",
			tamper: func(e nostr.Event) nostr.Event {
				e.Kind = -1
				return e
			},
		},
		{
			name: "nil_tag",
			tamper: func(e nostr.Event) nostr.Event {
				e.Tags = nostr.Tags{nil}
				return e
			},
		},
	}

	validator, err := nostr.NewSchnorrValidator(nostr.DefaultVerifiedCacheSize)
	require.NoError(t, err)
	require.True(t, validator.Validate(context.Background(), event))

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			valid := validator.Validate(context.Background(), tc.tamper(event))

			// assert
			assert.False(t, valid)
		})
	}
}

func Test_VerifySignature_Reports_Cause(t *testing.T) {
	// arrange
	event := fixtures.GivenAuthor(t).TextNote(t, 1, "x")
	short := event
	short.PubKey = "abcd"

	// act / assert
	assert.NoError(t, nostr.VerifySignature(event))
	assert.ErrorIs(t, nostr.VerifySignature(short), nostr.ErrInvalidHex)
}

func Test_SignEvent_Sets_PubKey_ID_And_Sig(t *testing.T) {
	// arrange
	key, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	event := nostr.Event{CreatedAt: 42, Kind: 1, Content: "signed"}

	// act
	err = nostr.SignEvent(&event, key)

	// assert
	require.NoError(t, err)
	assert.Equal(t, nostr.PublicKeyHex(key), event.PubKey)
	assert.True(t, nostr.HasValidID(event))
	assert.Len(t, event.Sig, 128)
}
