package nostr

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	lru "github.com/hashicorp/golang-lru"
)

const (
	idBytesLen     = 32
	pubKeyBytesLen = 32
	sigBytesLen    = 64

	// DefaultVerifiedCacheSize is the number of verified (id, pubkey, sig) tuples remembered by the validator.
	DefaultVerifiedCacheSize = 4096
)

var (
	// ErrInvalidHex is returned when id, pubkey or sig are not hex of the expected length.
	ErrInvalidHex = errors.New("event field is not valid hex of the expected length")

	// ErrIDMismatch is returned when the event id does not match the canonical hash.
	ErrIDMismatch = errors.New("event id does not match its content")

	// ErrInvalidSignature is returned when the signature does not verify under the pubkey.
	ErrInvalidSignature = errors.New("event signature is invalid")
)

// SchnorrValidator validates events: structure first, then id, then the BIP-340 signature.
// Verified tuples are remembered so that a republished event skips the signature check.
type SchnorrValidator struct {
	verified *lru.Cache
}

// NewSchnorrValidator creates a validator with a verified-signature cache of the given size.
// A size of 0 disables the cache.
func NewSchnorrValidator(cacheSize int) (*SchnorrValidator, error) {
	if cacheSize <= 0 {
		return &SchnorrValidator{}, nil
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	return &SchnorrValidator{verified: cache}, nil
}

// Validate reports whether the event is structurally complete, correctly hashed and correctly signed.
// It never panics, internal crypto failures are reported as false.
func (v *SchnorrValidator) Validate(_ context.Context, e Event) (valid bool) {
	defer func() {
		if recover() != nil {
			valid = false
		}
	}()

	return v.check(e) == nil
}

func (v *SchnorrValidator) check(e Event) error {
	if err := CheckStructure(e); err != nil {
		return err
	}

	if !HasValidID(e) {
		return ErrIDMismatch
	}

	cacheKey := e.ID + e.PubKey + e.Sig
	if v.verified != nil && v.verified.Contains(cacheKey) {
		return nil
	}

	if err := VerifySignature(e); err != nil {
		return err
	}

	if v.verified != nil {
		v.verified.Add(cacheKey, struct{}{})
	}

	return nil
}

// VerifySignature checks the Schnorr signature of the event id under the x-only pubkey.
func VerifySignature(e Event) error {
	idBytes, err := decodeHex(e.ID, idBytesLen)
	if err != nil {
		return err
	}

	pubKeyBytes, err := decodeHex(e.PubKey, pubKeyBytesLen)
	if err != nil {
		return err
	}

	sigBytes, err := decodeHex(e.Sig, sigBytesLen)
	if err != nil {
		return err
	}

	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}

	if !sig.Verify(idBytes, pubKey) {
		return ErrInvalidSignature
	}

	return nil
}

// GeneratePrivateKey creates a new secp256k1 private key.
func GeneratePrivateKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// PublicKeyHex returns the x-only public key of the private key as lowercase hex.
func PublicKeyHex(key *btcec.PrivateKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(key.PubKey()))
}

// SignEvent sets pubkey, id and sig of the event for the given private key.
func SignEvent(e *Event, key *btcec.PrivateKey) error {
	e.PubKey = PublicKeyHex(key)
	e.ID = ComputeID(*e)

	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return err
	}

	sig, err := schnorr.Sign(key, idBytes)
	if err != nil {
		return err
	}

	e.Sig = hex.EncodeToString(sig.Serialize())

	return nil
}

func decodeHex(s string, expectedLen int) ([]byte, error) {
	if len(s) != expectedLen*2 {
		return nil, ErrInvalidHex
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Join(ErrInvalidHex, err)
	}

	return b, nil
}
