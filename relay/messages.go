package relay

import (
	"bytes"
	"errors"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/nostr-relay-go/nostr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message type tags of the wire protocol.
const (
	TypeEvent  = "EVENT"
	TypeReq    = "REQ"
	TypeClose  = "CLOSE"
	TypeOK     = "OK"
	TypeEOSE   = "EOSE"
	TypeClosed = "CLOSED"
	TypeNotice = "NOTICE"
)

// Client facing texts. They are fixed and never carry internal error details.
const (
	NoticeInvalidMessage      = "Invalid message format"
	NoticeUnknownTypePrefix   = "Unknown message type: "
	NoticeInvalidEvent        = "Invalid EVENT message format"
	NoticeInvalidSubID        = "missing or invalid subscriptionId"
	NoticeMissingFilters      = "filters must be a non-empty array"
	NoticeInvalidFilterPrefix = "Invalid filter in subscription "
	NoticeInvalidClose        = "Invalid CLOSE message format"
	NoticeBacklogFailed       = "Failed to get events: storage error"
	NoticeInternalError       = "error: internal error"
	ReasonInvalidEvent        = "invalid: event validation failed"
	ReasonStorageFailed       = "error: storage operation failed"
	ReasonDuplicate           = "duplicate: already have this event"
	ReasonSubscriptionClosed  = "subscription closed"
)

// MaxSubscriptionIDLength is the longest subscription id a REQ may use.
const MaxSubscriptionIDLength = 64

var (
	// ErrInvalidMessage is returned for frames that are not a JSON array with a string type tag.
	ErrInvalidMessage = errors.New("message is not a json array with a type tag")

	// ErrEncodingMessageFailed is returned when an outbound message cannot be encoded.
	ErrEncodingMessageFailed = errors.New("encoding message failed")
)

// inboundMessage is a decoded frame: the type tag plus the raw remaining elements.
type inboundMessage struct {
	Type     string
	Elements []jsoniter.RawMessage
}

// decodeMessage splits a frame into its type tag and raw payload elements.
func decodeMessage(raw []byte) (inboundMessage, error) {
	var parts []jsoniter.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) == 0 {
		return inboundMessage{}, ErrInvalidMessage
	}

	msgType, ok := decodeString(parts[0])
	if !ok {
		return inboundMessage{}, ErrInvalidMessage
	}

	return inboundMessage{Type: msgType, Elements: parts[1:]}, nil
}

// decodeString decodes a raw element that must be a JSON string.
func decodeString(raw jsoniter.RawMessage) (string, bool) {
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}

	return s, true
}

func isJSONObject(raw jsoniter.RawMessage) bool {
	return bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{"))
}

// EncodeEvent encodes ["EVENT", subID, event] from the already encoded event object.
func EncodeEvent(subID string, eventJSON []byte) ([]byte, error) {
	return encode(TypeEvent, subID, jsoniter.RawMessage(eventJSON))
}

// EncodeOK encodes ["OK", eventID, accepted, message].
func EncodeOK(eventID string, accepted bool, message string) ([]byte, error) {
	return encode(TypeOK, eventID, accepted, message)
}

// EncodeEOSE encodes ["EOSE", subID].
func EncodeEOSE(subID string) ([]byte, error) {
	return encode(TypeEOSE, subID)
}

// EncodeClosed encodes ["CLOSED", subID, message].
func EncodeClosed(subID string, message string) ([]byte, error) {
	return encode(TypeClosed, subID, message)
}

// EncodeNotice encodes ["NOTICE", message].
func EncodeNotice(message string) ([]byte, error) {
	return encode(TypeNotice, message)
}

// EncodeClientEvent encodes the inbound ["EVENT", event] frame, it is used by clients and tests.
func EncodeClientEvent(event nostr.Event) ([]byte, error) {
	eventJSON, err := nostr.MarshalEvent(event)
	if err != nil {
		return nil, errors.Join(ErrEncodingMessageFailed, err)
	}

	return encode(TypeEvent, jsoniter.RawMessage(eventJSON))
}

// EncodeReq encodes the inbound ["REQ", subID, filter...] frame.
func EncodeReq(subID string, filters ...nostr.Filter) ([]byte, error) {
	elements := make([]any, 0, len(filters)+1)
	elements = append(elements, subID)
	for _, f := range filters {
		elements = append(elements, f)
	}

	return encode(TypeReq, elements...)
}

// EncodeClose encodes the inbound ["CLOSE", subID] frame.
func EncodeClose(subID string) ([]byte, error) {
	return encode(TypeClose, subID)
}

func encode(msgType string, elements ...any) ([]byte, error) {
	message := make([]any, 0, len(elements)+1)
	message = append(message, msgType)
	message = append(message, elements...)

	encoded, err := json.Marshal(message)
	if err != nil {
		return nil, errors.Join(ErrEncodingMessageFailed, err)
	}

	return encoded, nil
}
