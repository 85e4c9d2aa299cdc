package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
	"github.com/AntonStoeckl/nostr-relay-go/nostr"
)

var (
	ErrNilSender = errors.New("sender is nil")
	ErrNilPolicy = errors.New("lifecycle policy is nil")
)

// Sender delivers an encoded message to one client. Messages to the same client must be
// delivered in the order Send was called.
type Sender interface {
	Send(clientID string, message []byte) error
}

// Engine is the message state machine of the relay.
//
// HandleMessage must not be called concurrently for the same client, different clients may be
// handled concurrently.
type Engine struct {
	sender   Sender
	registry *Registry
	policy   *LifecyclePolicy
	store    eventstore.Store
	observer observer
}

// NewEngine creates an Engine.
func NewEngine(
	sender Sender,
	registry *Registry,
	policy *LifecyclePolicy,
	store eventstore.Store,
	options ...Option,
) (*Engine, error) {
	switch {
	case sender == nil:
		return nil, ErrNilSender
	case registry == nil:
		return nil, ErrNilRegistry
	case policy == nil:
		return nil, ErrNilPolicy
	case store == nil:
		return nil, ErrNilStore
	}

	s, err := newSettings(options)
	if err != nil {
		return nil, err
	}

	return &Engine{
		sender:   sender,
		registry: registry,
		policy:   policy,
		store:    store,
		observer: observer{settings: s},
	}, nil
}

// HandleMessage processes one inbound frame of the client to completion, including all responses.
// It never panics, a panic inside the handling is recovered and answered with a NOTICE.
func (e *Engine) HandleMessage(ctx context.Context, clientID string, raw []byte) {
	start := time.Now()
	msgType := "invalid"
	status := statusSuccess

	ctx, span := e.observer.startSpan(ctx, "message", map[string]string{spanAttrClientID: clientID})

	defer func() {
		if recovered := recover(); recovered != nil {
			status = statusError
			e.observer.error(ctx, logMsgPanicRecovered,
				logAttrClientID, clientID, logAttrMessageType, msgType, logAttrPanic, fmt.Sprint(recovered))
			e.notice(ctx, clientID, NoticeInternalError)
		}

		duration := time.Since(start)
		e.observer.count(ctx, metricMessagesTotal, map[string]string{labelType: msgType})
		e.observer.duration(ctx, metricMessageDuration, duration, map[string]string{labelType: msgType, labelStatus: status})
		e.observer.debug(ctx, logMsgMessageHandled,
			logAttrClientID, clientID, logAttrMessageType, msgType, logAttrDurationMS, toMilliseconds(duration))
		if span != nil {
			span.AddAttribute(spanAttrMessageType, msgType)
		}
		e.observer.finishSpan(span, status)
	}()

	message, err := decodeMessage(raw)
	if err != nil {
		status = statusInvalid
		e.notice(ctx, clientID, NoticeInvalidMessage)
		return
	}

	switch message.Type {
	case TypeEvent:
		msgType = TypeEvent
		status = e.handleEvent(ctx, clientID, message.Elements)
	case TypeReq:
		msgType = TypeReq
		status = e.handleReq(ctx, clientID, message.Elements)
	case TypeClose:
		msgType = TypeClose
		status = e.handleClose(ctx, clientID, message.Elements)
	default:
		msgType = "unknown"
		status = statusInvalid
		e.notice(ctx, clientID, NoticeUnknownTypePrefix+message.Type)
	}
}

func (e *Engine) handleEvent(ctx context.Context, clientID string, elements []jsoniter.RawMessage) string {
	if len(elements) != 1 || !isJSONObject(elements[0]) {
		e.notice(ctx, clientID, NoticeInvalidEvent)
		return statusInvalid
	}

	event, err := nostr.DecodeEvent(elements[0])
	if err != nil {
		e.observer.debug(ctx, logMsgEventRejected, logAttrClientID, clientID, logAttrError, err.Error())
		e.sendOK(ctx, clientID, nostr.ExtractEventID(elements[0]), false, ReasonInvalidEvent)
		return statusInvalid
	}

	result, err := e.policy.HandleEvent(ctx, event)
	switch {
	case errors.Is(err, ErrEventValidationFailed):
		e.observer.debug(ctx, logMsgEventRejected, logAttrClientID, clientID, logAttrEventID, event.ID)
		e.sendOK(ctx, clientID, event.ID, false, ReasonInvalidEvent)
		return statusInvalid

	case err != nil:
		e.observer.error(ctx, logMsgStorageFailed,
			logAttrClientID, clientID, logAttrEventID, event.ID, logAttrKind, event.Kind, logAttrError, err.Error())
		e.sendOK(ctx, clientID, event.ID, false, ReasonStorageFailed)
		return statusError

	case result.Duplicate:
		e.sendOK(ctx, clientID, event.ID, true, ReasonDuplicate)
		return statusDuplicate
	}

	e.sendOK(ctx, clientID, event.ID, true, "")
	e.broadcast(ctx, event, result.Matches)

	e.observer.debug(ctx, logMsgEventAccepted,
		logAttrClientID, clientID, logAttrEventID, event.ID, logAttrClass, result.Class.String(),
		logAttrMatchCount, countMatches(result.Matches))

	return statusSuccess
}

// broadcast sends the event to every matching subscription, the publisher included.
func (e *Engine) broadcast(ctx context.Context, event nostr.Event, matches map[string][]*Subscription) {
	if len(matches) == 0 {
		return
	}

	eventJSON, err := nostr.MarshalEvent(event)
	if err != nil {
		e.observer.error(ctx, logMsgSendFailed, logAttrEventID, event.ID, logAttrError, err.Error())
		return
	}

	for clientID, subs := range matches {
		for _, sub := range subs {
			e.sendEncoded(ctx, clientID, TypeEvent, func() ([]byte, error) { return EncodeEvent(sub.ID, eventJSON) })
			e.observer.count(ctx, metricBroadcastsTotal, nil)
		}
	}
}

func (e *Engine) handleReq(ctx context.Context, clientID string, elements []jsoniter.RawMessage) string {
	if len(elements) == 0 {
		e.notice(ctx, clientID, NoticeInvalidSubID)
		return statusInvalid
	}

	subID, ok := decodeString(elements[0])
	if !ok || subID == "" || len(subID) > MaxSubscriptionIDLength {
		e.notice(ctx, clientID, NoticeInvalidSubID)
		return statusInvalid
	}

	if len(elements) < 2 {
		e.notice(ctx, clientID, NoticeMissingFilters)
		return statusInvalid
	}

	filters, err := nostr.ParseFilters(elements[1:])
	if err != nil {
		e.notice(ctx, clientID, NoticeInvalidFilterPrefix+subID)
		return statusInvalid
	}

	sub := e.registry.CreateSubscription(clientID, subID, filters)
	e.observer.debug(ctx, logMsgSubscriptionCreated,
		logAttrClientID, clientID, logAttrSubscriptionID, subID, logAttrFilterCount, len(filters))

	backlog, err := e.store.QueryEvents(eventstore.WithEventualConsistency(ctx), filters)
	if err != nil {
		e.observer.error(ctx, logMsgBacklogFailed,
			logAttrClientID, clientID, logAttrSubscriptionID, subID, logAttrError, err.Error())
		e.notice(ctx, clientID, NoticeBacklogFailed)
		return statusError
	}

	for _, event := range backlog {
		if !e.registry.IsLive(sub) {
			e.observer.debug(ctx, logMsgStaleBacklogDropped, logAttrClientID, clientID, logAttrSubscriptionID, subID)
			return statusSuccess
		}

		eventJSON, err := nostr.MarshalEvent(event)
		if err != nil {
			e.observer.error(ctx, logMsgSendFailed, logAttrEventID, event.ID, logAttrError, err.Error())
			continue
		}

		e.sendEncoded(ctx, clientID, TypeEvent, func() ([]byte, error) { return EncodeEvent(subID, eventJSON) })
	}

	if !e.registry.IsLive(sub) {
		e.observer.debug(ctx, logMsgStaleBacklogDropped, logAttrClientID, clientID, logAttrSubscriptionID, subID)
		return statusSuccess
	}

	e.sendEncoded(ctx, clientID, TypeEOSE, func() ([]byte, error) { return EncodeEOSE(subID) })
	e.observer.debug(ctx, logMsgBacklogSent,
		logAttrClientID, clientID, logAttrSubscriptionID, subID, logAttrBacklogCount, len(backlog))

	return statusSuccess
}

func (e *Engine) handleClose(ctx context.Context, clientID string, elements []jsoniter.RawMessage) string {
	if len(elements) != 1 {
		e.notice(ctx, clientID, NoticeInvalidClose)
		return statusInvalid
	}

	subID, ok := decodeString(elements[0])
	if !ok || subID == "" {
		e.notice(ctx, clientID, NoticeInvalidClose)
		return statusInvalid
	}

	// removed before CLOSED goes out, so no live EVENT for this id can follow the CLOSED
	removed := e.registry.RemoveSubscription(clientID, subID)
	e.sendEncoded(ctx, clientID, TypeClosed, func() ([]byte, error) { return EncodeClosed(subID, ReasonSubscriptionClosed) })

	e.observer.debug(ctx, logMsgSubscriptionClosed,
		logAttrClientID, clientID, logAttrSubscriptionID, subID, logAttrRemovedCount, boolToInt(removed))

	return statusSuccess
}

func (e *Engine) sendOK(ctx context.Context, clientID, eventID string, accepted bool, reason string) {
	e.sendEncoded(ctx, clientID, TypeOK, func() ([]byte, error) { return EncodeOK(eventID, accepted, reason) })
}

func (e *Engine) notice(ctx context.Context, clientID, message string) {
	e.observer.count(ctx, metricNoticesTotal, map[string]string{labelReason: noticeReason(message)})
	e.observer.debug(ctx, logMsgNoticeSent, logAttrClientID, clientID, logAttrNotice, message)
	e.sendEncoded(ctx, clientID, TypeNotice, func() ([]byte, error) { return EncodeNotice(message) })
}

// sendEncoded encodes and sends one message, failures are logged since the client is likely gone.
func (e *Engine) sendEncoded(ctx context.Context, clientID, msgType string, encode func() ([]byte, error)) {
	message, err := encode()
	if err != nil {
		e.observer.error(ctx, logMsgSendFailed, logAttrClientID, clientID, logAttrMessageType, msgType, logAttrError, err.Error())
		return
	}

	if err := e.sender.Send(clientID, message); err != nil {
		e.observer.warn(ctx, logMsgSendFailed, logAttrClientID, clientID, logAttrMessageType, msgType, logAttrError, err.Error())
	}
}

// noticeReason maps a notice text onto a label with bounded cardinality.
func noticeReason(message string) string {
	switch {
	case message == NoticeInvalidMessage:
		return "invalid_message"
	case message == NoticeInvalidEvent:
		return "invalid_event"
	case message == NoticeInvalidSubID:
		return "invalid_subscription_id"
	case message == NoticeMissingFilters:
		return "missing_filters"
	case message == NoticeInvalidClose:
		return "invalid_close"
	case message == NoticeBacklogFailed:
		return "backlog_failed"
	case message == NoticeInternalError:
		return "internal_error"
	case strings.HasPrefix(message, NoticeUnknownTypePrefix):
		return "unknown_type"
	case strings.HasPrefix(message, NoticeInvalidFilterPrefix):
		return "invalid_filter"
	default:
		return "other"
	}
}

func countMatches(matches map[string][]*Subscription) int {
	n := 0
	for _, subs := range matches {
		n += len(subs)
	}

	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
