package client

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	hub "github.com/goliatone/go-hub"
	"github.com/goliatone/go-hub/internal/hydrate"
)

// maxExceptionChain bounds how far an error chain is unwrapped.
const maxExceptionChain = 16

// NewExceptionEvent builds an error-level event from err and its unwrap
// chain, outermost first. A nil err yields hub.ErrEventUndefined.
func NewExceptionEvent(err error) (*hub.Event, error) {
	if err == nil {
		return nil, hub.ErrEventUndefined
	}
	event := &hub.Event{
		Level:   hub.LevelError,
		Message: err.Error(),
	}
	for current := err; current != nil && len(event.Exception) < maxExceptionChain; current = errors.Unwrap(current) {
		event.Exception = append(event.Exception, exceptionOf(current))
	}
	return event, nil
}

// NewMessageEvent builds an info-level event. An empty message yields
// hub.ErrEventUndefined.
func NewMessageEvent(message string) (*hub.Event, error) {
	if strings.TrimSpace(message) == "" {
		return nil, hub.ErrEventUndefined
	}
	return &hub.Event{Level: hub.LevelInfo, Message: message}, nil
}

func exceptionOf(err error) hub.Exception {
	typ := reflect.TypeOf(err)
	module := typ.PkgPath()
	if module == "" && typ.Kind() == reflect.Pointer {
		module = typ.Elem().PkgPath()
	}
	return hub.Exception{
		Type:   fmt.Sprintf("%T", err),
		Value:  err.Error(),
		Module: module,
	}
}

var eventDecoder = hydrate.NewDecoder[hub.Event](
	hydrate.WithPreHook[hub.Event](normalizeLegacyException),
	hydrate.WithPostHook[hub.Event](validateDecodedEvent),
)

// EventFromPayload decodes a raw event payload, such as a JSON file or a
// message from another process. Payloads carrying the legacy
// {"exception": {"values": [...]}} envelope are unwrapped. source labels
// errors.
func EventFromPayload(source string, payload map[string]any) (*hub.Event, error) {
	event, err := eventDecoder.Decode(hydrate.Context{Source: source, Kind: "event"}, payload)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return &event, nil
}

// PayloadFromEvent is the inverse of EventFromPayload. With legacy set the
// exception list is wrapped in the {"values": [...]} envelope.
func PayloadFromEvent(event *hub.Event, legacy bool) (map[string]any, error) {
	if event == nil {
		return nil, hub.ErrEventUndefined
	}
	payload, err := hydrate.ToPayload(event)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	if values, ok := payload["exception"]; ok && legacy {
		payload["exception"] = map[string]any{"values": values}
	}
	return payload, nil
}

func normalizeLegacyException(_ hydrate.Context, payload map[string]any) (map[string]any, error) {
	envelope, ok := payload["exception"].(map[string]any)
	if !ok {
		return payload, nil
	}
	if values, ok := envelope["values"]; ok {
		payload["exception"] = values
		return payload, nil
	}
	delete(payload, "exception")
	return payload, nil
}

func validateDecodedEvent(_ hydrate.Context, event *hub.Event) error {
	if event.Message == "" && len(event.Exception) == 0 {
		return hub.ErrEventUndefined
	}
	if event.Level != "" {
		event.Level = hub.ParseLevel(string(event.Level))
	}
	return nil
}
