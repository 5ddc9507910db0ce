package activity

import (
	"strings"
	"time"
)

// Capture kinds reported on hub.event.captured events.
const (
	CaptureException = "exception"
	CaptureMessage   = "message"
	CaptureEvent     = "event"
)

// Verbs emitted by the hub.
const (
	VerbScopePushed   = "hub.scope.pushed"
	VerbScopePopped   = "hub.scope.popped"
	VerbScopeUpdated  = "hub.scope.updated"
	VerbClientBound   = "hub.client.bound"
	VerbEventCaptured = "hub.event.captured"
)

// HubEventInput carries the hub state an event is built from.
type HubEventInput struct {
	UserID      string
	Client      string
	StackDepth  int
	Tags        map[string]string
	CaptureKind string
	Channel     string
	Metadata    map[string]any
	OccurredAt  time.Time
}

// BuildScopePushedEvent describes a layer pushed onto a hub stack.
func BuildScopePushedEvent(input HubEventInput) Event {
	return buildHubEvent(VerbScopePushed, "hub.scope", input)
}

// BuildScopePoppedEvent describes a layer popped off a hub stack.
func BuildScopePoppedEvent(input HubEventInput) Event {
	return buildHubEvent(VerbScopePopped, "hub.scope", input)
}

// BuildScopeUpdatedEvent describes a mutation of a client-bound scope.
func BuildScopeUpdatedEvent(input HubEventInput) Event {
	return buildHubEvent(VerbScopeUpdated, "hub.scope", input)
}

// BuildClientBoundEvent describes a client bound on the top layer.
func BuildClientBoundEvent(input HubEventInput) Event {
	return buildHubEvent(VerbClientBound, "hub.client", input)
}

// BuildEventCapturedEvent describes a capture call handed to a client.
func BuildEventCapturedEvent(input HubEventInput) Event {
	return buildHubEvent(VerbEventCaptured, "hub.event", input)
}

func buildHubEvent(verb, objectType string, input HubEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["stack_depth"] = input.StackDepth
	if input.Client != "" {
		metadata["client"] = input.Client
	}
	if input.CaptureKind != "" {
		metadata["capture_kind"] = input.CaptureKind
	}
	if len(input.Tags) > 0 {
		tags := make(map[string]string, len(input.Tags))
		for key, value := range input.Tags {
			tags[key] = value
		}
		metadata["tags"] = tags
	}

	objectID := strings.TrimSpace(input.Client)
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:       verb,
		UserID:     strings.TrimSpace(input.UserID),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}
