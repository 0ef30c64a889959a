// Package feed mirrors remote collections into ordered in-memory projections
// driven by insert/update/delete change events.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates change events.
type Kind string

// Change event kinds.
const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// ParseKind accepts a kind in any letter case.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(raw))); k {
	case KindInsert, KindUpdate, KindDelete:
		return k, nil
	default:
		return "", fmt.Errorf("unknown kind %q", raw)
	}
}

// Envelope is the wire form every feed collaborator delivers.
// Record is set for INSERT and UPDATE, Key for DELETE.
type Envelope struct {
	EventID string          `json:"event_id,omitempty"`
	Source  string          `json:"source"`
	Kind    Kind            `json:"kind"`
	Record  json.RawMessage `json:"record,omitempty"`
	Key     string          `json:"key,omitempty"`
}

// Keyed records expose the identity projections match on.
type Keyed interface {
	Key() string
}

// ChangeEvent is an envelope decoded for a concrete record type.
type ChangeEvent[T Keyed] struct {
	Kind   Kind
	Record T
	Key    string
}

// Insert builds an INSERT event.
func Insert[T Keyed](rec T) ChangeEvent[T] {
	return ChangeEvent[T]{Kind: KindInsert, Record: rec, Key: rec.Key()}
}

// Update builds an UPDATE event.
func Update[T Keyed](rec T) ChangeEvent[T] {
	return ChangeEvent[T]{Kind: KindUpdate, Record: rec, Key: rec.Key()}
}

// Delete builds a DELETE event.
func Delete[T Keyed](key string) ChangeEvent[T] {
	return ChangeEvent[T]{Kind: KindDelete, Key: key}
}

// Decode turns an envelope into a typed event. Errors wrap ErrMalformedEvent.
func Decode[T Keyed](env Envelope) (ChangeEvent[T], error) {
	var evt ChangeEvent[T]

	kind, err := ParseKind(string(env.Kind))
	if err != nil {
		return evt, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	evt.Kind = kind

	hasRecord := len(env.Record) > 0 && string(env.Record) != "null"
	switch kind {
	case KindInsert, KindUpdate:
		if !hasRecord {
			return evt, fmt.Errorf("%w: %s without record", ErrMalformedEvent, kind)
		}
		if err := json.Unmarshal(env.Record, &evt.Record); err != nil {
			return evt, fmt.Errorf("%w: decode record: %v", ErrMalformedEvent, err)
		}
		evt.Key = evt.Record.Key()
		if evt.Key == "" {
			return evt, fmt.Errorf("%w: %s record without id", ErrMalformedEvent, kind)
		}
	case KindDelete:
		evt.Key = env.Key
		// Some feeds only ship the old row on delete.
		if evt.Key == "" && hasRecord {
			var old T
			if err := json.Unmarshal(env.Record, &old); err == nil {
				evt.Key = old.Key()
			}
		}
		if evt.Key == "" {
			return evt, fmt.Errorf("%w: DELETE without key", ErrMalformedEvent)
		}
	}
	return evt, nil
}

// Encode builds an envelope for a typed event.
func Encode[T Keyed](sourceName, eventID string, evt ChangeEvent[T]) (Envelope, error) {
	env := Envelope{EventID: eventID, Source: sourceName, Kind: evt.Kind, Key: evt.Key}
	if evt.Kind == KindDelete {
		return env, nil
	}
	raw, err := json.Marshal(evt.Record)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s record: %w", sourceName, err)
	}
	env.Record = raw
	return env, nil
}

// Handler receives envelopes in delivery order.
type Handler func(Envelope)

// Subscription is a registered feed listener.
type Subscription interface {
	// Unsubscribe stops delivery. Calling it more than once is safe.
	Unsubscribe() error
}

// Source is the change feed collaborator.
type Source interface {
	// Subscribe registers h for every change on sourceName. Deliveries for a
	// subscription are sequential and in feed order.
	Subscribe(ctx context.Context, sourceName string, h Handler) (Subscription, error)
}

// Publisher pushes envelopes into a feed.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Bus is a feed that delivers and accepts envelopes.
type Bus interface {
	Source
	Publisher
	Close() error
}

// UnmarshalEnvelope decodes a wire envelope. A missing source is taken from
// the channel it arrived on.
func UnmarshalEnvelope(data []byte, channelSource string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: decode envelope: %v", ErrMalformedEvent, err)
	}
	if env.Source == "" {
		env.Source = channelSource
	}
	return env, nil
}
