// Package audit carries the one-way structured records emitted for every
// parameter change, whitelist mutation, trade decision and custody movement.
package audit

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type Kind string

const (
	ParamsUpdated    Kind = "params.updated"
	PairAdded        Kind = "whitelist.added"
	PairRemoved      Kind = "whitelist.removed"
	TraderAuthorized Kind = "relay.trader_authorized"
	TraderRevoked    Kind = "relay.trader_revoked"
	ValidatorAdded   Kind = "relay.validator_added"
	ValidatorRemoved Kind = "relay.validator_removed"
	TradeApproved    Kind = "trade.approved"
	TradeRejected    Kind = "trade.rejected"
	TradeForwarded   Kind = "trade.forwarded"
	TradeFailed      Kind = "trade.failed"
	Deposit          Kind = "treasury.deposit"
	Withdrawal       Kind = "treasury.withdraw"
	SwapCompleted    Kind = "treasury.swap"
	BurnCompleted    Kind = "treasury.burn"
	RelayRotated     Kind = "treasury.relay_rotated"
	AdapterRotated   Kind = "treasury.adapter_rotated"
)

// Record is a single audit entry. Before/After hold the state snapshot around
// a mutation; Fields holds flat contextual values.
type Record struct {
	ID     uuid.UUID         `json:"id"`
	Kind   Kind              `json:"kind"`
	Actor  common.Address    `json:"actor"`
	At     time.Time         `json:"at"`
	Before any               `json:"before,omitempty"`
	After  any               `json:"after,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func NewRecord(kind Kind, actor common.Address, at time.Time) Record {
	return Record{
		ID:    uuid.New(),
		Kind:  kind,
		Actor: actor,
		At:    at.UTC(),
	}
}

// With returns a copy of r with key set in Fields.
func (r Record) With(key, value string) Record {
	fields := make(map[string]string, len(r.Fields)+1)
	for k, v := range r.Fields {
		fields[k] = v
	}
	fields[key] = value
	r.Fields = fields
	return r
}

// Change returns a copy of r carrying the before/after snapshot.
func (r Record) Change(before, after any) Record {
	r.Before = before
	r.After = after
	return r
}

// Sink receives audit records. Emit must not fail the caller: sinks log their
// own delivery errors.
type Sink interface {
	Emit(ctx context.Context, rec Record)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record)

func (f SinkFunc) Emit(ctx context.Context, rec Record) { f(ctx, rec) }

// Discard drops every record.
var Discard Sink = SinkFunc(func(context.Context, Record) {})

// Multi fans a record out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, rec Record) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, rec)
		}
	}
}

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}
