package task

import (
	"encoding/json"
	"time"
)

// ID is assigned by the backend when a task is accepted and is unique for
// the lifetime of one backend session.
type ID int64

func (id ID) Valid() bool {
	return id > 0
}

// Type identifies which backend operation a task belongs to. It is the
// correlation key: at most one task per type may be outstanding at a time.
type Type string

const (
	TypeAddAccount              Type = "add_account"
	TypeRemoveAccount           Type = "remove_account"
	TypeQueryBalances           Type = "query_balances"
	TypeQueryBlockchainBalances Type = "query_blockchain_balances"
	TypeQueryExchangeBalances   Type = "query_exchange_balances"
	TypeTradeHistory            Type = "trade_history"
	TypeProcessHistory          Type = "process_history"
	TypeExchangeRates           Type = "exchange_rates"
)

func (t Type) Valid() bool {
	switch t {
	case TypeAddAccount, TypeRemoveAccount, TypeQueryBalances,
		TypeQueryBlockchainBalances, TypeQueryExchangeBalances,
		TypeTradeHistory, TypeProcessHistory, TypeExchangeRates:
		return true
	default:
		return false
	}
}

// Meta carries caller-supplied context for a dispatched task. Labels are
// used only for message formatting and UI feedback, never for correlation.
type Meta struct {
	Description  string            `json:"description"`
	IgnoreResult bool              `json:"ignore_result,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
}

func (m Meta) Clone() Meta {
	out := m
	if m.Labels != nil {
		out.Labels = make(map[string]string, len(m.Labels))
		for k, v := range m.Labels {
			out.Labels[k] = v
		}
	}
	return out
}

// Record describes one dispatched, not yet settled task.
type Record struct {
	ID        ID        `json:"task_id"`
	Type      Type      `json:"type"`
	Meta      Meta      `json:"meta"`
	StartedAt time.Time `json:"started_at"`
}

func (r Record) Clone() Record {
	out := r
	out.Meta = r.Meta.Clone()
	return out
}

// Outcome is what the backend reports for a finished task. A non-empty
// Message signals failure and Result must then be ignored; an empty Message
// signals success and Result, possibly empty, is authoritative.
type Outcome struct {
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
}

func (o Outcome) Failed() bool {
	return o.Message != ""
}
