package balance

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceUpdate is the optional audit record emitted around a state mutation (spec.md §6's
// outbound "Optional persistence" interface).
type BalanceUpdate struct {
	Request            BalanceRequest
	PreBalance         decimal.Decimal
	PostBalance        decimal.Decimal
	ActiveReservations []*BalanceReservation
}

// Recorder is the pluggable persistence hook BRM calls after a successful Manager.TryReserve,
// Manager.Unreserve or Manager.OrderWasFilled; the other mutating operations do not record. It is
// never required for correctness and may be a no-op (spec.md §1's Non-goals: "it does not persist
// state itself").
type Recorder interface {
	RecordBalanceUpdate(update BalanceUpdate)
}

// NopRecorder discards every update; it's the default when a host doesn't supply one.
type NopRecorder struct{}

// RecordBalanceUpdate implements Recorder by doing nothing.
func (NopRecorder) RecordBalanceUpdate(BalanceUpdate) {}

var _ Recorder = NopRecorder{}

// balanceUpdateRecord is the on-disk shape written by JSONFileRecorder, one per line.
type balanceUpdateRecord struct {
	Timestamp   time.Time       `json:"timestamp"`
	Request     BalanceRequest  `json:"request"`
	PreBalance  decimal.Decimal `json:"preBalance"`
	PostBalance decimal.Decimal `json:"postBalance"`
}

// JSONFileRecorder appends every balance update to a file as newline-delimited JSON, so a host can
// tail or replay the audit trail without running a database. It never returns an error from
// RecordBalanceUpdate -- a broken audit log must not take down the engine -- and instead logs the
// failure once.
type JSONFileRecorder struct {
	mu         sync.Mutex
	f          *os.File
	loggedFail bool
}

// NewJSONFileRecorder opens (creating if needed) path for appending.
func NewJSONFileRecorder(path string) (*JSONFileRecorder, error) {
	f, e := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if e != nil {
		return nil, e
	}
	return &JSONFileRecorder{f: f}, nil
}

// RecordBalanceUpdate implements Recorder.
func (r *JSONFileRecorder) RecordBalanceUpdate(update BalanceUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := balanceUpdateRecord{
		Timestamp:   time.Now(),
		Request:     update.Request,
		PreBalance:  update.PreBalance,
		PostBalance: update.PostBalance,
	}
	encoded, e := json.Marshal(record)
	if e != nil {
		if !r.loggedFail {
			log.Printf("balance: JSONFileRecorder could not marshal update, audit logging disabled for this recorder: %s\n", e)
			r.loggedFail = true
		}
		return
	}
	if _, e := r.f.Write(append(encoded, '\n')); e != nil && !r.loggedFail {
		log.Printf("balance: JSONFileRecorder could not write update, audit logging disabled for this recorder: %s\n", e)
		r.loggedFail = true
	}
}

// Close closes the underlying file.
func (r *JSONFileRecorder) Close() error {
	return r.f.Close()
}

var _ Recorder = &JSONFileRecorder{}
