package balance

import "math"

// ReservationStore maps reservation id to reservation record, and hands out fresh ids from a
// process-wide monotonically increasing 32-bit counter (spec.md §4.2). It assumes the caller holds
// Manager's single serializing lock; it does no locking of its own (spec.md §9's "accept &mut and
// trust the outer lock" guidance).
type ReservationStore struct {
	reservations map[ReservationId]*BalanceReservation
	nextId       uint64 // uint64 so we can detect overflow past math.MaxUint32 without wrapping silently
}

// NewReservationStore is a factory method.
func NewReservationStore() *ReservationStore {
	return &ReservationStore{
		reservations: map[ReservationId]*BalanceReservation{},
		nextId:       0,
	}
}

// NextId returns a fresh, never-before-used ReservationId. Wraparound past 2^32-1 is a fatal error
// (spec.md §4.2).
func (s *ReservationStore) NextId() (ReservationId, error) {
	if s.nextId > math.MaxUint32 {
		return 0, newFatalError(KindReservationOverflow, "reservation id counter exhausted after generating %d ids", s.nextId)
	}
	id := ReservationId(s.nextId)
	s.nextId++
	return id, nil
}

// Insert adds a reservation to the store under its own Id.
func (s *ReservationStore) Insert(r *BalanceReservation) {
	s.reservations[r.Id] = r
}

// Remove deletes a reservation from the store.
func (s *ReservationStore) Remove(id ReservationId) {
	delete(s.reservations, id)
}

// Get returns the reservation for id, if present.
func (s *ReservationStore) Get(id ReservationId) (*BalanceReservation, bool) {
	r, ok := s.reservations[id]
	return r, ok
}

// All returns every live reservation. Callers must not retain the returned slice across a mutation.
func (s *ReservationStore) All() []*BalanceReservation {
	all := make([]*BalanceReservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		all = append(all, r)
	}
	return all
}

// Len reports how many reservations are currently live.
func (s *ReservationStore) Len() int {
	return len(s.reservations)
}

// clone deep-copies the store for Balances snapshotting.
func (s *ReservationStore) clone() *ReservationStore {
	c := &ReservationStore{
		reservations: make(map[ReservationId]*BalanceReservation, len(s.reservations)),
		nextId:       s.nextId,
	}
	for id, r := range s.reservations {
		c.reservations[id] = r.clone()
	}
	return c
}
