package models

import (
	"errors"
	"sort"

	"github.com/google/uuid"
)

var ErrInvalidID = errors.New("identifier must be a canonical lowercase uuid")

// NewID returns a fresh random identifier
func NewID() uuid.UUID {
	return uuid.New()
}

// ParseID accepts only the canonical 8-4-4-4-12 lowercase form. uuid.Parse alone
// also accepts braces, urn prefixes and upper case.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, ErrInvalidID
	}
	if id.String() != s || id == uuid.Nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}

// PairKey is the order-independent key of an unordered user pair
func PairKey(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}

// OrderedPair returns a and b with the lexically smaller id first
func OrderedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}
