package models

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestParseID(t *testing.T) {
	valid := uuid.New().String()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "canonical", input: valid},
		{name: "upper case", input: strings.ToUpper(valid), wantErr: true},
		{name: "braces", input: "{" + valid + "}", wantErr: true},
		{name: "urn", input: "urn:uuid:" + valid, wantErr: true},
		{name: "no hyphens", input: strings.ReplaceAll(valid, "-", ""), wantErr: true},
		{name: "nil uuid", input: uuid.Nil.String(), wantErr: true},
		{name: "garbage", input: "not-a-uuid", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseID(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidID)
				assert.Equal(t, uuid.Nil, id)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.input, id.String())
			}
		})
	}
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	assert.Equal(t, PairKey(a, b), PairKey(b, a))

	lo, hi := OrderedPair(a, b)
	lo2, hi2 := OrderedPair(b, a)
	assert.Equal(t, lo, lo2)
	assert.Equal(t, hi, hi2)
	assert.True(t, lo.String() < hi.String())
}
