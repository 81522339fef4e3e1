package entitystore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/fixtures"
)

type rank int

func Test_CompareValues(t *testing.T) {
	now := time.Now()
	name := "anna"

	tests := []struct {
		name       string
		a, b       any
		expected   int
		comparable bool
	}{
		{name: "ints_of_different_width", a: int8(3), b: int64(4), expected: -1, comparable: true},
		{name: "int_and_float", a: 3, b: 2.5, expected: 1, comparable: true},
		{name: "uints", a: uint(7), b: uint32(7), expected: 0, comparable: true},
		{name: "named_numeric_type", a: rank(2), b: 2, expected: 0, comparable: true},
		{name: "strings", a: "a", b: "b", expected: -1, comparable: true},
		{name: "string_pointer", a: &name, b: "anna", expected: 0, comparable: true},
		{name: "bools", a: true, b: false, expected: 1, comparable: true},
		{name: "times", a: now, b: now.Add(time.Second), expected: -1, comparable: true},
		{name: "both_nil", a: nil, b: (*string)(nil), expected: 0, comparable: true},
		{name: "one_nil", a: nil, b: 1, comparable: false},
		{name: "string_and_int", a: "1", b: 1, comparable: false},
		{name: "time_and_string", a: now, b: "now", comparable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := entitystore.CompareValues(tt.a, tt.b)

			assert.Equal(t, tt.comparable, ok)
			if tt.comparable {
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func Test_ValuesEqual_FallsBackToDeepEquality(t *testing.T) {
	assert.True(t, entitystore.ValuesEqual([]int{1, 2}, []int{1, 2}))
	assert.False(t, entitystore.ValuesEqual([]int{1, 2}, []int{2, 1}))
	assert.False(t, entitystore.ValuesEqual(nil, []int{}))
	assert.True(t, entitystore.ValuesEqual(struct{ A int }{1}, struct{ A int }{1}))
}

func Test_IdentityOf(t *testing.T) {
	var nobody *fixtures.Person

	assert.Equal(t, "p1", entitystore.IdentityOf(fixtures.NewPerson("p1", "Anna", 30)))
	assert.Equal(t, "", entitystore.IdentityOf(nobody))
	assert.Equal(t, "", entitystore.IdentityOf(42))
}
