package entitystore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/fixtures"
)

func samplePeople() []*fixtures.Person {
	withEmail := fixtures.NewPerson("p3", "Carla", 42)
	withEmail.Email = fixtures.StringPtr("carla@example.com")
	withEmail.Address = &fixtures.Address{City: "Berlin"}

	inactive := fixtures.NewPerson("p4", "Dan", 17)
	inactive.Active = false

	return []*fixtures.Person{
		fixtures.NewPerson("p1", "Anna", 30),
		fixtures.NewPerson("p2", "Bob", 12),
		withEmail,
		inactive,
	}
}

func sampleSpecifications() map[string]entitystore.Specification[*fixtures.Person] {
	return map[string]entitystore.Specification[*fixtures.Person]{
		"adult":      fixtures.PersonAge.Gte(18),
		"active":     fixtures.PersonActive.Eq(true),
		"name_a":     fixtures.PersonName.StartsWith("A"),
		"has_email":  fixtures.PersonEmail.IsNull().Not(),
		"teen_or_42": fixtures.PersonAge.In(17, 42),
	}
}

func Test_Specification_CombinatorsFollowBooleanLogic(t *testing.T) {
	specs := sampleSpecifications()

	for nameA, a := range specs {
		for nameB, b := range specs {
			for _, p := range samplePeople() {
				inA, inB := a.IsSatisfiedBy(p), b.IsSatisfiedBy(p)

				assert.Equal(t, inA && inB, a.And(b).IsSatisfiedBy(p), "%s AND %s on %s", nameA, nameB, p.ID)
				assert.Equal(t, inA || inB, a.Or(b).IsSatisfiedBy(p), "%s OR %s on %s", nameA, nameB, p.ID)
				assert.Equal(t, !inA, a.Not().IsSatisfiedBy(p), "NOT %s on %s", nameA, p.ID)
			}
		}
	}
}

func Test_Specification_AndOrAreAssociative(t *testing.T) {
	specs := sampleSpecifications()
	a, b, c := specs["adult"], specs["active"], specs["has_email"]

	for _, p := range samplePeople() {
		assert.Equal(t, a.And(b).And(c).IsSatisfiedBy(p), a.And(b.And(c)).IsSatisfiedBy(p), p.ID)
		assert.Equal(t, a.Or(b).Or(c).IsSatisfiedBy(p), a.Or(b.Or(c)).IsSatisfiedBy(p), p.ID)
	}
}

func Test_Specification_CombinatorsDoNotMutateOperands(t *testing.T) {
	// arrange
	a := fixtures.PersonAge.Gt(18)
	b := fixtures.PersonName.Eq("Anna")
	before := a.String()

	// act
	combined := a.And(b).Or(b).Not()

	// assert
	assert.Equal(t, before, a.String())
	assert.Equal(t, `Name == "Anna"`, b.String())
	assert.Equal(t, `!(((Age > 18 && Name == "Anna") || Name == "Anna"))`, combined.String())
}

func Test_Specification_RepeatedOperandsAreNotDeduplicated(t *testing.T) {
	a := fixtures.PersonAge.Gt(18)

	assert.Equal(t, "(Age > 18 && Age > 18)", a.And(a).String())
}

func Test_Specification_NilEntityIsNeverSatisfied(t *testing.T) {
	var nobody *fixtures.Person

	assert.False(t, fixtures.PersonAge.Gt(18).IsSatisfiedBy(nobody))
	assert.False(t, fixtures.PersonAge.Gt(18).Not().IsSatisfiedBy(nobody))
	assert.False(t, entitystore.All[*fixtures.Person]().IsSatisfiedBy(nobody))
	assert.False(t, entitystore.SatisfiesAll(nobody, nil))
}

func Test_Specification_NilMemberDereferenceIsNotSatisfied(t *testing.T) {
	// setup
	homeless := fixtures.NewPerson("p1", "Anna", 30)
	berliner := fixtures.NewPerson("p2", "Bob", 30)
	berliner.Address = &fixtures.Address{City: "Berlin"}
	inBerlin := fixtures.PersonCity.Eq("Berlin")

	// assert
	assert.False(t, inBerlin.IsSatisfiedBy(homeless))
	assert.False(t, inBerlin.Not().IsSatisfiedBy(homeless))
	assert.True(t, inBerlin.IsSatisfiedBy(berliner))
}

func Test_Specification_OtherPanicsPropagate(t *testing.T) {
	exploding := entitystore.NewField("Exploding", func(*fixtures.Person) int { panic("boom") })

	assert.PanicsWithValue(t, "boom", func() {
		exploding.Eq(1).IsSatisfiedBy(fixtures.NewPerson("p1", "Anna", 30))
	})
}

func Test_Specification_Operators(t *testing.T) {
	carla := fixtures.NewPerson("p3", "Carla", 42)
	carla.Email = fixtures.StringPtr("carla@example.com")

	tests := []struct {
		name     string
		spec     entitystore.Specification[*fixtures.Person]
		expected bool
	}{
		{name: "eq", spec: fixtures.PersonName.Eq("Carla"), expected: true},
		{name: "not_eq", spec: fixtures.PersonName.NotEq("Carla"), expected: false},
		{name: "gt", spec: fixtures.PersonAge.Gt(41), expected: true},
		{name: "gt_boundary", spec: fixtures.PersonAge.Gt(42), expected: false},
		{name: "gte_boundary", spec: fixtures.PersonAge.Gte(42), expected: true},
		{name: "lt", spec: fixtures.PersonAge.Lt(42), expected: false},
		{name: "lte_boundary", spec: fixtures.PersonAge.Lte(42), expected: true},
		{name: "in", spec: fixtures.PersonAge.In(1, 42), expected: true},
		{name: "not_in", spec: fixtures.PersonAge.In(1, 2), expected: false},
		{name: "contains", spec: fixtures.PersonName.Contains("arl"), expected: true},
		{name: "starts_with", spec: fixtures.PersonName.StartsWith("Ca"), expected: true},
		{name: "starts_with_is_case_sensitive", spec: fixtures.PersonName.StartsWith("ca"), expected: false},
		{name: "pointer_member_eq", spec: fixtures.PersonEmail.Eq(fixtures.StringPtr("carla@example.com")), expected: true},
		{name: "pointer_member_is_null", spec: fixtures.PersonEmail.IsNull(), expected: false},
		{name: "bool_member", spec: fixtures.PersonActive.Eq(true), expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.spec.IsSatisfiedBy(carla))
			assert.Equal(t, tt.expected, tt.spec.Predicate()(carla))
		})
	}
}

func Test_Specification_EmptyAndConstantSpecifications(t *testing.T) {
	anna := fixtures.NewPerson("p1", "Anna", 30)
	all := entitystore.All[*fixtures.Person]()
	adult := fixtures.PersonAge.Gte(18)
	minor := fixtures.PersonAge.Lt(18)

	assert.True(t, all.IsEmpty())
	assert.Nil(t, all.Expression())
	assert.True(t, all.IsSatisfiedBy(anna))
	assert.False(t, all.Not().IsSatisfiedBy(anna))
	assert.False(t, entitystore.None[*fixtures.Person]().IsSatisfiedBy(anna))

	assert.Equal(t, minor.String(), all.And(minor).String())
	assert.Equal(t, minor.String(), minor.And(all).String())
	assert.True(t, all.Or(minor).IsEmpty())
	assert.True(t, adult.Or(all).IsEmpty())
}

func Test_Specification_ExpressionTreeShape(t *testing.T) {
	spec := fixtures.PersonAge.Gt(18).And(fixtures.PersonName.Eq("Anna").Not())

	and, ok := spec.Expression().(entitystore.And)
	assert.True(t, ok)

	left, ok := and.Left.(entitystore.Comparison)
	assert.True(t, ok)
	assert.Equal(t, "Age", left.Field)
	assert.Equal(t, entitystore.OpGt, left.Op)
	assert.Equal(t, 18, left.Value)

	not, ok := and.Right.(entitystore.Not)
	assert.True(t, ok)
	assert.IsType(t, entitystore.Comparison{}, not.Operand)
}

func Test_CombineSpecifications_AndsAllSpecifications(t *testing.T) {
	specs := []entitystore.Specification[*fixtures.Person]{
		fixtures.PersonAge.Gte(18),
		fixtures.PersonActive.Eq(true),
	}

	combined := entitystore.CombineSpecifications(specs)

	assert.Equal(t, "(Age >= 18 && Active == true)", combined.String())
	assert.True(t, entitystore.CombineSpecifications[*fixtures.Person](nil).IsEmpty())
}
