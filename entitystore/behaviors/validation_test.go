package behaviors_test

import (
	"context"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/behaviors"
	"github.com/AntonStoeckl/dynamic-entitystore-go/testutil/fixtures"
)

func newStructValidator(t *testing.T, options ...behaviors.StructValidatorOption) *behaviors.StructValidator[*fixtures.Person] {
	t.Helper()

	v, err := behaviors.NewStructValidator[*fixtures.Person](options...)
	require.NoError(t, err)

	return v
}

func Test_Validation_AggregatesAllFailures(t *testing.T) {
	// setup
	noMinors := entitystore.ValidatorFunc[*fixtures.Person](func(_ context.Context, p *fixtures.Person) []entitystore.ValidationFailure {
		if p.Age < 18 {
			return []entitystore.ValidationFailure{{Property: "Age", Message: "must be an adult", AttemptedValue: p.Age}}
		}

		return nil
	})

	ec, store := newContext(t, func(c *entitystore.Configurator[*fixtures.Person]) {
		behaviors.WithValidator(c, newStructValidator(t), entitystore.ApplyOnAll)
		behaviors.WithValidator(c, noMinors, entitystore.ApplyOnInsert)
	})
	invalid := fixtures.NewPerson("p1", "", 12)
	invalid.Email = fixtures.StringPtr("not-an-email")

	// act
	_, err := ec.Insert(t.Context(), invalid)

	// assert
	require.ErrorIs(t, err, entitystore.ErrValidationFailed)
	var validationErr *entitystore.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{
		"Name is required",
		"Email must be a valid email address",
		"must be an adult",
	}, validationErr.Messages())
	assert.Equal(t, "Email", validationErr.Failures[1].Property)
	assert.Equal(t, 12, validationErr.Failures[2].AttemptedValue)
	assert.Zero(t, store.Len())
}

func Test_Validation_HonorsApplyOn(t *testing.T) {
	calls := 0
	counting := entitystore.ValidatorFunc[*fixtures.Person](func(context.Context, *fixtures.Person) []entitystore.ValidationFailure {
		calls++
		return nil
	})

	ec, _ := newContext(t, func(c *entitystore.Configurator[*fixtures.Person]) {
		behaviors.WithValidator(c, counting, entitystore.ApplyOnInsert|entitystore.ApplyOnUpdate)
	})
	anna := fixtures.NewPerson("p1", "Anna", 30)

	_, err := ec.Insert(t.Context(), anna)
	require.NoError(t, err)
	_, err = ec.Update(t.Context(), anna)
	require.NoError(t, err)
	require.NoError(t, ec.Delete(t.Context(), anna))

	assert.Equal(t, 2, calls)
}

func Test_WithValidator_RegistersTheBehaviorOnce(t *testing.T) {
	registry, err := entitystore.NewRegistry()
	require.NoError(t, err)

	entitystore.Configure(registry, func(c *entitystore.Configurator[*fixtures.Person]) {
		behaviors.WithValidator(c, newStructValidator(t), entitystore.ApplyOnAll)
		behaviors.WithValidator(c, newStructValidator(t), entitystore.ApplyOnDelete)

		assert.Len(t, c.Behaviors(), 1)
		assert.Len(t, c.Validators(), 2)
		assert.True(t, c.HasBehavior(behaviors.NameValidation))
	})
}

func Test_StructValidator_CustomRule(t *testing.T) {
	type tagged struct {
		Code string `validate:"uppercase_code"`
	}

	v, err := behaviors.NewStructValidator[*tagged](behaviors.WithCustomRule("uppercase_code", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == strings.ToUpper(fl.Field().String())
	}))
	require.NoError(t, err)

	assert.Empty(t, v.Validate(t.Context(), &tagged{Code: "ABC"}))

	failures := v.Validate(t.Context(), &tagged{Code: "abc"})
	require.Len(t, failures, 1)
	assert.Equal(t, "Code", failures[0].Property)
	assert.Equal(t, `Code failed the "uppercase_code" rule`, failures[0].Message)
	assert.Equal(t, "abc", failures[0].AttemptedValue)
}

func Test_Validation_RejectedUpdatesLeaveTheStoreUntouched(t *testing.T) {
	// setup
	ec, _ := newContext(t, func(c *entitystore.Configurator[*fixtures.Person]) {
		behaviors.WithValidator(c, newStructValidator(t), entitystore.ApplyOnAll)
	})
	_, err := ec.Insert(t.Context(), fixtures.NewPerson("p1", "Anna", 30))
	require.NoError(t, err)

	loaded, err := ec.Query().Where(fixtures.PersonID.Eq("p1")).First(t.Context())
	require.NoError(t, err)

	// act
	loaded.Name = "B"
	_, err = ec.Update(t.Context(), loaded)

	// assert
	require.ErrorIs(t, err, entitystore.ErrValidationFailed)

	stored, err := ec.Query().Where(fixtures.PersonID.Eq("p1")).First(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Anna", stored.Name)
}
