package reviews

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
)

func TestValidateStars(t *testing.T) {
	for s := MinStars; s <= MaxStars; s++ {
		assert.NoError(t, ValidateStars(s), s)
	}
	for _, s := range []int{-1, 0, 6, 10} {
		err := ValidateStars(s)
		require.True(t, apperr.IsValidation(err), s)
		assert.Equal(t, "validation failed: stars: Rating must be between 1 and 5.", err.Error())
	}
}

func TestInputValidate(t *testing.T) {
	assert.NoError(t, Input{Stars: 4, Comment: "nice"}.Validate())

	err := Input{Stars: 0}.Validate()
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "stars")
}

func TestPermissions(t *testing.T) {
	rv := Review{UserID: 1}
	author := &auth.Identity{UserID: 1, IsActive: true}
	other := &auth.Identity{UserID: 2, IsActive: true}
	staff := &auth.Identity{UserID: 3, IsActive: true, IsStaff: true}

	assert.True(t, CanEdit(author, rv))
	assert.False(t, CanEdit(other, rv))
	assert.False(t, CanEdit(staff, rv))
	assert.False(t, CanEdit(nil, rv))

	assert.True(t, CanDelete(author, rv))
	assert.True(t, CanDelete(staff, rv))
	assert.False(t, CanDelete(other, rv))
}
