package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilities(t *testing.T) {
	tests := []struct {
		name     string
		id       *Identity
		checkout bool
		admin    bool
	}{
		{"anonymous", nil, false, false},
		{"inactive staff", &Identity{IsStaff: true}, false, false},
		{"customer", &Identity{IsActive: true}, true, false},
		{"staff", &Identity{IsActive: true, IsStaff: true}, true, true},
		{"superuser", &Identity{IsActive: true, IsSuperuser: true}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.checkout, CanCheckout(tt.id))
			assert.Equal(t, tt.admin, CanAdmin(tt.id))
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.NoError(t, CheckPassword(hash, "s3cret"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrBadCredentials)
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	id := &Identity{UserID: 1}
	assert.Same(t, id, FromContext(WithIdentity(context.Background(), id)))
}
