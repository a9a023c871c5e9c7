package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "fete/pkg/domain-errors"
)

func TestParseIDs(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseOrderID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects the nil uuid", func(t *testing.T) {
		_, err := ParseInvitationID("00000000-0000-0000-0000-000000000000")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts a valid uuid and round-trips", func(t *testing.T) {
		raw := "550e8400-e29b-41d4-a716-446655440000"
		orderID, err := ParseOrderID(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, orderID.String())
		assert.False(t, orderID.IsNil())
	})

	t.Run("accepts uppercase input", func(t *testing.T) {
		raw := "550E8400-E29B-41D4-A716-446655440000"
		adminID, err := ParseAdminID(raw)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(raw), adminID.String())
	})
}

func TestNewIDsAreDistinct(t *testing.T) {
	assert.NotEqual(t, NewOrderID(), NewOrderID())
	assert.NotEqual(t, NewInvitationID(), NewInvitationID())
	assert.NotEqual(t, NewGuestID(), NewGuestID())
	assert.False(t, NewUserID().IsNil())
}

func TestIsNil(t *testing.T) {
	assert.True(t, OrderID{}.IsNil())
	assert.True(t, GuestID(uuid.Nil).IsNil())
	assert.False(t, NewTemplateID().IsNil())
}

// Parsing must never panic on arbitrary input; a guest-facing boundary sees
// everything.
func FuzzParseOrderID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE orders;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		orderID, err := ParseOrderID(input)
		if err == nil {
			if orderID.IsNil() {
				t.Errorf("nil id parsed without error from %q", input)
			}
		} else if !orderID.IsNil() {
			t.Errorf("non-zero id returned alongside error for %q", input)
		}
	})
}
