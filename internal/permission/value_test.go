package permission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		raw        string
		allowed    bool
		denied     bool
		restricted []int64
	}{
		{raw: `true`, allowed: true},
		{raw: `false`, denied: true},
		{raw: `null`, denied: true},
		{raw: `[1, 2]`, restricted: []int64{1, 2}},
		{raw: `["3", 1]`, restricted: []int64{1, 3}},
		{raw: `{"roles": [4]}`, restricted: []int64{4}},
		{raw: `{"roles": true}`, allowed: true},
		{raw: `{}`, denied: true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &v))
			assert.Equal(t, tc.allowed, v.IsAllAllowed())
			assert.Equal(t, tc.denied, v.IsAllDenied())
			if tc.restricted != nil {
				assert.Equal(t, tc.restricted, v.IDs())
			}
		})
	}

	var v Value
	require.Error(t, json.Unmarshal([]byte(`["admin"]`), &v))
	require.Error(t, json.Unmarshal([]byte(`[{"id": 1}]`), &v))
}

func TestValue_Allows(t *testing.T) {
	assert.True(t, AllAllowed().Allows(0, false))
	assert.False(t, AllDenied().Allows(1, true))

	v := RestrictedTo(1, 2)
	assert.True(t, v.Allows(2, true))
	assert.False(t, v.Allows(3, true))
	assert.False(t, v.Allows(2, false), "unknown principal never matches a list")

	var zero Value
	assert.True(t, zero.IsAllDenied())
}

func TestValue_MarshalRoundTrip(t *testing.T) {
	for _, v := range []Value{AllAllowed(), AllDenied(), RestrictedTo(), RestrictedTo(9, 3)} {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		var back Value
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, v.String(), back.String())
		assert.Equal(t, v.IsRestricted(), back.IsRestricted())
	}
}
