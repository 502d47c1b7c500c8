package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/configurator/pkg/errors"
)

func TestNewIsEmpty(t *testing.T) {
	d := New()

	assert.Empty(t, d.DataSources())

	raw, err := d.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"MF_CONFIG":{"CFG_DSRC":[]}}`, string(raw))
}

func TestAddAssignsSequentialIDs(t *testing.T) {
	d := New()

	id, err := d.Add("CUSTOMER")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), id)

	id, err = d.Add("WATCHLIST")
	require.NoError(t, err)
	assert.Equal(t, int64(1002), id)

	assert.Equal(t, []string{"CUSTOMER", "WATCHLIST"}, d.DataSources())
}

func TestAddRejectsDuplicates(t *testing.T) {
	d := New()

	_, err := d.Add("CUSTOMER")
	require.NoError(t, err)

	_, err = d.Add("CUSTOMER")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, []string{"CUSTOMER"}, d.DataSources())
}

func TestAddIsCaseSensitive(t *testing.T) {
	d := New()

	_, err := d.Add("CUSTOMER")
	require.NoError(t, err)

	_, err = d.Add("customer")
	require.NoError(t, err)

	assert.True(t, d.Has("CUSTOMER"))
	assert.True(t, d.Has("customer"))
	assert.False(t, d.Has("Customer"))
}

func TestAddRejectsEmptyCode(t *testing.T) {
	d := New()

	_, err := d.Add("")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestParseMarshalRoundTrip(t *testing.T) {
	d := New()
	_, err := d.Add("CUSTOMER")
	require.NoError(t, err)
	_, err = d.Add("WATCHLIST")
	require.NoError(t, err)

	raw, err := d.Marshal()
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"CUSTOMER", "WATCHLIST"}, parsed.DataSources())

	// IDs keep counting from the parsed state.
	id, err := parsed.Add("REFERENCE")
	require.NoError(t, err)
	assert.Equal(t, int64(1003), id)
}

func TestParseMalformedDocument(t *testing.T) {
	_, err := Parse([]byte(`{"MF_CONFIG":`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestParseMissingRegistry(t *testing.T) {
	d, err := Parse([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, d.DataSources())

	raw, err := d.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"MF_CONFIG":{"CFG_DSRC":[]}}`, string(raw))
}
