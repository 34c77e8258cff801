package models

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONB_ValueScanRoundTrip(t *testing.T) {
	original := JSONB{"converted_amount": "98.40", "converted_asset": "USD"}

	value, err := original.Value()
	require.NoError(t, err)

	var decoded JSONB
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, "98.40", decoded["converted_amount"])
	assert.Equal(t, "USD", decoded["converted_asset"])
}

func TestJSONB_ScanNilYieldsEmptyMap(t *testing.T) {
	var decoded JSONB
	require.NoError(t, decoded.Scan(nil))
	assert.NotNil(t, decoded)
	assert.Empty(t, decoded)
}

func TestInvoiceModel_MetadataColumnIsMySQLJSON(t *testing.T) {
	field, ok := reflect.TypeOf(InvoiceModel{}).FieldByName("Metadata")
	require.True(t, ok)

	tag := field.Tag.Get("gorm")
	assert.Contains(t, tag, "type:json")
	assert.NotContains(t, tag, "jsonb", "jsonb is Postgres syntax; the wired driver is mysql")
}
