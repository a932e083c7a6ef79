package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDataTypesOrdersAndDeduplicates(t *testing.T) {
	got, err := NormalizeDataTypes([]string{"sales", "clients", "sales", "visits"})
	require.NoError(t, err)
	require.Equal(t, []DataType{DataTypeClients, DataTypeVisits, DataTypeSales}, got)
}

func TestNormalizeDataTypesRejectsUnknown(t *testing.T) {
	_, err := NormalizeDataTypes([]string{"clients", "bookings"})
	require.Error(t, err)
}

func TestImportProgressScanRoundTrip(t *testing.T) {
	original := ImportProgress{APICallCount: 12}
	original.ForType(DataTypeClients).Imported = 40
	original.ForType(DataTypeClients).Completed = true

	value, err := original.Value()
	require.NoError(t, err)

	var decoded ImportProgress
	require.NoError(t, decoded.Scan(value))
	require.Equal(t, 12, decoded.APICallCount)
	require.Equal(t, 40, decoded.ForType(DataTypeClients).Imported)
	require.True(t, decoded.ForType(DataTypeClients).Completed)
}

func TestImportProgressScanToleratesBadBlobs(t *testing.T) {
	cases := map[string]interface{}{
		"nil":           nil,
		"empty bytes":   []byte{},
		"malformed":     []byte(`{"dataTypes": [not json`),
		"legacy string": "progress: 40%",
		"wrong type":    42,
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			var p ImportProgress
			require.NoError(t, p.Scan(value))
			require.Zero(t, p.APICallCount)
			require.Empty(t, p.DataTypes)
		})
	}
}

func TestImportProgressOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(ImportProgress{})
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(data))
}

func TestImportStatusTerminal(t *testing.T) {
	require.True(t, ImportStatusCompleted.Terminal())
	require.True(t, ImportStatusFailed.Terminal())
	require.True(t, ImportStatusCancelled.Terminal())
	require.False(t, ImportStatusRunning.Terminal())
	require.False(t, ImportStatusPaused.Terminal())
	require.False(t, ImportStatusPending.Terminal())
}

func TestSelectedTypesDropsLegacyValues(t *testing.T) {
	job := &ImportJob{DataTypes: []string{"clients", "memberships", "sales"}}
	require.Equal(t, []DataType{DataTypeClients, DataTypeSales}, job.SelectedTypes())
}
