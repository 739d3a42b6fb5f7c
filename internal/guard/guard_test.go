package guard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanMapDetectsOperatorKeys(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
	}{
		{"ne operator", map[string]any{"username": map[string]any{"$ne": "x"}}},
		{"where clause", map[string]any{"$where": "sleep(1000)"}},
		{"nested or", map[string]any{"filter": map[string]any{"$or": []any{}}}},
		{"uppercase operator", map[string]any{"username": map[string]any{"$NE": "x"}}},
		{"operator inside array", map[string]any{"items": []any{map[string]any{"$gt": 1}}}},
		{"unknown sentinel key", map[string]any{"$custom": "v"}},
		{"mapreduce without sentinel", map[string]any{"mapReduce": "collection"}},
		{"deeply nested", map[string]any{"a": map[string]any{"b": map[string]any{"c": map[string]any{"$regex": ".*"}}}}},
		{"regex operator", map[string]any{"name": map[string]any{"$regex": "^adm"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ScanMap(tc.body)
			require.Error(t, err)
			var inj *ErrInjectionDetected
			require.ErrorAs(t, err, &inj)
			require.NotEmpty(t, inj.Path)
		})
	}
}

func TestScanMapAllowsCleanPayloads(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
	}{
		{"flat strings", map[string]any{"username": "dr.chen", "password": "s3cret"}},
		{"dollar amount value", map[string]any{"note": "$100 copay collected"}},
		{"nested clean object", map[string]any{"patient": map[string]any{"name": "A. Okafor", "age": float64(42)}}},
		{"empty body", map[string]any{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, ScanMap(tc.body))
		})
	}
}

func TestScanValues(t *testing.T) {
	require.NoError(t, ScanValues(map[string][]string{"page": {"2"}, "reason": {"CONSULTATION"}}))

	err := ScanValues(map[string][]string{"$where": {"1==1"}})
	require.Error(t, err)
}

func TestScalarFields(t *testing.T) {
	body := map[string]any{
		"patientId": "p-1",
		"note":      map[string]any{"text": "ok"},
	}
	require.NoError(t, ScalarFields(body, "patientId"))

	err := ScalarFields(body, "patientId", "note")
	require.Error(t, err)
	var inj *ErrInjectionDetected
	require.ErrorAs(t, err, &inj)
	require.Equal(t, "$root.note", inj.Path)

	err = ScalarFields(map[string]any{"staffId": []any{"a", "b"}}, "staffId")
	require.Error(t, err)
}

func TestScanArrayPathReporting(t *testing.T) {
	err := ScanMap(map[string]any{"filters": []any{"ok", map[string]any{"$in": []any{1}}}})
	var inj *ErrInjectionDetected
	require.ErrorAs(t, err, &inj)
	require.Contains(t, inj.Path, "filters[1]")
}
