package capsule_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mnhsh/digital-capsule/internal/capsule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryAuthorDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Anonymous", capsule.Entry{}.Author())
	assert.Equal(t, "Ana", capsule.Entry{Name: "Ana"}.Author())
}

func TestDecodeEntry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    capsule.Entry
		sortKey int64
	}{
		{
			name:    "numeric timestamp",
			input:   `{"name":"Ana","message":"hi","fileUrl":"https://x/a.png","fileType":"image/png","timestamp":1714500000000}`,
			want:    capsule.Entry{Name: "Ana", Message: "hi", FileURL: "https://x/a.png", FileType: "image/png"},
			sortKey: 1714500000000,
		},
		{
			name:    "string timestamp",
			input:   `{"message":"hello","timestamp":"2025-03-01T10:00:00+08:00"}`,
			want:    capsule.Entry{Message: "hello"},
			sortKey: time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC).UnixMilli(),
		},
		{
			name:    "missing fields",
			input:   `{}`,
			want:    capsule.Entry{},
			sortKey: 0,
		},
		{
			name:    "wrong types are dropped",
			input:   `{"name":{"first":"x"},"message":42,"timestamp":true}`,
			want:    capsule.Entry{Message: "42"},
			sortKey: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := capsule.DecodeEntry([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want.Name, got.Name)
			assert.Equal(t, tt.want.Message, got.Message)
			assert.Equal(t, tt.want.FileURL, got.FileURL)
			assert.Equal(t, tt.want.FileType, got.FileType)
			assert.Equal(t, tt.sortKey, got.Timestamp.SortKey())
		})
	}
}

func TestDecodeEntryRejectsNonObject(t *testing.T) {
	t.Parallel()

	_, err := capsule.DecodeEntry([]byte(`"just a string"`))
	require.Error(t, err)
}

func TestParseTimestampUnreadable(t *testing.T) {
	t.Parallel()

	ts := capsule.ParseTimestamp("last tuesday")
	assert.False(t, ts.IsZero())
	assert.Equal(t, "last tuesday", ts.Raw())
	assert.Equal(t, int64(0), ts.SortKey())

	_, ok := ts.Time()
	assert.False(t, ok)
}

func TestTimestampJSON(t *testing.T) {
	t.Parallel()

	var e capsule.Entry
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":"1700000000000"}`), &e))
	assert.Equal(t, int64(1700000000000), e.Timestamp.SortKey())

	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":1700000000000}`, string(out))

	out, err = json.Marshal(capsule.Entry{Name: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","timestamp":null}`, string(out))
}
