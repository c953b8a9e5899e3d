package storage

import (
	"testing"
	"time"

	"github.com/poiesic/newsdesk/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("s1\x00u:http://a")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestNewsRecordRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &core.NewsRecord{
		Id:           7,
		Session:      "s1",
		Title:        "Chip exports tighten",
		Content:      "Body text\nwith two lines",
		URL:          "http://a",
		Source:       "wire",
		Date:         now.Add(-24 * time.Hour),
		Keywords:     []string{"chips", "trade", "ai"},
		Embedded:     true,
		ExpireDays:   7,
		UpdatedCount: 2,
		InsertedAt:   now,
		UpdatedAt:    now,
	}

	decoded, err := UnmarshalNewsRecord(MarshalNewsRecord(record))
	require.NoError(t, err)
	assert.Equal(t, record, decoded)
}

func TestNewsRecordZeroTimes(t *testing.T) {
	decoded, err := UnmarshalNewsRecord(MarshalNewsRecord(&core.NewsRecord{Title: "x"}))
	require.NoError(t, err)
	assert.True(t, decoded.Date.IsZero())
	assert.True(t, decoded.InsertedAt.IsZero())
	assert.Nil(t, decoded.Keywords)
}

func TestStoredVectorRoundTrip(t *testing.T) {
	v := &StoredVector{
		Seq: 12,
		Entry: core.VectorEntry{
			ID:       "news:7:0",
			Vector:   []float32{0.5, -1.25, 0},
			Metadata: map[string]string{core.MetadataSourceID: "7", "chunk_index": "0"},
		},
	}

	data := MarshalStoredVector(v)
	decoded, err := UnmarshalStoredVector(data)
	require.NoError(t, err)
	assert.Equal(t, v, decoded)

	// map iteration order must not change the encoding
	assert.Equal(t, data, MarshalStoredVector(v))
}

func TestUnmarshalTruncated(t *testing.T) {
	data := MarshalNewsRecord(&core.NewsRecord{Title: "A title long enough", Keywords: []string{"a", "b"}})

	_, err := UnmarshalNewsRecord(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMemoryEntryAndCheckpointRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	entry := &core.MemoryEntry{Session: "s1", Query: "ai", Summary: "calm week", Keywords: []string{"ai"}, CreatedAt: now}
	decodedEntry, err := UnmarshalMemoryEntry(MarshalMemoryEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, entry, decodedEntry)

	cp := &Checkpoint{Name: "reindex:s1", Position: 300, UpdatedAt: now}
	decodedCP, err := UnmarshalCheckpoint(MarshalCheckpoint(cp))
	require.NoError(t, err)
	assert.Equal(t, cp, decodedCP)
}
