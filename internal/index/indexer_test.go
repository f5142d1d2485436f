package index

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dossier/internal/chunk"
	"github.com/fyrsmithlabs/dossier/internal/vectorstore"
)

type fakeStore struct {
	batches [][]vectorstore.Document
	failOn  int // 1-based batch number to fail, 0 for never
}

func (f *fakeStore) AddDocuments(_ context.Context, docs []vectorstore.Document) ([]string, error) {
	if f.failOn > 0 && len(f.batches)+1 == f.failOn {
		return nil, errors.New("store unavailable")
	}
	f.batches = append(f.batches, docs)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func makeFragments(n int) []chunk.Fragment {
	fragments := make([]chunk.Fragment, n)
	for i := range fragments {
		fragments[i] = chunk.Fragment{
			Text:     fmt.Sprintf("fragment %d", i),
			Metadata: map[string]string{vectorstore.MetaSourceName: "doc.pdf"},
		}
	}
	return fragments
}

func TestIndexBatchCount(t *testing.T) {
	tests := []struct {
		name        string
		fragments   int
		batchSize   int
		wantBatches int
	}{
		{name: "single partial batch", fragments: 7, batchSize: 10, wantBatches: 1},
		{name: "exact multiple", fragments: 20, batchSize: 10, wantBatches: 2},
		{name: "remainder batch", fragments: 25, batchSize: 10, wantBatches: 3},
		{name: "one fragment", fragments: 1, batchSize: 10, wantBatches: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			ix := New(Config{BatchSize: tt.batchSize, BatchPause: time.Millisecond}, nil)

			report, err := ix.Index(context.Background(), store, makeFragments(tt.fragments))
			require.NoError(t, err)

			assert.Equal(t, tt.wantBatches, report.Batches)
			assert.Equal(t, tt.fragments, report.Indexed)
			assert.Equal(t, tt.fragments, report.Fragments)
			require.Len(t, store.batches, tt.wantBatches)

			// Order and content survive batching intact.
			var got []vectorstore.Document
			for _, b := range store.batches {
				assert.LessOrEqual(t, len(b), tt.batchSize)
				got = append(got, b...)
			}
			require.Len(t, got, tt.fragments)
			for i, d := range got {
				assert.Equal(t, fmt.Sprintf("fragment %d", i), d.Content)
				assert.NotEmpty(t, d.ID)
				assert.Equal(t, "doc.pdf", d.Metadata[vectorstore.MetaSourceName])
			}
		})
	}
}

func TestIndexUniqueIDs(t *testing.T) {
	store := &fakeStore{}
	ix := New(Config{BatchSize: 5, BatchPause: time.Millisecond}, nil)

	_, err := ix.Index(context.Background(), store, makeFragments(12))
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, b := range store.batches {
		for _, d := range b {
			assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
			seen[d.ID] = true
		}
	}
	assert.Len(t, seen, 12)
}

func TestIndexPartialFailure(t *testing.T) {
	store := &fakeStore{failOn: 2}
	ix := New(Config{BatchSize: 10, BatchPause: time.Millisecond}, nil)

	report, err := ix.Index(context.Background(), store, makeFragments(25))
	require.Error(t, err)

	// The first batch was persisted before the fault and stays counted.
	assert.Equal(t, 1, report.Batches)
	assert.Equal(t, 10, report.Indexed)
	assert.Equal(t, 25, report.Fragments)
	require.Len(t, store.batches, 1)
}

func TestIndexEmpty(t *testing.T) {
	store := &fakeStore{}
	ix := New(Config{}, nil)

	report, err := ix.Index(context.Background(), store, nil)
	require.ErrorIs(t, err, ErrNoFragments)
	assert.Zero(t, report.Indexed)
	assert.Empty(t, store.batches)
}

func TestIndexContextCancelledDuringPause(t *testing.T) {
	store := &fakeStore{}
	ix := New(Config{BatchSize: 10, BatchPause: 500 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	report, err := ix.Index(ctx, store, makeFragments(25))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Batches)
	assert.Equal(t, 10, report.Indexed)
}
