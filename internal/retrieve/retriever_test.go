package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dossier/internal/vectorstore"
)

type fakeSearcher struct {
	results []vectorstore.SearchResult
	err     error
	gotK    int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, k int) ([]vectorstore.SearchResult, error) {
	f.gotK = k
	return f.results, f.err
}

func result(content, source string) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		Content:  content,
		Metadata: map[string]string{vectorstore.MetaSourceName: source},
	}
}

func TestRetrievePassesTopK(t *testing.T) {
	store := &fakeSearcher{}
	r := New(3, nil)

	_, err := r.Retrieve(context.Background(), store, "who signed the contract")
	require.NoError(t, err)
	assert.Equal(t, 3, store.gotK)
}

func TestRetrieveDefaultTopK(t *testing.T) {
	store := &fakeSearcher{}
	r := New(0, nil)

	_, err := r.Retrieve(context.Background(), store, "q")
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, store.gotK)
}

func TestRetrieveEmptyStore(t *testing.T) {
	r := New(5, nil)

	got, err := r.Retrieve(context.Background(), &fakeSearcher{}, "q")
	require.NoError(t, err)
	assert.True(t, got.Empty())
	assert.Empty(t, got.Text())
	assert.Empty(t, got.Sources())
}

func TestRetrieveError(t *testing.T) {
	store := &fakeSearcher{err: errors.New("store closed")}
	r := New(5, nil)

	got, err := r.Retrieve(context.Background(), store, "q")
	require.Error(t, err)
	assert.True(t, got.Empty())
}

func TestContextTextAndSources(t *testing.T) {
	c := Context{Fragments: []vectorstore.SearchResult{
		result("the lease ends in March", "lease.pdf"),
		result("rent is 1200 monthly", "lease.pdf"),
		result("| month | paid |", "payments.csv"),
	}}

	assert.Equal(t,
		"the lease ends in March\n\nrent is 1200 monthly\n\n| month | paid |",
		c.Text())
	assert.Equal(t, []string{"lease.pdf", "payments.csv"}, c.Sources())
	assert.False(t, c.Empty())
}
