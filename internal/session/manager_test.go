package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dossier/internal/vectorstore"
)

type fakeStore struct {
	caseName string
	closed   bool
}

func (f *fakeStore) AddDocuments(context.Context, []vectorstore.Document) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) Search(context.Context, string, int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) Count() int { return 0 }

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

// trackingOpener records handle lifecycle so release-before-acquire
// ordering can be asserted.
type trackingOpener struct {
	opened []*fakeStore
	err    error

	// openSawPriorClosed records, per open, whether every previously
	// opened handle was already closed at that moment.
	openSawPriorClosed []bool
}

func (o *trackingOpener) open(caseName string) (Store, error) {
	if o.err != nil {
		return nil, o.err
	}
	allClosed := true
	for _, s := range o.opened {
		if !s.closed {
			allClosed = false
		}
	}
	o.openSawPriorClosed = append(o.openSawPriorClosed, allClosed)
	store := &fakeStore{caseName: caseName}
	o.opened = append(o.opened, store)
	return store, nil
}

func TestActivateReleasesBeforeAcquiring(t *testing.T) {
	opener := &trackingOpener{}
	m := NewManager(opener.open, nil)

	_, err := m.Activate("case_a")
	require.NoError(t, err)
	_, err = m.Activate("case_b")
	require.NoError(t, err)

	require.Len(t, opener.opened, 2)
	assert.True(t, opener.opened[0].closed, "old handle still open")
	assert.False(t, opener.opened[1].closed)
	for i, ok := range opener.openSawPriorClosed {
		assert.True(t, ok, "open %d happened before prior handle was released", i)
	}
}

func TestActivateSameCaseKeepsSession(t *testing.T) {
	opener := &trackingOpener{}
	m := NewManager(opener.open, nil)

	s1, err := m.Activate("case_a")
	require.NoError(t, err)
	s1.SetImmediate("fresh upload text")

	s2, err := m.Activate("case_a")
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, "fresh upload text", s2.Immediate())
	assert.Len(t, opener.opened, 1)
}

func TestSwitchClearsSessionState(t *testing.T) {
	opener := &trackingOpener{}
	m := NewManager(opener.open, nil)

	s1, err := m.Activate("case_a")
	require.NoError(t, err)
	s1.SetImmediate("upload for case_a")
	s1.AddTurn(Turn{Question: "q", Answer: "a"})

	s2, err := m.Activate("case_b")
	require.NoError(t, err)

	assert.Empty(t, s2.Immediate())
	assert.Empty(t, s2.Turns())
}

func TestActivateOpenFailureKeepsNoSession(t *testing.T) {
	opener := &trackingOpener{err: errors.New("disk gone")}
	m := NewManager(opener.open, nil)

	_, err := m.Activate("case_a")
	require.Error(t, err)

	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestReleaseByName(t *testing.T) {
	opener := &trackingOpener{}
	m := NewManager(opener.open, nil)

	_, err := m.Activate("case_a")
	require.NoError(t, err)

	m.Release("case_b") // different case, no-op
	_, err = m.Current()
	require.NoError(t, err)

	m.Release("case_a")
	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.True(t, opener.opened[0].closed)
}

func TestReleaseAny(t *testing.T) {
	opener := &trackingOpener{}
	m := NewManager(opener.open, nil)

	_, err := m.Activate("case_a")
	require.NoError(t, err)

	m.Release("")
	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionImmediateReplacement(t *testing.T) {
	opener := &trackingOpener{}
	m := NewManager(opener.open, nil)

	s, err := m.Activate("case_a")
	require.NoError(t, err)

	s.SetImmediate("first batch")
	s.SetImmediate("second batch")
	assert.Equal(t, "second batch", s.Immediate())

	s.ClearImmediate()
	assert.Empty(t, s.Immediate())
}
