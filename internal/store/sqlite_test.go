package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/pbaille/happz/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "chain.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testCall(name string) domain.CallContext {
	var agent domain.AgentPubKey
	copy(agent[:], name)
	return domain.CallContext{
		Cell:       domain.CellID{Dna: domain.NewDnaHash(name), Agent: agent},
		Provenance: agent,
	}
}

func TestCreateAndGetEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	call := testCall("memez")

	meme := domain.Meme{Filename: "a.png", BlobStr: "QQ=="}
	eh, ah, err := s.CreateEntry(ctx, call, "meme", meme)
	assert.Equal(t, err, nil)

	want, _, _ := domain.HashEntry(meme)
	assert.Equal(t, eh, want)

	var got domain.Meme
	gotAh, err := s.GetEntry(ctx, call.Cell, eh, &got)
	assert.Equal(t, err, nil)
	assert.Equal(t, got, meme)
	assert.Equal(t, gotAh, ah)

	// identical content yields the same entry but a new action
	eh2, ah2, err := s.CreateEntry(ctx, call, "meme", meme)
	assert.Equal(t, err, nil)
	assert.Equal(t, eh2, eh)
	assert.NotEqual(t, ah2, ah)

	gotAh, err = s.GetEntry(ctx, call.Cell, eh, &got)
	assert.Equal(t, err, nil)
	assert.Equal(t, gotAh, ah)

	n, err := s.ChainLength(ctx, call.Cell)
	assert.Equal(t, err, nil)
	assert.Equal(t, n, uint64(2))
}

func TestCellsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	eh, _, err := s.CreateEntry(ctx, testCall("memez"), "meme", domain.Meme{Filename: "a.png"})
	assert.Equal(t, err, nil)

	var got domain.Meme
	_, err = s.GetEntry(ctx, testCall("paperz").Cell, eh, &got)
	assert.Equal(t, errors.Is(err, ErrNotFound), true)
}

func TestAnchorIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	call := testCall("memez")

	a1, err := s.Anchor(ctx, call, "memez", "")
	assert.Equal(t, err, nil)
	a2, err := s.Anchor(ctx, call, "memez", "")
	assert.Equal(t, err, nil)
	assert.Equal(t, a1, a2)

	other, err := s.Anchor(ctx, call, "paperz", "")
	assert.Equal(t, err, nil)
	assert.NotEqual(t, other, a1)

	n, err := s.ChainLength(ctx, call.Cell)
	assert.Equal(t, err, nil)
	assert.Equal(t, n, uint64(2))
}

func TestLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	call := testCall("memez")

	anchor, err := s.Anchor(ctx, call, "memez", "")
	assert.Equal(t, err, nil)

	var targets []domain.EntryHash
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		eh, _, err := s.CreateEntry(ctx, call, "meme", domain.Meme{Filename: name})
		assert.Equal(t, err, nil)
		_, err = s.CreateLink(ctx, call, anchor, eh, domain.MemeTag)
		assert.Equal(t, err, nil)
		targets = append(targets, eh)
	}
	_, err = s.CreateLink(ctx, call, anchor, targets[0], "other")
	assert.Equal(t, err, nil)

	links, err := s.GetLinks(ctx, call.Cell, anchor, domain.MemeTag)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(links), 3)

	found := map[domain.EntryHash]bool{}
	for _, l := range links {
		assert.Equal(t, l.Base, anchor)
		assert.Equal(t, l.Tag, domain.MemeTag)
		assert.NotEqual(t, l.ID, "")
		found[l.Target] = true
	}
	for _, eh := range targets {
		assert.Equal(t, found[eh], true)
	}

	latest, ok := domain.LatestLink(links)
	assert.Equal(t, ok, true)
	assert.Equal(t, latest.Target, targets[2])

	none, err := s.GetLinks(ctx, testCall("paperz").Cell, anchor, domain.MemeTag)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(none), 0)
}
