package sensemaker

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/replang"
	"github.com/pbaille/happz/internal/smpath"
)

func openTestCell(t *testing.T) *Cell {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "sensemaker.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

var alice = domain.AgentPubKey{1}

func TestSetAndGetInit(t *testing.T) {
	c := openTestCell(t)

	_, ok, err := c.Latest(domain.MemezPath, domain.SMInitTag)
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, false)

	_, err = c.SetEntryParse(alice, domain.MemezPath, domain.SMInitTag, "0")
	assert.Equal(t, err, nil)

	r, ok, err := c.Latest(domain.MemezPath, domain.SMInitTag)
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)
	assert.Equal(t, r.Entry.Operator, "0")
	assert.Equal(t, r.Entry.Output, replang.Int(0))
	assert.Equal(t, r.Author, alice)

	// latest write wins
	_, err = c.SetEntryParse(alice, domain.MemezPath, domain.SMInitTag, "10")
	assert.Equal(t, err, nil)
	r, _, _ = c.Latest(domain.MemezPath, domain.SMInitTag)
	assert.Equal(t, r.Entry.Operator, "10")
	assert.Equal(t, r.Seq, uint64(2))

	history, err := c.History(domain.MemezPath, domain.SMInitTag)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(history), 2)
	assert.Equal(t, history[0].Entry.Operator, "0")

	entry, err := c.Entry(r.EntryHash)
	assert.Equal(t, err, nil)
	assert.Equal(t, entry, r.Entry)
}

func TestSetRejectsBadInput(t *testing.T) {
	c := openTestCell(t)

	_, err := c.SetEntryParse(alice, domain.MemezPath, domain.SMInitTag, "(+ 1")
	var pe *replang.ParseError
	assert.Equal(t, errors.As(err, &pe), true)

	_, err = c.SetEntryParse(alice, domain.MemezPath, "SM_BOGUS", "0")
	assert.Equal(t, errors.Is(err, ErrUnknownTag), true)

	_, ok, _ := c.Latest(domain.MemezPath, domain.SMInitTag)
	assert.Equal(t, ok, false)
}

func TestInitializeRequiresInit(t *testing.T) {
	c := openTestCell(t)

	_, err := c.InitializeData(alice, domain.MemezPath, "target")
	assert.Equal(t, errors.Is(err, ErrNoInit), true)
}

func TestStep(t *testing.T) {
	c := openTestCell(t)
	ns := domain.MemezPath

	_, err := c.SetEntryParse(alice, ns, domain.SMInitTag, "0")
	assert.Equal(t, err, nil)

	_, err = c.InitializeData(alice, ns, "a")
	assert.Equal(t, err, nil)
	_, err = c.InitializeData(alice, ns, "b")
	assert.Equal(t, err, nil)

	_, err = c.Step(alice, ns, "a", "1")
	assert.Equal(t, errors.Is(err, ErrNoComp), true)

	_, err = c.SetEntryParse(alice, ns, domain.SMCompTag, "+")
	assert.Equal(t, err, nil)

	for i := 0; i < 3; i++ {
		_, err = c.Step(alice, ns, "a", "1")
		assert.Equal(t, err, nil)
	}

	a, ok, err := c.Latest(smpath.Compose(ns, "a"), domain.SMDataTag)
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)
	assert.Equal(t, a.Entry.Output, replang.Int(3))
	assert.Equal(t, len(a.Entry.Operands), 3)

	// stepping one target never touches another
	b, _, _ := c.Latest(smpath.Compose(ns, "b"), domain.SMDataTag)
	assert.Equal(t, b.Entry.Output, replang.Int(0))

	_, err = c.Step(alice, ns, "c", "1")
	assert.Equal(t, errors.Is(err, ErrNoData), true)
}

func TestInitializeKeepsExistingData(t *testing.T) {
	c := openTestCell(t)
	ns := domain.AgentPath

	_, _ = c.SetEntryParse(alice, ns, domain.SMInitTag, "0")
	_, _ = c.SetEntryParse(alice, ns, domain.SMCompTag, "+")
	_, err := c.InitializeData(alice, ns, alice.String())
	assert.Equal(t, err, nil)
	_, err = c.Step(alice, ns, alice.String(), "5")
	assert.Equal(t, err, nil)

	r, err := c.InitializeData(alice, ns, alice.String())
	assert.Equal(t, err, nil)
	assert.Equal(t, r.Entry.Output, replang.Int(5))
}

func TestConcurrentStepsAreSerialized(t *testing.T) {
	c := openTestCell(t)
	ns := domain.MemezPath

	_, _ = c.SetEntryParse(alice, ns, domain.SMInitTag, "0")
	_, _ = c.SetEntryParse(alice, ns, domain.SMCompTag, "+")
	_, err := c.InitializeData(alice, ns, "x")
	assert.Equal(t, err, nil)

	n := 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			author := domain.AgentPubKey{byte(i)}
			if _, err := c.Step(author, ns, "x", "1"); err != nil {
				t.Errorf("Step: %v", err)
			}
		}(i)
	}
	wg.Wait()

	r, _, _ := c.Latest(smpath.Compose(ns, "x"), domain.SMDataTag)
	assert.Equal(t, r.Entry.Output, replang.Int(int64(n)))
}

func TestStepTypeErrorLeavesState(t *testing.T) {
	c := openTestCell(t)
	ns := domain.MemezPath

	_, _ = c.SetEntryParse(alice, ns, domain.SMInitTag, "0")
	_, _ = c.SetEntryParse(alice, ns, domain.SMCompTag, "+")
	_, _ = c.InitializeData(alice, ns, "x")

	_, err := c.Step(alice, ns, "x", "true")
	assert.Equal(t, errors.Is(err, replang.ErrType), true)

	history, err := c.History(smpath.Compose(ns, "x"), domain.SMDataTag)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(history), 1)
}
