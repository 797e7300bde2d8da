package trailz

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/conductor"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/store"
	"github.com/pbaille/happz/internal/zome/smfns"
)

func TestSensemakerCellID(t *testing.T) {
	ctx := context.Background()
	chain, err := store.New(filepath.Join(t.TempDir(), "chain.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer chain.Close()

	agent := domain.AgentPubKey{5}
	c := conductor.New(agent)
	z := New(chain)
	assert.Equal(t, z.FunctionNames(), []string{"get_sensemaker_cell_id", "set_sensemaker_cell_id"})
	cell, err := c.InstallApp("trailz", "trailz", z)
	assert.Equal(t, err, nil)

	call := func(fn string, payload any) ([]byte, error) {
		var body []byte
		if payload != nil {
			body, _ = codec.Marshal(payload)
		}
		return c.CallZome(ctx, conductor.CallZomeRequest{
			CellID: cell, ZomeName: domain.TrailzZome, FnName: fn, Payload: body, Provenance: agent,
		})
	}

	_, err = call("get_sensemaker_cell_id", nil)
	assert.Equal(t, errors.Is(err, smfns.ErrNoSensemakerCell), true)

	first := domain.CellID{Dna: domain.NewDnaHash("sensemaker"), Agent: agent}
	second := domain.CellID{Dna: domain.NewDnaHash("sensemaker-v2"), Agent: agent}
	for _, id := range []domain.CellID{first, second} {
		_, err = call("set_sensemaker_cell_id", id)
		assert.Equal(t, err, nil)
	}

	// the most recent record wins
	res, err := call("get_sensemaker_cell_id", nil)
	assert.Equal(t, err, nil)
	var got domain.CellID
	assert.Equal(t, codec.Unmarshal(res, &got), nil)
	assert.Equal(t, got, second)

	_, err = call("get_sm_init", domain.MemezPath)
	assert.Equal(t, errors.Is(err, conductor.ErrFnNotFound), true)
}
