package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/domain"
)

func TestPayloadsArePositional(t *testing.T) {
	eh := domain.EntryHash{1, 2, 3}
	tests := []struct {
		name    string
		payload any
		want    []any
	}{
		{"path tag", PathTag{Path: "p", Tag: domain.SMInitTag}, []any{"p", "SM_INIT"}},
		{"path tag expr", PathTagExpr{Path: "p", Tag: domain.SMCompTag, Expr: "+"}, []any{"p", "SM_COMP", "+"}},
		{"initialize", PathEntryHash{Path: "p", Target: eh}, []any{"p", eh.String()}},
		{"initialize path", PathTarget{Path: "p", Target: "agent"}, []any{"p", "agent"}},
		{"step", StepEntryHash{Path: "p", Target: eh, Act: "1"}, []any{"p", eh.String(), "1"}},
		{"step path", StepPath{Path: "p", Target: "agent", Act: "1"}, []any{"p", "agent", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := codec.Marshal(tt.payload)
			assert.Equal(t, err, nil)
			var got []any
			assert.Equal(t, codec.Unmarshal(body, &got), nil)
			assert.Equal(t, got, tt.want)
		})
	}
}

type recordingCaller struct {
	target domain.CellID
	zome   string
	fn     string
	cap    *domain.CapSecret
	in     any
	err    error
	result any
}

func (c *recordingCaller) Call(_ context.Context, _ domain.CallContext, target domain.CellID, zome, fn string, capSecret *domain.CapSecret, payload, out any) error {
	c.target, c.zome, c.fn, c.cap, c.in = target, zome, fn, capSecret, payload
	if c.err != nil {
		return c.err
	}
	if out != nil && c.result != nil {
		body, err := codec.Marshal(c.result)
		if err != nil {
			return err
		}
		return codec.Unmarshal(body, out)
	}
	return nil
}

func TestSensemakerClient(t *testing.T) {
	ctx := context.Background()
	cell := domain.CellID{Dna: domain.NewDnaHash("sensemaker")}
	secret := &domain.CapSecret{7}
	rc := &recordingCaller{}
	sm := NewSensemaker(rc, secret)

	assert.Equal(t, sm.StepSMPath(ctx, domain.CallContext{}, cell, "p", "agent", "1"), nil)
	assert.Equal(t, rc.target, cell)
	assert.Equal(t, rc.zome, domain.SensemakerZome)
	assert.Equal(t, rc.fn, FnStepSMPath)
	assert.Equal(t, rc.cap, secret)
	assert.Equal(t, rc.in, StepPath{Path: "p", Target: "agent", Act: "1"})

	// a missing entry decodes as nil
	res, err := sm.GetEntryByPath(ctx, domain.CallContext{}, cell, "p", domain.SMInitTag)
	assert.Equal(t, err, nil)
	assert.Equal(t, res == nil, true)

	rc.result = EntryResult{EntryHash: domain.EntryHash{4}, Entry: domain.SensemakerEntry{Operator: "0"}}
	res, err = sm.GetEntryByPath(ctx, domain.CallContext{}, cell, "p", domain.SMInitTag)
	assert.Equal(t, err, nil)
	assert.Equal(t, res.EntryHash, domain.EntryHash{4})
	assert.Equal(t, res.Entry.Operator, "0")

	boom := errors.New("boom")
	rc.err = boom
	err = sm.InitializeSMData(ctx, domain.CallContext{}, cell, "p", domain.EntryHash{})
	assert.Equal(t, errors.Is(err, boom), true)
	assert.Equal(t, err.Error(), "remote initialize_sm_data: boom")
}
