package sensemaker

import (
	"context"

	"github.com/pbaille/happz/internal/conductor"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/rpc"
)

// Zome exposes the cell's operations as the remote functions that
// application cells call.
func (c *Cell) Zome() *conductor.Zome {
	return &conductor.Zome{
		Name: domain.SensemakerZome,
		Functions: map[string]conductor.Handler{
			rpc.FnGetEntryByPath:       conductor.Fn(c.getEntryByPath),
			rpc.FnGetEntryByPathWithHH: conductor.Fn(c.getEntryByPathWithHH),
			rpc.FnSetEntryParseRLExpr:  conductor.Fn(c.setEntryParseRLExpr),
			rpc.FnInitializeSMData:     conductor.Fn(c.initializeSMData),
			rpc.FnInitializeSMDataPath: conductor.Fn(c.initializeSMDataPath),
			rpc.FnStepSM:               conductor.Fn(c.stepSM),
			rpc.FnStepSMPath:           conductor.Fn(c.stepSMPath),
			rpc.FnGetHistoryByPath:     conductor.Fn(c.getHistoryByPath),
		},
	}
}

func (c *Cell) getEntryByPath(_ context.Context, _ domain.CallContext, in rpc.PathTag) (*rpc.EntryResult, error) {
	r, ok, err := c.Latest(in.Path, in.Tag)
	if err != nil || !ok {
		return nil, err
	}
	return &rpc.EntryResult{EntryHash: r.EntryHash, Entry: r.Entry}, nil
}

func (c *Cell) getEntryByPathWithHH(_ context.Context, _ domain.CallContext, in rpc.PathTag) (*rpc.EntryResultWithHH, error) {
	r, ok, err := c.Latest(in.Path, in.Tag)
	if err != nil || !ok {
		return nil, err
	}
	return &rpc.EntryResultWithHH{EntryHash: r.EntryHash, ActionHash: r.ActionHash, Entry: r.Entry}, nil
}

func (c *Cell) setEntryParseRLExpr(_ context.Context, call domain.CallContext, in rpc.PathTagExpr) (conductor.Unit, error) {
	_, err := c.SetEntryParse(call.Provenance, in.Path, in.Tag, in.Expr)
	return conductor.Unit{}, err
}

func (c *Cell) initializeSMData(_ context.Context, call domain.CallContext, in rpc.PathEntryHash) (conductor.Unit, error) {
	_, err := c.InitializeData(call.Provenance, in.Path, in.Target.String())
	return conductor.Unit{}, err
}

func (c *Cell) initializeSMDataPath(_ context.Context, call domain.CallContext, in rpc.PathTarget) (conductor.Unit, error) {
	_, err := c.InitializeData(call.Provenance, in.Path, in.Target)
	return conductor.Unit{}, err
}

func (c *Cell) stepSM(_ context.Context, call domain.CallContext, in rpc.StepEntryHash) (conductor.Unit, error) {
	_, err := c.Step(call.Provenance, in.Path, in.Target.String(), in.Act)
	return conductor.Unit{}, err
}

func (c *Cell) stepSMPath(_ context.Context, call domain.CallContext, in rpc.StepPath) (conductor.Unit, error) {
	_, err := c.Step(call.Provenance, in.Path, in.Target, in.Act)
	return conductor.Unit{}, err
}


func (c *Cell) getHistoryByPath(_ context.Context, _ domain.CallContext, in rpc.PathTag) ([]Record, error) {
	return c.History(in.Path, in.Tag)
}
