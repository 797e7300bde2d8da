// Package smfns holds the zome functions every application shares: locating
// the sensemaker cell, and forwarding SM_INIT, SM_COMP, and step calls to it.
package smfns

import (
	"context"
	"errors"
	"fmt"

	"github.com/pbaille/happz/internal/conductor"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/rpc"
)

// ErrNoSensemakerCell is returned before set_sensemaker_cell_id is called.
var ErrNoSensemakerCell = errors.New("sensemaker cell id not set")

// Chain is a cell's local source chain.
type Chain interface {
	CreateEntry(ctx context.Context, call domain.CallContext, entryType string, v any) (domain.EntryHash, domain.ActionHash, error)
	GetEntry(ctx context.Context, cell domain.CellID, eh domain.EntryHash, out any) (domain.ActionHash, error)
	Anchor(ctx context.Context, call domain.CallContext, anchorType, text string) (domain.EntryHash, error)
	CreateLink(ctx context.Context, call domain.CallContext, base, target domain.EntryHash, tag string) (domain.ActionHash, error)
	GetLinks(ctx context.Context, cell domain.CellID, base domain.EntryHash, tag string) ([]domain.Link, error)
}

// PathExpr is (path, expr).
type PathExpr struct {
	_    struct{} `cbor:",toarray"`
	Path string
	Expr string
}

// HashPair is (entry_hash, action_hash), the result of every upload.
type HashPair struct {
	_          struct{} `cbor:",toarray"`
	EntryHash  domain.EntryHash
	ActionHash domain.ActionHash
}

// Fns implements the shared functions on top of a chain and a sensemaker
// client.
type Fns struct {
	Chain      Chain
	Sensemaker *rpc.Sensemaker
}

// SensemakerCellID returns the most recently recorded sensemaker cell.
func (f *Fns) SensemakerCellID(ctx context.Context, call domain.CallContext) (domain.CellID, error) {
	anchor, err := f.Chain.Anchor(ctx, call, domain.SensemakerCellIDTag, "")
	if err != nil {
		return domain.CellID{}, err
	}
	links, err := f.Chain.GetLinks(ctx, call.Cell, anchor, domain.SensemakerCellIDTag)
	if err != nil {
		return domain.CellID{}, err
	}
	latest, ok := domain.LatestLink(links)
	if !ok {
		return domain.CellID{}, ErrNoSensemakerCell
	}
	var entry domain.SensemakerCellID
	if _, err := f.Chain.GetEntry(ctx, call.Cell, latest.Target, &entry); err != nil {
		return domain.CellID{}, fmt.Errorf("get sensemaker cell id: %w", err)
	}
	return entry.CellID, nil
}

// SetSensemakerCellID records which cell hosts the sensemaker.
func (f *Fns) SetSensemakerCellID(ctx context.Context, call domain.CallContext, cell domain.CellID) (conductor.Unit, error) {
	eh, _, err := f.Chain.CreateEntry(ctx, call, "sensemaker_cell_id", domain.SensemakerCellID{CellID: cell})
	if err != nil {
		return conductor.Unit{}, err
	}
	anchor, err := f.Chain.Anchor(ctx, call, domain.SensemakerCellIDTag, "")
	if err != nil {
		return conductor.Unit{}, err
	}
	_, err = f.Chain.CreateLink(ctx, call, anchor, eh, domain.SensemakerCellIDTag)
	return conductor.Unit{}, err
}

// GetSM returns the current entry under (path, tag).
func (f *Fns) GetSM(ctx context.Context, call domain.CallContext, path, tag string) (*rpc.EntryResult, error) {
	cell, err := f.SensemakerCellID(ctx, call)
	if err != nil {
		return nil, err
	}
	return f.Sensemaker.GetEntryByPath(ctx, call, cell, path, tag)
}

// GetSMWithHH is GetSM plus the action hash of the entry.
func (f *Fns) GetSMWithHH(ctx context.Context, call domain.CallContext, path, tag string) (*rpc.EntryResultWithHH, error) {
	cell, err := f.SensemakerCellID(ctx, call)
	if err != nil {
		return nil, err
	}
	return f.Sensemaker.GetEntryByPathWithHH(ctx, call, cell, path, tag)
}

// GetSMInit returns the SM_INIT registered for path.
func (f *Fns) GetSMInit(ctx context.Context, call domain.CallContext, path string) (*rpc.EntryResult, error) {
	return f.GetSM(ctx, call, path, domain.SMInitTag)
}

// GetSMComp returns the SM_COMP registered for path.
func (f *Fns) GetSMComp(ctx context.Context, call domain.CallContext, path string) (*rpc.EntryResult, error) {
	return f.GetSM(ctx, call, path, domain.SMCompTag)
}

// SetSMInit sets the SM_INIT for path to the interpretation of expr.
func (f *Fns) SetSMInit(ctx context.Context, call domain.CallContext, in PathExpr) (bool, error) {
	return f.setSM(ctx, call, in.Path, domain.SMInitTag, in.Expr)
}

// SetSMComp sets the SM_COMP for path to the interpretation of expr.
func (f *Fns) SetSMComp(ctx context.Context, call domain.CallContext, in PathExpr) (bool, error) {
	return f.setSM(ctx, call, in.Path, domain.SMCompTag, in.Expr)
}

func (f *Fns) setSM(ctx context.Context, call domain.CallContext, path, tag, expr string) (bool, error) {
	cell, err := f.SensemakerCellID(ctx, call)
	if err != nil {
		return false, err
	}
	if err := f.Sensemaker.SetEntryParseRLExpr(ctx, call, cell, path, tag, expr); err != nil {
		return false, err
	}
	return true, nil
}

// StepSMRemote steps the state of an entry.
func (f *Fns) StepSMRemote(ctx context.Context, call domain.CallContext, in rpc.StepEntryHash) (conductor.Unit, error) {
	cell, err := f.SensemakerCellID(ctx, call)
	if err != nil {
		return conductor.Unit{}, err
	}
	return conductor.Unit{}, f.Sensemaker.StepSM(ctx, call, cell, in.Path, in.Target, in.Act)
}

// StepSMPathRemote steps the state of an opaque target such as an agent.
func (f *Fns) StepSMPathRemote(ctx context.Context, call domain.CallContext, in rpc.StepPath) (conductor.Unit, error) {
	cell, err := f.SensemakerCellID(ctx, call)
	if err != nil {
		return conductor.Unit{}, err
	}
	return conductor.Unit{}, f.Sensemaker.StepSMPath(ctx, call, cell, in.Path, in.Target, in.Act)
}

// InitializeSMData seeds the state of an entry within path.
func (f *Fns) InitializeSMData(ctx context.Context, call domain.CallContext, path string, eh domain.EntryHash) error {
	cell, err := f.SensemakerCellID(ctx, call)
	if err != nil {
		return err
	}
	return f.Sensemaker.InitializeSMData(ctx, call, cell, path, eh)
}

// InitializeSMDataPath seeds the state of an opaque target within path.
func (f *Fns) InitializeSMDataPath(ctx context.Context, call domain.CallContext, in rpc.PathTarget) (conductor.Unit, error) {
	cell, err := f.SensemakerCellID(ctx, call)
	if err != nil {
		return conductor.Unit{}, err
	}
	return conductor.Unit{}, f.Sensemaker.InitializeSMDataPath(ctx, call, cell, in.Path, in.Target)
}

// RegisterCellIDFns adds set_sensemaker_cell_id and get_sensemaker_cell_id.
func (f *Fns) RegisterCellIDFns(fns map[string]conductor.Handler) {
	fns["set_sensemaker_cell_id"] = conductor.Fn(f.SetSensemakerCellID)
	fns["get_sensemaker_cell_id"] = conductor.Fn(func(ctx context.Context, call domain.CallContext, _ conductor.Unit) (domain.CellID, error) {
		return f.SensemakerCellID(ctx, call)
	})
}

// RegisterSMFns adds the SM_INIT, SM_COMP, and step forwarding functions.
func (f *Fns) RegisterSMFns(fns map[string]conductor.Handler) {
	fns["get_sm_init"] = conductor.Fn(f.GetSMInit)
	fns["get_sm_comp"] = conductor.Fn(f.GetSMComp)
	fns["set_sm_init"] = conductor.Fn(f.SetSMInit)
	fns["set_sm_comp"] = conductor.Fn(f.SetSMComp)
	fns["step_sm_remote"] = conductor.Fn(f.StepSMRemote)
	fns["step_sm_path_remote"] = conductor.Fn(f.StepSMPathRemote)
}
