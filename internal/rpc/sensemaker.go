// Package rpc is the typed boundary for calls from application cells into
// the sensemaker cell.
//
// Payloads are positional on the wire: every request and response struct
// encodes as a CBOR array in field order, so field order is part of the
// contract and must not change.
package rpc

import (
	"context"
	"fmt"

	"github.com/pbaille/happz/internal/domain"
)

// Caller runs a function in another cell.
type Caller interface {
	Call(ctx context.Context, call domain.CallContext, target domain.CellID, zome, fn string, capSecret *domain.CapSecret, payload, out any) error
}

// Remote function names of the sensemaker zome.
const (
	FnGetEntryByPath       = "get_sensemaker_entry_by_path"
	FnGetEntryByPathWithHH = "get_sensemaker_entry_by_path_with_hh"
	FnSetEntryParseRLExpr  = "set_sensemaker_entry_parse_rl_expr"
	FnInitializeSMData     = "initialize_sm_data"
	FnInitializeSMDataPath = "initialize_sm_data_path"
	FnStepSM               = "step_sm"
	FnStepSMPath           = "step_sm_path"
	FnGetHistoryByPath     = "get_sensemaker_history_by_path"
)

// PathTag is (path, link_tag).
type PathTag struct {
	_    struct{} `cbor:",toarray"`
	Path string
	Tag  string
}

// PathTagExpr is (path, link_tag, expr).
type PathTagExpr struct {
	_    struct{} `cbor:",toarray"`
	Path string
	Tag  string
	Expr string
}

// PathEntryHash is (path, target_entry_hash).
type PathEntryHash struct {
	_      struct{} `cbor:",toarray"`
	Path   string
	Target domain.EntryHash
}

// PathTarget is (path, target_b64).
type PathTarget struct {
	_      struct{} `cbor:",toarray"`
	Path   string
	Target string
}

// StepEntryHash is (path, target_entry_hash, act).
type StepEntryHash struct {
	_      struct{} `cbor:",toarray"`
	Path   string
	Target domain.EntryHash
	Act    string
}

// StepPath is (path, target, act).
type StepPath struct {
	_      struct{} `cbor:",toarray"`
	Path   string
	Target string
	Act    string
}

// EntryResult is (entry_hash, entry).
type EntryResult struct {
	_         struct{} `cbor:",toarray"`
	EntryHash domain.EntryHash
	Entry     domain.SensemakerEntry
}

// EntryResultWithHH is (entry_hash, action_hash, entry).
type EntryResultWithHH struct {
	_          struct{} `cbor:",toarray"`
	EntryHash  domain.EntryHash
	ActionHash domain.ActionHash
	Entry      domain.SensemakerEntry
}

// Sensemaker is a client for the sensemaker cell's remote functions.
type Sensemaker struct {
	caller    Caller
	capSecret *domain.CapSecret
}

// NewSensemaker returns a client that calls through caller.
func NewSensemaker(caller Caller, capSecret *domain.CapSecret) *Sensemaker {
	return &Sensemaker{caller: caller, capSecret: capSecret}
}

func (s *Sensemaker) call(ctx context.Context, call domain.CallContext, cell domain.CellID, fn string, payload, out any) error {
	if err := s.caller.Call(ctx, call, cell, domain.SensemakerZome, fn, s.capSecret, payload, out); err != nil {
		return fmt.Errorf("remote %s: %w", fn, err)
	}
	return nil
}

// GetEntryByPath returns the latest entry under (path, tag), or nil.
func (s *Sensemaker) GetEntryByPath(ctx context.Context, call domain.CallContext, cell domain.CellID, path, tag string) (*EntryResult, error) {
	var res *EntryResult
	err := s.call(ctx, call, cell, FnGetEntryByPath, PathTag{Path: path, Tag: tag}, &res)
	return res, err
}

// GetEntryByPathWithHH is GetEntryByPath plus the action that wrote the entry.
func (s *Sensemaker) GetEntryByPathWithHH(ctx context.Context, call domain.CallContext, cell domain.CellID, path, tag string) (*EntryResultWithHH, error) {
	var res *EntryResultWithHH
	err := s.call(ctx, call, cell, FnGetEntryByPathWithHH, PathTag{Path: path, Tag: tag}, &res)
	return res, err
}

// SetEntryParseRLExpr stores expr under (path, tag).
func (s *Sensemaker) SetEntryParseRLExpr(ctx context.Context, call domain.CallContext, cell domain.CellID, path, tag, expr string) error {
	return s.call(ctx, call, cell, FnSetEntryParseRLExpr, PathTagExpr{Path: path, Tag: tag, Expr: expr}, nil)
}

// InitializeSMData seeds the state of an entry from the SM_INIT at path.
func (s *Sensemaker) InitializeSMData(ctx context.Context, call domain.CallContext, cell domain.CellID, path string, target domain.EntryHash) error {
	return s.call(ctx, call, cell, FnInitializeSMData, PathEntryHash{Path: path, Target: target}, nil)
}

// InitializeSMDataPath seeds the state of an opaque target from the SM_INIT
// at path.
func (s *Sensemaker) InitializeSMDataPath(ctx context.Context, call domain.CallContext, cell domain.CellID, path, target string) error {
	return s.call(ctx, call, cell, FnInitializeSMDataPath, PathTarget{Path: path, Target: target}, nil)
}

// StepSM applies act to an entry's state using the SM_COMP at path.
func (s *Sensemaker) StepSM(ctx context.Context, call domain.CallContext, cell domain.CellID, path string, target domain.EntryHash, act string) error {
	return s.call(ctx, call, cell, FnStepSM, StepEntryHash{Path: path, Target: target, Act: act}, nil)
}

// StepSMPath applies act to an opaque target's state.
func (s *Sensemaker) StepSMPath(ctx context.Context, call domain.CallContext, cell domain.CellID, path, target, act string) error {
	return s.call(ctx, call, cell, FnStepSMPath, StepPath{Path: path, Target: target, Act: act}, nil)
}
