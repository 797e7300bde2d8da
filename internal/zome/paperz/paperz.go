// Package paperz is the paper annotation zome. Agents earn a score for every
// paper they upload, and every annotation carries its own score.
package paperz

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/pbaille/happz/internal/conductor"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/rpc"
	"github.com/pbaille/happz/internal/smpath"
	"github.com/pbaille/happz/internal/zome/smfns"
)

// ErrEmptyFilename is returned when a paper is uploaded without a name.
var ErrEmptyFilename = errors.New("filename must not be empty")

// UploadAct is the action applied to an agent's score per uploaded paper.
const UploadAct = "1"

// UploadInput is (paper, agent).
type UploadInput struct {
	_     struct{} `cbor:",toarray"`
	Paper domain.Paper
	Agent domain.AgentPubKey
}

// PaperItem is (entry_hash, paper).
type PaperItem struct {
	_         struct{} `cbor:",toarray"`
	EntryHash domain.EntryHash
	Paper     domain.Paper
}

// AnnotationItem is (entry_hash, annotation).
type AnnotationItem struct {
	_          struct{} `cbor:",toarray"`
	EntryHash  domain.EntryHash
	Annotation domain.Annotation
}

// Paperz implements the paperz zome functions.
type Paperz struct {
	smfns.Fns
}

// New returns the zome backed by chain, reaching the sensemaker through sm.
func New(chain smfns.Chain, sm *rpc.Sensemaker) *Paperz {
	return &Paperz{Fns: smfns.Fns{Chain: chain, Sensemaker: sm}}
}

// Zome returns the callable function table.
func (p *Paperz) Zome() *conductor.Zome {
	fns := map[string]conductor.Handler{
		"upload_paper":              conductor.Fn(p.UploadPaper),
		"get_all_paperz":            conductor.Fn(p.GetAllPaperz),
		"create_annotation":         conductor.Fn(p.CreateAnnotation),
		"get_annotations_for_paper": conductor.Fn(p.GetAnnotationsForPaper),
		"init_agent_sm_data":        conductor.Fn(p.InitializeSMDataPath),
		"get_sm_data":               conductor.Fn(p.GetSMData),
	}
	p.RegisterCellIDFns(fns)
	p.RegisterSMFns(fns)
	return &conductor.Zome{Name: domain.PaperzZome, Functions: fns}
}

// UploadPaper stores paper, links it from the paperz anchor, and steps the
// uploading agent's score.
func (p *Paperz) UploadPaper(ctx context.Context, call domain.CallContext, in UploadInput) (smfns.HashPair, error) {
	glog.V(1).Infof("[paperz]upload_paper: received input of length %d from %s\n", len(in.Paper.BlobStr), in.Agent)
	if in.Paper.Filename == "" {
		return smfns.HashPair{}, fmt.Errorf("upload paper: %w", ErrEmptyFilename)
	}

	eh, ah, err := p.Chain.CreateEntry(ctx, call, "paper", in.Paper)
	if err != nil {
		return smfns.HashPair{}, fmt.Errorf("upload paper: %w", err)
	}
	anchor, err := p.Chain.Anchor(ctx, call, domain.PaperTag, "")
	if err != nil {
		return smfns.HashPair{}, fmt.Errorf("upload paper: %w", err)
	}
	if _, err := p.Chain.CreateLink(ctx, call, anchor, eh, domain.PaperTag); err != nil {
		return smfns.HashPair{}, fmt.Errorf("upload paper: %w", err)
	}

	_, err = p.StepSMPathRemote(ctx, call, rpc.StepPath{
		Path:   domain.AgentPath,
		Target: in.Agent.String(),
		Act:    UploadAct,
	})
	if err != nil {
		return smfns.HashPair{}, err
	}
	return smfns.HashPair{EntryHash: eh, ActionHash: ah}, nil
}

// GetAllPaperz lists every paper. If any paper fails to load, the whole
// call fails.
func (p *Paperz) GetAllPaperz(ctx context.Context, call domain.CallContext, _ conductor.Unit) ([]PaperItem, error) {
	anchor, err := p.Chain.Anchor(ctx, call, domain.PaperTag, "")
	if err != nil {
		return nil, fmt.Errorf("get_all_paperz: %w", err)
	}
	links, err := p.Chain.GetLinks(ctx, call.Cell, anchor, domain.PaperTag)
	if err != nil {
		return nil, fmt.Errorf("get_all_paperz: %w", err)
	}

	paperz := make([]PaperItem, 0, len(links))
	var lastErr error
	for _, l := range links {
		var paper domain.Paper
		if _, err := p.Chain.GetEntry(ctx, call.Cell, l.Target, &paper); err != nil {
			glog.Errorf("[paperz]err in fetching paper %s: %v\n", l.Target, err)
			lastErr = err
			continue
		}
		paperz = append(paperz, PaperItem{EntryHash: l.Target, Paper: paper})
	}
	if lastErr != nil {
		return nil, fmt.Errorf("get_all_paperz: %w", lastErr)
	}
	return paperz, nil
}

// CreateAnnotation stores an annotation, links it from the annotation
// anchor and from the paper it refers to, and initializes its score.
func (p *Paperz) CreateAnnotation(ctx context.Context, call domain.CallContext, ann domain.Annotation) (smfns.HashPair, error) {
	eh, ah, err := p.Chain.CreateEntry(ctx, call, "annotation", ann)
	if err != nil {
		return smfns.HashPair{}, fmt.Errorf("create annotation: %w", err)
	}
	anchor, err := p.Chain.Anchor(ctx, call, domain.AnnTag, "")
	if err != nil {
		return smfns.HashPair{}, fmt.Errorf("create annotation: %w", err)
	}
	if _, err := p.Chain.CreateLink(ctx, call, anchor, eh, domain.AnnTag); err != nil {
		return smfns.HashPair{}, fmt.Errorf("create annotation: %w", err)
	}
	if _, err := p.Chain.CreateLink(ctx, call, ann.PaperRef, eh, domain.AnnTag); err != nil {
		return smfns.HashPair{}, fmt.Errorf("create annotation: %w", err)
	}

	if err := p.InitializeSMData(ctx, call, domain.AnnotationzPath, eh); err != nil {
		return smfns.HashPair{}, err
	}
	return smfns.HashPair{EntryHash: eh, ActionHash: ah}, nil
}

// GetAnnotationsForPaper lists the annotations of a paper. Annotations that
// fail to load are logged and left out.
func (p *Paperz) GetAnnotationsForPaper(ctx context.Context, call domain.CallContext, paper domain.EntryHash) ([]AnnotationItem, error) {
	links, err := p.Chain.GetLinks(ctx, call.Cell, paper, domain.AnnTag)
	if err != nil {
		return nil, fmt.Errorf("get annotations for %s: %w", paper, err)
	}

	annotations := make([]AnnotationItem, 0, len(links))
	for _, l := range links {
		var ann domain.Annotation
		if _, err := p.Chain.GetEntry(ctx, call.Cell, l.Target, &ann); err != nil {
			glog.Errorf("[paperz]get_annotations_for_paper: err: %v\n", err)
			continue
		}
		annotations = append(annotations, AnnotationItem{EntryHash: l.Target, Annotation: ann})
	}
	return annotations, nil
}

// GetSMData returns the current score entry of an annotation.
func (p *Paperz) GetSMData(ctx context.Context, call domain.CallContext, eh domain.EntryHash) (*rpc.EntryResult, error) {
	return p.GetSM(ctx, call, smpath.ComposeEntryHash(domain.AnnotationzPath, eh), domain.SMDataTag)
}
