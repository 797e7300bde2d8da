// Package memez is the meme sharing zome. Every meme carries a score kept
// by the sensemaker cell under domain.MemezPath.
package memez

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/pbaille/happz/internal/conductor"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/replang"
	"github.com/pbaille/happz/internal/rpc"
	"github.com/pbaille/happz/internal/smpath"
	"github.com/pbaille/happz/internal/zome/smfns"
)

var (
	// ErrEmptyFilename is returned when a meme is uploaded without a name.
	ErrEmptyFilename = errors.New("filename must not be empty")
	// ErrNoScore is returned when a meme or agent has no SM_DATA.
	ErrNoScore = errors.New("no SM_DATA")
)

// ClapAct is the action that a clap applies to a meme's score.
const ClapAct = "1"

// FeedInput is (score_comp, agent): the expression that ranks the feed and
// the agent it is ranked for.
type FeedInput struct {
	_         struct{} `cbor:",toarray"`
	ScoreComp string
	Agent     domain.AgentPubKey
}

// FeedItem is (entry_hash, meme, score).
type FeedItem struct {
	_         struct{} `cbor:",toarray"`
	EntryHash domain.EntryHash
	Meme      domain.Meme
	Score     int64
}

// Memez implements the memez zome functions.
type Memez struct {
	smfns.Fns
	interp replang.Interpreter
}

// New returns the zome backed by chain, reaching the sensemaker through sm.
// A nil interp uses replang.Default.
func New(chain smfns.Chain, sm *rpc.Sensemaker, interp replang.Interpreter) *Memez {
	if interp == nil {
		interp = replang.Default
	}
	return &Memez{Fns: smfns.Fns{Chain: chain, Sensemaker: sm}, interp: interp}
}

// Zome returns the callable function table.
func (m *Memez) Zome() *conductor.Zome {
	fns := map[string]conductor.Handler{
		"upload_meme":     conductor.Fn(m.UploadMeme),
		"clap_for_meme":   conductor.Fn(m.ClapForMeme),
		"meme_clap_count": conductor.Fn(m.MemeClapCount),
		"get_all_memez":   conductor.Fn(m.GetAllMemez),
		"get_sm_data":     conductor.Fn(m.GetSMData),
	}
	m.RegisterCellIDFns(fns)
	m.RegisterSMFns(fns)
	return &conductor.Zome{Name: domain.MemezZome, Functions: fns}
}

func (m *Memez) anchor(ctx context.Context, call domain.CallContext) (domain.EntryHash, error) {
	return m.Chain.Anchor(ctx, call, domain.MemeTag, "")
}

// UploadMeme stores meme, links it from the memez anchor, and initializes
// its score. The meme stays on the chain if initialization fails.
func (m *Memez) UploadMeme(ctx context.Context, call domain.CallContext, meme domain.Meme) (smfns.HashPair, error) {
	glog.V(1).Infof("[memez]upload_meme: received input of length %d\n", len(meme.BlobStr))
	if meme.Filename == "" {
		return smfns.HashPair{}, fmt.Errorf("upload meme: %w", ErrEmptyFilename)
	}

	eh, ah, err := m.Chain.CreateEntry(ctx, call, "meme", meme)
	if err != nil {
		return smfns.HashPair{}, fmt.Errorf("upload meme: %w", err)
	}
	anchor, err := m.anchor(ctx, call)
	if err != nil {
		return smfns.HashPair{}, fmt.Errorf("upload meme: %w", err)
	}
	if _, err := m.Chain.CreateLink(ctx, call, anchor, eh, domain.MemeTag); err != nil {
		return smfns.HashPair{}, fmt.Errorf("upload meme: %w", err)
	}

	// requires SM_INIT to be set for MemezPath
	if err := m.InitializeSMData(ctx, call, domain.MemezPath, eh); err != nil {
		return smfns.HashPair{}, err
	}
	return smfns.HashPair{EntryHash: eh, ActionHash: ah}, nil
}

// ClapForMeme steps the meme's score by one clap.
func (m *Memez) ClapForMeme(ctx context.Context, call domain.CallContext, eh domain.EntryHash) (conductor.Unit, error) {
	return m.StepSMRemote(ctx, call, rpc.StepEntryHash{Path: domain.MemezPath, Target: eh, Act: ClapAct})
}

// MemeClapCount returns the meme's score, or nil when it has none or the
// score is not an integer.
func (m *Memez) MemeClapCount(ctx context.Context, call domain.CallContext, eh domain.EntryHash) (*int64, error) {
	res, err := m.GetSMData(ctx, call, eh)
	if err != nil || res == nil {
		return nil, err
	}
	n, ok := res.Entry.Output.AsInt()
	if !ok {
		return nil, nil
	}
	return &n, nil
}

// GetSMData returns the current score entry of a meme.
func (m *Memez) GetSMData(ctx context.Context, call domain.CallContext, eh domain.EntryHash) (*rpc.EntryResultWithHH, error) {
	return m.GetSMWithHH(ctx, call, smpath.ComposeEntryHash(domain.MemezPath, eh), domain.SMDataTag)
}

func (m *Memez) agentSMData(ctx context.Context, call domain.CallContext, agent domain.AgentPubKey) (*rpc.EntryResultWithHH, error) {
	return m.GetSMWithHH(ctx, call, smpath.ComposeAgent(domain.AgentPath, agent), domain.SMDataTag)
}

// GetAllMemez lists every meme with its feed score:
// score_comp(meme score, agent score). A score that is not an integer
// counts as 0. If any meme fails, the whole call fails.
func (m *Memez) GetAllMemez(ctx context.Context, call domain.CallContext, in FeedInput) ([]FeedItem, error) {
	comp, err := m.interp.Eval(in.ScoreComp)
	if err != nil {
		return nil, fmt.Errorf("get_all_memez: %w", err)
	}
	anchor, err := m.anchor(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("get_all_memez: %w", err)
	}
	links, err := m.Chain.GetLinks(ctx, call.Cell, anchor, domain.MemeTag)
	if err != nil {
		return nil, fmt.Errorf("get_all_memez: %w", err)
	}

	items := make([]FeedItem, 0, len(links))
	var lastErr error
	for _, l := range links {
		item, err := m.feedItem(ctx, call, l.Target, comp, in.Agent)
		if err != nil {
			glog.Errorf("[memez]err in fetching meme %s: %v\n", l.Target, err)
			lastErr = err
			continue
		}
		items = append(items, item)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("get_all_memez: %w", lastErr)
	}
	return items, nil
}

func (m *Memez) feedItem(ctx context.Context, call domain.CallContext, eh domain.EntryHash, comp replang.Value, agent domain.AgentPubKey) (FeedItem, error) {
	var meme domain.Meme
	if _, err := m.Chain.GetEntry(ctx, call.Cell, eh, &meme); err != nil {
		return FeedItem{}, err
	}
	memeScore, err := m.GetSMData(ctx, call, eh)
	if err != nil {
		return FeedItem{}, err
	}
	if memeScore == nil {
		return FeedItem{}, fmt.Errorf("meme %s: %w", eh, ErrNoScore)
	}
	agentScore, err := m.agentSMData(ctx, call, agent)
	if err != nil {
		return FeedItem{}, err
	}
	if agentScore == nil {
		return FeedItem{}, fmt.Errorf("agent %s: %w", agent, ErrNoScore)
	}

	v, err := m.interp.Apply(comp, memeScore.Entry.Output, agentScore.Entry.Output)
	if err != nil {
		return FeedItem{}, fmt.Errorf("score meme %s: %w", eh, err)
	}
	score, ok := v.AsInt()
	if !ok {
		glog.V(1).Infof("[memez]score of %s is %s, using 0\n", eh, v)
		score = 0
	}
	return FeedItem{EntryHash: eh, Meme: meme, Score: score}, nil
}
