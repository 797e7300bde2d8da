// Package node assembles a conductor: it opens the databases, installs the
// sensemaker cell and the configured apps, and points every app at the
// sensemaker.
package node

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/conductor"
	"github.com/pbaille/happz/internal/config"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/rpc"
	"github.com/pbaille/happz/internal/sensemaker"
	"github.com/pbaille/happz/internal/store"
	"github.com/pbaille/happz/internal/zome/memez"
	"github.com/pbaille/happz/internal/zome/paperz"
	"github.com/pbaille/happz/internal/zome/smfns"
	"github.com/pbaille/happz/internal/zome/trailz"
)

// Node is a running conductor with its storage.
type Node struct {
	Conductor      *conductor.Conductor
	SensemakerCell domain.CellID

	chain *store.Store
	sm    *sensemaker.Cell
}

// Open creates the node described by cfg.
func Open(ctx context.Context, cfg *config.Config) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	agent, err := conductor.LoadOrCreateAgent(cfg.AgentKey())
	if err != nil {
		return nil, err
	}

	chain, err := store.New(cfg.ChainDB())
	if err != nil {
		return nil, err
	}
	sm, err := sensemaker.Open(cfg.SensemakerDB(), nil)
	if err != nil {
		chain.Close()
		return nil, err
	}
	n := &Node{Conductor: conductor.New(agent), chain: chain, sm: sm}

	if err := n.install(ctx, cfg); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

func (n *Node) install(ctx context.Context, cfg *config.Config) error {
	smCell, err := n.Conductor.InstallApp(cfg.SensemakerApp, "sensemaker", n.sm.Zome())
	if err != nil {
		return err
	}
	n.SensemakerCell = smCell

	var secret domain.CapSecret
	if _, err := rand.Read(secret[:]); err != nil {
		return fmt.Errorf("generate cap secret: %w", err)
	}
	if err := n.Conductor.GrantCap(cfg.SensemakerApp, secret); err != nil {
		return err
	}
	client := rpc.NewSensemaker(n.Conductor, &secret)

	for _, app := range cfg.Apps {
		z, err := n.zome(app, client)
		if err != nil {
			return err
		}
		if _, err := n.Conductor.InstallApp(app, app, z); err != nil {
			return err
		}
		if err := n.pointAtSensemaker(ctx, app); err != nil {
			return err
		}
	}

	return n.ApplySeeds(ctx, cfg.InitialSM)
}

func (n *Node) zome(app string, client *rpc.Sensemaker) (*conductor.Zome, error) {
	switch app {
	case config.AppMemez:
		return memez.New(n.chain, client, nil).Zome(), nil
	case config.AppPaperz:
		return paperz.New(n.chain, client).Zome(), nil
	case config.AppTrailz:
		return trailz.New(n.chain), nil
	}
	return nil, fmt.Errorf("unknown app %q", app)
}

// pointAtSensemaker records the sensemaker cell in app's chain unless it is
// already the latest one recorded.
func (n *Node) pointAtSensemaker(ctx context.Context, app string) error {
	var current domain.CellID
	err := n.Call(ctx, app, "get_sensemaker_cell_id", nil, &current)
	if err == nil && current == n.SensemakerCell {
		return nil
	}
	if err := n.Call(ctx, app, "set_sensemaker_cell_id", n.SensemakerCell, nil); err != nil {
		return fmt.Errorf("set sensemaker cell for %s: %w", app, err)
	}
	glog.Infof("[node]%s -> sensemaker %s\n", app, n.SensemakerCell)
	return nil
}

// ApplySeeds sets SM_INIT and SM_COMP for each seed through its app. An
// expression that is already current is left alone.
func (n *Node) ApplySeeds(ctx context.Context, seeds []config.SMSeed) error {
	for _, seed := range seeds {
		if err := n.seed(ctx, seed.App, "get_sm_init", "set_sm_init", seed.Path, seed.Init); err != nil {
			return fmt.Errorf("seed %s SM_INIT: %w", seed.Path, err)
		}
		if err := n.seed(ctx, seed.App, "get_sm_comp", "set_sm_comp", seed.Path, seed.Comp); err != nil {
			return fmt.Errorf("seed %s SM_COMP: %w", seed.Path, err)
		}
	}
	return nil
}

func (n *Node) seed(ctx context.Context, app, getFn, setFn, path, expr string) error {
	if expr == "" {
		return nil
	}
	var current *rpc.EntryResult
	if err := n.Call(ctx, app, getFn, path, &current); err != nil {
		return err
	}
	if current != nil && current.Entry.Operator == expr {
		return nil
	}
	if err := n.Call(ctx, app, setFn, smfns.PathExpr{Path: path, Expr: expr}, nil); err != nil {
		return err
	}
	glog.Infof("[node]%s %s = %s via %s\n", path, setFn, expr, app)
	return nil
}

// Call runs fn in app's zome as the node's agent. A nil payload calls a
// function that takes no input; a nil out discards the result.
func (n *Node) Call(ctx context.Context, app, fn string, payload, out any) error {
	info, err := n.Conductor.AppInfo(app)
	if err != nil {
		return err
	}
	if len(info.Zomes) == 0 {
		return fmt.Errorf("%s: %w", app, conductor.ErrZomeNotFound)
	}

	var body []byte
	if payload != nil {
		if body, err = codec.Marshal(payload); err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
	}
	res, err := n.Conductor.CallZome(ctx, conductor.CallZomeRequest{
		CellID:     info.CellID,
		ZomeName:   info.Zomes[0],
		FnName:     fn,
		Payload:    body,
		Provenance: n.Conductor.Agent(),
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := codec.Unmarshal(res, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Close closes the databases.
func (n *Node) Close() error {
	err := n.sm.Close()
	if cerr := n.chain.Close(); err == nil {
		err = cerr
	}
	return err
}
