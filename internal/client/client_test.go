package client

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/pbaille/happz/internal/conductor"
	"github.com/pbaille/happz/internal/config"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/iface"
	"github.com/pbaille/happz/internal/node"
	"github.com/pbaille/happz/internal/rpc"
	"github.com/pbaille/happz/internal/sensemaker"
	"github.com/pbaille/happz/internal/smpath"
	"github.com/pbaille/happz/internal/zome/memez"
	"github.com/pbaille/happz/internal/zome/smfns"
)

type testConductor struct {
	node   *node.Node
	ifaces *iface.Interfaces
	admin  string
	app    string
}

func newTestConductor(t *testing.T) *testConductor {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.InitialSM = []config.SMSeed{
		{App: config.AppMemez, Path: domain.MemezPath, Init: "0", Comp: "+"},
		{App: config.AppMemez, Path: domain.AgentPath, Init: "0", Comp: "+"},
	}
	n, err := node.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("node.Open: %v", err)
	}
	t.Cleanup(func() { n.Close() })

	ifaces := iface.New(n.Conductor)
	t.Cleanup(func() { ifaces.Close() })
	admin := httptest.NewServer(ifaces.AdminHandler())
	t.Cleanup(admin.Close)
	app := httptest.NewServer(ifaces.AppHandler())
	t.Cleanup(app.Close)

	return &testConductor{
		node:   n,
		ifaces: ifaces,
		admin:  "ws" + strings.TrimPrefix(admin.URL, "http"),
		app:    "ws" + strings.TrimPrefix(app.URL, "http"),
	}
}

func TestAdmin(t *testing.T) {
	ctx := context.Background()
	tc := newTestConductor(t)

	a, err := DialAdmin(ctx, tc.admin)
	assert.Equal(t, err, nil)
	defer a.Close()

	apps, err := a.ListActiveApps(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, apps, []string{"memez", "paperz", "social_sensemaker", "trailz"})

	resp, err := a.Call(ctx, DisableApp{InstalledAppID: "trailz"})
	assert.Equal(t, err, nil)
	assert.Equal(t, resp, AppDisabled{})
	apps, _ = a.ListActiveApps(ctx)
	assert.Equal(t, apps, []string{"memez", "paperz", "social_sensemaker"})

	resp, err = a.Call(ctx, EnableApp{InstalledAppID: "trailz"})
	assert.Equal(t, err, nil)
	enabled, ok := resp.(AppEnabled)
	assert.Equal(t, ok, true)
	assert.Equal(t, enabled.App.InstalledAppID, "trailz")
	assert.Equal(t, enabled.App.Status, conductor.StatusEnabled)

	resp, err = a.Call(ctx, GenerateAgentPubKey{})
	assert.Equal(t, err, nil)
	assert.Equal(t, resp.(AgentPubKeyGenerated).Agent.IsZero(), false)

	resp, err = a.Call(ctx, ListCellIDs{})
	assert.Equal(t, err, nil)
	assert.Equal(t, resp.(CellIDsListed).Cells, tc.node.Conductor.ListCellIDs())

	resp, err = a.Call(ctx, ListDnas{})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(resp.(DnasListed).Dnas), 4)

	_, err = a.Call(ctx, UninstallApp{InstalledAppID: "nope"})
	var remote *RemoteError
	assert.Equal(t, errors.As(err, &remote), true)
	assert.Equal(t, remote.Type, iface.TypeUninstallApp)
}

func TestAttachAppInterface(t *testing.T) {
	ctx := context.Background()
	tc := newTestConductor(t)

	a, err := DialAdmin(ctx, tc.admin)
	assert.Equal(t, err, nil)
	defer a.Close()

	port, err := a.AttachAppInterface(ctx, 0)
	assert.Equal(t, err, nil)
	assert.NotEqual(t, port, 0)

	app, err := DialApp(ctx, fmt.Sprintf("ws://127.0.0.1:%d", port))
	assert.Equal(t, err, nil)
	defer app.Close()

	info, err := app.AppInfo(ctx, "memez")
	assert.Equal(t, err, nil)
	assert.Equal(t, info.InstalledAppID, "memez")
}

func TestAppCalls(t *testing.T) {
	ctx := context.Background()
	tc := newTestConductor(t)

	app, err := DialApp(ctx, tc.app)
	assert.Equal(t, err, nil)
	defer app.Close()

	info, err := app.AppInfo(ctx, "nope")
	assert.Equal(t, err, nil)
	assert.Equal(t, info == nil, true)

	_, err = app.Zome(ctx, "nope")
	assert.Equal(t, errors.Is(err, conductor.ErrAppNotFound), true)

	paperz, err := app.Zome(ctx, "paperz")
	assert.Equal(t, err, nil)
	agent := paperz.Info().CellID.Agent
	err = paperz.Call(ctx, "init_agent_sm_data", rpc.PathTarget{Path: domain.AgentPath, Target: agent.String()}, nil)
	assert.Equal(t, err, nil)

	mz, err := app.Zome(ctx, "memez")
	assert.Equal(t, err, nil)
	meme := domain.Meme{Filename: "a.png", BlobStr: "QQ=="}
	var up smfns.HashPair
	assert.Equal(t, mz.Call(ctx, "upload_meme", meme, &up), nil)
	assert.Equal(t, mz.Call(ctx, "clap_for_meme", up.EntryHash, nil), nil)

	var feed []memez.FeedItem
	assert.Equal(t, mz.Call(ctx, "get_all_memez", memez.FeedInput{ScoreComp: "+", Agent: agent}, &feed), nil)
	assert.Equal(t, len(feed), 1)
	assert.Equal(t, feed[0].Meme, meme)
	assert.Equal(t, feed[0].Score, int64(1))

	sm, err := app.Zome(ctx, "social_sensemaker")
	assert.Equal(t, err, nil)
	var records []sensemaker.Record
	in := rpc.PathTag{Path: smpath.ComposeEntryHash(domain.MemezPath, up.EntryHash), Tag: domain.SMDataTag}
	assert.Equal(t, sm.Call(ctx, rpc.FnGetHistoryByPath, in, &records), nil)
	assert.Equal(t, len(records), 2)
	assert.Equal(t, records[0].Entry.Output.String(), "0")
	assert.Equal(t, records[1].Entry.Output.String(), "1")

	err = mz.Call(ctx, "no_such_fn", nil, nil)
	var remote *RemoteError
	assert.Equal(t, errors.As(err, &remote), true)
	assert.Equal(t, strings.Contains(remote.Message, conductor.ErrFnNotFound.Error()), true)
}

func TestConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	tc := newTestConductor(t)

	a, err := DialAdmin(ctx, tc.admin)
	assert.Equal(t, err, nil)
	defer a.Close()

	errs := make(chan error, 16)
	for i := 0; i < cap(errs); i++ {
		go func() {
			_, err := a.ListActiveApps(ctx)
			errs <- err
		}()
	}
	for i := 0; i < cap(errs); i++ {
		assert.Equal(t, <-errs, nil)
	}
}

func TestUnknownResponse(t *testing.T) {
	_, err := ParseAdminResponse(iface.TypeListDnas, iface.Envelope{ID: "1", Type: "dnas_listed_v2"})
	var unknown *UnknownResponseError
	assert.Equal(t, errors.As(err, &unknown), true)
	assert.Equal(t, unknown.Type, "dnas_listed_v2")

	_, err = ParseAppResponse(iface.TypeCallZome, iface.Envelope{ID: "2", Type: "zome_called"})
	assert.Equal(t, errors.As(err, &unknown), true)
}

func TestClosedConnection(t *testing.T) {
	ctx := context.Background()
	tc := newTestConductor(t)

	a, err := DialAdmin(ctx, tc.admin)
	assert.Equal(t, err, nil)
	a.Close()

	_, err = a.ListActiveApps(ctx)
	assert.NotEqual(t, err, nil)
}
