package conductor

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/domain"
)

type pair struct {
	_ struct{} `cbor:",toarray"`
	A string
	B int64
}

func echoZome() *Zome {
	return &Zome{
		Name: "echo",
		Functions: map[string]Handler{
			"swap": Fn(func(_ context.Context, _ domain.CallContext, in pair) (pair, error) {
				return pair{A: in.A + in.A, B: -in.B}, nil
			}),
			"whoami": Fn(func(_ context.Context, call domain.CallContext, _ Unit) (domain.AgentPubKey, error) {
				return call.Provenance, nil
			}),
			"fail": Fn(func(_ context.Context, _ domain.CallContext, _ Unit) (Unit, error) {
				return Unit{}, errors.New("nope")
			}),
		},
	}
}

var agent = domain.AgentPubKey{42}

func TestCallZome(t *testing.T) {
	ctx := context.Background()
	c := New(agent)
	cell, err := c.InstallApp("echo", "echo", echoZome())
	assert.Equal(t, err, nil)
	assert.Equal(t, cell, c.CellID("echo", echoZome()))

	body, _ := codec.Marshal(pair{A: "ab", B: 3})
	res, err := c.CallZome(ctx, CallZomeRequest{CellID: cell, ZomeName: "echo", FnName: "swap", Payload: body, Provenance: agent})
	assert.Equal(t, err, nil)
	var out pair
	assert.Equal(t, codec.Unmarshal(res, &out), nil)
	assert.Equal(t, out.A, "abab")
	assert.Equal(t, out.B, int64(-3))

	caller := domain.AgentPubKey{9}
	res, err = c.CallZome(ctx, CallZomeRequest{CellID: cell, ZomeName: "echo", FnName: "whoami", Provenance: caller})
	assert.Equal(t, err, nil)
	var who domain.AgentPubKey
	assert.Equal(t, codec.Unmarshal(res, &who), nil)
	assert.Equal(t, who, caller)

	_, err = c.CallZome(ctx, CallZomeRequest{CellID: cell, ZomeName: "echo", FnName: "fail"})
	assert.Equal(t, err.Error(), "nope")

	_, err = c.CallZome(ctx, CallZomeRequest{CellID: cell, ZomeName: "echo", FnName: "swap", Payload: []byte{0xff}})
	assert.NotEqual(t, err, nil)
}

func TestCallZomeErrors(t *testing.T) {
	ctx := context.Background()
	c := New(agent)
	cell, _ := c.InstallApp("echo", "echo", echoZome())

	tests := []struct {
		name string
		req  CallZomeRequest
		want error
	}{
		{"unknown cell", CallZomeRequest{CellID: domain.CellID{}, ZomeName: "echo", FnName: "swap"}, ErrCellNotFound},
		{"unknown zome", CallZomeRequest{CellID: cell, ZomeName: "nope", FnName: "swap"}, ErrZomeNotFound},
		{"unknown fn", CallZomeRequest{CellID: cell, ZomeName: "echo", FnName: "nope"}, ErrFnNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CallZome(ctx, tt.req)
			assert.Equal(t, errors.Is(err, tt.want), true)
		})
	}
}

func TestAppLifecycle(t *testing.T) {
	ctx := context.Background()
	c := New(agent)
	cell, err := c.InstallApp("echo", "echo", echoZome())
	assert.Equal(t, err, nil)

	_, err = c.InstallApp("echo", "other", echoZome())
	assert.Equal(t, errors.Is(err, ErrAppExists), true)

	req := CallZomeRequest{CellID: cell, ZomeName: "echo", FnName: "whoami"}
	assert.Equal(t, c.DisableApp("echo"), nil)
	_, err = c.CallZome(ctx, req)
	assert.Equal(t, errors.Is(err, ErrAppDisabled), true)
	assert.Equal(t, len(c.ListActiveApps()), 0)

	assert.Equal(t, c.EnableApp("echo"), nil)
	_, err = c.CallZome(ctx, req)
	assert.Equal(t, err, nil)
	assert.Equal(t, c.ListActiveApps(), []string{"echo"})

	info, err := c.AppInfo("echo")
	assert.Equal(t, err, nil)
	want := AppInfo{InstalledAppID: "echo", CellID: cell, DnaName: "echo", Zomes: []string{"echo"}, Status: StatusEnabled}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("AppInfo mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, c.ListCellIDs(), []domain.CellID{cell})
	assert.Equal(t, c.ListDnas(), []domain.DnaHash{cell.Dna})

	assert.Equal(t, c.UninstallApp("echo"), nil)
	_, err = c.CallZome(ctx, req)
	assert.Equal(t, errors.Is(err, ErrCellNotFound), true)
	assert.Equal(t, errors.Is(c.EnableApp("echo"), ErrAppNotFound), true)
	assert.Equal(t, errors.Is(c.UninstallApp("echo"), ErrAppNotFound), true)
}

func TestCrossCellCall(t *testing.T) {
	ctx := context.Background()
	c := New(agent)
	target, _ := c.InstallApp("echo", "echo", echoZome())
	caller := domain.CellID{Dna: domain.NewDnaHash("caller"), Agent: agent}
	call := domain.CallContext{Cell: caller, Provenance: domain.AgentPubKey{1}}

	var out pair
	err := c.Call(ctx, call, target, "echo", "swap", nil, pair{A: "x", B: 1}, &out)
	assert.Equal(t, err, nil)
	assert.Equal(t, out.A, "xx")

	// remote calls run as the calling cell's agent
	var who domain.AgentPubKey
	assert.Equal(t, c.Call(ctx, call, target, "echo", "whoami", nil, Unit{}, &who), nil)
	assert.Equal(t, who, agent)

	var secret domain.CapSecret
	secret[0] = 1
	assert.Equal(t, c.GrantCap("echo", secret), nil)

	err = c.Call(ctx, call, target, "echo", "swap", nil, pair{}, &out)
	assert.Equal(t, errors.Is(err, ErrUnauthorized), true)
	wrong := domain.CapSecret{2}
	err = c.Call(ctx, call, target, "echo", "swap", &wrong, pair{}, &out)
	assert.Equal(t, errors.Is(err, ErrUnauthorized), true)
	err = c.Call(ctx, call, target, "echo", "swap", &secret, pair{A: "y"}, &out)
	assert.Equal(t, err, nil)
	assert.Equal(t, out.A, "yy")

	// clients calling the cell directly are not asked for a capability
	_, err = c.CallZome(ctx, CallZomeRequest{CellID: target, ZomeName: "echo", FnName: "whoami"})
	assert.Equal(t, err, nil)

	assert.Equal(t, errors.Is(c.GrantCap("nope", secret), ErrAppNotFound), true)
}
