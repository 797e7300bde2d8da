package client

import (
	"context"
	"fmt"

	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/conductor"
	"github.com/pbaille/happz/internal/iface"
)

// AppResponse is the answer to an app request.
type AppResponse interface {
	appResponse()
}

type (
	// AppInfoResponse holds nil when the app is not installed.
	AppInfoResponse struct{ App *conductor.AppInfo }
	// ZomeCalled holds the encoded result of a zome function.
	ZomeCalled struct{ Result codec.RawMessage }
)

func (AppInfoResponse) appResponse() {}
func (ZomeCalled) appResponse()      {}

// ParseAppResponse converts a response envelope to its AppResponse. An
// unknown type yields *UnknownResponseError.
func ParseAppResponse(req string, env iface.Envelope) (AppResponse, error) {
	switch env.Type {
	case iface.TypeAppInfo:
		var r AppInfoResponse
		if err := env.Decode(&r.App); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return r, nil
	case iface.TypeCallZome:
		return ZomeCalled{Result: env.Data}, nil
	}
	return nil, &UnknownResponseError{Request: req, Type: env.Type}
}

// App is a connection to an app interface.
type App struct {
	*conn
}

// DialApp connects to the app interface at url, e.g. "ws://localhost:9999".
func DialApp(ctx context.Context, url string) (*App, error) {
	c, err := dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return &App{conn: c}, nil
}

func (a *App) call(ctx context.Context, typ string, data any) (AppResponse, error) {
	env, err := a.do(ctx, typ, data)
	if err != nil {
		return nil, err
	}
	return ParseAppResponse(typ, env)
}

// AppInfo describes an installed app, or returns nil if there is none.
func (a *App) AppInfo(ctx context.Context, appID string) (*conductor.AppInfo, error) {
	resp, err := a.call(ctx, iface.TypeAppInfo, iface.InstalledApp{InstalledAppID: appID})
	if err != nil {
		return nil, err
	}
	r, ok := resp.(AppInfoResponse)
	if !ok {
		return nil, &UnknownResponseError{Request: iface.TypeAppInfo, Type: fmt.Sprintf("%T", resp)}
	}
	return r.App, nil
}

// CallZome runs req and decodes the function's result into out. A nil out
// discards the result.
func (a *App) CallZome(ctx context.Context, req conductor.CallZomeRequest, out any) error {
	resp, err := a.call(ctx, iface.TypeCallZome, req)
	if err != nil {
		return err
	}
	r, ok := resp.(ZomeCalled)
	if !ok {
		return &UnknownResponseError{Request: iface.TypeCallZome, Type: fmt.Sprintf("%T", resp)}
	}
	if out == nil || len(r.Result) == 0 {
		return nil
	}
	if err := codec.Unmarshal(r.Result, out); err != nil {
		return fmt.Errorf("decode %s/%s result: %w", req.ZomeName, req.FnName, err)
	}
	return nil
}

// Zome calls the functions of one app's zome as the app's agent.
type Zome struct {
	app  *App
	info conductor.AppInfo
	zome string
}

// Zome looks up appID and returns a caller for its first zome.
func (a *App) Zome(ctx context.Context, appID string) (*Zome, error) {
	info, err := a.AppInfo(ctx, appID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%s: %w", appID, conductor.ErrAppNotFound)
	}
	if len(info.Zomes) == 0 {
		return nil, fmt.Errorf("%s: %w", appID, conductor.ErrZomeNotFound)
	}
	return &Zome{app: a, info: *info, zome: info.Zomes[0]}, nil
}

// Call runs fn with payload. A nil payload calls a function that takes no
// input.
func (z *Zome) Call(ctx context.Context, fn string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = codec.Marshal(payload); err != nil {
			return fmt.Errorf("encode %s payload: %w", fn, err)
		}
	}
	return z.app.CallZome(ctx, conductor.CallZomeRequest{
		CellID:     z.info.CellID,
		ZomeName:   z.zome,
		FnName:     fn,
		Payload:    body,
		Provenance: z.info.CellID.Agent,
	}, out)
}

// Info describes the app the zome belongs to.
func (z *Zome) Info() conductor.AppInfo {
	return z.info
}
