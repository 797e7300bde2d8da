package client

import (
	"context"
	"fmt"

	"github.com/pbaille/happz/internal/conductor"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/iface"
)

// AdminCmd is a request to the admin interface. The set of commands is
// closed: only the types in this package implement it.
type AdminCmd interface {
	requestType() string
	data() any
}

type (
	EnableApp           struct{ InstalledAppID string }
	DisableApp          struct{ InstalledAppID string }
	UninstallApp        struct{ InstalledAppID string }
	GenerateAgentPubKey struct{}
	ListDnas            struct{}
	ListCellIDs         struct{}
	ListActiveApps      struct{}
	AttachAppInterface  struct{ Port int }
)

func (EnableApp) requestType() string           { return iface.TypeEnableApp }
func (DisableApp) requestType() string          { return iface.TypeDisableApp }
func (UninstallApp) requestType() string        { return iface.TypeUninstallApp }
func (GenerateAgentPubKey) requestType() string { return iface.TypeGenerateAgentPubKey }
func (ListDnas) requestType() string            { return iface.TypeListDnas }
func (ListCellIDs) requestType() string         { return iface.TypeListCellIDs }
func (ListActiveApps) requestType() string      { return iface.TypeListActiveApps }
func (AttachAppInterface) requestType() string  { return iface.TypeAttachAppInterface }

func (c EnableApp) data() any          { return iface.InstalledApp{InstalledAppID: c.InstalledAppID} }
func (c DisableApp) data() any         { return iface.InstalledApp{InstalledAppID: c.InstalledAppID} }
func (c UninstallApp) data() any       { return iface.InstalledApp{InstalledAppID: c.InstalledAppID} }
func (GenerateAgentPubKey) data() any  { return nil }
func (ListDnas) data() any             { return nil }
func (ListCellIDs) data() any          { return nil }
func (ListActiveApps) data() any       { return nil }
func (c AttachAppInterface) data() any { return iface.Port{Port: c.Port} }

// AdminResponse is the answer to an AdminCmd. Like AdminCmd, the set is
// closed.
type AdminResponse interface {
	adminResponse()
}

type (
	AppEnabled           struct{ App conductor.AppInfo }
	AppDisabled          struct{}
	AppUninstalled       struct{}
	AgentPubKeyGenerated struct{ Agent domain.AgentPubKey }
	DnasListed           struct{ Dnas []domain.DnaHash }
	CellIDsListed        struct{ Cells []domain.CellID }
	ActiveAppsListed     struct{ Apps []string }
	AppInterfaceAttached struct{ Port int }
)

func (AppEnabled) adminResponse()           {}
func (AppDisabled) adminResponse()          {}
func (AppUninstalled) adminResponse()       {}
func (AgentPubKeyGenerated) adminResponse() {}
func (DnasListed) adminResponse()           {}
func (CellIDsListed) adminResponse()        {}
func (ActiveAppsListed) adminResponse()     {}
func (AppInterfaceAttached) adminResponse() {}

// ParseAdminResponse converts a response envelope to its AdminResponse. An
// unknown type yields *UnknownResponseError.
func ParseAdminResponse(req string, env iface.Envelope) (AdminResponse, error) {
	var (
		resp AdminResponse
		err  error
	)
	switch env.Type {
	case iface.TypeEnableApp:
		var r AppEnabled
		err = env.Decode(&r.App)
		resp = r
	case iface.TypeDisableApp:
		resp = AppDisabled{}
	case iface.TypeUninstallApp:
		resp = AppUninstalled{}
	case iface.TypeGenerateAgentPubKey:
		var r AgentPubKeyGenerated
		err = env.Decode(&r.Agent)
		resp = r
	case iface.TypeListDnas:
		var r DnasListed
		err = env.Decode(&r.Dnas)
		resp = r
	case iface.TypeListCellIDs:
		var r CellIDsListed
		err = env.Decode(&r.Cells)
		resp = r
	case iface.TypeListActiveApps:
		var r ActiveAppsListed
		err = env.Decode(&r.Apps)
		resp = r
	case iface.TypeAttachAppInterface:
		var p iface.Port
		err = env.Decode(&p)
		resp = AppInterfaceAttached{Port: p.Port}
	default:
		return nil, &UnknownResponseError{Request: req, Type: env.Type}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return resp, nil
}

// Admin is a connection to the admin interface.
type Admin struct {
	*conn
}

// DialAdmin connects to the admin interface at url, e.g.
// "ws://localhost:9000".
func DialAdmin(ctx context.Context, url string) (*Admin, error) {
	c, err := dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Admin{conn: c}, nil
}

// Call runs cmd.
func (a *Admin) Call(ctx context.Context, cmd AdminCmd) (AdminResponse, error) {
	env, err := a.do(ctx, cmd.requestType(), cmd.data())
	if err != nil {
		return nil, err
	}
	return ParseAdminResponse(cmd.requestType(), env)
}

// ListActiveApps returns the IDs of the enabled apps.
func (a *Admin) ListActiveApps(ctx context.Context) ([]string, error) {
	resp, err := a.Call(ctx, ListActiveApps{})
	if err != nil {
		return nil, err
	}
	listed, ok := resp.(ActiveAppsListed)
	if !ok {
		return nil, &UnknownResponseError{Request: iface.TypeListActiveApps, Type: fmt.Sprintf("%T", resp)}
	}
	return listed.Apps, nil
}

// AttachAppInterface opens an app interface on port and returns the port
// it listens on.
func (a *Admin) AttachAppInterface(ctx context.Context, port int) (int, error) {
	resp, err := a.Call(ctx, AttachAppInterface{Port: port})
	if err != nil {
		return 0, err
	}
	attached, ok := resp.(AppInterfaceAttached)
	if !ok {
		return 0, &UnknownResponseError{Request: iface.TypeAttachAppInterface, Type: fmt.Sprintf("%T", resp)}
	}
	return attached.Port, nil
}
