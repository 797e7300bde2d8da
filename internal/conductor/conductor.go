// Package conductor hosts application cells and routes zome calls to them,
// both from clients and from one cell to another.
package conductor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"
	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/domain"
)

var (
	ErrAppNotFound  = errors.New("app not found")
	ErrAppExists    = errors.New("app already installed")
	ErrAppDisabled  = errors.New("app is disabled")
	ErrCellNotFound = errors.New("cell not found")
	ErrZomeNotFound = errors.New("zome not found")
	ErrFnNotFound   = errors.New("function not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// AppStatus is the lifecycle state of an installed app.
type AppStatus string

const (
	StatusEnabled  AppStatus = "enabled"
	StatusDisabled AppStatus = "disabled"
)

// AppInfo describes an installed app.
type AppInfo struct {
	InstalledAppID string        `json:"installed_app_id"`
	CellID         domain.CellID `json:"cell_id"`
	DnaName        string        `json:"dna_name"`
	Zomes          []string      `json:"zomes"`
	Status         AppStatus     `json:"status"`
}

type app struct {
	info  AppInfo
	zomes map[string]*Zome
	// When non-empty, calls from other cells must present one of these.
	caps map[domain.CapSecret]bool
}

// CallZomeRequest is a client's request to run a zome function.
type CallZomeRequest struct {
	CellID     domain.CellID     `json:"cell_id"`
	ZomeName   string            `json:"zome_name"`
	FnName     string            `json:"fn_name"`
	Payload    []byte            `json:"payload"`
	Provenance domain.AgentPubKey `json:"provenance"`
	CapSecret  *domain.CapSecret `json:"cap_secret,omitempty"`
}

// Conductor owns the installed apps. One app runs one cell.
type Conductor struct {
	agent domain.AgentPubKey

	mu    sync.RWMutex
	apps  map[string]*app
	cells map[domain.CellID]*app
}

// New creates a conductor whose cells run as agent.
func New(agent domain.AgentPubKey) *Conductor {
	return &Conductor{
		agent: agent,
		apps:  map[string]*app{},
		cells: map[domain.CellID]*app{},
	}
}

// Agent returns the conductor's agent key.
func (c *Conductor) Agent() domain.AgentPubKey {
	return c.agent
}

// CellID returns the cell that an app with the given DNA would run.
func (c *Conductor) CellID(dnaName string, zomes ...*Zome) domain.CellID {
	names := make([]string, len(zomes))
	for i, z := range zomes {
		names[i] = z.Name
	}
	return domain.CellID{Dna: domain.NewDnaHash(dnaName, names...), Agent: c.agent}
}

// InstallApp installs and enables an app running the given zomes.
func (c *Conductor) InstallApp(appID, dnaName string, zomes ...*Zome) (domain.CellID, error) {
	cellID := c.CellID(dnaName, zomes...)

	a := &app{
		info: AppInfo{
			InstalledAppID: appID,
			CellID:         cellID,
			DnaName:        dnaName,
			Status:         StatusEnabled,
		},
		zomes: map[string]*Zome{},
		caps:  map[domain.CapSecret]bool{},
	}
	for _, z := range zomes {
		a.zomes[z.Name] = z
		a.info.Zomes = append(a.info.Zomes, z.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.apps[appID]; ok {
		return domain.CellID{}, fmt.Errorf("install %s: %w", appID, ErrAppExists)
	}
	if _, ok := c.cells[cellID]; ok {
		return domain.CellID{}, fmt.Errorf("install %s: cell %s: %w", appID, cellID, ErrAppExists)
	}
	c.apps[appID] = a
	c.cells[cellID] = a

	glog.Infof("[conductor]installed %s cell=%s zomes=%v\n", appID, cellID, a.info.Zomes)
	return cellID, nil
}

// GrantCap requires calls into appID from other cells to present secret.
func (c *Conductor) GrantCap(appID string, secret domain.CapSecret) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.apps[appID]
	if !ok {
		return fmt.Errorf("grant %s: %w", appID, ErrAppNotFound)
	}
	a.caps[secret] = true
	return nil
}

func (c *Conductor) setStatus(appID string, status AppStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.apps[appID]
	if !ok {
		return fmt.Errorf("%s: %w", appID, ErrAppNotFound)
	}
	a.info.Status = status
	glog.Infof("[conductor]%s %s\n", appID, status)
	return nil
}

// EnableApp lets an app's cell accept calls again.
func (c *Conductor) EnableApp(appID string) error {
	return c.setStatus(appID, StatusEnabled)
}

// DisableApp makes an app's cell reject calls.
func (c *Conductor) DisableApp(appID string) error {
	return c.setStatus(appID, StatusDisabled)
}

// UninstallApp removes an app. Its chain data is kept.
func (c *Conductor) UninstallApp(appID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.apps[appID]
	if !ok {
		return fmt.Errorf("uninstall %s: %w", appID, ErrAppNotFound)
	}
	delete(c.apps, appID)
	delete(c.cells, a.info.CellID)
	glog.Infof("[conductor]uninstalled %s\n", appID)
	return nil
}

// AppInfo returns the description of an installed app.
func (c *Conductor) AppInfo(appID string) (AppInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.apps[appID]
	if !ok {
		return AppInfo{}, fmt.Errorf("%s: %w", appID, ErrAppNotFound)
	}
	return a.info, nil
}

// ListApps returns every installed app, sorted by ID.
func (c *Conductor) ListApps() []AppInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	infos := make([]AppInfo, 0, len(c.apps))
	for _, a := range c.apps {
		infos = append(infos, a.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].InstalledAppID < infos[j].InstalledAppID })
	return infos
}

// ListActiveApps returns the IDs of enabled apps.
func (c *Conductor) ListActiveApps() []string {
	var ids []string
	for _, info := range c.ListApps() {
		if info.Status == StatusEnabled {
			ids = append(ids, info.InstalledAppID)
		}
	}
	return ids
}

// ListCellIDs returns the cells of all installed apps.
func (c *Conductor) ListCellIDs() []domain.CellID {
	var cells []domain.CellID
	for _, info := range c.ListApps() {
		cells = append(cells, info.CellID)
	}
	return cells
}

// ListDnas returns the DNA hashes of all installed apps.
func (c *Conductor) ListDnas() []domain.DnaHash {
	var dnas []domain.DnaHash
	for _, info := range c.ListApps() {
		dnas = append(dnas, info.CellID.Dna)
	}
	return dnas
}

func (c *Conductor) lookup(cellID domain.CellID, zomeName, fnName string) (*app, Handler, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.cells[cellID]
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", cellID, ErrCellNotFound)
	}
	if a.info.Status != StatusEnabled {
		return nil, nil, fmt.Errorf("%s: %w", a.info.InstalledAppID, ErrAppDisabled)
	}
	z, ok := a.zomes[zomeName]
	if !ok {
		return nil, nil, fmt.Errorf("%s/%s: %w", a.info.InstalledAppID, zomeName, ErrZomeNotFound)
	}
	h, ok := z.Functions[fnName]
	if !ok {
		return nil, nil, fmt.Errorf("%s/%s/%s: %w", a.info.InstalledAppID, zomeName, fnName, ErrFnNotFound)
	}
	return a, h, nil
}

func (c *Conductor) dispatch(ctx context.Context, req CallZomeRequest, crossCell bool) (any, error) {
	a, h, err := c.lookup(req.CellID, req.ZomeName, req.FnName)
	if err != nil {
		return nil, err
	}
	if crossCell && len(a.caps) > 0 {
		if req.CapSecret == nil || !a.caps[*req.CapSecret] {
			return nil, fmt.Errorf("%s/%s: %w", req.ZomeName, req.FnName, ErrUnauthorized)
		}
	}

	glog.V(1).Infof("[call]%s %s/%s payload=%dB\n", a.info.InstalledAppID, req.ZomeName, req.FnName, len(req.Payload))
	out, err := h(ctx, domain.CallContext{Cell: req.CellID, Provenance: req.Provenance}, req.Payload)
	if err != nil {
		glog.V(1).Infof("[call]%s %s/%s error = %s\n", a.info.InstalledAppID, req.ZomeName, req.FnName, err)
		return nil, err
	}
	return out, nil
}

// CallZome runs a client's zome call and returns the encoded result.
func (c *Conductor) CallZome(ctx context.Context, req CallZomeRequest) ([]byte, error) {
	out, err := c.dispatch(ctx, req, false)
	if err != nil {
		return nil, err
	}
	body, err := codec.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return body, nil
}

// Call runs fn in the target cell on behalf of the calling cell. The payload
// and result pass through the wire encoding exactly as they would between
// processes. It implements rpc.Caller.
func (c *Conductor) Call(ctx context.Context, call domain.CallContext, target domain.CellID, zome, fn string, capSecret *domain.CapSecret, payload, out any) error {
	body, err := codec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	result, err := c.dispatch(ctx, CallZomeRequest{
		CellID:     target,
		ZomeName:   zome,
		FnName:     fn,
		Payload:    body,
		Provenance: call.Cell.Agent,
		CapSecret:  capSecret,
	}, true)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	resBody, err := codec.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := codec.Unmarshal(resBody, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
