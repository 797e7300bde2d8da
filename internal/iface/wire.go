// Package iface serves the conductor's admin and app websocket interfaces.
//
// Every websocket message is one binary CBOR Envelope. A request carries a
// fresh ID, and its response carries the same ID with the same Type, or the
// Type "error" and an Error as data.
package iface

import (
	"errors"

	"github.com/pbaille/happz/internal/codec"
)

// Admin request types.
const (
	TypeEnableApp           = "enable_app"
	TypeDisableApp          = "disable_app"
	TypeUninstallApp        = "uninstall_app"
	TypeGenerateAgentPubKey = "generate_agent_pub_key"
	TypeListDnas            = "list_dnas"
	TypeListCellIDs         = "list_cell_ids"
	TypeListActiveApps      = "list_active_apps"
	TypeAttachAppInterface  = "attach_app_interface"
)

// App request types.
const (
	TypeAppInfo  = "app_info"
	TypeCallZome = "call_zome"
)

// TypeError marks a failed request.
const TypeError = "error"

// ErrUnknownRequest is returned for a request type the interface does not
// serve.
var ErrUnknownRequest = errors.New("unknown request type")

// Envelope frames every request and response.
type Envelope struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data codec.RawMessage `json:"data,omitempty"`
}

// InstalledApp names an installed app.
type InstalledApp struct {
	InstalledAppID string `json:"installed_app_id"`
}

// Port is the data of attach_app_interface requests and responses. Port 0
// asks for any free port.
type Port struct {
	Port int `json:"port"`
}

// Error is the data of an error response.
type Error struct {
	Message string `json:"message"`
}

// Decode decodes the envelope's data into v. Missing data leaves v as is.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return codec.Unmarshal(e.Data, v)
}
