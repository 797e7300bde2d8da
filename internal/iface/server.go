package iface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/conductor"
)

// WriteTimeout bounds each response write.
const WriteTimeout = 5 * time.Second

// Interfaces owns the admin interface and every attached app interface of
// one conductor.
type Interfaces struct {
	conductor *conductor.Conductor
	upgrader  websocket.Upgrader

	mu        sync.Mutex
	listeners []*http.Server
}

// New returns the interfaces of c.
func New(c *conductor.Conductor) *Interfaces {
	return &Interfaces{
		conductor: c,
		upgrader: websocket.Upgrader{
			// local tooling and browser UIs connect from any origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// AdminHandler serves admin requests on websocket connections.
func (i *Interfaces) AdminHandler() http.Handler {
	return i.handler("admin", i.admin)
}

// AppHandler serves app requests on websocket connections.
func (i *Interfaces) AppHandler() http.Handler {
	return i.handler("app", i.app)
}

// ServeAdmin starts the admin interface on addr.
func (i *Interfaces) ServeAdmin(addr string) (net.Addr, error) {
	return i.listen(addr, i.AdminHandler())
}

// AttachApp starts an app interface on addr.
func (i *Interfaces) AttachApp(addr string) (net.Addr, error) {
	return i.listen(addr, i.AppHandler())
}

func (i *Interfaces) listen(addr string, h http.Handler) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: h}

	i.mu.Lock()
	i.listeners = append(i.listeners, srv)
	i.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Errorf("[iface]serve %s error = %s\n", ln.Addr(), err)
		}
	}()
	glog.Infof("[iface]listening on %s\n", ln.Addr())
	return ln.Addr(), nil
}

// Close stops every interface.
func (i *Interfaces) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	var err error
	for _, srv := range i.listeners {
		if cerr := srv.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	i.listeners = nil
	return err
}

type dispatchFunc func(ctx context.Context, req Envelope) (any, error)

func (i *Interfaces) handler(name string, dispatch dispatchFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := i.upgrader.Upgrade(w, r, nil)
		if err != nil {
			glog.Infof("[iface]%s upgrade error = %s\n", name, err)
			return
		}
		defer ws.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		var (
			writeMu sync.Mutex
			wg      sync.WaitGroup
		)
		defer wg.Wait()

		for {
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				glog.V(1).Infof("[iface]%s %s<- closed = %s\n", name, r.RemoteAddr, err)
				return
			}
			if messageType != websocket.BinaryMessage {
				glog.V(2).Infof("[iface]%s other=%d %s<-\n", name, messageType, r.RemoteAddr)
				continue
			}

			var req Envelope
			if err := codec.Unmarshal(message, &req); err != nil {
				glog.Infof("[iface]%s bad frame from %s = %s\n", name, r.RemoteAddr, err)
				continue
			}

			// requests run concurrently; responses are matched by ID
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp := respond(ctx, req, dispatch)
				body, err := codec.Marshal(resp)
				if err != nil {
					glog.Errorf("[iface]%s encode %s error = %s\n", name, req.Type, err)
					return
				}

				writeMu.Lock()
				defer writeMu.Unlock()
				ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
				if err := ws.WriteMessage(websocket.BinaryMessage, body); err != nil {
					glog.Infof("[iface]%s ->%s error = %s\n", name, r.RemoteAddr, err)
				}
			}()
		}
	})
}

func respond(ctx context.Context, req Envelope, dispatch dispatchFunc) Envelope {
	out, err := dispatch(ctx, req)
	if err != nil {
		glog.V(1).Infof("[iface]%s %s error = %s\n", req.ID, req.Type, err)
		return errorEnvelope(req.ID, err)
	}

	var data codec.RawMessage
	switch v := out.(type) {
	case codec.RawMessage:
		data = v
	default:
		data, err = codec.Marshal(v)
		if err != nil {
			return errorEnvelope(req.ID, fmt.Errorf("encode %s: %w", req.Type, err))
		}
	}
	return Envelope{ID: req.ID, Type: req.Type, Data: data}
}

func errorEnvelope(id string, err error) Envelope {
	data, _ := codec.Marshal(Error{Message: err.Error()})
	return Envelope{ID: id, Type: TypeError, Data: data}
}

func (i *Interfaces) admin(_ context.Context, req Envelope) (any, error) {
	c := i.conductor
	switch req.Type {
	case TypeEnableApp:
		var in InstalledApp
		if err := req.Decode(&in); err != nil {
			return nil, err
		}
		if err := c.EnableApp(in.InstalledAppID); err != nil {
			return nil, err
		}
		return c.AppInfo(in.InstalledAppID)
	case TypeDisableApp:
		var in InstalledApp
		if err := req.Decode(&in); err != nil {
			return nil, err
		}
		return nil, c.DisableApp(in.InstalledAppID)
	case TypeUninstallApp:
		var in InstalledApp
		if err := req.Decode(&in); err != nil {
			return nil, err
		}
		return nil, c.UninstallApp(in.InstalledAppID)
	case TypeGenerateAgentPubKey:
		return conductor.GenerateAgentPubKey()
	case TypeListDnas:
		return c.ListDnas(), nil
	case TypeListCellIDs:
		return c.ListCellIDs(), nil
	case TypeListActiveApps:
		return c.ListActiveApps(), nil
	case TypeAttachAppInterface:
		var in Port
		if err := req.Decode(&in); err != nil {
			return nil, err
		}
		addr, err := i.AttachApp(fmt.Sprintf(":%d", in.Port))
		if err != nil {
			return nil, err
		}
		return Port{Port: addr.(*net.TCPAddr).Port}, nil
	}
	return nil, fmt.Errorf("admin %q: %w", req.Type, ErrUnknownRequest)
}

func (i *Interfaces) app(ctx context.Context, req Envelope) (any, error) {
	switch req.Type {
	case TypeAppInfo:
		var in InstalledApp
		if err := req.Decode(&in); err != nil {
			return nil, err
		}
		info, err := i.conductor.AppInfo(in.InstalledAppID)
		if errors.Is(err, conductor.ErrAppNotFound) {
			return (*conductor.AppInfo)(nil), nil
		}
		if err != nil {
			return nil, err
		}
		return &info, nil
	case TypeCallZome:
		var in conductor.CallZomeRequest
		if err := req.Decode(&in); err != nil {
			return nil, err
		}
		res, err := i.conductor.CallZome(ctx, in)
		if err != nil {
			return nil, err
		}
		return codec.RawMessage(res), nil
	}
	return nil, fmt.Errorf("app %q: %w", req.Type, ErrUnknownRequest)
}
