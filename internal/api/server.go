package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/golang/glog"
	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/conductor"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/fetcher"
	"github.com/pbaille/happz/internal/zome/paperz"
)

// Server exposes the conductor's apps over HTTP with JSON bodies.
type Server struct {
	conductor *conductor.Conductor
	addr      string
	fetch     func(src string) (fetcher.File, error)
}

// New creates a new API server
func New(c *conductor.Conductor, addr string) *Server {
	return &Server{conductor: c, addr: addr, fetch: fetcher.FetchFile}
}

// Handler returns the routes of the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Apps
	mux.HandleFunc("GET /apps", s.listApps)
	mux.HandleFunc("GET /apps/{app}", s.getApp)

	// Zome calls
	mux.HandleFunc("POST /apps/{app}/zomes/{zome}/{fn}", s.callZome)

	// Upload from a URL
	mux.HandleFunc("POST /apps/{app}/fetch", s.fetchUpload)

	// Health check
	mux.HandleFunc("GET /health", s.health)

	return withCORS(mux)
}

// Run starts the HTTP server
func (s *Server) Run() error {
	glog.Infof("[api]starting server on %s\n", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"apps":  s.conductor.ListApps(),
		"agent": s.conductor.Agent(),
	})
}

func (s *Server) getApp(w http.ResponseWriter, r *http.Request) {
	info, err := s.conductor.AppInfo(r.PathValue("app"))
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) callZome(w http.ResponseWriter, r *http.Request) {
	var payload interface{}
	if r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	out, err := s.call(r, r.PathValue("app"), r.PathValue("zome"), r.PathValue("fn"), fromJSON(payload))
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": out})
}

// FetchRequest is the request body for uploading a file from a URL
type FetchRequest struct {
	URL string `json:"url"`
}

func (s *Server) fetchUpload(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	app := r.PathValue("app")
	info, err := s.conductor.AppInfo(app)
	if err != nil {
		writeCallError(w, err)
		return
	}

	f, err := s.fetch(req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	var (
		fn      string
		payload any
	)
	switch info.DnaName {
	case "memez":
		fn, payload = "upload_meme", domain.Meme{Filename: f.Filename, BlobStr: f.BlobStr()}
	case "paperz":
		fn, payload = "upload_paper", paperz.UploadInput{
			Paper: domain.Paper{Filename: f.Filename, BlobStr: f.BlobStr()},
			Agent: s.conductor.Agent(),
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s does not take uploads", app))
		return
	}

	out, err := s.call(r, app, info.Zomes[0], fn, payload)
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"filename": f.Filename,
		"size":     len(f.Data),
		"result":   out,
	})
}

// call runs a zome function as the conductor's agent and returns its result
// decoded into plain values.
func (s *Server) call(r *http.Request, app, zome, fn string, payload any) (any, error) {
	info, err := s.conductor.AppInfo(app)
	if err != nil {
		return nil, err
	}

	var body []byte
	if payload != nil {
		if body, err = codec.Marshal(payload); err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}
	res, err := s.conductor.CallZome(r.Context(), conductor.CallZomeRequest{
		CellID:     info.CellID,
		ZomeName:   zome,
		FnName:     fn,
		Payload:    body,
		Provenance: s.conductor.Agent(),
	})
	if err != nil {
		return nil, err
	}

	var out any
	if err := codec.Unmarshal(res, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}

// fromJSON converts decoded JSON so that it encodes to the payload shapes
// zome functions expect: whole numbers become integers, unsigned when
// they do not fit an int64.
func fromJSON(v interface{}) interface{} {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
			return n
		}
		f, _ := v.Float64()
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f)
		}
		return f
	case []interface{}:
		for i := range v {
			v[i] = fromJSON(v[i])
		}
		return v
	case map[string]interface{}:
		for k := range v {
			v[k] = fromJSON(v[k])
		}
		return v
	default:
		return v
	}
}

func writeCallError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, conductor.ErrAppNotFound),
		errors.Is(err, conductor.ErrCellNotFound),
		errors.Is(err, conductor.ErrZomeNotFound),
		errors.Is(err, conductor.ErrFnNotFound):
		status = http.StatusNotFound
	case errors.Is(err, conductor.ErrAppDisabled):
		status = http.StatusConflict
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
