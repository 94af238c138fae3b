// Package httpapi serves the public drand HTTP API from drand clients. It
// backs the relay command and the HTTP test server.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	json "github.com/nikkolasg/hexjson"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/common/log"
	"github.com/drand/drand-verify/drand"
)

const requestTimeout = 10 * time.Second

// Handler serves beacons of one or more chains, keyed by chain hash. The
// first registered chain is also served without the hash prefix.
type Handler struct {
	log    log.Logger
	router *mux.Router

	mu          sync.RWMutex
	clients     map[string]drand.Client
	defaultHash string
}

// New creates an empty handler.
func New(l log.Logger) *Handler {
	h := &Handler{
		log:     l.Named("httpapi"),
		router:  mux.NewRouter(),
		clients: make(map[string]drand.Client),
	}
	r := h.router
	r.HandleFunc("/chains", h.chains).Methods(http.MethodGet)
	r.HandleFunc("/info", h.info).Methods(http.MethodGet)
	r.HandleFunc("/public/latest", h.latest).Methods(http.MethodGet)
	r.HandleFunc("/public/{round:[0-9]+}", h.public).Methods(http.MethodGet)
	r.HandleFunc("/{chainHash:[0-9a-f]{64}}/info", h.info).Methods(http.MethodGet)
	r.HandleFunc("/{chainHash:[0-9a-f]{64}}/public/latest", h.latest).Methods(http.MethodGet)
	r.HandleFunc("/{chainHash:[0-9a-f]{64}}/public/{round:[0-9]+}", h.public).Methods(http.MethodGet)
	return h
}

// RegisterBeaconHandler serves c under chainHash.
func (h *Handler) RegisterBeaconHandler(c drand.Client, chainHash string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.defaultHash == "" {
		h.defaultHash = chainHash
	}
	h.clients[chainHash] = c
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) clientFor(r *http.Request) (drand.Client, bool) {
	hash, ok := mux.Vars(r)["chainHash"]
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !ok {
		hash = h.defaultHash
	}
	c, ok := h.clients[hash]
	return c, ok
}

func (h *Handler) chains(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	hashes := make([]string, 0, len(h.clients))
	for k := range h.clients {
		hashes = append(hashes, k)
	}
	h.mu.RUnlock()
	sort.Strings(hashes)
	h.writeJSON(w, hashes)
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	c, ok := h.clientFor(r)
	if !ok {
		http.Error(w, "unknown chain", http.StatusNotFound)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	info, err := c.Info(ctx)
	if err != nil {
		h.log.Warnw("", "http_server", "failed to serve info", "err", err)
		http.Error(w, "chain info unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=604800, immutable")
	var buf bytes.Buffer
	if err := info.ToJSON(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	h.serveRound(w, r, 0)
}

func (h *Handler) public(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.ParseUint(mux.Vars(r)["round"], 10, 64)
	if err != nil || round == 0 {
		http.Error(w, "invalid round", http.StatusBadRequest)
		return
	}
	h.serveRound(w, r, round)
}

func (h *Handler) serveRound(w http.ResponseWriter, r *http.Request, round uint64) {
	c, ok := h.clientFor(r)
	if !ok {
		http.Error(w, "unknown chain", http.StatusNotFound)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	res, err := c.Get(ctx, round)
	switch {
	case errors.Is(err, drand.ErrNotFound):
		http.Error(w, "round not found", http.StatusNotFound)
		return
	case err != nil:
		h.log.Warnw("", "http_server", "failed to serve beacon", "round", round, "err", err)
		http.Error(w, "beacon unavailable", http.StatusServiceUnavailable)
		return
	}
	if round != 0 {
		w.Header().Set("Cache-Control", "public, max-age=604800, immutable")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	h.writeJSON(w, &chain.Beacon{
		Round:             res.GetRound(),
		Randomness:        res.GetRandomness(),
		Signature:         res.GetSignature(),
		PreviousSignature: res.GetPreviousSignature(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf)
}
