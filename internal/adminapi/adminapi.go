// Package adminapi exposes read-only HTTP introspection of the current
// snapshot plus a narrow operator surface: /healthz, POST /refresh, and
// blocklist management when a store is configured. This is an operational
// surface for the people running the gateway, not the end-user query path.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/semiotic-ai/network-topology/internal/blockliststore"
	"github.com/semiotic-ai/network-topology/internal/httputil"
	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/middleware"
	"github.com/semiotic-ai/network-topology/internal/snapshot"
	"github.com/semiotic-ai/network-topology/internal/topology"
)

// Handlers serves the admin HTTP surface.
type Handlers struct {
	refresher *topology.Refresher
	store     *blockliststore.Store // nil disables blocklist management
	rateRPS   float64
	rateBurst int
}

// New builds Handlers over a Refresher. store may be nil, in which case the
// blocklist routes respond 503.
func New(refresher *topology.Refresher, store *blockliststore.Store, rateRPS float64, rateBurst int) *Handlers {
	return &Handlers{refresher: refresher, store: store, rateRPS: rateRPS, rateBurst: rateBurst}
}

// RegisterRoutes wires every admin endpoint onto r.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.Use(middleware.RateLimitMiddleware(h.rateRPS, h.rateBurst))

	r.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", h.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/snapshot/subgraphs/{id}", h.handleSubgraph).Methods(http.MethodGet)
	r.HandleFunc("/snapshot/deployments/{id}", h.handleDeployment).Methods(http.MethodGet)
	r.HandleFunc("/snapshot/indexings/{deployment}/{indexer}", h.handleIndexing).Methods(http.MethodGet)
	r.HandleFunc("/refresh", h.handleRefresh).Methods(http.MethodPost)

	r.HandleFunc("/blocklist/addresses", h.handleListAddresses).Methods(http.MethodGet)
	r.HandleFunc("/blocklist/addresses", h.handleAddAddress).Methods(http.MethodPost)
	r.HandleFunc("/blocklist/addresses/{address}", h.handleRemoveAddress).Methods(http.MethodDelete)
	r.HandleFunc("/blocklist/hosts", h.handleListHosts).Methods(http.MethodGet)
	r.HandleFunc("/blocklist/hosts", h.handleAddHost).Methods(http.MethodPost)
	r.HandleFunc("/blocklist/hosts", h.handleRemoveHost).Methods(http.MethodDelete)
	r.HandleFunc("/blocklist/pois", h.handleListPOIs).Methods(http.MethodGet)
	r.HandleFunc("/blocklist/pois", h.handleAddPOI).Methods(http.MethodPost)
	r.HandleFunc("/blocklist/pois/{deployment}/{block}", h.handleRemovePOI).Methods(http.MethodDelete)
}

type healthzResponse struct {
	Status      string `json:"status"`
	Subgraphs   int    `json:"subgraphs"`
	Deployments int    `json:"deployments"`
	Indexers    int    `json:"indexers"`
}

func (h *Handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := h.refresher.Current()
	if snap == nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, healthzResponse{Status: "no snapshot published yet"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, healthzResponse{
		Status:      "ok",
		Subgraphs:   len(snap.Subgraphs),
		Deployments: len(snap.Deployments),
		Indexers:    len(snap.Indexers),
	})
}

func (h *Handlers) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.refresher.Current()
	if snap == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no snapshot published yet")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summarize(snap))
}

type snapshotSummary struct {
	Subgraphs   int `json:"subgraphCount"`
	Deployments int `json:"deploymentCount"`
	Indexers    int `json:"indexerCount"`
}

func summarize(snap *snapshot.Snapshot) snapshotSummary {
	return snapshotSummary{
		Subgraphs:   len(snap.Subgraphs),
		Deployments: len(snap.Deployments),
		Indexers:    len(snap.Indexers),
	}
}

func (h *Handlers) handleSubgraph(w http.ResponseWriter, r *http.Request) {
	snap := h.refresher.Current()
	if snap == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no snapshot published yet")
		return
	}
	id, err := ids.ParseSubgraphId(mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid subgraph id")
		return
	}
	sg, ok := snap.Subgraph(id)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "subgraph not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sg)
}

func (h *Handlers) handleDeployment(w http.ResponseWriter, r *http.Request) {
	snap := h.refresher.Current()
	if snap == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no snapshot published yet")
		return
	}
	id, err := ids.ParseDeploymentId(mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid deployment id")
		return
	}
	dep, ok := snap.Deployment(id)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "deployment not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dep)
}

func (h *Handlers) handleIndexing(w http.ResponseWriter, r *http.Request) {
	snap := h.refresher.Current()
	if snap == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no snapshot published yet")
		return
	}
	vars := mux.Vars(r)
	dep, err := ids.ParseDeploymentId(vars["deployment"])
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid deployment id")
		return
	}
	indexer, err := ids.ParseIndexerAddr(vars["indexer"])
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid indexer address")
		return
	}
	indexing, ok := snap.Indexing(ids.IndexingId{Deployment: dep, Indexer: indexer})
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "indexing not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, indexing)
}

type refreshResponse struct {
	Status string `json:"status"`
}

// handleRefresh runs one out-of-band refresh synchronously in the request
// (Refresher.Refresh, alongside the regular ticker), bounded by a generous
// deadline so a slow registry cannot hang the HTTP request indefinitely.
func (h *Handlers) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	if err := h.refresher.Refresh(ctx); err != nil {
		httputil.WriteJSON(w, http.StatusAccepted, refreshResponse{Status: "refresh failed: " + err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, refreshResponse{Status: "refreshed"})
}

func (h *Handlers) requireStore(w http.ResponseWriter) bool {
	if h.store == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no blocklist store configured")
		return false
	}
	return true
}

type addAddressRequest struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

func (h *Handlers) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	addrs, err := h.store.AddressBlocklist(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"addresses": out})
}

func (h *Handlers) handleAddAddress(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var req addAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	addr, err := ids.ParseIndexerAddr(req.Address)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid indexer address")
		return
	}
	if err := h.store.AddAddress(r.Context(), addr, req.Reason); err != nil {
		if errors.Is(err, blockliststore.ErrAlreadyBlocked) {
			httputil.WriteError(w, http.StatusConflict, "address already blocklisted")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"address": addr.String()})
}

func (h *Handlers) handleRemoveAddress(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	addr, err := ids.ParseIndexerAddr(mux.Vars(r)["address"])
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid indexer address")
		return
	}
	if err := h.store.RemoveAddress(r.Context(), addr); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addHostRequest struct {
	CIDR   string `json:"cidr"`
	Reason string `json:"reason"`
}

func (h *Handlers) handleListHosts(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	cidrs, err := h.store.HostBlocklistCIDRs(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"cidrs": cidrs})
}

func (h *Handlers) handleAddHost(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var req addHostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CIDR == "" {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.AddHostCIDR(r.Context(), req.CIDR, req.Reason); err != nil {
		if errors.Is(err, blockliststore.ErrAlreadyBlocked) {
			httputil.WriteError(w, http.StatusConflict, "cidr already blocklisted")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"cidr": req.CIDR})
}

// handleRemoveHost takes the CIDR as a query parameter rather than a path
// segment: CIDRs contain a slash.
func (h *Handlers) handleRemoveHost(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	cidr := r.URL.Query().Get("cidr")
	if cidr == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing cidr query parameter")
		return
	}
	if err := h.store.RemoveHostCIDR(r.Context(), cidr); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addPOIRequest struct {
	Deployment   string `json:"deployment"`
	Block        uint64 `json:"block"`
	ForbiddenPOI string `json:"forbiddenPoi"`
}

type poiEntryResponse struct {
	Deployment   string `json:"deployment"`
	Block        uint64 `json:"block"`
	ForbiddenPOI string `json:"forbiddenPoi"`
}

func (h *Handlers) handleListPOIs(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	entries, err := h.store.POIEntries(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]poiEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, poiEntryResponse{
			Deployment:   e.Deployment.String(),
			Block:        e.Block,
			ForbiddenPOI: e.ForbiddenPOI,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]poiEntryResponse{"entries": out})
}

func (h *Handlers) handleAddPOI(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var req addPOIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ForbiddenPOI == "" {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dep, err := ids.ParseDeploymentId(req.Deployment)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid deployment id")
		return
	}
	if err := h.store.AddPOIEntry(r.Context(), dep, req.Block, req.ForbiddenPOI); err != nil {
		if errors.Is(err, blockliststore.ErrAlreadyBlocked) {
			httputil.WriteError(w, http.StatusConflict, "poi entry already blocklisted")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, poiEntryResponse{
		Deployment:   dep.String(),
		Block:        req.Block,
		ForbiddenPOI: req.ForbiddenPOI,
	})
}

func (h *Handlers) handleRemovePOI(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	vars := mux.Vars(r)
	dep, err := ids.ParseDeploymentId(vars["deployment"])
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid deployment id")
		return
	}
	block, err := strconv.ParseUint(vars["block"], 10, 64)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid block number")
		return
	}
	if err := h.store.RemovePOIEntry(r.Context(), dep, block); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
