// Package handler serves the plan inspection HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/pairdb/placement/internal/algorithm"
	"github.com/devrev/pairdb/placement/internal/model"
	"github.com/devrev/pairdb/placement/internal/service"
)

// ReplicaView is the JSON form of a replica
type ReplicaView struct {
	Endpoint   model.Endpoint `json:"endpoint"`
	Datacenter string         `json:"datacenter,omitempty"`
	Rack       string         `json:"rack,omitempty"`
	Full       bool           `json:"full"`
}

// PlanResponse describes a replica plan
type PlanResponse struct {
	Keyspace    string            `json:"keyspace"`
	Consistency string            `json:"consistency"`
	Token       *model.Token      `json:"token,omitempty"`
	Range       *model.TokenRange `json:"range,omitempty"`
	Epoch       uint64            `json:"epoch"`
	BlockFor    int               `json:"block_for"`
	Selector    string            `json:"selector,omitempty"`
	Sufficient  bool              `json:"sufficient"`
	Unavailable string            `json:"unavailable,omitempty"`
	Contacts    []ReplicaView     `json:"contacts"`
	Live        []ReplicaView     `json:"live"`
	Pending     []ReplicaView     `json:"pending"`
	Speculative []ReplicaView     `json:"speculative,omitempty"`
}

// RangePlansResponse lists the plans covering a range
type RangePlansResponse struct {
	Range model.TokenRange `json:"range"`
	Plans []PlanResponse   `json:"plans"`
}

// PlanHandler handles plan inspection requests
type PlanHandler struct {
	placement *service.PlacementService
	errors    *ErrorWriter
	logger    *zap.Logger
	timeout   time.Duration
}

// NewPlanHandler creates a new plan handler
func NewPlanHandler(placement *service.PlacementService, errors *ErrorWriter, timeout time.Duration, logger *zap.Logger) *PlanHandler {
	return &PlanHandler{
		placement: placement,
		errors:    errors,
		logger:    logger,
		timeout:   timeout,
	}
}

// RegisterRoutes registers the plan routes on router
func (h *PlanHandler) RegisterRoutes(router *mux.Router) {
	plans := router.PathPrefix("/v1/keyspaces/{keyspace}/plans").Subrouter()
	plans.HandleFunc("/write", h.PlanWrite).Methods(http.MethodGet)
	plans.HandleFunc("/read", h.PlanRead).Methods(http.MethodGet)
	plans.HandleFunc("/counter", h.PlanCounterWrite).Methods(http.MethodGet)
	plans.HandleFunc("/range", h.PlanRangeRead).Methods(http.MethodGet)
}

// PlanWrite handles GET /v1/keyspaces/{keyspace}/plans/write?key=&consistency=&epoch=
func (h *PlanHandler) PlanWrite(w http.ResponseWriter, r *http.Request) {
	keyspace, key, ok := h.keyArgs(w, r)
	if !ok {
		return
	}
	epoch := model.EpochEmpty
	if raw := r.URL.Query().Get("epoch"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.errors.WriteValidationError(w, r, fmt.Sprintf("invalid epoch %q", raw))
			return
		}
		epoch = model.Epoch(parsed)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	plan, err := h.placement.PlanWriteAt(ctx, keyspace, key, r.URL.Query().Get("consistency"), epoch)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	resp := tokenPlanResponse(&plan.Plan)
	resp.Selector = plan.Selector()
	writeJSON(w, http.StatusOK, resp)
}

// PlanCounterWrite handles GET /v1/keyspaces/{keyspace}/plans/counter?key=&consistency=
func (h *PlanHandler) PlanCounterWrite(w http.ResponseWriter, r *http.Request) {
	keyspace, key, ok := h.keyArgs(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	plan, err := h.placement.PlanCounterWrite(ctx, keyspace, key, r.URL.Query().Get("consistency"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	resp := tokenPlanResponse(&plan.Plan)
	resp.Selector = plan.Selector()
	writeJSON(w, http.StatusOK, resp)
}

// PlanRead handles GET /v1/keyspaces/{keyspace}/plans/read?key=&consistency=
func (h *PlanHandler) PlanRead(w http.ResponseWriter, r *http.Request) {
	keyspace, key, ok := h.keyArgs(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	plan, err := h.placement.PlanRead(ctx, keyspace, key, r.URL.Query().Get("consistency"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	resp := tokenPlanResponse(&plan.Plan)
	resp.Speculative = replicaViews(plan.Topology(), plan.SpeculativeCandidates())
	writeJSON(w, http.StatusOK, resp)
}

// PlanRangeRead handles GET /v1/keyspaces/{keyspace}/plans/range?start=&end=&consistency=.
// Omitting both bounds plans the full ring.
func (h *PlanHandler) PlanRangeRead(w http.ResponseWriter, r *http.Request) {
	keyspace := mux.Vars(r)["keyspace"]
	query := r.URL.Query()

	rng := model.FullRing()
	if query.Has("start") || query.Has("end") {
		start, err := strconv.ParseInt(query.Get("start"), 10, 64)
		if err != nil {
			h.errors.WriteValidationError(w, r, fmt.Sprintf("invalid start token %q", query.Get("start")))
			return
		}
		end, err := strconv.ParseInt(query.Get("end"), 10, 64)
		if err != nil {
			h.errors.WriteValidationError(w, r, fmt.Sprintf("invalid end token %q", query.Get("end")))
			return
		}
		rng = model.TokenRange{Start: model.Token(start), End: model.Token(end)}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	plans, err := h.placement.PlanRangeRead(ctx, keyspace, rng, query.Get("consistency"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	resp := RangePlansResponse{Range: rng, Plans: make([]PlanResponse, 0, len(plans))}
	for _, plan := range plans {
		view := planResponse(&plan.Plan)
		scope := plan.NaturalAndPending().Scope()
		view.Range = &scope
		view.Speculative = replicaViews(plan.Topology(), plan.SpeculativeCandidates())
		resp.Plans = append(resp.Plans, view)
	}
	writeJSON(w, http.StatusOK, resp)
}

// keyArgs extracts the keyspace and the required partition key
func (h *PlanHandler) keyArgs(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	keyspace := mux.Vars(r)["keyspace"]
	key := r.URL.Query().Get("key")
	if key == "" {
		h.errors.WriteValidationError(w, r, "key is required")
		return "", nil, false
	}
	return keyspace, []byte(key), true
}

func tokenPlanResponse(plan *algorithm.Plan[model.Token]) PlanResponse {
	resp := planResponse(plan)
	token := plan.NaturalAndPending().Scope()
	resp.Token = &token
	return resp
}

func planResponse[S model.Scope](plan *algorithm.Plan[S]) PlanResponse {
	resp := PlanResponse{
		Keyspace:    plan.Keyspace().Name,
		Consistency: plan.ConsistencyLevel().String(),
		Epoch:       uint64(plan.Epoch()),
		BlockFor:    plan.BlockFor(),
		Sufficient:  plan.IsSufficientLive(),
		Contacts:    replicaViews(plan.Topology(), plan.Contacts()),
		Live:        replicaViews(plan.Topology(), plan.Live()),
		Pending:     replicaViews(plan.Topology(), plan.Pending()),
	}
	if err := plan.AssureSufficientLive(); err != nil {
		resp.Unavailable = err.Error()
	}
	return resp
}

func replicaViews[S model.Scope](topo algorithm.Topology, e model.Endpoints[S]) []ReplicaView {
	views := make([]ReplicaView, 0, e.Size())
	for _, r := range e.Replicas() {
		views = append(views, ReplicaView{
			Endpoint:   r.Endpoint(),
			Datacenter: topo.Datacenter(r.Endpoint()),
			Rack:       topo.Rack(r.Endpoint()),
			Full:       r.IsFull(),
		})
	}
	return views
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
