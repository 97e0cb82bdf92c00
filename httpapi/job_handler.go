package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/scribeflow/sched/agent"
	"github.com/scribeflow/sched/cancel"
	"github.com/scribeflow/sched/job"
)

type submitRequest struct {
	PayloadRef string `json:"payload_ref"`
	Agent      string `json:"agent"`
	Priority   string `json:"priority"`
}

type gapResponse struct {
	Job *job.Job `json:"job"`
	Gap string   `json:"gap,omitempty"`
}

func (a *API) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PayloadRef == "" {
		a.writeError(w, http.StatusBadRequest, "payload_ref is required")
		return
	}
	kind := agent.Kind(req.Agent)
	if !kind.Valid() {
		a.writeError(w, http.StatusBadRequest, "unknown agent kind: "+req.Agent)
		return
	}

	j, err := a.d.Submit(r.Context(), req.PayloadRef, kind, job.ParsePriority(req.Priority))
	if err != nil {
		a.writeDispatchError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, j)
}

func (a *API) listJobs(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.d.List())
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	j, err := a.d.Get(jobID)
	if err != nil {
		a.writeDispatchError(w, err)
		return
	}

	resp := gapResponse{Job: j}
	if j.State == job.StateAwaitingInput {
		if gap, gapErr := a.d.Gap(jobID); gapErr == nil {
			resp.Gap = gap
		}
	}
	a.writeJSON(w, http.StatusOK, resp)
}

type inputRequest struct {
	Supplement string `json:"supplement"`
}

func (a *API) supplyInput(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Supplement == "" {
		a.writeError(w, http.StatusBadRequest, "supplement is required")
		return
	}

	if err := a.d.SupplyInput(r.Context(), jobID, req.Supplement); err != nil {
		a.writeDispatchError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.d.Cancel(r.Context(), jobID, cancel.ReasonUser); err != nil {
		a.writeDispatchError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
