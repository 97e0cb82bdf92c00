package httpapi

import "net/http"

type healthResponse struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queue_depth"`
	Active     int    `json:"active"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		QueueDepth: a.d.QueueDepth(),
		Active:     a.d.Active(),
	}
	if a.archive != nil {
		if err := a.archive.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
		}
	}
	a.writeJSON(w, http.StatusOK, resp)
}
