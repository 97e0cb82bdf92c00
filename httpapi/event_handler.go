package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/scribeflow/sched/event"
	"github.com/scribeflow/sched/id"
	"github.com/scribeflow/sched/job"
)

// streamEvents sends the job's lifecycle events as server-sent events.
// The stream ends after the terminal event, or when the client leaves.
func (a *API) streamEvents(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := a.d.Get(jobID); err != nil {
		a.writeDispatchError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := a.d.Subscribe(jobID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The job may have finished between Get and Subscribe; replay its
	// terminal event so the stream still ends cleanly.
	if j, err := a.d.Get(jobID); err == nil && j.State.Terminal() {
		a.writeEvent(w, flusher, terminalEvent(j))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-sub.Events():
			if !open {
				return
			}
			if !a.writeEvent(w, flusher, evt) {
				return
			}
		}
	}
}

// writeEvent sends one SSE frame. Returns false once the client is gone.
func (a *API) writeEvent(w http.ResponseWriter, flusher http.Flusher, evt event.Event) bool {
	payload, err := json.Marshal(evt)
	if err != nil {
		a.logger.Warn("marshal event", "error", err)
		return true
	}
	if _, err := w.Write([]byte("event: " + string(evt.Type) + "\ndata: " + string(payload) + "\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

// terminalEvent reconstructs the terminal event for a finished job.
func terminalEvent(j *job.Job) event.Event {
	evt := event.Event{
		ID:      id.NewEventID(),
		JobID:   j.ID,
		To:      j.State,
		Attempt: j.Attempt,
		At:      j.LastTransitionAt,
	}
	switch j.State {
	case job.StateCompleted:
		evt.Type = event.TypeCompleted
	case job.StateFailed:
		evt.Type = event.TypeFailed
		if j.Result != nil {
			evt.Kind = j.Result.Failure
			evt.Detail = j.Result.Detail
		}
	case job.StateCancelled:
		evt.Type = event.TypeCancelled
		evt.Detail = j.CancelReason
	}
	return evt
}
