package agent

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/updrive-io/updrive/pkg/log"
)

// newRouter builds the local status surface. It binds to loopback by
// default; there is no authentication layer here.
func (a *Agent) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/update", a.handleTriggerUpdate).Methods(http.MethodPost)
	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (a *Agent) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := a.attempter.Tracker().Snapshot()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Error(err, "Failed to encode status snapshot")
	}
}

// handleTriggerUpdate starts an update cycle on behalf of an external
// scheduler. The cycle is bound to the agent's lifetime, not the request's.
func (a *Agent) handleTriggerUpdate(w http.ResponseWriter, _ *http.Request) {
	ctx := a.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	if err := a.attempter.Update(ctx, a.appID, a.serverURL); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
