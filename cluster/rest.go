package cluster

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mannetroll/analysis/pkg/log"
)

// CloudStatus is the body of GET /3/Cloud.
type CloudStatus struct {
	CloudName       string `json:"cloud_name"`
	CloudSize       int    `json:"cloud_size"`
	CloudHealthy    bool   `json:"cloud_healthy"`
	State           string `json:"state"`
	Nodes           []Node `json:"nodes"`
	StoreSize       int    `json:"store_size"`
	InitialKeyCount int    `json:"initial_key_count"`
}

type listResponse struct {
	Items []Description `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the status API router:
//
//	GET    /3/Cloud
//	GET    /3/Frames
//	GET    /3/Models
//	GET    /3/Jobs/{key}
//	DELETE /3/DKV/{key}
func (c *Cloud) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/3/Cloud", c.handleCloud).Methods("GET")
	r.HandleFunc("/3/Frames", c.handleList("frame")).Methods("GET")
	r.HandleFunc("/3/Models", c.handleList("model")).Methods("GET")
	r.HandleFunc("/3/Jobs/{key}", c.handleJob).Methods("GET")
	r.HandleFunc("/3/DKV/{key}", c.handleRemove).Methods("DELETE")
	return r
}

func (c *Cloud) handleCloud(w http.ResponseWriter, r *http.Request) {
	state := c.State()
	writeJSON(w, http.StatusOK, CloudStatus{
		CloudName:       c.Name(),
		CloudSize:       c.Size(),
		CloudHealthy:    state == StateRunning || state == StateReady,
		State:           state.String(),
		Nodes:           c.Nodes(),
		StoreSize:       c.store.Size(),
		InitialKeyCount: c.InitialKeyCount(),
	})
}

func (c *Cloud) handleList(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, listResponse{Items: c.store.Describe(kind)})
	}
}

func (c *Cloud) handleJob(w http.ResponseWriter, r *http.Request) {
	key := Key(mux.Vars(r)["key"])
	v, ok := c.store.Lookup(key)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("job %s not found", key)})
		return
	}
	d, ok := v.(Describer)
	if !ok || d.Describe().Kind != "job" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("%s is not a job", key)})
		return
	}
	writeJSON(w, http.StatusOK, d.Describe())
}

func (c *Cloud) handleRemove(w http.ResponseWriter, r *http.Request) {
	key := Key(mux.Vars(r)["key"])
	if !c.store.Remove(key) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("key %s not found", key)})
		return
	}
	c.logger.Info("Key removed over REST", log.StoreKeyKey, string(key))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("error marshaling JSON: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf)
}
