package mailer

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/elskow/userauth/internal/api"
)

// JobView is the public status of a mail job. It leaves out the recipient
// and the body, which carry one-time tokens.
type JobView struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"lastError,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueuedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func viewOf(job *Job) JobView {
	return JobView{
		ID:          job.ID,
		Kind:        job.Kind,
		Status:      job.Status(),
		Attempts:    job.Attempts(),
		LastError:   job.LastError(),
		EnqueuedAt:  job.EnqueuedAt,
		CompletedAt: job.CompletedAt(),
	}
}

type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(api.MailJob, h.GetJob).Methods(http.MethodGet)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.dispatcher.GetJob(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Mail job not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": viewOf(job)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
