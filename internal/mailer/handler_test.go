package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestHandler_GetJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &mockSender{}
	d := NewDispatcher(testMailConfig(), sender, zap.NewNop(), nil)
	d.Start()
	defer func() {
		require.NoError(t, d.Stop(context.Background()))
	}()

	job, err := d.Enqueue(KindVerification, testMessage())
	require.NoError(t, err)
	waitForJob(t, job)

	r := mux.NewRouter()
	NewHandler(d).RegisterRoutes(r)

	tests := []struct {
		name       string
		id         string
		wantCode   int
		wantStatus JobStatus
	}{
		{name: "finished job", id: job.ID, wantCode: http.StatusOK, wantStatus: JobStatusSent},
		{name: "unknown job", id: "missing", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mail/jobs/"+tt.id, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Data JobView `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, job.ID, body.Data.ID)
			assert.Equal(t, KindVerification, body.Data.Kind)
			assert.Equal(t, tt.wantStatus, body.Data.Status)
			assert.Equal(t, 1, body.Data.Attempts)
			assert.NotNil(t, body.Data.CompletedAt)
			assert.NotContains(t, rec.Body.String(), "alice@example.com")
		})
	}
}
