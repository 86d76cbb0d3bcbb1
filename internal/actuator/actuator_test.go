package actuator_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrovskifilip/agri-management-system/internal/actuator"
	"github.com/petrovskifilip/agri-management-system/internal/domain"
)

func TestHTTP_StartSendsCommand(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/irrigations/irr-1/start", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a := actuator.NewHTTP(srv.URL+"/", time.Second)
	err := a.Start(context.Background(), &domain.Irrigation{ID: "irr-1", ParcelID: "p-1", DurationMinutes: 30, WaterAmountLiters: 100})
	require.NoError(t, err)
	got := <-received
	assert.Equal(t, "p-1", got["parcel_id"])
	assert.EqualValues(t, 30, got["duration_minutes"])
}

func TestHTTP_ClientErrorIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "valve offline", http.StatusConflict)
	}))
	defer srv.Close()

	err := actuator.NewHTTP(srv.URL, time.Second).Start(context.Background(), &domain.Irrigation{ID: "irr-1"})
	var rejected *actuator.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusConflict, rejected.StatusCode)
	assert.Equal(t, "valve offline", rejected.Message)
	assert.Equal(t, domain.OutcomeFatal, actuator.Classify(err).Kind)
}

func TestHTTP_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := actuator.NewHTTP(srv.URL, time.Second).Stop(context.Background(), &domain.Irrigation{ID: "irr-1"})
	require.Error(t, err)
	assert.Equal(t, domain.OutcomeTransient, actuator.Classify(err).Kind)
}

func TestHTTP_TimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	err := actuator.NewHTTP(srv.URL, 50*time.Millisecond).Start(context.Background(), &domain.Irrigation{ID: "irr-1"})
	require.Error(t, err)
	out := actuator.Classify(err)
	assert.Equal(t, domain.OutcomeTransient, out.Kind)
	assert.NotEmpty(t, out.Reason)
}

func TestClassify_NilIsSuccess(t *testing.T) {
	assert.Equal(t, domain.Success(), actuator.Classify(nil))
}
