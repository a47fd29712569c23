package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_DecodesServerStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/server_status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ServerStatus{
			CountryManagerTrace: true,
			ErlangMemoryUsage:   "64 MiB",
			Servers:             []CountryStatus{{CountryCode: "GB", Status: "started"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.CountryManagerTrace)
	require.Len(t, status.Servers, 1)
	assert.Equal(t, "GB", status.Servers[0].CountryCode)
}

func TestStart_ReturnsErrorOnErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ZZ", r.URL.Query().Get("country_code"))
		_ = json.NewEncoder(w).Encode(commandResponse{
			FromServer: "ZZ", Cmd: "start", Status: "error", Reason: "country_server_not_found",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.Start(context.Background(), "ZZ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "country_server_not_found")
}

func TestStop_OKEnvelopeReturnsNoError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(commandResponse{FromServer: "GB", Cmd: "stop", Status: "ok"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	assert.NoError(t, client.Stop(context.Background(), "GB"))
}
