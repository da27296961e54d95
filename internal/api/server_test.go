package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lightzone/internal/zone"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer() (*Server, *zone.Registry) {
	logger, _ := zap.NewDevelopment()
	registry := zone.NewRegistry()
	return NewServer(registry, logger, 0), registry
}

func TestServer_ZonesEmpty(t *testing.T) {
	server, _ := newTestServer()

	rec := httptest.NewRecorder()
	server.handleZones(rec, httptest.NewRequest(http.MethodGet, "/api/zones", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ZonesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Zones)
}

func TestServer_ZonesSortedByName(t *testing.T) {
	server, registry := newTestServer()

	now := time.Date(2026, 1, 5, 20, 0, 0, 0, time.UTC)
	registry.PublishStatus(zone.StatusSnapshot{Zone: "porch", Mode: "auto", UpdatedAt: now})
	registry.PublishStatus(zone.StatusSnapshot{Zone: "den", Mode: "manual_on", UpdatedAt: now})
	registry.PublishStatus(zone.StatusSnapshot{Zone: "kitchen", Mode: "auto", UpdatedAt: now})

	rec := httptest.NewRecorder()
	server.handleZones(rec, httptest.NewRequest(http.MethodGet, "/api/zones", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ZonesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Zones, 3)
	assert.Equal(t, "den", resp.Zones[0].Zone)
	assert.Equal(t, "kitchen", resp.Zones[1].Zone)
	assert.Equal(t, "porch", resp.Zones[2].Zone)
	assert.Equal(t, "manual_on", resp.Zones[0].Mode)
}

func TestServer_ZonesRejectsNonGet(t *testing.T) {
	server, _ := newTestServer()

	rec := httptest.NewRecorder()
	server.handleZones(rec, httptest.NewRequest(http.MethodPost, "/api/zones", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Health(t *testing.T) {
	server, _ := newTestServer()

	rec := httptest.NewRecorder()
	server.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_UpdatesOverwritePriorSnapshot(t *testing.T) {
	server, registry := newTestServer()

	registry.PublishStatus(zone.StatusSnapshot{Zone: "kitchen", Mode: "auto"})
	registry.PublishStatus(zone.StatusSnapshot{Zone: "kitchen", Mode: "manual_off"})

	rec := httptest.NewRecorder()
	server.handleZones(rec, httptest.NewRequest(http.MethodGet, "/api/zones", nil))

	var resp ZonesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Zones, 1)
	assert.Equal(t, "manual_off", resp.Zones[0].Mode)
}
