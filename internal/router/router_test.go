package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyashkale/fleetctl/internal/events"
	"github.com/imyashkale/fleetctl/internal/handlers"
	"github.com/imyashkale/fleetctl/internal/middleware"
	"github.com/imyashkale/fleetctl/internal/models"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// stubFleet answers the listing only; other calls are not expected here
type stubFleet struct {
	handlers.Fleet
}

func (stubFleet) ListServers() []models.ServerSummary {
	return []models.ServerSummary{{ID: "s1", Status: models.StatusStopped}}
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	fleet := stubFleet{}
	bus := events.NewBus(1)
	return Setup(Handlers{
		Health:  handlers.NewHealthHandler(),
		Servers: handlers.NewServerHandler(fleet),
		Console: handlers.NewConsoleHandler(fleet, nil),
		Events:  handlers.NewEventsHandler(bus, nil),
		Audit:   handlers.NewAuditHandler(fleet, nil),
	}, Options{JWTSecret: testSecret})
}

// TestRoutesRequireAuthentication tests which routes need which role
func TestRoutesRequireAuthentication(t *testing.T) {
	r := newTestRouter()

	member, err := middleware.IssueToken(testSecret, "alice", middleware.RoleMember, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health is public", http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{"listing needs a token", http.MethodGet, "/api/v1/servers", "", http.StatusUnauthorized},
		{"member may list", http.MethodGet, "/api/v1/servers", member, http.StatusOK},
		{"member may not start", http.MethodPost, "/api/v1/servers/s1/start", member, http.StatusForbidden},
		{"member may not add", http.MethodPost, "/api/v1/servers", member, http.StatusForbidden},
		{"member may not send commands", http.MethodPost, "/api/v1/servers/s1/command", member, http.StatusForbidden},
		{"member may not delete", http.MethodDelete, "/api/v1/servers/s1", member, http.StatusForbidden},
		{"events need a token", http.MethodGet, "/api/v1/events/ws", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
