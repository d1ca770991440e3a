//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/HatiCode/shiftcast/cmd/planner/router"
	"github.com/HatiCode/shiftcast/pkg/adapters"
	"github.com/HatiCode/shiftcast/pkg/coverage"
	"github.com/HatiCode/shiftcast/pkg/ilp"
	"github.com/HatiCode/shiftcast/pkg/planning"
	"github.com/HatiCode/shiftcast/pkg/shifts"
	"github.com/HatiCode/shiftcast/pkg/staffing"
	"github.com/HatiCode/shiftcast/pkg/storage"
)

// mockMetricsScript answers every query_range with a flat 50 contacts per
// step over the requested range.
const mockMetricsScript = `
import http.server, json, socketserver, urllib.parse

class Handler(http.server.BaseHTTPRequestHandler):
    def do_GET(self):
        u = urllib.parse.urlparse(self.path)
        if u.path != '/api/v1/query_range':
            self.send_response(404)
            self.end_headers()
            return
        q = urllib.parse.parse_qs(u.query)
        start, end, step = int(q['start'][0]), int(q['end'][0]), int(q['step'][0])
        values = [[t, "50"] for t in range(start, end + 1, step)]
        body = {"status": "success", "data": {"resultType": "matrix",
                "result": [{"metric": {"queue": "support"}, "values": values}]}}
        self.send_response(200)
        self.send_header('Content-type', 'application/json')
        self.end_headers()
        self.wfile.write(json.dumps(body).encode())

    def log_message(self, format, *args):
        pass

with socketserver.TCPServer(("", 8428), Handler) as httpd:
    httpd.serve_forever()
`

func startMetricsServer(t *testing.T, ctx context.Context) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "python:3.11-alpine",
			ExposedPorts: []string{"8428/tcp"},
			Cmd:          []string{"python", "-c", mockMetricsScript},
			WaitingFor:   wait.ForListeningPort("8428/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start metrics container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate metrics container: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "8428/tcp", "http")
	if err != nil {
		t.Fatalf("Failed to get metrics endpoint: %v", err)
	}
	return endpoint
}

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("Failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get redis endpoint: %v", err)
	}
	return strings.TrimPrefix(endpoint, "redis://")
}

// TestPlannerE2E runs a forecast from a VictoriaMetrics-compatible server
// through staffing and coverage into Redis and reads it back over HTTP.
func TestPlannerE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	metricsURL := startMetricsServer(t, ctx)
	redisAddr := startRedis(t, ctx)

	store, err := storage.NewRedisStore(redisAddr, "", 0, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	source, err := adapters.New("victoriametrics", map[string]string{
		"url":   metricsURL,
		"query": `sum(increase(contacts_offered_total{queue="support"}[30m]))`,
	})
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}

	now := time.Now().UTC()
	window := adapters.Window{
		Start:   time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Horizon: 24 * time.Hour,
		Step:    30 * time.Minute,
	}
	intervals, err := source.Fetch(ctx, window)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(intervals) != 48 {
		t.Fatalf("intervals = %d, want 48", len(intervals))
	}

	params := staffing.Params{
		AHT:            5 * time.Minute,
		IntervalLength: 30 * time.Minute,
		TargetSL:       0.8,
		TargetWait:     20 * time.Second,
		Shrinkage:      0.25,
	}
	templates := []shifts.Template{
		{Name: "early", Start: 6 * time.Hour, Duration: 8 * time.Hour},
		{Name: "late", Start: 14 * time.Hour, Duration: 8 * time.Hour},
		{Name: "night", Start: 22 * time.Hour, Duration: 8 * time.Hour},
	}
	pipeline := &planning.Pipeline{
		Optimizer: coverage.New(ilp.BranchAndBound{}, coverage.WithTimeout(30*time.Second)),
		Masks:     shifts.NewCache(),
	}

	snapshot, _, err := pipeline.Run(ctx, planning.Request{
		Site:      "e2e-site",
		Intervals: intervals,
		Params:    params,
		Templates: templates,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := store.Put(ctx, snapshot); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	mux := router.SetupRoutes(router.Deps{
		Store:      store,
		Pipeline:   pipeline,
		Site:       "e2e-site",
		Params:     params,
		Templates:  templates,
		StaleAfter: time.Minute,
		Check:      func() error { return store.Ping(ctx) },
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/plan/current?site=e2e-site")
	if err != nil {
		t.Fatalf("GET /plan/current: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	var got storage.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != snapshot.RunID {
		t.Errorf("runId = %q, want %q", got.RunID, snapshot.RunID)
	}
	// 50 contacts per half hour need 16 agents net; one shift covers each interval.
	if got.TotalShifts() != 48 {
		t.Errorf("total shifts = %d, want 48", got.TotalShifts())
	}
	for _, name := range []string{"early", "late", "night"} {
		if c := got.Days[0].Solution.Counts[name]; c != 16 {
			t.Errorf("%s = %d, want 16", name, c)
		}
	}

	sitesResp, err := http.Get(srv.URL + "/plan/sites")
	if err != nil {
		t.Fatalf("GET /plan/sites: %v", err)
	}
	var sites struct {
		Sites []string `json:"sites"`
	}
	err = json.NewDecoder(sitesResp.Body).Decode(&sites)
	sitesResp.Body.Close()
	if err != nil {
		t.Fatalf("decode sites: %v", err)
	}
	if len(sites.Sites) != 1 || sites.Sites[0] != "e2e-site" {
		t.Errorf("sites = %v, want [e2e-site]", sites.Sites)
	}

	health, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d, want 200", health.StatusCode)
	}
}

// TestGRPCHealth checks the health service the planner registers.
func TestGRPCHealth(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, hs)
	hs.SetServingStatus("shiftcast.Planner", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		_ = server.Serve(lis)
	}()
	defer server.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "shiftcast.Planner"})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.Status)
	}
}
