package visualization

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/netwave/internal/simulation"
)

func smallScenario() simulation.Scenario {
	sc := simulation.DefaultScenario()
	sc.Steps = 3
	return sc
}

func TestServer_GraphJSON(t *testing.T) {
	srv := NewServer(smallScenario(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/graph.json")
	if err != nil {
		t.Fatalf("GET /graph.json: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var g Graph
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if g.NodeCount != 100 || g.EdgeCount != 180 || g.Time != 0 {
		t.Errorf("graph = %d nodes, %d edges, t=%v", g.NodeCount, g.EdgeCount, g.Time)
	}
	if g.Nodes[50].Amplitude != 1 {
		t.Errorf("center amplitude = %v, want 1", g.Nodes[50].Amplitude)
	}
}

func TestServer_GraphDOTAfterSteps(t *testing.T) {
	srv := NewServer(smallScenario(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/graph.dot?steps=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/vnd.graphviz") {
		t.Errorf("Content-Type = %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `label="grid t=0.02"`) {
		t.Errorf("DOT not advanced two steps:\n%.200s", body)
	}
}

func TestServer_Simulate(t *testing.T) {
	srv := NewServer(smallScenario(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/simulate?steps=4")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got simulateResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Steps != 4 || len(got.Energy) != 5 || len(got.Final) != 100 {
		t.Errorf("response = steps %d, %d energies, %d final", got.Steps, len(got.Energy), len(got.Final))
	}
	if got.Energy[0] != 1 {
		t.Errorf("initial energy = %v, want 1", got.Energy[0])
	}
}

func TestServer_BadSteps(t *testing.T) {
	srv := NewServer(smallScenario(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, path := range []string{"/api/simulate?steps=-1", "/graph.json?steps=abc", "/graph.dot?steps=1000001"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestServer_CleanShutdown(t *testing.T) {
	srv := NewServer(smallScenario(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	waitForServer(t, srv, 2*time.Second)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("unexpected error on shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down within 3 seconds")
	}
}

func TestFinalState(t *testing.T) {
	sc := smallScenario()
	summary, err := simulation.NewRunner().Run(context.Background(), sc, nil)
	if err != nil {
		t.Fatal(err)
	}
	nw, err := FinalState(sc, summary)
	if err != nil {
		t.Fatalf("FinalState: %v", err)
	}
	if nw.CurrentTime() != summary.FinalTime {
		t.Errorf("time = %v, want %v", nw.CurrentTime(), summary.FinalTime)
	}
	for i, a := range nw.Amplitudes() {
		if a != summary.Final[i] {
			t.Fatalf("amplitude[%d] = %v, want %v", i, a, summary.Final[i])
		}
	}
}

// waitForServer polls the server until it's ready or the timeout is reached.
func waitForServer(t *testing.T, srv *Server, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		addr := srv.Addr()
		if addr == "" {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		resp, err := http.Get("http://" + addr + "/graph.json")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start within timeout")
}
