package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newRESTCloud(t *testing.T) *Cloud {
	t.Helper()
	c, _ := newTestCloud(t)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.StartServingREST(""); err != nil {
		t.Fatal(err)
	}
	c.Store().Put("small.csv", &describedValue{key: "small.csv", kind: "frame"})
	c.Store().Put("GBM_80_16", &describedValue{key: "GBM_80_16", kind: "model"})
	c.Store().Put("job_1", &describedValue{key: "job_1", kind: "job"})
	return c
}

func TestRESTCloudStatus(t *testing.T) {
	c := newRESTCloud(t)
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/3/Cloud")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var status CloudStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.CloudName != "test-cloud" || status.CloudSize != 1 || !status.CloudHealthy {
		t.Errorf("unexpected status %+v", status)
	}
	if status.State != "ready" || status.StoreSize != 3 {
		t.Errorf("unexpected state/store size %+v", status)
	}
}

func TestRESTLists(t *testing.T) {
	c := newRESTCloud(t)
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	tests := []struct {
		path string
		want Key
	}{
		{path: "/3/Frames", want: "small.csv"},
		{path: "/3/Models", want: "GBM_80_16"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			var body listResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if len(body.Items) != 1 || body.Items[0].Key != tt.want {
				t.Errorf("%s items = %+v", tt.path, body.Items)
			}
		})
	}
}

func TestRESTJob(t *testing.T) {
	c := newRESTCloud(t)
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	tests := []struct {
		path string
		code int
	}{
		{path: "/3/Jobs/job_1", code: http.StatusOK},
		{path: "/3/Jobs/small.csv", code: http.StatusBadRequest},
		{path: "/3/Jobs/missing", code: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.code {
				t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.code)
			}
		})
	}
}

func TestRESTRemove(t *testing.T) {
	c := newRESTCloud(t)
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	del := func() int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/3/DKV/GBM_80_16", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := del(); code != http.StatusNoContent {
		t.Errorf("first DELETE = %d, want 204", code)
	}
	if code := del(); code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", code)
	}
	if _, ok := c.Store().Lookup("GBM_80_16"); ok {
		t.Error("model should be gone from the store")
	}
}

func TestRESTMethodNotAllowed(t *testing.T) {
	c := newRESTCloud(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/3/Cloud", nil)
	c.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /3/Cloud = %d, want 405", rec.Code)
	}
}
