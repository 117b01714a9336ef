package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/btmorr/raftkv/internal/consensus"
	"github.com/btmorr/raftkv/internal/store"
)

func singleNodeLeader(t *testing.T) *consensus.Node {
	t.Helper()
	node, err := consensus.NewNode(consensus.Config{
		ID:                 "solo",
		Peers:              map[string]consensus.Peer{},
		Storage:            consensus.NewStorage("", true),
		Cache:              store.New(100),
		ElectionTimeoutMin: 20 * time.Millisecond,
		ElectionTimeoutMax: 30 * time.Millisecond,
		HeartbeatInterval:  10 * time.Millisecond,
		RPCTimeout:         10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go node.Run(ctx)
	go node.RunApplyLoop(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if node.Role() == consensus.Leader {
			return node
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("node never became leader")
	return nil
}

func TestWriteReadDeleteRoundTrip(t *testing.T) {
	node := singleNodeLeader(t)
	router := Router(node)
	srv := httptest.NewServer(router)
	defer srv.Close()

	putBody := strings.NewReader(`{"value":"v1"}`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/kv/k1", putBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	getResp, err := http.Get(srv.URL + "/v1/kv/k1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer getResp.Body.Close()
	var body map[string]interface{}
	json.NewDecoder(getResp.Body).Decode(&body)
	if body["value"] != "v1" {
		t.Fatalf("expected value v1, got %+v", body)
	}

	delReq, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/kv/k1", nil)
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	delResp.Body.Close()

	getResp2, _ := http.Get(srv.URL + "/v1/kv/k1")
	defer getResp2.Body.Close()
	if getResp2.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", getResp2.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	node := singleNodeLeader(t)
	router := Router(node)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	if body["role"] != "Leader" {
		t.Fatalf("expected role Leader, got %+v", body)
	}
}
