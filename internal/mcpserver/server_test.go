package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dev/lattice/internal/artifact"
	"github.com/lattice-dev/lattice/internal/clock"
	"github.com/lattice-dev/lattice/internal/config"
	"github.com/lattice-dev/lattice/internal/eventlog"
	"github.com/lattice-dev/lattice/internal/idgen"
	"github.com/lattice-dev/lattice/internal/integrity"
	"github.com/lattice-dev/lattice/internal/lock"
	"github.com/lattice-dev/lattice/internal/selector"
	"github.com/lattice-dev/lattice/internal/store"
	"github.com/lattice-dev/lattice/internal/task"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := filepath.Join(t.TempDir(), ".lattice")
	st, err := store.Init(root)
	require.NoError(t, err)
	cfgSvc, err := config.Load(st, zerolog.Nop())
	require.NoError(t, err)
	ids := idgen.New()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	locks := lock.New(st.LocksDir(), time.Second, nil)
	log := eventlog.New(st, ids, clk, nil)
	artifacts := artifact.New(st, ids, clk, 0)
	svc := task.New(st, locks, cfgSvc, ids, clk, log, artifacts, nil, nil, zerolog.Nop())
	sel := selector.New(st, svc, nil)
	checker := integrity.New(st, log, cfgSvc, artifacts)

	registry := NewRegistry()
	RegisterTaskTools(registry, svc, sel, checker)
	return NewServer(registry, ServerInfo{Name: "lattice-test", Version: "test"}, zerolog.Nop())
}

func TestHandleMessageNotificationGetsNoResponse(t *testing.T) {
	s := newTestServer(t)
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.Nil(t, resp)
}

func TestHandleMessageInitializeHandshake(t *testing.T) {
	s := newTestServer(t)
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(*InitializeResult)
	require.True(t, ok)
	assert.Equal(t, "lattice-test", result.ServerInfo.Name)
}

func TestHandleMessageUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"bogus"}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestHandleMessageMalformedJSONReturnsParseError(t *testing.T) {
	s := newTestServer(t)
	resp := s.HandleMessage(context.Background(), []byte(`not json`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParse, resp.Error.Code)
}

func TestToolsListIncludesRegisteredTools(t *testing.T) {
	s := newTestServer(t)
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(*ToolsListResult)
	require.True(t, ok)
	var names []string
	for _, def := range result.Tools {
		names = append(names, def.Name)
	}
	assert.Contains(t, names, "task_create")
	assert.Contains(t, names, "next")
	assert.Contains(t, names, "doctor")
}

func TestToolsCallCreateRoundTripsThroughService(t *testing.T) {
	s := newTestServer(t)
	params, _ := json.Marshal(ToolsCallParams{
		Name:      "task_create",
		Arguments: json.RawMessage(`{"title":"write docs","actor":"alice"}`),
	})
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":`+string(params)+`}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(*ToolsCallResult)
	require.True(t, ok)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)

	var envelope struct {
		OK   bool `json:"ok"`
		Data struct {
			Title string `json:"title"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &envelope))
	assert.True(t, envelope.OK)
	assert.Equal(t, "write docs", envelope.Data.Title)
}

func TestToolsCallUnknownToolReturnsMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	params, _ := json.Marshal(ToolsCallParams{Name: "nonexistent_tool"})
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":`+string(params)+`}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestToolsCallServiceErrorRendersAsToolLevelFailure(t *testing.T) {
	s := newTestServer(t)
	params, _ := json.Marshal(ToolsCallParams{
		Name:      "task_create",
		Arguments: json.RawMessage(`{"actor":"alice"}`),
	})
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":`+string(params)+`}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error, "a verb-level failure is a JSON-RPC success carrying an isError tool result, not an RPC error")

	result, ok := resp.Result.(*ToolsCallResult)
	require.True(t, ok)
	assert.True(t, result.IsError)
}
