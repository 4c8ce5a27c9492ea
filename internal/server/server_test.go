// Copyright 2026 The EXEX Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammad-fiaz/exex/internal/audit"
	"github.com/muhammad-fiaz/exex/internal/policy"
)

// memorySink collects audit events in memory for assertions.
type memorySink struct {
	events []audit.Event
}

func (m *memorySink) Write(event audit.Event) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memorySink) Flush() error { return nil }
func (m *memorySink) Close() error { return nil }

type testEnv struct {
	server  *Server
	sink    *memorySink
	allowed string
	denied  string
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	allowed := filepath.Join(root, "allowed")
	denied := filepath.Join(root, "denied")
	require.NoError(t, os.MkdirAll(allowed, 0o755))
	require.NoError(t, os.MkdirAll(denied, 0o755))

	store := policy.NewRuleStore(policy.Ruleset{
		DisallowedPaths:  []string{denied},
		CommandBlacklist: []string{"mkfs", "dd"},
		MaxFileSize:      1 << 20,
	}, nil)

	sink := &memorySink{}
	srv := New(policy.NewEngine(store), sink, opts...)
	return &testEnv{server: srv, sink: sink, allowed: allowed, denied: denied}
}

func (e *testEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "exex", body["service"])
}

func TestReadDeniedPath(t *testing.T) {
	env := newTestEnv(t)
	secret := filepath.Join(env.denied, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0o644))

	rec := env.post(t, "/api/read", readRequest{Path: secret})

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody[readResponse](t, rec)
	assert.False(t, body.Success)
	assert.Nil(t, body.Content)
	assert.Contains(t, body.Error, "Access denied")

	require.Len(t, env.sink.events, 1)
	assert.Equal(t, "read", env.sink.events[0].Op)
	assert.False(t, env.sink.events[0].Verdict.Allowed)
	assert.Nil(t, env.sink.events[0].Outcome, "denied requests never reach the OS")
}

func TestReadAllowedPath(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.allowed, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	rec := env.post(t, "/api/read", readRequest{Path: path})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[readResponse](t, rec)
	assert.True(t, body.Success)
	require.NotNil(t, body.Content)
	assert.Equal(t, "hello", *body.Content)

	require.Len(t, env.sink.events, 1)
	require.NotNil(t, env.sink.events[0].Outcome)
	assert.True(t, env.sink.events[0].Outcome.OK)
}

func TestReadMissingFileIsOSFailureNotDenial(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, "/api/read", readRequest{Path: filepath.Join(env.allowed, "ghost.txt")})

	// Policy allowed it, the OS failed: 200 with success=false.
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[readResponse](t, rec)
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "Failed to read")
}

func TestWriteSanitizesContent(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.allowed, "out.txt")

	rec := env.post(t, "/api/write", writeRequest{Path: path, Content: "a\x00b\r\nc\rd"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[writeResponse](t, rec).Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ab\nc\nd", string(data))
}

func TestWriteDeniedPath(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, "/api/write", writeRequest{Path: filepath.Join(env.denied, "x"), Content: "x"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoFileExists(t, filepath.Join(env.denied, "x"))
}

func TestScanDeniedSubtreeSkipped(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.allowed, "ok.txt"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.denied, "secret.txt"), []byte("2"), 0o644))

	root := filepath.Dir(env.allowed)
	rec := env.post(t, "/api/scan", scanRequest{Path: root, Recursive: true})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[scanResponse](t, rec)
	require.True(t, body.Success)

	for _, item := range body.Items {
		assert.NotEqual(t, "secret.txt", item.Name)
	}
}

func TestDeleteAndCreate(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.allowed, "newdir")

	rec := env.post(t, "/api/create", createRequest{Path: path, IsDirectory: true})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[createResponse](t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, path, body.CreatedPath)

	// Creating the same path again fails at the OS layer, not policy.
	rec = env.post(t, "/api/create", createRequest{Path: path, IsDirectory: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[createResponse](t, rec).Success)

	rec = env.post(t, "/api/delete", deleteRequest{Path: path})
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decodeBody[deleteResponse](t, rec)
	assert.True(t, deleted.Success)
	require.NotNil(t, deleted.DeletedCount)
	assert.Equal(t, 1, *deleted.DeletedCount)
}

func TestRenameChecksBothEndpoints(t *testing.T) {
	env := newTestEnv(t)
	src := filepath.Join(env.allowed, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	rec := env.post(t, "/api/rename", renameRequest{
		FromPath: src,
		ToPath:   filepath.Join(env.denied, "dst.txt"),
	})

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody[renameResponse](t, rec)
	assert.Contains(t, body.Error, "destination")
	assert.FileExists(t, src)
}

func TestRenameSuccess(t *testing.T) {
	env := newTestEnv(t)
	src := filepath.Join(env.allowed, "a.txt")
	dst := filepath.Join(env.allowed, "b.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	rec := env.post(t, "/api/rename", renameRequest{FromPath: src, ToPath: dst})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[renameResponse](t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, src, body.OldPath)
	assert.Equal(t, dst, body.NewPath)
}

func TestExecBlacklistedCommand(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, "/api/exec", execRequest{Command: "mkfs /dev/sda1"})

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Contains(t, body["error"], "not allowed by security policy")

	require.Len(t, env.sink.events, 1)
	assert.Equal(t, "exec", env.sink.events[0].Op)
	assert.False(t, env.sink.events[0].Verdict.Allowed)
}

func TestExecDestructiveHeuristic(t *testing.T) {
	env := newTestEnv(t)
	// "shutdown" is not blacklisted here but trips the heuristic.
	rec := env.post(t, "/api/exec", execRequest{Command: "shutdown -h now"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExecAllowedCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix echo")
	}

	env := newTestEnv(t)
	rec := env.post(t, "/api/exec", execRequest{Command: "echo", Args: []string{"hi"}})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[execResponse](t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, "hi\n", body.Stdout)
	require.NotNil(t, body.ExitCode)
	assert.Equal(t, 0, *body.ExitCode)
}

func TestExecNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}

	env := newTestEnv(t)
	rec := env.post(t, "/api/exec", execRequest{Command: "ls /definitely/not/here/xyz"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[execResponse](t, rec)
	assert.False(t, body.Success)
	require.NotNil(t, body.ExitCode)
	assert.NotZero(t, *body.ExitCode)
	assert.NotEmpty(t, body.Stderr)
}

func TestExecDeniedCwd(t *testing.T) {
	env := newTestEnv(t)
	rec := env.post(t, "/api/exec", execRequest{Command: "echo hi", Cwd: env.denied})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOpenDeniedApplication(t *testing.T) {
	env := newTestEnv(t)
	app := filepath.Join(env.denied, "tool")
	rec := env.post(t, "/api/open", openRequest{Application: app})

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody[openResponse](t, rec)
	assert.Contains(t, body.Error, "Access denied")
}

func TestShutdownRespondsBeforeStopping(t *testing.T) {
	stopped := make(chan struct{})
	env := newTestEnv(t,
		WithShutdownDelay(10*time.Millisecond),
		WithStopFunc(func() { close(stopped) }),
	)

	rec := env.post(t, "/api/shutdown", struct{}{})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[shutdownResponse](t, rec)
	assert.True(t, body.Success)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop function was not invoked")
	}
}

func TestBearerAuth(t *testing.T) {
	env := newTestEnv(t, WithToken("sekret-token-value"))

	// No header.
	req := httptest.NewRequest(http.MethodPost, "/api/exec", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong token.
	req = httptest.NewRequest(http.MethodPost, "/api/exec", bytes.NewReader([]byte("{}")))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct token reaches the handler (bad body is a 403/400-level
	// concern, not auth).
	data, _ := json.Marshal(execRequest{Command: "mkfs"})
	req = httptest.NewRequest(http.MethodPost, "/api/exec", bytes.NewReader(data))
	req.Header.Set("Authorization", "Bearer sekret-token-value")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvalidBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/read", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/exec", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
