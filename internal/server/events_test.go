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
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammad-fiaz/exex/internal/audit"
)

func TestEventStreamReceivesAuditEvents(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Trigger a denied request; its audit event should arrive live.
	rec := env.post(t, "/api/read", readRequest{Path: filepath.Join(env.denied, "x")})
	require.Equal(t, 403, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event audit.Event
	require.NoError(t, conn.ReadJSON(&event))

	assert.Equal(t, "read", event.Op)
	assert.False(t, event.Verdict.Allowed)
	assert.NotEmpty(t, event.ID)
}

func TestEventHubDropsSlowSubscribers(t *testing.T) {
	hub := newEventHub()
	ch := hub.subscribe()

	for i := 0; i < eventBufferSize+10; i++ {
		hub.broadcast(audit.Event{Op: "exec"})
	}

	// The channel was closed once its buffer filled.
	drained := 0
	for range ch {
		drained++
	}
	assert.Equal(t, eventBufferSize, drained)

	hub.mu.Lock()
	assert.Empty(t, hub.clients)
	hub.mu.Unlock()
}

func TestEventHubCloseAll(t *testing.T) {
	hub := newEventHub()
	ch := hub.subscribe()
	hub.closeAll()

	_, open := <-ch
	assert.False(t, open)

	// Subscriptions after shutdown come back closed.
	ch2 := hub.subscribe()
	_, open = <-ch2
	assert.False(t, open)

	// Idempotent, and unsubscribe of a gone channel is a no-op.
	hub.closeAll()
	hub.unsubscribe(ch)
}
