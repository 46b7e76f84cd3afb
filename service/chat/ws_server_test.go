package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PPGateway/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSTestServer(t *testing.T, conf ServerConf) (*Server, string) {
	gin.SetMode(gin.TestMode)
	s := NewServer(conf, newFakeLookup())
	s.Disp().Register(echoHandler{})
	s.Start()

	r := gin.New()
	s.Routes(r, "/message")
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		ts.Close()
		s.Monitor().Stop()
	})
	return s, "ws" + strings.TrimPrefix(ts.URL, "http") + "/message"
}

func readFrame(t *testing.T, c *websocket.Conn) sentFrame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var f sentFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestWebSocketRoundTrip(t *testing.T) {
	s, url := newWSTestServer(t, ServerConf{NodeID: "ws"})

	c, resp, err := websocket.DefaultDialer.Dial(url+"?userId=u1", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	assert.Equal(t, EventConnectionEstablished, readFrame(t, c).Event)
	assert.Equal(t, EventUserStatus, readFrame(t, c).Event)
	assert.True(t, s.Registry().IsOnline("u1"))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"event":"echo","id":1,"data":{"n":1}}`)))
	ack := readFrame(t, c)
	assert.Equal(t, "echo", ack.Event)
	require.NotNil(t, ack.Ack)
	assert.Equal(t, int64(1), *ack.Ack)
	assert.JSONEq(t, `{"n":1}`, string(ack.Data))

	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return !s.Registry().IsOnline("u1") }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketTokenIdentity(t *testing.T) {
	auth := security.DefaultOptions([]byte("s3cret"))
	s, url := newWSTestServer(t, ServerConf{Auth: auth})
	tok, err := security.Issue(auth, "u42")
	require.NoError(t, err)

	c, _, err := websocket.DefaultDialer.Dial(url+"?token="+tok, nil)
	require.NoError(t, err)
	defer c.Close()

	f := readFrame(t, c)
	var est ConnectionEstablishedPayload
	require.NoError(t, json.Unmarshal(f.Data, &est))
	assert.Equal(t, "u42", est.UserID)
	assert.False(t, est.Synthetic)
	assert.True(t, s.Registry().IsOnline("u42"))
}

func TestWebSocketAnonymous(t *testing.T) {
	_, url := newWSTestServer(t, ServerConf{})
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	var est ConnectionEstablishedPayload
	require.NoError(t, json.Unmarshal(readFrame(t, c).Data, &est))
	assert.True(t, est.Synthetic)
	assert.True(t, strings.HasPrefix(est.UserID, "anon-"))
}

func TestWebSocketRejectedDuringShutdown(t *testing.T) {
	s, url := newWSTestServer(t, ServerConf{})
	s.closing.Store(true)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
