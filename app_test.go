package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PPGateway/global/config"
	"PPGateway/service/chat"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.NodeID = "gw7"
	cfg.Auth.JWTSecret = "s3cret"
	cfg.Liveness.Threshold = 2 * time.Minute

	sc := serverConf(cfg)
	assert.Equal(t, "gw7", sc.NodeID)
	assert.Equal(t, 2*time.Minute, sc.Monitor.Threshold)
	assert.Equal(t, 60*time.Second, sc.Monitor.Interval)
	assert.Equal(t, 256, sc.WS.SendQueue)
	assert.True(t, sc.Auth.Enabled())
	assert.Equal(t, "HS256", sc.Auth.Alg)

	cfg.Auth.JWTSecret = ""
	assert.False(t, serverConf(cfg).Auth.Enabled())
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	a := &app{cfg: cfg, server: chat.NewServer(serverConf(cfg), nil)}

	r := gin.New()
	r.GET("/healthz", a.healthz)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "gateway_01", body["node"])
	assert.EqualValues(t, 0, body["connections"])
}

func TestCloseRunsInReverse(t *testing.T) {
	var order []int
	a := &app{}
	a.onClose(func() { order = append(order, 1) })
	a.onClose(func() { order = append(order, 2) })
	a.close()
	a.close()
	assert.Equal(t, []int{2, 1}, order)
}
