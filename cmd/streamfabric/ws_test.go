package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantedge/access-layer/infrastructure/logging"
	"github.com/quantedge/access-layer/infrastructure/metrics"
	"github.com/quantedge/access-layer/infrastructure/middleware"
	"github.com/quantedge/access-layer/infrastructure/testutil"
	"github.com/quantedge/access-layer/internal/entitlement"
	"github.com/quantedge/access-layer/internal/streaming"
	"github.com/quantedge/access-layer/internal/tokenverify"
)

func newTestStreamServer(t *testing.T) *server {
	t.Helper()
	cfg := (&Config{JWTHMACSecret: "test-secret", Topics: "prices.wti"}).withDefaults()
	logger := logging.New("streamfabric-test", "error", "text")

	store := entitlement.NewMemStore()
	engine := entitlement.New(store, logger)
	_, err := engine.CreateRule(context.Background(), entitlement.CreateRuleInput{
		TenantID: "tenant-a",
		Name:     "allow-wti",
		Resource: "prices.wti",
		Effect:   entitlement.Allow,
		Priority: 10,
		Enabled:  true,
	})
	require.NoError(t, err)

	bus := streaming.NewInProcBus(16)
	registry := streaming.NewRegistry(bus, cfg.topics(), cfg.MaxWSConnections, cfg.heartbeatTimeout(), logger)
	consumer := streaming.NewConsumer(bus, registry, logger)

	verifier := tokenverify.New(tokenverify.Config{HMACSecret: []byte(cfg.JWTHMACSecret)})

	srv := &server{
		cfg:         &cfg,
		logger:      logger,
		metrics:     metrics.NewWithRegistry("streamfabric-test", prometheus.NewRegistry()),
		verifier:    verifier,
		entitlement: engine,
		bus:         bus,
		registry:    registry,
		consumer:    consumer,
		health:      middleware.NewHealthChecker("test"),
	}
	return srv
}

func TestWebSocketSubscribeAndReceiveMessage(t *testing.T) {
	srv := newTestStreamServer(t)
	router := srv.routes()

	httpSrv := testutil.NewHTTPTestServer(t, router)
	defer httpSrv.Close()

	pair, err := srv.verifier.Mint("alice", "tenant-a", []string{"analyst"})
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws/stream?token=" + pair.AccessToken
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.consumer.Run(ctx)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var established map[string]interface{}
	require.NoError(t, conn.ReadJSON(&established))
	assert.Equal(t, "connection_established", established["type"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action": "subscribe",
		"data":   map[string]interface{}{"topics": []string{"prices.wti"}},
	}))

	var subResp map[string]interface{}
	require.NoError(t, conn.ReadJSON(&subResp))
	assert.Equal(t, "subscribe_response", subResp["action"])

	srv.bus.Publish("prices.wti", map[string]interface{}{"symbol": "WTI", "price": 81.2})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "prices.wti", frame["topic"])
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	srv := newTestStreamServer(t)
	router := srv.routes()
	httpSrv := testutil.NewHTTPTestServer(t, router)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
