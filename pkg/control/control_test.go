package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/camera"
	"github.com/janael-pinheiro/trap-module-golang/pkg/trap"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestServer(controller Controller, metrics http.Handler) *httptest.Server {
	log, _ := test.NewNullLogger()
	return httptest.NewServer(NewServer(controller, metrics, log.WithField("context", "control")).Handler())
}

func decodeResult(t *testing.T, response *http.Response) bool {
	t.Helper()
	defer response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)
	var r result
	require.NoError(t, json.NewDecoder(response.Body).Decode(&r))
	return r.Result
}

func TestGivenModuleInfoRequestThenInfoIsReturned(t *testing.T) {
	controller := new(ControllerMock)
	controller.On("ModuleInfo", mock.Anything).Return(trap.ModuleInfo{NodeID: 4, TrapMode: true, NodeList: []uint32{5}}, nil)
	server := newTestServer(controller, nil)
	defer server.Close()

	response, err := http.Get(server.URL + "/getModuleInfo")
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, "application/json", response.Header.Get("Content-Type"))
	var info trap.ModuleInfo
	require.NoError(t, json.NewDecoder(response.Body).Decode(&info))
	assert.Equal(t, uint32(4), info.NodeID)
	assert.True(t, info.TrapMode)
	assert.Equal(t, []uint32{5}, info.NodeList)
}

func TestGivenMeshGraphRequestThenNeighboursAreListed(t *testing.T) {
	controller := new(ControllerMock)
	controller.On("MeshGraph", mock.Anything).Return(trap.MeshGraph{NodeID: 4, NodeList: []uint32{1, 2}}, nil)
	server := newTestServer(controller, nil)
	defer server.Close()

	response, err := http.Get(server.URL + "/getMeshGraph")
	require.NoError(t, err)
	defer response.Body.Close()

	var graph trap.MeshGraph
	require.NoError(t, json.NewDecoder(response.Body).Decode(&graph))
	assert.Equal(t, []uint32{1, 2}, graph.NodeList)
}

func TestGivenConfigDocumentThenItIsForwarded(t *testing.T) {
	controller := new(ControllerMock)
	controller.On("SetConfig", mock.Anything, mock.MatchedBy(func(doc entities.ConfigDocument) bool {
		return doc.TrapMode != nil && *doc.TrapMode && doc.ActiveStart != nil && *doc.ActiveStart == 8
	})).Return(true, nil)
	server := newTestServer(controller, nil)
	defer server.Close()

	response, err := http.Post(server.URL+"/setConfig", "application/json", strings.NewReader(`{"trap_mode":true,"active_start":8}`))
	require.NoError(t, err)

	assert.True(t, decodeResult(t, response))
	controller.AssertExpectations(t)
}

func TestGivenMalformedConfigThenBadRequest(t *testing.T) {
	controller := new(ControllerMock)
	server := newTestServer(controller, nil)
	defer server.Close()

	response, err := http.Post(server.URL+"/setConfig", "application/json", strings.NewReader(`{"trap_mode":`))
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	controller.AssertNotCalled(t, "SetConfig", mock.Anything, mock.Anything)
}

func TestGivenGetOnCommandRouteThenMethodNotAllowed(t *testing.T) {
	server := newTestServer(new(ControllerMock), nil)
	defer server.Close()

	response, err := http.Get(server.URL + "/initGps")
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, response.StatusCode)
}

func TestGivenSnapshotWithoutResolutionThenDefaultIsUsed(t *testing.T) {
	controller := new(ControllerMock)
	controller.On("Capture", mock.Anything, camera.Resolution320x240).Return(true, nil).Once()
	controller.On("Capture", mock.Anything, camera.Resolution640x480).Return(false, nil).Once()
	server := newTestServer(controller, nil)
	defer server.Close()

	response, err := http.Post(server.URL+"/snapShot", "application/json", nil)
	require.NoError(t, err)
	assert.True(t, decodeResult(t, response))

	response, err = http.Post(server.URL+"/snapShot?resolution=640x480", "application/json", nil)
	require.NoError(t, err)
	assert.False(t, decodeResult(t, response))
	controller.AssertExpectations(t)
}

func TestSendMessageRequiresText(t *testing.T) {
	controller := new(ControllerMock)
	controller.On("SendDebug", mock.Anything, "hello", uint32(3)).Return(true, nil)
	server := newTestServer(controller, nil)
	defer server.Close()

	response, err := http.Post(server.URL+"/sendMessage", "application/json", strings.NewReader(`{"message":"hello","node_id":3}`))
	require.NoError(t, err)
	assert.True(t, decodeResult(t, response))

	response, err = http.Post(server.URL+"/sendMessage", "application/json", strings.NewReader(`{"node_id":3}`))
	require.NoError(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestGpsRoutes(t *testing.T) {
	controller := new(ControllerMock)
	controller.On("InitGps", mock.Anything).Return(true, nil)
	controller.On("GetGps", mock.Anything).Return(false, nil)
	server := newTestServer(controller, nil)
	defer server.Close()

	response, err := http.Post(server.URL+"/initGps", "application/json", nil)
	require.NoError(t, err)
	assert.True(t, decodeResult(t, response))

	response, err = http.Post(server.URL+"/getGps", "application/json", nil)
	require.NoError(t, err)
	assert.False(t, decodeResult(t, response))
}

func TestGivenCurrentTimeThenClockIsSet(t *testing.T) {
	controller := new(ControllerMock)
	controller.On("SetCurrentTime", mock.Anything, time.Unix(1717255800, 0).UTC()).Return(true, nil)
	server := newTestServer(controller, nil)
	defer server.Close()

	response, err := http.Post(server.URL+"/setCurrentTime", "application/json", strings.NewReader(`{"current_time":1717255800}`))
	require.NoError(t, err)
	assert.True(t, decodeResult(t, response))

	response, err = http.Post(server.URL+"/setCurrentTime", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestGivenBusyModuleThenServiceUnavailable(t *testing.T) {
	controller := new(ControllerMock)
	controller.On("InitGps", mock.Anything).Return(false, errors.Wrap(trap.ErrControlTimeout, "initGps"))
	server := newTestServer(controller, nil)
	defer server.Close()

	response, err := http.Post(server.URL+"/initGps", "application/json", nil)
	require.NoError(t, err)
	response.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, response.StatusCode)
}

func TestGivenMetricsHandlerThenItIsExposed(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("trap_cycles_completed_total 1\n"))
	})
	server := newTestServer(new(ControllerMock), metrics)
	defer server.Close()

	response, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, http.StatusOK, response.StatusCode)
}

func TestGivenConfigChannelThenEachDocumentIsAnsweredWithInfo(t *testing.T) {
	controller := new(ControllerMock)
	controller.On("ModuleInfo", mock.Anything).Return(trap.ModuleInfo{NodeID: 9}, nil)
	controller.On("SetConfig", mock.Anything, mock.Anything).Return(true, nil).Once()
	server := newTestServer(controller, nil)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/config"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var greeting configFrame
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.True(t, greeting.Result)
	require.NotNil(t, greeting.Info)
	assert.Equal(t, uint32(9), greeting.Info.NodeID)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"work_time": 120}))
	var answer configFrame
	require.NoError(t, conn.ReadJSON(&answer))
	assert.True(t, answer.Result)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{}))
	var read configFrame
	require.NoError(t, conn.ReadJSON(&read))
	assert.True(t, read.Result)
	controller.AssertNumberOfCalls(t, "SetConfig", 1)
}

func TestGivenCancelledContextThenServerStops(t *testing.T) {
	log, _ := test.NewNullLogger()
	server := NewServer(new(ControllerMock), nil, log.WithField("context", "control"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
