package ustp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type stubMDHandler struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	logins       []*RspUserLogin
	ticks        []*DepthMarketDataField
	events       chan string
}

func newStubMDHandler() *stubMDHandler {
	return &stubMDHandler{events: make(chan string, 16)}
}

func (h *stubMDHandler) OnFrontConnected() {
	h.mu.Lock()
	h.connected++
	h.mu.Unlock()
	h.events <- "connected"
}

func (h *stubMDHandler) OnFrontDisconnected(reason int) {
	h.mu.Lock()
	h.disconnected++
	h.mu.Unlock()
	h.events <- "disconnected"
}

func (h *stubMDHandler) OnRspUserLogin(rsp *RspUserLogin, err *RspError, requestID int, last bool) {
	h.mu.Lock()
	h.logins = append(h.logins, rsp)
	h.mu.Unlock()
	h.events <- "login"
}

func (h *stubMDHandler) OnRspSubMarketData(symbol string, err *RspError, requestID int, last bool) {
	h.events <- "sub:" + symbol
}

func (h *stubMDHandler) OnRspError(err *RspError, requestID int, last bool) {
	h.events <- "error"
}

func (h *stubMDHandler) OnRtnDepthMarketData(md *DepthMarketDataField) {
	h.mu.Lock()
	h.ticks = append(h.ticks, md)
	h.mu.Unlock()
	h.events <- "tick"
}

func waitEvent(t *testing.T, h *stubMDHandler, want string) {
	t.Helper()
	select {
	case got := <-h.events:
		if got != want {
			t.Fatalf("event = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestBridgeCreateOnce(t *testing.T) {
	b := NewMarketDataBridge(newStubMDHandler(), BridgeOptions{})

	if err := b.Create("flow"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := b.Create("flow"); err == nil {
		t.Fatalf("second Create must fail")
	}
}

func TestBridgeInitRequiresCreateAndFront(t *testing.T) {
	b := NewMarketDataBridge(newStubMDHandler(), BridgeOptions{})

	if err := b.Init(); err == nil {
		t.Fatalf("Init before Create must fail")
	}
	if err := b.Create("flow"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := b.Init(); err == nil {
		t.Fatalf("Init without a front must fail")
	}
}

func TestBridgeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"tcp://1.2.3.4:10010", "ws://1.2.3.4:10010"},
		{"ws://bridge:9000", "ws://bridge:9000"},
		{"wss://bridge:9000", "wss://bridge:9000"},
		{"1.2.3.4:10010", "ws://1.2.3.4:10010"},
	}
	for _, c := range cases {
		if got := bridgeURL(c.in); got != c.want {
			t.Errorf("bridgeURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRspErrorOK(t *testing.T) {
	var nilErr *RspError
	if !nilErr.OK() {
		t.Errorf("nil error must be OK")
	}
	if !(&RspError{}).OK() {
		t.Errorf("code 0 must be OK")
	}
	if (&RspError{Code: 3}).OK() {
		t.Errorf("non-zero code must not be OK")
	}
}

func TestBridgeHandshakeAndCallbacks(t *testing.T) {
	handler := newStubMDHandler()

	upgrader := websocket.Upgrader{}
	received := make(chan frame, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// hello + one control frame arrive before anything else.
		for i := 0; i < 2; i++ {
			var fr frame
			if err := conn.ReadJSON(&fr); err != nil {
				t.Errorf("read frame: %v", err)
				return
			}
			received <- fr
		}

		// Deliver a login response and a depth quote.
		login, _ := json.Marshal(RspUserLogin{TradingDay: "20230908", MaxOrderLocalID: "000002000000"})
		conn.WriteJSON(frame{Kind: "callback", Method: "OnRspUserLogin", RequestID: 1, Last: true, Data: login})

		quote, _ := json.Marshal(DepthMarketDataField{InstrumentID: "IF2309", LastPrice: 3905.4})
		conn.WriteJSON(frame{Kind: "callback", Method: "OnRtnDepthMarketData", Data: quote})

		// Hold the connection open until the bridge exits.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	b := NewMarketDataBridge(handler, BridgeOptions{ReconnectDelay: 10 * time.Millisecond})
	if err := b.Create("flow"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := b.SubscribeMarketDataTopic(MarketDataTopicID, ResumeTypeQuick); err != nil {
		t.Fatalf("SubscribeMarketDataTopic failed: %v", err)
	}
	b.RegisterFront(strings.Replace(srv.URL, "http", "ws", 1))
	if err := b.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer b.Exit()

	waitEvent(t, handler, "connected")

	hello := <-received
	if hello.Kind != "hello" || hello.Session != "md" {
		t.Errorf("unexpected hello: %+v", hello)
	}
	control := <-received
	if control.Kind != "control" || control.Method != "SubscribeMarketDataTopic" {
		t.Errorf("unexpected control: %+v", control)
	}

	waitEvent(t, handler, "login")
	waitEvent(t, handler, "tick")

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.logins) != 1 || handler.logins[0].MaxOrderLocalID != "000002000000" {
		t.Errorf("unexpected logins: %+v", handler.logins)
	}
	if len(handler.ticks) != 1 || handler.ticks[0].LastPrice != 3905.4 {
		t.Errorf("unexpected ticks: %+v", handler.ticks)
	}
}

func TestBridgeRequestBeforeConnect(t *testing.T) {
	b := NewMarketDataBridge(newStubMDHandler(), BridgeOptions{})
	if err := b.Create("flow"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := b.ReqUserLogin(&ReqUserLogin{UserID: "u1"}, 1); err == nil {
		t.Fatalf("request without a connection must fail")
	}
}

func TestBridgeRequestRoundTrip(t *testing.T) {
	handler := newStubMDHandler()

	upgrader := websocket.Upgrader{}
	requests := make(chan frame, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var fr frame
			if err := conn.ReadJSON(&fr); err != nil {
				return
			}
			if fr.Kind == "request" {
				requests <- fr
			}
		}
	}))
	defer srv.Close()

	b := NewMarketDataBridge(handler, BridgeOptions{})
	if err := b.Create("flow"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	b.RegisterFront(strings.Replace(srv.URL, "http", "ws", 1))
	if err := b.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer b.Exit()

	waitEvent(t, handler, "connected")

	if err := b.ReqUserLogin(&ReqUserLogin{BrokerID: "9999", UserID: "u1"}, 42); err != nil {
		t.Fatalf("ReqUserLogin failed: %v", err)
	}

	select {
	case fr := <-requests:
		if fr.Method != "ReqUserLogin" || fr.RequestID != 42 {
			t.Errorf("unexpected request frame: %+v", fr)
		}
		var req ReqUserLogin
		if err := json.Unmarshal(fr.Data, &req); err != nil {
			t.Fatalf("bad request payload: %v", err)
		}
		if req.UserID != "u1" {
			t.Errorf("request payload = %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("request never reached the host")
	}
}
