package ustp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"femasflow/logger"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultPingInterval   = 20 * time.Second
)

// frame is the JSON envelope exchanged with the bridge host. Requests flow
// out with a method name and correlation id; callbacks flow back with the
// same shape plus the response error block and last-record flag.
type frame struct {
	Kind      string          `json:"kind"` // hello | control | request | callback
	Session   string          `json:"session,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Method    string          `json:"method,omitempty"`
	RequestID int             `json:"request_id,omitempty"`
	Last      bool            `json:"last,omitempty"`
	Reason    int             `json:"reason,omitempty"`
	Error     *RspError       `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// BridgeOptions tune the websocket transport.
type BridgeOptions struct {
	PingInterval   time.Duration
	ReconnectDelay time.Duration
}

// Bridge connects one session to the out-of-process host of the native
// USTP library over a websocket. It implements MarketDataAPI or
// TraderAPI depending on which handler it was built with.
type Bridge struct {
	session  string
	clientID string
	opts     BridgeOptions
	log      *logger.Entry

	md MarketDataHandler
	td TraderHandler

	mu       sync.Mutex
	conn     *websocket.Conn
	created  bool
	running  bool
	flowPath string
	address  string
	controls []frame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMarketDataBridge builds the transport for a market-data session.
func NewMarketDataBridge(h MarketDataHandler, opts BridgeOptions) *Bridge {
	b := newBridge("md", opts)
	b.md = h
	return b
}

// NewTraderBridge builds the transport for a trading session.
func NewTraderBridge(h TraderHandler, opts BridgeOptions) *Bridge {
	b := newBridge("td", opts)
	b.td = h
	return b
}

func newBridge(session string, opts BridgeOptions) *Bridge {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	return &Bridge{
		session:  session,
		clientID: uuid.NewString(),
		opts:     opts,
		log:      logger.GetLogger().WithComponent("ustp_bridge").WithFields(logger.Fields{"session": session}),
	}
}

// Create initialises the channel. The native layer does not tolerate a
// second initialisation, so a repeat call is rejected.
func (b *Bridge) Create(flowPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.created {
		return fmt.Errorf("ustp %s channel already created", b.session)
	}
	b.created = true
	b.flowPath = flowPath
	return nil
}

// SubscribeMarketDataTopic records a market-data topic subscription to be
// sent on every (re)connect, before any request.
func (b *Bridge) SubscribeMarketDataTopic(topicID, resumeType int) error {
	return b.addControl("SubscribeMarketDataTopic", map[string]int{"topic_id": topicID, "resume_type": resumeType})
}

// SubscribePrivateTopic registers for the private flow.
func (b *Bridge) SubscribePrivateTopic(resumeType int) error {
	return b.addControl("SubscribePrivateTopic", map[string]int{"resume_type": resumeType})
}

// SubscribePublicTopic registers for the public flow.
func (b *Bridge) SubscribePublicTopic(resumeType int) error {
	return b.addControl("SubscribePublicTopic", map[string]int{"resume_type": resumeType})
}

// SubscribeUserTopic registers for the user flow.
func (b *Bridge) SubscribeUserTopic(resumeType int) error {
	return b.addControl("SubscribeUserTopic", map[string]int{"resume_type": resumeType})
}

func (b *Bridge) addControl(method string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("topic subscription after init is not delivered by the front")
	}
	b.controls = append(b.controls, frame{Kind: "control", Method: method, Data: raw})
	return nil
}

// RegisterFront records the front address.
func (b *Bridge) RegisterFront(address string) {
	b.mu.Lock()
	b.address = address
	b.mu.Unlock()
}

// Init starts the connect/read loop. The front-connected callback fires
// after the websocket is established and the control frames are acked.
func (b *Bridge) Init() error {
	b.mu.Lock()
	if !b.created {
		b.mu.Unlock()
		return fmt.Errorf("ustp %s channel not created", b.session)
	}
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("ustp %s bridge already running", b.session)
	}
	if b.address == "" {
		b.mu.Unlock()
		return fmt.Errorf("no front registered for ustp %s bridge", b.session)
	}
	b.running = true
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run()
	return nil
}

// Exit stops the bridge and releases the connection.
func (b *Bridge) Exit() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	cancel := b.cancel
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	cancel()
	if conn != nil {
		conn.Close()
	}
	b.wg.Wait()
	return nil
}

func (b *Bridge) run() {
	defer b.wg.Done()

	url := bridgeURL(b.address)
	dialer := websocket.DefaultDialer
	for {
		if b.ctx.Err() != nil {
			return
		}

		conn, _, err := dialer.DialContext(b.ctx, url, nil)
		if err != nil {
			b.log.WithError(err).WithFields(logger.Fields{"url": url}).Warn("failed to connect to bridge host")
			if b.waitReconnect() {
				return
			}
			continue
		}

		if err := b.handshake(conn); err != nil {
			b.log.WithError(err).Warn("bridge handshake failed")
			conn.Close()
			if b.waitReconnect() {
				return
			}
			continue
		}

		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()

		b.onFrontConnected()

		pingStop := b.startPingLoop(conn)
		err = b.readLoop(conn)
		pingStop()

		b.mu.Lock()
		b.conn = nil
		b.mu.Unlock()
		conn.Close()

		if b.ctx.Err() != nil {
			return
		}
		if err != nil {
			b.log.WithError(err).Warn("bridge read loop ended")
		}
		b.onFrontDisconnected(1)

		if b.waitReconnect() {
			return
		}
	}
}

// handshake announces the session kind and replays the queued control
// frames so the host registers topics before pumping queued messages.
func (b *Bridge) handshake(conn *websocket.Conn) error {
	hello := frame{Kind: "hello", Session: b.session, ClientID: b.clientID}
	raw, err := json.Marshal(map[string]string{"flow_path": b.flowPath})
	if err == nil {
		hello.Data = raw
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	b.mu.Lock()
	controls := make([]frame, len(b.controls))
	copy(controls, b.controls)
	b.mu.Unlock()

	for _, c := range controls {
		c.Session = b.session
		c.ClientID = b.clientID
		if err := conn.WriteJSON(c); err != nil {
			return fmt.Errorf("write control %s: %w", c.Method, err)
		}
	}
	return nil
}

func (b *Bridge) startPingLoop(conn *websocket.Conn) func() {
	ctx, cancel := context.WithCancel(b.ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()
	return cancel
}

func (b *Bridge) readLoop(conn *websocket.Conn) error {
	for {
		if b.ctx.Err() != nil {
			return nil
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var fr frame
		if err := json.Unmarshal(msg, &fr); err != nil {
			b.log.WithError(err).Warn("discarding malformed bridge frame")
			continue
		}
		if err := b.dispatch(&fr); err != nil {
			b.log.WithError(err).WithFields(logger.Fields{"method": fr.Method}).Warn("failed to dispatch callback")
		}
	}
}

func (b *Bridge) onFrontConnected() {
	if b.md != nil {
		b.md.OnFrontConnected()
	}
	if b.td != nil {
		b.td.OnFrontConnected()
	}
}

func (b *Bridge) onFrontDisconnected(reason int) {
	if b.md != nil {
		b.md.OnFrontDisconnected(reason)
	}
	if b.td != nil {
		b.td.OnFrontDisconnected(reason)
	}
}

// dispatch routes one callback frame to the registered handler.
func (b *Bridge) dispatch(fr *frame) error {
	if fr.Kind != "callback" {
		return nil
	}
	if b.md != nil {
		return b.dispatchMarketData(fr)
	}
	if b.td != nil {
		return b.dispatchTrader(fr)
	}
	return fmt.Errorf("no handler registered")
}

func (b *Bridge) dispatchMarketData(fr *frame) error {
	switch fr.Method {
	case "OnFrontDisconnected":
		b.md.OnFrontDisconnected(fr.Reason)
	case "OnRspUserLogin":
		var rsp RspUserLogin
		if err := decode(fr.Data, &rsp); err != nil {
			return err
		}
		b.md.OnRspUserLogin(&rsp, fr.Error, fr.RequestID, fr.Last)
	case "OnRspSubMarketData":
		var data struct {
			InstrumentID string `json:"instrument_id"`
		}
		if err := decode(fr.Data, &data); err != nil {
			return err
		}
		b.md.OnRspSubMarketData(data.InstrumentID, fr.Error, fr.RequestID, fr.Last)
	case "OnRspError":
		b.md.OnRspError(fr.Error, fr.RequestID, fr.Last)
	case "OnRtnDepthMarketData":
		var md DepthMarketDataField
		if err := decode(fr.Data, &md); err != nil {
			return err
		}
		b.md.OnRtnDepthMarketData(&md)
	default:
		return fmt.Errorf("unknown market-data callback %q", fr.Method)
	}
	return nil
}

func (b *Bridge) dispatchTrader(fr *frame) error {
	switch fr.Method {
	case "OnFrontDisconnected":
		b.td.OnFrontDisconnected(fr.Reason)
	case "OnRspUserCertification":
		b.td.OnRspUserCertification(fr.Error, fr.RequestID, fr.Last)
	case "OnRspSettlementInfoConfirm":
		b.td.OnRspSettlementInfoConfirm(fr.Error, fr.RequestID, fr.Last)
	case "OnRspUserLogin":
		var rsp RspUserLogin
		if err := decode(fr.Data, &rsp); err != nil {
			return err
		}
		b.td.OnRspUserLogin(&rsp, fr.Error, fr.RequestID, fr.Last)
	case "OnRspQryUserInvestor":
		var rsp RspUserInvestor
		if err := decode(fr.Data, &rsp); err != nil {
			return err
		}
		b.td.OnRspQryUserInvestor(&rsp, fr.Error, fr.RequestID, fr.Last)
	case "OnRspQryInstrument":
		var rsp InstrumentField
		if err := decode(fr.Data, &rsp); err != nil {
			return err
		}
		b.td.OnRspQryInstrument(&rsp, fr.Error, fr.RequestID, fr.Last)
	case "OnRspOrderInsert":
		var rsp InputOrder
		if err := decode(fr.Data, &rsp); err != nil {
			return err
		}
		b.td.OnRspOrderInsert(&rsp, fr.Error, fr.RequestID, fr.Last)
	case "OnRspOrderAction":
		var rsp OrderAction
		if err := decode(fr.Data, &rsp); err != nil {
			return err
		}
		b.td.OnRspOrderAction(&rsp, fr.Error, fr.RequestID, fr.Last)
	case "OnRspQryInvestorPosition":
		var rsp InvestorPositionField
		if err := decode(fr.Data, &rsp); err != nil {
			return err
		}
		b.td.OnRspQryInvestorPosition(&rsp, fr.Error, fr.RequestID, fr.Last)
	case "OnRspQryInvestorAccount":
		var rsp InvestorAccountField
		if err := decode(fr.Data, &rsp); err != nil {
			return err
		}
		b.td.OnRspQryInvestorAccount(&rsp, fr.Error, fr.RequestID, fr.Last)
	case "OnRspError":
		b.td.OnRspError(fr.Error, fr.RequestID, fr.Last)
	case "OnRtnOrder":
		var rsp OrderField
		if err := decode(fr.Data, &rsp); err != nil {
			return err
		}
		b.td.OnRtnOrder(&rsp)
	case "OnRtnTrade":
		var rsp TradeField
		if err := decode(fr.Data, &rsp); err != nil {
			return err
		}
		b.td.OnRtnTrade(&rsp)
	default:
		return fmt.Errorf("unknown trader callback %q", fr.Method)
	}
	return nil
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (b *Bridge) writeRequest(method string, data interface{}, requestID int) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	fr := frame{
		Kind:      "request",
		Session:   b.session,
		ClientID:  b.clientID,
		Method:    method,
		RequestID: requestID,
		Data:      raw,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("%s: front not connected", method)
	}
	return b.conn.WriteJSON(fr)
}

// ReqUserLogin submits a login request.
func (b *Bridge) ReqUserLogin(req *ReqUserLogin, requestID int) error {
	return b.writeRequest("ReqUserLogin", req, requestID)
}

// SubMarketData subscribes a single instrument for depth quotes.
func (b *Bridge) SubMarketData(symbol string) error {
	return b.writeRequest("SubMarketData", map[string]string{"instrument_id": symbol}, 0)
}

// ReqUserCertification submits the pre-login authentication request.
func (b *Bridge) ReqUserCertification(req *ReqUserCertification, requestID int) error {
	return b.writeRequest("ReqDSUserCertification", req, requestID)
}

// ReqQryUserInvestor queries the investor reachable by this user.
func (b *Bridge) ReqQryUserInvestor(req *QryUserInvestor, requestID int) error {
	return b.writeRequest("ReqQryUserInvestor", req, requestID)
}

// ReqQryInstrument queries the instrument table.
func (b *Bridge) ReqQryInstrument(req *QryInstrument, requestID int) error {
	return b.writeRequest("ReqQryInstrument", req, requestID)
}

// ReqOrderInsert submits a new order.
func (b *Bridge) ReqOrderInsert(req *InputOrder, requestID int) error {
	return b.writeRequest("ReqOrderInsert", req, requestID)
}

// ReqOrderAction submits an order action (cancel).
func (b *Bridge) ReqOrderAction(req *OrderAction, requestID int) error {
	return b.writeRequest("ReqOrderAction", req, requestID)
}

// ReqQryInvestorAccount queries the funds snapshot.
func (b *Bridge) ReqQryInvestorAccount(req *QryInvestorAccount, requestID int) error {
	return b.writeRequest("ReqQryInvestorAccount", req, requestID)
}

// ReqQryInvestorPosition queries the position table.
func (b *Bridge) ReqQryInvestorPosition(req *QryInvestorPosition, requestID int) error {
	return b.writeRequest("ReqQryInvestorPosition", req, requestID)
}

func (b *Bridge) waitReconnect() bool {
	timer := time.NewTimer(b.opts.ReconnectDelay)
	defer timer.Stop()
	select {
	case <-b.ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

// bridgeURL converts a front address into the websocket endpoint of the
// bridge host. tcp:// fronts map onto ws://.
func bridgeURL(address string) string {
	switch {
	case strings.HasPrefix(address, "ws://"), strings.HasPrefix(address, "wss://"):
		return address
	case strings.HasPrefix(address, "tcp://"):
		return "ws://" + strings.TrimPrefix(address, "tcp://")
	default:
		return "ws://" + address
	}
}
