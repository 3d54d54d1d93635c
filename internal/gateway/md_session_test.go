package gateway

import (
	"testing"
	"time"

	"femasflow/internal/models"
	"femasflow/internal/registry"
	"femasflow/internal/ustp"
)

func newMDFixture() (*MarketDataSession, *fakeMDAPI, *recordSink, *registry.ContractRegistry) {
	api := &fakeMDAPI{}
	sink := &recordSink{}
	reg := registry.NewContractRegistry()
	s := NewMarketDataSession(api, sink, reg, "flow/md")
	return s, api, sink, reg
}

func TestMDConnectOnce(t *testing.T) {
	s, api, _, _ := newMDFixture()

	if err := s.Connect("tcp://1.2.3.4:10010", "u1", "pw", "9999"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if api.created != 1 || api.inited != 1 {
		t.Errorf("created=%d inited=%d, want 1/1", api.created, api.inited)
	}
	if api.front != "tcp://1.2.3.4:10010" {
		t.Errorf("front = %q", api.front)
	}
	if len(api.topics) != 1 || api.topics[0] != ustp.MarketDataTopicID {
		t.Errorf("topics = %v", api.topics)
	}

	// Second connect on a live, logged-in session does nothing.
	s.OnFrontConnected()
	s.OnRspUserLogin(&ustp.RspUserLogin{}, nil, 1, true)
	if err := s.Connect("tcp://1.2.3.4:10010", "u1", "pw", "9999"); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if api.created != 1 || api.inited != 1 {
		t.Errorf("repeat connect must not recreate the channel")
	}
}

func TestMDConnectRetriesLogin(t *testing.T) {
	s, api, _, _ := newMDFixture()

	if err := s.Connect("tcp://a:1", "u1", "pw", "9999"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if len(api.logins) != 0 {
		t.Fatalf("login must wait for front connection")
	}

	// Connected but never logged in: a later Connect re-issues login.
	s.OnFrontConnected()
	if len(api.logins) != 1 {
		t.Fatalf("front connection should trigger login")
	}
	if err := s.Connect("tcp://a:1", "u1", "pw", "9999"); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if len(api.logins) != 2 {
		t.Errorf("logins = %d, want 2", len(api.logins))
	}
	if api.logins[0].BrokerID != "9999" || api.logins[0].UserID != "u1" {
		t.Errorf("unexpected login request: %+v", api.logins[0])
	}
}

func TestMDSubscribeBeforeLoginReplays(t *testing.T) {
	s, api, _, _ := newMDFixture()

	s.Subscribe(models.SubscribeRequest{Symbol: "IF2309"})
	s.Subscribe(models.SubscribeRequest{Symbol: "cu2310"})
	if len(api.subscriptions()) != 0 {
		t.Fatalf("subscriptions must not go out before login")
	}

	s.OnRspUserLogin(&ustp.RspUserLogin{}, nil, 1, true)

	subs := api.subscriptions()
	if len(subs) != 2 {
		t.Fatalf("replayed %d subscriptions, want 2", len(subs))
	}
	seen := map[string]bool{}
	for _, sym := range subs {
		seen[sym] = true
	}
	if !seen["IF2309"] || !seen["cu2310"] {
		t.Errorf("replayed subs = %v", subs)
	}

	// After login, new subscriptions go out immediately.
	s.Subscribe(models.SubscribeRequest{Symbol: "rb2311"})
	if len(api.subscriptions()) != 3 {
		t.Errorf("live subscription did not go out")
	}
}

func TestMDLoginFailure(t *testing.T) {
	s, _, sink, _ := newMDFixture()

	s.Subscribe(models.SubscribeRequest{Symbol: "IF2309"})
	s.OnRspUserLogin(nil, &ustp.RspError{Code: 3, Message: "bad password"}, 1, true)

	if len(sink.errors) != 1 {
		t.Fatalf("errors = %v", sink.errors)
	}
}

func TestMDTickTranslation(t *testing.T) {
	s, _, sink, reg := newMDFixture()
	reg.Put(models.ContractData{Symbol: "IF2309", Exchange: models.ExchangeCFFEX, Name: "IF2309"})

	s.OnRtnDepthMarketData(&ustp.DepthMarketDataField{
		InstrumentID:    "IF2309",
		TradingDay:      "20230908",
		UpdateTime:      "10:30:15",
		UpdateMillisec:  500,
		LastPrice:       3905.4,
		OpenPrice:       3890,
		HighestPrice:    3910,
		LowestPrice:     3880,
		PreClosePrice:   3895,
		UpperLimitPrice: 4284.4,
		LowerLimitPrice: 3505.6,
		Volume:          12034,
		BidPrice1:       3905.2,
		AskPrice1:       3905.6,
		BidVolume1:      12,
		AskVolume1:      8,
	})

	if len(sink.ticks) != 1 {
		t.Fatalf("ticks = %d, want 1", len(sink.ticks))
	}
	tick := sink.ticks[0]
	if tick.Exchange != models.ExchangeCFFEX {
		t.Errorf("exchange = %q", tick.Exchange)
	}
	if tick.LastPrice != 3905.4 || tick.BidVolume1 != 12 {
		t.Errorf("unexpected tick: %+v", tick)
	}

	want := time.Date(2023, 9, 8, 10, 30, 15, int(500*time.Millisecond), chinaTZ)
	if !tick.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", tick.Timestamp, want)
	}
}

func TestMDTickSubsecondTruncatesToTenths(t *testing.T) {
	s, _, sink, reg := newMDFixture()
	reg.Put(models.ContractData{Symbol: "IF2309", Exchange: models.ExchangeCFFEX})

	s.OnRtnDepthMarketData(&ustp.DepthMarketDataField{
		InstrumentID:   "IF2309",
		TradingDay:     "20230908",
		UpdateTime:     "10:30:15",
		UpdateMillisec: 789,
	})

	want := time.Date(2023, 9, 8, 10, 30, 15, int(700*time.Millisecond), chinaTZ)
	if got := sink.ticks[0].Timestamp; !got.Equal(want) {
		t.Errorf("timestamp = %v, want %v", got, want)
	}
}

func TestMDTickUnknownSymbolDropped(t *testing.T) {
	s, _, sink, _ := newMDFixture()

	s.OnRtnDepthMarketData(&ustp.DepthMarketDataField{
		InstrumentID: "unknown",
		TradingDay:   "20230908",
		UpdateTime:   "10:30:15",
	})

	if len(sink.ticks) != 0 {
		t.Errorf("tick for unknown symbol must be dropped")
	}
}

func TestMDDisconnectClearsLogin(t *testing.T) {
	s, api, _, _ := newMDFixture()

	if err := s.Connect("tcp://a:1", "u1", "pw", "9999"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	s.OnFrontConnected()
	s.OnRspUserLogin(&ustp.RspUserLogin{}, nil, 1, true)
	s.OnFrontDisconnected(77)

	// Session is connected but no longer logged in; Connect retries login.
	if err := s.Connect("tcp://a:1", "u1", "pw", "9999"); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if len(api.logins) != 2 {
		t.Errorf("logins = %d, want 2", len(api.logins))
	}
}
