package gateway

import (
	"sync"

	"femasflow/internal/models"
	"femasflow/internal/ustp"
)

// recordSink captures every event for assertions.
type recordSink struct {
	mu        sync.Mutex
	ticks     []models.TickData
	orders    []models.OrderData
	trades    []models.TradeData
	positions []models.PositionData
	accounts  []models.AccountData
	contracts []models.ContractData
	logs      []string
	errors    []string
}

func (s *recordSink) OnTick(t models.TickData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, t)
}

func (s *recordSink) OnOrder(o models.OrderData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, o)
}

func (s *recordSink) OnTrade(t models.TradeData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
}

func (s *recordSink) OnPosition(p models.PositionData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, p)
}

func (s *recordSink) OnAccount(a models.AccountData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, a)
}

func (s *recordSink) OnContract(c models.ContractData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts = append(s.contracts, c)
}

func (s *recordSink) OnLog(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, msg)
}

func (s *recordSink) OnError(msg string, err *ustp.RspError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
}

// fakeMDAPI records market-data requests.
type fakeMDAPI struct {
	mu           sync.Mutex
	created      int
	inited       int
	exited       int
	front        string
	topics       []int
	logins       []*ustp.ReqUserLogin
	subscribed   []string
	subErr       error
	loginErr     error
}

func (f *fakeMDAPI) Create(flowPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return nil
}

func (f *fakeMDAPI) SubscribeMarketDataTopic(topicID, resumeType int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topicID)
	return nil
}

func (f *fakeMDAPI) RegisterFront(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.front = address
}

func (f *fakeMDAPI) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inited++
	return nil
}

func (f *fakeMDAPI) Exit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exited++
	return nil
}

func (f *fakeMDAPI) ReqUserLogin(req *ustp.ReqUserLogin, requestID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, req)
	return f.loginErr
}

func (f *fakeMDAPI) SubMarketData(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, symbol)
	return f.subErr
}

func (f *fakeMDAPI) subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.subscribed))
	copy(out, f.subscribed)
	return out
}

// fakeTDAPI records trading requests.
type fakeTDAPI struct {
	mu             sync.Mutex
	created        int
	inited         int
	exited         int
	front          string
	privateTopics  int
	publicTopics   int
	userTopics     int
	certifications []*ustp.ReqUserCertification
	logins         []*ustp.ReqUserLogin
	investorQrys   []*ustp.QryUserInvestor
	instrumentQrys []*ustp.QryInstrument
	orders         []*ustp.InputOrder
	actions        []*ustp.OrderAction
	accountQrys    []*ustp.QryInvestorAccount
	positionQrys   []*ustp.QryInvestorPosition
}

func (f *fakeTDAPI) Create(flowPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return nil
}

func (f *fakeTDAPI) SubscribePrivateTopic(resumeType int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.privateTopics++
	return nil
}

func (f *fakeTDAPI) SubscribePublicTopic(resumeType int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publicTopics++
	return nil
}

func (f *fakeTDAPI) SubscribeUserTopic(resumeType int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userTopics++
	return nil
}

func (f *fakeTDAPI) RegisterFront(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.front = address
}

func (f *fakeTDAPI) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inited++
	return nil
}

func (f *fakeTDAPI) Exit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exited++
	return nil
}

func (f *fakeTDAPI) ReqUserCertification(req *ustp.ReqUserCertification, requestID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.certifications = append(f.certifications, req)
	return nil
}

func (f *fakeTDAPI) ReqUserLogin(req *ustp.ReqUserLogin, requestID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, req)
	return nil
}

func (f *fakeTDAPI) ReqQryUserInvestor(req *ustp.QryUserInvestor, requestID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.investorQrys = append(f.investorQrys, req)
	return nil
}

func (f *fakeTDAPI) ReqQryInstrument(req *ustp.QryInstrument, requestID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instrumentQrys = append(f.instrumentQrys, req)
	return nil
}

func (f *fakeTDAPI) ReqOrderInsert(req *ustp.InputOrder, requestID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	return nil
}

func (f *fakeTDAPI) ReqOrderAction(req *ustp.OrderAction, requestID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, req)
	return nil
}

func (f *fakeTDAPI) ReqQryInvestorAccount(req *ustp.QryInvestorAccount, requestID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountQrys = append(f.accountQrys, req)
	return nil
}

func (f *fakeTDAPI) ReqQryInvestorPosition(req *ustp.QryInvestorPosition, requestID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positionQrys = append(f.positionQrys, req)
	return nil
}
