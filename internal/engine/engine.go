// Package engine 实现交易主循环：每 tick 依次对各品种同步影子仓位、
// 分类风险档位、计算报价并撤换挂单；trim 请求会整体接管循环直至
// 敞口回落到目标区间。品种间严格串行，保证总仓预算在一个 tick 内一致。
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rit-market-maker/gateway"
	"rit-market-maker/internal/ledger"
	"rit-market-maker/internal/quote"
	"rit-market-maker/internal/risk"
	"rit-market-maker/internal/store"
	"rit-market-maker/metrics"
)

// Exchange 交易所协作方；由 gateway.Client 实现，测试中用假实现替换。
type Exchange interface {
	Case(ctx context.Context) (gateway.Case, error)
	Securities(ctx context.Context) ([]gateway.Security, error)
	Book(ctx context.Context, ticker string) (gateway.Book, error)
	OpenOrders(ctx context.Context) ([]gateway.OpenOrder, error)
	PlaceLimit(ctx context.Context, ticker, action string, quantity int, price float64) error
	CancelAll(ctx context.Context, ticker string) error
}

// State 引擎状态
type State int

const (
	// StateIdle 尚未启动
	StateIdle State = iota
	// StateRunning 正常做市
	StateRunning
	// StateTrimming 强制减仓接管中
	StateTrimming
	// StateStopped 已停止
	StateStopped
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateTrimming:
		return "TRIMMING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config 引擎配置
type Config struct {
	Instruments     []string
	TickInterval    time.Duration // 每轮之间的间隔
	InstrumentDelay time.Duration // 品种之间的间隔（尊重限流）
	TrimPoll        time.Duration // trim 轮询间隔
	ChunkDelay      time.Duration // trim 拆单块之间的间隔
	IdleRetry       time.Duration // 场次未激活/快照失败时的重试间隔
	CrushOffset     float64       // 强平穿价偏移
	TrimOffset      float64       // trim 穿价偏移
	DryRun          bool          // 仅日志输出，不真正下单
}

// Components 引擎依赖组件
type Components struct {
	Exchange Exchange
	Gate     risk.Gate
	Model    *quote.Model
	Ledger   *ledger.Ledger
	Store    *store.Store
	Logger   *zap.Logger
}

// Engine 报价与风控引擎。
type Engine struct {
	cfg    Config
	exch   Exchange
	gate   risk.Gate
	model  *quote.Model
	ledger *ledger.Ledger
	store  *store.Store
	logger *zap.Logger

	mu         sync.RWMutex
	state      State
	lastQuotes map[string]quote.Quote

	// 每 tick 重建的展示数据
	positions map[string]int
	openVols  map[string]int
	pnl       float64
	tick      int

	trimRequested atomic.Bool
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// requoteTolerance 新旧报价两侧均在该容差内时不撤换挂单。
const requoteTolerance = 0.01

// New 创建引擎
func New(cfg Config, c Components) (*Engine, error) {
	if len(cfg.Instruments) == 0 {
		return nil, fmt.Errorf("invalid config: instruments required")
	}
	if c.Exchange == nil || c.Model == nil || c.Ledger == nil || c.Store == nil || c.Logger == nil {
		return nil, fmt.Errorf("invalid components: exchange/model/ledger/store/logger required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 130 * time.Millisecond
	}
	if cfg.InstrumentDelay < 0 {
		cfg.InstrumentDelay = 0
	}
	if cfg.TrimPoll <= 0 {
		cfg.TrimPoll = 500 * time.Millisecond
	}
	if cfg.IdleRetry <= 0 {
		cfg.IdleRetry = time.Second
	}
	return &Engine{
		cfg:        cfg,
		exch:       c.Exchange,
		gate:       c.Gate,
		model:      c.Model,
		ledger:     c.Ledger,
		store:      c.Store,
		logger:     c.Logger,
		state:      StateIdle,
		lastQuotes: make(map[string]quote.Quote),
		positions:  make(map[string]int),
		openVols:   make(map[string]int),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// Start 启动交易循环；幂等，已在运行时返回错误。
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateRunning || e.state == StateTrimming {
		e.mu.Unlock()
		return fmt.Errorf("engine already started (state: %s)", e.state)
	}
	if e.state == StateStopped {
		e.stopChan = make(chan struct{})
		e.doneChan = make(chan struct{})
	}
	e.setStateLocked(StateRunning)
	e.mu.Unlock()

	e.trimRequested.Store(false)
	e.logger.Info("engine starting",
		zap.Strings("instruments", e.cfg.Instruments),
		zap.Duration("tick_interval", e.cfg.TickInterval),
		zap.Bool("dry_run", e.cfg.DryRun))
	e.store.Append("info", "=== SYSTEM STARTED ===")

	go e.run(ctx)
	return nil
}

// Stop 发送停止信号并等待当前 tick 结束。
func (e *Engine) Stop() error {
	e.mu.RLock()
	st := e.state
	e.mu.RUnlock()
	if st != StateRunning && st != StateTrimming {
		return fmt.Errorf("engine not running (state: %s)", st)
	}

	select {
	case <-e.stopChan:
	default:
		close(e.stopChan)
	}
	select {
	case <-e.doneChan:
	case <-time.After(10 * time.Second):
		e.logger.Warn("timeout waiting for engine to stop")
	}
	return nil
}

// RequestTrim 请求强制减仓；在下一个 tick 顶部生效。
func (e *Engine) RequestTrim() {
	e.trimRequested.Store(true)
	e.logger.Warn("trim requested")
	e.store.Append("trim", ">>> TRIM REQUESTED <<<")
}

// State 当前引擎状态。
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// run 主循环；停止与 trim 信号只在每轮顶部检查。
func (e *Engine) run(ctx context.Context) {
	defer close(e.doneChan)
	defer func() {
		e.mu.Lock()
		e.setStateLocked(StateStopped)
		e.mu.Unlock()
		e.publish()
		e.logger.Info("engine stopped")
		e.store.Append("info", "=== SYSTEM STOPPED ===")
	}()

	for {
		if e.stopped(ctx) {
			return
		}
		// trim 信号一经观察立即清除，避免完成后误重入
		if e.trimRequested.CompareAndSwap(true, false) {
			e.runTrim(ctx)
			if e.stopped(ctx) {
				return
			}
			e.mu.Lock()
			e.setStateLocked(StateRunning)
			e.mu.Unlock()
			e.store.Append("info", "=== RESUMED ===")
			if !e.sleep(ctx, e.cfg.TrimPoll) {
				return
			}
			continue
		}

		e.onTick(ctx)

		if !e.sleep(ctx, e.cfg.TickInterval) {
			return
		}
	}
}

// onTick 执行一轮：场次检查、快照、逐品种评估、发布状态。
func (e *Engine) onTick(ctx context.Context) {
	cs, err := e.exch.Case(ctx)
	if err != nil {
		metrics.RestErrors.WithLabelValues("case").Inc()
		e.logger.Error("fetch case failed", zap.Error(err))
		e.sleep(ctx, e.cfg.IdleRetry)
		return
	}
	if !cs.Active() {
		e.sleep(ctx, e.cfg.IdleRetry)
		return
	}

	secs, err := e.exch.Securities(ctx)
	if err != nil {
		metrics.RestErrors.WithLabelValues("securities").Inc()
		e.logger.Error("fetch securities failed", zap.Error(err))
		e.sleep(ctx, e.cfg.IdleRetry)
		return
	}

	bySymbol := make(map[string]gateway.Security, len(secs))
	for _, s := range secs {
		bySymbol[s.Ticker] = s
	}

	e.tick = cs.Tick
	e.pnl = 0
	for _, sym := range e.cfg.Instruments {
		s, ok := bySymbol[sym]
		if !ok {
			continue
		}
		e.positions[sym] = int(s.Position)
		e.pnl += s.Realized + s.Unrealized
	}

	for _, sym := range e.cfg.Instruments {
		if e.stopped(ctx) {
			break
		}
		s, ok := bySymbol[sym]
		if !ok {
			continue
		}
		e.evaluate(ctx, s, cs.Tick)
		if !e.sleep(ctx, e.cfg.InstrumentDelay) {
			break
		}
	}

	e.publish()
}

// evaluate 单品种单周期评估。任何数据缺失都只跳过本品种本周期。
func (e *Engine) evaluate(ctx context.Context, sec gateway.Security, tick int) {
	sym := sec.Ticker
	serverPos := int(sec.Position)

	orders, err := e.exch.OpenOrders(ctx)
	if err != nil {
		metrics.RestErrors.WithLabelValues("orders").Inc()
		e.logger.Warn("open orders unavailable, shadow falls back to server position",
			zap.String("symbol", sym), zap.Error(err))
		orders = nil
	}
	shadow, openVol := e.ledger.Resync(sym, serverPos, orders)
	e.openVols[sym] = openVol
	metrics.UpdateInstrument(sym, serverPos, openVol)

	book, err := e.exch.Book(ctx, sym)
	if err != nil || !book.Valid() {
		if err != nil {
			metrics.RestErrors.WithLabelValues("book").Inc()
			e.logger.Warn("book unavailable", zap.String("symbol", sym), zap.Error(err))
		}
		return
	}

	pf := risk.Portfolio{Net: e.ledger.Net(), Gross: e.ledger.Gross()}
	tier := e.gate.Classify(serverPos, tick, pf)
	metrics.TierEvaluations.WithLabelValues(sym, tier.String()).Inc()

	if tier == risk.TierAutoCrush {
		e.crush(ctx, sym, serverPos, book)
		return
	}

	q := e.model.Compute(sym, book.Mid(), shadow, e.gate.Caps.SafetyNetCap, tier == risk.TierRiskReduction)

	last := e.lastQuotes[sym]
	if absF(q.Bid-last.Bid) < requoteTolerance && absF(q.Ask-last.Ask) < requoteTolerance {
		metrics.QuoteNoops.Inc()
		return
	}

	if err := e.cancelAll(ctx, sym); err != nil {
		// 撤单失败时不盲目叠加新单，等下个周期重试
		return
	}
	e.ledger.Set(sym, serverPos)
	e.openVols[sym] = 0
	e.lastQuotes[sym] = q

	pf = risk.Portfolio{Net: e.ledger.Net(), Gross: e.ledger.Gross()}
	sizing := e.gate.Size(tier, serverPos, e.ledger.Shadow(sym), pf)

	tag := "OPEN"
	if tier == risk.TierOverflowUnwind {
		tag = "UNWIND"
	}
	if sizing.BuyQty > 0 {
		e.submitChunked(ctx, sym, "BUY", sizing.BuyQty, q.Bid, tag, 0)
	}
	if sizing.SellQty > 0 {
		e.submitChunked(ctx, sym, "SELL", sizing.SellQty, q.Ask, tag, 0)
	}
}

// crush 撤掉全部挂单后，以穿价单立即清空单品种仓位。
func (e *Engine) crush(ctx context.Context, sym string, serverPos int, book gateway.Book) {
	action := "SELL"
	price := quote.Round2(book.BestBid() - e.cfg.CrushOffset)
	if serverPos < 0 {
		action = "BUY"
		price = quote.Round2(book.BestAsk() + e.cfg.CrushOffset)
	}

	if err := e.cancelAll(ctx, sym); err != nil {
		// 强平优先于一切：撤单失败也继续砸单
		e.logger.Warn("cancel before crush failed", zap.String("symbol", sym), zap.Error(err))
	}
	e.ledger.Set(sym, serverPos)
	e.openVols[sym] = 0

	qty := serverPos
	if qty < 0 {
		qty = -qty
	}
	metrics.CrushEvents.WithLabelValues(sym).Inc()
	e.logger.Warn("auto crush",
		zap.String("symbol", sym),
		zap.Int("position", serverPos),
		zap.String("action", action),
		zap.Float64("price", price))
	e.submitChunked(ctx, sym, action, qty, price, "DUMP", 0)
}

// submitChunked 按单笔上限拆块顺序提交；块与块之间互不影响，
// 单块被拒或网络失败不中止其余块。
func (e *Engine) submitChunked(ctx context.Context, sym, action string, qty int, price float64, tag string, delay time.Duration) {
	intentID := uuid.NewString()
	for _, chunk := range risk.Chunks(qty, e.gate.Caps.MaxSingleOrder) {
		if e.cfg.DryRun {
			e.logger.Info("dry-run order",
				zap.String("intent", intentID),
				zap.String("symbol", sym),
				zap.String("action", action),
				zap.Int("quantity", chunk),
				zap.Float64("price", price),
				zap.String("tag", tag))
			continue
		}
		err := e.exch.PlaceLimit(ctx, sym, action, chunk, price)
		switch {
		case err == nil:
			delta := chunk
			if action == "SELL" {
				delta = -chunk
			}
			e.ledger.Adjust(sym, delta)
			metrics.OrdersPlaced.WithLabelValues(sym, tag).Inc()
			e.store.Append(categoryFor(tag), fmt.Sprintf("[%s] %s %d %s @ %.2f", tag, action, chunk, sym, price))
			e.logger.Debug("order placed",
				zap.String("intent", intentID),
				zap.String("symbol", sym),
				zap.String("action", action),
				zap.Int("quantity", chunk),
				zap.Float64("price", price),
				zap.String("tag", tag))
		case gateway.IsRejection(err):
			metrics.OrdersRejected.WithLabelValues(sym).Inc()
			e.store.Append("reject", fmt.Sprintf("[REJ] %s %d %s: %v", action, chunk, sym, err))
			e.logger.Warn("order rejected",
				zap.String("intent", intentID),
				zap.String("symbol", sym),
				zap.String("action", action),
				zap.Int("quantity", chunk),
				zap.Error(err))
		default:
			metrics.RestErrors.WithLabelValues("place").Inc()
			e.store.Append("error", fmt.Sprintf("[ERR] network: %v", err))
			e.logger.Error("order submit failed",
				zap.String("intent", intentID),
				zap.String("symbol", sym),
				zap.Error(err))
		}
		if delay > 0 && !e.sleep(ctx, delay) {
			return
		}
	}
}

func (e *Engine) cancelAll(ctx context.Context, sym string) error {
	if e.cfg.DryRun {
		return nil
	}
	if err := e.exch.CancelAll(ctx, sym); err != nil {
		metrics.RestErrors.WithLabelValues("cancel").Inc()
		e.logger.Warn("cancel all failed", zap.String("symbol", sym), zap.Error(err))
		return err
	}
	return nil
}

// publish 把当前组合状态整体发布给展示层。
func (e *Engine) publish() {
	net, gross := 0, 0
	positions := make(map[string]int, len(e.positions))
	openVols := make(map[string]int, len(e.openVols))
	for _, sym := range e.cfg.Instruments {
		pos := e.positions[sym]
		positions[sym] = pos
		openVols[sym] = e.openVols[sym]
		net += pos
		if pos < 0 {
			gross -= pos
		} else {
			gross += pos
		}
	}
	metrics.UpdatePortfolio(net, gross, e.pnl)
	e.store.Publish(store.Snapshot{
		Status:     e.State().String(),
		Tick:       e.tick,
		Positions:  positions,
		OpenVolume: openVols,
		Net:        net,
		Gross:      gross,
		PNL:        e.pnl,
	})
}

func (e *Engine) setStateLocked(s State) {
	e.state = s
	metrics.EngineState.Set(float64(s))
}

// stopped 停止信号或 ctx 取消。
func (e *Engine) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-e.stopChan:
		return true
	default:
		return false
	}
}

// sleep 可中断等待；返回 false 表示循环应当退出。
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !e.stopped(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-e.stopChan:
		return false
	case <-timer.C:
		return true
	}
}

func categoryFor(tag string) string {
	switch tag {
	case "DUMP":
		return "crush"
	case "TRIM":
		return "trim"
	default:
		return "open"
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
