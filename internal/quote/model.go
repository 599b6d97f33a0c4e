// Package quote 实现仓位倾斜报价模型：中间价滚动窗口给出波动加宽，
// 库存比率决定两侧半价差的推/拉，重仓侧推宽、反向侧拉窄以促回归平仓。
package quote

import (
	"math"
	"sync"
)

// minHalfSpread 被拉窄一侧的半价差下限。
const minHalfSpread = 0.01

// Tunables 报价系数，可热更新。
type Tunables struct {
	BaseHalfSpread  float64
	PushCoeff       float64
	PullCoeff       float64
	DefensivePull   float64
	MinMarketSpread float64
	VolCap          float64
	HistoryLen      int
}

// Quote 一组双边报价（已按 0.01 精度取整）。
type Quote struct {
	Bid float64
	Ask float64
}

// Model 按品种保存短滚动价格历史；除历史更新外无副作用。
// SetTunables 可能来自热更新 goroutine，系数读写加锁。
type Model struct {
	mu   sync.RWMutex
	tun  Tunables
	hist map[string][]float64
}

func NewModel(t Tunables) *Model {
	if t.HistoryLen <= 0 {
		t.HistoryLen = 10
	}
	return &Model{tun: t, hist: make(map[string][]float64)}
}

// SetTunables 热更新报价系数。
func (m *Model) SetTunables(t Tunables) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.HistoryLen <= 0 {
		t.HistoryLen = 10
	}
	m.tun = t
}

// Tunables 返回当前系数。
func (m *Model) Tunables() Tunables {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tun
}

// Compute 由中间价、影子仓位与净仓上限得出双边报价。
// defensive 为真时（减仓窗口）用 DefensivePull 大幅拉近平仓侧。
func (m *Model) Compute(symbol string, mid float64, shadowPos, netCap int, defensive bool) Quote {
	m.mu.RLock()
	tun := m.tun
	m.mu.RUnlock()

	volAdj := m.observe(symbol, mid, tun)

	pull := tun.PullCoeff
	if defensive {
		pull = tun.DefensivePull
	}
	ratio := float64(shadowPos) / (float64(netCap) / 2)

	var bidHalf, askHalf float64
	if ratio > 0 {
		// 多头过重：买侧推宽、卖侧拉窄
		bidHalf = tun.BaseHalfSpread + volAdj + tun.PushCoeff*ratio
		askHalf = math.Max(minHalfSpread, tun.BaseHalfSpread+volAdj-pull*ratio)
	} else {
		askHalf = tun.BaseHalfSpread + volAdj + tun.PushCoeff*-ratio
		bidHalf = math.Max(minHalfSpread, tun.BaseHalfSpread+volAdj-pull*-ratio)
	}

	bid := round2(mid - bidHalf)
	ask := round2(mid + askHalf)
	if ask-bid < tun.MinMarketSpread {
		ask = round2(bid + tun.MinMarketSpread)
	}
	return Quote{Bid: bid, Ask: ask}
}

// observe 记录中间价并返回波动加宽量（近期极差的一半，封顶 VolCap）。
func (m *Model) observe(symbol string, mid float64, tun Tunables) float64 {
	m.mu.Lock()
	h := append(m.hist[symbol], mid)
	if len(h) > tun.HistoryLen {
		h = h[len(h)-tun.HistoryLen:]
	}
	m.hist[symbol] = h
	m.mu.Unlock()

	if len(h) < 2 {
		return 0
	}
	lo, hi := h[0], h[0]
	for _, p := range h[1:] {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	return math.Min(tun.VolCap, (hi-lo)*0.5)
}

// Round2 按 0.01 价格精度取整。
func Round2(p float64) float64 { return round2(p) }

func round2(p float64) float64 { return math.Round(p*100) / 100 }
