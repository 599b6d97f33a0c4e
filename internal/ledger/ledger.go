// Package ledger 维护影子仓位：服务器仓位加上未成交挂单的净量。
// 影子仓位只用于让 sizing 决策快于交易所回报，每个评估周期开始时
// 必须用权威仓位重新同步，不允许跨周期信任。
package ledger

import "rit-market-maker/gateway"

// Ledger 归属于交易主循环，单 goroutine 使用，不加锁。
type Ledger struct {
	shadow  map[string]int
	openVol map[string]int
}

func New(symbols []string) *Ledger {
	l := &Ledger{
		shadow:  make(map[string]int, len(symbols)),
		openVol: make(map[string]int, len(symbols)),
	}
	for _, s := range symbols {
		l.shadow[s] = 0
		l.openVol[s] = 0
	}
	return l
}

// Resync 用权威仓位与未完成订单重建影子仓位。
// orders 为 nil 时（订单查询失败）退化为 shadow = serverPos，不阻塞循环。
// 返回影子仓位与该品种的未成交总量（展示用）。
func (l *Ledger) Resync(symbol string, serverPos int, orders []gateway.OpenOrder) (shadow, openVol int) {
	netOpen := 0
	for _, o := range orders {
		if o.Ticker != symbol {
			continue
		}
		rem := int(o.Unfilled())
		openVol += rem
		if o.Action == "BUY" {
			netOpen += rem
		} else {
			netOpen -= rem
		}
	}
	shadow = serverPos + netOpen
	l.shadow[symbol] = shadow
	l.openVol[symbol] = openVol
	return shadow, openVol
}

// Set 直接覆盖影子仓位（撤单后重置为服务器仓位）。
func (l *Ledger) Set(symbol string, pos int) {
	l.shadow[symbol] = pos
	l.openVol[symbol] = 0
}

// Adjust 报单成功后的乐观调整（buy 为正，sell 为负）。
func (l *Ledger) Adjust(symbol string, delta int) {
	l.shadow[symbol] += delta
}

// Shadow 当前影子仓位。
func (l *Ledger) Shadow(symbol string) int { return l.shadow[symbol] }

// OpenVolume 最近一次 Resync 观察到的未成交总量。
func (l *Ledger) OpenVolume(symbol string) int { return l.openVol[symbol] }

// Net 全部品种影子仓位的带符号和。
func (l *Ledger) Net() int {
	n := 0
	for _, v := range l.shadow {
		n += v
	}
	return n
}

// Gross 全部品种影子仓位的绝对值和。
func (l *Ledger) Gross() int {
	g := 0
	for _, v := range l.shadow {
		if v < 0 {
			g -= v
		} else {
			g += v
		}
	}
	return g
}
