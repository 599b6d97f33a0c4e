package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"rit-market-maker/gateway"
	"rit-market-maker/internal/quote"
	"rit-market-maker/metrics"
)

// runTrim 强制减仓状态机。接管主循环，逐轮清空所有非零仓位，
// 直到总仓与 |净仓| 同时回落到目标比例以下才交还控制权。
func (e *Engine) runTrim(ctx context.Context) {
	e.mu.Lock()
	e.setStateLocked(StateTrimming)
	e.mu.Unlock()

	targetGross := e.gate.Caps.TargetGross()
	targetNet := e.gate.Caps.TargetNet()
	e.logger.Warn("trim activated",
		zap.Float64("target_gross", targetGross),
		zap.Float64("target_net", targetNet))
	e.store.Append("trim", ">>> ACTIVATING TRIM <<<")

	for !e.stopped(ctx) {
		secs, err := e.exch.Securities(ctx)
		if err != nil {
			// 组合快照拿不到就等一轮再试，绝不中途放弃
			metrics.RestErrors.WithLabelValues("securities").Inc()
			e.logger.Warn("trim: fetch securities failed", zap.Error(err))
			if !e.sleep(ctx, e.cfg.IdleRetry) {
				return
			}
			continue
		}

		bySymbol := make(map[string]gateway.Security, len(secs))
		for _, s := range secs {
			bySymbol[s.Ticker] = s
		}

		net, gross := 0, 0
		e.pnl = 0
		for _, sym := range e.cfg.Instruments {
			s, ok := bySymbol[sym]
			if !ok {
				continue
			}
			pos := int(s.Position)
			e.positions[sym] = pos
			net += pos
			if pos < 0 {
				gross -= pos
			} else {
				gross += pos
			}
			e.pnl += s.Realized + s.Unrealized
		}
		e.publish()
		e.store.Append("trim", fmt.Sprintf("[TRIM] gross: %d | net: %d", gross, net))

		// 两个条件必须同时满足才退出
		if float64(gross) <= targetGross && absF(float64(net)) <= targetNet {
			e.logger.Info("trim complete", zap.Int("gross", gross), zap.Int("net", net))
			e.store.Append("trim", ">>> SAFE ZONE REACHED. RESUMING <<<")
			return
		}

		for _, sym := range e.cfg.Instruments {
			if e.stopped(ctx) {
				return
			}
			s, ok := bySymbol[sym]
			if !ok {
				continue
			}
			pos := int(s.Position)
			if pos == 0 {
				continue
			}
			e.trimInstrument(ctx, sym, pos)
		}

		metrics.TrimCycles.Inc()
		if !e.sleep(ctx, e.cfg.TrimPoll) {
			return
		}
	}
}

// trimInstrument 清空单品种：撤单后以 TrimOffset 穿价全量砸出，
// 按单笔上限拆块并在块间留延迟。任何一步失败只跳过本品种本轮。
func (e *Engine) trimInstrument(ctx context.Context, sym string, pos int) {
	book, err := e.exch.Book(ctx, sym)
	if err != nil || !book.Valid() {
		if err != nil {
			metrics.RestErrors.WithLabelValues("book").Inc()
			e.logger.Warn("trim: book unavailable", zap.String("symbol", sym), zap.Error(err))
		}
		return
	}

	action := "SELL"
	price := quote.Round2(book.BestBid() - e.cfg.TrimOffset)
	if pos < 0 {
		action = "BUY"
		price = quote.Round2(book.BestAsk() + e.cfg.TrimOffset)
	}

	if err := e.cancelAll(ctx, sym); err != nil {
		return
	}
	e.ledger.Set(sym, pos)
	e.openVols[sym] = 0

	qty := pos
	if qty < 0 {
		qty = -qty
	}
	e.submitChunked(ctx, sym, action, qty, price, "TRIM", e.cfg.ChunkDelay)
}
