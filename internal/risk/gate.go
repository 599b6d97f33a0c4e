// Package risk 将快照状态（仓位、会话相位、组合敞口）映射为风险档位，
// 并在三重预算（总仓、净仓、单笔上限）内给出每侧报单量。
// 预算在 sizing 前预留，任何档位都不会给出越过上限的数量。
package risk

// Caps 进程内不可变的仓位与下单上限。
type Caps struct {
	MaxOrderSize    int
	SafetyNetCap    int
	SafetyGrossCap  int
	MaxSingleOrder  int
	DangerThreshold int
	TargetRatio     float64 // trim 退出目标，占 cap 比例
}

// TargetNet trim 退出所需的 |净仓| 上限。
func (c Caps) TargetNet() float64 { return float64(c.SafetyNetCap) * c.TargetRatio }

// TargetGross trim 退出所需的总仓上限。
func (c Caps) TargetGross() float64 { return float64(c.SafetyGrossCap) * c.TargetRatio }

// Windows 开收盘边界窗口，以 tick mod Modulo 计。
// 强平窗口是减仓窗口的子集，分类时强平优先。
type Windows struct {
	Modulo      int
	CrushClose  int
	CrushOpen   int
	ReduceClose int
	ReduceOpen  int
}

// InCrush 当前相位处于强平窗口。
func (w Windows) InCrush(tick int) bool {
	sec := tick % w.Modulo
	return sec >= w.CrushClose || sec < w.CrushOpen
}

// InReduce 当前相位处于减仓窗口。
func (w Windows) InReduce(tick int) bool {
	sec := tick % w.Modulo
	return sec >= w.ReduceClose || sec < w.ReduceOpen
}

// Portfolio 组合敞口（影子仓位口径）。
type Portfolio struct {
	Net   int
	Gross int
}

// Sizing 单周期各侧报单量；0 表示该侧不报。
type Sizing struct {
	BuyQty  int
	SellQty int
}

// Gate 档位分类与报单量计算。
type Gate struct {
	Caps               Caps
	Windows            Windows
	ConcentrationRatio float64 // |影子仓位| 超过 netCap 的该比例后报单量降为 1/3
}

// Classify 给出当前档位。优先级 AutoCrush > RiskReduction > Normal/Overflow。
// 边界窗口只对非零仓位触发强平；危险阈值触发与会话相位无关。
func (g Gate) Classify(serverPos, tick int, pf Portfolio) Tier {
	if abs(serverPos) > g.Caps.DangerThreshold {
		return TierAutoCrush
	}
	if g.Windows.InCrush(tick) && serverPos != 0 {
		return TierAutoCrush
	}
	if g.Windows.InReduce(tick) {
		return TierRiskReduction
	}
	if g.Caps.SafetyGrossCap-pf.Gross > 0 {
		return TierNormal
	}
	return TierOverflowUnwind
}

// Size 按档位给出各侧数量。serverPos 为权威仓位，shadowPos 为影子仓位，
// pf 为撤单重置后的组合敞口。
func (g Gate) Size(tier Tier, serverPos, shadowPos int, pf Portfolio) Sizing {
	switch tier {
	case TierAutoCrush, TierRiskReduction:
		// 全量平仓，方向与持仓相反
		return reduceOnly(serverPos, abs(serverPos))

	case TierOverflowUnwind:
		return reduceOnly(serverPos, min(g.Caps.MaxOrderSize, abs(serverPos)))

	default:
		return g.sizeNormal(shadowPos, pf)
	}
}

// sizeNormal 双边候选报单量，依次受剩余总仓预算、各侧净仓余量约束。
func (g Gate) sizeNormal(shadowPos int, pf Portfolio) Sizing {
	remainingGross := g.Caps.SafetyGrossCap - pf.Gross
	if remainingGross <= 0 {
		return Sizing{}
	}

	size := g.Caps.MaxOrderSize
	// 库存集中后递减：最后一层只报 1/3
	if float64(abs(shadowPos)) >= float64(g.Caps.SafetyNetCap)*g.ConcentrationRatio {
		size = g.Caps.MaxOrderSize / 3
	}

	qty := min(size, remainingGross/2)
	buy := clampQty(min(qty, g.Caps.SafetyNetCap-pf.Net))
	sell := clampQty(min(qty, g.Caps.SafetyNetCap+pf.Net))
	return Sizing{BuyQty: buy, SellQty: sell}
}

// Chunks 将数量按交易所单笔上限拆为顺序块，各块独立提交。
func Chunks(qty, ceiling int) []int {
	if qty <= 0 {
		return nil
	}
	if ceiling <= 0 {
		return []int{qty}
	}
	var out []int
	for rem := qty; rem > 0; rem -= ceiling {
		out = append(out, min(rem, ceiling))
	}
	return out
}

func reduceOnly(pos, qty int) Sizing {
	if qty <= 0 || pos == 0 {
		return Sizing{}
	}
	if pos > 0 {
		return Sizing{SellQty: qty}
	}
	return Sizing{BuyQty: qty}
}

func clampQty(q int) int {
	if q < 0 {
		return 0
	}
	return q
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
