package risk

// Tier 单品种单周期的风险档位，互斥且按声明顺序优先。
type Tier int

const (
	// TierAutoCrush 仓位越过危险阈值或处于开收盘强平窗口，立即穿价全平
	TierAutoCrush Tier = iota
	// TierRiskReduction 较宽的边界窗口，按自身报价温和全平
	TierRiskReduction
	// TierNormal 正常双边做市
	TierNormal
	// TierOverflowUnwind 总仓预算耗尽，单侧减仓
	TierOverflowUnwind
)

// String 返回档位名称
func (t Tier) String() string {
	switch t {
	case TierAutoCrush:
		return "AUTO_CRUSH"
	case TierRiskReduction:
		return "RISK_REDUCTION"
	case TierNormal:
		return "NORMAL"
	case TierOverflowUnwind:
		return "OVERFLOW_UNWIND"
	default:
		return "UNKNOWN"
	}
}
