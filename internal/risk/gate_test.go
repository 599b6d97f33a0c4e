package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testGate() Gate {
	return Gate{
		Caps: Caps{
			MaxOrderSize:    7200,
			SafetyNetCap:    22600,
			SafetyGrossCap:  41800,
			MaxSingleOrder:  10000,
			DangerThreshold: 20000,
			TargetRatio:     0.30,
		},
		Windows: Windows{
			Modulo:      60,
			CrushClose:  58,
			CrushOpen:   2,
			ReduceClose: 52,
			ReduceOpen:  3,
		},
		ConcentrationRatio: 0.65,
	}
}

func TestClassify(t *testing.T) {
	g := testGate()

	tests := []struct {
		name      string
		serverPos int
		tick      int
		pf        Portfolio
		want      Tier
	}{
		// 危险阈值触发与相位无关
		{"danger threshold mid-session", 20001, 30, Portfolio{Net: 20001, Gross: 20001}, TierAutoCrush},
		{"danger threshold short side", -20001, 30, Portfolio{Net: -20001, Gross: 20001}, TierAutoCrush},
		{"danger threshold in reduce window", 20001, 55, Portfolio{Net: 20001, Gross: 20001}, TierAutoCrush},
		{"at threshold is not danger", 20000, 30, Portfolio{Net: 20000, Gross: 20000}, TierNormal},

		// 边界窗口：强平只对非零仓位触发，强平窗口优先于减仓窗口
		{"crush window sec 58", 500, 58, Portfolio{Net: 500, Gross: 500}, TierAutoCrush},
		{"crush window sec 59", 500, 119, Portfolio{Net: 500, Gross: 500}, TierAutoCrush},
		{"crush window sec 0", 500, 60, Portfolio{Net: 500, Gross: 500}, TierAutoCrush},
		{"crush window sec 1", 500, 61, Portfolio{Net: 500, Gross: 500}, TierAutoCrush},
		{"crush window flat falls to reduction", 0, 58, Portfolio{}, TierRiskReduction},

		{"reduce window sec 52", 500, 52, Portfolio{Net: 500, Gross: 500}, TierRiskReduction},
		{"reduce window sec 2", 500, 62, Portfolio{Net: 500, Gross: 500}, TierRiskReduction},
		{"sec 3 back to normal", 500, 63, Portfolio{Net: 500, Gross: 500}, TierNormal},
		{"sec 57 reduce window", 500, 57, Portfolio{Net: 500, Gross: 500}, TierRiskReduction},
		{"sec 51 still normal", 500, 51, Portfolio{Net: 500, Gross: 500}, TierNormal},

		// 总仓预算耗尽
		{"gross budget exhausted", 500, 30, Portfolio{Net: 0, Gross: 41800}, TierOverflowUnwind},
		{"gross budget left", 500, 30, Portfolio{Net: 0, Gross: 41799}, TierNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Classify(tt.serverPos, tt.tick, tt.pf)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSizeReduceTiers(t *testing.T) {
	g := testGate()

	// 强平/减仓档全量反向
	s := g.Size(TierAutoCrush, 20001, 20001, Portfolio{Net: 20001, Gross: 20001})
	assert.Equal(t, Sizing{SellQty: 20001}, s)

	s = g.Size(TierRiskReduction, -1500, -1500, Portfolio{Net: -1500, Gross: 1500})
	assert.Equal(t, Sizing{BuyQty: 1500}, s)

	s = g.Size(TierAutoCrush, 0, 0, Portfolio{})
	assert.Equal(t, Sizing{}, s)

	// 溢出档受单笔基准上限约束
	s = g.Size(TierOverflowUnwind, 9000, 9000, Portfolio{Net: 9000, Gross: 41800})
	assert.Equal(t, Sizing{SellQty: 7200}, s)

	s = g.Size(TierOverflowUnwind, -5000, -5000, Portfolio{Net: -5000, Gross: 41800})
	assert.Equal(t, Sizing{BuyQty: 5000}, s)
}

func TestSizeNormal(t *testing.T) {
	g := testGate()

	t.Run("flat book quotes both sides at base size", func(t *testing.T) {
		s := g.Size(TierNormal, 0, 0, Portfolio{})
		assert.Equal(t, Sizing{BuyQty: 7200, SellQty: 7200}, s)
	})

	t.Run("gross budget halves the candidate", func(t *testing.T) {
		s := g.Size(TierNormal, 0, 0, Portfolio{Net: 0, Gross: 40000})
		// 剩余 1800，每侧至多 900
		assert.Equal(t, Sizing{BuyQty: 900, SellQty: 900}, s)
	})

	t.Run("fully long at net cap never buys", func(t *testing.T) {
		s := g.Size(TierNormal, 22600, 22600, Portfolio{Net: 22600, Gross: 22600})
		assert.Equal(t, 0, s.BuyQty)
		assert.Equal(t, 2400, s.SellQty) // 集中度超限，1/3 档
	})

	t.Run("concentration scaling at 65 percent of net cap", func(t *testing.T) {
		s := g.Size(TierNormal, 14690, 14690, Portfolio{Net: 14690, Gross: 14690})
		assert.Equal(t, 2400, s.SellQty)
		assert.Equal(t, 2400, s.BuyQty)

		s = g.Size(TierNormal, 14689, 14689, Portfolio{Net: 14689, Gross: 14689})
		assert.Equal(t, 7200, s.SellQty)
	})

	t.Run("budgets never exceeded", func(t *testing.T) {
		positions := []int{-22600, -14690, -7200, 0, 7200, 14690, 22600}
		for _, pos := range positions {
			pf := Portfolio{Net: pos, Gross: abs(pos)}
			s := g.Size(TierNormal, pos, pos, pf)
			assert.LessOrEqual(t, pf.Net+s.BuyQty, g.Caps.SafetyNetCap, "pos=%d", pos)
			assert.GreaterOrEqual(t, pf.Net-s.SellQty, -g.Caps.SafetyNetCap, "pos=%d", pos)
			assert.LessOrEqual(t, pf.Gross+s.BuyQty+s.SellQty, g.Caps.SafetyGrossCap, "pos=%d", pos)
		}
	})
}

func TestChunks(t *testing.T) {
	tests := []struct {
		qty, ceiling int
		want         []int
	}{
		{25000, 10000, []int{10000, 10000, 5000}},
		{10000, 10000, []int{10000}},
		{9999, 10000, []int{9999}},
		{1, 10000, []int{1}},
		{0, 10000, nil},
		{5000, 0, []int{5000}},
	}

	for _, tt := range tests {
		got := Chunks(tt.qty, tt.ceiling)
		assert.Equal(t, tt.want, got, "qty=%d ceiling=%d", tt.qty, tt.ceiling)

		sum := 0
		for _, c := range got {
			sum += c
		}
		if tt.qty > 0 {
			assert.Equal(t, tt.qty, sum)
		}
	}
}

func TestTargets(t *testing.T) {
	c := testGate().Caps
	assert.InDelta(t, 12540.0, c.TargetGross(), 1e-9)
	assert.InDelta(t, 6780.0, c.TargetNet(), 1e-9)
}
