package gateway

// Case 场次状态。
type Case struct {
	Name           string `json:"name"`
	Period         int    `json:"period"`
	Tick           int    `json:"tick"`
	TicksPerPeriod int    `json:"ticks_per_period"`
	Status         string `json:"status"` // ACTIVE / PAUSED / STOPPED
}

// Active reports whether the session is accepting orders.
func (c Case) Active() bool { return c.Status == "ACTIVE" }

// Security 单品种持仓与盈亏快照。
type Security struct {
	Ticker     string  `json:"ticker"`
	Position   float64 `json:"position"`
	Realized   float64 `json:"realized"`
	Unrealized float64 `json:"unrealized"`
}

// Level 盘口一档。
type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Book 盘口快照；只消费最优档。
type Book struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// Valid 盘口两侧均有报价。
func (b Book) Valid() bool { return len(b.Bids) > 0 && len(b.Asks) > 0 }

// BestBid 最优买价；空盘口返回 0。
func (b Book) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk 最优卖价；空盘口返回 0。
func (b Book) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Mid 中间价。
func (b Book) Mid() float64 { return (b.BestBid() + b.BestAsk()) / 2 }

// OpenOrder 交易所侧的未完成订单（只读）。
type OpenOrder struct {
	OrderID  int64   `json:"order_id"`
	Ticker   string  `json:"ticker"`
	Action   string  `json:"action"` // BUY / SELL
	Quantity float64 `json:"quantity"`
	Filled   float64 `json:"filled"`
	Price    float64 `json:"price"`
	Status   string  `json:"status"`
}

// Unfilled 剩余未成交量。
func (o OpenOrder) Unfilled() float64 {
	rem := o.Quantity - o.Filled
	if rem < 0 {
		return 0
	}
	return rem
}
