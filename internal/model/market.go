package model

// MarketStatus is the backend's view of the trading session.
type MarketStatus struct {
	IsOpen bool `json:"is_open"`
}

// SellPrice is the quote used to prefill an order ticket.
type SellPrice struct {
	StockCode    string `json:"stock_code"`
	CurrentPrice int64  `json:"current_price"`
	OpenPrice    int64  `json:"open_price"`
	IsMarketOpen bool   `json:"is_market_open"`
}

// ChangeRate returns the percent change of the current price versus the open.
func (p SellPrice) ChangeRate() float64 {
	if p.OpenPrice <= 0 {
		return 0
	}
	return float64(p.CurrentPrice-p.OpenPrice) / float64(p.OpenPrice) * 100
}

// Metadata is static instrument information. It is treated as immutable for
// the lifetime of a session.
type Metadata struct {
	StockCode    string `json:"stock_code"`
	StockName    string `json:"stock_name"`
	Market       string `json:"market"`
	Sector       string `json:"sector"`
	Industry     string `json:"industry"`
	MarketCap    int64  `json:"market_cap"`
	ListedShares int64  `json:"listed_shares"`
}

// Prediction is one row of the daily prediction list.
type Prediction struct {
	ID                 int64    `json:"id"`
	StockCode          string   `json:"stock_code"`
	StockName          string   `json:"stock_name"`
	PredictionDate     string   `json:"prediction_date"`
	StockOpen          int64    `json:"stock_open"`
	Signal             string   `json:"signal"`
	Confidence         *string  `json:"confidence"`
	ProbUp             float64  `json:"prob_up"`
	ExpectedReturn     float64  `json:"expected_return"`
	TakeProfitTarget   *float64 `json:"take_profit_target"`
	ActualHigh         *int64   `json:"actual_high"`
	ActualLow          *int64   `json:"actual_low"`
	CurrentPrice       *int64   `json:"current_price"`
	PredictedDirection int      `json:"predicted_direction"`
}

// StrategyPredictions groups predictions under the strategy that made them.
type StrategyPredictions struct {
	Strategy struct {
		ID          int64   `json:"id"`
		Name        string  `json:"name"`
		Description *string `json:"description"`
	} `json:"strategy_info"`
	Predictions []Prediction `json:"predictions"`
}

// PredictionList is the /predict response.
type PredictionList struct {
	IsMarketOpen bool                  `json:"is_market_open"`
	Data         []StrategyPredictions `json:"data"`
}

// StockCodes returns the distinct stock codes in list order.
func (l *PredictionList) StockCodes() []string {
	seen := make(map[string]bool)
	var codes []string
	for _, s := range l.Data {
		for _, p := range s.Predictions {
			if p.StockCode == "" || seen[p.StockCode] {
				continue
			}
			seen[p.StockCode] = true
			codes = append(codes, p.StockCode)
		}
	}
	return codes
}
