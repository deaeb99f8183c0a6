package config

import "fmt"

// Strength labels used by position health assessment.
type Strength string

const (
	StrengthHyper      Strength = "hyper"
	StrengthVeryStrong Strength = "very_strong"
	StrengthStrong     Strength = "strong"
	StrengthModerate   Strength = "moderate"
	StrengthWeak       Strength = "weak"
)

// Strategy holds the fixed constants of the momentum strategy. It is
// passed by value into every component and never mutated after Load.
type Strategy struct {
	InitialCapital float64 `yaml:"initial_capital"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	TradingDays    int     `yaml:"trading_days"`

	Indicators Indicators `yaml:"indicators"`
	Scoring    Scoring    `yaml:"scoring"`
	Signals    Signals    `yaml:"signals"`

	Slippage   float64    `yaml:"slippage"`
	Commission Commission `yaml:"commission"`

	MaxExposure         float64     `yaml:"max_exposure"`
	MinPositionFraction float64     `yaml:"min_position_fraction"`
	Regimes             RegimeTable `yaml:"regimes"`
	TakeProfitATR       float64     `yaml:"take_profit_atr"`
	TrailingLock        float64     `yaml:"trailing_lock"`
	ProfitLock          ProfitLock  `yaml:"profit_lock"`

	PartialExitTrim  float64 `yaml:"partial_exit_trim"`
	PartialExitScore float64 `yaml:"partial_exit_score"`
	TimeExitTrim     float64 `yaml:"time_exit_trim"`
	TimeExitScore    float64 `yaml:"time_exit_score"`

	Strength    StrengthTable             `yaml:"strength"`
	ProfitRules map[Strength][]ProfitRule `yaml:"profit_rules"`

	EquityFloor float64 `yaml:"equity_floor"`
}

type Indicators struct {
	FastMA             int     `yaml:"fast_ma"`
	SlowMA             int     `yaml:"slow_ma"`
	ATRPeriod          int     `yaml:"atr_period"`
	ADXPeriod          int     `yaml:"adx_period"`
	RSIPeriod          int     `yaml:"rsi_period"`
	BBPeriod           int     `yaml:"bb_period"`
	BBStdDev           float64 `yaml:"bb_std_dev"`
	VolumeMAPeriod     int     `yaml:"volume_ma_period"`
	VIXMAPeriod        int     `yaml:"vix_ma_period"`
	MomentumLookback   int     `yaml:"momentum_lookback"`
	VolatilityLookback int     `yaml:"volatility_lookback"`
}

// Scoring weights of the composite momentum score.
type Scoring struct {
	PriceWeight    float64 `yaml:"price_weight"`
	RSIWeight      float64 `yaml:"rsi_weight"`
	ADXWeight      float64 `yaml:"adx_weight"`
	VolumeWeight   float64 `yaml:"volume_weight"`
	VIXWeight      float64 `yaml:"vix_weight"`
	ROCShare       float64 `yaml:"roc_share"`
	MADistShare    float64 `yaml:"ma_dist_share"`
	RSIZoneFloor   float64 `yaml:"rsi_zone_floor"`
	RSIZoneLow     float64 `yaml:"rsi_zone_low"`
	RSIZoneHigh    float64 `yaml:"rsi_zone_high"`
	RSIZoneCeiling float64 `yaml:"rsi_zone_ceiling"`
	VolAdjustMin   float64 `yaml:"vol_adjust_min"`
	VolAdjustMax   float64 `yaml:"vol_adjust_max"`
}

type Signals struct {
	VIXEntryCeiling    float64 `yaml:"vix_entry_ceiling"`
	BuyScore           float64 `yaml:"buy_score"`
	ExitScore          float64 `yaml:"exit_score"`
	ExitRSI            float64 `yaml:"exit_rsi"`
	ExitRSIScore       float64 `yaml:"exit_rsi_score"`
	ImmediateScore     float64 `yaml:"immediate_score"`
	ImmediateRSI       float64 `yaml:"immediate_rsi"`
	ImmediateADXFactor float64 `yaml:"immediate_adx_factor"`
}

// Commission is charged per fill when Enabled: max(Rate*notional, Minimum).
type Commission struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`
	Minimum float64 `yaml:"minimum"`
}

func (c Commission) Cost(price float64, shares int) float64 {
	if !c.Enabled || shares <= 0 {
		return 0
	}
	return max(price*float64(shares)*c.Rate, c.Minimum)
}

// Regime is the stop distance (in ATRs) and risk scale for one ADX band.
type Regime struct {
	StopATR   float64 `yaml:"stop_atr"`
	RiskScale float64 `yaml:"risk_scale"`
}

// RegimeTable classifies ADX into weak (< WeakBelow), strong
// (> StrongAbove) and normal in between, inclusive.
type RegimeTable struct {
	WeakBelow   float64 `yaml:"weak_below"`
	StrongAbove float64 `yaml:"strong_above"`
	Weak        Regime  `yaml:"weak"`
	Normal      Regime  `yaml:"normal"`
	Strong      Regime  `yaml:"strong"`
}

func (t RegimeTable) For(adx float64) Regime {
	switch {
	case adx < t.WeakBelow:
		return t.Weak
	case adx > t.StrongAbove:
		return t.Strong
	default:
		return t.Normal
	}
}

// ProfitLock widens the trailing distance as unrealized profit grows.
type ProfitLock struct {
	HighGain float64 `yaml:"high_gain"`
	HighMult float64 `yaml:"high_mult"`
	MidGain  float64 `yaml:"mid_gain"`
	MidMult  float64 `yaml:"mid_mult"`
}

func (p ProfitLock) Multiplier(gainPct float64) float64 {
	switch {
	case gainPct > p.HighGain:
		return p.HighMult
	case gainPct > p.MidGain:
		return p.MidMult
	default:
		return 1.0
	}
}

// StrengthTable maps an ATR-adjusted momentum score onto a Strength.
type StrengthTable struct {
	Hyper      float64 `yaml:"hyper"`
	VeryStrong float64 `yaml:"very_strong"`
	Strong     float64 `yaml:"strong"`
	Moderate   float64 `yaml:"moderate"`
	Base       float64 `yaml:"base"`
	ATRPenalty float64 `yaml:"atr_penalty"`
}

func (t StrengthTable) Classify(score, atr, price float64) Strength {
	atrPct := 0.0
	if price > 0 {
		atrPct = atr / price
	}
	adjusted := score * (t.Base - t.ATRPenalty*atrPct)
	switch {
	case adjusted > t.Hyper:
		return StrengthHyper
	case adjusted > t.VeryStrong:
		return StrengthVeryStrong
	case adjusted > t.Strong:
		return StrengthStrong
	case adjusted > t.Moderate:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// ProfitRule trims Trim of every open position once the portfolio profit
// factor reaches Threshold.
type ProfitRule struct {
	Threshold float64 `yaml:"threshold"`
	Trim      float64 `yaml:"trim"`
}

// DefaultStrategy returns the constants of the reference strategy.
func DefaultStrategy() Strategy {
	return Strategy{
		InitialCapital: 25000,
		RiskFreeRate:   0.04,
		TradingDays:    252,
		Indicators: Indicators{
			FastMA:             20,
			SlowMA:             50,
			ATRPeriod:          14,
			ADXPeriod:          14,
			RSIPeriod:          14,
			BBPeriod:           20,
			BBStdDev:           2.0,
			VolumeMAPeriod:     20,
			VIXMAPeriod:        20,
			MomentumLookback:   14,
			VolatilityLookback: 21,
		},
		Scoring: Scoring{
			PriceWeight:    0.2,
			RSIWeight:      0.2,
			ADXWeight:      0.2,
			VolumeWeight:   0.2,
			VIXWeight:      0.2,
			ROCShare:       0.6,
			MADistShare:    0.4,
			RSIZoneFloor:   20,
			RSIZoneLow:     40,
			RSIZoneHigh:    70,
			RSIZoneCeiling: 90,
			VolAdjustMin:   0.5,
			VolAdjustMax:   1.5,
		},
		Signals: Signals{
			VIXEntryCeiling:    40,
			BuyScore:           57,
			ExitScore:          30,
			ExitRSI:            70,
			ExitRSIScore:       45,
			ImmediateScore:     15,
			ImmediateRSI:       80,
			ImmediateADXFactor: 3,
		},
		Slippage: 0.001,
		Commission: Commission{
			Enabled: false,
			Rate:    0.0005,
			Minimum: 1.0,
		},
		MaxExposure:         0.95,
		MinPositionFraction: 0.001,
		Regimes: RegimeTable{
			WeakBelow:   20,
			StrongAbove: 40,
			Weak:        Regime{StopATR: 1.0, RiskScale: 0.5},
			Normal:      Regime{StopATR: 2.5, RiskScale: 1.0},
			Strong:      Regime{StopATR: 1.5, RiskScale: 1.2},
		},
		TakeProfitATR: 3.0,
		TrailingLock:  0.65,
		ProfitLock: ProfitLock{
			HighGain: 0.10,
			HighMult: 1.5,
			MidGain:  0.05,
			MidMult:  1.2,
		},
		PartialExitTrim:  0.05,
		PartialExitScore: 50,
		TimeExitTrim:     0.07,
		TimeExitScore:    50,
		Strength: StrengthTable{
			Hyper:      75,
			VeryStrong: 60,
			Strong:     45,
			Moderate:   30,
			Base:       1.2,
			ATRPenalty: 0.5,
		},
		ProfitRules: map[Strength][]ProfitRule{
			StrengthHyper:      {{Threshold: 2.0, Trim: 0.1}, {Threshold: 3.0, Trim: 0.2}},
			StrengthVeryStrong: {{Threshold: 1.5, Trim: 0.15}, {Threshold: 2.5, Trim: 0.25}},
			StrengthStrong:     {{Threshold: 1.2, Trim: 0.2}, {Threshold: 2.0, Trim: 0.3}},
			StrengthModerate:   {{Threshold: 1.0, Trim: 0.3}},
			StrengthWeak:       {{Threshold: 0.8, Trim: 0.5}},
		},
		EquityFloor: 1e-9,
	}
}

func (s Strategy) Validate() error {
	if s.InitialCapital <= 0 {
		return fmt.Errorf("%w: strategy.initial_capital must be positive", ErrInvalidConfig)
	}
	if s.TradingDays <= 0 {
		return fmt.Errorf("%w: strategy.trading_days must be positive", ErrInvalidConfig)
	}
	if s.Slippage < 0 || s.Slippage >= 1 {
		return fmt.Errorf("%w: strategy.slippage out of [0,1)", ErrInvalidConfig)
	}
	if s.MaxExposure <= 0 {
		return fmt.Errorf("%w: strategy.max_exposure must be positive", ErrInvalidConfig)
	}
	in := s.Indicators
	for name, v := range map[string]int{
		"fast_ma":             in.FastMA,
		"slow_ma":             in.SlowMA,
		"atr_period":          in.ATRPeriod,
		"adx_period":          in.ADXPeriod,
		"rsi_period":          in.RSIPeriod,
		"bb_period":           in.BBPeriod,
		"volume_ma_period":    in.VolumeMAPeriod,
		"vix_ma_period":       in.VIXMAPeriod,
		"momentum_lookback":   in.MomentumLookback,
		"volatility_lookback": in.VolatilityLookback,
	} {
		if v < 1 {
			return fmt.Errorf("%w: strategy.indicators.%s must be positive", ErrInvalidConfig, name)
		}
	}
	if s.EquityFloor <= 0 {
		return fmt.Errorf("%w: strategy.equity_floor must be positive", ErrInvalidConfig)
	}
	return nil
}
