package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-equity/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-equity/internal/naming"
	"github.com/rxtech-lab/argo-equity/internal/selector"
	"github.com/rxtech-lab/argo-equity/internal/types"
	"github.com/rxtech-lab/argo-equity/internal/version"
	"github.com/rxtech-lab/argo-equity/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SimConfig holds the strategy knobs of one simulation run. It is never mutated once a run starts.
type SimConfig struct {
	StdRisk              float64 `yaml:"std_risk" json:"std_risk" validate:"gt=0,lt=1" jsonschema:"title=Standard Risk,description=Risk unit used for the initial stop and the pyramiding trigger,default=0.05"`
	MaxStockList         int     `yaml:"max_stock_list" json:"max_stock_list" validate:"gt=0" jsonschema:"title=Max Stock List,description=Maximum number of concurrently open positions,default=10"`
	MaxSingleStockRatio  float64 `yaml:"max_single_stock_ratio" json:"max_single_stock_ratio" validate:"gt=0,lte=1" jsonschema:"title=Max Single Stock Ratio,description=Largest fraction of NAV a single position may reach,default=0.4"`
	PyramidingRatio      float64 `yaml:"pyramiding_ratio" json:"pyramiding_ratio" validate:"gte=0,lte=1" jsonschema:"title=Pyramiding Ratio,description=Fraction of NAV added to a winning position,default=0.1"`
	EnablePyramiding     bool    `yaml:"enable_pyramiding" json:"enable_pyramiding" jsonschema:"title=Enable Pyramiding,default=false"`
	EnableHalfSell       bool    `yaml:"enable_half_sell" json:"enable_half_sell" jsonschema:"title=Enable Half Sell,default=false"`
	MinLossCutPercentage float64 `yaml:"min_loss_cut_percentage" json:"min_loss_cut_percentage" validate:"gte=0,lt=1" jsonschema:"title=Minimum Loss Cut,description=The stop never sits below avg_price*(1-min_loss_cut_percentage),default=0.03"`
	CommissionRate       float64 `yaml:"commission_rate" json:"commission_rate" validate:"gte=0,lt=1" jsonschema:"title=Commission Rate,description=Commission as a fraction of traded notional,default=0.002"`
	Slippage             float64 `yaml:"slippage" json:"slippage" validate:"gte=0,lt=1" jsonschema:"title=Slippage,description=Slippage as a fraction of traded notional,default=0.001"`

	RankingMode            selector.RankingMode  `yaml:"ranking_mode" json:"ranking_mode" validate:"oneof=single multi" jsonschema:"title=Ranking Mode,default=single"`
	InitialMarketCondition types.MarketCondition `yaml:"initial_market_condition" json:"initial_market_condition" validate:"oneof=POOR MODERATE GOOD" jsonschema:"title=Initial Market Condition,default=MODERATE"`
	RegimeMinTrades        int                   `yaml:"regime_min_trades" json:"regime_min_trades" validate:"gte=0" jsonschema:"title=Regime Minimum Trades,description=Closed trades required before the regime is re-evaluated,default=5"`
	RegimeLookbackTrades   int                   `yaml:"regime_lookback_trades" json:"regime_lookback_trades" validate:"gte=0" jsonschema:"title=Regime Lookback,description=Most recent closed trades the regime looks at (0 for all),default=20"`
	MaxPyramidCount        int                   `yaml:"max_pyramid_count" json:"max_pyramid_count" validate:"gte=0" jsonschema:"title=Max Pyramid Count,default=2"`
	HalfSellGain           float64               `yaml:"half_sell_gain" json:"half_sell_gain" validate:"gt=0" jsonschema:"title=Half Sell Gain,description=Gain over average price that triggers a half sell,default=0.2"`
	ADRWindow              int                   `yaml:"adr_window" json:"adr_window" validate:"gt=0" jsonschema:"title=ADR Window,description=Bars used when the data carries no adr column,default=20"`
	MinLotShares           int64                 `yaml:"min_lot_shares" json:"min_lot_shares" validate:"gt=0" jsonschema:"title=Minimum Lot,default=100"`
	MaxCashPerEntry        float64               `yaml:"max_cash_per_entry" json:"max_cash_per_entry" validate:"gt=0,lte=1" jsonschema:"title=Max Cash Per Entry,description=Largest fraction of cash one buy may spend,default=0.2"`
	MarkStalePositions     bool                  `yaml:"mark_stale_positions" json:"mark_stale_positions" jsonschema:"title=Mark Stale Positions,description=Mark unquoted positions at their last close instead of zero,default=false"`
}

// DefaultSimConfig returns the strategy defaults.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		StdRisk:                0.05,
		MaxStockList:           10,
		MaxSingleStockRatio:    0.4,
		PyramidingRatio:        0.1,
		EnablePyramiding:       false,
		EnableHalfSell:         false,
		MinLossCutPercentage:   0.03,
		CommissionRate:         0.002,
		Slippage:               0.001,
		RankingMode:            selector.RankingModeSingle,
		InitialMarketCondition: types.MarketConditionModerate,
		RegimeMinTrades:        5,
		RegimeLookbackTrades:   20,
		MaxPyramidCount:        2,
		HalfSellGain:           0.2,
		ADRWindow:              20,
		MinLotShares:           100,
		MaxCashPerEntry:        0.2,
		MarkStalePositions:     false,
	}
}

// Validate reports the first invalid parameter as an ErrCodeInvalidConfiguration error.
func (c SimConfig) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}

	if c.CommissionRate+c.Slippage >= 1 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"invalid configuration: commission_rate + slippage must be below 1 (got %v)", c.CommissionRate+c.Slippage)
	}

	return nil
}

type BacktestEngineV1Config struct {
	Version        string                     `yaml:"version" json:"version" jsonschema:"title=Version,description=Engine version the configuration was written for"`
	InitialCapital float64                    `yaml:"initial_capital" json:"initial_capital" validate:"gt=0" jsonschema:"title=Initial Capital,description=Starting cash of the portfolio,minimum=0"`
	Broker         commission_fee.Broker      `yaml:"broker" json:"broker" validate:"oneof=percentage zero_commission" jsonschema:"title=Broker,description=The broker to use for commission calculations"`
	StartTime      optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional start time for the backtest period"`
	EndTime        optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional end time for the backtest period"`
	Market         naming.Market              `yaml:"market" json:"market" validate:"oneof=US KRX" jsonschema:"title=Market,description=Ticker naming convention of the data"`
	Workers        int                        `yaml:"workers" json:"workers" validate:"gt=0" jsonschema:"title=Workers,description=Concurrent series loads,default=4"`
	FetchTimeout   time.Duration              `yaml:"fetch_timeout" json:"fetch_timeout" validate:"gte=0" jsonschema:"title=Fetch Timeout,description=Per-series load timeout (0 disables it)"`

	SimConfig `yaml:",inline"`
}

// UnmarshalYAML fills the fields present in the document on top of the defaults.
func (c *BacktestEngineV1Config) UnmarshalYAML(value *yaml.Node) error {
	type Config struct {
		Version        string                `yaml:"version"`
		InitialCapital float64               `yaml:"initial_capital"`
		Broker         commission_fee.Broker `yaml:"broker"`
		StartTime      *time.Time            `yaml:"start_time"`
		EndTime        *time.Time            `yaml:"end_time"`
		Market         naming.Market         `yaml:"market"`
		Workers        int                   `yaml:"workers"`
		FetchTimeout   time.Duration         `yaml:"fetch_timeout"`
		SimConfig      `yaml:",inline"`
	}

	defaults := EmptyConfig()
	config := Config{
		Version:        defaults.Version,
		InitialCapital: defaults.InitialCapital,
		Broker:         defaults.Broker,
		StartTime:      nil,
		EndTime:        nil,
		Market:         defaults.Market,
		Workers:        defaults.Workers,
		FetchTimeout:   defaults.FetchTimeout,
		SimConfig:      defaults.SimConfig,
	}

	if err := value.Decode(&config); err != nil {
		return err
	}

	c.Version = config.Version
	c.InitialCapital = config.InitialCapital
	c.Broker = config.Broker
	c.Market = naming.Market(strings.ToUpper(string(config.Market)))
	c.Workers = config.Workers
	c.FetchTimeout = config.FetchTimeout
	c.SimConfig = config.SimConfig
	c.RankingMode = selector.RankingMode(strings.ToLower(string(c.RankingMode)))
	c.InitialMarketCondition = types.MarketCondition(strings.ToUpper(string(c.InitialMarketCondition)))

	c.StartTime = optional.None[time.Time]()
	if config.StartTime != nil {
		c.StartTime = optional.Some(*config.StartTime)
	}

	c.EndTime = optional.None[time.Time]()
	if config.EndTime != nil {
		c.EndTime = optional.Some(*config.EndTime)
	}

	return nil
}

// ParseConfig decodes and validates a YAML configuration.
func ParseConfig(content string) (BacktestEngineV1Config, error) {
	config := EmptyConfig()

	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return BacktestEngineV1Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse configuration", err)
	}

	if err := config.Validate(); err != nil {
		return BacktestEngineV1Config{}, err
	}

	return config, nil
}

// Validate checks every parameter and the config version. The first problem found is
// returned as an ErrCodeInvalidConfiguration error naming the parameter.
func (c BacktestEngineV1Config) Validate() error {
	if c.Version != "" {
		if err := version.CheckVersionCompatibility(version.GetVersion(), c.Version); err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid configuration: version %s is not supported", c.Version)
		}
	}

	if err := validateStruct(c); err != nil {
		return err
	}

	if c.StartTime.IsSome() && c.EndTime.IsSome() && c.EndTime.Unwrap().Before(c.StartTime.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidConfiguration, "invalid configuration: end_time must not be before start_time")
	}

	return c.SimConfig.Validate()
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}

		return name
	})

	return v
}

func validateStruct(s any) error {
	err := configValidator.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fieldErr := validationErrors[0]

		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"invalid configuration: %s must satisfy %s (got %v)",
			fieldErr.Field(), constraint(fieldErr), fieldErr.Value())
	}

	return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
}

func constraint(fieldErr validator.FieldError) string {
	if fieldErr.Param() == "" {
		return fieldErr.Tag()
	}

	return fieldErr.Tag() + "=" + fieldErr.Param()
}

// GenerateSchema generates a JSON schema for the BacktestEngineV1Config
func (c *BacktestEngineV1Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			switch t {
			case reflect.TypeOf(optional.Option[time.Time]{}):
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			case reflect.TypeOf(time.Duration(0)):
				return &jsonschema.Schema{
					Type:        "string",
					Description: "Go duration such as 30s or 2m",
				}
			case reflect.TypeOf(commission_fee.Broker("")):
				return &jsonschema.Schema{
					Type: "string",
					Enum: commission_fee.AllBrokers,
				}
			case reflect.TypeOf(naming.Market("")):
				return &jsonschema.Schema{
					Type: "string",
					Enum: toAny(naming.AllMarkets),
				}
			case reflect.TypeOf(selector.RankingMode("")):
				return &jsonschema.Schema{
					Type: "string",
					Enum: toAny(selector.AllRankingModes),
				}
			case reflect.TypeOf(types.MarketCondition("")):
				return &jsonschema.Schema{
					Type: "string",
					Enum: []any{types.MarketConditionPoor, types.MarketConditionModerate, types.MarketConditionGood},
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "backtest-engine-v1-config"
	schema.Description = "Configuration schema for BacktestEngineV1"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the BacktestEngineV1Config
func (c *BacktestEngineV1Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

func toAny[T any](values []T) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}

	return out
}

// TestConfig returns a valid configuration over a fixed period for tests.
func TestConfig(startTime time.Time, endTime time.Time, broker commission_fee.Broker) BacktestEngineV1Config {
	config := EmptyConfig()
	config.InitialCapital = 100_000_000
	config.Broker = broker
	config.StartTime = optional.Some(startTime)
	config.EndTime = optional.Some(endTime)

	return config
}

// EmptyConfig returns a BacktestEngineV1Config with default values and no capital.
func EmptyConfig() BacktestEngineV1Config {
	return BacktestEngineV1Config{
		Version:        "",
		InitialCapital: 0,
		Broker:         commission_fee.BrokerPercentage,
		StartTime:      optional.None[time.Time](),
		EndTime:        optional.None[time.Time](),
		Market:         naming.MarketUS,
		Workers:        4,
		FetchTimeout:   0,
		SimConfig:      DefaultSimConfig(),
	}
}

func (c BacktestEngineV1Config) String() string {
	return fmt.Sprintf("capital=%v broker=%s market=%s max_stock_list=%d ranking=%s",
		c.InitialCapital, c.Broker, c.Market, c.MaxStockList, c.RankingMode)
}
