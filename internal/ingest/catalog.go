package ingest

import "github.com/aristath/macroscope/internal/domain"

// Pair names two indicators whose correlation matrix cell is refreshed after
// each batch run.
type Pair struct {
	AssetKey string
	BaseKey  string
}

// DefaultCatalog is the built-in indicator catalog. Sources are listed in
// priority order; the resolver walks them until one yields data.
func DefaultCatalog() []domain.IndicatorSpec {
	return []domain.IndicatorSpec{
		{
			Key:       "cpi_yoy",
			Name:      "Consumer Price Index YoY",
			Frequency: domain.FrequencyMonthly,
			Unit:      "%",
			Transform: domain.TransformYoY,
			Sources: []domain.SourceRef{
				{Provider: "fred", NativeID: "CPIAUCSL"},
				{Provider: "dbnomics", NativeID: "BLS/cu/CUUR0000SA0"},
				{Provider: "tradingecon", NativeID: "united states:consumer price index cpi"},
			},
		},
		{
			Key:       "unemployment_rate",
			Name:      "Unemployment Rate",
			Frequency: domain.FrequencyMonthly,
			Unit:      "%",
			Sources: []domain.SourceRef{
				{Provider: "fred", NativeID: "UNRATE"},
				{Provider: "dbnomics", NativeID: "BLS/ln/LNS14000000"},
				{Provider: "tradingecon", NativeID: "united states:unemployment rate"},
			},
		},
		{
			Key:       "gdp_qoq",
			Name:      "Real GDP QoQ",
			Frequency: domain.FrequencyQuarterly,
			Unit:      "%",
			Transform: domain.TransformQoQRatio,
			Sources: []domain.SourceRef{
				{Provider: "fred", NativeID: "GDPC1"},
				{Provider: "dbnomics", NativeID: "BEA/NIPA-T10106/A191RX-Q"},
			},
		},
		{
			Key:       "fed_funds_rate",
			Name:      "Federal Funds Effective Rate",
			Frequency: domain.FrequencyDaily,
			Unit:      "%",
			Sources: []domain.SourceRef{
				{Provider: "fred", NativeID: "DFF"},
			},
		},
		{
			Key:       "treasury_10y",
			Name:      "10-Year Treasury Yield",
			Frequency: domain.FrequencyDaily,
			Unit:      "%",
			Sources: []domain.SourceRef{
				{Provider: "fred", NativeID: "DGS10"},
				{Provider: "tradingecon", NativeID: "united states:government bond 10y"},
			},
		},
		{
			Key:       "consumer_sentiment",
			Name:      "Consumer Sentiment",
			Frequency: domain.FrequencyMonthly,
			Unit:      "index",
			Sources: []domain.SourceRef{
				{Provider: "fred", NativeID: "UMCSENT"},
				{Provider: "tradingecon", NativeID: "united states:consumer confidence"},
			},
		},
		{
			Key:       "industrial_production_yoy",
			Name:      "Industrial Production YoY",
			Frequency: domain.FrequencyMonthly,
			Unit:      "%",
			Transform: domain.TransformYoY,
			Sources: []domain.SourceRef{
				{Provider: "fred", NativeID: "INDPRO"},
				{Provider: "dbnomics", NativeID: "FED/G17/IP.B50001.S"},
			},
		},
		{
			Key:       "sp500",
			Name:      "S&P 500",
			Frequency: domain.FrequencyDaily,
			Unit:      "index",
			Sources: []domain.SourceRef{
				{Provider: "fred", NativeID: "SP500"},
			},
		},
		{
			Key:       "wti_crude",
			Name:      "WTI Crude Oil Price",
			Frequency: domain.FrequencyDaily,
			Unit:      "USD/bbl",
			Sources: []domain.SourceRef{
				{Provider: "fred", NativeID: "DCOILWTICO"},
				{Provider: "tradingecon", NativeID: "commodity:crude oil"},
			},
		},
		{
			Key:       "eurusd",
			Name:      "EUR/USD Exchange Rate",
			Frequency: domain.FrequencyDaily,
			Unit:      "rate",
			Sources: []domain.SourceRef{
				{Provider: "fred", NativeID: "DEXUSEU"},
				{Provider: "dbnomics", NativeID: "ECB/EXR/D.USD.EUR.SP00.A"},
			},
		},
	}
}

// DefaultPairs is the correlation matrix refreshed after each batch run.
// Daily market series against each other; macro releases are too sparse for
// daily-return correlation.
func DefaultPairs() []Pair {
	return []Pair{
		{AssetKey: "sp500", BaseKey: "treasury_10y"},
		{AssetKey: "sp500", BaseKey: "wti_crude"},
		{AssetKey: "sp500", BaseKey: "eurusd"},
		{AssetKey: "wti_crude", BaseKey: "eurusd"},
		{AssetKey: "treasury_10y", BaseKey: "fed_funds_rate"},
	}
}
