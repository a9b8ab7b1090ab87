package units

import (
	"fmt"
	"strings"
	"time"

	"amr-charts/internal/energy"
)

// Unit is a y-axis unit.
type Unit string

const (
	KWh            Unit = "kwh"
	KW             Unit = "kw"
	EconomicCost   Unit = "economic_cost"
	AccountingCost Unit = "accounting_cost"
	CO2            Unit = "co2"
)

var aliases = map[string]Unit{
	"kwh":             KWh,
	"kw":              KW,
	"economic_cost":   EconomicCost,
	"£":               EconomicCost,
	"gbp":             EconomicCost,
	"accounting_cost": AccountingCost,
	"£current":        AccountingCost,
	"co2":             CO2,
	"kg_co2":          CO2,
}

// Parse resolves a unit name or alias.
func Parse(s string) (Unit, error) {
	u, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", &energy.InvalidConfigError{Field: "yaxis_units", Reason: fmt.Sprintf("unknown unit %q", s)}
	}
	return u, nil
}

// IsCost reports whether the unit is priced through a tariff.
func (u Unit) IsCost() bool {
	return u == EconomicCost || u == AccountingCost
}

// Label is the axis caption.
func (u Unit) Label() string {
	switch u {
	case KW:
		return "kW"
	case EconomicCost, AccountingCost:
		return "£"
	case CO2:
		return "kg CO2"
	}
	return "kWh"
}

// DefaultEmissionFactors are kg CO2 per kWh.
var DefaultEmissionFactors = map[energy.FuelType]float64{
	energy.Electricity:   0.2,
	energy.StorageHeater: 0.2,
	energy.Gas:           0.21,
	energy.SolarPV:       0,
}

// DefaultRates are £ per kWh used when a meter has no tariff.
var DefaultRates = map[energy.FuelType]float64{
	energy.Electricity:   0.15,
	energy.StorageHeater: 0.15,
	energy.Gas:           0.03,
	energy.SolarPV:       0.15,
}

// Converter turns raw half-hourly kWh into chart units.
type Converter struct {
	Tariffs         energy.TariffCostModel
	EmissionFactors map[energy.FuelType]float64
	Rates           map[energy.FuelType]float64
}

// NewConverter uses the default factors and rates; tariffs may be nil.
func NewConverter(tariffs energy.TariffCostModel) Converter {
	return Converter{Tariffs: tariffs, EmissionFactors: DefaultEmissionFactors, Rates: DefaultRates}
}

// Convert returns the day's values per slot in unit. Costs are weighted per slot before any summing;
// kW is returned as kWh and scaled once bucket sample counts are known.
func (c Converter) Convert(unit Unit, meterID string, fuel energy.FuelType, date time.Time, kwh energy.HalfHourly) (energy.HalfHourly, error) {
	switch unit {
	case KWh, KW:
		return kwh, nil
	case CO2:
		f := c.EmissionFactors[fuel]
		var out energy.HalfHourly
		for i, v := range kwh {
			out[i] = v * f
		}
		return out, nil
	case EconomicCost, AccountingCost:
		parts, err := c.Components(unit, meterID, fuel, date, kwh)
		if err != nil {
			return energy.HalfHourly{}, err
		}
		var out energy.HalfHourly
		for _, p := range parts {
			for i, v := range p {
				out[i] += v
			}
		}
		return out, nil
	}
	return energy.HalfHourly{}, &energy.InvalidConfigError{Field: "yaxis_units", Reason: fmt.Sprintf("unsupported unit %q", unit)}
}

// Components splits a day's cost into tariff components.
func (c Converter) Components(unit Unit, meterID string, fuel energy.FuelType, date time.Time, kwh energy.HalfHourly) (map[string]energy.HalfHourly, error) {
	if !unit.IsCost() {
		return nil, &energy.InvalidConfigError{Field: "series_breakdown", Reason: fmt.Sprintf("tariff components need a cost unit, got %q", unit)}
	}
	if c.Tariffs == nil {
		var out energy.HalfHourly
		rate := c.Rates[fuel]
		for i, v := range kwh {
			out[i] = v * rate
		}
		return map[string]energy.HalfHourly{FlatRate: out}, nil
	}
	parts, err := c.Tariffs.Costs(meterID, fuel, date, kwh, unit == AccountingCost)
	if err != nil {
		return nil, fmt.Errorf("pricing meter %s on %s: %w", meterID, date.Format(time.DateOnly), err)
	}
	return parts, nil
}

// ComponentNames lists the cost components a meter can produce over r.
func (c Converter) ComponentNames(unit Unit, meterID string, fuel energy.FuelType, r energy.DateRange) []string {
	if c.Tariffs == nil {
		return []string{FlatRate}
	}
	return c.Tariffs.Components(meterID, fuel, r, unit == AccountingCost)
}

// FlatRate is the component name used when no tariff is configured.
const FlatRate = "Flat Rate"

// Annual converts a yearly kWh figure using the default rates and factors; used for reference schools.
func (c Converter) Annual(unit Unit, fuel energy.FuelType, kwh float64) (float64, error) {
	switch unit {
	case KWh:
		return kwh, nil
	case CO2:
		return kwh * c.EmissionFactors[fuel], nil
	case EconomicCost, AccountingCost:
		return kwh * c.Rates[fuel], nil
	}
	return 0, &energy.InvalidConfigError{Field: "yaxis_units", Reason: fmt.Sprintf("annual figures cannot be expressed in %q", unit)}
}

// TemperatureAdjust rescales a day's heating kWh to what the model predicts at reference degrees.
func TemperatureAdjust(model energy.HeatingModel, date time.Time, actualTemp, reference float64, kwh energy.HalfHourly) (energy.HalfHourly, error) {
	predictedActual, err := model.PredictedKWh(date, actualTemp)
	if err != nil {
		return energy.HalfHourly{}, err
	}
	if predictedActual == 0 {
		return energy.HalfHourly{}, &energy.ZeroDenominatorError{Quantity: fmt.Sprintf("predicted kWh on %s", date.Format(time.DateOnly))}
	}
	predictedRef, err := model.PredictedKWh(date, reference)
	if err != nil {
		return energy.HalfHourly{}, err
	}
	factor := predictedRef / predictedActual
	var out energy.HalfHourly
	for i, v := range kwh {
		out[i] = v * factor
	}
	return out, nil
}

// KWFromKWh turns an accumulated bucket into a demand figure. Half-hour buckets count slot samples and
// give mean kW; day-level buckets count days and give the mean half-hourly kWh. A bucket with no samples
// has no value.
func KWFromKWh(kwh float64, samples int, perHalfHour bool) (float64, bool) {
	if samples == 0 {
		return 0, false
	}
	if perHalfHour {
		return 2 * kwh / float64(samples), true
	}
	return kwh / float64(samples*energy.SlotsPerDay), true
}
