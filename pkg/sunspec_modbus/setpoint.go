package sunspec_modbus

import (
	"errors"
	"math"
)

var ErrNoChargeRate = errors.New("sunspec: storage max charge rate unknown")

// storageRates is the SunSpec storage control register set for one setpoint.
// Rates are percent of WChaMax; a negative OutWRte forces charging and a
// negative InWRte forces discharging.
type storageRates struct {
	outWRte float64
	inWRte  float64
	control uint16
}

func setpointRates(sp Setpoint, maxChargeRateW float64) (storageRates, error) {
	if sp.Release {
		return storageRates{outWRte: 100, inWRte: 100, control: 0}, nil
	}
	if maxChargeRateW <= 0 {
		return storageRates{}, ErrNoChargeRate
	}
	pct := math.Min(math.Abs(sp.PowerW)/maxChargeRateW*100, 100)
	control := StorageControlCharge | StorageControlDischarge
	switch {
	case sp.PowerW > 0:
		return storageRates{outWRte: -pct, inWRte: pct, control: control}, nil
	case sp.PowerW < 0:
		return storageRates{outWRte: pct, inWRte: -pct, control: control}, nil
	default:
		return storageRates{outWRte: 0, inWRte: 0, control: control}, nil
	}
}

// registers encodes the rates with the device's InOutWRte scale factor.
func (r storageRates) registers(sf uint16) []uint16 {
	out := int16(math.Round(applySFInv(r.outWRte, sf)))
	in := int16(math.Round(applySFInv(r.inWRte, sf)))
	return []uint16{uint16(out), uint16(in)}
}
