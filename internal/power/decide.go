package power

// Limits are the thresholds of the control law, in Celsius.
type Limits struct {
	MaxHeater     float64 // heater temperature above which power is cut
	SafetyMargin  float64 // excess over MaxHeater that is reported as a fault
	HighCapMargin float64 // within this of MaxHeater, High is capped to Medium
	LowBand       float64 // deficits up to this use Low
	MidBand       float64 // deficits up to this use Medium; above, High
}

// DefaultLimits returns the built-in defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxHeater:     55,
		SafetyMargin:  2,
		HighCapMargin: 1,
		LowBand:       0.2,
		MidBand:       2,
	}
}

// Input is one control tick's view of the world.
type Input struct {
	Desired  float64 // NoValue if unknown
	Ambient  float64 // NoValue if unknown
	Heater   float64 // NoValue if unknown
	Override Level   // Auto for none
	Previous Level   // level chosen on the previous tick
}

// Decision is the chosen level and why.
type Decision struct {
	Level       Level
	Cutoff      bool // heater above MaxHeater
	OverTemp    bool // heater above MaxHeater+SafetyMargin
	Overridden  bool // manual override applied
	MissingData bool // previous level held for lack of data
	Capped      bool // High reduced to Medium near MaxHeater or with no heater reading
}

// Decide applies, in order: the safety cutoff, the manual override, the
// missing-data hold, and the normal control law. Without a heater reading
// the law never goes above Medium.
func Decide(in Input, lim Limits) Decision {
	heaterKnown := !Missing(in.Heater)

	if heaterKnown && in.Heater > lim.MaxHeater {
		return Decision{
			Level:    Off,
			Cutoff:   true,
			OverTemp: in.Heater > lim.MaxHeater+lim.SafetyMargin,
		}
	}

	if in.Override != Auto {
		return Decision{Level: in.Override, Overridden: true}
	}

	if Missing(in.Desired) || Missing(in.Ambient) {
		return Decision{Level: in.Previous, MissingData: true}
	}

	delta := in.Desired - in.Ambient
	switch {
	case in.Ambient > in.Desired:
		return Decision{Level: Off}
	case delta <= lim.LowBand:
		return Decision{Level: Low}
	case delta <= lim.MidBand:
		return Decision{Level: Medium}
	case !heaterKnown || in.Heater >= lim.MaxHeater-lim.HighCapMargin:
		return Decision{Level: Medium, Capped: true}
	default:
		return Decision{Level: High}
	}
}
