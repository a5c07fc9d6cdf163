package param

import (
	"fmt"
	"strings"
)

// ChoiceOption represents a single choice in a list parameter
type ChoiceOption struct {
	Value   float64
	Name    string
	Aliases []string
}

// Choice creates a parameter builder for a multiple choice parameter
func Choice(id uint32, name string, options []ChoiceOption) *Builder {
	names := make([]string, len(options))
	for i, opt := range options {
		names[i] = opt.Name
	}

	formatter := func(value float64) string {
		for _, opt := range options {
			if opt.Value == value {
				return opt.Name
			}
		}
		// Fallback to index-based lookup for integer values
		index := int(value + 0.5)
		if index >= 0 && index < len(names) {
			return names[index]
		}
		return "Unknown"
	}

	parser := func(str string) (float64, error) {
		str = strings.TrimSpace(str)
		for _, opt := range options {
			if strings.EqualFold(str, opt.Name) {
				return opt.Value, nil
			}
			for _, alias := range opt.Aliases {
				if strings.EqualFold(str, alias) {
					return opt.Value, nil
				}
			}
		}
		return 0, fmt.Errorf("unknown option: %s", str)
	}

	minVal, maxVal := 0.0, 0.0
	if len(options) > 0 {
		minVal = options[0].Value
		maxVal = options[len(options)-1].Value
	}

	b := New(id, name).
		Range(minVal, maxVal).
		Steps(int32(len(options)-1)).
		Formatter(formatter, parser)
	b.param.Flags |= IsList
	if len(options) > 0 {
		b.Default(options[0].Value)
	}
	return b
}

// ChoiceNames builds options valued 0..n-1 from names.
func ChoiceNames(names ...string) []ChoiceOption {
	options := make([]ChoiceOption, len(names))
	for i, n := range names {
		options[i] = ChoiceOption{Value: float64(i), Name: n}
	}
	return options
}

// GainParameter creates a manual gain parameter (-24 to +12 dB)
func GainParameter(id uint32, name string) *Builder {
	return DecibelParameter(id, name, -24, 12, 0)
}

// DecibelParameter creates a level parameter in dB.
func DecibelParameter(id uint32, name string, minDB, maxDB, defaultDB float64) *Builder {
	return New(id, name).
		Range(minDB, maxDB).
		Default(defaultDB).
		Unit("dB").
		Formatter(func(v float64) string {
			return fmt.Sprintf("%.1f dB", v)
		}, DecibelParser)
}

// CeilingParameter creates a limiter ceiling parameter (-24 to 0 dB) where
// 0 dB means off.
func CeilingParameter(id uint32, name string) *Builder {
	return New(id, name).
		Range(-24, 0).
		Default(0).
		Unit("dB").
		Formatter(func(v float64) string {
			if v >= 0 {
				return "Off"
			}
			return fmt.Sprintf("%.1f dB", v)
		}, func(s string) (float64, error) {
			if strings.EqualFold(strings.TrimSpace(s), "off") {
				return 0, nil
			}
			return DecibelParser(s)
		})
}

// LoudnessParameter creates a loudness target parameter in LUFS.
func LoudnessParameter(id uint32, name string, defaultLUFS float64) *Builder {
	return New(id, name).
		Range(-36, -6).
		Default(defaultLUFS).
		Unit("LUFS").
		Formatter(func(v float64) string {
			return fmt.Sprintf("%.1f LUFS", v)
		}, func(s string) (float64, error) {
			s = strings.TrimSuffix(strings.TrimSpace(s), "LUFS")
			return DecibelParser(s)
		})
}

// AmountParameter creates an amount parameter (0-100%)
func AmountParameter(id uint32, name string, defaultPct float64) *Builder {
	return New(id, name).
		Range(0, 100).
		Default(defaultPct).
		Unit("%").
		Formatter(PercentFormatter, PercentParser)
}

// ToggleParameter creates an on/off switch.
func ToggleParameter(id uint32, name string, on bool) *Builder {
	return New(id, name).Toggle(on)
}
