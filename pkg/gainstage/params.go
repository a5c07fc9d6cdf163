package gainstage

import (
	"github.com/justyntemme/gainlink/pkg/framework/control"
	"github.com/justyntemme/gainlink/pkg/framework/param"
	"github.com/justyntemme/gainlink/pkg/shared"
)

// Parameter IDs. Both processors use the same ID for the same concept; each
// registers only the ones it has.
const (
	ParamGain uint32 = iota
	ParamTarget
	ParamCeiling
	ParamAutoEnabled
	ParamRiderAmount
	ParamSource

	// Coordinator only.
	ParamRiderEnabled
	ParamGenre
	ParamSituation
	ParamLoudnessTarget
	ParamLoudnessEnabled
)

const (
	minTargetDB = -48.0
	maxTargetDB = 0.0

	defaultRiderAmount = 50.0
)

// controlMapping maps control record fields onto parameter IDs.
var controlMapping = control.Mapping{
	Gain:        ParamGain,
	Target:      ParamTarget,
	Ceiling:     ParamCeiling,
	Auto:        ParamAutoEnabled,
	RiderAmount: ParamRiderAmount,
}

func targetParameter() *param.Parameter {
	return param.DecibelParameter(ParamTarget, "Target", minTargetDB, maxTargetDB, shared.DefaultTargetDB).
		ShortName("Target").
		Build()
}

func sourceParameter() *param.Parameter {
	return param.Choice(ParamSource, "Source", param.ChoiceNames(SourceNames...)).Build()
}

func participantParameters() []*param.Parameter {
	return []*param.Parameter{
		param.GainParameter(ParamGain, "Gain").Build(),
		targetParameter(),
		param.CeilingParameter(ParamCeiling, "Max Peak").Build(),
		param.ToggleParameter(ParamAutoEnabled, "Auto Gain", false).Build(),
		param.AmountParameter(ParamRiderAmount, "Rider Amount", 0).Build(),
		sourceParameter(),
	}
}

func coordinatorParameters() []*param.Parameter {
	return []*param.Parameter{
		param.GainParameter(ParamGain, "Gain").Build(),
		targetParameter(),
		param.CeilingParameter(ParamCeiling, "Max Peak").Build(),
		param.ToggleParameter(ParamAutoEnabled, "Auto Gain", true).Build(),
		param.AmountParameter(ParamRiderAmount, "Rider Amount", defaultRiderAmount).Build(),
		sourceParameter(),
		param.ToggleParameter(ParamRiderEnabled, "Vocal Rider", false).Build(),
		param.Choice(ParamGenre, "Genre", param.ChoiceNames(GenreNames...)).Build(),
		param.Choice(ParamSituation, "Situation", param.ChoiceNames(SituationNames...)).
			Default(float64(SituationMixing)).
			Build(),
		param.LoudnessParameter(ParamLoudnessTarget, "Loudness Target", shared.DefaultLoudnessTargetDB).Build(),
		param.ToggleParameter(ParamLoudnessEnabled, "Loudness Match", false).Build(),
	}
}

// manualSettings reads engine settings shared by both processors.
func manualSettings(p *param.Registry) Settings {
	return Settings{
		GainDB:      p.Plain(ParamGain),
		TargetDB:    p.Plain(ParamTarget),
		CeilingDB:   p.Plain(ParamCeiling),
		AutoEnabled: p.Bool(ParamAutoEnabled),
		RiderAmount: p.Plain(ParamRiderAmount),
	}
}
