package gainstage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestTarget(t *testing.T) {
	tests := []struct {
		name string
		src  SourceType
		g    Genre
		sit  Situation
		want float64
	}{
		{"vocal pop mix", SourceLeadVocal, GenrePop, SituationMixing, -18},
		{"kick pop mix", SourceKick, GenrePop, SituationMixing, -12},
		{"trap kick", SourceKick, GenreTrap, SituationMixing, -9},
		{"hip-hop bass", SourceBass, GenreHipHop, SituationMixing, -11},
		{"trap vocal", SourceLeadVocal, GenreTrap, SituationMixing, -16},
		{"edm synth", SourceSynth, GenreEDM, SituationMixing, -18},
		{"metal snare", SourceSnare, GenreMetal, SituationMixing, -12},
		{"metal guitar", SourceElectricGuitar, GenreMetal, SituationMixing, -18},
		{"tracking strings", SourceStrings, GenreClassical, SituationTracking, -25},
		{"mastering master", SourceMaster, GenrePop, SituationMastering, -12},
		{"unknown source", SourceType(99), GenrePop, SituationEditing, -18},
		{"trap kick mastering", SourceKick, GenreTrap, SituationMastering, -7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestTarget(tt.src, tt.g, tt.sit))
		})
	}
}

func TestSuggestTargetStaysInRange(t *testing.T) {
	for src := range SourceNames {
		for g := range GenreNames {
			for sit := range SituationNames {
				got := SuggestTarget(SourceType(src), Genre(g), Situation(sit))
				assert.GreaterOrEqual(t, got, SuggestMinDB)
				assert.LessOrEqual(t, got, SuggestMaxDB)
			}
		}
	}
}

func TestParseNames(t *testing.T) {
	g, err := ParseGenre("hip hop")
	require.NoError(t, err)
	assert.Equal(t, GenreHipHop, g)

	g, err = ParseGenre("r&b")
	require.NoError(t, err)
	assert.Equal(t, GenreRnB, g)

	src, err := ParseSourceType("keys/piano")
	require.NoError(t, err)
	assert.Equal(t, SourceKeys, src)

	sit, err := ParseSituation("MASTERING")
	require.NoError(t, err)
	assert.Equal(t, SituationMastering, sit)

	_, err = ParseGenre("polka")
	assert.Error(t, err)

	assert.Equal(t, "Lo-Fi", GenreLoFi.String())
	assert.Equal(t, "Unknown(20)", SourceType(20).String())
}
