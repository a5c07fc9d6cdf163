package gainstage

import (
	"fmt"
	"strings"

	"github.com/justyntemme/gainlink/pkg/dsp/gain"
	"github.com/justyntemme/gainlink/pkg/shared"
)

// Genre tags the material the coordinator is working on.
type Genre int

const (
	GenrePop Genre = iota
	GenreRock
	GenreHipHop
	GenreRnB
	GenreTrap
	GenreReggaeton
	GenreEDM
	GenreJazz
	GenreClassical
	GenrePodcast
	GenreLoFi
	GenreMetal
	GenreCountry
	GenreOther
)

// GenreNames are the display names, indexed by Genre.
var GenreNames = []string{
	"Pop", "Rock", "Hip-Hop", "R&B", "Trap", "Reggaeton", "EDM",
	"Jazz", "Classical", "Podcast", "Lo-Fi", "Metal", "Country", "Other",
}

// SourceType tags what an instance is processing.
type SourceType int

const (
	SourceLeadVocal SourceType = iota
	SourceBackgroundVocal
	SourceKick
	SourceSnare
	SourceHiHat
	SourceFullDrums
	SourceBass
	SourceElectricGuitar
	SourceAcousticGuitar
	SourceKeys
	SourceSynth
	SourceStrings
	SourceMixBus
	SourceMaster
)

// SourceNames are the display names, indexed by SourceType.
var SourceNames = []string{
	"Lead Vocal", "Background Vocal", "Kick", "Snare", "Hi-Hat", "Full Drums",
	"Bass", "Electric Guitar", "Acoustic Guitar", "Keys/Piano", "Synth",
	"Strings", "Mix Bus", "Master",
}

// Situation tags the stage of the production.
type Situation int

const (
	SituationTracking Situation = iota
	SituationEditing
	SituationMixing
	SituationMastering
)

// SituationNames are the display names, indexed by Situation.
var SituationNames = []string{"Tracking", "Editing", "Mixing", "Mastering"}

func nameOf(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("Unknown(%d)", i)
	}
	return names[i]
}

func (g Genre) String() string      { return nameOf(GenreNames, int(g)) }
func (s SourceType) String() string { return nameOf(SourceNames, int(s)) }
func (s Situation) String() string  { return nameOf(SituationNames, int(s)) }

// lookup matches name against names ignoring case, spaces and punctuation,
// so "hiphop", "Hip-Hop" and "hip hop" are the same.
func lookup(kind string, names []string, name string) (int, error) {
	key := normalizeName(name)
	for i, n := range names {
		if normalizeName(n) == key {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, name)
}

func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseGenre returns the genre with the given display name.
func ParseGenre(name string) (Genre, error) {
	i, err := lookup("genre", GenreNames, name)
	return Genre(i), err
}

// ParseSourceType returns the source type with the given display name.
func ParseSourceType(name string) (SourceType, error) {
	i, err := lookup("source", SourceNames, name)
	return SourceType(i), err
}

// ParseSituation returns the situation with the given display name.
func ParseSituation(name string) (Situation, error) {
	i, err := lookup("situation", SituationNames, name)
	return Situation(i), err
}

// Suggested target range.
const (
	SuggestMinDB = -36.0
	SuggestMaxDB = -6.0
)

// baseTargets are RMS targets per source type.
var baseTargets = [...]float64{
	SourceLeadVocal:       -18,
	SourceBackgroundVocal: -22,
	SourceKick:            -12,
	SourceSnare:           -14,
	SourceHiHat:           -20,
	SourceFullDrums:       -14,
	SourceBass:            -14,
	SourceElectricGuitar:  -18,
	SourceAcousticGuitar:  -20,
	SourceKeys:            -20,
	SourceSynth:           -16,
	SourceStrings:         -22,
	SourceMixBus:          -18,
	SourceMaster:          -14,
}

// SuggestTarget proposes an RMS target in dB for a source in a genre and
// production stage.
func SuggestTarget(src SourceType, g Genre, sit Situation) float64 {
	target := shared.DefaultTargetDB
	if src >= 0 && int(src) < len(baseTargets) {
		target = baseTargets[src]
	}

	switch g {
	case GenreTrap, GenreHipHop, GenreReggaeton:
		if src == SourceKick || src == SourceBass {
			target += 3
		}
		if g == GenreTrap && src == SourceLeadVocal {
			target = -16
		}
	case GenreEDM:
		target -= 2
	case GenreMetal:
		if src == SourceKick || src == SourceSnare || src == SourceFullDrums {
			target += 2
		}
	}

	switch sit {
	case SituationTracking:
		target -= 3
	case SituationMastering:
		target += 2
	}

	return gain.ClampDb(target, SuggestMinDB, SuggestMaxDB)
}
