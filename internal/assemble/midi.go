package assemble

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"renote/internal/notes"
)

// ticksPerQuarter resolves every subdivision in the default candidate set to
// an integer tick count.
const ticksPerQuarter = 480

const (
	trebleChannel = 0
	bassChannel   = 1
)

// MIDI controller numbers for the three piano pedals.
const (
	sustainController   = 64
	sostenutoController = 66
	softController      = 67
)

// Event classes at the same tick are emitted in this order so releases land
// before a retrigger and pedal presses capture notes struck with them.
const (
	rankPedalRelease = iota
	rankNoteOff
	rankPedalPress
	rankNoteOn
)

type trackEvent struct {
	tick uint32
	rank int
	msg  midi.Message
}

// RenderPreview renders the assembled score as a type 1 Standard MIDI File:
// track 0 carries the tempo map, tracks 1 and 2 the treble and bass staves.
// Notes are placed at their grid beats, so the render plays the renotation
// rather than the raw performance; pedal intervals become controller pairs
// under the bass staff on both staff channels.
func RenderPreview(doc ScoreDocument, beatsPerMeasure, program int) ([]byte, error) {
	if beatsPerMeasure <= 0 {
		beatsPerMeasure = 4
	}
	curve := notes.TempoCurve{Points: doc.TempoCurve}

	file := smf.New()
	file.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var tempoTrack smf.Track
	tempoTrack.Add(0, smf.MetaTrackSequenceName(doc.Title))
	tempoTrack.Add(0, smf.MetaMeter(meterByte(beatsPerMeasure), 4))
	tempoTrack.Add(0, smf.MetaTempo(curve.BPMAt(0)))
	prevTick := uint32(0)
	for _, point := range doc.TempoCurve {
		tick := beatTicks(curve.BeatAt(point.Time))
		if tick == 0 {
			// Covered by the initial tempo event.
			continue
		}
		tempoTrack.Add(tick-prevTick, smf.MetaTempo(point.BPM))
		prevTick = tick
	}
	tempoTrack.Close(0)
	file.Add(tempoTrack)

	var treble, bass []trackEvent
	for _, note := range doc.Notes {
		events := &treble
		channel := uint8(trebleChannel)
		if note.Staff == notes.StaffBass {
			events = &bass
			channel = bassChannel
		}
		onBeat := float64(note.Measure*beatsPerMeasure) + note.Beat.Float64()
		onTick := beatTicks(onBeat)
		offTick := beatTicks(onBeat + note.Duration.Float64())
		if offTick <= onTick {
			offTick = onTick + 1
		}
		key := clampByte(note.Pitch, 0, 127)
		velocity := clampByte(note.Velocity, 1, 127)
		*events = append(*events,
			trackEvent{tick: onTick, rank: rankNoteOn, msg: midi.NoteOn(channel, key, velocity)},
			trackEvent{tick: offTick, rank: rankNoteOff, msg: midi.NoteOff(channel, key)},
		)
	}
	for _, pedal := range doc.Pedals {
		controller := controllerFor(pedal.Kind)
		onTick := beatTicks(curve.BeatAt(pedal.Start))
		offTick := beatTicks(curve.BeatAt(pedal.End))
		if offTick <= onTick {
			continue
		}
		for _, channel := range []uint8{trebleChannel, bassChannel} {
			bass = append(bass,
				trackEvent{tick: onTick, rank: rankPedalPress, msg: midi.ControlChange(channel, controller, 127)},
				trackEvent{tick: offTick, rank: rankPedalRelease, msg: midi.ControlChange(channel, controller, 0)},
			)
		}
	}

	file.Add(staffTrack("Treble", trebleChannel, program, treble))
	file.Add(staffTrack("Bass", bassChannel, program, bass))

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("assemble: write preview midi: %w", err)
	}
	return buf.Bytes(), nil
}

func staffTrack(name string, channel uint8, program int, events []trackEvent) smf.Track {
	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName(name))
	track.Add(0, midi.ProgramChange(channel, clampByte(program, 0, 127)))

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return events[i].rank < events[j].rank
	})
	prev := uint32(0)
	for _, event := range events {
		track.Add(event.tick-prev, event.msg)
		prev = event.tick
	}
	track.Close(0)
	return track
}

func controllerFor(kind notes.PedalKind) uint8 {
	switch kind {
	case notes.PedalSostenuto:
		return sostenutoController
	case notes.PedalSoft:
		return softController
	default:
		return sustainController
	}
}

func beatTicks(beats float64) uint32 {
	ticks := math.Round(beats * ticksPerQuarter)
	if ticks < 0 {
		return 0
	}
	return uint32(ticks)
}

func clampByte(value, min, max int) uint8 {
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return uint8(value)
}

func meterByte(beatsPerMeasure int) uint8 {
	if beatsPerMeasure > 32 {
		beatsPerMeasure = 32
	}
	return uint8(beatsPerMeasure)
}
