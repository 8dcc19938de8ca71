package sources

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"

	"renote/internal/notes"
	"renote/internal/session"
)

// sustainController is the MIDI CC number for the sustain pedal. Values at or
// above sustainThreshold mean the pedal is down.
const (
	sustainController = 64
	sustainThreshold  = 64
)

// ParseSMFStream ingests a `<model>.mid` render when no JSON output exists
// for the model. Note on/off pairs become note events with the file's own
// velocities and a fixed confidence, CC64 messages become sustain intervals,
// and tempo meta events are kept as the stream's claimed tempo curve.
func ParseSMFStream(path, model string) (session.Stream, ParseStats, []notes.Diagnostic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Stream{}, ParseStats{}, nil, fmt.Errorf("read stream: %w", err)
	}
	doc, err := readSMF(data)
	if err != nil {
		return session.Stream{}, ParseStats{}, nil, fmt.Errorf("decode stream %s: %w", filepath.Base(path), err)
	}

	model = normalizeModel(model)
	stream := session.Stream{Model: model}
	var stats ParseStats
	var diags []notes.Diagnostic

	type slot struct {
		channel uint8
		key     uint8
	}
	type openNote struct {
		onset    float64
		velocity uint8
	}

	noteIndex := 0
	emit := func(key uint8, open openNote, offset float64) {
		if offset <= open.onset {
			stats.Dropped++
			return
		}
		stream.Notes = append(stream.Notes, notes.NoteEvent{
			ID:         fmt.Sprintf("%s_%d", model, noteIndex),
			Pitch:      int(key),
			Onset:      open.onset,
			Offset:     offset,
			Velocity:   int(open.velocity),
			Confidence: defaultConfidence,
			Provenance: []string{model},
		})
		noteIndex++
	}

	for trackIdx, track := range doc.Tracks {
		pressed := make(map[slot]openNote)
		var sustainStart float64
		sustainDown := false
		var absTicks int64
		var lastTime float64

		for _, event := range track {
			absTicks += int64(event.Delta)
			// TimeAt reports microseconds from the start of the file.
			at := float64(doc.TimeAt(absTicks)) / 1e6
			lastTime = at

			var channel, key, velocity uint8
			var controller, value uint8
			var bpm float64
			switch {
			case event.Message.GetNoteOn(&channel, &key, &velocity):
				s := slot{channel: channel, key: key}
				if open, ok := pressed[s]; ok {
					// Retrigger without a note off closes the prior note.
					emit(key, open, at)
					delete(pressed, s)
				}
				if velocity == 0 {
					continue
				}
				stats.Seen++
				pressed[s] = openNote{onset: at, velocity: velocity}
			case event.Message.GetNoteOff(&channel, &key, &velocity):
				s := slot{channel: channel, key: key}
				if open, ok := pressed[s]; ok {
					emit(key, open, at)
					delete(pressed, s)
				}
			case event.Message.GetControlChange(&channel, &controller, &value):
				if controller != sustainController {
					continue
				}
				if value >= sustainThreshold {
					if !sustainDown {
						sustainDown = true
						sustainStart = at
					}
				} else if sustainDown {
					sustainDown = false
					if at > sustainStart {
						stream.Pedals = append(stream.Pedals, notes.PedalEvent{
							Kind:       notes.PedalSustain,
							Start:      sustainStart,
							End:        at,
							Confidence: defaultConfidence,
						})
					}
				}
			case event.Message.GetMetaTempo(&bpm):
				if bpm > 0 {
					stream.Tempo = append(stream.Tempo, notes.TempoPoint{Time: at, BPM: bpm})
				}
			}
		}

		// Sorted drain keeps note ids stable across runs.
		hanging := make([]slot, 0, len(pressed))
		for s := range pressed {
			hanging = append(hanging, s)
		}
		sort.Slice(hanging, func(i, j int) bool {
			if hanging[i].channel != hanging[j].channel {
				return hanging[i].channel < hanging[j].channel
			}
			return hanging[i].key < hanging[j].key
		})
		for _, s := range hanging {
			emit(s.key, pressed[s], lastTime)
			diags = append(diags, notes.Diagnostic{
				Stage:   "load",
				Source:  model,
				NoteRef: fmt.Sprintf("track %d pitch %d", trackIdx, s.key),
				Message: "note on without matching note off; closed at end of track",
			})
		}
		if sustainDown && lastTime > sustainStart {
			stream.Pedals = append(stream.Pedals, notes.PedalEvent{
				Kind:       notes.PedalSustain,
				Start:      sustainStart,
				End:        lastTime,
				Confidence: defaultConfidence,
			})
		}
	}

	notes.SortEvents(stream.Notes)
	notes.SortPedals(stream.Pedals)
	return stream, stats, diags, nil
}

// readSMF decodes raw SMF bytes. The reader can panic on truncated files, so
// the panic is converted into an ordinary decode error.
func readSMF(data []byte) (doc *smf.SMF, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("malformed midi file: %v", r)
		}
	}()
	return smf.ReadFrom(bytes.NewReader(data))
}
