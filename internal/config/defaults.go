package config

const (
	defaultStagingDir               = "~/.local/share/renote/staging"
	defaultLibraryDir               = "~/scores"
	defaultLogDir                   = "~/.local/share/renote/logs"
	defaultWatchDir                 = ""
	defaultLogRetentionDays         = 14
	defaultLogFormat                = "auto"
	defaultLogLevel                 = "info"
	defaultOnsetWindowMS            = 40
	defaultSingletonConfidenceScale = 0.5
	defaultMinBPM                   = 20
	defaultMaxBPM                   = 300
	defaultFallbackBPM              = 120
	defaultSegmentPenalty           = 0.35
	defaultMaxRampBPMPerSec         = 30
	defaultComplexityWeight         = 0.002
	defaultTieEpsilonMS             = 3
	defaultMinDurationBeats         = 0.03125
	defaultBeatsPerMeasure          = 4
	defaultPedalMergeGapMS          = 80
	defaultPedalHysteresisMS        = 150
	defaultPedalHoldThresholdS      = 2.0
	defaultPedalResonanceOn         = 0.6
	defaultPedalResonanceOff        = 0.35
	defaultHandsSplitPoint          = 60
	defaultHandsMaxSpanSemitones    = 16
	defaultHandsSwitchPenalty       = 1.0
	defaultHandsCrossingPenalty     = 2.0
	defaultHandsRangeWeight         = 0.05
	defaultHandsRestResetS          = 1.0
	defaultQueuePollInterval        = 2
	defaultErrorRetryInterval       = 10
	defaultHeartbeatInterval        = 5
	defaultHeartbeatTimeout         = 30
	defaultWatchPollInterval        = 15
	defaultMIDIProgram              = 0
)

func defaultSubdivisions() []int {
	return []int{1, 2, 3, 4, 6, 8, 12, 16, 24, 32}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:      defaultStagingDir,
			LibraryDir:      defaultLibraryDir,
			LogDir:          defaultLogDir,
			WatchDir:        defaultWatchDir,
			FeatureCacheDir: defaultFeatureCacheDir(),
		},
		Merge: Merge{
			OnsetWindowMS:            defaultOnsetWindowMS,
			SingletonConfidenceScale: defaultSingletonConfidenceScale,
		},
		Tempo: Tempo{
			MinBPM:           defaultMinBPM,
			MaxBPM:           defaultMaxBPM,
			FallbackBPM:      defaultFallbackBPM,
			SegmentPenalty:   defaultSegmentPenalty,
			MaxRampBPMPerSec: defaultMaxRampBPMPerSec,
		},
		Quantize: Quantize{
			Subdivisions:     defaultSubdivisions(),
			ComplexityWeight: defaultComplexityWeight,
			TieEpsilonMS:     defaultTieEpsilonMS,
			MinDurationBeats: defaultMinDurationBeats,
			BeatsPerMeasure:  defaultBeatsPerMeasure,
		},
		Pedal: Pedal{
			MergeGapMS:     defaultPedalMergeGapMS,
			HysteresisMS:   defaultPedalHysteresisMS,
			HoldThresholdS: defaultPedalHoldThresholdS,
			ResonanceOn:    defaultPedalResonanceOn,
			ResonanceOff:   defaultPedalResonanceOff,
		},
		Hands: Hands{
			SplitPoint:       defaultHandsSplitPoint,
			MaxSpanSemitones: defaultHandsMaxSpanSemitones,
			SwitchPenalty:    defaultHandsSwitchPenalty,
			CrossingPenalty:  defaultHandsCrossingPenalty,
			RangeWeight:      defaultHandsRangeWeight,
			RestResetS:       defaultHandsRestResetS,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			WatchPollInterval:  defaultWatchPollInterval,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Output: Output{
			RenderMIDI:     true,
			MIDIProgram:    defaultMIDIProgram,
			PublishLibrary: true,
		},
	}
}
