package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateTempo(); err != nil {
		return err
	}
	if err := c.validateQuantize(); err != nil {
		return err
	}
	if err := c.validatePedal(); err != nil {
		return err
	}
	if err := c.validateHands(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Output.PublishLibrary && strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set when output.publish_library is true")
	}
	return nil
}

func (c *Config) validateMerge() error {
	if c.Merge.OnsetWindowMS < 5 || c.Merge.OnsetWindowMS > 200 {
		return errors.New("merge.onset_window_ms must be between 5 and 200")
	}
	if c.Merge.SingletonConfidenceScale < 0 || c.Merge.SingletonConfidenceScale > 1 {
		return errors.New("merge.singleton_confidence_scale must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateTempo() error {
	if c.Tempo.MinBPM <= 0 {
		return errors.New("tempo.min_bpm must be positive")
	}
	if c.Tempo.MaxBPM <= c.Tempo.MinBPM {
		return errors.New("tempo.max_bpm must be greater than tempo.min_bpm")
	}
	if c.Tempo.FallbackBPM < c.Tempo.MinBPM || c.Tempo.FallbackBPM > c.Tempo.MaxBPM {
		return errors.New("tempo.fallback_bpm must lie between tempo.min_bpm and tempo.max_bpm")
	}
	if c.Tempo.SegmentPenalty <= 0 {
		return errors.New("tempo.segment_penalty must be positive")
	}
	if c.Tempo.MaxRampBPMPerSec <= 0 {
		return errors.New("tempo.max_ramp_bpm_per_s must be positive")
	}
	return nil
}

func (c *Config) validateQuantize() error {
	if len(c.Quantize.Subdivisions) == 0 {
		return errors.New("quantize.subdivisions must include at least one positive value")
	}
	if c.Quantize.ComplexityWeight < 0 {
		return errors.New("quantize.complexity_weight must be >= 0")
	}
	if c.Quantize.TieEpsilonMS < 0 {
		return errors.New("quantize.tie_epsilon_ms must be >= 0")
	}
	if c.Quantize.MinDurationBeats <= 0 {
		return errors.New("quantize.min_duration_beats must be positive")
	}
	if c.Quantize.BeatsPerMeasure < 1 {
		return errors.New("quantize.beats_per_measure must be >= 1")
	}
	return nil
}

func (c *Config) validatePedal() error {
	if c.Pedal.MergeGapMS < 0 {
		return errors.New("pedal.merge_gap_ms must be >= 0")
	}
	if c.Pedal.HysteresisMS < 0 {
		return errors.New("pedal.hysteresis_ms must be >= 0")
	}
	if c.Pedal.HoldThresholdS <= 0 {
		return errors.New("pedal.hold_threshold_s must be positive")
	}
	if c.Pedal.ResonanceOn <= 0 || c.Pedal.ResonanceOn > 1 {
		return errors.New("pedal.resonance_on must be between 0 and 1")
	}
	if c.Pedal.ResonanceOff < 0 || c.Pedal.ResonanceOff >= 1 {
		return errors.New("pedal.resonance_off must be between 0 and 1")
	}
	if c.Pedal.ResonanceOn <= c.Pedal.ResonanceOff {
		return errors.New("pedal.resonance_on must be greater than pedal.resonance_off")
	}
	return nil
}

func (c *Config) validateHands() error {
	if c.Hands.SplitPoint < 21 || c.Hands.SplitPoint > 108 {
		return errors.New("hands.split_point must be a piano key between 21 and 108")
	}
	if c.Hands.MaxSpanSemitones < 1 {
		return errors.New("hands.max_span_semitones must be >= 1")
	}
	if c.Hands.SwitchPenalty < 0 {
		return errors.New("hands.switch_penalty must be >= 0")
	}
	if c.Hands.CrossingPenalty < 0 {
		return errors.New("hands.crossing_penalty must be >= 0")
	}
	if c.Hands.RangeWeight < 0 {
		return errors.New("hands.range_weight must be >= 0")
	}
	if c.Hands.RestResetS < 0 {
		return errors.New("hands.rest_reset_s must be >= 0")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.watch_poll_interval":  c.Workflow.WatchPollInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	for stage, level := range c.Logging.StageOverrides {
		switch strings.ToLower(strings.TrimSpace(level)) {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.stage_overrides.%s must be one of debug, info, warn, error", stage)
		}
	}
	return nil
}

func (c *Config) validateOutput() error {
	if c.Output.MIDIProgram < 0 || c.Output.MIDIProgram > 127 {
		return errors.New("output.midi_program must be between 0 and 127")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
