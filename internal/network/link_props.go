package network

import (
	"errors"
	"strconv"
	"strings"

	"github.com/David-Antunes/klonet/api"
)

var delayDistributions = []string{"uniform", "normal", "pareto", "paretonormal"}

// LinkProps is a partial QoS edit for one side of a link. Nil fields are
// left at whatever the configuration already holds.
type LinkProps struct {
	Link              string   `json:"link" yaml:"link"`
	Ne                string   `json:"ne" yaml:"ne"`
	BwKbps            *int     `json:"bw_kbps,omitempty" yaml:"bw_kbps,omitempty"`
	DelayUs           *int     `json:"delay_us,omitempty" yaml:"delay_us,omitempty"`
	JitterUs          *int     `json:"jitter_us,omitempty" yaml:"jitter_us,omitempty"`
	Correlation       *string  `json:"correlation,omitempty" yaml:"correlation,omitempty"`
	DelayDistribution *string  `json:"delay_distribution,omitempty" yaml:"delay_distribution,omitempty"`
	Loss              *float64 `json:"loss,omitempty" yaml:"loss,omitempty"`
	QueueSizeBytes    *int     `json:"queue_size_bytes,omitempty" yaml:"queue_size_bytes,omitempty"`
}

// Merge returns props with every field set in update overriding it.
func (props LinkProps) Merge(update LinkProps) LinkProps {
	out := props
	if update.Link != "" {
		out.Link = update.Link
	}
	if update.Ne != "" {
		out.Ne = update.Ne
	}
	if update.BwKbps != nil {
		out.BwKbps = update.BwKbps
	}
	if update.DelayUs != nil {
		out.DelayUs = update.DelayUs
	}
	if update.JitterUs != nil {
		out.JitterUs = update.JitterUs
	}
	if update.Correlation != nil {
		out.Correlation = update.Correlation
	}
	if update.DelayDistribution != nil {
		out.DelayDistribution = update.DelayDistribution
	}
	if update.Loss != nil {
		out.Loss = update.Loss
	}
	if update.QueueSizeBytes != nil {
		out.QueueSizeBytes = update.QueueSizeBytes
	}
	return out
}

// Build starts from the defaults and applies only the fields that are set.
func (props LinkProps) Build() api.LinkConfiguration {
	cfg := api.DefaultLinkConfiguration(props.Link, props.Ne)
	if props.BwKbps != nil {
		cfg.BwKbps = *props.BwKbps
	}
	if props.DelayUs != nil {
		cfg.DelayUs = *props.DelayUs
	}
	if props.JitterUs != nil {
		cfg.JitterUs = *props.JitterUs
	}
	if props.Correlation != nil {
		cfg.Correlation = *props.Correlation
	}
	if props.DelayDistribution != nil {
		cfg.DelayDistribution = *props.DelayDistribution
	}
	if props.Loss != nil {
		cfg.Loss = *props.Loss
	}
	if props.QueueSizeBytes != nil {
		cfg.QueueSizeBytes = *props.QueueSizeBytes
	}
	return cfg
}

func (props LinkProps) Validate() error {
	if props.Link == "" {
		return &api.InvalidArgumentError{Field: "link", Reason: "link name is required"}
	}
	if props.Ne == "" {
		return &api.InvalidArgumentError{Field: "ne", Reason: "node name is required"}
	}
	return ParseLinkConfiguration(props.Build())
}

// ParseLinkConfiguration checks the value ranges the backend accepts.
func ParseLinkConfiguration(cfg api.LinkConfiguration) error {
	if cfg.BwKbps <= 0 {
		return &api.InvalidArgumentError{Field: "bw_kbps", Reason: "bandwidth must be positive"}
	} else if cfg.DelayUs < 0 {
		return &api.InvalidArgumentError{Field: "delay_us", Reason: "delay can't be lower than 0"}
	} else if cfg.JitterUs < 0 {
		return &api.InvalidArgumentError{Field: "jitter_us", Reason: "jitter can't be lower than 0"}
	} else if cfg.Loss < 0 || cfg.Loss > 100 {
		return &api.InvalidArgumentError{Field: "loss", Reason: "loss must be between 0 and 100"}
	} else if cfg.QueueSizeBytes < 0 {
		return &api.InvalidArgumentError{Field: "queue_size_bytes", Reason: "queue size can't be lower than 0"}
	}
	if err := parsePercent(cfg.Correlation); err != nil {
		return &api.InvalidArgumentError{Field: "correlation", Reason: err.Error()}
	}
	for _, d := range delayDistributions {
		if d == cfg.DelayDistribution {
			return nil
		}
	}
	return &api.InvalidArgumentError{
		Field:  "delay_distribution",
		Reason: "must be one of " + strings.Join(delayDistributions, "/"),
	}
}

func parsePercent(s string) error {
	v, ok := strings.CutSuffix(s, "%")
	if !ok {
		return errors.New("correlation must be a percentage such as 1%")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return errors.New("correlation must be a percentage such as 1%")
	}
	if f < 0 {
		return errors.New("correlation can't be lower than 0%")
	}
	return nil
}

func Int(v int) *int           { return &v }
func Float(v float64) *float64 { return &v }
func String(v string) *string  { return &v }
