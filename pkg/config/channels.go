package config

import (
    "fmt"

    "github.com/spf13/viper"
)

// ChannelsConfig describes the per-medium channel settings.
// Example YAML:
// channels:
//   nearfield:
//     enabled: true
//     max_payload_size: 8192
//   radio:
//     enabled: true
//     chunk_size: 480
//     discovery_timeout_ms: 10000
//   visual:
//     enabled: true
//     frame_capacity: 2048
//     display_interval_ms: 250
//     compress: true
type ChannelsConfig struct {
    NearField NearFieldConfig `mapstructure:"nearfield"`
    Radio     RadioConfig     `mapstructure:"radio"`
    Visual    VisualConfig    `mapstructure:"visual"`
}

// NearFieldConfig tunes the tap channel.
type NearFieldConfig struct {
    Enabled        bool `mapstructure:"enabled"`
    MaxPayloadSize int  `mapstructure:"max_payload_size"`
}

// RadioConfig tunes the short-range radio channel.
type RadioConfig struct {
    Enabled            bool `mapstructure:"enabled"`
    ChunkSize          int  `mapstructure:"chunk_size"`
    MaxPayloadSize     int  `mapstructure:"max_payload_size"`
    DiscoveryTimeoutMS int  `mapstructure:"discovery_timeout_ms"`
}

// VisualConfig tunes the visual-code channel.
type VisualConfig struct {
    Enabled           bool `mapstructure:"enabled"`
    FrameCapacity     int  `mapstructure:"frame_capacity"`
    MaxPayloadSize    int  `mapstructure:"max_payload_size"`
    DisplayIntervalMS int  `mapstructure:"display_interval_ms"`
    SendCycles        int  `mapstructure:"send_cycles"`
    Compress          bool `mapstructure:"compress"`
}

// DefaultChannels returns the channel defaults; zero-valued limits defer to
// each channel package's own defaults.
func DefaultChannels() ChannelsConfig {
    return ChannelsConfig{
        NearField: NearFieldConfig{Enabled: true},
        Radio:     RadioConfig{Enabled: true},
        Visual:    VisualConfig{Enabled: true, Compress: true},
    }
}

func seedChannelDefaults(v *viper.Viper, c ChannelsConfig) {
    v.SetDefault("channels.nearfield.enabled", c.NearField.Enabled)
    v.SetDefault("channels.nearfield.max_payload_size", c.NearField.MaxPayloadSize)
    v.SetDefault("channels.radio.enabled", c.Radio.Enabled)
    v.SetDefault("channels.radio.chunk_size", c.Radio.ChunkSize)
    v.SetDefault("channels.radio.max_payload_size", c.Radio.MaxPayloadSize)
    v.SetDefault("channels.radio.discovery_timeout_ms", c.Radio.DiscoveryTimeoutMS)
    v.SetDefault("channels.visual.enabled", c.Visual.Enabled)
    v.SetDefault("channels.visual.frame_capacity", c.Visual.FrameCapacity)
    v.SetDefault("channels.visual.max_payload_size", c.Visual.MaxPayloadSize)
    v.SetDefault("channels.visual.display_interval_ms", c.Visual.DisplayIntervalMS)
    v.SetDefault("channels.visual.send_cycles", c.Visual.SendCycles)
    v.SetDefault("channels.visual.compress", c.Visual.Compress)
}

func (c *ChannelsConfig) validate() error {
    if c.Radio.ChunkSize < 0 {
        return fmt.Errorf("invalid channels.radio.chunk_size: %d", c.Radio.ChunkSize)
    }
    if c.Visual.FrameCapacity < 0 {
        return fmt.Errorf("invalid channels.visual.frame_capacity: %d", c.Visual.FrameCapacity)
    }
    if c.Visual.SendCycles < 0 {
        return fmt.Errorf("invalid channels.visual.send_cycles: %d", c.Visual.SendCycles)
    }
    return nil
}
