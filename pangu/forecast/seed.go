package forecast

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the on-disk layout of precomputed statistics: one value per
// step, in step order, for each interval.
//
//	region: China
//	variable: 2m temperature
//	unit: °C
//	intervals:
//	  6h: [14.2, 12.9, 13.4, 16.1]
type Seed struct {
	Region    string               `yaml:"region"`
	Variable  string               `yaml:"variable"`
	Unit      string               `yaml:"unit"`
	Intervals map[string][]float64 `yaml:"intervals"`
}

// ParseSeed decodes a YAML seed into statistics.
func ParseSeed(data []byte) ([]Statistic, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	if seed.Region == "" {
		seed.Region = DefaultRegion
	}
	if seed.Variable == "" {
		seed.Variable = DefaultVariable
	}
	if seed.Unit == "" {
		seed.Unit = DefaultUnit
	}

	var out []Statistic
	for _, iv := range Intervals() {
		values, ok := seed.Intervals[string(iv)]
		if !ok {
			continue
		}
		if len(values) > iv.Frames() {
			return nil, fmt.Errorf("seed has %d values for %s, model only produces %d frames", len(values), iv, iv.Frames())
		}
		for i, v := range values {
			out = append(out, Statistic{
				Interval: iv,
				Step:     i + 1,
				Region:   seed.Region,
				Variable: seed.Variable,
				Value:    v,
				Unit:     seed.Unit,
			})
		}
	}

	for name := range seed.Intervals {
		if !Interval(name).Valid() {
			return nil, fmt.Errorf("seed references unknown interval %q", name)
		}
	}

	return out, nil
}

// LoadSeedFile reads and decodes a YAML seed file.
func LoadSeedFile(path string) ([]Statistic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}
