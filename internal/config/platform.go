package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vdonnefort/lisa/internal/errors"
)

// Platform describes the traced target: CPU topology, frequency domains and
// the energy model. All fields are optional; sanitization rules that need a
// missing field are skipped.
type Platform struct {
	// CPUs is the number of CPUs on the target; zero means unknown
	CPUs int `json:"cpus" yaml:"cpus"`

	// Clusters maps a cluster name ("little", "big") to its CPU ids
	Clusters map[string][]int `json:"clusters" yaml:"clusters"`

	// FreqDomains lists groups of CPUs sharing one frequency
	FreqDomains [][]int `json:"freq_domains" yaml:"freq_domains"`

	// NrgModel is the energy model, required by the capacity and energy
	// diff enrichment rules
	NrgModel *EnergyModel `json:"nrg_model" yaml:"nrg_model"`
}

// EnergyModel holds per-cluster energy parameters for a big.LITTLE target.
type EnergyModel struct {
	Little EnergyNode `json:"little" yaml:"little"`
	Big    EnergyNode `json:"big" yaml:"big"`
}

// EnergyNode holds the CPU-level and cluster-level energy parameters of one
// cluster.
type EnergyNode struct {
	CPU     EnergyBand `json:"cpu" yaml:"cpu"`
	Cluster EnergyBand `json:"cluster" yaml:"cluster"`
}

// EnergyBand holds the maximum capacity and energy of one topology level.
type EnergyBand struct {
	CapMax float64 `json:"cap_max" yaml:"cap_max"`
	NrgMax float64 `json:"nrg_max" yaml:"nrg_max"`
}

// HasBigLittle reports whether the platform declares both a little and a big
// cluster.
func (p *Platform) HasBigLittle() bool {
	if p == nil {
		return false
	}
	return len(p.Clusters["little"]) > 0 && len(p.Clusters["big"]) > 0
}

// InCluster reports whether the CPU belongs to the named cluster.
func (p *Platform) InCluster(name string, cpu int64) bool {
	if p == nil {
		return false
	}
	for _, c := range p.Clusters[name] {
		if int64(c) == cpu {
			return true
		}
	}
	return false
}

// MaxSystemEnergy returns the estimated maximum system energy, the
// normalization base for energy diff percentages. Zero when no energy model
// or cluster lists are configured.
func (p *Platform) MaxSystemEnergy() float64 {
	if p == nil || p.NrgModel == nil {
		return 0
	}
	little := float64(len(p.Clusters["little"]))
	big := float64(len(p.Clusters["big"]))
	return p.NrgModel.Little.CPU.NrgMax*little + p.NrgModel.Big.CPU.NrgMax*big +
		p.NrgModel.Little.Cluster.NrgMax + p.NrgModel.Big.Cluster.NrgMax
}

// Validate validates the platform description.
func (p *Platform) Validate() error {
	if p == nil {
		return nil
	}
	if p.CPUs < 0 {
		return fmt.Errorf("cpus must not be negative, got %d", p.CPUs)
	}
	for name, cpus := range p.Clusters {
		for _, c := range cpus {
			if c < 0 {
				return fmt.Errorf("cluster %q contains negative cpu %d", name, c)
			}
			if p.CPUs > 0 && c >= p.CPUs {
				return fmt.Errorf("cluster %q contains cpu %d but platform has %d cpus", name, c, p.CPUs)
			}
		}
	}
	for i, domain := range p.FreqDomains {
		if len(domain) == 0 {
			return fmt.Errorf("freq domain %d is empty", i)
		}
	}
	return nil
}

// LoadPlatform loads a platform description from a YAML or JSON file.
func LoadPlatform(path string) (*Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read platform file: %w", err)
	}

	p := &Platform{}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("failed to parse YAML platform: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("failed to parse JSON platform: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported platform file format: %s", ext)
	}

	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCategoryConfig, errors.CodeInvalidPlatform,
			"invalid platform description", err)
	}

	return p, nil
}
