package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vdonnefort/lisa/internal/errors"
)

func testPlatform() *Platform {
	return &Platform{
		CPUs: 6,
		Clusters: map[string][]int{
			"little": {0, 1, 2, 3},
			"big":    {4, 5},
		},
		FreqDomains: [][]int{{0, 1, 2, 3}, {4, 5}},
		NrgModel: &EnergyModel{
			Little: EnergyNode{
				CPU:     EnergyBand{CapMax: 447, NrgMax: 138},
				Cluster: EnergyBand{NrgMax: 25},
			},
			Big: EnergyNode{
				CPU:     EnergyBand{CapMax: 1024, NrgMax: 616},
				Cluster: EnergyBand{NrgMax: 64},
			},
		},
	}
}

func TestPlatform_HasBigLittle(t *testing.T) {
	p := testPlatform()
	if !p.HasBigLittle() {
		t.Error("expected big.LITTLE platform")
	}

	delete(p.Clusters, "big")
	if p.HasBigLittle() {
		t.Error("platform without a big cluster is not big.LITTLE")
	}

	var nilPlatform *Platform
	if nilPlatform.HasBigLittle() {
		t.Error("nil platform is not big.LITTLE")
	}
}

func TestPlatform_InCluster(t *testing.T) {
	p := testPlatform()
	if !p.InCluster("little", 2) {
		t.Error("cpu 2 should be in the little cluster")
	}
	if p.InCluster("little", 4) {
		t.Error("cpu 4 should not be in the little cluster")
	}
	if p.InCluster("mid", 0) {
		t.Error("unknown cluster should contain nothing")
	}
}

func TestPlatform_MaxSystemEnergy(t *testing.T) {
	p := testPlatform()
	// 138*4 + 616*2 + 25 + 64
	want := 138.0*4 + 616.0*2 + 25 + 64
	if got := p.MaxSystemEnergy(); got != want {
		t.Errorf("expected %v, got %v", want, got)
	}

	p.NrgModel = nil
	if p.MaxSystemEnergy() != 0 {
		t.Error("expected zero energy without a model")
	}
}

func TestPlatform_Validate(t *testing.T) {
	p := testPlatform()
	if err := p.Validate(); err != nil {
		t.Errorf("valid platform rejected: %v", err)
	}

	p.Clusters["big"] = []int{4, 9}
	if err := p.Validate(); err == nil {
		t.Error("expected error for cpu id beyond cpus count")
	}

	p = testPlatform()
	p.FreqDomains = append(p.FreqDomains, []int{})
	if err := p.Validate(); err == nil {
		t.Error("expected error for empty freq domain")
	}
}

func TestLoadPlatform_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "platform.yaml")
	content := `
cpus: 4
clusters:
  little: [0, 1]
  big: [2, 3]
freq_domains:
  - [0, 1]
  - [2, 3]
nrg_model:
  little:
    cpu: {cap_max: 447, nrg_max: 138}
    cluster: {nrg_max: 25}
  big:
    cpu: {cap_max: 1024, nrg_max: 616}
    cluster: {nrg_max: 64}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write platform: %v", err)
	}

	p, err := LoadPlatform(path)
	if err != nil {
		t.Fatalf("failed to load platform: %v", err)
	}

	if p.CPUs != 4 || !p.HasBigLittle() {
		t.Error("platform fields not parsed")
	}
	if len(p.FreqDomains) != 2 {
		t.Errorf("expected 2 freq domains, got %d", len(p.FreqDomains))
	}
	if p.NrgModel == nil || p.NrgModel.Big.CPU.CapMax != 1024 {
		t.Error("energy model not parsed")
	}
}

func TestLoadPlatform_RejectsInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "platform.yaml")
	content := `
cpus: 2
clusters:
  little: [0, 5]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write platform: %v", err)
	}

	_, err := LoadPlatform(path)
	if err == nil {
		t.Fatal("expected error for cpu id beyond cpus count")
	}
	if errors.GetCategory(err) != errors.ErrCategoryConfig {
		t.Errorf("expected a CONFIG error, got %v", err)
	}
	if errors.GetCode(err) != errors.CodeInvalidPlatform {
		t.Errorf("expected INVALID_PLATFORM, got %q", errors.GetCode(err))
	}
}
