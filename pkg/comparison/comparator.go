// Package comparison compares the grain statistics of a reference volume
// with those of a generated volume and writes the result as a YAML report
// plus density curves in CSV.
package comparison

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"grainmetrics/internal/models"
	"grainmetrics/pkg/grain"
	"grainmetrics/pkg/stats"
	"grainmetrics/pkg/volumeio"
)

// Params holds the comparison parameters.
type Params struct {
	// RefDir and GenDir are directories of numbered slice images.
	RefDir string
	GenDir string

	// OutputDir receives the report and the density curves.
	OutputDir string

	// Labeling is "color" (one grain per distinct colour) or "component"
	// (one grain per connected region of equal colour).
	Labeling string

	// Algorithm is "scan" or "dilation".
	Algorithm string

	// Connectivity is 4 or 8.
	Connectivity int

	// Workers bounds concurrent slices per volume (default: all CPUs).
	Workers int

	// GrainWorkers bounds concurrent grains per slice for the dilation
	// algorithm (default 1). Up to Workers*GrainWorkers dilations run at once.
	GrainWorkers int

	// MaxGrains rejects slices with more grains; 0 disables the check.
	MaxGrains int

	// Timeout bounds Process; 0 disables it.
	Timeout time.Duration

	// KDEPoints is the number of samples per density curve.
	KDEPoints int

	// KDESamples caps the values fed to each KDE. Larger distributions are
	// thinned with a fixed stride. 0 disables the cap.
	KDESamples int

	Logger *slog.Logger
}

// VolumeReport holds the statistics of one volume.
type VolumeReport struct {
	Name      string        `yaml:"name"`
	Dir       string        `yaml:"dir"`
	Slices    int           `yaml:"slices"`
	GrainSize stats.Summary `yaml:"grainSize"`
	GrainArea stats.Summary `yaml:"grainArea"`
	Neighbors stats.Summary `yaml:"neighbors"`

	// Contacts is the number of touching grain pairs summed over slices
	Contacts int `yaml:"contacts"`

	// Bandwidths of the density curves written alongside the report
	GrainSizeBandwidth float64 `yaml:"grainSizeBandwidth"`
	NeighborBandwidth  float64 `yaml:"neighborBandwidth"`

	sizeCurve     []stats.Point
	neighborCurve []stats.Point
}

// Report is the outcome of a comparison.
type Report struct {
	// RunID distinguishes reports of repeated comparisons
	RunID string `yaml:"runId"`

	Labeling     string       `yaml:"labeling"`
	Algorithm    string       `yaml:"algorithm"`
	Connectivity int          `yaml:"connectivity"`
	Reference    VolumeReport `yaml:"reference"`
	Generated    VolumeReport `yaml:"generated"`

	// Generated minus reference
	MeanGrainSizeDiff float64 `yaml:"meanGrainSizeDiff"`
	MeanGrainAreaDiff float64 `yaml:"meanGrainAreaDiff"`
	MeanNeighborDiff  float64 `yaml:"meanNeighborDiff"`

	Elapsed time.Duration `yaml:"elapsed"`
}

// Comparator runs one comparison.
type Comparator struct {
	params *Params

	aggregator *grain.Aggregator

	report Report
	files  []string
}

// NewComparator validates params, fills defaults, and returns a Comparator.
func NewComparator(params *Params) (*Comparator, error) {
	p := *params
	if p.RefDir == "" || p.GenDir == "" {
		return nil, fmt.Errorf("reference and generated directories are required")
	}
	if p.OutputDir == "" {
		p.OutputDir = "output_metrics"
	}
	if p.Labeling == "" {
		p.Labeling = "color"
	}
	if p.Algorithm == "" {
		p.Algorithm = "scan"
	}
	if p.Connectivity == 0 {
		p.Connectivity = 4
	}
	if p.Workers < 1 {
		p.Workers = runtime.NumCPU()
	}
	if p.GrainWorkers < 1 {
		p.GrainWorkers = 1
	}
	if p.KDEPoints < 2 {
		p.KDEPoints = 1000
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	conn, err := grain.ParseConnectivity(p.Connectivity)
	if err != nil {
		return nil, err
	}

	var labeler grain.Labeler
	switch p.Labeling {
	case "color":
		labeler = grain.ColorLabeler{}
	case "component":
		labeler = grain.ComponentLabeler{Connectivity: conn}
	default:
		return nil, fmt.Errorf("unknown labeling %q", p.Labeling)
	}

	var builder grain.Builder
	switch p.Algorithm {
	case "scan":
		builder = grain.ScanBuilder{Connectivity: conn, MaxGrains: p.MaxGrains}
	case "dilation":
		builder = grain.DilationBuilder{Connectivity: conn, Workers: p.GrainWorkers, MaxGrains: p.MaxGrains}
	default:
		return nil, fmt.Errorf("unknown algorithm %q", p.Algorithm)
	}

	return &Comparator{
		params: &p,
		aggregator: &grain.Aggregator{
			Labeler: labeler,
			Builder: builder,
			Workers: p.Workers,
			Logger:  p.Logger,
		},
	}, nil
}

// volumeResult carries one volume's raw distributions between steps.
type volumeResult struct {
	role   string
	sizes  []float64
	dist   grain.Distribution
	slices int
	err    error
}

// Process runs the complete comparison pipeline.
func (c *Comparator) Process(ctx context.Context) error {
	start := time.Now()
	if c.params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.params.Timeout)
		defer cancel()
	}
	log := c.params.Logger

	if err := os.MkdirAll(c.params.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Step 1: Load both slice stacks
	fmt.Println("Step 1: Loading slices...")
	refSlices, refFiles, err := volumeio.ReadSliceDir(c.params.RefDir)
	if err != nil {
		return fmt.Errorf("failed to load reference slices: %w", err)
	}
	genSlices, genFiles, err := volumeio.ReadSliceDir(c.params.GenDir)
	if err != nil {
		return fmt.Errorf("failed to load generated slices: %w", err)
	}
	log.Debug("slices loaded", "reference", len(refFiles), "generated", len(genFiles))

	// Step 2: Grain sizes and neighbour distributions, both volumes at once
	fmt.Println("Step 2: Computing grain distributions...")
	results := make(chan volumeResult, 2)
	var wg sync.WaitGroup
	for _, v := range []struct {
		role   string
		slices []models.Image
	}{{"reference", refSlices}, {"generated", genSlices}} {
		wg.Add(1)
		go func(role string, slices []models.Image) {
			defer wg.Done()
			res := volumeResult{role: role, slices: len(slices), sizes: grain.GrainSizes(slices)}
			res.dist, res.err = c.aggregator.Analyze(ctx, slices)
			results <- res
		}(v.role, v.slices)
	}
	wg.Wait()
	close(results)

	byRole := make(map[string]volumeResult, 2)
	for res := range results {
		if res.err != nil {
			return fmt.Errorf("failed to compute %s grain distributions: %w", res.role, res.err)
		}
		byRole[res.role] = res
	}

	// Step 3: Summaries and density curves
	fmt.Println("Step 3: Summarising distributions...")
	ref, err := c.summarize(volumeName(c.params.RefDir), c.params.RefDir, byRole["reference"])
	if err != nil {
		return err
	}
	gen, err := c.summarize(volumeName(c.params.GenDir), c.params.GenDir, byRole["generated"])
	if err != nil {
		return err
	}

	report := Report{
		RunID:             uuid.NewString(),
		Labeling:          c.params.Labeling,
		Algorithm:         c.params.Algorithm,
		Connectivity:      c.params.Connectivity,
		Reference:         ref,
		Generated:         gen,
		MeanGrainSizeDiff: gen.GrainSize.Mean - ref.GrainSize.Mean,
		MeanGrainAreaDiff: gen.GrainArea.Mean - ref.GrainArea.Mean,
		MeanNeighborDiff:  gen.Neighbors.Mean - ref.Neighbors.Mean,
	}

	// Step 4: Write report and curves
	fmt.Println("Step 4: Writing report...")
	report.Elapsed = time.Since(start).Round(time.Millisecond)
	files, err := c.writeOutputs(&report)
	if err != nil {
		return err
	}
	c.report, c.files = report, files

	log.Info("comparison complete",
		"run", report.RunID,
		"reference", ref.Name, "generated", gen.Name,
		"meanNeighborDiff", report.MeanNeighborDiff,
		"elapsed", report.Elapsed)
	return nil
}

func (c *Comparator) summarize(name, dir string, res volumeResult) (VolumeReport, error) {
	vr := VolumeReport{Name: name, Dir: dir, Slices: res.slices, Contacts: res.dist.Contacts}
	neighbors := stats.Ints(res.dist.Neighbors)

	var err error
	if vr.GrainSize, err = stats.Summarize(res.sizes); err != nil {
		return vr, fmt.Errorf("grain sizes of %s: %w", name, err)
	}
	if vr.Neighbors, err = stats.Summarize(neighbors); err != nil {
		return vr, fmt.Errorf("neighbour counts of %s: %w", name, err)
	}
	if vr.GrainArea, err = stats.Summarize(stats.Ints(res.dist.Areas)); err != nil {
		return vr, fmt.Errorf("grain areas of %s: %w", name, err)
	}

	sizeKDE, err := stats.NewKDE(thin(res.sizes, c.params.KDESamples))
	if err != nil {
		return vr, fmt.Errorf("grain size density of %s: %w", name, err)
	}
	neighborKDE, err := stats.NewKDE(thin(neighbors, c.params.KDESamples))
	if err != nil {
		return vr, fmt.Errorf("neighbour density of %s: %w", name, err)
	}
	vr.GrainSizeBandwidth = sizeKDE.Bandwidth()
	vr.NeighborBandwidth = neighborKDE.Bandwidth()
	vr.sizeCurve = sizeKDE.Curve(c.params.KDEPoints)
	vr.neighborCurve = neighborKDE.Curve(c.params.KDEPoints)
	return vr, nil
}

func (c *Comparator) writeOutputs(report *Report) ([]string, error) {
	prefix := report.Reference.Name + "_&&_" + report.Generated.Name
	dir := c.params.OutputDir

	reportPath := filepath.Join(dir, prefix+"_report.yaml")
	data, err := yaml.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(reportPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	neighborPath := filepath.Join(dir, prefix+"_neighbor_distribution.csv")
	if err := writeCurves(neighborPath, &report.Reference, &report.Generated,
		func(v *VolumeReport) []stats.Point { return v.neighborCurve }); err != nil {
		return nil, err
	}

	sizePath := filepath.Join(dir, prefix+"_grain_size_distribution.csv")
	if err := writeCurves(sizePath, &report.Reference, &report.Generated,
		func(v *VolumeReport) []stats.Point { return v.sizeCurve }); err != nil {
		return nil, err
	}

	files := []string{reportPath, neighborPath, sizePath}
	for _, f := range files {
		fmt.Printf("Saved %s\n", f)
	}
	return files, nil
}

// writeCurves writes the curves of both volumes in long format:
// volume,x,density.
func writeCurves(path string, ref, gen *VolumeReport, curve func(*VolumeReport) []stats.Point) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"volume", "x", "density"}); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	for _, v := range []*VolumeReport{ref, gen} {
		for _, p := range curve(v) {
			row := []string{
				v.Name,
				strconv.FormatFloat(p.X, 'g', -1, 64),
				strconv.FormatFloat(p.Density, 'g', -1, 64),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// thin keeps every k-th value so that at most limit values remain.
func thin(values []float64, limit int) []float64 {
	if limit <= 0 || len(values) <= limit {
		return values
	}
	step := (len(values) + limit - 1) / limit
	out := make([]float64, 0, limit)
	for i := 0; i < len(values); i += step {
		out = append(out, values[i])
	}
	return out
}

// volumeName is the last path element of dir, ignoring trailing separators.
func volumeName(dir string) string {
	return filepath.Base(strings.TrimRight(dir, `/\`))
}

// Report returns the result of the last successful Process.
func (c *Comparator) Report() Report {
	return c.report
}

// Files returns the paths written by the last successful Process.
func (c *Comparator) Files() []string {
	return c.files
}
