package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gosuri/uitable"

	"grainmetrics/internal/models"
	"grainmetrics/pkg/comparison"
	"grainmetrics/pkg/config"
	"grainmetrics/pkg/postprocess"
	"grainmetrics/pkg/slicing"
	"grainmetrics/pkg/volumeio"
)

const usage = `Usage: grainmetrics <command> [flags]

Commands:
  compare      compare grain statistics of two slice directories
  slice        extract evenly spaced slices from a volume
  sharpen      sharpen a volume and save it as VTI
  init-config  write a default configuration file

Run "grainmetrics <command> -h" for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "compare":
		err = runCompare(os.Args[2:])
	case "slice":
		err = runSlice(os.Args[2:])
	case "sharpen":
		err = runSharpen(os.Args[2:])
	case "init-config":
		err = runInitConfig(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("grainmetrics failed", "command", os.Args[1], "err", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and installs the default logger.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

// setFlags returns the names of the flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func banner(title string) {
	fmt.Println("================================")
	fmt.Println(title)
	fmt.Println("================================")
}

func runCompare(args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	refDir := fs.String("ref", "", "Directory of reference slices")
	genDir := fs.String("gen", "", "Directory of generated slices")
	outDir := fs.String("out", "", "Output directory (default: output.dir from config)")
	configPath := fs.String("config", "grainmetrics.yaml", "Configuration file")
	labeling := fs.String("labeling", "", "Grain labelling: color or component")
	algorithm := fs.String("algorithm", "", "Adjacency algorithm: scan or dilation")
	conn := fs.Int("conn", 0, "Pixel connectivity: 4 or 8")
	workers := fs.Int("workers", 0, "Concurrent slices per volume")
	grainWorkers := fs.Int("grain-workers", 0, "Concurrent grains per slice (dilation only)")
	maxGrains := fs.Int("max-grains", 0, "Reject slices with more grains (0: no limit)")
	timeout := fs.Duration("timeout", 0, "Abort after this long (0: no limit)")
	fs.Parse(args)

	if *refDir == "" || *genDir == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	set := setFlags(fs)
	if set["out"] {
		cfg.Output.Dir = *outDir
	}
	if set["labeling"] {
		cfg.Metrics.Labeling = *labeling
	}
	if set["algorithm"] {
		cfg.Metrics.Algorithm = *algorithm
	}
	if set["conn"] {
		cfg.Metrics.Connectivity = *conn
	}
	if set["workers"] {
		cfg.Metrics.Workers = *workers
	}
	if set["grain-workers"] {
		cfg.Metrics.GrainWorkers = *grainWorkers
	}
	if set["max-grains"] {
		cfg.Metrics.MaxGrains = *maxGrains
	}
	if set["timeout"] {
		cfg.Metrics.Timeout = *timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	banner("GRAIN STATISTICS COMPARISON")

	comparator, err := comparison.NewComparator(&comparison.Params{
		RefDir:       *refDir,
		GenDir:       *genDir,
		OutputDir:    cfg.Output.Dir,
		Labeling:     cfg.Metrics.Labeling,
		Algorithm:    cfg.Metrics.Algorithm,
		Connectivity: cfg.Metrics.Connectivity,
		Workers:      cfg.Metrics.Workers,
		GrainWorkers: cfg.Metrics.GrainWorkers,
		MaxGrains:    cfg.Metrics.MaxGrains,
		Timeout:      cfg.Metrics.Timeout,
		KDEPoints:    cfg.Metrics.KDEPoints,
		KDESamples:   cfg.Metrics.KDESamples,
		Logger:       slog.Default(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	if err := comparator.Process(ctx); err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}

	r := comparator.Report()
	table := uitable.New()
	table.MaxColWidth = 40
	table.Wrap = false
	table.AddRow("Volume", "Slices", "Grains", "Contacts", "Neighbors.Mean", "Neighbors.StdDev",
		"Area.Mean", "Size.Mean", "Size.StdDev")
	for _, v := range []comparison.VolumeReport{r.Reference, r.Generated} {
		table.AddRow(v.Name, v.Slices, v.Neighbors.Count, v.Contacts,
			fmt.Sprintf("%.2f", v.Neighbors.Mean), fmt.Sprintf("%.2f", v.Neighbors.StdDev),
			fmt.Sprintf("%.2f", v.GrainArea.Mean),
			fmt.Sprintf("%.2f", v.GrainSize.Mean), fmt.Sprintf("%.2f", v.GrainSize.StdDev))
	}
	fmt.Println()
	fmt.Println(table)
	fmt.Printf("\nMean neighbour difference (generated - reference): %.3f\n", r.MeanNeighborDiff)
	fmt.Printf("Mean grain size difference (generated - reference): %.3f\n", r.MeanGrainSizeDiff)
	fmt.Printf("Mean grain area difference (generated - reference): %.3f\n", r.MeanGrainAreaDiff)
	fmt.Printf("Completed in %.2f seconds\n", r.Elapsed.Seconds())
	return nil
}

func runSlice(args []string) error {
	fs := flag.NewFlagSet("slice", flag.ExitOnError)
	volumePath := fs.String("volume", "", "Volume file")
	format := fs.String("format", "", "Volume format: vti, tiff, png or jpeg (default: from extension)")
	outDir := fs.String("out", "", "Output directory")
	configPath := fs.String("config", "grainmetrics.yaml", "Configuration file")
	n := fs.Int("n", 0, "Slices per axis (default: slicing.numSlices from config)")
	anisotropic := fs.Bool("anisotropic", false, "Slice along x, y and z instead of z only")
	fs.Parse(args)

	if *volumePath == "" || *outDir == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	set := setFlags(fs)
	if set["n"] {
		cfg.Slicing.NumSlices = *n
	}
	if set["anisotropic"] {
		cfg.Slicing.Isotropic = !*anisotropic
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	vol, err := readVolume(*volumePath, *format)
	if err != nil {
		return err
	}
	slog.Debug("volume loaded", "path", *volumePath,
		"width", vol.Width, "height", vol.Height, "depth", vol.Depth, "channels", vol.Channels)

	slicer, err := slicing.NewSlicer(vol)
	if errors.Is(err, slicing.ErrSinglePlane) {
		return fmt.Errorf("%s is a single image, not a volume: use a multi-page TIFF or a VTI file: %w", *volumePath, err)
	}
	if err != nil {
		return err
	}

	banner("VOLUME SLICING")
	start := time.Now()
	if cfg.Slicing.Isotropic {
		paths, err := slicer.SaveIsotropic(*outDir, cfg.Slicing.NumSlices)
		if err != nil {
			return err
		}
		fmt.Printf("Saved %d slices to %s\n", len(paths), filepath.Join(*outDir, slicing.IsotropicDir))
	} else {
		stacks, err := slicer.SaveAnisotropic(*outDir, cfg.Slicing.NumSlices)
		if err != nil {
			return err
		}
		table := uitable.New()
		table.AddRow("Axis", "Slices", "Directory")
		for _, axis := range []string{"x", "y", "z"} {
			paths := stacks[models.Axis(axis)]
			table.AddRow(axis, len(paths), filepath.Join(*outDir, slicing.AnisotropicDirBase+axis))
		}
		fmt.Println(table)
	}
	fmt.Printf("Completed in %.2f seconds\n", time.Since(start).Seconds())
	return nil
}

func runSharpen(args []string) error {
	fs := flag.NewFlagSet("sharpen", flag.ExitOnError)
	volumePath := fs.String("volume", "", "Volume file")
	format := fs.String("format", "", "Volume format (default: from extension)")
	outPath := fs.String("out", "", "Output VTI file")
	configPath := fs.String("config", "grainmetrics.yaml", "Configuration file")
	alpha := fs.Float64("alpha", 0, "Sharpening strength (default: postprocess.alpha from config)")
	sigma := fs.Float64("sigma", 0, "Gaussian standard deviation in voxels (default: postprocess.sigma from config)")
	gray := fs.Bool("gray", false, "Convert to grayscale before saving")
	ascii := fs.Bool("ascii", false, "Write VTI data as ascii instead of base64")
	fs.Parse(args)

	if *volumePath == "" || *outPath == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	set := setFlags(fs)
	if set["alpha"] {
		cfg.Postprocess.Alpha = *alpha
	}
	if set["sigma"] {
		cfg.Postprocess.Sigma = *sigma
	}
	if set["gray"] {
		cfg.Postprocess.Grayscale = *gray
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	vol, err := readVolume(*volumePath, *format)
	if err != nil {
		return err
	}

	banner("VOLUME SHARPENING")
	start := time.Now()
	out, err := postprocess.Sharpen(vol, postprocess.Params{
		Alpha:   cfg.Postprocess.Alpha,
		Sigma:   cfg.Postprocess.Sigma,
		Workers: cfg.Metrics.Workers,
	})
	if err != nil {
		return err
	}
	if cfg.Postprocess.Grayscale && out.Channels == 3 {
		if out, err = postprocess.ToGray(out); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0755); err != nil {
		return err
	}
	f, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := volumeio.WriteVTI(f, out, volumeio.VTIOptions{Binary: !*ascii}); err != nil {
		return fmt.Errorf("failed to write %s: %w", *outPath, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Sharpened volume saved to %s in %.2f seconds\n", *outPath, time.Since(start).Seconds())
	return nil
}

func runInitConfig(args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	path := fs.String("path", "grainmetrics.yaml", "Where to write the configuration")
	fs.Parse(args)

	if err := config.CreateDefaultConfigFile(*path); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to %s\n", *path)
	return nil
}

// readVolume reads a volume with an explicit format tag, or the one implied
// by the file extension when tag is empty.
func readVolume(path, tag string) (models.Volume, error) {
	var f volumeio.Format
	var err error
	if tag != "" {
		f, err = volumeio.ParseFormat(tag)
	} else {
		f, err = volumeio.FormatForPath(path)
	}
	if err != nil {
		return models.Volume{}, err
	}
	return volumeio.ReadVolumeFile(path, f)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
