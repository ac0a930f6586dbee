package main

import (
	"strconv"

	"github.com/dunamismax/downsize/internal/config"
	"github.com/dunamismax/downsize/internal/domain"
	"github.com/spf13/cobra"
)

// sizeValue is a pflag.Value for -s/--size. It accepts WxH or W,H; the
// two-token form "-s W H" is folded into W,H by normalizeSizeArgs.
type sizeValue struct {
	dims domain.Dimensions
}

func (s *sizeValue) String() string {
	return s.dims.String()
}

func (s *sizeValue) Set(in string) error {
	d, err := domain.ParseDimensions(in)
	if err != nil {
		return err
	}
	s.dims = d
	return nil
}

func (s *sizeValue) Type() string {
	return "W H"
}

// normalizeSizeArgs rewrites "-s W H" and "--size W H" into "-s W,H" so the
// flag parser sees a single value.
func normalizeSizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if (arg == "-s" || arg == "--size") && i+2 < len(args) && isInt(args[i+1]) && isInt(args[i+2]) {
			out = append(out, arg, args[i+1]+","+args[i+2])
			i += 2
			continue
		}
		out = append(out, arg)
	}
	return out
}

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

type resizeFlags struct {
	configPath string
	suffix     string
	format     string
	outputDir  string
	overwrite  bool
	size       sizeValue
	quality    int
}

func (f *resizeFlags) register(cmd *cobra.Command) {
	f.size.dims = domain.DefaultBound

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "YAML config file")
	pf.StringVar(&f.suffix, "append", "", "text appended to the output file name")
	pf.StringVarP(&f.format, "format", "f", "", "output format: "+domain.SupportedFormatList())
	pf.StringVarP(&f.outputDir, "output", "o", "", "directory for resized images")
	pf.BoolVar(&f.overwrite, "overwrite", false, "replace existing output files")
	pf.VarP(&f.size, "size", "s", "maximum width and height")
	pf.IntVar(&f.quality, "quality", 95, "JPEG quality (1-100)")
}

// load builds the effective configuration: defaults, config file and
// environment first, then any flag the user set explicitly.
func (f *resizeFlags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}

	changed := cmd.Flags().Changed
	r := &cfg.Resize
	if changed("append") {
		r.Suffix = f.suffix
	}
	if changed("format") {
		format, err := domain.ParseFormat(f.format)
		if err != nil {
			return config.Config{}, err
		}
		r.Format = format.String()
	}
	if changed("output") {
		r.OutputDir = f.outputDir
	}
	if changed("overwrite") {
		r.Overwrite = f.overwrite
	}
	if changed("size") {
		r.MaxWidth, r.MaxHeight = f.size.dims.Width, f.size.dims.Height
	}
	if changed("quality") {
		r.JPEGQuality = f.quality
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
