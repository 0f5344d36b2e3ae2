package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chocolatkey/rasterpreview"
	"github.com/chocolatkey/rasterpreview/pkg/batch"
	"github.com/chocolatkey/rasterpreview/pkg/config"
	"github.com/chocolatkey/rasterpreview/pkg/preview"
	"github.com/chocolatkey/rasterpreview/pkg/server"
)

type CLI struct {
	Config   string            `help:"YAML config file" type:"path" default:"preview.yaml"`
	Set      map[string]string `help:"Override a config key, e.g. --set output.format=webp"`
	LogLevel string            `help:"Log level (trace, debug, info, warn, error), overrides the config file"`

	Serve   ServeCmd   `cmd:"" help:"Serve previews over HTTP"`
	Convert ConvertCmd `cmd:"" help:"Render previews for every BMP and PSD file in a folder"`
	Info    InfoCmd    `cmd:"" help:"Print the headers of image files as JSON"`
}

func newDecoder(cfg *config.Config) *rasterpreview.Decoder {
	return rasterpreview.New(
		rasterpreview.WithLimits(cfg.Limits()),
		rasterpreview.WithPreferComposite(cfg.PreferComposite),
		rasterpreview.WithMaxInputBytes(cfg.MaxInputBytes),
	)
}

type ServeCmd struct {
	Listen string `help:"Listen address, overrides the config file"`
}

func (c *ServeCmd) Run(cfg *config.Config) error {
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(
		newDecoder(cfg),
		preview.NewCache(cfg.Cache.Entries, cfg.Cache.Compress),
		server.Options{Preview: cfg.PreviewOptions(), MaxInputBytes: cfg.MaxInputBytes},
	)
	return srv.ListenAndServe(ctx, cfg.Listen)
}

type ConvertCmd struct {
	Scan string `help:"Source folder to scan" type:"existingdir" default:"."`
	Dest string `help:"Destination folder for previews. Relative to scan dir if not absolute." default:"previews"`
}

func (c *ConvertCmd) Validate(kctx *kong.Context) error {
	scanDir, err := filepath.Abs(c.Scan)
	if err != nil {
		return errors.Wrapf(err, "invalid scan path %q", c.Scan)
	}
	c.Scan = scanDir
	if !filepath.IsAbs(c.Dest) {
		c.Dest = filepath.Join(scanDir, c.Dest)
	}
	return nil
}

func (c *ConvertCmd) Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := batch.Convert(ctx, batch.Job{
		Scan:    c.Scan,
		Dest:    c.Dest,
		Decoder: newDecoder(cfg),
		Preview: cfg.PreviewOptions(),
		Workers: cfg.Workers,
	})
	if err != nil {
		return err
	}
	if stats.Failed > 0 {
		return errors.Errorf("%d of %d files failed", stats.Failed, stats.Processed+stats.Failed)
	}
	return nil
}

type InfoCmd struct {
	Files []string `arg:"" help:"Files to describe" type:"existingfile"`
}

func (c *InfoCmd) Run() error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, name := range c.Files {
		data, err := os.ReadFile(name)
		if err != nil {
			return errors.Wrap(err, "failed reading file")
		}
		info, err := preview.Describe(data)
		if err != nil {
			return errors.Wrap(err, name)
		}
		if err = enc.Encode(map[string]interface{}{"file": name, "info": info}); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("preview"),
		kong.Description("Decode BMP and PSD files into previews."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(cli.Config)
	kctx.FatalIfErrorf(err)
	kctx.FatalIfErrorf(cfg.Set(cli.Set))
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	kctx.FatalIfErrorf(cfg.Validate())

	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logrus.SetLevel(level)
	logrus.Debugf("config: %+v", cfg)

	kctx.FatalIfErrorf(kctx.Run(&cfg))
}
