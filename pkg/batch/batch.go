// Package batch renders previews for every BMP and PSD file in a folder.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chocolatkey/rasterpreview"
	"github.com/chocolatkey/rasterpreview/pkg/parallel"
	"github.com/chocolatkey/rasterpreview/pkg/preview"
	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

type Job struct {
	Scan    string // Source folder, not recursed into
	Dest    string
	Decoder *rasterpreview.Decoder
	Preview preview.Options
	Workers int
}

type Stats struct {
	Processed int
	Skipped   int // Not a BMP or PSD file
	Failed    int
}

// Convert renders Dest/<name>.<ext> for each decodable file in Scan. Files
// that fail are logged and counted; only folder-level problems and
// cancellation are returned as errors.
func Convert(ctx context.Context, job Job) (Stats, error) {
	if job.Decoder == nil {
		job.Decoder = rasterpreview.New()
	}
	if err := os.MkdirAll(job.Dest, 0o755); err != nil {
		return Stats{}, errors.Wrapf(err, "unable to create destination folder %s", job.Dest)
	}
	files, err := os.ReadDir(job.Scan)
	if err != nil {
		return Stats{}, errors.Wrapf(err, "unable to read folder %s", job.Scan)
	}

	var processed, skipped, failed atomic.Int64
	pool := parallel.Start(job.Workers)
	for _, file := range files {
		if !file.Type().IsRegular() {
			continue
		}
		name := file.Name()
		err = pool.Do(ctx, func() {
			switch err := convertFile(job, name); {
			case err == nil:
				processed.Add(1)
			case errors.Is(err, errSkipped):
				skipped.Add(1)
			default:
				failed.Add(1)
				logrus.WithField("file", name).Errorln("could not convert:", err)
			}
		})
		if err != nil {
			break
		}
	}
	pool.Wait()

	stats := Stats{
		Processed: int(processed.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}
	logrus.WithFields(logrus.Fields{
		"processed": stats.Processed,
		"skipped":   stats.Skipped,
		"failed":    stats.Failed,
	}).Infoln("batch done")
	return stats, err
}

var errSkipped = errors.New("not a BMP or PSD file")

func convertFile(job Job, name string) error {
	data, err := os.ReadFile(filepath.Join(job.Scan, name))
	if err != nil {
		return errors.Wrap(err, "could not read file")
	}
	if rasterpreview.Sniff(data) == raster.Unknown {
		return errSkipped
	}
	img, _, err := job.Decoder.Decode(data)
	if err != nil {
		return err
	}
	return save(job, name, img)
}

// save writes through a temporary file so that a failed encode never
// leaves a partial preview behind.
func save(job Job, srcName string, img *raster.Image) (err error) {
	format := job.Preview.Format
	if format == "" {
		format = preview.PNG
	}
	destName := fmt.Sprintf("%s.%s", srcName[:len(srcName)-len(filepath.Ext(srcName))], format.Ext())

	out, err := os.CreateTemp(job.Dest, destName+".*")
	if err != nil {
		return errors.Wrap(err, "could not create temporary destination")
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "could not close temporary destination")
		}
		if err != nil {
			os.Remove(out.Name())
			return
		}
		if rerr := os.Rename(out.Name(), filepath.Join(job.Dest, destName)); rerr != nil {
			err = errors.Wrap(rerr, "could not rename destination")
		}
	}()

	opts := job.Preview
	opts.Format = format
	if err = preview.Render(out, img.NRGBA(), opts); err != nil {
		return err
	}
	return errors.Wrap(out.Sync(), "could not flush destination")
}
