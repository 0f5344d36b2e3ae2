// Package server renders previews of uploaded images over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	_ "image/gif"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/chocolatkey/rasterpreview"
	"github.com/chocolatkey/rasterpreview/pkg/preview"
	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

const (
	HeaderKey    = "X-Preview-Key"
	HeaderFormat = "X-Source-Format"

	shutdownTimeout = time.Second * 5
)

type Options struct {
	Preview       preview.Options // Defaults for requests that omit a parameter
	MaxInputBytes int
}

type Server struct {
	decoder *rasterpreview.Decoder
	cache   *preview.Cache
	opts    Options
	mux     *http.ServeMux
}

func New(decoder *rasterpreview.Decoder, cache *preview.Cache, opts Options) *Server {
	if opts.MaxInputBytes <= 0 {
		opts.MaxInputBytes = rasterpreview.DefaultMaxInputBytes
	}
	if cache == nil {
		cache = preview.NewCache(0, false)
	}
	s := &Server{
		decoder: decoder,
		cache:   cache,
		opts:    opts,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /preview", s.handlePreview)
	s.mux.HandleFunc("GET /preview/{key}", s.handleCached)
	s.mux.HandleFunc("POST /info", s.handleInfo)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}
	errc := make(chan error, 1)
	go func() {
		logrus.Infoln("listening on", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logrus.Infoln("shutting down")
	return errors.Wrap(srv.Shutdown(sctx), "failed shutting down")
}

// statusFor maps decode failures onto HTTP status codes.
func statusFor(err error) int {
	switch k := raster.KindOf(err); {
	case k == raster.SizeOverflow:
		return http.StatusRequestEntityTooLarge
	case k == raster.BadSignature || k.Unsupported():
		return http.StatusUnsupportedMediaType
	case k != 0:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(s.opts.MaxInputBytes)))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, "Bad request body", http.StatusBadRequest)
		}
		return nil, false
	}
	if len(data) == 0 {
		http.Error(w, "Empty request body", http.StatusBadRequest)
		return nil, false
	}
	return data, true
}

func (s *Server) renderOptions(r *http.Request) (preview.Options, error) {
	q := r.URL.Query()
	opts := s.opts.Preview
	if opts.Format == "" {
		opts.Format = preview.PNG
	}
	if f := q.Get("format"); f != "" {
		format, err := preview.ParseFormat(f)
		if err != nil {
			return opts, err
		}
		opts.Format = format
	}

	toUint := func(s string, dst *int) error {
		if s == "" {
			return nil
		}
		num, err := strconv.ParseUint(s, 10, 31)
		if err != nil {
			return err
		}
		*dst = int(num)
		return nil
	}
	if err := toUint(q.Get("max_width"), &opts.MaxWidth); err != nil {
		return opts, errors.Wrap(err, "invalid max_width")
	}
	if err := toUint(q.Get("max_height"), &opts.MaxHeight); err != nil {
		return opts, errors.Wrap(err, "invalid max_height")
	}
	if err := toUint(q.Get("quality"), &opts.Quality); err != nil || opts.Quality > 100 {
		return opts, errors.New("invalid quality")
	}
	return opts, nil
}

// decode runs the BMP and PSD decoders, falling back to any format
// registered with the image package.
func (s *Server) decode(ctx context.Context, data []byte) (*raster.Image, raster.Format, error) {
	if rasterpreview.Sniff(data) != raster.Unknown {
		return s.decoder.DecodeContext(ctx, data)
	}
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, raster.Unknown, raster.Wrap(raster.Unknown, raster.BadSignature, err, "no decoder")
	}
	f := raster.Format(name)
	if _, err = s.decoder.Limits().Check(f, uint64(cfg.Width), uint64(cfg.Height)); err != nil {
		return nil, f, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, f, raster.Wrap(f, raster.Malformed, err, "decode")
	}
	b := src.Bounds()
	img, err := raster.New(f, b.Dx(), b.Dy(), s.decoder.Limits())
	if err != nil {
		return nil, f, err
	}
	dst := img.NRGBA()
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return img, f, nil
}

func (s *Server) render(w http.ResponseWriter, key preview.Key, f raster.Format, img *raster.Image, opts preview.Options) {
	var buf bytes.Buffer
	if err := preview.Render(&buf, img.NRGBA(), opts); err != nil {
		logrus.WithField("key", key).Errorln(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("content-type", opts.Format.ContentType())
	w.Header().Set(HeaderKey, key.String())
	w.Header().Set(HeaderFormat, string(f))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	opts, err := s.renderOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, ok := s.readBody(w, r)
	if !ok {
		return
	}

	key := preview.KeyOf(data)
	img, f, err := s.decode(r.Context(), data)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "format": f}).Debugln("decode failed:", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.cache.Put(key, f, img)
	s.render(w, key, f, img, opts)
}

func (s *Server) handleCached(w http.ResponseWriter, r *http.Request) {
	key, err := preview.ParseKey(r.PathValue("key"))
	if err != nil {
		http.Error(w, "Invalid key", http.StatusBadRequest)
		return
	}
	opts, err := s.renderOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	img, f, ok := s.cache.Get(key)
	if !ok {
		http.Error(w, "Not cached", http.StatusNotFound)
		return
	}
	s.render(w, key, f, img, opts)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readBody(w, r)
	if !ok {
		return
	}
	info, err := preview.Describe(data)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("content-type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(info)
}
