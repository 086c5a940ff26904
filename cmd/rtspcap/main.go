package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zsiec/ccx"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/rtspcap/internal/capture"
	"github.com/zsiec/rtspcap/internal/config"
	"github.com/zsiec/rtspcap/internal/decoder"
	"github.com/zsiec/rtspcap/internal/ingest"
	"github.com/zsiec/rtspcap/internal/sink"
	"github.com/zsiec/rtspcap/internal/source"
	"github.com/zsiec/rtspcap/internal/source/rtsp"
	"github.com/zsiec/rtspcap/internal/source/srt"
)

var version = "dev"

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		slog.Error("capture failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	opts, err := cfg.SourceOptions()
	if err != nil {
		return err
	}
	src, err := newSource(cfg.Source.URL, opts)
	if err != nil {
		return err
	}

	ffmpegPath, err := decoder.FindFFmpeg(cfg.Decoder.FFmpegPath)
	if err != nil {
		return err
	}

	out, err := openOutput(cfg.Output.Path)
	if err != nil {
		return err
	}
	y4m := sink.NewY4M(out, cfg.Output.FPS, nil)
	defer func() {
		if err := y4m.Close(); err != nil {
			slog.Warn("closing output", "error", err)
		}
	}()

	capCfg := capture.Config{
		Consumer:   y4m,
		Decoders:   decoder.NewFFmpegFactory(ffmpegPath, nil),
		Source:     src,
		Registerer: prometheus.DefaultRegisterer,
	}
	if cfg.Captions {
		capCfg.Captions = func(f *ccx.CaptionFrame) {
			slog.Info("caption", "channel", f.Channel, "pts_us", f.PTS, "text", f.Text)
		}
	}
	capturer, err := capture.New(capCfg)
	if err != nil {
		return err
	}

	slog.Info("rtspcap starting",
		"version", version,
		"source", cfg.Source.URL,
		"transport", opts.Transport,
		"timeout", opts.Timeout,
		"ffmpeg", ffmpegPath,
		"output", cfg.Output.Path,
		"metrics", cfg.MetricsAddr,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := capturer.Run(ctx)
		written, skipped := y4m.Frames()
		slog.Info("capture finished", "frames", written, "skipped", skipped)
		if err != nil {
			return err
		}
		// Take the metrics server down with the capture.
		return errCaptureDone
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

		g.Go(func() error {
			slog.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errCaptureDone) {
		return err
	}
	return nil
}

var errCaptureDone = errors.New("capture done")

// newSource picks the transport from the URL scheme. SRT URLs take
// mode=listener|caller and streamid= query parameters.
func newSource(rawURL string, opts source.Options) (source.Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("source url: %w", err)
	}
	switch u.Scheme {
	case "rtsp", "rtsps":
		s, err := rtsp.New(rawURL, opts, nil)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "srt":
		q := u.Query()
		mode, err := srt.ParseMode(q.Get("mode"))
		if err != nil {
			return nil, err
		}
		s, err := srt.New(srt.Config{
			Addr:     u.Host,
			Mode:     mode,
			StreamID: q.Get("streamid"),
			Options:  opts,
			Registry: ingest.NewRegistry(),
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported source scheme %q", u.Scheme)
}

func openOutput(path string) (io.Writer, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return f, nil
}

// nopCloser keeps Y4M.Close from closing stdout.
type nopCloser struct{ io.Writer }
