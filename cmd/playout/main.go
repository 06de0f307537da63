// Command playout plays a media container in a loop and serves it to browsers
// over WebRTC.
//
// Usage:
//
//	playout --container-path movie.mkv
//	playout --config playout.yaml --record-dir ./rec
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	streamplayout "github.com/e7canasta/stream-playout"
	"github.com/e7canasta/stream-playout/engine/gstreamer"
	"github.com/e7canasta/stream-playout/internal/bufferbus"
	"github.com/e7canasta/stream-playout/internal/config"
	"github.com/e7canasta/stream-playout/internal/control"
	"github.com/e7canasta/stream-playout/internal/recorder"
	"github.com/e7canasta/stream-playout/internal/signaling"
	"github.com/e7canasta/stream-playout/internal/webrtcsink"
)

const version = "0.1.0"

type options struct {
	configPath    string
	containerPath string
	listenAddress string
	logLevel      string
	logFormat     string
	mqttBroker    string
	recordDir     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&options{})
}

// buildRootCmd binds the command line flags to opts.
func buildRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "playout",
		Short:         "Loop a media container and serve it over WebRTC",
		Long:          "Play a container file through a GStreamer pipeline, loop it on end-of-stream and forward its audio and video buffers to WebRTC viewers.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML configuration file")
	flags.StringVar(&opts.containerPath, "container-path", "", "Media container to play (overrides media.container_path)")
	flags.StringVar(&opts.listenAddress, "http-listen-address", "", "Viewer/signaling listen address (overrides http.listen_address)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text, json")
	flags.StringVar(&opts.mqttBroker, "mqtt-broker", "", "MQTT broker host:port, enables the MQTT control plane")
	flags.StringVar(&opts.recordDir, "record-dir", "", "Record forwarded buffers to this directory")

	return cmd
}

// loadConfig reads the config file (or defaults), applies flag overrides and
// validates the result.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("container-path") {
		cfg.Media.ContainerPath = opts.containerPath
	}
	if flags.Changed("http-listen-address") {
		cfg.HTTP.ListenAddress = opts.listenAddress
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if flags.Changed("mqtt-broker") {
		cfg.MQTT.Broker = opts.mqttBroker
	}
	if flags.Changed("record-dir") {
		cfg.Recorder.Dir = opts.recordDir
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel()}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(parent context.Context, cfg *config.Config) error {
	setupLogging(cfg)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("playout: starting",
		"version", version,
		"container", cfg.Media.ContainerPath,
		"listen", cfg.HTTP.ListenAddress,
		"mqtt", cfg.MQTTEnabled(),
		"recorder", cfg.RecorderEnabled(),
	)

	tracks, err := webrtcsink.NewTracks()
	if err != nil {
		return fmt.Errorf("create webrtc tracks: %w", err)
	}
	trackSink := webrtcsink.NewTrackSinkFor(tracks, slog.Default())

	bus := bufferbus.New()
	defer bus.Close()

	var rec *recorder.Recorder
	if cfg.RecorderEnabled() {
		rec, err = recorder.New(cfg.Recorder.Dir)
		if err != nil {
			return err
		}
		defer rec.Close()

		ch := make(chan streamplayout.MediaBuffer, cfg.Recorder.Buffer)
		if err := bus.Subscribe("recorder", ch); err != nil {
			return err
		}
		go rec.Run(ctx, ch)
	}

	dispatcher, err := streamplayout.NewDispatcher(gstreamer.NewMainLoop())
	if err != nil {
		return err
	}
	defer dispatcher.Stop()

	player, err := streamplayout.NewPlayer(gstreamer.New(), cfg.Description(), streamplayout.Tee(trackSink, bus))
	if err != nil {
		return err
	}
	defer player.Close()

	if err := dispatcher.Start(); err != nil {
		return err
	}
	if err := player.Start(); err != nil {
		return err
	}

	router := control.NewRouter(player)

	mux := http.NewServeMux()
	signaling.NewServer(router, func() (signaling.Peer, error) {
		return webrtcsink.NewPeer(webrtc.Configuration{}, tracks)
	}).Register(mux)
	if cfg.MetricsEnabled() {
		mux.Handle("/metrics", promhttp.Handler())
	}

	if cfg.MQTTEnabled() {
		client, err := control.Connect(cfg.MQTT)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)

		handler := control.NewHandler(client, cfg.MQTT.Topic, cfg.MQTT.QoS, router)
		if err := handler.Start(ctx); err != nil {
			return err
		}
		defer handler.Stop()
	}

	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("playout: http server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("playout: shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutS)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("playout: http shutdown incomplete", "error", err)
	}

	stats := player.Stats()
	slog.Info("playout: stopped",
		"state", stats.State,
		"seeks", stats.Seeks,
		"loop_restarts", stats.LoopRestarts,
		"uptime", stats.Uptime.Round(time.Second),
	)
	return nil
}
