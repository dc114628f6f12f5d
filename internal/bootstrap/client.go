package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/neokaiyuan/ask-goodnotes/internal/audio"
	"github.com/neokaiyuan/ask-goodnotes/internal/capture"
	"github.com/neokaiyuan/ask-goodnotes/internal/playback"
	"github.com/neokaiyuan/ask-goodnotes/internal/realtime"
	"github.com/neokaiyuan/ask-goodnotes/internal/session"
	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
	"github.com/neokaiyuan/ask-goodnotes/internal/uploader"
)

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

// ClientID names the ordered-ingest run owner on both transports.
type ClientID string

func ProvideClientID() ClientID {
	return ClientID(uuid.NewString())
}

func realtimeConfig(cfg *Config) realtime.Config {
	iceServers := make([]realtime.ICEServerConfig, 0, len(cfg.RTCICEServers))
	for _, s := range cfg.RTCICEServers {
		iceServers = append(iceServers, realtime.ICEServerConfig{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return realtime.Config{
		URL:            cfg.SignalURL,
		ReconnectDelay: cfg.ReconnectDelay,
		MaxReconnects:  cfg.MaxReconnects,
		ICEServers:     iceServers,
	}
}

func ProvideManager(cfg *Config, clientID ClientID, logger *slog.Logger) *realtime.Manager {
	return realtime.NewManager(realtimeConfig(cfg), string(clientID), realtime.GorillaDial, logger)
}

func ProvideControlClient(cfg *Config) *uploader.HTTPControlClient {
	return uploader.NewHTTPControlClient(cfg.ControlURL, &http.Client{})
}

func ProvideUploader(control *uploader.HTTPControlClient, clientID ClientID, logger *slog.Logger) *uploader.Uploader {
	return uploader.New(control, string(clientID), logger)
}

func ProvidePlayer(logger *slog.Logger) *playback.Queue {
	sink := playback.NewTimedSink(audio.PlaybackSampleRate, logger)
	return playback.NewQueue(sink, logger)
}

func ProvideCapture(cfg *Config) *capture.TickerSource {
	return capture.NewTickerSource(cfg.CaptureInterval, nil)
}

func ProvideSignalSink(cfg *Config, mgr *realtime.Manager, logger *slog.Logger) (transport.SignalSink, error) {
	if !cfg.RTCEnabled {
		return nil, nil
	}
	peer, err := realtime.NewPeer(realtimeConfig(cfg), mgr, logger)
	if err != nil {
		return nil, err
	}
	return peer, nil
}

func ProvideSession(
	mgr *realtime.Manager,
	up *uploader.Uploader,
	player *playback.Queue,
	source *capture.TickerSource,
	control *uploader.HTTPControlClient,
	signals transport.SignalSink,
	logger *slog.Logger,
) *session.Session {
	return session.New(session.Config{
		Conn:     mgr,
		Recorder: up,
		Player:   player,
		Capture:  source,
		Control:  control,
		Signals:  signals,
		Log:      logger,
	})
}

func StartSession(lc fx.Lifecycle, sess *session.Session, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sess.OnStateChange(func(state session.State) {
				logger.Info("session state changed", "state", state)
			})
			sess.OnFailure(func(err error) {
				logger.Error("session failed", "error", err)
			})
			return sess.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			sess.Close()
			return nil
		},
	})
}

var ClientModule = fx.Options(
	fx.Provide(
		ProvideClientID,
		ProvideManager,
		ProvideControlClient,
		ProvideUploader,
		ProvidePlayer,
		ProvideCapture,
		ProvideSignalSink,
		ProvideSession,
	),
	fx.Invoke(StartSession),
)

func RunClient() {
	fx.New(
		fx.Provide(LoadConfig, ProvideLogger),
		ClientModule,
	).Run()
}
