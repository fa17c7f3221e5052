package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"peerlens/internal/core/domain"
	"peerlens/internal/core/services"
	"peerlens/internal/infrastructure/analysis"
	"peerlens/internal/infrastructure/capture"
	"peerlens/internal/infrastructure/render"
	"peerlens/internal/infrastructure/signal"
	webrtcinfra "peerlens/internal/infrastructure/webrtc"
	"peerlens/pkg/config"
	"peerlens/pkg/logger"
	"peerlens/pkg/retry"
	"peerlens/pkg/utils"

	pion "github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		roleFlag   = flag.String("role", "", "peer role: producer or consumer")
		sessionID  = flag.String("session", "", "session id to join (generated when empty)")
		relayURL   = flag.String("relay-url", "", "relay websocket url")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	if *roleFlag != "" {
		cfg.Peer.Role = *roleFlag
	}
	if *sessionID != "" {
		cfg.Peer.SessionID = *sessionID
	}
	if *relayURL != "" {
		cfg.Peer.RelayURL = *relayURL
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	role := domain.Role(cfg.Peer.Role)
	if !role.Valid() {
		log.Fatalw("role must be producer or consumer", "role", cfg.Peer.Role)
	}
	session := domain.SessionID(cfg.Peer.SessionID)
	if session == "" {
		session = domain.SessionID(utils.GenerateSessionID())
		log.Infow("generated session id", "session_id", session)
	}

	var iceServers []pion.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []pion.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	transport, err := webrtcinfra.NewPeerTransport(iceServers, role, zapLogger)
	if err != nil {
		log.Fatalw("failed to create peer transport", "error", err)
	}
	defer transport.Close()

	var lifecycle *services.LifecycleService
	client := signal.NewClient(cfg.Peer.RelayURL, session, role,
		func(ctx context.Context, msg domain.SignalMessage) {
			if err := lifecycle.HandleSignal(ctx, msg); err != nil {
				log.Warnw("signal handling failed", "type", msg.Type, "error", err)
			}
		},
		zapLogger,
	)
	defer client.Close()

	lifecycle = services.NewLifecycleService(role, transport, client, zapLogger,
		services.WithCandidateFailureLimit(cfg.WebRTC.CandidateFailureLimit),
		services.WithReconnectPolicy(retry.Policy{
			MaxAttempts: cfg.Peer.Reconnect.MaxAttempts,
			BaseDelay:   cfg.Peer.Reconnect.BaseDelay,
		}),
	)

	transport.OnTransportSignal(lifecycle.OnTransportSignal)
	transport.OnLocalCandidate(func(candidate json.RawMessage) {
		msg := domain.SignalMessage{Type: domain.SignalICECandidate, Role: role, Candidate: candidate}
		if err := client.Send(msg); err != nil {
			log.Warnw("failed to trickle candidate", "error", err)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 2)
	go func() {
		errChan <- client.Run(ctx, lifecycle)
	}()

	metrics := services.NewMetricsService(cfg.Metrics.WindowCapacity)

	if role == domain.RoleConsumer {
		gate := services.NewDispatchGate(cfg.Peer.Dispatch.ThrottleInterval)
		analyzer := analysis.NewService(cfg.Peer.AnalyzerURL, zapLogger)
		sampler := webrtcinfra.NewBandwidthSampler(transport, zapLogger)
		source := capture.NewSyntheticSource(cfg.Peer.Dispatch.ThrottleInterval/2, 0)
		defer source.Close()
		sink := render.NewLogSink(zapLogger)

		pipeline := services.NewPipelineService(
			gate, analyzer, metrics, source, sink, sampler,
			cfg.Metrics.BandwidthInterval, zapLogger,
		)
		go func() {
			errChan <- pipeline.Run(ctx)
		}()

		go reportMetrics(ctx, client, metrics, role, log)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Infow("connectivity", "status", lifecycle.Status())
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			log.Errorw("peer terminated", "error", err)
		}
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	cancel()
	log.Info("peer stopped")
}

// reportMetrics periodically pushes the metrics export to the counterpart
// over the signaling channel as analysis-result traffic.
func reportMetrics(ctx context.Context, sender *signal.Client, metrics *services.MetricsService, role domain.Role, log *zap.SugaredLogger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			export := metrics.Export()
			data, err := json.Marshal(export)
			if err != nil {
				continue
			}
			msg := domain.SignalMessage{Type: domain.SignalAnalysisResult, Role: role, Data: data}
			if err := sender.Send(msg); err != nil {
				log.Warnw("metrics report send failed", "error", err)
			}
		}
	}
}
