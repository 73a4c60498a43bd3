package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Matthew-a-smith/OpenEdgeStack/internal/api"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/config"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/keystore"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/northbound"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/protocol"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/radio"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/storage"
	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/lorawan"
)

func main() {
	configPath := flag.String("config", "config/gateway.yml", "configuration file path")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	appKey, _ := cfg.AppKey()
	hmacKey, _ := cfg.HmacKey()
	netID, err := cfg.NetID()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid net_id")
	}
	gatewayEUI, err := lorawan.ParseEUI64(cfg.Gateway.GatewayEUI)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid gateway_eui")
	}

	kv, err := keystore.OpenBolt(cfg.Gateway.KeystorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open keystore")
	}
	defer kv.Close()
	sessions := keystore.NewSessionStore(kv, appKey, log.Logger)

	driver, err := radio.NewUDPDriver(cfg.Radio.UDPBind, cfg.Radio.UDPPeer, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open radio")
	}
	med := radio.NewMediator(driver, radio.Timing{
		PreTransmit:  cfg.Radio.PreTransmit,
		PostTransmit: cfg.Radio.PostTransmit,
		Quiet:        cfg.Radio.QuietPeriod,
		PollInterval: cfg.Radio.PollInterval,
	}, log.Logger)
	driver.SetNotify(med.NotifyReceived)

	gw := protocol.NewGateway(protocol.GatewayConfig{
		GatewayEUI: gatewayEUI,
		AppKey:     appKey,
		HmacKey:    hmacKey,
		NetID:      netID,
	}, sessions, med, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var frameLog *storage.PostgresStore
	if cfg.Database.DSN != "" {
		frameLog, err = storage.NewPostgresStore(cfg.Database.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer frameLog.Close()
	}

	var mqttLink *northbound.MQTTLink
	if cfg.MQTT.Enabled {
		mqttLink = northbound.NewMQTTLink(cfg.MQTT, gatewayEUI, gw, log.Logger)
		if err := mqttLink.Connect(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqttLink.Close()
	}

	var natsPub *northbound.NATSPublisher
	if cfg.NATS.Enabled {
		natsPub, err = northbound.NewNATSPublisher(cfg.NATS, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsPub.Close()
	}

	gw.OnUplink = func(devEUI lorawan.EUI64, regions []lorawan.Region, plaintext []byte) {
		if mqttLink != nil {
			mqttLink.PublishUplink(devEUI, regions)
		}
		if natsPub != nil {
			natsPub.PublishUplink(devEUI, regions)
		}
		if frameLog != nil {
			if err := frameLog.SaveUplinkFrame(ctx, devEUI.String(), plaintext); err != nil {
				log.Warn().Err(err).Msg("uplink frame not recorded")
			}
		}
	}
	gw.OnJoin = func(devEUI lorawan.EUI64, session lorawan.SessionInfo) {
		if mqttLink != nil {
			mqttLink.PublishJoin(devEUI, session.DevAddr)
		}
		if natsPub != nil {
			natsPub.PublishJoin(devEUI, session.DevAddr)
		}
		if frameLog != nil {
			err := frameLog.CreateEventLog(ctx, devEUI.String(), storage.EventTypeJoin,
				"device joined, dev_addr "+session.DevAddr.String())
			if err != nil {
				log.Warn().Err(err).Msg("join event not recorded")
			}
		}
	}

	go func() {
		if err := driver.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("radio stopped")
			cancel()
		}
	}()

	if err := med.StartReceive(); err != nil {
		log.Fatal().Err(err).Msg("failed to arm receiver")
	}
	go gw.Run(ctx)

	if cfg.API.Enabled {
		apiServer := api.NewServer(&cfg.API, gw)
		go func() {
			if err := apiServer.ListenAndServe(); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("admin api stopped")
			}
		}()
		defer apiServer.Shutdown(context.Background())
	}

	log.Info().Str("gateway_eui", gatewayEUI.String()).Msg("gateway started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}
	cancel()
}
