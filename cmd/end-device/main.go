package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Matthew-a-smith/OpenEdgeStack/internal/config"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/groupfile"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/keystore"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/protocol"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/radio"
	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/lorawan"
)

func main() {
	configPath := flag.String("config", "config/end-device.yml", "configuration file path")
	sendText := flag.String("send", "", "send a text payload after joining")
	storeText := flag.String("store", "", "buffer a text payload into a group file (prefix:payload)")
	drain := flag.String("drain", "", "drain and transmit a group prefix after joining")
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
	devEUI, err := lorawan.ParseEUI64(cfg.Device.DevEUI)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid dev_eui")
	}
	appEUI, err := lorawan.ParseEUI64(cfg.Device.AppEUI)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid app_eui")
	}
	gatewayEUI, err := lorawan.ParseEUI64(cfg.Device.GatewayEUI)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid gateway_eui")
	}

	kv, err := keystore.OpenBolt(cfg.Device.KeystorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open keystore")
	}
	defer kv.Close()
	sessions := keystore.NewSessionStore(kv, appKey, log.Logger)

	files, err := groupfile.New(groupfile.Config{
		Dir:              cfg.Group.Dir,
		MaxFileSize:      cfg.Group.MaxFileSize,
		GroupLimit:       cfg.Group.GroupLimit,
		GroupPrefixLimit: cfg.Group.GroupPrefixLimit,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open group buffer")
	}

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

	dev := protocol.NewDevice(protocol.DeviceConfig{
		DevEUI:     devEUI,
		AppEUI:     appEUI,
		GatewayEUI: gatewayEUI,
		AppKey:     appKey,
		HmacKey:    hmacKey,
	}, sessions, med, files, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := driver.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("radio stopped")
			cancel()
		}
	}()

	if err := med.StartReceive(); err != nil {
		log.Fatal().Err(err).Msg("failed to arm receiver")
	}

	if err := dev.SendJoinRequest(cfg.Device.JoinRetries, cfg.Device.JoinDelay); err != nil {
		log.Fatal().Err(err).Msg("join failed")
	}

	if *storeText != "" {
		prefix, payload, ok := strings.Cut(*storeText, ":")
		if !ok {
			log.Fatal().Msg("-store expects prefix:payload")
		}
		if err := dev.StorePacket([]byte(payload), lorawan.TypeText, prefix); err != nil {
			log.Fatal().Err(err).Msg("store failed")
		}
		log.Info().Str("prefix", prefix).Msg("payload buffered")
	}

	if *sendText != "" {
		if err := dev.Send([]byte(*sendText), lorawan.TypeText); err != nil {
			log.Error().Err(err).Msg("send failed")
		}
	}

	if *drain != "" {
		if err := dev.SendStoredGroupFile(*drain); err != nil {
			log.Error().Err(err).Msg("drain failed")
		}
	}

	go dev.Run(ctx)

	log.Info().Str("dev_eui", devEUI.String()).Msg("end device started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}
	cancel()
}
