package northbound

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/Matthew-a-smith/OpenEdgeStack/internal/config"
	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/lorawan"
)

// NATSPublisher mirrors uplink and join events onto a NATS bus for
// integrations that prefer a queue over MQTT topics.
type NATSPublisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// NewNATSPublisher connects to the configured NATS server.
func NewNATSPublisher(cfg config.NATSConfig, log zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{nc: nc, log: log}, nil
}

// Close closes the connection without draining pending messages.
func (p *NATSPublisher) Close() {
	p.nc.Close()
}

// PublishUplink publishes a decoded uplink to edgestack.device.<eui>.rx.
func (p *NATSPublisher) PublishUplink(devEUI lorawan.EUI64, regions []lorawan.Region) {
	event := UplinkEvent{
		ID:         uuid.New().String(),
		DevEUI:     devEUI.String(),
		ReceivedAt: time.Now().UTC(),
	}
	for _, r := range regions {
		event.Regions = append(event.Regions, RegionJSON{Type: byte(r.Type), Value: r.Describe()})
	}

	payload, _ := json.Marshal(event)
	subject := fmt.Sprintf("edgestack.device.%s.rx", devEUI)
	if err := p.nc.Publish(subject, payload); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("nats publish failed")
	}
}

// PublishJoin publishes a join event to edgestack.device.<eui>.join.
func (p *NATSPublisher) PublishJoin(devEUI lorawan.EUI64, devAddr lorawan.DevAddr) {
	event := JoinEvent{
		ID:       uuid.New().String(),
		DevEUI:   devEUI.String(),
		DevAddr:  devAddr.String(),
		JoinedAt: time.Now().UTC(),
	}
	payload, _ := json.Marshal(event)
	subject := fmt.Sprintf("edgestack.device.%s.join", devEUI)
	if err := p.nc.Publish(subject, payload); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("nats publish failed")
	}
}
