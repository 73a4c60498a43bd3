// Package northbound carries gateway traffic up and out: decoded uplinks
// and join events to the MQTT broker (and optionally a NATS bus), and
// broker-issued {dst, payload} commands back down to joined devices.
package northbound

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Matthew-a-smith/OpenEdgeStack/internal/config"
	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/lorawan"
)

// Downlinker is the piece of the gateway the broker link drives.
type Downlinker interface {
	SendDownlink(dst lorawan.EUI64, payload []byte, dataType lorawan.DataType) error
}

// Command is the inbound broker message shape.
type Command struct {
	Dst     string `json:"dst"`
	Payload string `json:"payload"`
}

// UplinkEvent is published for every authenticated uplink.
type UplinkEvent struct {
	ID         string       `json:"id"`
	DevEUI     string       `json:"devEUI"`
	ReceivedAt time.Time    `json:"receivedAt"`
	Regions    []RegionJSON `json:"regions"`
}

// RegionJSON is the rendered form of one decoded payload region.
type RegionJSON struct {
	Type  byte   `json:"type"`
	Value string `json:"value"`
}

// JoinEvent is published when a device establishes a session.
type JoinEvent struct {
	ID       string    `json:"id"`
	DevEUI   string    `json:"devEUI"`
	DevAddr  string    `json:"devAddr"`
	JoinedAt time.Time `json:"joinedAt"`
}

// boardInfo mirrors the device summary the stack publishes on connect.
type boardInfo struct {
	ChipID   string `json:"chip_id"`
	Model    string `json:"model"`
	NumCPU   int    `json:"cpu_count"`
	Hostname string `json:"hostname"`
}

// MQTTLink is the gateway's broker connection.
type MQTTLink struct {
	client     mqtt.Client
	gatewayEUI lorawan.EUI64
	downlink   Downlinker
	log        zerolog.Logger
}

// NewMQTTLink configures (but does not connect) the broker link.
func NewMQTTLink(cfg config.MQTTConfig, gatewayEUI lorawan.EUI64, downlink Downlinker, log zerolog.Logger) *MQTTLink {
	l := &MQTTLink{gatewayEUI: gatewayEUI, downlink: downlink, log: log}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(gatewayEUI.String()).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetOnConnectHandler(l.onConnect)
	l.client = mqtt.NewClient(opts)
	return l
}

// Connect dials the broker. On every (re)connect the board info is
// published and the command topic re-subscribed.
func (l *MQTTLink) Connect() error {
	token := l.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect timeout")
	}
	return token.Error()
}

// Close disconnects from the broker.
func (l *MQTTLink) Close() {
	l.client.Disconnect(250)
}

func (l *MQTTLink) onConnect(c mqtt.Client) {
	l.log.Info().Msg("mqtt connected")
	l.publishBoardInfo()

	topic := fmt.Sprintf("devices/%s/commands", l.gatewayEUI)
	if token := c.Subscribe(topic, 1, l.onCommand); token.Wait() && token.Error() != nil {
		l.log.Error().Err(token.Error()).Str("topic", topic).Msg("command subscribe failed")
		return
	}
	l.log.Info().Str("topic", topic).Msg("subscribed to commands")
}

func (l *MQTTLink) publishBoardInfo() {
	hostname, _ := os.Hostname()
	info := boardInfo{
		ChipID:   l.gatewayEUI.String(),
		Model:    runtime.GOARCH,
		NumCPU:   runtime.NumCPU(),
		Hostname: hostname,
	}
	payload, _ := json.Marshal(info)
	topic := fmt.Sprintf("devices/%s/boardinfo", l.gatewayEUI)
	l.client.Publish(topic, 0, true, payload)
}

// onCommand routes a {dst, payload} message to the addressed device.
func (l *MQTTLink) onCommand(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		l.log.Warn().Err(err).Msg("command parse failed")
		return
	}
	if cmd.Dst == "" || cmd.Payload == "" {
		l.log.Warn().Msg("command missing dst or payload")
		return
	}

	dst, err := lorawan.ParseEUI64(cmd.Dst)
	if err != nil {
		l.log.Warn().Err(err).Str("dst", cmd.Dst).Msg("bad command destination")
		return
	}

	if err := l.downlink.SendDownlink(dst, []byte(cmd.Payload), lorawan.TypeText); err != nil {
		l.log.Warn().Err(err).Str("dst", cmd.Dst).Msg("downlink failed")
		return
	}
	l.log.Info().Str("dst", cmd.Dst).Msg("command forwarded to device")
}

// PublishUplink publishes a decoded uplink event.
func (l *MQTTLink) PublishUplink(devEUI lorawan.EUI64, regions []lorawan.Region) {
	event := UplinkEvent{
		ID:         uuid.New().String(),
		DevEUI:     devEUI.String(),
		ReceivedAt: time.Now().UTC(),
	}
	for _, r := range regions {
		event.Regions = append(event.Regions, RegionJSON{Type: byte(r.Type), Value: r.Describe()})
	}

	payload, _ := json.Marshal(event)
	topic := fmt.Sprintf("devices/%s/up", devEUI)
	l.client.Publish(topic, 0, false, payload)
}

// PublishJoin publishes a join event.
func (l *MQTTLink) PublishJoin(devEUI lorawan.EUI64, devAddr lorawan.DevAddr) {
	event := JoinEvent{
		ID:       uuid.New().String(),
		DevEUI:   devEUI.String(),
		DevAddr:  devAddr.String(),
		JoinedAt: time.Now().UTC(),
	}
	payload, _ := json.Marshal(event)
	topic := fmt.Sprintf("devices/%s/join", devEUI)
	l.client.Publish(topic, 0, false, payload)
}
