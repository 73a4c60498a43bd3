package protocol

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/Matthew-a-smith/OpenEdgeStack/internal/groupfile"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/keystore"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/radio"
	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/lorawan"
)

// FlushCommand is the downlink text payload that tells a device to drop
// its session and rejoin.
const FlushCommand = "FLUSH:"

// AckPayload is the literal downlink acknowledgement payload.
const AckPayload = "ACK:"

// DeviceConfig holds the provisioned identity of one end device.
type DeviceConfig struct {
	DevEUI     lorawan.EUI64
	AppEUI     lorawan.EUI64
	GatewayEUI lorawan.EUI64
	AppKey     lorawan.AES128Key
	HmacKey    lorawan.AES128Key
}

// Device is the end-device protocol engine: join handshake, encrypted
// uplinks, downlink handling, and the store-and-forward drain path.
type Device struct {
	cfg      DeviceConfig
	sessions *keystore.SessionStore
	radio    *radio.Mediator
	files    *groupfile.Buffer
	log      zerolog.Logger

	rand io.Reader

	// OnMessage, when set, receives each decoded downlink region.
	OnMessage func(lorawan.Region)
	// OnAck, when set, fires on every received acknowledgement.
	OnAck func()
}

// NewDevice assembles a device engine. files may be nil for devices that
// never batch.
func NewDevice(cfg DeviceConfig, sessions *keystore.SessionStore, med *radio.Mediator, files *groupfile.Buffer, log zerolog.Logger) *Device {
	return &Device{
		cfg:      cfg,
		sessions: sessions,
		radio:    med,
		files:    files,
		log:      log,
		rand:     rand.Reader,
	}
}

func (d *Device) devEUIHex() string {
	return d.cfg.DevEUI.String()
}

// SendJoinRequest performs the join handshake: up to maxRetries attempts,
// each transmitting a fresh join request and waiting retryDelay for the
// 16-byte accept. A device that already holds a session returns
// immediately without transmitting.
func (d *Device) SendJoinRequest(maxRetries int, retryDelay time.Duration) error {
	if _, ok := d.sessions.Get(d.devEUIHex()); ok {
		d.log.Info().Msg("session already exists, skipping join")
		return nil
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		d.log.Info().Int("attempt", attempt).Int("max", maxRetries).Msg("sending join request")

		var nonceBuf [2]byte
		if _, err := io.ReadFull(d.rand, nonceBuf[:]); err != nil {
			return fmt.Errorf("generate dev nonce: %w", err)
		}
		devNonce := binary.LittleEndian.Uint16(nonceBuf[:])

		req := lorawan.JoinRequestPayload{
			DevEUI:   d.cfg.DevEUI,
			AppEUI:   d.cfg.AppEUI,
			DevNonce: devNonce,
		}
		if err := d.radio.Transmit(req.Marshal(d.cfg.HmacKey), true); err != nil {
			d.log.Warn().Err(err).Msg("join request transmit failed")
			continue
		}

		reply := d.radio.WaitFrame(retryDelay)
		if len(reply) == lorawan.JoinAcceptLen && d.handleJoinAccept(reply, devNonce) {
			d.log.Info().Msg("join successful")
			return nil
		}

		d.log.Info().Msg("no valid join reply, retrying")
	}
	return ErrJoinFailed
}

// handleJoinAccept decrypts the accept, checks the DevNonce echo against
// the outstanding value, derives both session keys, and stores the session.
func (d *Device) handleJoinAccept(buf []byte, devNonce uint16) bool {
	accept, err := lorawan.ParseJoinAccept(d.cfg.AppKey, buf)
	if err != nil {
		d.log.Warn().Err(err).Msg("join accept parse failed")
		return false
	}
	if accept.DevNonce != devNonce {
		d.log.Warn().Msg("join accept nonce echo mismatch")
		return false
	}

	nwkSKey, appSKey := lorawan.DeriveSessionKeys(d.cfg.AppKey, accept.JoinNonce, accept.NetID, accept.DevNonce)
	session := lorawan.SessionInfo{
		DevAddr:   accept.DevAddr,
		AppSKey:   appSKey,
		NwkSKey:   nwkSKey,
		JoinNonce: accept.JoinNonce,
		NetID:     accept.NetID,
		DevNonce:  accept.DevNonce,
	}
	d.sessions.Store(d.devEUIHex(), session)

	d.log.Info().
		Str("dev_addr", session.DevAddr.String()).
		Msg("join accept processed, session keys derived")
	return true
}

// Send encrypts a single typed payload and transmits it.
func (d *Device) Send(payload []byte, dataType lorawan.DataType) error {
	session, ok := d.sessions.Get(d.devEUIHex())
	if !ok {
		return ErrUnknownSession
	}

	plaintext := make([]byte, 1+len(payload))
	plaintext[0] = byte(dataType)
	copy(plaintext[1:], payload)

	return d.transmitData(session, plaintext, true)
}

// Poll sends a typed payload after an optional pre-delay, the shape used
// for request/response exchanges with the gateway.
func (d *Device) Poll(payload []byte, dataType lorawan.DataType, preDelay time.Duration) error {
	if preDelay > 0 {
		time.Sleep(preDelay)
	}
	return d.Send(payload, dataType)
}

func (d *Device) transmitData(session lorawan.SessionInfo, plaintext []byte, reopenRX bool) error {
	nonce, err := lorawan.NewDataNonce(d.cfg.DevEUI)
	if err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	frame := lorawan.BuildDataFrame(d.cfg.HmacKey, session.AppSKey, d.cfg.DevEUI, nonce, plaintext)
	if err := d.radio.Transmit(frame, reopenRX); err != nil {
		return fmt.Errorf("%w: %v", ErrRadio, err)
	}
	return nil
}

// StorePacket buffers a typed payload into the prefix's group file.
func (d *Device) StorePacket(data []byte, dataType lorawan.DataType, prefix string) error {
	return d.files.StorePacket(data, dataType, prefix)
}

// SendStoredGroupFile drains the prefix: the lowest existing group file is
// transmitted as one data frame, and its successor, when present, follows
// after the quiet period. Receive is re-armed only after the last file.
func (d *Device) SendStoredGroupFile(prefix string) error {
	session, ok := d.sessions.Get(d.devEUIHex())
	if !ok {
		return ErrUnknownSession
	}

	payloads, err := d.files.Drain(prefix)
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		d.log.Info().Str("prefix", prefix).Msg("nothing buffered to send")
		return nil
	}

	for i, plaintext := range payloads {
		if i > 0 {
			d.radio.QuietPeriod()
		}
		final := i == len(payloads)-1
		if err := d.transmitData(session, plaintext, final); err != nil {
			return err
		}
		d.log.Info().Str("prefix", prefix).Int("file", i).Int("bytes", len(plaintext)).
			Msg("group file transmitted")
	}
	return nil
}

// FlushSession drops this device's session from both tiers, returning the
// device to the unjoined state.
func (d *Device) FlushSession() {
	d.sessions.Flush(d.devEUIHex())
}

// HandlePacket processes one received downlink: parse, authenticate,
// decrypt, then interpret. Downlinks from the gateway carry the gateway's
// EUI in the sender field but are encrypted under this device's session.
func (d *Device) HandlePacket(buf []byte) error {
	frame, err := lorawan.ParseDataFrame(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	sessionKey := frame.SenderEUI.String()
	if frame.SenderEUI == d.cfg.GatewayEUI {
		sessionKey = d.devEUIHex()
	}
	session, ok := d.sessions.Get(sessionKey)
	if !ok {
		d.log.Warn().Str("src", frame.SenderEUI.String()).Msg("no session for sender")
		return ErrUnknownSession
	}

	if !frame.VerifyTag(d.cfg.HmacKey) {
		d.log.Warn().Str("src", frame.SenderEUI.String()).Msg("hmac mismatch, dropping frame")
		return ErrAuthenticationFailed
	}

	plain := frame.Decrypt(session.AppSKey)

	switch {
	case bytes.HasPrefix(plain, []byte(AckPayload)):
		d.log.Info().Msg("ack received")
		if d.OnAck != nil {
			d.OnAck()
		}
	case bytes.HasPrefix(plain, []byte{byte(lorawan.TypeText)}) &&
		bytes.HasPrefix(plain[1:], []byte(FlushCommand)):
		d.log.Info().Msg("flush command received, dropping session")
		d.FlushSession()
	default:
		region := lorawan.Region{Type: lorawan.DataType(plain[0]), Data: plain[1:]}
		d.log.Info().Str("region", region.Describe()).Msg("downlink payload")
		if d.OnMessage != nil {
			d.OnMessage(region)
		}
	}
	return nil
}

// PollOnce services at most one pending frame.
func (d *Device) PollOnce() {
	frame := d.radio.Poll()
	if frame == nil {
		return
	}
	if len(frame) <= lorawan.DataOverheadLen {
		d.log.Debug().Int("len", len(frame)).Msg("dropping short frame")
		return
	}
	if err := d.HandlePacket(frame); err != nil {
		d.log.Debug().Err(err).Msg("frame dropped")
	}
}

// Run polls the receive flag until ctx is cancelled.
func (d *Device) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.PollOnce()
		}
	}
}
