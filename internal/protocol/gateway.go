package protocol

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/Matthew-a-smith/OpenEdgeStack/internal/keystore"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/radio"
	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/lorawan"
)

// GatewayConfig holds the gateway's identity and network parameters.
type GatewayConfig struct {
	GatewayEUI lorawan.EUI64
	AppKey     lorawan.AES128Key
	HmacKey    lorawan.AES128Key
	NetID      [3]byte
}

// Gateway is the gateway-side protocol engine: join handling, the uplink
// receive pipeline, acknowledgements, and addressed downlinks.
type Gateway struct {
	cfg      GatewayConfig
	sessions *keystore.SessionStore
	radio    *radio.Mediator
	log      zerolog.Logger

	rand io.Reader

	// OnUplink, when set, receives each authenticated, decrypted uplink.
	OnUplink func(devEUI lorawan.EUI64, regions []lorawan.Region, plaintext []byte)
	// OnJoin, when set, fires after a new session is established.
	OnJoin func(devEUI lorawan.EUI64, session lorawan.SessionInfo)
}

// NewGateway assembles a gateway engine.
func NewGateway(cfg GatewayConfig, sessions *keystore.SessionStore, med *radio.Mediator, log zerolog.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		sessions: sessions,
		radio:    med,
		log:      log,
		rand:     rand.Reader,
	}
}

// HandleJoinRequest processes a 22-byte join request: MIC check, duplicate
// suppression, key derivation, session store, and the encrypted accept.
func (g *Gateway) HandleJoinRequest(buf []byte) error {
	req, err := lorawan.ParseJoinRequest(g.cfg.HmacKey, buf)
	if err != nil {
		g.log.Warn().Err(err).Msg("join request rejected")
		return ErrAuthenticationFailed
	}

	devEUIHex := req.DevEUI.String()
	if g.sessions.Exists(devEUIHex) {
		g.log.Info().Str("dev_eui", devEUIHex).Msg("already joined, ignoring join request")
		return nil
	}

	var rnd [7]byte
	if _, err := io.ReadFull(g.rand, rnd[:]); err != nil {
		return fmt.Errorf("generate join parameters: %w", err)
	}
	var joinNonce [3]byte
	copy(joinNonce[:], rnd[0:3])
	devAddr := lorawan.DevAddr(binary.LittleEndian.Uint32(rnd[3:7]))

	nwkSKey, appSKey := lorawan.DeriveSessionKeys(g.cfg.AppKey, joinNonce, g.cfg.NetID, req.DevNonce)
	session := lorawan.SessionInfo{
		DevAddr:   devAddr,
		AppSKey:   appSKey,
		NwkSKey:   nwkSKey,
		JoinNonce: joinNonce,
		NetID:     g.cfg.NetID,
		DevNonce:  req.DevNonce,
	}
	g.sessions.Store(devEUIHex, session)

	accept := lorawan.JoinAcceptPayload{
		DevAddr:   devAddr,
		JoinNonce: joinNonce,
		NetID:     g.cfg.NetID,
		DevNonce:  req.DevNonce,
	}
	if err := g.radio.Transmit(accept.Marshal(g.cfg.AppKey), true); err != nil {
		return fmt.Errorf("%w: %v", ErrRadio, err)
	}

	g.log.Info().
		Str("dev_eui", devEUIHex).
		Str("dev_addr", devAddr.String()).
		Msg("join accept sent")
	if g.OnJoin != nil {
		g.OnJoin(req.DevEUI, session)
	}
	return nil
}

// HandleDataPacket runs the uplink pipeline: parse, session lookup, tag
// verification, decrypt, region scan, then a best-effort ACK. Frames that
// fail any step are dropped without mutating state.
func (g *Gateway) HandleDataPacket(buf []byte) error {
	frame, err := lorawan.ParseDataFrame(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	srcHex := frame.SenderEUI.String()
	session, ok := g.sessions.Get(srcHex)
	if !ok {
		g.log.Warn().Str("src", srcHex).Msg("no session for sender")
		return ErrUnknownSession
	}

	if !frame.VerifyTag(g.cfg.HmacKey) {
		g.log.Warn().Str("src", srcHex).Msg("hmac mismatch, dropping frame")
		return ErrAuthenticationFailed
	}

	plain := frame.Decrypt(session.AppSKey)
	regions := lorawan.ScanRegions(plain)
	for _, r := range regions {
		g.log.Info().Str("src", srcHex).Str("region", r.Describe()).Msg("uplink data")
	}

	if g.OnUplink != nil {
		g.OnUplink(frame.SenderEUI, regions, plain)
	}

	if err := g.SendDataAck(frame.SenderEUI); err != nil {
		g.log.Warn().Err(err).Str("dst", srcHex).Msg("ack not sent")
	}
	return nil
}

// SendDataAck transmits the literal ACK payload to a joined device,
// best-effort and unretried. The sender field carries the gateway's EUI;
// the encryption uses the recipient's session.
func (g *Gateway) SendDataAck(dst lorawan.EUI64) error {
	return g.sendToDevice(dst, []byte(AckPayload))
}

// SendDownlink encrypts a typed payload for dst and transmits it.
func (g *Gateway) SendDownlink(dst lorawan.EUI64, payload []byte, dataType lorawan.DataType) error {
	plaintext := make([]byte, 1+len(payload))
	plaintext[0] = byte(dataType)
	copy(plaintext[1:], payload)
	return g.sendToDevice(dst, plaintext)
}

// FlushDevice instructs dst to drop its session, then removes it here.
func (g *Gateway) FlushDevice(dst lorawan.EUI64) error {
	plaintext := append([]byte{byte(lorawan.TypeText)}, []byte(FlushCommand)...)
	if err := g.sendToDevice(dst, plaintext); err != nil {
		return err
	}
	g.sessions.Flush(dst.String())
	return nil
}

func (g *Gateway) sendToDevice(dst lorawan.EUI64, plaintext []byte) error {
	session, ok := g.sessions.Get(dst.String())
	if !ok {
		return ErrUnknownSession
	}
	nonce, err := lorawan.NewDataNonce(g.cfg.GatewayEUI)
	if err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	frame := lorawan.BuildDataFrame(g.cfg.HmacKey, session.AppSKey, g.cfg.GatewayEUI, nonce, plaintext)
	if err := g.radio.Transmit(frame, true); err != nil {
		return fmt.Errorf("%w: %v", ErrRadio, err)
	}
	return nil
}

// PollOnce services at most one pending frame, dispatching by length:
// exactly 22 bytes routes to join handling, anything longer than the data
// overhead routes to the uplink pipeline, the rest is dropped.
func (g *Gateway) PollOnce() {
	frame := g.radio.Poll()
	if frame == nil {
		return
	}

	switch {
	case len(frame) == lorawan.JoinRequestLen:
		if err := g.HandleJoinRequest(frame); err != nil {
			g.log.Debug().Err(err).Msg("join request dropped")
		}
	case len(frame) > lorawan.DataOverheadLen:
		if err := g.HandleDataPacket(frame); err != nil {
			g.log.Debug().Err(err).Msg("data frame dropped")
		}
	default:
		g.log.Debug().Int("len", len(frame)).Msg("dropping frame with unroutable length")
	}
}

// Run polls the receive flag until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.PollOnce()
		}
	}
}

// Sessions exposes the session store for the admin surfaces.
func (g *Gateway) Sessions() *keystore.SessionStore {
	return g.sessions
}
