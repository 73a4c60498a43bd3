package keystore

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/lorawan"
)

// SessionStore is the two-tier session map: a volatile in-memory cache over
// an encrypted persistent KV. Sessions are keyed by the full DevEUI hex.
// The store owns its SessionInfo values; callers get copies.
type SessionStore struct {
	mu     sync.Mutex
	cache  map[string]lorawan.SessionInfo
	kv     KV
	appKey lorawan.AES128Key
	log    zerolog.Logger
}

// NewSessionStore creates a session store over kv. The appKey encrypts
// sessions at rest.
func NewSessionStore(kv KV, appKey lorawan.AES128Key, log zerolog.Logger) *SessionStore {
	return &SessionStore{
		cache:  make(map[string]lorawan.SessionInfo),
		kv:     kv,
		appKey: appKey,
		log:    log,
	}
}

// Store writes the session to memory and through to the persistent tier.
// A persistence failure leaves the in-memory copy in place and is surfaced
// as a warning only; the session will not survive a reboot.
func (s *SessionStore) Store(devEUI string, session lorawan.SessionInfo) {
	s.mu.Lock()
	s.cache[devEUI] = session
	s.mu.Unlock()

	blob := lorawan.EncryptSession(s.appKey, &session)
	if err := s.kv.Put(devEUI, blob[:]); err != nil {
		s.log.Warn().Err(err).Str("dev_eui", devEUI).
			Msg("session not persisted; it will be lost on reboot")
		return
	}
	s.log.Debug().Str("dev_eui", devEUI).Msg("session stored")
}

// Get returns the session for devEUI, checking memory first and falling
// back to the persistent tier. A successful load is promoted into memory.
func (s *SessionStore) Get(devEUI string) (lorawan.SessionInfo, bool) {
	s.mu.Lock()
	session, ok := s.cache[devEUI]
	s.mu.Unlock()
	if ok {
		return session, true
	}

	blob, err := s.kv.Get(devEUI)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn().Err(err).Str("dev_eui", devEUI).Msg("session load failed")
		}
		return lorawan.SessionInfo{}, false
	}

	// A record of any size other than the fixed blob length is treated as
	// not present.
	session, err = lorawan.DecryptSession(s.appKey, blob)
	if err != nil {
		s.log.Warn().Err(err).Str("dev_eui", devEUI).Msg("stored session unreadable")
		return lorawan.SessionInfo{}, false
	}

	s.mu.Lock()
	s.cache[devEUI] = session
	s.mu.Unlock()
	return session, true
}

// Exists reports whether a session is cached in memory. The persistent
// tier is not consulted.
func (s *SessionStore) Exists(devEUI string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cache[devEUI]
	return ok
}

// Flush removes the session from both tiers.
func (s *SessionStore) Flush(devEUI string) {
	s.mu.Lock()
	delete(s.cache, devEUI)
	s.mu.Unlock()

	if err := s.kv.Remove(devEUI); err != nil {
		s.log.Warn().Err(err).Str("dev_eui", devEUI).Msg("session remove failed")
		return
	}
	s.log.Info().Str("dev_eui", devEUI).Msg("session flushed")
}

// FlushAll clears both tiers.
func (s *SessionStore) FlushAll() {
	s.mu.Lock()
	s.cache = make(map[string]lorawan.SessionInfo)
	s.mu.Unlock()

	if err := s.kv.Clear(); err != nil {
		s.log.Warn().Err(err).Msg("session store clear failed")
		return
	}
	s.log.Info().Msg("all sessions flushed")
}

// List returns the DevEUI keys of every in-memory session.
func (s *SessionStore) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.cache))
	for k := range s.cache {
		keys = append(keys, k)
	}
	return keys
}

// DropCache empties the in-memory tier only. Used to simulate a reboot in
// tests; the persistent tier is untouched.
func (s *SessionStore) DropCache() {
	s.mu.Lock()
	s.cache = make(map[string]lorawan.SessionInfo)
	s.mu.Unlock()
}
