package keystore

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/lorawan"
)

var testAppKey = lorawan.AES128Key{0x01, 0x02, 0x03}

func newTestStore() (*SessionStore, *MemKV) {
	kv := NewMemKV()
	return NewSessionStore(kv, testAppKey, zerolog.Nop()), kv
}

func makeSession(devNonce uint16) lorawan.SessionInfo {
	joinNonce := [3]byte{0xaa, 0xbb, 0xcc}
	netID := [3]byte{0x01, 0x23, 0x45}
	nwk, app := lorawan.DeriveSessionKeys(testAppKey, joinNonce, netID, devNonce)
	return lorawan.SessionInfo{
		DevAddr:   0xdeadbeef,
		AppSKey:   app,
		NwkSKey:   nwk,
		JoinNonce: joinNonce,
		NetID:     netID,
		DevNonce:  devNonce,
	}
}

func TestStoreAndGet(t *testing.T) {
	store, _ := newTestStore()
	session := makeSession(1)

	store.Store("0000000000000001", session)

	got, ok := store.Get("0000000000000001")
	require.True(t, ok)
	assert.Equal(t, session, got)
}

func TestGetMissing(t *testing.T) {
	store, _ := newTestStore()
	_, ok := store.Get("ffffffffffffffff")
	assert.False(t, ok)
}

func TestExistsIsMemoryOnly(t *testing.T) {
	store, _ := newTestStore()
	session := makeSession(2)
	store.Store("0000000000000002", session)
	assert.True(t, store.Exists("0000000000000002"))

	// After a reboot the session is on disk but not in memory; Exists
	// must not see it until a Get promotes it.
	store.DropCache()
	assert.False(t, store.Exists("0000000000000002"))

	_, ok := store.Get("0000000000000002")
	require.True(t, ok)
	assert.True(t, store.Exists("0000000000000002"))
}

func TestSessionSurvivesReboot(t *testing.T) {
	store, kv := newTestStore()
	session := makeSession(3)
	store.Store("0000000000000003", session)

	// Reboot: fresh store over the same persistent tier.
	store2 := NewSessionStore(kv, testAppKey, zerolog.Nop())
	got, ok := store2.Get("0000000000000003")
	require.True(t, ok)
	assert.Equal(t, session, got)
}

func TestEncryptedAtRest(t *testing.T) {
	store, kv := newTestStore()
	session := makeSession(4)
	store.Store("0000000000000004", session)

	blob, err := kv.Get("0000000000000004")
	require.NoError(t, err)
	require.Len(t, blob, lorawan.SessionBlobLen)

	plain := session.Marshal()
	assert.NotEqual(t, plain[:], blob)
}

func TestWrongSizeBlobTreatedAsMissing(t *testing.T) {
	store, kv := newTestStore()
	require.NoError(t, kv.Put("0000000000000005", make([]byte, 31)))

	_, ok := store.Get("0000000000000005")
	assert.False(t, ok)
}

func TestFlush(t *testing.T) {
	store, kv := newTestStore()
	session := makeSession(6)
	store.Store("0000000000000006", session)

	store.Flush("0000000000000006")
	assert.False(t, store.Exists("0000000000000006"))
	_, ok := store.Get("0000000000000006")
	assert.False(t, ok)
	_, err := kv.Get("0000000000000006")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFlushAll(t *testing.T) {
	store, _ := newTestStore()
	store.Store("0000000000000007", makeSession(7))
	store.Store("0000000000000008", makeSession(8))

	store.FlushAll()

	_, ok := store.Get("0000000000000007")
	assert.False(t, ok)
	_, ok = store.Get("0000000000000008")
	assert.False(t, ok)
	assert.Empty(t, store.List())
}

func TestPersistenceFailureKeepsMemory(t *testing.T) {
	store := NewSessionStore(failingKV{}, testAppKey, zerolog.Nop())
	session := makeSession(9)

	store.Store("0000000000000009", session)

	got, ok := store.Get("0000000000000009")
	require.True(t, ok)
	assert.Equal(t, session, got)
}

type failingKV struct{}

func (failingKV) Put(string, []byte) error   { return assert.AnError }
func (failingKV) Get(string) ([]byte, error) { return nil, assert.AnError }
func (failingKV) Remove(string) error        { return assert.AnError }
func (failingKV) Clear() error               { return assert.AnError }
func (failingKV) Close() error               { return nil }

func TestBoltKVRoundTrip(t *testing.T) {
	path := t.TempDir() + "/sessions.db"
	kv, err := OpenBolt(path)
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Put("k", []byte{1, 2, 3}))
	v, err := kv.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, v)

	require.NoError(t, kv.Remove("k"))
	_, err = kv.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Put("a", []byte{1}))
	require.NoError(t, kv.Clear())
	_, err = kv.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
}
