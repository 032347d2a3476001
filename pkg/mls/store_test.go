package mls_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SatsAndSports/cashu-mls-chat/internal/storage"
	"github.com/SatsAndSports/cashu-mls-chat/pkg/mls"
)

func eventID(b byte) mls.EventID {
	var id mls.EventID
	id[0] = b
	return id
}

func pubkey(b byte) mls.PublicKey {
	var pk mls.PublicKey
	pk[0] = b
	return pk
}

func nostrGroupID(b byte) mls.NostrGroupID {
	var id mls.NostrGroupID
	id[0] = b
	return id
}

func testGroup(b byte, name string) *mls.Group {
	return &mls.Group{
		MLSGroupID:   mls.GroupID{b, 0xde, 0xad},
		NostrGroupID: nostrGroupID(b),
		Name:         name,
		AdminPubkeys: []mls.PublicKey{pubkey(b)},
		State:        mls.GroupStateActive,
	}
}

func openStore(t *testing.T, medium storage.Medium) *mls.Store {
	t.Helper()
	store, err := mls.Open(medium, mls.Config{})
	require.NoError(t, err)
	return store
}

func TestStore_ImplementsProvider(t *testing.T) {
	var _ mls.StorageProvider = openStore(t, storage.NewMemoryMedium())
}

func TestStore_SaveGroup_DualIndex(t *testing.T) {
	store := openStore(t, storage.NewMemoryMedium())
	group := testGroup(1, "chess club")

	require.NoError(t, store.SaveGroup(group))

	byMLS, err := store.FindGroupByMLSGroupID(group.MLSGroupID)
	require.NoError(t, err)
	require.NotNil(t, byMLS)

	byNostr, err := store.FindGroupByNostrGroupID(group.NostrGroupID)
	require.NoError(t, err)
	require.NotNil(t, byNostr)

	assert.Equal(t, byMLS, byNostr)
	assert.Equal(t, "chess club", byMLS.Name)

	all, err := store.AllGroups()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_SaveGroup_UpsertUpdatesBothIndexes(t *testing.T) {
	store := openStore(t, storage.NewMemoryMedium())
	group := testGroup(1, "before")
	require.NoError(t, store.SaveGroup(group))

	group.Name = "after"
	require.NoError(t, store.SaveGroup(group))

	byMLS, err := store.FindGroupByMLSGroupID(group.MLSGroupID)
	require.NoError(t, err)
	byNostr, err := store.FindGroupByNostrGroupID(group.NostrGroupID)
	require.NoError(t, err)
	assert.Equal(t, "after", byMLS.Name)
	assert.Equal(t, "after", byNostr.Name)

	all, err := store.AllGroups()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_FindGroup_AbsentIsNilNotError(t *testing.T) {
	store := openStore(t, storage.NewMemoryMedium())

	g, err := store.FindGroupByMLSGroupID(mls.GroupID{9, 9})
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = store.FindGroupByNostrGroupID(nostrGroupID(9))
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestStore_Messages_InsertionOrderAndIndex(t *testing.T) {
	store := openStore(t, storage.NewMemoryMedium())
	group := testGroup(1, "g1")
	require.NoError(t, store.SaveGroup(group))

	for i, content := range []string{"m1", "m2", "m3"} {
		require.NoError(t, store.SaveMessage(&mls.Message{
			ID:         eventID(byte(10 + i)),
			MLSGroupID: group.MLSGroupID,
			Content:    content,
			CreatedAt:  mls.Timestamp(1000 + i),
			State:      mls.MessageStateProcessed,
		}))
	}

	messages, err := store.Messages(group.MLSGroupID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "m1", messages[0].Content)
	assert.Equal(t, "m2", messages[1].Content)
	assert.Equal(t, "m3", messages[2].Content)

	byID, err := store.FindMessageByEventID(eventID(11))
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "m2", byID.Content)

	// Unknown group yields an empty list, not an error.
	none, err := store.Messages(mls.GroupID{0xff})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_MessagesOrderSurvivesReload(t *testing.T) {
	medium := storage.NewMemoryMedium()
	store := openStore(t, medium)
	group := testGroup(1, "g1")
	require.NoError(t, store.SaveGroup(group))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveMessage(&mls.Message{
			ID:         eventID(byte(10 + i)),
			MLSGroupID: group.MLSGroupID,
			Content:    []string{"m1", "m2", "m3"}[i],
		}))
	}

	reloaded := openStore(t, medium)
	messages, err := reloaded.Messages(group.MLSGroupID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "m1", messages[0].Content)
	assert.Equal(t, "m2", messages[1].Content)
	assert.Equal(t, "m3", messages[2].Content)
}

func TestStore_Admins(t *testing.T) {
	store := openStore(t, storage.NewMemoryMedium())
	group := testGroup(1, "g1")
	group.AdminPubkeys = []mls.PublicKey{pubkey(1), pubkey(2)}
	require.NoError(t, store.SaveGroup(group))

	admins, err := store.Admins(group.MLSGroupID)
	require.NoError(t, err)
	assert.Equal(t, []mls.PublicKey{pubkey(1), pubkey(2)}, admins)

	none, err := store.Admins(mls.GroupID{0xff})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ReplaceGroupRelays_FullReplace(t *testing.T) {
	store := openStore(t, storage.NewMemoryMedium())
	gid := mls.GroupID{1, 2, 3}

	require.NoError(t, store.ReplaceGroupRelays(gid, []string{
		"wss://relay.b", "wss://relay.a", "wss://relay.a",
	}))
	relays, err := store.GroupRelays(gid)
	require.NoError(t, err)
	require.Len(t, relays, 2) // duplicates collapse
	assert.Equal(t, "wss://relay.a", relays[0].RelayURL)
	assert.Equal(t, "wss://relay.b", relays[1].RelayURL)
	assert.Equal(t, gid, relays[0].MLSGroupID)

	// Replace, not merge.
	require.NoError(t, store.ReplaceGroupRelays(gid, []string{"wss://relay.c"}))
	relays, err = store.GroupRelays(gid)
	require.NoError(t, err)
	require.Len(t, relays, 1)
	assert.Equal(t, "wss://relay.c", relays[0].RelayURL)
}

func TestStore_ExporterSecrets(t *testing.T) {
	store := openStore(t, storage.NewMemoryMedium())
	gid := mls.GroupID{1, 2, 3}

	require.NoError(t, store.SaveGroupExporterSecret(&mls.GroupExporterSecret{
		MLSGroupID: gid,
		Epoch:      0,
		Secret:     mls.HexBytes{0xaa},
	}))
	require.NoError(t, store.SaveGroupExporterSecret(&mls.GroupExporterSecret{
		MLSGroupID: gid,
		Epoch:      1,
		Secret:     mls.HexBytes{0xbb},
	}))

	secret, err := store.GroupExporterSecret(gid, 1)
	require.NoError(t, err)
	require.NotNil(t, secret)
	assert.Equal(t, mls.HexBytes{0xbb}, secret.Secret)

	secret, err = store.GroupExporterSecret(gid, 7)
	require.NoError(t, err)
	assert.Nil(t, secret)

	// Last write wins per (group, epoch) key.
	require.NoError(t, store.SaveGroupExporterSecret(&mls.GroupExporterSecret{
		MLSGroupID: gid,
		Epoch:      1,
		Secret:     mls.HexBytes{0xcc},
	}))
	secret, err = store.GroupExporterSecret(gid, 1)
	require.NoError(t, err)
	assert.Equal(t, mls.HexBytes{0xcc}, secret.Secret)
}

func TestStore_PendingWelcomes(t *testing.T) {
	store := openStore(t, storage.NewMemoryMedium())

	w1 := &mls.Welcome{ID: eventID(1), GroupName: "g1", State: mls.WelcomeStatePending, WrapperEventID: eventID(1)}
	w2 := &mls.Welcome{ID: eventID(2), GroupName: "g2", State: mls.WelcomeStatePending, WrapperEventID: eventID(2)}
	require.NoError(t, store.SaveWelcome(w1))
	require.NoError(t, store.SaveWelcome(w2))

	pending, err := store.PendingWelcomes()
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, store.SaveProcessedWelcome(&mls.ProcessedWelcome{
		WrapperEventID: eventID(1),
		State:          mls.ProcessedWelcomeStateProcessed,
	}))

	pending, err = store.PendingWelcomes()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, eventID(2), pending[0].ID)

	marker, err := store.FindProcessedWelcomeByEventID(eventID(1))
	require.NoError(t, err)
	require.NotNil(t, marker)

	marker, err = store.FindProcessedWelcomeByEventID(eventID(2))
	require.NoError(t, err)
	assert.Nil(t, marker)
}

func TestStore_ProcessedMessages(t *testing.T) {
	store := openStore(t, storage.NewMemoryMedium())
	msgID := eventID(7)

	require.NoError(t, store.SaveProcessedMessage(&mls.ProcessedMessage{
		WrapperEventID: eventID(1),
		MessageEventID: &msgID,
		State:          mls.ProcessedMessageStateProcessed,
	}))

	marker, err := store.FindProcessedMessageByEventID(eventID(1))
	require.NoError(t, err)
	require.NotNil(t, marker)
	require.NotNil(t, marker.MessageEventID)
	assert.Equal(t, msgID, *marker.MessageEventID)

	marker, err = store.FindProcessedMessageByEventID(eventID(2))
	require.NoError(t, err)
	assert.Nil(t, marker)
}

func TestStore_RoundTrip(t *testing.T) {
	medium := storage.NewMemoryMedium()
	store := openStore(t, medium)

	group := testGroup(1, "g1")
	require.NoError(t, store.SaveGroup(group))
	require.NoError(t, store.ReplaceGroupRelays(group.MLSGroupID, []string{"wss://relay.a"}))
	require.NoError(t, store.SaveMessage(&mls.Message{ID: eventID(10), MLSGroupID: group.MLSGroupID, Content: "hi"}))
	require.NoError(t, store.SaveWelcome(&mls.Welcome{ID: eventID(20), GroupName: "g2"}))
	require.NoError(t, store.SaveProcessedWelcome(&mls.ProcessedWelcome{WrapperEventID: eventID(21)}))
	require.NoError(t, store.SaveProcessedMessage(&mls.ProcessedMessage{WrapperEventID: eventID(22)}))
	require.NoError(t, store.SaveGroupExporterSecret(&mls.GroupExporterSecret{
		MLSGroupID: group.MLSGroupID, Epoch: 3, Secret: mls.HexBytes{1, 2},
	}))
	require.NoError(t, store.EngineStorage().Set([]byte{0x00, 0x01}, []byte("ratchet")))

	reloaded := openStore(t, medium)

	g, err := reloaded.FindGroupByMLSGroupID(group.MLSGroupID)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, group.Name, g.Name)
	assert.Equal(t, group.AdminPubkeys, g.AdminPubkeys)

	g2, err := reloaded.FindGroupByNostrGroupID(group.NostrGroupID)
	require.NoError(t, err)
	require.NotNil(t, g2)
	assert.Equal(t, g, g2)

	relays, err := reloaded.GroupRelays(group.MLSGroupID)
	require.NoError(t, err)
	require.Len(t, relays, 1)
	assert.Equal(t, "wss://relay.a", relays[0].RelayURL)

	msg, err := reloaded.FindMessageByEventID(eventID(10))
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "hi", msg.Content)

	w, err := reloaded.FindWelcomeByEventID(eventID(20))
	require.NoError(t, err)
	require.NotNil(t, w)

	pm, err := reloaded.FindProcessedMessageByEventID(eventID(22))
	require.NoError(t, err)
	require.NotNil(t, pm)

	secret, err := reloaded.GroupExporterSecret(group.MLSGroupID, 3)
	require.NoError(t, err)
	require.NotNil(t, secret)
	assert.Equal(t, mls.HexBytes{1, 2}, secret.Secret)

	value, err := reloaded.EngineStorage().Get([]byte{0x00, 0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte("ratchet"), value)
}

func TestStore_CorruptMediumStartsEmpty(t *testing.T) {
	medium := storage.NewMemoryMedium()
	require.NoError(t, medium.SetItem("mls_state", "definitely not json"))
	require.NoError(t, medium.SetItem("mls_engine_state", "{\"v\":1,\"values\":{\"zz\":\"\"}}"))

	store := openStore(t, medium)
	groups, err := store.AllGroups()
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Equal(t, 0, store.EngineStorage().Len())
}

func TestStore_ReturnedValuesAreCopies(t *testing.T) {
	store := openStore(t, storage.NewMemoryMedium())
	group := testGroup(1, "g1")
	require.NoError(t, store.SaveGroup(group))

	g, err := store.FindGroupByMLSGroupID(group.MLSGroupID)
	require.NoError(t, err)
	g.Name = "mutated"
	g.AdminPubkeys[0] = pubkey(0xee)

	again, err := store.FindGroupByMLSGroupID(group.MLSGroupID)
	require.NoError(t, err)
	assert.Equal(t, "g1", again.Name)
	assert.Equal(t, pubkey(1), again.AdminPubkeys[0])
}

// flakyMedium fails every SetItem after the first `writes` successes. The
// store may issue writes concurrently, so the budget is mutex-guarded.
type flakyMedium struct {
	*storage.MemoryMedium
	mu     sync.Mutex
	writes int
}

var errQuota = errors.New("quota exceeded")

func (m *flakyMedium) SetItem(key, value string) error {
	m.mu.Lock()
	ok := m.writes > 0
	if ok {
		m.writes--
	}
	m.mu.Unlock()
	if !ok {
		return errQuota
	}
	return m.MemoryMedium.SetItem(key, value)
}

func TestStore_WriteFailureSurfacedAndMemoryKept(t *testing.T) {
	medium := &flakyMedium{MemoryMedium: storage.NewMemoryMedium(), writes: 4}
	store, err := mls.Open(medium, mls.Config{})
	require.NoError(t, err) // initial snapshot uses 2 writes

	group := testGroup(1, "g1")
	require.NoError(t, store.SaveGroup(group)) // 2 more writes

	err = store.SaveWelcome(&mls.Welcome{ID: eventID(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, mls.ErrPersist)
	assert.ErrorIs(t, err, errQuota)

	// The mutation stayed applied in memory.
	w, err := store.FindWelcomeByEventID(eventID(1))
	require.NoError(t, err)
	assert.NotNil(t, w)
}
