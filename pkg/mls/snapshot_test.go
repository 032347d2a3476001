package mls_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SatsAndSports/cashu-mls-chat/internal/storage"
	"github.com/SatsAndSports/cashu-mls-chat/pkg/mls"
)

// Invalid snapshot documents must reject wholesale: the store starts empty
// rather than partially populated.
func TestSnapshot_BadDocumentsStartEmpty(t *testing.T) {
	cases := map[string]string{
		"not json":           `garbage`,
		"wrong version":      `{"v":99}`,
		"odd length hex key": `{"v":1,"groups":{"abc":{"name":"g"}}}`,
		"non hex group key":  `{"v":1,"groups":{"zz":{"name":"g"}}}`,
		"short nostr id key": `{"v":1,"groups_by_nostr_id":{"aabb":{"name":"g"}}}`,
		"bad composite key":  `{"v":1,"group_exporter_secrets":{"aabb":{"epoch":1}}}`,
		"bad composite epoch": fmt.Sprintf(
			`{"v":1,"group_exporter_secrets":{"%s:notanumber":{"epoch":1}}}`, "aabb"),
		"bad event id key": `{"v":1,"messages":{"xyz":{"content":"m"}}}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			medium := storage.NewMemoryMedium()
			require.NoError(t, medium.SetItem("mls_state", doc))

			store, err := mls.Open(medium, mls.Config{})
			require.NoError(t, err)

			groups, err := store.AllGroups()
			require.NoError(t, err)
			assert.Empty(t, groups)

			pending, err := store.PendingWelcomes()
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}

// A valid document with a mixed bag of entries loads every index.
func TestSnapshot_ValidDocumentLoads(t *testing.T) {
	medium := storage.NewMemoryMedium()
	store := openStore(t, medium)

	group := testGroup(3, "loaded")
	require.NoError(t, store.SaveGroup(group))
	require.NoError(t, store.SaveGroupExporterSecret(&mls.GroupExporterSecret{
		MLSGroupID: group.MLSGroupID,
		Epoch:      42,
		Secret:     mls.HexBytes{0x42},
	}))

	// Reload purely from the medium content written above.
	reloaded := openStore(t, medium)
	secret, err := reloaded.GroupExporterSecret(group.MLSGroupID, 42)
	require.NoError(t, err)
	require.NotNil(t, secret)
	assert.Equal(t, uint64(42), secret.Epoch)
}

func TestParseIDs(t *testing.T) {
	valid := strings.Repeat("ab", 32)
	parsed, err := mls.ParseEventID(valid)
	require.NoError(t, err)
	assert.Equal(t, valid, parsed.Hex())

	_, err = mls.ParseEventID(strings.Repeat("ab", 31)) // 31 bytes, not 32
	require.Error(t, err)

	_, err = mls.ParseEventID("zz") // not hex
	require.Error(t, err)

	gid, err := mls.ParseGroupID("fead")
	require.NoError(t, err)
	assert.Equal(t, mls.GroupID{0xfe, 0xad}, gid)

	_, err = mls.ParseGroupID("xyz")
	require.Error(t, err)
}
