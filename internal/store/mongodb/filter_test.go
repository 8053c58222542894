package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

func TestListQuery(t *testing.T) {
	t.Parallel()

	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	filter, find := listQuery("closedAt", domain.ListOpts{Since: &since, Until: &until, Limit: 20, Offset: 40})
	assert.Equal(t, bson.M{"closedAt": bson.M{"$gte": since, "$lte": until}}, filter)
	require.NotNil(t, find.Limit)
	assert.Equal(t, int64(20), *find.Limit)
	require.NotNil(t, find.Skip)
	assert.Equal(t, int64(40), *find.Skip)
	assert.Equal(t, bson.D{{Key: "closedAt", Value: -1}, {Key: "_id", Value: -1}}, find.Sort)

	filter, find = listQuery("startedAt", domain.ListOpts{})
	assert.Empty(t, filter)
	assert.Nil(t, find.Limit)
	assert.Nil(t, find.Skip)
}

func TestLedgerDocInlinesLedger(t *testing.T) {
	t.Parallel()

	doc := ledgerDoc{ID: ledgerDocID, Ledger: domain.NewLedger(500)}
	doc.Version = 3

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))
	assert.Equal(t, "current_state", m["_id"])
	assert.Equal(t, int64(3), m["version"])
	assert.Equal(t, 500.0, m["cash"])

	var back ledgerDoc
	require.NoError(t, bson.Unmarshal(raw, &back))
	assert.Equal(t, doc.Ledger.Cash, back.Cash)
	assert.Equal(t, int64(3), back.Version)
}
