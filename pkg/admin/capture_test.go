package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureStoreEvictsOldest(t *testing.T) {
	cs := NewCaptureStore(2)
	cs.Add(UpdateRecord{Status: "downloaded-full"})
	cs.Add(UpdateRecord{Status: "up-to-date"})
	cs.Add(UpdateRecord{Status: "downloaded-churn"})

	got := cs.List()
	require.Len(t, got, 2)
	assert.Equal(t, "up-to-date", got[0].Status)
	assert.Equal(t, "downloaded-churn", got[1].Status)

	cs.Clear()
	assert.Empty(t, cs.List())
}

func TestCaptureStoreListIsACopy(t *testing.T) {
	cs := NewCaptureStore(0)
	cs.Add(UpdateRecord{Status: "up-to-date", Time: time.Now()})

	got := cs.List()
	got[0].Status = "changed"
	assert.Equal(t, "up-to-date", cs.List()[0].Status)
}

func TestCaptureStoreDefaultCapacity(t *testing.T) {
	cs := NewCaptureStore(0)
	for i := 0; i < DefaultUpdateHistory+50; i++ {
		cs.Add(UpdateRecord{})
	}
	assert.Len(t, cs.List(), DefaultUpdateHistory)
}
