package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Update(t *testing.T) {
	p := New()
	var changes []Snapshot
	p.OnChange(func(s Snapshot) { changes = append(changes, s) })

	p.Update(Delta{Published: 2})
	p.Update(Delta{Processed: 1, Puts: 1, BytesWritten: 64})

	snapshot := p.Snapshot()
	assert.Equal(t, 2, snapshot.Published)
	assert.Equal(t, 1, snapshot.Processed)
	assert.Equal(t, 1, snapshot.Puts)
	assert.EqualValues(t, 64, snapshot.BytesWritten)
	assert.Equal(t, 1, snapshot.Pending())
	assert.Len(t, changes, 2)
	assert.False(t, snapshot.StartedAt.IsZero())
}

func TestProgress_Concurrent(t *testing.T) {
	p := New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.Update(Delta{Published: 1, Processed: 1})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, p.Snapshot().Published)
	assert.Equal(t, 0, p.Snapshot().Pending())
}

func TestProgress_Nil(t *testing.T) {
	var p *Progress
	p.Update(Delta{Published: 1})
	assert.Equal(t, Snapshot{}, p.Snapshot())
}
