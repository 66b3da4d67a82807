package sysmon

import (
	"testing"
	"time"

	"github.com/inferd/inferd/pkg/models"
	"github.com/inferd/inferd/pkg/store"
)

type capturingPublisher struct {
	samples []models.UtilizationSample
}

func (p *capturingPublisher) SetUtilization(s models.UtilizationSample) {
	p.samples = append(p.samples, s)
}

func TestSamplePublishes(t *testing.T) {
	withSysfs(t)

	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	c := NewCollector(st, time.Second, time.Hour)
	pub := &capturingPublisher{}
	c.SetPublisher(pub)

	sample := c.Sample()
	if sample.Timestamp == 0 {
		t.Error("sample has no timestamp")
	}
	if len(pub.samples) != 1 {
		t.Fatalf("publisher received %d samples, want 1", len(pub.samples))
	}
	if pub.samples[0].Timestamp != sample.Timestamp {
		t.Errorf("published sample differs from returned one")
	}
	if got := c.Latest(); got.Timestamp != sample.Timestamp {
		t.Errorf("Latest() = %v, want the taken sample", got)
	}
}

func TestSampleWithoutPublisher(t *testing.T) {
	withSysfs(t)

	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	c := NewCollector(st, time.Second, time.Hour)
	if s := c.Sample(); s.Timestamp == 0 {
		t.Error("sample has no timestamp")
	}
}
