package util

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAtomicEvent(t *testing.T) {
	ae := NewAtomicEvent[any]()
	assert.NotNil(t, ae, "NewAtomicEvent should not return nil")
	assert.NotNil(t, ae.notify, "notify channel should be initialized")
}

func TestSendAndValue(t *testing.T) {
	aeInt := NewAtomicEvent[int]()
	aeInt.Send(123)
	assert.Equal(t, 123, aeInt.Value(), "Value should be 123")

	type pulse struct {
		Magnitude float64
	}
	aeStruct := NewAtomicEvent[pulse]()
	aeStruct.Send(pulse{Magnitude: 42})
	assert.Equal(t, pulse{Magnitude: 42}, aeStruct.Value())
}

func TestNotificationChannel(t *testing.T) {
	ae := NewAtomicEvent[string]()

	ae.Send("event1")
	select {
	case <-ae.Channel():
	default:
		t.Fatal("should have received a notification")
	}

	// The channel holds at most one pending notification.
	ae.Send("event2")
	ae.Send("event3")
	select {
	case <-ae.Channel():
	default:
		t.Fatal("should have received a notification")
	}
	select {
	case <-ae.Channel():
		t.Fatal("a second notification must not be queued")
	default:
	}
	assert.Equal(t, "event3", ae.Value(), "readers always see the latest value")
}

func TestConcurrentSendersNeverBlock(t *testing.T) {
	ae := NewAtomicEvent[string]()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ae.Send(fmt.Sprintf("sender %d event %d", n, j))
			}
		}(i)
	}
	wg.Wait()

	assert.NotEmpty(t, ae.Value(), "a value should have been stored")
}
