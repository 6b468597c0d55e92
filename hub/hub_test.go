package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"robofleet/metrics"
)

func recv(t *testing.T, s *Subscriber) Frame {
	t.Helper()
	select {
	case msg := <-s.C():
		var f Frame
		require.NoError(t, json.Unmarshal(msg, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

func assertEmpty(t *testing.T, s *Subscriber) {
	t.Helper()
	select {
	case msg := <-s.C():
		t.Fatalf("unexpected frame %s", msg)
	default:
	}
}

func TestGroupNames(t *testing.T) {
	assert.Equal(t, "schedule_42", ScheduleGroup(42))
	assert.Equal(t, "robot_message_ABC123", RobotGroup("ABC123"))
	assert.Equal(t, "robot_profile_ABC123_7", ProfileGroup("ABC123", 7))
}

func TestPublishReachesOnlyItsGroup(t *testing.T) {
	h := New(8, zap.NewNop(), nil)
	ctx := context.Background()

	robot := h.Join(RobotGroup("ABC123"))
	other := h.Join(RobotGroup("XYZ999"))
	global := h.Join(RobotMessageGroup)

	require.NoError(t, h.Publish(ctx, RobotGroup("ABC123"), "move", map[string]any{"x": 1}))

	f := recv(t, robot)
	assert.Equal(t, "move", f.Event)
	assert.Equal(t, map[string]any{"x": float64(1)}, f.Data)
	assertEmpty(t, other)
	assertEmpty(t, global)
}

func TestNoReplayForLateJoiners(t *testing.T) {
	h := New(8, zap.NewNop(), nil)
	ctx := context.Background()
	early := h.Join(ScheduleGroup(1))
	require.NoError(t, h.Publish(ctx, ScheduleGroup(1), "inspection_created", nil))

	late := h.Join(ScheduleGroup(1))
	assert.Equal(t, "inspection_created", recv(t, early).Event)
	assertEmpty(t, late)
}

func TestFIFOPerGroup(t *testing.T) {
	h := New(256, zap.NewNop(), nil)
	ctx := context.Background()
	s := h.Join(EmergencyStopGroup)
	for i := 0; i < 100; i++ {
		require.NoError(t, h.Publish(ctx, EmergencyStopGroup, "tick", i))
	}
	for i := 0; i < 100; i++ {
		assert.Equal(t, float64(i), recv(t, s).Data)
	}
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	h := New(2, zap.NewNop(), m)
	ctx := context.Background()

	slow := h.Join(ScheduleGroup(9))
	fast := h.Join(ScheduleGroup(9))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Publish(ctx, ScheduleGroup(9), "evt", i)
			<-fast.C()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
	assert.Len(t, slow.C(), 2)

	families, err := reg.Gather()
	require.NoError(t, err)
	var dropped float64
	for _, mf := range families {
		if mf.GetName() == "robofleet_hub_dropped_total" {
			dropped = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(3), dropped)
}

func TestLeave(t *testing.T) {
	h := New(8, zap.NewNop(), nil)
	s := h.Join(ScheduleGroup(3))
	assert.Equal(t, 1, h.Members(ScheduleGroup(3)))

	h.Leave(s)
	h.Leave(s)
	assert.Equal(t, 0, h.Members(ScheduleGroup(3)))
	assert.Zero(t, h.Deliver(ScheduleGroup(3), []byte(`{}`)))
	assert.False(t, s.Send([]byte(`{}`)))
	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestConcurrentJoinLeavePublish(t *testing.T) {
	h := New(4, zap.NewNop(), nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := h.Join(RobotMessageGroup)
				h.Leave(s)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Publish(ctx, RobotMessageGroup, "ping", nil)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.Members(RobotMessageGroup))
}

type loopRelay struct {
	hub      *Hub
	err      error
	forwards int
}

func (r *loopRelay) Forward(_ context.Context, group string, msg []byte) error {
	r.forwards++
	if r.err != nil {
		return r.err
	}
	r.hub.Deliver(group, msg)
	return nil
}

func TestRelayPath(t *testing.T) {
	h := New(8, zap.NewNop(), nil)
	relay := &loopRelay{hub: h}
	h.SetRelay(relay)
	s := h.Join(EmergencyStopGroup)

	require.NoError(t, h.Publish(context.Background(), EmergencyStopGroup, "emergency_stop", true))
	assert.Equal(t, "emergency_stop", recv(t, s).Event)
	assertEmpty(t, s)
	assert.Equal(t, 1, relay.forwards)

	relay.err = errors.New("down")
	require.NoError(t, h.Publish(context.Background(), EmergencyStopGroup, "emergency_stop", false))
	assert.Equal(t, false, recv(t, s).Data)
}

func TestRedisRelayFallsBackWhenUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	h := New(8, zap.NewNop(), nil)
	relay := NewRedisRelay(client, "robofleet:test", h, zap.NewNop())
	h.SetRelay(relay)
	s := h.Join(RobotMessageGroup)

	require.NoError(t, h.Publish(context.Background(), RobotMessageGroup, "status", "ok"))
	assert.Equal(t, "ok", recv(t, s).Data)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, relay.Run(ctx))
}

func TestRedisRelayRejectsInvalidFrame(t *testing.T) {
	relay := NewRedisRelay(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "c", New(1, zap.NewNop(), nil), zap.NewNop())
	assert.Error(t, relay.Forward(context.Background(), "g", []byte("not json")))
}
