package platform

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNone(t *testing.T) {
	p := None{}
	assert.False(t, p.Capabilities().Any())

	_, err := p.WatchOnline(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = p.WatchLinkType(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestManual_OnlineNotifications(t *testing.T) {
	m := NewManual(Capabilities{OnlineEvents: true, OnlineFlag: true})
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := m.WatchOnline(ctx)
	require.NoError(t, err)

	m.SetOnline(false)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected online notification")
	}
	assert.False(t, m.IsOnline())

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	// no watchers left; must not panic
	m.SetOnline(true)
}

func TestManual_LinkType(t *testing.T) {
	m := NewManual(Capabilities{LinkTypeEvents: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := m.WatchOnline(ctx)
	assert.ErrorIs(t, err, ErrUnsupported)

	ch, err := m.WatchLinkType(ctx)
	require.NoError(t, err)

	m.SetLinkType(" 3G ")
	<-ch
	assert.Equal(t, "3g", m.LinkType())
}

func TestManual_NotificationsCoalesce(t *testing.T) {
	m := NewManual(Capabilities{OnlineEvents: true, OnlineFlag: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := m.WatchOnline(ctx)
	require.NoError(t, err)

	m.SetOnline(false)
	m.SetOnline(true)
	m.SetOnline(false)

	<-ch
	assert.False(t, m.IsOnline())
	select {
	case <-ch:
		t.Fatal("notifications should coalesce")
	default:
	}
}

type fakeInterfaces struct {
	online atomic.Bool
	fail   atomic.Bool
}

func (f *fakeInterfaces) list(context.Context) (psnet.InterfaceStatList, error) {
	if f.fail.Load() {
		return nil, errors.New("not supported")
	}
	ifaces := psnet.InterfaceStatList{
		{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
	}
	eth := psnet.InterfaceStat{Name: "eth0", Addrs: psnet.InterfaceAddrList{{Addr: "fe80::1/64"}, {Addr: "192.168.1.20/24"}}}
	if f.online.Load() {
		eth.Flags = []string{"up", "broadcast", "multicast"}
	} else {
		eth.Flags = []string{"broadcast", "multicast"}
	}
	return append(ifaces, eth), nil
}

func TestSystem_ListingFailureMeansNoCapabilities(t *testing.T) {
	fake := &fakeInterfaces{}
	fake.fail.Store(true)

	s := NewSystem(WithInterfaceLister(fake.list))
	assert.False(t, s.Capabilities().Any())

	_, err := s.WatchOnline(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSystem_DetectsTransitions(t *testing.T) {
	fake := &fakeInterfaces{}
	fake.online.Store(true)
	mock := clock.NewMock()

	s := NewSystem(WithInterfaceLister(fake.list), WithClock(mock), WithPollInterval(time.Second))
	caps := s.Capabilities()
	assert.True(t, caps.OnlineEvents)
	assert.True(t, caps.OnlineFlag)
	assert.False(t, caps.LinkTypeEvents)
	assert.True(t, s.IsOnline())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := s.WatchOnline(ctx)
	require.NoError(t, err)

	fake.online.Store(false)
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.IsOnline())
}

func TestHasUsableInterface(t *testing.T) {
	assert.False(t, hasUsableInterface(nil))
	assert.False(t, hasUsableInterface(psnet.InterfaceStatList{
		{Name: "eth0", Flags: []string{"up"}, Addrs: psnet.InterfaceAddrList{{Addr: "fe80::1/64"}}},
	}))
	assert.True(t, hasUsableInterface(psnet.InterfaceStatList{
		{Name: "wlan0", Flags: []string{"up", "multicast"}, Addrs: psnet.InterfaceAddrList{{Addr: "10.0.0.5/8"}}},
	}))
}
