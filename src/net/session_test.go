package net

import (
	"errors"
	"testing"
	"time"

	"github.com/campnet/helisync/src/common"
)

// rawSession dials the server of p and returns the client end of the
// connection without going through the client code.
func rawSession(t *testing.T, p transportPair, target string) *sessionConn {
	conn, err := p.client.stream.Dial(target, time.Second)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	sc := newSessionConn(target, conn, DefaultMaxBatch)
	t.Cleanup(func() { sc.Release() })
	return sc
}

func TestSession_GiveMeRequestsEmpty(t *testing.T) {
	p := inmemPair(t, DefaultOptions())
	p.start(t, func(rpc RPC) {
		rpc.Respond(&RequestsResponse{}, nil)
	})

	sc := rawSession(t, p, "server")
	if err := sc.writeToken("giveMeRequests"); err != nil {
		t.Fatal(err)
	}
	if err := sc.flush(); err != nil {
		t.Fatal(err)
	}

	n, err := sc.readCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("count should be 0, not %d", n)
	}

	// no payload objects: the next thing the server wants is goodbye
	if err := sc.writeToken(GoodbyeToken); err != nil {
		t.Fatal(err)
	}
	if err := sc.flush(); err != nil {
		t.Fatal(err)
	}
	if err := sc.expect(GoodbyeToken); err != nil {
		t.Fatalf("expected goodbye: %v", err)
	}
}

func TestSession_UnknownCommandWithoutPayload(t *testing.T) {
	p := inmemPair(t, DefaultOptions())
	p.start(t, func(rpc RPC) {
		t.Errorf("nothing should be dispatched, got %T", rpc.Command)
		rpc.Respond(nil, nil)
	})

	sc := rawSession(t, p, "server")
	sc.writeToken("takeMyHelicopter")
	sc.writeToken(GoodbyeToken)
	sc.flush()

	if err := sc.expect(GoodbyeToken); err != nil {
		t.Fatalf("handshake should complete: %v", err)
	}
}

func TestSession_UnknownCommandWithPayload(t *testing.T) {
	p := inmemPair(t, DefaultOptions())
	p.start(t, func(rpc RPC) { rpc.Respond(nil, nil) })

	sc := rawSession(t, p, "server")
	sc.writeToken("takeMyHelicopter")
	sc.writeCount(1)
	sc.writeToken(GoodbyeToken)
	sc.flush()

	if _, err := sc.readToken(); err == nil {
		t.Fatal("server should hang up")
	}
}

func TestSession_WrongTerminator(t *testing.T) {
	p := inmemPair(t, DefaultOptions())
	p.start(t, func(rpc RPC) { rpc.Respond(nil, nil) })

	sc := rawSession(t, p, "server")
	sc.writeToken("takeOff")
	sc.writeToken("farewell")
	sc.flush()

	if _, err := sc.readToken(); err == nil {
		t.Fatal("server should not reply to a bad terminator")
	}
}

func TestSession_TakeMyRequestCount(t *testing.T) {
	p := inmemPair(t, DefaultOptions())
	p.start(t, func(rpc RPC) {
		t.Errorf("nothing should be dispatched, got %T", rpc.Command)
		rpc.Respond(nil, nil)
	})

	sc := rawSession(t, p, "server")
	sc.writeToken("takeMyRequest")
	sc.writeRequests(testRequests())
	sc.writeToken(GoodbyeToken)
	sc.flush()

	if _, err := sc.readToken(); err == nil {
		t.Fatal("a takeMyRequest with two requests should be dropped")
	}
}

func TestSession_BadCount(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxBatch = 10
	p := inmemPair(t, opts)
	p.start(t, func(rpc RPC) {
		t.Errorf("nothing should be dispatched, got %T", rpc.Command)
		rpc.Respond(nil, nil)
	})

	sc := rawSession(t, p, "server")
	sc.writeToken("takeMyTimetable")
	sc.enc.Encode(int32(11))
	sc.flush()

	if _, err := sc.readToken(); err == nil {
		t.Fatal("an oversized batch should be dropped")
	}

	sc2 := rawSession(t, p, "server")
	sc2.writeToken("takeMyRequests")
	sc2.enc.Encode(int32(-1))
	sc2.flush()

	if _, err := sc2.readToken(); err == nil {
		t.Fatal("a negative count should be dropped")
	}
}

func TestSession_TruncatedBatch(t *testing.T) {
	p := inmemPair(t, DefaultOptions())
	p.start(t, func(rpc RPC) {
		t.Errorf("a truncated batch should not be dispatched, got %T", rpc.Command)
		rpc.Respond(nil, nil)
	})

	sc := rawSession(t, p, "server")
	sc.writeToken("takeMyRequests")
	sc.writeCount(3)
	sc.enc.Encode(testRequests()[0])
	sc.flush()
	sc.Release()

	// give the server time to notice
	time.Sleep(50 * time.Millisecond)
}

func TestParseCommand(t *testing.T) {
	for _, c := range Commands {
		parsed, err := ParseCommand(c.String())
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if parsed != c {
			t.Fatalf("expected %s, got %s", c, parsed)
		}
	}

	if _, err := ParseCommand("takeMyTimeTable"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if _, err := ParseCommand(GoodbyeToken); err == nil {
		t.Fatal("goodbye is not a command")
	}
}

func TestTCPTransport_BadAddr(t *testing.T) {
	_, err := NewTCPTransport("0.0.0.0:0", "", DefaultPortRange, DefaultOptions(), common.NewTestEntry(t, common.TestLogLevel))
	if err != errNotAdvertisable {
		t.Fatalf("err: %v", err)
	}
}

func TestTCPTransport_WithAdvertise(t *testing.T) {
	trans, err := NewTCPTransport("0.0.0.0:0", "127.0.0.1:12345", DefaultPortRange, DefaultOptions(), common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans.Close()
	if trans.AdvertiseAddr() != "127.0.0.1:12345" {
		t.Fatalf("bad: %v", trans.AdvertiseAddr())
	}
}

func TestTCPTransport_RandomPort(t *testing.T) {
	ports := PortRange{Min: 20000, Max: 20100}
	stream, err := NewTCPStreamLayer("127.0.0.1", "", ports)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer stream.Close()

	if stream.Port() < ports.Min || stream.Port() >= ports.Max {
		t.Fatalf("port %d out of range", stream.Port())
	}
}
