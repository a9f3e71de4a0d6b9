package log

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func intPtr(v int) *int { return &v }

func TestEncodeDecodeEvent(t *testing.T) {
	latency := 12 * time.Millisecond
	event := Event{
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC),
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		User:         "box-7",
		Message: &MessageEvent{
			Type:    MessageTypeResponse,
			Opcode:  0x00,
			OpName:  "CheckUID",
			Result:  "Ok",
			Count:   intPtr(2),
			Latency: &latency,
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}

	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", decoded.Timestamp, event.Timestamp)
	}
	if decoded.Message == nil {
		t.Fatal("Message is nil")
	}
	if *decoded.Message.Count != 2 || decoded.Message.Result != "Ok" {
		t.Errorf("Message = %+v", decoded.Message)
	}
	if *decoded.Message.Latency != latency {
		t.Errorf("Latency = %v, want %v", *decoded.Message.Latency, latency)
	}
	if decoded.Frame != nil || decoded.StateChange != nil {
		t.Error("unexpected payload set")
	}
}

func TestNewFrameEventTruncates(t *testing.T) {
	small := NewFrameEvent([]byte{1, 2, 3})
	if small.Size != 3 || small.Truncated {
		t.Errorf("small frame = %+v", small)
	}

	big := NewFrameEvent(make([]byte, MaxFrameDataSize+10))
	if big.Size != MaxFrameDataSize+10 {
		t.Errorf("Size = %d", big.Size)
	}
	if len(big.Data) != MaxFrameDataSize || !big.Truncated {
		t.Errorf("Data len = %d, Truncated = %v", len(big.Data), big.Truncated)
	}
}

func TestRedactAuth(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"user and secret", append([]byte{8}, "box:pass"...), append([]byte{8}, "box:****"...)},
		{"no separator", append([]byte{3}, "abc"...), append([]byte{3}, "***"...)},
		{"empty secret", append([]byte{2}, "a:"...), append([]byte{2}, "a:"...)},
		{"length only", []byte{0}, []byte{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := append([]byte(nil), tt.in...)
			got := RedactAuth(tt.in)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("RedactAuth = %q, want %q", got, tt.want)
			}
			if !bytes.Equal(tt.in, orig) {
				t.Error("input was modified")
			}
		})
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "device"+FileExtension)

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	base := time.Now()
	for i, id := range []string{"a", "b", "a"} {
		logger.Log(Event{
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			ConnectionID: id,
			Layer:        LayerTransport,
			Category:     CategoryMessage,
			Frame:        NewFrameEvent([]byte{byte(i)}),
		})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	logger.Log(Event{ConnectionID: "ignored"})

	reader, err := NewFilteredReader(path, Filter{ConnectionID: "a"})
	if err != nil {
		t.Fatalf("NewFilteredReader: %v", err)
	}
	defer reader.Close()

	var got []Event
	for {
		e, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[1].Frame.Data[0] != 2 {
		t.Errorf("second event frame = %v", got[1].Frame.Data)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.blog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				logger.Log(Event{Timestamp: time.Now(), Category: CategoryControl,
					ControlMsg: &ControlMsgEvent{Type: ControlMsgKeepalive}})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	r := NewStreamReader(f, Filter{})
	n := 0
	for {
		if _, err := r.Next(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("Next: %v", err)
		}
		n++
	}
	if n != 200 {
		t.Errorf("read %d events, want 200", n)
	}
	if logger.Dropped() != 0 {
		t.Errorf("Dropped = %d", logger.Dropped())
	}
}

func TestFilterMatches(t *testing.T) {
	op := uint8(0x01)
	in := DirectionIn
	start := time.Unix(100, 0)
	end := time.Unix(200, 0)

	tests := []struct {
		name   string
		filter Filter
		event  Event
		want   bool
	}{
		{"empty filter", Filter{}, Event{}, true},
		{"direction mismatch", Filter{Direction: &in}, Event{Direction: DirectionOut}, false},
		{"opcode on non message", Filter{Opcode: &op}, Event{}, false},
		{"opcode match", Filter{Opcode: &op}, Event{Message: &MessageEvent{Opcode: 0x01}}, true},
		{"before start", Filter{TimeStart: &start}, Event{Timestamp: time.Unix(50, 0)}, false},
		{"at end", Filter{TimeEnd: &end}, Event{Timestamp: end}, false},
		{"user", Filter{User: "x"}, Event{User: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.event); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMultiLoggerSkipsNil(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b)
	m.Log(Event{ConnectionID: "x"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("a=%d b=%d", len(a.events), len(b.events))
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) is not NoopLogger")
	}
	r := &recordingLogger{}
	if OrNoop(r) != Logger(r) {
		t.Error("OrNoop replaced a non-nil logger")
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := NewSlogAdapter(logger)

	a.Log(Event{
		ConnectionID: "c1",
		Layer:        LayerNetworker,
		Category:     CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityConnection,
			OldState: "DISCONNECTED",
			NewState: "CONNECTED",
		},
	})

	out := buf.String()
	for _, want := range []string{"msg=protocol", "conn_id=c1", "layer=NETWORKER", "new_state=CONNECTED"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	cases := []struct{ got, want string }{
		{DirectionOut.String(), "OUT"},
		{LayerTransport.String(), "TRANSPORT"},
		{CategoryError.String(), "ERROR"},
		{RoleServer.String(), "SERVER"},
		{MessageTypeAuth.String(), "AUTH"},
		{StateEntitySession.String(), "SESSION"},
		{ControlMsgKeepaliveReply.String(), "KEEPALIVE_REPLY"},
		{Layer(9).String(), "UNKNOWN"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}

func TestFrameRecorder(t *testing.T) {
	var r FrameRecorder
	r.Write([]byte{1, 2, 3})
	r.Write(make([]byte, MaxFrameDataSize))

	fe := r.FrameEvent()
	if fe.Size != MaxFrameDataSize+3 || r.Len() != fe.Size {
		t.Errorf("Size = %d", fe.Size)
	}
	if len(fe.Data) != MaxFrameDataSize || !fe.Truncated {
		t.Errorf("Data len = %d, Truncated = %v", len(fe.Data), fe.Truncated)
	}
	if !bytes.Equal(fe.Data[:3], []byte{1, 2, 3}) {
		t.Errorf("prefix = %v", fe.Data[:3])
	}

	r.Reset()
	if r.FrameEvent().Size != 0 {
		t.Error("Reset did not clear size")
	}
}
