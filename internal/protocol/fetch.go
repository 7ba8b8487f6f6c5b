package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/tuhiproject/tuhi/internal/ble"
	"github.com/tuhiproject/tuhi/internal/drawing"
	"github.com/tuhiproject/tuhi/internal/wire"
)

// fetchTimeout bounds one whole drawing transfer.
const fetchTimeout = 60 * time.Second

// penStream is the notification sink of one in-flight transfer. While
// awaitingAck is set the session still routes frames to the command
// path; the mode ack flips it on the delivery goroutine.
type penStream struct {
	awaitingAck bool
	dec         *wire.PenDecoder
	asm         *drawing.Assembler

	once sync.Once
	done chan error
}

func (st *penStream) push(data []byte) {
	recs, err := st.dec.Push(data)
	if err != nil {
		st.finish(err)
		return
	}
	for _, rec := range recs {
		if err := st.asm.Feed(rec); err != nil {
			st.finish(err)
			return
		}
	}
	if st.dec.Done() {
		st.finish(nil)
	}
}

func (st *penStream) finish(err error) {
	st.once.Do(func() { st.done <- err })
}

// FetchInfo reads the stored-drawing count and the capture timestamp
// of the oldest drawing.
func (s *Session) FetchInfo(ctx context.Context) (count int, timestamp uint32, err error) {
	resp, err := s.request(ctx, wire.OpFetchInfo, nil)
	if err != nil {
		return 0, 0, err
	}
	return wire.ParseFetchInfo(resp.Payload)
}

// FetchDrawing downloads the oldest stored drawing and acknowledges
// it, which deletes it from device storage. The acknowledgement is
// sent only after the drawing assembled: on any decode failure the
// drawing stays on the device. ErrNoDrawings means storage is empty.
func (s *Session) FetchDrawing(ctx context.Context, sessionID string) (*drawing.Drawing, error) {
	info := s.Info()
	if info.Width == 0 || info.Height == 0 {
		return nil, wire.Errorf(wire.KindNotReady, "device dimensions unknown, read device info first")
	}

	count, timestamp, err := s.FetchInfo(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNoDrawings
	}
	s.log.Debug().Int("stored", count).Uint32("timestamp", timestamp).Msg("starting transfer")

	s.setState(StateBusy)
	st := &penStream{
		awaitingAck: true,
		dec:         wire.NewPenDecoder(s.family),
		asm:         drawing.NewAssembler(s.family, info.Name, sessionID, info.Width, info.Height, uint64(timestamp)),
		done:        make(chan error, 1),
	}
	s.mu.Lock()
	s.stream = st
	s.mu.Unlock()
	clear := func() {
		s.mu.Lock()
		s.stream = nil
		s.mu.Unlock()
	}

	if _, err := s.request(ctx, wire.OpMode, []byte{wire.ModePaper}); err != nil {
		clear()
		s.setState(StateReady)
		return nil, err
	}

	timer := time.NewTimer(fetchTimeout)
	defer timer.Stop()
	select {
	case err := <-st.done:
		clear()
		if err != nil {
			s.setState(StateReady)
			return nil, err
		}
	case <-timer.C:
		clear()
		s.setState(StateReady)
		return nil, wire.Errorf(wire.KindTimeout, "transfer stalled")
	case <-ctx.Done():
		clear()
		s.setState(StateReady)
		return nil, ctx.Err()
	case <-s.conn.Disconnected():
		clear()
		s.setState(StateDisconnected)
		return nil, wire.Errorf(wire.KindTransportLost, "link dropped during transfer")
	}

	d, err := st.asm.Drawing()
	if err != nil {
		s.setState(StateReady)
		return nil, err
	}
	if _, err := s.request(ctx, wire.OpAckData, nil); err != nil {
		s.setState(StateReady)
		return nil, err
	}
	s.setState(StateReady)
	s.log.Info().Uint64("timestamp", d.Timestamp).Int("strokes", len(d.Strokes)).Msg("drawing fetched")
	return d, nil
}

// SubscribeButton delivers a callback for each button press announcing
// stored drawings. The callback runs on the transport's delivery
// goroutine and must not block.
func (s *Session) SubscribeButton(fn func()) error {
	button, ok := s.profile.Characteristic(ble.OfflineButtonCharUUID)
	if !ok {
		return ErrUnsupportedDevice
	}
	return button.Subscribe(func([]byte) { fn() })
}

// UnsubscribeButton stops button press delivery.
func (s *Session) UnsubscribeButton() error {
	button, ok := s.profile.Characteristic(ble.OfflineButtonCharUUID)
	if !ok {
		return ErrUnsupportedDevice
	}
	return button.Unsubscribe()
}
