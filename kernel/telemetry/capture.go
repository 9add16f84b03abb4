package telemetry

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// CaptureMagic and CaptureVersion identify the capture.dbxcap container, per
// spec.md §4.9.
var CaptureMagic = [4]byte{'D', 'B', 'X', 'C'}

const CaptureVersion = 1

// Capture directions, layers, and events, per spec.md §3's CaptureRecord.
const (
	CaptureSideLtoR uint8 = 0
	CaptureSideRtoL uint8 = 1

	CaptureLayerByteLink uint8 = 0
	CaptureLayerBearer   uint8 = 1
	CaptureLayerAudio    uint8 = 2

	CaptureEventTx   uint8 = 0
	CaptureEventRx   uint8 = 1
	CaptureEventDrop uint8 = 2
)

// CaptureWriter appends binary CaptureRecords to capture.dbxcap.
type CaptureWriter struct {
	f *os.File
	w *bufio.Writer
}

// NewCaptureWriter creates (or truncates) capture.dbxcap, writing the
// 4-byte magic and 1-byte version.
func NewCaptureWriter(path string) (*CaptureWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create capture.dbxcap: %w", err)
	}
	w := bufio.NewWriter(file)
	if _, err := w.Write(CaptureMagic[:]); err != nil {
		file.Close()
		return nil, fmt.Errorf("telemetry: write capture magic: %w", err)
	}
	if err := w.WriteByte(CaptureVersion); err != nil {
		file.Close()
		return nil, fmt.Errorf("telemetry: write capture version: %w", err)
	}
	return &CaptureWriter{f: file, w: w}, nil
}

// AppendRecord writes one CaptureRecord: t_ms:u64le | side:u8 | layer:u8 |
// event:u8 | len:u32le | data.
func (c *CaptureWriter) AppendRecord(tMs int64, side, layer, event uint8, data []byte) error {
	var fixed [15]byte
	binary.LittleEndian.PutUint64(fixed[0:8], uint64(tMs))
	fixed[8] = side
	fixed[9] = layer
	fixed[10] = event
	binary.LittleEndian.PutUint32(fixed[11:15], uint32(len(data)))
	if _, err := c.w.Write(fixed[:]); err != nil {
		return fmt.Errorf("telemetry: write capture record header: %w", err)
	}
	if len(data) > 0 {
		if _, err := c.w.Write(data); err != nil {
			return fmt.Errorf("telemetry: write capture record data: %w", err)
		}
	}
	return nil
}

// Flush flushes buffered writes without closing the file.
func (c *CaptureWriter) Flush() error {
	return c.w.Flush()
}

// Close flushes and closes capture.dbxcap.
func (c *CaptureWriter) Close() error {
	if err := c.Flush(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}
