package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/annel0/room-scanner/internal/room"
	"github.com/annel0/room-scanner/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/klauspost/compress/zstd"
)

// Формат полезной нагрузки scan.batches (little-endian):
//
//	magic "RSB1" | flags u8 | body
//	body (после распаковки, если flags&FlagZstd):
//	  batchCount uvarint
//	  batch: idLen uvarint | id | quat W,X,Y,Z f64 | translation X,Y,Z f64 |
//	         pointCount uvarint | points (X,Y,Z f64)...
const (
	magic = "RSB1"

	// FlagZstd тело сжато zstd
	FlagZstd byte = 1 << 0

	// Ограничения защищают декодер от некорректных длин
	maxSurfaceIDLen = 1 << 10
	maxPointsPerMsg = 1 << 20

	// maxDecodedBody предел распакованного тела: все точки плюс заголовки батчей
	maxDecodedBody = maxPointsPerMsg*24 + 64<<10
)

// ErrMalformedPayload полезная нагрузка не соответствует формату
var ErrMalformedPayload = errors.New("malformed scan payload")

// BatchCodec кодирует и декодирует батчи сканирования.
// Кодировщик zstd создается один раз и переиспользуется.
type BatchCodec struct {
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

// NewBatchCodec создает кодек; compress включает zstd для исходящих сообщений.
// Декодер принимает оба варианта.
func NewBatchCodec(compress bool) (*BatchCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания компрессора: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedBody))
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("ошибка создания декомпрессора: %w", err)
	}
	return &BatchCodec{compress: compress, encoder: encoder, decoder: decoder}, nil
}

// Close освобождает ресурсы zstd
func (c *BatchCodec) Close() {
	_ = c.encoder.Close()
	c.decoder.Close()
}

// Encode сериализует батчи
func (c *BatchCodec) Encode(batches []room.ScanBatch) ([]byte, error) {
	var body bytes.Buffer
	writeUvarint(&body, uint64(len(batches)))

	for _, b := range batches {
		if len(b.SurfaceID) > maxSurfaceIDLen {
			return nil, fmt.Errorf("surface id too long: %d bytes", len(b.SurfaceID))
		}
		writeUvarint(&body, uint64(len(b.SurfaceID)))
		body.WriteString(string(b.SurfaceID))

		q := b.Transform.Rotation
		writeFloats(&body, q.W, q.V[0], q.V[1], q.V[2])
		t := b.Transform.Translation
		writeFloats(&body, t.X, t.Y, t.Z)

		writeUvarint(&body, uint64(len(b.Points)))
		for _, p := range b.Points {
			writeFloats(&body, p.X, p.Y, p.Z)
		}
	}

	out := make([]byte, 0, len(magic)+1+body.Len())
	out = append(out, magic...)
	if c.compress {
		out = append(out, FlagZstd)
		return c.encoder.EncodeAll(body.Bytes(), out), nil
	}
	out = append(out, 0)
	return append(out, body.Bytes()...), nil
}

// Decode разбирает полезную нагрузку. Любая ошибка формата оборачивает ErrMalformedPayload.
func (c *BatchCodec) Decode(data []byte) ([]room.ScanBatch, error) {
	if len(data) < len(magic)+1 || string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad header", ErrMalformedPayload)
	}
	flags := data[len(magic)]
	body := data[len(magic)+1:]

	if flags&FlagZstd != 0 {
		raw, err := c.decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrMalformedPayload, err)
		}
		body = raw
	}

	r := bytes.NewReader(body)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, malformed("batch count", err)
	}

	batches := make([]room.ScanBatch, 0, min(count, 1024))
	var total uint64
	for i := uint64(0); i < count; i++ {
		b, err := readBatch(r)
		if err != nil {
			return nil, err
		}
		total += uint64(len(b.Points))
		if total > maxPointsPerMsg {
			return nil, fmt.Errorf("%w: too many points", ErrMalformedPayload)
		}
		batches = append(batches, b)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedPayload, r.Len())
	}
	return batches, nil
}

func readBatch(r *bytes.Reader) (room.ScanBatch, error) {
	var b room.ScanBatch

	idLen, err := binary.ReadUvarint(r)
	if err != nil {
		return b, malformed("surface id length", err)
	}
	if idLen > maxSurfaceIDLen {
		return b, fmt.Errorf("%w: surface id length %d", ErrMalformedPayload, idLen)
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(r, id); err != nil {
		return b, malformed("surface id", err)
	}
	b.SurfaceID = room.SurfaceID(id)

	var xf [7]float64
	if err := readFloats(r, xf[:]); err != nil {
		return b, malformed("transform", err)
	}
	b.Transform = room.RigidTransform{
		Rotation:    mgl64.Quat{W: xf[0], V: mgl64.Vec3{xf[1], xf[2], xf[3]}},
		Translation: vec.New(xf[4], xf[5], xf[6]),
	}

	n, err := binary.ReadUvarint(r)
	if err != nil {
		return b, malformed("point count", err)
	}
	// Каждая точка занимает 24 байта: проверяем до выделения памяти
	if n > maxPointsPerMsg || n*24 > uint64(r.Len()) {
		return b, fmt.Errorf("%w: point count %d exceeds payload", ErrMalformedPayload, n)
	}
	b.Points = make([]room.Point3, n)
	var p [3]float64
	for i := range b.Points {
		if err := readFloats(r, p[:]); err != nil {
			return b, malformed("point", err)
		}
		b.Points[i] = vec.New(p[0], p[1], p[2])
	}
	return b, nil
}

func malformed(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, what, err)
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeFloats(buf *bytes.Buffer, vals ...float64) {
	var tmp [8]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
		buf.Write(tmp[:])
	}
}

func readFloats(r *bytes.Reader, dst []float64) error {
	var tmp [8]byte
	for i := range dst {
		if _, err := io.ReadFull(r, tmp[:]); err != nil {
			return err
		}
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(tmp[:]))
	}
	return nil
}
