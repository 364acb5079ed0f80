package protocol

import (
	"testing"

	"github.com/annel0/room-scanner/internal/room"
	"github.com/annel0/room-scanner/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBatches() []room.ScanBatch {
	return []room.ScanBatch{
		{
			SurfaceID: "floor-1",
			Transform: room.IdentityTransform(),
			Points:    []room.Point3{vec.New(0, 0, 0), vec.New(1.5, 0, -2)},
		},
		{
			SurfaceID: "wall-2",
			Transform: room.RigidTransform{
				Rotation:    mgl64.QuatRotate(mgl64.DegToRad(-90), mgl64.Vec3{0, 1, 0}),
				Translation: vec.New(5, 0, 0),
			},
			Points: []room.Point3{vec.New(1, 0, 0)},
		},
		{SurfaceID: "empty"},
	}
}

func TestBatchCodec(t *testing.T) {
	for _, compress := range []bool{false, true} {
		codec, err := NewBatchCodec(compress)
		require.NoError(t, err)

		data, err := codec.Encode(sampleBatches())
		require.NoError(t, err)
		assert.Equal(t, "RSB1", string(data[:4]))
		assert.Equal(t, compress, data[4]&FlagZstd != 0)

		got, err := codec.Decode(data)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, room.SurfaceID("wall-2"), got[1].SurfaceID)
		assert.Equal(t, sampleBatches()[1].Transform, got[1].Transform)
		assert.Equal(t, sampleBatches()[0].Points, got[0].Points)
		assert.Empty(t, got[2].Points)

		// Мировые координаты после декодирования не меняются
		w := room.ToWorld(got[1].Points[0], got[1].Transform)
		assert.True(t, w.ApproxEqual(vec.New(5, 0, 1), 1e-9))
		codec.Close()
	}
}

// TestBatchCodecCrossDecode несжатый кодек читает сжатые сообщения и наоборот
func TestBatchCodecCrossDecode(t *testing.T) {
	plain, err := NewBatchCodec(false)
	require.NoError(t, err)
	defer plain.Close()
	packed, err := NewBatchCodec(true)
	require.NoError(t, err)
	defer packed.Close()

	data, err := packed.Encode(sampleBatches())
	require.NoError(t, err)
	got, err := plain.Decode(data)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestBatchCodecMalformed(t *testing.T) {
	codec, err := NewBatchCodec(false)
	require.NoError(t, err)
	defer codec.Close()

	valid, err := codec.Encode(sampleBatches())
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":     nil,
		"bad magic": []byte("XXXX\x00\x01"),
		"truncated": valid[:len(valid)-5],
		"trailing":  append(append([]byte{}, valid...), 0xFF),
		"bad zstd":  []byte("RSB1\x01garbage"),
		"huge count": {'R', 'S', 'B', '1', 0, 1, 1, 'a',
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0xFF, 0xFF, 0xFF, 0x0F},
	}
	for name, data := range cases {
		_, err := codec.Decode(data)
		assert.ErrorIs(t, err, ErrMalformedPayload, name)
	}
}

// Сильно сжимаемое тело больше предела отклоняется без полной распаковки
func TestBatchCodecDecompressedSizeLimit(t *testing.T) {
	codec, err := NewBatchCodec(true)
	require.NoError(t, err)
	defer codec.Close()

	zeros := make([]byte, maxDecodedBody+1)
	packed := codec.encoder.EncodeAll(zeros, []byte{'R', 'S', 'B', '1', FlagZstd})
	require.Less(t, len(packed), len(zeros)/100)

	_, err = codec.Decode(packed)
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Contains(t, err.Error(), "zstd")
}

func TestBatchCodecSurfaceIDLimit(t *testing.T) {
	codec, err := NewBatchCodec(false)
	require.NoError(t, err)
	defer codec.Close()

	long := make([]byte, maxSurfaceIDLen+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = codec.Encode([]room.ScanBatch{{SurfaceID: room.SurfaceID(long)}})
	assert.Error(t, err)
}
