package flock

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"flock_apiserver/internal/sensor"
)

// DecodeWord rebuilds a 16-bit value from its two wire bytes. The bird sends
// the least significant byte first; the top bit of every byte is framing and
// the two low bits of the value are never transmitted.
func DecodeWord(lsb, msb byte) int16 {
	return int16((uint16(msb&0x7F)<<7 | uint16(lsb&0x7F)) << 2)
}

// EncodeWord is the inverse of DecodeWord. The two low bits of v are lost.
func EncodeWord(v int16) (lsb, msb byte) {
	u := uint16(v)
	return byte(u>>2) & 0x7F, byte(u>>9) & 0x7F
}

// frameAlign rotates the bird frame (x forward, y right, z down) into the
// output frame: 90 degrees about X, then 180 degrees about Y.
var frameAlign = mgl64.QuatRotate(math.Pi, mgl64.Vec3{0, 1, 0}).
	Mul(mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{1, 0, 0})).
	Normalize()

// FrameAlign returns the device-to-output realignment rotation.
func FrameAlign() mgl64.Quat {
	return frameAlign
}

func alignPosition(p mgl64.Vec3) mgl64.Vec3 {
	return frameAlign.Rotate(p)
}

func alignOrientation(q mgl64.Quat) mgl64.Quat {
	return normalize(frameAlign.Mul(q).Mul(frameAlign.Conjugate()))
}

func normalize(q mgl64.Quat) mgl64.Quat {
	l := q.Len()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return mgl64.QuatIdent()
	}
	return mgl64.Quat{W: q.W / l, V: q.V.Mul(1 / l)}
}

// words decodes n consecutive words from rec.
func words(rec []byte, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(DecodeWord(rec[2*i], rec[2*i+1]))
	}
	return out
}

func decodeAngles(w []float64) mgl64.Quat {
	heading := mgl64.DegToRad(w[0] * angleScale)
	pitch := mgl64.DegToRad(w[1] * angleScale)
	roll := mgl64.DegToRad(w[2] * angleScale)
	q := mgl64.QuatRotate(heading, mgl64.Vec3{0, 0, 1}).
		Mul(mgl64.QuatRotate(pitch, mgl64.Vec3{1, 0, 0})).
		Mul(mgl64.QuatRotate(roll, mgl64.Vec3{0, 1, 0}))
	return alignOrientation(q)
}

// decodeMatrix reads a row-major matrix. The bird's matrix is the transpose of
// the rotation in the output convention.
func decodeMatrix(w []float64) mgl64.Quat {
	m := mgl64.Mat3FromRows(
		mgl64.Vec3{w[0] * unitScale, w[1] * unitScale, w[2] * unitScale},
		mgl64.Vec3{w[3] * unitScale, w[4] * unitScale, w[5] * unitScale},
		mgl64.Vec3{w[6] * unitScale, w[7] * unitScale, w[8] * unitScale},
	).Transpose()
	return alignOrientation(normalize(mgl64.Mat4ToQuat(m.Mat4())))
}

// decodeQuaternion reads w, x, y, z. The bird reports the conjugate of the
// output convention.
func decodeQuaternion(w []float64) mgl64.Quat {
	q := mgl64.Quat{
		W: w[0] * unitScale,
		V: mgl64.Vec3{w[1] * unitScale, w[2] * unitScale, w[3] * unitScale},
	}
	return alignOrientation(normalize(q).Conjugate())
}

// Decode converts one device record into a pose. posScale is the full-scale
// position range in inches.
func Decode(f DataFormat, rec []byte, posScale float64) (sensor.Pose, error) {
	if !f.Valid() {
		return sensor.IdentityPose(), fmt.Errorf("invalid data format %d", int(f))
	}
	if len(rec) < f.RecordLen() {
		return sensor.IdentityPose(), fmt.Errorf("%w: need %d bytes for %s, have %d", ErrShortRead, f.RecordLen(), f, len(rec))
	}
	w := words(rec, layouts[f].words)
	pose := sensor.IdentityPose()
	if f.hasPosition() {
		s := posScale / wordRange
		pose.Position = alignPosition(mgl64.Vec3{w[0] * s, w[1] * s, w[2] * s})
		w = w[3:]
	}
	switch f {
	case FormatAngles, FormatPosAngles:
		pose.Orientation = decodeAngles(w)
	case FormatMatrix, FormatPosMatrix:
		pose.Orientation = decodeMatrix(w)
	case FormatQuaternion, FormatPosQuaternion:
		pose.Orientation = decodeQuaternion(w)
	}
	return pose, nil
}
