package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Clip 是一段单声道音频，样本范围 [-1.0, 1.0]。
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration 返回音频时长；采样率无效时为 0。
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Empty 表示没有可播放的样本。
func (c *Clip) Empty() bool {
	return c == nil || len(c.Samples) == 0
}

// Int16ToFloat32 将 PCM int16 样本转换为 [-1.0, 1.0] 范围的 float32。
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// Float32ToInt16 将 float32 样本钳位到 [-1.0, 1.0] 后转换为 PCM int16。
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		out[i] = int16(clamp(s) * math.MaxInt16)
	}
	return out
}

func clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}

// PCM16ToFloat32 将 signed 16-bit LE 单声道 PCM 字节转换为 float32。
func PCM16ToFloat32(b []byte) []float32 {
	n := len(b) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[2*i:]))) / math.MaxInt16
	}
	return out
}

// Float32ToPCM16 将 float32 样本编码为 signed 16-bit LE PCM 字节，供播放设备使用。
func Float32ToPCM16(in []float32) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(clamp(s)*math.MaxInt16)))
	}
	return out
}

// StereoPCM16ToMono 将交错立体声 16-bit LE PCM 左右取平均，得到单声道 float32。
// 不完整的尾部帧被丢弃。
func StereoPCM16ToMono(b []byte) []float32 {
	const bytesPerFrame = 4
	numFrames := len(b) / bytesPerFrame
	out := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		off := i * bytesPerFrame
		left := int16(binary.LittleEndian.Uint16(b[off:]))
		right := int16(binary.LittleEndian.Uint16(b[off+2:]))
		out[i] = (float32(left) + float32(right)) / 2.0 / 32768.0
	}
	return out
}
