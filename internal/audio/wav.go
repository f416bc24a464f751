package audio

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// DecodeWAV 解码 PCM WAVE 数据，多声道时取平均混为单声道。
func DecodeWAV(data []byte) (*Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("[audio] 不是有效的 WAV 数据")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("[audio] 读取 WAV PCM 失败: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("[audio] WAV 缺少采样率")
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	scale := float32(goaudio.IntMaxSignedValue(bitDepth))
	if scale <= 0 {
		return nil, fmt.Errorf("[audio] 不支持的位深: %d", bitDepth)
	}

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		samples[i] = float32(sum) / float32(channels) / scale
	}

	return &Clip{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// WriteWAV 把音频写成 16-bit 单声道 PCM WAVE 文件，必要时创建父目录。
func WriteWAV(path string, clip *Clip) error {
	if clip == nil || clip.SampleRate <= 0 {
		return fmt.Errorf("[audio] 无效的音频，无法写入 %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("[audio] 创建目录失败: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[audio] 创建 WAV 文件失败: %w", err)
	}

	pcm := Float32ToInt16(clip.Samples)
	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, clip.SampleRate, wavBitDepth, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: clip.SampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}); err != nil {
		f.Close()
		return fmt.Errorf("[audio] 写入 WAV 数据失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("[audio] 完成 WAV 文件失败: %w", err)
	}
	return f.Close()
}
