package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 将 MP3 数据解码为单声道音频。
// go-mp3 总是输出立体声 16-bit LE PCM，这里左右声道取平均。
func DecodeMP3(ctx context.Context, data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("[audio] MP3 数据为空")
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("[audio] MP3 解码失败: %w", err)
	}

	var pcm bytes.Buffer
	buf := make([]byte, 8192)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := decoder.Read(buf)
		pcm.Write(buf[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("[audio] 读取 PCM 数据失败: %w", err)
		}
	}

	return &Clip{
		Samples:    StereoPCM16ToMono(pcm.Bytes()),
		SampleRate: decoder.SampleRate(),
	}, nil
}
