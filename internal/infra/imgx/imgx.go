package imgx

import (
	"bufio"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/spf13/afero"
)

// Preview 是对一张预览 JPG 的最小描述（只解析头部，不解码像素）。
type Preview struct {
	Width  int
	Height int
	Size   int64
}

// ErrNotJPEG 表示文件不是可解析的 JPEG。
var ErrNotJPEG = errors.New("不是有效的 JPEG")

// InspectJPEG 校验 path 是 JPEG 并返回尺寸与字节数。
//
// 约束：
// - 只读 SOF 之前的头部（jpeg.DecodeConfig），大文件也很快
// - 空文件、非 JPEG、尺寸为 0 都视为无效
func InspectJPEG(fsys afero.Fs, path string) (Preview, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return Preview{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return Preview{}, err
	}
	if fi.Size() == 0 {
		return Preview{}, fmt.Errorf("%w：文件为空", ErrNotJPEG)
	}

	cfg, err := jpeg.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return Preview{}, fmt.Errorf("%w：%v", ErrNotJPEG, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Preview{}, fmt.Errorf("%w：图片尺寸无效", ErrNotJPEG)
	}
	return Preview{Width: cfg.Width, Height: cfg.Height, Size: fi.Size()}, nil
}
