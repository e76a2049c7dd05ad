package imgx

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/spf13/afero"
)

func TestInspectJPEG_ValidPreview(t *testing.T) {
	const (
		w = 64
		h = 48
	)
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg 失败：%v", err)
	}

	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/w/1/a.jpg", buf.Bytes(), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	p, err := InspectJPEG(fsys, "/w/1/a.jpg")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if p.Width != w || p.Height != h {
		t.Fatalf("尺寸不符合预期：%dx%d", p.Width, p.Height)
	}
	if p.Size != int64(buf.Len()) {
		t.Fatalf("字节数不符合预期：%d != %d", p.Size, buf.Len())
	}
}

func TestInspectJPEG_RejectsEmptyAndGarbage(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "/empty.jpg", nil, 0o644)
	_ = afero.WriteFile(fsys, "/garbage.jpg", []byte("not a jpeg at all"), 0o644)

	for _, p := range []string{"/empty.jpg", "/garbage.jpg"} {
		if _, err := InspectJPEG(fsys, p); !errors.Is(err, ErrNotJPEG) {
			t.Fatalf("%s：期望 ErrNotJPEG，实际 %v", p, err)
		}
	}
	if _, err := InspectJPEG(fsys, "/missing.jpg"); err == nil || errors.Is(err, ErrNotJPEG) {
		t.Fatalf("不存在的文件应返回 IO 错误，实际 %v", err)
	}
}
