// Package jpegmeta 在不依赖 exiftool 的情况下读取 JPG 的评分。
//
// 优先读 XMP（xmp:Rating，看图软件普遍写这里），其次读 EXIF IFD0 的 Rating（0x4746）。
package jpegmeta

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/spf13/afero"

	"github.com/John-Robertt/cullhelper/internal/metadata"
)

const (
	markerSOI  = 0xD8
	markerSOS  = 0xDA
	markerEOI  = 0xD9
	markerAPP1 = 0xE1

	exifRatingTag                = 0x4746
	fieldRating   exif.FieldName = "Rating"
)

var xmpHeader = []byte("http://ns.adobe.com/xap/1.0/\x00")

// ErrNotJPEG 表示文件不是 JPEG（缺少 SOI 或段结构损坏）。
var ErrNotJPEG = errors.New("不是有效的 JPEG")

var _ metadata.Reader = (*Reader)(nil)

func init() {
	exif.RegisterParsers(ratingParser{})
}

// ratingParser 让 goexif 额外加载 IFD0 中的 Rating 标签（默认字段表里没有）。
type ratingParser struct{}

func (ratingParser) Parse(x *exif.Exif) error {
	if x.Tiff == nil || len(x.Tiff.Dirs) == 0 {
		return nil
	}
	x.LoadTags(x.Tiff.Dirs[0], map[uint16]exif.FieldName{exifRatingTag: fieldRating}, false)
	return nil
}

// Reader 通过 afero.Fs 读取 JPG 文件。
type Reader struct {
	Fs afero.Fs
}

func New(fsys afero.Fs) *Reader { return &Reader{Fs: fsys} }

// ReadMetadata 返回 JPG 的评分；XMP 与 EXIF 都没有评分时 Rating 为 nil。
func (r *Reader) ReadMetadata(ctx context.Context, path string) (metadata.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return metadata.Metadata{}, err
	}
	data, err := afero.ReadFile(r.Fs, path)
	if err != nil {
		return metadata.Metadata{}, err
	}
	segs, err := app1Segments(data)
	if err != nil {
		return metadata.Metadata{}, fmt.Errorf("%q：%w", path, err)
	}

	for _, seg := range segs {
		if !bytes.HasPrefix(seg, xmpHeader) {
			continue
		}
		v, ok, err := xmpRating(seg[len(xmpHeader):])
		if err != nil {
			return metadata.Metadata{}, fmt.Errorf("%q：解析 XMP 失败：%w", path, err)
		}
		if ok {
			return ratingMetadata(v), nil
		}
	}

	if v, ok := exifRating(data); ok {
		return ratingMetadata(v), nil
	}
	return metadata.Metadata{}, nil
}

func ratingMetadata(v int) metadata.Metadata {
	if v < 0 {
		// -1 是“拒绝”，不在评分域内。
		return metadata.Metadata{}
	}
	return metadata.Metadata{Rating: metadata.RatingPtr(v)}
}

// app1Segments 返回 SOS 之前所有 APP1 段的负载（不含长度字段）。
func app1Segments(data []byte) ([][]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, ErrNotJPEG
	}
	var out [][]byte
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			return nil, fmt.Errorf("%w：偏移 %d 处缺少段标记", ErrNotJPEG, i)
		}
		marker := data[i+1]
		if marker == 0xFF {
			// 填充字节
			i++
			continue
		}
		if marker == markerSOS || marker == markerEOI {
			return out, nil
		}
		if marker >= 0xD0 && marker <= 0xD7 || marker == 0x01 {
			i += 2
			continue
		}
		n := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if n < 2 || i+2+n > len(data) {
			return nil, fmt.Errorf("%w：段长度越界", ErrNotJPEG)
		}
		if marker == markerAPP1 {
			out = append(out, data[i+4:i+2+n])
		}
		i += 2 + n
	}
	return out, nil
}

// xmpRating 在 XMP 包中查找 xmp:Rating（属性或元素形式）。
// HTML 解析器会把标签名与属性名转成小写。
func xmpRating(packet []byte) (int, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(packet))
	if err != nil {
		return 0, false, err
	}

	var (
		val   string
		found bool
	)
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("xmp:rating"); ok {
			val, found = v, true
			return false
		}
		if goquery.NodeName(s) == "xmp:rating" {
			val, found = s.Text(), true
			return false
		}
		return true
	})
	if !found {
		return 0, false, nil
	}
	v, err := parseRating(val)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func parseRating(s string) (int, error) {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("评分不是数字：%q", s)
	}
	return int(f), nil
}

func exifRating(data []byte) (int, bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, false
	}
	tag, err := x.Get(fieldRating)
	if err != nil {
		return 0, false
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0, false
	}
	return v, true
}
