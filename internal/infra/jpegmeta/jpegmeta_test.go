package jpegmeta

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/jpeg"
	"testing"

	"github.com/spf13/afero"
)

func baseJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4)), nil); err != nil {
		t.Fatalf("jpeg.Encode 失败：%v", err)
	}
	return buf.Bytes()
}

// withAPP1 在 SOI 之后插入一个 APP1 段。
func withAPP1(t *testing.T, jpg, payload []byte) []byte {
	t.Helper()
	seg := []byte{0xFF, markerAPP1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	out := append([]byte{}, jpg[:2]...)
	out = append(out, seg...)
	out = append(out, payload...)
	return append(out, jpg[2:]...)
}

func xmpPayload(packet string) []byte {
	return append(append([]byte{}, xmpHeader...), packet...)
}

// exifPayload 构造只含 IFD0 Rating（SHORT）的小端 TIFF。
func exifPayload(rating uint16) []byte {
	b := []byte("Exif\x00\x00")
	b = append(b, 'I', 'I', 42, 0, 8, 0, 0, 0)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint16(b, exifRatingTag)
	b = binary.LittleEndian.AppendUint16(b, 3)
	b = binary.LittleEndian.AppendUint32(b, 1)
	b = binary.LittleEndian.AppendUint16(b, rating)
	b = append(b, 0, 0)
	return binary.LittleEndian.AppendUint32(b, 0)
}

func readFrom(t *testing.T, data []byte) (*int, error) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/w/1/A.jpg", data, 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	md, err := New(fsys).ReadMetadata(context.Background(), "/w/1/A.jpg")
	return md.Rating, err
}

func TestReadMetadata_XMPAttribute(t *testing.T) {
	packet := `<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about="" xmlns:xmp="http://ns.adobe.com/xap/1.0/" xmp:Rating="4"/>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`
	got, err := readFrom(t, withAPP1(t, baseJPEG(t), xmpPayload(packet)))
	if err != nil {
		t.Fatalf("ReadMetadata 失败：%v", err)
	}
	if got == nil || *got != 4 {
		t.Fatalf("期望评分 4，实际 %v", got)
	}
}

func TestReadMetadata_XMPElement(t *testing.T) {
	packet := `<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF><rdf:Description>
<xmp:Rating>2</xmp:Rating>
</rdf:Description></rdf:RDF></x:xmpmeta>`
	got, err := readFrom(t, withAPP1(t, baseJPEG(t), xmpPayload(packet)))
	if err != nil {
		t.Fatalf("ReadMetadata 失败：%v", err)
	}
	if got == nil || *got != 2 {
		t.Fatalf("期望评分 2，实际 %v", got)
	}
}

func TestReadMetadata_XMPRejectedIsUnrated(t *testing.T) {
	packet := `<rdf:Description xmp:Rating="-1"/>`
	got, err := readFrom(t, withAPP1(t, baseJPEG(t), xmpPayload(packet)))
	if err != nil {
		t.Fatalf("ReadMetadata 失败：%v", err)
	}
	if got != nil {
		t.Fatalf("-1 应视为未评分，实际 %d", *got)
	}
}

func TestReadMetadata_XMPInvalidValue(t *testing.T) {
	packet := `<rdf:Description xmp:Rating="five"/>`
	if _, err := readFrom(t, withAPP1(t, baseJPEG(t), xmpPayload(packet))); err == nil {
		t.Fatalf("非数字评分应报错")
	}
}

func TestReadMetadata_EXIFRating(t *testing.T) {
	got, err := readFrom(t, withAPP1(t, baseJPEG(t), exifPayload(5)))
	if err != nil {
		t.Fatalf("ReadMetadata 失败：%v", err)
	}
	if got == nil || *got != 5 {
		t.Fatalf("期望评分 5，实际 %v", got)
	}
}

func TestReadMetadata_XMPWinsOverEXIF(t *testing.T) {
	data := withAPP1(t, baseJPEG(t), exifPayload(5))
	data = withAPP1(t, data, xmpPayload(`<rdf:Description xmp:Rating="1"/>`))
	got, err := readFrom(t, data)
	if err != nil {
		t.Fatalf("ReadMetadata 失败：%v", err)
	}
	if got == nil || *got != 1 {
		t.Fatalf("XMP 应优先，实际 %v", got)
	}
}

func TestReadMetadata_NoRating(t *testing.T) {
	got, err := readFrom(t, baseJPEG(t))
	if err != nil {
		t.Fatalf("ReadMetadata 失败：%v", err)
	}
	if got != nil {
		t.Fatalf("没有评分时应返回 nil，实际 %d", *got)
	}
}

func TestReadMetadata_NotJPEG(t *testing.T) {
	_, err := readFrom(t, []byte("definitely not a jpeg"))
	if !errors.Is(err, ErrNotJPEG) {
		t.Fatalf("期望 ErrNotJPEG，实际：%v", err)
	}
}

func TestReadMetadata_MissingFile(t *testing.T) {
	_, err := New(afero.NewMemMapFs()).ReadMetadata(context.Background(), "/nope.jpg")
	if err == nil {
		t.Fatalf("文件不存在应报错")
	}
}

func TestApp1Segments_TruncatedLength(t *testing.T) {
	data := []byte{0xFF, markerSOI, 0xFF, markerAPP1, 0x10, 0x00, 'x'}
	if _, err := app1Segments(data); !errors.Is(err, ErrNotJPEG) {
		t.Fatalf("段长度越界应返回 ErrNotJPEG，实际：%v", err)
	}
}
