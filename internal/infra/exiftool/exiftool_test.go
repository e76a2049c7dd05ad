package exiftool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// 用测试二进制自身扮演 exiftool，按 -stay_open 协议应答。
func startFake(t *testing.T) *Tool {
	t.Helper()
	tool, err := Start(Options{
		Bin:    os.Args[0],
		Args:   []string{"-test.run=TestHelperExiftool", "--"},
		Env:    append(os.Environ(), "CULLHELPER_FAKE_EXIFTOOL=1"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Start 失败：%v", err)
	}
	t.Cleanup(func() { _ = tool.Close() })
	return tool
}

func TestHelperExiftool(t *testing.T) {
	if os.Getenv("CULLHELPER_FAKE_EXIFTOOL") != "1" {
		return
	}
	fakeExiftool(os.Stdin, os.Stdout)
	os.Exit(0)
}

// fakeExiftool 的文件约定：RAW 内容包含 "preview"/"jpgfromraw" 表示存在对应标签；
// 评分以 "rating=N" 形式保存在文件内容里。
func fakeExiftool(in io.Reader, out io.Writer) {
	sc := bufio.NewScanner(in)
	var args []string
	for sc.Scan() {
		line := sc.Text()
		switch line {
		case "-execute":
			fakeRun(args, out)
			fmt.Fprintln(out, readyMarker)
			args = nil
		case "False":
			if len(args) > 0 && args[len(args)-1] == "-stay_open" {
				return
			}
			args = append(args, line)
		default:
			args = append(args, line)
		}
	}
}

func fakeRun(args []string, out io.Writer) {
	if len(args) == 0 {
		return
	}
	last := args[len(args)-1]
	switch {
	case args[0] == "-ver":
		fmt.Fprintln(out, "12.76")
	case args[0] == "-json":
		b, err := os.ReadFile(last)
		if err != nil {
			fmt.Fprintf(out, "Error: File not found - %s\n", last)
			return
		}
		s := string(b)
		if i := strings.Index(s, "rating="); i >= 0 {
			fmt.Fprintf(out, "[{\n  \"SourceFile\": %q,\n  \"Rating\": %s\n}]\n", last, strings.TrimSpace(s[i+len("rating="):]))
			return
		}
		fmt.Fprintf(out, "[{\n  \"SourceFile\": %q\n}]\n", last)
	case args[0] == "-overwrite_original":
		if _, err := os.Stat(last); err != nil {
			fmt.Fprintf(out, "Error: File not found - %s\n", last)
			fmt.Fprintln(out, "    0 image files updated")
			return
		}
		v := strings.TrimPrefix(args[1], "-Rating=")
		_ = os.WriteFile(last, []byte("rating="+v), 0o644)
		fmt.Fprintln(out, "    1 image files updated")
	case args[0] == "-b":
		tag := strings.ToLower(strings.TrimPrefix(args[1], "-"))
		dst := strings.ReplaceAll(args[3], "%%", "%")
		b, err := os.ReadFile(last)
		if err != nil {
			fmt.Fprintf(out, "Error: File not found - %s\n", last)
			return
		}
		if !strings.Contains(string(b), tag+";") {
			fmt.Fprintln(out, "    0 output files created")
			return
		}
		_ = os.WriteFile(dst, []byte("jpeg-from-"+tag), 0o644)
		fmt.Fprintln(out, "    1 output files created")
	}
}

func TestStart_MissingBinary(t *testing.T) {
	_, err := Start(Options{Bin: filepath.Join(t.TempDir(), "no-such-exiftool")})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("期望 NotFoundError，实际：%v", err)
	}
}

func TestTool_VersionAndReadWriteRating(t *testing.T) {
	tool := startFake(t)
	ctx := context.Background()

	v, err := tool.Version(ctx)
	if err != nil || v != "12.76" {
		t.Fatalf("Version 不符合预期：%q %v", v, err)
	}

	dir := t.TempDir()
	raw := filepath.Join(dir, "IMG_0001.CR3")
	if err := os.WriteFile(raw, []byte("raw"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	md, err := tool.ReadMetadata(ctx, raw)
	if err != nil {
		t.Fatalf("ReadMetadata 失败：%v", err)
	}
	if md.Rating != nil {
		t.Fatalf("未评分文件 Rating 应为 nil：%v", *md.Rating)
	}

	if err := tool.WriteRating(ctx, raw, 4); err != nil {
		t.Fatalf("WriteRating 失败：%v", err)
	}
	md, err = tool.ReadMetadata(ctx, raw)
	if err != nil || md.Rating == nil || *md.Rating != 4 {
		t.Fatalf("写后读不一致：%+v %v", md, err)
	}
}

func TestTool_ReadAndWriteMissingFile(t *testing.T) {
	tool := startFake(t)
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "gone.jpg")

	_, err := tool.ReadMetadata(ctx, missing)
	var ce *CommandError
	if !errors.As(err, &ce) || !strings.Contains(ce.Error(), "File not found") {
		t.Fatalf("期望 CommandError，实际：%v", err)
	}
	if err := tool.WriteRating(ctx, missing, 1); !errors.As(err, &ce) {
		t.Fatalf("期望 CommandError，实际：%v", err)
	}

	// 出错后进程仍可继续使用。
	if _, err := tool.Version(ctx); err != nil {
		t.Fatalf("出错后 Version 失败：%v", err)
	}
}

func TestTool_ExtractPreview_FallsBackToJpgFromRaw(t *testing.T) {
	tool := startFake(t)
	ctx := context.Background()
	dir := t.TempDir()

	withPreview := filepath.Join(dir, "A.CR3")
	onlyJfr := filepath.Join(dir, "B.NEF")
	none := filepath.Join(dir, "C.ARW")
	_ = os.WriteFile(withPreview, []byte("previewimage;"), 0o644)
	_ = os.WriteFile(onlyJfr, []byte("jpgfromraw;"), 0o644)
	_ = os.WriteFile(none, []byte("nothing"), 0o644)

	dstA := filepath.Join(dir, "100%", "A.jpg")
	_ = os.MkdirAll(filepath.Dir(dstA), 0o755)
	if err := tool.ExtractPreview(ctx, withPreview, dstA); err != nil {
		t.Fatalf("ExtractPreview 失败：%v", err)
	}
	if b, _ := os.ReadFile(dstA); string(b) != "jpeg-from-previewimage" {
		t.Fatalf("预览内容不符合预期：%q", b)
	}

	dstB := filepath.Join(dir, "B.jpg")
	if err := tool.ExtractPreview(ctx, onlyJfr, dstB); err != nil {
		t.Fatalf("ExtractPreview（JpgFromRaw）失败：%v", err)
	}
	if b, _ := os.ReadFile(dstB); string(b) != "jpeg-from-jpgfromraw" {
		t.Fatalf("应回退到 JpgFromRaw：%q", b)
	}

	dstC := filepath.Join(dir, "C.jpg")
	err := tool.ExtractPreview(ctx, none, dstC)
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("没有预览时应返回 CommandError，实际：%v", err)
	}
	if _, statErr := os.Stat(dstC); !os.IsNotExist(statErr) {
		t.Fatalf("失败时不应产生输出文件")
	}
}

func TestTool_RejectsNewlineArgsAndClosedProcess(t *testing.T) {
	tool := startFake(t)
	ctx := context.Background()

	if _, err := tool.ReadMetadata(ctx, "a\nb.jpg"); err == nil {
		t.Fatalf("包含换行的路径应被拒绝")
	}
	if err := tool.Close(); err != nil {
		t.Fatalf("Close 失败：%v", err)
	}
	if _, err := tool.Version(ctx); err == nil {
		t.Fatalf("关闭后调用应失败")
	}
}

func TestTool_CanceledContext(t *testing.T) {
	tool := startFake(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tool.Version(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际：%v", err)
	}
}

func TestParseRatingJSON(t *testing.T) {
	cases := []struct {
		body string
		want *int
		err  bool
	}{
		{body: `[{"SourceFile":"a.jpg","Rating":3}]`, want: ptr(3)},
		{body: `[{"SourceFile":"a.jpg","Rating":0}]`, want: ptr(0)},
		{body: `[{"SourceFile":"a.jpg","Rating":-1}]`},
		{body: `[{"SourceFile":"a.jpg"}]`},
		{body: `[{"SourceFile":"a.jpg","Rating":"x"}]`, err: true},
		{body: ``, err: true},
		{body: `[]`, err: true},
	}
	for _, c := range cases {
		md, err := parseRatingJSON("a.jpg", c.body)
		if c.err {
			if err == nil {
				t.Fatalf("%q 应失败", c.body)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q 不应失败：%v", c.body, err)
		}
		if (md.Rating == nil) != (c.want == nil) || (md.Rating != nil && *md.Rating != *c.want) {
			t.Fatalf("%q 解析结果不符合预期：%v", c.body, md.Rating)
		}
	}
}

func ptr(v int) *int { return &v }
