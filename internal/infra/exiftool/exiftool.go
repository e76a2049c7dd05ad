// Package exiftool 通过一个常驻的 exiftool 进程（-stay_open）实现预览提取与评分读写。
//
// 协议：每个参数一行写入 stdin，以 "-execute" 结束；输出读到 "{ready}" 为止。
// stdout 与 stderr 合并到同一管道，Error/Warning 行按前缀识别。
package exiftool

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/John-Robertt/cullhelper/internal/metadata"
)

const readyMarker = "{ready}"

// DefaultPreviewTags 是依次尝试的内嵌预览标签。
var DefaultPreviewTags = []string{"PreviewImage", "JpgFromRaw"}

var (
	_ metadata.PreviewExtractor = (*Tool)(nil)
	_ metadata.Reader           = (*Tool)(nil)
	_ metadata.Writer           = (*Tool)(nil)
)

// NotFoundError 表示找不到 exiftool 可执行文件。
type NotFoundError struct {
	Bin string
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("找不到 exiftool（%q），请安装或通过 CULLING_HELPER_EXIFTOOL 指定路径：%v", e.Bin, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// CommandError 表示 exiftool 对某个文件报告了错误或没有产出。
type CommandError struct {
	Op       string
	Path     string
	Messages []string
}

func (e *CommandError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("exiftool %s 失败：%q", e.Op, e.Path)
	}
	return fmt.Sprintf("exiftool %s 失败：%q：%s", e.Op, e.Path, strings.Join(e.Messages, "; "))
}

// Tool 是一个常驻 exiftool 进程。方法之间串行（内部加锁）。
type Tool struct {
	PreviewTags []string

	log *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	out     *os.File
	scanner *bufio.Scanner
	closed  bool
}

// Options 控制进程的启动方式；Args/Env 主要用于测试替换可执行文件。
type Options struct {
	Bin    string
	Args   []string // 放在 -stay_open 参数之前
	Env    []string
	Logger *slog.Logger
}

// Start 启动常驻 exiftool 进程。调用方必须 Close。
func Start(opts Options) (*Tool, error) {
	bin := strings.TrimSpace(opts.Bin)
	if bin == "" {
		bin = "exiftool"
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return nil, &NotFoundError{Bin: bin, Err: err}
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	args := append(append([]string{}, opts.Args...), "-stay_open", "True", "-@", "-")
	cmd := exec.Command(resolved, args...)
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("创建 stdin 管道失败：%w", err)
	}

	// stdout/stderr 共用一个管道，保证 Error 行出现在 {ready} 之前被读到。
	pr, pw, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("创建输出管道失败：%w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("启动 exiftool 失败：%w", err)
	}
	// 子进程已持有写端；父进程关闭自己的副本，子进程退出后读端才能读到 EOF。
	_ = pw.Close()

	sc := bufio.NewScanner(pr)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	log.Debug("exiftool started", "bin", resolved, "pid", cmd.Process.Pid)
	return &Tool{
		PreviewTags: append([]string{}, DefaultPreviewTags...),
		log:         log,
		cmd:         cmd,
		stdin:       stdin,
		out:         pr,
		scanner:     sc,
	}, nil
}

// Close 让常驻进程退出并等待它结束。
func (t *Tool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	_, werr := io.WriteString(t.stdin, "-stay_open\nFalse\n")
	cerr := t.stdin.Close()
	waitErr := t.cmd.Wait()
	_ = t.out.Close()
	return errors.Join(werr, cerr, waitErr)
}

// response 是一次 -execute 的输出，已按行分类。
type response struct {
	Lines    []string
	Errors   []string
	Warnings []string
}

func (r response) body() string { return strings.Join(r.Lines, "\n") }

func (t *Tool) execute(ctx context.Context, args ...string) (response, error) {
	if err := ctx.Err(); err != nil {
		return response{}, err
	}
	for _, a := range args {
		if strings.ContainsAny(a, "\r\n") {
			return response{}, fmt.Errorf("参数不能包含换行：%q", a)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return response{}, errors.New("exiftool 进程已关闭")
	}

	var b strings.Builder
	for _, a := range args {
		b.WriteString(a)
		b.WriteByte('\n')
	}
	b.WriteString("-execute\n")
	t.log.Debug("exiftool execute", "args", args)
	if _, err := io.WriteString(t.stdin, b.String()); err != nil {
		return response{}, fmt.Errorf("写入 exiftool stdin 失败：%w", err)
	}

	var resp response
	for t.scanner.Scan() {
		line := t.scanner.Text()
		if strings.TrimSpace(line) == readyMarker {
			return resp, nil
		}
		switch {
		case strings.HasPrefix(line, "Error"):
			resp.Errors = append(resp.Errors, line)
		case strings.HasPrefix(line, "Warning"):
			t.log.Warn("exiftool warning", "msg", line)
			resp.Warnings = append(resp.Warnings, line)
		default:
			resp.Lines = append(resp.Lines, line)
		}
	}
	if err := t.scanner.Err(); err != nil {
		return response{}, fmt.Errorf("读取 exiftool 输出失败：%w", err)
	}
	return response{}, errors.New("exiftool 进程意外退出")
}

// Version 返回 exiftool 版本号（例如 "12.76"）。
func (t *Tool) Version(ctx context.Context) (string, error) {
	resp, err := t.execute(ctx, "-ver")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.body()), nil
}

// ExtractPreview 依次尝试 PreviewTags，把第一个存在的内嵌预览写到 jpgPath。
// jpgPath 不能已存在（exiftool -W 不覆盖）。
func (t *Tool) ExtractPreview(ctx context.Context, rawPath, jpgPath string) error {
	var msgs []string
	for _, tag := range t.PreviewTags {
		resp, err := t.execute(ctx, "-b", "-"+tag, "-W", escapeFormat(jpgPath), rawPath)
		if err != nil {
			return err
		}
		if fi, err := os.Stat(jpgPath); err == nil && fi.Size() > 0 {
			return nil
		}
		msgs = append(msgs, resp.Errors...)
		if len(resp.Errors) > 0 {
			// 文件级错误（例如 RAW 不存在/损坏）换标签也没用。
			break
		}
		msgs = append(msgs, fmt.Sprintf("没有 %s", tag))
	}
	return &CommandError{Op: "extract-preview", Path: rawPath, Messages: msgs}
}

// ReadMetadata 读取 Rating 字段；字段不存在时 Rating 为 nil。
func (t *Tool) ReadMetadata(ctx context.Context, path string) (metadata.Metadata, error) {
	resp, err := t.execute(ctx, "-json", "-n", "-Rating", path)
	if err != nil {
		return metadata.Metadata{}, err
	}
	if len(resp.Errors) > 0 {
		return metadata.Metadata{}, &CommandError{Op: "read", Path: path, Messages: resp.Errors}
	}
	return parseRatingJSON(path, resp.body())
}

// WriteRating 原地覆盖写入 Rating（-overwrite_original，不保留 _original 备份）。
func (t *Tool) WriteRating(ctx context.Context, path string, rating int) error {
	if rating < 0 {
		return fmt.Errorf("评分不能为负数：%d", rating)
	}
	resp, err := t.execute(ctx, "-overwrite_original", "-Rating="+strconv.Itoa(rating), path)
	if err != nil {
		return err
	}
	if len(resp.Errors) > 0 || !updatedOne(resp.Lines) {
		return &CommandError{Op: "write", Path: path, Messages: append(resp.Errors, resp.Lines...)}
	}
	return nil
}

func parseRatingJSON(path, body string) (metadata.Metadata, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return metadata.Metadata{}, &CommandError{Op: "read", Path: path, Messages: []string{"没有输出"}}
	}

	var rows []map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return metadata.Metadata{}, fmt.Errorf("解析 exiftool JSON 失败：%w", err)
	}
	if len(rows) == 0 {
		return metadata.Metadata{}, &CommandError{Op: "read", Path: path, Messages: []string{"没有结果"}}
	}

	raw, ok := rows[0]["Rating"]
	if !ok {
		return metadata.Metadata{}, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return metadata.Metadata{}, fmt.Errorf("Rating 不是数字：%s", string(raw))
	}
	f, err := n.Float64()
	if err != nil {
		return metadata.Metadata{}, fmt.Errorf("Rating 不是数字：%s", n)
	}
	// 部分软件用 -1 表示“拒绝”；本工具的评分域是 ≥ 0，按未评分处理。
	if f < 0 {
		return metadata.Metadata{}, nil
	}
	v := int(f)
	return metadata.Metadata{Rating: &v}, nil
}

func updatedOne(lines []string) bool {
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "1 image files updated") || strings.HasPrefix(l, "1 image files unchanged") {
			return true
		}
	}
	return false
}

// escapeFormat 转义 -W 的格式字符（%）。
func escapeFormat(p string) string {
	return strings.ReplaceAll(p, "%", "%%")
}
