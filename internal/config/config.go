package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// ErrCodeInvalid 表示参数、环境变量或 env 文件中的值不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeRootNotFound 表示源目录不存在或不是目录。
	ErrCodeRootNotFound = "root_not_found"
)

// EnvFileName 是源目录下可选的 env 文件。
const EnvFileName = "culling-helper.env"

const (
	EnvLimit    = "CULLING_HELPER_LIMIT"
	EnvExiftool = "CULLING_HELPER_EXIFTOOL"
	EnvReader   = "CULLING_HELPER_READER"
	EnvRawExts  = "CULLING_HELPER_RAW_EXTS"
	EnvLogLevel = "CULLING_HELPER_LOG_LEVEL"
)

const (
	// DefaultLimit 是单个批次的字节上限（十进制 10 GB）。
	DefaultLimit    int64 = 10_000_000_000
	DefaultExiftool       = "exiftool"

	ReaderExiftool = "exiftool"
	ReaderNative   = "native"
)

// DefaultRawExts 是默认识别的 RAW 扩展名（比较时忽略大小写）。
var DefaultRawExts = []string{".CR3", ".CR2", ".NEF", ".ARW", ".RAF", ".DNG", ".ORF", ".RW2"}

// CLIArgs 是 CLI 暴露的参数，保留“是否显式指定”的信息，保证 CLI 能覆盖其他来源。
type CLIArgs struct {
	Dir string

	Limit    int64
	LimitSet bool

	DryRun bool
}

// EffectiveConfig 是合并后的最终配置，实现层直接消费，不再做二次默认/优先级判断。
type EffectiveConfig struct {
	Root     string // clean + absolute + 解析过符号链接
	Limit    int64
	Exiftool string
	Reader   string
	RawExts  []string
	LogLevel slog.Level
	DryRun   bool

	// EnvFile 是实际读取的 env 文件路径；不存在时为空。
	EnvFile string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeRootNotFound:
		if e.Err != nil {
			return fmt.Sprintf("%s：源目录 %q 不可用：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：源目录 %q 不可用", e.Code, e.Path)
	default:
		if e.Path != "" && e.Err != nil {
			return fmt.Sprintf("%s：%q：%v", e.Code, e.Path, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LookupEnv 与 os.LookupEnv 同型，测试可注入。
type LookupEnv func(key string) (string, bool)

// LoadEffective 解析源目录并合并配置。
//
// 目录：CLI -d > cwd。
// 覆盖优先级（固定）：CLI > 进程环境变量 > <root>/culling-helper.env > 内置默认。
// env 文件只被读取，不会写回进程环境。
func LoadEffective(cwd string, cli CLIArgs, lookup LookupEnv) (EffectiveConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	root, err := resolveRoot(cwd, cli.Dir)
	if err != nil {
		return EffectiveConfig{}, err
	}

	envPath := filepath.Join(root, EnvFileName)
	fileEnv, exists, err := readEnvFile(envPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: envPath, Err: err}
	}
	get := func(key string) (string, string, bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), "", true
		}
		if v, ok := fileEnv[key]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), envPath, true
		}
		return "", "", false
	}

	eff := EffectiveConfig{
		Root:     root,
		Limit:    DefaultLimit,
		Exiftool: DefaultExiftool,
		Reader:   ReaderExiftool,
		RawExts:  append([]string(nil), DefaultRawExts...),
		LogLevel: slog.LevelWarn,
		DryRun:   cli.DryRun,
	}
	if exists {
		eff.EnvFile = envPath
	}

	// limit：CLI > env
	if cli.LimitSet {
		if cli.Limit <= 0 {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("-l 必须是正整数，实际是 %d", cli.Limit)}
		}
		eff.Limit = cli.Limit
	} else if v, src, ok := get(EnvLimit); ok {
		n, err := ParseLimit(v)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: src, Err: fmt.Errorf("%s：%w", EnvLimit, err)}
		}
		eff.Limit = n
	}

	if v, _, ok := get(EnvExiftool); ok {
		eff.Exiftool = v
	}

	if v, src, ok := get(EnvReader); ok {
		r := strings.ToLower(v)
		if r != ReaderExiftool && r != ReaderNative {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: src, Err: fmt.Errorf("%s 只能是 exiftool 或 native，实际是 %q", EnvReader, v)}
		}
		eff.Reader = r
	}

	if v, src, ok := get(EnvRawExts); ok {
		exts := splitExts(v)
		if len(exts) == 0 {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: src, Err: fmt.Errorf("%s 为空", EnvRawExts)}
		}
		eff.RawExts = exts
	}

	if v, src, ok := get(EnvLogLevel); ok {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: src, Err: fmt.Errorf("%s：%w", EnvLogLevel, err)}
		}
		eff.LogLevel = lvl
	}

	return eff, nil
}

// ParseLimit 解析正整数字节数。
func ParseLimit(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("批次上限必须是正整数：%q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("批次上限必须是正整数：%d", n)
	}
	return n, nil
}

func resolveRoot(cwd, dir string) (string, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return "", &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}
	root := absCleanFrom(cwdAbs, dir)
	if root == "" {
		root = cwdAbs
	}

	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", &Error{Code: ErrCodeRootNotFound, Path: root, Err: err}
	}
	fi, err := os.Stat(resolved)
	if err != nil {
		return "", &Error{Code: ErrCodeRootNotFound, Path: root, Err: err}
	}
	if !fi.IsDir() {
		return "", &Error{Code: ErrCodeRootNotFound, Path: root, Err: errors.New("不是目录")}
	}
	return resolved, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute；p 为空时返回空串。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readEnvFile 读取 KEY=VALUE 格式的 env 文件；文件不存在不算错误。
func readEnvFile(path string) (map[string]string, bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if fi.IsDir() {
		return nil, false, fmt.Errorf("期望文件，实际是目录")
	}
	m, err := godotenv.Read(path)
	if err != nil {
		return nil, true, err
	}
	return m, true, nil
}

// splitExts 把 "cr3, .NEF" 规范化为 [".CR3" ".NEF"]（去重，保持顺序）。
func splitExts(s string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, part := range strings.Split(s, ",") {
		e := strings.ToUpper(strings.TrimSpace(part))
		if e == "" || e == "." {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
