package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/John-Robertt/cullhelper/internal/app/run"
	"github.com/John-Robertt/cullhelper/internal/config"
	"github.com/John-Robertt/cullhelper/internal/domain"
	"github.com/John-Robertt/cullhelper/internal/infra/exiftool"
	"github.com/John-Robertt/cullhelper/internal/infra/jpegmeta"
	"github.com/John-Robertt/cullhelper/internal/metadata"
	"github.com/John-Robertt/cullhelper/internal/workspace"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case domain.PhasePrepare, domain.PhaseExtract, domain.PhaseApply:
		if code := phaseCmd(args[0], args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func phaseCmd(name string, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printPhaseUsage(name)
			return 0
		}
	}

	pa, err := parsePhaseArgs(name, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printPhaseUsage(name)
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Dir:      pa.Dir,
		Limit:    pa.Limit,
		LimitSet: pa.LimitSet,
		DryRun:   pa.DryRun,
	}, os.LookupEnv)
	if err != nil {
		emitReport(reportForEarlyError(name, cwd, pa, err))
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: eff.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := run.Deps{Fs: afero.NewOsFs()}
	closeDeps, err := wireDeps(name, eff, logger, &deps)
	if err != nil {
		emitReport(reportForEarlyError(name, eff.Root, pa, err))
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	defer closeDeps()

	progressW, interactive := pickProgressWriter()
	if interactive {
		ui := newProgressUI(progressW)
		defer ui.Stop()
		deps.Observer = ui
	}

	var rr domain.PhaseReport
	switch name {
	case domain.PhasePrepare:
		rr, err = run.Prepare(ctx, eff, deps)
	case domain.PhaseExtract:
		rr, err = run.Extract(ctx, eff, deps)
	default:
		rr, err = run.Apply(ctx, eff, deps)
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}

// wireDeps 按阶段与配置装配协作者；只有确实需要时才启动 exiftool。
func wireDeps(name string, eff config.EffectiveConfig, logger *slog.Logger, deps *run.Deps) (func(), error) {
	needTool := name == domain.PhasePrepare ||
		(name == domain.PhaseExtract && eff.Reader == config.ReaderExiftool) ||
		(name == domain.PhaseApply && !eff.DryRun)

	var tool *exiftool.Tool
	closeFn := func() {}
	if needTool {
		t, err := exiftool.Start(exiftool.Options{Bin: eff.Exiftool, Logger: logger})
		if err != nil {
			var nf *exiftool.NotFoundError
			if errors.As(err, &nf) {
				return nil, &domain.Error{Code: domain.ErrCodeToolMissing, Path: eff.Exiftool, Err: err}
			}
			return nil, err
		}
		tool = t
		closeFn = func() {
			if err := t.Close(); err != nil {
				logger.Warn("exiftool exit", "err", err)
			}
		}
		if v, err := t.Version(context.Background()); err == nil {
			logger.Debug("exiftool ready", "version", v)
		}
	}

	switch name {
	case domain.PhasePrepare:
		deps.Extractor = tool
	case domain.PhaseExtract:
		readers := []metadata.NamedReader{{Name: config.ReaderNative, Reader: jpegmeta.New(deps.Fs)}}
		if tool != nil {
			readers = append(readers, metadata.NamedReader{Name: config.ReaderExiftool, Reader: tool})
		}
		reg, err := metadata.NewRegistry(readers...)
		if err != nil {
			closeFn()
			return nil, err
		}
		r, ok := reg.Get(eff.Reader)
		if !ok {
			closeFn()
			return nil, &config.Error{Code: config.ErrCodeInvalid, Err: fmt.Errorf("未知的评分读取器：%q", eff.Reader)}
		}
		deps.Reader = r
	case domain.PhaseApply:
		if tool != nil {
			deps.Writer = tool
		}
	}
	return closeFn, nil
}

type phaseArgs struct {
	Dir      string
	Limit    int64
	LimitSet bool
	DryRun   bool
}

func parsePhaseArgs(name string, args []string) (phaseArgs, error) {
	pa := phaseArgs{}

	value := func(i *int, flag string) (string, error) {
		if *i+1 >= len(args) {
			return "", fmt.Errorf("%s 需要一个值", flag)
		}
		*i++
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		flag, val, hasVal := strings.Cut(a, "=")
		switch flag {
		case "-d", "--directory":
			if !hasVal {
				v, err := value(&i, flag)
				if err != nil {
					return phaseArgs{}, err
				}
				val = v
			}
			if strings.TrimSpace(val) == "" {
				return phaseArgs{}, fmt.Errorf("%s 不能为空", flag)
			}
			pa.Dir = val
		case "-l", "--limit":
			if name != domain.PhasePrepare {
				return phaseArgs{}, fmt.Errorf("%s 只适用于 prepare", flag)
			}
			if !hasVal {
				v, err := value(&i, flag)
				if err != nil {
					return phaseArgs{}, err
				}
				val = v
			}
			n, err := config.ParseLimit(val)
			if err != nil {
				return phaseArgs{}, err
			}
			pa.Limit, pa.LimitSet = n, true
		case "--dry-run":
			if name != domain.PhaseApply {
				return phaseArgs{}, fmt.Errorf("--dry-run 只适用于 apply")
			}
			if hasVal {
				b, err := strconv.ParseBool(val)
				if err != nil {
					return phaseArgs{}, fmt.Errorf("--dry-run 只能是 true 或 false，实际是 %q", val)
				}
				pa.DryRun = b
			} else {
				pa.DryRun = true
			}
		default:
			if strings.HasPrefix(a, "-") {
				return phaseArgs{}, fmt.Errorf("未知参数 %q", a)
			}
			return phaseArgs{}, fmt.Errorf("多余的参数 %q（目录请用 -d 指定）", a)
		}
	}
	return pa, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  cullhelper prepare [-d 目录] [-l 字节上限]
  cullhelper extract [-d 目录]
  cullhelper apply   [-d 目录] [--dry-run]

命令：
  prepare  提取 RAW 内嵌预览到 <目录>/culling-helper/<批次>/，写 mapping.json
  extract  读取预览 JPG 的评分，写 ratings.json
  apply    把 ratings.json 中的评分写回对应的 RAW（原地覆盖）

使用 "cullhelper <命令> --help" 查看详细说明。
`)
}

func printPhaseUsage(name string) {
	switch name {
	case domain.PhasePrepare:
		fmt.Fprint(os.Stdout, `用法：
  cullhelper prepare [-d 目录] [-l 字节上限]

参数：
  -d, --directory  RAW 所在目录（默认当前目录）
  -l, --limit      单个批次的字节上限（默认 10000000000）
  -h, --help       显示帮助
`)
	case domain.PhaseExtract:
		fmt.Fprint(os.Stdout, `用法：
  cullhelper extract [-d 目录]

参数：
  -d, --directory  RAW 所在目录（默认当前目录）
  -h, --help       显示帮助

环境变量 CULLING_HELPER_READER=native 可不依赖 exiftool 读取 JPG 评分。
`)
	default:
		fmt.Fprint(os.Stdout, `用法：
  cullhelper apply [-d 目录] [--dry-run]

参数：
  -d, --directory  RAW 所在目录（默认当前目录）
  --dry-run        只报告将要写入的评分，不修改 RAW
  -h, --help       显示帮助
`)
	}
}

func emitReport(rr domain.PhaseReport) {
	summary := fmt.Sprintf("%s 完成：processed=%d skipped=%d failed=%d planned=%d batches=%d",
		rr.Phase, rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Planned, rr.Summary.Batches,
	)
	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summary)
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			key := it.Raw
			if key == "" {
				key = it.JPG
			}
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 PhaseReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(os.Stderr, summary)
}

func reportForEarlyError(name, root string, pa phaseArgs, err error) domain.PhaseReport {
	now := time.Now().UTC()
	rr := domain.PhaseReport{
		RunID:      uuid.NewString(),
		Phase:      name,
		Root:       root,
		DryRun:     pa.DryRun && name == domain.PhaseApply,
		StartedAt:  now,
		FinishedAt: now,
	}
	if root != "" && filepath.IsAbs(root) {
		rr.WorkDir = filepath.Join(root, workspace.DirName)
	}
	if code := config.Code(err); code != "" {
		rr.ErrorCode, rr.ErrorMsg = code, err.Error()
	} else {
		rr.Fail(err)
	}
	rr.Finalize()
	return rr
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	ws := workspace.New(afero.NewOsFs(), eff.Root)
	fmt.Fprintf(w, "report: %s\n", ws.ReportPath())
	fmt.Fprintf(w, "workdir: %s\n", ws.Dir)
}
