package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/cullhelper/internal/app/run"
	"github.com/John-Robertt/cullhelper/internal/config"
	"github.com/John-Robertt/cullhelper/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端的逐行进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：单个文件耗时很长时（网络盘上的大 RAW）定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	phase       string
	dryRun      bool
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int
	skip  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(phase string, eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.phase = phase
	p.dryRun = eff.DryRun && phase == domain.PhaseApply
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := ""
	if p.dryRun {
		mode = " (dry-run，不修改 RAW)"
	}
	fmt.Fprintf(p.w, "[%s] culling-helper %s%s\n", now.Format("15:04:05"), phase, mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  root: %s\n", eff.Root)
	switch phase {
	case domain.PhasePrepare:
		fmt.Fprintf(p.w, "  limit: %d bytes (%s)\n", eff.Limit, formatBytes(eff.Limit))
		fmt.Fprintf(p.w, "  raw_exts: %s\n", strings.Join(eff.RawExts, ","))
		fmt.Fprintf(p.w, "  exiftool: %s\n", eff.Exiftool)
	case domain.PhaseExtract:
		fmt.Fprintf(p.w, "  reader: %s\n", eff.Reader)
	case domain.PhaseApply:
		if !p.dryRun {
			fmt.Fprintf(p.w, "  exiftool: %s\n", eff.Exiftool)
		}
	}
	if eff.EnvFile != "" {
		fmt.Fprintf(p.w, "  env_file: %s\n", eff.EnvFile)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	if !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		p.total = intField(fields, "raws")
		fmt.Fprintf(p.w, "扫描: raws=%d (%s)\n\n", p.total, formatShortDuration(dur))
	case "plan":
		fmt.Fprintf(p.w, "\n分批: assigned=%d reused=%d failed=%d batch=%d (%s)\n",
			intField(fields, "assigned"),
			intField(fields, "reused"),
			intField(fields, "failed"),
			intField(fields, "batch"),
			formatShortDuration(dur),
		)
	case "read":
		fmt.Fprintf(p.w, "\n读取: jpgs=%d (%s)\n", intField(fields, "jpgs"), formatShortDuration(dur))
	case "write":
		fmt.Fprintf(p.w, "\n写回: ratings=%d (%s)\n", intField(fields, "ratings"), formatShortDuration(dur))
	case "save":
		fmt.Fprintf(p.w, "保存: entries=%d -> %v (%s)\n", intField(fields, "entries"), fields["path"], formatShortDuration(dur))
	case "report":
		// 路径由 emitLocations 统一输出。
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	if total > 0 {
		p.total = total
	}
	switch res.Status {
	case domain.StatusProcessed, domain.StatusPlanned:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusSkipped:
		p.skip++
	}

	fmt.Fprintln(p.w, formatItemLine(p.phase, res, dur))
	p.lastPrinted = time.Now()
}

// Stop 停止 keepalive ticker（幂等）。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func formatItemLine(phase string, res domain.ItemResult, dur time.Duration) string {
	if res.Status == domain.StatusFailed {
		key := res.Raw
		if key == "" {
			key = res.JPG
		}
		return fmt.Sprintf("FAIL %s %s: %s (%s)", key, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur))
	}

	switch phase {
	case domain.PhasePrepare:
		line := fmt.Sprintf("[%d] %s -> %s (%d bytes)", res.Batch, res.Raw, res.JPG, res.Size)
		if res.Status == domain.StatusSkipped {
			line += " 已存在，跳过"
		}
		return line
	case domain.PhaseExtract:
		return fmt.Sprintf("%s = %s", res.JPG, formatRating(res.Rating))
	default:
		line := fmt.Sprintf("%s <- %s", res.Raw, formatRating(res.Rating))
		if res.Status == domain.StatusPlanned {
			line += " (dry-run)"
		}
		return line
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stopCh := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, p.skip, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func formatRating(r *int) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *r)
}

// formatBytes 以十进制单位展示字节数（与 -l 的十进制默认值一致）。
func formatBytes(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "kMGTPE"[exp])
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
