package run

import (
	"time"

	"github.com/John-Robertt/cullhelper/internal/config"
	"github.com/John-Robertt/cullhelper/internal/domain"
)

// Observer 用于把“阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件在调用方 goroutine 中同步发出，顺序即处理顺序。
type Observer interface {
	// OnStart 在阶段开始时调用。
	OnStart(phase string, eff config.EffectiveConfig)
	// OnPhaseDone 在子步骤结束时调用（scan/plan/read/write/save），用于打印统计与耗时。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在单个文件处理完成时调用；total 未知时为 0。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(string, config.EffectiveConfig) {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnItemDone(int, int, domain.ItemResult, time.Duration) {}
